/*
Copyright © 2019 the ncedit authors.
This file is part of ncedit.

ncedit is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

ncedit is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with ncedit.  If not, see <http://www.gnu.org/licenses/>.
*/

package ncedit

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"
)

// Names of the time coordinate, its bounds variable and the bounds
// dimension.
const (
	TimeVariable       = "time"
	TimeBoundsVariable = "time_bnds"
	BoundsDimension    = "bnds"
)

// unitsRE matches CF time units with a calendar-valid epoch. Anything
// after the 19-character timestamp (time zones, fractional seconds) is
// ignored.
var unitsRE = regexp.MustCompile(`^\s*(\w+)\s+since\s+` +
	`(\d{4}-(?:0[1-9]|1[0-2])-(?:0[1-9]|[12]\d|3[01]) (?:[01]\d|2[0-3]):[0-5]\d:[0-5]\d)`)

const epochLayout = "2006-01-02 15:04:05"

// stepSeconds is the length of each supported time step in seconds.
var stepSeconds = map[string]float64{
	"microseconds": 1e-6, "microsecond": 1e-6, "us": 1e-6,
	"milliseconds": 1e-3, "millisecond": 1e-3, "msec": 1e-3, "ms": 1e-3,
	"seconds": 1, "second": 1, "secs": 1, "sec": 1, "s": 1,
	"minutes": 60, "minute": 60, "mins": 60, "min": 60,
	"hours": 3600, "hour": 3600, "hrs": 3600, "hr": 3600, "h": 3600,
	"days": 86400, "day": 86400, "d": 86400,
	"weeks": 604800, "week": 604800,
}

// Units are parsed CF time units.
type Units struct {
	// Step is the length of one time unit in seconds.
	Step float64

	// Epoch is the reference time, in the proleptic Gregorian calendar.
	Epoch time.Time
}

// ValidUnits reports whether s looks like CF time units:
// "<unit> since YYYY-MM-DD HH:MM:SS" with the month, day, hour, minute
// and second in range.
func ValidUnits(s string) bool { return unitsRE.MatchString(s) }

// ParseUnits parses CF time units. It fails when s does not match
// ValidUnits, when the step unit is not supported, or when the epoch is
// not a real date (e.g. February 30).
func ParseUnits(s string) (Units, error) {
	m := unitsRE.FindStringSubmatch(s)
	if m == nil {
		return Units{}, fmt.Errorf("ncedit: invalid time units %q", s)
	}
	step, ok := stepSeconds[strings.ToLower(m[1])]
	if !ok {
		return Units{}, fmt.Errorf("ncedit: unsupported time step %q in %q", m[1], s)
	}
	epoch, err := time.ParseInLocation(epochLayout, m[2], time.UTC)
	if err != nil {
		return Units{}, fmt.Errorf("ncedit: invalid epoch in time units %q: %w", s, err)
	}
	return Units{Step: step, Epoch: epoch}, nil
}

// seconds returns the number of seconds between the Unix epoch and the
// time that is v steps after u.Epoch.
func (u Units) seconds(v float64) float64 {
	return float64(u.Epoch.Unix()) + v*u.Step
}

// encode returns the offset of the absolute time sec in units u.
func (u Units) encode(sec float64) float64 {
	return (sec - float64(u.Epoch.Unix())) / u.Step
}

// toTime converts seconds since the Unix epoch into a time.
func toTime(sec float64) time.Time {
	s := math.Floor(sec)
	return time.Unix(int64(s), int64(math.Round((sec-s)*1e9))).UTC()
}

// BoundsMode selects how time bounds are generated.
type BoundsMode int

const (
	// NoBounds does not generate bounds.
	NoBounds BoundsMode = iota

	// MonthBounds bounds each time by the first and last day of its
	// calendar month, both at 00:00:00.
	MonthBounds

	// DayBounds bounds each time by a fixed window of plus and minus
	// an offset in days.
	DayBounds
)

func (b BoundsMode) String() string {
	switch b {
	case MonthBounds:
		return "months"
	case DayBounds:
		return "days"
	default:
		return "none"
	}
}

// ParseBoundsMode converts the set_time_bnds value of a time plan. Nil,
// "" and "none" mean NoBounds.
func ParseBoundsMode(s *string) (BoundsMode, error) {
	if s == nil {
		return NoBounds, nil
	}
	switch strings.ToLower(strings.TrimSpace(*s)) {
	case "", "none":
		return NoBounds, nil
	case "months":
		return MonthBounds, nil
	case "days":
		return DayBounds, nil
	}
	return NoBounds, fmt.Errorf("ncedit: unknown time bounds mode %q", *s)
}

// Rebased is the result of RebaseTime.
type Rebased struct {
	// Values are the time offsets in the output units.
	Values []float64

	// Bounds holds (lower, upper) pairs in the output units. It is nil
	// when no bounds were requested.
	Bounds [][2]float64
}

// RebaseTime converts time offsets from the units in to the units out,
// which may have different epochs and steps. When mode is not
// NoBounds it also returns bounds in the output units; offset is the
// half-width of the DayBounds window in days.
//
// If in or out is empty or does not look like CF time units, RebaseTime
// returns nil and no error: there is nothing to convert. Units that look
// valid but cannot be used (an unsupported step or an impossible date)
// return an error.
func RebaseTime(values []float64, in, out string, mode BoundsMode, offset float64) (*Rebased, error) {
	if in == "" || out == "" || !ValidUnits(in) || !ValidUnits(out) {
		return nil, nil
	}
	inU, err := ParseUnits(in)
	if err != nil {
		return nil, err
	}
	outU, err := ParseUnits(out)
	if err != nil {
		return nil, err
	}
	r := &Rebased{Values: make([]float64, len(values))}
	abs := make([]float64, len(values))
	for i, v := range values {
		abs[i] = inU.seconds(v)
		r.Values[i] = outU.encode(abs[i])
	}
	switch mode {
	case MonthBounds:
		r.Bounds = make([][2]float64, len(values))
		for i, sec := range abs {
			if math.IsNaN(sec) || math.IsInf(sec, 0) {
				r.Bounds[i] = [2]float64{math.NaN(), math.NaN()}
				continue
			}
			t := toTime(sec)
			first := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
			last := time.Date(t.Year(), t.Month()+1, 0, 0, 0, 0, 0, time.UTC)
			r.Bounds[i] = [2]float64{outU.encode(float64(first.Unix())), outU.encode(float64(last.Unix()))}
		}
	case DayBounds:
		r.Bounds = make([][2]float64, len(values))
		w := offset * 86400
		for i, sec := range abs {
			r.Bounds[i] = [2]float64{outU.encode(sec - w), outU.encode(sec + w)}
		}
	}
	return r, nil
}
