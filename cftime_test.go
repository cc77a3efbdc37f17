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
	"reflect"
	"testing"
	"time"

	"gonum.org/v1/gonum/floats"
)

func TestValidUnits(t *testing.T) {
	tests := []struct {
		units string
		valid bool
	}{
		{"days since 2000-01-01 00:00:00", true},
		{"  hours since 1979-12-31 23:59:59 UTC", true},
		{"seconds since 1970-01-01 00:00:00.0", true},
		{"days since 2000-13-01 00:00:00", false},
		{"days since 2000-00-01 00:00:00", false},
		{"days since 2000-01-32 00:00:00", false},
		{"days since 2000-01-01 24:00:00", false},
		{"days since 2000-01-01 00:60:00", false},
		{"days since 2000-01-01", false},
		{"garbage", false},
		{"", false},
	}
	for _, test := range tests {
		if have := ValidUnits(test.units); have != test.valid {
			t.Errorf("%q: have %v, want %v", test.units, have, test.valid)
		}
	}
}

func TestParseUnits(t *testing.T) {
	u, err := ParseUnits("hours since 1990-06-15 12:30:00")
	if err != nil {
		t.Fatal(err)
	}
	want := Units{Step: 3600, Epoch: time.Date(1990, 6, 15, 12, 30, 0, 0, time.UTC)}
	if !reflect.DeepEqual(u, want) {
		t.Errorf("have %+v, want %+v", u, want)
	}
	for _, bad := range []string{
		"fortnights since 2000-01-01 00:00:00",
		"days since 2001-02-29 00:00:00",
		"days since 2000-02-30 00:00:00",
	} {
		if _, err := ParseUnits(bad); err == nil {
			t.Errorf("%q should not parse", bad)
		}
	}
	if _, err := ParseUnits("days since 2000-02-29 00:00:00"); err != nil {
		t.Errorf("leap day: %v", err)
	}
}

func TestRebaseTime(t *testing.T) {
	const (
		jan1 = "days since 2000-01-01 00:00:00"
		jan2 = "days since 2000-01-02 00:00:00"
	)
	t.Run("shift", func(t *testing.T) {
		r, err := RebaseTime([]float64{0, 1, 2}, jan1, jan2, NoBounds, 0.5)
		if err != nil {
			t.Fatal(err)
		}
		if !reflect.DeepEqual(r.Values, []float64{-1, 0, 1}) {
			t.Errorf("values: %v", r.Values)
		}
		if r.Bounds != nil {
			t.Errorf("bounds: %v", r.Bounds)
		}
	})
	t.Run("days", func(t *testing.T) {
		r, err := RebaseTime([]float64{0, 1, 2}, jan1, jan2, DayBounds, 0.5)
		if err != nil {
			t.Fatal(err)
		}
		if r.Bounds[1] != [2]float64{-0.5, 0.5} {
			t.Errorf("bounds: %v", r.Bounds)
		}
	})
	t.Run("step", func(t *testing.T) {
		r, err := RebaseTime([]float64{24, 36}, "hours since 2000-01-01 00:00:00", jan2, DayBounds, 0.25)
		if err != nil {
			t.Fatal(err)
		}
		if !floats.EqualApprox(r.Values, []float64{0, 0.5}, 1e-12) {
			t.Errorf("values: %v", r.Values)
		}
		if !floats.EqualApprox(r.Bounds[1][:], []float64{0.25, 0.75}, 1e-12) {
			t.Errorf("bounds: %v", r.Bounds)
		}
	})
	t.Run("months", func(t *testing.T) {
		// 2000-02-15 and 2001-02-15.
		r, err := RebaseTime([]float64{45, 411}, jan1, jan1, MonthBounds, 0)
		if err != nil {
			t.Fatal(err)
		}
		want := [][2]float64{{31, 59}, {397, 424}}
		if !reflect.DeepEqual(r.Bounds, want) {
			t.Errorf("bounds: have %v, want %v", r.Bounds, want)
		}
	})
	t.Run("no-op", func(t *testing.T) {
		for _, units := range [][2]string{{"", jan2}, {jan1, ""}, {"garbage", jan2}, {jan1, "days since then"}} {
			r, err := RebaseTime([]float64{0}, units[0], units[1], DayBounds, 0.5)
			if r != nil || err != nil {
				t.Errorf("%q: have %v, %v", units, r, err)
			}
		}
	})
	t.Run("bad step", func(t *testing.T) {
		r, err := RebaseTime([]float64{0}, "fortnights since 2000-01-01 00:00:00", jan2, NoBounds, 0)
		if r != nil || err == nil {
			t.Errorf("have %v, %v", r, err)
		}
	})
}

func TestParseBoundsMode(t *testing.T) {
	s := func(s string) *string { return &s }
	tests := []struct {
		in   *string
		want BoundsMode
		err  bool
	}{
		{in: nil, want: NoBounds},
		{in: s(""), want: NoBounds},
		{in: s("Months"), want: MonthBounds},
		{in: s("days"), want: DayBounds},
		{in: s("years"), want: NoBounds, err: true},
	}
	for _, test := range tests {
		have, err := ParseBoundsMode(test.in)
		if have != test.want || (err != nil) != test.err {
			t.Errorf("%v: have %v, %v", test.in, have, err)
		}
	}
}
