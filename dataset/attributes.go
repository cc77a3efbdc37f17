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

package dataset

import (
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"

	"github.com/spf13/cast"
)

// Attributes maps attribute names to values.
type Attributes map[string]interface{}

// Names returns the attribute names in sorted order so that
// attributes are written in the same order every time.
func (a Attributes) Names() []string {
	names := make([]string, 0, len(a))
	for n := range a {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Clone returns a shallow copy of a. The copy of a nil map is an
// empty map.
func (a Attributes) Clone() Attributes {
	o := make(Attributes, len(a))
	for k, v := range a {
		o[k] = v
	}
	return o
}

// Normalize converts an attribute value into a transport-safe form:
// float64, string, bool, or a []interface{} of those. Plain scalars pass
// through, single-element slices are unboxed into scalars, and longer
// slices become lists. NaN and infinities have no JSON form and are
// written as the strings "NaN", "+Inf" and "-Inf".
func Normalize(v interface{}) interface{} {
	switch x := v.(type) {
	case nil:
		return nil
	case string, bool:
		return x
	case float64:
		return finite(x)
	case float32, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return finite(cast.ToFloat64(x))
	case []interface{}:
		if len(x) == 1 {
			return Normalize(x[0])
		}
		o := make([]interface{}, len(x))
		for i, e := range x {
			o[i] = Normalize(e)
		}
		return o
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		if rv.Len() == 1 {
			return Normalize(rv.Index(0).Interface())
		}
		o := make([]interface{}, rv.Len())
		for i := range o {
			o[i] = Normalize(rv.Index(i).Interface())
		}
		return o
	}
	return fmt.Sprint(v)
}

func finite(f float64) interface{} {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
	return f
}

// NormalizeAll normalizes every value of a.
func NormalizeAll(a Attributes) Attributes {
	o := make(Attributes, len(a))
	for k, v := range a {
		o[k] = Normalize(v)
	}
	return o
}

// Float64 returns the numeric value of an attribute, unboxing
// single-element slices. The strings written by Normalize for
// non-finite values are accepted.
func Float64(v interface{}) (float64, error) {
	switch x := Normalize(v).(type) {
	case float64:
		return x, nil
	case []interface{}:
		return 0, fmt.Errorf("dataset: attribute has %d values, not 1", len(x))
	case string:
		f, err := strconv.ParseFloat(x, 64)
		if err != nil {
			return 0, fmt.Errorf("dataset: attribute %q is not numeric", x)
		}
		return f, nil
	default:
		return cast.ToFloat64E(x)
	}
}

// Float64s returns the numeric values of an attribute.
func Float64s(v interface{}) ([]float64, error) {
	switch x := Normalize(v).(type) {
	case []interface{}:
		o := make([]float64, len(x))
		for i, e := range x {
			f, err := Float64(e)
			if err != nil {
				return nil, err
			}
			o[i] = f
		}
		return o, nil
	default:
		f, err := Float64(x)
		if err != nil {
			return nil, err
		}
		return []float64{f}, nil
	}
}
