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
)

// DataType is the element type of a variable.
type DataType int

// The netCDF data types. The first six are the classic types.
const (
	Invalid DataType = iota
	Byte             // int8
	Char             // text stored as bytes
	Short            // int16
	Int              // int32
	Float            // float32
	Double           // float64
	UByte            // uint8
	UShort           // uint16
	UInt             // uint32
	Int64
	UInt64
)

var typeNames = [...]string{"invalid", "byte", "char", "short", "int", "float", "double",
	"ubyte", "ushort", "uint", "int64", "uint64"}

func (d DataType) String() string {
	if d < 0 || int(d) >= len(typeNames) {
		return fmt.Sprintf("DataType(%d)", int(d))
	}
	return typeNames[d]
}

// Classic reports whether d exists in the classic netCDF format.
func (d DataType) Classic() bool { return d >= Byte && d <= Double }

// TypeOf returns the data type matching the dynamic type of a slice.
func TypeOf(values interface{}) DataType {
	switch values.(type) {
	case []int8:
		return Byte
	case string:
		return Char
	case []int16:
		return Short
	case []int32:
		return Int
	case []float32:
		return Float
	case []float64:
		return Double
	case []uint8:
		return UByte
	case []uint16:
		return UShort
	case []uint32:
		return UInt
	case []int64:
		return Int64
	case []uint64:
		return UInt64
	}
	return Invalid
}

// ToFloat64 converts a typed slice (or a string of characters) into
// float64 values.
func ToFloat64(values interface{}) ([]float64, error) {
	switch v := values.(type) {
	case []float64:
		o := make([]float64, len(v))
		copy(o, v)
		return o, nil
	case []float32:
		o := make([]float64, len(v))
		for i, x := range v {
			o[i] = float64(x)
		}
		return o, nil
	case []int8:
		o := make([]float64, len(v))
		for i, x := range v {
			o[i] = float64(x)
		}
		return o, nil
	case []uint8:
		o := make([]float64, len(v))
		for i, x := range v {
			o[i] = float64(x)
		}
		return o, nil
	case string:
		return ToFloat64([]byte(v))
	case []int16:
		o := make([]float64, len(v))
		for i, x := range v {
			o[i] = float64(x)
		}
		return o, nil
	case []uint16:
		o := make([]float64, len(v))
		for i, x := range v {
			o[i] = float64(x)
		}
		return o, nil
	case []int32:
		o := make([]float64, len(v))
		for i, x := range v {
			o[i] = float64(x)
		}
		return o, nil
	case []uint32:
		o := make([]float64, len(v))
		for i, x := range v {
			o[i] = float64(x)
		}
		return o, nil
	case []int64:
		o := make([]float64, len(v))
		for i, x := range v {
			o[i] = float64(x)
		}
		return o, nil
	case []uint64:
		o := make([]float64, len(v))
		for i, x := range v {
			o[i] = float64(x)
		}
		return o, nil
	}
	return nil, fmt.Errorf("dataset: cannot convert %T to float64", values)
}

// FromFloat64 converts float64 values into a slice of type d. Integer
// types are rounded to the nearest value; NaN is not representable in
// integer types and returns an error.
func (d DataType) FromFloat64(v []float64) (interface{}, error) {
	if d != Float && d != Double {
		for _, x := range v {
			if math.IsNaN(x) {
				return nil, fmt.Errorf("dataset: NaN cannot be stored as %s", d)
			}
		}
	}
	switch d {
	case Double:
		o := make([]float64, len(v))
		copy(o, v)
		return o, nil
	case Float:
		o := make([]float32, len(v))
		for i, x := range v {
			o[i] = float32(x)
		}
		return o, nil
	case Byte:
		o := make([]int8, len(v))
		for i, x := range v {
			o[i] = int8(math.Round(x))
		}
		return o, nil
	case Char:
		o := make([]byte, len(v))
		for i, x := range v {
			o[i] = byte(math.Round(x))
		}
		return string(o), nil
	case UByte:
		o := make([]uint8, len(v))
		for i, x := range v {
			o[i] = uint8(math.Round(x))
		}
		return o, nil
	case Short:
		o := make([]int16, len(v))
		for i, x := range v {
			o[i] = int16(math.Round(x))
		}
		return o, nil
	case UShort:
		o := make([]uint16, len(v))
		for i, x := range v {
			o[i] = uint16(math.Round(x))
		}
		return o, nil
	case Int:
		o := make([]int32, len(v))
		for i, x := range v {
			o[i] = int32(math.Round(x))
		}
		return o, nil
	case UInt:
		o := make([]uint32, len(v))
		for i, x := range v {
			o[i] = uint32(math.Round(x))
		}
		return o, nil
	case Int64:
		o := make([]int64, len(v))
		for i, x := range v {
			o[i] = int64(math.Round(x))
		}
		return o, nil
	case UInt64:
		o := make([]uint64, len(v))
		for i, x := range v {
			o[i] = uint64(math.Round(x))
		}
		return o, nil
	}
	return nil, fmt.Errorf("dataset: invalid data type %s", d)
}

// Scalar converts a numeric fill or attribute value into a single
// element of type d.
func (d DataType) Scalar(v float64) (interface{}, error) {
	s, err := d.FromFloat64([]float64{v})
	if err != nil {
		return nil, err
	}
	switch x := s.(type) {
	case []float64:
		return x[0], nil
	case []float32:
		return x[0], nil
	case []int8:
		return x[0], nil
	case string:
		return x[0], nil
	case []uint8:
		return x[0], nil
	case []int16:
		return x[0], nil
	case []uint16:
		return x[0], nil
	case []int32:
		return x[0], nil
	case []uint32:
		return x[0], nil
	case []int64:
		return x[0], nil
	case []uint64:
		return x[0], nil
	}
	return nil, fmt.Errorf("dataset: invalid data type %s", d)
}
