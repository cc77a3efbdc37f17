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

// Package nc4store reads netCDF-4 (HDF5) datasets with one level of
// groups using the pure Go reader github.com/batchatco/go-native-netcdf.
// It is read-only; every write operation returns dataset.ErrUnsupported.
package nc4store

import (
	"fmt"
	"reflect"

	"github.com/batchatco/go-native-netcdf/netcdf"
	"github.com/batchatco/go-native-netcdf/netcdf/api"
	"github.com/ctessum/sparse"
	"github.com/spatialmodel/ncedit/dataset"
)

// Reader is a read-only netCDF-4 dataset.
type Reader struct {
	*group
	dims []dataset.Dimension
}

type group struct {
	r    *Reader
	g    api.Group
	path string
}

// Open opens the netCDF-4 file at path.
func Open(path string) (*Reader, error) {
	g, err := netcdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("nc4store: opening %s: %v", path, err)
	}
	r := &Reader{}
	r.group = &group{r: r, g: g}
	return r, nil
}

// Close implements dataset.Dataset.
func (r *Reader) Close() error {
	r.g.Close()
	return nil
}

// Groups implements dataset.Dataset. Groups that contain groups of their
// own cannot be represented and cause dataset.ErrNestingDepth.
func (r *Reader) Groups() ([]string, error) {
	names := r.g.ListSubgroups()
	for _, n := range names {
		g, err := r.g.GetGroup(n)
		if err != nil {
			return nil, fmt.Errorf("nc4store: group %s: %v", n, err)
		}
		if len(g.ListSubgroups()) > 0 {
			return nil, fmt.Errorf("nc4store: group %s: %w", n, dataset.ErrNestingDepth)
		}
	}
	return names, nil
}

// Group implements dataset.Dataset.
func (r *Reader) Group(name string) (dataset.Group, error) {
	found := false
	for _, n := range r.g.ListSubgroups() {
		if n == name {
			found = true
		}
	}
	if !found {
		return nil, fmt.Errorf("group %s: %w", name, dataset.ErrNotFound)
	}
	g, err := r.g.GetGroup(name)
	if err != nil {
		return nil, fmt.Errorf("nc4store: group %s: %v", name, err)
	}
	return &group{r: r, g: g, path: dataset.GroupPath(name)}, nil
}

// Dimensions implements dataset.Dataset. The reader does not expose the
// dimension table of the file, so dimensions and their lengths are
// recovered from the variables that use them, in order of first use.
// Dimensions that no variable uses are not reported, and the
// unlimited flag is not available.
func (r *Reader) Dimensions() ([]dataset.Dimension, error) {
	if r.dims != nil {
		return r.dims, nil
	}
	groups := []*group{r.group}
	names, err := r.Groups()
	if err != nil {
		return nil, err
	}
	for _, n := range names {
		g, err := r.Group(n)
		if err != nil {
			return nil, err
		}
		groups = append(groups, g.(*group))
	}
	dims := []dataset.Dimension{}
	seen := make(map[string]bool)
	for _, g := range groups {
		for _, v := range g.g.ListVariables() {
			vg, err := g.g.GetVarGetter(v)
			if err != nil {
				return nil, fmt.Errorf("nc4store: variable %s: %v", v, err)
			}
			vals, err := vg.Values()
			if err != nil {
				return nil, fmt.Errorf("nc4store: reading %s: %v", v, err)
			}
			shape := shapeOf(vals, len(vg.Dimensions()))
			for i, d := range vg.Dimensions() {
				if seen[d] {
					continue
				}
				seen[d] = true
				dims = append(dims, dataset.Dimension{Name: d, Len: shape[i]})
			}
		}
	}
	r.dims = dims
	return dims, nil
}

// CreateDimension implements dataset.Dataset.
func (r *Reader) CreateDimension(dataset.Dimension) error { return dataset.ErrUnsupported }

// CreateGroup implements dataset.Dataset.
func (r *Reader) CreateGroup(string) (dataset.Group, error) { return nil, dataset.ErrUnsupported }

func (g *group) Path() string { return g.path }

func (g *group) Variables() ([]string, error) { return g.g.ListVariables(), nil }

func (g *group) getter(name string) (api.VarGetter, error) {
	for _, v := range g.g.ListVariables() {
		if v == name {
			vg, err := g.g.GetVarGetter(name)
			if err != nil {
				return nil, fmt.Errorf("nc4store: variable %s: %v", name, err)
			}
			return vg, nil
		}
	}
	return nil, fmt.Errorf("variable %s%s: %w", g.path, name, dataset.ErrNotFound)
}

func (g *group) Variable(name string) (*dataset.Variable, error) {
	vg, err := g.getter(name)
	if err != nil {
		return nil, err
	}
	return &dataset.Variable{
		Name:       name,
		Dimensions: append([]string(nil), vg.Dimensions()...),
		Type:       goType(vg.GoType()),
		Attributes: attributes(vg.Attributes()),
	}, nil
}

func (g *group) ReadArray(name string) (*sparse.DenseArray, error) {
	vg, err := g.getter(name)
	if err != nil {
		return nil, err
	}
	vals, err := vg.Values()
	if err != nil {
		return nil, fmt.Errorf("nc4store: reading %s: %v", name, err)
	}
	shape := shapeOf(vals, len(vg.Dimensions()))
	a := sparse.ZerosDense(append([]int(nil), shape...)...)
	flat, err := flatten(reflect.ValueOf(vals), shape, nil)
	if err != nil {
		return nil, fmt.Errorf("nc4store: reading %s: %v", name, err)
	}
	if len(flat) != len(a.Elements) {
		return nil, fmt.Errorf("nc4store: variable %s: %d values for %d cells: %w",
			name, len(flat), len(a.Elements), dataset.ErrShape)
	}
	copy(a.Elements, flat)
	return a, nil
}

func (g *group) Attributes() (dataset.Attributes, error) {
	return attributes(g.g.Attributes()), nil
}

func (g *group) SetAttributes(dataset.Attributes) error { return dataset.ErrUnsupported }

func (g *group) CreateVariable(dataset.VariableSpec) error { return dataset.ErrUnsupported }

func (g *group) SetVariableAttributes(string, dataset.Attributes) error {
	return dataset.ErrUnsupported
}

func (g *group) WriteArray(string, *sparse.DenseArray) error { return dataset.ErrUnsupported }

func attributes(m api.AttributeMap) dataset.Attributes {
	o := make(dataset.Attributes)
	if m == nil {
		return o
	}
	for _, k := range m.Keys() {
		if v, ok := m.Get(k); ok {
			o[k] = v
		}
	}
	return o
}

func goType(t string) dataset.DataType {
	switch t {
	case "int8":
		return dataset.Byte
	case "string":
		return dataset.Char
	case "int16":
		return dataset.Short
	case "int32":
		return dataset.Int
	case "float32":
		return dataset.Float
	case "float64":
		return dataset.Double
	case "uint8":
		return dataset.UByte
	case "uint16":
		return dataset.UShort
	case "uint32":
		return dataset.UInt
	case "int64":
		return dataset.Int64
	case "uint64":
		return dataset.UInt64
	}
	return dataset.Invalid
}

// shapeOf returns the shape of the nested slices in vals for a variable
// with rank dimensions. Text is returned as strings, so the innermost
// dimension of a character variable is the length of its strings.
func shapeOf(vals interface{}, rank int) []int {
	shape := make([]int, rank)
	v := reflect.ValueOf(vals)
	for i := 0; i < rank; i++ {
		switch v.Kind() {
		case reflect.Slice, reflect.Array:
			shape[i] = v.Len()
			if v.Len() == 0 {
				return shape
			}
			v = v.Index(0)
		case reflect.String:
			shape[i] = v.Len()
			return shape
		default:
			return shape
		}
	}
	return shape
}

// flatten appends the values of v in row-major order to o. Strings are
// padded with zeros to the innermost dimension.
func flatten(v reflect.Value, shape []int, o []float64) ([]float64, error) {
	switch v.Kind() {
	case reflect.String:
		b := []byte(v.String())
		n := len(b)
		if len(shape) > 0 && shape[len(shape)-1] > n {
			n = shape[len(shape)-1]
		}
		for i := 0; i < n; i++ {
			if i < len(b) {
				o = append(o, float64(b[i]))
			} else {
				o = append(o, 0)
			}
		}
		return o, nil
	case reflect.Slice, reflect.Array:
		if v.Len() > 0 {
			if k := v.Index(0).Kind(); k != reflect.Slice && k != reflect.Array && k != reflect.String {
				f, err := dataset.ToFloat64(v.Interface())
				if err != nil {
					return nil, err
				}
				return append(o, f...), nil
			}
		}
		var err error
		for i := 0; i < v.Len(); i++ {
			if o, err = flatten(v.Index(i), shape, o); err != nil {
				return nil, err
			}
		}
		return o, nil
	}
	f, err := dataset.Float64(v.Interface())
	if err != nil {
		return nil, err
	}
	return append(o, f), nil
}
