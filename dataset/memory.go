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

	"github.com/ctessum/sparse"
)

// Memory is a Dataset held entirely in memory. It supports the full
// data model, including one level of groups, and is used for testing
// and for staging data before it is written by engines that need the
// whole layout up front.
type Memory struct {
	*memGroup
	dims   []Dimension
	groups []*memGroup
	closed bool
}

type memGroup struct {
	ds    *Memory
	path  string
	attrs Attributes
	vars  []*memVar
}

type memVar struct {
	spec  VariableSpec
	attrs Attributes
	data  *sparse.DenseArray
}

// NewMemory returns an empty in-memory dataset.
func NewMemory() *Memory {
	m := &Memory{}
	m.memGroup = &memGroup{ds: m, attrs: make(Attributes)}
	return m
}

// Dimensions implements Dataset.
func (m *Memory) Dimensions() ([]Dimension, error) {
	o := make([]Dimension, len(m.dims))
	copy(o, m.dims)
	return o, nil
}

// CreateDimension implements Dataset.
func (m *Memory) CreateDimension(d Dimension) error {
	if m.closed {
		return ErrClosed
	}
	for _, dd := range m.dims {
		if dd.Name == d.Name {
			return fmt.Errorf("dimension %s: %w", d.Name, ErrExists)
		}
		if d.Unlimited && dd.Unlimited {
			return fmt.Errorf("dimension %s: only one unlimited dimension is allowed: %w", d.Name, ErrUnsupported)
		}
	}
	if d.Unlimited {
		d.Len = 0
	} else if d.Len < 0 {
		return fmt.Errorf("dataset: dimension %s has negative length %d", d.Name, d.Len)
	}
	m.dims = append(m.dims, d)
	return nil
}

// Groups implements Dataset.
func (m *Memory) Groups() ([]string, error) {
	o := make([]string, len(m.groups))
	for i, g := range m.groups {
		o[i] = g.path[1:]
	}
	return o, nil
}

// Group implements Dataset.
func (m *Memory) Group(name string) (Group, error) {
	for _, g := range m.groups {
		if g.path == GroupPath(name) {
			return g, nil
		}
	}
	return nil, fmt.Errorf("group %s: %w", name, ErrNotFound)
}

// CreateGroup implements Dataset.
func (m *Memory) CreateGroup(name string) (Group, error) {
	if m.closed {
		return nil, ErrClosed
	}
	if _, err := m.Group(name); err == nil {
		return nil, fmt.Errorf("group %s: %w", name, ErrExists)
	}
	g := &memGroup{ds: m, path: GroupPath(name), attrs: make(Attributes)}
	m.groups = append(m.groups, g)
	return g, nil
}

// Close implements Dataset.
func (m *Memory) Close() error {
	m.closed = true
	return nil
}

func (m *Memory) dim(name string) (*Dimension, error) {
	for i := range m.dims {
		if m.dims[i].Name == name {
			return &m.dims[i], nil
		}
	}
	return nil, fmt.Errorf("dimension %s: %w", name, ErrNotFound)
}

func (g *memGroup) Path() string { return g.path }

func (g *memGroup) lookup(name string) (*memVar, error) {
	for _, v := range g.vars {
		if v.spec.Name == name {
			return v, nil
		}
	}
	return nil, fmt.Errorf("variable %s%s: %w", g.pathPrefix(), name, ErrNotFound)
}

func (g *memGroup) pathPrefix() string {
	if g.path == "" {
		return ""
	}
	return g.path + "/"
}

func (g *memGroup) Variables() ([]string, error) {
	o := make([]string, len(g.vars))
	for i, v := range g.vars {
		o[i] = v.spec.Name
	}
	return o, nil
}

func (g *memGroup) Variable(name string) (*Variable, error) {
	v, err := g.lookup(name)
	if err != nil {
		return nil, err
	}
	attrs := v.attrs.Clone()
	if v.spec.FillValue != nil {
		attrs[FillValueAttr] = v.spec.FillValue
	}
	return &Variable{
		Name:       v.spec.Name,
		Dimensions: append([]string(nil), v.spec.Dimensions...),
		Type:       v.spec.Type,
		Attributes: attrs,
	}, nil
}

func (g *memGroup) shape(v *memVar) ([]int, error) {
	return Shape(v.spec.Dimensions, g.ds.dims)
}

func (g *memGroup) ReadArray(name string) (*sparse.DenseArray, error) {
	v, err := g.lookup(name)
	if err != nil {
		return nil, err
	}
	if v.data != nil {
		return v.data.Copy(), nil
	}
	shape, err := g.shape(v)
	if err != nil {
		return nil, err
	}
	a := sparse.ZerosDense(shape...)
	if v.spec.FillValue != nil {
		if f, err := Float64(v.spec.FillValue); err == nil {
			for i := range a.Elements {
				a.Elements[i] = f
			}
		}
	}
	return a, nil
}

func (g *memGroup) Attributes() (Attributes, error) {
	return g.attrs.Clone(), nil
}

func (g *memGroup) SetAttributes(a Attributes) error {
	if g.ds.closed {
		return ErrClosed
	}
	for k, v := range a {
		g.attrs[k] = v
	}
	return nil
}

func (g *memGroup) CreateVariable(s VariableSpec) error {
	if g.ds.closed {
		return ErrClosed
	}
	if _, err := g.lookup(s.Name); err == nil {
		return fmt.Errorf("variable %s%s: %w", g.pathPrefix(), s.Name, ErrExists)
	}
	if s.Type == Invalid {
		return fmt.Errorf("dataset: variable %s has an invalid data type", s.Name)
	}
	if s.CompressionLevel < 0 || s.CompressionLevel > 9 {
		return fmt.Errorf("dataset: variable %s: compression level %d is outside 0-9", s.Name, s.CompressionLevel)
	}
	for i, d := range s.Dimensions {
		dd, err := g.ds.dim(d)
		if err != nil {
			return fmt.Errorf("variable %s: %w", s.Name, err)
		}
		if dd.Unlimited && i != 0 {
			return fmt.Errorf("variable %s: unlimited dimension %s must be outermost: %w", s.Name, d, ErrUnsupported)
		}
	}
	s.Dimensions = append([]string(nil), s.Dimensions...)
	g.vars = append(g.vars, &memVar{spec: s, attrs: make(Attributes)})
	return nil
}

func (g *memGroup) SetVariableAttributes(name string, a Attributes) error {
	if g.ds.closed {
		return ErrClosed
	}
	v, err := g.lookup(name)
	if err != nil {
		return err
	}
	for k, val := range a {
		if k == FillValueAttr {
			v.spec.FillValue = val
			continue
		}
		v.attrs[k] = val
	}
	return nil
}

// CompressionLevel returns the compression level a variable was
// created with.
func (m *Memory) CompressionLevel(group, name string) (int, error) {
	g := m.memGroup
	if group != "" {
		gg, err := m.Group(group)
		if err != nil {
			return 0, err
		}
		g = gg.(*memGroup)
	}
	v, err := g.lookup(name)
	if err != nil {
		return 0, err
	}
	return v.spec.CompressionLevel, nil
}

func (g *memGroup) WriteArray(name string, data *sparse.DenseArray) error {
	if g.ds.closed {
		return ErrClosed
	}
	v, err := g.lookup(name)
	if err != nil {
		return err
	}
	if len(data.Shape) != len(v.spec.Dimensions) {
		return fmt.Errorf("variable %s: rank %d != %d: %w", name, len(data.Shape), len(v.spec.Dimensions), ErrShape)
	}
	n := 1
	for i, dn := range v.spec.Dimensions {
		d, err := g.ds.dim(dn)
		if err != nil {
			return err
		}
		if d.Unlimited {
			if data.Shape[i] > d.Len {
				d.Len = data.Shape[i]
			}
		} else if d.Len != data.Shape[i] {
			return fmt.Errorf("variable %s: dimension %s has length %d but array has %d: %w",
				name, dn, d.Len, data.Shape[i], ErrShape)
		}
		n *= data.Shape[i]
	}
	if len(data.Elements) != n {
		return fmt.Errorf("variable %s: %d elements for %d cells: %w", name, len(data.Elements), n, ErrShape)
	}
	v.data = data.Copy()
	return nil
}
