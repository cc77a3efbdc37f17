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

// Package ncedit edits self-describing array datasets (netCDF-style named
// dimensions, typed variables, one level of groups and free-form
// attributes) according to a declarative edit plan.
//
// The workflow has two halves. Extract and Synthesize describe an
// existing dataset and produce a no-op Template that a user can edit.
// An Editor then applies the edited Template to the dataset, writing a
// new dataset with renamed dimensions, variables and groups, dropped
// variables, remapped fill values, flipped arrays, transformed values and
// a re-based time coordinate.
package ncedit

import (
	"fmt"

	"github.com/spatialmodel/ncedit/dataset"
)

// Header is a snapshot of the structure of a dataset.
type Header struct {
	Dimensions map[string]Dimension      `json:"dimensions" toml:"dimensions"`
	Variables  map[string]VariableSchema `json:"variables" toml:"variables"`
	Groups     map[string]GroupSchema    `json:"groups" toml:"groups"`
	Attributes dataset.Attributes        `json:"attributes" toml:"attributes"`
}

// Dimension describes a dimension. Size is nil if and only if the
// dimension is unlimited.
type Dimension struct {
	Size      *int `json:"size" toml:"size,omitempty"`
	Unlimited bool `json:"unlimited" toml:"unlimited"`
}

// VariableSchema describes a variable.
type VariableSchema struct {
	Dimensions []string           `json:"dimensions" toml:"dimensions"`
	Attributes dataset.Attributes `json:"attributes" toml:"attributes"`
}

// GroupSchema describes a group. Group variables use the dataset-wide
// dimension namespace.
type GroupSchema struct {
	Variables  map[string]VariableSchema `json:"variables" toml:"variables"`
	Attributes dataset.Attributes        `json:"attributes" toml:"attributes"`
}

// Extract walks the dimensions, root variables, first-level groups and
// global attributes of ds and returns its header. Attribute values are
// normalized with dataset.Normalize so the header survives serialization
// unchanged.
func Extract(ds dataset.Dataset) (*Header, error) {
	h := &Header{
		Dimensions: make(map[string]Dimension),
		Variables:  make(map[string]VariableSchema),
		Groups:     make(map[string]GroupSchema),
	}
	dims, err := ds.Dimensions()
	if err != nil {
		return nil, fmt.Errorf("ncedit: extracting dimensions: %w", err)
	}
	for _, d := range dims {
		if d.Unlimited {
			h.Dimensions[d.Name] = Dimension{Unlimited: true}
			continue
		}
		size := d.Len
		h.Dimensions[d.Name] = Dimension{Size: &size}
	}

	if h.Variables, err = extractVariables(ds); err != nil {
		return nil, err
	}

	groups, err := ds.Groups()
	if err != nil {
		return nil, fmt.Errorf("ncedit: extracting groups: %w", err)
	}
	for _, name := range groups {
		g, err := ds.Group(name)
		if err != nil {
			return nil, fmt.Errorf("ncedit: extracting group %s: %w", name, err)
		}
		vars, err := extractVariables(g)
		if err != nil {
			return nil, err
		}
		attrs, err := g.Attributes()
		if err != nil {
			return nil, fmt.Errorf("ncedit: extracting attributes of group %s: %w", name, err)
		}
		h.Groups[name] = GroupSchema{Variables: vars, Attributes: dataset.NormalizeAll(attrs)}
	}

	attrs, err := ds.Attributes()
	if err != nil {
		return nil, fmt.Errorf("ncedit: extracting global attributes: %w", err)
	}
	h.Attributes = dataset.NormalizeAll(attrs)

	if err := h.check(); err != nil {
		return nil, err
	}
	return h, nil
}

func extractVariables(g dataset.Group) (map[string]VariableSchema, error) {
	names, err := g.Variables()
	if err != nil {
		return nil, fmt.Errorf("ncedit: listing variables in %q: %w", g.Path(), err)
	}
	o := make(map[string]VariableSchema, len(names))
	for _, name := range names {
		v, err := g.Variable(name)
		if err != nil {
			return nil, fmt.Errorf("ncedit: extracting variable %s%s: %w", prefix(g.Path()), name, err)
		}
		o[name] = VariableSchema{
			Dimensions: append([]string{}, v.Dimensions...),
			Attributes: dataset.NormalizeAll(v.Attributes),
		}
	}
	return o, nil
}

// check makes sure that every variable dimension is declared.
func (h *Header) check() error {
	checkVars := func(path string, vars map[string]VariableSchema) error {
		for name, v := range vars {
			for _, d := range v.Dimensions {
				if _, ok := h.Dimensions[d]; !ok {
					return fmt.Errorf("ncedit: variable %s%s uses undeclared dimension %s", prefix(path), name, d)
				}
			}
		}
		return nil
	}
	if err := checkVars("", h.Variables); err != nil {
		return err
	}
	for name, g := range h.Groups {
		if err := checkVars(dataset.GroupPath(name), g.Variables); err != nil {
			return err
		}
	}
	return nil
}

// variable returns the schema of the variable name in the group at path.
func (h *Header) variable(path, name string) (VariableSchema, bool) {
	if path == "" {
		v, ok := h.Variables[name]
		return v, ok
	}
	g, ok := h.Groups[path[1:]]
	if !ok {
		return VariableSchema{}, false
	}
	v, ok := g.Variables[name]
	return v, ok
}

func prefix(path string) string {
	if path == "" {
		return ""
	}
	return path + "/"
}
