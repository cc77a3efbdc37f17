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
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/spatialmodel/ncedit/dataset"
)

var (
	// ErrMissingHeader is returned when an edit plan has no header.
	ErrMissingHeader = errors.New("ncedit: edit plan is missing the header")

	// ErrMissingUpdates is returned when an edit plan has no updates.
	ErrMissingUpdates = errors.New("ncedit: edit plan is missing the updates")

	// ErrMissingUpdateKey is returned when one of the required keys
	// under updates is absent.
	ErrMissingUpdateKey = errors.New("ncedit: edit plan is missing a required update")

	// ErrCompressionLevel is returned when the compression level is not
	// between 0 and 9.
	ErrCompressionLevel = errors.New("ncedit: compression level must be between 0 and 9")

	// ErrNestingDepth is returned for datasets with groups inside groups.
	ErrNestingDepth = dataset.ErrNestingDepth
)

// DefaultCompressionLevel is the deflate level written into new templates.
const DefaultCompressionLevel = 4

// DefaultBoundsOffset is the half-width, in days, of the "days" time
// bounds window.
const DefaultBoundsOffset = 0.5

// Template is an edit plan: the header of the dataset it was made from
// plus the requested updates.
type Template struct {
	Header  *Header  `json:"header" toml:"header"`
	Updates *Updates `json:"updates" toml:"updates"`
}

// Updates holds the requested changes. All fields except the bounds
// offset are required; unknown keys in a template file are ignored.
type Updates struct {
	// Drop lists variables to leave out. A plain name matches root
	// and group variables; "group/var" matches one group variable.
	Drop []string `json:"drop" toml:"drop"`

	Rename  *Rename   `json:"rename" toml:"rename"`
	Time    *TimePlan `json:"time" toml:"time"`
	Permute *Permute  `json:"permute" toml:"permute"`

	// Funcx maps variable names to expressions applied in order. The
	// element being transformed is called x.
	Funcx map[string][]string `json:"funcx" toml:"funcx"`

	CompressionLevel *int `json:"compression_level" toml:"compression_level"`
}

// Rename holds original-name to output-name tables. Group variables
// share the Variables table with root variables.
type Rename struct {
	Dimensions map[string]string `json:"dimensions" toml:"dimensions"`
	Variables  map[string]string `json:"variables" toml:"variables"`
	Groups     map[string]string `json:"groups" toml:"groups"`
}

// TimePlan describes re-basing of the time coordinate. Nil fields mean
// "not set".
type TimePlan struct {
	InUnits     *string `json:"in_units" toml:"in_units,omitempty"`
	OutUnits    *string `json:"out_units" toml:"out_units,omitempty"`
	SetTimeBnds *string `json:"set_time_bnds" toml:"set_time_bnds,omitempty"`

	// BoundsOffset is the half-width of the "days" bounds window, in
	// days. DefaultBoundsOffset is used when it is nil.
	BoundsOffset *float64 `json:"bounds_offset,omitempty" toml:"bounds_offset,omitempty"`
}

// Permute lists the variables each geometric modifier applies to.
type Permute struct {
	Variables2DYFlip []string `json:"variables2d_yflip" toml:"variables2d_yflip"`
	Variables2DXFlip []string `json:"variables2d_xflip" toml:"variables2d_xflip"`
	Variables1DFlip  []string `json:"variables1d_flip" toml:"variables1d_flip"`
}

// Synthesize returns a template that, applied to the dataset h was
// extracted from, reproduces it: identity renames, nothing dropped,
// permuted or transformed, and compression level 4. If h has a root
// variable called "time" with CF time units, they are copied into the
// time plan as the input units.
func Synthesize(h *Header) *Template {
	u := &Updates{
		Drop: []string{},
		Rename: &Rename{
			Dimensions: make(map[string]string, len(h.Dimensions)),
			Variables:  make(map[string]string, len(h.Variables)),
			Groups:     make(map[string]string, len(h.Groups)),
		},
		Time: &TimePlan{},
		Permute: &Permute{
			Variables2DYFlip: []string{},
			Variables2DXFlip: []string{},
			Variables1DFlip:  []string{},
		},
		Funcx: make(map[string][]string),
	}
	level := DefaultCompressionLevel
	u.CompressionLevel = &level

	for name := range h.Dimensions {
		u.Rename.Dimensions[name] = name
	}
	for name := range h.Variables {
		u.Rename.Variables[name] = name
		u.Funcx[name] = []string{}
	}
	for gname, g := range h.Groups {
		u.Rename.Groups[gname] = gname
		for name := range g.Variables {
			u.Rename.Variables[name] = name
			u.Funcx[name] = []string{}
		}
	}
	if v, ok := h.Variables[TimeVariable]; ok {
		if units, ok := v.Attributes["units"].(string); ok && ValidUnits(units) {
			u.Time.InUnits = &units
		}
	}
	return &Template{Header: h, Updates: u}
}

// Validate checks that the template has all of its required parts.
func (t *Template) Validate() error {
	if t == nil || t.Header == nil {
		return ErrMissingHeader
	}
	if t.Updates == nil {
		return ErrMissingUpdates
	}
	u := t.Updates
	var missing []string
	if u.Drop == nil {
		missing = append(missing, "drop")
	}
	if u.Rename == nil {
		missing = append(missing, "rename")
	}
	if u.Time == nil {
		missing = append(missing, "time")
	}
	if u.Permute == nil {
		missing = append(missing, "permute")
	}
	if u.Funcx == nil {
		missing = append(missing, "funcx")
	}
	if u.CompressionLevel == nil {
		missing = append(missing, "compression_level")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingUpdateKey, strings.Join(missing, ", "))
	}
	if l := *u.CompressionLevel; l < 0 || l > 9 {
		return fmt.Errorf("%w: have %d", ErrCompressionLevel, l)
	}
	return nil
}

// Format is a template file format.
type Format int

const (
	// JSON is the default template format.
	JSON Format = iota
	// TOML templates are chosen by the .toml file extension.
	TOML
)

// FormatOf returns the template format for the given file name.
func FormatOf(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return TOML
	}
	return JSON
}

// Write writes t to w in the given format.
func (t *Template) Write(w io.Writer, f Format) error {
	switch f {
	case TOML:
		if err := toml.NewEncoder(w).Encode(t); err != nil {
			return fmt.Errorf("ncedit: writing TOML template: %w", err)
		}
		return nil
	default:
		e := json.NewEncoder(w)
		e.SetIndent("", "    ")
		if err := e.Encode(t); err != nil {
			return fmt.Errorf("ncedit: writing JSON template: %w", err)
		}
		return nil
	}
}

// ReadTemplate reads a template in the given format. The template is not
// validated.
func ReadTemplate(r io.Reader, f Format) (*Template, error) {
	t := new(Template)
	switch f {
	case TOML:
		if _, err := toml.DecodeReader(r, t); err != nil {
			return nil, fmt.Errorf("ncedit: reading TOML template: %w", err)
		}
	default:
		if err := json.NewDecoder(r).Decode(t); err != nil {
			return nil, fmt.Errorf("ncedit: reading JSON template: %w", err)
		}
	}
	t.normalize()
	return t, nil
}

// normalize converts decoded attribute values into the forms produced
// by Extract.
func (t *Template) normalize() {
	h := t.Header
	if h == nil {
		return
	}
	h.Attributes = dataset.NormalizeAll(h.Attributes)
	for name, v := range h.Variables {
		v.Attributes = dataset.NormalizeAll(v.Attributes)
		h.Variables[name] = v
	}
	for gname, g := range h.Groups {
		g.Attributes = dataset.NormalizeAll(g.Attributes)
		for name, v := range g.Variables {
			v.Attributes = dataset.NormalizeAll(v.Attributes)
			g.Variables[name] = v
		}
		h.Groups[gname] = g
	}
}

// LoadTemplate reads a template file, choosing the format with FormatOf.
func LoadTemplate(path string) (*Template, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("ncedit: opening template: %w", err)
	}
	defer f.Close()
	return ReadTemplate(f, FormatOf(path))
}

// Save writes the template to a file, choosing the format with FormatOf.
func (t *Template) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("ncedit: creating template: %w", err)
	}
	if err := t.Write(f, FormatOf(path)); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// renameDimension returns the output name of a dimension.
func (u *Updates) renameDimension(name string) (string, bool) {
	return lookup(u.Rename.Dimensions, name)
}

func (u *Updates) renameVariable(name string) (string, bool) {
	return lookup(u.Rename.Variables, name)
}

func (u *Updates) renameGroup(name string) (string, bool) {
	return lookup(u.Rename.Groups, name)
}

func lookup(m map[string]string, name string) (string, bool) {
	if n, ok := m[name]; ok && n != "" {
		return n, true
	}
	return name, false
}

// matches reports whether list names the variable name in the group at
// path, either by its plain name or as "group/name".
func matches(list []string, path, name string) bool {
	for _, d := range list {
		if d == name {
			return true
		}
		if path != "" && d == path[1:]+"/"+name {
			return true
		}
	}
	return false
}

// dropped reports whether the variable name in the group at path
// should be left out.
func (u *Updates) dropped(path, name string) bool {
	return matches(u.Drop, path, name)
}

// expressions returns the expressions for the variable name in the
// group at path. A "group/name" entry takes precedence over a plain
// name entry.
func (u *Updates) expressions(path, name string) []string {
	if path != "" {
		if e, ok := u.Funcx[path[1:]+"/"+name]; ok {
			return e
		}
	}
	return u.Funcx[name]
}

// permutations returns the geometric modifiers that apply to the
// variable name in the group at path, in the order they are applied.
func (u *Updates) permutations(path, name string) []PermuteOp {
	var ops []PermuteOp
	for _, op := range []struct {
		op   PermuteOp
		vars []string
	}{
		{RowFlip, u.Permute.Variables2DYFlip},
		{ColumnFlip, u.Permute.Variables2DXFlip},
		{Reverse1D, u.Permute.Variables1DFlip},
	} {
		if matches(op.vars, path, name) {
			ops = append(ops, op.op)
		}
	}
	return ops
}
