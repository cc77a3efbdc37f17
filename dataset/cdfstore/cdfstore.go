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

// Package cdfstore stores datasets in the classic netCDF format
// (CDF-1 and CDF-2) using github.com/ctessum/cdf. Classic files have no
// groups and no compression: CreateGroup returns dataset.ErrUnsupported
// and compression levels are ignored.
package cdfstore

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ctessum/cdf"
	"github.com/ctessum/sparse"
	"github.com/spatialmodel/ncedit/dataset"
	"github.com/spf13/cast"
)

// Reader is a read-only classic netCDF dataset.
type Reader struct {
	f    *os.File
	cf   *cdf.File
	recs int
}

// Open opens the classic netCDF file at path for reading.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cdfstore: %v", err)
	}
	cf, err := cdf.Open(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("cdfstore: opening %s: %v", path, err)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("cdfstore: %v", err)
	}
	return &Reader{f: f, cf: cf, recs: int(cf.Header.NumRecs(fi.Size()))}, nil
}

// Path implements dataset.Group.
func (r *Reader) Path() string { return "" }

// Dimensions implements dataset.Dataset. The length of the record
// dimension is the number of records in the file.
func (r *Reader) Dimensions() ([]dataset.Dimension, error) {
	names := r.cf.Header.Dimensions("")
	lengths := r.cf.Header.Lengths("")
	o := make([]dataset.Dimension, len(names))
	for i, n := range names {
		o[i] = dataset.Dimension{Name: n, Len: lengths[i]}
		if lengths[i] == 0 {
			o[i].Unlimited = true
			o[i].Len = r.recs
		}
	}
	return o, nil
}

// Variables implements dataset.Group.
func (r *Reader) Variables() ([]string, error) {
	return r.cf.Header.Variables(), nil
}

func (r *Reader) exists(name string) error {
	for _, v := range r.cf.Header.Variables() {
		if v == name {
			return nil
		}
	}
	return fmt.Errorf("variable %s: %w", name, dataset.ErrNotFound)
}

// Variable implements dataset.Group.
func (r *Reader) Variable(name string) (*dataset.Variable, error) {
	if err := r.exists(name); err != nil {
		return nil, err
	}
	attrs := make(dataset.Attributes)
	for _, a := range r.cf.Header.Attributes(name) {
		attrs[a] = r.cf.Header.GetAttribute(name, a)
	}
	return &dataset.Variable{
		Name:       name,
		Dimensions: append([]string(nil), r.cf.Header.Dimensions(name)...),
		Type:       typeOf(r.cf.Reader(name, nil, nil).Zero(0)),
		Attributes: attrs,
	}, nil
}

// typeOf returns the data type of a prototype slice. Classic files
// store text as bytes.
func typeOf(proto interface{}) dataset.DataType {
	if _, ok := proto.([]byte); ok {
		return dataset.Char
	}
	return dataset.TypeOf(proto)
}

// shape returns the current shape of variable name, substituting the
// number of records for the record dimension. Lengths returns the
// header's own slice, so it is copied.
func (r *Reader) shape(name string) []int {
	shape := append([]int(nil), r.cf.Header.Lengths(name)...)
	if len(shape) > 0 && shape[0] == 0 {
		shape[0] = r.recs
	}
	return shape
}

// ReadArray implements dataset.Group.
func (r *Reader) ReadArray(name string) (*sparse.DenseArray, error) {
	if err := r.exists(name); err != nil {
		return nil, err
	}
	shape := r.shape(name)
	a := sparse.ZerosDense(append([]int(nil), shape...)...)
	if len(a.Elements) == 0 {
		return a, nil
	}
	rr := r.cf.Reader(name, make([]int, len(shape)), last(shape))
	buf := rr.Zero(len(a.Elements))
	if _, err := rr.Read(buf); err != nil && err != io.EOF {
		return nil, fmt.Errorf("cdfstore: reading %s: %v", name, err)
	}
	vals, err := dataset.ToFloat64(buf)
	if err != nil {
		return nil, fmt.Errorf("cdfstore: reading %s: %v", name, err)
	}
	if len(vals) != len(a.Elements) {
		return nil, fmt.Errorf("cdfstore: variable %s: read %d values for %d cells: %w",
			name, len(vals), len(a.Elements), dataset.ErrShape)
	}
	copy(a.Elements, vals)
	return a, nil
}

// last returns the index of the final element of an array with the
// given shape. cdf readers and writers take it as the end corner.
func last(shape []int) []int {
	o := make([]int, len(shape))
	for i, n := range shape {
		o[i] = n - 1
	}
	return o
}

// Attributes implements dataset.Group.
func (r *Reader) Attributes() (dataset.Attributes, error) {
	o := make(dataset.Attributes)
	for _, a := range r.cf.Header.Attributes("") {
		o[a] = r.cf.Header.GetAttribute("", a)
	}
	return o, nil
}

// Groups implements dataset.Dataset. Classic files have no groups.
func (r *Reader) Groups() ([]string, error) { return nil, nil }

// Group implements dataset.Dataset.
func (r *Reader) Group(name string) (dataset.Group, error) {
	return nil, fmt.Errorf("group %s: %w", name, dataset.ErrNotFound)
}

// Close implements dataset.Dataset.
func (r *Reader) Close() error { return r.f.Close() }

// The Reader is read-only.

func (r *Reader) SetAttributes(dataset.Attributes) error { return dataset.ErrUnsupported }

func (r *Reader) CreateVariable(dataset.VariableSpec) error { return dataset.ErrUnsupported }

func (r *Reader) SetVariableAttributes(string, dataset.Attributes) error {
	return dataset.ErrUnsupported
}

func (r *Reader) WriteArray(string, *sparse.DenseArray) error { return dataset.ErrUnsupported }

func (r *Reader) CreateDimension(dataset.Dimension) error { return dataset.ErrUnsupported }

func (r *Reader) CreateGroup(string) (dataset.Group, error) { return nil, dataset.ErrUnsupported }

// Writer builds a classic netCDF file. The header of a classic file
// cannot change once data has been written, so everything is held in
// memory and written when the Writer is closed.
type Writer struct {
	*dataset.Memory
	path string
}

// Create returns a Writer that will create the file at path when it is
// closed.
func Create(path string) *Writer {
	return &Writer{Memory: dataset.NewMemory(), path: path}
}

// CreateGroup implements dataset.Dataset. Classic files have no groups.
func (w *Writer) CreateGroup(name string) (dataset.Group, error) {
	return nil, fmt.Errorf("cdfstore: group %s: %w", name, dataset.ErrUnsupported)
}

// CreateVariable implements dataset.Group. Only the classic data types
// can be stored.
func (w *Writer) CreateVariable(s dataset.VariableSpec) error {
	if !s.Type.Classic() {
		return fmt.Errorf("cdfstore: variable %s: type %s: %w", s.Name, s.Type, dataset.ErrUnsupported)
	}
	return w.Memory.CreateVariable(s)
}

// Close writes the file.
func (w *Writer) Close() error {
	if err := w.write(); err != nil {
		w.Memory.Close()
		return err
	}
	return w.Memory.Close()
}

func (w *Writer) write() error {
	dims, err := w.Dimensions()
	if err != nil {
		return err
	}
	names := make([]string, len(dims))
	lengths := make([]int, len(dims))
	for i, d := range dims {
		names[i] = d.Name
		if !d.Unlimited {
			lengths[i] = d.Len
		}
	}
	h := cdf.NewHeader(names, lengths)

	global, err := w.Attributes()
	if err != nil {
		return err
	}
	for _, k := range global.Names() {
		h.AddAttribute("", k, attribute(global[k]))
	}

	vars, err := w.Variables()
	if err != nil {
		return err
	}
	if len(vars) == 0 {
		return fmt.Errorf("cdfstore: %s: classic output needs at least one variable: %w", w.path, dataset.ErrUnsupported)
	}
	for _, name := range vars {
		v, err := w.Variable(name)
		if err != nil {
			return err
		}
		proto, err := v.Type.FromFloat64(nil)
		if err != nil {
			return fmt.Errorf("cdfstore: variable %s: %v", name, err)
		}
		h.AddVariable(name, v.Dimensions, proto)
		for _, k := range v.Attributes.Names() {
			h.AddAttribute(name, k, attribute(v.Attributes[k]))
		}
	}
	h.Define()

	f, err := os.Create(w.path)
	if err != nil {
		return fmt.Errorf("cdfstore: %v", err)
	}
	cf, err := cdf.Create(f, h)
	if err != nil {
		f.Close()
		return fmt.Errorf("cdfstore: creating %s: %v", w.path, err)
	}
	for _, name := range vars {
		if err := w.writeVariable(cf, name); err != nil {
			f.Close()
			return err
		}
	}
	if err := padRecords(f, cf.Header, dims); err != nil {
		f.Close()
		return err
	}
	if err := cdf.UpdateNumRecs(f); err != nil {
		f.Close()
		return fmt.Errorf("cdfstore: %v", err)
	}
	return f.Close()
}

func (w *Writer) writeVariable(cf *cdf.File, name string) error {
	v, err := w.Variable(name)
	if err != nil {
		return err
	}
	a, err := w.ReadArray(name)
	if err != nil {
		return err
	}
	if len(a.Elements) == 0 {
		return nil
	}
	data, err := v.Type.FromFloat64(a.Elements)
	if err != nil {
		return fmt.Errorf("cdfstore: variable %s: %v", name, err)
	}
	if s, ok := data.(string); ok {
		data = []byte(s)
	}
	wr := cf.Writer(name, make([]int, len(a.Shape)), last(a.Shape))
	if _, err = wr.Write(data); err != nil && err != io.EOF {
		return fmt.Errorf("cdfstore: writing %s: %v", name, err)
	}
	return nil
}

// padRecords extends f so that its last record is complete. The final
// record variable of a record is not padded to a 4-byte boundary when it
// is written, and the record count is taken from the file size.
func padRecords(f *os.File, h *cdf.Header, dims []dataset.Dimension) error {
	recs := 0
	for _, d := range dims {
		if d.Unlimited {
			recs = d.Len
		}
	}
	if recs == 0 {
		return nil
	}
	fi, err := f.Stat()
	if err != nil {
		return fmt.Errorf("cdfstore: %v", err)
	}
	size := fi.Size()
	for i := 0; h.NumRecs(size) < int64(recs); i++ {
		if i == 4 {
			return fmt.Errorf("cdfstore: %s holds %d records, want %d", f.Name(), h.NumRecs(size), recs)
		}
		size++
		if err := f.Truncate(size); err != nil {
			return fmt.Errorf("cdfstore: %v", err)
		}
	}
	return nil
}

// attribute converts an attribute value into one of the types that
// classic files can hold: text or a slice of int8, int16, int32, float32
// or float64. Booleans are stored as bytes and 64-bit integers are
// narrowed to int32.
func attribute(v interface{}) interface{} {
	switch x := v.(type) {
	case string, []int8, []int16, []int32, []float32, []float64:
		return x
	case []byte:
		return string(x)
	case int8:
		return []int8{x}
	case bool:
		if x {
			return []int8{1}
		}
		return []int8{0}
	case int16:
		return []int16{x}
	case int, int32, int64, uint8, uint16, uint32, uint64:
		return []int32{cast.ToInt32(x)}
	case float32:
		return []float32{x}
	case float64:
		return []float64{x}
	case []interface{}:
		strs := true
		for _, e := range x {
			if _, ok := e.(string); !ok {
				strs = false
			}
		}
		if strs {
			return strings.Join(cast.ToStringSlice(x), ",")
		}
		f, err := dataset.Float64s(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return f
	}
	if f, err := dataset.Float64s(v); err == nil {
		return f
	}
	return fmt.Sprint(v)
}
