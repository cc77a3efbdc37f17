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

// Package dataset defines the accessor that the ncedit engine uses to
// read and write hierarchical array datasets (named dimensions, typed
// n-dimensional variables, one level of groups and free-form attributes).
// Storage engines implement Dataset; an in-memory implementation is
// provided by NewMemory.
package dataset

import (
	"errors"

	"github.com/ctessum/sparse"
)

var (
	// ErrNotFound is returned when a named dimension, variable or group
	// does not exist.
	ErrNotFound = errors.New("dataset: not found")

	// ErrUnsupported is returned when a storage engine cannot perform
	// the requested operation, e.g. creating a group in a classic file.
	ErrUnsupported = errors.New("dataset: operation not supported")

	// ErrExists is returned when creating an element whose name is taken.
	ErrExists = errors.New("dataset: already exists")

	// ErrShape is returned when an array does not match the shape
	// implied by a variable's dimensions.
	ErrShape = errors.New("dataset: array shape does not match dimensions")

	// ErrClosed is returned by operations on a closed dataset.
	ErrClosed = errors.New("dataset: closed")

	// ErrNestingDepth is returned by engines that find groups nested
	// inside groups. Only one level of groups is supported.
	ErrNestingDepth = errors.New("dataset: groups nested more than one level deep are not supported")
)

// FillValueAttr is the conventional name of the attribute that holds a
// variable's fill value.
const FillValueAttr = "_FillValue"

// Dimension is a named axis. Len is the current number of records for
// unlimited dimensions.
type Dimension struct {
	Name      string
	Len       int
	Unlimited bool
}

// Variable describes an existing variable.
type Variable struct {
	Name       string
	Dimensions []string
	Type       DataType

	// Attributes include _FillValue when the variable has one.
	Attributes Attributes
}

// VariableSpec holds the parameters for creating a variable.
type VariableSpec struct {
	Name       string
	Type       DataType
	Dimensions []string

	// CompressionLevel is the deflate level, 0-9. Storage engines
	// without compression ignore it.
	CompressionLevel int

	// FillValue is nil when the variable has no explicit fill value.
	FillValue interface{}
}

// Group is a namespace of variables and attributes. The root of a
// Dataset is itself a Group with an empty path.
type Group interface {
	// Path is "" for the root group and "/name" for a child group.
	Path() string

	Variables() ([]string, error)
	Variable(name string) (*Variable, error)
	ReadArray(name string) (*sparse.DenseArray, error)
	Attributes() (Attributes, error)

	SetAttributes(Attributes) error
	CreateVariable(VariableSpec) error
	SetVariableAttributes(name string, attrs Attributes) error
	WriteArray(name string, data *sparse.DenseArray) error
}

// Dataset is a root group together with the dataset-wide dimension
// namespace and one level of child groups.
type Dataset interface {
	Group

	Dimensions() ([]Dimension, error)
	CreateDimension(Dimension) error

	Groups() ([]string, error)
	Group(name string) (Group, error)
	CreateGroup(name string) (Group, error)

	// Close flushes pending writes and releases the storage.
	Close() error
}

// GroupPath returns the path of the child group called name.
func GroupPath(name string) string { return "/" + name }

// Shape returns the array shape implied by dims, looking each
// dimension up in all.
func Shape(dims []string, all []Dimension) ([]int, error) {
	shape := make([]int, len(dims))
	for i, d := range dims {
		found := false
		for _, dd := range all {
			if dd.Name == d {
				shape[i] = dd.Len
				found = true
				break
			}
		}
		if !found {
			return nil, ErrNotFound
		}
	}
	return shape, nil
}
