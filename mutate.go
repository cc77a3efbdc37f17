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
	"errors"
	"fmt"
	"math"

	"github.com/ctessum/sparse"
	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/ncedit/dataset"
)

// ErrRank is returned when a geometric modifier is applied to an array
// with an unsuitable number of dimensions.
var ErrRank = errors.New("ncedit: array rank does not suit the modifier")

// PermuteOp is a geometric modifier.
type PermuteOp int

const (
	// RowFlip reverses the first axis (variables2d_yflip).
	RowFlip PermuteOp = iota
	// ColumnFlip reverses the second axis (variables2d_xflip).
	ColumnFlip
	// Reverse1D reverses a one-dimensional array (variables1d_flip).
	Reverse1D
)

func (op PermuteOp) String() string {
	switch op {
	case RowFlip:
		return "variables2d_yflip"
	case ColumnFlip:
		return "variables2d_xflip"
	case Reverse1D:
		return "variables1d_flip"
	default:
		return fmt.Sprintf("PermuteOp(%d)", int(op))
	}
}

// Apply returns a flipped copy of a.
func (op PermuteOp) Apply(a *sparse.DenseArray) (*sparse.DenseArray, error) {
	rank := len(a.Shape)
	switch op {
	case RowFlip:
		if rank < 1 {
			return nil, fmt.Errorf("%v: %w: rank %d", op, ErrRank, rank)
		}
		return reverseAxis(a, 0), nil
	case ColumnFlip:
		if rank < 2 {
			return nil, fmt.Errorf("%v: %w: rank %d", op, ErrRank, rank)
		}
		return reverseAxis(a, 1), nil
	case Reverse1D:
		if rank != 1 {
			return nil, fmt.Errorf("%v: %w: rank %d", op, ErrRank, rank)
		}
		return reverseAxis(a, 0), nil
	default:
		return nil, fmt.Errorf("ncedit: unknown modifier %v", op)
	}
}

// reverseAxis returns a copy of a with the order of the elements along
// axis reversed.
func reverseAxis(a *sparse.DenseArray, axis int) *sparse.DenseArray {
	o := sparse.ZerosDense(append([]int(nil), a.Shape...)...)
	n := a.Shape[axis]
	stride := 1
	for _, s := range a.Shape[axis+1:] {
		stride *= s
	}
	block := stride * n
	for i, v := range a.Elements {
		outer := i / block
		k := (i / stride) % n
		inner := i % stride
		o.Elements[outer*block+(n-1-k)*stride+inner] = v
	}
	return o
}

// ProblemKind classifies recoverable problems.
type ProblemKind int

// Kinds of recoverable problems.
const (
	// RenameFallback: a name had no rename entry and was kept.
	RenameFallback ProblemKind = iota
	// FillSkipped: the fill value could not be remapped.
	FillSkipped
	// PermuteSkipped: a geometric modifier did not suit the array.
	PermuteSkipped
	// ExpressionSkipped: an expression failed and was not applied.
	ExpressionSkipped
	// VariableSkipped: a variable could not be written.
	VariableSkipped
	// GroupSkipped: a group could not be created.
	GroupSkipped
	// TimeSkipped: the time coordinate was not re-based.
	TimeSkipped
	// AttributeSkipped: an attribute could not be written.
	AttributeSkipped
)

var problemNames = [...]string{"rename fallback", "fill value skipped", "modifier skipped",
	"expression skipped", "variable skipped", "group skipped", "time not rebased", "attribute skipped"}

func (k ProblemKind) String() string {
	if k < 0 || int(k) >= len(problemNames) {
		return fmt.Sprintf("ProblemKind(%d)", int(k))
	}
	return problemNames[k]
}

// Level is the log level problems of this kind are reported at.
func (k ProblemKind) Level() logrus.Level {
	switch k {
	case RenameFallback, FillSkipped, TimeSkipped:
		return logrus.InfoLevel
	default:
		return logrus.WarnLevel
	}
}

// Problem is a recoverable condition met while editing. The edit
// continues after a Problem.
type Problem struct {
	Kind ProblemKind

	// Variable is the path of the variable (or group, or dimension)
	// concerned, e.g. "temp" or "/grp/temp".
	Variable string

	Err error
}

func (p *Problem) Error() string {
	return fmt.Sprintf("%s: %s: %v", p.Kind, p.Variable, p.Err)
}

func (p *Problem) Unwrap() error { return p.Err }

// Mutation describes the changes to make to one variable's array.
type Mutation struct {
	// Variable is used to label problems.
	Variable string

	// Attributes are the attributes to write with the variable. If they
	// include _FillValue it becomes the output fill value.
	Attributes dataset.Attributes

	// SourceFill is the _FillValue of the input variable, or nil.
	SourceFill interface{}

	Permute []PermuteOp
	Funcx   []string
}

// Mutated is the result of Mutate.
type Mutated struct {
	Array *sparse.DenseArray

	// Attributes are the input attributes without _FillValue.
	Attributes dataset.Attributes

	// FillValue is the output fill value, or nil if there is none.
	FillValue interface{}

	Problems []*Problem
}

// Mutate applies a mutation with a new Evaluator.
func Mutate(a *sparse.DenseArray, m Mutation) *Mutated {
	return NewEvaluator(0).Mutate(a, m)
}

// Mutate changes a copy of a in three steps, in this order:
// elements equal to the source fill value are set to the output fill
// value; the geometric modifiers are applied; the expressions are
// applied. A step that fails is skipped and reported as a Problem;
// later steps still run on the array as it was. a and m are not
// changed.
func (e *Evaluator) Mutate(a *sparse.DenseArray, m Mutation) *Mutated {
	r := &Mutated{Array: a.Copy(), Attributes: m.Attributes.Clone()}
	r.Array.Shape = append([]int(nil), a.Shape...)

	if dst, ok := r.Attributes[dataset.FillValueAttr]; ok {
		delete(r.Attributes, dataset.FillValueAttr)
		r.FillValue = dst
		if err := remapFill(r.Array, m.SourceFill, dst); err != nil {
			r.Problems = append(r.Problems, &Problem{Kind: FillSkipped, Variable: m.Variable, Err: err})
		}
	}

	for _, op := range m.Permute {
		b, err := op.Apply(r.Array)
		if err != nil {
			r.Problems = append(r.Problems, &Problem{Kind: PermuteSkipped, Variable: m.Variable, Err: err})
			continue
		}
		r.Array = b
	}

	for _, expr := range m.Funcx {
		b, err := e.Apply(r.Array, expr)
		if err != nil {
			r.Problems = append(r.Problems, &Problem{Kind: ExpressionSkipped, Variable: m.Variable, Err: err})
			continue
		}
		r.Array = b
	}
	return r
}

// errNoSourceFill is reported when the output has a fill value but the
// input does not.
var errNoSourceFill = errors.New("input variable has no _FillValue")

// remapFill sets the elements of a that equal src to dst. NaN matches
// NaN.
func remapFill(a *sparse.DenseArray, src, dst interface{}) error {
	if src == nil {
		return errNoSourceFill
	}
	s, err := dataset.Float64(src)
	if err != nil {
		return fmt.Errorf("input _FillValue: %w", err)
	}
	d, err := dataset.Float64(dst)
	if err != nil {
		return fmt.Errorf("output _FillValue: %w", err)
	}
	if s == d || (math.IsNaN(s) && math.IsNaN(d)) {
		return nil
	}
	sNaN := math.IsNaN(s)
	for i, v := range a.Elements {
		if v == s || (sNaN && math.IsNaN(v)) {
			a.Elements[i] = d
		}
	}
	return nil
}
