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
	"math"
	"reflect"
	"testing"

	"github.com/spatialmodel/ncedit/dataset"
	"gonum.org/v1/gonum/floats"
)

func TestPermuteOp(t *testing.T) {
	a := array([]int{2, 3}, 1, 2, 3, 4, 5, 6)
	tests := []struct {
		op    PermuteOp
		shape []int
		in    []float64
		want  []float64
	}{
		{op: RowFlip, shape: []int{2, 3}, in: a.Elements, want: []float64{4, 5, 6, 1, 2, 3}},
		{op: ColumnFlip, shape: []int{2, 3}, in: a.Elements, want: []float64{3, 2, 1, 6, 5, 4}},
		{op: Reverse1D, shape: []int{4}, in: []float64{1, 2, 3, 4}, want: []float64{4, 3, 2, 1}},
		{op: RowFlip, shape: []int{3}, in: []float64{1, 2, 3}, want: []float64{3, 2, 1}},
		{op: ColumnFlip, shape: []int{1, 2, 2}, in: []float64{1, 2, 3, 4}, want: []float64{3, 4, 1, 2}},
	}
	for _, test := range tests {
		t.Run(test.op.String(), func(t *testing.T) {
			in := array(test.shape, test.in...)
			b, err := test.op.Apply(in)
			if err != nil {
				t.Fatal(err)
			}
			if !reflect.DeepEqual(b.Elements, test.want) {
				t.Errorf("have %v, want %v", b.Elements, test.want)
			}
			if !reflect.DeepEqual(b.Shape, test.shape) {
				t.Errorf("shape: have %v, want %v", b.Shape, test.shape)
			}
			c, err := test.op.Apply(b)
			if err != nil {
				t.Fatal(err)
			}
			if !reflect.DeepEqual(c.Elements, test.in) {
				t.Errorf("not an involution: have %v, want %v", c.Elements, test.in)
			}
			if !reflect.DeepEqual(in.Elements, test.in) {
				t.Error("input was changed")
			}
		})
	}
}

func TestPermuteOpRank(t *testing.T) {
	for _, test := range []struct {
		op    PermuteOp
		shape []int
	}{
		{RowFlip, nil},
		{ColumnFlip, []int{3}},
		{Reverse1D, []int{2, 2}},
		{Reverse1D, nil},
	} {
		_, err := test.op.Apply(array(test.shape, 1, 2, 3, 4))
		if !errors.Is(err, ErrRank) {
			t.Errorf("%v %v: have %v", test.op, test.shape, err)
		}
	}
}

func TestMutateFill(t *testing.T) {
	a := array([]int{4}, 1, -9999, 3, -9999)
	m := Mutation{
		Attributes: dataset.Attributes{"units": "K", dataset.FillValueAttr: -1.0},
		SourceFill: float32(-9999),
	}
	r := Mutate(a, m)
	if !reflect.DeepEqual(r.Array.Elements, []float64{1, -1, 3, -1}) {
		t.Errorf("array: %v", r.Array.Elements)
	}
	if !reflect.DeepEqual(r.Attributes, dataset.Attributes{"units": "K"}) {
		t.Errorf("attributes: %v", r.Attributes)
	}
	if r.FillValue != -1.0 {
		t.Errorf("fill: %v", r.FillValue)
	}
	if _, ok := m.Attributes[dataset.FillValueAttr]; !ok {
		t.Error("input attributes were changed")
	}
	if a.Elements[1] != -9999 {
		t.Error("input array was changed")
	}

	// Remapping again is a no-op.
	r2 := Mutate(r.Array, m)
	if !reflect.DeepEqual(r2.Array.Elements, r.Array.Elements) {
		t.Errorf("second remap: %v", r2.Array.Elements)
	}
	m.SourceFill = -1.0
	r3 := Mutate(r.Array, m)
	if !reflect.DeepEqual(r3.Array.Elements, r.Array.Elements) {
		t.Errorf("remap to itself: %v", r3.Array.Elements)
	}
}

func TestMutateFillNaN(t *testing.T) {
	a := array([]int{3}, 1, math.NaN(), 3)
	r := Mutate(a, Mutation{
		Attributes: dataset.Attributes{dataset.FillValueAttr: -9.0},
		SourceFill: math.NaN(),
	})
	if !reflect.DeepEqual(r.Array.Elements, []float64{1, -9, 3}) {
		t.Errorf("array: %v", r.Array.Elements)
	}
	r = Mutate(array([]int{2}, 1, -9), Mutation{
		Attributes: dataset.Attributes{dataset.FillValueAttr: "NaN"},
		SourceFill: -9.0,
	})
	if r.Array.Elements[0] != 1 || !math.IsNaN(r.Array.Elements[1]) {
		t.Errorf("array: %v", r.Array.Elements)
	}
}

func TestMutateFillSkipped(t *testing.T) {
	r := Mutate(array([]int{2}, 1, 2), Mutation{
		Variable:   "v",
		Attributes: dataset.Attributes{dataset.FillValueAttr: 1.0},
	})
	if len(r.Problems) != 1 || r.Problems[0].Kind != FillSkipped {
		t.Fatalf("problems: %v", r.Problems)
	}
	if r.FillValue != 1.0 {
		t.Errorf("fill value should still be used: %v", r.FillValue)
	}
	if !reflect.DeepEqual(r.Array.Elements, []float64{1, 2}) {
		t.Errorf("array: %v", r.Array.Elements)
	}
	r = Mutate(array([]int{2}, 1, 2), Mutation{Attributes: dataset.Attributes{"a": "b"}, SourceFill: 1.0})
	if len(r.Problems) != 0 || r.FillValue != nil || r.Array.Elements[0] != 1 {
		t.Errorf("no output fill: %+v", r)
	}
}

func TestMutateOrder(t *testing.T) {
	// The fill value is remapped before the flip, and the expressions
	// run after it.
	a := array([]int{3}, -1, 2, 3)
	r := Mutate(a, Mutation{
		Attributes: dataset.Attributes{dataset.FillValueAttr: 0.0},
		SourceFill: -1.0,
		Permute:    []PermuteOp{Reverse1D, ColumnFlip},
		Funcx:      []string{"x + 1", "x * xmax"},
	})
	if !reflect.DeepEqual(r.Array.Elements, []float64{16, 12, 4}) {
		t.Errorf("array: %v", r.Array.Elements)
	}
	if len(r.Problems) != 1 || r.Problems[0].Kind != PermuteSkipped {
		t.Errorf("problems: %v", r.Problems)
	}
}

func TestMutateFaultyExpression(t *testing.T) {
	r := Mutate(array([]int{3}, 1, 2, 3), Mutation{Variable: "v", Funcx: []string{"x/0", "x*2"}})
	if !reflect.DeepEqual(r.Array.Elements, []float64{2, 4, 6}) {
		t.Errorf("have %v, want [2 4 6]", r.Array.Elements)
	}
	if len(r.Problems) != 1 || r.Problems[0].Kind != ExpressionSkipped || r.Problems[0].Variable != "v" {
		t.Errorf("problems: %v", r.Problems)
	}
}

func TestEvaluator(t *testing.T) {
	e := NewEvaluator(2)
	a := array([]int{2, 2}, 1, 4, -9, 16)
	tests := []struct {
		expr string
		want []float64
		err  bool
	}{
		{expr: "x * 2 + 1", want: []float64{3, 9, -17, 33}},
		{expr: "sqrt(abs(x))", want: []float64{1, 2, 3, 4}},
		{expr: "clip(x, 0, 10)", want: []float64{1, 4, 0, 10}},
		{expr: "where(x < 0, 0, x)", want: []float64{1, 4, 0, 16}},
		{expr: "x > 0 ? x : -x", want: []float64{1, 4, 9, 16}},
		{expr: "max(x, 2, 3)", want: []float64{3, 4, 3, 16}},
		{expr: "min(x, 2)", want: []float64{1, 2, -9, 2}},
		{expr: "pow(x, 2)", want: []float64{1, 16, 81, 256}},
		{expr: "x - xmean", want: []float64{-2, 1, -12, 13}},
		{expr: "xsum + n + xmin", want: []float64{7, 7, 7, 7}},
		{expr: "floor(x / 3) + ceil(0.5) + round(0.4)", want: []float64{1, 2, -2, 6}},
		{expr: "x ** 2", want: []float64{1, 16, 81, 256}},
		{expr: "sqrt(x)", err: true},
		{expr: "log10(x)", err: true},
		{expr: "x > 0", err: true},
		{expr: "y + 1", err: true},
		{expr: "system('ls')", err: true},
		{expr: "x +", err: true},
		{expr: "pow(x)", err: true},
	}
	for _, test := range tests {
		t.Run(test.expr, func(t *testing.T) {
			b, err := e.Apply(a, test.expr)
			if test.err {
				if err == nil {
					t.Errorf("should fail, have %v", b.Elements)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if !floats.EqualApprox(b.Elements, test.want, 1e-12) {
				t.Errorf("have %v, want %v", b.Elements, test.want)
			}
		})
	}
}

func TestEvaluatorNaN(t *testing.T) {
	e := NewEvaluator(0)
	a := array([]int{3}, 1, math.NaN(), 3)
	b, err := e.Apply(a, "x + 1")
	if err != nil {
		t.Fatal(err)
	}
	if b.Elements[0] != 2 || !math.IsNaN(b.Elements[1]) {
		t.Errorf("have %v", b.Elements)
	}
	b, err = e.Apply(a, "where(x > 2, nan(), x)")
	if err != nil {
		t.Fatal(err)
	}
	if !math.IsNaN(b.Elements[2]) || b.Elements[0] != 1 {
		t.Errorf("have %v", b.Elements)
	}
	b, err = e.Apply(a, "isnan(x) ? 0 : x")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(b.Elements, []float64{1, 0, 3}) {
		t.Errorf("have %v", b.Elements)
	}
}
