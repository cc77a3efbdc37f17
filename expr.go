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
	"fmt"
	"math"
	"regexp"
	"sync"

	"github.com/Knetic/govaluate"
	"github.com/ctessum/sparse"
	"github.com/golang/groupcache/lru"
	"gonum.org/v1/gonum/floats"
)

// Evaluator applies scalar expressions to arrays. Expressions use the
// arithmetic, comparison and ternary operators of
// github.com/Knetic/govaluate plus the functions in ExprFunctions.
// Each element is bound to the parameter x; the whole-array statistics
// xmin, xmax, xmean, xsum and n are also available.
//
// Compiled expressions are cached, so an Evaluator should be reused for
// all variables of one edit.
type Evaluator struct {
	mu    sync.Mutex
	cache *lru.Cache
}

// NewEvaluator returns an Evaluator that caches up to size compiled
// expressions. A size of 0 means no limit.
func NewEvaluator(size int) *Evaluator {
	return &Evaluator{cache: lru.New(size)}
}

// ExprFunctions are the functions that may be called from expressions.
var ExprFunctions = map[string]govaluate.ExpressionFunction{
	"abs":   unary(math.Abs),
	"sqrt":  unary(math.Sqrt),
	"exp":   unary(math.Exp),
	"log":   unary(math.Log),
	"log10": unary(math.Log10),
	"floor": unary(math.Floor),
	"ceil":  unary(math.Ceil),
	"round": unary(math.Round),
	"pow": func(args ...interface{}) (interface{}, error) {
		v, err := numbers("pow", 2, args)
		if err != nil {
			return nil, err
		}
		return math.Pow(v[0], v[1]), nil
	},
	"min": func(args ...interface{}) (interface{}, error) {
		v, err := numbers("min", -1, args)
		if err != nil {
			return nil, err
		}
		return floats.Min(v), nil
	},
	"max": func(args ...interface{}) (interface{}, error) {
		v, err := numbers("max", -1, args)
		if err != nil {
			return nil, err
		}
		return floats.Max(v), nil
	},
	"clip": func(args ...interface{}) (interface{}, error) {
		v, err := numbers("clip", 3, args)
		if err != nil {
			return nil, err
		}
		return math.Min(math.Max(v[0], v[1]), v[2]), nil
	},
	"where": func(args ...interface{}) (interface{}, error) {
		if len(args) != 3 {
			return nil, fmt.Errorf("where: need 3 arguments, have %d", len(args))
		}
		var cond bool
		switch c := args[0].(type) {
		case bool:
			cond = c
		case float64:
			cond = c != 0
		default:
			return nil, fmt.Errorf("where: invalid condition %v", args[0])
		}
		if cond {
			return args[1], nil
		}
		return args[2], nil
	},
	"isnan": func(args ...interface{}) (interface{}, error) {
		v, err := numbers("isnan", 1, args)
		if err != nil {
			return nil, err
		}
		return math.IsNaN(v[0]), nil
	},
	"nan": func(args ...interface{}) (interface{}, error) {
		if len(args) != 0 {
			return nil, fmt.Errorf("nan: takes no arguments")
		}
		return math.NaN(), nil
	},
}

func unary(f func(float64) float64) govaluate.ExpressionFunction {
	return func(args ...interface{}) (interface{}, error) {
		v, err := numbers("function", 1, args)
		if err != nil {
			return nil, err
		}
		return f(v[0]), nil
	}
}

// numbers checks that args are n numbers, or at least one number when
// n is negative.
func numbers(name string, n int, args []interface{}) ([]float64, error) {
	if (n >= 0 && len(args) != n) || (n < 0 && len(args) == 0) {
		return nil, fmt.Errorf("%s: wrong number of arguments: %d", name, len(args))
	}
	o := make([]float64, len(args))
	for i, a := range args {
		f, ok := a.(float64)
		if !ok {
			return nil, fmt.Errorf("%s: argument %d is not a number: %v", name, i+1, a)
		}
		o[i] = f
	}
	return o, nil
}

func (e *Evaluator) compile(expr string) (*govaluate.EvaluableExpression, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if c, ok := e.cache.Get(expr); ok {
		return c.(*govaluate.EvaluableExpression), nil
	}
	c, err := govaluate.NewEvaluableExpressionWithFunctions(expr, ExprFunctions)
	if err != nil {
		return nil, err
	}
	e.cache.Add(expr, c)
	return c, nil
}

// Apply evaluates expr for every element of a and returns the results
// in a new array of the same shape. It fails if the expression does not
// compile, if it fails for any element, if it returns something other
// than a number, or if it turns a finite element into an infinity or
// (unless the expression calls nan) into NaN, as division by zero does.
func (e *Evaluator) Apply(a *sparse.DenseArray, expr string) (*sparse.DenseArray, error) {
	c, err := e.compile(expr)
	if err != nil {
		return nil, fmt.Errorf("ncedit: compiling expression %q: %w", expr, err)
	}
	o := sparse.ZerosDense(append([]int(nil), a.Shape...)...)
	if len(a.Elements) == 0 {
		return o, nil
	}
	params := map[string]interface{}{
		"xmin":  floats.Min(a.Elements),
		"xmax":  floats.Max(a.Elements),
		"xsum":  floats.Sum(a.Elements),
		"xmean": floats.Sum(a.Elements) / float64(len(a.Elements)),
		"n":     float64(len(a.Elements)),
	}
	allowNaN := callsNaN.MatchString(expr)
	for i, x := range a.Elements {
		params["x"] = x
		r, err := c.Evaluate(params)
		if err != nil {
			return nil, fmt.Errorf("ncedit: evaluating %q at x=%g: %w", expr, x, err)
		}
		v, ok := r.(float64)
		if !ok {
			return nil, fmt.Errorf("ncedit: expression %q returned %v, not a number", expr, r)
		}
		if finite(x) && (math.IsInf(v, 0) || (math.IsNaN(v) && !allowNaN)) {
			return nil, fmt.Errorf("ncedit: expression %q returned %g for x=%g", expr, v, x)
		}
		o.Elements[i] = v
	}
	return o, nil
}

var callsNaN = regexp.MustCompile(`\bnan\s*\(`)

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }
