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
	"context"
	"errors"
	"fmt"

	"github.com/ctessum/sparse"
	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/ncedit/dataset"
	"github.com/spatialmodel/ncedit/internal/hash"
)

// State is a stage of an edit pass.
type State int

// The stages of an edit pass, in order.
const (
	Init State = iota
	WritingGlobals
	WritingDimensions
	WritingRootVariables
	WritingGroups
	TimeRebase
	Done
)

var stateNames = [...]string{"init", "globals", "dimensions", "variables", "groups", "time", "done"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

// Editor applies a Template to a dataset. An Editor runs one edit pass
// at a time; use one Editor per input file.
type Editor struct {
	t            *Template
	log          logrus.FieldLogger
	eval         *Evaluator
	metrics      *Metrics
	compression  int
	boundsOffset float64
	plan         string
	state        State
}

// EditorOption configures an Editor.
type EditorOption func(*Editor) error

// WithLogger sets the logger. The default is logrus.StandardLogger().
func WithLogger(l logrus.FieldLogger) EditorOption {
	return func(e *Editor) error {
		e.log = l
		return nil
	}
}

// WithMetrics records edit outcomes in m.
func WithMetrics(m *Metrics) EditorOption {
	return func(e *Editor) error {
		e.metrics = m
		return nil
	}
}

// WithCompressionLevel overrides the compression level of the plan. A
// negative level keeps the level of the plan.
func WithCompressionLevel(level int) EditorOption {
	return func(e *Editor) error {
		if level < 0 {
			return nil
		}
		if level > 9 {
			return fmt.Errorf("%w: have %d", ErrCompressionLevel, level)
		}
		e.compression = level
		return nil
	}
}

// WithBoundsOffset sets the half-width in days of "days" time bounds for
// plans that do not set one.
func WithBoundsOffset(days float64) EditorOption {
	return func(e *Editor) error {
		e.boundsOffset = days
		return nil
	}
}

// NewEditor validates t and returns an Editor for it.
func NewEditor(t *Template, opts ...EditorOption) (*Editor, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	e := &Editor{
		t:            t,
		log:          logrus.StandardLogger(),
		eval:         NewEvaluator(256),
		compression:  *t.Updates.CompressionLevel,
		boundsOffset: DefaultBoundsOffset,
		plan:         hash.Short(t),
	}
	for _, o := range opts {
		if err := o(e); err != nil {
			return nil, err
		}
	}
	if b := t.Updates.Time.BoundsOffset; b != nil {
		e.boundsOffset = *b
	}
	return e, nil
}

// State returns the stage the Editor is in.
func (e *Editor) State() State { return e.state }

// Report describes the outcome of an edit pass. Paths are "name" for
// root variables and "/group/name" for group variables.
type Report struct {
	// Plan is a fingerprint of the template.
	Plan string

	// Written lists the output paths of the variables written.
	Written []string

	// Dropped lists the input paths of the variables dropped.
	Dropped []string

	// Skipped lists the input paths of the variables that could not be
	// written.
	Skipped []string

	// TimeRebased is true if the time coordinate was re-based.
	TimeRebased bool

	Problems []*Problem
}

// edit holds the state of one edit pass.
type edit struct {
	*Editor
	ctx    context.Context
	in     dataset.Dataset
	out    dataset.Dataset
	r      *Report
	dims   map[string]string
	vars   map[string]string // written root variables, input name to output name
	inDims []dataset.Dimension
}

// Edit writes the edited contents of in to out. Only the structure of
// the plan is fatal: problems with individual attributes, dimensions,
// variables and groups are reported in the Report and the edit goes on.
// Cancelling ctx stops the edit between variables. Edit does not close
// in or out.
func (e *Editor) Edit(ctx context.Context, in, out dataset.Dataset) (*Report, error) {
	if in == nil || out == nil {
		return nil, errors.New("ncedit: Edit needs an input and an output dataset")
	}
	e.state = Init
	ed := &edit{
		Editor: e,
		ctx:    ctx,
		in:     in,
		out:    out,
		r:      &Report{Plan: e.plan},
		dims:   make(map[string]string),
		vars:   make(map[string]string),
	}
	for _, step := range []struct {
		state State
		run   func() error
	}{
		{WritingGlobals, ed.globals},
		{WritingDimensions, ed.dimensions},
		{WritingRootVariables, ed.rootVariables},
		{WritingGroups, ed.groups},
		{TimeRebase, ed.rebaseTime},
	} {
		e.state = step.state
		if err := step.run(); err != nil {
			return ed.r, err
		}
	}
	e.state = Done
	e.metrics.edit()
	e.log.WithFields(logrus.Fields{
		"plan":    e.plan,
		"written": len(ed.r.Written),
		"dropped": len(ed.r.Dropped),
		"skipped": len(ed.r.Skipped),
	}).Info("edit finished")
	return ed.r, nil
}

func (ed *edit) problem(kind ProblemKind, path string, err error) {
	p := &Problem{Kind: kind, Variable: path, Err: err}
	ed.r.Problems = append(ed.r.Problems, p)
	ed.metrics.problem(kind)
	entry := ed.log.WithFields(logrus.Fields{
		"plan":     ed.plan,
		"stage":    ed.state.String(),
		"variable": path,
	})
	if kind.Level() == logrus.InfoLevel {
		entry.Info(p.Error())
	} else {
		entry.Warn(p.Error())
	}
}

func (ed *edit) globals() error {
	attrs := ed.t.Header.Attributes
	if len(attrs) == 0 {
		var err error
		if attrs, err = ed.in.Attributes(); err != nil {
			return fmt.Errorf("ncedit: reading global attributes: %w", err)
		}
	}
	if err := ed.out.SetAttributes(attrs.Clone()); err != nil {
		ed.problem(AttributeSkipped, "", fmt.Errorf("writing global attributes: %w", err))
	}
	return nil
}

func (ed *edit) dimensions() error {
	dims, err := ed.in.Dimensions()
	if err != nil {
		return fmt.Errorf("ncedit: reading dimensions: %w", err)
	}
	ed.inDims = dims
	for _, d := range dims {
		name, ok := ed.t.Updates.renameDimension(d.Name)
		if !ok {
			ed.problem(RenameFallback, d.Name, errors.New("no dimension rename entry; keeping the name"))
		}
		ed.dims[d.Name] = name
		nd := dataset.Dimension{Name: name, Len: d.Len, Unlimited: d.Unlimited}
		if d.Unlimited {
			nd.Len = 0
		}
		if err := ed.out.CreateDimension(nd); err != nil {
			ed.problem(VariableSkipped, d.Name, fmt.Errorf("creating dimension %s: %w", name, err))
		}
	}
	return nil
}

func (ed *edit) rootVariables() error {
	return ed.variables(ed.in, ed.out)
}

func (ed *edit) groups() error {
	names, err := ed.in.Groups()
	if err != nil {
		if errors.Is(err, dataset.ErrNestingDepth) {
			ed.problem(GroupSkipped, "", err)
		} else {
			return fmt.Errorf("ncedit: listing groups: %w", err)
		}
	}
	for _, name := range names {
		if err := ed.ctx.Err(); err != nil {
			return err
		}
		in, err := ed.in.Group(name)
		if err != nil {
			return fmt.Errorf("ncedit: opening group %s: %w", name, err)
		}
		newName, ok := ed.t.Updates.renameGroup(name)
		if !ok {
			ed.problem(RenameFallback, dataset.GroupPath(name), errors.New("no group rename entry; keeping the name"))
		}
		out, err := ed.out.CreateGroup(newName)
		if err != nil {
			ed.problem(GroupSkipped, dataset.GroupPath(name), fmt.Errorf("creating group %s: %w", newName, err))
			vars, _ := in.Variables()
			for _, v := range vars {
				ed.r.Skipped = append(ed.r.Skipped, dataset.GroupPath(name)+"/"+v)
				ed.metrics.variable("skipped")
			}
			continue
		}
		attrs := dataset.Attributes(nil)
		if g, ok := ed.t.Header.Groups[name]; ok && len(g.Attributes) > 0 {
			attrs = g.Attributes.Clone()
		} else if attrs, err = in.Attributes(); err != nil {
			ed.problem(AttributeSkipped, dataset.GroupPath(name), err)
		}
		if len(attrs) > 0 {
			if err := out.SetAttributes(attrs); err != nil {
				ed.problem(AttributeSkipped, dataset.GroupPath(name), fmt.Errorf("writing group attributes: %w", err))
			}
		}
		if err := ed.variables(in, out); err != nil {
			return err
		}
	}
	return nil
}

// variables copies the variables of the group in to the group out.
func (ed *edit) variables(in, out dataset.Group) error {
	names, err := in.Variables()
	if err != nil {
		return fmt.Errorf("ncedit: listing variables in %q: %w", in.Path(), err)
	}
	for _, name := range names {
		if err := ed.ctx.Err(); err != nil {
			return err
		}
		path := prefix(in.Path()) + name
		if ed.t.Updates.dropped(in.Path(), name) {
			ed.r.Dropped = append(ed.r.Dropped, path)
			ed.metrics.variable("dropped")
			continue
		}
		outName, err := ed.variable(in, out, name)
		if err != nil {
			ed.problem(VariableSkipped, path, err)
			ed.r.Skipped = append(ed.r.Skipped, path)
			ed.metrics.variable("skipped")
			continue
		}
		if in.Path() == "" {
			ed.vars[name] = outName
		}
		ed.r.Written = append(ed.r.Written, prefix(out.Path())+outName)
		ed.metrics.variable("written")
	}
	return nil
}

// variable copies one variable and returns its output name.
func (ed *edit) variable(in, out dataset.Group, name string) (string, error) {
	u := ed.t.Updates
	path := prefix(in.Path()) + name
	src, err := in.Variable(name)
	if err != nil {
		return "", err
	}
	outName, ok := u.renameVariable(name)
	if !ok {
		ed.problem(RenameFallback, path, errors.New("no variable rename entry; keeping the name"))
	}
	dims := make([]string, len(src.Dimensions))
	for i, d := range src.Dimensions {
		if dims[i], ok = ed.dims[d]; !ok {
			return "", fmt.Errorf("unknown dimension %s: %w", d, dataset.ErrNotFound)
		}
	}

	attrs := dataset.NormalizeAll(src.Attributes)
	if s, ok := ed.t.Header.variable(in.Path(), name); ok {
		attrs = s.Attributes.Clone()
	}

	data, err := in.ReadArray(name)
	if err != nil {
		return "", fmt.Errorf("reading: %w", err)
	}
	m := ed.eval.Mutate(data, Mutation{
		Variable:   path,
		Attributes: attrs,
		SourceFill: src.Attributes[dataset.FillValueAttr],
		Permute:    u.permutations(in.Path(), name),
		Funcx:      u.expressions(in.Path(), name),
	})
	for _, p := range m.Problems {
		ed.problem(p.Kind, p.Variable, p.Err)
	}

	var fill interface{}
	if m.FillValue != nil {
		if fill, err = fillValue(src.Type, m.FillValue); err != nil {
			ed.problem(FillSkipped, path, err)
			fill = nil
		}
	}
	err = out.CreateVariable(dataset.VariableSpec{
		Name:             outName,
		Type:             src.Type,
		Dimensions:       dims,
		CompressionLevel: ed.compression,
		FillValue:        fill,
	})
	if err != nil {
		return "", fmt.Errorf("creating %s: %w", outName, err)
	}
	if len(m.Attributes) > 0 {
		if err := out.SetVariableAttributes(outName, m.Attributes); err != nil {
			ed.problem(AttributeSkipped, path, err)
		}
	}
	if err := out.WriteArray(outName, m.Array); err != nil {
		return "", fmt.Errorf("writing %s: %w", outName, err)
	}
	return outName, nil
}

// fillValue converts a template fill value into the data type of a
// variable.
func fillValue(t dataset.DataType, v interface{}) (interface{}, error) {
	f, err := dataset.Float64(v)
	if err != nil {
		return nil, fmt.Errorf("_FillValue %v: %w", v, err)
	}
	s, err := t.Scalar(f)
	if err != nil {
		return nil, fmt.Errorf("_FillValue %v: %w", v, err)
	}
	return s, nil
}

func (ed *edit) rebaseTime() error {
	tp := ed.t.Updates.Time
	skip := func(err error) error {
		ed.problem(TimeSkipped, TimeVariable, err)
		return nil
	}
	if tp.InUnits == nil || tp.OutUnits == nil || *tp.InUnits == "" || *tp.OutUnits == "" {
		ed.log.WithFields(logrus.Fields{"plan": ed.plan, "stage": ed.state.String()}).
			Info("no time conversion requested")
		return nil
	}
	outTime, ok := ed.vars[TimeVariable]
	if !ok {
		return skip(errors.New("the input has no root time variable, or it was not written"))
	}
	mode, err := ParseBoundsMode(tp.SetTimeBnds)
	if err != nil {
		ed.problem(TimeSkipped, TimeBoundsVariable, err)
		mode = NoBounds
	}

	a, err := ed.out.ReadArray(outTime)
	if err != nil {
		return skip(fmt.Errorf("reading written time: %w", err))
	}
	rb, err := RebaseTime(a.Elements, *tp.InUnits, *tp.OutUnits, mode, ed.boundsOffset)
	if err != nil {
		return skip(err)
	}
	if rb == nil {
		return skip(fmt.Errorf("time units %q or %q are not CF time units", *tp.InUnits, *tp.OutUnits))
	}
	na := sparse.ZerosDense(append([]int(nil), a.Shape...)...)
	copy(na.Elements, rb.Values)
	if err := ed.out.WriteArray(outTime, na); err != nil {
		return skip(fmt.Errorf("writing time: %w", err))
	}
	if err := ed.out.SetVariableAttributes(outTime, dataset.Attributes{"units": *tp.OutUnits}); err != nil {
		return skip(fmt.Errorf("setting time units: %w", err))
	}
	ed.r.TimeRebased = true
	if rb.Bounds == nil {
		return nil
	}
	if err := ed.writeBounds(outTime, rb.Bounds); err != nil {
		ed.problem(TimeSkipped, TimeBoundsVariable, err)
	}
	return nil
}

// writeBounds writes the time bounds, creating the bounds dimension and
// variable when they do not exist.
func (ed *edit) writeBounds(outTime string, bounds [][2]float64) error {
	tv, err := ed.out.Variable(outTime)
	if err != nil {
		return err
	}
	if len(tv.Dimensions) != 1 {
		return fmt.Errorf("time has %d dimensions; bounds need 1", len(tv.Dimensions))
	}
	name, ok := ed.vars[TimeBoundsVariable]
	if !ok {
		name = TimeBoundsVariable
		if err := ed.boundsDimension(); err != nil {
			return err
		}
		err := ed.out.CreateVariable(dataset.VariableSpec{
			Name:             name,
			Type:             dataset.Double,
			Dimensions:       []string{tv.Dimensions[0], BoundsDimension},
			CompressionLevel: ed.compression,
		})
		if err != nil {
			return fmt.Errorf("creating %s: %w", name, err)
		}
	}
	b := sparse.ZerosDense(len(bounds), 2)
	for i, lu := range bounds {
		b.Elements[2*i] = lu[0]
		b.Elements[2*i+1] = lu[1]
	}
	if err := ed.out.WriteArray(name, b); err != nil {
		return fmt.Errorf("writing %s: %w", name, err)
	}
	return ed.out.SetVariableAttributes(outTime, dataset.Attributes{"bounds": name})
}

func (ed *edit) boundsDimension() error {
	dims, err := ed.out.Dimensions()
	if err != nil {
		return err
	}
	for _, d := range dims {
		if d.Name == BoundsDimension {
			if d.Len != 2 || d.Unlimited {
				return fmt.Errorf("dimension %s exists with length %d, not 2", d.Name, d.Len)
			}
			return nil
		}
	}
	return ed.out.CreateDimension(dataset.Dimension{Name: BoundsDimension, Len: 2})
}
