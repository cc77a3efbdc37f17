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

package nceditutil

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/ncedit"
	"github.com/spatialmodel/ncedit/bandtable"
)

// Template writes a template for each of the inputs named by in and
// returns the paths written.
func Template(ctx context.Context, s *Stager, in, out, suffix string) ([]string, error) {
	inputs, err := Inputs(ctx, in)
	if err != nil {
		return nil, err
	}
	var written []string
	for _, input := range inputs {
		dest, err := TemplatePath(input, out, suffix, len(inputs) > 1)
		if err != nil {
			return written, err
		}
		if err := writeTemplate(ctx, s, input, dest); err != nil {
			return written, err
		}
		written = append(written, dest)
	}
	return written, nil
}

func writeTemplate(ctx context.Context, s *Stager, input, dest string) error {
	local, err := s.Fetch(ctx, input)
	if err != nil {
		return err
	}
	ds, err := OpenDataset(local)
	if err != nil {
		return err
	}
	h, err := ncedit.Extract(ds)
	ds.Close()
	if err != nil {
		return fmt.Errorf("ncedit: %s: %v", input, err)
	}
	staged, err := s.Local(dest)
	if err != nil {
		return err
	}
	if err := ncedit.Synthesize(h).Save(staged); err != nil {
		return err
	}
	Log.WithFields(logrus.Fields{"input": input, "template": dest}).Info("wrote template")
	return s.Upload(ctx, staged, dest)
}

// EditOptions are the settings of an edit run that do not come from
// the template.
type EditOptions struct {
	// OutputSuffix names the outputs written into a directory.
	OutputSuffix string

	// CompressionLevel overrides the template when it is not negative.
	CompressionLevel int

	// BoundsOffset is used when the template has no bounds_offset.
	BoundsOffset float64

	// MetricsFile receives the edit counters when it is not empty.
	MetricsFile string
}

// EditReport is the outcome of editing one input.
type EditReport struct {
	Input, Output string
	*ncedit.Report
}

// Edit applies the template at tmpl to each of the inputs named by in.
// Every input gets its own Editor. Problems with individual variables
// are logged and reported; bad paths and unreadable files end the run.
func Edit(ctx context.Context, s *Stager, in, out, tmpl string, opts EditOptions) ([]*EditReport, error) {
	inputs, err := Inputs(ctx, in)
	if err != nil {
		return nil, err
	}
	local, err := s.Fetch(ctx, tmpl)
	if err != nil {
		return nil, err
	}
	t, err := ncedit.LoadTemplate(local)
	if err != nil {
		return nil, err
	}
	if opts.OutputSuffix == "" {
		opts.OutputSuffix = "_edit.nc"
	}

	reg := prometheus.NewRegistry()
	metrics, err := ncedit.NewMetrics(reg)
	if err != nil {
		return nil, err
	}

	var reports []*EditReport
	for _, input := range inputs {
		dest, err := OutputPath(input, out, opts.OutputSuffix, len(inputs) > 1)
		if err != nil {
			return reports, err
		}
		ed, err := ncedit.NewEditor(t,
			ncedit.WithLogger(Log.WithField("input", input)),
			ncedit.WithMetrics(metrics),
			ncedit.WithCompressionLevel(opts.CompressionLevel),
			ncedit.WithBoundsOffset(opts.BoundsOffset),
		)
		if err != nil {
			return reports, err
		}
		r, err := editFile(ctx, s, ed, input, dest)
		if err != nil {
			return reports, err
		}
		reports = append(reports, &EditReport{Input: input, Output: dest, Report: r})
	}
	if opts.MetricsFile != "" {
		if err := prometheus.WriteToTextfile(opts.MetricsFile, reg); err != nil {
			return reports, fmt.Errorf("ncedit: writing metrics: %v", err)
		}
	}
	return reports, nil
}

func editFile(ctx context.Context, s *Stager, ed *ncedit.Editor, input, dest string) (*ncedit.Report, error) {
	local, err := s.Fetch(ctx, input)
	if err != nil {
		return nil, err
	}
	in, err := OpenDataset(local)
	if err != nil {
		return nil, err
	}
	defer in.Close()
	if err := checkGroups(in, input); err != nil {
		return nil, err
	}
	staged, err := s.Local(dest)
	if err != nil {
		return nil, err
	}
	if filepath.Clean(staged) == filepath.Clean(local) {
		return nil, fmt.Errorf("ncedit: output %s would overwrite the input", dest)
	}
	out := CreateDataset(staged)
	r, err := ed.Edit(ctx, in, out)
	if err != nil {
		out.Close()
		return nil, fmt.Errorf("ncedit: editing %s: %w", input, err)
	}
	if err := out.Close(); err != nil {
		return nil, err
	}
	if err := s.Upload(ctx, staged, dest); err != nil {
		return nil, err
	}
	return r, nil
}

// ExtractBands writes the band table of the GeoTIFF files in dir to
// table and returns the number of bands.
func ExtractBands(o bandtable.Opener, dir, table string) (int, error) {
	var files []string
	for _, pattern := range []string{"*.tif", "*.tiff"} {
		m, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return 0, fmt.Errorf("ncedit: %v", err)
		}
		files = append(files, m...)
	}
	if len(files) == 0 {
		return 0, fmt.Errorf("ncedit: no GeoTIFF files in %s", dir)
	}
	sort.Strings(files)
	rows, err := bandtable.ExtractFiles(o, files)
	if err != nil {
		return 0, err
	}
	if err := bandtable.WriteFile(table, rows); err != nil {
		return 0, err
	}
	return len(rows), nil
}

// ApplyBands writes an edited copy of every raster named in table.
func ApplyBands(o bandtable.Opener, table, suffix string, log logrus.FieldLogger) ([]*bandtable.ApplyReport, error) {
	rows, err := bandtable.ReadFile(table)
	if err != nil {
		return nil, err
	}
	var reports []*bandtable.ApplyReport
	for _, f := range bandtable.Files(rows) {
		r, err := bandtable.Apply(o, f, rows, suffix, log)
		if err != nil {
			return reports, err
		}
		reports = append(reports, r)
	}
	return reports, nil
}
