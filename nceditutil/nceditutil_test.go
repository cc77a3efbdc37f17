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
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/ctessum/sparse"
	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/ncedit"
	"github.com/spatialmodel/ncedit/bandtable"
	"github.com/spatialmodel/ncedit/dataset"
	"github.com/spatialmodel/ncedit/dataset/cdfstore"
)

func init() {
	Log.Out = ioutil.Discard
}

// writeInput writes a small classic netCDF file to path.
func writeInput(t *testing.T, path string) {
	t.Helper()
	w := cdfstore.Create(path)
	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatal(err)
		}
	}
	must(w.SetAttributes(dataset.Attributes{"title": "input"}))
	must(w.CreateDimension(dataset.Dimension{Name: "time", Unlimited: true}))
	must(w.CreateDimension(dataset.Dimension{Name: "y", Len: 2}))
	must(w.CreateVariable(dataset.VariableSpec{Name: "time", Type: dataset.Double, Dimensions: []string{"time"}}))
	must(w.SetVariableAttributes("time", dataset.Attributes{"units": "days since 2000-01-01 00:00:00"}))
	must(w.CreateVariable(dataset.VariableSpec{Name: "temp", Type: dataset.Float,
		Dimensions: []string{"time", "y"}, FillValue: float32(-9999)}))
	must(w.SetVariableAttributes("temp", dataset.Attributes{"units": "K"}))
	must(w.CreateVariable(dataset.VariableSpec{Name: "junk", Type: dataset.Short, Dimensions: []string{"y"}}))

	tm := sparse.ZerosDense(2)
	copy(tm.Elements, []float64{0, 1})
	temp := sparse.ZerosDense(2, 2)
	copy(temp.Elements, []float64{280, -9999, 282, 283})
	must(w.WriteArray("time", tm))
	must(w.WriteArray("temp", temp))
	must(w.WriteArray("junk", sparse.ZerosDense(2)))
	must(w.Close())
}

func tempDir(t *testing.T) string {
	dir, err := ioutil.TempDir("", "nceditutil")
	if err != nil {
		t.Fatal(err)
	}
	return dir
}

func testStager(t *testing.T) *Stager {
	s, err := NewStager("", Log)
	if err != nil {
		t.Fatal(err)
	}
	s.Retries = 1
	return s
}

// editedTemplate writes a template for in that drops junk and renames
// temp to temperature, and returns its path.
func editedTemplate(t *testing.T, s *Stager, in, dir string) string {
	t.Helper()
	paths, err := Template(context.Background(), s, in, dir, ".json")
	if err != nil {
		t.Fatal(err)
	}
	tmpl, err := ncedit.LoadTemplate(paths[0])
	if err != nil {
		t.Fatal(err)
	}
	tmpl.Updates.Drop = []string{"junk"}
	tmpl.Updates.Rename.Variables["temp"] = "temperature"
	p := filepath.Join(dir, "edited.json")
	if err := tmpl.Save(p); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestInputs(t *testing.T) {
	dir := tempDir(t)
	defer os.RemoveAll(dir)
	for _, f := range []string{"b.nc", "a.nc", "c.txt"} {
		if err := ioutil.WriteFile(filepath.Join(dir, f), nil, 0644); err != nil {
			t.Fatal(err)
		}
	}
	ctx := context.Background()
	want := []string{filepath.Join(dir, "a.nc"), filepath.Join(dir, "b.nc")}

	t.Run("dir", func(t *testing.T) {
		have, err := Inputs(ctx, dir)
		if err != nil {
			t.Fatal(err)
		}
		if !reflect.DeepEqual(have, want) {
			t.Errorf("have %v, want %v", have, want)
		}
	})
	t.Run("glob", func(t *testing.T) {
		have, err := Inputs(ctx, filepath.Join(dir, "*.nc"))
		if err != nil {
			t.Fatal(err)
		}
		if !reflect.DeepEqual(have, want) {
			t.Errorf("have %v, want %v", have, want)
		}
	})
	t.Run("file", func(t *testing.T) {
		have, err := Inputs(ctx, want[0])
		if err != nil || !reflect.DeepEqual(have, want[:1]) {
			t.Errorf("have %v, %v", have, err)
		}
	})
	t.Run("missing", func(t *testing.T) {
		if _, err := Inputs(ctx, filepath.Join(dir, "none.nc")); err == nil {
			t.Error("a missing input should fail")
		}
		if _, err := Inputs(ctx, filepath.Join(dir, "*.cdf")); err == nil {
			t.Error("a pattern without matches should fail")
		}
	})
}

func TestPaths(t *testing.T) {
	dir := tempDir(t)
	defer os.RemoveAll(dir)
	in := filepath.Join("data", "run.nc")

	tests := []struct {
		name     string
		f        func(string, string, string, bool) (string, error)
		output   string
		suffix   string
		multiple bool
		want     string
		fail     bool
	}{
		{name: "template beside input", f: TemplatePath, suffix: ".json", want: filepath.Join("data", "run.json")},
		{name: "template in dir", f: TemplatePath, output: dir, suffix: ".toml", want: filepath.Join(dir, "run.toml")},
		{name: "template file", f: TemplatePath, output: "t.json", suffix: ".json", want: "t.json"},
		{name: "template file, several inputs", f: TemplatePath, output: "t.json", multiple: true, fail: true},
		{name: "output in dir", f: OutputPath, output: dir, suffix: "_edit.nc", multiple: true, want: filepath.Join(dir, "run_edit.nc")},
		{name: "output file", f: OutputPath, output: "out.nc", suffix: "_edit.nc", want: "out.nc"},
		{name: "output file, several inputs", f: OutputPath, output: "out.nc", multiple: true, fail: true},
		{name: "blob dir", f: OutputPath, output: "s3://bucket/out/", suffix: "_edit.nc", want: "s3://bucket/out/run_edit.nc"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			have, err := test.f(in, test.output, test.suffix, test.multiple)
			if test.fail {
				if err == nil {
					t.Errorf("expected an error, have %s", have)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if have != test.want {
				t.Errorf("have %s, want %s", have, test.want)
			}
		})
	}
}

func TestOpenDataset(t *testing.T) {
	dir := tempDir(t)
	defer os.RemoveAll(dir)
	text := filepath.Join(dir, "notes.nc")
	if err := ioutil.WriteFile(text, []byte("not netcdf"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := OpenDataset(text); err == nil {
		t.Error("a text file should not open")
	}
	in := filepath.Join(dir, "in.nc")
	writeInput(t, in)
	ds, err := OpenDataset(in)
	if err != nil {
		t.Fatal(err)
	}
	defer ds.Close()
	if _, ok := ds.(*cdfstore.Reader); !ok {
		t.Errorf("have %T", ds)
	}
}

func TestTemplateAndEdit(t *testing.T) {
	dir := tempDir(t)
	defer os.RemoveAll(dir)
	in := filepath.Join(dir, "in.nc")
	writeInput(t, in)
	s := testStager(t)
	defer s.Cleanup()
	ctx := context.Background()

	tmpl := editedTemplate(t, s, in, dir)
	metrics := filepath.Join(dir, "metrics.prom")
	reports, err := Edit(ctx, s, in, dir, tmpl, EditOptions{CompressionLevel: -1, MetricsFile: metrics})
	if err != nil {
		t.Fatal(err)
	}
	if len(reports) != 1 {
		t.Fatalf("have %d reports", len(reports))
	}
	r := reports[0]
	if r.Output != filepath.Join(dir, "in_edit.nc") {
		t.Errorf("output: %s", r.Output)
	}
	if !reflect.DeepEqual(r.Dropped, []string{"junk"}) {
		t.Errorf("dropped: %v", r.Dropped)
	}

	out, err := cdfstore.Open(r.Output)
	if err != nil {
		t.Fatal(err)
	}
	defer out.Close()
	vars, err := out.Variables()
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(vars, []string{"time", "temperature"}) {
		t.Errorf("variables: %v", vars)
	}
	a, err := out.ReadArray("temperature")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(a.Elements, []float64{280, -9999, 282, 283}) {
		t.Errorf("temperature: %v", a.Elements)
	}

	b, err := ioutil.ReadFile(metrics)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(b), `ncedit_variables_total{outcome="dropped"} 1`) {
		t.Errorf("metrics file:\n%s", b)
	}

	t.Run("drop everything", func(t *testing.T) {
		tm, err := ncedit.LoadTemplate(tmpl)
		if err != nil {
			t.Fatal(err)
		}
		tm.Updates.Drop = []string{"time", "temp", "junk"}
		p := filepath.Join(dir, "empty.json")
		if err := tm.Save(p); err != nil {
			t.Fatal(err)
		}
		_, err = Edit(ctx, s, in, filepath.Join(dir, "empty.nc"), p, EditOptions{CompressionLevel: -1})
		if !errors.Is(err, dataset.ErrUnsupported) {
			t.Errorf("have %v, want %v", err, dataset.ErrUnsupported)
		}
	})

	t.Run("overwrite", func(t *testing.T) {
		if _, err := Edit(ctx, s, in, in, tmpl, EditOptions{CompressionLevel: -1}); err == nil {
			t.Error("overwriting the input should fail")
		}
	})
}

func TestEditBlob(t *testing.T) {
	dir := tempDir(t)
	defer os.RemoveAll(dir)
	in := filepath.Join(dir, "in.nc")
	writeInput(t, in)
	s := testStager(t)
	defer s.Cleanup()
	tmpl := editedTemplate(t, s, in, dir)

	blobIn := "file://" + filepath.ToSlash(in)
	blobOut := "file://" + filepath.ToSlash(filepath.Join(dir, "out")) + "/"
	reports, err := Edit(context.Background(), s, blobIn, blobOut, tmpl, EditOptions{CompressionLevel: -1})
	if err != nil {
		t.Fatal(err)
	}
	if want := blobOut + "in_edit.nc"; reports[0].Output != want {
		t.Errorf("output: have %s, want %s", reports[0].Output, want)
	}
	out, err := cdfstore.Open(filepath.Join(dir, "out", "in_edit.nc"))
	if err != nil {
		t.Fatal(err)
	}
	out.Close()
}

func TestCommands(t *testing.T) {
	dir := tempDir(t)
	defer os.RemoveAll(dir)
	in := filepath.Join(dir, "in.nc")
	writeInput(t, in)

	t.Run("version", func(t *testing.T) {
		var buf bytes.Buffer
		Root.SetOutput(&buf)
		defer Root.SetOutput(nil)
		Root.SetArgs([]string{"version"})
		if err := Root.Execute(); err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(buf.String(), "ncedit v"+ncedit.Version) {
			t.Errorf("have %q", buf.String())
		}
	})

	t.Run("template", func(t *testing.T) {
		Root.SetArgs([]string{in, "--loglevel=error"})
		if err := Root.Execute(); err != nil {
			t.Fatal(err)
		}
		if _, err := ncedit.LoadTemplate(filepath.Join(dir, "in.json")); err != nil {
			t.Fatal(err)
		}
	})

	t.Run("edit", func(t *testing.T) {
		out := filepath.Join(dir, "out.nc")
		Root.SetArgs([]string{in, out, filepath.Join(dir, "in.json"), "--loglevel=error"})
		if err := Root.Execute(); err != nil {
			t.Fatal(err)
		}
		r, err := cdfstore.Open(out)
		if err != nil {
			t.Fatal(err)
		}
		defer r.Close()
		vars, _ := r.Variables()
		if !reflect.DeepEqual(vars, []string{"time", "temp", "junk"}) {
			t.Errorf("variables: %v", vars)
		}
	})

	t.Run("bad input", func(t *testing.T) {
		Root.SetArgs([]string{filepath.Join(dir, "missing.nc"), "--loglevel=error"})
		if err := Root.Execute(); err == nil {
			t.Error("a missing input should fail")
		}
	})
}

type fakeBand struct {
	desc string
	md   map[string]string
}

func (b *fakeBand) Description() string                   { return b.desc }
func (b *fakeBand) Metadata() map[string]string           { return b.md }
func (b *fakeBand) SetDescription(d string) error         { b.desc = d; return nil }
func (b *fakeBand) SetMetadata(md map[string]string) error { b.md = md; return nil }
func (b *fakeBand) Read() ([]float64, error)              { return []float64{1}, nil }
func (b *fakeBand) Write([]float64) error                 { return nil }

type fakeRaster []*fakeBand

func (r fakeRaster) BandCount() int { return len(r) }
func (r fakeRaster) Close() error   { return nil }
func (r fakeRaster) Band(i int) (bandtable.Band, error) {
	if i < 1 || i > len(r) {
		return nil, fmt.Errorf("no band %d", i)
	}
	return r[i-1], nil
}

type fakeOpener map[string]fakeRaster

func (o fakeOpener) Open(p string) (bandtable.Raster, error) {
	r, ok := o[p]
	if !ok {
		return nil, fmt.Errorf("%s does not exist", p)
	}
	return r, nil
}

func (o fakeOpener) CreateCopy(dst, src string) (bandtable.Raster, error) {
	r, ok := o[src]
	if !ok {
		return nil, fmt.Errorf("%s does not exist", src)
	}
	c := make(fakeRaster, len(r))
	for i, b := range r {
		c[i] = &fakeBand{desc: b.desc, md: b.md}
	}
	o[dst] = c
	return c, nil
}

func TestBands(t *testing.T) {
	dir := tempDir(t)
	defer os.RemoveAll(dir)
	tif := filepath.Join(dir, "pm.tif")
	if err := ioutil.WriteFile(tif, nil, 0644); err != nil {
		t.Fatal(err)
	}
	o := fakeOpener{tif: fakeRaster{
		{desc: "PM2.5", md: map[string]string{"units": "ug/m3"}},
		{desc: "NOx", md: map[string]string{}},
	}}
	table := filepath.Join(dir, "bands.csv")
	n, err := ExtractBands(o, dir, table)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("have %d bands", n)
	}

	rows, err := bandtable.ReadFile(table)
	if err != nil {
		t.Fatal(err)
	}
	rows[1].Description = "NO2"
	rows = rows[1:]
	if err := bandtable.WriteFile(table, rows); err != nil {
		t.Fatal(err)
	}
	l := logrus.New()
	l.Out = ioutil.Discard
	reports, err := ApplyBands(o, table, "", l)
	if err != nil {
		t.Fatal(err)
	}
	if len(reports) != 1 || !reflect.DeepEqual(reports[0].Skipped, []int{1}) {
		t.Fatalf("reports: %+v", reports)
	}
	out := o[filepath.Join(dir, "pm_edit.tif")]
	if out[0].desc != "PM2.5" || out[1].desc != "NO2" {
		t.Errorf("descriptions: %s, %s", out[0].desc, out[1].desc)
	}

	if _, err := ExtractBands(o, filepath.Join(dir, "empty"), table); err == nil {
		t.Error("a directory without rasters should fail")
	}
}

func TestCheckGroups(t *testing.T) {
	m := dataset.NewMemory()
	if err := checkGroups(m, "flat.nc"); err != nil {
		t.Errorf("a dataset without groups: %v", err)
	}
	if _, err := m.CreateGroup("obs"); err != nil {
		t.Fatal(err)
	}
	err := checkGroups(m, "grouped.nc")
	if !errors.Is(err, dataset.ErrUnsupported) {
		t.Errorf("have %v, want %v", err, dataset.ErrUnsupported)
	}
	if err != nil && !strings.Contains(err.Error(), "obs") {
		t.Errorf("the error should name the group: %v", err)
	}
}
