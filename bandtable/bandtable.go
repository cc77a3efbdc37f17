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

// Package bandtable extracts the descriptions and metadata of the bands
// of raster files into a table that can be edited by hand, and writes
// edited copies of the rasters from such a table.
package bandtable

import (
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
)

// DefaultSuffix is appended to the base name of a raster to name its
// edited copy.
const DefaultSuffix = "_edit.tif"

// Row holds the editable information about one raster band.
type Row struct {
	File        string
	Band        int // 1-based
	Description string
	Metadata    map[string]string
}

// Band is one band of a raster.
type Band interface {
	Description() string
	Metadata() map[string]string
	SetDescription(string) error
	SetMetadata(map[string]string) error

	// Read returns a copy of the band's values and Write replaces them.
	Read() ([]float64, error)
	Write([]float64) error
}

// Raster is an open raster file.
type Raster interface {
	BandCount() int
	// Band returns band i, counting from 1.
	Band(i int) (Band, error)
	Close() error
}

// Opener opens raster files and creates copies of them.
type Opener interface {
	Open(path string) (Raster, error)
	CreateCopy(dst, src string) (Raster, error)
}

// Extract returns one row per band of r, which was opened from file.
func Extract(r Raster, file string) ([]Row, error) {
	rows := make([]Row, 0, r.BandCount())
	for i := 1; i <= r.BandCount(); i++ {
		b, err := r.Band(i)
		if err != nil {
			return nil, fmt.Errorf("bandtable: %s band %d: %v", file, i, err)
		}
		md := make(map[string]string)
		for k, v := range b.Metadata() {
			md[k] = v
		}
		rows = append(rows, Row{
			File:        file,
			Band:        i,
			Description: b.Description(),
			Metadata:    md,
		})
	}
	return rows, nil
}

// ExtractFiles opens each of files with o and returns the rows of all
// of their bands.
func ExtractFiles(o Opener, files []string) ([]Row, error) {
	var rows []Row
	for _, f := range files {
		r, err := o.Open(f)
		if err != nil {
			return nil, fmt.Errorf("bandtable: opening %s: %v", f, err)
		}
		rr, err := Extract(r, f)
		r.Close()
		if err != nil {
			return nil, err
		}
		rows = append(rows, rr...)
	}
	return rows, nil
}

// Files returns the distinct files named in rows, in order of first
// appearance.
func Files(rows []Row) []string {
	var o []string
	seen := make(map[string]bool)
	for _, r := range rows {
		if !seen[r.File] {
			seen[r.File] = true
			o = append(o, r.File)
		}
	}
	return o
}

// ApplyReport summarizes the result of Apply.
type ApplyReport struct {
	Output  string
	Written []int
	Skipped []int // bands without a row
}

// OutputPath returns the path of the edited copy of file.
func OutputPath(file, suffix string) string {
	if suffix == "" {
		suffix = DefaultSuffix
	}
	return strings.TrimSuffix(file, filepath.Ext(file)) + suffix
}

// Apply writes an edited copy of file. Every band of the copy receives
// the description and metadata of the row for the same file and band;
// bands without a row keep their original information and are listed in
// the report.
func Apply(o Opener, file string, rows []Row, suffix string, log logrus.FieldLogger) (*ApplyReport, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	byBand := make(map[int]Row)
	for _, r := range rows {
		if r.File == file {
			byBand[r.Band] = r
		}
	}
	rep := &ApplyReport{Output: OutputPath(file, suffix)}
	out, err := o.CreateCopy(rep.Output, file)
	if err != nil {
		return nil, fmt.Errorf("bandtable: copying %s: %v", file, err)
	}
	for i := 1; i <= out.BandCount(); i++ {
		row, ok := byBand[i]
		if !ok {
			log.WithFields(logrus.Fields{"file": file, "band": i}).Info("no row found for band; skipping")
			rep.Skipped = append(rep.Skipped, i)
			continue
		}
		if err := applyBand(out, i, row); err != nil {
			out.Close()
			return nil, fmt.Errorf("bandtable: %s band %d: %v", rep.Output, i, err)
		}
		rep.Written = append(rep.Written, i)
	}
	if err := out.Close(); err != nil {
		return nil, fmt.Errorf("bandtable: closing %s: %v", rep.Output, err)
	}
	return rep, nil
}

func applyBand(r Raster, i int, row Row) error {
	b, err := r.Band(i)
	if err != nil {
		return err
	}
	data, err := b.Read()
	if err != nil {
		return err
	}
	if err = b.Write(data); err != nil {
		return err
	}
	if err = b.SetDescription(row.Description); err != nil {
		return err
	}
	return b.SetMetadata(row.Metadata)
}

// FormatMetadata renders metadata as semicolon-separated KEY=VALUE pairs
// in key order.
func FormatMetadata(md map[string]string) string {
	keys := make([]string, 0, len(md))
	for k := range md {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + md[k]
	}
	return strings.Join(parts, ";")
}

var dictItem = regexp.MustCompile(`'((?:[^'\\]|\\.)*)'\s*:\s*'((?:[^'\\]|\\.)*)'`)

// ParseMetadata parses the output of FormatMetadata. Tables written by
// Python tools, where metadata is a dictionary literal such as
// {'units': 'm'}, are also accepted.
func ParseMetadata(s string) (map[string]string, error) {
	md := make(map[string]string)
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "{") {
		if !strings.HasSuffix(s, "}") {
			return nil, fmt.Errorf("bandtable: invalid metadata %q", s)
		}
		for _, m := range dictItem.FindAllStringSubmatch(s, -1) {
			md[m[1]] = m[2]
		}
		return md, nil
	}
	if s == "" {
		return md, nil
	}
	for _, kv := range strings.Split(s, ";") {
		i := strings.Index(kv, "=")
		if i <= 0 {
			return nil, fmt.Errorf("bandtable: invalid metadata item %q", kv)
		}
		md[kv[:i]] = kv[i+1:]
	}
	return md, nil
}
