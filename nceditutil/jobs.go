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
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/ncedit/cloud"
	"github.com/spatialmodel/ncedit/dataset"
	"github.com/spatialmodel/ncedit/dataset/cdfstore"
	"github.com/spatialmodel/ncedit/dataset/nc4store"
)

// Stager stages blob storage paths through a local directory.
type Stager struct {
	*cloud.Stager
	temp bool
}

// NewStager returns a stager using dir, or a new temporary directory if
// dir is empty.
func NewStager(dir string, log logrus.FieldLogger) (*Stager, error) {
	temp := dir == ""
	if temp {
		var err error
		dir, err = ioutil.TempDir("", "ncedit")
		if err != nil {
			return nil, fmt.Errorf("ncedit: creating staging directory: %v", err)
		}
	}
	return &Stager{Stager: cloud.NewStager(dir, log), temp: temp}, nil
}

// Cleanup removes the staging directory if it was created by NewStager.
func (s *Stager) Cleanup() {
	if s.temp {
		os.RemoveAll(s.Dir)
	}
}

func hasMeta(p string) bool { return strings.ContainsAny(p, "*?[") }

// Inputs expands in into the list of input files. in may be a file, a
// directory, in which case all of the .nc files in it are used, or a
// glob pattern. Blob storage paths may be files or patterns.
func Inputs(ctx context.Context, in string) ([]string, error) {
	var files []string
	var err error
	switch {
	case cloud.IsBlob(in) && hasMeta(in):
		files, err = cloud.List(ctx, in)
	case cloud.IsBlob(in):
		return []string{in}, nil
	case hasMeta(in):
		files, err = filepath.Glob(in)
	default:
		fi, err := os.Stat(in)
		if err != nil {
			return nil, fmt.Errorf("ncedit: input %s: %v", in, err)
		}
		if !fi.IsDir() {
			return []string{in}, nil
		}
		files, err = filepath.Glob(filepath.Join(in, "*.nc"))
		if err != nil {
			return nil, fmt.Errorf("ncedit: %v", err)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("ncedit: finding inputs: %v", err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("ncedit: no input files match %s", in)
	}
	sort.Strings(files)
	return files, nil
}

// isDir reports whether p is, or is meant to be, a directory.
func isDir(p string) bool {
	if strings.HasSuffix(p, "/") {
		return true
	}
	if cloud.IsBlob(p) {
		return false
	}
	fi, err := os.Stat(p)
	return err == nil && fi.IsDir()
}

// join joins a directory and a file name for local and blob paths.
func join(dir, name string) string {
	if cloud.IsBlob(dir) {
		return strings.TrimSuffix(dir, "/") + "/" + name
	}
	return filepath.Join(dir, name)
}

func baseName(p string) string {
	b := path.Base(filepath.ToSlash(p))
	return strings.TrimSuffix(b, path.Ext(b))
}

func trimExt(p string) string {
	return strings.TrimSuffix(p, path.Ext(p))
}

// TemplatePath returns where the template of input is written. With no
// output it is written next to the input; an output directory receives
// the template under the input's base name; otherwise output names the
// template file, which is only allowed for a single input.
func TemplatePath(input, output, suffix string, multiple bool) (string, error) {
	switch {
	case output == "":
		return trimExt(input) + suffix, nil
	case isDir(output):
		return join(output, baseName(input)+suffix), nil
	case multiple:
		return "", fmt.Errorf("ncedit: %s must be a directory when there are several inputs", output)
	}
	return output, nil
}

// OutputPath returns where the edited copy of input is written.
func OutputPath(input, output, suffix string, multiple bool) (string, error) {
	switch {
	case isDir(output):
		return join(output, baseName(input)+suffix), nil
	case multiple:
		return "", fmt.Errorf("ncedit: %s must be a directory when there are several inputs", output)
	case output == "":
		return "", fmt.Errorf("ncedit: no output path")
	}
	return output, nil
}

var (
	classic1 = []byte("CDF\x01")
	classic2 = []byte("CDF\x02")
	hdf5     = []byte("\x89HDF\r\n\x1a\n")
)

// OpenDataset opens the netCDF file at path for reading, choosing the
// storage engine from the file's signature.
func OpenDataset(path string) (dataset.Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("ncedit: %v", err)
	}
	magic := make([]byte, len(hdf5))
	n, err := io.ReadFull(f, magic)
	f.Close()
	if err != nil && err != io.ErrUnexpectedEOF {
		return nil, fmt.Errorf("ncedit: reading %s: %v", path, err)
	}
	magic = magic[:n]
	switch {
	case bytes.HasPrefix(magic, classic1), bytes.HasPrefix(magic, classic2):
		r, err := cdfstore.Open(path)
		if err != nil {
			return nil, err
		}
		return r, nil
	case bytes.HasPrefix(magic, hdf5):
		r, err := nc4store.Open(path)
		if err != nil {
			return nil, err
		}
		return r, nil
	}
	return nil, fmt.Errorf("ncedit: %s is not a classic or netCDF-4 file", path)
}

// checkGroups returns an error if in has groups, which the classic
// files written by CreateDataset cannot hold.
func checkGroups(in dataset.Dataset, input string) error {
	groups, err := in.Groups()
	if err != nil {
		return fmt.Errorf("ncedit: %s: %w", input, err)
	}
	if len(groups) > 0 {
		return fmt.Errorf("ncedit: %s has groups (%s) that classic netCDF output cannot hold: %w",
			input, strings.Join(groups, ", "), dataset.ErrUnsupported)
	}
	return nil
}

// CreateDataset returns a dataset that is written to path when it is
// closed. Output is always in the classic format.
func CreateDataset(path string) dataset.Dataset {
	return cdfstore.Create(path)
}
