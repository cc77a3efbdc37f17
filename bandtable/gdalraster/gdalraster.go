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

// Package gdalraster opens raster files for the band table using the
// GDAL bindings in github.com/airbusgeo/godal.
package gdalraster

import (
	"fmt"
	"sync"

	"github.com/airbusgeo/godal"
	"github.com/spatialmodel/ncedit/bandtable"
)

// DefaultDriver is the GDAL driver used to create copies.
const DefaultDriver = "GTiff"

var register sync.Once

// Opener implements bandtable.Opener.
type Opener struct {
	// Driver names the GDAL driver used by CreateCopy.
	Driver string
}

// Open opens path for reading.
func (o Opener) Open(path string) (bandtable.Raster, error) {
	register.Do(godal.RegisterAll)
	ds, err := godal.Open(path)
	if err != nil {
		return nil, fmt.Errorf("gdalraster: opening %s: %v", path, err)
	}
	return &raster{ds: ds}, nil
}

// CreateCopy duplicates src at dst and returns the copy open for
// updating.
func (o Opener) CreateCopy(dst, src string) (bandtable.Raster, error) {
	register.Do(godal.RegisterAll)
	name := o.Driver
	if name == "" {
		name = DefaultDriver
	}
	in, err := godal.Open(src)
	if err != nil {
		return nil, fmt.Errorf("gdalraster: opening %s: %v", src, err)
	}
	defer in.Close()
	out, err := in.Translate(dst, []string{"-of", name})
	if err != nil {
		return nil, fmt.Errorf("gdalraster: copying %s to %s: %v", src, dst, err)
	}
	return &raster{ds: out}, nil
}

type raster struct {
	ds *godal.Dataset
}

func (r *raster) BandCount() int { return len(r.ds.Bands()) }

func (r *raster) Band(i int) (bandtable.Band, error) {
	bands := r.ds.Bands()
	if i < 1 || i > len(bands) {
		return nil, fmt.Errorf("gdalraster: band %d out of range 1-%d", i, len(bands))
	}
	return &band{b: bands[i-1]}, nil
}

func (r *raster) Close() error { return r.ds.Close() }

type band struct {
	b godal.Band
}

func (b *band) Description() string { return b.b.Description() }

func (b *band) SetDescription(d string) error { return b.b.SetDescription(d) }

// Metadata returns the items of the default metadata domain.
func (b *band) Metadata() map[string]string { return b.b.Metadatas() }

// SetMetadata sets each item in the default domain. Items that are not
// in md are left unchanged.
func (b *band) SetMetadata(md map[string]string) error {
	for k, v := range md {
		if err := b.b.SetMetadata(k, v); err != nil {
			return fmt.Errorf("gdalraster: metadata %s: %v", k, err)
		}
	}
	return nil
}

func (b *band) size() (int, int) {
	s := b.b.Structure()
	return s.SizeX, s.SizeY
}

func (b *band) Read() ([]float64, error) {
	nx, ny := b.size()
	buf := make([]float64, nx*ny)
	if err := b.b.Read(0, 0, buf, nx, ny); err != nil {
		return nil, fmt.Errorf("gdalraster: reading band: %v", err)
	}
	return buf, nil
}

func (b *band) Write(data []float64) error {
	nx, ny := b.size()
	if len(data) != nx*ny {
		return fmt.Errorf("gdalraster: %d values for a %dx%d band", len(data), nx, ny)
	}
	if err := b.b.Write(0, 0, data, nx, ny); err != nil {
		return fmt.Errorf("gdalraster: writing band: %v", err)
	}
	return nil
}
