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

package bandtable

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/tealeg/xlsx"
)

// Columns are the column headings of a band table.
var Columns = []string{"GeoTIFF", "Band", "Description", "Metadata"}

const sheetName = "bands"

func (r Row) record() []string {
	return []string{r.File, strconv.Itoa(r.Band), r.Description, FormatMetadata(r.Metadata)}
}

// columnIndex maps each of Columns to its position in header. Extra
// columns, such as an unnamed index column, are ignored.
func columnIndex(header []string) ([]int, error) {
	idx := make([]int, len(Columns))
	for i, c := range Columns {
		idx[i] = -1
		for j, h := range header {
			if strings.TrimSpace(h) == c {
				idx[i] = j
			}
		}
		if idx[i] < 0 {
			return nil, fmt.Errorf("bandtable: missing column %s", c)
		}
	}
	return idx, nil
}

func parseRecord(idx []int, rec []string, line int) (Row, error) {
	get := func(i int) string {
		if idx[i] < len(rec) {
			return rec[idx[i]]
		}
		return ""
	}
	band, err := strconv.Atoi(strings.TrimSpace(get(1)))
	if err != nil {
		return Row{}, fmt.Errorf("bandtable: row %d: invalid band %q", line, get(1))
	}
	md, err := ParseMetadata(get(3))
	if err != nil {
		return Row{}, fmt.Errorf("row %d: %v", line, err)
	}
	return Row{File: get(0), Band: band, Description: get(2), Metadata: md}, nil
}

// WriteCSV writes rows as comma-separated values with a header line.
func WriteCSV(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return err
	}
	for _, r := range rows {
		if err := cw.Write(r.record()); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadCSV reads a table written by WriteCSV.
func ReadCSV(r io.Reader) ([]Row, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	recs, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("bandtable: reading csv: %v", err)
	}
	if len(recs) == 0 {
		return nil, fmt.Errorf("bandtable: empty table")
	}
	idx, err := columnIndex(recs[0])
	if err != nil {
		return nil, err
	}
	rows := make([]Row, 0, len(recs)-1)
	for i, rec := range recs[1:] {
		row, err := parseRecord(idx, rec, i+2)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// WriteXLSX saves rows to a spreadsheet at path.
func WriteXLSX(path string, rows []Row) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet(sheetName)
	if err != nil {
		return fmt.Errorf("bandtable: %v", err)
	}
	header := sheet.AddRow()
	for _, c := range Columns {
		header.AddCell().SetString(c)
	}
	for _, r := range rows {
		row := sheet.AddRow()
		row.AddCell().SetString(r.File)
		row.AddCell().SetInt(r.Band)
		row.AddCell().SetString(r.Description)
		row.AddCell().SetString(FormatMetadata(r.Metadata))
	}
	if err := f.Save(path); err != nil {
		return fmt.Errorf("bandtable: saving %s: %v", path, err)
	}
	return nil
}

// ReadXLSX reads the first sheet of a spreadsheet written by WriteXLSX.
func ReadXLSX(path string) ([]Row, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("bandtable: opening %s: %v", path, err)
	}
	if len(f.Sheets) == 0 {
		return nil, fmt.Errorf("bandtable: %s has no sheets", path)
	}
	var recs [][]string
	for _, row := range f.Sheets[0].Rows {
		if len(row.Cells) == 0 {
			continue
		}
		rec := make([]string, len(row.Cells))
		for i, c := range row.Cells {
			rec[i] = c.Value
		}
		recs = append(recs, rec)
	}
	if len(recs) == 0 {
		return nil, fmt.Errorf("bandtable: %s: empty table", path)
	}
	idx, err := columnIndex(recs[0])
	if err != nil {
		return nil, err
	}
	rows := make([]Row, 0, len(recs)-1)
	for i, rec := range recs[1:] {
		row, err := parseRecord(idx, rec, i+2)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func isXLSX(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".xlsx")
}

// WriteFile writes rows to path as a spreadsheet if path ends in .xlsx
// and as comma-separated values otherwise.
func WriteFile(path string, rows []Row) error {
	if isXLSX(path) {
		return WriteXLSX(path, rows)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("bandtable: %v", err)
	}
	if err := WriteCSV(f, rows); err != nil {
		f.Close()
		return fmt.Errorf("bandtable: writing %s: %v", path, err)
	}
	return f.Close()
}

// ReadFile reads a table written by WriteFile.
func ReadFile(path string) ([]Row, error) {
	if isXLSX(path) {
		return ReadXLSX(path)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("bandtable: %v", err)
	}
	defer f.Close()
	return ReadCSV(f)
}
