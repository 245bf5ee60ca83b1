package store

import (
	"context"
	"os"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

const sheetName = "Stargazers"

// XLSXStore persists rows to an Excel workbook. Writes go to a temp file in
// the same directory followed by a rename, so a crash mid-write leaves the
// previous workbook intact.
type XLSXStore struct {
	path string
}

// NewXLSX creates an XLSX store at the given path. The file is created on
// first write.
func NewXLSX(path string) *XLSXStore {
	return &XLSXStore{path: path}
}

func (s *XLSXStore) Load(ctx context.Context) (*Snapshot, error) {
	if _, err := os.Stat(s.path); os.IsNotExist(err) {
		return newSnapshot(nil), nil
	}

	f, err := xlsx.OpenFile(s.path)
	if err != nil {
		return nil, eris.Wrapf(err, "store: open %s", s.path)
	}

	sheet, ok := f.Sheet[sheetName]
	if !ok {
		if len(f.Sheets) == 0 {
			return newSnapshot(nil), nil
		}
		sheet = f.Sheets[0]
	}

	var rows []Row
	for i, r := range sheet.Rows {
		if i == 0 {
			continue // header
		}
		cells := make([]string, len(r.Cells))
		for j, c := range r.Cells {
			cells[j] = c.String()
		}
		row := rowFromValues(cells)
		if row.Login == "" {
			continue
		}
		rows = append(rows, row)
	}

	return newSnapshot(rows), nil
}

func (s *XLSXStore) Write(ctx context.Context, rows []Row) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet(sheetName)
	if err != nil {
		return eris.Wrap(err, "store: add sheet")
	}

	header := sheet.AddRow()
	for _, col := range Header {
		header.AddCell().SetString(col)
	}

	for _, row := range rows {
		r := sheet.AddRow()
		for _, v := range row.Values() {
			r.AddCell().SetString(v)
		}
	}

	tmp := s.path + ".tmp"
	if err := f.Save(tmp); err != nil {
		return eris.Wrapf(err, "store: save %s", tmp)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return eris.Wrapf(err, "store: replace %s", s.path)
	}
	return nil
}

func (s *XLSXStore) Close() error { return nil }
