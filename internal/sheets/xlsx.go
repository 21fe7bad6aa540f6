package sheets

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

// ReadXLSX parses the first worksheet of a workbook the same way as ReadCSV.
func ReadXLSX(r io.Reader, opts Options) (Sheet, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return Sheet{}, fmt.Errorf("open xlsx: %w", err)
	}
	defer f.Close()

	names := f.GetSheetList()
	if len(names) == 0 {
		return Sheet{}, fmt.Errorf("%w: workbook has no sheets", ErrMissingColumns)
	}
	rows, err := f.GetRows(names[0])
	if err != nil {
		return Sheet{}, fmt.Errorf("read xlsx rows: %w", err)
	}
	if len(rows) == 0 {
		return Sheet{}, fmt.Errorf("%w: empty sheet", ErrMissingColumns)
	}
	return parseRows(rows[0], rows[1:], opts)
}

// WriteXLSX writes each table to its own worksheet, in order.
func WriteXLSX(w io.Writer, tables ...Table) error {
	f := excelize.NewFile()
	defer f.Close()

	for i, t := range tables {
		if i == 0 {
			if err := f.SetSheetName("Sheet1", t.Name); err != nil {
				return err
			}
		} else if _, err := f.NewSheet(t.Name); err != nil {
			return err
		}
		for c, h := range t.Header {
			cell, _ := excelize.CoordinatesToCellName(c+1, 1)
			if err := f.SetCellValue(t.Name, cell, h); err != nil {
				return err
			}
		}
		for r, row := range t.Rows {
			for c, v := range row {
				cell, _ := excelize.CoordinatesToCellName(c+1, r+2)
				if err := f.SetCellValue(t.Name, cell, v); err != nil {
					return err
				}
			}
		}
	}
	if len(tables) > 0 {
		f.SetActiveSheet(0)
	}
	return f.Write(w)
}
