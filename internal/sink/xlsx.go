package sink

import (
	"fmt"

	"github.com/ppiankov/patentscan/internal/model"
	"github.com/xuri/excelize/v2"
)

const sheetName = "Patents"

// XLSXSink builds a workbook in memory and saves it on Close
type XLSXSink struct {
	path string
	f    *excelize.File
	row  int
}

// NewXLSXSink prepares a workbook with the header row
func NewXLSXSink(path string) (*XLSXSink, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("xlsx sheet: %w", err)
	}

	s := &XLSXSink{path: path, f: f, row: 1}
	if err := s.writeRow(Columns); err != nil {
		_ = f.Close()
		return nil, err
	}

	_ = f.SetColWidth(sheetName, "A", "A", 12) // number
	_ = f.SetColWidth(sheetName, "B", "B", 12) // date
	_ = f.SetColWidth(sheetName, "J", "J", 48) // title
	_ = f.SetColWidth(sheetName, "K", "M", 60) // abstract, claims, description
	return s, nil
}

// Write appends the outcome's row
func (s *XLSXSink) Write(o model.Outcome) error {
	return s.writeRow(Row(o))
}

func (s *XLSXSink) writeRow(values []string) error {
	cells := make([]any, len(values))
	for i, v := range values {
		cells[i] = clampCell(v)
	}

	cell, err := excelize.CoordinatesToCellName(1, s.row)
	if err != nil {
		return err
	}
	if err := s.f.SetSheetRow(sheetName, cell, &cells); err != nil {
		return fmt.Errorf("xlsx row %d: %w", s.row, err)
	}
	s.row++
	return nil
}

// Close saves the workbook to disk
func (s *XLSXSink) Close() error {
	defer func() { _ = s.f.Close() }()
	if err := s.f.SaveAs(s.path); err != nil {
		return fmt.Errorf("xlsx save: %w", err)
	}
	return nil
}

// clampCell trims text to the per-cell limit Excel enforces
func clampCell(v string) string {
	runes := []rune(v)
	if len(runes) <= excelize.TotalCellChars {
		return v
	}
	return string(runes[:excelize.TotalCellChars])
}
