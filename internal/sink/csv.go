package sink

import (
	"encoding/csv"
	"fmt"
	"os"

	"github.com/ppiankov/patentscan/internal/model"
)

// CSVSink writes one row per outcome and flushes after every row, so an
// interrupted batch keeps everything written so far.
type CSVSink struct {
	file *os.File
	w    *csv.Writer
}

// NewCSVSink creates path and writes the header row
func NewCSVSink(path string) (*CSVSink, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create csv: %w", err)
	}

	s := &CSVSink{file: file, w: csv.NewWriter(file)}
	if err := s.writeRow(Columns); err != nil {
		_ = file.Close()
		return nil, err
	}
	return s, nil
}

// Write appends the outcome's row
func (s *CSVSink) Write(o model.Outcome) error {
	return s.writeRow(Row(o))
}

func (s *CSVSink) writeRow(row []string) error {
	if err := s.w.Write(row); err != nil {
		return fmt.Errorf("write csv row: %w", err)
	}
	s.w.Flush()
	if err := s.w.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

// Close flushes and closes the file
func (s *CSVSink) Close() error {
	s.w.Flush()
	if err := s.w.Error(); err != nil {
		_ = s.file.Close()
		return fmt.Errorf("flush csv: %w", err)
	}
	return s.file.Close()
}
