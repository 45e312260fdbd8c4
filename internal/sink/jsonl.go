package sink

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"

	"github.com/ppiankov/patentscan/internal/model"
)

// jsonlLine is the on-disk shape of one outcome
type jsonlLine struct {
	Number    string              `json:"number"`
	Status    model.Status        `json:"status"`
	Reason    string              `json:"reason,omitempty"`
	Error     string              `json:"error,omitempty"`
	ElapsedMS int64               `json:"elapsed_ms"`
	Record    *model.PatentRecord `json:"record,omitempty"`
}

// JSONLSink writes one JSON object per outcome, failures included
type JSONLSink struct {
	file *os.File
	buf  *bufio.Writer
	enc  *json.Encoder
}

// NewJSONLSink creates path
func NewJSONLSink(path string) (*JSONLSink, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create jsonl: %w", err)
	}
	buf := bufio.NewWriter(file)
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	return &JSONLSink{file: file, buf: buf, enc: enc}, nil
}

// Write appends the outcome as one line
func (s *JSONLSink) Write(o model.Outcome) error {
	line := jsonlLine{
		Number:    o.Number,
		Status:    o.Status,
		Reason:    o.Reason(),
		ElapsedMS: o.Elapsed.Milliseconds(),
		Record:    o.Record,
	}
	if o.Err != nil {
		line.Error = o.Err.Error()
	}
	if err := s.enc.Encode(line); err != nil {
		return fmt.Errorf("encode outcome %s: %w", o.Number, err)
	}
	return s.buf.Flush()
}

// Close flushes and closes the file
func (s *JSONLSink) Close() error {
	if err := s.buf.Flush(); err != nil {
		_ = s.file.Close()
		return err
	}
	return s.file.Close()
}
