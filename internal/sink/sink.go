// Package sink writes resolved documents to tabular or line-oriented files.
package sink

import (
	"fmt"
	"strings"

	"github.com/ppiankov/patentscan/internal/model"
)

// Sink consumes outcomes one at a time, in completion order
type Sink interface {
	Write(o model.Outcome) error
	Close() error
}

// Supported formats
const (
	FormatCSV   = "csv"
	FormatXLSX  = "xlsx"
	FormatJSONL = "jsonl"
)

// Columns is the output schema, one column per record field
var Columns = []string{
	"number",
	"date",
	"quotes",
	"authors",
	"patent_owner",
	"mpk",
	"spk",
	"country",
	"type_of_document",
	"title",
	"abstract",
	"patent_claims",
	"patent_description",
	"source_of_information",
}

// ListSeparator joins multi-valued fields into one cell
const ListSeparator = "; "

// Row flattens an outcome into Columns order. Outcomes without a record
// only fill the number column.
func Row(o model.Outcome) []string {
	row := make([]string, len(Columns))
	row[0] = o.Number
	if !o.OK() {
		return row
	}

	r := o.Record
	join := func(values []string) string { return strings.Join(values, ListSeparator) }

	number := r.Number
	if number == "" {
		number = o.Number
	}
	return []string{
		number,
		r.FilingDate,
		join(r.CitedDocuments),
		join(r.Authors),
		r.PatentOwner,
		join(r.IPCClasses),
		join(r.CPCClasses),
		r.Country,
		r.DocumentType,
		r.Title,
		r.Abstract,
		r.Claims,
		r.Description,
		join(r.SourcesOfInformation),
	}
}

// New opens a sink of the given format at path, truncating any existing file
func New(format, path string) (Sink, error) {
	switch strings.ToLower(format) {
	case FormatCSV:
		return NewCSVSink(path)
	case FormatXLSX:
		return NewXLSXSink(path)
	case FormatJSONL:
		return NewJSONLSink(path)
	default:
		return nil, fmt.Errorf("unknown output format %q", format)
	}
}

// FormatFromPath guesses a format from the file extension, falling back to def
func FormatFromPath(path, def string) string {
	lower := strings.ToLower(path)
	switch {
	case strings.HasSuffix(lower, ".xlsx"):
		return FormatXLSX
	case strings.HasSuffix(lower, ".jsonl"), strings.HasSuffix(lower, ".ndjson"):
		return FormatJSONL
	case strings.HasSuffix(lower, ".csv"):
		return FormatCSV
	}
	return def
}
