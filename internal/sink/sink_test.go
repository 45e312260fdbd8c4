package sink

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/ppiankov/patentscan/internal/model"
	"github.com/xuri/excelize/v2"
)

func sampleRecord() *model.PatentRecord {
	return &model.PatentRecord{
		Number:               "2005333",
		FilingDate:           "21.06.1991",
		CitedDocuments:       []string{"SU 123456", "US 4567890"},
		Authors:              []string{"Иванов И.И. (RU)"},
		PatentOwner:          `ООО "Мебель" (RU)`,
		IPCClasses:           []string{"A47B 1/00", "A47B 13/00"},
		CPCClasses:           []string{"A47B2200/0011"},
		Country:              "RU",
		DocumentType:         "C1",
		Title:                "СТОЛ РАЗДВИЖНОЙ",
		Abstract:             "Стол содержит столешницу",
		Claims:               "Стол раздвижной, содержащий столешницу.",
		Description:          "Изобретение относится к мебели.",
		SourcesOfInformation: []string{"1. SU 123456, 1980."},
	}
}

func outcomes() []model.Outcome {
	return []model.Outcome{
		model.Success("2005333", sampleRecord()),
		model.NotFound("2005334"),
		model.Failed("2005335", model.ErrTransport),
	}
}

func TestColumnsMatchRecordTags(t *testing.T) {
	typ := reflect.TypeOf(model.PatentRecord{})
	if typ.NumField() != len(Columns) {
		t.Fatalf("record has %d fields, schema has %d columns", typ.NumField(), len(Columns))
	}
	for i := 0; i < typ.NumField(); i++ {
		if tag := typ.Field(i).Tag.Get("json"); tag != Columns[i] {
			t.Errorf("column %d: schema %q, record tag %q", i, Columns[i], tag)
		}
	}
}

func TestRow(t *testing.T) {
	row := Row(model.Success("2005333", sampleRecord()))
	if len(row) != len(Columns) {
		t.Fatalf("expected %d cells, got %d", len(Columns), len(row))
	}
	if row[2] != "SU 123456; US 4567890" {
		t.Errorf("expected joined citations, got %q", row[2])
	}
	if row[5] != "A47B 1/00; A47B 13/00" {
		t.Errorf("expected joined IPC, got %q", row[5])
	}

	failed := Row(model.Failed("42", model.ErrTimeout))
	if failed[0] != "42" {
		t.Errorf("expected number in failed row, got %q", failed[0])
	}
	for i, v := range failed[1:] {
		if v != "" {
			t.Errorf("expected empty cell %d in failed row, got %q", i+1, v)
		}
	}
}

func TestCSVSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.csv")
	s, err := New(FormatCSV, path)
	if err != nil {
		t.Fatal(err)
	}
	for _, o := range outcomes() {
		if err := s.Write(o); err != nil {
			t.Fatal(err)
		}
	}

	// Rows are flushed as written, before Close
	partial, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(partial), "2005335") {
		t.Error("expected rows flushed before Close")
	}

	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	f, _ := os.Open(path)
	defer func() { _ = f.Close() }()
	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("invalid csv: %v", err)
	}
	if len(records) != 4 {
		t.Fatalf("expected header + 3 rows, got %d", len(records))
	}
	if !reflect.DeepEqual(records[0], Columns) {
		t.Errorf("unexpected header: %v", records[0])
	}
	if records[1][4] != `ООО "Мебель" (RU)` {
		t.Errorf("expected quoted owner to round trip, got %q", records[1][4])
	}
}

func TestJSONLSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.jsonl")
	s, err := New(FormatJSONL, path)
	if err != nil {
		t.Fatal(err)
	}
	for _, o := range outcomes() {
		if err := s.Write(o); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	f, _ := os.Open(path)
	defer func() { _ = f.Close() }()

	var lines []jsonlLine
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 1<<20), 1<<20)
	for scanner.Scan() {
		var line jsonlLine
		if err := json.Unmarshal(scanner.Bytes(), &line); err != nil {
			t.Fatalf("invalid line %q: %v", scanner.Text(), err)
		}
		lines = append(lines, line)
	}

	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(lines))
	}
	if lines[0].Record == nil || lines[0].Record.Title != "СТОЛ РАЗДВИЖНОЙ" {
		t.Errorf("expected record on success line, got %+v", lines[0])
	}
	if lines[1].Status != model.StatusNotFound {
		t.Errorf("expected not_found, got %s", lines[1].Status)
	}
	if lines[2].Reason != "transport" || lines[2].Error == "" {
		t.Errorf("expected transport failure details, got %+v", lines[2])
	}
}

func TestXLSXSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.xlsx")
	s, err := New(FormatXLSX, path)
	if err != nil {
		t.Fatal(err)
	}
	for _, o := range outcomes() {
		if err := s.Write(o); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer func() { _ = f.Close() }()

	rows, err := f.GetRows(sheetName)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 4 {
		t.Fatalf("expected header + 3 rows, got %d", len(rows))
	}
	if rows[0][0] != "number" || rows[1][9] != "СТОЛ РАЗДВИЖНОЙ" {
		t.Errorf("unexpected content: %v / %v", rows[0], rows[1])
	}
	if rows[3][0] != "2005335" {
		t.Errorf("expected failed row number, got %v", rows[3])
	}
}

func TestClampCell(t *testing.T) {
	long := strings.Repeat("я", excelize.TotalCellChars+10)
	if got := []rune(clampCell(long)); len(got) != excelize.TotalCellChars {
		t.Errorf("expected clamp to %d runes, got %d", excelize.TotalCellChars, len(got))
	}
	if clampCell("short") != "short" {
		t.Error("expected short value unchanged")
	}
}

func TestNew_UnknownFormat(t *testing.T) {
	if _, err := New("parquet", filepath.Join(t.TempDir(), "x")); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestNew_BadPath(t *testing.T) {
	_, err := New(FormatCSV, filepath.Join(t.TempDir(), "missing", "data.csv"))
	var pathErr *os.PathError
	if !errors.As(err, &pathErr) {
		t.Errorf("expected path error, got %v", err)
	}
}

func TestFormatFromPath(t *testing.T) {
	tests := map[string]string{
		"out.xlsx":  FormatXLSX,
		"OUT.JSONL": FormatJSONL,
		"a.ndjson":  FormatJSONL,
		"data.csv":  FormatCSV,
		"data":      FormatCSV,
	}
	for path, want := range tests {
		if got := FormatFromPath(path, FormatCSV); got != want {
			t.Errorf("FormatFromPath(%q) = %q, want %q", path, got, want)
		}
	}
}
