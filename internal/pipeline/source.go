// Package pipeline orchestrates the import and export jobs: tabular source
// to extracted, mapped, normalized properties, and persisted properties back
// to a delimited shop feed.
package pipeline

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
)

// Row is one source row with header-keyed fields.
type Row struct {
	Index  int
	Fields map[string]string
}

// Get returns the trimmed field value; ok is false when the column is
// absent or blank.
func (r Row) Get(column string) (string, bool) {
	v, present := r.Fields[column]
	v = strings.TrimSpace(v)
	return v, present && v != ""
}

// Table is a fully loaded tabular source.
type Table struct {
	Headers []string
	Rows    []Row
}

// HasColumn reports whether the header row contains the column.
func (t *Table) HasColumn(column string) bool {
	for _, h := range t.Headers {
		if h == column {
			return true
		}
	}
	return false
}

// ReadSource loads a tabular source file. XLSX files are detected by
// extension; everything else is read as a delimited text file in the
// configured encoding.
func ReadSource(path, encodingName, delimiter string) (*Table, error) {
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		return ReadXLSX(path)
	}
	return ReadCSV(path, encodingName, delimiter)
}

// ReadCSV loads a delimited file, transcoding from the configured single
// byte encoding.
func ReadCSV(path, encodingName, delimiter string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open source file: %w", err)
	}
	defer f.Close()

	reader, err := decodingReader(f, encodingName)
	if err != nil {
		return nil, err
	}

	cr := csv.NewReader(reader)
	cr.Comma = rune(delimiter[0])
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("source file is empty: %s", path)
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	table := &Table{Headers: header}
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", len(table.Rows)+2, err)
		}
		table.Rows = append(table.Rows, makeRow(len(table.Rows), header, record))
	}
	return table, nil
}

// ReadXLSX loads the first sheet of an XLSX workbook, treating the first
// row as the header.
func ReadXLSX(path string) (*Table, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open xlsx file: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("xlsx file has no sheets: %s", path)
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheets[0], err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("source file is empty: %s", path)
	}

	header := rows[0]
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}
	table := &Table{Headers: header}
	for _, record := range rows[1:] {
		table.Rows = append(table.Rows, makeRow(len(table.Rows), header, record))
	}
	return table, nil
}

func makeRow(index int, header, record []string) Row {
	fields := make(map[string]string, len(header))
	for i, h := range header {
		if i < len(record) {
			fields[h] = record[i]
		}
	}
	return Row{Index: index, Fields: fields}
}

func lookupCharmap(name string) (*charmap.Charmap, error) {
	switch name {
	case "iso-8859-1":
		return charmap.ISO8859_1, nil
	case "windows-1252":
		return charmap.Windows1252, nil
	default:
		return nil, fmt.Errorf("unsupported encoding: %s", name)
	}
}

func decodingReader(r io.Reader, encodingName string) (io.Reader, error) {
	if encodingName == "utf-8" || encodingName == "" {
		return r, nil
	}
	cm, err := lookupCharmap(encodingName)
	if err != nil {
		return nil, err
	}
	return cm.NewDecoder().Reader(r), nil
}

func encodingWriter(w io.Writer, encodingName string) (io.Writer, error) {
	if encodingName == "utf-8" || encodingName == "" {
		return w, nil
	}
	cm, err := lookupCharmap(encodingName)
	if err != nil {
		return nil, err
	}
	enc := cm.NewEncoder()
	// Characters outside the target charset degrade to replacements instead
	// of failing the whole export.
	enc = encoding.ReplaceUnsupported(enc)
	return enc.Writer(w), nil
}
