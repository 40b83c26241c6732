package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
)

// utf8BOM lets spreadsheet tools detect the encoding of teacher names.
const utf8BOM = "\ufeff"

// Dataset is a grid keyed by column header. Cells missing from a row are
// written empty.
type Dataset struct {
	Headers []string
	Rows    []map[string]string
}

// CSVOption customises a CSVExporter.
type CSVOption func(*CSVExporter)

// WithBOM prefixes the output with a UTF-8 byte order mark.
func WithBOM() CSVOption {
	return func(e *CSVExporter) { e.bom = true }
}

// WithComma switches the field delimiter, e.g. ';' for locales that use a
// decimal comma.
func WithComma(r rune) CSVOption {
	return func(e *CSVExporter) { e.comma = r }
}

// CSVExporter writes Dataset grids as CSV.
type CSVExporter struct {
	bom   bool
	comma rune
}

// NewCSVExporter builds a CSV exporter.
func NewCSVExporter(opts ...CSVOption) *CSVExporter {
	e := &CSVExporter{comma: ','}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Render returns the dataset as CSV bytes.
func (e *CSVExporter) Render(data Dataset) ([]byte, error) {
	var buf bytes.Buffer
	if err := e.Write(&buf, data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Write streams the dataset to w, header row first.
func (e *CSVExporter) Write(w io.Writer, data Dataset) error {
	if err := checkHeaders(data.Headers); err != nil {
		return err
	}
	if e.bom {
		if _, err := io.WriteString(w, utf8BOM); err != nil {
			return fmt.Errorf("write csv bom: %w", err)
		}
	}

	writer := csv.NewWriter(w)
	writer.Comma = e.comma
	if err := writer.Write(data.Headers); err != nil {
		return fmt.Errorf("write csv headers: %w", err)
	}
	record := make([]string, len(data.Headers))
	for n, row := range data.Rows {
		for i, header := range data.Headers {
			record[i] = row[header]
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("write csv row %d: %w", n, err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

func checkHeaders(headers []string) error {
	if len(headers) == 0 {
		return fmt.Errorf("csv requires at least one header")
	}
	seen := make(map[string]struct{}, len(headers))
	for _, h := range headers {
		key := strings.ToLower(strings.TrimSpace(h))
		if key == "" {
			return fmt.Errorf("csv header cannot be blank")
		}
		if _, dup := seen[key]; dup {
			return fmt.Errorf("duplicate csv header %q", h)
		}
		seen[key] = struct{}{}
	}
	return nil
}
