package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
)

// Dataset is a table: Headers fix the column order and Rows are keyed by header.
type Dataset struct {
	Headers []string
	Rows    []map[string]string
}

// Validate reports whether the dataset has at least one column.
func (d Dataset) Validate() error {
	if len(d.Headers) == 0 {
		return fmt.Errorf("dataset requires at least one header")
	}
	return nil
}

// Record flattens row i into header order; missing cells become empty strings.
func (d Dataset) Record(i int) []string {
	out := make([]string, len(d.Headers))
	for j, header := range d.Headers {
		out[j] = d.Rows[i][header]
	}
	return out
}

// CSVExporter renders datasets as RFC 4180 CSV.
type CSVExporter struct{}

// NewCSVExporter builds a CSV exporter.
func NewCSVExporter() *CSVExporter {
	return &CSVExporter{}
}

// Render produces CSV bytes, quoting cells that contain separators or quotes.
func (e *CSVExporter) Render(data Dataset) ([]byte, error) {
	if err := data.Validate(); err != nil {
		return nil, err
	}
	buf := &bytes.Buffer{}
	writer := csv.NewWriter(buf)
	if err := writer.Write(data.Headers); err != nil {
		return nil, fmt.Errorf("write csv headers: %w", err)
	}
	for i := range data.Rows {
		if err := writer.Write(data.Record(i)); err != nil {
			return nil, fmt.Errorf("write csv row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}
