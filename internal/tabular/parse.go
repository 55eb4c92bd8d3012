// Package tabular converts uploaded file bytes into a dataset.Dataset and
// encodes datasets back into CSV, XLSX, or JSON for export. It is the only
// package that touches file formats; everything past it works on Datasets.
package tabular

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/okulov/selftrack/internal/dataset"
)

// ErrParse is returned when an uploaded file cannot be read as the declared
// format. No partial dataset is ever produced.
var ErrParse = errors.New("parse error")

// ErrUnsupportedFormat is returned for a format name outside the supported set.
var ErrUnsupportedFormat = errors.New("unsupported format")

// Format identifies a tabular file encoding.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
	FormatJSON Format = "json"
)

// ParseUploadFormat validates a declared upload format (csv or xlsx).
func ParseUploadFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case FormatCSV:
		return FormatCSV, nil
	case FormatXLSX:
		return FormatXLSX, nil
	default:
		return "", fmt.Errorf("%w: %q (want csv or xlsx)", ErrUnsupportedFormat, s)
	}
}

// ParseExportFormat validates an export format (csv, xlsx, or json).
func ParseExportFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case FormatCSV:
		return FormatCSV, nil
	case FormatXLSX:
		return FormatXLSX, nil
	case FormatJSON:
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("%w: %q (want csv, xlsx, or json)", ErrUnsupportedFormat, s)
	}
}

// Parse reads file bytes in the declared format into a Dataset. The first
// row is the header; cell values are classified as number, boolean, text,
// or missing (empty cell).
func Parse(data []byte, format Format) (*dataset.Dataset, error) {
	switch format {
	case FormatCSV:
		return parseCSV(data)
	case FormatXLSX:
		return parseXLSX(data)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

func parseCSV(data []byte) (*dataset.Dataset, error) {
	reader := csv.NewReader(bytes.NewReader(data))

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: file has no header row", ErrParse)
	}
	return fromRecords(records)
}

func parseXLSX(data []byte) (*dataset.Dataset, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("%w: workbook has no sheets", ErrParse)
	}

	records, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: sheet %q has no header row", ErrParse, sheets[0])
	}
	return fromRecords(records)
}

// fromRecords builds a Dataset from a header row plus data rows.
func fromRecords(records [][]string) (*dataset.Dataset, error) {
	headers := records[0]
	seen := make(map[string]bool, len(headers))
	columns := make([]string, len(headers))
	for i, h := range headers {
		name := strings.TrimSpace(h)
		if name == "" {
			return nil, fmt.Errorf("%w: column %d has an empty name", ErrParse, i+1)
		}
		if seen[name] {
			return nil, fmt.Errorf("%w: duplicate column %q", ErrParse, name)
		}
		seen[name] = true
		columns[i] = name
	}

	d := dataset.New(columns...)
	for _, record := range records[1:] {
		cells := make([]dataset.Value, len(columns))
		for i := range columns {
			raw := ""
			if i < len(record) {
				raw = record[i]
			}
			cells[i] = classify(raw)
		}
		d.Rows = append(d.Rows, cells)
	}
	return d, nil
}

// classify infers the variant of a raw cell: empty is missing, then number,
// then boolean, then text.
func classify(raw string) dataset.Value {
	s := strings.TrimSpace(raw)
	if s == "" {
		return dataset.Missing()
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return dataset.Number(f)
	}
	switch strings.ToLower(s) {
	case "true":
		return dataset.Bool(true)
	case "false":
		return dataset.Bool(false)
	}
	return dataset.Text(raw)
}
