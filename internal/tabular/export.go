package tabular

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/okulov/selftrack/internal/dataset"
)

const exportSheet = "Sheet1"

// Export encodes the dataset in the given format with a header row (csv,
// xlsx) or as an array of row objects (json). Row and column order are
// preserved; missing cells encode as empty (csv, xlsx) or null (json).
func Export(d *dataset.Dataset, format Format) ([]byte, error) {
	switch format {
	case FormatCSV:
		return exportCSV(d)
	case FormatXLSX:
		return exportXLSX(d)
	case FormatJSON:
		return exportJSON(d)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

func exportCSV(d *dataset.Dataset) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(d.Columns); err != nil {
		return nil, fmt.Errorf("writing header: %w", err)
	}
	record := make([]string, len(d.Columns))
	for _, row := range d.Rows {
		for i, v := range row {
			record[i] = v.String()
		}
		if err := w.Write(record); err != nil {
			return nil, fmt.Errorf("writing row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flushing csv: %w", err)
	}
	return buf.Bytes(), nil
}

func exportXLSX(d *dataset.Dataset) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	for i, col := range d.Columns {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return nil, fmt.Errorf("header cell %d: %w", i, err)
		}
		if err := f.SetCellValue(exportSheet, cell, col); err != nil {
			return nil, fmt.Errorf("writing header %q: %w", col, err)
		}
	}

	for r, row := range d.Rows {
		for c, v := range row {
			if v.IsMissing() {
				continue
			}
			cell, err := excelize.CoordinatesToCellName(c+1, r+2)
			if err != nil {
				return nil, fmt.Errorf("cell (%d,%d): %w", r, c, err)
			}
			var payload any
			switch v.Kind() {
			case dataset.KindNumber:
				payload = v.Num()
			case dataset.KindBool:
				payload = v.Bool()
			default:
				payload = v.Text()
			}
			if err := f.SetCellValue(exportSheet, cell, payload); err != nil {
				return nil, fmt.Errorf("writing cell (%d,%d): %w", r, c, err)
			}
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("encoding workbook: %w", err)
	}
	return buf.Bytes(), nil
}

// exportJSON writes rows as objects by hand so keys keep column order;
// encoding/json randomizes map iteration.
func exportJSON(d *dataset.Dataset) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for r, row := range d.Rows {
		if r > 0 {
			buf.WriteByte(',')
		}
		buf.WriteByte('{')
		for i, col := range d.Columns {
			if i > 0 {
				buf.WriteByte(',')
			}
			key, err := json.Marshal(col)
			if err != nil {
				return nil, fmt.Errorf("encoding column name %q: %w", col, err)
			}
			val, err := row[i].MarshalJSON()
			if err != nil {
				return nil, fmt.Errorf("encoding cell (%d,%d): %w", r, i, err)
			}
			buf.Write(key)
			buf.WriteByte(':')
			buf.Write(val)
		}
		buf.WriteByte('}')
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}
