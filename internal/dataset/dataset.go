// Package dataset holds the tabular data model shared by the cleaner,
// analyzer, and tabular codecs: a Dataset of ordered rows over a fixed
// column set, with tagged-variant cell values.
package dataset

import (
	"errors"
	"fmt"
)

// ErrColumnNotFound is returned when a named column is absent.
var ErrColumnNotFound = errors.New("column not found")

// ErrTypeMismatch is returned when an operation requires a kind the
// column or value does not have.
var ErrTypeMismatch = errors.New("type mismatch")

// Row is one record, aligned index-for-index with the Dataset's columns.
type Row []Value

// Dataset is an ordered sequence of rows sharing one column set.
// Rows always have exactly len(Columns) cells; AppendRow pads short rows
// with missing values, which keeps the uniform-column invariant by
// construction.
type Dataset struct {
	Columns []string
	Rows    []Row
}

// New creates an empty dataset with the given column order.
func New(columns ...string) *Dataset {
	return &Dataset{Columns: append([]string(nil), columns...)}
}

// AppendRow adds a row, padding or truncating to the column count.
func (d *Dataset) AppendRow(cells ...Value) {
	row := make(Row, len(d.Columns))
	for i := range row {
		if i < len(cells) {
			row[i] = cells[i]
		} else {
			row[i] = Missing()
		}
	}
	d.Rows = append(d.Rows, row)
}

// NumRows returns the row count.
func (d *Dataset) NumRows() int { return len(d.Rows) }

// ColumnIndex resolves a column name to its index.
func (d *Dataset) ColumnIndex(name string) (int, error) {
	for i, c := range d.Columns {
		if c == name {
			return i, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrColumnNotFound, name)
}

// Column returns all values of the named column in row order.
func (d *Dataset) Column(name string) ([]Value, error) {
	idx, err := d.ColumnIndex(name)
	if err != nil {
		return nil, err
	}
	vals := make([]Value, len(d.Rows))
	for i, row := range d.Rows {
		vals[i] = row[idx]
	}
	return vals, nil
}

// ColumnKind infers the kind of a column: the single kind shared by all
// non-missing cells, KindMissing when every cell is missing, and KindText
// for mixed columns.
func (d *Dataset) ColumnKind(idx int) Kind {
	kind := KindMissing
	for _, row := range d.Rows {
		v := row[idx]
		if v.IsMissing() {
			continue
		}
		if kind == KindMissing {
			kind = v.Kind()
			continue
		}
		if kind != v.Kind() {
			return KindText
		}
	}
	return kind
}

// Clone deep-copies the dataset.
func (d *Dataset) Clone() *Dataset {
	out := New(d.Columns...)
	out.Rows = make([]Row, len(d.Rows))
	for i, row := range d.Rows {
		out.Rows[i] = append(Row(nil), row...)
	}
	return out
}

// Select projects the dataset onto the named columns, preserving the given
// order. Returns ErrColumnNotFound for unknown names.
func (d *Dataset) Select(columns []string) (*Dataset, error) {
	indexes := make([]int, len(columns))
	for i, name := range columns {
		idx, err := d.ColumnIndex(name)
		if err != nil {
			return nil, err
		}
		indexes[i] = idx
	}
	out := New(columns...)
	for _, row := range d.Rows {
		cells := make([]Value, len(indexes))
		for i, idx := range indexes {
			cells[i] = row[idx]
		}
		out.Rows = append(out.Rows, cells)
	}
	return out, nil
}

// Head returns a copy of the first n rows (all rows when n exceeds the
// row count).
func (d *Dataset) Head(n int) []Row {
	if n > len(d.Rows) {
		n = len(d.Rows)
	}
	out := make([]Row, n)
	for i := 0; i < n; i++ {
		out[i] = append(Row(nil), d.Rows[i]...)
	}
	return out
}

// Equal reports whether two datasets have identical columns and cells.
func (d *Dataset) Equal(o *Dataset) bool {
	if len(d.Columns) != len(o.Columns) || len(d.Rows) != len(o.Rows) {
		return false
	}
	for i := range d.Columns {
		if d.Columns[i] != o.Columns[i] {
			return false
		}
	}
	for i := range d.Rows {
		for j := range d.Rows[i] {
			if !d.Rows[i][j].Equal(o.Rows[i][j]) {
				return false
			}
		}
	}
	return true
}
