// Package analyzer computes per-column summary statistics and prepares
// chart-ready series from a dataset. It never mutates its input.
package analyzer

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/okulov/selftrack/internal/dataset"
)

// ChartKind is the closed set of supported chart types. User-supplied kind
// strings are validated at the API boundary via ParseChartKind before they
// reach SeriesForChart.
type ChartKind string

const (
	ChartLine      ChartKind = "line"
	ChartBar       ChartKind = "bar"
	ChartScatter   ChartKind = "scatter"
	ChartHistogram ChartKind = "histogram"
	ChartBox       ChartKind = "box"
)

// ParseChartKind validates a chart kind name.
func ParseChartKind(s string) (ChartKind, error) {
	switch ChartKind(strings.ToLower(strings.TrimSpace(s))) {
	case ChartLine:
		return ChartLine, nil
	case ChartBar:
		return ChartBar, nil
	case ChartScatter:
		return ChartScatter, nil
	case ChartHistogram:
		return ChartHistogram, nil
	case ChartBox:
		return ChartBox, nil
	default:
		return "", fmt.Errorf("unsupported chart kind %q", s)
	}
}

// NumericStats holds statistics over a numeric column's non-missing values.
type NumericStats struct {
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
	Mean float64 `json:"mean"`
	Std  float64 `json:"std"` // sample standard deviation; 0 for a single value
}

// ColumnSummary profiles one column.
type ColumnSummary struct {
	Name       string        `json:"name"`
	Kind       dataset.Kind  `json:"kind"`
	Count      int           `json:"count"`   // non-missing cells
	Missing    int           `json:"missing"` // missing cells
	MissingPct float64       `json:"missing_pct"`
	Numeric    *NumericStats `json:"numeric,omitempty"` // nil for non-numeric columns
}

// Summary profiles a whole dataset.
type Summary struct {
	Rows    int             `json:"rows"`
	Cols    int             `json:"cols"`
	Columns []ColumnSummary `json:"columns"`
}

// Summarize computes the per-column profile: count, missing count and
// percentage, and min/max/mean/std for numeric columns.
func Summarize(d *dataset.Dataset) Summary {
	s := Summary{
		Rows:    d.NumRows(),
		Cols:    len(d.Columns),
		Columns: make([]ColumnSummary, len(d.Columns)),
	}

	for idx, name := range d.Columns {
		col := ColumnSummary{Name: name, Kind: d.ColumnKind(idx)}
		var nums []float64
		for _, row := range d.Rows {
			v := row[idx]
			if v.IsMissing() {
				col.Missing++
				continue
			}
			col.Count++
			if v.Kind() == dataset.KindNumber {
				nums = append(nums, v.Num())
			}
		}
		if d.NumRows() > 0 {
			col.MissingPct = 100 * float64(col.Missing) / float64(d.NumRows())
		}
		if col.Kind == dataset.KindNumber && len(nums) > 0 {
			col.Numeric = numericStats(nums)
		}
		s.Columns[idx] = col
	}
	return s
}

func numericStats(nums []float64) *NumericStats {
	stats := &NumericStats{Min: nums[0], Max: nums[0]}
	sum := 0.0
	for _, n := range nums {
		sum += n
		if n < stats.Min {
			stats.Min = n
		}
		if n > stats.Max {
			stats.Max = n
		}
	}
	stats.Mean = sum / float64(len(nums))

	if len(nums) > 1 {
		ss := 0.0
		for _, n := range nums {
			d := n - stats.Mean
			ss += d * d
		}
		stats.Std = math.Sqrt(ss / float64(len(nums)-1))
	}
	return stats
}

// Point is one chart vertex: an x value of any kind and a numeric y.
type Point struct {
	X dataset.Value `json:"x"`
	Y float64       `json:"y"`
}

// Bin is one histogram bucket over [Start, End).
type Bin struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Count int     `json:"count"`
}

// BoxStats is the five-number summary rendered as a box plot.
type BoxStats struct {
	Min    float64 `json:"min"`
	Q1     float64 `json:"q1"`
	Median float64 `json:"median"`
	Q3     float64 `json:"q3"`
	Max    float64 `json:"max"`
}

// Series is chart-ready data for one x/y pairing. Exactly one of Points,
// Bins, or Box is populated depending on the kind.
type Series struct {
	Kind   ChartKind `json:"kind"`
	XLabel string    `json:"x_label"`
	YLabel string    `json:"y_label"`
	Points []Point   `json:"points,omitempty"`
	Bins   []Bin     `json:"bins,omitempty"`
	Box    *BoxStats `json:"box,omitempty"`
}

const histogramBins = 10

// SeriesForChart prepares the series for one chart:
//
//   - line, scatter: raw (x, y) pairs in row order
//   - bar: y grouped by x, one point per group with the group mean,
//     groups ordered by first appearance
//   - histogram: y bucketed into equal-width bins
//   - box: five-number summary of y
//
// Returns ErrColumnNotFound for an unknown column, and ErrTypeMismatch when
// a numeric-only kind (scatter, histogram, box) is asked for a non-numeric
// y column. For line and bar, rows whose y cell is not a number are skipped.
func SeriesForChart(d *dataset.Dataset, xCol, yCol string, kind ChartKind) (*Series, error) {
	xIdx, err := d.ColumnIndex(xCol)
	if err != nil {
		return nil, err
	}
	yIdx, err := d.ColumnIndex(yCol)
	if err != nil {
		return nil, err
	}

	switch kind {
	case ChartScatter, ChartHistogram, ChartBox:
		if got := d.ColumnKind(yIdx); got != dataset.KindNumber {
			return nil, fmt.Errorf("%w: %s chart needs a numeric y column, %q is %s",
				dataset.ErrTypeMismatch, kind, yCol, got)
		}
	}

	series := &Series{Kind: kind, XLabel: xCol, YLabel: yCol}

	switch kind {
	case ChartLine, ChartScatter:
		for _, row := range d.Rows {
			y := row[yIdx]
			if y.Kind() != dataset.KindNumber {
				continue
			}
			series.Points = append(series.Points, Point{X: row[xIdx], Y: y.Num()})
		}

	case ChartBar:
		series.Points = groupMeans(d, xIdx, yIdx)

	case ChartHistogram:
		series.Bins = histogram(column(d, yIdx), histogramBins)

	case ChartBox:
		series.Box = boxStats(column(d, yIdx))
	}

	return series, nil
}

// groupMeans groups y by the x cell and averages each group, keeping groups
// in order of first appearance.
func groupMeans(d *dataset.Dataset, xIdx, yIdx int) []Point {
	type group struct {
		label dataset.Value
		sum   float64
		n     int
	}
	byKey := make(map[string]*group)
	var order []string

	for _, row := range d.Rows {
		y := row[yIdx]
		if y.Kind() != dataset.KindNumber {
			continue
		}
		key := row[xIdx].Key()
		g, ok := byKey[key]
		if !ok {
			g = &group{label: row[xIdx]}
			byKey[key] = g
			order = append(order, key)
		}
		g.sum += y.Num()
		g.n++
	}

	points := make([]Point, 0, len(order))
	for _, key := range order {
		g := byKey[key]
		points = append(points, Point{X: g.label, Y: g.sum / float64(g.n)})
	}
	return points
}

// column extracts the non-missing numeric values of a column.
func column(d *dataset.Dataset, idx int) []float64 {
	var nums []float64
	for _, row := range d.Rows {
		if v := row[idx]; v.Kind() == dataset.KindNumber {
			nums = append(nums, v.Num())
		}
	}
	return nums
}

func histogram(nums []float64, bins int) []Bin {
	if len(nums) == 0 {
		return nil
	}
	lo, hi := nums[0], nums[0]
	for _, n := range nums {
		if n < lo {
			lo = n
		}
		if n > hi {
			hi = n
		}
	}
	if lo == hi {
		return []Bin{{Start: lo, End: hi, Count: len(nums)}}
	}

	width := (hi - lo) / float64(bins)
	out := make([]Bin, bins)
	for i := range out {
		out[i] = Bin{Start: lo + float64(i)*width, End: lo + float64(i+1)*width}
	}
	for _, n := range nums {
		i := int((n - lo) / width)
		if i >= bins { // hi lands in the last bin
			i = bins - 1
		}
		out[i].Count++
	}
	return out
}

func boxStats(nums []float64) *BoxStats {
	if len(nums) == 0 {
		return nil
	}
	sorted := append([]float64(nil), nums...)
	sort.Float64s(sorted)

	n := len(sorted)
	stats := &BoxStats{
		Min:    sorted[0],
		Max:    sorted[n-1],
		Median: median(sorted),
	}
	// Quartiles as medians of the lower and upper halves, median excluded
	// for odd counts.
	half := n / 2
	if half > 0 {
		stats.Q1 = median(sorted[:half])
		stats.Q3 = median(sorted[n-half:])
	} else {
		stats.Q1, stats.Q3 = stats.Median, stats.Median
	}
	return stats
}

func median(sorted []float64) float64 {
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}
