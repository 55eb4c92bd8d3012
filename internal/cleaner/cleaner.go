// Package cleaner normalizes an uploaded dataset: column projection, type
// coercion, duplicate removal, and missing-value handling. Cleaning never
// mutates its input; it returns a new dataset plus a report of what changed.
package cleaner

import (
	"fmt"
	"sort"
	"strings"

	"github.com/okulov/selftrack/internal/dataset"
)

// MissingStrategy selects how missing cells are handled.
type MissingStrategy string

const (
	StrategyNone       MissingStrategy = ""
	StrategyDropRows   MissingStrategy = "drop_rows"
	StrategyFillMean   MissingStrategy = "fill_mean"
	StrategyFillMedian MissingStrategy = "fill_median"
	StrategyFillMode   MissingStrategy = "fill_mode"
	StrategyFillZero   MissingStrategy = "fill_zero"
	StrategyFillCustom MissingStrategy = "fill_custom"
)

// ParseMissingStrategy validates a user-supplied strategy name.
func ParseMissingStrategy(s string) (MissingStrategy, error) {
	switch MissingStrategy(strings.ToLower(strings.TrimSpace(s))) {
	case StrategyNone, StrategyDropRows, StrategyFillMean, StrategyFillMedian,
		StrategyFillMode, StrategyFillZero, StrategyFillCustom:
		return MissingStrategy(strings.ToLower(strings.TrimSpace(s))), nil
	default:
		return "", fmt.Errorf("unknown missing-value strategy %q", s)
	}
}

// Options control a cleaning pass. Every option is independent; the zero
// Options is a no-op clean.
type Options struct {
	RemoveDuplicates bool                    `json:"remove_duplicates"`
	MissingStrategy  MissingStrategy         `json:"missing_strategy"`
	CustomValue      dataset.Value           `json:"custom_value"` // used by fill_custom
	TypeOverrides    map[string]dataset.Kind `json:"type_overrides"`
	KeepColumns      []string                `json:"keep_columns"` // empty keeps all
}

// ColumnIssue records a non-fatal per-column failure: the column was left
// unchanged and cleaning continued.
type ColumnIssue struct {
	Column string `json:"column"`
	Reason string `json:"reason"`
}

// Report summarizes the effects of one cleaning pass.
type Report struct {
	DuplicatesRemoved int           `json:"duplicates_removed"`
	RowsDropped       int           `json:"rows_dropped"`
	CellsFilled       int           `json:"cells_filled"`
	CellsCoerced      int           `json:"cells_coerced"`
	Issues            []ColumnIssue `json:"issues,omitempty"`
}

// Clean applies the options in a fixed order: column projection, type
// coercion, duplicate removal (full-row equality after coercion), then the
// missing-value strategy. Row order is preserved except for dropped rows.
// Per-column type errors are reported in the Report, not returned; only
// boundary errors (unknown column in KeepColumns) abort the pass.
func Clean(d *dataset.Dataset, opts Options) (*dataset.Dataset, Report, error) {
	var report Report

	out := d.Clone()
	if len(opts.KeepColumns) > 0 {
		selected, err := out.Select(opts.KeepColumns)
		if err != nil {
			return nil, Report{}, err
		}
		out = selected
	}

	coerceColumns(out, opts.TypeOverrides, &report)

	if opts.RemoveDuplicates {
		removeDuplicates(out, &report)
	}

	applyMissingStrategy(out, opts, &report)

	return out, report, nil
}

// coerceColumns converts whole columns to their override kind. A column with
// any unconvertible cell is left untouched and reported.
func coerceColumns(d *dataset.Dataset, overrides map[string]dataset.Kind, report *Report) {
	// Walk columns in dataset order so issue order is deterministic.
	for idx, name := range d.Columns {
		target, ok := overrides[name]
		if !ok {
			continue
		}

		coerced := make([]dataset.Value, len(d.Rows))
		changed := 0
		var failure error
		for i, row := range d.Rows {
			v, err := dataset.Coerce(row[idx], target)
			if err != nil {
				failure = err
				break
			}
			if !v.Equal(row[idx]) {
				changed++
			}
			coerced[i] = v
		}
		if failure != nil {
			report.Issues = append(report.Issues, ColumnIssue{Column: name, Reason: failure.Error()})
			continue
		}

		for i := range d.Rows {
			d.Rows[i][idx] = coerced[i]
		}
		report.CellsCoerced += changed
	}
}

func removeDuplicates(d *dataset.Dataset, report *Report) {
	seen := make(map[string]bool, len(d.Rows))
	kept := d.Rows[:0]
	for _, row := range d.Rows {
		var key strings.Builder
		for _, v := range row {
			key.WriteString(v.Key())
			key.WriteByte('\x1f')
		}
		k := key.String()
		if seen[k] {
			report.DuplicatesRemoved++
			continue
		}
		seen[k] = true
		kept = append(kept, row)
	}
	d.Rows = kept
}

func applyMissingStrategy(d *dataset.Dataset, opts Options, report *Report) {
	switch opts.MissingStrategy {
	case StrategyNone:
		return

	case StrategyDropRows:
		kept := d.Rows[:0]
		for _, row := range d.Rows {
			missing := false
			for _, v := range row {
				if v.IsMissing() {
					missing = true
					break
				}
			}
			if missing {
				report.RowsDropped++
				continue
			}
			kept = append(kept, row)
		}
		d.Rows = kept

	case StrategyFillZero:
		fillAll(d, dataset.Number(0), report)

	case StrategyFillCustom:
		fillAll(d, opts.CustomValue, report)

	case StrategyFillMean, StrategyFillMedian:
		for idx, name := range d.Columns {
			if kind := d.ColumnKind(idx); kind != dataset.KindNumber {
				report.Issues = append(report.Issues, ColumnIssue{
					Column: name,
					Reason: fmt.Sprintf("%v: %s requires a numeric column, column is %s", dataset.ErrTypeMismatch, opts.MissingStrategy, kind),
				})
				continue
			}
			fill, ok := numericFill(d, idx, opts.MissingStrategy)
			if !ok {
				continue
			}
			fillColumn(d, idx, dataset.Number(fill), report)
		}

	case StrategyFillMode:
		for idx := range d.Columns {
			if mode, ok := columnMode(d, idx); ok {
				fillColumn(d, idx, mode, report)
			}
		}
	}
}

func fillAll(d *dataset.Dataset, fill dataset.Value, report *Report) {
	for idx := range d.Columns {
		fillColumn(d, idx, fill, report)
	}
}

func fillColumn(d *dataset.Dataset, idx int, fill dataset.Value, report *Report) {
	for i := range d.Rows {
		if d.Rows[i][idx].IsMissing() {
			d.Rows[i][idx] = fill
			report.CellsFilled++
		}
	}
}

// numericFill computes the mean or median of a column's non-missing values.
// Returns false when the column has no values to derive a fill from.
func numericFill(d *dataset.Dataset, idx int, strategy MissingStrategy) (float64, bool) {
	var nums []float64
	for _, row := range d.Rows {
		if v := row[idx]; !v.IsMissing() {
			nums = append(nums, v.Num())
		}
	}
	if len(nums) == 0 {
		return 0, false
	}

	if strategy == StrategyFillMean {
		sum := 0.0
		for _, n := range nums {
			sum += n
		}
		return sum / float64(len(nums)), true
	}

	sort.Float64s(nums)
	mid := len(nums) / 2
	if len(nums)%2 == 1 {
		return nums[mid], true
	}
	return (nums[mid-1] + nums[mid]) / 2, true
}

// columnMode finds the most frequent non-missing value; ties resolve to the
// value seen first in row order.
func columnMode(d *dataset.Dataset, idx int) (dataset.Value, bool) {
	counts := make(map[string]int)
	first := make(map[string]int)
	values := make(map[string]dataset.Value)
	for i, row := range d.Rows {
		v := row[idx]
		if v.IsMissing() {
			continue
		}
		k := v.Key()
		if _, ok := counts[k]; !ok {
			first[k] = i
			values[k] = v
		}
		counts[k]++
	}
	if len(counts) == 0 {
		return dataset.Value{}, false
	}

	bestKey := ""
	for k := range counts {
		if bestKey == "" {
			bestKey = k
			continue
		}
		if counts[k] > counts[bestKey] || (counts[k] == counts[bestKey] && first[k] < first[bestKey]) {
			bestKey = k
		}
	}
	return values[bestKey], true
}
