// Package metrics holds the progress arithmetic shared by the goal tracker,
// reflection journal, and skill tracker.
package metrics

import (
	"math"
	"time"
)

// Status is the derived state of a tracked goal.
type Status string

const (
	StatusNotStarted Status = "not_started"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

// Percent returns round(100 * done / total), or 0 when total is 0.
func Percent(done, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(100 * float64(done) / float64(total)))
}

// PercentOf returns current as a rounded percentage of target, clamped to
// [0, 100]. Used for skill progress toward a target level.
func PercentOf(current, target float64) int {
	if target <= 0 {
		return 0
	}
	p := int(math.Round(100 * current / target))
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

// StatusFor derives the goal status from its percentage and completed count:
// completed at 100, not_started at zero progress, in_progress otherwise.
func StatusFor(percent, done int) Status {
	switch {
	case percent == 100:
		return StatusCompleted
	case percent == 0 && done == 0:
		return StatusNotStarted
	default:
		return StatusInProgress
	}
}

// TrendPoint is one sample of a metric over time, shared by journal and
// skill trend series.
type TrendPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}
