// Package goals derives completion metrics from goal and milestone records.
package goals

import (
	"time"

	"github.com/okulov/selftrack/internal/metrics"
)

// Milestone is an atomic, binary sub-task of a goal.
type Milestone struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	Completed   bool   `json:"completed"`
}

// Goal is a tracked objective with an ordered list of milestones.
type Goal struct {
	ID         string      `json:"id"`
	Title      string      `json:"title"`
	Category   string      `json:"category"`
	TargetDate time.Time   `json:"target_date"`
	Milestones []Milestone `json:"milestones"`
}

// Progress is the derived completion state of one goal.
type Progress struct {
	Percent int            `json:"percent"`
	Status  metrics.Status `json:"status"`
}

// Compute derives the goal's percentage and status from its milestones.
// A goal with no milestones is at 0 percent and not started.
func Compute(g Goal) Progress {
	done := 0
	for _, m := range g.Milestones {
		if m.Completed {
			done++
		}
	}
	percent := metrics.Percent(done, len(g.Milestones))
	return Progress{
		Percent: percent,
		Status:  metrics.StatusFor(percent, done),
	}
}

// CategoryBreakdown maps each category to the unweighted mean completion
// percentage of its goals.
func CategoryBreakdown(goals []Goal) map[string]float64 {
	sums := make(map[string]int)
	counts := make(map[string]int)
	for _, g := range goals {
		sums[g.Category] += Compute(g).Percent
		counts[g.Category]++
	}

	out := make(map[string]float64, len(sums))
	for category, sum := range sums {
		out[category] = float64(sum) / float64(counts[category])
	}
	return out
}
