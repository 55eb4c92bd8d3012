// Package skills maintains per-skill current/target levels with a recorded
// history, and produces radar-chart coordinates and trend series.
package skills

import (
	"errors"
	"fmt"
	"time"

	"github.com/okulov/selftrack/internal/metrics"
)

// Levels are bounded to the 0–10 scale the radar chart renders.
const (
	MinLevel = 0.0
	MaxLevel = 10.0
)

// ErrLevelOutOfRange is returned for a level outside [MinLevel, MaxLevel].
var ErrLevelOutOfRange = errors.New("level out of range")

// HistoryPoint is one recorded level.
type HistoryPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Level     float64   `json:"level"`
}

// Skill tracks one ability. CurrentLevel always equals the most recent
// history point's level; RecordLevel maintains that invariant.
type Skill struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	Category     string         `json:"category"`
	CurrentLevel float64        `json:"current_level"`
	TargetLevel  float64        `json:"target_level"`
	History      []HistoryPoint `json:"history"`
}

// New creates a skill with an initial level recorded at now. Both levels
// must be in range.
func New(id, name, category string, level, target float64, now time.Time) (*Skill, error) {
	if err := checkLevel(level); err != nil {
		return nil, err
	}
	if err := checkLevel(target); err != nil {
		return nil, fmt.Errorf("target %w", ErrLevelOutOfRange)
	}
	s := &Skill{
		ID:          id,
		Name:        name,
		Category:    category,
		TargetLevel: target,
	}
	// RecordLevel cannot fail here; the level was just checked.
	_ = s.RecordLevel(level, now)
	return s, nil
}

// RecordLevel appends a history point and updates the current level.
// On ErrLevelOutOfRange the skill is left unmodified.
func (s *Skill) RecordLevel(level float64, at time.Time) error {
	if err := checkLevel(level); err != nil {
		return err
	}
	s.History = append(s.History, HistoryPoint{Timestamp: at, Level: level})
	s.CurrentLevel = level
	return nil
}

func checkLevel(level float64) error {
	if level < MinLevel || level > MaxLevel {
		return fmt.Errorf("%w: %g not in [%g, %g]", ErrLevelOutOfRange, level, MinLevel, MaxLevel)
	}
	return nil
}

// Progress returns the current level as a percentage of the target.
func (s *Skill) Progress() int {
	return metrics.PercentOf(s.CurrentLevel, s.TargetLevel)
}

// Trend returns the full history as trend points. History is appended
// chronologically by RecordLevel, so a stable sort by timestamp keeps
// insertion order for equal timestamps.
func (s *Skill) Trend() []metrics.TrendPoint {
	points := make([]metrics.TrendPoint, len(s.History))
	for i, h := range s.History {
		points[i] = metrics.TrendPoint{Timestamp: h.Timestamp, Value: h.Level}
	}
	sortStableByTime(points)
	return points
}

func sortStableByTime(points []metrics.TrendPoint) {
	// Insertion sort: histories are short and already chronological, and
	// stability is required for equal timestamps.
	for i := 1; i < len(points); i++ {
		for j := i; j > 0 && points[j].Timestamp.Before(points[j-1].Timestamp); j-- {
			points[j], points[j-1] = points[j-1], points[j]
		}
	}
}

// RadarPoint is one radar-chart polygon vertex.
type RadarPoint struct {
	Name    string  `json:"name"`
	Current float64 `json:"current"`
	Target  float64 `json:"target"`
}

// RadarCoordinates returns one vertex per skill in input order; the chart
// renderer consumes the slice directly as polygon vertices.
func RadarCoordinates(skills []*Skill) []RadarPoint {
	points := make([]RadarPoint, len(skills))
	for i, s := range skills {
		points[i] = RadarPoint{Name: s.Name, Current: s.CurrentLevel, Target: s.TargetLevel}
	}
	return points
}
