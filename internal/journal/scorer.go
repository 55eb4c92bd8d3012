// Package journal scores free-text reflection entries against growth- and
// fixed-mindset keyword lexicons. Scoring is lexical phrase counting, not a
// language model.
package journal

import (
	"sort"
	"strings"
	"time"

	"github.com/okulov/selftrack/internal/metrics"
)

// growthLexicon holds phrases associated with a growth mindset.
var growthLexicon = []string{
	"learn from",
	"learning",
	"challenge",
	"effort",
	"improve",
	"improving",
	"practice",
	"progress",
	"growth",
	"feedback",
	"keep trying",
	"try again",
	"not yet",
	"mistake",
	"persist",
	"develop",
}

// fixedLexicon holds phrases associated with a fixed mindset.
var fixedLexicon = []string{
	"can't",
	"cannot",
	"never good at",
	"always bad at",
	"natural talent",
	"born with",
	"give up",
	"gave up",
	"giving up",
	"impossible",
	"not smart enough",
	"no point",
	"hopeless",
	"too hard",
}

// scanPhrases is the union of both lexicons ordered longest first, so one
// left-to-right scan always prefers the longest match at a position and a
// consumed span is never counted twice ("never good at" wins over any
// shorter phrase inside it).
var scanPhrases = buildScanOrder()

type phrase struct {
	text   string
	growth bool
}

func buildScanOrder() []phrase {
	var all []phrase
	for _, p := range growthLexicon {
		all = append(all, phrase{text: p, growth: true})
	}
	for _, p := range fixedLexicon {
		all = append(all, phrase{text: p})
	}
	sort.SliceStable(all, func(i, j int) bool {
		return len(all[i].text) > len(all[j].text)
	})
	return all
}

// Score is the lexicon tally of one reflection text.
type Score struct {
	Growth int `json:"growth_score"`
	Fixed  int `json:"fixed_score"`
	Net    int `json:"net_score"` // Growth - Fixed
}

// ScoreText counts case-insensitive lexicon phrase occurrences with a
// single non-overlapping left-to-right scan. Matches must fall on word
// boundaries. Empty text scores zero everywhere.
func ScoreText(text string) Score {
	var s Score
	lower := strings.ToLower(text)

scan:
	for i := 0; i < len(lower); {
		if i > 0 && isWordByte(lower[i-1]) {
			i++
			continue
		}
		for _, p := range scanPhrases {
			end := i + len(p.text)
			if end > len(lower) || lower[i:end] != p.text {
				continue
			}
			if end < len(lower) && isWordByte(lower[end]) {
				continue
			}
			if p.growth {
				s.Growth++
			} else {
				s.Fixed++
			}
			i = end
			continue scan
		}
		i++
	}

	s.Net = s.Growth - s.Fixed
	return s
}

func isWordByte(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9'
}

// Entry is a journal reflection with its score, computed when the entry is
// created or edited.
type Entry struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Text      string    `json:"text"`
	Score     Score     `json:"score"`
}

// Trend returns one (timestamp, net score) point per entry, sorted by
// timestamp ascending with ties broken by entry id so ordering is
// deterministic.
func Trend(entries []Entry) []metrics.TrendPoint {
	sorted := append([]Entry(nil), entries...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].CreatedAt.Equal(sorted[j].CreatedAt) {
			return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
		}
		return sorted[i].ID < sorted[j].ID
	})

	points := make([]metrics.TrendPoint, len(sorted))
	for i, e := range sorted {
		points[i] = metrics.TrendPoint{
			Timestamp: e.CreatedAt,
			Value:     float64(e.Score.Net),
		}
	}
	return points
}
