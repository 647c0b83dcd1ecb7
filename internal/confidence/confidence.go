// Package confidence maps a retrieval score distribution to a discrete
// confidence level.
package confidence

import (
	"math"

	"github.com/tinkerthinkerbytes/ico-guidance-navigator-llm/internal/searcher/ranker"
)

// Level is totally ordered: VeryLow < Low < Medium < High.
type Level string

const (
	VeryLow Level = "very_low"
	Low     Level = "low"
	Medium  Level = "medium"
	High    Level = "high"
)

var rank = map[Level]int{VeryLow: 0, Low: 1, Medium: 2, High: 3}

// Less reports whether l is strictly below other.
func (l Level) Less(other Level) bool { return rank[l] < rank[other] }

// Valid reports whether l is one of the four levels.
func (l Level) Valid() bool {
	_, ok := rank[l]
	return ok
}

// Levels returns every level in ascending order.
func Levels() []Level { return []Level{VeryLow, Low, Medium, High} }

// Policy holds the thresholds behind Derive. Every rule only ever promotes,
// so raising any score or adding a qualifying document never lowers the
// level.
type Policy struct {
	// WeakScore is the qualifying threshold; lower scores are ignored.
	WeakScore     float64
	ModerateScore float64
	StrongScore   float64
	// Corroboration is the number of matches that lifts a result one level
	// on its own: that many moderate matches give high, that many
	// qualifying matches give at least medium.
	Corroboration int
}

func DefaultPolicy() Policy {
	return Policy{
		WeakScore:     1.0,
		ModerateScore: 2.0,
		StrongScore:   4.0,
		Corroboration: 3,
	}
}

// Derive assigns a level from a ranked score list. Documents below WeakScore
// do not count, so a list where nothing qualifies is VeryLow.
func (p Policy) Derive(docs []ranker.ScoredDoc) Level {
	var top float64
	var qualifying, moderate int
	for _, d := range docs {
		if d.Score < p.WeakScore {
			continue
		}
		qualifying++
		if d.Score >= p.ModerateScore {
			moderate++
		}
		top = math.Max(top, d.Score)
	}

	corroborated := p.Corroboration > 0
	switch {
	case qualifying == 0:
		return VeryLow
	case top >= p.StrongScore, corroborated && moderate >= p.Corroboration:
		return High
	case top >= p.ModerateScore, corroborated && qualifying >= p.Corroboration:
		return Medium
	default:
		return Low
	}
}
