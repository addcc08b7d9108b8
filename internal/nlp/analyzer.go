// Package nlp finds personal data entities in free text.
package nlp

import (
	"context"
	"errors"
	"sort"
)

// ErrUnsupportedLanguage is returned for languages an analyzer has no model for.
var ErrUnsupportedLanguage = errors.New("unsupported language")

// Analyzer recognizes named entities in text.
type Analyzer interface {
	// Warmup loads models or checks connectivity. Safe to call repeatedly.
	Warmup(ctx context.Context) error
	Analyze(ctx context.Context, req AnalyzeRequest) ([]Result, error)
}

// AnalyzeRequest is one analysis call.
type AnalyzeRequest struct {
	Text           string
	Language       string
	ScoreThreshold float64
	// Entities restricts the entity types returned. Empty means all.
	Entities []string
	// ContextWords maps entity type to words that raise a nearby match's score.
	ContextWords map[string][]string
}

// Result is one recognized entity. Start and End are byte offsets into the
// analyzed text.
type Result struct {
	EntityType string
	Start      int
	End        int
	Score      float64
}

func sortResults(results []Result) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Start != results[j].Start {
			return results[i].Start < results[j].Start
		}
		if results[i].End != results[j].End {
			return results[i].End < results[j].End
		}
		return results[i].EntityType < results[j].EntityType
	})
}

// removeContained drops results wholly inside another result of the same
// entity type with an equal or higher score.
func removeContained(results []Result) []Result {
	out := results[:0:0]
	for i, r := range results {
		keep := true
		for j, other := range results {
			if i == j || other.EntityType != r.EntityType {
				continue
			}
			inside := other.Start <= r.Start && r.End <= other.End
			same := other.Start == r.Start && other.End == r.End
			if inside && other.Score >= r.Score && (!same || j < i) {
				keep = false
				break
			}
		}
		if keep {
			out = append(out, r)
		}
	}
	return out
}
