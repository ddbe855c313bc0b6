// Package classify assigns technology categories to application records by
// weighted keyword scoring. It is a pure function of the record and the
// category reference data; no external calls.
package classify

import (
	"sort"
	"strings"

	"github.com/jinwoohan/appgrader/internal/store"
)

// Match is one assigned category with its score.
type Match struct {
	Name  string
	Score float64
}

// Classify scores every active category against the record's concatenated
// text and returns those above minScore, ordered by descending score with
// ties broken by display order. The first entry is the primary category.
func Classify(app *store.Application, categories []*store.Category, minScore float64) []Match {
	text := strings.ToLower(recordText(app))
	if text == "" {
		return nil
	}

	type scored struct {
		Match
		order int
	}
	var hits []scored
	for _, cat := range categories {
		score := 0.0
		for _, kw := range cat.Keywords {
			if kw.Text == "" {
				continue
			}
			if strings.Contains(text, strings.ToLower(kw.Text)) {
				score += kw.Weight
			}
		}
		if score > minScore {
			hits = append(hits, scored{Match{Name: cat.Name, Score: score}, cat.DisplayOrder})
		}
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].order < hits[j].order
	})

	matches := make([]Match, len(hits))
	for i, h := range hits {
		matches[i] = h.Match
	}
	return matches
}

// recordText concatenates every free-text field the classifier looks at.
func recordText(app *store.Application) string {
	var parts []string
	for _, p := range []*string{
		app.Subject, app.CurrentWork, app.PainPoint,
		app.ImprovementIdea, app.ExpectedEffect, app.DataReadiness,
	} {
		if p != nil {
			parts = append(parts, *p)
		}
	}
	for _, s := range app.Skills {
		parts = append(parts, s.Field, s.Skill)
	}
	return strings.Join(parts, "\n")
}
