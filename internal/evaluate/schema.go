package evaluate

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/jinwoohan/appgrader/internal/errs"
	"github.com/jinwoohan/appgrader/internal/llm"
	"github.com/jinwoohan/appgrader/internal/store"
)

var gradeValues = []string{"S", "A", "B", "C", "D"}

// gradePoints maps letter grades to their numeric values for weighting.
var gradePoints = map[string]float64{"S": 5, "A": 4, "B": 3, "C": 2, "D": 1}

// responseSchema builds the validation schema for a criteria set: every
// criterion id must appear under grades with a valid letter grade and a
// rationale.
func responseSchema(criteria []*store.Criterion) *gojsonschema.Schema {
	required := make([]string, len(criteria))
	properties := make(map[string]any, len(criteria))
	for i, c := range criteria {
		id := strconv.FormatInt(c.ID, 10)
		required[i] = id
		properties[id] = map[string]any{
			"type":     "object",
			"required": []string{"grade", "rationale"},
			"properties": map[string]any{
				"grade":      map[string]any{"type": "string", "enum": gradeValues},
				"rationale":  map[string]any{"type": "string", "minLength": 1},
				"confidence": map[string]any{"type": "number"},
			},
		}
	}

	doc := map[string]any{
		"type":     "object",
		"required": []string{"grades"},
		"properties": map[string]any{
			"grades": map[string]any{
				"type":       "object",
				"required":   required,
				"properties": properties,
			},
			"overall_grade": map[string]any{"type": "string"},
			"summary":       map[string]any{"type": "string"},
		},
	}

	schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(doc))
	if err != nil {
		// The schema document is built from our own structures; a failure
		// here is a programming error.
		panic(fmt.Sprintf("building response schema: %v", err))
	}
	return schema
}

type gradedResponse struct {
	Grades map[string]struct {
		Grade      string  `json:"grade"`
		Rationale  string  `json:"rationale"`
		Confidence float64 `json:"confidence"`
	} `json:"grades"`
	OverallGrade string `json:"overall_grade"`
	Summary      string `json:"summary"`
}

// decodeResponse extracts and validates the JSON object in the raw model
// output. Returns a SchemaError retaining the raw text on any failure.
func decodeResponse(raw string, schema *gojsonschema.Schema, criteria []*store.Criterion) (*gradedResponse, error) {
	text := llm.ExtractJSON(raw)
	if text == "" {
		return nil, &errs.SchemaError{Reason: "no JSON object in response", Raw: raw}
	}

	result, err := schema.Validate(gojsonschema.NewStringLoader(text))
	if err != nil {
		return nil, &errs.SchemaError{Reason: err.Error(), Raw: raw}
	}
	if !result.Valid() {
		var reasons []string
		for _, e := range result.Errors() {
			reasons = append(reasons, e.String())
		}
		return nil, &errs.SchemaError{Reason: strings.Join(reasons, "; "), Raw: raw}
	}

	var parsed gradedResponse
	if err := json.Unmarshal([]byte(text), &parsed); err != nil {
		return nil, &errs.SchemaError{Reason: err.Error(), Raw: raw}
	}
	return &parsed, nil
}

// criterionGrades orders the response's per-criterion grades by the
// criteria's display order.
func criterionGrades(parsed *gradedResponse, criteria []*store.Criterion) []store.CriterionGrade {
	grades := make([]store.CriterionGrade, 0, len(criteria))
	for _, c := range criteria {
		g := parsed.Grades[strconv.FormatInt(c.ID, 10)]
		grades = append(grades, store.CriterionGrade{
			CriterionID: c.ID,
			Name:        c.Name,
			Grade:       g.Grade,
			Rationale:   g.Rationale,
			Confidence:  g.Confidence,
		})
	}
	return grades
}

// overallGrade derives the overall letter. A valid remote overall is
// authoritative; otherwise the weighted average of per-criterion grades
// is banded back to the nearest letter.
func overallGrade(parsed *gradedResponse, criteria []*store.Criterion) (string, bool) {
	remote := strings.ToUpper(strings.TrimSpace(parsed.OverallGrade))
	if _, ok := gradePoints[remote]; ok {
		return remote, true
	}

	totalWeight := 0.0
	sum := 0.0
	for _, c := range criteria {
		g := parsed.Grades[strconv.FormatInt(c.ID, 10)]
		points, ok := gradePoints[g.Grade]
		if !ok {
			continue
		}
		sum += points * c.Weight
		totalWeight += c.Weight
	}
	if totalWeight == 0 {
		return "D", false
	}
	return bandGrade(sum / totalWeight), false
}

func bandGrade(avg float64) string {
	switch {
	case avg >= 4.5:
		return "S"
	case avg >= 3.5:
		return "A"
	case avg >= 2.5:
		return "B"
	case avg >= 1.5:
		return "C"
	default:
		return "D"
	}
}
