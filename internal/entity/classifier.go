// SPDX-License-Identifier: Apache-2.0

package entity

import (
	"github.com/88dreams/SheetGPT-sub005/internal/rules"
)

// Result is the outcome of classifying a field list. Confidence is reported
// even when IsMatch is false so callers can show how close the best guess
// came.
type Result struct {
	IsMatch           bool              `json:"is_match"`
	EntityType        string            `json:"entity_type,omitempty"`
	Confidence        float64           `json:"confidence"`
	SuggestedFieldMap map[string]string `json:"suggested_field_map,omitempty"`
}

// Score is one entity type's standing for a field list.
type Score struct {
	EntityType string `json:"entity_type"`
	// Eligible is false when a required field had no match; such types
	// score zero.
	Eligible bool `json:"eligible"`
	// Matches counts fields that hit at least one key field.
	Matches    int               `json:"matches"`
	Confidence float64           `json:"confidence"`
	FieldMap   map[string]string `json:"field_map,omitempty"`
}

// Classifier scores field lists against the configured entity signatures.
// It is immutable and safe for concurrent use.
type Classifier struct {
	rules rules.Rules
}

func NewClassifier(r rules.Rules) *Classifier {
	return &Classifier{rules: r}
}

// Classify returns the best-scoring entity type. Ties go to the type
// declared first in the rules.
func (c *Classifier) Classify(fields []string) Result {
	if len(fields) == 0 {
		return Result{}
	}

	var best *Score
	for _, s := range c.Scores(fields) {
		if !s.Eligible {
			continue
		}
		if best == nil || s.Confidence > best.Confidence {
			best = &s
		}
	}
	if best == nil {
		return Result{}
	}

	if best.Confidence > c.rules.Threshold {
		return Result{
			IsMatch:           true,
			EntityType:        best.EntityType,
			Confidence:        best.Confidence,
			SuggestedFieldMap: best.FieldMap,
		}
	}
	return Result{Confidence: best.Confidence}
}

// Scores evaluates every entity type in declaration order.
func (c *Classifier) Scores(fields []string) []Score {
	normalized := make([]string, len(fields))
	for i, f := range fields {
		normalized[i] = normalizeName(f)
	}

	scores := make([]Score, 0, len(c.rules.Entities))
	for _, e := range c.rules.Entities {
		scores = append(scores, score(e, fields, normalized))
	}
	return scores
}

func score(e rules.Entity, fields, normalized []string) Score {
	s := Score{EntityType: e.Type}
	for _, req := range e.RequiredFields {
		if _, ok := FindBestMatchingField(req, fields); !ok {
			return s
		}
	}
	s.Eligible = true
	if len(fields) == 0 {
		return s
	}

	prefix := normalizeName(e.Type)
	keys := make([]string, len(e.KeyFields))
	for i, k := range e.KeyFields {
		keys[i] = normalizeName(k)
	}

	fieldMap := make(map[string]string)
	for i, f := range normalized {
		for j, k := range keys {
			if keyMatches(f, k, prefix) {
				s.Matches++
				fieldMap[fields[i]] = e.KeyFields[j]
				break
			}
		}
	}

	s.Confidence = clamp(float64(s.Matches)/float64(len(fields))*e.Weight, 0, 1)
	if len(fieldMap) > 0 {
		s.FieldMap = fieldMap
	}
	return s
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
