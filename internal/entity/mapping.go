// SPDX-License-Identifier: Apache-2.0

package entity

import (
	"github.com/88dreams/SheetGPT-sub005/internal/rules"
	"github.com/88dreams/SheetGPT-sub005/internal/table"
)

// FieldMapping maps target fields to the source fields that fill them. It
// is the shape the mapping UI edits; Recommend produces the inverse.
type FieldMapping map[string]string

// MappingFromRecommendation inverts a source→target recommendation.
func MappingFromRecommendation(rec map[string]string) FieldMapping {
	m := make(FieldMapping, len(rec))
	for source, target := range rec {
		m[target] = source
	}
	return m
}

// ApplyMapping builds the payload for one record: every mapped target
// field set to the record's value for its source field. Sources the record
// lacks are skipped.
func ApplyMapping(record table.RowRecord, mapping FieldMapping) map[string]any {
	out := make(map[string]any, len(mapping))
	for target, source := range mapping {
		if source == "" {
			continue
		}
		if v, ok := record.Lookup(source); ok {
			out[target] = v
		}
	}
	return out
}

// MissingRequired lists, in declaration order, the required target fields
// of e that mapping leaves unset.
func MissingRequired(e rules.Entity, mapping FieldMapping) []string {
	var missing []string
	for _, field := range e.RequiredTargets() {
		if mapping[field] == "" {
			missing = append(missing, field)
		}
	}
	return missing
}
