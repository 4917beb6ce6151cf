// SPDX-License-Identifier: Apache-2.0

// Package entity guesses which sports entity a set of field names describes
// and proposes how those fields map onto the entity's canonical fields.
package entity

import "strings"

var nameReplacer = strings.NewReplacer(" ", "_", "-", "_")

// normalizeName folds a field name to the form all comparisons use:
// lower case, trimmed, with spaces and hyphens as underscores.
func normalizeName(s string) string {
	return nameReplacer.Replace(strings.ToLower(strings.TrimSpace(s)))
}

// FindBestMatchingField picks the candidate that best matches target. An
// exact match (ignoring case, spacing and hyphens) wins. Otherwise the
// shortest candidate that contains target, or is contained by it, is
// returned as the most specific. Ties keep the earlier candidate.
func FindBestMatchingField(target string, candidates []string) (string, bool) {
	want := normalizeName(target)
	if want == "" {
		return "", false
	}

	for _, c := range candidates {
		if normalizeName(c) == want {
			return c, true
		}
	}

	best, found := "", false
	for _, c := range candidates {
		have := normalizeName(c)
		if have == "" {
			continue
		}
		if !strings.Contains(have, want) && !strings.Contains(want, have) {
			continue
		}
		if !found || len(have) < len(normalizeName(best)) {
			best, found = c, true
		}
	}
	return best, found
}

// keyMatches is the symmetric match used for scoring: equal names,
// containment either way, or the field carrying the entity prefix
// (team_name for key name under team).
func keyMatches(field, key, entityType string) bool {
	if field == "" || key == "" {
		return false
	}
	return field == key ||
		strings.Contains(field, key) ||
		strings.Contains(key, field) ||
		field == entityType+"_"+key
}
