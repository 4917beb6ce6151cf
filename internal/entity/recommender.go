// SPDX-License-Identifier: Apache-2.0

package entity

import (
	"slices"

	"github.com/88dreams/SheetGPT-sub005/internal/rules"
)

// Recommender proposes an initial source→target mapping for a confirmed
// entity type from the synonym dictionary in the rules.
type Recommender struct {
	rules rules.Rules
}

func NewRecommender(r rules.Rules) *Recommender {
	return &Recommender{rules: r}
}

// Recommend walks the entity's target fields in order. Each target takes
// the first synonym that matches a still-unused source field, falling back
// to matching the target name itself. A source field is mapped at most
// once. Targets with no match are left out; unknown entity types yield an
// empty mapping.
func (r *Recommender) Recommend(sourceFields []string, entityType string) map[string]string {
	out := make(map[string]string)
	e, ok := r.rules.Entity(entityType)
	if !ok {
		return out
	}

	remaining := slices.Clone(sourceFields)
	for _, target := range e.Targets {
		source, found := "", false
		for _, syn := range target.Synonyms {
			if source, found = FindBestMatchingField(syn, remaining); found {
				break
			}
		}
		if !found {
			source, found = FindBestMatchingField(target.Field, remaining)
		}
		if !found {
			continue
		}

		out[source] = target.Field
		remaining = slices.DeleteFunc(remaining, func(s string) bool { return s == source })
	}
	return out
}
