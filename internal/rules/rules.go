// SPDX-License-Identifier: Apache-2.0

// Package rules holds the configuration the classifier, recommender and
// normalizer run on: entity signatures, synonym dictionaries, the match
// threshold and the transposition allow-list.
package rules

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/goccy/go-yaml"
)

//go:embed defaults.yaml
var defaultsYAML []byte

//go:embed schema.cue
var schemaCUE string

// ErrInvalidRules is returned when a rules document fails to decode or
// does not satisfy the rules schema.
var ErrInvalidRules = errors.New("invalid rules")

// Target is a canonical destination field and the source-field synonyms
// tried, in order, to fill it.
type Target struct {
	Field    string   `yaml:"field" json:"field"`
	Required bool     `yaml:"required" json:"required"`
	Synonyms []string `yaml:"synonyms" json:"synonyms"`
}

// Entity is the signature of one domain entity type.
type Entity struct {
	Type           string   `yaml:"type" json:"type"`
	Weight         float64  `yaml:"weight" json:"weight"`
	RequiredFields []string `yaml:"required_fields" json:"required_fields"`
	KeyFields      []string `yaml:"key_fields" json:"key_fields"`
	Targets        []Target `yaml:"targets" json:"targets"`
}

// RequiredTargets lists the target fields a saved record must carry.
func (e Entity) RequiredTargets() []string {
	var out []string
	for _, t := range e.Targets {
		if t.Required {
			out = append(out, t.Field)
		}
	}
	return out
}

// Rules is the full engine configuration. Entity order is significant: it
// is the tie-break order for classification.
type Rules struct {
	Threshold          float64  `yaml:"threshold" json:"threshold"`
	TransposeAllowList []string `yaml:"transpose_allow_list" json:"transpose_allow_list"`
	Entities           []Entity `yaml:"entities" json:"entities"`
}

// Entity looks up a signature by type, case-insensitively.
func (r Rules) Entity(entityType string) (Entity, bool) {
	for _, e := range r.Entities {
		if strings.EqualFold(e.Type, entityType) {
			return e, true
		}
	}
	return Entity{}, false
}

// EntityTypes returns the configured types in declaration order.
func (r Rules) EntityTypes() []string {
	out := make([]string, 0, len(r.Entities))
	for _, e := range r.Entities {
		out = append(out, e.Type)
	}
	return out
}

// Default returns the built-in rules.
func Default() Rules {
	r, err := decode(defaultsYAML)
	if err != nil {
		panic(fmt.Sprintf("built-in rules: %v", err))
	}
	return r
}

// Load reads a rules file from disk. See Parse.
func Load(path string) (Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Rules{}, fmt.Errorf("reading rules file %s: %w", path, err)
	}
	r, err := Parse(data)
	if err != nil {
		return Rules{}, fmt.Errorf("%s: %w", path, err)
	}
	return r, nil
}

// Parse decodes a YAML or JSON rules document on top of the built-in rules:
// keys the document omits keep their default values, keys it sets replace
// them wholesale. The result is validated before it is returned.
func Parse(data []byte) (Rules, error) {
	r := Default()
	if err := yaml.Unmarshal(data, &r); err != nil {
		return Rules{}, fmt.Errorf("%w: %v", ErrInvalidRules, err)
	}
	if err := Validate(r); err != nil {
		return Rules{}, err
	}
	return r, nil
}

func decode(data []byte) (Rules, error) {
	var r Rules
	if err := yaml.Unmarshal(data, &r); err != nil {
		return Rules{}, fmt.Errorf("%w: %v", ErrInvalidRules, err)
	}
	if err := Validate(r); err != nil {
		return Rules{}, err
	}
	return r, nil
}

func (r Rules) validateUnique() error {
	seen := make(map[string]bool, len(r.Entities))
	for _, e := range r.Entities {
		key := strings.ToLower(e.Type)
		if seen[key] {
			return fmt.Errorf("%w: duplicate entity type %q", ErrInvalidRules, e.Type)
		}
		seen[key] = true
	}
	return nil
}

// Validate checks r against the embedded CUE schema and rejects duplicate
// entity types.
func Validate(r Rules) error {
	doc, err := json.Marshal(withEmptySlices(r))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRules, err)
	}

	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compiling rules schema: %w", err)
	}
	value := ctx.CompileBytes(doc, cue.Filename("rules.json"))
	if err := value.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRules, err)
	}

	unified := schema.LookupPath(cue.ParsePath("#Rules")).Unify(value)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRules, err)
	}
	return r.validateUnique()
}

// withEmptySlices replaces nil slices so they marshal as [] rather than null.
func withEmptySlices(r Rules) Rules {
	out := Rules{
		Threshold:          r.Threshold,
		TransposeAllowList: nonNil(r.TransposeAllowList),
		Entities:           make([]Entity, len(r.Entities)),
	}
	for i, e := range r.Entities {
		e.RequiredFields = nonNil(e.RequiredFields)
		e.KeyFields = nonNil(e.KeyFields)
		targets := make([]Target, len(e.Targets))
		for j, t := range e.Targets {
			t.Synonyms = nonNil(t.Synonyms)
			targets[j] = t
		}
		e.Targets = targets
		out.Entities[i] = e
	}
	return out
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
