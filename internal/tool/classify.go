// SPDX-License-Identifier: Apache-2.0

package tool

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/88dreams/SheetGPT-sub005/internal/entity"
)

// MetadataClassifyFields describes the classify_fields tool.
var MetadataClassifyFields = &mcp.Tool{
	Name: "classify_fields",
	Description: "Guess which sports entity type a list of field names describes " +
		"(league, team, player, game, stadium, broadcast, production, brand). " +
		"The result is a suggestion: is_match is true only when the best confidence exceeds the " +
		"configured threshold, and confidence is reported either way. " +
		"Per-type scores are included for diagnostics.",
	InputSchema: map[string]interface{}{
		"type":     "object",
		"required": []string{"fields"},
		"properties": map[string]interface{}{
			"fields": map[string]interface{}{
				"type":        "array",
				"items":       map[string]interface{}{"type": "string"},
				"description": "Source field names, e.g. table headers",
			},
		},
	},
}

// InputClassifyFields is the input for the ClassifyFields tool.
type InputClassifyFields struct {
	Fields []string `json:"fields"`
}

// OutputClassifyFields is the output for the ClassifyFields tool.
type OutputClassifyFields struct {
	Classification entity.Result  `json:"classification"`
	Scores         []entity.Score `json:"scores"`
}

// ClassifyFields scores the fields against every entity signature.
func (t *Tools) ClassifyFields(_ context.Context, _ *mcp.CallToolRequest, input InputClassifyFields) (*mcp.CallToolResult, OutputClassifyFields, error) {
	if len(input.Fields) == 0 {
		return nil, OutputClassifyFields{}, fmt.Errorf("fields is required")
	}
	return nil, OutputClassifyFields{
		Classification: t.pipeline.Classify(input.Fields),
		Scores:         t.pipeline.Scores(input.Fields),
	}, nil
}

// MetadataRecommendFieldMapping describes the recommend_field_mapping tool.
var MetadataRecommendFieldMapping = &mcp.Tool{
	Name: "recommend_field_mapping",
	Description: "Propose a default mapping from source fields to the canonical fields of a confirmed " +
		"entity type, using the configured synonym dictionary. Each source field is used at most once; " +
		"canonical fields with no match are omitted and listed under missing_required when the entity " +
		"requires them.",
	InputSchema: map[string]interface{}{
		"type":     "object",
		"required": []string{"fields", "entity_type"},
		"properties": map[string]interface{}{
			"fields": map[string]interface{}{
				"type":        "array",
				"items":       map[string]interface{}{"type": "string"},
				"description": "Source field names, e.g. table headers",
			},
			"entity_type": map[string]interface{}{
				"type":        "string",
				"description": "Confirmed entity type, e.g. team",
			},
		},
	},
}

// InputRecommendFieldMapping is the input for the RecommendFieldMapping tool.
type InputRecommendFieldMapping struct {
	Fields     []string `json:"fields"`
	EntityType string   `json:"entity_type"`
}

// OutputRecommendFieldMapping is the output for the RecommendFieldMapping tool.
type OutputRecommendFieldMapping struct {
	EntityType string `json:"entity_type"`
	// Mapping is source field → canonical field.
	Mapping         map[string]string `json:"mapping"`
	MissingRequired []string          `json:"missing_required"`
}

// RecommendFieldMapping proposes a mapping for a known entity type.
func (t *Tools) RecommendFieldMapping(_ context.Context, _ *mcp.CallToolRequest, input InputRecommendFieldMapping) (*mcp.CallToolResult, OutputRecommendFieldMapping, error) {
	if len(input.Fields) == 0 {
		return nil, OutputRecommendFieldMapping{}, fmt.Errorf("fields is required")
	}
	entityType := strings.ToLower(strings.TrimSpace(input.EntityType))
	if entityType == "" {
		return nil, OutputRecommendFieldMapping{}, fmt.Errorf("entity_type is required")
	}

	mapping := t.pipeline.Recommend(input.Fields, entityType)
	missing, ok := t.pipeline.MissingRequired(entityType, entity.MappingFromRecommendation(mapping))
	if !ok {
		return nil, OutputRecommendFieldMapping{}, fmt.Errorf("unknown entity type %q (known: %s)",
			input.EntityType, strings.Join(t.pipeline.Rules().EntityTypes(), ", "))
	}
	if missing == nil {
		missing = []string{}
	}

	return nil, OutputRecommendFieldMapping{
		EntityType:      entityType,
		Mapping:         mapping,
		MissingRequired: missing,
	}, nil
}
