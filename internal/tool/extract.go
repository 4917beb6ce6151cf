// SPDX-License-Identifier: Apache-2.0

package tool

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/88dreams/SheetGPT-sub005/internal/engine"
	"github.com/88dreams/SheetGPT-sub005/internal/extraction"
)

// MetadataExtractStructuredData describes the extract_structured_data tool.
var MetadataExtractStructuredData = &mcp.Tool{
	Name: "extract_structured_data",
	Description: "Extract the structured data embedded in an assistant chat message after the " +
		"---DATA--- marker and return it as a normalized table with row records, an entity-type " +
		"classification (league, team, player, game, stadium, broadcast, production, brand) and a " +
		"suggested field mapping. Truncated or malformed payloads are repaired where possible; " +
		"a payload that could only be recovered as a single cell is flagged recovered=true. " +
		"While a message is still streaming, pass final=false: an incomplete data section is " +
		"reported as pending instead of being parsed.",
	InputSchema: map[string]interface{}{
		"type":     "object",
		"required": []string{"content"},
		"properties": map[string]interface{}{
			"content": map[string]interface{}{
				"type":        "string",
				"description": "Full text of the assistant message, including any phase or completion markers",
			},
			"message_id": map[string]interface{}{
				"type":        "string",
				"description": "Stable message identifier. Final results are cached under it. A random id is used when omitted.",
			},
			"conversation_id": map[string]interface{}{
				"type":        "string",
				"description": "Optional conversation identifier, carried into published events.",
			},
			"final": map[string]interface{}{
				"type":        "boolean",
				"description": "Whether the message has finished streaming. Defaults to true.",
			},
		},
	},
	OutputSchema: map[string]interface{}{"type": "object"},
}

// InputExtractStructuredData is the input for the ExtractStructuredData tool.
type InputExtractStructuredData struct {
	Content        string `json:"content"`
	MessageID      string `json:"message_id"`
	ConversationID string `json:"conversation_id"`
	Final          *bool  `json:"final"`
}

// ExtractStructuredData runs a message through the engine pipeline.
func (t *Tools) ExtractStructuredData(ctx context.Context, _ *mcp.CallToolRequest, input InputExtractStructuredData) (*mcp.CallToolResult, engine.Extraction, error) {
	if input.Content == "" {
		return nil, engine.Extraction{}, fmt.Errorf("content is required")
	}

	msg := extraction.RawMessage{
		ID:             input.MessageID,
		Role:           extraction.RoleAssistant,
		Content:        input.Content,
		ConversationID: input.ConversationID,
		CreatedAt:      time.Now().UTC(),
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	final := input.Final == nil || *input.Final

	out, err := t.pipeline.Process(ctx, msg, final)
	if err != nil {
		return nil, engine.Extraction{}, err
	}
	return nil, out, nil
}
