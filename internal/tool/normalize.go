// SPDX-License-Identifier: Apache-2.0

package tool

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/88dreams/SheetGPT-sub005/internal/engine"
	"github.com/88dreams/SheetGPT-sub005/internal/table"
)

// MetadataNormalizeData describes the normalize_data tool.
var MetadataNormalizeData = &mcp.Tool{
	Name: "normalize_data",
	Description: "Convert structured data of any supported shape into one {headers, rows} table " +
		"plus keyed row records. Accepted shapes: an array of flat objects, {headers, rows} " +
		"(rows as arrays or objects), {rows} of objects, column-oriented {columns:[{header, values}]}, " +
		"database {column_order, rows}, a single flat object, or a JSON-encoded string of any of these. " +
		"Square matrices without entity headers are assumed column-major and transposed; " +
		"transposed=true reports when that happened.",
	InputSchema: map[string]interface{}{
		"type":     "object",
		"required": []string{"data"},
		"properties": map[string]interface{}{
			"data": map[string]interface{}{
				"description": "The payload to normalize. Any JSON value.",
			},
		},
	},
	OutputSchema: map[string]interface{}{"type": "object"},
}

// InputNormalizeData is the input for the NormalizeData tool.
type InputNormalizeData struct {
	Data json.RawMessage `json:"data"`
}

// NormalizeData normalizes an arbitrary payload with the current rules.
func (t *Tools) NormalizeData(_ context.Context, _ *mcp.CallToolRequest, input InputNormalizeData) (*mcp.CallToolResult, engine.Normalized, error) {
	if len(input.Data) == 0 {
		return nil, engine.Normalized{}, fmt.Errorf("data is required")
	}
	data, err := table.Decode(input.Data)
	if err != nil {
		return nil, engine.Normalized{}, fmt.Errorf("data is not valid JSON: %w", err)
	}

	return nil, engine.NewNormalized(t.pipeline.Normalize(data)), nil
}
