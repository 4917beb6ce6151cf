// SPDX-License-Identifier: Apache-2.0

// Package tool exposes the extraction engine as MCP tools.
package tool

import (
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/88dreams/SheetGPT-sub005/internal/engine"
)

// Tools holds the handlers; all of them share one pipeline.
type Tools struct {
	pipeline *engine.Pipeline
}

func New(p *engine.Pipeline) *Tools {
	if p == nil {
		panic("tool: nil pipeline")
	}
	return &Tools{pipeline: p}
}

// Register adds every engine tool to server.
func Register(server *mcp.Server, p *engine.Pipeline) {
	t := New(p)
	mcp.AddTool(server, MetadataExtractStructuredData, t.ExtractStructuredData)
	mcp.AddTool(server, MetadataNormalizeData, t.NormalizeData)
	mcp.AddTool(server, MetadataClassifyFields, t.ClassifyFields)
	mcp.AddTool(server, MetadataRecommendFieldMapping, t.RecommendFieldMapping)
}
