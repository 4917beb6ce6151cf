// SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/88dreams/SheetGPT-sub005/internal/api"
	"github.com/88dreams/SheetGPT-sub005/internal/entity"
	"github.com/88dreams/SheetGPT-sub005/internal/extraction"
	"github.com/88dreams/SheetGPT-sub005/internal/tool"
)

func newMCPCmd(opts *appOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the engine as MCP tools over stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), opts, true)
			if err != nil {
				return err
			}
			defer a.Close()

			server := mcp.NewServer(&mcp.Implementation{Name: "sheetgpt", Version: version}, nil)
			tool.Register(server, a.pipeline)
			a.log.Info("MCP server starting on stdio")
			return server.Run(cmd.Context(), &mcp.StdioTransport{})
		},
	}
}

func newHTTPCmd(opts *appOptions) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "http",
		Short: "Serve the engine over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), opts, true)
			if err != nil {
				return err
			}
			defer a.Close()

			if addr == "" {
				addr = a.cfg.HTTPAddr
			}
			return api.NewServer(addr, a.pipeline, a.log).Start(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides SHEETGPT_HTTP_ADDR)")
	return cmd
}

func newExtractCmd(opts *appOptions) *cobra.Command {
	var (
		messageID string
		streaming bool
		compact   bool
	)
	cmd := &cobra.Command{
		Use:   "extract [file|-]",
		Short: "Extract structured data from a message read from a file or stdin",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := readInput(cmd, args)
			if err != nil {
				return err
			}

			a, err := newApp(cmd.Context(), opts, false)
			if err != nil {
				return err
			}
			defer a.Close()

			if messageID == "" {
				messageID = uuid.NewString()
			}
			out, err := a.pipeline.Process(cmd.Context(), extraction.RawMessage{
				ID:        messageID,
				Role:      extraction.RoleAssistant,
				Content:   content,
				CreatedAt: time.Now().UTC(),
			}, !streaming)
			if err != nil {
				return err
			}

			warn := color.New(color.FgYellow)
			switch {
			case out.Pending:
				warn.Fprintln(cmd.ErrOrStderr(), "data section is still incomplete")
			case out.Recovered:
				warn.Fprintln(cmd.ErrOrStderr(), "structured data could only be recovered as a single cell")
			case !out.Found:
				warn.Fprintln(cmd.ErrOrStderr(), "no structured data found")
			}
			return printJSON(cmd.OutOrStdout(), out, compact)
		},
	}
	cmd.Flags().StringVar(&messageID, "message-id", "", "message id used as the cache key")
	cmd.Flags().BoolVar(&streaming, "streaming", false, "treat the message as still streaming")
	cmd.Flags().BoolVar(&compact, "compact", false, "print compact JSON")
	return cmd
}

func newClassifyCmd(opts *appOptions) *cobra.Command {
	var (
		entityType string
		compact    bool
	)
	cmd := &cobra.Command{
		Use:   "classify field...",
		Short: "Guess the entity type of a field list and suggest a mapping",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, fields []string) error {
			a, err := newApp(cmd.Context(), opts, false)
			if err != nil {
				return err
			}
			defer a.Close()

			result := map[string]any{"classification": a.pipeline.Classify(fields)}
			if entityType != "" {
				mapping := a.pipeline.Recommend(fields, entityType)
				missing, ok := a.pipeline.MissingRequired(entityType, entity.MappingFromRecommendation(mapping))
				if !ok {
					return fmt.Errorf("unknown entity type %q (known: %s)",
						entityType, strings.Join(a.pipeline.Rules().EntityTypes(), ", "))
				}
				result["mapping"] = mapping
				result["missing_required"] = missing
			}
			return printJSON(cmd.OutOrStdout(), result, compact)
		},
	}
	cmd.Flags().StringVar(&entityType, "entity", "", "confirmed entity type to recommend a mapping for")
	cmd.Flags().BoolVar(&compact, "compact", false, "print compact JSON")
	return cmd
}

func readInput(cmd *cobra.Command, args []string) (string, error) {
	if len(args) == 0 || args[0] == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", fmt.Errorf("reading stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", args[0], err)
	}
	return string(data), nil
}

func printJSON(w io.Writer, v any, compact bool) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if !compact {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(v)
}
