// SPDX-License-Identifier: Apache-2.0

// Command sheetgpt runs the structured-data extraction engine as an MCP
// server, an HTTP service, or one-shot CLI commands.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var opts appOptions

	root := &cobra.Command{
		Use:           "sheetgpt",
		Short:         "Extract, normalize and classify structured data from chat messages",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "dotenv file to load if present")
	root.PersistentFlags().StringVar(&opts.rulesFile, "rules", "", "engine rules file (overrides SHEETGPT_RULES_FILE)")

	root.AddCommand(
		newMCPCmd(&opts),
		newHTTPCmd(&opts),
		newExtractCmd(&opts),
		newClassifyCmd(&opts),
	)
	return root
}
