// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jeranaias/rigrun-transcript/internal/export"
)

// =============================================================================
// EXPORT COMMAND
// =============================================================================

type exportOptions struct {
	format      string
	outDir      string
	leaf        string
	stdout      bool
	noMetadata  bool
	noReasoning bool
}

func newExportCommand(app *App) *cobra.Command {
	var opts exportOptions

	cmd := &cobra.Command{
		Use:   "export <chat>",
		Short: "Export a thread to markdown, HTML, JSON or YAML",
		Long: `Export writes the most recent thread of a chat (or the thread ending at
--leaf) to a file named after the chat title and the export time.`,
		Example: `  rigrun-transcript export 3f2c... --format html --out ./exports
  rigrun-transcript export 3f2c... --format json --stdout | jq .`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.export(cmd.Context(), args[0], opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.format, "format", "f", "markdown", "output format: "+strings.Join(export.Formats, ", "))
	flags.StringVarP(&opts.outDir, "out", "o", ".", "output directory")
	flags.StringVar(&opts.leaf, "leaf", "", "export the thread ending at this message")
	flags.BoolVar(&opts.stdout, "stdout", false, "write to stdout instead of a file")
	flags.BoolVar(&opts.noMetadata, "no-metadata", false, "omit the frontmatter and header")
	flags.BoolVar(&opts.noReasoning, "no-reasoning", false, "omit reasoning parts")
	return cmd
}

func (a *App) export(ctx context.Context, chatID string, opts exportOptions) error {
	exportOpts := export.DefaultOptions()
	exportOpts.OutputDir = opts.outDir
	exportOpts.IncludeMetadata = !opts.noMetadata
	exportOpts.IncludeReasoning = !opts.noReasoning

	exporter, err := export.ForFormat(opts.format, exportOpts)
	if errors.Is(err, export.ErrUnsupportedFormat) {
		return NewValidationError("format", opts.format, "unsupported export format",
			"--format "+strings.Join(export.Formats, "|"))
	}
	if err != nil {
		return err
	}

	c, t, err := a.loadChat(ctx, chatID)
	if err != nil {
		return err
	}
	thread, err := selectThread(t, opts.leaf)
	if err != nil {
		return err
	}
	doc := export.NewDocument(c, thread)

	if opts.stdout {
		content, err := exporter.Export(doc)
		if err != nil {
			return NewCommandError("export", "render", err)
		}
		_, err = a.Out.Write(content)
		return err
	}

	path, err := export.ToFile(doc, exporter, exportOpts)
	if err != nil {
		return NewCommandError("export", "write", err)
	}
	a.logger.Info("CHAT_EXPORTED", "chat", chatID, "path", path, "format", opts.format)

	if a.jsonOut {
		return a.writeJSON("export", ExportData{Path: path, Format: opts.format})
	}
	fmt.Fprintf(a.Out, "Exported %d messages to %s\n", len(thread), path)
	return nil
}
