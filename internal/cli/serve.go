// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jeranaias/rigrun-transcript/internal/server"
	"github.com/jeranaias/rigrun-transcript/internal/telemetry"
)

// =============================================================================
// SERVE COMMAND
// =============================================================================

// shutdownTimeout bounds how long in-flight requests may take after a
// shutdown signal.
const shutdownTimeout = 10 * time.Second

type serveOptions struct {
	addr      string
	rateLimit int
}

func newServeCommand(app *App) *cobra.Command {
	var opts serveOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve public chats over a read-only HTTP API",
		Long: `Serve exposes chats shared with "chats share" over HTTP:

  GET /health
  GET /v1/chats
  GET /v1/chats/{chatID}[?leaf=messageID]
  GET /v1/chats/{chatID}/messages/{messageID}/siblings
  GET /metrics

Private chats answer 404. The server stops gracefully on SIGINT or SIGTERM.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("rate-limit") {
				opts.rateLimit = -1
			}
			return app.serve(cmd.Context(), opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.addr, "addr", "", "listen address (default from config)")
	flags.IntVar(&opts.rateLimit, "rate-limit", 0, "requests per minute per client IP, 0 disables (default from config)")
	return cmd
}

func (a *App) serve(ctx context.Context, opts serveOptions) error {
	a.metrics = telemetry.New()
	db, err := a.openDB()
	if err != nil {
		return err
	}

	cfg := server.Config{
		Addr:      a.cfg.Server.Listen,
		RateLimit: a.cfg.Server.RateLimit,
	}
	if opts.addr != "" {
		cfg.Addr = opts.addr
	}
	if opts.rateLimit >= 0 {
		cfg.RateLimit = opts.rateLimit
	}

	srv := server.New(db, cfg, server.WithMetrics(a.metrics), server.WithLogger(a.logger))

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()
	fmt.Fprintf(a.ErrOut, "Serving shared chats on http://%s\n", srv.Addr())

	select {
	case err := <-errCh:
		if err != nil {
			return NewCommandError("serve", "listen", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return NewCommandError("serve", "shutdown", err)
	}
	return <-errCh
}
