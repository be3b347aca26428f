// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/jeranaias/rigrun-transcript/internal/config"
	"github.com/jeranaias/rigrun-transcript/internal/markdown"
	"github.com/jeranaias/rigrun-transcript/internal/transcript"
	"github.com/jeranaias/rigrun-transcript/internal/ui/chat"
	"github.com/jeranaias/rigrun-transcript/internal/ui/styles"
)

// =============================================================================
// VIEW COMMAND
// =============================================================================

func newViewCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "view <chat>",
		Short: "Browse a chat in the terminal viewer",
		Long: `View opens the interactive transcript viewer on the most recent thread
of a chat. Use up/down to select a message and left/right to switch it to
another version. Press ? for all key bindings.

The config file is watched while the viewer runs; changes to
store.throttle_ms apply immediately.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.view(cmd.Context(), args[0])
		},
	}
}

func (a *App) view(ctx context.Context, chatID string) error {
	if err := RequiresTTY(a.Out, "open the viewer"); err != nil {
		return err
	}

	db, err := a.openDB()
	if err != nil {
		return err
	}
	c, err := db.GetChat(ctx, chatID)
	if err != nil {
		return chatNotFound(err, chatID)
	}
	history, err := db.LoadMessages(ctx, chatID)
	if err != nil {
		return chatNotFound(err, chatID)
	}

	sess := a.newSession(db, true)
	sess.Load(chatID, history)

	watcher, err := a.watchConfig(sess.Store())
	if err != nil {
		a.logger.Warn("CONFIG_WATCH_FAILED", "path", a.cfgFile, "error", err)
	}
	if watcher != nil {
		defer watcher.Close()
	}

	theme := styles.PlainTheme()
	var renderer *markdown.Renderer
	if ColorsEnabled(a.Out) {
		theme = styles.NewTheme()
		renderer = a.renderer(TerminalWidth(a.Out))
	}

	return chat.Run(ctx, chat.New(sess, c.Title, renderer, theme))
}

// watchConfig applies throttle changes from the config file to store.
// It returns nil when there is no config file to watch.
func (a *App) watchConfig(store *transcript.Store) (*config.Watcher, error) {
	if _, err := os.Stat(a.cfgFile); err != nil {
		return nil, nil
	}
	return config.Watch(a.cfgFile, func(cfg *config.Config) {
		store.SetThrottle(cfg.Throttle())
		a.logger.Info("THROTTLE_UPDATED", "window", cfg.Throttle())
	}, config.WithWatchLogger(a.logger))
}
