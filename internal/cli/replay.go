// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/jeranaias/rigrun-transcript/internal/model"
	"github.com/jeranaias/rigrun-transcript/internal/session"
	"github.com/jeranaias/rigrun-transcript/internal/storage"
	"github.com/jeranaias/rigrun-transcript/internal/stream"
)

// =============================================================================
// REPLAY COMMAND
// =============================================================================

type replayOptions struct {
	chatID string
	title  string
	prompt string
	model  string
	noSave bool
}

func newReplayCommand(app *App) *cobra.Command {
	var opts replayOptions

	cmd := &cobra.Command{
		Use:   "replay <file>",
		Short: "Stream a recorded reply into a chat",
		Long: `Replay reads newline-delimited stream events (optionally framed as
server-sent events) from a file, or stdin when the file is "-", applies
them as one assistant reply and prints the resulting transcript.

The reply is appended to --chat when given, otherwise a new chat is
created. Finished messages are saved unless --no-save is set.`,
		Example: `  rigrun-transcript replay reply.ndjson --prompt "Explain iterators"
  curl -sN $URL | rigrun-transcript replay - --chat 3f2c...`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, closeIn, err := openInput(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}
			defer closeIn()
			return app.replay(cmd.Context(), in, opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.chatID, "chat", "", "append to this chat instead of creating one")
	flags.StringVar(&opts.title, "title", "", "chat title")
	flags.StringVar(&opts.prompt, "prompt", "", "user message sent before the reply")
	flags.StringVar(&opts.model, "model", "", "model id recorded on the reply (default from config)")
	flags.BoolVar(&opts.noSave, "no-save", false, "do not write to the database")
	return cmd
}

func openInput(stdin io.Reader, path string) (io.Reader, func(), error) {
	if path == "-" {
		return stdin, func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, NewCommandError("replay", "open input", err)
	}
	return f, func() { f.Close() }, nil
}

func (a *App) replay(ctx context.Context, in io.Reader, opts replayOptions) error {
	var (
		db        *storage.DB
		persister session.Persister
	)
	if !opts.noSave {
		d, err := a.openDB()
		if err != nil {
			return err
		}
		db, persister = d, d
	}

	chatID := opts.chatID
	var history []model.Message
	switch {
	case chatID == "":
		chatID = uuid.NewString()
	case db != nil:
		h, err := db.LoadMessages(ctx, chatID)
		if err != nil && !errors.Is(err, storage.ErrChatNotFound) {
			return NewCommandError("replay", "load chat", err)
		}
		history = h
	}

	sess := a.newSession(persister, false)
	sess.Load(chatID, history)

	if opts.prompt != "" {
		if _, err := sess.SendUserMessage(opts.prompt); err != nil {
			return NewValidationError("prompt", opts.prompt, err.Error(), "")
		}
	}

	msg, err := stream.Consume(ctx, in, sess, opts.model, a.logger)
	if err != nil && !errors.Is(err, context.Canceled) {
		return NewCommandError("replay", "stream", err)
	}
	a.logger.Info("REPLAY_DONE", "chat", chatID, "message", msg.ID, "parts", len(msg.Parts))

	chatInfo := storage.Chat{ID: chatID, Title: opts.title}
	if db != nil {
		saved, err := a.persistReplay(context.WithoutCancel(ctx), db, sess, chatID, opts.title)
		if err != nil {
			return err
		}
		chatInfo = saved
	}

	store := sess.Store()
	store.Flush()
	thread := store.ThrottledMessages()

	if a.jsonOut {
		return a.writeJSON("replay", ThreadData{Chat: chatInfo, Messages: thread})
	}

	v := a.newView(a.Out)
	v.Store = store
	v.Siblings = sess.SiblingInfo
	content, _ := v.Thread(thread, "")
	fmt.Fprint(a.Out, content)
	if db != nil {
		fmt.Fprintf(a.ErrOut, "Saved chat %s\n", chatID)
	}
	return nil
}

// persistReplay saves the unsaved messages and applies the title.
func (a *App) persistReplay(ctx context.Context, db *storage.DB, sess *session.Session, chatID, title string) (storage.Chat, error) {
	if err := sess.Save(ctx); err != nil {
		return storage.Chat{}, NewCommandError("replay", "save", err)
	}

	c, err := db.GetChat(ctx, chatID)
	if errors.Is(err, storage.ErrChatNotFound) {
		// Nothing was streamed and nothing was saved.
		c = storage.Chat{ID: chatID}
		err = db.SaveChat(ctx, c)
	}
	if err != nil {
		return storage.Chat{}, NewCommandError("replay", "save", err)
	}

	if title != "" && c.Title != title {
		c.Title = title
		c.UpdatedAt = time.Now().UTC()
		if err := db.SaveChat(ctx, c); err != nil {
			return storage.Chat{}, NewCommandError("replay", "save", err)
		}
	}
	return db.GetChat(ctx, chatID)
}
