// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jeranaias/rigrun-transcript/internal/model"
	"github.com/jeranaias/rigrun-transcript/internal/storage"
	"github.com/jeranaias/rigrun-transcript/internal/tree"
)

// =============================================================================
// SHOW COMMAND
// =============================================================================

func newShowCommand(app *App) *cobra.Command {
	var leaf string

	cmd := &cobra.Command{
		Use:   "show <chat>",
		Short: "Print one thread of a chat",
		Long: `Show prints the most recent thread of a chat. With --leaf the thread
ending at that message is printed instead. Messages that have other
versions carry a "< i/n >" marker; use the siblings command to list them.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.show(cmd.Context(), args[0], leaf)
		},
	}
	cmd.Flags().StringVar(&leaf, "leaf", "", "print the thread ending at this message")
	return cmd
}

// loadChat reads a chat and indexes its full history.
func (a *App) loadChat(ctx context.Context, id string) (storage.Chat, *tree.Tree, error) {
	db, err := a.openDB()
	if err != nil {
		return storage.Chat{}, nil, err
	}
	c, err := db.GetChat(ctx, id)
	if err != nil {
		return storage.Chat{}, nil, chatNotFound(err, id)
	}
	history, err := db.LoadMessages(ctx, id)
	if err != nil {
		return storage.Chat{}, nil, chatNotFound(err, id)
	}
	return c, tree.Build(history), nil
}

// selectThread returns the latest thread, or the path to leaf.
func selectThread(t *tree.Tree, leaf string) ([]model.Message, error) {
	if leaf == "" {
		return t.LatestThread(), nil
	}
	if _, ok := t.Message(leaf); !ok {
		return nil, NewNotFoundError("message", leaf)
	}
	return t.PathTo(leaf), nil
}

func (a *App) show(ctx context.Context, chatID, leaf string) error {
	c, t, err := a.loadChat(ctx, chatID)
	if err != nil {
		return err
	}
	thread, err := selectThread(t, leaf)
	if err != nil {
		return err
	}

	if a.jsonOut {
		if thread == nil {
			thread = []model.Message{}
		}
		return a.writeJSON("show", ThreadData{Chat: c, Messages: thread})
	}

	v := a.newView(a.Out)
	v.Siblings = t.SiblingInfo

	fmt.Fprintln(a.Out, v.Theme.Header.Render(c.Title))
	fmt.Fprintf(a.Out, "%s  %s  %d messages\n\n", c.ID, c.Visibility, c.MessageCount)
	if len(thread) == 0 {
		fmt.Fprintln(a.Out, "(empty chat)")
		return nil
	}
	content, _ := v.Thread(thread, "")
	fmt.Fprint(a.Out, content)
	return nil
}

// =============================================================================
// SIBLINGS COMMAND
// =============================================================================

func newSiblingsCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "siblings <chat> <message>",
		Short: "List the versions of a message",
		Long: `Siblings lists every version of a message: the messages sharing its
parent, oldest first. The listed ids can be passed to show --leaf.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.siblings(cmd.Context(), args[0], args[1])
		},
	}
}

func (a *App) siblings(ctx context.Context, chatID, messageID string) error {
	_, t, err := a.loadChat(ctx, chatID)
	if err != nil {
		return err
	}
	info, ok := t.SiblingInfo(messageID)
	if !ok {
		return NewNotFoundError("message", messageID)
	}

	data := SiblingsData{MessageID: messageID, Index: info.Index}
	if parent, ok := t.Parent(messageID); ok {
		data.ParentID = parent.ID
	}
	for _, id := range info.Siblings {
		m, _ := t.Message(id)
		data.Siblings = append(data.Siblings, SiblingData{
			ID:      id,
			Created: m.Metadata.CreatedAt,
			Preview: m.Preview(60),
		})
	}

	if a.jsonOut {
		return a.writeJSON("siblings", data)
	}

	fmt.Fprintf(a.Out, "Message %s is version %d of %d\n", messageID, info.Index+1, len(info.Siblings))
	if data.ParentID != "" {
		fmt.Fprintf(a.Out, "Parent: %s\n", data.ParentID)
	}
	fmt.Fprintln(a.Out)
	for i, s := range data.Siblings {
		marker := " "
		if i == info.Index {
			marker = "*"
		}
		fmt.Fprintf(a.Out, "%s %d. %s  %s  %s\n", marker, i+1, s.ID, s.Created.Format("2006-01-02 15:04"), s.Preview)
	}
	return nil
}
