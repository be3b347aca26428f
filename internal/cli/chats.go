// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jeranaias/rigrun-transcript/internal/storage"
	"github.com/jeranaias/rigrun-transcript/internal/util"
)

// =============================================================================
// CHATS COMMAND
// =============================================================================

func newChatsCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "chats",
		Aliases: []string{"chat"},
		Short:   "List, search, share and delete stored chats",
	}

	var visibility string
	list := &cobra.Command{
		Use:   "list",
		Short: "List chats, most recently updated first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			vis := storage.Visibility(visibility)
			if vis != "" && !vis.Valid() {
				return NewValidationError("visibility", visibility, "must be private or public", "--visibility public")
			}
			return app.listChats(cmd.Context(), "list", func(ctx context.Context, db *storage.DB) ([]storage.Chat, error) {
				return db.ListChats(ctx, vis)
			})
		},
	}
	list.Flags().StringVar(&visibility, "visibility", "", "only list private or public chats")

	search := &cobra.Command{
		Use:   "search <query>",
		Short: "Find chats by title",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.listChats(cmd.Context(), "search", func(ctx context.Context, db *storage.DB) ([]storage.Chat, error) {
				return db.SearchChats(ctx, args[0])
			})
		},
	}

	share := &cobra.Command{
		Use:   "share <chat>",
		Short: "Make a chat readable through serve",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.updateChat(cmd.Context(), args[0], func(c *storage.Chat) {
				c.Visibility = storage.VisibilityPublic
			})
		},
	}

	unshare := &cobra.Command{
		Use:   "unshare <chat>",
		Short: "Make a chat private again",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.updateChat(cmd.Context(), args[0], func(c *storage.Chat) {
				c.Visibility = storage.VisibilityPrivate
			})
		},
	}

	rename := &cobra.Command{
		Use:   "rename <chat> <title>",
		Short: "Change a chat's title",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.updateChat(cmd.Context(), args[0], func(c *storage.Chat) {
				c.Title = args[1]
			})
		},
	}

	del := &cobra.Command{
		Use:     "delete <chat>",
		Aliases: []string{"rm"},
		Short:   "Delete a chat and all of its messages",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.deleteChat(cmd.Context(), args[0])
		},
	}

	cmd.AddCommand(list, search, share, unshare, rename, del)
	return cmd
}

func (a *App) listChats(ctx context.Context, command string, query func(context.Context, *storage.DB) ([]storage.Chat, error)) error {
	db, err := a.openDB()
	if err != nil {
		return err
	}
	chats, err := query(ctx, db)
	if err != nil {
		return NewCommandError("chats", command, err)
	}

	if a.jsonOut {
		if chats == nil {
			chats = []storage.Chat{}
		}
		return a.writeJSON("chats "+command, ChatListData{Chats: chats})
	}

	if len(chats) == 0 {
		fmt.Fprintln(a.Out, "No chats found.")
		return nil
	}
	fmt.Fprintf(a.Out, "%s  %s  %s  %s  %s\n",
		util.PadRight("ID", 36), util.PadRight("TITLE", 30), util.PadRight("VISIBILITY", 10),
		util.PadRight("MESSAGES", 8), "UPDATED")
	for _, c := range chats {
		fmt.Fprintf(a.Out, "%s  %s  %s  %s  %s\n",
			util.PadRight(c.ID, 36),
			util.PadRight(util.TruncateWidth(c.Title, 30), 30),
			util.PadRight(string(c.Visibility), 10),
			util.PadRight(fmt.Sprint(c.MessageCount), 8),
			c.UpdatedAt.Local().Format("2006-01-02 15:04"))
	}
	return nil
}

func (a *App) updateChat(ctx context.Context, id string, apply func(*storage.Chat)) error {
	db, err := a.openDB()
	if err != nil {
		return err
	}
	c, err := db.GetChat(ctx, id)
	if err != nil {
		return chatNotFound(err, id)
	}

	apply(&c)
	c.UpdatedAt = time.Now().UTC()
	if err := db.SaveChat(ctx, c); err != nil {
		return NewCommandError("chats", "update", err)
	}

	if a.jsonOut {
		return a.writeJSON("chats", c)
	}
	fmt.Fprintf(a.Out, "Chat %s: %q (%s)\n", c.ID, c.Title, c.Visibility)
	return nil
}

func (a *App) deleteChat(ctx context.Context, id string) error {
	db, err := a.openDB()
	if err != nil {
		return err
	}
	if err := db.DeleteChat(ctx, id); err != nil {
		return chatNotFound(err, id)
	}
	if a.jsonOut {
		return a.writeJSON("chats delete", map[string]string{"deleted": id})
	}
	fmt.Fprintf(a.Out, "Deleted chat %s\n", id)
	return nil
}
