// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/rigrun-transcript/internal/transcript"
)

// =============================================================================
// STORE BRIDGE
// =============================================================================

// SnapshotMsg carries a throttled store snapshot into the Bubble Tea loop.
type SnapshotMsg struct {
	Snapshot transcript.Snapshot
}

// Bridge turns store notifications into tea messages.
//
// Only the latest snapshot is kept: a notification arriving while the
// previous one is still unread replaces it. The store callback therefore
// never blocks the notification pass.
type Bridge struct {
	ch        chan transcript.Snapshot
	done      chan struct{}
	closeOnce sync.Once
	cancel    func()
}

// NewBridge subscribes to store.
func NewBridge(store *transcript.Store) *Bridge {
	b := &Bridge{
		ch:   make(chan transcript.Snapshot, 1),
		done: make(chan struct{}),
	}
	b.cancel = store.Subscribe(b.publish)
	return b
}

func (b *Bridge) publish(snap transcript.Snapshot) {
	for {
		select {
		case b.ch <- snap:
			return
		default:
		}
		// Drop the unread snapshot and retry.
		select {
		case <-b.ch:
		default:
		}
	}
}

// Wait returns a command that blocks until the next snapshot. Re-issue it
// after every SnapshotMsg. After Close it yields nil.
func (b *Bridge) Wait() tea.Cmd {
	return func() tea.Msg {
		select {
		case snap := <-b.ch:
			return SnapshotMsg{Snapshot: snap}
		case <-b.done:
			return nil
		}
	}
}

// Close unsubscribes from the store and releases a pending Wait.
func (b *Bridge) Close() {
	b.closeOnce.Do(func() {
		b.cancel()
		close(b.done)
	})
}
