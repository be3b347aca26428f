// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/rigrun-transcript/internal/model"
	"github.com/jeranaias/rigrun-transcript/internal/session"
	"github.com/jeranaias/rigrun-transcript/internal/transcript"
	"github.com/jeranaias/rigrun-transcript/internal/ui/styles"
)

var epoch = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

func msg(id string, role model.Role, parent, text string, minute int) model.Message {
	return model.Message{
		ID:    id,
		Role:  role,
		Parts: []model.Part{model.TextPart(text)},
		Metadata: model.Metadata{
			CreatedAt:       epoch.Add(time.Duration(minute) * time.Minute),
			ParentMessageID: parent,
		},
	}
}

// branchedSession loads a chat whose first question was edited once.
func branchedSession(t *testing.T) *session.Session {
	t.Helper()
	store := transcript.New(transcript.WithThrottle(0))
	t.Cleanup(store.Close)

	sess := session.New(store, nil, session.Config{Model: "test-model"}, nil)
	sess.Load("chat-1", []model.Message{
		msg("u1", model.RoleUser, "", "first question", 0),
		msg("a1", model.RoleAssistant, "u1", "first answer", 1),
		msg("u1b", model.RoleUser, "", "edited question", 2),
		msg("a1b", model.RoleAssistant, "u1b", "edited answer", 3),
	})
	return sess
}

func ids(msgs []model.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID
	}
	return out
}

func update(t *testing.T, m Model, in tea.Msg) Model {
	t.Helper()
	next, _ := m.Update(in)
	return next.(Model)
}

// drain delivers the pending snapshot, if any, to the model.
func drain(t *testing.T, m Model) Model {
	t.Helper()
	select {
	case snap := <-m.bridge.ch:
		return update(t, m, SnapshotMsg{Snapshot: snap})
	default:
		return m
	}
}

// =============================================================================
// RENDERING
// =============================================================================

func TestView_MessageParts(t *testing.T) {
	v := &View{Width: 60}
	m := model.Message{
		ID:   "a1",
		Role: model.RoleAssistant,
		Parts: []model.Part{
			{Type: model.PartStepStart},
			{Type: model.PartReasoning, Text: "think first", State: model.StateDone},
			{
				Type:   model.ToolPartType(model.ToolWebSearch),
				State:  model.StateOutputAvailable,
				Input:  json.RawMessage(`{"query": "go iterators"}`),
				Output: json.RawMessage(`{"hits": 3}`),
			},
			{Type: model.ToolPartType("fetch"), State: model.StateOutputError, ErrorText: "timeout\nafter 5s"},
			model.TextPart("Use **range over func**."),
			{Type: model.PartFile, Filename: "plot.png", MediaType: "image/png", URL: "https://x/plot.png"},
			{Type: model.PartSourceURL, URL: "https://go.dev/blog/range-functions", Title: "Range Over Function Types"},
			{Type: model.DataPartType("progress"), Data: json.RawMessage(`{"pct":100}`)},
		},
		Metadata: model.Metadata{Model: "gpt-test", Partial: true},
	}

	out := v.Message(m, true)
	assert.True(t, strings.HasPrefix(out, "> Assistant (interrupted)  gpt-test\n"))
	assert.Contains(t, out, "Reasoning: think first")
	assert.Contains(t, out, `[OK] tool webSearch {"query": "go iterators"}`)
	assert.Contains(t, out, "[X] tool fetch\n    error: timeout after 5s")
	assert.Contains(t, out, "Use **range over func**.")
	assert.Contains(t, out, "[file] plot.png (image/png)")
	assert.Contains(t, out, "  - Range Over Function Types <https://go.dev/blog/range-functions>")
	assert.NotContains(t, out, "progress")
}

func TestView_ThreadOffsetsAndSiblings(t *testing.T) {
	sess := branchedSession(t)
	v := &View{Store: sess.Store(), Siblings: sess.SiblingInfo}

	thread := sess.Store().ThrottledMessages()
	content, offsets := v.Thread(thread, "u1b")

	lines := strings.Split(content, "\n")
	require.Contains(t, offsets, "u1b")
	require.Contains(t, offsets, "a1b")
	assert.Equal(t, 0, offsets["u1b"])
	assert.True(t, strings.HasPrefix(lines[offsets["u1b"]], "> You  < 2/2 >"))
	assert.True(t, strings.HasPrefix(lines[offsets["a1b"]], "  Assistant"))
	assert.Contains(t, content, "edited answer")
}

func TestView_UsesStoreBlocksOnlyWhenCurrent(t *testing.T) {
	sess := branchedSession(t)
	v := &View{Store: sess.Store()}

	stale := msg("a1b", model.RoleAssistant, "u1b", "older text", 3)
	assert.Nil(t, v.cachedBlocks("a1b", 0, stale.Parts[0].Text))
	assert.NotEmpty(t, v.cachedBlocks("a1b", 0, "edited answer"))
	assert.Nil(t, v.cachedBlocks("gone", 0, "x"))

	assert.Contains(t, v.Message(stale, false), "older text")
}

// =============================================================================
// BRIDGE
// =============================================================================

func TestBridge_KeepsLatestSnapshot(t *testing.T) {
	store := transcript.New(transcript.WithThrottle(0))
	defer store.Close()

	b := NewBridge(store)
	defer b.Close()

	store.PushMessage(msg("m1", model.RoleUser, "", "one", 0))
	store.PushMessage(msg("m2", model.RoleAssistant, "m1", "two", 1))
	store.PushMessage(msg("m3", model.RoleUser, "m2", "three", 2))

	out := b.Wait()()
	snap, ok := out.(SnapshotMsg)
	require.True(t, ok)
	assert.Equal(t, []string{"m1", "m2", "m3"}, snap.Snapshot.MessageIDs)
}

func TestBridge_CloseReleasesWait(t *testing.T) {
	store := transcript.New(transcript.WithThrottle(0))
	defer store.Close()

	b := NewBridge(store)
	done := make(chan tea.Msg, 1)
	go func() { done <- b.Wait()() }()

	b.Close()
	b.Close()
	select {
	case got := <-done:
		assert.Nil(t, got)
	case <-time.After(2 * time.Second):
		t.Fatal("Wait did not return after Close")
	}
}

// =============================================================================
// MODEL
// =============================================================================

func TestModel_SelectAndNavigateSiblings(t *testing.T) {
	sess := branchedSession(t)
	m := New(sess, "Branches", nil, styles.PlainTheme())
	defer m.Close()

	m = update(t, m, tea.WindowSizeMsg{Width: 80, Height: 30})
	assert.Equal(t, []string{"u1b", "a1b"}, ids(m.messages))
	id, _ := m.Selected()
	assert.Equal(t, "a1b", id, "the last message starts selected")

	m = update(t, m, tea.KeyMsg{Type: tea.KeyUp})
	id, _ = m.Selected()
	assert.Equal(t, "u1b", id)

	m = update(t, m, tea.KeyMsg{Type: tea.KeyLeft})
	m = drain(t, m)
	assert.Equal(t, []string{"u1", "a1"}, ids(m.messages))
	id, _ = m.Selected()
	assert.Equal(t, "u1", id, "selection moves to the sibling")
	assert.Contains(t, m.View(), "< 1/2 >")

	m = update(t, m, tea.KeyMsg{Type: tea.KeyRight})
	m = drain(t, m)
	assert.Equal(t, []string{"u1b", "a1b"}, ids(m.messages))
}

func TestModel_NavigateWithoutSiblings(t *testing.T) {
	sess := branchedSession(t)
	m := New(sess, "", nil, styles.PlainTheme())
	defer m.Close()
	m = update(t, m, tea.WindowSizeMsg{Width: 80, Height: 30})

	m = update(t, m, tea.KeyMsg{Type: tea.KeyRight})
	assert.Equal(t, "no other versions of this message", m.notice)
	assert.Contains(t, m.View(), "no other versions")
	assert.Equal(t, []string{"u1b", "a1b"}, ids(m.messages))
}

func TestModel_SnapshotShowsStreamingStatus(t *testing.T) {
	sess := branchedSession(t)
	m := New(sess, "Live", nil, styles.PlainTheme())
	defer m.Close()
	m = update(t, m, tea.WindowSizeMsg{Width: 80, Height: 30})

	_, err := sess.SendUserMessage("and then?")
	require.NoError(t, err)
	_, err = sess.BeginAssistant("")
	require.NoError(t, err)
	require.NoError(t, sess.UpdateAssistant([]model.Part{{Type: model.PartText, Text: "Partial **answ", State: model.StateStreaming}}))

	m = drain(t, m)
	assert.Len(t, m.messages, 4)
	assert.Equal(t, transcript.StatusStreaming, m.status)
	view := m.View()
	assert.Contains(t, view, "[*] streaming")
	assert.Contains(t, view, "Partial **answ**")
}

func TestModel_Quit(t *testing.T) {
	sess := branchedSession(t)
	m := New(sess, "", nil, styles.PlainTheme())

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}

func TestModel_ViewBeforeResize(t *testing.T) {
	sess := branchedSession(t)
	m := New(sess, "", nil, styles.PlainTheme())
	defer m.Close()
	assert.Equal(t, "Loading transcript...", m.View())
}
