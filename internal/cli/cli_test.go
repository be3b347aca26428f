// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/rigrun-transcript/internal/config"
	"github.com/jeranaias/rigrun-transcript/internal/export"
	"github.com/jeranaias/rigrun-transcript/internal/model"
	"github.com/jeranaias/rigrun-transcript/internal/storage"
)

// =============================================================================
// HARNESS
// =============================================================================

const replayFixture = `{"type":"start","messageId":"srv-1"}
{"type":"start-step"}
{"type":"reasoning-start","id":"r1"}
{"type":"reasoning-delta","id":"r1","delta":"Thinking"}
{"type":"reasoning-end","id":"r1"}
{"type":"tool-input-start","toolCallId":"c1","toolName":"webSearch"}
{"type":"tool-input-available","toolCallId":"c1","toolName":"webSearch","input":{"query":"go"}}
{"type":"tool-output-available","toolCallId":"c1","output":{"hits":1}}
{"type":"text-start","id":"t1"}
{"type":"text-delta","id":"t1","delta":"Hello "}
{"type":"text-delta","id":"t1","delta":"**world**"}
{"type":"text-end","id":"t1"}
{"type":"source-url","sourceId":"s1","url":"https://go.dev","title":"Go"}
{"type":"finish"}
`

type harness struct {
	dir    string
	db     string
	config string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	for _, k := range []string{
		"TRANSCRIPT_CONFIG", "TRANSCRIPT_THROTTLE_MS", "TRANSCRIPT_DB",
		"TRANSCRIPT_LOG_LEVEL", "TRANSCRIPT_LISTEN", "NO_COLOR", "FORCE_COLOR",
	} {
		t.Setenv(k, "")
	}
	dir := t.TempDir()
	return &harness{
		dir:    dir,
		db:     filepath.Join(dir, "chats.db"),
		config: filepath.Join(dir, "config.toml"),
	}
}

func (h *harness) runContext(ctx context.Context, args ...string) (stdout, stderr string, err error) {
	var out, errOut bytes.Buffer
	app := NewApp(&out, &errOut)
	defer app.Close()

	root := NewRootCommand(app)
	root.SetArgs(append([]string{"--config", h.config, "--db", h.db, "--log-level", "error"}, args...))
	err = root.ExecuteContext(ctx)
	return out.String(), errOut.String(), err
}

func (h *harness) run(args ...string) (stdout, stderr string, err error) {
	return h.runContext(context.Background(), args...)
}

func (h *harness) writeFixture(t *testing.T) string {
	t.Helper()
	path := filepath.Join(h.dir, "reply.ndjson")
	require.NoError(t, os.WriteFile(path, []byte(replayFixture), 0o644))
	return path
}

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

// seed stores chat c1, whose first question was edited once.
func (h *harness) seed(t *testing.T) {
	t.Helper()
	db, err := storage.Open(h.db)
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	require.NoError(t, db.SaveChat(ctx, storage.Chat{ID: "c1", Title: "Branches"}))
	require.NoError(t, db.SaveMessages(ctx, "c1", []model.Message{
		msg("u1", model.RoleUser, "", "first question", 0),
		msg("a1", model.RoleAssistant, "u1", "first answer", 1),
		msg("u1b", model.RoleUser, "", "edited question", 2),
		msg("a1b", model.RoleAssistant, "u1b", "edited answer", 3),
	}))
}

type envelope[T any] struct {
	Success bool   `json:"success"`
	Command string `json:"command"`
	Data    T      `json:"data"`
}

func decode[T any](t *testing.T, s string) T {
	t.Helper()
	var env envelope[T]
	require.NoError(t, json.Unmarshal([]byte(s), &env), s)
	require.True(t, env.Success)
	return env.Data
}

func messageIDs(msgs []model.Message) []string {
	ids := make([]string, len(msgs))
	for i, m := range msgs {
		ids[i] = m.ID
	}
	return ids
}

// =============================================================================
// REPLAY
// =============================================================================

func TestReplay_PrintsAndSaves(t *testing.T) {
	h := newHarness(t)
	file := h.writeFixture(t)

	out, errOut, err := h.run("replay", file, "--prompt", "Say hello", "--title", "Greeting")
	require.NoError(t, err)

	assert.Contains(t, out, "Say hello")
	assert.Contains(t, out, "Reasoning: Thinking")
	assert.Contains(t, out, `[OK] tool webSearch {"query":"go"}`)
	assert.Contains(t, out, "Hello **world**")
	assert.Contains(t, out, "Sources:\n  - Go <https://go.dev>")
	assert.Contains(t, errOut, "Saved chat ")

	out, _, err = h.run("--json", "chats", "list")
	require.NoError(t, err)
	chats := decode[ChatListData](t, out).Chats
	require.Len(t, chats, 1)
	assert.Equal(t, "Greeting", chats[0].Title)
	assert.Equal(t, storage.VisibilityPrivate, chats[0].Visibility)
	assert.Equal(t, 2, chats[0].MessageCount)
}

func TestReplay_AppendsToChatAsJSON(t *testing.T) {
	h := newHarness(t)
	h.seed(t)
	file := h.writeFixture(t)

	out, _, err := h.run("--json", "replay", file, "--chat", "c1", "--model", "replay-model")
	require.NoError(t, err)

	data := decode[ThreadData](t, out)
	assert.Equal(t, "c1", data.Chat.ID)
	assert.Equal(t, "Branches", data.Chat.Title)
	require.Len(t, data.Messages, 3)
	assert.Equal(t, []string{"u1b", "a1b"}, messageIDs(data.Messages[:2]))

	reply := data.Messages[2]
	assert.Equal(t, model.RoleAssistant, reply.Role)
	assert.Equal(t, "a1b", reply.Metadata.ParentMessageID)
	assert.Equal(t, "replay-model", reply.Metadata.Model)
	assert.False(t, reply.Metadata.Partial)
	assert.Equal(t, "Hello **world**", reply.Text())
	assert.Equal(t, 5, data.Chat.MessageCount)
}

func TestReplay_NoSave(t *testing.T) {
	h := newHarness(t)
	file := h.writeFixture(t)

	out, errOut, err := h.run("replay", file, "--no-save")
	require.NoError(t, err)
	assert.Contains(t, out, "Hello **world**")
	assert.NotContains(t, errOut, "Saved chat")

	_, statErr := os.Stat(h.db)
	assert.True(t, os.IsNotExist(statErr), "database must not be created")
}

func TestReplay_MissingFile(t *testing.T) {
	h := newHarness(t)

	_, _, err := h.run("replay", filepath.Join(h.dir, "nope.ndjson"))
	var cmdErr *CommandError
	require.ErrorAs(t, err, &cmdErr)
	assert.Equal(t, "replay", cmdErr.Command)
}

// =============================================================================
// SHOW AND SIBLINGS
// =============================================================================

func TestShow_LatestThread(t *testing.T) {
	h := newHarness(t)
	h.seed(t)

	out, _, err := h.run("show", "c1")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(out, "Branches\nc1  private  4 messages\n"))
	assert.Contains(t, out, "edited question")
	assert.Contains(t, out, "edited answer")
	assert.NotContains(t, out, "first question")
	assert.Contains(t, out, "  You  < 2/2 >")
}

func TestShow_Leaf(t *testing.T) {
	h := newHarness(t)
	h.seed(t)

	out, _, err := h.run("--json", "show", "c1", "--leaf", "a1")
	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "a1"}, messageIDs(decode[ThreadData](t, out).Messages))

	_, _, err = h.run("show", "c1", "--leaf", "nope")
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "message", nf.Resource)
}

func TestShow_UnknownChat(t *testing.T) {
	h := newHarness(t)
	h.seed(t)

	_, _, err := h.run("show", "missing")
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "chat", nf.Resource)
	assert.Equal(t, ExitNotFoundError, ExitCode(err))
}

func TestSiblings(t *testing.T) {
	h := newHarness(t)
	h.seed(t)

	out, _, err := h.run("siblings", "c1", "u1b")
	require.NoError(t, err)
	assert.Contains(t, out, "Message u1b is version 2 of 2\n")
	assert.Contains(t, out, "  1. u1  2025-06-01 09:00  first question\n")
	assert.Contains(t, out, "* 2. u1b  2025-06-01 09:02  edited question\n")
	assert.NotContains(t, out, "Parent:")

	out, _, err = h.run("--json", "siblings", "c1", "a1")
	require.NoError(t, err)
	data := decode[SiblingsData](t, out)
	assert.Equal(t, "u1", data.ParentID)
	assert.Equal(t, 0, data.Index)
	require.Len(t, data.Siblings, 1)
	assert.Equal(t, "first answer", data.Siblings[0].Preview)

	_, _, err = h.run("siblings", "c1", "nope")
	assert.Equal(t, ExitNotFoundError, ExitCode(err))
}

// =============================================================================
// EXPORT
// =============================================================================

func TestExport_Stdout(t *testing.T) {
	h := newHarness(t)
	h.seed(t)

	out, _, err := h.run("export", "c1", "--format", "json", "--stdout")
	require.NoError(t, err)

	var doc export.Document
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	assert.Equal(t, "Branches", doc.Chat.Title)
	assert.Equal(t, []string{"u1b", "a1b"}, messageIDs(doc.Messages))
}

func TestExport_File(t *testing.T) {
	h := newHarness(t)
	h.seed(t)
	outDir := filepath.Join(h.dir, "exports")

	out, _, err := h.run("export", "c1", "--format", "yaml", "--out", outDir, "--leaf", "a1")
	require.NoError(t, err)
	assert.Contains(t, out, "Exported 2 messages to ")

	matches, err := filepath.Glob(filepath.Join(outDir, "chat_*.yaml"))
	require.NoError(t, err)
	require.Len(t, matches, 1)
	content, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	assert.Contains(t, string(content), "first answer")
	assert.NotContains(t, string(content), "edited answer")
}

func TestExport_UnsupportedFormat(t *testing.T) {
	h := newHarness(t)
	h.seed(t)

	_, _, err := h.run("export", "c1", "--format", "pdf")
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "format", ve.Field)
	assert.Equal(t, ExitUsageError, ExitCode(err))
}

// =============================================================================
// CHATS
// =============================================================================

func TestChats_ShareRenameDelete(t *testing.T) {
	h := newHarness(t)
	h.seed(t)

	out, _, err := h.run("--json", "chats", "list", "--visibility", "public")
	require.NoError(t, err)
	assert.Empty(t, decode[ChatListData](t, out).Chats)

	_, _, err = h.run("chats", "share", "c1")
	require.NoError(t, err)
	out, _, err = h.run("--json", "chats", "list", "--visibility", "public")
	require.NoError(t, err)
	require.Len(t, decode[ChatListData](t, out).Chats, 1)

	_, _, err = h.run("chats", "rename", "c1", "Edited questions")
	require.NoError(t, err)
	out, _, err = h.run("chats", "search", "EDITED")
	require.NoError(t, err)
	assert.Contains(t, out, "Edited questions")
	assert.Contains(t, out, "public")

	_, _, err = h.run("chats", "delete", "c1")
	require.NoError(t, err)
	out, _, err = h.run("chats", "list")
	require.NoError(t, err)
	assert.Equal(t, "No chats found.\n", out)

	_, _, err = h.run("chats", "delete", "c1")
	assert.Equal(t, ExitNotFoundError, ExitCode(err))
}

func TestChats_InvalidVisibility(t *testing.T) {
	h := newHarness(t)

	_, _, err := h.run("chats", "list", "--visibility", "secret")
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "visibility", ve.Field)
}

// =============================================================================
// CONFIG
// =============================================================================

func TestConfig_SetAndGet(t *testing.T) {
	h := newHarness(t)

	out, _, err := h.run("config", "set", "store.throttle_ms", "50")
	require.NoError(t, err)
	assert.Equal(t, "store.throttle_ms = 50\n", out)

	info, err := os.Stat(h.config)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	out, _, err = h.run("config", "get", "store.throttle_ms")
	require.NoError(t, err)
	assert.Equal(t, "50\n", out)

	// Flag overrides are not written back.
	cfg, err := config.LoadFromPath(h.config)
	require.NoError(t, err)
	assert.Empty(t, cfg.Storage.Path)
}

func TestConfig_SetRejectsInvalid(t *testing.T) {
	h := newHarness(t)

	_, _, err := h.run("config", "set", "store.throttle_ms", "-5")
	assert.Equal(t, ExitConfigError, ExitCode(err))

	_, _, err = h.run("config", "set", "no.such_key", "1")
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)

	_, statErr := os.Stat(h.config)
	assert.True(t, os.IsNotExist(statErr))
}

func TestConfig_InvalidFileFailsEveryCommand(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, os.WriteFile(h.config, []byte("[store]\nthrottle_ms = 99999\n"), 0o600))

	_, _, err := h.run("chats", "list")
	require.Error(t, err)
	assert.Equal(t, ExitConfigError, ExitCode(err))
}

// =============================================================================
// VIEW AND SERVE
// =============================================================================

func TestView_RequiresTerminal(t *testing.T) {
	h := newHarness(t)
	h.seed(t)

	_, _, err := h.run("view", "c1")
	var tty *TTYRequiredError
	require.ErrorAs(t, err, &tty)
}

func TestServe_StopsOnCancel(t *testing.T) {
	h := newHarness(t)
	h.seed(t)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(200*time.Millisecond, cancel)

	_, errOut, err := h.runContext(ctx, "serve", "--addr", "127.0.0.1:0")
	require.NoError(t, err)
	assert.Contains(t, errOut, "Serving shared chats on http://127.0.0.1:0")
}

// =============================================================================
// ERRORS AND TERMINAL
// =============================================================================

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitSuccess},
		{"validation", NewValidationError("format", "pdf", "unsupported", ""), ExitUsageError},
		{"not found", NewNotFoundError("chat", "x"), ExitNotFoundError},
		{"wrapped storage not found", NewCommandError("chats", "get", storage.ErrChatNotFound), ExitNotFoundError},
		{"config", config.ValidateErrors{{Field: "log.level", Message: "bad"}}, ExitConfigError},
		{"other", errors.New("boom"), ExitGeneralError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExitCode(tt.err))
		})
	}
}

func TestDisplayError(t *testing.T) {
	var buf bytes.Buffer
	DisplayError(&buf, NewNotFoundError("chat", "c9"), false)
	assert.Equal(t, "Error: chat not found: c9\n", buf.String())

	buf.Reset()
	DisplayError(&buf, NewNotFoundError("chat", "c9"), true)
	var out map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	assert.Equal(t, false, out["success"])
	assert.Equal(t, "not_found_error", out["error_type"])
	assert.Equal(t, "c9", out["id"])
}

func TestColorsEnabled(t *testing.T) {
	var buf bytes.Buffer

	t.Setenv("NO_COLOR", "")
	t.Setenv("FORCE_COLOR", "")
	t.Setenv("TERM", "xterm-256color")
	assert.False(t, ColorsEnabled(&buf), "a buffer is not a terminal")

	t.Setenv("FORCE_COLOR", "1")
	assert.True(t, ColorsEnabled(&buf))

	t.Setenv("NO_COLOR", "1")
	assert.False(t, ColorsEnabled(&buf))
	assert.Equal(t, DefaultTerminalWidth, TerminalWidth(&buf))
}
