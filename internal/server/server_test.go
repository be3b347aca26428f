// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/rigrun-transcript/internal/logging"
	"github.com/jeranaias/rigrun-transcript/internal/model"
	"github.com/jeranaias/rigrun-transcript/internal/storage"
	"github.com/jeranaias/rigrun-transcript/internal/telemetry"
)

var _ ChatSource = (*storage.DB)(nil)

var epoch = time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

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

// newTestServer opens a database with one public chat holding an edited
// question (two branches) and one private chat.
func newTestServer(t *testing.T, opts ...Option) *Server {
	t.Helper()
	ctx := context.Background()

	db, err := storage.Open(filepath.Join(t.TempDir(), "transcript.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, db.SaveChat(ctx, storage.Chat{ID: "pub", Title: "Shared", Visibility: storage.VisibilityPublic}))
	require.NoError(t, db.SaveMessages(ctx, "pub", []model.Message{
		msg("u1", model.RoleUser, "", "first question", 0),
		msg("a1", model.RoleAssistant, "u1", "first answer", 1),
		msg("u1b", model.RoleUser, "", "edited question", 2),
		msg("a1b", model.RoleAssistant, "u1b", "edited answer", 3),
	}))

	require.NoError(t, db.SaveChat(ctx, storage.Chat{ID: "priv", Title: "Secret", Visibility: storage.VisibilityPrivate}))
	require.NoError(t, db.SaveMessages(ctx, "priv", []model.Message{
		msg("p1", model.RoleUser, "", "hidden", 0),
	}))

	return New(db, Config{}, opts...)
}

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func threadIDs(msgs []model.Message) []string {
	ids := make([]string, len(msgs))
	for i, m := range msgs {
		ids[i] = m.ID
	}
	return ids
}

// =============================================================================
// HANDLER TESTS
// =============================================================================

func TestNew_Defaults(t *testing.T) {
	s := New(nil, Config{})
	assert.Equal(t, DefaultAddr, s.Addr())
	assert.NotNil(t, s.Handler())
}

func TestHandleHealth(t *testing.T) {
	s := newTestServer(t)
	rec := get(t, s, "/health")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	health := decode[HealthResponse](t, rec)
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, Version, health.Version)
}

func TestHandleListChats_OnlyPublic(t *testing.T) {
	s := newTestServer(t)
	rec := get(t, s, "/v1/chats")

	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[ChatListResponse](t, rec)
	require.Len(t, list.Chats, 1)
	assert.Equal(t, "pub", list.Chats[0].ID)
	assert.Equal(t, 4, list.Chats[0].MessageCount)
}

func TestHandleGetChat_LatestThread(t *testing.T) {
	s := newTestServer(t)
	rec := get(t, s, "/v1/chats/pub")

	require.Equal(t, http.StatusOK, rec.Code)
	chat := decode[ChatResponse](t, rec)
	assert.Equal(t, "Shared", chat.Chat.Title)
	assert.Equal(t, []string{"u1b", "a1b"}, threadIDs(chat.Messages))
}

func TestHandleGetChat_Leaf(t *testing.T) {
	s := newTestServer(t)
	rec := get(t, s, "/v1/chats/pub?leaf=a1")

	require.Equal(t, http.StatusOK, rec.Code)
	chat := decode[ChatResponse](t, rec)
	assert.Equal(t, []string{"u1", "a1"}, threadIDs(chat.Messages))

	rec = get(t, s, "/v1/chats/pub?leaf=nope")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleGetChat_HidesPrivateAndMissing(t *testing.T) {
	s := newTestServer(t)

	for _, path := range []string{"/v1/chats/priv", "/v1/chats/missing", "/v1/chats/priv/messages/p1/siblings"} {
		rec := get(t, s, path)
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
		assert.NotContains(t, rec.Body.String(), "hidden", path)
	}
}

func TestHandleSiblings(t *testing.T) {
	s := newTestServer(t)

	rec := get(t, s, "/v1/chats/pub/messages/u1b/siblings")
	require.Equal(t, http.StatusOK, rec.Code)
	info := decode[SiblingsResponse](t, rec)
	assert.Equal(t, "u1b", info.MessageID)
	assert.Empty(t, info.ParentID)
	assert.Equal(t, []string{"u1", "u1b"}, info.Siblings)
	assert.Equal(t, 1, info.Index)

	rec = get(t, s, "/v1/chats/pub/messages/a1/siblings")
	require.Equal(t, http.StatusOK, rec.Code)
	info = decode[SiblingsResponse](t, rec)
	assert.Equal(t, "u1", info.ParentID)
	assert.Equal(t, []string{"a1"}, info.Siblings)
	assert.Equal(t, 0, info.Index)

	rec = get(t, s, "/v1/chats/pub/messages/nope/siblings")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestNotFoundAndMethodNotAllowed(t *testing.T) {
	s := newTestServer(t)

	rec := get(t, s, "/v1/unknown")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/v1/chats/pub", strings.NewReader("{}"))
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

type failingSource struct{}

func (failingSource) GetChat(context.Context, string) (storage.Chat, error) {
	return storage.Chat{}, errors.New("disk on fire")
}

func (failingSource) ListChats(context.Context, storage.Visibility) ([]storage.Chat, error) {
	return nil, errors.New("disk on fire")
}

func (failingSource) LoadMessages(context.Context, string) ([]model.Message, error) {
	return nil, errors.New("disk on fire")
}

func TestSourceErrors_Answer500(t *testing.T) {
	s := New(failingSource{}, Config{})

	for _, path := range []string{"/v1/chats", "/v1/chats/pub"} {
		rec := get(t, s, path)
		assert.Equal(t, http.StatusInternalServerError, rec.Code, path)
		assert.NotContains(t, rec.Body.String(), "disk on fire", path)
	}
}

// =============================================================================
// METRICS AND MIDDLEWARE TESTS
// =============================================================================

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, WithMetrics(telemetry.New()))

	require.Equal(t, http.StatusOK, get(t, s, "/v1/chats/pub").Code)

	rec := get(t, s, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `route="/v1/chats/{chatID}"`)
}

func TestMetricsEndpoint_DisabledWithoutCollector(t *testing.T) {
	s := newTestServer(t)
	assert.Equal(t, http.StatusNotFound, get(t, s, "/metrics").Code)
}

func TestRateLimiting(t *testing.T) {
	s := New(failingSource{}, Config{RateLimit: 2})

	assert.Equal(t, http.StatusOK, get(t, s, "/health").Code)
	assert.Equal(t, http.StatusOK, get(t, s, "/health").Code)

	rec := get(t, s, "/health")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "30", rec.Header().Get("Retry-After"))
}

func TestRateLimiter_PerIP(t *testing.T) {
	rl := NewRateLimiter(1)
	assert.True(t, rl.Allow("10.0.0.1"))
	assert.False(t, rl.Allow("10.0.0.1"))
	assert.True(t, rl.Allow("10.0.0.2"))
}

func TestRecoveryMiddleware(t *testing.T) {
	h := RecoveryMiddleware(logging.OrDiscard(nil))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		xff        string
		want       string
	}{
		{"direct", "203.0.113.9:5555", "", "203.0.113.9"},
		{"untrusted proxy ignored", "203.0.113.9:5555", "198.51.100.1", "203.0.113.9"},
		{"trusted proxy", "127.0.0.1:5555", "198.51.100.1, 10.0.0.1", "198.51.100.1"},
		{"trusted proxy bad header", "127.0.0.1:5555", "not-an-ip", "127.0.0.1"},
		{"no port", "192.0.2.4", "", "192.0.2.4"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			assert.Equal(t, tt.want, GetClientIP(req))
		})
	}
}
