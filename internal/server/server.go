// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/jeranaias/rigrun-transcript/internal/logging"
	"github.com/jeranaias/rigrun-transcript/internal/model"
	"github.com/jeranaias/rigrun-transcript/internal/storage"
	"github.com/jeranaias/rigrun-transcript/internal/telemetry"
	"github.com/jeranaias/rigrun-transcript/internal/tree"
)

// ============================================================================
// CONSTANTS
// ============================================================================

const (
	// DefaultAddr is the default listen address.
	DefaultAddr = "127.0.0.1:8787"

	// DefaultRateLimit is the default number of requests per minute per IP.
	DefaultRateLimit = 120

	// Version is the API version.
	Version = "0.1.0"
)

// ============================================================================
// SERVER
// ============================================================================

// ChatSource is where the server reads chats from. storage.DB implements it.
type ChatSource interface {
	GetChat(ctx context.Context, id string) (storage.Chat, error)
	ListChats(ctx context.Context, vis storage.Visibility) ([]storage.Chat, error)
	LoadMessages(ctx context.Context, chatID string) ([]model.Message, error)
}

// Config configures the server.
type Config struct {
	// Addr is the listen address. Default: 127.0.0.1:8787
	Addr string

	// RateLimit is the number of requests per minute per client IP.
	// Zero or less disables rate limiting.
	RateLimit int
}

// Server is the read-only HTTP API over shared chats.
type Server struct {
	cfg     Config
	source  ChatSource
	metrics *telemetry.Collector
	logger  *slog.Logger

	router    chi.Router
	server    *http.Server
	startTime time.Time
}

// Option configures a Server.
type Option func(*Server)

// WithMetrics records request metrics and serves them on /metrics.
func WithMetrics(c *telemetry.Collector) Option {
	return func(s *Server) {
		s.metrics = c
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logging.OrDiscard(l)
	}
}

// New creates a server reading from source.
func New(source ChatSource, cfg Config, opts ...Option) *Server {
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	s := &Server{
		cfg:       cfg,
		source:    source,
		logger:    logging.OrDiscard(nil),
		startTime: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.setupRoutes()
	s.server = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.cfg.Addr
}

// Handler returns the fully wired HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ============================================================================
// ROUTES
// ============================================================================

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	r := chi.NewRouter()

	var metrics RequestMetrics
	if s.metrics != nil {
		metrics = s.metrics
	}

	r.Use(RecoveryMiddleware(s.logger))
	r.Use(SecurityHeadersMiddleware())
	r.Use(LoggingMiddleware(s.logger, metrics))
	if s.cfg.RateLimit > 0 {
		r.Use(RateLimitMiddleware(NewRateLimiter(s.cfg.RateLimit), s.logger))
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		s.writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Get("/health", s.handleHealth)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	r.Route("/v1/chats", func(r chi.Router) {
		r.Get("/", s.handleListChats)
		r.Get("/{chatID}", s.handleGetChat)
		r.Get("/{chatID}/messages/{messageID}/siblings", s.handleSiblings)
	})

	s.router = r
}

// ============================================================================
// RESPONSE TYPES
// ============================================================================

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Uptime  string `json:"uptime"`
}

// ChatListResponse lists shared chats.
type ChatListResponse struct {
	Chats []storage.Chat `json:"chats"`
}

// ChatResponse is a chat with one thread of its history.
type ChatResponse struct {
	Chat     storage.Chat    `json:"chat"`
	Messages []model.Message `json:"messages"`
}

// SiblingsResponse describes a message's position among its siblings.
type SiblingsResponse struct {
	MessageID string   `json:"messageId"`
	ParentID  string   `json:"parentId,omitempty"`
	Siblings  []string `json:"siblings"`
	Index     int      `json:"index"`
}

// ============================================================================
// HANDLERS
// ============================================================================

// handleHealth handles GET /health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, HealthResponse{
		Status:  "ok",
		Version: Version,
		Uptime:  time.Since(s.startTime).Round(time.Second).String(),
	})
}

// handleListChats handles GET /v1/chats.
func (s *Server) handleListChats(w http.ResponseWriter, r *http.Request) {
	chats, err := s.source.ListChats(r.Context(), storage.VisibilityPublic)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	if chats == nil {
		chats = []storage.Chat{}
	}
	s.writeJSON(w, http.StatusOK, ChatListResponse{Chats: chats})
}

// handleGetChat handles GET /v1/chats/{chatID}. The thread is the most
// recent branch unless ?leaf= names the message to end at.
func (s *Server) handleGetChat(w http.ResponseWriter, r *http.Request) {
	chat, history, ok := s.loadPublic(w, r)
	if !ok {
		return
	}

	t := tree.Build(history)
	thread := t.LatestThread()
	if leaf := r.URL.Query().Get("leaf"); leaf != "" {
		if _, found := t.Message(leaf); !found {
			s.writeError(w, http.StatusNotFound, "message not found")
			return
		}
		thread = t.PathTo(leaf)
	}
	if thread == nil {
		thread = []model.Message{}
	}

	s.writeJSON(w, http.StatusOK, ChatResponse{Chat: chat, Messages: thread})
}

// handleSiblings handles GET /v1/chats/{chatID}/messages/{messageID}/siblings.
func (s *Server) handleSiblings(w http.ResponseWriter, r *http.Request) {
	_, history, ok := s.loadPublic(w, r)
	if !ok {
		return
	}

	messageID := chi.URLParam(r, "messageID")
	t := tree.Build(history)
	info, found := t.SiblingInfo(messageID)
	if !found {
		s.writeError(w, http.StatusNotFound, "message not found")
		return
	}

	resp := SiblingsResponse{
		MessageID: messageID,
		Siblings:  info.Siblings,
		Index:     info.Index,
	}
	if parent, ok := t.Parent(messageID); ok {
		resp.ParentID = parent.ID
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// loadPublic loads a public chat and its history. Private and missing
// chats both answer 404.
func (s *Server) loadPublic(w http.ResponseWriter, r *http.Request) (storage.Chat, []model.Message, bool) {
	chatID := chi.URLParam(r, "chatID")

	chat, err := s.source.GetChat(r.Context(), chatID)
	if errors.Is(err, storage.ErrChatNotFound) || (err == nil && chat.Visibility != storage.VisibilityPublic) {
		s.writeError(w, http.StatusNotFound, "chat not found")
		return storage.Chat{}, nil, false
	}
	if err != nil {
		s.internalError(w, r, err)
		return storage.Chat{}, nil, false
	}

	history, err := s.source.LoadMessages(r.Context(), chatID)
	if err != nil {
		s.internalError(w, r, err)
		return storage.Chat{}, nil, false
	}
	return chat, history, true
}

// ============================================================================
// SERVER LIFECYCLE
// ============================================================================

// Start starts the HTTP server and blocks until it stops. It returns nil
// after Shutdown, even when Shutdown ran first.
func (s *Server) Start() error {
	s.logger.Info("SERVER_START", "addr", s.cfg.Addr, "version", Version)
	err := s.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("SERVER_SHUTDOWN")
	return s.server.Shutdown(ctx)
}

// ============================================================================
// HELPERS
// ============================================================================

// writeJSON writes a JSON response.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug("RESPONSE_WRITE_FAILED", "error", err)
	}
}

// writeError writes a JSON error response.
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"message": message,
			"code":    status,
		},
	})
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, err error) {
	s.logger.Error("REQUEST_FAILED", "path", r.URL.Path, "error", err)
	s.writeError(w, http.StatusInternalServerError, "internal error")
}
