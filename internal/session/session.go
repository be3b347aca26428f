// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/text/unicode/norm"

	"github.com/jeranaias/rigrun-transcript/internal/logging"
	"github.com/jeranaias/rigrun-transcript/internal/model"
	"github.com/jeranaias/rigrun-transcript/internal/transcript"
	"github.com/jeranaias/rigrun-transcript/internal/tree"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	ErrEmptyMessage   = errors.New("message text is empty")
	ErrInFlight       = errors.New("an assistant response is already streaming")
	ErrNoInFlight     = errors.New("no assistant response is streaming")
	ErrNotEditable    = errors.New("only user messages in the active thread can be edited")
	ErrNothingToRetry = errors.New("no user message to retry from")
	ErrNoSiblings     = errors.New("message has no resolvable siblings")
	ErrNoPersister    = errors.New("no persister configured")
)

// =============================================================================
// PERSISTENCE BOUNDARY
// =============================================================================

// Persister stores finalized messages. The session hands messages over and
// never writes anything itself. storage.DB implements it.
type Persister interface {
	SaveMessages(ctx context.Context, chatID string, msgs []model.Message) error
}

// =============================================================================
// CONFIG
// =============================================================================

// Config holds configuration for a chat session.
type Config struct {
	// Model is the default model id stamped on assistant messages.
	Model string

	// AutoSaveEnabled saves finalized messages as soon as a turn finishes.
	AutoSaveEnabled bool

	// AutoSaveInterval is how often the TUI tick flushes unsaved messages
	// (default: 30 seconds).
	AutoSaveInterval time.Duration
}

// DefaultConfig returns the default session configuration.
func DefaultConfig() Config {
	return Config{
		AutoSaveEnabled:  true,
		AutoSaveInterval: 30 * time.Second,
	}
}

// =============================================================================
// SESSION
// =============================================================================

// Session drives one chat: the active transcript in a transcript.Store, the
// full branching history behind it, and the hand-off of finished messages
// to a Persister.
type Session struct {
	mu sync.Mutex

	store     *transcript.Store
	persister Persister
	logger    *slog.Logger

	history []model.Message
	index   map[string]int
	tree    *tree.Tree

	inflight string
	dirty    map[string]bool

	startTime    time.Time
	lastActivity time.Time
	lastAutoSave time.Time

	modelID          string
	autoSaveEnabled  bool
	autoSaveInterval time.Duration

	onAutoSaveError func(error)
}

// New creates a session over store. persister may be nil, in which case
// Save reports ErrNoPersister and nothing is auto-saved.
func New(store *transcript.Store, persister Persister, cfg Config, logger *slog.Logger) *Session {
	now := time.Now()
	return &Session{
		store:            store,
		persister:        persister,
		logger:           logging.OrDiscard(logger),
		index:            make(map[string]int),
		dirty:            make(map[string]bool),
		startTime:        now,
		lastActivity:     now,
		lastAutoSave:     now,
		modelID:          cfg.Model,
		autoSaveEnabled:  cfg.AutoSaveEnabled,
		autoSaveInterval: cfg.AutoSaveInterval,
	}
}

// Store returns the transcript store the session drives.
func (s *Session) Store() *transcript.Store {
	return s.store
}

// SetAutoSaveErrorCallback sets the function called when an automatic save
// fails. Errors from explicit Save calls are returned instead.
func (s *Session) SetAutoSaveErrorCallback(fn func(error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onAutoSaveError = fn
}

// Load installs a chat. history is the full message set including inactive
// branches; the active transcript becomes its most recent thread.
func (s *Session) Load(chatID string, history []model.Message) {
	s.mu.Lock()
	s.history = slices.Clone(history)
	s.rebuildLocked()
	s.inflight = ""
	clear(s.dirty)
	thread := s.tree.LatestThread()
	s.mu.Unlock()

	s.store.SetNewChat(chatID, thread)
	s.logger.Info("CHAT_LOADED", "chat", chatID, "history", len(history), "active", len(thread))
}

// History returns a copy of the full message set.
func (s *Session) History() []model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.history)
}

// Tree returns the index over the full history.
func (s *Session) Tree() *tree.Tree {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tree
}

// rebuildLocked must be called with mu held.
func (s *Session) rebuildLocked() {
	s.index = make(map[string]int, len(s.history))
	for i, m := range s.history {
		s.index[m.ID] = i
	}
	s.tree = tree.Build(s.history)
}

// recordLocked adds or updates msg in the history. mu must be held.
func (s *Session) recordLocked(msg model.Message) {
	if i, ok := s.index[msg.ID]; ok {
		s.history[i] = msg
		s.tree = tree.Build(s.history)
		return
	}
	s.history = append(s.history, msg)
	s.index[msg.ID] = len(s.history) - 1
	s.tree = tree.Build(s.history)
}

// removeLocked drops id from the history. mu must be held.
func (s *Session) removeLocked(id string) {
	i, ok := s.index[id]
	if !ok {
		return
	}
	s.history = slices.Delete(s.history, i, i+1)
	delete(s.dirty, id)
	s.rebuildLocked()
}

func (s *Session) touchLocked() {
	s.lastActivity = time.Now()
}

// =============================================================================
// TURN FLOW
// =============================================================================

// SendUserMessage appends a user message under the current leaf and moves
// the store to submitted. The text is NFC-normalized.
func (s *Session) SendUserMessage(text string) (model.Message, error) {
	text = norm.NFC.String(text)
	if strings.TrimSpace(text) == "" {
		return model.Message{}, ErrEmptyMessage
	}

	s.mu.Lock()
	if s.inflight != "" {
		s.mu.Unlock()
		return model.Message{}, ErrInFlight
	}
	msg := model.NewUserMessage(text)
	msg.Metadata.ParentMessageID, _ = s.store.LastMessageID()
	s.recordLocked(msg)
	s.dirty[msg.ID] = true
	s.touchLocked()
	s.mu.Unlock()

	s.store.PushMessage(msg)
	s.store.SetStatus(transcript.StatusSubmitted)
	return msg, nil
}

// BeginAssistant appends an empty, partial assistant message and moves the
// store to streaming. An empty modelID uses the configured default.
func (s *Session) BeginAssistant(modelID string) (model.Message, error) {
	s.mu.Lock()
	if s.inflight != "" {
		s.mu.Unlock()
		return model.Message{}, ErrInFlight
	}
	if modelID == "" {
		modelID = s.modelID
	}
	msg := model.NewAssistantMessage(modelID)
	msg.Metadata.ParentMessageID, _ = s.store.LastMessageID()
	s.recordLocked(msg)
	s.inflight = msg.ID
	s.mu.Unlock()

	s.store.PushMessage(msg)
	s.store.SetStatus(transcript.StatusStreaming)
	return msg, nil
}

// InFlight returns the id of the streaming assistant message.
func (s *Session) InFlight() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inflight, s.inflight != ""
}

// UpdateAssistant replaces the parts of the streaming message. Each call
// is expected to pass a new slice.
func (s *Session) UpdateAssistant(parts []model.Part) error {
	s.mu.Lock()
	id := s.inflight
	s.mu.Unlock()
	if id == "" {
		return ErrNoInFlight
	}

	s.store.UpdateParts(id, parts)

	if msg, ok := s.store.Message(id); ok {
		s.mu.Lock()
		if i, ok := s.index[id]; ok {
			s.history[i] = msg
		}
		s.mu.Unlock()
	}
	return nil
}

// FinishAssistant finalizes the streaming message: text parts are marked
// done, the partial flag is cleared and the store returns to ready. With
// auto-save on, the unsaved messages go to the persister.
func (s *Session) FinishAssistant(ctx context.Context) (model.Message, error) {
	msg, err := s.finalize(false)
	if err != nil {
		return model.Message{}, err
	}

	s.mu.Lock()
	auto := s.autoSaveEnabled && s.persister != nil
	onErr := s.onAutoSaveError
	s.mu.Unlock()

	if auto {
		if err := s.Save(ctx); err != nil {
			s.logger.Error("AUTOSAVE_FAILED", "chat", s.store.ChatID(), "error", err)
			if onErr != nil {
				onErr(err)
			}
		}
	}
	return msg, nil
}

// Stop ends streaming early. The message keeps what arrived so far and
// stays marked partial.
func (s *Session) Stop() (model.Message, error) {
	return s.finalize(true)
}

func (s *Session) finalize(partial bool) (model.Message, error) {
	s.mu.Lock()
	id := s.inflight
	s.mu.Unlock()
	if id == "" {
		return model.Message{}, ErrNoInFlight
	}

	msg, ok := s.store.Message(id)
	if !ok {
		return model.Message{}, fmt.Errorf("finalize %s: %w", id, ErrNoInFlight)
	}
	msg = msg.Clone()
	msg.Metadata.Partial = partial
	for i := range msg.Parts {
		if msg.Parts[i].State == model.StateStreaming {
			msg.Parts[i].State = model.StateDone
		}
	}
	s.store.ReplaceMessage(s.store.IndexOf(id), msg)

	s.mu.Lock()
	s.recordLocked(msg)
	s.dirty[id] = true
	s.inflight = ""
	s.touchLocked()
	s.mu.Unlock()

	s.store.SetStatus(transcript.StatusReady)
	s.store.Flush()
	return msg, nil
}

// Fail records an upstream error. Committed messages stay; the in-flight
// message is kept until DiscardInFlight or Retry.
func (s *Session) Fail(err error) {
	s.store.SetError(err)
}

// DiscardInFlight pops a partial assistant message off the transcript and
// out of the history, and clears any stored error.
func (s *Session) DiscardInFlight() (model.Message, bool) {
	msgs := s.store.InternalMessages()
	if len(msgs) == 0 {
		return model.Message{}, false
	}
	last := msgs[len(msgs)-1]
	if last.Role != model.RoleAssistant || !last.Metadata.Partial {
		return model.Message{}, false
	}

	s.store.PopMessage()

	s.mu.Lock()
	if s.inflight == last.ID {
		s.inflight = ""
	}
	s.removeLocked(last.ID)
	s.mu.Unlock()

	s.store.ClearError()
	s.logger.Debug("INFLIGHT_DISCARDED", "chat", s.store.ChatID(), "message", last.ID)
	return last, true
}

// Retry discards a partial answer, truncates the transcript back to the
// last user message and begins a new assistant reply there. A finished
// earlier answer is kept in the history as a sibling of the new one.
func (s *Session) Retry(modelID string) (model.Message, error) {
	s.DiscardInFlight()

	msgs := s.store.InternalMessages()
	cut := -1
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == model.RoleUser {
			cut = i
			break
		}
	}
	if cut < 0 {
		return model.Message{}, ErrNothingToRetry
	}
	if cut < len(msgs)-1 {
		s.store.SetMessages(msgs[:cut+1])
	}
	s.store.ClearError()
	return s.BeginAssistant(modelID)
}

// Edit forks the conversation at a user message: a new user message with
// the edited text becomes a sibling of the original, and the transcript is
// cut back to the original's prefix plus the new message. The original
// branch stays in the history.
func (s *Session) Edit(messageID, text string) (model.Message, error) {
	text = norm.NFC.String(text)
	if strings.TrimSpace(text) == "" {
		return model.Message{}, ErrEmptyMessage
	}

	s.mu.Lock()
	inflight := s.inflight != ""
	s.mu.Unlock()
	if inflight {
		return model.Message{}, ErrInFlight
	}

	idx := s.store.IndexOf(messageID)
	if idx < 0 {
		return model.Message{}, fmt.Errorf("edit %s: %w", messageID, ErrNotEditable)
	}
	msgs := s.store.InternalMessages()
	orig := msgs[idx]
	if orig.Role != model.RoleUser {
		return model.Message{}, fmt.Errorf("edit %s: %w", messageID, ErrNotEditable)
	}

	edited := model.NewUserMessage(text)
	edited.Metadata.ParentMessageID = orig.Metadata.ParentMessageID

	s.mu.Lock()
	s.recordLocked(edited)
	s.dirty[edited.ID] = true
	s.touchLocked()
	s.mu.Unlock()

	thread := append(slices.Clone(msgs[:idx]), edited)
	s.store.SetMessages(thread)
	s.store.SetStatus(transcript.StatusSubmitted)
	s.logger.Debug("MESSAGE_EDITED", "chat", s.store.ChatID(), "original", messageID, "edited", edited.ID)
	return edited, nil
}

// =============================================================================
// BRANCH NAVIGATION
// =============================================================================

// SiblingInfo reports the siblings of a message across the full history.
func (s *Session) SiblingInfo(id string) (tree.Info, bool) {
	return s.Tree().SiblingInfo(id)
}

// Parent returns the parent of a message.
func (s *Session) Parent(id string) (model.Message, bool) {
	return s.Tree().Parent(id)
}

// NavigateToSibling switches the active transcript to the neighbouring
// branch and returns the new leaf id.
func (s *Session) NavigateToSibling(id string, dir tree.Direction) (string, error) {
	s.mu.Lock()
	if s.inflight != "" {
		s.mu.Unlock()
		return "", ErrInFlight
	}
	t := s.tree
	s.touchLocked()
	s.mu.Unlock()

	if t == nil {
		return "", ErrNoSiblings
	}
	thread, leaf, ok := t.Navigate(id, dir)
	if !ok {
		return "", fmt.Errorf("navigate %s: %w", id, ErrNoSiblings)
	}

	s.store.SetMessages(thread)
	s.store.Flush()
	return leaf, nil
}

// =============================================================================
// PERSISTENCE
// =============================================================================

// IsDirty reports whether any message has not been saved yet.
func (s *Session) IsDirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.dirty) > 0
}

// Save hands every unsaved, non-streaming message to the persister, in
// history order.
func (s *Session) Save(ctx context.Context) error {
	s.mu.Lock()
	p := s.persister
	var pending []model.Message
	for _, m := range s.history {
		if s.dirty[m.ID] && m.ID != s.inflight {
			pending = append(pending, m.Clone())
		}
	}
	s.mu.Unlock()

	if p == nil {
		return ErrNoPersister
	}
	if len(pending) == 0 {
		return nil
	}

	chatID := s.store.ChatID()
	if err := p.SaveMessages(ctx, chatID, pending); err != nil {
		return fmt.Errorf("save chat %s: %w", chatID, err)
	}

	s.mu.Lock()
	for _, m := range pending {
		delete(s.dirty, m.ID)
	}
	s.lastAutoSave = time.Now()
	s.mu.Unlock()

	s.logger.Debug("CHAT_SAVED", "chat", chatID, "messages", len(pending))
	return nil
}

// ShouldAutoSave returns true if the periodic auto-save should run.
func (s *Session) ShouldAutoSave() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.autoSaveEnabled || s.persister == nil || len(s.dirty) == 0 {
		return false
	}
	return time.Since(s.lastAutoSave) >= s.autoSaveInterval
}

// =============================================================================
// BUBBLE TEA INTEGRATION
// =============================================================================

// AutoSaveMsg tells the TUI that unsaved messages should be persisted.
type AutoSaveMsg struct{}

// TickMsg drives the periodic auto-save check.
type TickMsg time.Time

// TickCmd returns a command that ticks once per second.
func TickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// HandleTick processes a tick and returns the follow-up commands.
func (s *Session) HandleTick() tea.Cmd {
	cmds := []tea.Cmd{TickCmd()}
	if s.ShouldAutoSave() {
		cmds = append(cmds, func() tea.Msg {
			return AutoSaveMsg{}
		})
	}
	return tea.Batch(cmds...)
}

// =============================================================================
// SESSION STATUS
// =============================================================================

// Status summarizes the session for status bars and the CLI.
type Status struct {
	ChatID    string
	Active    int
	History   int
	Unsaved   int
	Streaming bool
	Duration  time.Duration
	IdleTime  time.Duration
}

// GetStatus returns the current session status.
func (s *Session) GetStatus() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	return Status{
		ChatID:    s.store.ChatID(),
		Active:    s.store.Len(),
		History:   len(s.history),
		Unsaved:   len(s.dirty),
		Streaming: s.inflight != "",
		Duration:  now.Sub(s.startTime),
		IdleTime:  now.Sub(s.lastActivity),
	}
}

// FormatDuration returns a human-readable duration string.
func FormatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	mins := int(d.Minutes())
	secs := int(d.Seconds()) % 60
	if secs == 0 {
		return fmt.Sprintf("%dm", mins)
	}
	return fmt.Sprintf("%dm %ds", mins, secs)
}
