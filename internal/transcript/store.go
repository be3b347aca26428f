// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package transcript

import (
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/jeranaias/rigrun-transcript/internal/logging"
	"github.com/jeranaias/rigrun-transcript/internal/markdown"
	"github.com/jeranaias/rigrun-transcript/internal/model"
	"github.com/jeranaias/rigrun-transcript/internal/throttle"
)

// =============================================================================
// STATUS
// =============================================================================

// Status is the streaming state of the chat session.
type Status string

const (
	StatusReady     Status = "ready"
	StatusSubmitted Status = "submitted"
	StatusStreaming Status = "streaming"
	StatusError     Status = "error"
)

// =============================================================================
// SNAPSHOT
// =============================================================================

// Snapshot is the state handed to subscribers by a notification pass.
// Every slice in it must be treated as read-only.
type Snapshot struct {
	ChatID     string
	Messages   []model.Message
	MessageIDs []string
	Status     Status
	Err        error
}

// Metrics receives store instrumentation. telemetry.Collector satisfies it.
type Metrics interface {
	ObserveMutation(op string)
	ObserveNotification(subscribers int, took time.Duration)
	ObserveCache(view string, hit bool)
}

type noopMetrics struct{}

func (noopMetrics) ObserveMutation(string)                 {}
func (noopMetrics) ObserveNotification(int, time.Duration) {}
func (noopMetrics) ObserveCache(string, bool)              {}

// =============================================================================
// OPTIONS
// =============================================================================

// Option configures a Store.
type Option func(*Store)

// WithThrottle sets the notification window. Zero notifies synchronously
// on every mutation.
func WithThrottle(d time.Duration) Option {
	return func(s *Store) {
		s.interval = d
	}
}

// WithMetrics attaches an instrumentation sink.
func WithMetrics(m Metrics) Option {
	return func(s *Store) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithLogger sets the logger used for store events.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logging.OrDiscard(l)
	}
}

// WithMinBlockSlots sets the minimum slot count reported by PartBlockSlots.
func WithMinBlockSlots(n int) Option {
	return func(s *Store) {
		if n >= 0 {
			s.minSlots = n
		}
	}
}

// =============================================================================
// STORE
// =============================================================================

// Store owns the active transcript of one chat session.
//
// The canonical message list is always current after a mutation returns.
// Subscribers see a throttled copy of it that lags by at most one window
// while mutations keep arriving.
//
// Thread-safety: every method is safe for concurrent use. Subscribers run on
// the goroutine that performs the notification pass, one pass at a time, and
// must not call mutating methods synchronously.
type Store struct {
	mu       sync.Mutex
	chatID   string
	messages []model.Message
	index    map[string]int
	status   Status
	err      error

	// Throttled view, refreshed by notification passes.
	throttled []model.Message
	ids       []string

	subs    map[int]func(Snapshot)
	nextSub int

	cache    *viewCache
	minSlots int

	notifyMu sync.Mutex
	interval time.Duration
	throttle *throttle.Throttler
	metrics  Metrics
	logger   *slog.Logger
}

// New creates an empty store for a new chat.
func New(opts ...Option) *Store {
	s := &Store{
		status:   StatusReady,
		subs:     make(map[int]func(Snapshot)),
		cache:    newViewCache(),
		minSlots: markdown.DefaultMinSlots,
		interval: throttle.DefaultInterval,
		metrics:  noopMetrics{},
		logger:   logging.OrDiscard(nil),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.throttle = throttle.New(s.interval, s.notify)
	return s
}

// SetThrottle changes the notification window at runtime.
func (s *Store) SetThrottle(d time.Duration) {
	s.throttle.SetInterval(d)
}

// Close cancels any pending notification. The store stays readable.
func (s *Store) Close() {
	s.throttle.Stop()
}

// =============================================================================
// MUTATIONS
// =============================================================================

// mutate runs fn under the lock and then schedules a throttled pass.
func (s *Store) mutate(op string, fn func()) {
	s.mu.Lock()
	fn()
	s.index = nil
	s.mu.Unlock()

	s.metrics.ObserveMutation(op)
	s.throttle.Trigger()
}

// SetMessages replaces the canonical list wholesale.
func (s *Store) SetMessages(list []model.Message) {
	s.mutate("set", func() {
		s.messages = slices.Clone(list)
	})
}

// SetNewChat switches the store to another chat. Id, messages, status and
// error change together and subscribers are notified before it returns, so
// no subscriber observes a mix of old and new chat state.
func (s *Store) SetNewChat(chatID string, list []model.Message) {
	s.mu.Lock()
	s.chatID = chatID
	s.messages = slices.Clone(list)
	s.index = nil
	s.status = StatusReady
	s.err = nil
	s.cache.reset()
	s.mu.Unlock()

	s.logger.Debug("CHAT_SWITCHED", "chat", chatID, "messages", len(list))
	s.metrics.ObserveMutation("new_chat")
	s.throttle.Now()
}

// PushMessage appends one message.
func (s *Store) PushMessage(msg model.Message) {
	s.mutate("push", func() {
		s.messages = append(s.messages, msg)
	})
}

// PopMessage removes and returns the last message.
func (s *Store) PopMessage() (model.Message, bool) {
	var (
		last model.Message
		ok   bool
	)
	s.mutate("pop", func() {
		n := len(s.messages)
		if n == 0 {
			return
		}
		last, ok = s.messages[n-1], true
		s.messages = s.messages[:n-1]
	})
	return last, ok
}

// ReplaceMessage substitutes a deep copy of msg at index. The copy means no
// caller keeps a mutable alias into the stored message.
func (s *Store) ReplaceMessage(index int, msg model.Message) {
	clone := msg.Clone()

	s.mu.Lock()
	if index < 0 || index >= len(s.messages) {
		n := len(s.messages)
		s.mu.Unlock()
		panic(violation("ReplaceMessage", msg.ID, ErrMessageIndex, "index %d, len %d", index, n))
	}
	s.messages[index] = clone
	s.index = nil
	s.mu.Unlock()

	s.metrics.ObserveMutation("replace")
	s.throttle.Trigger()
}

// UpdateParts replaces the parts of the message with the given id. It is a
// ReplaceMessage for callers that track messages by id.
func (s *Store) UpdateParts(id string, parts []model.Part) {
	s.mu.Lock()
	i, ok := s.lookup(id)
	if !ok {
		s.mu.Unlock()
		panic(violation("UpdateParts", id, ErrUnknownMessage, ""))
	}
	msg := s.messages[i]
	s.mu.Unlock()

	msg.Parts = parts
	s.ReplaceMessage(i, msg)
}

// SetStatus updates the streaming status and notifies immediately when it
// changes.
func (s *Store) SetStatus(status Status) {
	s.mu.Lock()
	if s.status == status {
		s.mu.Unlock()
		return
	}
	s.status = status
	s.mu.Unlock()

	s.metrics.ObserveMutation("status")
	s.throttle.Now()
}

// SetError stores an upstream error and moves to the error status.
// The error is held as data until ClearError.
func (s *Store) SetError(err error) {
	s.mu.Lock()
	s.err = err
	s.status = StatusError
	s.mu.Unlock()

	s.logger.Warn("STREAM_ERROR", "chat", s.ChatID(), "error", err)
	s.metrics.ObserveMutation("error")
	s.throttle.Now()
}

// ClearError drops the stored error. A store in the error status goes back
// to ready.
func (s *Store) ClearError() {
	s.mu.Lock()
	s.err = nil
	if s.status == StatusError {
		s.status = StatusReady
	}
	s.mu.Unlock()

	s.metrics.ObserveMutation("clear_error")
	s.throttle.Now()
}

// Flush runs a pending notification now.
func (s *Store) Flush() {
	s.throttle.Flush()
}

// =============================================================================
// CANONICAL READS
// =============================================================================

// LastMessageID returns the id of the final canonical message. It never lags
// behind mutations, so it is the right parent for the next message.
func (s *Store) LastMessageID() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.messages) == 0 {
		return "", false
	}
	return s.messages[len(s.messages)-1].ID, true
}

// InternalMessages returns a copy of the canonical list.
func (s *Store) InternalMessages() []model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.messages)
}

// Len returns the number of canonical messages.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

// Message returns the canonical message with the given id.
func (s *Store) Message(id string) (model.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.lookup(id)
	if !ok {
		return model.Message{}, false
	}
	return s.messages[i], true
}

// IndexOf returns the position of id in the canonical list, or -1.
func (s *Store) IndexOf(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.lookup(id)
	if !ok {
		return -1
	}
	return i
}

// ChatID returns the current chat id.
func (s *Store) ChatID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chatID
}

// Status returns the current streaming status.
func (s *Store) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Err returns the stored upstream error, if any.
func (s *Store) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// lookup must be called with mu held.
func (s *Store) lookup(id string) (int, bool) {
	if s.index == nil {
		s.index = make(map[string]int, len(s.messages))
		for i, m := range s.messages {
			s.index[m.ID] = i
		}
	}
	i, ok := s.index[id]
	return i, ok
}

// =============================================================================
// THROTTLED READS
// =============================================================================

// ThrottledMessages returns the list published by the last notification
// pass.
func (s *Store) ThrottledMessages() []model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.throttled
}

// MessageIDs returns the id list of the last notification pass. The same
// slice is returned for as long as the id sequence is unchanged.
func (s *Store) MessageIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ids
}

// =============================================================================
// SUBSCRIPTIONS
// =============================================================================

// Subscribe registers fn for notification passes and returns a function
// that removes it.
func (s *Store) Subscribe(fn func(Snapshot)) (cancel func()) {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}

// notify is one notification pass: publish a fresh snapshot, keep the id
// list when it is unchanged, evict caches for removed messages and call
// every subscriber.
func (s *Store) notify() {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	start := time.Now()

	s.mu.Lock()
	s.throttled = slices.Clone(s.messages)
	if ids := messageIDs(s.throttled); !slices.Equal(ids, s.ids) {
		s.ids = ids
	}
	live := make(map[string]struct{}, len(s.messages))
	for _, m := range s.messages {
		live[m.ID] = struct{}{}
	}
	evicted := s.cache.retain(live)

	snap := Snapshot{
		ChatID:     s.chatID,
		Messages:   s.throttled,
		MessageIDs: s.ids,
		Status:     s.status,
		Err:        s.err,
	}
	subs := make([]func(Snapshot), 0, len(s.subs))
	for _, id := range slices.Sorted(maps.Keys(s.subs)) {
		subs = append(subs, s.subs[id])
	}
	s.mu.Unlock()

	if evicted > 0 {
		s.logger.Debug("CACHE_EVICTED", "chat", snap.ChatID, "entries", evicted)
	}
	for _, fn := range subs {
		fn(snap)
	}
	s.metrics.ObserveNotification(len(subs), time.Since(start))
}

func messageIDs(list []model.Message) []string {
	ids := make([]string, len(list))
	for i, m := range list {
		ids[i] = m.ID
	}
	return ids
}
