// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/jeranaias/rigrun-transcript/internal/logging"
	"github.com/jeranaias/rigrun-transcript/internal/model"
	"github.com/jeranaias/rigrun-transcript/internal/util"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	ErrChatNotFound      = errors.New("chat not found")
	ErrInvalidVisibility = errors.New("invalid visibility")
	ErrMessageChat       = errors.New("message belongs to another chat")
)

// =============================================================================
// TYPES
// =============================================================================

// Visibility controls who may read a chat through the shared API.
type Visibility string

const (
	VisibilityPrivate Visibility = "private"
	VisibilityPublic  Visibility = "public"
)

// Valid reports whether v is a known visibility.
func (v Visibility) Valid() bool {
	return v == VisibilityPrivate || v == VisibilityPublic
}

// Chat is a stored conversation.
type Chat struct {
	ID         string     `json:"id"`
	Title      string     `json:"title"`
	Visibility Visibility `json:"visibility"`
	UserID     string     `json:"userId,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`

	// MessageCount is filled in by list queries.
	MessageCount int `json:"messageCount"`
}

// WriteMetrics receives message write counts. telemetry.Collector
// implements it.
type WriteMetrics interface {
	ObserveWrites(written, skipped int)
}

type noopMetrics struct{}

func (noopMetrics) ObserveWrites(int, int) {}

// =============================================================================
// DATABASE
// =============================================================================

// DB is the SQLite chat store.
type DB struct {
	db      *sql.DB
	path    string
	metrics WriteMetrics
	logger  *slog.Logger
}

// Option configures a DB.
type Option func(*DB)

// WithMetrics reports write counts to m.
func WithMetrics(m WriteMetrics) Option {
	return func(d *DB) {
		if m != nil {
			d.metrics = m
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *DB) {
		d.logger = logging.OrDiscard(l)
	}
}

// DefaultPath returns ~/.rigrun-transcript/transcript.db.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".rigrun-transcript", "transcript.db")
	}
	return filepath.Join(home, ".rigrun-transcript", "transcript.db")
}

// Open opens (creating if needed) the database at path.
func Open(path string, opts ...Option) (*DB, error) {
	if path == "" {
		return nil, errors.New("database path cannot be empty")
	}

	// Create database directory if needed
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA temp_store=MEMORY",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	if _, err := db.Exec(InitMetadata); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	d := &DB{
		db:      db,
		path:    path,
		metrics: noopMetrics{},
		logger:  logging.OrDiscard(nil),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Path returns the database file path.
func (d *DB) Path() string {
	return d.path
}

// Close closes the database.
func (d *DB) Close() error {
	return d.db.Close()
}

// =============================================================================
// CHATS
// =============================================================================

// SaveChat inserts or updates a chat. An empty visibility means private;
// the creation time of an existing chat is kept.
func (d *DB) SaveChat(ctx context.Context, chat Chat) error {
	if chat.ID == "" {
		return errors.New("chat id cannot be empty")
	}
	if chat.Visibility == "" {
		chat.Visibility = VisibilityPrivate
	}
	if !chat.Visibility.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidVisibility, chat.Visibility)
	}
	if chat.Title == "" {
		chat.Title = defaultTitle
	}

	now := time.Now().UTC()
	if chat.CreatedAt.IsZero() {
		chat.CreatedAt = now
	}
	if chat.UpdatedAt.IsZero() {
		chat.UpdatedAt = now
	}

	_, err := d.db.ExecContext(ctx, `
		INSERT INTO chats (id, title, visibility, user_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			visibility = excluded.visibility,
			user_id = excluded.user_id,
			updated_at = excluded.updated_at`,
		chat.ID, chat.Title, string(chat.Visibility), chat.UserID,
		chat.CreatedAt.UnixNano(), chat.UpdatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("save chat %s: %w", chat.ID, err)
	}
	return nil
}

const chatColumns = `c.id, c.title, c.visibility, c.user_id, c.created_at, c.updated_at,
	(SELECT COUNT(*) FROM messages m WHERE m.chat_id = c.id)`

type scanner interface {
	Scan(dest ...any) error
}

func scanChat(row scanner) (Chat, error) {
	var (
		c                Chat
		vis              string
		created, updated int64
	)
	if err := row.Scan(&c.ID, &c.Title, &vis, &c.UserID, &created, &updated, &c.MessageCount); err != nil {
		return Chat{}, err
	}
	c.Visibility = Visibility(vis)
	c.CreatedAt = time.Unix(0, created).UTC()
	c.UpdatedAt = time.Unix(0, updated).UTC()
	return c, nil
}

// GetChat returns the chat with the given id.
func (d *DB) GetChat(ctx context.Context, id string) (Chat, error) {
	row := d.db.QueryRowContext(ctx, `SELECT `+chatColumns+` FROM chats c WHERE c.id = ?`, id)
	c, err := scanChat(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Chat{}, fmt.Errorf("%w: %s", ErrChatNotFound, id)
	}
	if err != nil {
		return Chat{}, fmt.Errorf("get chat %s: %w", id, err)
	}
	return c, nil
}

// ListChats returns chats, most recently updated first. An empty
// visibility lists every chat.
func (d *DB) ListChats(ctx context.Context, vis Visibility) ([]Chat, error) {
	query := `SELECT ` + chatColumns + ` FROM chats c`
	var args []any
	if vis != "" {
		query += ` WHERE c.visibility = ?`
		args = append(args, string(vis))
	}
	query += ` ORDER BY c.updated_at DESC, c.id`
	return d.queryChats(ctx, query, args...)
}

// SearchChats returns chats whose title contains query, case-insensitively.
func (d *DB) SearchChats(ctx context.Context, query string) ([]Chat, error) {
	pattern := "%" + strings.ToLower(query) + "%"
	return d.queryChats(ctx,
		`SELECT `+chatColumns+` FROM chats c WHERE lower(c.title) LIKE ? ORDER BY c.updated_at DESC, c.id`,
		pattern)
}

func (d *DB) queryChats(ctx context.Context, query string, args ...any) ([]Chat, error) {
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	defer rows.Close()

	var chats []Chat
	for rows.Next() {
		c, err := scanChat(rows)
		if err != nil {
			return nil, fmt.Errorf("list chats: %w", err)
		}
		chats = append(chats, c)
	}
	return chats, rows.Err()
}

// DeleteChat removes a chat and all of its messages.
func (d *DB) DeleteChat(ctx context.Context, id string) error {
	res, err := d.db.ExecContext(ctx, `DELETE FROM chats WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete chat %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrChatNotFound, id)
	}
	d.logger.Info("CHAT_DELETED", "chat", id)
	return nil
}

// =============================================================================
// MESSAGES
// =============================================================================

const defaultTitle = "New conversation"

// generateTitle creates a title from the first user message.
func generateTitle(msgs []model.Message) string {
	for _, m := range msgs {
		if m.Role != model.RoleUser {
			continue
		}
		if text := util.OneLine(m.Text()); text != "" {
			return util.TruncateRunes(text, 50)
		}
	}
	return defaultTitle
}

// Fingerprint hashes everything a message row stores.
func Fingerprint(msg model.Message) (uint64, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return 0, err
	}
	return xxhash.Sum64(data), nil
}

// SaveMessages upserts msgs into chatID, creating the chat (private,
// titled after the first user message) when it does not exist. Messages
// whose fingerprint is unchanged are skipped. A message id already stored
// under a different chat fails the whole batch with ErrMessageChat.
func (d *DB) SaveMessages(ctx context.Context, chatID string, msgs []model.Message) error {
	if chatID == "" {
		return errors.New("chat id cannot be empty")
	}
	for _, m := range msgs {
		if err := m.Validate(); err != nil {
			return err
		}
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save messages: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC().UnixNano()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO chats (id, title, visibility, user_id, created_at, updated_at)
		VALUES (?, ?, ?, '', ?, ?)
		ON CONFLICT(id) DO UPDATE SET updated_at = excluded.updated_at`,
		chatID, generateTitle(msgs), string(VisibilityPrivate), now, now)
	if err != nil {
		return fmt.Errorf("save messages: touch chat %s: %w", chatID, err)
	}

	written, skipped := 0, 0
	for _, m := range msgs {
		fp, err := Fingerprint(m)
		if err != nil {
			return fmt.Errorf("save message %s: %w", m.ID, err)
		}

		var (
			existing  int64
			ownerChat string
		)
		err = tx.QueryRowContext(ctx, `SELECT fingerprint, chat_id FROM messages WHERE id = ?`, m.ID).Scan(&existing, &ownerChat)
		switch {
		case err == nil && ownerChat != chatID:
			return fmt.Errorf("save message %s into %s: %w (%s)", m.ID, chatID, ErrMessageChat, ownerChat)
		case err == nil && uint64(existing) == fp:
			skipped++
			continue
		case err != nil && !errors.Is(err, sql.ErrNoRows):
			return fmt.Errorf("save message %s: %w", m.ID, err)
		}

		parts, err := json.Marshal(m.Parts)
		if err != nil {
			return fmt.Errorf("save message %s: %w", m.ID, err)
		}
		meta, err := json.Marshal(m.Metadata)
		if err != nil {
			return fmt.Errorf("save message %s: %w", m.ID, err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO messages (id, chat_id, role, parts, metadata, parent_id, created_at, fingerprint)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				role = excluded.role,
				parts = excluded.parts,
				metadata = excluded.metadata,
				parent_id = excluded.parent_id,
				created_at = excluded.created_at,
				fingerprint = excluded.fingerprint`,
			m.ID, chatID, string(m.Role), string(parts), string(meta),
			m.Metadata.ParentMessageID, m.Metadata.CreatedAt.UnixNano(), int64(fp))
		if err != nil {
			return fmt.Errorf("save message %s: %w", m.ID, err)
		}
		written++
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("save messages: %w", err)
	}

	d.metrics.ObserveWrites(written, skipped)
	d.logger.Debug("MESSAGES_SAVED", "chat", chatID, "written", written, "skipped", skipped)
	return nil
}

// LoadMessages returns the full history of a chat, oldest first.
func (d *DB) LoadMessages(ctx context.Context, chatID string) ([]model.Message, error) {
	if _, err := d.GetChat(ctx, chatID); err != nil {
		return nil, err
	}

	rows, err := d.db.QueryContext(ctx, `
		SELECT id, role, parts, metadata FROM messages
		WHERE chat_id = ?
		ORDER BY created_at, rowid`, chatID)
	if err != nil {
		return nil, fmt.Errorf("load messages %s: %w", chatID, err)
	}
	defer rows.Close()

	var msgs []model.Message
	for rows.Next() {
		var (
			m           model.Message
			role        string
			parts, meta string
		)
		if err := rows.Scan(&m.ID, &role, &parts, &meta); err != nil {
			return nil, fmt.Errorf("load messages %s: %w", chatID, err)
		}
		m.Role = model.Role(role)
		if err := json.Unmarshal([]byte(parts), &m.Parts); err != nil {
			return nil, fmt.Errorf("decode parts of %s: %w", m.ID, err)
		}
		if err := json.Unmarshal([]byte(meta), &m.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata of %s: %w", m.ID, err)
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}
