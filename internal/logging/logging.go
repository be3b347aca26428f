// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package logging configures the structured logger shared by every package.
//
// Log lines use slog's text handler. Messages are short EVENT names with the
// details carried as attributes, e.g.
//
//	level=INFO msg=CHAT_LOADED chat=c1 messages=12
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// Sink values understood by New. Anything prefixed with "file:" names a log
// file that is appended to.
const (
	SinkStderr  = "stderr"
	SinkStdout  = "stdout"
	SinkDiscard = "discard"
	filePrefix  = "file:"
)

var (
	mu     sync.RWMutex
	global = slog.New(slog.DiscardHandler)
	closer io.Closer
)

// ParseLevel maps "debug", "info", "warn" and "error" to slog levels.
// Unknown values fall back to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ValidLevel reports whether s is a level name ParseLevel understands.
func ValidLevel(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "debug", "info", "warn", "warning", "error":
		return true
	}
	return false
}

// New builds a text logger for the given level and sink. The returned
// closer is non-nil only for file sinks.
func New(level, sink string) (*slog.Logger, io.Closer, error) {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}

	switch {
	case sink == "" || sink == SinkStderr:
		return slog.New(slog.NewTextHandler(os.Stderr, opts)), nil, nil
	case sink == SinkStdout:
		return slog.New(slog.NewTextHandler(os.Stdout, opts)), nil, nil
	case sink == SinkDiscard:
		return slog.New(slog.DiscardHandler), nil, nil
	case strings.HasPrefix(sink, filePrefix):
		path := strings.TrimPrefix(sink, filePrefix)
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file %s: %w", path, err)
		}
		return slog.New(slog.NewTextHandler(f, opts)), f, nil
	default:
		return nil, nil, fmt.Errorf("unknown log sink %q", sink)
	}
}

// Init replaces the global logger. On a bad sink it falls back to stderr and
// returns the error so the caller can report it.
func Init(level, sink string) error {
	l, c, err := New(level, sink)
	if err != nil {
		l, c = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: ParseLevel(level)})), nil
	}

	mu.Lock()
	if closer != nil {
		closer.Close()
	}
	global, closer = l, c
	mu.Unlock()

	slog.SetDefault(l)
	return err
}

// L returns the global logger. It discards everything until Init is called.
func L() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return global
}

// OrDiscard returns l, or a discarding logger when l is nil.
func OrDiscard(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.New(slog.DiscardHandler)
	}
	return l
}

// Close releases a file sink opened by Init.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if closer == nil {
		return nil
	}
	err := closer.Close()
	closer = nil
	return err
}
