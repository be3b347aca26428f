// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/jeranaias/rigrun-transcript/internal/logging"
)

// errDone marks the [DONE] terminator line.
var errDone = errors.New("stream done")

var (
	dataField  = []byte("data:")
	doneMarker = []byte("[DONE]")
)

// Callback receives each decoded event. A non-nil return stops Process and
// is returned from it.
type Callback func(Event) error

// =============================================================================
// STREAM READER
// =============================================================================

// Reader handles line-by-line JSON parsing of a streamed reply.
type Reader struct {
	reader *bufio.Reader
	logger *slog.Logger

	// PERFORMANCE: strings.Builder avoids quadratic allocations
	text    strings.Builder
	stats   Stats
	started bool
}

// NewReader creates a new stream reader from an io.Reader.
func NewReader(r io.Reader, logger *slog.Logger) *Reader {
	return &Reader{
		reader: bufio.NewReader(r),
		logger: logging.OrDiscard(logger),
		stats:  Stats{StartTime: time.Now()},
	}
}

// Process reads the stream and calls the callback for each event.
// Blocks until the stream ends, the callback fails, or the context is
// cancelled. A finish event or [DONE] line ends the stream.
func (r *Reader) Process(ctx context.Context, callback Callback) error {
	defer func() { r.stats.EndTime = time.Now() }()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		ev, err := r.next()
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, errDone) {
				return nil
			}
			return fmt.Errorf("read stream: %w", err)
		}
		if ev == nil {
			continue
		}

		if err := callback(*ev); err != nil {
			return err
		}
		if ev.Type == TypeFinish {
			return nil
		}
	}
}

// next reads and decodes one line. It returns a nil event for lines that
// carry nothing (blank lines, SSE comments and fields, malformed JSON).
func (r *Reader) next() (*Event, error) {
	line, err := r.reader.ReadBytes('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && len(line) == 0 {
			return nil, io.EOF
		}
		// Try to process the last line even on EOF
		if len(line) == 0 {
			return nil, err
		}
	}

	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return nil, nil
	}

	// SSE framing: keep data fields, drop comments and other fields.
	if line[0] == ':' {
		return nil, nil
	}
	if bytes.HasPrefix(line, dataField) {
		line = bytes.TrimSpace(line[len(dataField):])
	} else if line[0] != '{' {
		return nil, nil
	}
	if bytes.Equal(line, doneMarker) {
		return nil, errDone
	}

	var ev Event
	if err := json.Unmarshal(line, &ev); err != nil || ev.Type == "" {
		r.stats.Skipped++
		r.logger.Debug("STREAM_LINE_SKIPPED", "bytes", len(line))
		return nil, nil
	}

	r.stats.Events++
	if ev.Type == TypeTextDelta && ev.Delta != "" {
		if !r.started {
			r.started = true
			r.stats.FirstDeltaTime = time.Now()
			r.stats.TTFT = r.stats.FirstDeltaTime.Sub(r.stats.StartTime)
		}
		r.text.WriteString(ev.Delta)
	}
	return &ev, nil
}

// Text returns all text deltas received so far.
func (r *Reader) Text() string {
	return r.text.String()
}

// Stats returns the statistics collected so far.
func (r *Reader) Stats() Stats {
	return r.stats
}

// =============================================================================
// STREAM STATISTICS
// =============================================================================

// Stats holds statistics collected during streaming.
type Stats struct {
	StartTime      time.Time
	FirstDeltaTime time.Time
	EndTime        time.Time

	Events  int
	Skipped int

	// Time to first text delta
	TTFT time.Duration
}

// Duration returns the wall time of the stream.
func (s Stats) Duration() time.Duration {
	if s.EndTime.IsZero() {
		return time.Since(s.StartTime)
	}
	return s.EndTime.Sub(s.StartTime)
}

// Format returns a formatted string representation.
func (s Stats) Format() string {
	out := fmt.Sprintf("%s | %d events", formatDuration(s.Duration()), s.Events)
	if s.Skipped > 0 {
		out += fmt.Sprintf(" (%d skipped)", s.Skipped)
	}
	if s.TTFT > 0 {
		out += fmt.Sprintf(" | TTFT %dms", s.TTFT.Milliseconds())
	}
	return out
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}
