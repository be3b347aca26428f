// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"

	"github.com/jeranaias/rigrun-transcript/internal/logging"
	"github.com/jeranaias/rigrun-transcript/internal/model"
	"github.com/jeranaias/rigrun-transcript/internal/session"
)

// ErrUnknownToolCall is returned for tool events naming a call that was
// never started.
var ErrUnknownToolCall = errors.New("unknown tool call id")

// Target receives the parts of the streaming message after every event.
// session.Session implements it.
type Target interface {
	UpdateAssistant(parts []model.Part) error
}

// =============================================================================
// APPLIER
// =============================================================================

// Applier folds stream events into the parts of one assistant message.
// Every event that changes content produces a fresh parts slice.
type Applier struct {
	target Target

	parts     []model.Part
	blocks    map[string]int // text/reasoning block id -> part index
	tools     map[string]int // tool call id -> part index
	toolInput map[string]*strings.Builder

	messageID string
	finished  bool
}

// NewApplier creates an applier that pushes to target.
func NewApplier(target Target) *Applier {
	return &Applier{
		target:    target,
		parts:     []model.Part{},
		blocks:    make(map[string]int),
		tools:     make(map[string]int),
		toolInput: make(map[string]*strings.Builder),
	}
}

// Parts returns the current parts.
func (a *Applier) Parts() []model.Part {
	return a.parts
}

// Finished reports whether a finish event was applied.
func (a *Applier) Finished() bool {
	return a.finished
}

// MessageID returns the id announced by the start event, if any.
func (a *Applier) MessageID() string {
	return a.messageID
}

// Apply folds one event. Error events are returned as *EventError.
// Unknown event types are ignored.
func (a *Applier) Apply(ev Event) error {
	next := slices.Clone(a.parts)
	changed := true

	switch ev.Type {
	case TypeStart:
		a.messageID = ev.MessageID
		changed = false

	case TypeStartStep:
		next = append(next, model.Part{Type: model.PartStepStart})

	case TypeFinishStep, TypeAbort:
		changed = false

	case TypeFinish:
		a.finished = true
		changed = false

	case TypeError:
		return &EventError{Text: ev.ErrorText}

	case TypeTextStart:
		next = a.startBlock(next, model.PartText, ev.ID)
	case TypeReasoningStart:
		next = a.startBlock(next, model.PartReasoning, ev.ID)

	case TypeTextDelta:
		next = a.appendBlock(next, model.PartText, ev.ID, ev.Delta)
	case TypeReasoningDelta:
		next = a.appendBlock(next, model.PartReasoning, ev.ID, ev.Delta)

	case TypeTextEnd, TypeReasoningEnd:
		i, ok := a.blocks[ev.ID]
		if !ok {
			return nil
		}
		next[i].State = model.StateDone

	case TypeToolInputStart:
		next = append(next, model.Part{
			Type:       model.ToolPartType(ev.ToolName),
			ToolCallID: ev.ToolCallID,
			State:      model.StateInputStreaming,
		})
		a.tools[ev.ToolCallID] = len(next) - 1
		a.toolInput[ev.ToolCallID] = &strings.Builder{}

	case TypeToolInputDelta:
		i, ok := a.tools[ev.ToolCallID]
		if !ok {
			return fmt.Errorf("%s %q: %w", ev.Type, ev.ToolCallID, ErrUnknownToolCall)
		}
		buf := a.toolInput[ev.ToolCallID]
		buf.WriteString(ev.InputTextDelta)
		// Partial input is only exposed once it parses.
		if raw := buf.String(); json.Valid([]byte(raw)) {
			next[i].Input = json.RawMessage(raw)
		} else {
			changed = false
		}

	case TypeToolInputAvailable:
		i, ok := a.tools[ev.ToolCallID]
		if !ok {
			next = append(next, model.Part{
				Type:       model.ToolPartType(ev.ToolName),
				ToolCallID: ev.ToolCallID,
			})
			i = len(next) - 1
			a.tools[ev.ToolCallID] = i
		}
		next[i].Input = ev.Input
		next[i].State = model.StateInputAvailable
		delete(a.toolInput, ev.ToolCallID)

	case TypeToolOutputAvailable:
		i, ok := a.tools[ev.ToolCallID]
		if !ok {
			return fmt.Errorf("%s %q: %w", ev.Type, ev.ToolCallID, ErrUnknownToolCall)
		}
		next[i].Output = ev.Output
		next[i].State = model.StateOutputAvailable

	case TypeToolOutputError:
		i, ok := a.tools[ev.ToolCallID]
		if !ok {
			return fmt.Errorf("%s %q: %w", ev.Type, ev.ToolCallID, ErrUnknownToolCall)
		}
		next[i].ErrorText = ev.ErrorText
		next[i].State = model.StateOutputError

	case TypeFile:
		next = append(next, model.Part{Type: model.PartFile, URL: ev.URL, MediaType: ev.MediaType})

	case TypeSourceURL:
		next = append(next, model.Part{Type: model.PartSourceURL, ID: ev.SourceID, URL: ev.URL, Title: ev.Title})

	default:
		if !ev.IsData() || ev.Transient {
			return nil
		}
		next = applyData(next, ev)
	}

	if !changed {
		return nil
	}
	a.parts = next
	return a.target.UpdateAssistant(next)
}

func (a *Applier) startBlock(parts []model.Part, typ model.PartType, id string) []model.Part {
	parts = append(parts, model.Part{Type: typ, State: model.StateStreaming})
	a.blocks[id] = len(parts) - 1
	return parts
}

// appendBlock adds delta to block id, starting the block when the start
// event was never seen.
func (a *Applier) appendBlock(parts []model.Part, typ model.PartType, id, delta string) []model.Part {
	i, ok := a.blocks[id]
	if !ok {
		parts = a.startBlock(parts, typ, id)
		i = len(parts) - 1
	}
	parts[i].Text += delta
	return parts
}

// applyData replaces an earlier annotation with the same type and id, or
// appends a new one.
func applyData(parts []model.Part, ev Event) []model.Part {
	typ := model.DataPartType(ev.DataName())
	if ev.ID != "" {
		for i := range parts {
			if parts[i].Type == typ && parts[i].ID == ev.ID {
				parts[i].Data = ev.Data
				return parts
			}
		}
	}
	return append(parts, model.Part{Type: typ, ID: ev.ID, Data: ev.Data})
}

// =============================================================================
// SESSION PUMP
// =============================================================================

// Consume streams one assistant reply from r into sess: it begins the
// assistant message, applies every event and finalizes it. On failure the
// session is moved to the error state and the error is returned. A
// cancelled context stops the reply and keeps what arrived.
func Consume(ctx context.Context, r io.Reader, sess *session.Session, modelID string, logger *slog.Logger) (model.Message, error) {
	logger = logging.OrDiscard(logger)

	begun, err := sess.BeginAssistant(modelID)
	if err != nil {
		return model.Message{}, err
	}

	reader := NewReader(r, logger)
	applier := NewApplier(sess)
	err = reader.Process(ctx, applier.Apply)

	switch {
	case err == nil:
		msg, ferr := sess.FinishAssistant(ctx)
		logger.Info("STREAM_FINISHED", "message", begun.ID, "stats", reader.Stats().Format())
		return msg, ferr

	case errors.Is(err, context.Canceled):
		msg, serr := sess.Stop()
		logger.Info("STREAM_STOPPED", "message", begun.ID, "stats", reader.Stats().Format())
		if serr != nil {
			return msg, serr
		}
		return msg, err

	default:
		sess.Fail(err)
		logger.Error("STREAM_ERROR", "message", begun.ID, "error", err)
		return model.Message{}, err
	}
}
