// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package transcript

import (
	"errors"
	"fmt"
)

// =============================================================================
// CONTRACT ERRORS
// =============================================================================

// Sentinel errors carried by a ContractError panic.
var (
	// ErrUnknownMessage is raised when a derived view is requested for a
	// message id that is not in the transcript.
	ErrUnknownMessage = errors.New("unknown message")

	// ErrMessageIndex is raised when ReplaceMessage gets an index outside
	// the transcript.
	ErrMessageIndex = errors.New("message index out of range")

	// ErrPartIndex is raised for a part index or range outside the
	// message's parts.
	ErrPartIndex = errors.New("part index out of range")

	// ErrPartType is raised when a part does not have the type the caller
	// asserted.
	ErrPartType = errors.New("unexpected part type")
)

// ContractError describes a caller bug. The store panics with a
// *ContractError rather than returning it, because every call site is
// expected to look up ids and indices it has just read from the store.
//
// Recover it with errors.As / errors.Is:
//
//	defer func() {
//	    if r := recover(); r != nil {
//	        err, _ := r.(error)
//	        if errors.Is(err, transcript.ErrUnknownMessage) { ... }
//	    }
//	}()
type ContractError struct {
	Op        string
	MessageID string
	Err       error
	Detail    string
}

func (e *ContractError) Error() string {
	msg := fmt.Sprintf("transcript: %s", e.Op)
	if e.MessageID != "" {
		msg += fmt.Sprintf(" message %q", e.MessageID)
	}
	msg += ": " + e.Err.Error()
	if e.Detail != "" {
		msg += " (" + e.Detail + ")"
	}
	return msg
}

func (e *ContractError) Unwrap() error {
	return e.Err
}

func violation(op, id string, err error, format string, args ...any) *ContractError {
	return &ContractError{Op: op, MessageID: id, Err: err, Detail: fmt.Sprintf(format, args...)}
}
