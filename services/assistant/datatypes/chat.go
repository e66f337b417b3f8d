// Copyright (C) 2025 CK Auto AI (dev@ckauto.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package datatypes provides data structures for the assistant service.
//
// This file contains the inbound chat request type and its validation.
package datatypes

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// =============================================================================
// Constants for Security Compliance
// =============================================================================

const (
	// MaxPartContentBytes is the maximum size of a single text content part.
	// Mitigates unbounded message input.
	MaxPartContentBytes = 32 * 1024 // 32KB

	// MaxTurnsPerRequest is the maximum number of turns accepted in a
	// tool-approval request body. Mitigates unbounded history replay.
	MaxTurnsPerRequest = 100

	// MaxModelSteps caps the model's tool-call chain per invocation.
	MaxModelSteps = 5
)

// =============================================================================
// Shared Validator Instance
// =============================================================================

// chatValidate is the validator instance for chat datatypes.
// Initialized in init() with custom validators.
var chatValidate *validator.Validate

func init() {
	chatValidate = validator.New()
	_ = chatValidate.RegisterValidation("maxbytes", validateMaxBytes)
}

// validateMaxBytes enforces the per-part content byte limit. Byte length,
// not rune count, so oversized multi-byte payloads are rejected too.
func validateMaxBytes(fl validator.FieldLevel) bool {
	return len(fl.Field().String()) <= MaxPartContentBytes
}

// =============================================================================
// Chat Stream Request
// =============================================================================

// ChatStreamRequest is the body for POST /v1/chat/stream.
//
// # Description
//
// Exactly one of Message or Messages must be present:
//
//   - Message: the normal flow. One new user turn; prior turns are loaded
//     from storage.
//   - Messages: the tool-approval resumption flow. The caller supplies the
//     complete turn sequence directly and history is NOT reloaded from
//     storage. Used to continue a generation that paused for the user to
//     approve a capability invocation.
//
// # Fields
//
//   - RequestID: Optional. UUID v4 correlation id; generated server-side
//     when absent. Appears in logs, spans, and error responses.
//   - ConversationID: Required. UUID v4. A fresh id creates the
//     conversation on first use.
//   - Message: The new user turn (normal flow).
//   - Messages: The full turn sequence (resumption flow, 1-100 turns).
//   - Model: Required. Model selector string, e.g. "openai/gpt-4.1" or
//     "openai/o4-mini-reasoning".
//   - Visibility: Optional. "private" (default) or "public". Only consulted
//     when the conversation is created.
//
// # Limitations
//
//   - Supplying both Message and Messages is rejected as a bad request, as
//     is supplying neither.
//
// # Assumptions
//
//   - Turn ids inside Messages are stable across the approval round-trip;
//     they are the upsert keys at persistence time.
type ChatStreamRequest struct {
	RequestID      string `json:"request_id" validate:"omitempty,uuid4"`
	ConversationID string `json:"conversation_id" validate:"required,uuid4"`
	Message        *Turn  `json:"message,omitempty"`
	Messages       []Turn `json:"messages,omitempty" validate:"omitempty,min=1,max=100,dive"`
	Model          string `json:"model" validate:"required"`
	Visibility     string `json:"visibility" validate:"omitempty,oneof=private public"`

	// Hints optionally describe who is asking; folded into the system
	// instructions, never persisted.
	Hints *RequestHints `json:"hints,omitempty"`
}

// Validate checks field constraints plus the one-of Message/Messages rule.
func (r *ChatStreamRequest) Validate() error {
	if err := chatValidate.Struct(r); err != nil {
		return err
	}
	if r.Message != nil {
		if err := chatValidate.Struct(r.Message); err != nil {
			return err
		}
	}
	if (r.Message == nil) == (len(r.Messages) == 0) {
		return fmt.Errorf("exactly one of message or messages must be set")
	}
	return nil
}

// EnsureDefaults populates RequestID and Visibility when the client
// omitted them.
func (r *ChatStreamRequest) EnsureDefaults() {
	if r.RequestID == "" {
		r.RequestID = uuid.New().String()
	}
	if r.Visibility == "" {
		r.Visibility = VisibilityPrivate
	}
}

// IsResumption reports whether this request selects the tool-approval
// resumption mode (caller-supplied turn sequence, no history reload, no
// evidence retrieval).
func (r *ChatStreamRequest) IsResumption() bool {
	return len(r.Messages) > 0
}

// =============================================================================
// Request Hints
// =============================================================================

// RequestHints carries optional context about who is asking, folded into the
// system instructions so the model can calibrate response depth.
type RequestHints struct {
	UserRole string `json:"user_role,omitempty"` // "technician" or "advisor"
	ShopType string `json:"shop_type,omitempty"` // "dealer" or "independent"
}

// NewUserTurn builds a user turn from plain text with a generated id.
// Convenience for the CLI and for tests.
func NewUserTurn(text string) Turn {
	return Turn{
		ID:        uuid.New().String(),
		Role:      RoleUser,
		Parts:     []ContentPart{{Type: PartTypeText, Text: text}},
		CreatedAt: time.Now().UnixMilli(),
	}
}
