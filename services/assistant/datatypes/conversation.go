// Copyright (C) 2025 CK Auto AI (dev@ckauto.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package datatypes provides data structures for the assistant service.
//
// This file contains the conversation and turn model. Turns are immutable
// once persisted, except for assistant turns amended during an in-flight
// tool-approval flow.
package datatypes

import (
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// Roles and Visibility
// =============================================================================

const (
	// RoleUser marks a turn authored by the human user.
	RoleUser = "user"
	// RoleAssistant marks a turn generated by the model.
	RoleAssistant = "assistant"
	// RoleSystem marks injected behavior/context instructions. System turns
	// are never persisted as conversation turns; they exist only in the
	// prompt assembly for a single model invocation.
	RoleSystem = "system"
)

const (
	// VisibilityPrivate restricts a conversation to its owner.
	VisibilityPrivate = "private"
	// VisibilityPublic allows read access without ownership.
	VisibilityPublic = "public"
)

// =============================================================================
// Content Parts
// =============================================================================

const (
	// PartTypeText is a plain text content part.
	PartTypeText = "text"
	// PartTypeMedia is a reference to an uploaded image or attachment.
	PartTypeMedia = "media"
)

// ContentPart is one element of a turn's ordered content sequence.
//
// A part is either text or a media reference, discriminated by Type.
// Media parts carry a URL and content type; the bytes themselves live
// in external storage.
type ContentPart struct {
	Type      string `json:"type" validate:"required,oneof=text media"`
	Text      string `json:"text,omitempty" validate:"maxbytes"`
	URL       string `json:"url,omitempty"`
	MediaType string `json:"media_type,omitempty"`
}

// =============================================================================
// Turn
// =============================================================================

// Turn is one message (user or assistant) in a conversation.
//
// # Description
//
// A Turn captures a single exchange element: who said it (Role), what was
// said (ordered Parts), and when (CreatedAt, Unix milliseconds). The turn id
// is the upsert key for persistence: writing the same id twice updates the
// existing turn in place rather than creating a duplicate.
//
// # Fields
//
//   - ID: UUID v4. Client-generated for user turns, server-generated for
//     assistant turns.
//   - Role: "user" or "assistant".
//   - Parts: Ordered content parts. At least one for any persisted turn.
//   - CreatedAt: Unix timestamp in milliseconds (UTC), used for ordering.
//
// # Limitations
//
//   - Parts ordering is positional; there is no per-part id.
//
// # Assumptions
//
//   - CreatedAt is assigned once and never rewritten on upsert.
type Turn struct {
	ID        string        `json:"id" validate:"required,uuid4"`
	Role      string        `json:"role" validate:"required,oneof=user assistant"`
	Parts     []ContentPart `json:"parts" validate:"required,min=1,dive"`
	CreatedAt int64         `json:"created_at"`

	// AnswerHash is the hex SHA-256 over an assistant turn's answer text,
	// computed incrementally while streaming. Empty on user turns.
	AnswerHash string `json:"answer_hash,omitempty"`
}

// FirstText returns the text of the first text-bearing content part.
//
// Non-text parts (images, attachments) are skipped. Returns "" when the
// turn has no text part at all. The relevance classifier operates on this
// value only; scanning every part is an intentional non-feature.
func (t *Turn) FirstText() string {
	for _, p := range t.Parts {
		if p.Type == PartTypeText {
			return p.Text
		}
	}
	return ""
}

// NewAssistantTurn creates an assistant turn with a generated id and the
// current timestamp, wrapping the answer text in a single text part.
func NewAssistantTurn(answer string) Turn {
	return Turn{
		ID:        uuid.New().String(),
		Role:      RoleAssistant,
		Parts:     []ContentPart{{Type: PartTypeText, Text: answer}},
		CreatedAt: time.Now().UnixMilli(),
	}
}

// =============================================================================
// Conversation
// =============================================================================

// Conversation is the durable container for an ordered turn sequence.
//
// # Fields
//
//   - ID: UUID v4, chosen by the client on the first turn so that the
//     stream can begin before the conversation row exists.
//   - UserID: Owning user. Immutable after creation; ownership checks
//     compare against the authenticated session.
//   - Title: Generated asynchronously from the first user turn. Empty until
//     the title task resolves; set exactly once.
//   - Visibility: "private" or "public".
//   - CreatedAt: Unix timestamp in milliseconds (UTC).
type Conversation struct {
	ID         string `json:"id"`
	UserID     string `json:"user_id"`
	Title      string `json:"title,omitempty"`
	Visibility string `json:"visibility"`
	CreatedAt  int64  `json:"created_at"`
}
