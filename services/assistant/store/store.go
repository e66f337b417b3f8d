// Copyright (C) 2025 CK Auto AI (dev@ckauto.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package store persists conversations, turns, and documents.
//
// Two implementations exist: WeaviateStore for production and MemoryStore
// for tests and lightweight mode. Handlers depend only on the
// ConversationStore interface.
package store

import (
	"context"
	"errors"

	"github.com/ckauto-ai/shopbrain/services/assistant/datatypes"
)

// ErrNotFound is returned when the requested conversation does not exist.
var ErrNotFound = errors.New("conversation not found")

// ConversationStore is the persistence contract for the chat pipeline.
//
// # Description
//
// UpsertTurns is keyed by turn id: writing an id that already exists in the
// conversation replaces that turn's parts (last writer wins, CreatedAt
// preserved); a new id appends. Calling it twice with the same turns leaves
// the history unchanged, which is what makes retried finalization safe.
//
// SetTitle is a no-op when the conversation already carries a title; titles
// are generated once and never regenerated.
type ConversationStore interface {
	CreateConversation(ctx context.Context, conv datatypes.Conversation) error
	GetConversation(ctx context.Context, id string) (*datatypes.Conversation, error)
	ListTurns(ctx context.Context, conversationID string) ([]datatypes.Turn, error)
	UpsertTurns(ctx context.Context, conversationID string, turns []datatypes.Turn) error
	SetTitle(ctx context.Context, conversationID, title string) error
	DeleteConversation(ctx context.Context, conversationID string) error

	// RecordStreamID notes the most recent stream id for resumption lookups.
	RecordStreamID(ctx context.Context, conversationID, streamID string) error

	// CreateDocument persists a document stub created by a capability.
	CreateDocument(ctx context.Context, doc datatypes.Document) error
}
