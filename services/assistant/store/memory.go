// Copyright (C) 2025 CK Auto AI (dev@ckauto.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package store

import (
	"context"
	"sort"
	"sync"

	"github.com/ckauto-ai/shopbrain/services/assistant/datatypes"
)

// MemoryStore is the in-process ConversationStore.
//
// Used by tests and by lightweight mode when no Weaviate URL is configured.
// Nothing survives a restart.
type MemoryStore struct {
	mu            sync.RWMutex
	conversations map[string]datatypes.Conversation
	turns         map[string][]datatypes.Turn
	streamIDs     map[string]string
	documents     map[string]datatypes.Document
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		conversations: make(map[string]datatypes.Conversation),
		turns:         make(map[string][]datatypes.Turn),
		streamIDs:     make(map[string]string),
		documents:     make(map[string]datatypes.Document),
	}
}

// CreateConversation implements ConversationStore.
func (s *MemoryStore) CreateConversation(_ context.Context, conv datatypes.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversations[conv.ID] = conv
	return nil
}

// GetConversation implements ConversationStore.
func (s *MemoryStore) GetConversation(_ context.Context, id string) (*datatypes.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conv, ok := s.conversations[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &conv, nil
}

// ListTurns implements ConversationStore. Turns come back in CreatedAt
// order with insertion order as tiebreaker.
func (s *MemoryStore) ListTurns(_ context.Context, conversationID string) ([]datatypes.Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.conversations[conversationID]; !ok {
		return nil, ErrNotFound
	}
	turns := make([]datatypes.Turn, len(s.turns[conversationID]))
	copy(turns, s.turns[conversationID])
	sort.SliceStable(turns, func(i, j int) bool {
		return turns[i].CreatedAt < turns[j].CreatedAt
	})
	return turns, nil
}

// UpsertTurns implements ConversationStore.
func (s *MemoryStore) UpsertTurns(_ context.Context, conversationID string, turns []datatypes.Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.conversations[conversationID]; !ok {
		return ErrNotFound
	}
	existing := s.turns[conversationID]
	for _, turn := range turns {
		replaced := false
		for i := range existing {
			if existing[i].ID == turn.ID {
				// Update in place; CreatedAt keeps its original value so
				// ordering never shifts on amendment.
				turn.CreatedAt = existing[i].CreatedAt
				existing[i] = turn
				replaced = true
				break
			}
		}
		if !replaced {
			existing = append(existing, turn)
		}
	}
	s.turns[conversationID] = existing
	return nil
}

// SetTitle implements ConversationStore. Already-titled conversations are
// left alone.
func (s *MemoryStore) SetTitle(_ context.Context, conversationID, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conversations[conversationID]
	if !ok {
		return ErrNotFound
	}
	if conv.Title != "" {
		return nil
	}
	conv.Title = title
	s.conversations[conversationID] = conv
	return nil
}

// DeleteConversation implements ConversationStore. Deleting an unknown id
// is not an error.
func (s *MemoryStore) DeleteConversation(_ context.Context, conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conversations, conversationID)
	delete(s.turns, conversationID)
	delete(s.streamIDs, conversationID)
	return nil
}

// RecordStreamID implements ConversationStore.
func (s *MemoryStore) RecordStreamID(_ context.Context, conversationID, streamID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.streamIDs[conversationID] = streamID
	return nil
}

// LatestStreamID returns the most recent stream id for a conversation, or
// "" when none was recorded. Test helper.
func (s *MemoryStore) LatestStreamID(conversationID string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.streamIDs[conversationID]
}

// CreateDocument implements ConversationStore.
func (s *MemoryStore) CreateDocument(_ context.Context, doc datatypes.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.documents[doc.ID] = doc
	return nil
}
