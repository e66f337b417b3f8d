// Copyright (C) 2025 CK Auto AI (dev@ckauto.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"

	"github.com/ckauto-ai/shopbrain/services/assistant/datatypes"
)

// maxTurnsPerConversation bounds the history query.
const maxTurnsPerConversation = 1000

// WeaviateStore is the production ConversationStore.
type WeaviateStore struct {
	client *weaviate.Client
}

// NewWeaviateStore wraps an initialized client. Call EnsureSchema first.
func NewWeaviateStore(client *weaviate.Client) *WeaviateStore {
	return &WeaviateStore{client: client}
}

// =============================================================================
// Query Response Types
// =============================================================================

type conversationQueryResponse struct {
	Get struct {
		Conversation []struct {
			ConversationID string  `json:"conversation_id"`
			UserID         string  `json:"user_id"`
			Title          string  `json:"title"`
			Visibility     string  `json:"visibility"`
			LastStreamID   string  `json:"last_stream_id"`
			CreatedAt      float64 `json:"created_at"`
			Additional     struct {
				ID string `json:"id"`
			} `json:"_additional"`
		} `json:"Conversation"`
	} `json:"Get"`
}

type turnQueryResponse struct {
	Get struct {
		Turn []struct {
			TurnID     string  `json:"turn_id"`
			Role       string  `json:"role"`
			PartsJSON  string  `json:"parts_json"`
			AnswerHash string  `json:"answer_hash"`
			CreatedAt  float64 `json:"created_at"`
			Additional struct {
				ID string `json:"id"`
			} `json:"_additional"`
		} `json:"Turn"`
	} `json:"Get"`
}

// =============================================================================
// Conversations
// =============================================================================

// CreateConversation implements ConversationStore.
func (s *WeaviateStore) CreateConversation(ctx context.Context, conv datatypes.Conversation) error {
	_, err := s.client.Data().Creator().
		WithClassName("Conversation").
		WithProperties(map[string]interface{}{
			"conversation_id": conv.ID,
			"user_id":         conv.UserID,
			"title":           conv.Title,
			"visibility":      conv.Visibility,
			"last_stream_id":  "",
			"created_at":      conv.CreatedAt,
		}).
		Do(ctx)
	if err != nil {
		return fmt.Errorf("failed to create conversation object: %w", err)
	}
	slog.Info("Created conversation", "conversationId", conv.ID, "userId", conv.UserID)
	return nil
}

// GetConversation implements ConversationStore.
func (s *WeaviateStore) GetConversation(ctx context.Context, id string) (*datatypes.Conversation, error) {
	resp, err := s.queryConversation(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(resp.Get.Conversation) == 0 {
		return nil, ErrNotFound
	}
	row := resp.Get.Conversation[0]
	return &datatypes.Conversation{
		ID:         row.ConversationID,
		UserID:     row.UserID,
		Title:      row.Title,
		Visibility: row.Visibility,
		CreatedAt:  int64(row.CreatedAt),
	}, nil
}

// queryConversation fetches the conversation row plus its Weaviate UUID.
func (s *WeaviateStore) queryConversation(ctx context.Context, id string) (*conversationQueryResponse, error) {
	where := filters.Where().
		WithPath([]string{"conversation_id"}).
		WithOperator(filters.Equal).
		WithValueString(id)

	fields := []graphql.Field{
		{Name: "conversation_id"},
		{Name: "user_id"},
		{Name: "title"},
		{Name: "visibility"},
		{Name: "last_stream_id"},
		{Name: "created_at"},
		{Name: "_additional", Fields: []graphql.Field{{Name: "id"}}},
	}

	result, err := s.client.GraphQL().Get().
		WithClassName("Conversation").
		WithWhere(where).
		WithFields(fields...).
		WithLimit(1).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query conversation: %w", err)
	}

	var resp conversationQueryResponse
	respBytes, _ := json.Marshal(result.Data)
	if err := json.Unmarshal(respBytes, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse conversation query response: %w", err)
	}
	return &resp, nil
}

// conversationUUID resolves the Weaviate object id for a conversation.
func (s *WeaviateStore) conversationUUID(ctx context.Context, id string) (string, error) {
	resp, err := s.queryConversation(ctx, id)
	if err != nil {
		return "", err
	}
	if len(resp.Get.Conversation) == 0 {
		return "", ErrNotFound
	}
	return resp.Get.Conversation[0].Additional.ID, nil
}

// SetTitle implements ConversationStore. A conversation that already has a
// title keeps it.
func (s *WeaviateStore) SetTitle(ctx context.Context, conversationID, title string) error {
	resp, err := s.queryConversation(ctx, conversationID)
	if err != nil {
		return err
	}
	if len(resp.Get.Conversation) == 0 {
		return ErrNotFound
	}
	row := resp.Get.Conversation[0]
	if row.Title != "" {
		return nil
	}

	err = s.client.Data().Updater().
		WithClassName("Conversation").
		WithID(row.Additional.ID).
		WithMerge().
		WithProperties(map[string]interface{}{
			"title": title,
		}).
		Do(ctx)
	if err != nil {
		return fmt.Errorf("failed to update conversation title: %w", err)
	}
	slog.Info("Set conversation title", "conversationId", conversationID, "title", title)
	return nil
}

// RecordStreamID implements ConversationStore.
func (s *WeaviateStore) RecordStreamID(ctx context.Context, conversationID, streamID string) error {
	uuid, err := s.conversationUUID(ctx, conversationID)
	if err != nil {
		return err
	}
	err = s.client.Data().Updater().
		WithClassName("Conversation").
		WithID(uuid).
		WithMerge().
		WithProperties(map[string]interface{}{
			"last_stream_id": streamID,
		}).
		Do(ctx)
	if err != nil {
		return fmt.Errorf("failed to record stream id: %w", err)
	}
	return nil
}

// DeleteConversation implements ConversationStore. Turns go first so a
// partial failure never orphans them invisibly behind a deleted parent.
func (s *WeaviateStore) DeleteConversation(ctx context.Context, conversationID string) error {
	where := filters.Where().
		WithPath([]string{"conversation_id"}).
		WithOperator(filters.Equal).
		WithValueString(conversationID)

	_, err := s.client.Batch().ObjectsBatchDeleter().
		WithClassName("Turn").
		WithOutput("minimal").
		WithWhere(where).
		Do(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete conversation turns: %w", err)
	}

	_, err = s.client.Batch().ObjectsBatchDeleter().
		WithClassName("Conversation").
		WithOutput("minimal").
		WithWhere(where).
		Do(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete conversation object: %w", err)
	}

	slog.Info("Deleted conversation", "conversationId", conversationID)
	return nil
}

// =============================================================================
// Turns
// =============================================================================

// ListTurns implements ConversationStore.
func (s *WeaviateStore) ListTurns(ctx context.Context, conversationID string) ([]datatypes.Turn, error) {
	if _, err := s.conversationUUID(ctx, conversationID); err != nil {
		return nil, err
	}

	where := filters.Where().
		WithPath([]string{"conversation_id"}).
		WithOperator(filters.Equal).
		WithValueString(conversationID)

	fields := []graphql.Field{
		{Name: "turn_id"},
		{Name: "role"},
		{Name: "parts_json"},
		{Name: "answer_hash"},
		{Name: "created_at"},
	}

	result, err := s.client.GraphQL().Get().
		WithClassName("Turn").
		WithWhere(where).
		WithFields(fields...).
		WithLimit(maxTurnsPerConversation).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query turns: %w", err)
	}

	var resp turnQueryResponse
	respBytes, _ := json.Marshal(result.Data)
	if err := json.Unmarshal(respBytes, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse turn query response: %w", err)
	}

	turns := make([]datatypes.Turn, 0, len(resp.Get.Turn))
	for _, row := range resp.Get.Turn {
		var parts []datatypes.ContentPart
		if err := json.Unmarshal([]byte(row.PartsJSON), &parts); err != nil {
			slog.Error("Skipping turn with unreadable parts",
				"conversationId", conversationID,
				"turnId", row.TurnID,
				"error", err)
			continue
		}
		turns = append(turns, datatypes.Turn{
			ID:         row.TurnID,
			Role:       row.Role,
			Parts:      parts,
			CreatedAt:  int64(row.CreatedAt),
			AnswerHash: row.AnswerHash,
		})
	}
	sort.SliceStable(turns, func(i, j int) bool {
		return turns[i].CreatedAt < turns[j].CreatedAt
	})
	return turns, nil
}

// UpsertTurns implements ConversationStore.
//
// Each turn is looked up by turn_id: found means merge the parts in place,
// missing means create. Writing the same turns twice converges to the same
// stored history.
func (s *WeaviateStore) UpsertTurns(ctx context.Context, conversationID string, turns []datatypes.Turn) error {
	for _, turn := range turns {
		partsJSON, err := json.Marshal(turn.Parts)
		if err != nil {
			return fmt.Errorf("failed to encode turn parts: %w", err)
		}

		uuid, found, err := s.turnUUID(ctx, turn.ID)
		if err != nil {
			return err
		}

		if found {
			err = s.client.Data().Updater().
				WithClassName("Turn").
				WithID(uuid).
				WithMerge().
				WithProperties(map[string]interface{}{
					"parts_json":  string(partsJSON),
					"answer_hash": turn.AnswerHash,
				}).
				Do(ctx)
			if err != nil {
				return fmt.Errorf("failed to update turn %s: %w", turn.ID, err)
			}
			continue
		}

		_, err = s.client.Data().Creator().
			WithClassName("Turn").
			WithProperties(map[string]interface{}{
				"turn_id":         turn.ID,
				"conversation_id": conversationID,
				"role":            turn.Role,
				"parts_json":      string(partsJSON),
				"answer_hash":     turn.AnswerHash,
				"created_at":      turn.CreatedAt,
			}).
			Do(ctx)
		if err != nil {
			return fmt.Errorf("failed to create turn %s: %w", turn.ID, err)
		}
	}
	return nil
}

// turnUUID resolves the Weaviate object id holding the given turn_id.
func (s *WeaviateStore) turnUUID(ctx context.Context, turnID string) (string, bool, error) {
	where := filters.Where().
		WithPath([]string{"turn_id"}).
		WithOperator(filters.Equal).
		WithValueString(turnID)

	fields := []graphql.Field{
		{Name: "turn_id"},
		{Name: "_additional", Fields: []graphql.Field{{Name: "id"}}},
	}

	result, err := s.client.GraphQL().Get().
		WithClassName("Turn").
		WithWhere(where).
		WithFields(fields...).
		WithLimit(1).
		Do(ctx)
	if err != nil {
		return "", false, fmt.Errorf("failed to query turn by id: %w", err)
	}

	var resp turnQueryResponse
	respBytes, _ := json.Marshal(result.Data)
	if err := json.Unmarshal(respBytes, &resp); err != nil {
		return "", false, fmt.Errorf("failed to parse turn query response: %w", err)
	}
	if len(resp.Get.Turn) == 0 {
		return "", false, nil
	}
	return resp.Get.Turn[0].Additional.ID, true, nil
}

// =============================================================================
// Documents
// =============================================================================

// CreateDocument implements ConversationStore.
func (s *WeaviateStore) CreateDocument(ctx context.Context, doc datatypes.Document) error {
	_, err := s.client.Data().Creator().
		WithClassName("ShopDocument").
		WithProperties(map[string]interface{}{
			"document_id": doc.ID,
			"user_id":     doc.UserID,
			"title":       doc.Title,
			"kind":        doc.Kind,
			"created_at":  doc.CreatedAt,
		}).
		Do(ctx)
	if err != nil {
		return fmt.Errorf("failed to create document object: %w", err)
	}
	slog.Info("Created document stub", "documentId", doc.ID, "title", doc.Title)
	return nil
}
