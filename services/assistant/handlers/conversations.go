// Copyright (C) 2025 CK Auto AI (dev@ckauto.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"

	"github.com/ckauto-ai/shopbrain/services/assistant/datatypes"
	"github.com/ckauto-ai/shopbrain/services/assistant/middleware"
	"github.com/ckauto-ai/shopbrain/services/assistant/observability"
	"github.com/ckauto-ai/shopbrain/services/assistant/store"
)

// HandleGetHistory handles GET /v1/conversations/:conversationId/history.
//
// Returns the conversation metadata plus its full ordered turn sequence.
// Owners always read; non-owners read only public conversations.
func (h *ChatHandler) HandleGetHistory(c *gin.Context) {
	endpoint := observability.EndpointConversations

	ctx, span := tracer.Start(c.Request.Context(), "HandleGetHistory")
	defer span.End()

	authInfo := middleware.GetAuthInfo(c)
	if authInfo == nil {
		respondError(c, endpoint, datatypes.NewChatError(datatypes.ErrCodeUnauthorized, "authentication required"))
		return
	}

	conversationID := c.Param("conversationId")
	span.SetAttributes(attribute.String("conversation.id", conversationID))

	conv, err := h.store.GetConversation(ctx, conversationID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondError(c, endpoint, datatypes.NewChatError(datatypes.ErrCodeNotFound, "conversation not found"))
			return
		}
		slog.Error("Failed to load conversation",
			"conversationId", conversationID,
			"error", err)
		respondError(c, endpoint, datatypes.NewChatError(datatypes.ErrCodeServiceError, "failed to load conversation"))
		return
	}
	if conv.UserID != authInfo.UserID && conv.Visibility != datatypes.VisibilityPublic {
		respondError(c, endpoint, datatypes.NewChatError(datatypes.ErrCodeForbidden, "you do not own this conversation"))
		return
	}

	turns, err := h.store.ListTurns(ctx, conversationID)
	if err != nil {
		slog.Error("Failed to list conversation turns",
			"conversationId", conversationID,
			"error", err)
		respondError(c, endpoint, datatypes.NewChatError(datatypes.ErrCodeServiceError, "failed to load conversation history"))
		return
	}

	if m := observability.DefaultMetrics; m != nil {
		m.RecordRequest(endpoint, true)
	}
	c.JSON(http.StatusOK, gin.H{
		"conversation": conv,
		"turns":        turns,
	})
}

// HandleDeleteConversation handles DELETE /v1/conversations/:conversationId.
//
// Owner only, regardless of visibility. Deleting an already-deleted
// conversation returns 404.
func (h *ChatHandler) HandleDeleteConversation(c *gin.Context) {
	endpoint := observability.EndpointConversations

	ctx, span := tracer.Start(c.Request.Context(), "HandleDeleteConversation")
	defer span.End()

	authInfo := middleware.GetAuthInfo(c)
	if authInfo == nil {
		respondError(c, endpoint, datatypes.NewChatError(datatypes.ErrCodeUnauthorized, "authentication required"))
		return
	}

	conversationID := c.Param("conversationId")
	span.SetAttributes(attribute.String("conversation.id", conversationID))

	conv, err := h.store.GetConversation(ctx, conversationID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondError(c, endpoint, datatypes.NewChatError(datatypes.ErrCodeNotFound, "conversation not found"))
			return
		}
		slog.Error("Failed to load conversation for deletion",
			"conversationId", conversationID,
			"error", err)
		respondError(c, endpoint, datatypes.NewChatError(datatypes.ErrCodeServiceError, "failed to load conversation"))
		return
	}
	if conv.UserID != authInfo.UserID {
		respondError(c, endpoint, datatypes.NewChatError(datatypes.ErrCodeForbidden, "you do not own this conversation"))
		return
	}

	if err := h.store.DeleteConversation(ctx, conversationID); err != nil {
		slog.Error("Failed to delete conversation",
			"conversationId", conversationID,
			"error", err)
		respondError(c, endpoint, datatypes.NewChatError(datatypes.ErrCodeServiceError, "failed to delete conversation"))
		return
	}

	if m := observability.DefaultMetrics; m != nil {
		m.RecordRequest(endpoint, true)
	}
	slog.Info("Deleted conversation",
		"conversationId", conversationID,
		"userId", authInfo.UserID)
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}
