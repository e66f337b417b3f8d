// Copyright (C) 2025 CK Auto AI (dev@ckauto.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ckauto-ai/shopbrain/pkg/extensions"
	"github.com/ckauto-ai/shopbrain/services/assistant/datatypes"
	"github.com/ckauto-ai/shopbrain/services/assistant/middleware"
	"github.com/ckauto-ai/shopbrain/services/assistant/store"
	"github.com/ckauto-ai/shopbrain/services/assistant/stream"
)

func newResumeFixture(t *testing.T) (*store.MemoryStore, *stream.EventLog, *gin.Engine) {
	t.Helper()

	s := store.NewMemoryStore()
	log, err := stream.OpenEventLog("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = log.Close() })

	handler := NewChatHandler(s, log, nil, nil, nil)
	router := gin.New()
	router.Use(func(c *gin.Context) {
		middleware.SetAuthInfo(c, &extensions.AuthInfo{UserID: "user-1", UserType: extensions.UserTypeRegular})
	})
	router.GET("/v1/chat/:conversationId/stream/:streamId", handler.HandleResumeStream)
	return s, log, router
}

func seedLoggedStream(t *testing.T, s *store.MemoryStore, log *stream.EventLog) (convID, streamID string) {
	t.Helper()
	convID = "bbbbbbbb-bbbb-4bbb-8bbb-bbbbbbbbbbbb"
	streamID = "stream-1"

	require.NoError(t, s.CreateConversation(context.Background(), datatypes.Conversation{
		ID: convID, UserID: "user-1", Visibility: datatypes.VisibilityPrivate, CreatedAt: 1,
	}))

	mux := stream.NewMultiplexer(streamID, convID, nil, log)
	require.NoError(t, mux.Publish(datatypes.StreamEvent{Type: datatypes.StreamEventToken, Content: "hel"}))
	require.NoError(t, mux.Publish(datatypes.StreamEvent{Type: datatypes.StreamEventToken, Content: "lo"}))
	require.NoError(t, mux.Publish(datatypes.StreamEvent{Type: datatypes.StreamEventDone, ConversationID: convID}))
	return convID, streamID
}

func TestHandleResumeStream_ReplaysAll(t *testing.T) {
	s, log, router := newResumeFixture(t)
	convID, streamID := seedLoggedStream(t, s, log)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet,
		"/v1/chat/"+convID+"/stream/"+streamID, nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))

	events := decodeSSE(t, w.Body.String())
	require.Len(t, events, 3)
	assert.Equal(t, "hel", events[0].Content)
	assert.Equal(t, datatypes.StreamEventDone, events[2].Type)

	// Replayed events keep their original stamps.
	assert.Equal(t, int64(1), events[0].Seq)
	assert.Equal(t, events[0].Hash, events[1].PrevHash)
}

func TestHandleResumeStream_AfterCursor(t *testing.T) {
	s, log, router := newResumeFixture(t)
	convID, streamID := seedLoggedStream(t, s, log)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet,
		"/v1/chat/"+convID+"/stream/"+streamID+"?after=2", nil))
	require.Equal(t, http.StatusOK, w.Code)

	events := decodeSSE(t, w.Body.String())
	require.Len(t, events, 1)
	assert.Equal(t, int64(3), events[0].Seq)
}

func TestHandleResumeStream_UnknownStreamIsEmpty(t *testing.T) {
	s, log, router := newResumeFixture(t)
	convID, _ := seedLoggedStream(t, s, log)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet,
		"/v1/chat/"+convID+"/stream/expired-stream", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decodeSSE(t, w.Body.String()))
}

func TestHandleResumeStream_ForeignStreamNotReplayed(t *testing.T) {
	s, log, router := newResumeFixture(t)
	convID, _ := seedLoggedStream(t, s, log)

	// Another user's private conversation with its own logged stream.
	otherConv := "cccccccc-cccc-4ccc-8ccc-cccccccccccc"
	require.NoError(t, s.CreateConversation(context.Background(), datatypes.Conversation{
		ID: otherConv, UserID: "someone-else",
		Visibility: datatypes.VisibilityPrivate, CreatedAt: 1,
	}))
	otherMux := stream.NewMultiplexer("other-stream", otherConv, nil, log)
	require.NoError(t, otherMux.Publish(datatypes.StreamEvent{
		Type: datatypes.StreamEventToken, Content: "private diagnosis",
	}))

	// Pairing a conversation the caller can read with someone else's
	// stream id must not leak the logged events.
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet,
		"/v1/chat/"+convID+"/stream/other-stream", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.NotContains(t, w.Body.String(), "private diagnosis")
}

func TestHandleResumeStream_Access(t *testing.T) {
	s, log, router := newResumeFixture(t)
	seedLoggedStream(t, s, log)

	require.NoError(t, s.CreateConversation(context.Background(), datatypes.Conversation{
		ID: "cccccccc-cccc-4ccc-8ccc-cccccccccccc", UserID: "someone-else",
		Visibility: datatypes.VisibilityPrivate, CreatedAt: 1,
	}))

	t.Run("foreign private conversation forbidden", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet,
			"/v1/chat/cccccccc-cccc-4ccc-8ccc-cccccccccccc/stream/stream-1", nil))
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("missing conversation 404", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet,
			"/v1/chat/dddddddd-dddd-4ddd-8ddd-dddddddddddd/stream/stream-1", nil))
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}
