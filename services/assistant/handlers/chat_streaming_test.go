// Copyright (C) 2025 CK Auto AI (dev@ckauto.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ckauto-ai/shopbrain/pkg/extensions"
	"github.com/ckauto-ai/shopbrain/services/assistant/datatypes"
	"github.com/ckauto-ai/shopbrain/services/assistant/middleware"
	"github.com/ckauto-ai/shopbrain/services/assistant/store"
	"github.com/ckauto-ai/shopbrain/services/llm"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// =============================================================================
// Test doubles
// =============================================================================

// mockLLM scripts the model side of the pipeline.
type mockLLM struct {
	generateResult string
	generateErr    error

	// chatScript runs instead of a real provider loop. Receives the exact
	// message sequence the handler built.
	chatScript func(messages []llm.Message, params llm.GenerationParams, cb llm.StreamCallback) (*llm.ChatResult, error)

	lastMessages []llm.Message
	lastParams   llm.GenerationParams
}

func (m *mockLLM) Generate(_ context.Context, _ string, _ llm.GenerationParams) (string, error) {
	return m.generateResult, m.generateErr
}

func (m *mockLLM) ChatStream(_ context.Context, messages []llm.Message, params llm.GenerationParams, cb llm.StreamCallback) (*llm.ChatResult, error) {
	m.lastMessages = messages
	m.lastParams = params
	return m.chatScript(messages, params, cb)
}

// tokenScript streams the given fragments as tokens and succeeds.
func tokenScript(fragments ...string) func([]llm.Message, llm.GenerationParams, llm.StreamCallback) (*llm.ChatResult, error) {
	return func(_ []llm.Message, _ llm.GenerationParams, cb llm.StreamCallback) (*llm.ChatResult, error) {
		var answer strings.Builder
		for _, f := range fragments {
			if err := cb(llm.StreamEvent{Kind: llm.EventToken, Text: f}); err != nil {
				return nil, err
			}
			answer.WriteString(f)
		}
		return &llm.ChatResult{Answer: answer.String(), Steps: 1}, nil
	}
}

// scriptedSearcher returns one canned item for every category.
type scriptedSearcher struct {
	calls int
	empty bool
	fail  bool
}

func (s *scriptedSearcher) Search(_ context.Context, q datatypes.EvidenceQuery) ([]datatypes.EvidenceItem, error) {
	s.calls++
	if s.fail {
		return nil, fmt.Errorf("search provider down")
	}
	if s.empty {
		return nil, nil
	}
	return []datatypes.EvidenceItem{{
		Title:   "hit for " + string(q.Category),
		URL:     "https://example.com/" + string(q.Category),
		Snippet: "snippet",
	}}, nil
}

// =============================================================================
// Harness
// =============================================================================

type chatFixture struct {
	store    *store.MemoryStore
	model    *mockLLM
	searcher *scriptedSearcher
	handler  *ChatHandler
	router   *gin.Engine
}

func newChatFixture(t *testing.T, titleClient llm.Client) *chatFixture {
	t.Helper()
	f := &chatFixture{
		store:    store.NewMemoryStore(),
		model:    &mockLLM{chatScript: tokenScript("hello")},
		searcher: &scriptedSearcher{},
	}
	factory := func(selector string, _ *llm.Registry) (llm.Client, error) {
		if !strings.HasPrefix(selector, "openai/") {
			return nil, fmt.Errorf("unknown provider")
		}
		return f.model, nil
	}
	f.handler = NewChatHandler(f.store, nil, f.searcher, titleClient, factory)

	f.router = gin.New()
	f.router.Use(func(c *gin.Context) {
		middleware.SetAuthInfo(c, &extensions.AuthInfo{UserID: "user-1", UserType: extensions.UserTypeRegular})
	})
	f.router.POST("/v1/chat/stream", f.handler.HandleChatStream)
	f.router.GET("/v1/chat/:conversationId/stream/:streamId", f.handler.HandleResumeStream)
	f.router.GET("/v1/conversations/:conversationId/history", f.handler.HandleGetHistory)
	f.router.DELETE("/v1/conversations/:conversationId", f.handler.HandleDeleteConversation)
	return f
}

func (f *chatFixture) post(t *testing.T, req datatypes.ChatStreamRequest) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(&req)
	require.NoError(t, err)
	w := httptest.NewRecorder()
	httpReq := httptest.NewRequest(http.MethodPost, "/v1/chat/stream", bytes.NewReader(payload))
	httpReq.Header.Set("Content-Type", "application/json")
	f.router.ServeHTTP(w, httpReq)
	return w
}

func chatRequest(text string) datatypes.ChatStreamRequest {
	turn := datatypes.NewUserTurn(text)
	return datatypes.ChatStreamRequest{
		ConversationID: uuid.New().String(),
		Message:        &turn,
		Model:          "openai/gpt-4.1",
	}
}

// decodeSSE parses the recorded SSE body into events.
func decodeSSE(t *testing.T, body string) []datatypes.StreamEvent {
	t.Helper()
	var events []datatypes.StreamEvent
	scanner := bufio.NewScanner(strings.NewReader(body))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var event datatypes.StreamEvent
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &event))
		events = append(events, event)
	}
	return events
}

func eventsOfType(events []datatypes.StreamEvent, typ datatypes.StreamEventType) []datatypes.StreamEvent {
	var out []datatypes.StreamEvent
	for _, e := range events {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

func joinedTokens(events []datatypes.StreamEvent) string {
	var sb strings.Builder
	for _, e := range eventsOfType(events, datatypes.StreamEventToken) {
		sb.WriteString(e.Content)
	}
	return sb.String()
}

// =============================================================================
// Chat stream pipeline
// =============================================================================

func TestHandleChatStream_BasicAnswer(t *testing.T) {
	f := newChatFixture(t, nil)
	f.model.chatScript = tokenScript("The purge ", "valve is ", "stuck open.")

	req := chatRequest("explain how the evap purge valve works")
	w := f.post(t, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))

	events := decodeSSE(t, w.Body.String())
	require.NotEmpty(t, events)

	assert.Equal(t, "The purge valve is stuck open.", joinedTokens(events))

	last := events[len(events)-1]
	assert.Equal(t, datatypes.StreamEventDone, last.Type)
	assert.Equal(t, req.ConversationID, last.ConversationID)
	assert.False(t, last.SaveIncomplete)

	// Seq is monotonic from 1 across the whole stream.
	for i, ev := range events {
		assert.Equal(t, int64(i+1), ev.Seq)
	}

	// Conversation was created and both turns persisted.
	conv, err := f.store.GetConversation(context.Background(), req.ConversationID)
	require.NoError(t, err)
	assert.Equal(t, "user-1", conv.UserID)

	turns, err := f.store.ListTurns(context.Background(), req.ConversationID)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, datatypes.RoleUser, turns[0].Role)
	assert.Equal(t, datatypes.RoleAssistant, turns[1].Role)
	assert.Equal(t, "The purge valve is stuck open.", turns[1].FirstText())
	assert.NotEmpty(t, turns[1].AnswerHash)
	assert.Empty(t, turns[0].AnswerHash)

	// A conceptual question never touches the searcher.
	assert.Zero(t, f.searcher.calls)
}

func TestHandleChatStream_SystemPromptAlwaysFirst(t *testing.T) {
	f := newChatFixture(t, nil)

	f.post(t, chatRequest("hello"))

	require.NotEmpty(t, f.model.lastMessages)
	first := f.model.lastMessages[0]
	assert.Equal(t, llm.RoleSystem, first.Role)
	assert.Contains(t, first.Content, "CK Auto AI")
	assert.Contains(t, f.model.lastMessages[len(f.model.lastMessages)-1].Content, "hello")
}

func TestHandleChatStream_EvidenceFlow(t *testing.T) {
	f := newChatFixture(t, nil)
	f.model.chatScript = tokenScript("Per the bulletin, reflash the TCM first.")

	req := chatRequest("is there a recall for harsh shifting on this transmission")
	w := f.post(t, req)
	require.Equal(t, http.StatusOK, w.Code)

	events := decodeSSE(t, w.Body.String())
	evidence := eventsOfType(events, datatypes.StreamEventEvidence)
	require.NotEmpty(t, evidence)

	// search_start first, final last, one progress event per bucket between.
	assert.Equal(t, datatypes.EvidenceStageStart, evidence[0].Evidence.Stage)
	assert.Equal(t, datatypes.EvidenceStageFinal, evidence[len(evidence)-1].Evidence.Stage)
	assert.Len(t, evidence, 6)
	assert.Len(t, evidence[len(evidence)-1].Evidence.TopLinks, 4)

	// All evidence events precede the first token.
	tokens := eventsOfType(events, datatypes.StreamEventToken)
	require.NotEmpty(t, tokens)
	assert.Less(t, evidence[len(evidence)-1].Seq, tokens[0].Seq)

	// The evidence pack rode into the system context.
	var packSeen bool
	for _, msg := range f.model.lastMessages {
		if msg.Role == llm.RoleSystem && strings.Contains(msg.Content, "WEB SEARCH RESULTS") {
			packSeen = true
		}
	}
	assert.True(t, packSeen, "evidence pack missing from system context")
	assert.Equal(t, 4, f.searcher.calls)
}

func TestHandleChatStream_AllBucketsEmptySkipsPack(t *testing.T) {
	f := newChatFixture(t, nil)
	f.searcher.empty = true

	req := chatRequest("any recall on the 2023 tucson?")
	w := f.post(t, req)
	require.Equal(t, http.StatusOK, w.Code)

	events := decodeSSE(t, w.Body.String())
	evidence := eventsOfType(events, datatypes.StreamEventEvidence)
	require.NotEmpty(t, evidence)
	assert.Equal(t, datatypes.EvidenceStageFailed, evidence[len(evidence)-1].Evidence.Stage)

	for _, msg := range f.model.lastMessages {
		assert.NotContains(t, msg.Content, "WEB SEARCH RESULTS")
	}

	// The stream still completes normally.
	last := events[len(events)-1]
	assert.Equal(t, datatypes.StreamEventDone, last.Type)
}

func TestHandleChatStream_SearchFailureStillAnswers(t *testing.T) {
	f := newChatFixture(t, nil)
	f.searcher.fail = true
	f.model.chatScript = tokenScript("Answering from model knowledge.")

	w := f.post(t, chatRequest("common problem with cp4 pumps?"))
	require.Equal(t, http.StatusOK, w.Code)

	events := decodeSSE(t, w.Body.String())
	evidence := eventsOfType(events, datatypes.StreamEventEvidence)
	require.NotEmpty(t, evidence)
	failed := evidence[len(evidence)-1]
	assert.Equal(t, datatypes.EvidenceStageFailed, failed.Evidence.Stage)
	assert.NotEmpty(t, failed.Evidence.Errors)

	assert.Equal(t, "Answering from model knowledge.", joinedTokens(events))
	assert.Equal(t, datatypes.StreamEventDone, events[len(events)-1].Type)
}

func TestHandleChatStream_ModelFailure(t *testing.T) {
	f := newChatFixture(t, nil)
	f.model.chatScript = func(_ []llm.Message, _ llm.GenerationParams, cb llm.StreamCallback) (*llm.ChatResult, error) {
		_ = cb(llm.StreamEvent{Kind: llm.EventToken, Text: "partial "})
		return nil, fmt.Errorf("provider 500")
	}

	req := chatRequest("hello")
	w := f.post(t, req)
	require.Equal(t, http.StatusOK, w.Code)

	events := decodeSSE(t, w.Body.String())
	last := events[len(events)-1]
	assert.Equal(t, datatypes.StreamEventError, last.Type)
	// Sanitized message, never provider internals.
	assert.NotContains(t, last.Error, "500")

	// The partial answer was still persisted.
	turns, err := f.store.ListTurns(context.Background(), req.ConversationID)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, "partial ", turns[1].FirstText())
}

func TestHandleChatStream_ToolEventsOnStream(t *testing.T) {
	f := newChatFixture(t, nil)
	f.model.chatScript = func(_ []llm.Message, _ llm.GenerationParams, cb llm.StreamCallback) (*llm.ChatResult, error) {
		if err := cb(llm.StreamEvent{Kind: llm.EventToolCall, ToolName: "get_weather", ToolArgs: json.RawMessage(`{"latitude":43.7}`)}); err != nil {
			return nil, err
		}
		if err := cb(llm.StreamEvent{Kind: llm.EventToolResult, ToolName: "get_weather", ToolResult: `{"temp":-12}`}); err != nil {
			return nil, err
		}
		if err := cb(llm.StreamEvent{Kind: llm.EventToken, Text: "Cold enough to matter."}); err != nil {
			return nil, err
		}
		return &llm.ChatResult{Answer: "Cold enough to matter.", Steps: 2}, nil
	}

	w := f.post(t, chatRequest("hello"))
	events := decodeSSE(t, w.Body.String())

	calls := eventsOfType(events, datatypes.StreamEventToolCall)
	results := eventsOfType(events, datatypes.StreamEventToolResult)
	require.Len(t, calls, 1)
	require.Len(t, results, 1)
	assert.Equal(t, "get_weather", calls[0].ToolName)
	assert.Less(t, calls[0].Seq, results[0].Seq)
}

func TestHandleChatStream_ResumptionMode(t *testing.T) {
	f := newChatFixture(t, nil)
	f.model.chatScript = tokenScript("Document created as requested.")

	// Resumption requires an existing conversation.
	convID := uuid.New().String()
	require.NoError(t, f.store.CreateConversation(context.Background(), datatypes.Conversation{
		ID: convID, UserID: "user-1", Visibility: datatypes.VisibilityPrivate, CreatedAt: 1,
	}))

	userTurn := datatypes.NewUserTurn("create an estimate sheet for this job")
	req := datatypes.ChatStreamRequest{
		ConversationID: convID,
		Messages:       []datatypes.Turn{userTurn},
		Model:          "openai/gpt-4.1",
	}
	w := f.post(t, req)
	require.Equal(t, http.StatusOK, w.Code)

	// Approval is granted and evidence retrieval skipped in this mode.
	assert.True(t, f.model.lastParams.ApproveTools)
	assert.Zero(t, f.searcher.calls)

	// Supplied sequence plus the fresh assistant turn were persisted.
	turns, err := f.store.ListTurns(context.Background(), convID)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, userTurn.ID, turns[0].ID)
	assert.Equal(t, "Document created as requested.", turns[1].FirstText())
}

func TestHandleChatStream_ResumptionModelFailureKeepsSuppliedTurns(t *testing.T) {
	f := newChatFixture(t, nil)
	f.model.chatScript = func(_ []llm.Message, _ llm.GenerationParams, _ llm.StreamCallback) (*llm.ChatResult, error) {
		return nil, fmt.Errorf("provider 500")
	}

	convID := uuid.New().String()
	require.NoError(t, f.store.CreateConversation(context.Background(), datatypes.Conversation{
		ID: convID, UserID: "user-1", Visibility: datatypes.VisibilityPrivate, CreatedAt: 1,
	}))

	userTurn := datatypes.NewUserTurn("yes, create the document")
	req := datatypes.ChatStreamRequest{
		ConversationID: convID,
		Messages:       []datatypes.Turn{userTurn},
		Model:          "openai/gpt-4.1",
	}
	w := f.post(t, req)
	require.Equal(t, http.StatusOK, w.Code)

	events := decodeSSE(t, w.Body.String())
	last := events[len(events)-1]
	assert.Equal(t, datatypes.StreamEventError, last.Type)

	// The supplied approval turn was persisted even though generation
	// produced nothing.
	turns, err := f.store.ListTurns(context.Background(), convID)
	require.NoError(t, err)
	require.Len(t, turns, 1)
	assert.Equal(t, userTurn.ID, turns[0].ID)
}

func TestHandleChatStream_ResumptionUnknownConversation(t *testing.T) {
	f := newChatFixture(t, nil)

	userTurn := datatypes.NewUserTurn("continue")
	req := datatypes.ChatStreamRequest{
		ConversationID: uuid.New().String(),
		Messages:       []datatypes.Turn{userTurn},
		Model:          "openai/gpt-4.1",
	}
	w := f.post(t, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleChatStream_PendingApprovalFinishesCleanly(t *testing.T) {
	f := newChatFixture(t, nil)
	f.model.chatScript = func(_ []llm.Message, _ llm.GenerationParams, cb llm.StreamCallback) (*llm.ChatResult, error) {
		_ = cb(llm.StreamEvent{Kind: llm.EventToolCall, ToolName: "create_document", ToolArgs: json.RawMessage(`{"title":"Estimate"}`)})
		return &llm.ChatResult{PendingApproval: true}, nil
	}

	req := chatRequest("hello")
	w := f.post(t, req)
	require.Equal(t, http.StatusOK, w.Code)

	events := decodeSSE(t, w.Body.String())
	assert.Equal(t, datatypes.StreamEventDone, events[len(events)-1].Type)

	// No assistant turn persisted while approval is pending.
	turns, err := f.store.ListTurns(context.Background(), req.ConversationID)
	require.NoError(t, err)
	require.Len(t, turns, 1)
	assert.Equal(t, datatypes.RoleUser, turns[0].Role)
}

func TestHandleChatStream_RecordsStreamID(t *testing.T) {
	f := newChatFixture(t, nil)

	req := chatRequest("hello")
	w := f.post(t, req)
	require.Equal(t, http.StatusOK, w.Code)

	events := decodeSSE(t, w.Body.String())
	require.NotEmpty(t, events)
	assert.Equal(t, f.store.LatestStreamID(req.ConversationID), events[0].StreamID)
}

// =============================================================================
// Pre-stream rejections
// =============================================================================

func TestHandleChatStream_ValidationFailures(t *testing.T) {
	f := newChatFixture(t, nil)

	t.Run("neither message nor messages", func(t *testing.T) {
		w := f.post(t, datatypes.ChatStreamRequest{
			ConversationID: uuid.New().String(),
			Model:          "openai/gpt-4.1",
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("both message and messages", func(t *testing.T) {
		turn := datatypes.NewUserTurn("hi")
		w := f.post(t, datatypes.ChatStreamRequest{
			ConversationID: uuid.New().String(),
			Message:        &turn,
			Messages:       []datatypes.Turn{datatypes.NewUserTurn("also hi")},
			Model:          "openai/gpt-4.1",
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("missing model", func(t *testing.T) {
		turn := datatypes.NewUserTurn("hi")
		w := f.post(t, datatypes.ChatStreamRequest{
			ConversationID: uuid.New().String(),
			Message:        &turn,
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("non uuid conversation id", func(t *testing.T) {
		turn := datatypes.NewUserTurn("hi")
		w := f.post(t, datatypes.ChatStreamRequest{
			ConversationID: "not-a-uuid",
			Message:        &turn,
			Model:          "openai/gpt-4.1",
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unknown provider", func(t *testing.T) {
		req := chatRequest("hi")
		req.Model = "acme/unknown"
		w := f.post(t, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestHandleChatStream_OwnershipForbidden(t *testing.T) {
	f := newChatFixture(t, nil)

	req := chatRequest("hello")
	require.NoError(t, f.store.CreateConversation(context.Background(), datatypes.Conversation{
		ID: req.ConversationID, UserID: "someone-else", Visibility: datatypes.VisibilityPrivate, CreatedAt: 1,
	}))

	w := f.post(t, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestHandleChatStream_Unauthenticated(t *testing.T) {
	f := newChatFixture(t, nil)

	// Router without the auth-injecting middleware.
	router := gin.New()
	router.POST("/v1/chat/stream", f.handler.HandleChatStream)

	payload, _ := json.Marshal(chatRequest("hello"))
	w := httptest.NewRecorder()
	httpReq := httptest.NewRequest(http.MethodPost, "/v1/chat/stream", bytes.NewReader(payload))
	router.ServeHTTP(w, httpReq)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

// =============================================================================
// Conversation endpoints
// =============================================================================

func TestHandleGetHistory(t *testing.T) {
	f := newChatFixture(t, nil)

	req := chatRequest("what does a knock sensor do")
	f.post(t, req)

	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet,
		"/v1/conversations/"+req.ConversationID+"/history", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var decoded struct {
		Conversation datatypes.Conversation `json:"conversation"`
		Turns        []datatypes.Turn       `json:"turns"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &decoded))
	assert.Equal(t, req.ConversationID, decoded.Conversation.ID)
	require.Len(t, decoded.Turns, 2)
	assert.Equal(t, "what does a knock sensor do", decoded.Turns[0].FirstText())
}

func TestHandleGetHistory_Access(t *testing.T) {
	f := newChatFixture(t, nil)
	ctx := context.Background()

	require.NoError(t, f.store.CreateConversation(ctx, datatypes.Conversation{
		ID: "11111111-1111-4111-8111-111111111111", UserID: "someone-else",
		Visibility: datatypes.VisibilityPrivate, CreatedAt: 1,
	}))
	require.NoError(t, f.store.CreateConversation(ctx, datatypes.Conversation{
		ID: "22222222-2222-4222-8222-222222222222", UserID: "someone-else",
		Visibility: datatypes.VisibilityPublic, CreatedAt: 1,
	}))

	t.Run("private non-owner forbidden", func(t *testing.T) {
		w := httptest.NewRecorder()
		f.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet,
			"/v1/conversations/11111111-1111-4111-8111-111111111111/history", nil))
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("public non-owner allowed", func(t *testing.T) {
		w := httptest.NewRecorder()
		f.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet,
			"/v1/conversations/22222222-2222-4222-8222-222222222222/history", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("missing conversation 404", func(t *testing.T) {
		w := httptest.NewRecorder()
		f.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet,
			"/v1/conversations/33333333-3333-4333-8333-333333333333/history", nil))
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestHandleDeleteConversation(t *testing.T) {
	f := newChatFixture(t, nil)

	req := chatRequest("hello")
	f.post(t, req)

	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, httptest.NewRequest(http.MethodDelete,
		"/v1/conversations/"+req.ConversationID, nil))
	require.Equal(t, http.StatusOK, w.Code)

	_, err := f.store.GetConversation(context.Background(), req.ConversationID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	// Second delete is a 404, the conversation is gone.
	w = httptest.NewRecorder()
	f.router.ServeHTTP(w, httptest.NewRequest(http.MethodDelete,
		"/v1/conversations/"+req.ConversationID, nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleDeleteConversation_NonOwnerForbidden(t *testing.T) {
	f := newChatFixture(t, nil)

	// Public visibility does not grant delete.
	require.NoError(t, f.store.CreateConversation(context.Background(), datatypes.Conversation{
		ID: "22222222-2222-4222-8222-222222222222", UserID: "someone-else",
		Visibility: datatypes.VisibilityPublic, CreatedAt: 1,
	}))

	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, httptest.NewRequest(http.MethodDelete,
		"/v1/conversations/22222222-2222-4222-8222-222222222222", nil))
	assert.Equal(t, http.StatusForbidden, w.Code)
}
