// Copyright (C) 2025 CK Auto AI (dev@ckauto.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package handlers implements the HTTP surface of the assistant service.
//
// The central handler is HandleChatStream, which runs the full answer
// pipeline for one user turn: authenticate, load or create the
// conversation, classify the question, retrieve web evidence, invoke the
// model, and stream the result while persisting the produced turns.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/ckauto-ai/shopbrain/pkg/extensions"
	"github.com/ckauto-ai/shopbrain/services/assistant/datatypes"
	"github.com/ckauto-ai/shopbrain/services/assistant/evidence"
	"github.com/ckauto-ai/shopbrain/services/assistant/middleware"
	"github.com/ckauto-ai/shopbrain/services/assistant/observability"
	"github.com/ckauto-ai/shopbrain/services/assistant/relevance"
	"github.com/ckauto-ai/shopbrain/services/assistant/stream"
	"github.com/ckauto-ai/shopbrain/services/assistant/store"
	"github.com/ckauto-ai/shopbrain/services/llm"
)

var tracer = otel.Tracer("shopbrain/assistant/handlers")

// heartbeatInterval is how often keepalive comments go out during slow
// pipeline stages (retrieval, long model thinking).
const heartbeatInterval = 15 * time.Second

// ClientFactory builds a model client for one request. Tests substitute a
// mock; production uses llm.NewClientForModel.
type ClientFactory func(selector string, registry *llm.Registry) (llm.Client, error)

// ChatHandler carries the dependencies of the chat pipeline.
type ChatHandler struct {
	store         store.ConversationStore
	eventLog      *stream.EventLog
	searcher      evidence.SearchClient
	titleClient   llm.Client
	clientFactory ClientFactory
}

// NewChatHandler wires a handler.
//
// searcher may be nil (evidence retrieval disabled), titleClient may be
// nil (conversations stay untitled), eventLog may be nil (streams are not
// resumable). The store is required.
func NewChatHandler(st store.ConversationStore, eventLog *stream.EventLog, searcher evidence.SearchClient, titleClient llm.Client, factory ClientFactory) *ChatHandler {
	if factory == nil {
		factory = llm.NewClientForModel
	}
	return &ChatHandler{
		store:         st,
		eventLog:      eventLog,
		searcher:      searcher,
		titleClient:   titleClient,
		clientFactory: factory,
	}
}

// respondError writes a pre-stream JSON error in the taxonomy shape.
func respondError(c *gin.Context, endpoint observability.Endpoint, chatErr *datatypes.ChatError) {
	if m := observability.DefaultMetrics; m != nil {
		m.RecordError(endpoint, string(chatErr.Code))
	}
	c.JSON(chatErr.HTTPStatus(), gin.H{
		"code":  chatErr.Code,
		"error": chatErr.Message,
	})
}

// HandleChatStream handles POST /v1/chat/stream.
//
// # Description
//
// Runs the full diagnostic answer pipeline and streams the result as SSE.
// Exactly one of message/messages must be present in the body: message is
// the normal flow (history loaded from storage), messages is the
// tool-approval resumption flow (caller supplies the complete turn
// sequence, no history reload, no evidence retrieval).
//
// # Outputs
//
// SSE events in one totally ordered stream: evidence, thinking, token,
// tool_call, tool_result, title, then done (or error). Each event carries
// a monotonically increasing seq for deduplication and resumption.
//
// HTTP status before streaming starts:
//   - 400 invalid body, 401 no session, 403 not the owner,
//     404 referenced conversation missing, 500 SSE setup failure.
//
// # Limitations
//
//   - Once streaming has begun, failures surface as error events, never
//     as HTTP status changes.
func (h *ChatHandler) HandleChatStream(c *gin.Context) {
	startTime := time.Now()
	endpoint := observability.EndpointChatStream

	ctx, span := tracer.Start(c.Request.Context(), "HandleChatStream")
	defer span.End()

	if m := observability.DefaultMetrics; m != nil {
		m.StreamStarted(endpoint)
		defer m.StreamEnded(endpoint)
	}

	success := false
	defer func() {
		if m := observability.DefaultMetrics; m != nil {
			m.RecordRequest(endpoint, success)
			m.RecordStreamDuration(endpoint, time.Since(startTime).Seconds(), success)
		}
	}()

	// Step 0: Authenticated user from context. The auth middleware has
	// already validated the token.
	authInfo := middleware.GetAuthInfo(c)
	if authInfo == nil {
		respondError(c, endpoint, datatypes.NewChatError(datatypes.ErrCodeUnauthorized, "authentication required"))
		return
	}
	span.SetAttributes(attribute.String("user.id", authInfo.UserID))

	// Step 1: Parse request body.
	var req datatypes.ChatStreamRequest
	if err := c.BindJSON(&req); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid request body")
		slog.Error("Failed to parse chat stream request", "error", err)
		respondError(c, endpoint, datatypes.NewChatError(datatypes.ErrCodeBadRequest, "invalid request body"))
		return
	}

	// Step 2: Validate and default.
	if err := req.Validate(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "validation failed")
		slog.Error("Chat stream request validation failed",
			"error", err,
			"conversationId", req.ConversationID)
		respondError(c, endpoint, datatypes.NewChatError(datatypes.ErrCodeBadRequest, "invalid request: validation failed"))
		return
	}
	req.EnsureDefaults()
	span.SetAttributes(
		attribute.String("request.id", req.RequestID),
		attribute.String("conversation.id", req.ConversationID),
		attribute.String("request.model", req.Model),
		attribute.Bool("request.resumption", req.IsResumption()),
	)

	// Step 3: Build the model client up front so a bad selector fails as a
	// plain 400 instead of a broken stream.
	registry := h.buildRegistry(authInfo)
	client, err := h.clientFactory(req.Model, registry)
	if err != nil {
		slog.Error("Failed to build model client",
			"model", req.Model,
			"requestId", req.RequestID,
			"error", err)
		respondError(c, endpoint, datatypes.NewChatError(datatypes.ErrCodeBadRequest, "unknown or unavailable model"))
		return
	}

	// Step 4: Load or create the conversation. Creation also kicks off the
	// detached title task.
	conv, titleTask, chatErr := h.loadOrCreateConversation(ctx, authInfo, &req)
	if chatErr != nil {
		respondError(c, endpoint, chatErr)
		return
	}

	// Step 5: Assemble the turn sequence for this invocation.
	var turns []datatypes.Turn
	if req.IsResumption() {
		// Persist the supplied sequence before generation so the amended
		// tool-approval turns survive a model failure.
		if err := h.store.UpsertTurns(ctx, conv.ID, req.Messages); err != nil {
			slog.Error("Failed to persist resumed turn sequence",
				"conversationId", conv.ID,
				"requestId", req.RequestID,
				"error", err)
			respondError(c, endpoint, datatypes.NewChatError(datatypes.ErrCodeServiceError, "failed to persist messages"))
			return
		}
		turns = req.Messages
	} else {
		history, err := h.store.ListTurns(ctx, conv.ID)
		if err != nil {
			slog.Error("Failed to load conversation history",
				"conversationId", conv.ID,
				"requestId", req.RequestID,
				"error", err)
			respondError(c, endpoint, datatypes.NewChatError(datatypes.ErrCodeServiceError, "failed to load conversation"))
			return
		}
		// Persist the inbound user turn before generation so a crash
		// mid-stream never loses the question.
		if err := h.store.UpsertTurns(ctx, conv.ID, []datatypes.Turn{*req.Message}); err != nil {
			slog.Error("Failed to persist user turn",
				"conversationId", conv.ID,
				"requestId", req.RequestID,
				"error", err)
			respondError(c, endpoint, datatypes.NewChatError(datatypes.ErrCodeServiceError, "failed to persist message"))
			return
		}
		turns = append(history, *req.Message)
	}

	// Step 6: Switch to SSE and build the stream multiplexer.
	SetSSEHeaders(c.Writer)
	sseWriter, err := NewSSEWriter(c.Writer)
	if err != nil {
		slog.Error("Failed to create SSE writer", "error", err)
		respondError(c, endpoint, datatypes.NewChatError(datatypes.ErrCodeServiceError, "streaming not supported"))
		return
	}

	streamID := uuid.New().String()
	mux := stream.NewMultiplexer(streamID, conv.ID, sseWriter, h.eventLog)
	if err := h.store.RecordStreamID(ctx, conv.ID, streamID); err != nil {
		// Resumption degrades, the live stream does not.
		slog.Warn("Failed to record stream id",
			"conversationId", conv.ID,
			"streamId", streamID,
			"error", err)
	}

	firstEventOnce := newOnce(func() {
		if m := observability.DefaultMetrics; m != nil {
			m.RecordTimeToFirstEvent(endpoint, time.Since(startTime).Seconds())
		}
	})

	// Step 7: Heartbeat goroutine. Keepalives are SSE comments, not
	// events; they bypass the multiplexer and carry no seq.
	heartbeatDone := make(chan struct{})
	defer close(heartbeatDone)
	go runHeartbeat(sseWriter, endpoint, heartbeatDone)

	// Step 8: Evidence retrieval. Normal flow only; the resumption flow
	// answers from the supplied sequence without fresh lookups.
	evidencePack := ""
	if !req.IsResumption() && h.searcher != nil {
		evidencePack = h.retrieveEvidence(ctx, req.Message.FirstText(), mux, firstEventOnce)
	}

	// Step 9: Build the prompt sequence and invoke the model.
	messages := buildModelMessages(req.Hints, evidencePack, turns)
	acc := NewAnswerAccumulator()

	params := llm.GenerationParams{
		MaxSteps:     datatypes.MaxModelSteps,
		ApproveTools: req.IsResumption(),
	}
	result, modelErr := client.ChatStream(ctx, messages, params, func(ev llm.StreamEvent) error {
		firstEventOnce.Do()
		switch ev.Kind {
		case llm.EventToken:
			acc.Append(ev.Text)
			return mux.Publish(datatypes.StreamEvent{Type: datatypes.StreamEventToken, Content: ev.Text})
		case llm.EventThinking:
			return mux.Publish(datatypes.StreamEvent{Type: datatypes.StreamEventThinking, Content: ev.Text})
		case llm.EventToolCall:
			return mux.Publish(datatypes.StreamEvent{Type: datatypes.StreamEventToolCall, ToolName: ev.ToolName, ToolArgs: ev.ToolArgs})
		case llm.EventToolResult:
			return mux.Publish(datatypes.StreamEvent{Type: datatypes.StreamEventToolResult, ToolName: ev.ToolName, ToolResult: ev.ToolResult})
		default:
			return fmt.Errorf("model emitted unknown event kind %q", ev.Kind)
		}
	})

	// Step 10: Model failure. Stream an error event, persist whatever
	// partial answer exists, and stop.
	if modelErr != nil {
		span.RecordError(modelErr)
		span.SetStatus(codes.Error, "model invocation failed")
		slog.Error("Model invocation failed",
			"conversationId", conv.ID,
			"requestId", req.RequestID,
			"model", req.Model,
			"error", modelErr)
		if m := observability.DefaultMetrics; m != nil {
			m.RecordError(endpoint, string(datatypes.ErrCodeUpstreamUnavailable))
		}
		if acc.Len() > 0 {
			h.persistAssistantTurn(conv.ID, req.RequestID, &req, acc)
		}
		_ = mux.Publish(datatypes.StreamEvent{
			Type:  datatypes.StreamEventError,
			Error: "the model provider is currently unavailable",
		})
		return
	}

	// Step 11: Persist the produced assistant turn. The inbound sequence
	// was already upserted at Step 5.
	saveIncomplete := false
	if acc.Len() > 0 && !result.PendingApproval {
		if !h.persistAssistantTurn(conv.ID, req.RequestID, &req, acc) {
			saveIncomplete = true
		}
	}

	// Step 12: Title join. Non-blocking: a ready title is streamed before
	// done; an unready task keeps running and persists out of band.
	if title, ok := titleTask.TryResult(); ok {
		_ = mux.Publish(datatypes.StreamEvent{Type: datatypes.StreamEventTitle, Title: title})
	}

	// Step 13: Done event closes the stream.
	_ = mux.Publish(datatypes.StreamEvent{
		Type:           datatypes.StreamEventDone,
		ConversationID: conv.ID,
		SaveIncomplete: saveIncomplete,
	})

	if mux.ClientGone() {
		if m := observability.DefaultMetrics; m != nil {
			m.RecordClientDisconnect(endpoint)
		}
	}

	success = true
	slog.Info("Chat stream completed",
		"conversationId", conv.ID,
		"requestId", req.RequestID,
		"streamId", streamID,
		"steps", result.Steps,
		"pendingApproval", result.PendingApproval,
		"answerBytes", acc.Len(),
		"clientGone", mux.ClientGone())
}

// loadOrCreateConversation resolves the target conversation, enforcing
// ownership, and creates it (plus the title task) when the id is new.
func (h *ChatHandler) loadOrCreateConversation(ctx context.Context, authInfo *extensions.AuthInfo, req *datatypes.ChatStreamRequest) (*datatypes.Conversation, *TitleTask, *datatypes.ChatError) {
	conv, err := h.store.GetConversation(ctx, req.ConversationID)
	if err == nil {
		if conv.UserID != authInfo.UserID {
			return nil, nil, datatypes.NewChatError(datatypes.ErrCodeForbidden, "you do not own this conversation")
		}
		return conv, nil, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		slog.Error("Failed to load conversation",
			"conversationId", req.ConversationID,
			"error", err)
		return nil, nil, datatypes.NewChatError(datatypes.ErrCodeServiceError, "failed to load conversation")
	}

	// A resumption request must reference an existing conversation; there
	// is nothing to resume in a fresh one.
	if req.IsResumption() {
		return nil, nil, datatypes.NewChatError(datatypes.ErrCodeNotFound, "conversation not found")
	}

	newConv := datatypes.Conversation{
		ID:         req.ConversationID,
		UserID:     authInfo.UserID,
		Visibility: req.Visibility,
		CreatedAt:  time.Now().UnixMilli(),
	}
	if err := h.store.CreateConversation(ctx, newConv); err != nil {
		slog.Error("Failed to create conversation",
			"conversationId", req.ConversationID,
			"error", err)
		return nil, nil, datatypes.NewChatError(datatypes.ErrCodeServiceError, "failed to create conversation")
	}

	var titleTask *TitleTask
	if h.titleClient != nil {
		titleTask = StartTitleTask(h.titleClient, h.store, newConv.ID, req.Message.FirstText())
	}
	return &newConv, titleTask, nil
}

// buildRegistry assembles the capabilities exposed to one invocation.
func (h *ChatHandler) buildRegistry(authInfo *extensions.AuthInfo) *llm.Registry {
	registry := llm.NewRegistry()
	registry.Register(llm.NewWeatherCapability())
	registry.Register(llm.NewCreateDocumentCapability(func(ctx context.Context, title, kind string) (string, error) {
		doc := datatypes.Document{
			ID:        uuid.New().String(),
			UserID:    authInfo.UserID,
			Title:     title,
			Kind:      kind,
			CreatedAt: time.Now().UnixMilli(),
		}
		if err := h.store.CreateDocument(ctx, doc); err != nil {
			return "", err
		}
		return doc.ID, nil
	}))
	return registry
}

// retrieveEvidence runs classification plus the category fan-out and
// returns the assembled pack, or "" when the question needs no lookup or
// every bucket came back empty.
func (h *ChatHandler) retrieveEvidence(ctx context.Context, question string, mux *stream.Multiplexer, firstEvent *once) string {
	if !relevance.NeedsEvidence(question) {
		return ""
	}

	ctx, span := tracer.Start(ctx, "retrieveEvidence")
	defer span.End()

	firstEvent.Do()
	_ = mux.Publish(datatypes.StreamEvent{
		Type:     datatypes.StreamEventEvidence,
		Evidence: &datatypes.EvidenceStatus{Stage: datatypes.EvidenceStageStart, UsedSearch: true},
	})

	retriever := evidence.NewRetriever(h.searcher)
	buckets := retriever.Retrieve(ctx, question, func(status datatypes.EvidenceStatus) {
		if m := observability.DefaultMetrics; m != nil {
			m.RecordEvidenceBucket(status.Bucket, float64(status.LatencyMs)/1000.0, status.Stage != datatypes.EvidenceStageBucketErr)
		}
		s := status
		_ = mux.Publish(datatypes.StreamEvent{Type: datatypes.StreamEventEvidence, Evidence: &s})
	})

	if datatypes.AllBucketsEmpty(buckets) {
		_ = mux.Publish(datatypes.StreamEvent{
			Type: datatypes.StreamEventEvidence,
			Evidence: &datatypes.EvidenceStatus{
				Stage:      datatypes.EvidenceStageFailed,
				UsedSearch: true,
				Errors:     evidence.BucketErrors(buckets),
			},
		})
		return ""
	}

	_ = mux.Publish(datatypes.StreamEvent{
		Type: datatypes.StreamEventEvidence,
		Evidence: &datatypes.EvidenceStatus{
			Stage:      datatypes.EvidenceStageFinal,
			UsedSearch: true,
			TopLinks:   evidence.TopLinks(buckets),
			Errors:     evidence.BucketErrors(buckets),
		},
	})
	return evidence.AssemblePack(buckets)
}

// persistAssistantTurn upserts the accumulated answer as an assistant
// turn. Returns false when persistence failed; streamed content is never
// retracted over it.
//
// Persistence runs on a background context: a client disconnect cancels
// the request context, and the whole point of finishing generation is to
// save the turn anyway.
func (h *ChatHandler) persistAssistantTurn(conversationID, requestID string, req *datatypes.ChatStreamRequest, acc *AnswerAccumulator) bool {
	turn := datatypes.NewAssistantTurn(acc.String())
	turn.AnswerHash = acc.HashHex()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := h.store.UpsertTurns(ctx, conversationID, []datatypes.Turn{turn}); err != nil {
		slog.Error("Failed to persist assistant turn",
			"conversationId", conversationID,
			"requestId", requestID,
			"turnId", turn.ID,
			"error", err)
		return false
	}
	return true
}

// buildModelMessages flattens system context and conversation turns into
// the provider prompt sequence.
func buildModelMessages(hints *datatypes.RequestHints, evidencePack string, turns []datatypes.Turn) []llm.Message {
	var messages []llm.Message
	for _, sys := range BuildSystemContext(hints, evidencePack) {
		messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: sys})
	}
	for _, turn := range turns {
		text := turnText(&turn)
		if text == "" {
			continue
		}
		messages = append(messages, llm.Message{Role: turn.Role, Content: text})
	}
	return messages
}

// turnText joins a turn's text parts. Media parts contribute a marker so
// the model knows an attachment existed even though bytes are not sent.
func turnText(turn *datatypes.Turn) string {
	var parts []string
	for _, p := range turn.Parts {
		switch p.Type {
		case datatypes.PartTypeText:
			if p.Text != "" {
				parts = append(parts, p.Text)
			}
		case datatypes.PartTypeMedia:
			parts = append(parts, fmt.Sprintf("[attachment: %s]", p.MediaType))
		}
	}
	return strings.Join(parts, "\n")
}

// runHeartbeat sends keepalive comments until done closes. Write failures
// stop the loop; the multiplexer discovers the disconnect on its own.
func runHeartbeat(writer *SSEWriter, endpoint observability.Endpoint, done <-chan struct{}) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := writer.WriteKeepAlive(); err != nil {
				return
			}
			if m := observability.DefaultMetrics; m != nil {
				m.RecordKeepAlive(endpoint)
			}
		}
	}
}

// once is a tiny call-at-most-once helper for metric hooks.
type once struct {
	done bool
	fn   func()
}

func newOnce(fn func()) *once {
	return &once{fn: fn}
}

func (o *once) Do() {
	if !o.done {
		o.done = true
		o.fn()
	}
}

// parseAfterSeq reads the ?after= replay cursor, defaulting to 0.
func parseAfterSeq(c *gin.Context) int64 {
	raw := c.Query("after")
	if raw == "" {
		return 0
	}
	after, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || after < 0 {
		return 0
	}
	return after
}

// HandleResumeStream handles GET /v1/chat/:conversationId/stream/:streamId.
//
// Replays the logged events of a stream with seq greater than ?after, in
// order, then closes. The client deduplicates by seq, so replaying from 0
// is always safe.
func (h *ChatHandler) HandleResumeStream(c *gin.Context) {
	endpoint := observability.EndpointResumeStream

	ctx, span := tracer.Start(c.Request.Context(), "HandleResumeStream")
	defer span.End()

	authInfo := middleware.GetAuthInfo(c)
	if authInfo == nil {
		respondError(c, endpoint, datatypes.NewChatError(datatypes.ErrCodeUnauthorized, "authentication required"))
		return
	}

	conversationID := c.Param("conversationId")
	streamID := c.Param("streamId")
	after := parseAfterSeq(c)
	span.SetAttributes(
		attribute.String("conversation.id", conversationID),
		attribute.String("stream.id", streamID),
		attribute.Int64("stream.after", after),
	)

	conv, err := h.store.GetConversation(ctx, conversationID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondError(c, endpoint, datatypes.NewChatError(datatypes.ErrCodeNotFound, "conversation not found"))
			return
		}
		respondError(c, endpoint, datatypes.NewChatError(datatypes.ErrCodeServiceError, "failed to load conversation"))
		return
	}
	if conv.UserID != authInfo.UserID && conv.Visibility != datatypes.VisibilityPublic {
		respondError(c, endpoint, datatypes.NewChatError(datatypes.ErrCodeForbidden, "you do not own this conversation"))
		return
	}

	if h.eventLog == nil {
		respondError(c, endpoint, datatypes.NewChatError(datatypes.ErrCodeNotFound, "stream replay is not enabled"))
		return
	}

	events, err := h.eventLog.Replay(streamID, after)
	if err != nil {
		slog.Error("Failed to replay stream",
			"streamId", streamID,
			"error", err)
		respondError(c, endpoint, datatypes.NewChatError(datatypes.ErrCodeServiceError, "failed to replay stream"))
		return
	}

	// A stream id belongs to exactly one conversation, and the multiplexer
	// stamps that conversation on every logged event. A mismatch means the
	// caller paired a conversation they can read with a stream they cannot.
	if len(events) > 0 && events[0].ConversationID != conversationID {
		slog.Warn("Stream replay conversation mismatch",
			"conversationId", conversationID,
			"streamId", streamID,
			"userId", authInfo.UserID)
		respondError(c, endpoint, datatypes.NewChatError(datatypes.ErrCodeNotFound, "stream not found"))
		return
	}

	SetSSEHeaders(c.Writer)
	writer, err := NewSSEWriter(c.Writer)
	if err != nil {
		respondError(c, endpoint, datatypes.NewChatError(datatypes.ErrCodeServiceError, "streaming not supported"))
		return
	}
	for _, event := range events {
		if err := writer.Write(event); err != nil {
			return
		}
	}

	if m := observability.DefaultMetrics; m != nil {
		m.RecordRequest(endpoint, true)
	}
	slog.Info("Replayed stream",
		"conversationId", conversationID,
		"streamId", streamID,
		"after", after,
		"events", len(events))
}
