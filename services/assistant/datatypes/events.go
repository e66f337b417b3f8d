// Copyright (C) 2025 CK Auto AI (dev@ckauto.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package datatypes provides data structures for the assistant service.
//
// This file defines the outbound stream event union. The set of event types
// is closed: the multiplexer rejects unknown types at the boundary instead
// of forwarding whatever string a producer invented.
package datatypes

import (
	"encoding/json"
	"fmt"
)

// =============================================================================
// Event Types
// =============================================================================

// StreamEventType identifies one variant of the stream event union.
type StreamEventType string

const (
	// StreamEventToken carries an incremental slice of answer text.
	StreamEventToken StreamEventType = "token"
	// StreamEventThinking carries an incremental slice of reasoning text.
	StreamEventThinking StreamEventType = "thinking"
	// StreamEventToolCall announces a capability invocation by the model.
	StreamEventToolCall StreamEventType = "tool_call"
	// StreamEventToolResult carries the outcome of a capability invocation.
	StreamEventToolResult StreamEventType = "tool_result"
	// StreamEventEvidence reports web evidence retrieval progress.
	StreamEventEvidence StreamEventType = "evidence"
	// StreamEventTitle delivers the generated conversation title.
	StreamEventTitle StreamEventType = "title"
	// StreamEventError reports a terminal failure mid-stream.
	StreamEventError StreamEventType = "error"
	// StreamEventDone terminates a successful stream.
	StreamEventDone StreamEventType = "done"
)

// knownEventTypes is the closed set accepted at the multiplexer boundary.
var knownEventTypes = map[StreamEventType]struct{}{
	StreamEventToken:      {},
	StreamEventThinking:   {},
	StreamEventToolCall:   {},
	StreamEventToolResult: {},
	StreamEventEvidence:   {},
	StreamEventTitle:      {},
	StreamEventError:      {},
	StreamEventDone:       {},
}

// Known reports whether t is a member of the closed event union.
func (t StreamEventType) Known() bool {
	_, ok := knownEventTypes[t]
	return ok
}

// Terminal reports whether an event of this type ends the stream.
func (t StreamEventType) Terminal() bool {
	return t == StreamEventDone || t == StreamEventError
}

// =============================================================================
// Evidence Status Payload
// =============================================================================

// Evidence retrieval stages reported on "evidence" events.
const (
	EvidenceStageStart      = "search_start"
	EvidenceStageBucketDone = "bucket_done"
	EvidenceStageBucketErr  = "bucket_error"
	EvidenceStageFailed     = "search_failed"
	EvidenceStageFinal      = "final"
)

// EvidenceLink is one citation-safe link surfaced to the client.
type EvidenceLink struct {
	Bucket string `json:"bucket"`
	Title  string `json:"title"`
	URL    string `json:"url"`
}

// EvidenceStatus is the payload of an "evidence" stream event.
//
// Stage moves search_start -> bucket_done/bucket_error (per category) ->
// final, or search_failed when every category came back empty or broken.
type EvidenceStatus struct {
	Stage      string         `json:"stage"`
	Bucket     string         `json:"bucket,omitempty"`
	UsedSearch bool           `json:"used_search"`
	TopLinks   []EvidenceLink `json:"top_links,omitempty"`
	LatencyMs  int64          `json:"latency_ms,omitempty"`
	Errors     []string       `json:"errors,omitempty"`
}

// =============================================================================
// Stream Event
// =============================================================================

// StreamEvent is one element of the ordered output stream.
//
// # Description
//
// StreamEvent is a tagged union over Type. Exactly one payload group is
// populated per variant:
//
//   - token/thinking: Content
//   - tool_call: ToolName, ToolArgs
//   - tool_result: ToolName, ToolResult
//   - evidence: Evidence
//   - title: Title
//   - error: Error (sanitized; never provider internals)
//   - done: ConversationID, StreamID, SaveIncomplete
//
// Every event also carries stream metadata populated by the multiplexer:
//
//   - Seq: Monotonically increasing sequence id within the stream, starting
//     at 1. Consumers deduplicate and resume by Seq.
//   - ID: UUID v4 per event.
//   - CreatedAt: Unix timestamp in milliseconds.
//   - Hash/PrevHash: SHA-256 chain over event content for integrity audit.
//
// # Thread Safety
//
// Events are value types; producers must not retain pointers into an event
// after publishing it.
//
// # Assumptions
//
//   - Total ordering is the emission order; Seq is assigned at publish time
//     and never reused within a stream.
type StreamEvent struct {
	Seq       int64           `json:"seq"`
	ID        string          `json:"id"`
	Type      StreamEventType `json:"type"`
	CreatedAt int64           `json:"created_at"`

	Content        string          `json:"content,omitempty"`
	ToolName       string          `json:"tool_name,omitempty"`
	ToolArgs       json.RawMessage `json:"tool_args,omitempty"`
	ToolResult     string          `json:"tool_result,omitempty"`
	Evidence       *EvidenceStatus `json:"evidence,omitempty"`
	Title          string          `json:"title,omitempty"`
	Error          string          `json:"error,omitempty"`
	ConversationID string          `json:"conversation_id,omitempty"`
	StreamID       string          `json:"stream_id,omitempty"`
	SaveIncomplete bool            `json:"save_incomplete,omitempty"`

	Hash     string `json:"hash,omitempty"`
	PrevHash string `json:"prev_hash,omitempty"`
}

// Validate rejects events whose type is outside the closed union.
func (e *StreamEvent) Validate() error {
	if !e.Type.Known() {
		return fmt.Errorf("unknown stream event type %q", e.Type)
	}
	return nil
}
