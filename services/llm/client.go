// Copyright (C) 2025 CK Auto AI (dev@ckauto.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package llm defines the model collaborator contract and its provider
// implementations.
//
// The service treats the model as a black box behind the Client interface:
// one blocking Generate call for short utility prompts (title generation)
// and one callback-driven ChatStream call for answer generation. Stream
// output is a closed event union; providers may not invent event kinds.
package llm

import (
	"context"
	"encoding/json"
)

// =============================================================================
// Messages and Parameters
// =============================================================================

// Message roles on the provider wire.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is one element of the prompt sequence sent to a provider.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`

	// ToolCallID links a tool-role message to the call it answers.
	ToolCallID string `json:"tool_call_id,omitempty"`
	// ToolCalls carries an assistant turn's capability invocations when
	// replaying a tool exchange back to the provider.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

// ToolCall is one capability invocation requested by the model.
type ToolCall struct {
	ID   string          `json:"id"`
	Name string          `json:"name"`
	Args json.RawMessage `json:"args"`
}

// GenerationParams tunes one model invocation.
type GenerationParams struct {
	Temperature *float32 `json:"temperature"`
	TopP        *float32 `json:"top_p"`
	MaxTokens   *int     `json:"max_tokens"`
	Stop        []string `json:"stop"`

	// MaxSteps caps the tool-call chain: each provider round trip that ends
	// in tool calls consumes one step. Zero means the provider default.
	MaxSteps int `json:"max_steps"`

	// ApproveTools grants approval-gated capabilities for this invocation.
	// Set only in the tool-approval resumption flow.
	ApproveTools bool `json:"approve_tools"`
}

// =============================================================================
// Stream Events
// =============================================================================

// StreamEventKind identifies one variant of the provider stream union.
type StreamEventKind string

const (
	// EventToken is an incremental slice of the answer.
	EventToken StreamEventKind = "token"
	// EventThinking is an incremental slice of reasoning output. Only
	// reasoning-capable selectors emit it.
	EventThinking StreamEventKind = "thinking"
	// EventToolCall announces a capability invocation.
	EventToolCall StreamEventKind = "tool_call"
	// EventToolResult carries the capability outcome.
	EventToolResult StreamEventKind = "tool_result"
)

// StreamEvent is one provider-side stream element.
type StreamEvent struct {
	Kind       StreamEventKind `json:"kind"`
	Text       string          `json:"text,omitempty"`
	ToolName   string          `json:"tool_name,omitempty"`
	ToolArgs   json.RawMessage `json:"tool_args,omitempty"`
	ToolResult string          `json:"tool_result,omitempty"`
}

// StreamCallback receives stream events in emission order. Returning an
// error aborts the generation; the provider must stop promptly.
type StreamCallback func(event StreamEvent) error

// ChatResult summarizes a completed ChatStream invocation.
type ChatResult struct {
	// Answer is the full accumulated answer text.
	Answer string
	// Steps is how many provider round trips the invocation used.
	Steps int
	// PendingApproval is set when generation stopped because the model
	// requested a capability that needs user approval. The emitted
	// tool_call event carries the pending invocation; the caller finishes
	// the stream and waits for a resumption request.
	PendingApproval bool
}

// =============================================================================
// Client Interface
// =============================================================================

// Client is the model collaborator contract.
type Client interface {
	// Generate runs one blocking completion over a single prompt.
	Generate(ctx context.Context, prompt string, params GenerationParams) (string, error)

	// ChatStream runs a streaming completion over a message sequence,
	// delivering events through cb in order. Tool calls are executed
	// against the client's capability registry within the step budget.
	ChatStream(ctx context.Context, messages []Message, params GenerationParams, cb StreamCallback) (*ChatResult, error)
}
