// Copyright (C) 2025 CK Auto AI (dev@ckauto.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var openaiTracer = otel.Tracer("shopbrain/llm/openai")

// defaultMaxSteps bounds the tool-call chain when the caller does not set
// a budget.
const defaultMaxSteps = 5

// OpenAIClient implements Client over the OpenAI chat completion API.
type OpenAIClient struct {
	client    *openai.Client
	model     string
	reasoning bool
	registry  *Registry
}

// NewOpenAIClient builds a client for one model.
//
// reasoning enables surfacing of reasoning deltas as thinking events.
// registry may be nil for tool-less invocations (title generation).
func NewOpenAIClient(apiKey, model string, reasoning bool, registry *Registry) *OpenAIClient {
	return &OpenAIClient{
		client:    openai.NewClient(apiKey),
		model:     model,
		reasoning: reasoning,
		registry:  registry,
	}
}

// Generate implements Client. One blocking completion, no tools.
func (o *OpenAIClient) Generate(ctx context.Context, prompt string, params GenerationParams) (string, error) {
	ctx, span := openaiTracer.Start(ctx, "openai.generate")
	defer span.End()
	span.SetAttributes(attribute.String("llm.model", o.model))

	req := openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	}
	applyParams(&req, params)

	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("model call failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("model returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// ChatStream implements Client.
//
// # Description
//
// Runs the provider streaming loop. Each round trip streams deltas through
// cb; a round that finishes in tool calls executes them against the
// registry, appends the exchange to the message sequence, and loops. The
// final permitted round forces a plain answer so an over-eager tool chain
// cannot starve the user of a response.
//
// # Outputs
//
//   - *ChatResult: Accumulated answer, steps used, and whether generation
//     paused for tool approval.
//   - error: Provider or capability failure. Callback errors propagate
//     unchanged so callers can distinguish client-gone from provider faults.
func (o *OpenAIClient) ChatStream(ctx context.Context, messages []Message, params GenerationParams, cb StreamCallback) (*ChatResult, error) {
	ctx, span := openaiTracer.Start(ctx, "openai.chat_stream")
	defer span.End()
	span.SetAttributes(attribute.String("llm.model", o.model))

	maxSteps := params.MaxSteps
	if maxSteps <= 0 {
		maxSteps = defaultMaxSteps
	}

	wire := toWireMessages(messages)
	var answer strings.Builder
	result := &ChatResult{}

	for step := 1; step <= maxSteps; step++ {
		result.Steps = step

		req := openai.ChatCompletionRequest{
			Model:    o.model,
			Messages: wire,
			Stream:   true,
		}
		o.applyStreamParams(&req, params)
		if o.registry != nil && len(o.registry.List()) > 0 {
			req.Tools = wireTools(o.registry)
			if step == maxSteps {
				// Last permitted round: force an answer.
				req.ToolChoice = "none"
			}
		}

		toolCalls, err := o.streamOnce(ctx, req, cb, &answer)
		if err != nil {
			return nil, err
		}

		if len(toolCalls) == 0 {
			result.Answer = answer.String()
			return result, nil
		}

		// Append the assistant's tool-call turn, then one tool message per
		// executed call, and go around again.
		wire = append(wire, assistantToolCallMessage(toolCalls))
		for _, tc := range toolCalls {
			if err := cb(StreamEvent{Kind: EventToolCall, ToolName: tc.Function.Name, ToolArgs: []byte(tc.Function.Arguments)}); err != nil {
				return nil, err
			}
			out, execErr := o.registry.Execute(ctx, tc.Function.Name, []byte(tc.Function.Arguments), params.ApproveTools)
			if errors.Is(execErr, ErrApprovalRequired) {
				result.Answer = answer.String()
				result.PendingApproval = true
				return result, nil
			}
			if execErr != nil {
				// The model sees the failure and can route around it.
				out = fmt.Sprintf(`{"error": %q}`, execErr.Error())
				slog.Warn("Capability execution failed",
					"capability", tc.Function.Name,
					"error", execErr)
			}
			if err := cb(StreamEvent{Kind: EventToolResult, ToolName: tc.Function.Name, ToolResult: out}); err != nil {
				return nil, err
			}
			wire = append(wire, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				ToolCallID: tc.ID,
				Content:    out,
			})
		}
	}

	result.Answer = answer.String()
	return result, nil
}

// streamOnce runs one provider round trip, forwarding deltas through cb and
// collecting any tool calls.
func (o *OpenAIClient) streamOnce(ctx context.Context, req openai.ChatCompletionRequest, cb StreamCallback, answer *strings.Builder) ([]openai.ToolCall, error) {
	stream, err := o.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("model call failed: %w", err)
	}
	defer stream.Close()

	var toolCalls []openai.ToolCall

	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("model stream failed: %w", err)
		}
		if len(resp.Choices) == 0 {
			continue
		}
		delta := resp.Choices[0].Delta

		if o.reasoning && delta.ReasoningContent != "" {
			if err := cb(StreamEvent{Kind: EventThinking, Text: delta.ReasoningContent}); err != nil {
				return nil, err
			}
		}
		if delta.Content != "" {
			answer.WriteString(delta.Content)
			if err := cb(StreamEvent{Kind: EventToken, Text: delta.Content}); err != nil {
				return nil, err
			}
		}
		for _, tc := range delta.ToolCalls {
			toolCalls = mergeToolCallDelta(toolCalls, tc)
		}
	}
	return toolCalls, nil
}

// mergeToolCallDelta folds one streamed tool-call fragment into the
// accumulated list. Fragments for the same call share an index and arrive
// with the arguments split across chunks.
func mergeToolCallDelta(calls []openai.ToolCall, delta openai.ToolCall) []openai.ToolCall {
	idx := 0
	if delta.Index != nil {
		idx = *delta.Index
	}
	for len(calls) <= idx {
		calls = append(calls, openai.ToolCall{Type: openai.ToolTypeFunction})
	}
	c := &calls[idx]
	if delta.ID != "" {
		c.ID = delta.ID
	}
	if delta.Function.Name != "" {
		c.Function.Name = delta.Function.Name
	}
	c.Function.Arguments += delta.Function.Arguments
	return calls
}

// =============================================================================
// Wire Conversion
// =============================================================================

func toWireMessages(messages []Message) []openai.ChatCompletionMessage {
	wire := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		wm := openai.ChatCompletionMessage{
			Role:       m.Role,
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
		}
		for _, tc := range m.ToolCalls {
			wm.ToolCalls = append(wm.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Name,
					Arguments: string(tc.Args),
				},
			})
		}
		wire = append(wire, wm)
	}
	return wire
}

func wireTools(registry *Registry) []openai.Tool {
	caps := registry.List()
	tools := make([]openai.Tool, 0, len(caps))
	for _, c := range caps {
		tools = append(tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        c.Name,
				Description: c.Description,
				Parameters:  c.Parameters,
			},
		})
	}
	return tools
}

func assistantToolCallMessage(calls []openai.ToolCall) openai.ChatCompletionMessage {
	return openai.ChatCompletionMessage{
		Role:      openai.ChatMessageRoleAssistant,
		ToolCalls: calls,
	}
}

func applyParams(req *openai.ChatCompletionRequest, params GenerationParams) {
	if params.Temperature != nil {
		req.Temperature = *params.Temperature
	}
	if params.TopP != nil {
		req.TopP = *params.TopP
	}
	if params.MaxTokens != nil {
		req.MaxCompletionTokens = *params.MaxTokens
	}
	if len(params.Stop) > 0 {
		req.Stop = params.Stop
	}
}

// applyStreamParams is applyParams minus the sampling knobs reasoning
// models reject.
func (o *OpenAIClient) applyStreamParams(req *openai.ChatCompletionRequest, params GenerationParams) {
	if o.reasoning {
		trimmed := params
		trimmed.Temperature = nil
		trimmed.TopP = nil
		applyParams(req, trimmed)
		return
	}
	applyParams(req, params)
}
