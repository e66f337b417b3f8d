// Copyright (C) 2025 CK Auto AI (dev@ckauto.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// =============================================================================
// Model Selector Factory
// =============================================================================

// NewClientForModel builds a client for one request from a model selector.
//
// # Description
//
// Selectors are "provider/model", e.g. "openai/gpt-4.1" or
// "openai/o4-mini-reasoning". A "-reasoning" or "-thinking" suffix is
// stripped from the wire model name and enables reasoning delta surfacing.
//
// Clients are stateless and cheap; one is constructed per request rather
// than held in a long-lived registry, so a bad selector costs one error
// response instead of poisoning shared state.
//
// # Inputs
//
//   - selector: "provider/model" string from the request body.
//   - registry: Capabilities exposed to this invocation. May be nil.
//
// # Outputs
//
//   - Client: Ready-to-use client.
//   - error: Unknown provider or missing credentials.
func NewClientForModel(selector string, registry *Registry) (Client, error) {
	provider, model, ok := strings.Cut(selector, "/")
	if !ok || model == "" {
		return nil, fmt.Errorf("invalid model selector %q, expected provider/model", selector)
	}

	switch provider {
	case "openai":
		apiKey, err := openAIKey()
		if err != nil {
			return nil, err
		}
		wireModel, reasoning := splitReasoningSelector(model)
		return NewOpenAIClient(apiKey, wireModel, reasoning, registry), nil
	default:
		return nil, fmt.Errorf("unknown model provider %q", provider)
	}
}

// NewTitleClient builds the small utility client used for conversation
// titles. Never carries capabilities.
func NewTitleClient() (Client, error) {
	model := os.Getenv("TITLE_MODEL")
	if model == "" {
		model = "gpt-4o-mini"
	}
	apiKey, err := openAIKey()
	if err != nil {
		return nil, err
	}
	return NewOpenAIClient(apiKey, model, false, nil), nil
}

// splitReasoningSelector strips a reasoning suffix from the model name.
func splitReasoningSelector(model string) (string, bool) {
	for _, suffix := range []string{"-reasoning", "-thinking"} {
		if strings.HasSuffix(model, suffix) {
			return strings.TrimSuffix(model, suffix), true
		}
	}
	return model, false
}

// openAIKey resolves the API key from the environment, falling back to the
// container secret mount.
func openAIKey() (string, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey != "" {
		return apiKey, nil
	}
	secretPath := "/run/secrets/openai_api_key"
	raw, err := os.ReadFile(secretPath)
	if err == nil {
		slog.Info("Read the OpenAI API key from the secret mount")
		return strings.TrimSpace(string(raw)), nil
	}
	slog.Error("OPENAI_API_KEY environment variable not set and secret not found", "path", secretPath)
	return "", fmt.Errorf("OPENAI_API_KEY environment variable not set")
}
