// Copyright (C) 2025 CK Auto AI (dev@ckauto.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitReasoningSelector(t *testing.T) {
	tests := []struct {
		in        string
		wantModel string
		wantFlag  bool
	}{
		{"gpt-4.1", "gpt-4.1", false},
		{"o4-mini-reasoning", "o4-mini", true},
		{"some-model-thinking", "some-model", true},
		{"reasoning", "reasoning", false},
	}
	for _, tt := range tests {
		model, reasoning := splitReasoningSelector(tt.in)
		assert.Equal(t, tt.wantModel, model, tt.in)
		assert.Equal(t, tt.wantFlag, reasoning, tt.in)
	}
}

func TestNewClientForModel_SelectorShape(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "test-key")

	t.Run("valid openai selector", func(t *testing.T) {
		client, err := NewClientForModel("openai/gpt-4.1", nil)
		require.NoError(t, err)
		assert.NotNil(t, client)
	})

	t.Run("missing slash", func(t *testing.T) {
		_, err := NewClientForModel("gpt-4.1", nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid model selector")
	})

	t.Run("empty model part", func(t *testing.T) {
		_, err := NewClientForModel("openai/", nil)
		require.Error(t, err)
	})

	t.Run("unknown provider", func(t *testing.T) {
		_, err := NewClientForModel("acme/foo", nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown model provider")
	})
}
