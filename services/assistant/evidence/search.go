// Copyright (C) 2025 CK Auto AI (dev@ckauto.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package evidence retrieves live web evidence for diagnostic questions and
// assembles it into a model-readable pack.
//
// The package talks to the Tavily search API through a narrow SearchClient
// interface so tests and offline deployments can substitute their own
// searcher.
package evidence

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/ckauto-ai/shopbrain/services/assistant/datatypes"
)

var searchTracer = otel.Tracer("shopbrain/assistant/evidence/search")

// =============================================================================
// Search Client Interface
// =============================================================================

// SearchClient executes one themed web search.
//
// Implementations must honor ctx cancellation and return at most
// maxResults normalized items.
type SearchClient interface {
	Search(ctx context.Context, q datatypes.EvidenceQuery) ([]datatypes.EvidenceItem, error)
}

// =============================================================================
// Tavily Client
// =============================================================================

const (
	defaultTavilyURL = "https://api.tavily.com/search"

	// maxResultsPerCall is the result cap requested from the provider.
	maxResultsPerCall = 6

	// maxSnippetRunes bounds the content excerpt carried per hit. Runes,
	// not bytes, so Chinese-language results are not cut mid-character.
	maxSnippetRunes = 800

	// perCallTimeout bounds one provider round trip.
	perCallTimeout = 8 * time.Second
)

// TavilyClient is the production SearchClient backed by the Tavily API.
type TavilyClient struct {
	apiKey     string
	endpoint   string
	httpClient *http.Client
}

// NewTavilyClient creates a client with the given bearer key. The endpoint
// defaults to the public Tavily API; tests override it.
func NewTavilyClient(apiKey string) *TavilyClient {
	return &TavilyClient{
		apiKey:     apiKey,
		endpoint:   defaultTavilyURL,
		httpClient: &http.Client{Timeout: perCallTimeout},
	}
}

// NewTavilyClientWithEndpoint creates a client pointed at a custom endpoint.
func NewTavilyClientWithEndpoint(apiKey, endpoint string) *TavilyClient {
	c := NewTavilyClient(apiKey)
	c.endpoint = endpoint
	return c
}

// tavilyRequest is the provider wire request.
type tavilyRequest struct {
	Query          string   `json:"query"`
	MaxResults     int      `json:"max_results"`
	SearchDepth    string   `json:"search_depth"`
	IncludeDomains []string `json:"include_domains,omitempty"`
}

// tavilyResponse is the subset of the provider response we consume.
type tavilyResponse struct {
	Results []struct {
		Title   string  `json:"title"`
		URL     string  `json:"url"`
		Content string  `json:"content"`
		Score   float64 `json:"score"`
	} `json:"results"`
}

// Search executes one Tavily call and normalizes the results.
//
// # Description
//
// Posts the query with the category's domain allow-list, caps results at
// maxResultsPerCall, and truncates each snippet to maxSnippetRunes. A
// non-200 status or a decode failure is returned as an error; the caller
// decides how a failed bucket is reported.
//
// # Limitations
//
//   - Results with an empty URL are dropped. An item without a real URL
//     cannot be cited and must never be shown to the model.
func (c *TavilyClient) Search(ctx context.Context, q datatypes.EvidenceQuery) ([]datatypes.EvidenceItem, error) {
	ctx, span := searchTracer.Start(ctx, "tavily.search")
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, perCallTimeout)
	defer cancel()

	body, err := json.Marshal(tavilyRequest{
		Query:          q.Query,
		MaxResults:     maxResultsPerCall,
		SearchDepth:    "basic",
		IncludeDomains: q.IncludeDomains,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode search request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search call failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search provider returned status %d", resp.StatusCode)
	}

	var decoded tavilyResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}

	items := make([]datatypes.EvidenceItem, 0, len(decoded.Results))
	for _, r := range decoded.Results {
		if r.URL == "" {
			continue
		}
		items = append(items, datatypes.EvidenceItem{
			Title:   r.Title,
			URL:     r.URL,
			Snippet: truncateRunes(r.Content, maxSnippetRunes),
			Score:   r.Score,
		})
		if len(items) == maxResultsPerCall {
			break
		}
	}
	return items, nil
}

// truncateRunes cuts s to at most n runes.
func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
