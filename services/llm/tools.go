// Copyright (C) 2025 CK Auto AI (dev@ckauto.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrApprovalRequired is returned by Registry.Execute when a capability
// needs user approval that has not been granted. The stream pauses and the
// client resumes with the full turn sequence once the user decides.
var ErrApprovalRequired = errors.New("capability requires user approval")

// =============================================================================
// Capability
// =============================================================================

// Capability is one callable tool exposed to the model.
//
// Parameters is a JSON Schema object describing the arguments. Run executes
// the capability; its string result is fed back to the model verbatim.
type Capability struct {
	Name             string
	Description      string
	Parameters       json.RawMessage
	RequiresApproval bool
	Run              func(ctx context.Context, args json.RawMessage) (string, error)
}

// =============================================================================
// Registry
// =============================================================================

// Registry holds the capabilities available to one model invocation.
//
// Registries are built per request and are not mutated after construction,
// so no locking is needed.
type Registry struct {
	caps  map[string]Capability
	order []string
}

// NewRegistry creates an empty capability registry.
func NewRegistry() *Registry {
	return &Registry{caps: make(map[string]Capability)}
}

// Register adds a capability. Registering the same name twice replaces the
// earlier entry without changing its position.
func (r *Registry) Register(c Capability) {
	if _, exists := r.caps[c.Name]; !exists {
		r.order = append(r.order, c.Name)
	}
	r.caps[c.Name] = c
}

// List returns the capabilities in registration order.
func (r *Registry) List() []Capability {
	out := make([]Capability, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.caps[name])
	}
	return out
}

// Execute runs the named capability.
//
// approved grants approval-gated capabilities for this invocation; it is
// true only in the tool-approval resumption flow where the user already
// saw the pending call.
func (r *Registry) Execute(ctx context.Context, name string, args json.RawMessage, approved bool) (string, error) {
	c, ok := r.caps[name]
	if !ok {
		return "", fmt.Errorf("unknown capability %q", name)
	}
	if c.RequiresApproval && !approved {
		return "", ErrApprovalRequired
	}
	return c.Run(ctx, args)
}

// =============================================================================
// Built-in Capabilities
// =============================================================================

// weatherEndpoint is the Open-Meteo forecast API.
const weatherEndpoint = "https://api.open-meteo.com/v1/forecast"

// NewWeatherCapability builds the get_weather capability.
//
// Fetches current temperature for a latitude/longitude pair. Used when a
// diagnosis is weather-dependent (cold-start complaints, battery questions).
func NewWeatherCapability() Capability {
	return Capability{
		Name:        "get_weather",
		Description: "Get the current weather at a location.",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"latitude": {"type": "number"},
				"longitude": {"type": "number"}
			},
			"required": ["latitude", "longitude"]
		}`),
		Run: func(ctx context.Context, args json.RawMessage) (string, error) {
			var in struct {
				Latitude  float64 `json:"latitude"`
				Longitude float64 `json:"longitude"`
			}
			if err := json.Unmarshal(args, &in); err != nil {
				return "", fmt.Errorf("invalid get_weather arguments: %w", err)
			}

			ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()

			url := fmt.Sprintf("%s?latitude=%f&longitude=%f&current=temperature_2m&hourly=temperature_2m",
				weatherEndpoint, in.Latitude, in.Longitude)
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
			if err != nil {
				return "", fmt.Errorf("failed to build weather request: %w", err)
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				return "", fmt.Errorf("weather lookup failed: %w", err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				return "", fmt.Errorf("weather provider returned status %d", resp.StatusCode)
			}
			body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
			if err != nil {
				return "", fmt.Errorf("failed to read weather response: %w", err)
			}
			return string(body), nil
		},
	}
}

// DocumentSaver persists a document created by the model on the user's
// behalf and returns its id.
type DocumentSaver func(ctx context.Context, title, kind string) (string, error)

// NewCreateDocumentCapability builds the create_document capability.
//
// Approval-gated: the model proposes the document and the user confirms
// before anything is written.
func NewCreateDocumentCapability(save DocumentSaver) Capability {
	return Capability{
		Name:        "create_document",
		Description: "Create a document (estimate, inspection sheet, or report) for the user.",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"title": {"type": "string"},
				"kind": {"type": "string", "enum": ["text", "sheet"]}
			},
			"required": ["title", "kind"]
		}`),
		RequiresApproval: true,
		Run: func(ctx context.Context, args json.RawMessage) (string, error) {
			var in struct {
				Title string `json:"title"`
				Kind  string `json:"kind"`
			}
			if err := json.Unmarshal(args, &in); err != nil {
				return "", fmt.Errorf("invalid create_document arguments: %w", err)
			}
			if in.Title == "" {
				return "", fmt.Errorf("create_document requires a title")
			}
			id, err := save(ctx, in.Title, in.Kind)
			if err != nil {
				return "", fmt.Errorf("failed to create document: %w", err)
			}
			out, _ := json.Marshal(map[string]string{"id": id, "title": in.Title, "kind": in.Kind})
			return string(out), nil
		},
	}
}
