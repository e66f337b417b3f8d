// Copyright (C) 2025 CK Auto AI (dev@ckauto.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/ckauto-ai/shopbrain/services/assistant/datatypes"
	"github.com/ckauto-ai/shopbrain/services/assistant/stream"
)

// SSEWriter writes stream events to an HTTP response in SSE wire format
// (event: type\ndata: json\n\n), flushing after every event.
//
// Events arrive fully stamped from the multiplexer (Seq, ID, hash chain);
// the writer only serializes. It is the client sink of the multiplexer.
//
// # Thread Safety
//
// Thread-safe via mutex; event writes and keepalives may come from
// different goroutines.
type SSEWriter struct {
	writer  http.ResponseWriter
	flusher http.Flusher
	mu      sync.Mutex
}

// SetSSEHeaders configures response headers for SSE streaming. Must be
// called before any body write. X-Accel-Buffering disables nginx
// buffering so tokens reach the client immediately.
func SetSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}

// NewSSEWriter wraps the ResponseWriter. Fails when the writer cannot
// flush, which would silently buffer the whole stream.
func NewSSEWriter(w http.ResponseWriter) (*SSEWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("ResponseWriter does not support http.Flusher")
	}
	return &SSEWriter{writer: w, flusher: flusher}, nil
}

// Write implements stream.Sink.
func (w *SSEWriter) Write(event datatypes.StreamEvent) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal stream event: %w", err)
	}
	if _, err := fmt.Fprintf(w.writer, "event: %s\ndata: %s\n\n", event.Type, data); err != nil {
		return fmt.Errorf("failed to write stream event: %w", err)
	}
	w.flusher.Flush()
	return nil
}

// WriteKeepAlive sends an SSE comment line to hold idle proxies open
// during slow pipeline stages.
func (w *SSEWriter) WriteKeepAlive() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, err := fmt.Fprintf(w.writer, ": keepalive %d\n\n", time.Now().UnixMilli()); err != nil {
		return fmt.Errorf("failed to write keepalive: %w", err)
	}
	w.flusher.Flush()
	return nil
}

var _ stream.Sink = (*SSEWriter)(nil)
