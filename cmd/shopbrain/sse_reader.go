// Copyright (C) 2025 CK Auto AI (dev@ckauto.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/ckauto-ai/shopbrain/services/assistant/datatypes"
)

// sseEventHandler receives one decoded stream event. Returning an error
// stops the read loop.
type sseEventHandler func(event datatypes.StreamEvent) error

// readSSEStream consumes an SSE body line by line, decoding each
// event/data pair into a StreamEvent. Comment lines (keepalives) are
// skipped. Returns after the handler errors or the body ends.
func readSSEStream(body io.Reader, handle sseEventHandler) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var dataLine string
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			// Dispatch boundary.
			if dataLine != "" {
				var event datatypes.StreamEvent
				if err := json.Unmarshal([]byte(dataLine), &event); err != nil {
					return fmt.Errorf("malformed stream event: %w", err)
				}
				if err := handle(event); err != nil {
					return err
				}
				dataLine = ""
			}
		case strings.HasPrefix(line, ":"):
			// Keepalive comment.
		case strings.HasPrefix(line, "data: "):
			dataLine = strings.TrimPrefix(line, "data: ")
		case strings.HasPrefix(line, "event: "):
			// Type is repeated inside the JSON payload; nothing to do.
		}
	}
	return scanner.Err()
}

// eventSeqTracker deduplicates replayed events by sequence number.
type eventSeqTracker struct {
	lastSeq int64
}

// fresh reports whether the event has not been seen yet and advances the
// cursor.
func (t *eventSeqTracker) fresh(event *datatypes.StreamEvent) bool {
	if event.Seq <= t.lastSeq {
		return false
	}
	t.lastSeq = event.Seq
	return true
}
