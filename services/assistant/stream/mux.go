// Copyright (C) 2025 CK Auto AI (dev@ckauto.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package stream

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ckauto-ai/shopbrain/services/assistant/datatypes"
)

// Sink receives fully stamped events in emission order. The SSE transport
// is one sink; tests supply their own.
type Sink interface {
	Write(event datatypes.StreamEvent) error
}

// Multiplexer merges every event source of one generation (model deltas,
// evidence progress, title delivery, lifecycle) into a single ordered
// stream.
//
// # Description
//
// Publish stamps each event with a monotonically increasing Seq, a UUID,
// a timestamp, and the integrity hash chain, then writes it to the durable
// log and the client sink in that order. All stamping happens under one
// mutex, so events are totally ordered no matter which goroutine produced
// them.
//
// A failed client write flips the multiplexer into client-gone mode: later
// events skip the sink but still reach the log, which is what lets the
// assistant turn finish and persist after a disconnect, and lets the client
// replay the tail.
//
// # Thread Safety
//
// Safe for concurrent use.
type Multiplexer struct {
	streamID       string
	conversationID string

	mu         sync.Mutex
	seq        int64
	prevHash   string
	client     Sink
	log        *EventLog
	clientGone bool
}

// NewMultiplexer creates a multiplexer for one generation.
//
// client may be nil when no transport exists (background finalization).
// log may be nil in tests that only care about ordering.
func NewMultiplexer(streamID, conversationID string, client Sink, log *EventLog) *Multiplexer {
	return &Multiplexer{
		streamID:       streamID,
		conversationID: conversationID,
		client:         client,
		log:            log,
	}
}

// StreamID returns the stream id events are logged under.
func (m *Multiplexer) StreamID() string {
	return m.streamID
}

// Publish stamps and emits one event.
//
// Returns an error only for events outside the closed type union; transport
// failures are absorbed so producers never stop generating because the
// client left.
func (m *Multiplexer) Publish(event datatypes.StreamEvent) error {
	// Exhaustive over the closed union. A new event type must be handled
	// here before anything can emit it.
	switch event.Type {
	case datatypes.StreamEventToken,
		datatypes.StreamEventThinking,
		datatypes.StreamEventToolCall,
		datatypes.StreamEventToolResult,
		datatypes.StreamEventEvidence,
		datatypes.StreamEventTitle,
		datatypes.StreamEventError,
		datatypes.StreamEventDone:
		// accepted
	default:
		return fmt.Errorf("refusing to publish unknown stream event type %q", event.Type)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.seq++
	event.Seq = m.seq
	event.ID = uuid.New().String()
	event.CreatedAt = time.Now().UnixMilli()
	event.StreamID = m.streamID
	if event.ConversationID == "" {
		event.ConversationID = m.conversationID
	}
	event.PrevHash = m.prevHash
	event.Hash = computeEventHash(event)
	m.prevHash = event.Hash

	if m.log != nil {
		if err := m.log.Append(m.streamID, event); err != nil {
			// The live stream still works without the log; resumption is
			// what degrades.
			slog.Warn("Failed to append stream event to durable log",
				"streamId", m.streamID,
				"seq", event.Seq,
				"error", err)
		}
	}

	if m.client != nil && !m.clientGone {
		if err := m.client.Write(event); err != nil {
			m.clientGone = true
			slog.Info("Client disconnected mid-stream, continuing for persistence",
				"streamId", m.streamID,
				"seq", event.Seq)
		}
	}
	return nil
}

// ClientGone reports whether the client sink has failed.
func (m *Multiplexer) ClientGone() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.clientGone
}

// LastSeq returns the most recently assigned sequence number.
func (m *Multiplexer) LastSeq() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.seq
}

// computeEventHash hashes the event's content fields plus the chain link.
// Hex SHA-256; PrevHash must already be set when this is called.
func computeEventHash(event datatypes.StreamEvent) string {
	evidenceJSON := ""
	if event.Evidence != nil {
		if data, err := json.Marshal(event.Evidence); err == nil {
			evidenceJSON = string(data)
		}
	}

	hashInput := fmt.Sprintf("%d|%s|%s|%d|%s|%s|%s|%s|%s|%s|%s|%s|%s",
		event.Seq,
		event.ID,
		event.Type,
		event.CreatedAt,
		event.PrevHash,
		event.Content,
		event.ToolName,
		string(event.ToolArgs),
		event.ToolResult,
		event.Title,
		event.Error,
		event.ConversationID,
		evidenceJSON,
	)

	hash := sha256.Sum256([]byte(hashInput))
	return hex.EncodeToString(hash[:])
}
