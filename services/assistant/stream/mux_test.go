// Copyright (C) 2025 CK Auto AI (dev@ckauto.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package stream

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ckauto-ai/shopbrain/services/assistant/datatypes"
)

// collectSink records every event it receives.
type collectSink struct {
	mu     sync.Mutex
	events []datatypes.StreamEvent
	failAt int64 // fail writes once seq reaches this; 0 disables
}

func (s *collectSink) Write(event datatypes.StreamEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAt > 0 && event.Seq >= s.failAt {
		return fmt.Errorf("connection reset")
	}
	s.events = append(s.events, event)
	return nil
}

func (s *collectSink) snapshot() []datatypes.StreamEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]datatypes.StreamEvent, len(s.events))
	copy(out, s.events)
	return out
}

func TestPublish_StampsMetadata(t *testing.T) {
	sink := &collectSink{}
	mux := NewMultiplexer("stream-1", "conv-1", sink, nil)

	require.NoError(t, mux.Publish(datatypes.StreamEvent{Type: datatypes.StreamEventToken, Content: "hel"}))
	require.NoError(t, mux.Publish(datatypes.StreamEvent{Type: datatypes.StreamEventToken, Content: "lo"}))

	events := sink.snapshot()
	require.Len(t, events, 2)

	assert.Equal(t, int64(1), events[0].Seq)
	assert.Equal(t, int64(2), events[1].Seq)
	assert.NotEmpty(t, events[0].ID)
	assert.NotEqual(t, events[0].ID, events[1].ID)
	assert.Equal(t, "stream-1", events[0].StreamID)
	assert.Equal(t, "conv-1", events[0].ConversationID)
	assert.NotZero(t, events[0].CreatedAt)
}

func TestPublish_HashChain(t *testing.T) {
	sink := &collectSink{}
	mux := NewMultiplexer("stream-1", "conv-1", sink, nil)

	for i := 0; i < 3; i++ {
		require.NoError(t, mux.Publish(datatypes.StreamEvent{Type: datatypes.StreamEventToken, Content: "x"}))
	}

	events := sink.snapshot()
	assert.Empty(t, events[0].PrevHash)
	assert.Equal(t, events[0].Hash, events[1].PrevHash)
	assert.Equal(t, events[1].Hash, events[2].PrevHash)
	assert.NotEqual(t, events[0].Hash, events[1].Hash)
}

func TestPublish_RejectsUnknownType(t *testing.T) {
	mux := NewMultiplexer("stream-1", "conv-1", &collectSink{}, nil)

	err := mux.Publish(datatypes.StreamEvent{Type: "surprise"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown stream event type")
	assert.Equal(t, int64(0), mux.LastSeq())
}

func TestPublish_SeqTotalOrderAcrossGoroutines(t *testing.T) {
	sink := &collectSink{}
	mux := NewMultiplexer("stream-1", "conv-1", sink, nil)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				_ = mux.Publish(datatypes.StreamEvent{Type: datatypes.StreamEventToken, Content: "t"})
			}
		}()
	}
	wg.Wait()

	events := sink.snapshot()
	require.Len(t, events, 200)
	for i, ev := range events {
		assert.Equal(t, int64(i+1), ev.Seq)
	}
	assert.Equal(t, int64(200), mux.LastSeq())
}

func TestPublish_ClientGoneKeepsLogging(t *testing.T) {
	log, err := OpenEventLog("")
	require.NoError(t, err)
	defer log.Close()

	sink := &collectSink{failAt: 2}
	mux := NewMultiplexer("stream-1", "conv-1", sink, log)

	for i := 0; i < 4; i++ {
		require.NoError(t, mux.Publish(datatypes.StreamEvent{Type: datatypes.StreamEventToken, Content: fmt.Sprintf("%d", i)}))
	}

	// Client saw only the first event; the log has all four.
	assert.Len(t, sink.snapshot(), 1)
	assert.True(t, mux.ClientGone())

	replayed, err := log.Replay("stream-1", 0)
	require.NoError(t, err)
	assert.Len(t, replayed, 4)
}

func TestPublish_NilSinkAndLog(t *testing.T) {
	mux := NewMultiplexer("stream-1", "conv-1", nil, nil)
	require.NoError(t, mux.Publish(datatypes.StreamEvent{Type: datatypes.StreamEventDone}))
	assert.Equal(t, int64(1), mux.LastSeq())
}
