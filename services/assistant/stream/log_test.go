// Copyright (C) 2025 CK Auto AI (dev@ckauto.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package stream

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ckauto-ai/shopbrain/services/assistant/datatypes"
)

func openTestLog(t *testing.T) *EventLog {
	t.Helper()
	log, err := OpenEventLog("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = log.Close() })
	return log
}

func TestEventLog_AppendReplay(t *testing.T) {
	log := openTestLog(t)

	for i := int64(1); i <= 5; i++ {
		err := log.Append("stream-a", datatypes.StreamEvent{
			Seq:     i,
			Type:    datatypes.StreamEventToken,
			Content: "chunk",
		})
		require.NoError(t, err)
	}

	events, err := log.Replay("stream-a", 0)
	require.NoError(t, err)
	require.Len(t, events, 5)
	for i, ev := range events {
		assert.Equal(t, int64(i+1), ev.Seq)
	}
}

func TestEventLog_ReplayAfterCursor(t *testing.T) {
	log := openTestLog(t)

	for i := int64(1); i <= 5; i++ {
		require.NoError(t, log.Append("stream-a", datatypes.StreamEvent{Seq: i, Type: datatypes.StreamEventToken}))
	}

	events, err := log.Replay("stream-a", 3)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, int64(4), events[0].Seq)
	assert.Equal(t, int64(5), events[1].Seq)
}

func TestEventLog_StreamsAreIsolated(t *testing.T) {
	log := openTestLog(t)

	require.NoError(t, log.Append("stream-a", datatypes.StreamEvent{Seq: 1, Type: datatypes.StreamEventToken}))
	require.NoError(t, log.Append("stream-b", datatypes.StreamEvent{Seq: 1, Type: datatypes.StreamEventDone}))

	events, err := log.Replay("stream-a", 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, datatypes.StreamEventToken, events[0].Type)
}

func TestEventLog_UnknownStreamIsEmpty(t *testing.T) {
	log := openTestLog(t)

	events, err := log.Replay("never-existed", 0)
	require.NoError(t, err)
	assert.Empty(t, events)
}
