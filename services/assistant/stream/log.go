// Copyright (C) 2025 CK Auto AI (dev@ckauto.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package stream multiplexes generation output into one ordered event
// stream and keeps a durable copy for resumption.
package stream

import (
	"encoding/json"
	"fmt"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/ckauto-ai/shopbrain/services/assistant/datatypes"
)

// eventTTL is how long logged events stay replayable. A client that comes
// back later than this starts over from stored turns instead.
const eventTTL = 24 * time.Hour

// EventLog is the durable stream record backing resumption.
//
// Events are keyed by stream id plus zero-padded sequence number so a
// prefix iteration yields them in emission order without sorting.
type EventLog struct {
	db *badger.DB
}

// OpenEventLog opens (or creates) the log at dir. An empty dir opens an
// in-memory log, used by tests and lightweight mode.
func OpenEventLog(dir string) (*EventLog, error) {
	var opts badger.Options
	if dir == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(dir)
	}
	opts = opts.WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open stream event log: %w", err)
	}
	return &EventLog{db: db}, nil
}

// Close releases the underlying database.
func (l *EventLog) Close() error {
	return l.db.Close()
}

func eventKey(streamID string, seq int64) []byte {
	return fmt.Appendf(nil, "stream/%s/%012d", streamID, seq)
}

func streamPrefix(streamID string) []byte {
	return fmt.Appendf(nil, "stream/%s/", streamID)
}

// Append records one event. The event must already carry its Seq.
func (l *EventLog) Append(streamID string, event datatypes.StreamEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode stream event: %w", err)
	}
	err = l.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry(eventKey(streamID, event.Seq), data).WithTTL(eventTTL)
		return txn.SetEntry(entry)
	})
	if err != nil {
		return fmt.Errorf("failed to append stream event: %w", err)
	}
	return nil
}

// Replay returns the logged events with Seq greater than after, in order.
// An unknown stream id yields an empty slice, not an error; the caller
// cannot distinguish "expired" from "never existed" and does not need to.
func (l *EventLog) Replay(streamID string, after int64) ([]datatypes.StreamEvent, error) {
	var events []datatypes.StreamEvent
	err := l.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		prefix := streamPrefix(streamID)
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var event datatypes.StreamEvent
				if err := json.Unmarshal(val, &event); err != nil {
					return fmt.Errorf("failed to decode logged event: %w", err)
				}
				if event.Seq > after {
					events = append(events, event)
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to replay stream %s: %w", streamID, err)
	}
	return events, nil
}
