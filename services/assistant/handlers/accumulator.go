// Copyright (C) 2025 CK Auto AI (dev@ckauto.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"strings"
	"sync"
)

// AnswerAccumulator collects the assistant answer while it streams,
// maintaining an incremental SHA-256 over the exact bytes sent. The digest
// is stored with the persisted turn so a stored answer can be checked
// against what actually went over the wire.
//
// # Thread Safety
//
// Thread-safe; the model callback and the finalizer may touch it from
// different goroutines.
type AnswerAccumulator struct {
	mu     sync.Mutex
	text   strings.Builder
	digest hash.Hash
}

// NewAnswerAccumulator creates an empty accumulator.
func NewAnswerAccumulator() *AnswerAccumulator {
	return &AnswerAccumulator{digest: sha256.New()}
}

// Append adds one streamed fragment.
func (a *AnswerAccumulator) Append(fragment string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.text.WriteString(fragment)
	a.digest.Write([]byte(fragment))
}

// String returns the accumulated answer so far.
func (a *AnswerAccumulator) String() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.text.String()
}

// Len returns the accumulated byte length.
func (a *AnswerAccumulator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.text.Len()
}

// HashHex returns the hex SHA-256 of everything appended so far without
// resetting the running digest.
func (a *AnswerAccumulator) HashHex() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	// Sum appends to a fresh slice and leaves the running state intact.
	return hex.EncodeToString(a.digest.Sum(nil))
}
