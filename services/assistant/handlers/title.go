// Copyright (C) 2025 CK Auto AI (dev@ckauto.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/ckauto-ai/shopbrain/services/assistant/store"
	"github.com/ckauto-ai/shopbrain/services/llm"
)

// titleTimeout bounds the title model call. Titles are cosmetic; a slow
// title must never hold a stream open.
const titleTimeout = 20 * time.Second

// TitleTask is the handle for one async title generation.
//
// # Description
//
// Started when a conversation is created, resolved out of band. At stream
// finalization the pipeline polls TryResult: a ready title is emitted as a
// "title" event before "done" and persisted in line; an unready one keeps
// running detached and persists itself via SetTitle when it arrives. Either
// way the task owns exactly one SetTitle call.
//
// The task context is detached from the request so a client disconnect
// does not orphan the conversation without a title.
type TitleTask struct {
	result chan string
	cancel context.CancelFunc
}

// StartTitleTask launches title generation for a new conversation.
func StartTitleTask(client llm.Client, st store.ConversationStore, conversationID, firstUserText string) *TitleTask {
	ctx, cancel := context.WithTimeout(context.Background(), titleTimeout)
	t := &TitleTask{
		result: make(chan string, 1),
		cancel: cancel,
	}

	go func() {
		defer cancel()

		title, err := client.Generate(ctx, BuildTitlePrompt(firstUserText), llm.GenerationParams{})
		if err != nil {
			slog.Warn("Title generation failed, conversation stays untitled",
				"conversationId", conversationID,
				"error", err)
			close(t.result)
			return
		}
		title = sanitizeTitle(title)
		if title == "" {
			close(t.result)
			return
		}

		// Deliver to a waiting finalizer if there is one; otherwise apply
		// out of band. SetTitle ignores conversations that already have a
		// title, so the two paths cannot double-write.
		select {
		case t.result <- title:
		default:
		}

		if err := st.SetTitle(context.Background(), conversationID, title); err != nil {
			slog.Warn("Failed to persist generated title",
				"conversationId", conversationID,
				"error", err)
		}
	}()

	return t
}

// TryResult returns the generated title if it is ready right now.
// Non-blocking; the finalizer must not wait on cosmetics.
func (t *TitleTask) TryResult() (string, bool) {
	if t == nil {
		return "", false
	}
	select {
	case title, ok := <-t.result:
		return title, ok && title != ""
	default:
		return "", false
	}
}

// Cancel abandons the task. Used when the pipeline fails before the
// conversation is worth titling.
func (t *TitleTask) Cancel() {
	if t != nil {
		t.cancel()
	}
}

// sanitizeTitle trims quotes and whitespace the model likes to add and
// caps runaway titles.
func sanitizeTitle(title string) string {
	title = strings.TrimSpace(title)
	title = strings.Trim(title, `"'`)
	title = strings.TrimSpace(title)
	if len(title) > 80 {
		title = title[:80]
	}
	return title
}
