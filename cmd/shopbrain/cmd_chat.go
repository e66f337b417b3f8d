// Copyright (C) 2025 CK Auto AI (dev@ckauto.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ckauto-ai/shopbrain/services/assistant/datatypes"
)

var (
	modelSelector  string
	conversationID string
	showThinking   bool
)

func newAskCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask the assistant one question and stream the answer",
		Args:  cobra.MinimumNArgs(1),
		Run:   runAskCommand,
	}
	cmd.Flags().StringVar(&modelSelector, "model", "openai/gpt-4.1", "Model selector (provider/model)")
	cmd.Flags().StringVar(&conversationID, "conversation", "", "Conversation id to continue (default: new conversation)")
	cmd.Flags().BoolVar(&showThinking, "thinking", false, "Print model reasoning deltas")
	return cmd
}

func runAskCommand(cmd *cobra.Command, args []string) {
	question := strings.Join(args, " ")

	convID := conversationID
	if convID == "" {
		convID = uuid.New().String()
	}

	reqBody := datatypes.ChatStreamRequest{
		ConversationID: convID,
		Model:          modelSelector,
	}
	turn := datatypes.NewUserTurn(question)
	reqBody.Message = &turn

	payload, err := json.Marshal(&reqBody)
	if err != nil {
		log.Fatalf("Failed to encode request: %v", err)
	}

	httpReq, err := http.NewRequest(http.MethodPost, getServerBaseURL()+"/v1/chat/stream", bytes.NewReader(payload))
	if err != nil {
		log.Fatalf("Failed to build request: %v", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if token := getAPIToken(); token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	// No client timeout: answers stream for as long as the model talks.
	client := &http.Client{}
	resp, err := client.Do(httpReq)
	if err != nil {
		log.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		log.Fatalf("Server returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	fmt.Printf("Conversation: %s\n---\n", convID)
	if err := readSSEStream(resp.Body, renderEvent); err != nil {
		log.Fatalf("Stream failed: %v", err)
	}
}

// renderEvent prints one stream event for terminal consumption.
func renderEvent(event datatypes.StreamEvent) error {
	switch event.Type {
	case datatypes.StreamEventToken:
		fmt.Print(event.Content)
	case datatypes.StreamEventThinking:
		if showThinking {
			fmt.Fprint(os.Stderr, event.Content)
		}
	case datatypes.StreamEventToolCall:
		fmt.Fprintf(os.Stderr, "\n[tool call: %s %s]\n", event.ToolName, string(event.ToolArgs))
	case datatypes.StreamEventToolResult:
		fmt.Fprintf(os.Stderr, "[tool result: %s]\n", event.ToolName)
	case datatypes.StreamEventEvidence:
		renderEvidence(event.Evidence)
	case datatypes.StreamEventTitle:
		fmt.Fprintf(os.Stderr, "\n[title: %s]\n", event.Title)
	case datatypes.StreamEventError:
		fmt.Fprintf(os.Stderr, "\nError: %s\n", event.Error)
	case datatypes.StreamEventDone:
		fmt.Println()
		if event.SaveIncomplete {
			fmt.Fprintln(os.Stderr, "Warning: the answer streamed fully but was not saved.")
		}
	}
	return nil
}

func renderEvidence(status *datatypes.EvidenceStatus) {
	if status == nil {
		return
	}
	switch status.Stage {
	case datatypes.EvidenceStageStart:
		fmt.Fprintln(os.Stderr, "[searching the web...]")
	case datatypes.EvidenceStageBucketDone:
		fmt.Fprintf(os.Stderr, "[%s: %d hits in %dms]\n", status.Bucket, len(status.TopLinks), status.LatencyMs)
	case datatypes.EvidenceStageBucketErr:
		fmt.Fprintf(os.Stderr, "[%s: lookup failed]\n", status.Bucket)
	case datatypes.EvidenceStageFailed:
		fmt.Fprintln(os.Stderr, "[web search returned nothing, answering from model knowledge]")
	case datatypes.EvidenceStageFinal:
		for _, link := range status.TopLinks {
			fmt.Fprintf(os.Stderr, "  - %s (%s)\n", link.Title, link.URL)
		}
	}
}

func newResumeCommand() *cobra.Command {
	var after int64
	cmd := &cobra.Command{
		Use:   "resume [conversationId] [streamId]",
		Short: "Replay a stream's logged events",
		Args:  cobra.ExactArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			url := fmt.Sprintf("%s/v1/chat/%s/stream/%s?after=%d",
				getServerBaseURL(), args[0], args[1], after)
			httpReq, err := http.NewRequest(http.MethodGet, url, nil)
			if err != nil {
				log.Fatalf("Failed to build request: %v", err)
			}
			if token := getAPIToken(); token != "" {
				httpReq.Header.Set("Authorization", "Bearer "+token)
			}
			client := &http.Client{Timeout: 60 * time.Second}
			resp, err := client.Do(httpReq)
			if err != nil {
				log.Fatalf("Request failed: %v", err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
				log.Fatalf("Server returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
			}

			tracker := &eventSeqTracker{lastSeq: after}
			err = readSSEStream(resp.Body, func(event datatypes.StreamEvent) error {
				if !tracker.fresh(&event) {
					return nil
				}
				return renderEvent(event)
			})
			if err != nil {
				log.Fatalf("Stream failed: %v", err)
			}
		},
	}
	cmd.Flags().Int64Var(&after, "after", 0, "Replay events with seq greater than this")
	return cmd
}

func newHistoryCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "history [conversationId]",
		Short: "Print a conversation's turn history",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			body := mustGet(fmt.Sprintf("%s/v1/conversations/%s/history", getServerBaseURL(), args[0]))

			var decoded struct {
				Conversation datatypes.Conversation `json:"conversation"`
				Turns        []datatypes.Turn       `json:"turns"`
			}
			if err := json.Unmarshal(body, &decoded); err != nil {
				log.Fatalf("Failed to decode history: %v", err)
			}

			title := decoded.Conversation.Title
			if title == "" {
				title = "(untitled)"
			}
			fmt.Printf("%s  %s\n---\n", decoded.Conversation.ID, title)
			for _, turn := range decoded.Turns {
				fmt.Printf("[%s] %s\n", turn.Role, turn.FirstText())
			}
		},
	}
}

func newDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete [conversationId]",
		Short: "Delete a conversation and its turns",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			url := fmt.Sprintf("%s/v1/conversations/%s", getServerBaseURL(), args[0])
			httpReq, err := http.NewRequest(http.MethodDelete, url, nil)
			if err != nil {
				log.Fatalf("Failed to build request: %v", err)
			}
			if token := getAPIToken(); token != "" {
				httpReq.Header.Set("Authorization", "Bearer "+token)
			}
			client := &http.Client{Timeout: 30 * time.Second}
			resp, err := client.Do(httpReq)
			if err != nil {
				log.Fatalf("Request failed: %v", err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
				log.Fatalf("Server returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
			}
			fmt.Println("Deleted.")
		},
	}
}

// mustGet fetches a JSON endpoint with auth, exiting on any failure.
func mustGet(url string) []byte {
	httpReq, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		log.Fatalf("Failed to build request: %v", err)
	}
	if token := getAPIToken(); token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}
	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(httpReq)
	if err != nil {
		log.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		log.Fatalf("Server returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Fatalf("Failed to read response: %v", err)
	}
	return body
}
