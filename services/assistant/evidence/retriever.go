// Copyright (C) 2025 CK Auto AI (dev@ckauto.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package evidence

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"github.com/ckauto-ai/shopbrain/services/assistant/datatypes"
)

var retrieverTracer = otel.Tracer("shopbrain/assistant/evidence/retriever")

// topNPerBucket is how many hits per category survive into the pack and
// the client-facing link list.
const topNPerBucket = 5

// =============================================================================
// Category Plan
// =============================================================================

// Plan returns the fixed category fan-out for one question, in render order.
//
// The English-source preamble steers multilingual questions toward English
// technical sources, which is where TSB and part-number coverage actually
// lives.
func Plan(question string) []datatypes.EvidenceQuery {
	scoped := func(angle string) string {
		return fmt.Sprintf("Answer in English. Search only English technical automotive sources. %s %s", question, angle)
	}
	return []datatypes.EvidenceQuery{
		{
			Category:       datatypes.CategoryForum,
			Query:          scoped("owner reports and technician discussion"),
			IncludeDomains: []string{"reddit.com", "*.forums.com"},
		},
		{
			Category:       datatypes.CategoryVideo,
			Query:          scoped("repair walkthrough video"),
			IncludeDomains: []string{"youtube.com"},
		},
		{
			Category:       datatypes.CategoryBulletin,
			Query:          scoped("technical service bulletin or recall"),
			IncludeDomains: []string{"nhtsa.gov", "static.nhtsa.gov"},
		},
		{
			Category: datatypes.CategoryGeneral,
			Query:    scoped(""),
		},
	}
}

// =============================================================================
// Retriever
// =============================================================================

// ProgressFunc receives per-bucket progress while retrieval runs. May be nil.
type ProgressFunc func(status datatypes.EvidenceStatus)

// Retriever fans one question out across the category plan.
type Retriever struct {
	searcher SearchClient
}

// NewRetriever wires a Retriever over the given search client.
func NewRetriever(searcher SearchClient) *Retriever {
	return &Retriever{searcher: searcher}
}

// Retrieve runs every category search concurrently and returns the buckets
// in plan order.
//
// # Description
//
// One goroutine per category, each writing only its own slot of the result
// slice. A failing category records its error string in that slot and never
// cancels its siblings, so the group always joins with a nil error. Progress
// callbacks fire as buckets complete; the caller turns them into stream
// events.
//
// # Outputs
//
//   - buckets: One entry per planned category, plan order, items already
//     capped at topNPerBucket.
//
// # Limitations
//
//   - Overall emptiness is the caller's check (datatypes.AllBucketsEmpty);
//     Retrieve itself treats zero-hit and failed buckets alike as data.
func (r *Retriever) Retrieve(ctx context.Context, question string, progress ProgressFunc) []datatypes.EvidenceBucketResult {
	ctx, span := retrieverTracer.Start(ctx, "evidence.retrieve")
	defer span.End()

	plan := Plan(question)
	buckets := make([]datatypes.EvidenceBucketResult, len(plan))

	g, gctx := errgroup.WithContext(ctx)
	for i, q := range plan {
		g.Go(func() error {
			started := time.Now()
			items, err := r.searcher.Search(gctx, q)

			result := datatypes.EvidenceBucketResult{Category: q.Category, Query: q.Query}
			status := datatypes.EvidenceStatus{
				Bucket:     string(q.Category),
				UsedSearch: true,
				LatencyMs:  time.Since(started).Milliseconds(),
			}
			if err != nil {
				result.Err = err.Error()
				status.Stage = datatypes.EvidenceStageBucketErr
				status.Errors = []string{err.Error()}
				slog.Warn("Evidence bucket failed",
					"bucket", q.Category,
					"error", err)
			} else {
				if len(items) > topNPerBucket {
					items = items[:topNPerBucket]
				}
				result.Items = items
				status.Stage = datatypes.EvidenceStageBucketDone
				status.TopLinks = linksOf(q.Category, items)
			}
			buckets[i] = result
			if progress != nil {
				progress(status)
			}
			return nil
		})
	}
	_ = g.Wait()

	return buckets
}

// linksOf projects a bucket's items into citation links for the client.
func linksOf(cat datatypes.EvidenceCategory, items []datatypes.EvidenceItem) []datatypes.EvidenceLink {
	links := make([]datatypes.EvidenceLink, 0, len(items))
	for _, it := range items {
		links = append(links, datatypes.EvidenceLink{
			Bucket: string(cat),
			Title:  it.Title,
			URL:    it.URL,
		})
	}
	return links
}

// TopLinks flattens all successful buckets into one link list, plan order,
// for the final evidence status event.
func TopLinks(buckets []datatypes.EvidenceBucketResult) []datatypes.EvidenceLink {
	var links []datatypes.EvidenceLink
	for _, b := range buckets {
		links = append(links, linksOf(b.Category, b.Items)...)
	}
	return links
}

// BucketErrors collects the error strings of failed buckets, plan order.
func BucketErrors(buckets []datatypes.EvidenceBucketResult) []string {
	var errs []string
	for _, b := range buckets {
		if b.Failed() {
			errs = append(errs, fmt.Sprintf("%s: %s", b.Category, b.Err))
		}
	}
	return errs
}
