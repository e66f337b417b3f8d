// Copyright (C) 2025 CK Auto AI (dev@ckauto.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

// =============================================================================
// Evidence Categories
// =============================================================================

// EvidenceCategory is one themed search channel.
type EvidenceCategory string

const (
	// CategoryForum targets owner/technician discussion boards.
	CategoryForum EvidenceCategory = "forum"
	// CategoryVideo targets repair walkthrough videos.
	CategoryVideo EvidenceCategory = "video"
	// CategoryBulletin targets TSBs, recalls and regulator databases.
	CategoryBulletin EvidenceCategory = "bulletin"
	// CategoryGeneral is the unrestricted web channel.
	CategoryGeneral EvidenceCategory = "general"
)

// EvidenceQuery is one planned search call: a category, the scoped query
// text, and an optional domain allow-list restricting where results may
// come from. The plan of categories is fixed, not user-configurable.
type EvidenceQuery struct {
	Category       EvidenceCategory `json:"category"`
	Query          string           `json:"query"`
	IncludeDomains []string         `json:"include_domains,omitempty"`
}

// =============================================================================
// Evidence Results
// =============================================================================

// EvidenceItem is one normalized search hit.
//
// URLs are not deduplicated across categories here: the same url may
// legitimately appear in two buckets. Consumers that need uniqueness
// deduplicate by URL themselves.
type EvidenceItem struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Snippet string  `json:"snippet,omitempty"`
	Score   float64 `json:"score,omitempty"`
}

// EvidenceBucketResult is the outcome of one category's search call.
//
// Exactly one of Items/Err is meaningful: a bucket either ranked some items
// (possibly zero) or failed with an error string. One bucket's failure never
// aborts its siblings.
type EvidenceBucketResult struct {
	Category EvidenceCategory `json:"category"`
	Query    string           `json:"query"`
	Items    []EvidenceItem   `json:"items,omitempty"`
	Err      string           `json:"error,omitempty"`
}

// Failed reports whether this bucket's search call errored.
func (b *EvidenceBucketResult) Failed() bool {
	return b.Err != ""
}

// AllBucketsEmpty reports whether every bucket yielded zero items, counting
// failed buckets as empty. Distinct from per-bucket error: when true, the
// caller skips evidence injection entirely rather than sending the model a
// block of nothing.
func AllBucketsEmpty(buckets []EvidenceBucketResult) bool {
	for _, b := range buckets {
		if len(b.Items) > 0 {
			return false
		}
	}
	return true
}
