// Copyright (C) 2025 CK Auto AI (dev@ckauto.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package evidence

import (
	"fmt"
	"strings"

	"github.com/ckauto-ai/shopbrain/services/assistant/datatypes"
)

// bucketLabels maps categories to pack section headers.
var bucketLabels = map[datatypes.EvidenceCategory]string{
	datatypes.CategoryForum:    "FORUM REPORTS",
	datatypes.CategoryVideo:    "REPAIR VIDEOS",
	datatypes.CategoryBulletin: "BULLETINS AND RECALLS",
	datatypes.CategoryGeneral:  "GENERAL WEB",
}

// AssemblePack renders retrieval buckets into the system-context text block.
//
// # Description
//
// Deterministic: same buckets in, byte-identical pack out. Sections appear
// in bucket order (which is plan order), one `- title | url` line per item,
// snippet indented beneath when present. A failed bucket renders a
// `! lookup failed:` marker so the model knows that channel was attempted
// and must not be paraphrased as "no issues found". A zero-item success
// renders `(no results)`.
//
// Every URL in the pack comes verbatim from a search hit. The pack format
// never synthesizes or rewrites links.
//
// # Limitations
//
//   - Callers must not invoke this when datatypes.AllBucketsEmpty(buckets)
//     is true; an all-empty pack has nothing to tell the model and wastes
//     context.
func AssemblePack(buckets []datatypes.EvidenceBucketResult) string {
	var sb strings.Builder
	sb.WriteString("WEB SEARCH RESULTS\n")
	sb.WriteString("Use the sources below when they are relevant. Cite by URL. ")
	sb.WriteString("If a channel failed, say the lookup was unavailable instead of guessing.\n")

	for _, b := range buckets {
		label, ok := bucketLabels[b.Category]
		if !ok {
			label = strings.ToUpper(string(b.Category))
		}
		sb.WriteString("\n## ")
		sb.WriteString(label)
		sb.WriteString("\n")

		if b.Failed() {
			fmt.Fprintf(&sb, "! lookup failed: %s\n", b.Err)
			continue
		}
		if len(b.Items) == 0 {
			sb.WriteString("(no results)\n")
			continue
		}
		for _, it := range b.Items {
			fmt.Fprintf(&sb, "- %s | %s\n", it.Title, it.URL)
			if it.Snippet != "" {
				fmt.Fprintf(&sb, "  %s\n", it.Snippet)
			}
		}
	}
	return sb.String()
}
