// Copyright (C) 2025 CK Auto AI (dev@ckauto.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

// Document kinds supported by the create_document capability.
const (
	DocumentKindText  = "text"
	DocumentKindSheet = "sheet"
)

// Document is a shop artifact (estimate, inspection sheet, report) created
// by the model on the user's behalf. Only the stub is stored here; content
// editing happens in the client.
type Document struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Title     string `json:"title"`
	Kind      string `json:"kind"`
	CreatedAt int64  `json:"created_at"`
}
