// Copyright (C) 2025 CK Auto AI (dev@ckauto.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package store

import (
	"context"
	"log"
	"log/slog"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate/entities/models"
)

func conversationClass() *models.Class {
	indexFilterable := new(bool)
	*indexFilterable = true

	return &models.Class{
		Class:       "Conversation",
		Description: "A diagnostic chat conversation owned by one user.",
		Vectorizer:  "none",
		InvertedIndexConfig: &models.InvertedIndexConfig{
			IndexTimestamps: true,
		},
		Properties: []*models.Property{
			{
				Name:            "conversation_id",
				DataType:        []string{"text"},
				Description:     "Client-chosen UUID for this conversation.",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:            "user_id",
				DataType:        []string{"text"},
				Description:     "Owning user id.",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:        "title",
				DataType:    []string{"text"},
				Description: "Generated title. Empty until the title task resolves.",
			},
			{
				Name:            "visibility",
				DataType:        []string{"text"},
				Description:     "private or public.",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:            "last_stream_id",
				DataType:        []string{"text"},
				Description:     "Most recent stream id, for resumption lookups.",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:            "created_at",
				DataType:        []string{"number"},
				Description:     "Unix milliseconds when this conversation was created.",
				IndexFilterable: indexFilterable,
			},
		},
	}
}

func turnClass() *models.Class {
	indexFilterable := new(bool)
	*indexFilterable = true

	return &models.Class{
		Class:       "Turn",
		Description: "One user or assistant message in a conversation.",
		Vectorizer:  "none",
		InvertedIndexConfig: &models.InvertedIndexConfig{
			IndexTimestamps: true,
		},
		Properties: []*models.Property{
			{
				Name:            "turn_id",
				DataType:        []string{"text"},
				Description:     "Turn UUID; the upsert key.",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:            "conversation_id",
				DataType:        []string{"text"},
				Description:     "Parent conversation id.",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:            "role",
				DataType:        []string{"text"},
				Description:     "user or assistant.",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:        "parts_json",
				DataType:    []string{"text"},
				Description: "Ordered content parts, JSON encoded.",
			},
			{
				Name:        "answer_hash",
				DataType:    []string{"text"},
				Description: "SHA-256 over the assistant answer text, hex encoded.",
			},
			{
				Name:            "created_at",
				DataType:        []string{"number"},
				Description:     "Unix milliseconds when this turn was created.",
				IndexFilterable: indexFilterable,
			},
		},
	}
}

func documentClass() *models.Class {
	indexFilterable := new(bool)
	*indexFilterable = true

	return &models.Class{
		Class:       "ShopDocument",
		Description: "A document stub created by the create_document capability.",
		Vectorizer:  "none",
		Properties: []*models.Property{
			{
				Name:            "document_id",
				DataType:        []string{"text"},
				Description:     "Document UUID.",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:            "user_id",
				DataType:        []string{"text"},
				Description:     "Owning user id.",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:        "title",
				DataType:    []string{"text"},
				Description: "Document title proposed by the model.",
			},
			{
				Name:            "kind",
				DataType:        []string{"text"},
				Description:     "text or sheet.",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:            "created_at",
				DataType:        []string{"number"},
				Description:     "Unix milliseconds when this document was created.",
				IndexFilterable: indexFilterable,
			},
		},
	}
}

// EnsureSchema creates any missing classes. Safe to call on every startup.
func EnsureSchema(client *weaviate.Client) {
	schemaGetters := []func() *models.Class{
		conversationClass,
		turnClass,
		documentClass,
	}

	for _, getSchema := range schemaGetters {
		class := getSchema()
		slog.Info("Checking schema", "class", class.Class)

		_, err := client.Schema().ClassGetter().WithClassName(class.Class).Do(context.Background())
		if err != nil {
			// Missing class comes back as an error from the getter.
			slog.Info("Schema not found, creating it...", "class", class.Class)
			err := client.Schema().ClassCreator().WithClass(class).Do(context.Background())
			if err != nil {
				log.Fatalf("Failed to create schema for class %s: %v", class.Class, err)
			}
			slog.Info("Successfully created schema", "class", class.Class)
		} else {
			slog.Info("Schema already exists", "class", class.Class)
		}
	}
}
