// Copyright (C) 2025 CK Auto AI (dev@ckauto.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"log"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/ckauto-ai/shopbrain/pkg/extensions"
	"github.com/ckauto-ai/shopbrain/services/assistant/evidence"
	"github.com/ckauto-ai/shopbrain/services/assistant/handlers"
	"github.com/ckauto-ai/shopbrain/services/assistant/middleware"
	"github.com/ckauto-ai/shopbrain/services/assistant/observability"
	"github.com/ckauto-ai/shopbrain/services/assistant/routes"
	"github.com/ckauto-ai/shopbrain/services/assistant/store"
	"github.com/ckauto-ai/shopbrain/services/assistant/stream"
	"github.com/ckauto-ai/shopbrain/services/llm"

	// --- OpenTelemetry imports ---
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
)

func initTracer() (func(context.Context), error) {
	ctx := context.Background()

	otelEndpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if otelEndpoint == "" {
		otelEndpoint = "shopbrain-otel-collector:4317"
	}
	conn, err := grpc.NewClient(otelEndpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, err
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("assistant-service")))
	if err != nil {
		return nil, err
	}
	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))
	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.
		TraceContext{}, propagation.Baggage{}))

	return func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, time.Second*5)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}, nil
}

// buildStore connects the Weaviate conversation store, or falls back to the
// in-memory store when no usable URL is configured (lightweight mode).
func buildStore() store.ConversationStore {
	weaviateURL := os.Getenv("WEAVIATE_SERVICE_URL")
	// Sanitize: trim quotes and whitespace in case the container runtime
	// passes them literally
	weaviateURL = strings.Trim(weaviateURL, "\"' ")

	if weaviateURL == "" || !strings.Contains(weaviateURL, "http") {
		slog.Info("WEAVIATE_SERVICE_URL not set or empty. Running in lightweight mode (in-memory store).")
		return store.NewMemoryStore()
	}

	parsedURL, err := url.Parse(weaviateURL)
	if err != nil || parsedURL.Scheme == "" || parsedURL.Host == "" {
		slog.Warn("WEAVIATE_SERVICE_URL is invalid. Running in lightweight mode.",
			"url", weaviateURL, "error", err)
		return store.NewMemoryStore()
	}

	clientConf := weaviate.Config{
		Host:   parsedURL.Host,
		Scheme: parsedURL.Scheme,
	}
	weaviateClient, err := weaviate.NewClient(clientConf)
	if err != nil {
		slog.Error("Failed to create Weaviate client, running in lightweight mode", "error", err)
		return store.NewMemoryStore()
	}
	store.EnsureSchema(weaviateClient)
	return store.NewWeaviateStore(weaviateClient)
}

// buildSearcher wires the Tavily search client when a key is configured.
// Without one, evidence retrieval is disabled and answers come from the
// model alone.
func buildSearcher() evidence.SearchClient {
	apiKey := os.Getenv("TAVILY_API_KEY")
	if apiKey == "" {
		secretPath := "/run/secrets/tavily_api_key"
		if raw, err := os.ReadFile(secretPath); err == nil {
			apiKey = strings.TrimSpace(string(raw))
			slog.Info("Read the Tavily API key from the secret mount")
		}
	}
	if apiKey == "" {
		slog.Warn("TAVILY_API_KEY not set, evidence retrieval disabled")
		return nil
	}
	return evidence.NewTavilyClient(apiKey)
}

// buildAuthProvider selects the auth provider. SHOPBRAIN_API_TOKENS holds a
// static token table ("token=userID;token2=guest:userID2"); without it every
// request runs as the local user.
func buildAuthProvider() extensions.AuthProvider {
	table := os.Getenv("SHOPBRAIN_API_TOKENS")
	if table == "" {
		slog.Warn("SHOPBRAIN_API_TOKENS not set, all requests run as the local user")
		return &extensions.NopAuthProvider{}
	}
	return extensions.NewStaticTokenProvider(table)
}

func main() {
	port := os.Getenv("ASSISTANT_PORT")
	if port == "" {
		port = "12310"
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// --- Init the tracer ---
	cleanup, err := initTracer()
	if err != nil {
		log.Fatalf("failed to setup the OTLP tracer: %v", err)
	}
	defer cleanup(context.Background())

	observability.InitMetrics()

	conversationStore := buildStore()

	eventLog, err := stream.OpenEventLog(os.Getenv("STREAM_LOG_DIR"))
	if err != nil {
		log.Fatalf("Failed to open the stream event log: %v", err)
	}
	defer eventLog.Close()

	searcher := buildSearcher()

	var titleClient llm.Client
	titleClient, err = llm.NewTitleClient()
	if err != nil {
		slog.Warn("Title client unavailable, conversations stay untitled", "error", err)
		titleClient = nil
	}

	guestLimit := 20
	if raw := os.Getenv("GUEST_DAILY_LIMIT"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			guestLimit = parsed
		}
	}

	chatHandler := handlers.NewChatHandler(conversationStore, eventLog, searcher, titleClient, nil)

	router := gin.Default()
	router.Use(otelgin.Middleware("assistant-service"))

	routes.SetupRoutes(router, chatHandler, buildAuthProvider(), middleware.NewGuestAllowance(guestLimit))

	log.Println("Starting the assistant server on port ", port)
	if err := router.Run(":" + port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
