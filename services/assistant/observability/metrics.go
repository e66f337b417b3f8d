// Copyright (C) 2025 CK Auto AI (dev@ckauto.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package observability provides Prometheus metrics for the assistant
// service.
//
// # Description
//
// Metrics cover the chat stream pipeline end to end:
//   - Request counters by endpoint and status
//   - Latency histograms (time to first event, total stream duration)
//   - Active stream gauge
//   - Evidence retrieval latency per bucket
//   - Client disconnects and keepalives
//
// Exposed on /metrics for Prometheus scraping.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "shopbrain"

const assistantSubsystem = "assistant"

// AssistantMetrics holds all Prometheus metrics for the chat pipeline.
// Initialize once at startup via InitMetrics().
type AssistantMetrics struct {
	// RequestsTotal counts chat requests by endpoint and status.
	// Labels: endpoint (chat_stream, resume_stream, conversations), status
	// (success, error)
	RequestsTotal *prometheus.CounterVec

	// TimeToFirstEventSeconds measures latency to the first stream event.
	// Labels: endpoint
	TimeToFirstEventSeconds *prometheus.HistogramVec

	// StreamDurationSeconds measures total stream duration.
	// Labels: endpoint, status
	StreamDurationSeconds *prometheus.HistogramVec

	// ActiveStreams tracks currently open streaming connections.
	// Labels: endpoint
	ActiveStreams *prometheus.GaugeVec

	// ErrorsTotal counts errors by taxonomy code.
	// Labels: endpoint, error_code
	ErrorsTotal *prometheus.CounterVec

	// EvidenceBucketSeconds measures per-bucket retrieval latency.
	// Labels: bucket, status (ok, error)
	EvidenceBucketSeconds *prometheus.HistogramVec

	// KeepAlivesTotal counts keepalive pings sent.
	// Labels: endpoint
	KeepAlivesTotal *prometheus.CounterVec

	// ClientDisconnectsTotal counts clients that left mid-stream.
	// Labels: endpoint
	ClientDisconnectsTotal *prometheus.CounterVec
}

// DefaultMetrics is the singleton instance, set by InitMetrics().
var DefaultMetrics *AssistantMetrics

// InitMetrics creates and registers all metrics. Call once at startup;
// calling twice panics on duplicate registration.
func InitMetrics() *AssistantMetrics {
	DefaultMetrics = &AssistantMetrics{
		RequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: assistantSubsystem,
				Name:      "requests_total",
				Help:      "Total chat requests by endpoint and status",
			},
			[]string{"endpoint", "status"},
		),

		TimeToFirstEventSeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: assistantSubsystem,
				Name:      "time_to_first_event_seconds",
				Help:      "Time from request to first stream event in seconds",
				Buckets:   []float64{0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
			},
			[]string{"endpoint"},
		),

		StreamDurationSeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: assistantSubsystem,
				Name:      "stream_duration_seconds",
				Help:      "Total stream duration in seconds",
				Buckets:   []float64{1, 5, 10, 30, 60, 120, 300},
			},
			[]string{"endpoint", "status"},
		),

		ActiveStreams: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: assistantSubsystem,
				Name:      "active_streams",
				Help:      "Number of currently open streaming connections",
			},
			[]string{"endpoint"},
		),

		ErrorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: assistantSubsystem,
				Name:      "errors_total",
				Help:      "Total errors by endpoint and taxonomy code",
			},
			[]string{"endpoint", "error_code"},
		),

		EvidenceBucketSeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: assistantSubsystem,
				Name:      "evidence_bucket_seconds",
				Help:      "Per-bucket evidence retrieval latency in seconds",
				Buckets:   []float64{0.25, 0.5, 1.0, 2.0, 4.0, 8.0},
			},
			[]string{"bucket", "status"},
		),

		KeepAlivesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: assistantSubsystem,
				Name:      "keepalives_total",
				Help:      "Total keepalive pings sent",
			},
			[]string{"endpoint"},
		),

		ClientDisconnectsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: assistantSubsystem,
				Name:      "client_disconnects_total",
				Help:      "Total client disconnections during streaming",
			},
			[]string{"endpoint"},
		),
	}

	return DefaultMetrics
}

// =============================================================================
// Endpoint Names
// =============================================================================

// Endpoint labels a metrics series with its HTTP surface.
type Endpoint string

const (
	// EndpointChatStream is POST /v1/chat/stream.
	EndpointChatStream Endpoint = "chat_stream"

	// EndpointResumeStream is the stream replay endpoint.
	EndpointResumeStream Endpoint = "resume_stream"

	// EndpointConversations covers conversation CRUD.
	EndpointConversations Endpoint = "conversations"
)

// =============================================================================
// Recording Helpers
// =============================================================================

// RecordRequest increments the request counter.
func (m *AssistantMetrics) RecordRequest(endpoint Endpoint, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	m.RequestsTotal.WithLabelValues(string(endpoint), status).Inc()
}

// RecordError increments the error counter for a taxonomy code.
func (m *AssistantMetrics) RecordError(endpoint Endpoint, code string) {
	m.ErrorsTotal.WithLabelValues(string(endpoint), code).Inc()
}

// StreamStarted increments the active stream gauge.
func (m *AssistantMetrics) StreamStarted(endpoint Endpoint) {
	m.ActiveStreams.WithLabelValues(string(endpoint)).Inc()
}

// StreamEnded decrements the active stream gauge.
func (m *AssistantMetrics) StreamEnded(endpoint Endpoint) {
	m.ActiveStreams.WithLabelValues(string(endpoint)).Dec()
}

// RecordTimeToFirstEvent records latency to the first stream event.
func (m *AssistantMetrics) RecordTimeToFirstEvent(endpoint Endpoint, seconds float64) {
	m.TimeToFirstEventSeconds.WithLabelValues(string(endpoint)).Observe(seconds)
}

// RecordStreamDuration records total stream duration.
func (m *AssistantMetrics) RecordStreamDuration(endpoint Endpoint, seconds float64, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	m.StreamDurationSeconds.WithLabelValues(string(endpoint), status).Observe(seconds)
}

// RecordEvidenceBucket records one bucket's retrieval latency.
func (m *AssistantMetrics) RecordEvidenceBucket(bucket string, seconds float64, ok bool) {
	status := "ok"
	if !ok {
		status = "error"
	}
	m.EvidenceBucketSeconds.WithLabelValues(bucket, status).Observe(seconds)
}

// RecordKeepAlive increments the keepalive counter.
func (m *AssistantMetrics) RecordKeepAlive(endpoint Endpoint) {
	m.KeepAlivesTotal.WithLabelValues(string(endpoint)).Inc()
}

// RecordClientDisconnect increments the disconnect counter.
func (m *AssistantMetrics) RecordClientDisconnect(endpoint Endpoint) {
	m.ClientDisconnectsTotal.WithLabelValues(string(endpoint)).Inc()
}
