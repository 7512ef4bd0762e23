// Contactsync - CRM Contact Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/contactsync

// Package metrics defines the Prometheus instrumentation of Contactsync:
// HTTP API traffic, outbound CRM calls and their circuit breaker, sync
// outcomes, tag and custom-field reconciliation, the background queue and
// the activity log.
package metrics

import (
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// API Endpoint Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "contactsync_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "contactsync_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "contactsync_api_active_requests",
			Help: "Current number of active API requests",
		},
	)

	// CRM Client Metrics
	CRMRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "contactsync_crm_requests_total",
			Help: "Total number of CRM API requests by outcome",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	CRMRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "contactsync_crm_request_duration_seconds",
			Help:    "CRM API request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "endpoint"},
	)

	CRMRateLimitRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "contactsync_crm_rate_limit_retries_total",
			Help: "Total number of CRM requests retried after HTTP 429",
		},
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "contactsync_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "contactsync_circuit_breaker_requests_total",
			Help: "Requests seen by the circuit breaker by result (success, failure, rejected)",
		},
		[]string{"name", "result"},
	)

	CircuitBreakerConsecutiveFailures = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "contactsync_circuit_breaker_consecutive_failures",
			Help: "Current number of consecutive failures",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "contactsync_circuit_breaker_transitions_total",
			Help: "Circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)

	// Sync Metrics
	SyncOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "contactsync_sync_operations_total",
			Help: "Contact sync attempts by source and result (created, updated, failed, invalid)",
		},
		[]string{"source", "result"},
	)

	SyncDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "contactsync_sync_duration_seconds",
			Help:    "End-to-end duration of one contact upsert",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"source"},
	)

	DispatchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "contactsync_dispatch_total",
			Help: "Dispatcher decisions by mode (disabled, queued, direct, enqueue_failed)",
		},
		[]string{"mode"},
	)

	TagsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "contactsync_tags_created_total",
			Help: "Total number of tags created in the CRM",
		},
	)

	TagAssignments = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "contactsync_tag_assignments_total",
			Help: "Tag assignment outcomes (assigned, already_assigned, unresolved, failed)",
		},
		[]string{"result"},
	)

	CustomFieldMerges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "contactsync_custom_field_merges_total",
			Help: "Custom-field merge outcomes (initial, appended, unchanged, skipped)",
		},
		[]string{"result"},
	)

	// Queue Metrics
	QueueJobsEnqueued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "contactsync_queue_jobs_enqueued_total",
			Help: "Total number of background jobs enqueued",
		},
		[]string{"topic"},
	)

	QueueJobsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "contactsync_queue_jobs_processed_total",
			Help: "Background jobs processed by result (success, failed, poisoned)",
		},
		[]string{"result"},
	)

	QueueJobsDeduplicated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "contactsync_queue_jobs_deduplicated_total",
			Help: "Redelivered jobs dropped by the deduplicator",
		},
	)

	JournalPending = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "contactsync_journal_pending_entries",
			Help: "Jobs journaled but not yet confirmed",
		},
	)

	JournalRecovered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "contactsync_journal_recovered_total",
			Help: "Jobs republished from the journal at startup",
		},
	)

	// Activity Log Metrics
	ActivityLogEntries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "contactsync_activity_log_entries_total",
			Help: "Activity log entries written by level",
		},
		[]string{"level"},
	)

	// Integration Metrics
	IntegrationEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "contactsync_integration_events_total",
			Help: "Inbound integration events by integration and result (dispatched, disabled, ignored, suppressed)",
		},
		[]string{"integration", "result"},
	)
)

// RecordAPIRequest records one HTTP API request.
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// TrackActiveRequest increments or decrements the active request gauge.
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}

// RecordCRMRequest records one outbound CRM call. statusCode 0 means the
// request never got a response.
func RecordCRMRequest(method, path string, statusCode int, duration time.Duration) {
	endpoint := NormalizeCRMEndpoint(path)
	status := "transport_error"
	if statusCode > 0 {
		status = strconv.Itoa(statusCode)
	}
	CRMRequestsTotal.WithLabelValues(method, endpoint, status).Inc()
	CRMRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// NormalizeCRMEndpoint strips the query string and replaces numeric path
// segments with ":id" to keep label cardinality bounded.
// Example: "contacts/123/tags?x=1" -> "contacts/:id/tags"
func NormalizeCRMEndpoint(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	segments := strings.Split(strings.Trim(path, "/"), "/")
	for i, seg := range segments {
		if seg == "" {
			continue
		}
		if _, err := strconv.ParseInt(seg, 10, 64); err == nil {
			segments[i] = ":id"
		}
	}
	return strings.Join(segments, "/")
}

// RecordSyncOperation records the outcome of one upsert.
func RecordSyncOperation(source, result string, duration time.Duration) {
	SyncOperationsTotal.WithLabelValues(source, result).Inc()
	SyncDuration.WithLabelValues(source).Observe(duration.Seconds())
}
