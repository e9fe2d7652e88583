// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-passkey.
//
// go-passkey is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

// Package metrics provides Prometheus instrumentation for passkey
// ceremonies. It exposes ceremony counters, latency histograms, session
// and credential gauges, and resource metrics for monitoring the
// authentication server.
package metrics

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	// Namespace is the Prometheus namespace for all passkey metrics
	Namespace = "passkey"

	// Label names
	LabelOperation  = "operation"
	LabelStatus     = "status"
	LabelErrorType  = "error_type"
	LabelKind       = "kind"
	LabelTier       = "tier"
	LabelMethod     = "method"
	LabelStatusCode = "status_code"

	// Status values
	StatusSuccess = "success"
	StatusError   = "error"

	// Operation names
	OpRegisterBegin      = "register_begin"
	OpRegisterFinish     = "register_finish"
	OpAuthenticateBegin  = "authenticate_begin"
	OpAuthenticateFinish = "authenticate_finish"
	OpListCredentials    = "list_credentials"
	OpRevoke             = "revoke"
	OpSweep              = "sweep"
	OpHealthCheck        = "health_check"

	// Session kinds
	KindRegistration   = "registration"
	KindAuthentication = "authentication"
	KindCorrupt        = "corrupt"
)

var (
	// CeremoniesTotal tracks the total number of ceremony operations by
	// type and status. Use RecordCeremony to increment this counter.
	CeremoniesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "ceremonies_total",
			Help:      "Total number of ceremony operations by type and status",
		},
		[]string{LabelOperation, LabelStatus},
	)

	// CeremonyDuration tracks the duration of ceremony operations in
	// seconds. Buckets cover the range from in-memory lookups to remote
	// authenticator round trips.
	CeremonyDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "ceremony_duration_seconds",
			Help:      "Duration of ceremony operations in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{LabelOperation},
	)

	// ErrorsTotal tracks errors by operation and error type. Error types
	// should be specific (e.g. "session_expired", "tier_too_low",
	// "counter_regression").
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "errors_total",
			Help:      "Total number of errors by operation and error type",
		},
		[]string{LabelOperation, LabelErrorType},
	)

	// CredentialsActive tracks the number of stored credentials.
	CredentialsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "credentials_active",
			Help:      "Number of stored credentials",
		},
	)

	// CredentialsByTier tracks stored credentials per assurance tier.
	CredentialsByTier = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "credentials_by_tier",
			Help:      "Number of stored credentials per assurance tier",
		},
		[]string{LabelTier},
	)

	// SessionsPending tracks outstanding ceremony sessions by kind
	// (registration or authentication).
	SessionsPending = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "sessions_pending",
			Help:      "Number of outstanding ceremony sessions by kind",
		},
		[]string{LabelKind},
	)

	// SessionsSweptTotal counts sessions removed by the expiry sweeper,
	// by kind (registration, authentication, corrupt).
	SessionsSweptTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "sessions_swept_total",
			Help:      "Total number of sessions removed by the expiry sweeper, by kind",
		},
		[]string{LabelKind},
	)

	// CloneWarningsTotal counts authentications that raised a cloned
	// authenticator warning (sign counter regression).
	CloneWarningsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "clone_warnings_total",
			Help:      "Total number of authentications flagged for sign counter regression",
		},
	)

	// HTTPRequestsTotal tracks the total number of HTTP requests by method and status code.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by method and status code",
		},
		[]string{LabelMethod, LabelStatusCode},
	)

	// HTTPRequestDuration tracks the duration of HTTP requests in seconds.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{LabelMethod},
	)

	// HTTPActiveRequests tracks the number of HTTP requests currently in flight.
	HTTPActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "http",
			Name:      "active_requests",
			Help:      "Number of HTTP requests currently in flight",
		},
	)

	// Goroutines tracks the current number of goroutines.
	// Updated periodically by the resource collector.
	Goroutines = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "goroutines",
			Help:      "Current number of goroutines",
		},
	)

	// MemoryAllocBytes tracks the current bytes of allocated heap objects.
	// Updated periodically by the resource collector.
	MemoryAllocBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "memory_alloc_bytes",
			Help:      "Current bytes of allocated heap objects",
		},
	)

	// MemorySysBytes tracks the total bytes of memory obtained from the OS.
	// Updated periodically by the resource collector.
	MemorySysBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "memory_sys_bytes",
			Help:      "Total bytes of memory obtained from the OS",
		},
	)

	// GCPauseTotalSeconds tracks the cumulative time spent in GC stop-the-world pauses.
	// Updated periodically by the resource collector.
	GCPauseTotalSeconds = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "gc_pause_total_seconds",
			Help:      "Cumulative time spent in GC stop-the-world pauses",
		},
	)

	// ServerUptime tracks the server uptime in seconds since startup.
	ServerUptime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "server_uptime_seconds",
			Help:      "Server uptime in seconds since startup",
		},
	)

	// enabled tracks whether metrics collection is enabled
	enabled atomic.Bool
)

func init() {
	// Metrics are enabled by default
	enabled.Store(true)
}

// RecordCeremony records a ceremony operation with its duration and status.
//
// Example:
//
//	start := time.Now()
//	_, err := svc.FinishAuthentication(ctx, sessionID, body)
//	duration := time.Since(start).Seconds()
//	if err != nil {
//	    metrics.RecordCeremony(metrics.OpAuthenticateFinish, metrics.StatusError, duration)
//	} else {
//	    metrics.RecordCeremony(metrics.OpAuthenticateFinish, metrics.StatusSuccess, duration)
//	}
func RecordCeremony(operation, status string, duration float64) {
	if !enabled.Load() {
		return
	}
	CeremoniesTotal.WithLabelValues(operation, status).Inc()
	CeremonyDuration.WithLabelValues(operation).Observe(duration)
}

// RecordError records an error event with context about where it occurred.
// Error types should be stable snake_case identifiers so dashboards can
// group on them.
func RecordError(operation, errorType string) {
	if !enabled.Load() {
		return
	}
	ErrorsTotal.WithLabelValues(operation, errorType).Inc()
}

// RecordHTTPRequest records an HTTP request with its duration and status.
func RecordHTTPRequest(method, statusCode string, duration float64) {
	if !enabled.Load() {
		return
	}
	HTTPRequestsTotal.WithLabelValues(method, statusCode).Inc()
	HTTPRequestDuration.WithLabelValues(method).Observe(duration)
}

// RecordSessionsSwept adds the counts from a completed sweep.
func RecordSessionsSwept(kind string, count int) {
	if !enabled.Load() || count <= 0 {
		return
	}
	SessionsSweptTotal.WithLabelValues(kind).Add(float64(count))
}

// RecordCloneWarning counts an authentication flagged for sign counter
// regression.
func RecordCloneWarning() {
	if !enabled.Load() {
		return
	}
	CloneWarningsTotal.Inc()
}

// SetCredentialsActive sets the stored credential count.
func SetCredentialsActive(count float64) {
	if !enabled.Load() {
		return
	}
	CredentialsActive.Set(count)
}

// SetCredentialsByTier sets the stored credential count for a tier.
func SetCredentialsByTier(tier string, count float64) {
	if !enabled.Load() {
		return
	}
	CredentialsByTier.WithLabelValues(tier).Set(count)
}

// SetSessionsPending sets the outstanding session count for a kind.
func SetSessionsPending(kind string, count float64) {
	if !enabled.Load() {
		return
	}
	SessionsPending.WithLabelValues(kind).Set(count)
}

// Enable enables metrics collection.
func Enable() {
	enabled.Store(true)
}

// Disable disables metrics collection.
// Useful for testing or when metrics are not desired.
func Disable() {
	enabled.Store(false)
}

// IsEnabled returns whether metrics collection is currently enabled.
func IsEnabled() bool {
	return enabled.Load()
}
