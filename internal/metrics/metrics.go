// SPDX-License-Identifier: AGPL-3.0-or-later

// Package metrics provides Prometheus instrumentation for the trust and
// discovery subsystems: certificate lifecycle, JWKS rotation, multicast
// discovery outcomes, and the HTTP server core.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Certificate lifecycle (C3, C4).
	CertExpirySeconds = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ohx_cert_expiry_seconds",
			Help: "Unix timestamp at which the current HTTPS certificate expires",
		},
	)

	CertGenerationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ohx_cert_generations_total",
			Help: "Total number of times the HTTPS certificate has been (re)generated",
		},
	)

	CertGenerationErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ohx_cert_generation_errors_total",
			Help: "Total number of failed certificate generation attempts",
		},
	)

	// JWKS authority (C5, C6).
	JWKSRotationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ohx_jwks_rotations_total",
			Help: "Total number of times a new system signing key has been minted",
		},
	)

	JWKSEvictionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ohx_jwks_evictions_total",
			Help: "Total number of system signing keys evicted from the JWKS",
		},
	)

	JWKSActiveKeys = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ohx_jwks_active_keys",
			Help: "Current number of keys held in the system JWKS",
		},
	)

	JWKSCheckErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ohx_jwks_check_errors_total",
			Help: "Total number of failed JWKS ensure/self-verify cycles",
		},
	)

	// Discovery resolver (C7, C8, C9).
	DiscoveryResolveDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ohx_discovery_resolve_duration_seconds",
			Help:    "Duration of discovery resolve calls",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 2.5, 5},
		},
		[]string{"service"},
	)

	DiscoveryResolveOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ohx_discovery_resolve_outcomes_total",
			Help: "Total discovery resolve outcomes by type",
		},
		[]string{"service", "outcome"},
	)

	DiscoveryRegistryCacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ohx_discovery_registry_cache_hits_total",
			Help: "Total registry cache hits by service",
		},
		[]string{"service"},
	)

	DiscoveryRegistryCacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ohx_discovery_registry_cache_misses_total",
			Help: "Total registry cache misses by service",
		},
		[]string{"service"},
	)

	DiscoveryPacketsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ohx_discovery_packets_dropped_total",
			Help: "Total malformed or oversize discovery packets dropped",
		},
		[]string{"reason"},
	)

	// HTTP server core (C11).
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ohx_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status_code"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ohx_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"method", "route"},
	)

	HTTPActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ohx_http_active_requests",
			Help: "Current number of in-flight HTTP requests",
		},
	)

	HTTPServerRestartsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ohx_http_server_restarts_total",
			Help: "Total number of HTTP server core restarts (cert rotation or route changes)",
		},
	)

	// Reverse proxy (redirect table, C10/C11).
	ProxyRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ohx_proxy_requests_total",
			Help: "Total number of requests forwarded through the reverse proxy",
		},
		[]string{"target_id"},
	)

	ProxyErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ohx_proxy_errors_total",
			Help: "Total number of reverse proxy failures",
		},
		[]string{"target_id", "reason"},
	)
)

// RecordCertGeneration updates certificate metrics after an Ensure call.
func RecordCertGeneration(generated bool, expiresAt time.Time, err error) {
	if err != nil {
		CertGenerationErrors.Inc()
		return
	}
	if generated {
		CertGenerationsTotal.Inc()
	}
	CertExpirySeconds.Set(float64(expiresAt.Unix()))
}

// RecordJWKSCycle updates JWKS metrics after an authority.Ensure call.
func RecordJWKSCycle(minted, evicted, activeKeys int, err error) {
	if err != nil {
		JWKSCheckErrors.Inc()
		return
	}
	if minted > 0 {
		JWKSRotationsTotal.Add(float64(minted))
	}
	if evicted > 0 {
		JWKSEvictionsTotal.Add(float64(evicted))
	}
	JWKSActiveKeys.Set(float64(activeKeys))
}

// RecordDiscoveryResolve records the outcome and latency of a resolve call.
func RecordDiscoveryResolve(service, outcome string, duration time.Duration) {
	DiscoveryResolveDuration.WithLabelValues(service).Observe(duration.Seconds())
	DiscoveryResolveOutcomes.WithLabelValues(service, outcome).Inc()
}

// RecordHTTPRequest records a completed HTTP request.
func RecordHTTPRequest(method, route, statusCode string, duration time.Duration) {
	HTTPRequestsTotal.WithLabelValues(method, route, statusCode).Inc()
	HTTPRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// TrackActiveRequest increments or decrements the in-flight request gauge.
func TrackActiveRequest(inc bool) {
	if inc {
		HTTPActiveRequests.Inc()
		return
	}
	HTTPActiveRequests.Dec()
}

// RecordAPIRequest is the generic request-metrics entry point used by
// internal/middleware's PrometheusMetrics middleware; statusCode is the
// string form of the HTTP status (see StatusCodeString).
func RecordAPIRequest(method, route, statusCode string, duration time.Duration) {
	RecordHTTPRequest(method, route, statusCode, duration)
}

// RecordProxyRequest records a successful reverse-proxy forward.
func RecordProxyRequest(targetID string) {
	ProxyRequestsTotal.WithLabelValues(targetID).Inc()
}

// RecordProxyError records a reverse-proxy failure.
func RecordProxyError(targetID, reason string) {
	ProxyErrorsTotal.WithLabelValues(targetID, reason).Inc()
}

// StatusCodeString is a small helper kept for parity with the teacher's
// middleware, which formats numeric status codes before calling into this
// package.
func StatusCodeString(code int) string {
	return strconv.Itoa(code)
}
