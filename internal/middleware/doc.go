// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package middleware provides HTTP middleware components for the application.

This package implements infrastructure middleware for compression, request ID
tracking, and Prometheus metrics integration. These components work alongside
internal/jwtauth's bearer-JWT middleware to create a complete middleware
stack for HTTP request processing.

Key Components:

  - Compression: Gzip compression for clients that accept it
  - Request ID: UUID-based request tracking for distributed tracing
  - Prometheus Metrics: HTTP request/response instrumentation

Middleware Stack:

The typical middleware stack for an endpoint is:

	http.Handle("/api/v1/endpoint",
	    verifier.Middleware(                 // Layer 1: bearer-JWT auth (*jwtauth.Verifier)
	        middleware.PrometheusMetrics(    // Layer 2: Metrics
	            middleware.Compression(      // Layer 3: Gzip
	                middleware.RequestID(    // Layer 4: Request tracking
	                    handler,             // Layer 5: Business logic
	                ),
	            ),
	        ),
	    ),
	)

Usage Example - Compression:

	import "github.com/ohx-project/ohx-core/internal/middleware"

	// Wrap handler with gzip compression
	http.HandleFunc("/api/v1/data",
	    middleware.Compression(handler),
	)

	// Responses of any size are compressed
	// Accept-Encoding: gzip header is required

Usage Example - Request ID:

	// Request ID middleware
	http.HandleFunc("/api/v1/logs",
	    middleware.RequestID(handler),
	)

	// Access request ID in handler
	func handler(w http.ResponseWriter, r *http.Request) {
	    requestID := r.Context().Value(middleware.RequestIDKey).(string)
	    log.Printf("[%s] Processing request", requestID)
	}

Performance Characteristics:

  - Compression: 70-90% size reduction for JSON (text/json mime types)
  - Compression overhead: ~1-2ms for typical responses
  - Metrics overhead: <0.1ms per request
  - Request ID overhead: <0.01ms (UUID generation)

Compression Details:

The compression middleware:
  - Compresses every response, with no size threshold
  - Supports gzip encoding (Accept-Encoding: gzip)
  - Does not filter by mime type
  - Skips WebSocket upgrade requests
  - Automatically sets Content-Encoding header
  - Does not flush; compressed data is written out when the gzip writer
    fills or is closed at the end of the request

Thread Safety:

All middleware components are thread-safe:
  - Compression uses per-request gzip writers
  - Request ID uses context.Context (immutable)
  - Prometheus metrics use atomic operations

See Also:

  - internal/jwtauth: bearer-JWT authentication middleware
  - internal/httpserver: HTTP handlers wrapped by this middleware
  - internal/metrics: Prometheus metrics definitions
*/
package middleware
