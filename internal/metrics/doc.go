// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package metrics provides Prometheus metrics collection and export for the
trust and discovery core.

# Overview

The package instruments:
  - Certificate lifecycle: expiry, (re)generation count, generation errors
  - JWKS authority: rotations, evictions, active key count, check errors
  - Discovery resolver: resolve latency and outcome by service, registry
    cache hit/miss, dropped packets by reason
  - HTTP server core: request count/latency by route, active requests,
    server restarts
  - Reverse proxy: forwarded request count and error count by target

# Metrics Endpoint

The collectors are registered with the default Prometheus registry via
promauto. This module mounts no /metrics handler; internal/httpserver
serves no metrics route.

# Usage

	metrics.RecordCertGeneration(generated, cert.NotAfter, err)
	metrics.RecordJWKSCycle(minted, evicted, len(set.Keys), err)
	metrics.RecordDiscoveryResolve("ruleengine", "success", elapsed)
	metrics.RecordHTTPRequest(r.Method, route, strconv.Itoa(status), elapsed)
*/
package metrics
