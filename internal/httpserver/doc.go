// SPDX-License-Identifier: AGPL-3.0-or-later

// Package httpserver is the restartable TLS HTTP server core (C11):
// the one network-facing surface OHX exposes, serving the local web UI,
// the on-disk configuration store, and reverse-proxying addon traffic
// under their registered paths.
//
// Grounded on original_source/core/src/http/service.rs's HttpService: a
// single in-flight server generation rebuilt from scratch on every
// restart signal, driven by the live internal/redirect.Table and the
// current on-disk TLS certificate. The restart/shutdown signalling
// collapses the original's mpsc restart channel plus watch<bool> pulse
// into a single buffered channel and an atomic shutdown flag — Go's
// http.Server.Shutdown already is the graceful-drain primitive the
// watch channel existed to trigger, so no second indirection is needed
// (see DESIGN.md).
//
// Routing is chi-based (github.com/go-chi/chi/v5), in the same style as
// the teacher's internal/api/chi_router.go: a chiMiddleware adapter lets
// the project's existing func(http.HandlerFunc) http.HandlerFunc
// middleware compose with chi's r.Use().
package httpserver
