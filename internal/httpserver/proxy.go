// SPDX-License-Identifier: AGPL-3.0-or-later

package httpserver

import (
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ohx-project/ohx-core/internal/logging"
	"github.com/ohx-project/ohx-core/internal/metrics"
	"github.com/ohx-project/ohx-core/internal/redirect"
)

// proxyClient forwards requests to addon upstreams. Go's net.Dialer
// disables Nagle's algorithm by default, matching the nodelay connector
// original_source/core/src/http/service.rs builds by hand.
var proxyClient = &http.Client{Timeout: 30 * time.Second}

// proxyRequest matches the first path segment of r against entries, and if
// found forwards the request verbatim (method, path-and-query, body,
// headers, plus a computed Content-Length) to the matching addon, copying
// its response back unmodified (spec.md §4.8 step 6). It reports whether a
// match was found at all, independent of whether the upstream call
// succeeded.
func proxyRequest(gen generation, w http.ResponseWriter, r *http.Request) bool {
	firstSegment := strings.SplitN(strings.TrimPrefix(r.URL.Path, "/"), "/", 2)[0]
	if firstSegment == "" {
		return false
	}
	entry, ok := redirect.Lookup(gen.redirects, firstSegment)
	if !ok {
		return false
	}

	log := logging.WithComponent("httpserver.proxy")
	metrics.RecordProxyRequest(entry.ID)

	body, err := io.ReadAll(r.Body)
	if err != nil {
		metrics.RecordProxyError(entry.ID, "read_body")
		http.Error(w, "failed to read request body", http.StatusBadGateway)
		return true
	}

	url := "http://" + entry.Target + r.URL.RequestURI()
	outReq, err := http.NewRequestWithContext(r.Context(), r.Method, url, strings.NewReader(string(body)))
	if err != nil {
		metrics.RecordProxyError(entry.ID, "build_request")
		http.Error(w, "failed to build upstream request", http.StatusBadGateway)
		return true
	}
	outReq.Header = r.Header.Clone()
	outReq.ContentLength = int64(len(body))
	outReq.Header.Set("Content-Length", strconv.Itoa(len(body)))

	resp, err := proxyClient.Do(outReq)
	if err != nil {
		log.Warn().Err(err).Str("target", entry.Target).Msg("addon request failed")
		metrics.RecordProxyError(entry.ID, "dial_failed")
		http.Error(w, "upstream request failed", http.StatusBadGateway)
		return true
	}
	defer resp.Body.Close()

	for key, values := range resp.Header {
		for _, v := range values {
			w.Header().Add(key, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	_, _ = io.Copy(w, resp.Body)
	return true
}
