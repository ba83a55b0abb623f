// SPDX-License-Identifier: AGPL-3.0-or-later

package httpserver

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/ohx-project/ohx-core/internal/jwtauth"
	"github.com/ohx-project/ohx-core/internal/middleware"
	"github.com/ohx-project/ohx-core/internal/redirect"
)

// generation is the immutable state one bound server instance routes
// against: a point-in-time snapshot of the redirect table plus the
// default-UI target, captured once per restart (spec.md §4.8).
type generation struct {
	rootDir   string
	redirects []redirect.Entry
	defaultUI string
	verifier  *jwtauth.Verifier
	serviceID string
	version   string
}

// chiMiddleware adapts the project's func(http.HandlerFunc) http.HandlerFunc
// middleware to chi's func(http.Handler) http.Handler, mirroring the
// teacher's internal/api/chi_router.go.
func chiMiddleware(mw func(http.HandlerFunc) http.HandlerFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return mw(next.ServeHTTP)
	}
}

// newRouter builds the route table for one server generation, in the
// precedence order spec.md §4.8 specifies:
//
//  1. GET /                       -> redirect to the default UI
//  2. GET /ohx                    -> about/version document
//  3. PUT/DELETE /config/{module}/{schema}/{id}
//  4. PUT/DELETE /{area}/{id}     -> area in {interconnects, rules, scripts}
//  5. everything else             -> local static file or directory index,
//     falling back to the addon reverse proxy when nothing local matches.
func newRouter(gen generation) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(chiMiddleware(middleware.RequestID))
	r.Use(chiMiddleware(middleware.PrometheusMetrics))
	if gen.verifier != nil {
		r.Use(gen.verifier.Middleware)
	}

	r.Get("/", indexHandler(gen))
	r.Get("/ohx", aboutHandler(gen))

	r.Put("/config/{module}/{schema}/{id}", putConfigHandler(gen))
	r.Delete("/config/{module}/{schema}/{id}", deleteConfigHandler(gen))

	for _, area := range []string{"interconnects", "rules", "scripts"} {
		r.Put("/"+area+"/{id}", putAreaHandler(gen, area))
		r.Delete("/"+area+"/{id}", deleteAreaHandler(gen, area))
	}

	r.Handle("/*", fallbackHandler(gen))

	return r
}

const noDefaultUIBody = `<html><head><title>No default UI</title></head><body>no default UI has been set</body></html>`

func indexHandler(gen generation) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if gen.defaultUI == "" {
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(noDefaultUIBody))
			return
		}
		http.Redirect(w, r, "/webui/"+gen.defaultUI+"/index.html", http.StatusTemporaryRedirect)
	}
}

func aboutHandler(gen generation) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{
			"service": gen.serviceID,
			"version": gen.version,
		})
	}
}
