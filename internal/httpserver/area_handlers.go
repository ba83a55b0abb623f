// SPDX-License-Identifier: AGPL-3.0-or-later

package httpserver

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/go-chi/chi/v5"

	"github.com/ohx-project/ohx-core/internal/pathutil"
)

// areaBodyLimit bounds a PUT body per area, matching the size limits
// original_source/core/src/http/service.rs applies per route: 8KB for
// interconnects and rules, 64KB for scripts.
var areaBodyLimit = map[string]int64{
	"interconnects": 8 * 1024,
	"rules":         8 * 1024,
	"scripts":       64 * 1024,
}

func areaDir(rootDir, area string) string {
	switch area {
	case "interconnects":
		return pathutil.InterconnectsDir(rootDir)
	case "rules":
		return pathutil.RulesDir(rootDir)
	case "scripts":
		return pathutil.ScriptsDir(rootDir)
	default:
		return ""
	}
}

func areaFile(rootDir, area, id string) string {
	return filepath.Join(areaDir(rootDir, area), fmt.Sprintf("%s.json", id))
}

func putAreaHandler(gen generation, area string) http.HandlerFunc {
	limit := areaBodyLimit[area]
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		body, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
		if err != nil {
			http.Error(w, "failed to read body", http.StatusInternalServerError)
			return
		}
		if int64(len(body)) > limit {
			http.Error(w, "document too large", http.StatusRequestEntityTooLarge)
			return
		}

		dir := areaDir(gen.rootDir, area)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			http.Error(w, "failed to create directory", http.StatusInternalServerError)
			return
		}
		if err := writeAtomic(areaFile(gen.rootDir, area, id), body); err != nil {
			http.Error(w, "failed to write document", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func deleteAreaHandler(gen generation, area string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		path := areaFile(gen.rootDir, area, id)

		if _, err := os.Stat(path); err != nil {
			http.NotFound(w, r)
			return
		}
		if err := os.Remove(path); err != nil {
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(cannotRemoveBody))
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
