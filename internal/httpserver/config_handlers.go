// SPDX-License-Identifier: AGPL-3.0-or-later

package httpserver

import (
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/go-chi/chi/v5"

	"github.com/ohx-project/ohx-core/internal/pathutil"
)

// configBodyLimit bounds a single configuration document's size
// (original_source/core/src/http/service.rs: 16KB content-length limit on
// PUT /config/:module/:schema/:id).
const configBodyLimit = 16 * 1024

func putConfigHandler(gen generation) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		module := chi.URLParam(r, "module")
		schema := chi.URLParam(r, "schema")
		id := chi.URLParam(r, "id")

		body, err := io.ReadAll(io.LimitReader(r.Body, configBodyLimit+1))
		if err != nil {
			http.Error(w, "failed to read body", http.StatusInternalServerError)
			return
		}
		if len(body) > configBodyLimit {
			http.Error(w, "document too large", http.StatusRequestEntityTooLarge)
			return
		}

		path := pathutil.ConfigFile(gen.rootDir, module, schema, id)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			http.Error(w, "failed to create config directory", http.StatusInternalServerError)
			return
		}
		if err := writeAtomic(path, body); err != nil {
			http.Error(w, "failed to write config document", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

const cannotRemoveBody = `<html><head><title>Cannot remove</title></head><body>the document could not be removed</body></html>`

func deleteConfigHandler(gen generation) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		module := chi.URLParam(r, "module")
		schema := chi.URLParam(r, "schema")
		id := chi.URLParam(r, "id")

		path := pathutil.ConfigFile(gen.rootDir, module, schema, id)
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

// writeAtomic writes data to path via a temp file plus rename, matching the
// pattern internal/certs and internal/jwks use for every on-disk document.
func writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
