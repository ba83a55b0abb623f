// SPDX-License-Identifier: AGPL-3.0-or-later

package httpserver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/ohx-project/ohx-core/internal/pathutil"
)

func newChiRequest(method, target string, body string, params map[string]string) (*http.Request, *httptest.ResponseRecorder) {
	var r *http.Request
	if body != "" {
		r = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		r = httptest.NewRequest(method, target, nil)
	}
	rctx := chi.NewRouteContext()
	for k, v := range params {
		rctx.URLParams.Add(k, v)
	}
	r = r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
	return r, httptest.NewRecorder()
}

func TestPutConfigHandlerWritesDocument(t *testing.T) {
	dir := t.TempDir()
	gen := generation{rootDir: dir}

	r, w := newChiRequest(http.MethodPut, "/config/ruleengine/settings/default", `{"a":1}`, map[string]string{
		"module": "ruleengine", "schema": "settings", "id": "default",
	})
	putConfigHandler(gen)(w, r)

	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusNoContent)
	}
	data, err := os.ReadFile(pathutil.ConfigFile(dir, "ruleengine", "settings", "default"))
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if string(data) != `{"a":1}` {
		t.Errorf("written document = %q", data)
	}
}

func TestPutConfigHandlerRejectsOversizedBody(t *testing.T) {
	dir := t.TempDir()
	gen := generation{rootDir: dir}

	big := strings.Repeat("a", configBodyLimit+1)
	r, w := newChiRequest(http.MethodPut, "/config/m/s/i", big, map[string]string{
		"module": "m", "schema": "s", "id": "i",
	})
	putConfigHandler(gen)(w, r)

	if w.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want %d", w.Code, http.StatusRequestEntityTooLarge)
	}
}

func TestDeleteConfigHandlerRemovesDocument(t *testing.T) {
	dir := t.TempDir()
	gen := generation{rootDir: dir}

	r, w := newChiRequest(http.MethodPut, "/config/m/s/i", `{}`, map[string]string{
		"module": "m", "schema": "s", "id": "i",
	})
	putConfigHandler(gen)(w, r)

	r, w = newChiRequest(http.MethodDelete, "/config/m/s/i", "", map[string]string{
		"module": "m", "schema": "s", "id": "i",
	})
	deleteConfigHandler(gen)(w, r)
	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusNoContent)
	}

	if _, err := os.Stat(pathutil.ConfigFile(dir, "m", "s", "i")); !os.IsNotExist(err) {
		t.Errorf("config file still exists after delete, err = %v", err)
	}
}

func TestDeleteConfigHandlerReturnsNotFoundWhenMissing(t *testing.T) {
	dir := t.TempDir()
	gen := generation{rootDir: dir}

	r, w := newChiRequest(http.MethodDelete, "/config/m/s/missing", "", map[string]string{
		"module": "m", "schema": "s", "id": "missing",
	})
	deleteConfigHandler(gen)(w, r)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestPutAreaHandlerWritesDocument(t *testing.T) {
	dir := t.TempDir()
	gen := generation{rootDir: dir}

	r, w := newChiRequest(http.MethodPut, "/rules/morning", `{"id":"morning"}`, map[string]string{"id": "morning"})
	putAreaHandler(gen, "rules")(w, r)

	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusNoContent)
	}
	if _, err := os.Stat(areaFile(dir, "rules", "morning")); err != nil {
		t.Errorf("Stat() error = %v", err)
	}
}

func TestPutAreaHandlerRejectsOversizedScriptBody(t *testing.T) {
	dir := t.TempDir()
	gen := generation{rootDir: dir}

	big := strings.Repeat("a", areaBodyLimitInt("scripts")+1)
	r, w := newChiRequest(http.MethodPut, "/scripts/big", big, map[string]string{"id": "big"})
	putAreaHandler(gen, "scripts")(w, r)

	if w.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want %d", w.Code, http.StatusRequestEntityTooLarge)
	}
}

func areaBodyLimitInt(area string) int {
	return int(areaBodyLimit[area])
}
