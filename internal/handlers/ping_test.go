package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/relaydesk/relaydesk/internal/server"
)

func TestHealthHandlerPing(t *testing.T) {
	t.Parallel()

	srv := server.New(slog.Default(), ":0", []server.Handler{NewHealthHandler()})

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	rec := httptest.NewRecorder()
	srv.Echo().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal body: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("status field = %q, want %q", body["status"], "ok")
	}
	if body["service"] != "relaydesk" {
		t.Errorf("service field = %q, want %q", body["service"], "relaydesk")
	}
}

func TestHealthHandlerHead(t *testing.T) {
	t.Parallel()

	srv := server.New(slog.Default(), ":0", []server.Handler{NewHealthHandler()})

	req := httptest.NewRequest(http.MethodHead, "/health", nil)
	rec := httptest.NewRecorder()
	srv.Echo().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if rec.Body.Len() != 0 {
		t.Errorf("body length = %d, want empty", rec.Body.Len())
	}
}
