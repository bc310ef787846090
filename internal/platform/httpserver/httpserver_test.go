package httpserver

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestWrapAssignsRequestID(t *testing.T) {
	var seen string
	handler := Wrap(testLogger(), "engine", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = RequestIDFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))

	if seen == "" {
		t.Fatalf("expected request id in context")
	}
	if rec.Header().Get("X-Request-Id") != seen {
		t.Fatalf("response header=%q, context=%q", rec.Header().Get("X-Request-Id"), seen)
	}
}

func TestWrapKeepsIncomingRequestID(t *testing.T) {
	handler := Wrap(testLogger(), "engine", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("X-Request-Id", "incoming-id")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Header().Get("X-Request-Id") != "incoming-id" {
		t.Fatalf("X-Request-Id=%q, want incoming-id", rec.Header().Get("X-Request-Id"))
	}
}

func TestWrapRecoversPanic(t *testing.T) {
	handler := Wrap(testLogger(), "engine", http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d, want 500", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "internal_server_error") {
		t.Fatalf("body=%q", rec.Body.String())
	}
}

func TestReadyzWithChecksReportsFailure(t *testing.T) {
	handler := ReadyzWithChecks("engine",
		ReadinessCheck{Name: "postgres", Check: func(context.Context) error { return nil }},
		ReadinessCheck{Name: "minio", Check: func(context.Context) error { return errors.New("bucket missing") }},
	)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status=%d, want 503", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "bucket missing") {
		t.Fatalf("body=%q", rec.Body.String())
	}
}

func TestReadyzWithChecksAllOK(t *testing.T) {
	handler := ReadyzWithChecks("engine",
		ReadinessCheck{Name: "postgres", Check: func(context.Context) error { return nil }},
	)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d, want 200", rec.Code)
	}
}
