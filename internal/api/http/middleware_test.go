package apihttp

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRecoveryMiddleware(t *testing.T) {
	handler := recoveryMiddleware(slog.Default(), http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/search", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	handler := rateLimitMiddleware(1, 1, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/search", nil))
	second := httptest.NewRecorder()
	handler.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/search", nil))
	if first.Code != http.StatusNoContent || second.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 204 then 429, got %d then %d", first.Code, second.Code)
	}

	health := httptest.NewRecorder()
	handler.ServeHTTP(health, httptest.NewRequest(http.MethodGet, "/health", nil))
	if health.Code != http.StatusNoContent {
		t.Fatalf("health must bypass the limiter, got %d", health.Code)
	}
}

func TestNormalizeRoute(t *testing.T) {
	tests := map[string]string{
		"/search":        "/search",
		"/search/page":   "/search/page",
		"/search/select": "/search/select",
		"/random":        "/other",
	}
	for in, want := range tests {
		if got := normalizeRoute(in); got != want {
			t.Fatalf("normalizeRoute(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("X-Forwarded-For", "10.0.0.1, 10.0.0.2")
	if got := clientIP(r); got != "10.0.0.1" {
		t.Fatalf("expected first forwarded address, got %q", got)
	}
}

func TestRateLimitIsPerClient(t *testing.T) {
	handler := rateLimitMiddleware(1, 1, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	for _, addr := range []string{"10.0.0.1:5000", "10.0.0.2:5000"} {
		r := httptest.NewRequest(http.MethodGet, "/search", nil)
		r.RemoteAddr = addr
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, r)
		if rec.Code != http.StatusNoContent {
			t.Fatalf("client %s: expected its own bucket, got %d", addr, rec.Code)
		}
	}
}

func TestClip(t *testing.T) {
	if got := clip("abcdefgh", 6); got != "abc..." {
		t.Fatalf("clip = %q", got)
	}
	if got := clip("abc", 6); got != "abc" {
		t.Fatalf("clip = %q", got)
	}
}
