package util

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestWithRequestID(t *testing.T) {
	tests := []struct {
		name     string
		incoming string
		keep     bool
	}{
		{"propagates incoming", "req-incoming-123", true},
		{"generates when missing", "", false},
		{"replaces oversized", strings.Repeat("x", maxRequestIDLength+1), false},
		{"replaces control characters", "bad\x01id", false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var seen string
			handler := WithRequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen = RequestIDFromContext(r.Context())
			}))
			req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
			if tc.incoming != "" {
				req.Header.Set("X-Request-Id", tc.incoming)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			got := rec.Header().Get("X-Request-Id")
			if got == "" || got != seen {
				t.Fatalf("header %q, context %q", got, seen)
			}
			if tc.keep != (got == tc.incoming) {
				t.Fatalf("request id = %q, incoming %q, keep %v", got, tc.incoming, tc.keep)
			}
		})
	}
}

func TestWithSecurityHeaders(t *testing.T) {
	h := WithSecurityHeaders(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/sessions/current", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	for header, want := range map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"Cache-Control":          "no-store",
	} {
		if got := rec.Header().Get(header); got != want {
			t.Fatalf("%s = %q, want %q", header, got, want)
		}
	}
	if got := rec.Header().Get("Strict-Transport-Security"); got != "" {
		t.Fatalf("unexpected HSTS on plain http: %q", got)
	}

	req.Header.Set("X-Forwarded-Proto", "https")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Header().Get("Strict-Transport-Security") == "" {
		t.Fatal("expected HSTS on forwarded https")
	}
}

func TestWithCORS(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	tests := []struct {
		name      string
		allowed   []string
		method    string
		origin    string
		wantAllow string
		wantCode  int
	}{
		{"open allowlist", nil, http.MethodGet, "https://app.example", "*", http.StatusOK},
		{"listed origin echoed", []string{"https://app.example"}, http.MethodGet, "https://app.example", "https://app.example", http.StatusOK},
		{"unlisted origin gets no headers", []string{"https://app.example"}, http.MethodGet, "https://evil.example", "", http.StatusOK},
		{"no origin header", []string{"https://app.example"}, http.MethodGet, "", "", http.StatusOK},
		{"preflight short-circuits", nil, http.MethodOptions, "https://app.example", "*", http.StatusNoContent},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, "/sessions", nil)
			if tc.origin != "" {
				req.Header.Set("Origin", tc.origin)
			}
			rec := httptest.NewRecorder()
			WithCORS(tc.allowed, next).ServeHTTP(rec, req)
			if rec.Code != tc.wantCode {
				t.Fatalf("status = %d, want %d", rec.Code, tc.wantCode)
			}
			if got := rec.Header().Get("Access-Control-Allow-Origin"); got != tc.wantAllow {
				t.Fatalf("allow origin = %q, want %q", got, tc.wantAllow)
			}
		})
	}
}

func TestOriginAllowed(t *testing.T) {
	if !OriginAllowed([]string{"*"}, "https://any.example") {
		t.Fatal("wildcard should admit any origin")
	}
	if !OriginAllowed([]string{"HTTPS://App.Example"}, "https://app.example") {
		t.Fatal("origin match is case-insensitive")
	}
	if OriginAllowed([]string{"https://app.example"}, "https://other.example") {
		t.Fatal("unlisted origin admitted")
	}
}

func TestWithRequestLogRecordsStatus(t *testing.T) {
	var hijackable bool
	h := WithRequestLog("chat", nil, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, hijackable = w.(http.Hijacker)
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusTeapot {
		t.Fatalf("status = %d", rec.Code)
	}
	if !hijackable {
		t.Fatal("wrapped writer must expose Hijack for stream upgrades")
	}
}
