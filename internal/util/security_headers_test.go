package util

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestWithSecurityHeaders(t *testing.T) {
	tests := []struct {
		name         string
		forwardProto string
		handlerCache string
		wantHSTS     bool
		wantCache    string
	}{
		{name: "plain http", wantCache: "no-store"},
		{name: "forwarded https", forwardProto: "HTTPS", wantHSTS: true, wantCache: "no-store"},
		{name: "handler overrides cache", handlerCache: "public, max-age=300", wantCache: "public, max-age=300"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := WithSecurityHeaders(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				if tc.handlerCache != "" {
					w.Header().Set("Cache-Control", tc.handlerCache)
				}
				w.WriteHeader(http.StatusNoContent)
			}))
			req := httptest.NewRequest(http.MethodGet, "/auth/jwks", nil)
			if tc.forwardProto != "" {
				req.Header.Set("X-Forwarded-Proto", tc.forwardProto)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			for header, want := range map[string]string{
				"X-Content-Type-Options":       "nosniff",
				"X-Frame-Options":              "DENY",
				"Referrer-Policy":              "no-referrer",
				"Cross-Origin-Resource-Policy": "same-site",
				"Cache-Control":                tc.wantCache,
			} {
				if got := rec.Header().Get(header); got != want {
					t.Fatalf("%s = %q, want %q", header, got, want)
				}
			}
			if rec.Header().Get("Content-Security-Policy") == "" {
				t.Fatalf("expected CSP header")
			}
			if got := rec.Header().Get("Strict-Transport-Security") != ""; got != tc.wantHSTS {
				t.Fatalf("HSTS present = %v, want %v", got, tc.wantHSTS)
			}
		})
	}
}
