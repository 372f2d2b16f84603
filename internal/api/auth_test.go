package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Nomadcxx/embress/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestAuthEnabled(t *testing.T) {
	tests := []struct {
		name     string
		key      string
		expected bool
	}{
		{name: "no key - auth disabled", key: "", expected: false},
		{name: "key set - auth enabled", key: "secret", expected: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := &Server{cfg: config.APIConfig{AccessKey: tt.key}}
			if got := server.AuthEnabled(); got != tt.expected {
				t.Errorf("AuthEnabled() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestIsAuthenticated(t *testing.T) {
	server := &Server{cfg: config.APIConfig{AccessKey: "secret"}}

	tests := []struct {
		name   string
		header string
		query  string
		want   bool
	}{
		{name: "header", header: "secret", want: true},
		{name: "query", query: "secret", want: true},
		{name: "wrong key", header: "nope", want: false},
		{name: "prefix of key", header: "secre", want: false},
		{name: "missing", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			url := "/api/v1/status"
			if tt.query != "" {
				url += "?key=" + tt.query
			}
			req := httptest.NewRequest(http.MethodGet, url, nil)
			if tt.header != "" {
				req.Header.Set(AccessKeyHeader, tt.header)
			}
			assert.Equal(t, tt.want, server.IsAuthenticated(req))
		})
	}
}

func TestAuthMiddleware(t *testing.T) {
	server := &Server{cfg: config.APIConfig{AccessKey: "secret"}}
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	h := server.authMiddleware(next)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/status", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code, "health is public")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
	req.Header.Set(AccessKeyHeader, "secret")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
