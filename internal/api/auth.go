package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// AccessKeyHeader carries the API access key.
const AccessKeyHeader = "X-Access-Key"

// AuthEnabled checks if an access key is required
func (s *Server) AuthEnabled() bool {
	return s.cfg.AccessKey != ""
}

// IsAuthenticated checks the request's access key from the header or the
// key query parameter.
func (s *Server) IsAuthenticated(r *http.Request) bool {
	if !s.AuthEnabled() {
		return true
	}

	key := r.Header.Get(AccessKeyHeader)
	if key == "" {
		key = r.URL.Query().Get("key")
	}
	if key == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(key), []byte(s.cfg.AccessKey)) == 1
}

// authMiddleware rejects requests without a valid access key
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/health") || r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		if !s.IsAuthenticated(r) {
			writeError(w, http.StatusUnauthorized, "unauthorized", "access key required")
			return
		}

		next.ServeHTTP(w, r)
	})
}
