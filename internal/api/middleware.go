package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
)

// apiKeyHeader carries the shared secret.
const apiKeyHeader = "X-API-KEY"

var errUnauthorized = errors.New("api: missing or invalid API key")

// requireKey rejects requests whose X-API-KEY does not match. The
// comparison runs in constant time.
func (s *Server) requireKey(next http.Handler) http.Handler {
	if s.apiKey == "" {
		return next
	}
	want := []byte(s.apiKey)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := []byte(r.Header.Get(apiKeyHeader))
		if subtle.ConstantTimeCompare(got, want) != 1 {
			writeError(w, r, http.StatusUnauthorized, errUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withTimeout bounds the request context with the configured timeout.
func (s *Server) withTimeout(next http.HandlerFunc) http.Handler {
	if s.timeout <= 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
		defer cancel()
		next(w, r.WithContext(ctx))
	})
}
