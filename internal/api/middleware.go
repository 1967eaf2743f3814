package api

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strconv"

	"rentacar/internal/metrics"
)

const (
	headerAPIKey  = "X-API-Key"
	headerStaffID = "X-Staff-ID"
)

type ctxKey int

const staffIDKey ctxKey = iota

func staffIDFrom(ctx context.Context) int64 {
	id, _ := ctx.Value(staffIDKey).(int64)
	return id
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	if s.limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requireAPIKey(next http.Handler) http.Handler {
	if s.apiKey == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(headerAPIKey)
		if subtle.ConstantTimeCompare([]byte(key), []byte(s.apiKey)) != 1 {
			writeError(w, http.StatusUnauthorized, "invalid api key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) public(endpoint string, h http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		metrics.IncHTTP(endpoint)
		h(w, r)
	})
}

// staff requires a numeric X-Staff-ID header. Whether the user actually is
// staff is decided by the access service.
func (s *Server) staff(endpoint string, h http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		metrics.IncHTTP(endpoint)
		id, err := strconv.ParseInt(r.Header.Get(headerStaffID), 10, 64)
		if err != nil || id <= 0 {
			writeError(w, http.StatusUnauthorized, "missing or invalid "+headerStaffID+" header")
			return
		}
		h(w, r.WithContext(context.WithValue(r.Context(), staffIDKey, id)))
	})
}
