// Package middleware provides the HTTP middleware stack: request logging,
// per-IP rate limiting, and basic auth for the metrics endpoint.
package middleware

import (
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// skipLogging lists endpoints polled by infrastructure; logging them would
// drown out real traffic.
var skipLogging = []string{"/health", "/metrics"}

// redactedParams are query parameter names whose values never reach the log.
var redactedParams = map[string]struct{}{
	"token":         {},
	"code":          {},
	"key":           {},
	"secret":        {},
	"password":      {},
	"api_key":       {},
	"apikey":        {},
	"access_token":  {},
	"refresh_token": {},
}

// RequestLoggingMiddleware emits one structured log line per request.
type RequestLoggingMiddleware struct {
	logger *slog.Logger
}

func NewRequestLoggingMiddleware(logger *slog.Logger) *RequestLoggingMiddleware {
	return &RequestLoggingMiddleware{logger: logger}
}

// Handler logs method, sanitized path, status, duration, and client IP for
// every request. Server errors log at warn.
func (m *RequestLoggingMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, prefix := range skipLogging {
			if strings.HasPrefix(r.URL.Path, prefix) {
				next.ServeHTTP(w, r)
				return
			}
		}

		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		level := slog.LevelInfo
		if wrapped.statusCode >= http.StatusInternalServerError {
			level = slog.LevelWarn
		}

		m.logger.Log(r.Context(), level, "request",
			"method", r.Method,
			"path", sanitizePath(r.URL.Path, r.URL.RawQuery),
			"status", wrapped.statusCode,
			"duration_ms", time.Since(start).Milliseconds(),
			"ip", getClientIP(r),
			"user_agent", r.UserAgent(),
		)
	})
}

// responseWriter captures the status code written by the handler.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// sanitizePath rebuilds path?query with credential-bearing values replaced,
// preserving parameter order. Malformed pairs are dropped.
func sanitizePath(path, rawQuery string) string {
	if rawQuery == "" {
		return path
	}

	var kept []string
	for _, pair := range strings.Split(rawQuery, "&") {
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) != 2 {
			continue
		}
		if _, sensitive := redactedParams[strings.ToLower(kv[0])]; sensitive {
			kept = append(kept, kv[0]+"=[REDACTED]")
			continue
		}
		kept = append(kept, pair)
	}

	if len(kept) == 0 {
		return path
	}
	return path + "?" + strings.Join(kept, "&")
}
