package middleware

import (
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// =============================================================================
// Rate Limiter
// =============================================================================

// RateLimiter enforces a fixed-window request cap per key. Submissions are
// the only write-heavy endpoint, so a coarse per-IP window is enough.
type RateLimiter struct {
	limit  int
	window time.Duration
	logger *slog.Logger

	mu      sync.Mutex
	windows map[string]*window
}

type window struct {
	openedAt time.Time
	count    int
}

func (w *window) expired(now time.Time, d time.Duration) bool {
	return now.Sub(w.openedAt) > d
}

// NewRateLimiter creates a limiter allowing limit requests per window per
// key. A background sweep drops idle keys so the map stays bounded.
func NewRateLimiter(limit int, windowLen time.Duration, logger *slog.Logger) *RateLimiter {
	rl := &RateLimiter{
		limit:   limit,
		window:  windowLen,
		logger:  logger,
		windows: make(map[string]*window),
	}
	go rl.sweep()
	return rl
}

// Allow reports whether another request from key fits in the current
// window, counting it if so.
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	w, ok := rl.windows[key]
	if !ok || w.expired(now, rl.window) {
		rl.windows[key] = &window{openedAt: now, count: 1}
		return true
	}

	if w.count >= rl.limit {
		return false
	}
	w.count++
	return true
}

// Reset forgets all requests recorded for key.
func (rl *RateLimiter) Reset(key string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.windows, key)
}

// TimeUntilReset returns how long key must wait for a fresh window, zero if
// it can request now.
func (rl *RateLimiter) TimeUntilReset(key string) time.Duration {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	w, ok := rl.windows[key]
	if !ok {
		return 0
	}
	remaining := rl.window - time.Since(w.openedAt)
	if remaining < 0 {
		return 0
	}
	return remaining
}

func (rl *RateLimiter) sweep() {
	ticker := time.NewTicker(rl.window)
	defer ticker.Stop()

	for range ticker.C {
		now := time.Now()
		rl.mu.Lock()
		for key, w := range rl.windows {
			if w.expired(now, rl.window) {
				delete(rl.windows, key)
			}
		}
		rl.mu.Unlock()
	}
}

// =============================================================================
// Rate Limit Middleware
// =============================================================================

// RateLimitMiddleware applies a RateLimiter per client IP.
type RateLimitMiddleware struct {
	limiter *RateLimiter
	logger  *slog.Logger
}

func NewRateLimitMiddleware(limiter *RateLimiter, logger *slog.Logger) *RateLimitMiddleware {
	return &RateLimitMiddleware{limiter: limiter, logger: logger}
}

// Limit rejects over-limit requests with 429, a Retry-After header, and a
// JSON error body.
func (m *RateLimitMiddleware) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := getClientIP(r)

		if m.limiter.Allow(ip) {
			next.ServeHTTP(w, r)
			return
		}

		m.logger.Warn("rate limit exceeded",
			"ip", ip,
			"method", r.Method,
			"path", r.URL.Path,
		)

		retryAfter := int(m.limiter.TimeUntilReset(ip).Seconds())
		if retryAfter < 1 {
			retryAfter = 1
		}

		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"error":   "rate_limit_exceeded",
			"message": "Too many requests. Please try again later.",
		})
	})
}

// =============================================================================
// Helpers
// =============================================================================

// getClientIP resolves the originating client address, trusting proxy
// headers before RemoteAddr. X-Forwarded-For lists the client first.
func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
