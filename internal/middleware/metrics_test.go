package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

// =============================================================================
// Metrics Auth Middleware Tests
// =============================================================================

func metricsHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("metrics data"))
	})
}

func TestMetricsAuthMiddleware_AllowsValidCredentials(t *testing.T) {
	mw := NewMetricsAuthMiddleware("admin", "secret123")
	wrapped := mw.Handler(metricsHandler())

	req := httptest.NewRequest("GET", "/metrics", nil)
	req.SetBasicAuth("admin", "secret123")
	rec := httptest.NewRecorder()

	wrapped.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}
	if rec.Body.String() != "metrics data" {
		t.Errorf("expected body 'metrics data', got %q", rec.Body.String())
	}
}

func TestMetricsAuthMiddleware_RejectsNoCredentials(t *testing.T) {
	mw := NewMetricsAuthMiddleware("admin", "secret123")
	wrapped := mw.Handler(metricsHandler())

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()

	wrapped.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected status 401, got %d", rec.Code)
	}
	if wwwAuth := rec.Header().Get("WWW-Authenticate"); wwwAuth != `Basic realm="metrics"` {
		t.Errorf("unexpected WWW-Authenticate header: %q", wwwAuth)
	}
}

func TestMetricsAuthMiddleware_RejectsBadCredentials(t *testing.T) {
	mw := NewMetricsAuthMiddleware("admin", "secret123")
	wrapped := mw.Handler(metricsHandler())

	tests := []struct {
		name string
		user string
		pass string
		want int
	}{
		{name: "correct", user: "admin", pass: "secret123", want: http.StatusOK},
		{name: "wrong password", user: "admin", pass: "wrong", want: http.StatusUnauthorized},
		{name: "wrong username", user: "wrong", pass: "secret123", want: http.StatusUnauthorized},
		{name: "both wrong", user: "wrong", pass: "wrong", want: http.StatusUnauthorized},
		{name: "empty", user: "", pass: "", want: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/metrics", nil)
			req.SetBasicAuth(tt.user, tt.pass)
			rec := httptest.NewRecorder()

			wrapped.ServeHTTP(rec, req)

			if rec.Code != tt.want {
				t.Errorf("user=%q pass=%q: expected %d, got %d", tt.user, tt.pass, tt.want, rec.Code)
			}
		})
	}
}

func TestMetricsAuthMiddleware_RejectsMalformedAuth(t *testing.T) {
	mw := NewMetricsAuthMiddleware("admin", "secret123")
	wrapped := mw.Handler(metricsHandler())

	req := httptest.NewRequest("GET", "/metrics", nil)
	req.Header.Set("Authorization", "Basic notvalidbase64!!!")
	rec := httptest.NewRecorder()

	wrapped.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected status 401, got %d", rec.Code)
	}
}

func TestMetricsAuthMiddleware_DisabledWhenNoCredentials(t *testing.T) {
	// When both user and pass are empty, auth should be disabled
	mw := NewMetricsAuthMiddleware("", "")

	handlerCalled := false
	wrapped := mw.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCalled = true
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()

	wrapped.ServeHTTP(rec, req)

	if !handlerCalled {
		t.Error("expected handler to be called when auth is disabled")
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200 when auth is disabled, got %d", rec.Code)
	}
}
