package middle

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mstgnz/paygate/infra/auth"
	"github.com/zoobzio/clockz"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("success"))
	})
}

func TestSessionMiddleware(t *testing.T) {
	verifier := auth.NewChainVerifier(auth.NewAPIKeyVerifier("test-api-key"))

	var seen *auth.Session
	handler := SessionMiddleware(verifier)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetSession(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name           string
		authHeader     string
		expectedStatus int
	}{
		{"Valid API key", "Bearer test-api-key", http.StatusOK},
		{"Invalid API key", "Bearer wrong-key", http.StatusUnauthorized},
		{"Missing Authorization header", "", http.StatusUnauthorized},
		{"Invalid format", "Basic test-api-key", http.StatusUnauthorized},
		{"Empty Bearer token", "Bearer ", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = nil
			req := httptest.NewRequest(http.MethodGet, "/v1/gateways", nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}

			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if w.Code != tt.expectedStatus {
				t.Errorf("Expected status %d, got %d", tt.expectedStatus, w.Code)
			}
			if tt.expectedStatus == http.StatusOK && (seen == nil || seen.Method != "api_key") {
				t.Errorf("Expected session in context, got %+v", seen)
			}
			if tt.expectedStatus != http.StatusOK && seen != nil {
				t.Errorf("Handler must not run for rejected requests")
			}
		})
	}
}

func TestSessionMiddleware_NoVerifiers(t *testing.T) {
	handler := SessionMiddleware(auth.NewChainVerifier())(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/v1/gateways", nil)
	req.Header.Set("Authorization", "Bearer anything")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 when no verifier is configured, got %d", w.Code)
	}
}

func TestGetSession_Empty(t *testing.T) {
	if GetSession(context.Background()) != nil {
		t.Error("Expected nil session")
	}
}

func TestPanicRecoveryMiddleware(t *testing.T) {
	handler := PanicRecoveryMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("Expected 500, got %d", w.Code)
	}
	if strings.Contains(w.Body.String(), "boom") {
		t.Errorf("Panic value must not leak: %s", w.Body.String())
	}
}

func TestSecurityHeadersMiddleware(t *testing.T) {
	w := httptest.NewRecorder()
	SecurityHeadersMiddleware()(okHandler()).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	for _, header := range []string{"X-Content-Type-Options", "X-Frame-Options", "Content-Security-Policy", "Strict-Transport-Security"} {
		if w.Header().Get(header) == "" {
			t.Errorf("Expected %s header", header)
		}
	}
}

func TestRequestValidationMiddleware(t *testing.T) {
	handler := RequestValidationMiddleware()(okHandler())

	tests := []struct {
		name        string
		method      string
		contentType string
		length      int64
		expected    int
	}{
		{"GET without body", http.MethodGet, "", 0, http.StatusOK},
		{"POST JSON", http.MethodPost, "application/json; charset=utf-8", 10, http.StatusOK},
		{"POST missing type", http.MethodPost, "", 10, http.StatusBadRequest},
		{"POST form", http.MethodPost, "application/x-www-form-urlencoded", 10, http.StatusUnsupportedMediaType},
		{"POST too large", http.MethodPost, "application/json", maxBodyBytes + 1, http.StatusRequestEntityTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/v1/payments", strings.NewReader("{}"))
			req.ContentLength = tt.length
			if tt.contentType != "" {
				req.Header.Set("Content-Type", tt.contentType)
			}

			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)
			if w.Code != tt.expected {
				t.Errorf("Expected %d, got %d", tt.expected, w.Code)
			}
		})
	}
}

func TestRateLimiter(t *testing.T) {
	clock := clockz.NewFakeClock()
	rl := NewRateLimiter(2, time.Minute, clock)

	if ok, remaining := rl.Allow("1.1.1.1"); !ok || remaining != 1 {
		t.Fatalf("first request: ok=%v remaining=%d", ok, remaining)
	}
	if ok, _ := rl.Allow("1.1.1.1"); !ok {
		t.Fatal("second request should pass")
	}
	if ok, _ := rl.Allow("1.1.1.1"); ok {
		t.Fatal("third request should be limited")
	}
	if ok, _ := rl.Allow("2.2.2.2"); !ok {
		t.Fatal("other clients have their own quota")
	}

	clock.Advance(time.Minute)
	if ok, _ := rl.Allow("1.1.1.1"); !ok {
		t.Fatal("quota resets after the window")
	}

	clock.Advance(3 * time.Minute)
	if removed := rl.Cleanup(); removed != 2 {
		t.Errorf("Expected 2 idle visitors removed, got %d", removed)
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	handler := RateLimitMiddleware(NewRateLimiter(1, time.Minute, clockz.NewFakeClock()))(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/v1/payments", nil)
	req.RemoteAddr = "10.0.0.1:1234"

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusOK || w.Header().Get("X-RateLimit-Limit") != "1" {
		t.Fatalf("unexpected first response: %d %v", w.Code, w.Header())
	}

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusTooManyRequests || w.Header().Get("Retry-After") != "60" {
		t.Errorf("Expected 429 with Retry-After, got %d %v", w.Code, w.Header())
	}
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name       string
		headers    map[string]string
		remoteAddr string
		expected   string
	}{
		{"forwarded list", map[string]string{"X-Forwarded-For": "203.0.113.1, 10.0.0.1"}, "10.0.0.2:80", "203.0.113.1"},
		{"real ip", map[string]string{"X-Real-IP": " 198.51.100.7 "}, "10.0.0.2:80", "198.51.100.7"},
		{"remote addr", nil, "192.0.2.5:5555", "192.0.2.5"},
		{"ipv6 localhost", nil, "[::1]:8080", "127.0.0.1"},
		{"no port", nil, "192.0.2.9", "192.0.2.9"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			if got := GetClientIP(req); got != tt.expected {
				t.Errorf("Expected %s, got %s", tt.expected, got)
			}
		})
	}
}

func TestRequestLoggingMiddleware_PassesBodyThrough(t *testing.T) {
	var body string
	handler := RequestLoggingMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := new(strings.Builder)
		_, _ = io.Copy(buf, r.Body)
		body = buf.String()
		w.WriteHeader(http.StatusBadRequest)
	}))

	req := httptest.NewRequest(http.MethodPost, "/v1/payments", strings.NewReader(`{"orderId":"o-1","metadata":{"cardToken":"tok"}}`))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if body != `{"orderId":"o-1","metadata":{"cardToken":"tok"}}` {
		t.Errorf("handler should receive the original body, got %q", body)
	}
	if w.Code != http.StatusBadRequest {
		t.Errorf("status must be preserved, got %d", w.Code)
	}
}
