package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRateLimiterCeiling(t *testing.T) {
	limiter := NewRateLimiter(10, time.Minute)
	now := time.Now().UTC()

	for i := 1; i <= 10; i++ {
		allowed, _ := limiter.allow("203.0.113.7", now)
		if !allowed {
			t.Fatalf("request %d should be allowed", i)
		}
	}

	allowed, retryAfter := limiter.allow("203.0.113.7", now)
	if allowed {
		t.Fatalf("11th request in the window should be rejected")
	}
	if retryAfter <= 0 || retryAfter > time.Minute {
		t.Fatalf("unexpected retryAfter: %v", retryAfter)
	}

	// A different IP has its own window.
	if allowed, _ := limiter.allow("198.51.100.1", now); !allowed {
		t.Fatalf("other IPs must not share the bucket")
	}
}

func TestRateLimiterWindowReset(t *testing.T) {
	limiter := NewRateLimiter(2, time.Minute)
	now := time.Now().UTC()

	limiter.allow("203.0.113.7", now)
	limiter.allow("203.0.113.7", now)
	if allowed, _ := limiter.allow("203.0.113.7", now.Add(30*time.Second)); allowed {
		t.Fatalf("expected rejection inside the window")
	}

	if allowed, _ := limiter.allow("203.0.113.7", now.Add(time.Minute)); !allowed {
		t.Fatalf("expected the first request of a fresh window to pass")
	}
}

func TestRateLimiterMiddleware(t *testing.T) {
	limiter := NewRateLimiter(2, time.Minute)
	handler := limiter.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	do := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
		req.Header.Set("X-Forwarded-For", "203.0.113.7")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	for i := 0; i < 2; i++ {
		if rec := do(); rec.Code != http.StatusOK {
			t.Fatalf("request %d: unexpected status %d", i+1, rec.Code)
		}
	}

	rec := do()
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatalf("expected a Retry-After header")
	}

	var body struct {
		Error      string `json:"error"`
		RetryAfter int    `json:"retryAfter"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Error == "" {
		t.Fatalf("expected an error message")
	}
	if body.RetryAfter < 1 || body.RetryAfter > 60 {
		t.Fatalf("unexpected retryAfter: %d", body.RetryAfter)
	}
}

func TestClientIPPrecedence(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
	req.RemoteAddr = "192.0.2.9:4567"

	if got := clientIP(req); got != "192.0.2.9:4567" {
		t.Fatalf("expected remote addr fallback, got %q", got)
	}

	req.Header.Set("X-Real-IP", "198.51.100.2")
	if got := clientIP(req); got != "198.51.100.2" {
		t.Fatalf("expected X-Real-IP to win over remote addr, got %q", got)
	}

	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	if got := clientIP(req); got != "203.0.113.7" {
		t.Fatalf("expected first X-Forwarded-For entry to win, got %q", got)
	}

	bare := &http.Request{Header: http.Header{}}
	if got := clientIP(bare); got != "unknown" {
		t.Fatalf("expected unknown sentinel, got %q", got)
	}
}
