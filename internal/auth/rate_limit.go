package auth

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

type rateLimitEntry struct {
	resetAt time.Time
	count   int
}

// RateLimiter applies a fixed window per client IP to the auth endpoints.
// The ceiling is the number of requests allowed per window; the request that
// crosses it is still counted, then rejected.
type RateLimiter struct {
	mu         sync.Mutex
	maxHits    int
	window     time.Duration
	entries    map[string]*rateLimitEntry
	maxEntries int
}

func NewRateLimiter(maxHits int, window time.Duration) *RateLimiter {
	if maxHits <= 0 {
		maxHits = 10
	}
	if window <= 0 {
		window = time.Minute
	}

	return &RateLimiter{
		maxHits:    maxHits,
		window:     window,
		entries:    make(map[string]*rateLimitEntry),
		maxEntries: 5000,
	}
}

func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowed, retryAfter := l.allow(clientIP(r), time.Now().UTC())
		if !allowed {
			seconds := int(retryAfter.Seconds())
			if seconds < 1 {
				seconds = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(seconds))
			writeJSON(w, http.StatusTooManyRequests, map[string]any{
				"error":      "too many requests, try again later",
				"retryAfter": seconds,
			})
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (l *RateLimiter) allow(ip string, now time.Time) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.entries[ip]
	if !ok || !now.Before(entry.resetAt) {
		entry = &rateLimitEntry{resetAt: now.Add(l.window)}
		l.entries[ip] = entry
	}

	entry.count++
	if entry.count > l.maxHits {
		return false, entry.resetAt.Sub(now)
	}

	// Bound memory: drop elapsed windows once the table grows large, and only
	// on a fresh entry so steady traffic does not pay on every request.
	if len(l.entries) > l.maxEntries && entry.count == 1 {
		for key, e := range l.entries {
			if !now.Before(e.resetAt) {
				delete(l.entries, key)
			}
		}
	}

	return true, 0
}

// clientIP resolves the caller address: first X-Forwarded-For entry, then
// X-Real-IP, then the transport peer address. Requests with none of these
// share the "unknown" bucket rather than being blocked.
func clientIP(r *http.Request) string {
	xForwardedFor := strings.TrimSpace(r.Header.Get("X-Forwarded-For"))
	if xForwardedFor != "" {
		ip := strings.TrimSpace(strings.Split(xForwardedFor, ",")[0])
		if ip != "" {
			return ip
		}
	}

	realIP := strings.TrimSpace(r.Header.Get("X-Real-IP"))
	if realIP != "" {
		return realIP
	}

	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}

	return "unknown"
}
