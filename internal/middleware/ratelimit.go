package middleware

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

// RateLimitMiddleware provides basic per-client rate limiting
type RateLimitMiddleware struct {
	requests map[string][]int64 // IP -> timestamps
	mu       sync.Mutex
	now      func() time.Time
	// lastSweep is when idle clients were last evicted.
	lastSweep int64
	// trusted holds proxy addresses whose forwarding headers are honoured.
	trusted map[string]struct{}
}

// NewRateLimitMiddleware creates a new rate limiting middleware.
// X-Forwarded-For and X-Real-IP are only read from requests whose remote
// address is one of trustedProxies.
func NewRateLimitMiddleware(trustedProxies ...string) *RateLimitMiddleware {
	trusted := make(map[string]struct{}, len(trustedProxies))
	for _, p := range trustedProxies {
		if p = strings.TrimSpace(p); p != "" {
			trusted[p] = struct{}{}
		}
	}
	return &RateLimitMiddleware{
		requests: make(map[string][]int64),
		now:      time.Now,
		trusted:  trusted,
	}
}

// RateLimit allows at most maxRequests per client within window.
func (m *RateLimitMiddleware) RateLimit(maxRequests int, window time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !m.allow(m.clientIP(r), maxRequests, window) {
				http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (m *RateLimitMiddleware) allow(client string, maxRequests int, window time.Duration) bool {
	now := m.now().UnixNano()
	windowStart := now - int64(window)

	m.mu.Lock()
	defer m.mu.Unlock()

	if now-m.lastSweep > int64(window) {
		m.sweepLocked(windowStart)
		m.lastSweep = now
	}

	valid := m.requests[client][:0]
	for _, ts := range m.requests[client] {
		if ts > windowStart {
			valid = append(valid, ts)
		}
	}
	if len(valid) >= maxRequests {
		m.requests[client] = valid
		return false
	}
	m.requests[client] = append(valid, now)
	return true
}

// sweepLocked drops clients with no request inside the window.
func (m *RateLimitMiddleware) sweepLocked(windowStart int64) {
	for client, stamps := range m.requests {
		if len(stamps) == 0 || stamps[len(stamps)-1] <= windowStart {
			delete(m.requests, client)
		}
	}
}

// clients returns how many clients are being tracked.
func (m *RateLimitMiddleware) clients() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// clientIP extracts the client IP from the request
func (m *RateLimitMiddleware) clientIP(r *http.Request) string {
	ip := r.RemoteAddr
	if host, _, err := net.SplitHostPort(ip); err == nil {
		ip = host
	}
	if _, ok := m.trusted[ip]; !ok {
		return ip
	}

	// Behind a trusted proxy, check for forwarded headers
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	if xr := r.Header.Get("X-Real-IP"); xr != "" {
		return xr
	}
	return ip
}
