package api

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"
)

// rateLimitWindow is the sliding window for counting requests.
const rateLimitWindow = time.Minute

// rateLimiter counts requests per client IP over a sliding window.
// It guards the unauthenticated magic-link endpoint, which would
// otherwise be a free email probe.
type rateLimiter struct {
	perMinute int
	hits      map[string][]time.Time
	mu        sync.Mutex
}

func newRateLimiter(perMinute int) *rateLimiter {
	return &rateLimiter{
		perMinute: perMinute,
		hits:      make(map[string][]time.Time),
	}
}

// allow records a hit for the key and reports whether it is within the limit.
func (l *rateLimiter) allow(key string) bool {
	now := time.Now()
	cutoff := now.Add(-rateLimitWindow)

	l.mu.Lock()
	defer l.mu.Unlock()

	recent := l.hits[key][:0]
	for _, t := range l.hits[key] {
		if t.After(cutoff) {
			recent = append(recent, t)
		}
	}

	if len(recent) >= l.perMinute {
		l.hits[key] = recent
		return false
	}

	l.hits[key] = append(recent, now)
	return true
}

// cleanExpired drops keys whose hits have all aged out of the window.
func (l *rateLimiter) cleanExpired() {
	cutoff := time.Now().Add(-rateLimitWindow)

	l.mu.Lock()
	defer l.mu.Unlock()

	for key, hits := range l.hits {
		if len(hits) == 0 || !hits[len(hits)-1].After(cutoff) {
			delete(l.hits, key)
		}
	}
}

// cleanLoop runs cleanExpired periodically until the context is cancelled.
func (l *rateLimiter) cleanLoop(ctx context.Context) {
	ticker := time.NewTicker(rateLimitWindow)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.cleanExpired()
		}
	}
}

// rateLimitMiddleware rejects requests over the per-IP limit with 429.
// Disabled limits pass everything through.
func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter == nil {
			next.ServeHTTP(w, r)
			return
		}
		if !s.limiter.allow(clientIP(r)) {
			writeRateLimited(w, "too many requests, slow down")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP returns the remote address without the port.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
