package server

import (
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ipLimiter tracks one client's token bucket and last activity.
type ipLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// rateLimiter applies a per-IP token bucket to protected endpoints.
// Idle entries are evicted by a background loop so the map stays bounded.
type rateLimiter struct {
	mu       sync.Mutex
	clients  map[string]*ipLimiter
	limit    rate.Limit
	burst    int
	log      *slog.Logger
	staleTTL time.Duration
}

// newRateLimiter returns the limiter and a stop function that halts its
// eviction goroutine.
func newRateLimiter(limit float64, burst int, log *slog.Logger) (*rateLimiter, func()) {
	if limit <= 0 {
		limit = 10
	}
	if burst <= 0 {
		burst = 20
	}
	rl := &rateLimiter{
		clients:  make(map[string]*ipLimiter),
		limit:    rate.Limit(limit),
		burst:    burst,
		log:      log,
		staleTTL: 3 * time.Minute,
	}
	done := make(chan struct{})
	go rl.evictLoop(done)
	var once sync.Once
	return rl, func() { once.Do(func() { close(done) }) }
}

func (rl *rateLimiter) evictLoop(done <-chan struct{}) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			rl.evictStale()
		}
	}
}

func (rl *rateLimiter) evictStale() {
	cutoff := time.Now().Add(-rl.staleTTL)
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for ip, c := range rl.clients {
		if c.lastSeen.Before(cutoff) {
			delete(rl.clients, ip)
		}
	}
}

func (rl *rateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	c, ok := rl.clients[ip]
	if !ok {
		c = &ipLimiter{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.clients[ip] = c
	}
	c.lastSeen = time.Now()
	return c.limiter.Allow()
}

func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		if !rl.allow(ip) {
			rl.log.Warn("rate limit exceeded", "remote", ip, "path", r.URL.Path)
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP strips the port from RemoteAddr; falls back to the raw value.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
