package middleware

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/sakif/gradebox/internal/handler"
	"github.com/sakif/gradebox/internal/metrics"
)

// RateLimiter admits requests under a per-client token bucket and a cap on
// concurrent executions. Rejected requests get 429 immediately; nothing is
// queued.
type RateLimiter struct {
	rps   rate.Limit
	burst int

	mu      sync.Mutex
	clients map[string]*clientLimiter

	slots chan struct{}
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewRateLimiter(rps float64, burst, maxConcurrent int) *RateLimiter {
	return &RateLimiter{
		rps:     rate.Limit(rps),
		burst:   burst,
		clients: make(map[string]*clientLimiter),
		slots:   make(chan struct{}, maxConcurrent),
	}
}

func (rl *RateLimiter) limiterFor(key string, now time.Time) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	c, ok := rl.clients[key]
	if !ok {
		c = &clientLimiter{limiter: rate.NewLimiter(rl.rps, rl.burst)}
		rl.clients[key] = c
	}
	c.lastSeen = now
	return c.limiter
}

// Prune drops limiters for clients idle longer than idle.
func (rl *RateLimiter) Prune(idle time.Duration) {
	cutoff := time.Now().Add(-idle)

	rl.mu.Lock()
	defer rl.mu.Unlock()
	for key, c := range rl.clients {
		if c.lastSeen.Before(cutoff) {
			delete(rl.clients, key)
		}
	}
}

// Middleware enforces the limits. Keys are the client IP; run it after
// chi's RealIP so proxies are accounted for.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.limiterFor(clientIP(r), time.Now()).Allow() {
			metrics.RateLimitHits.Inc()
			handler.WriteError(w, http.StatusTooManyRequests, "rate_limited", "too many requests")
			return
		}

		select {
		case rl.slots <- struct{}{}:
			defer func() { <-rl.slots }()
		default:
			metrics.RateLimitHits.Inc()
			handler.WriteError(w, http.StatusTooManyRequests, "busy", "too many concurrent executions")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
