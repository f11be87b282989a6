package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiterMiddleware holds the rate limiters for each client address.
type RateLimiterMiddleware struct {
	visitors map[string]*visitor
	mu       sync.Mutex
	// Rate is the number of events per second.
	rate rate.Limit
	// Burst is the burst size.
	burst int
	// trustProxy keys clients on X-Forwarded-For instead of the peer address.
	trustProxy bool
	now        func() time.Time
	log        *zap.Logger
}

// NewRateLimiterMiddleware creates a new RateLimiterMiddleware. Only set
// trustProxy when every request arrives through a proxy that overwrites
// X-Forwarded-For.
func NewRateLimiterMiddleware(r rate.Limit, b int, trustProxy bool, log *zap.Logger) *RateLimiterMiddleware {
	return &RateLimiterMiddleware{
		visitors:   make(map[string]*visitor),
		rate:       r,
		burst:      b,
		trustProxy: trustProxy,
		now:        time.Now,
		log:        log,
	}
}

// Middleware is the actual middleware handler.
func (rl *RateLimiterMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := ClientIP(r, rl.trustProxy)

		rl.mu.Lock()
		v, exists := rl.visitors[key]
		if !exists {
			v = &visitor{limiter: rate.NewLimiter(rl.rate, rl.burst)}
			rl.visitors[key] = v
		}
		v.lastSeen = rl.now()
		rl.mu.Unlock()

		if !v.limiter.Allow() {
			rl.log.Warn("rate limit exceeded", zap.String("client", key), zap.String("path", r.URL.Path))
			http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Sweep drops limiters not used for longer than idle and returns how many
// were removed.
func (rl *RateLimiterMiddleware) Sweep(idle time.Duration) int {
	cutoff := rl.now().Add(-idle)

	rl.mu.Lock()
	defer rl.mu.Unlock()
	removed := 0
	for key, v := range rl.visitors {
		if v.lastSeen.Before(cutoff) {
			delete(rl.visitors, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked clients.
func (rl *RateLimiterMiddleware) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.visitors)
}

// Run sweeps idle limiters every interval until ctx ends.
func (rl *RateLimiterMiddleware) Run(ctx context.Context, interval, idle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := rl.Sweep(idle); n > 0 {
				rl.log.Debug("evicted idle rate limiters", zap.Int("count", n))
			}
		}
	}
}

// ClientIP returns the peer host of r. With trustProxy it returns the first
// X-Forwarded-For hop when present.
func ClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			first, _, _ := strings.Cut(fwd, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
