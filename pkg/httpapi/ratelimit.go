package httpapi

import (
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-redis/redis_rate/v10"

	"github.com/companionlabs/companion-go/pkg/cache"
	"github.com/companionlabs/companion-go/pkg/core"
)

const rateLimitKeyPrefix = "rl_companion:"

// rateLimit returns a per-IP sliding window limiter backed by the shared
// Redis connection. Limiter errors fail open: a broken Redis must not take
// the API down with it.
func (s *Server) rateLimit(redisCache *cache.Cache, cfg core.RateLimitConfig) func(http.Handler) http.Handler {
	limiter := redis_rate.NewLimiter(redisCache.Client())
	limit := redis_rate.Limit{
		Rate:   cfg.Max,
		Burst:  cfg.Max,
		Period: cfg.Window,
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r)

			res, err := limiter.Allow(r.Context(), rateLimitKeyPrefix+ip, limit)
			if err != nil {
				s.logger.Warn("rate limiter unavailable, allowing request", "err", err)
				next.ServeHTTP(w, r)
				return
			}

			if res.Allowed == 0 {
				secs := int(res.RetryAfter / time.Second)
				if secs < 1 {
					secs = 1
				}
				s.logger.Warn("rate limit exceeded", "ip", ip)
				w.Header().Set("Retry-After", fmt.Sprintf("%d", secs))
				writeJSON(w, http.StatusTooManyRequests, map[string]any{
					"error":      "Too Many Requests",
					"message":    fmt.Sprintf("Rate limit exceeded. Try again in %d seconds.", secs),
					"retryAfter": secs,
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// clientIP extracts the client address for rate-limit keying. RealIP has
// already rewritten RemoteAddr for proxied requests; for direct connections
// RemoteAddr is "ip:port", and the port must not split one client across
// buckets.
func clientIP(r *http.Request) string {
	addr := r.RemoteAddr
	if host, _, err := net.SplitHostPort(addr); err == nil {
		addr = host
	}
	if addr == "" {
		return "unknown"
	}
	return addr
}
