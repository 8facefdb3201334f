package middleware

import (
	"net"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/ssharvesh-steep/cracoe-social-media/internal/metrics"
	"github.com/ssharvesh-steep/cracoe-social-media/internal/store"
)

// RateLimiter enforces a per-caller request budget backed by Redis. It runs
// before authentication, so callers are keyed by client IP (RealIP has
// already substituted forwarded addresses).
type RateLimiter struct {
	redis  *store.RedisStore
	limit  int
	logger zerolog.Logger
}

// NewRateLimiter creates a rate limiter allowing limit requests per minute.
func NewRateLimiter(redis *store.RedisStore, limit int, logger zerolog.Logger) *RateLimiter {
	return &RateLimiter{redis: redis, limit: limit, logger: logger}
}

// Middleware applies the rate limit. When Redis is unavailable the request
// is allowed through; availability beats strict limiting here.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rl.redis == nil {
			next.ServeHTTP(w, r)
			return
		}

		key := callerKey(r)

		allowed, err := rl.redis.CheckRateLimit(r.Context(), key, rl.limit)
		if err != nil {
			rl.logger.Warn().Err(err).Msg("rate limit check failed, allowing request")
			next.ServeHTTP(w, r)
			return
		}

		if !allowed {
			metrics.RateLimitHits.WithLabelValues(normalizePath(r.URL.Path)).Inc()
			w.Header().Set("Retry-After", "60")
			jsonError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		if err := rl.redis.IncrementRateLimit(r.Context(), key); err != nil {
			rl.logger.Warn().Err(err).Msg("rate limit increment failed")
		}

		next.ServeHTTP(w, r)
	})
}

// callerKey is the client IP. RemoteAddr carries host:port; keeping the port
// would give every connection its own budget.
func callerKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return "ip:" + r.RemoteAddr
	}
	return "ip:" + host
}
