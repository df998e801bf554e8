package middleware

import (
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/procur/backend/internal/config"
	"github.com/procur/backend/pkg/logger"
	"github.com/procur/backend/pkg/utils"
	"golang.org/x/time/rate"
)

// RateLimiter keeps a token bucket per client IP. It runs before the
// identity resolver so credential-guessing traffic is rejected without
// touching the user table.
type RateLimiter struct {
	mu       sync.Mutex
	buckets  map[string]*clientBucket
	rps      rate.Limit
	burst    int
	maxIdle  time.Duration
	lastScan time.Time
}

type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewRateLimiter(cfg config.RateLimitConfig) *RateLimiter {
	return &RateLimiter{
		buckets: make(map[string]*clientBucket),
		rps:     rate.Limit(cfg.RequestsPerSecond),
		burst:   cfg.Burst,
		maxIdle: 10 * time.Minute,
	}
}

func (r *RateLimiter) Handle(c *fiber.Ctx) error {
	if !r.allow(c.IP()) {
		logger.Warn("rate_limit_exceeded", map[string]interface{}{
			"ip":   c.IP(),
			"path": c.Path(),
		})
		return utils.Error(c, fiber.StatusTooManyRequests, "too many requests")
	}
	return c.Next()
}

func (r *RateLimiter) allow(ip string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	if now.Sub(r.lastScan) > r.maxIdle {
		for key, bucket := range r.buckets {
			if now.Sub(bucket.lastSeen) > r.maxIdle {
				delete(r.buckets, key)
			}
		}
		r.lastScan = now
	}

	bucket, ok := r.buckets[ip]
	if !ok {
		bucket = &clientBucket{limiter: rate.NewLimiter(r.rps, r.burst)}
		r.buckets[ip] = bucket
	}
	bucket.lastSeen = now
	return bucket.limiter.Allow()
}
