package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
)

// RateLimitConfig holds sliding-window rate limiting configuration. The
// planning endpoint is the only one guarded by this limiter (it is the
// single call that dispatches to the road service and spawns the solver
// subprocess), so only the sliding-window strategy the teacher's
// rate_limiter.go offers survives the trim — fixed-window, token-bucket and
// leaky-bucket were sized for a multi-tenant CRUD API's many endpoints.
type RateLimitConfig struct {
	Requests int           // Number of requests allowed per window
	Window   time.Duration // Sliding window size
	KeyFunc  KeyFunc       // Function to generate the rate limit key
	SkipFunc SkipFunc      // Function to skip rate limiting
}

// KeyFunc generates a key for rate limiting.
type KeyFunc func(c *gin.Context) string

// SkipFunc determines if rate limiting should be skipped.
type SkipFunc func(c *gin.Context) bool

// RateLimitInfo contains rate limit information returned to the caller.
type RateLimitInfo struct {
	Limit      int
	Remaining  int
	Reset      time.Time
	RetryAfter time.Duration
}

// RateLimiter provides Redis-backed sliding-window rate limiting.
type RateLimiter struct {
	redis  *redis.Client
	config *RateLimitConfig
}

// NewRateLimiter creates a new rate limiter.
func NewRateLimiter(redis *redis.Client, config *RateLimitConfig) *RateLimiter {
	if config.KeyFunc == nil {
		config.KeyFunc = DefaultKeyFunc
	}
	if config.SkipFunc == nil {
		config.SkipFunc = DefaultSkipFunc
	}

	return &RateLimiter{
		redis:  redis,
		config: config,
	}
}

// DefaultKeyFunc keys by the calling service's token subject when the auth
// middleware ran, falling back to client IP. There is no per-user concept
// in this service — only per-calling-service bearer tokens.
func DefaultKeyFunc(c *gin.Context) string {
	if serviceName, exists := c.Get("subject"); exists {
		return fmt.Sprintf("rate_limit:service:%v", serviceName)
	}
	return fmt.Sprintf("rate_limit:ip:%s", c.ClientIP())
}

// DefaultSkipFunc skips health and metrics endpoints.
func DefaultSkipFunc(c *gin.Context) bool {
	path := c.Request.URL.Path
	return len(path) >= 7 && path[:7] == "/health" || len(path) >= 8 && path[:8] == "/metrics"
}

// Middleware returns a Gin middleware enforcing the sliding-window limit.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if rl.config.SkipFunc(c) {
			c.Next()
			return
		}

		key := rl.config.KeyFunc(c)

		allowed, info, err := rl.checkSlidingWindow(c.Request.Context(), key)
		if err != nil {
			// Redis is not on the critical path for correctness here: fail open
			// rather than block planning requests on a cache outage.
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(info.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(info.Remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(info.Reset.Unix(), 10))

		if !allowed {
			c.Header("Retry-After", strconv.Itoa(int(info.RetryAfter.Seconds())))
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":       "Rate limit exceeded",
				"message":     "Too many planning requests. Please try again later.",
				"retry_after": info.RetryAfter.Seconds(),
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

// checkSlidingWindow implements sliding window rate limiting using a Redis
// sorted set keyed by request timestamp, exactly the teacher's approach.
func (rl *RateLimiter) checkSlidingWindow(ctx context.Context, key string) (bool, *RateLimitInfo, error) {
	now := time.Now()
	windowStart := now.Add(-rl.config.Window)
	zsetKey := fmt.Sprintf("%s:sliding", key)

	rl.redis.ZRemRangeByScore(ctx, zsetKey, "0", strconv.FormatInt(windowStart.UnixNano(), 10))

	count, err := rl.redis.ZCard(ctx, zsetKey).Result()
	if err != nil {
		return false, nil, err
	}

	if int(count) >= rl.config.Requests {
		oldest, err := rl.redis.ZRangeWithScores(ctx, zsetKey, 0, 0).Result()
		if err != nil {
			return false, nil, err
		}

		resetTime := now.Add(rl.config.Window)
		if len(oldest) > 0 {
			resetTime = time.Unix(0, int64(oldest[0].Score)).Add(rl.config.Window)
		}

		return false, &RateLimitInfo{
			Limit:      rl.config.Requests,
			Remaining:  0,
			Reset:      resetTime,
			RetryAfter: resetTime.Sub(now),
		}, nil
	}

	rl.redis.ZAdd(ctx, zsetKey, &redis.Z{
		Score:  float64(now.UnixNano()),
		Member: now.UnixNano(),
	})
	rl.redis.Expire(ctx, zsetKey, rl.config.Window)

	return true, &RateLimitInfo{
		Limit:      rl.config.Requests,
		Remaining:  rl.config.Requests - int(count) - 1,
		Reset:      now.Add(rl.config.Window),
		RetryAfter: 0,
	}, nil
}

// ResetRateLimit clears the sliding window for a key, useful in tests.
func (rl *RateLimiter) ResetRateLimit(ctx context.Context, key string) error {
	return rl.redis.Del(ctx, fmt.Sprintf("%s:sliding", key)).Err()
}
