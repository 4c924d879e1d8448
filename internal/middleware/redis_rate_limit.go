package middleware

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/geoaware/backend/internal/cache"
	"github.com/geoaware/backend/internal/logger"
	"github.com/geoaware/backend/internal/metrics"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RedisRateLimitMiddleware is a fixed-window limiter shared across API
// instances. With a nil store it falls back to the in-memory limiter.
func RedisRateLimitMiddleware(store cache.Store, config RateLimitConfig) gin.HandlerFunc {
	if store == nil {
		return NewRateLimiter(config)
	}
	if config.KeyFunc == nil {
		config.KeyFunc = func(c *gin.Context) string { return c.ClientIP() }
	}

	return func(c *gin.Context) {
		key := fmt.Sprintf("rate_limit:%s:%s", c.FullPath(), config.KeyFunc(c))
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		count, err := store.IncrWithExpire(ctx, key, config.Window)
		if err != nil {
			// Fail closed: an unreachable limiter must not open the API
			logger.Log.Error("Rate limit check failed", logger.WithIP(c.ClientIP()), zap.Error(err))
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
				"error":   "SERVICE_UNAVAILABLE",
				"message": "Service temporarily unavailable",
			})
			return
		}

		if count > int64(config.Limit) {
			metrics.RecordRateLimitExceeded(c.FullPath(), c.Request.Method)
			logger.Log.Warn("Rate limit exceeded",
				logger.WithIP(c.ClientIP()),
				zap.Int("max_requests", config.Limit),
				zap.Int64("current_requests", count),
			)
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "RATE_LIMITED",
				"message":     "rate limit exceeded",
				"retry_after": config.Window.Seconds(),
			})
			return
		}

		c.Next()
	}
}
