package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/Baaaki/parley/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type RateLimiterConfig struct {
	MaxRequests int           // requests allowed per window
	Window      time.Duration // counting window
	BlockTime   time.Duration // lockout once the limit is exceeded
}

// RateLimiter is a fixed-window counter per client IP kept in Redis, so every
// instance shares the same budget.
type RateLimiter struct {
	redis  *redis.Client
	config RateLimiterConfig
}

func NewRateLimiter(redisClient *redis.Client, config RateLimiterConfig) *RateLimiter {
	return &RateLimiter{redis: redisClient, config: config}
}

// Middleware fails open: when Redis errors, the request goes through.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		allowed, retryAfter, err := rl.CheckLimit(c.Request.Context(), c.ClientIP())
		if err != nil {
			logger.Log.Warn("Rate limiter unavailable", zap.Error(err))
			c.Next()
			return
		}

		if !allowed {
			secs := int(retryAfter.Seconds())
			c.Header("Retry-After", strconv.Itoa(secs))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "too many requests",
				"retry_after": secs,
			})
			return
		}
		c.Next()
	}
}

// CheckLimit counts one request for client. Once the count passes
// MaxRequests the client is blocked for BlockTime, regardless of the window.
func (rl *RateLimiter) CheckLimit(ctx context.Context, client string) (bool, time.Duration, error) {
	blockKey := fmt.Sprintf("ratelimit:block:%s", client)
	if ttl, err := rl.redis.TTL(ctx, blockKey).Result(); err != nil {
		return false, 0, err
	} else if ttl > 0 {
		return false, ttl, nil
	}

	key := fmt.Sprintf("ratelimit:%s", client)
	count, err := rl.redis.Incr(ctx, key).Result()
	if err != nil {
		return false, 0, err
	}
	if count == 1 {
		if err := rl.redis.Expire(ctx, key, rl.config.Window).Err(); err != nil {
			return false, 0, err
		}
	}

	if count <= int64(rl.config.MaxRequests) {
		return true, 0, nil
	}

	if rl.config.BlockTime > 0 {
		if err := rl.redis.Set(ctx, blockKey, 1, rl.config.BlockTime).Err(); err != nil {
			return false, 0, err
		}
		return false, rl.config.BlockTime, nil
	}

	ttl, err := rl.redis.TTL(ctx, key).Result()
	if err != nil || ttl <= 0 {
		ttl = rl.config.Window
	}
	return false, ttl, nil
}
