package middleware

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/inkify/engine/internal/cache"
	"github.com/inkify/engine/internal/logger"
	"go.uber.org/zap"
)

// RedisRateLimitMiddleware creates a distributed rate limiter using Redis
// so the limit holds across multiple instances
func RedisRateLimitMiddleware(maxRequests int, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		redisClient := cache.GetRedisClient()
		if redisClient == nil {
			// No Redis configured, let request through
			c.Next()
			return
		}

		clientIP := getClientIP(c.Request.RemoteAddr)
		key := fmt.Sprintf("rate_limit:%s", clientIP)
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		count, err := redisClient.IncrBy(ctx, key, 1)
		if err != nil {
			// A broken limiter that fails open leaves the API unprotected
			logger.Log.Error("rate limit check failed, rejecting request",
				zap.String("client_ip", clientIP),
				zap.Error(err),
			)
			c.AbortWithStatusJSON(503, gin.H{"error": "Service temporarily unavailable"})
			return
		}

		// First request in this window starts the clock
		if count == 1 {
			if err := redisClient.Expire(ctx, key, window); err != nil {
				logger.Log.Warn("failed to set rate limit expiration",
					zap.String("client_ip", clientIP),
					zap.Error(err),
				)
			}
		}

		if count > int64(maxRequests) {
			logger.Log.Warn("rate limit exceeded",
				zap.String("client_ip", clientIP),
				zap.Int("max_requests", maxRequests),
				zap.Int64("current_requests", count),
			)
			c.AbortWithStatusJSON(429, gin.H{
				"error":       "rate limit exceeded",
				"retry_after": window.Seconds(),
			})
			return
		}

		c.Next()
	}
}

// getClientIP extracts the client IP from RemoteAddr
func getClientIP(remoteAddr string) string {
	if ip, _, err := net.SplitHostPort(remoteAddr); err == nil {
		return ip
	}
	return remoteAddr
}
