package httpapi

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	rateLimitKeyPrefix = "ratelimit:"
	rateLimitWindow    = time.Second
	errTooManyRequests = "too many requests"
)

// rateLimit enforces a fixed per-client-IP request budget per second
// using a Redis counter. Redis outages fail open so a cache incident
// never takes the API down with it.
func rateLimit(client *redis.Client, limitPerSecond int, logger *zap.Logger) gin.HandlerFunc {
	return func(ginContext *gin.Context) {
		key := fmt.Sprintf("%s%s:%d", rateLimitKeyPrefix, ginContext.ClientIP(), time.Now().Unix())

		pipe := client.TxPipeline()
		counter := pipe.Incr(ginContext.Request.Context(), key)
		pipe.Expire(ginContext.Request.Context(), key, rateLimitWindow)
		if _, err := pipe.Exec(ginContext.Request.Context()); err != nil {
			logger.Warn("rate limiter unavailable", zap.Error(err))
			ginContext.Next()
			return
		}
		if counter.Val() > int64(limitPerSecond) {
			abortWithError(ginContext, http.StatusTooManyRequests, errTooManyRequests)
			return
		}
		ginContext.Next()
	}
}
