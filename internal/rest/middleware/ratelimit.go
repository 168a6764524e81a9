package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/quotaflow/quotaflow/internal/config"
	ierr "github.com/quotaflow/quotaflow/internal/errors"
)

// RateLimitMiddleware applies a process-wide token bucket to all requests
func RateLimitMiddleware(cfg *config.Configuration) gin.HandlerFunc {
	if !cfg.RateLimit.Enabled {
		return func(c *gin.Context) {
			c.Next()
		}
	}

	limiter := rate.NewLimiter(rate.Limit(cfg.RateLimit.RPS), cfg.RateLimit.Burst)

	return func(c *gin.Context) {
		if !limiter.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, ierr.ErrorResponse{
				Error:      ierr.ErrCodeInternal,
				Message:    "Too many requests",
				StatusCode: http.StatusTooManyRequests,
			})
			return
		}
		c.Next()
	}
}
