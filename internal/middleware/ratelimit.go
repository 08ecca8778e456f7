package middleware

import (
	"context"
	"math"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"ghostworks/api/internal/apperr"
	"ghostworks/api/internal/metrics"
	"ghostworks/api/internal/ratelimit"
)

type RateLimiter interface {
	Allow(ctx context.Context, bucket, subject string, limit int) (ratelimit.Decision, error)
}

// RateLimit counts requests per bucket and subject. The subject is the
// authenticated user when claims are present, the client IP otherwise.
// Limiter failures let the request through.
func RateLimit(limiter RateLimiter, bucket string, limit int, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil || limit <= 0 {
			c.Next()
			return
		}

		subject := "ip:" + c.ClientIP()
		if claims, ok := ClaimsFrom(c); ok {
			subject = "user:" + claims.UserID
		}

		decision, err := limiter.Allow(c.Request.Context(), bucket, subject, limit)
		if err != nil {
			log.Warn().Err(err).Str("bucket", bucket).Msg("rate limiter unavailable, allowing request")
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(max(decision.Remaining, 0)))

		if !decision.Allowed {
			metrics.RateLimitRejectedTotal.WithLabelValues(bucket).Inc()
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(decision.RetryAfter.Seconds()))))
			AbortWithError(c, apperr.ErrRateLimited)
			return
		}
		c.Next()
	}
}
