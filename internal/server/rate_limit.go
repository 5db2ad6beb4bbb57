package server

import (
	"context"
	"math"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/moviestore/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/moviestore/internal/observability/metrics"
	"github.com/smallbiznis/moviestore/internal/ratelimit"
	"go.uber.org/zap"
)

// TransactionRateLimit throttles rent and buy requests per user and holds a
// per-user, per-movie lock for the duration of the request.
func (s *Server) TransactionRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.txLimiter.Enabled() {
			c.Next()
			return
		}

		principal, ok := mustPrincipal(c)
		if !ok {
			return
		}
		userID := principal.UserID.String()
		endpoint := normalizeRateLimitEndpoint(c)
		ctx := c.Request.Context()

		result, err := s.txLimiter.AllowUser(ctx, userID)
		if err != nil {
			logger.FromContext(ctx).Warn("transaction rate limit check failed", zap.Error(err))
			AbortWithError(c, ErrServiceUnavailable)
			return
		}
		if !result.Allowed {
			retryAfter := int(math.Ceil(result.RetryAfter.Seconds()))
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			denyTransaction(c, endpoint, ratelimit.ReasonUserRate, s.obsMetrics)
			return
		}

		if movieID := strings.TrimSpace(c.Param("id")); movieID != "" {
			lease, err := s.txLimiter.AcquireMovie(ctx, userID, movieID)
			if err != nil {
				logger.FromContext(ctx).Warn("transaction lock failed", zap.Error(err))
				AbortWithError(c, ErrServiceUnavailable)
				return
			}
			if lease == nil {
				c.Header("Retry-After", "1")
				denyTransaction(c, endpoint, ratelimit.ReasonConcurrency, s.obsMetrics)
				return
			}
			defer func() {
				if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
					logger.FromContext(ctx).Warn("transaction unlock failed", zap.Error(err))
				}
			}()
		}

		if s.obsMetrics != nil {
			s.obsMetrics.RecordRateLimitAllowed(ctx, endpoint)
		}
		c.Next()
	}
}

func denyTransaction(c *gin.Context, endpoint, reason string, metrics *obsmetrics.Metrics) {
	ctx := c.Request.Context()
	logger.FromContext(ctx).Warn("transaction rate limit exceeded",
		zap.String("reason", reason),
		zap.String("endpoint", endpoint),
	)
	if metrics != nil {
		metrics.RecordRateLimitDenied(ctx, endpoint, reason)
	}
	c.Header("X-Rate-Limited-Reason", reason)
	AbortWithError(c, ErrRateLimited)
}

func normalizeRateLimitEndpoint(c *gin.Context) string {
	if c == nil {
		return "unknown"
	}
	endpoint := strings.TrimSpace(c.FullPath())
	if endpoint == "" {
		endpoint = strings.TrimSpace(c.Request.URL.Path)
	}
	if endpoint == "" {
		endpoint = "unknown"
	}
	return endpoint
}
