package middleware

import (
	"fmt"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/volunteer-hours-api/internal/service"
	"github.com/noah-isme/volunteer-hours-api/pkg/config"
	appErrors "github.com/noah-isme/volunteer-hours-api/pkg/errors"
	"github.com/noah-isme/volunteer-hours-api/pkg/logger"
	"github.com/noah-isme/volunteer-hours-api/pkg/ratelimit"
	"github.com/noah-isme/volunteer-hours-api/pkg/response"
)

// RateLimiter builds per-scope throttling middleware over a shared limiter.
type RateLimiter struct {
	limiter ratelimit.Limiter
	cfg     config.RateLimitConfig
	metrics *service.MetricsService
	logger  *zap.Logger
	now     func() time.Time
}

// NewRateLimiter constructs a RateLimiter. A nil limiter or a disabled config
// lets every request through.
func NewRateLimiter(limiter ratelimit.Limiter, cfg config.RateLimitConfig, metrics *service.MetricsService, log *zap.Logger) *RateLimiter {
	if log == nil {
		log = zap.NewNop()
	}
	return &RateLimiter{limiter: limiter, cfg: cfg, metrics: metrics, logger: log, now: time.Now}
}

// Limit throttles requests of scope per authenticated subject, or per client
// IP for anonymous callers. Limiter failures fail open.
func (r *RateLimiter) Limit(scope string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if r == nil || r.limiter == nil || !r.cfg.Enabled {
			c.Next()
			return
		}
		rule := r.cfg.Rule(scope)
		if rule.Limit <= 0 || rule.Window <= 0 {
			c.Next()
			return
		}

		clientID := "ip:" + c.ClientIP()
		if actor, ok := ActorFromContext(c); ok && actor.SubjectID != "" {
			clientID = "sub:" + actor.SubjectID
		}

		decision, err := r.limiter.Allow(c.Request.Context(), scope, clientID, rule.Limit, rule.Window)
		if err != nil {
			logger.WithContext(c.Request.Context(), r.logger).Warn("rate limiter unavailable, allowing request",
				zap.String("scope", scope),
				zap.Error(err),
			)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
		if decision.Allowed {
			c.Next()
			return
		}

		r.metrics.RecordRateLimited(scope)
		retryAfter := int(decision.RetryAfter(r.now()) / time.Second)
		response.Error(c, appErrors.WithDetails(
			appErrors.Clone(appErrors.ErrRateLimited, fmt.Sprintf("too many %s requests, retry in %d second(s)", scope, retryAfter)),
			map[string]interface{}{response.RetryAfterDetail: retryAfter, "scope": scope},
		))
		c.Abort()
	}
}
