package middleware

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/volunteer-hours-api/internal/models"
	"github.com/noah-isme/volunteer-hours-api/pkg/logger"
	"github.com/noah-isme/volunteer-hours-api/pkg/middleware/requestid"
)

// AuditRecorder persists audit log entries.
type AuditRecorder interface {
	Create(ctx context.Context, log *models.AuditLog) error
}

// Audit creates a middleware that records audit logs after successful requests.
// The :id path parameter, when present, is stored as the resource id.
func Audit(recorder AuditRecorder, log *zap.Logger, action, resource string) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now().UTC()
		c.Next()

		if recorder == nil || c.Writer.Status() >= 400 {
			return
		}

		entry := &models.AuditLog{
			Action:    action,
			Resource:  resource,
			RequestID: requestid.Value(c),
			IPAddress: c.ClientIP(),
			UserAgent: c.GetHeader("User-Agent"),
			CreatedAt: start,
		}
		if actor, ok := ActorFromContext(c); ok {
			subject := actor.SubjectID
			role := string(actor.Role)
			entry.ActorID = &subject
			entry.ActorRole = &role
		}
		if id := c.Param("id"); id != "" {
			entry.ResourceID = &id
		}
		entry.Metadata, _ = json.Marshal(map[string]interface{}{
			"path":    c.FullPath(),
			"method":  c.Request.Method,
			"status":  c.Writer.Status(),
			"latency": time.Since(start).Milliseconds(),
		})

		if err := recorder.Create(c.Request.Context(), entry); err != nil {
			logger.WithContext(c.Request.Context(), log).Warn("audit log write failed",
				zap.String("action", action),
				zap.Error(err),
			)
		}
	}
}
