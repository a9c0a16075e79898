package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/unihall/attendance-api/internal/audit"
	"github.com/unihall/attendance-api/internal/models"
)

// Audit records an audit event after a successful state-changing request.
// Failed requests (status >= 400) are not recorded.
func Audit(recorder audit.Recorder, component, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now().UTC()
		c.Next()

		if recorder == nil || c.Writer.Status() >= 400 {
			return
		}

		var actorID *string
		if claims, ok := c.Get(ContextUserKey); ok {
			if typed, ok := claims.(*models.JWTClaims); ok {
				actorID = &typed.UserID
			}
		}

		recorder.Record(c.Request.Context(), audit.Event{
			Component:  component,
			Action:     action,
			ActorID:    actorID,
			TargetType: "http_request",
			TargetID:   c.FullPath(),
			Detail: map[string]interface{}{
				"method":     c.Request.Method,
				"status":     c.Writer.Status(),
				"latency_ms": time.Since(start).Milliseconds(),
			},
			IPAddress: c.ClientIP(),
		})
	}
}
