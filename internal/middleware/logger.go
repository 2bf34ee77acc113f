package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gin-gonic/gin"

	"segportal/internal/pkg/logger"
	"segportal/internal/session"
)

// RequestLogger logs every request and recovers from panics. Errors attached
// with c.Error carry the detail that 5xx responses hide from clients.
func RequestLogger(log *logger.Logger) gin.HandlerFunc {
	if log == nil {
		log = logger.NewNop()
	}
	log = log.With("component", "http")

	return func(c *gin.Context) {
		start := time.Now()
		defer func() {
			if recovered := recover(); recovered != nil {
				log.Error("panic recovered",
					append(requestFields(c, start), "error", fmt.Sprintf("%v", recovered), "stack", string(debug.Stack()))...)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"success": false,
					"code":    "INTERNAL_ERROR",
					"error":   "Internal server error",
				})
				return
			}

			fields := requestFields(c, start)
			if len(c.Errors) > 0 {
				fields = append(fields, "errors", c.Errors.Errors())
			}
			switch status := c.Writer.Status(); {
			case status >= http.StatusInternalServerError:
				log.Error("request failed", fields...)
			case status >= http.StatusBadRequest:
				log.Warn("request rejected", fields...)
			default:
				log.Info("request", fields...)
			}
		}()

		c.Next()
	}
}

func requestFields(c *gin.Context, start time.Time) []interface{} {
	fields := []interface{}{
		"status", c.Writer.Status(),
		"method", c.Request.Method,
		"path", c.Request.URL.Path,
		"client_ip", c.ClientIP(),
		"latency", time.Since(start).String(),
	}
	if id := requestID(c); id != "" {
		fields = append(fields, "request_id", id)
	}
	if b, ok := session.FromContext(c); ok {
		fields = append(fields, "username", b.Username)
	}
	return fields
}

func requestID(c *gin.Context) string {
	return c.GetHeader("X-Request-ID")
}
