package middleware

import (
	"github.com/gin-gonic/gin"

	"segportal/internal/pkg/response"
	"segportal/internal/session"
)

// RequireSession rejects requests without a live session. Handlers behind it
// read the binding with session.FromContext.
func RequireSession(issuer *session.Issuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, err := issuer.Current(c); err != nil {
			response.FromError(c, err)
			c.Abort()
			return
		}
		c.Next()
	}
}
