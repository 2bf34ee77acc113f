package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"segportal/internal/pkg/apperr"
)

// Success writes a flat payload with "success": true merged in.
func Success(c *gin.Context, statusCode int, data gin.H) {
	body := gin.H{"success": true}
	for k, v := range data {
		body[k] = v
	}
	c.JSON(statusCode, body)
}

func Error(c *gin.Context, statusCode int, code string, message string) {
	c.JSON(statusCode, gin.H{
		"success": false,
		"code":    code,
		"error":   message,
	})
}

// FromError maps an error kind to its HTTP status. Server-side failures get a
// generic message; the detail is attached to the gin context for the logger.
func FromError(c *gin.Context, err error) {
	status, code := Status(err)
	msg := apperr.Message(err)
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
		msg = genericMessage(err)
	}
	Error(c, status, code, msg)
}

// Status maps the outermost error kind, so a processing failure caused by a
// missing artifact is still reported as a processing failure.
func Status(err error) (int, string) {
	switch apperr.KindOf(err) {
	case apperr.ErrValidation:
		return http.StatusBadRequest, "VALIDATION_ERROR"
	case apperr.ErrAuthentication:
		return http.StatusUnauthorized, "INVALID_CREDENTIALS"
	case apperr.ErrUnauthenticated:
		return http.StatusUnauthorized, "UNAUTHORIZED"
	case apperr.ErrForbidden:
		return http.StatusForbidden, "FORBIDDEN"
	case apperr.ErrNotFound:
		return http.StatusNotFound, "NOT_FOUND"
	case apperr.ErrConflict:
		return http.StatusConflict, "CONFLICT"
	case apperr.ErrTransport:
		return http.StatusInternalServerError, "PROVIDER_UNAVAILABLE"
	case apperr.ErrProtocol:
		return http.StatusInternalServerError, "PROVIDER_ERROR"
	case apperr.ErrPersistence:
		return http.StatusInternalServerError, "STORAGE_ERROR"
	case apperr.ErrProcessing:
		return http.StatusInternalServerError, "PROCESSING_FAILED"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR"
	}
}

func genericMessage(err error) string {
	switch apperr.KindOf(err) {
	case apperr.ErrTransport, apperr.ErrProtocol:
		return "Authentication provider is unavailable"
	case apperr.ErrPersistence:
		return "Storage is temporarily unavailable"
	case apperr.ErrProcessing:
		return apperr.Message(err)
	default:
		return "Internal server error"
	}
}
