package handler

import (
	"errors"
	"net/http"

	"github.com/Baaaki/parley/internal/service"
	"github.com/Baaaki/parley/pkg/logger"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// statusFor maps the service error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrEmailAlreadyExists), errors.Is(err, service.ErrUsernameAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, service.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrAuthentication):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrAuthorization):
		return http.StatusForbidden
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusServiceUnavailable
	}
}

// respondError writes err as {"error": ...}. Store failures are logged and
// never echoed to the client.
func respondError(c *gin.Context, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusServiceUnavailable {
		logger.Log.Error("Request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
		msg = "temporarily unavailable"
	}
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}
