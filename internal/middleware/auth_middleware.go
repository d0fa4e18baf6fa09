package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/Baaaki/parley/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	userIDKey   = "user_id"
	TokenCookie = "token"
)

type Authenticator interface {
	Authenticate(ctx context.Context, token string) (uuid.UUID, error)
}

// Auth accepts "Authorization: Bearer <token>" or the token cookie and stores
// the normalized caller id in the context.
func Auth(auth Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}

		userID, err := auth.Authenticate(c.Request.Context(), token)
		if err != nil {
			if errors.Is(err, service.ErrAuthentication) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			} else {
				c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "temporarily unavailable"})
			}
			return
		}

		c.Set(userIDKey, userID)
		c.Next()
	}
}

// UserID returns the id stored by Auth.
func UserID(c *gin.Context) (uuid.UUID, bool) {
	v, ok := c.Get(userIDKey)
	if !ok {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok
}

func bearerToken(c *gin.Context) string {
	if header := c.GetHeader("Authorization"); header != "" {
		if token, ok := strings.CutPrefix(header, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
		return ""
	}
	if cookie, err := c.Cookie(TokenCookie); err == nil {
		return cookie
	}
	return ""
}
