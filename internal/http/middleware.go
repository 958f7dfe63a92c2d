package http

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const userIDKey = "pulse.userID"

// SessionResolver maps a bearer token to an authenticated user id. The
// production implementation lives in internal/profile; tests use a static
// resolver.
type SessionResolver interface {
	Resolve(ctx context.Context, token string) (string, error)
}

// RequireUser authenticates the request via the session collaborator and
// stores the viewer id for handlers.
func RequireUser(sessions SessionResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}

		userID, err := sessions.Resolve(c.Request.Context(), token)
		if err != nil || userID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid session"})
			return
		}

		c.Set(userIDKey, userID)
		c.Next()
	}
}

// CurrentUserID returns the authenticated viewer id set by RequireUser.
func CurrentUserID(c *gin.Context) string {
	return c.GetString(userIDKey)
}

// SecurityHeadersMiddleware adds basic security headers.
func SecurityHeadersMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-Content-Type-Options", "nosniff")
		c.Next()
	}
}
