// Package middleware provides Gin HTTP middleware for authentication, rate
// limiting, request ids, metrics and security headers.
//
// Middleware ordering is enforced in router.go:
//
//	Recovery → RequestID → Metrics → Logger → CORS → Security → Auth → RateLimit → Handler
//
// Auth runs before rate limiting on /api/v1 so that limits are keyed by the
// verified user rather than the client address.
package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/projecthub/projecthub/internal/auth"
	"github.com/projecthub/projecthub/internal/db/models"
)

// Context keys set by AuthMiddleware.
const (
	UserIDKey   = "user_id"
	UsernameKey = "username"
)

// UserLookup confirms that a verified identity still refers to a user.
// *repositories.UserRepository satisfies it.
type UserLookup interface {
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
}

// unauthorized is the single 401 body. It never says why.
var unauthorized = gin.H{"error": "unauthorized"}

// AuthMiddleware verifies the bearer token, loads the user and stores the
// identity in the context. Client-supplied identity fields are never read.
func AuthMiddleware(verifier auth.Verifier, users UserLookup) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := auth.BearerToken(c.GetHeader("Authorization"))
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, unauthorized)
			return
		}

		id, err := verifier.Verify(c.Request.Context(), token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, unauthorized)
			return
		}

		user, err := users.GetUserByID(c.Request.Context(), id.UserID)
		if err != nil {
			slog.Error("failed to load authenticated user", "user_id", id.UserID, "error", err)
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "service unavailable"})
			return
		}
		if user == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, unauthorized)
			return
		}

		c.Set(UserIDKey, user.ID)
		c.Set(UsernameKey, user.Username)
		c.Next()
	}
}

// UserID returns the authenticated user's id.
func UserID(c *gin.Context) (int64, bool) {
	v, ok := c.Get(UserIDKey)
	if !ok {
		return 0, false
	}
	id, ok := v.(int64)
	return id, ok && id > 0
}
