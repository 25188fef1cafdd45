package middleware

import (
	"context"
	"crypto/subtle"
	"strings"

	"barn-economy-backend/internal/common/errors"

	"github.com/gin-gonic/gin"
)

const (
	userIDKey      = "user_id"
	tokenKey       = "session_token"
	adminTokenHead = "X-Admin-Token"
)

// SessionResolver maps a bearer token to a user id.
type SessionResolver interface {
	Resolve(ctx context.Context, token string) (string, error)
}

// RequireAuth rejects requests without a valid bearer session.
func RequireAuth(resolver SessionResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := BearerToken(c)
		if token == "" {
			c.Error(errors.NewUnauthorizedError("missing bearer token"))
			c.Abort()
			return
		}

		userID, err := resolver.Resolve(c.Request.Context(), token)
		if err != nil {
			if appErr, ok := errors.AsAppError(err); ok {
				c.Error(appErr)
			} else {
				c.Error(errors.NewUnauthorizedError("invalid or expired session"))
			}
			c.Abort()
			return
		}

		c.Set(userIDKey, userID)
		c.Set(tokenKey, token)
		c.Next()
	}
}

// OptionalAuth attaches the user when a valid token is present and ignores
// missing or invalid tokens.
func OptionalAuth(resolver SessionResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token := BearerToken(c); token != "" {
			if userID, err := resolver.Resolve(c.Request.Context(), token); err == nil {
				c.Set(userIDKey, userID)
				c.Set(tokenKey, token)
			}
		}
		c.Next()
	}
}

// RequireAdmin checks the static admin token. An empty configured token
// disables admin routes entirely.
func RequireAdmin(adminToken string) gin.HandlerFunc {
	return func(c *gin.Context) {
		given := c.GetHeader(adminTokenHead)
		if adminToken == "" || subtle.ConstantTimeCompare([]byte(given), []byte(adminToken)) != 1 {
			c.Error(errors.NewForbiddenError("admin access required"))
			c.Abort()
			return
		}
		c.Next()
	}
}

func BearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}

func UserID(c *gin.Context) string {
	return c.GetString(userIDKey)
}

func SessionToken(c *gin.Context) string {
	return c.GetString(tokenKey)
}
