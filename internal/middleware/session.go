package middleware

import (
	"errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/greenway-eco/backend/internal/models"
	"github.com/greenway-eco/backend/internal/session"
	"github.com/greenway-eco/backend/pkg/response"
)

const (
	// ContextUserID is the key for user ID in gin context.
	ContextUserID = "user_id"
	// ContextUserRole is the key for user role in gin context.
	ContextUserRole = "user_role"
	// ContextUserEmail is the key for user email in gin context.
	ContextUserEmail = "user_email"
)

// Session returns a middleware that resolves the caller from the bearer token
// or the session cookie and sets the identity in context.
func Session(resolver *session.Resolver, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := session.BearerToken(c.GetHeader("Authorization"))
		if raw == "" {
			raw, _ = c.Cookie(session.CookieName)
		}
		id, err := resolver.Resolve(c.Request.Context(), raw)
		if err != nil {
			if errors.Is(err, session.ErrUnauthenticated) {
				response.Unauthorized(c, "sign in required")
			} else {
				logger.Error("session resolve failed", zap.Error(err))
				response.ServiceUnavailable(c, "session could not be verified, try again")
			}
			c.Abort()
			return
		}
		c.Set(ContextUserID, id.UserID)
		c.Set(ContextUserRole, id.Role)
		c.Set(ContextUserEmail, id.Email)
		c.Next()
	}
}

// CurrentIdentity returns the identity set by Session.
func CurrentIdentity(c *gin.Context) (session.Identity, bool) {
	userID := c.GetString(ContextUserID)
	if userID == "" {
		return session.Identity{}, false
	}
	role, _ := c.Get(ContextUserRole)
	r, _ := role.(models.Role)
	return session.Identity{UserID: userID, Email: c.GetString(ContextUserEmail), Role: r}, true
}
