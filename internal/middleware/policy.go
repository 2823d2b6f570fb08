package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/greenway-eco/backend/internal/policy"
	"github.com/greenway-eco/backend/pkg/response"
)

// RequireAction returns a middleware that allows the request only when the
// caller may perform action. It suits actions that do not depend on a
// specific resource; resource-scoped checks happen in the handlers.
func RequireAction(action policy.Action, metrics *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := CurrentIdentity(c)
		if !ok {
			response.Unauthorized(c, "missing user context")
			c.Abort()
			return
		}
		d := policy.Authorize(id.Role, id.UserID, action, policy.Resource{})
		if !d.Allowed {
			metrics.ObserveDenial(string(action), d.Reason)
			response.Forbidden(c, d.Reason)
			c.Abort()
			return
		}
		c.Next()
	}
}
