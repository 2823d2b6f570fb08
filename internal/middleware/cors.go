package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	corsMethods = "GET, POST, PATCH, DELETE, OPTIONS"
	corsHeaders = "Content-Type, Authorization"
)

// corsPolicy is the parsed origin allow-list.
type corsPolicy struct {
	any     bool
	origins map[string]bool
}

func parseCORS(s string) corsPolicy {
	p := corsPolicy{origins: make(map[string]bool)}
	for _, o := range strings.Split(s, ",") {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		switch o {
		case "":
		case "*":
			p.any = true
		default:
			p.origins[o] = true
		}
	}
	if len(p.origins) == 0 {
		p.any = true
	}
	return p
}

// allow returns the Access-Control-Allow-Origin value for origin and whether
// the session cookie may be sent with it.
func (p corsPolicy) allow(origin string) (string, bool) {
	if origin != "" && p.origins[origin] {
		return origin, true
	}
	if p.any {
		return "*", false
	}
	return "", false
}

// CORS returns a middleware that sets CORS headers for cross-origin requests.
// allowedOrigins is "*" or a comma-separated list. Listed origins may send
// the session cookie; the wildcard may not.
func CORS(allowedOrigins string) gin.HandlerFunc {
	policy := parseCORS(allowedOrigins)
	return func(c *gin.Context) {
		c.Header("Vary", "Origin")
		allowOrigin, credentials := policy.allow(c.GetHeader("Origin"))
		if allowOrigin != "" {
			c.Header("Access-Control-Allow-Origin", allowOrigin)
			c.Header("Access-Control-Allow-Methods", corsMethods)
			c.Header("Access-Control-Allow-Headers", corsHeaders)
			c.Header("Access-Control-Max-Age", "86400")
			if credentials {
				c.Header("Access-Control-Allow-Credentials", "true")
			}
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
