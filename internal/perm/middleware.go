package perm

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vyrodovalexey/avguard/internal/observability"
)

// Guard validates the spec and returns a gin middleware enforcing it.
//
// Validation happens here, once, so a malformed rule fails at route
// registration instead of on first request. The middleware responds
// with 401 on deny and 500 on resolver or store failures; operational
// failures are never reported as access denials.
func (e *Engine) Guard(spec Spec) (gin.HandlerFunc, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	return func(c *gin.Context) {
		identity, _ := IdentityFromContext(c.Request.Context())

		decision, err := e.Evaluate(c.Request.Context(), spec, identity)
		if err != nil {
			e.logger.Error("permission check failed",
				observability.String("path", c.Request.URL.Path),
				observability.String("method", c.Request.Method),
				observability.Error(err),
			)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error": "permission check failed",
			})
			return
		}

		if !decision.Allowed {
			e.logger.Warn("access denied",
				observability.String("path", c.Request.URL.Path),
				observability.String("method", c.Request.Method),
				observability.String("subject", identity),
				observability.String("reason", decision.Reason),
			)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "access denied",
			})
			return
		}

		c.Next()
	}, nil
}

// SetIdentity returns a gin middleware that reads the requester
// identity from the given trusted header and stores it in the request
// context. An absent header leaves the requester anonymous.
func SetIdentity(header string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if identity := c.GetHeader(header); identity != "" {
			ctx := ContextWithIdentity(c.Request.Context(), identity)
			c.Request = c.Request.WithContext(ctx)
		}
		c.Next()
	}
}
