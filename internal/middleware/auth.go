package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/jengzang/tracking-backend-go/internal/auth"
	"github.com/jengzang/tracking-backend-go/pkg/response"
)

const claimsKey = "auth.claims"

// TokenParser verifies bearer tokens
type TokenParser interface {
	Parse(token string) (*auth.Claims, error)
}

// Auth middleware requires a valid bearer token and stores its claims on the context
func Auth(parser TokenParser) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			response.Unauthorized(c, "missing bearer token")
			return
		}

		claims, err := parser.Parse(strings.TrimSpace(token))
		if err != nil {
			response.Unauthorized(c, "invalid or expired token")
			return
		}

		c.Set(claimsKey, claims)
		c.Next()
	}
}

// RequireRole rejects callers whose role is not in roles
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := ClaimsFrom(c)
		if !ok {
			response.Unauthorized(c, "authentication required")
			return
		}
		if !claims.HasRole(roles...) {
			response.Forbidden(c, "insufficient role")
			return
		}
		c.Next()
	}
}

// RequireOrganization rejects callers whose token belongs to another
// organization than the :orgId path parameter
func RequireOrganization(param string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := ClaimsFrom(c)
		if !ok {
			response.Unauthorized(c, "authentication required")
			return
		}
		if c.Param(param) != claims.OrganizationID {
			response.Forbidden(c, "organization access denied")
			return
		}
		c.Next()
	}
}

// ClaimsFrom returns the claims stored by Auth
func ClaimsFrom(c *gin.Context) (*auth.Claims, bool) {
	v, ok := c.Get(claimsKey)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*auth.Claims)
	return claims, ok
}
