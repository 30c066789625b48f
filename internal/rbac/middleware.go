package rbac

import (
	"net/http"

	"tiny-resolver/internal/auth"
	"tiny-resolver/pkg/logger"

	"github.com/gin-gonic/gin"
)

// RequireClient enforces that an authenticated caller exists in context.
// Every /v1 route scopes its data by the caller's client_id.
func RequireClient() gin.HandlerFunc {
	return func(c *gin.Context) {
		if id, ok := auth.IdentityFrom(c.Request.Context()); !ok || id.ClientID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "client_id required"})
			return
		}
		c.Next()
	}
}

// RequireAnyRole allows access if the caller holds one of the allowed roles.
// See Allowed.
func RequireAnyRole(allowed ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := auth.IdentityFrom(c.Request.Context())
		if !ok || id.Role == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "role required"})
			return
		}
		if !Allowed(id.Role, allowed...) {
			logger.FromGin(c).Info("rbac denied", "client_id", id.ClientID, "role", id.Role, "path", c.FullPath())
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}
