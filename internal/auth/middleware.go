package auth

import (
	"net/http"
	"strings"
	"time"

	"tiny-resolver/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Verifier checks signed tokens. *Manager implements it.
type Verifier interface {
	Verify(tokenString string, expected TokenType, now time.Time) (Claims, error)
}

// bearerToken extracts the token from an Authorization header. The scheme
// is matched case-insensitively (RFC 6750).
func bearerToken(header string) (string, bool) {
	scheme, tok, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	tok = strings.TrimSpace(tok)
	return tok, tok != ""
}

// RequireAccessToken verifies an access token and injects the caller's
// identity into the request context. The request logger gains client_id.
// RBAC checks belong to internal/rbac.
func RequireAccessToken(v Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		tok, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			c.Header("WWW-Authenticate", "Bearer")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}

		claims, err := v.Verify(tok, TokenTypeAccess, time.Now())
		if err != nil {
			logger.FromGin(c).Debug("token rejected", "err", err)
			c.Header("WWW-Authenticate", `Bearer error="invalid_token"`)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		id := claims.Identity()
		l := logger.FromGin(c).With("client_id", id.ClientID)
		c.Set("logger", l)
		c.Set("client_id", id.ClientID)
		c.Set("role", id.Role)

		ctx := WithIdentity(c.Request.Context(), id.ClientID, id.Role)
		c.Request = c.Request.WithContext(logger.With(ctx, l))
		c.Next()
	}
}
