package limiter

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"tiny-resolver/internal/auth"
	"tiny-resolver/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// releaseTimeout bounds the release call made after the request finished.
const releaseTimeout = 2 * time.Second

// Options configures the per-client concurrency cap.
type Options struct {
	// Limit is the number of in-flight requests allowed per client.
	Limit int
	// TTL bounds how long a leaked slot survives a crashed process.
	TTL time.Duration
	// Prefix namespaces the counter keys.
	Prefix string
}

func (o Options) withDefaults() Options {
	out := o
	if out.Limit <= 0 {
		out.Limit = 8
	}
	if out.TTL <= 0 {
		out.TTL = time.Minute
	}
	if out.Prefix == "" {
		out.Prefix = "limit:resolve:"
	}
	return out
}

// Key returns the counter key for a client.
func (o Options) Key(clientID string) string {
	return fmt.Sprintf("%s%s", o.withDefaults().Prefix, clientID)
}

// RequireSlot caps concurrent requests per authenticated client.
//
// How it works:
// - Reads client_id from auth context (RequireAccessToken must run first).
// - Acquires a Redis slot atomically; 429 when the cap is reached.
// - Releases the slot after the handler chain returns, even on panic.
// - Redis failures fail open.
func RequireSlot(rdb *redis.Client, opts Options) gin.HandlerFunc {
	slots := NewSlots(rdb, opts)
	return func(c *gin.Context) {
		clientID, err := auth.ClientID(c.Request.Context())
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "client_id required"})
			return
		}

		ok, err := slots.Acquire(c.Request.Context(), clientID)
		if err != nil {
			logger.FromGin(c).Warn("concurrency cap unavailable", "err", err)
			c.Next()
			return
		}
		if !ok {
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many concurrent requests", "limit": slots.opts.Limit})
			return
		}

		defer func() {
			ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request.Context()), releaseTimeout)
			defer cancel()
			if err := slots.Release(ctx, clientID); err != nil {
				logger.FromGin(c).Warn("concurrency cap release failed", "err", err)
			}
		}()
		c.Next()
	}
}
