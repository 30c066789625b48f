package logger

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const HeaderRequestID = "X-Request-Id"

const maxRequestIDLen = 128

// Middleware injects a request-scoped logger carrying request_id and logs one
// summary line per request. The logger is stored on the gin context and on the
// request context, so resolver hops logged via From share the request_id.
// Requests to skipPaths (health probes) are not summarized.
func Middleware(l *slog.Logger, skipPaths ...string) gin.HandlerFunc {
	skip := make(map[string]struct{}, len(skipPaths))
	for _, p := range skipPaths {
		skip[p] = struct{}{}
	}

	return func(c *gin.Context) {
		start := time.Now()

		rid := requestID(c.GetHeader(HeaderRequestID))
		c.Writer.Header().Set(HeaderRequestID, rid)

		reqLogger := l.With("request_id", rid)
		c.Set("logger", reqLogger)
		c.Request = c.Request.WithContext(With(c.Request.Context(), reqLogger))

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		if _, ok := skip[path]; ok {
			return
		}

		status := c.Writer.Status()
		attrs := []slog.Attr{
			slog.String("method", c.Request.Method),
			slog.String("path", path),
			slog.Int("status", status),
			slog.Int64("duration_ms", time.Since(start).Milliseconds()),
		}
		if clientID := c.GetString("client_id"); clientID != "" {
			attrs = append(attrs, slog.String("client_id", clientID))
		}
		level := slog.LevelInfo
		switch {
		case len(c.Errors) > 0 || status >= 500:
			level = slog.LevelError
			if len(c.Errors) > 0 {
				attrs = append(attrs, slog.String("errors", c.Errors.String()))
			}
		case status >= 400:
			level = slog.LevelWarn
		}
		reqLogger.LogAttrs(c.Request.Context(), level, "request", attrs...)
	}
}

// requestID keeps a caller-supplied id when it is short printable ASCII and
// otherwise mints a new one.
func requestID(v string) string {
	if v == "" || len(v) > maxRequestIDLen {
		return uuid.NewString()
	}
	for i := 0; i < len(v); i++ {
		if v[i] < 0x21 || v[i] > 0x7e {
			return uuid.NewString()
		}
	}
	return v
}

// FromGin pulls the request-scoped logger from Gin context.
func FromGin(c *gin.Context) *slog.Logger {
	if v, ok := c.Get("logger"); ok {
		if l, ok := v.(*slog.Logger); ok && l != nil {
			return l
		}
	}
	return slog.Default()
}
