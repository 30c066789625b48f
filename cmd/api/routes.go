package main

import (
	"context"
	"net/http"

	"tiny-resolver/internal/httpapi"
	"tiny-resolver/internal/rbac"

	"github.com/gin-gonic/gin"
)

type routeDeps struct {
	handlers httpapi.Handlers
	authMW   gin.HandlerFunc
	limitMW  gin.HandlerFunc
	// ready reports whether storage dependencies are reachable.
	ready func(ctx context.Context) error
}

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, d routeDeps) {
	h := d.handlers

	// public
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/readyz", func(c *gin.Context) {
		if d.ready != nil {
			if err := d.ready(c.Request.Context()); err != nil {
				c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.POST("/v1/auth/login", h.Login)
	r.POST("/v1/auth/refresh", h.Refresh)

	// protected API group
	v1 := r.Group("/v1")
	v1.Use(d.authMW, rbac.RequireClient())
	{
		// RESOLVE routes
		resolve := v1.Group("/resolve")
		if d.limitMW != nil {
			resolve.Use(d.limitMW)
		}
		{
			resolve.GET("", h.Resolve)
			resolve.POST("/batch", h.ResolveBatch)
		}

		v1.GET("/history", h.ListHistory)
		v1.GET("/stats", h.Stats)

		// ADMIN routes
		// admin passes every role check; operators may only purge the cache.
		admin := v1.Group("/admin")
		{
			admin.POST("/tokens", rbac.RequireAnyRole(rbac.RoleAdmin), h.IssueToken)
			admin.GET("/audit", rbac.RequireAnyRole(rbac.RoleAdmin), h.ListAudit)
			admin.DELETE("/cache", rbac.RequireAnyRole(rbac.RoleOperator), h.PurgeCache)
		}
	}
}
