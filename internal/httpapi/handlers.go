package httpapi

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"

	"tiny-resolver/internal/audit"
	"tiny-resolver/internal/auth"
	"tiny-resolver/internal/dns"
	"tiny-resolver/internal/history"
	"tiny-resolver/internal/rbac"
	"tiny-resolver/internal/reporting"
	"tiny-resolver/internal/resolver"
	"tiny-resolver/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Resolver is the lookup dependency of the HTTP API.
type Resolver interface {
	Query(ctx context.Context, name string, t dns.RecordType) (*resolver.Response, error)
}

// CachePurger removes cached answers. A zero type removes every type.
type CachePurger interface {
	Purge(ctx context.Context, name string, t dns.RecordType) (int64, error)
}

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
type Handlers struct {
	Auth      *auth.Manager
	Resolver  Resolver
	Cache     CachePurger
	History   *history.Service
	Reporting *reporting.Service
	Audit     *audit.Service

	// AdminAPIKey enables Login when set.
	AdminAPIKey   string
	AdminClientID string

	// Clock is injectable for deterministic tests.
	Clock func() time.Time
}

func (h Handlers) now() time.Time {
	if h.Clock != nil {
		return h.Clock()
	}
	return time.Now()
}

// --- Auth ---

type loginRequest struct {
	APIKey string `json:"api_key"`
}

// Login exchanges the configured admin API key for an admin token pair.
// It is the only way to obtain a first token on a fresh deployment.
// Issued pairs are audited.
func (h Handlers) Login(c *gin.Context) {
	if h.Auth == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth not configured"})
		return
	}
	if h.AdminAPIKey == "" {
		c.AbortWithStatusJSON(http.StatusNotImplemented, gin.H{"error": "login disabled"})
		return
	}
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if subtle.ConstantTimeCompare([]byte(req.APIKey), []byte(h.AdminAPIKey)) != 1 {
		logger.FromGin(c).Warn("login rejected", "ip", c.ClientIP())
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid api key"})
		return
	}

	clientID := h.AdminClientID
	if clientID == "" {
		clientID = "admin"
	}
	pair, err := h.Auth.IssuePair(h.now(), clientID, rbac.RoleAdmin)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	if h.Audit != nil {
		if err := h.Audit.LogTokenIssued(c.Request.Context(), clientID, rbac.RoleAdmin, c.ClientIP(), clientID, rbac.RoleAdmin); err != nil {
			logger.FromGin(c).Warn("audit append failed", "type", audit.EventTypeTokenIssued, "err", err)
		}
	}
	c.JSON(http.StatusOK, pair)
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Refresh exchanges a refresh token for a new token pair.
func (h Handlers) Refresh(c *gin.Context) {
	if h.Auth == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth not configured"})
		return
	}
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(req.RefreshToken) == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "refresh_token required"})
		return
	}
	pair, _, err := h.Auth.Refresh(req.RefreshToken, h.now())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid refresh token"})
		return
	}
	c.JSON(http.StatusOK, pair)
}

// --- History and stats ---

// ListHistory returns the caller's lookups. from and to are RFC 3339.
func (h Handlers) ListHistory(c *gin.Context) {
	if h.History == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "history not configured"})
		return
	}
	clientID, err := auth.ClientID(c.Request.Context())
	if err != nil || clientID == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "client_id required"})
		return
	}
	from, to, err := parseRange(c)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	limit, err := parseLimit(c.Query("limit"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	out, err := h.History.List(c.Request.Context(), clientID, from, to, limit)
	if errors.Is(err, history.ErrInvalidArgument) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid range"})
		return
	}
	if err != nil {
		logger.FromGin(c).Error("history list failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "history lookup failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"lookups": out})
}

// Stats summarizes the caller's lookups over a range, by default the last day.
func (h Handlers) Stats(c *gin.Context) {
	if h.Reporting == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "reporting not configured"})
		return
	}
	clientID, err := auth.ClientID(c.Request.Context())
	if err != nil || clientID == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "client_id required"})
		return
	}
	from, to, err := parseRange(c)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rng := reporting.DefaultRange(h.now().UTC())
	if !to.IsZero() {
		rng = reporting.DefaultRange(to)
	}
	if !from.IsZero() {
		rng.From = from
	}

	sum, err := h.Reporting.Summary(c.Request.Context(), reporting.SummaryRequest{ClientID: clientID, Range: rng})
	if errors.Is(err, reporting.ErrInvalidRequest) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid range"})
		return
	}
	if err != nil {
		logger.FromGin(c).Error("stats summary failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "stats failed"})
		return
	}
	c.JSON(http.StatusOK, sum)
}

// --- Admin ---

type issueTokenRequest struct {
	ClientID string `json:"client_id"`
	Role     string `json:"role"`
}

// IssueToken mints a token pair for a client.
// RBAC: admin only. The issuance is audited.
func (h Handlers) IssueToken(c *gin.Context) {
	if h.Auth == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth not configured"})
		return
	}
	adminID, _ := auth.ClientID(c.Request.Context())
	adminRole, _ := auth.Role(c.Request.Context())

	var req issueTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	req.ClientID = strings.TrimSpace(req.ClientID)
	if req.ClientID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "client_id required"})
		return
	}
	if req.Role == "" {
		req.Role = rbac.RoleClient
	}
	if !rbac.IsValidRole(req.Role) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unknown role"})
		return
	}

	pair, err := h.Auth.IssuePair(h.now(), req.ClientID, req.Role)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	if h.Audit != nil {
		if err := h.Audit.LogTokenIssued(c.Request.Context(), adminID, adminRole, c.ClientIP(), req.ClientID, req.Role); err != nil {
			logger.FromGin(c).Warn("audit append failed", "type", audit.EventTypeTokenIssued, "err", err)
		}
	}
	c.JSON(http.StatusCreated, pair)
}

// PurgeCache drops cached answers for a name. Without a type every
// cached type of the name is removed.
// RBAC: operator or admin. The purge is audited.
func (h Handlers) PurgeCache(c *gin.Context) {
	if h.Cache == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "cache not configured"})
		return
	}
	clientID, _ := auth.ClientID(c.Request.Context())
	role, _ := auth.Role(c.Request.Context())

	name, err := dns.NormalizeHostname(c.Query("name"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid hostname"})
		return
	}
	var t dns.RecordType
	if raw := c.Query("type"); raw != "" {
		if t, err = dns.ParseRecordType(raw); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid record type"})
			return
		}
	}

	deleted, err := h.Cache.Purge(c.Request.Context(), name, t)
	if err != nil {
		logger.FromGin(c).Error("cache purge failed", "name", name, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "cache purge failed"})
		return
	}

	typeLabel := "*"
	if t != 0 {
		typeLabel = t.String()
	}
	if h.Audit != nil {
		if err := h.Audit.LogCachePurge(c.Request.Context(), clientID, role, c.ClientIP(), name, typeLabel, deleted); err != nil {
			logger.FromGin(c).Warn("audit append failed", "type", audit.EventTypeCachePurge, "err", err)
		}
	}
	c.JSON(http.StatusOK, gin.H{"name": name, "type": typeLabel, "deleted": deleted})
}

// ListAudit returns recent audit events. Filters: client_id, type, since
// (RFC 3339) and limit.
// RBAC: admin only.
func (h Handlers) ListAudit(c *gin.Context) {
	if h.Audit == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "audit not configured"})
		return
	}
	f := audit.Filter{ClientID: c.Query("client_id"), Type: audit.EventType(c.Query("type"))}
	if v := c.Query("since"); v != "" {
		since, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "since must be RFC3339"})
			return
		}
		f.Since = since
	}
	limit, err := parseLimit(c.Query("limit"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	f.Limit = limit

	events, err := h.Audit.List(c.Request.Context(), f)
	if err != nil {
		logger.FromGin(c).Error("audit list failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "audit lookup failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}
