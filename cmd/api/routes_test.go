package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"tiny-resolver/internal/audit"
	"tiny-resolver/internal/auth"
	"tiny-resolver/internal/config"
	"tiny-resolver/internal/httpapi"
	"tiny-resolver/internal/rbac"

	"github.com/gin-gonic/gin"
)

const testAdminKey = "0123456789abcdef0123456789abcdef"

func newTestRouter(t *testing.T, ready func(context.Context) error) (*gin.Engine, *auth.Manager) {
	t.Helper()
	r, m, _ := newTestRouterWithAudit(t, ready)
	return r, m
}

func newTestRouterWithAudit(t *testing.T, ready func(context.Context) error) (*gin.Engine, *auth.Manager, *audit.MemoryRepo) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	m, err := auth.NewManager(config.AuthConfig{JWTSecret: "secret", AccessTokenTTL: time.Minute, RefreshTokenTTL: time.Hour})
	if err != nil {
		t.Fatalf("manager: %v", err)
	}
	events := audit.NewMemoryRepo()
	r := gin.New()
	registerRoutes(r, routeDeps{
		handlers: httpapi.Handlers{
			Auth:          m,
			Audit:         audit.NewService(events),
			AdminAPIKey:   testAdminKey,
			AdminClientID: "ops-bootstrap",
		},
		authMW: auth.RequireAccessToken(m),
		ready:  ready,
	})
	return r, m, events
}

func TestRoutes_Health(t *testing.T) {
	r, _ := newTestRouter(t, func(context.Context) error { return errors.New("db down") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
}

func TestRoutes_ProtectedRequireToken(t *testing.T) {
	r, _ := newTestRouter(t, nil)
	for _, target := range []string{"/v1/resolve?name=example.com", "/v1/history", "/v1/stats"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401, got %d", target, w.Code)
		}
	}
}

func TestRoutes_AdminRequiresRole(t *testing.T) {
	r, m := newTestRouter(t, nil)
	pair, err := m.IssuePair(time.Now(), "c1", rbac.RoleClient)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodDelete, "/v1/admin/cache?name=example.com", nil)
	req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", w.Code)
	}
}

func TestRoutes_LoginBootstrapsAdmin(t *testing.T) {
	r, _, events := newTestRouterWithAudit(t, nil)

	login := func(body string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/v1/auth/login", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		r.ServeHTTP(w, req)
		return w
	}

	if w := login(`{"api_key":"wrong"}`); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for wrong key, got %d", w.Code)
	}
	if len(events.Events()) != 0 {
		t.Fatalf("expected no audit events for rejected login")
	}

	w := login(`{"api_key":"` + testAdminKey + `"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var pair auth.TokenPair
	if err := json.Unmarshal(w.Body.Bytes(), &pair); err != nil || pair.AccessToken == "" {
		t.Fatalf("expected token pair, got %s (err=%v)", w.Body.String(), err)
	}

	// the login token reaches admin-only routes
	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/admin/audit?type=token_issued", nil)
	req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 on admin route, got %d: %s", w.Code, w.Body.String())
	}
	var out struct {
		Events []audit.Event `json:"events"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out.Events) != 1 || out.Events[0].ClientID != "ops-bootstrap" || out.Events[0].Role != rbac.RoleAdmin {
		t.Fatalf("expected audited login, got %+v", out.Events)
	}
}

func TestRoutes_LoginDisabledWithoutKey(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m, err := auth.NewManager(config.AuthConfig{JWTSecret: "secret", AccessTokenTTL: time.Minute, RefreshTokenTTL: time.Hour})
	if err != nil {
		t.Fatalf("manager: %v", err)
	}
	r := gin.New()
	registerRoutes(r, routeDeps{handlers: httpapi.Handlers{Auth: m}, authMW: auth.RequireAccessToken(m)})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/auth/login", strings.NewReader(`{"api_key":""}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNotImplemented {
		t.Fatalf("expected 501, got %d", w.Code)
	}
}
