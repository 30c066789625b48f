package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"tiny-resolver/internal/config"

	"github.com/gin-gonic/gin"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(config.AuthConfig{
		JWTSecret:       "secret",
		JWTIssuer:       "issuer",
		JWTAudience:     "aud",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 24 * time.Hour,
	})
	if err != nil {
		t.Fatalf("manager: %v", err)
	}
	return m
}

func TestIssueAndVerifyAccessToken(t *testing.T) {
	m := newTestManager(t)

	now := time.Unix(1700000000, 0).UTC()
	pair, err := m.IssuePair(now, "client-1", "client")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatalf("expected token strings")
	}
	if !pair.ExpiresAt.Equal(now.Add(15 * time.Minute)) {
		t.Fatalf("unexpected expiry: %v", pair.ExpiresAt)
	}

	claims, err := m.Verify(pair.AccessToken, TokenTypeAccess, now.Add(1*time.Minute))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.ClientID != "client-1" || claims.Role != "client" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestVerifyRejectsWrongTokenType(t *testing.T) {
	m, _ := NewManager(config.AuthConfig{JWTSecret: "secret", AccessTokenTTL: time.Minute, RefreshTokenTTL: time.Hour})
	p, err := m.IssuePair(time.Now(), "c", "client")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := m.Verify(p.RefreshToken, TokenTypeAccess, time.Now()); err == nil {
		t.Fatalf("expected token_type mismatch")
	}
}

func TestVerifyRejectsExpired(t *testing.T) {
	m := newTestManager(t)
	now := time.Unix(1700000000, 0).UTC()
	p, err := m.IssuePair(now, "c", "client")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := m.Verify(p.AccessToken, TokenTypeAccess, now.Add(time.Hour)); err == nil {
		t.Fatalf("expected expired token to be rejected")
	}
}

func TestRefreshIssuesNewPair(t *testing.T) {
	m := newTestManager(t)
	now := time.Unix(1700000000, 0).UTC()
	p, err := m.IssuePair(now, "c", "operator")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	later := now.Add(time.Hour)
	next, claims, err := m.Refresh(p.RefreshToken, later)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if claims.ClientID != "c" || claims.Role != "operator" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if _, err := m.Verify(next.AccessToken, TokenTypeAccess, later); err != nil {
		t.Fatalf("refreshed access token invalid: %v", err)
	}
	if _, _, err := m.Refresh(p.AccessToken, later); err == nil {
		t.Fatalf("expected access token to be refused for refresh")
	}
}

func TestRequireAccessToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := newTestManager(t)
	p, err := m.IssuePair(time.Now(), "client-9", "client")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	r := gin.New()
	r.GET("/x", RequireAccessToken(m), func(c *gin.Context) {
		id, err := ClientID(c.Request.Context())
		if err != nil {
			c.Status(500)
			return
		}
		c.String(200, id)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Authorization", "Bearer "+p.AccessToken)
	r.ServeHTTP(w, req)
	if w.Code != 200 || w.Body.String() != "client-9" {
		t.Fatalf("expected 200 client-9, got %d %q", w.Code, w.Body.String())
	}

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	r.ServeHTTP(w, req)
	if w.Code != 401 {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestBearerToken(t *testing.T) {
	cases := map[string]string{
		"Bearer abc":   "abc",
		"bearer  abc ": "abc",
		"Basic abc":    "",
		"Bearer":       "",
		"":             "",
	}
	for header, want := range cases {
		got, ok := bearerToken(header)
		if got != want || ok != (want != "") {
			t.Fatalf("bearerToken(%q) = %q,%v want %q", header, got, ok, want)
		}
	}
}

func TestClaimsValidate(t *testing.T) {
	if err := (Claims{ClientID: "c", Role: "client", TokenType: TokenTypeAccess}).Validate(); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	for _, c := range []Claims{
		{Role: "client", TokenType: TokenTypeAccess},
		{ClientID: "c", TokenType: TokenTypeAccess},
		{ClientID: "c", Role: "client"},
	} {
		if err := c.Validate(); err == nil {
			t.Fatalf("expected error for %+v", c)
		}
	}
}

func TestIdentityFromContext(t *testing.T) {
	if _, err := ClientID(context.Background()); err != ErrNoIdentity {
		t.Fatalf("expected ErrNoIdentity, got %v", err)
	}
	ctx := WithIdentity(context.Background(), "c1", "operator")
	id, ok := IdentityFrom(ctx)
	if !ok || id != (Identity{ClientID: "c1", Role: "operator"}) {
		t.Fatalf("unexpected identity: %+v", id)
	}
}
