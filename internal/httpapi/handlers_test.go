package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"strings"
	"sync"
	"testing"
	"time"

	"tiny-resolver/internal/audit"
	"tiny-resolver/internal/auth"
	"tiny-resolver/internal/config"
	"tiny-resolver/internal/dns"
	"tiny-resolver/internal/history"
	"tiny-resolver/internal/rbac"
	"tiny-resolver/internal/reporting"
	"tiny-resolver/internal/resolver"

	"github.com/gin-gonic/gin"
)

type fakeResolver struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeResolver) Query(ctx context.Context, name string, t dns.RecordType) (*resolver.Response, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	switch name {
	case "example.com":
		return &resolver.Response{
			Message: &dns.Message{Answers: []dns.ResourceRecord{
				{Name: "example.com", Type: dns.TypeA, Class: dns.ClassIN, TTL: 300, Data: &dns.A{Addr: netip.MustParseAddr("93.184.216.34")}},
			}},
			Servers:  []netip.Addr{netip.MustParseAddr("198.41.0.4")},
			Duration: 12 * time.Millisecond,
		}, nil
	case "missing.example":
		return nil, &dns.ServerError{RCode: dns.RCodeNXDomain}
	case "slow.example":
		return nil, fmt.Errorf("read: %w", context.DeadlineExceeded)
	case "broken.example":
		return nil, &dns.ServerError{RCode: dns.RCodeServerFailure}
	case "bad..name":
		return nil, dns.ErrInvalidHostname
	}
	return nil, fmt.Errorf("%w: %s", resolver.ErrMaxAttempts, name)
}

type fakePurger struct {
	name string
	t    dns.RecordType
}

func (f *fakePurger) Purge(ctx context.Context, name string, t dns.RecordType) (int64, error) {
	f.name, f.t = name, t
	return 3, nil
}

type fixture struct {
	h        Handlers
	res      *fakeResolver
	purger   *fakePurger
	history  *history.MemoryRepo
	audit    *audit.MemoryRepo
	clientID string
	role     string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	m, err := auth.NewManager(config.AuthConfig{JWTSecret: "secret", AccessTokenTTL: time.Minute, RefreshTokenTTL: time.Hour})
	if err != nil {
		t.Fatalf("manager: %v", err)
	}
	f := &fixture{
		res:      &fakeResolver{},
		purger:   &fakePurger{},
		history:  history.NewMemoryRepo(),
		audit:    audit.NewMemoryRepo(),
		clientID: "c1",
		role:     rbac.RoleClient,
	}
	f.h = Handlers{
		Auth:      m,
		Resolver:  f.res,
		Cache:     f.purger,
		History:   history.NewService(f.history),
		Reporting: reporting.NewService(reporting.FromHistory(f.history)),
		Audit:     audit.NewService(f.audit),
		Clock:     func() time.Time { return time.Now().Add(time.Minute) },
	}
	return f
}

func (f *fixture) router() *gin.Engine {
	r := gin.New()
	identity := func(c *gin.Context) {
		c.Request = c.Request.WithContext(auth.WithIdentity(c.Request.Context(), f.clientID, f.role))
		c.Next()
	}
	r.POST("/v1/auth/refresh", f.h.Refresh)
	v1 := r.Group("/v1", identity)
	v1.GET("/resolve", f.h.Resolve)
	v1.POST("/resolve/batch", f.h.ResolveBatch)
	v1.GET("/history", f.h.ListHistory)
	v1.GET("/stats", f.h.Stats)
	v1.POST("/admin/tokens", rbac.RequireAnyRole(rbac.RoleAdmin), f.h.IssueToken)
	v1.DELETE("/admin/cache", rbac.RequireAnyRole(rbac.RoleOperator), f.h.PurgeCache)
	v1.GET("/admin/audit", rbac.RequireAnyRole(rbac.RoleAdmin), f.h.ListAudit)
	return r
}

func (f *fixture) do(method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	w := httptest.NewRecorder()
	f.router().ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return v
}

func TestResolve_OK(t *testing.T) {
	f := newFixture(t)
	w := f.do(http.MethodGet, "/v1/resolve?name=example.com", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	res := decode[resolveResult](t, w)
	if res.Type != "A" || res.Status != history.StatusOK {
		t.Fatalf("unexpected result: %+v", res)
	}
	if len(res.Answers) != 1 || res.Answers[0].Data != "93.184.216.34" || res.Answers[0].TTL != 300 {
		t.Fatalf("unexpected answers: %+v", res.Answers)
	}
	if len(res.Servers) != 1 || res.Servers[0] != "198.41.0.4" {
		t.Fatalf("unexpected servers: %v", res.Servers)
	}

	rows, _ := f.history.List(context.Background(), "c1", time.Time{}, time.Now().Add(time.Hour), 0)
	if len(rows) != 1 || rows[0].Name != "example.com" || rows[0].Status != history.StatusOK {
		t.Fatalf("expected lookup recorded, got %+v", rows)
	}
}

func TestResolve_ErrorMapping(t *testing.T) {
	cases := []struct {
		target string
		code   int
	}{
		{"/v1/resolve?name=missing.example", http.StatusNotFound},
		{"/v1/resolve?name=slow.example", http.StatusGatewayTimeout},
		{"/v1/resolve?name=broken.example", http.StatusBadGateway},
		{"/v1/resolve?name=unreachable.example", http.StatusBadGateway},
		{"/v1/resolve?name=bad..name", http.StatusBadRequest},
		{"/v1/resolve?name=example.com&type=BOGUS", http.StatusBadRequest},
		{"/v1/resolve", http.StatusBadRequest},
	}
	for _, tc := range cases {
		f := newFixture(t)
		w := f.do(http.MethodGet, tc.target, "")
		if w.Code != tc.code {
			t.Fatalf("%s: expected %d, got %d: %s", tc.target, tc.code, w.Code, w.Body.String())
		}
	}
}

func TestResolve_NXDomainBody(t *testing.T) {
	f := newFixture(t)
	w := f.do(http.MethodGet, "/v1/resolve?name=missing.example&type=aaaa", "")
	res := decode[resolveResult](t, w)
	if res.Status != history.StatusNXDomain || res.RCode != "NXDOMAIN" || res.Type != "AAAA" {
		t.Fatalf("unexpected body: %+v", res)
	}
}

func TestResolveBatch_KeepsOrderAndIsolatesFailures(t *testing.T) {
	f := newFixture(t)
	body := `{"queries":[{"name":"example.com"},{"name":"missing.example","type":"A"},{"name":"example.com","type":"NOPE"}]}`
	w := f.do(http.MethodPost, "/v1/resolve/batch", body)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	out := decode[struct {
		Results []resolveResult `json:"results"`
	}](t, w)
	if len(out.Results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(out.Results))
	}
	if out.Results[0].Status != history.StatusOK || out.Results[1].Status != history.StatusNXDomain || out.Results[2].Status != history.StatusError {
		t.Fatalf("unexpected statuses: %+v", out.Results)
	}
	if f.res.calls != 2 {
		t.Fatalf("expected 2 resolver calls, got %d", f.res.calls)
	}
}

func TestResolveBatch_RejectsOversizedAndEmpty(t *testing.T) {
	f := newFixture(t)
	if w := f.do(http.MethodPost, "/v1/resolve/batch", `{"queries":[]}`); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty batch, got %d", w.Code)
	}

	qs := make([]string, MaxBatchQueries+1)
	for i := range qs {
		qs[i] = `{"name":"example.com"}`
	}
	w := f.do(http.MethodPost, "/v1/resolve/batch", `{"queries":[`+strings.Join(qs, ",")+`]}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for oversized batch, got %d", w.Code)
	}
	if f.res.calls != 0 {
		t.Fatalf("expected no resolver calls, got %d", f.res.calls)
	}
}

func TestHistoryAndStats(t *testing.T) {
	f := newFixture(t)
	f.do(http.MethodGet, "/v1/resolve?name=example.com", "")
	f.do(http.MethodGet, "/v1/resolve?name=example.com", "")
	f.do(http.MethodGet, "/v1/resolve?name=missing.example", "")

	w := f.do(http.MethodGet, "/v1/history?limit=2", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	hist := decode[struct {
		Lookups []history.Lookup `json:"lookups"`
	}](t, w)
	if len(hist.Lookups) != 2 {
		t.Fatalf("expected 2 lookups, got %d", len(hist.Lookups))
	}

	w = f.do(http.MethodGet, "/v1/stats", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	sum := decode[reporting.Summary](t, w)
	if sum.TotalLookups != 3 || sum.ByStatus["ok"] != 2 || sum.ByStatus["nxdomain"] != 1 {
		t.Fatalf("unexpected summary: %+v", sum)
	}
	if len(sum.TopNames) == 0 || sum.TopNames[0].Name != "example.com" {
		t.Fatalf("unexpected top names: %+v", sum.TopNames)
	}
}

func TestResolve_RecordsNormalisedName(t *testing.T) {
	f := newFixture(t)
	for _, name := range []string{"Example.COM.", "example.com", "EXAMPLE.com"} {
		w := f.do(http.MethodGet, "/v1/resolve?name="+name, "")
		if w.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d: %s", name, w.Code, w.Body.String())
		}
		if res := decode[resolveResult](t, w); res.Name != "example.com" {
			t.Fatalf("%s: expected normalised name, got %q", name, res.Name)
		}
	}
	f.do(http.MethodPost, "/v1/resolve/batch", `{"queries":[{"name":"eXample.Com"}]}`)
	f.do(http.MethodGet, "/v1/resolve?name=bad..name", "")

	w := f.do(http.MethodGet, "/v1/stats", "")
	sum := decode[reporting.Summary](t, w)
	if len(sum.TopNames) != 2 {
		t.Fatalf("expected 2 distinct names, got %+v", sum.TopNames)
	}
	if sum.TopNames[0] != (reporting.NameCount{Name: "example.com", Count: 4}) {
		t.Fatalf("unexpected top name: %+v", sum.TopNames[0])
	}
	if sum.TopNames[1].Name != "bad..name" {
		t.Fatalf("expected invalid name kept as typed, got %+v", sum.TopNames[1])
	}
}

func TestHistory_RejectsBadParams(t *testing.T) {
	f := newFixture(t)
	for _, target := range []string{"/v1/history?from=yesterday", "/v1/history?limit=-1", "/v1/stats?to=now"} {
		if w := f.do(http.MethodGet, target, ""); w.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", target, w.Code)
		}
	}
}

func TestRefresh(t *testing.T) {
	f := newFixture(t)
	pair, err := f.h.Auth.IssuePair(time.Now(), "c1", rbac.RoleClient)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	w := f.do(http.MethodPost, "/v1/auth/refresh", `{"refresh_token":"`+pair.RefreshToken+`"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if got := decode[auth.TokenPair](t, w); got.AccessToken == "" {
		t.Fatalf("expected access token")
	}

	w = f.do(http.MethodPost, "/v1/auth/refresh", `{"refresh_token":"`+pair.AccessToken+`"}`)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for access token, got %d", w.Code)
	}
}

func TestIssueToken_AdminOnlyAndAudited(t *testing.T) {
	f := newFixture(t)
	if w := f.do(http.MethodPost, "/v1/admin/tokens", `{"client_id":"c2"}`); w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for client, got %d", w.Code)
	}

	f.clientID, f.role = "root", rbac.RoleAdmin
	if w := f.do(http.MethodPost, "/v1/admin/tokens", `{"client_id":"c2","role":"wizard"}`); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown role, got %d", w.Code)
	}
	w := f.do(http.MethodPost, "/v1/admin/tokens", `{"client_id":"c2","role":"operator"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	pair := decode[auth.TokenPair](t, w)
	claims, err := f.h.Auth.Verify(pair.AccessToken, auth.TokenTypeAccess, f.h.now())
	if err != nil || claims.ClientID != "c2" || claims.Role != rbac.RoleOperator {
		t.Fatalf("unexpected claims %+v: %v", claims, err)
	}

	events := f.audit.Events()
	if len(events) != 1 || events[0].Type != audit.EventTypeTokenIssued || events[0].ClientID != "root" {
		t.Fatalf("unexpected audit events: %+v", events)
	}
}

func TestPurgeCache(t *testing.T) {
	f := newFixture(t)
	if w := f.do(http.MethodDelete, "/v1/admin/cache?name=example.com", ""); w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for client, got %d", w.Code)
	}

	f.role = rbac.RoleOperator
	if w := f.do(http.MethodDelete, "/v1/admin/cache?name=-bad-", ""); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad name, got %d", w.Code)
	}
	w := f.do(http.MethodDelete, "/v1/admin/cache?name=Example.COM&type=mx", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if f.purger.name != "example.com" || f.purger.t != dns.TypeMX {
		t.Fatalf("unexpected purge args: %q %v", f.purger.name, f.purger.t)
	}
	body := decode[struct {
		Deleted int64  `json:"deleted"`
		Type    string `json:"type"`
	}](t, w)
	if body.Deleted != 3 || body.Type != "MX" {
		t.Fatalf("unexpected body: %+v", body)
	}

	events := f.audit.Events()
	if len(events) != 1 || events[0].Type != audit.EventTypeCachePurge || events[0].Name != "example.com" {
		t.Fatalf("unexpected audit events: %+v", events)
	}
}

func TestListAudit(t *testing.T) {
	f := newFixture(t)
	f.role = rbac.RoleOperator
	f.do(http.MethodDelete, "/v1/admin/cache?name=example.com", "")
	f.do(http.MethodDelete, "/v1/admin/cache?name=example.org", "")

	if w := f.do(http.MethodGet, "/v1/admin/audit", ""); w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for operator, got %d", w.Code)
	}

	f.role = rbac.RoleAdmin
	if w := f.do(http.MethodGet, "/v1/admin/audit?since=recently", ""); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad since, got %d", w.Code)
	}
	w := f.do(http.MethodGet, "/v1/admin/audit?type=cache_purge&limit=1", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	out := decode[struct {
		Events []audit.Event `json:"events"`
	}](t, w)
	if len(out.Events) != 1 || out.Events[0].Name != "example.org" {
		t.Fatalf("expected newest purge only, got %+v", out.Events)
	}
}
