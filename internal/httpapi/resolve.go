package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"tiny-resolver/internal/auth"
	"tiny-resolver/internal/dns"
	"tiny-resolver/internal/history"
	"tiny-resolver/internal/resolver"
	"tiny-resolver/pkg/logger"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
)

const (
	// MaxBatchQueries caps the queries accepted by one batch request.
	MaxBatchQueries = 32
	batchWorkers    = 8
)

type answer struct {
	Name string `json:"name"`
	Type string `json:"type"`
	TTL  uint32 `json:"ttl"`
	Data string `json:"data"`
}

type resolveResult struct {
	Name       string         `json:"name"`
	Type       string         `json:"type"`
	Status     history.Status `json:"status"`
	RCode      string         `json:"rcode,omitempty"`
	Error      string         `json:"error,omitempty"`
	Answers    []answer       `json:"answers"`
	Servers    []string       `json:"servers,omitempty"`
	Cached     bool           `json:"cached"`
	DurationMS int64          `json:"duration_ms"`
}

func newResolveResult(name string, t dns.RecordType, resp *resolver.Response, err error) resolveResult {
	out := resolveResult{Name: name, Type: t.String(), Answers: []answer{}}
	if resp != nil {
		for _, rr := range resp.Answers() {
			out.Answers = append(out.Answers, answer{Name: rr.Name, Type: rr.Type.String(), TTL: rr.TTL, Data: rr.Data.String()})
		}
		for _, s := range resp.Servers {
			out.Servers = append(out.Servers, s.String())
		}
		out.Cached = resp.Cached
		out.DurationMS = resp.Duration.Milliseconds()
	}
	out.Status, out.RCode = history.StatusFromError(err, len(out.Answers))
	if err != nil {
		out.Error = err.Error()
	}
	return out
}

// httpStatus maps a resolver error to a response code.
func httpStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, dns.ErrInvalidHostname):
		return http.StatusBadRequest
	case dns.IsNXDomain(err):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

func parseType(v string) (dns.RecordType, error) {
	if strings.TrimSpace(v) == "" {
		return dns.TypeA, nil
	}
	return dns.ParseRecordType(v)
}

// Resolve answers GET /v1/resolve?name=&type=. type defaults to A.
func (h Handlers) Resolve(c *gin.Context) {
	if h.Resolver == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "resolver not configured"})
		return
	}
	clientID, err := auth.ClientID(c.Request.Context())
	if err != nil || clientID == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "client_id required"})
		return
	}
	name := strings.TrimSpace(c.Query("name"))
	if name == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "name required"})
		return
	}
	t, err := parseType(c.Query("type"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid record type"})
		return
	}

	res := h.resolve(c, clientID, name, t)
	if code := httpStatus(res.err); code != http.StatusOK {
		c.AbortWithStatusJSON(code, res.resolveResult)
		return
	}
	c.JSON(http.StatusOK, res.resolveResult)
}

type batchQuery struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type batchRequest struct {
	Queries []batchQuery `json:"queries"`
}

// ResolveBatch answers POST /v1/resolve/batch. Queries run concurrently and
// fail independently; results keep request order.
func (h Handlers) ResolveBatch(c *gin.Context) {
	if h.Resolver == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "resolver not configured"})
		return
	}
	clientID, err := auth.ClientID(c.Request.Context())
	if err != nil || clientID == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "client_id required"})
		return
	}
	var req batchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if len(req.Queries) == 0 || len(req.Queries) > MaxBatchQueries {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "queries must hold 1 to 32 entries"})
		return
	}

	results := make([]resolveResult, len(req.Queries))
	var g errgroup.Group
	g.SetLimit(batchWorkers)
	for i, q := range req.Queries {
		g.Go(func() error {
			t, err := parseType(q.Type)
			if err != nil {
				results[i] = resolveResult{Name: q.Name, Type: q.Type, Status: history.StatusError, Error: err.Error(), Answers: []answer{}}
				return nil
			}
			results[i] = h.resolve(c, clientID, strings.TrimSpace(q.Name), t).resolveResult
			return nil
		})
	}
	_ = g.Wait()
	c.JSON(http.StatusOK, gin.H{"results": results})
}

type resolved struct {
	resolveResult
	err error
}

// resolve runs one query and records it in history. Recording failures are
// logged and otherwise ignored. Valid names are reported in normalised form
// so that spellings of one name share history rows; invalid names keep the
// caller's spelling.
func (h Handlers) resolve(c *gin.Context, clientID, name string, t dns.RecordType) resolved {
	if n, err := dns.NormalizeHostname(name); err == nil {
		name = n
	}
	ctx := c.Request.Context()
	resp, err := h.Resolver.Query(ctx, name, t)
	if err != nil {
		logger.FromGin(c).Info("resolve failed", "name", name, "type", t.String(), "err", err)
	}

	if h.History != nil {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		if _, herr := h.History.Record(rctx, history.NewLookup(clientID, name, t, resp, err)); herr != nil {
			logger.FromGin(c).Warn("history record failed", "name", name, "err", herr)
		}
	}
	return resolved{resolveResult: newResolveResult(name, t, resp, err), err: err}
}
