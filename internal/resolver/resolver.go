package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net/netip"
	"sync"
	"time"

	"tiny-resolver/internal/dns"
	"tiny-resolver/internal/transport"
	"tiny-resolver/pkg/logger"
)

const (
	DefaultMaxAttempts = 5
	DefaultMaxDepth    = 8

	// maxCNAMEChain bounds how many aliases are chased for one query.
	maxCNAMEChain = 8
)

var (
	ErrMismatchedResponse = errors.New("resolver: mismatched response")
	ErrNoNameServer       = errors.New("resolver: can't pick name server")
	ErrMaxAttempts        = errors.New("problem resolving address")
	ErrMaxDepth           = errors.New("resolver: name server delegation too deep")
	ErrCNAMEChain         = errors.New("resolver: CNAME chain too long")
)

// Cache stores complete answers keyed by name and type. TTL reports how long
// an entry has left to live; zero means it is gone.
type Cache interface {
	Get(ctx context.Context, name string, t dns.RecordType) (*dns.Message, bool, error)
	Set(ctx context.Context, name string, t dns.RecordType, m *dns.Message, ttl time.Duration) error
	TTL(ctx context.Context, name string, t dns.RecordType) (time.Duration, error)
}

// Resolver walks the DNS tree from the root servers down to the name server
// that answers a question.
//
// Rules:
// - Queries are non-recursive; every hop is chosen here.
// - Glue A records in the additional section are preferred over resolving NS names.
// - An SOA-only authority section ends the walk with an empty answer (NODATA).
// - Nothing is cached unless every answer carries a non-zero TTL.
type Resolver struct {
	Exchanger transport.Exchanger

	// Fallback re-asks over a stream transport when a response is truncated.
	Fallback transport.Exchanger

	Roots       []netip.Addr
	MaxAttempts int
	MaxDepth    int
	FollowCNAME bool

	Cache  Cache
	RNG    *rand.Rand
	Logger *slog.Logger

	once sync.Once
	sel  *selector
}

// Response is a resolved answer together with the servers that were asked.
type Response struct {
	Message  *dns.Message
	Servers  []netip.Addr
	Cached   bool
	Duration time.Duration
}

// Answers returns the answer section, or nil.
func (r *Response) Answers() []dns.ResourceRecord {
	if r == nil || r.Message == nil {
		return nil
	}
	return r.Message.Answers
}

func New(ex transport.Exchanger) *Resolver {
	return &Resolver{Exchanger: ex, Roots: RootServers, MaxAttempts: DefaultMaxAttempts, MaxDepth: DefaultMaxDepth}
}

// NewForProtocol builds a resolver over protocol p. UDP resolvers get a TCP
// fallback for truncated responses.
func NewForProtocol(p transport.Protocol, opts transport.Options) (*Resolver, error) {
	ex, err := transport.New(p, opts)
	if err != nil {
		return nil, err
	}
	r := New(ex)
	if p == transport.UDP {
		if r.Fallback, err = transport.New(transport.TCP, opts); err != nil {
			return nil, err
		}
	}
	return r, nil
}

var defaultResolver = sync.OnceValues(func() (*Resolver, error) {
	return NewForProtocol(transport.UDP, transport.Options{})
})

// Query resolves name with a shared UDP resolver.
func Query(ctx context.Context, name string, t dns.RecordType) (*Response, error) {
	r, err := defaultResolver()
	if err != nil {
		return nil, err
	}
	return r.Query(ctx, name, t)
}

// Query resolves name for type t.
func (r *Resolver) Query(ctx context.Context, name string, t dns.RecordType) (*Response, error) {
	start := time.Now()
	name, err := dns.NormalizeHostname(name)
	if err != nil {
		return nil, err
	}
	log := r.logger(ctx).With("name", name, "type", t.String())

	if r.Cache != nil {
		m, ok, err := r.Cache.Get(ctx, name, t)
		if err != nil {
			log.Warn("cache get failed", "err", err)
		} else if ok {
			if m, ok = r.aged(ctx, log, name, t, m); ok {
				log.Debug("cache hit")
				return &Response{Message: m, Cached: true, Duration: time.Since(start)}, nil
			}
		}
	}

	w := &walk{r: r, log: log}
	m, err := w.resolve(ctx, name, t, 0)
	if err != nil {
		return nil, err
	}
	if r.FollowCNAME && t != dns.TypeCNAME {
		if m, err = w.chase(ctx, m, t); err != nil {
			return nil, err
		}
	}

	if r.Cache != nil {
		if ttl := m.MinAnswerTTL(); ttl > 0 {
			if err := r.Cache.Set(ctx, name, t, m, time.Duration(ttl)*time.Second); err != nil {
				log.Warn("cache set failed", "err", err)
			}
		}
	}
	return &Response{Message: m, Servers: w.servers, Duration: time.Since(start)}, nil
}

// aged returns a copy of a cached message whose record TTLs count down with
// the cache entry. ok is false when the entry expired after it was read.
func (r *Resolver) aged(ctx context.Context, log *slog.Logger, name string, t dns.RecordType, m *dns.Message) (*dns.Message, bool) {
	left, err := r.Cache.TTL(ctx, name, t)
	if err != nil {
		log.Warn("cache ttl failed", "err", err)
		return m, true
	}
	if left <= 0 {
		return nil, false
	}
	secs := uint32((left + time.Second - 1) / time.Second)

	out := *m
	out.Answers = capTTL(m.Answers, secs)
	out.Authorities = capTTL(m.Authorities, secs)
	out.Additionals = capTTL(m.Additionals, secs)
	return &out, true
}

func capTTL(rrs []dns.ResourceRecord, secs uint32) []dns.ResourceRecord {
	if rrs == nil {
		return nil
	}
	out := make([]dns.ResourceRecord, len(rrs))
	for i, rr := range rrs {
		rr.TTL = min(rr.TTL, secs)
		out[i] = rr
	}
	return out
}

func (r *Resolver) logger(ctx context.Context) *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return logger.From(ctx)
}

func (r *Resolver) selector() *selector {
	r.once.Do(func() { r.sel = newSelector(r.RNG) })
	return r.sel
}

func (r *Resolver) maxAttempts() int {
	if r.MaxAttempts <= 0 {
		return DefaultMaxAttempts
	}
	return r.MaxAttempts
}

func (r *Resolver) maxDepth() int {
	if r.MaxDepth <= 0 {
		return DefaultMaxDepth
	}
	return r.MaxDepth
}

func (r *Resolver) roots() []netip.Addr {
	if len(r.Roots) == 0 {
		return RootServers
	}
	return r.Roots
}

// walk is the state of a single top-level query.
type walk struct {
	r       *Resolver
	log     *slog.Logger
	servers []netip.Addr
}

func (w *walk) resolve(ctx context.Context, name string, t dns.RecordType, depth int) (*dns.Message, error) {
	if depth > w.r.maxDepth() {
		return nil, fmt.Errorf("%w: %s", ErrMaxDepth, name)
	}
	w.log.Debug("looking up", "lookup", name, "depth", depth)

	server, ok := pick(w.r.selector(), w.r.roots())
	if !ok {
		return nil, ErrNoNameServer
	}
	m, err := w.exchange(ctx, server, name, t)
	if err != nil {
		return nil, err
	}

	for attempts := 0; attempts < w.r.maxAttempts(); attempts++ {
		if len(m.Answers) > 0 {
			return m, nil
		}
		next, nodata, err := w.nextServer(ctx, m, depth)
		if err != nil {
			return nil, err
		}
		if nodata {
			w.log.Debug("no data", "lookup", name)
			return m, nil
		}

		w.log.Debug("continuing with name server", "lookup", name, "server", next.String())
		if m, err = w.exchange(ctx, next, name, t); err != nil {
			return nil, err
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrMaxAttempts, name)
}

// nextServer chooses where a referral points. nodata is set when the
// response is a final negative answer.
func (w *walk) nextServer(ctx context.Context, m *dns.Message, depth int) (netip.Addr, bool, error) {
	sel := w.r.selector()

	if ip, ok := pick(sel, ipv4s(m.Additionals)); ok {
		w.log.Debug("glue from additional section", "server", ip.String())
		return ip, false, nil
	}

	if host, ok := pick(sel, nsHosts(m.Authorities)); ok {
		ns, err := w.resolve(ctx, host, dns.TypeA, depth+1)
		if err != nil {
			return netip.Addr{}, false, err
		}
		ip, ok := pick(sel, ipv4s(ns.Answers))
		if !ok {
			return netip.Addr{}, false, fmt.Errorf("%w: %s has no address", ErrNoNameServer, host)
		}
		w.log.Debug("resolved name server", "ns", host, "server", ip.String())
		return ip, false, nil
	}

	if hasSOA(m.Authorities) {
		return netip.Addr{}, true, nil
	}
	return netip.Addr{}, false, ErrNoNameServer
}

// chase follows CNAME answers until the requested type shows up.
func (w *walk) chase(ctx context.Context, m *dns.Message, t dns.RecordType) (*dns.Message, error) {
	out := *m
	out.Answers = append([]dns.ResourceRecord(nil), m.Answers...)

	cur := m
	for range maxCNAMEChain {
		if len(cur.AnswersOf(t)) > 0 {
			return &out, nil
		}
		aliases := cur.AnswersOf(dns.TypeCNAME)
		if len(aliases) == 0 {
			return &out, nil
		}
		target := aliases[len(aliases)-1].Data.String()
		w.log.Debug("following CNAME", "target", target)

		next, err := w.resolve(ctx, target, t, 0)
		if err != nil {
			return nil, err
		}
		out.Answers = append(out.Answers, next.Answers...)
		cur = next
	}
	if len(cur.AnswersOf(t)) > 0 || len(cur.AnswersOf(dns.TypeCNAME)) == 0 {
		return &out, nil
	}
	return nil, ErrCNAMEChain
}

func (w *walk) exchange(ctx context.Context, server netip.Addr, name string, t dns.RecordType) (*dns.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	w.servers = append(w.servers, server)

	q := dns.NewQuery(name, t)
	wire, err := q.Pack()
	if err != nil {
		return nil, err
	}
	raw, err := w.r.Exchanger.Exchange(ctx, server, wire)
	if err != nil {
		return nil, err
	}

	if w.r.Fallback != nil {
		if h, err := dns.PeekHeader(raw); err == nil && h.Truncated() {
			w.log.Debug("truncated response, retrying over stream", "server", server.String())
			if raw, err = w.r.Fallback.Exchange(ctx, server, wire); err != nil {
				return nil, err
			}
		}
	}

	m, err := dns.ParseResponse(raw, q)
	if errors.Is(err, dns.ErrMismatchedHeader) || errors.Is(err, dns.ErrMismatchedQuestion) {
		return nil, fmt.Errorf("%w from %s: %w", ErrMismatchedResponse, server, err)
	}
	return m, err
}
