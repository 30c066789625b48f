package resolver

import (
	"math/rand"
	"net/netip"
	"sync"
	"time"

	"tiny-resolver/internal/dns"
)

// selector picks uniformly among candidate servers. *rand.Rand is not safe
// for concurrent use, so picks are serialized.
type selector struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func newSelector(rng *rand.Rand) *selector {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &selector{rng: rng}
}

func (s *selector) intn(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Intn(n)
}

func pick[T any](s *selector, candidates []T) (T, bool) {
	var zero T
	if len(candidates) == 0 {
		return zero, false
	}
	return candidates[s.intn(len(candidates))], true
}

// ipv4s returns the addresses of the A records in rrs.
func ipv4s(rrs []dns.ResourceRecord) []netip.Addr {
	var out []netip.Addr
	for _, rr := range rrs {
		if ip, ok := rr.IPv4(); ok {
			out = append(out, ip)
		}
	}
	return out
}

// nsHosts returns the targets of the NS records in rrs.
func nsHosts(rrs []dns.ResourceRecord) []string {
	var out []string
	for _, rr := range rrs {
		if ns, ok := rr.Data.(*dns.NS); ok && rr.Type == dns.TypeNS {
			out = append(out, ns.Host)
		}
	}
	return out
}

func hasSOA(rrs []dns.ResourceRecord) bool {
	for _, rr := range rrs {
		if rr.Type == dns.TypeSOA {
			return true
		}
	}
	return false
}
