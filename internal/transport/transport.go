package transport

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"strings"
	"time"
)

// Exchanger sends one wire-format query to a name server and returns the raw
// response.
//
// Rules:
// - Implementations do not interpret the message; decoding belongs to internal/dns.
// - ctx bounds the whole exchange (dial, write, read).
// - Socket failures are reported as *NetworkError.
type Exchanger interface {
	Exchange(ctx context.Context, server netip.Addr, query []byte) ([]byte, error)
}

// Protocol names a DNS query transport.
type Protocol string

const (
	UDP Protocol = "udp"
	TCP Protocol = "tcp"
	DoT Protocol = "dot"
	DoH Protocol = "doh"
)

var ErrUnsupportedProtocol = errors.New("transport: unsupported protocol")

func ParseProtocol(s string) (Protocol, error) {
	switch p := Protocol(strings.ToLower(strings.TrimSpace(s))); p {
	case UDP, TCP, DoT, DoH:
		return p, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedProtocol, s)
	}
}

// Options controls exchanger behavior. Zero values get conservative defaults.
type Options struct {
	// Timeout applies when ctx carries no earlier deadline.
	Timeout time.Duration

	// Port overrides the protocol's well-known port (53, or 853 for DoT).
	Port uint16

	// UDPSize is the receive buffer for UDP. RFC 1035 4.2.1 restricts UDP
	// messages to 512 bytes.
	UDPSize int

	// TLSServerName is verified against the server certificate for DoT.
	// When empty, certificate verification is skipped because name servers are
	// addressed by IP.
	TLSServerName string
}

func (o Options) withDefaults(p Protocol) Options {
	out := o
	if out.Timeout <= 0 {
		out.Timeout = 3 * time.Second
	}
	if out.Port == 0 {
		out.Port = 53
		if p == DoT {
			out.Port = 853
		}
	}
	if out.UDPSize <= 0 {
		out.UDPSize = 512
	}
	return out
}

// New returns the exchanger for p.
func New(p Protocol, opts Options) (Exchanger, error) {
	opts = opts.withDefaults(p)
	switch p {
	case UDP:
		return &UDPExchanger{opts: opts}, nil
	case TCP:
		return &TCPExchanger{opts: opts}, nil
	case DoT:
		return &TCPExchanger{opts: opts, tls: true}, nil
	default:
		// DoH needs an upstream URL, which iterative resolution never has
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedProtocol, p)
	}
}

// NetworkError wraps a socket failure while talking to a name server.
type NetworkError struct {
	Op     string
	Server netip.AddrPort
	Err    error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("transport: %s %s: %v", e.Op, e.Server, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

func deadline(ctx context.Context, timeout time.Duration) time.Time {
	d := time.Now().Add(timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(d) {
		return ctxDeadline
	}
	return d
}
