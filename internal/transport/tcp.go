package transport

import (
	"context"
	"crypto/tls"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"net/netip"
)

var errMessageTooLarge = errors.New("message exceeds 65535 bytes")

// TCPExchanger frames messages with the two-byte length prefix of RFC 1035
// 4.2.2. With tls set it speaks DNS over TLS (RFC 7858).
type TCPExchanger struct {
	opts Options
	tls  bool
}

func (t *TCPExchanger) Exchange(ctx context.Context, server netip.Addr, query []byte) ([]byte, error) {
	addr := netip.AddrPortFrom(server, t.opts.Port)
	if len(query) > 0xFFFF {
		return nil, &NetworkError{Op: "write", Server: addr, Err: errMessageTooLarge}
	}

	conn, err := t.dial(ctx, addr)
	if err != nil {
		return nil, &NetworkError{Op: "dial", Server: addr, Err: ctxErr(ctx, err)}
	}
	defer conn.Close()

	if err := conn.SetDeadline(deadline(ctx, t.opts.Timeout)); err != nil {
		return nil, &NetworkError{Op: "deadline", Server: addr, Err: err}
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	frame := binary.BigEndian.AppendUint16(make([]byte, 0, 2+len(query)), uint16(len(query)))
	frame = append(frame, query...)
	if _, err := conn.Write(frame); err != nil {
		return nil, &NetworkError{Op: "write", Server: addr, Err: ctxErr(ctx, err)}
	}

	var prefix [2]byte
	if _, err := io.ReadFull(conn, prefix[:]); err != nil {
		return nil, &NetworkError{Op: "read", Server: addr, Err: ctxErr(ctx, err)}
	}
	resp := make([]byte, binary.BigEndian.Uint16(prefix[:]))
	if _, err := io.ReadFull(conn, resp); err != nil {
		return nil, &NetworkError{Op: "read", Server: addr, Err: ctxErr(ctx, err)}
	}
	return resp, nil
}

func (t *TCPExchanger) dial(ctx context.Context, addr netip.AddrPort) (net.Conn, error) {
	d := &net.Dialer{Deadline: deadline(ctx, t.opts.Timeout)}
	if !t.tls {
		return d.DialContext(ctx, "tcp", addr.String())
	}
	cfg := &tls.Config{
		ServerName: t.opts.TLSServerName,
		MinVersion: tls.VersionTLS12,
	}
	if cfg.ServerName == "" {
		cfg.InsecureSkipVerify = true //nolint:gosec // servers are addressed by IP during iteration
	}
	td := &tls.Dialer{NetDialer: d, Config: cfg}
	return td.DialContext(ctx, "tcp", addr.String())
}
