package transport

import (
	"context"
	"net"
	"net/netip"
)

// UDPExchanger sends each query from a fresh ephemeral socket.
type UDPExchanger struct {
	opts Options
}

func (u *UDPExchanger) Exchange(ctx context.Context, server netip.Addr, query []byte) ([]byte, error) {
	addr := netip.AddrPortFrom(server, u.opts.Port)

	var d net.Dialer
	conn, err := d.DialContext(ctx, "udp", addr.String())
	if err != nil {
		return nil, &NetworkError{Op: "dial", Server: addr, Err: err}
	}
	defer conn.Close()

	if err := conn.SetDeadline(deadline(ctx, u.opts.Timeout)); err != nil {
		return nil, &NetworkError{Op: "deadline", Server: addr, Err: err}
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	if _, err := conn.Write(query); err != nil {
		return nil, &NetworkError{Op: "write", Server: addr, Err: ctxErr(ctx, err)}
	}

	buf := make([]byte, u.opts.UDPSize)
	n, err := conn.Read(buf)
	if err != nil {
		return nil, &NetworkError{Op: "read", Server: addr, Err: ctxErr(ctx, err)}
	}
	return buf[:n], nil
}

// ctxErr prefers the context's error when cancellation closed the socket.
func ctxErr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}
