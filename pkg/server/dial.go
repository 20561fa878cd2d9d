package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"

	"socksmith/pkg/dialer"
	"socksmith/pkg/socks"
)

// destDialer adapts an outbound dialer.Dialer to the engine's
// destination dialer. Failures are classified into reply kinds so the
// acceptor can tell the client why the connect failed; the bound
// address reported on success is the outbound conn's local address.
type destDialer struct {
	out dialer.Dialer
}

func (d *destDialer) DialDestination(ctx context.Context, dest socks.Addr) (io.ReadWriteCloser, socks.Addr, error) {
	conn, err := d.out.DialContext(ctx, "tcp", dest.String())
	if err != nil {
		return nil, socks.Addr{}, dialError(err)
	}

	var bound socks.Addr
	if tcp, ok := conn.LocalAddr().(*net.TCPAddr); ok {
		bound = socks.Addr{IP: tcp.IP, Port: uint16(tcp.Port)}
	}
	return conn, bound, nil
}

// dialError pairs a dial failure with the reply kind the client will
// see. The original error stays in the chain for logging.
func dialError(err error) error {
	// When the outbound path is itself a SOCKS5 chain, keep whatever
	// reply the upstream proxy gave instead of reclassifying.
	var herr *socks.HandshakeError
	if errors.As(err, &herr) && herr.Kind == socks.KindReply {
		return fmt.Errorf("%w: %w", &socks.ReplyError{Kind: herr.Reply}, err)
	}
	return fmt.Errorf("%w: %w", &socks.ReplyError{Kind: replyForDialError(err)}, err)
}

func replyForDialError(err error) socks.ReplyKind {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return socks.ReplyTTLExpired
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return socks.ReplyHostUnreachable
	}

	switch {
	case errors.Is(err, syscall.ECONNREFUSED):
		return socks.ReplyConnectionRefused
	case errors.Is(err, syscall.ENETUNREACH):
		return socks.ReplyNetworkUnreachable
	case errors.Is(err, syscall.EHOSTUNREACH):
		return socks.ReplyHostUnreachable
	case errors.Is(err, syscall.ETIMEDOUT):
		return socks.ReplyTTLExpired
	}
	return socks.ReplyGeneralFailure
}
