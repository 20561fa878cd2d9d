package dialer

import (
	"context"
	"fmt"
	"net"
	"time"

	"socksmith/pkg/sealed"
	"socksmith/pkg/socks"
)

// SOCKS5Dialer connects through an upstream SOCKS5 proxy using this
// module's own client handshake. With sealedLink set, the proxy
// connection is wrapped in a sealed stream before the handshake, for
// upstreams listening with the matching mode.
type SOCKS5Dialer struct {
	cfg        Config
	proxyAddr  string
	auth       *socks.Auth
	sealedLink bool
}

// NewSOCKS5Dialer returns a Dialer that forwards through the SOCKS5
// proxy at proxyAddr. auth may be nil for anonymous upstreams.
func NewSOCKS5Dialer(cfg Config, proxyAddr string, auth *socks.Auth, sealedLink bool) Dialer {
	return &SOCKS5Dialer{cfg: cfg, proxyAddr: proxyAddr, auth: auth, sealedLink: sealedLink}
}

func (d *SOCKS5Dialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	if network != "tcp" {
		return nil, fmt.Errorf("socks5 upstream dial %s %s: unsupported network", network, address)
	}

	dest, err := socks.ParseAddr(address)
	if err != nil {
		return nil, fmt.Errorf("socks5 upstream dial %s: %w", address, err)
	}

	nd := net.Dialer{Timeout: d.cfg.DialTimeout}
	conn, err := nd.DialContext(ctx, "tcp", d.proxyAddr)
	if err != nil {
		return nil, fmt.Errorf("socks5 upstream %s: %w", d.proxyAddr, err)
	}

	if tc, ok := conn.(*net.TCPConn); ok {
		tc.SetKeepAliveConfig(d.cfg.KeepAlive)
	}

	if d.cfg.DialTimeout > 0 {
		conn.SetDeadline(time.Now().Add(d.cfg.DialTimeout))
	}

	if d.sealedLink {
		sc, err := sealed.Client(conn)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("socks5 upstream %s: %w", d.proxyAddr, err)
		}
		conn = sc
	}

	client := socks.Client{Auth: d.auth}
	if _, err := client.Connect(conn, dest); err != nil {
		conn.Close()
		return nil, fmt.Errorf("socks5 upstream %s: %w", d.proxyAddr, err)
	}

	conn.SetDeadline(time.Time{})
	return conn, nil
}
