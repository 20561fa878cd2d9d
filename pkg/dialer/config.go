package dialer

import (
	"net"
	"time"
)

// Config carries the dialing knobs shared by all dialer kinds.
type Config struct {
	// DialTimeout bounds connection establishment, and for upstream
	// proxies the proxy handshake as well. Zero means no limit.
	DialTimeout time.Duration

	// KeepAlive is applied to every outbound TCP connection.
	KeepAlive net.KeepAliveConfig
}
