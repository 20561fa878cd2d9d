// Package socks implements the SOCKS5 protocol engine.
package socks

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"strconv"
)

// Addr is a SOCKS5 address: an IPv4/IPv6 literal or a domain name, plus a
// 16-bit port. It is used both as the destination a client requests and as
// the bound address a server reports in its reply. The address format
// follows RFC 1928 Section 5:
//
//	+------+----------+----------+
//	| ATYP | DST.ADDR | DST.PORT |
//	+------+----------+----------+
//	|  1   | Variable |    2     |
type Addr struct {
	Name string // Domain name, used only when IP is nil
	IP   net.IP
	Port uint16
}

// zeroAddr is the unspecified placeholder carried by failure replies.
var zeroAddr = Addr{IP: net.IPv4zero}

// Network returns the address network so Addr satisfies net.Addr.
func (a Addr) Network() string { return "socks5" }

// String returns the address in host:port form, bracketing IPv6 literals.
func (a Addr) String() string {
	host := a.Name
	if a.IP != nil {
		host = a.IP.String()
	}
	return net.JoinHostPort(host, strconv.Itoa(int(a.Port)))
}

// ParseAddr converts a host:port string into an Addr. The host may be an IP
// literal or a domain name. Domain names are limited to 255 bytes by the
// one-byte length prefix of the wire encoding.
func ParseAddr(s string) (Addr, error) {
	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		return Addr{}, fmt.Errorf("invalid address %q: %w", s, err)
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return Addr{}, fmt.Errorf("invalid port in %q: %w", s, err)
	}

	addr := Addr{Port: uint16(port)}
	if ip := net.ParseIP(host); ip != nil {
		addr.IP = ip
		return addr, nil
	}
	if host == "" || len(host) > 255 {
		return Addr{}, fmt.Errorf("domain name length %d out of range", len(host))
	}
	addr.Name = host
	return addr, nil
}

// addrType returns the ATYP tag the address encodes with.
func (a Addr) addrType() byte {
	switch {
	case a.IP.To4() != nil:
		return IPv4
	case a.IP != nil:
		return IPv6
	default:
		return Domain
	}
}

// appendTo appends the ATYP, address bytes, and port to buf. It fails only
// on domain names the one-byte length prefix cannot represent.
func (a Addr) appendTo(buf []byte) ([]byte, error) {
	switch a.addrType() {
	case IPv4:
		buf = append(buf, IPv4)
		buf = append(buf, a.IP.To4()...)
	case IPv6:
		buf = append(buf, IPv6)
		buf = append(buf, a.IP.To16()...)
	default:
		if a.Name == "" || len(a.Name) > 255 {
			return nil, fmt.Errorf("domain name length %d out of range", len(a.Name))
		}
		buf = append(buf, Domain, byte(len(a.Name)))
		buf = append(buf, a.Name...)
	}
	return binary.BigEndian.AppendUint16(buf, a.Port), nil
}

// readAddr reads one ATYP-tagged address and port from r. On failure the
// returned Addr is the zero value and nothing else has been consumed beyond
// the bytes already read.
func readAddr(r io.Reader) (Addr, error) {
	var tag [1]byte
	if _, err := io.ReadFull(r, tag[:]); err != nil {
		return Addr{}, fmt.Errorf("read address type: %w", err)
	}

	var addr Addr
	switch tag[0] {
	case IPv4:
		buf := make([]byte, 4+2) // 4 bytes IPv4 + 2 bytes port
		if _, err := io.ReadFull(r, buf); err != nil {
			return Addr{}, fmt.Errorf("read IPv4 address: %w", err)
		}
		addr.IP = net.IPv4(buf[0], buf[1], buf[2], buf[3])
		addr.Port = binary.BigEndian.Uint16(buf[4:])

	case IPv6:
		buf := make([]byte, 16+2) // 16 bytes IPv6 + 2 bytes port
		if _, err := io.ReadFull(r, buf); err != nil {
			return Addr{}, fmt.Errorf("read IPv6 address: %w", err)
		}
		addr.IP = net.IP(buf[:16])
		addr.Port = binary.BigEndian.Uint16(buf[16:])

	case Domain:
		var length [1]byte
		if _, err := io.ReadFull(r, length[:]); err != nil {
			return Addr{}, fmt.Errorf("read domain length: %w", err)
		}
		if length[0] == 0 {
			return Addr{}, fmt.Errorf("empty domain name")
		}
		buf := make([]byte, int(length[0])+2) // domain + 2 bytes port
		if _, err := io.ReadFull(r, buf); err != nil {
			return Addr{}, fmt.Errorf("read domain name: %w", err)
		}
		addr.Name = string(buf[:length[0]])
		addr.Port = binary.BigEndian.Uint16(buf[length[0]:])

	default:
		return Addr{}, fmt.Errorf("unsupported address type 0x%02x", tag[0])
	}

	return addr, nil
}
