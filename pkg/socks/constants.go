// Package socks implements the SOCKS5 protocol engine.
package socks

import "fmt"

// SOCKS protocol versions.
const (
	Version5        byte = 0x05 // SOCKS Protocol Version 5
	UserPassVersion byte = 0x01 // Username/password sub-negotiation version (RFC 1929)
)

// Method is an authentication method identifier as defined in RFC 1928.
// The byte space is open: values outside the named constants are carried
// as-is, so unrecognized methods survive a round trip instead of being
// rejected.
type Method byte

// Authentication methods as defined in RFC 1928.
const (
	MethodNoAuth       Method = 0x00 // No authentication required
	MethodGSSAPI       Method = 0x01 // GSSAPI
	MethodUserPass     Method = 0x02 // Username/Password (RFC 1929)
	MethodNoAcceptable Method = 0xFF // No acceptable methods
)

func (m Method) String() string {
	switch m {
	case MethodNoAuth:
		return "no authentication required"
	case MethodGSSAPI:
		return "gssapi"
	case MethodUserPass:
		return "username/password"
	case MethodNoAcceptable:
		return "no acceptable methods"
	default:
		return fmt.Sprintf("method(0x%02x)", byte(m))
	}
}

// Command is a SOCKS5 request command. Unknown command bytes are carried
// as-is and refused during dispatch rather than at decode time.
type Command byte

// SOCKS5 commands that clients may request.
const (
	CommandConnect   Command = 0x01 // Establish TCP/IP stream connection
	CommandBind      Command = 0x02 // Listen for incoming TCP connection
	CommandAssociate Command = 0x03 // Set up UDP relay
)

func (c Command) String() string {
	switch c {
	case CommandConnect:
		return "connect"
	case CommandBind:
		return "bind"
	case CommandAssociate:
		return "udp associate"
	default:
		return fmt.Sprintf("command(0x%02x)", byte(c))
	}
}

// ReplyKind is a server reply status. It is the only vocabulary the wire
// offers for telling the peer why a request failed, so every internal
// handshake error projects onto one of these values.
type ReplyKind byte

// Reply codes sent from server to client.
const (
	ReplySucceeded           ReplyKind = 0x00 // Request granted
	ReplyGeneralFailure      ReplyKind = 0x01 // General SOCKS server failure
	ReplyNotAllowed          ReplyKind = 0x02 // Connection not allowed by ruleset
	ReplyNetworkUnreachable  ReplyKind = 0x03 // Network unreachable
	ReplyHostUnreachable     ReplyKind = 0x04 // Host unreachable
	ReplyConnectionRefused   ReplyKind = 0x05 // Connection refused by destination
	ReplyTTLExpired          ReplyKind = 0x06 // TTL expired
	ReplyCommandNotSupported ReplyKind = 0x07 // Command not supported
	ReplyAddressNotSupported ReplyKind = 0x08 // Address type not supported
)

func (k ReplyKind) String() string {
	switch k {
	case ReplySucceeded:
		return "succeeded"
	case ReplyGeneralFailure:
		return "general SOCKS server failure"
	case ReplyNotAllowed:
		return "connection not allowed by ruleset"
	case ReplyNetworkUnreachable:
		return "network unreachable"
	case ReplyHostUnreachable:
		return "host unreachable"
	case ReplyConnectionRefused:
		return "connection refused"
	case ReplyTTLExpired:
		return "TTL expired"
	case ReplyCommandNotSupported:
		return "command not supported"
	case ReplyAddressNotSupported:
		return "address type not supported"
	default:
		return fmt.Sprintf("reply(0x%02x)", byte(k))
	}
}

// Address types for target addresses.
const (
	IPv4   byte = 0x01 // IPv4 address (4 bytes)
	Domain byte = 0x03 // Domain name (variable length)
	IPv6   byte = 0x04 // IPv6 address (16 bytes)
)

// Username/password sub-negotiation status codes.
const (
	UserPassSuccess byte = 0x00 // Credential accepted
	UserPassFailure byte = 0x01 // Credential rejected
)
