// Package dialer provides the outbound dialing implementations used by
// socksmith listeners. Dialers implement a small interface (DialContext)
// and establish connections either directly or through an upstream
// SOCKS5 proxy, optionally over a sealed link.
package dialer
