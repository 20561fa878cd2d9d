package socks

import (
	"bytes"
	"strings"
	"testing"
)

func TestParseAddr(t *testing.T) {
	tests := []struct {
		in      string
		wantIP  bool
		wantStr string
	}{
		{"93.184.216.34:80", true, "93.184.216.34:80"},
		{"[2001:db8::1]:443", true, "[2001:db8::1]:443"},
		{"example.com:1080", false, "example.com:1080"},
		{"localhost:0", false, "localhost:0"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			addr, err := ParseAddr(tt.in)
			if err != nil {
				t.Fatal(err)
			}
			if (addr.IP != nil) != tt.wantIP {
				t.Fatalf("IP presence for %q: %v", tt.in, addr.IP)
			}
			if addr.String() != tt.wantStr {
				t.Fatalf("String() = %q, want %q", addr.String(), tt.wantStr)
			}
		})
	}
}

func TestParseAddrRejects(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"missing port", "example.com"},
		{"bad port", "example.com:http"},
		{"port overflow", "example.com:65536"},
		{"empty host", ":80"},
		{"oversized domain", strings.Repeat("a", 256) + ":80"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseAddr(tt.in); err == nil {
				t.Fatalf("parsed %q", tt.in)
			}
		})
	}
}

func TestAddrRoundTrip(t *testing.T) {
	for _, s := range []string{"127.0.0.1:80", "[2001:db8::1]:65535", "example.com:1"} {
		t.Run(s, func(t *testing.T) {
			addr := mustAddr(t, s)
			buf, err := addr.appendTo(nil)
			if err != nil {
				t.Fatal(err)
			}
			got, err := readAddr(bytes.NewReader(buf))
			if err != nil {
				t.Fatal(err)
			}
			if !addrEq(got, addr) {
				t.Fatalf("round trip %v, want %v", got, addr)
			}
		})
	}
}

func TestReadAddrRejects(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
	}{
		{"unknown tag", []byte("\x02\x7f\x00\x00\x01\x00\x50")},
		{"empty domain", []byte("\x03\x00\x00\x50")},
		{"truncated ipv6", []byte("\x04\x20\x01")},
		{"no input", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := readAddr(bytes.NewReader(tt.in)); err == nil {
				t.Fatalf("read % x", tt.in)
			}
		})
	}
}

func TestAddrNetAddr(t *testing.T) {
	addr := mustAddr(t, "example.com:1080")
	if addr.Network() != "socks5" {
		t.Fatalf("network %q", addr.Network())
	}
	// The zero placeholder used in failure replies.
	if zeroAddr.String() != "0.0.0.0:0" {
		t.Fatalf("placeholder %s", zeroAddr)
	}
}
