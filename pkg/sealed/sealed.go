// Package sealed wraps a net.Conn in an encrypted stream layer for
// daemon-to-daemon links. Peers perform an ephemeral X25519 key
// exchange, derive one XChaCha20-Poly1305 key per direction with
// HKDF-SHA3-256, and then exchange length-prefixed sealed frames.
//
// The exchange is unauthenticated: it protects traffic from passive
// observers and tampering on the path, not from an active peer
// impersonator. Pair it with SOCKS credential checks on the inner
// stream when the listener must know who is connecting.
package sealed

import (
	"crypto/rand"
	"fmt"
	"io"
	"net"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/curve25519"
)

// Client runs the initiating half of the handshake on conn. It sends
// an ephemeral public key together with a key-derivation salt, reads
// the peer's public key, and returns a connection whose Read and
// Write carry sealed frames. On error conn is left in an unusable
// state and should be closed by the caller.
func Client(conn net.Conn) (net.Conn, error) {
	privateKey, publicKey, err := generateKeyPair()
	if err != nil {
		return nil, fmt.Errorf("sealed handshake: %w", err)
	}

	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("sealed handshake: %w", err)
	}

	hello := make([]byte, 0, len(publicKey)+len(salt))
	hello = append(hello, publicKey...)
	hello = append(hello, salt...)
	if _, err := conn.Write(hello); err != nil {
		return nil, fmt.Errorf("sealed handshake: send hello: %w", err)
	}

	peerKey := make([]byte, curve25519.PointSize)
	if _, err := io.ReadFull(conn, peerKey); err != nil {
		return nil, fmt.Errorf("sealed handshake: read peer key: %w", err)
	}

	return newConn(conn, privateKey, peerKey, salt, labelClient, labelServer)
}

// Server runs the accepting half of the handshake on conn: it reads
// the initiator's hello, answers with its own ephemeral public key,
// and returns the sealed connection.
func Server(conn net.Conn) (net.Conn, error) {
	hello := make([]byte, curve25519.PointSize+saltSize)
	if _, err := io.ReadFull(conn, hello); err != nil {
		return nil, fmt.Errorf("sealed handshake: read hello: %w", err)
	}
	peerKey, salt := hello[:curve25519.PointSize], hello[curve25519.PointSize:]

	privateKey, publicKey, err := generateKeyPair()
	if err != nil {
		return nil, fmt.Errorf("sealed handshake: %w", err)
	}
	if _, err := conn.Write(publicKey); err != nil {
		return nil, fmt.Errorf("sealed handshake: send key: %w", err)
	}

	return newConn(conn, privateKey, peerKey, salt, labelServer, labelClient)
}

// newConn completes the key agreement and builds the framed
// connection. X25519 rejects low-order peer points, so a handshake
// against a degenerate key fails here rather than producing a
// predictable key.
func newConn(raw net.Conn, privateKey, peerKey, salt, sendLabel, recvLabel []byte) (net.Conn, error) {
	sharedSecret, err := curve25519.X25519(privateKey, peerKey)
	if err != nil {
		return nil, fmt.Errorf("sealed handshake: %w", err)
	}

	sendKey, err := deriveKey(sharedSecret, salt, sendLabel)
	if err != nil {
		return nil, fmt.Errorf("sealed handshake: %w", err)
	}
	recvKey, err := deriveKey(sharedSecret, salt, recvLabel)
	if err != nil {
		return nil, fmt.Errorf("sealed handshake: %w", err)
	}

	sealAEAD, err := chacha20poly1305.NewX(sendKey)
	if err != nil {
		return nil, fmt.Errorf("sealed handshake: %w", err)
	}
	openAEAD, err := chacha20poly1305.NewX(recvKey)
	if err != nil {
		return nil, fmt.Errorf("sealed handshake: %w", err)
	}

	return &Conn{raw: raw, seal: sealAEAD, open: openAEAD}, nil
}
