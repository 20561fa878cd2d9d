package sealed

import (
	"crypto/rand"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/sha3"
)

// saltSize is the length of the key-derivation salt carried in the
// client hello.
const saltSize = 24

// Key-derivation labels. Each peer seals with its own label and opens
// with the other's, so the two directions never share a key stream.
var (
	labelClient = []byte("sealed client stream")
	labelServer = []byte("sealed server stream")
)

// generateKeyPair creates an ephemeral X25519 key pair for the
// handshake. The private key is clamped according to the X25519 spec.
func generateKeyPair() (privateKey, publicKey []byte, err error) {
	privateKey = make([]byte, curve25519.ScalarSize)
	if _, err := io.ReadFull(rand.Reader, privateKey); err != nil {
		return nil, nil, err
	}

	privateKey[0] &= 248
	privateKey[31] &= 127
	privateKey[31] |= 64

	publicKey, err = curve25519.X25519(privateKey, curve25519.Basepoint)
	if err != nil {
		return nil, nil, err
	}
	return privateKey, publicKey, nil
}

// deriveKey derives the symmetric key for one direction from the
// X25519 shared secret using HKDF-SHA3.
func deriveKey(sharedSecret, salt, label []byte) ([]byte, error) {
	kdf := hkdf.New(sha3.New256, sharedSecret, salt, label)
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, err
	}
	return key, nil
}
