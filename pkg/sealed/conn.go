package sealed

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"golang.org/x/crypto/chacha20poly1305"
)

// maxPayload is the largest plaintext carried by a single frame.
// Writes larger than this are split across frames.
const maxPayload = 16 * 1024

// frameOverhead is the sealed bytes added around each payload: the
// per-frame nonce plus the Poly1305 tag.
const frameOverhead = chacha20poly1305.NonceSizeX + chacha20poly1305.Overhead

var errFrameTooShort = errors.New("sealed frame shorter than nonce and tag")

// Conn carries sealed frames over an underlying net.Conn. Each frame
// is laid out as:
//
//	+--------+-------+------------+
//	| LENGTH | NONCE | CIPHERTEXT |
//	+--------+-------+------------+
//	|   2    |  24   |  Variable  |
//
// LENGTH is big-endian and covers NONCE and CIPHERTEXT. CIPHERTEXT
// includes the authentication tag, so even an empty payload occupies
// 16 bytes on the wire.
type Conn struct {
	raw  net.Conn
	seal cipher.AEAD
	open cipher.AEAD

	readMu   sync.Mutex
	leftover []byte

	writeMu sync.Mutex
}

// Read returns plaintext from the next frame, buffering whatever does
// not fit in p for later calls. A clean close by the peer between
// frames surfaces as io.EOF; a close mid-frame as io.ErrUnexpectedEOF.
func (c *Conn) Read(p []byte) (int, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	for len(c.leftover) == 0 {
		frame, err := c.readFrame()
		if err != nil {
			return 0, err
		}

		nonce := frame[:chacha20poly1305.NonceSizeX]
		plaintext, err := c.open.Open(nil, nonce, frame[chacha20poly1305.NonceSizeX:], nil)
		if err != nil {
			return 0, fmt.Errorf("sealed read: %w", err)
		}
		c.leftover = plaintext
	}

	n := copy(p, c.leftover)
	c.leftover = c.leftover[n:]
	return n, nil
}

func (c *Conn) readFrame() ([]byte, error) {
	var header [2]byte
	if _, err := io.ReadFull(c.raw, header[:]); err != nil {
		return nil, err
	}

	length := binary.BigEndian.Uint16(header[:])
	if int(length) < frameOverhead {
		return nil, errFrameTooShort
	}

	frame := make([]byte, length)
	if _, err := io.ReadFull(c.raw, frame); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return frame, nil
}

// Write seals p into one or more frames with fresh random nonces.
func (c *Conn) Write(p []byte) (int, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	total := 0
	for len(p) > 0 {
		chunk := p
		if len(chunk) > maxPayload {
			chunk = chunk[:maxPayload]
		}
		if err := c.writeFrame(chunk); err != nil {
			return total, err
		}
		total += len(chunk)
		p = p[len(chunk):]
	}
	return total, nil
}

func (c *Conn) writeFrame(chunk []byte) error {
	frame := make([]byte, 2, 2+frameOverhead+len(chunk))

	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return fmt.Errorf("sealed write: %w", err)
	}

	// Seal appends nonce || ciphertext || tag after the length slot.
	frame = append(frame, c.seal.Seal(nonce, nonce, chunk, nil)...)
	binary.BigEndian.PutUint16(frame[:2], uint16(len(frame)-2))

	if _, err := c.raw.Write(frame); err != nil {
		return fmt.Errorf("sealed write: %w", err)
	}
	return nil
}

func (c *Conn) Close() error                       { return c.raw.Close() }
func (c *Conn) LocalAddr() net.Addr                { return c.raw.LocalAddr() }
func (c *Conn) RemoteAddr() net.Addr               { return c.raw.RemoteAddr() }
func (c *Conn) SetDeadline(t time.Time) error      { return c.raw.SetDeadline(t) }
func (c *Conn) SetReadDeadline(t time.Time) error  { return c.raw.SetReadDeadline(t) }
func (c *Conn) SetWriteDeadline(t time.Time) error { return c.raw.SetWriteDeadline(t) }
