package server

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"socksmith/pkg/socks"
)

// Session tracks one client connection for the lifetime of its
// handler. Byte counters advance while the relay runs; the other
// fields are fixed once the handshake settles.
type Session struct {
	ID         uuid.UUID
	ClientAddr string
	StartedAt  time.Time

	mu          sync.Mutex
	destination string
	bound       string
	method      socks.Method
	established bool

	bytesIn  atomic.Int64 // upstream to client
	bytesOut atomic.Int64 // client to upstream
}

func newSession(clientAddr string) *Session {
	return &Session{
		ID:         uuid.New(),
		ClientAddr: clientAddr,
		StartedAt:  time.Now(),
	}
}

func (s *Session) establish(tun *socks.Tunnel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.destination = tun.Destination.String()
	s.bound = tun.Bound.String()
	s.method = tun.Method
	s.established = true
}

// SessionInfo is a point-in-time copy of a Session for display.
type SessionInfo struct {
	ID          uuid.UUID
	ClientAddr  string
	Destination string
	Bound       string
	Method      socks.Method
	StartedAt   time.Time
	BytesIn     int64
	BytesOut    int64
	Established bool
}

func (s *Session) snapshot() SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SessionInfo{
		ID:          s.ID,
		ClientAddr:  s.ClientAddr,
		Destination: s.destination,
		Bound:       s.bound,
		Method:      s.method,
		StartedAt:   s.StartedAt,
		BytesIn:     s.bytesIn.Load(),
		BytesOut:    s.bytesOut.Load(),
		Established: s.established,
	}
}
