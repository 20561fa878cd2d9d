// Package server implements the SOCKS5 listener harness. It accepts
// client connections, runs the engine handshake on each, and relays
// traffic to destinations through a configurable outbound dialer. The
// harness manages connection lifecycle, per-session accounting, and
// optional sealed links.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"socksmith/pkg/dialer"
	"socksmith/pkg/sealed"
	"socksmith/pkg/socks"
)

// Defaults applied when Config leaves the corresponding field zero.
const (
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultDialTimeout      = 10 * time.Second
)

// Config carries the harness policy. The zero value is a workable
// open proxy dialing directly.
type Config struct {
	// Credential enables username/password authentication against a
	// single static credential.
	Credential *socks.Auth

	// Verify enables username/password authentication against a
	// callback, typically a credential store. Takes precedence over
	// Credential when both are set.
	Verify func(username, password string) bool

	// Dialer establishes outbound connections. Nil means dialing
	// destinations directly with DefaultDialTimeout.
	Dialer dialer.Dialer

	// Sealed wraps every accepted connection in a sealed stream
	// before the SOCKS handshake.
	Sealed bool

	// HandshakeTimeout bounds the sealed and SOCKS handshakes on each
	// accepted connection.
	HandshakeTimeout time.Duration
}

// Server accepts SOCKS5 clients and relays their tunnels. Create one
// with New; a zero Server is not usable.
type Server struct {
	cfg      Config
	acceptor *socks.Acceptor

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	listener net.Listener

	sessions sync.Map // uuid.UUID -> *Session
	handlers sync.WaitGroup
}

// New builds a Server governed by ctx: canceling ctx stops the accept
// loop and tears down every live session.
func New(ctx context.Context, cfg Config) *Server {
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = DefaultHandshakeTimeout
	}

	out := cfg.Dialer
	if out == nil {
		out = dialer.NewDirectDialer(dialer.Config{DialTimeout: DefaultDialTimeout})
	}

	ctx, cancel := context.WithCancel(ctx)
	return &Server{
		cfg:    cfg,
		ctx:    ctx,
		cancel: cancel,
		acceptor: &socks.Acceptor{
			Credential: cfg.Credential,
			Verify:     cfg.Verify,
			Dialer:     &destDialer{out: out},
		},
	}
}

// Start begins listening on address and serves in the background.
// It returns once the listener is bound, so Addr is valid on return.
func (s *Server) Start(address string) error {
	ln, err := net.Listen("tcp", address)
	if err != nil {
		return fmt.Errorf("listen %s: %w", address, err)
	}

	log.Info().Str("addr", ln.Addr().String()).Bool("sealed", s.cfg.Sealed).Msg("SOCKS5 listener started")
	go func() {
		if err := s.Serve(ln); err != nil {
			log.Error().Err(err).Msg("Listener terminated")
		}
	}()
	return nil
}

// ListenAndServe listens on address and blocks serving until Stop is
// called or the accept loop fails.
func (s *Server) ListenAndServe(address string) error {
	ln, err := net.Listen("tcp", address)
	if err != nil {
		return fmt.Errorf("listen %s: %w", address, err)
	}
	log.Info().Str("addr", ln.Addr().String()).Bool("sealed", s.cfg.Sealed).Msg("SOCKS5 listener started")
	return s.Serve(ln)
}

// Serve accepts connections on ln until the server stops. A nil
// return means a clean shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	defer ln.Close()

	// Stop may have run before the listener was registered.
	if s.ctx.Err() != nil {
		return nil
	}

	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			return fmt.Errorf("accept: %w", err)
		}

		s.handlers.Add(1)
		go func() {
			defer s.handlers.Done()
			s.handle(conn)
		}()
	}
}

// Addr returns the bound listener address, or nil before Start/Serve.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop terminates the accept loop, closes every live connection, and
// waits for their handlers to finish.
func (s *Server) Stop() {
	s.cancel()
	s.mu.Lock()
	if s.listener != nil {
		s.listener.Close()
	}
	s.mu.Unlock()
	s.handlers.Wait()
}

// Sessions snapshots the live session registry, oldest first.
func (s *Server) Sessions() []SessionInfo {
	var out []SessionInfo
	s.sessions.Range(func(_, value any) bool {
		out = append(out, value.(*Session).snapshot())
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out
}

// handle owns one client connection from accept to teardown.
func (s *Server) handle(conn net.Conn) {
	defer conn.Close()

	sess := newSession(conn.RemoteAddr().String())
	s.sessions.Store(sess.ID, sess)
	defer s.sessions.Delete(sess.ID)

	logger := log.With().Stringer("session", sess.ID).Str("client", sess.ClientAddr).Logger()

	// Unblock the handshake and relay when the server stops.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-s.ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	conn.SetDeadline(time.Now().Add(s.cfg.HandshakeTimeout))

	link := conn
	if s.cfg.Sealed {
		sc, err := sealed.Server(conn)
		if err != nil {
			logger.Warn().Err(err).Msg("Sealed handshake failed")
			return
		}
		link = sc
	}

	tun, err := s.acceptor.Accept(s.ctx, link)
	if err != nil {
		var herr *socks.HandshakeError
		if errors.As(err, &herr) {
			logger.Warn().Err(err).Stringer("reply", herr.ReplyKind()).Msg("Handshake failed")
		} else {
			logger.Warn().Err(err).Msg("Handshake failed")
		}
		return
	}
	defer tun.Upstream.Close()

	link.SetDeadline(time.Time{})
	sess.establish(tun)
	logger.Info().
		Str("dest", tun.Destination.String()).
		Str("bound", tun.Bound.String()).
		Stringer("method", tun.Method).
		Msg("Session established")

	err = s.relay(link, tun.Upstream, sess)
	level := zerolog.InfoLevel
	if err != nil {
		level = zerolog.WarnLevel
	}
	logger.WithLevel(level).
		Err(err).
		Int64("sent", sess.bytesOut.Load()).
		Int64("received", sess.bytesIn.Load()).
		Dur("duration", time.Since(sess.StartedAt)).
		Msg("Session closed")
}

// relay copies both directions until either side closes, counting
// bytes through the session. The first side to finish tears down
// both so the opposite copy unblocks.
func (s *Server) relay(client net.Conn, upstream io.ReadWriteCloser, sess *Session) error {
	var closeOnce sync.Once
	closeBoth := func() {
		closeOnce.Do(func() {
			client.Close()
			upstream.Close()
		})
	}
	defer closeBoth()

	var g errgroup.Group
	g.Go(func() error {
		_, err := io.Copy(countingWriter{upstream, &sess.bytesOut}, client)
		closeBoth()
		return err
	})
	g.Go(func() error {
		_, err := io.Copy(countingWriter{client, &sess.bytesIn}, upstream)
		closeBoth()
		return err
	})

	err := g.Wait()
	if errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
		err = nil
	}
	return err
}

type countingWriter struct {
	w io.Writer
	n *atomic.Int64
}

func (cw countingWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.n.Add(int64(n))
	return n, err
}
