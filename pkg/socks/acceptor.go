// Package socks implements the SOCKS5 protocol engine.
// It provides both sides of the RFC 1928 handshake: Client initiates the
// greeting, method negotiation, optional RFC 1929 username/password
// sub-negotiation, and the CONNECT request; Acceptor enforces a method
// policy, verifies credentials, and dispatches the command. Both run over
// any ordered duplex byte stream and leave connection establishment and
// relaying to their callers.
package socks

import (
	"context"
	"errors"
	"io"
	"slices"
)

// Dialer establishes the outbound connection for a CONNECT request. It is
// the acceptor's only collaborator: given the destination the client asked
// for, it returns the upstream stream plus the locally bound address
// reported in the success reply. Returning a *ReplyError selects the exact
// failure reply; any other error is answered as a general failure.
type Dialer interface {
	DialDestination(ctx context.Context, dest Addr) (io.ReadWriteCloser, Addr, error)
}

// Tunnel is a successfully negotiated CONNECT. The caller owns both the
// client stream it supplied and Upstream, and does the relaying between
// them itself.
type Tunnel struct {
	Method      Method
	Destination Addr
	Bound       Addr
	Upstream    io.ReadWriteCloser
}

// Acceptor performs the server side of the SOCKS5 handshake. The zero value
// accepts anonymous clients and refuses every command (it has no Dialer).
// Setting Credential or Verify switches to the username/password policy;
// Verify wins when both are set. An Acceptor is immutable configuration,
// safe to share across concurrently accepted connections.
type Acceptor struct {
	Credential *Auth
	Verify     func(username, password string) bool
	Dialer     Dialer
}

// Accept drives one handshake on rw. On success it returns the negotiated
// tunnel. On failure it returns a *HandshakeError whose ReplyKind method
// reconstructs what the peer was told; semantic refusals have already
// written their wire reply best-effort, protocol decode failures abort
// without one (the frame was unreadable, so no reply can be framed either).
// The context is handed to the Dialer only; stream deadlines belong to the
// caller.
func (a *Acceptor) Accept(ctx context.Context, rw io.ReadWriter) (*Tunnel, error) {
	method, herr := a.negotiateMethod(rw)
	if herr != nil {
		return nil, herr
	}
	if method == MethodUserPass {
		if herr := verifyUserPass(rw, a.checker()); herr != nil {
			return nil, herr
		}
	}

	var req Request
	if err := req.Decode(rw); err != nil {
		return nil, protocolError("read request", err)
	}

	switch req.Command {
	case CommandConnect:
		return a.handleConnect(ctx, rw, method, req.Destination)
	default:
		// Bind and UDP associate negotiation ends here: receive, refuse,
		// abort. Callers needing them must front their own dispatcher.
		return nil, refuseCommand(rw, req.Command)
	}
}

// negotiateMethod reads the greeting and enforces the configured policy.
// The refusing branch answers MethodNoAcceptable before aborting.
func (a *Acceptor) negotiateMethod(rw io.ReadWriter) (Method, *HandshakeError) {
	var greeting Greeting
	if err := greeting.Decode(rw); err != nil {
		return 0, protocolError("read greeting", err)
	}

	method := chooseMethod(greeting.Methods, a.requiresAuth())
	sel := Selection{Method: method}
	if err := sel.Encode(rw); err != nil {
		return 0, ioError("write method selection", err)
	}
	if method == MethodNoAcceptable {
		return 0, aborted("no acceptable authentication method")
	}
	return method, nil
}

// chooseMethod picks the session method for an offered set under a binary
// policy: anonymous sessions, or required username/password. A pure
// function, so the outcome is reproducible for any (offer, policy) pair.
func chooseMethod(offered []Method, requireAuth bool) Method {
	want := MethodNoAuth
	if requireAuth {
		want = MethodUserPass
	}
	if slices.Contains(offered, want) {
		return want
	}
	return MethodNoAcceptable
}

func (a *Acceptor) requiresAuth() bool {
	return a.Credential != nil || a.Verify != nil
}

// checker resolves the credential check for this acceptor's policy.
func (a *Acceptor) checker() func(username, password string) bool {
	if a.Verify != nil {
		return a.Verify
	}
	cred := a.Credential
	return func(username, password string) bool {
		return cred.equals(username, password)
	}
}

// handleConnect hands the destination to the Dialer and answers the client.
// Dial failures are answered with the dialer's *ReplyError kind when it
// supplied one, as a general failure otherwise, and surface as an abort
// that carries the reply the peer saw.
func (a *Acceptor) handleConnect(ctx context.Context, rw io.ReadWriter, method Method, dest Addr) (*Tunnel, error) {
	if a.Dialer == nil {
		return nil, refuseCommand(rw, CommandConnect)
	}

	upstream, bound, err := a.Dialer.DialDestination(ctx, dest)
	if err != nil {
		kind := ReplyGeneralFailure
		var re *ReplyError
		if errors.As(err, &re) {
			kind = re.Kind
		}
		if werr := sendReply(rw, kind, zeroAddr); werr != nil {
			return nil, ioError("write failure reply", werr)
		}
		return nil, abortedReply("connect "+dest.String(), kind, err)
	}

	if err := sendReply(rw, ReplySucceeded, bound); err != nil {
		if upstream != nil {
			upstream.Close()
		}
		return nil, ioError("write success reply", err)
	}
	return &Tunnel{Method: method, Destination: dest, Bound: bound, Upstream: upstream}, nil
}

// refuseCommand answers cmd with CommandNotSupported and a zero bound
// address, then reports the abort. A failed refusal write surfaces as the
// stream failure it is; the handshake is already lost either way.
func refuseCommand(rw io.ReadWriter, cmd Command) error {
	if err := sendReply(rw, ReplyCommandNotSupported, zeroAddr); err != nil {
		return ioError("write refusal reply", err)
	}
	return abortedReply("command not supported: "+cmd.String(), ReplyCommandNotSupported, nil)
}

// sendReply writes a reply frame with the given kind and bound address.
func sendReply(w io.Writer, kind ReplyKind, bound Addr) error {
	rep := Reply{Kind: kind, Bound: bound}
	return rep.Encode(w)
}
