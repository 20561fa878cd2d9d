package socks

import (
	"crypto/subtle"
	"fmt"
	"io"
)

// Auth is a username/password credential. A nil *Auth on Client or Acceptor
// selects the no-authentication policy. An empty password is legal and goes
// on the wire as zero length.
type Auth struct {
	Username string
	Password string
}

// equals compares the supplied credential against a in constant time.
// Lengths are not hidden, the one-byte wire length fields expose them anyway.
func (a *Auth) equals(username, password string) bool {
	u := subtle.ConstantTimeCompare([]byte(a.Username), []byte(username))
	p := subtle.ConstantTimeCompare([]byte(a.Password), []byte(password))
	return u&p == 1
}

// negotiateUserPass runs the client side of the RFC 1929 sub-negotiation:
// send the configured credential, read the status. Any non-zero status is
// unauthorized and the handshake goes no further.
func negotiateUserPass(rw io.ReadWriter, auth *Auth) *HandshakeError {
	req := UserPassRequest{Username: auth.Username, Password: auth.Password}
	if err := req.Encode(rw); err != nil {
		return ioError("write username/password request", err)
	}

	var resp UserPassReply
	if err := resp.Decode(rw); err != nil {
		return protocolError("read username/password response", err)
	}
	if resp.Status != UserPassSuccess {
		return unauthorized(fmt.Sprintf("server rejected credential with status 0x%02x", resp.Status))
	}
	return nil
}

// verifyUserPass runs the server side of the sub-negotiation: read the
// credential, check it, answer with the status byte. On a bad credential
// the failure status is written first and the handshake aborts; a command
// request is never read from an unauthenticated peer.
func verifyUserPass(rw io.ReadWriter, check func(username, password string) bool) *HandshakeError {
	var req UserPassRequest
	if err := req.Decode(rw); err != nil {
		return protocolError("read username/password request", err)
	}

	status := UserPassFailure
	if check(req.Username, req.Password) {
		status = UserPassSuccess
	}
	resp := UserPassReply{Status: status}
	if err := resp.Encode(rw); err != nil {
		return ioError("write username/password response", err)
	}
	if status != UserPassSuccess {
		return unauthorized("client credential rejected")
	}
	return nil
}
