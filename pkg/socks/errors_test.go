package socks

import (
	"errors"
	"io"
	"strings"
	"testing"
)

// The projection from handshake errors to wire replies is total: every
// error a handshake can end in names the reply code the peer was, or would
// have been, told.
func TestErrorReplyProjection(t *testing.T) {
	tests := []struct {
		name string
		err  *HandshakeError
		want ReplyKind
	}{
		{"io", ioError("write greeting", io.ErrClosedPipe), ReplyGeneralFailure},
		{"protocol", protocolError("read greeting", io.ErrUnexpectedEOF), ReplyGeneralFailure},
		{"method mismatch", methodMismatch(MethodUserPass), ReplyGeneralFailure},
		{"unauthorized", unauthorized("client credential rejected"), ReplyNotAllowed},
		{"reply", replyError(ReplyHostUnreachable), ReplyHostUnreachable},
		{"aborted without reply", aborted("no acceptable authentication method"), ReplyGeneralFailure},
		{"aborted with reply", abortedReply("command not supported: bind", ReplyCommandNotSupported, nil), ReplyCommandNotSupported},
		{"unknown kind", &HandshakeError{Kind: ErrorKind(99)}, ReplyGeneralFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.ReplyKind(); got != tt.want {
				t.Fatalf("projection %s, want %s", got, tt.want)
			}
		})
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("pipe broke")
	err := ioError("write greeting", cause)
	if !errors.Is(err, cause) {
		t.Fatal("cause lost")
	}

	var herr *HandshakeError
	wrapped := protocolError("read reply", io.ErrUnexpectedEOF)
	if !errors.As(error(wrapped), &herr) {
		t.Fatal("errors.As failed")
	}
	if !errors.Is(wrapped, io.ErrUnexpectedEOF) {
		t.Fatal("io cause lost")
	}
}

func TestErrorMessages(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{methodMismatch(MethodUserPass), "username/password"},
		{methodMismatch(Method(0x42)), "method(0x42)"},
		{replyError(ReplyConnectionRefused), "connection refused"},
		{unauthorized("client credential rejected"), "unauthorized"},
		{ioError("write greeting", errors.New("pipe broke")), "write greeting"},
		{&ReplyError{Kind: ReplyTTLExpired}, "TTL expired"},
	}
	for _, tt := range tests {
		if !strings.Contains(tt.err.Error(), tt.want) {
			t.Fatalf("%q does not mention %q", tt.err.Error(), tt.want)
		}
	}
}
