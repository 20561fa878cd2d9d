package socks

import "fmt"

// ErrorKind classifies handshake failures.
type ErrorKind int

// Handshake failure kinds.
const (
	KindIO             ErrorKind = iota // Stream write failure
	KindProtocol                        // Unreadable or malformed frame
	KindMethodMismatch                  // Server selected a method the client never offered
	KindReply                           // Server answered the request with a non-success reply
	KindUnauthorized                    // Credential rejected during sub-negotiation
	KindAborted                         // Deliberate local refusal on the server side
)

func (k ErrorKind) String() string {
	switch k {
	case KindIO:
		return "i/o"
	case KindProtocol:
		return "protocol"
	case KindMethodMismatch:
		return "method mismatch"
	case KindReply:
		return "reply"
	case KindUnauthorized:
		return "unauthorized"
	case KindAborted:
		return "aborted"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// HandshakeError is the terminal result of a failed handshake. Kind selects
// which detail fields are meaningful: Method for KindMethodMismatch, Reply
// for KindReply and for server aborts that already answered the peer, Err
// for wrapped stream and decode causes.
type HandshakeError struct {
	Kind    ErrorKind
	Context string
	Method  Method
	Reply   ReplyKind
	Err     error
}

func (e *HandshakeError) Error() string {
	msg := "socks5 handshake"
	if e.Context != "" {
		msg += ": " + e.Context
	}
	switch e.Kind {
	case KindMethodMismatch:
		msg += fmt.Sprintf(": server selected unoffered method %s", e.Method)
	case KindReply:
		msg += ": server replied: " + e.Reply.String()
	case KindUnauthorized:
		msg += ": unauthorized"
	case KindAborted:
		msg += ": aborted"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes the underlying stream or decode failure, if any.
func (e *HandshakeError) Unwrap() error { return e.Err }

// ReplyKind projects the error onto the reply code a server sends (or sent)
// before tearing down. The mapping is total: kinds without a better answer
// degrade to ReplyGeneralFailure. KindReply preserves the peer's exact code;
// server aborts that carried an explicit reply preserve that reply.
func (e *HandshakeError) ReplyKind() ReplyKind {
	switch e.Kind {
	case KindUnauthorized:
		return ReplyNotAllowed
	case KindReply:
		return e.Reply
	case KindAborted:
		if e.Reply != ReplySucceeded {
			return e.Reply
		}
		return ReplyGeneralFailure
	default:
		return ReplyGeneralFailure
	}
}

// ioError wraps a frame write failure.
func ioError(context string, err error) *HandshakeError {
	return &HandshakeError{Kind: KindIO, Context: context, Err: err}
}

// protocolError wraps a frame read or decode failure. The cause chain still
// reaches the underlying I/O error, if one triggered it.
func protocolError(context string, err error) *HandshakeError {
	return &HandshakeError{Kind: KindProtocol, Context: context, Err: err}
}

// methodMismatch reports a server selection the client never offered.
func methodMismatch(m Method) *HandshakeError {
	return &HandshakeError{Kind: KindMethodMismatch, Method: m}
}

// replyError preserves the exact non-success code the server answered with.
func replyError(kind ReplyKind) *HandshakeError {
	return &HandshakeError{Kind: KindReply, Reply: kind}
}

// unauthorized reports a rejected credential.
func unauthorized(context string) *HandshakeError {
	return &HandshakeError{Kind: KindUnauthorized, Context: context}
}

// aborted reports a local refusal that never reached the reply stage.
func aborted(context string) *HandshakeError {
	return &HandshakeError{Kind: KindAborted, Context: context}
}

// abortedReply reports a local refusal after the given reply was written to
// the peer, keeping what the peer saw reconstructible from the error alone.
func abortedReply(context string, kind ReplyKind, cause error) *HandshakeError {
	return &HandshakeError{Kind: KindAborted, Context: context, Reply: kind, Err: cause}
}

// ReplyError lets a Dialer choose the exact failure reply for a refused
// CONNECT. The acceptor unwraps it with errors.As; dialer errors that are
// not ReplyError values are answered as ReplyGeneralFailure.
type ReplyError struct {
	Kind ReplyKind
}

func (e *ReplyError) Error() string { return "socks5: " + e.Kind.String() }
