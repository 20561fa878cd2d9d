package socks

import (
	"io"
	"slices"
)

// Client performs the initiator side of the SOCKS5 handshake on streams it
// is handed. The zero value negotiates anonymous sessions only; setting Auth
// offers username/password as well, with anonymous still offered as a
// fallback. A Client holds no per-connection state and may drive any number
// of handshakes concurrently.
type Client struct {
	Auth *Auth
}

// Connect negotiates a CONNECT tunnel to dest over rw and returns the bound
// address the server reports. Each failing step is terminal: the stream is
// left mid-protocol and the caller is expected to close it. Retrying,
// deadlines, and what to do with the tunnel afterwards are caller concerns.
func (c *Client) Connect(rw io.ReadWriter, dest Addr) (Addr, error) {
	method, herr := c.negotiateMethod(rw)
	if herr != nil {
		return Addr{}, herr
	}
	if method == MethodUserPass {
		if herr := negotiateUserPass(rw, c.Auth); herr != nil {
			return Addr{}, herr
		}
	}

	req := Request{Command: CommandConnect, Destination: dest}
	if err := req.Encode(rw); err != nil {
		return Addr{}, ioError("write connect request", err)
	}
	var rep Reply
	if err := rep.Decode(rw); err != nil {
		return Addr{}, protocolError("read connect reply", err)
	}
	if rep.Kind != ReplySucceeded {
		return Addr{}, replyError(rep.Kind)
	}
	return rep.Bound, nil
}

// negotiateMethod sends the greeting and validates the server's selection.
// The server is authoritative: selecting no-authentication although a
// credential was offered is accepted. Selecting anything the client never
// offered, including MethodNoAcceptable, is a method mismatch and nothing
// further is sent.
func (c *Client) negotiateMethod(rw io.ReadWriter) (Method, *HandshakeError) {
	offered := []Method{MethodNoAuth}
	if c.Auth != nil {
		offered = append(offered, MethodUserPass)
	}

	greeting := Greeting{Methods: offered}
	if err := greeting.Encode(rw); err != nil {
		return 0, ioError("write greeting", err)
	}
	var sel Selection
	if err := sel.Decode(rw); err != nil {
		return 0, protocolError("read method selection", err)
	}
	if !slices.Contains(offered, sel.Method) {
		return 0, methodMismatch(sel.Method)
	}
	return sel.Method, nil
}
