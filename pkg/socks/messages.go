package socks

import (
	"errors"
	"fmt"
	"io"
)

// Greeting is the client's opening message: the ordered, non-empty set of
// authentication methods it is willing to use. The wire format is:
//
//	+-----+----------+----------+
//	| VER | NMETHODS | METHODS  |
//	+-----+----------+----------+
//	|  1  |    1     | 1 to 255 |
type Greeting struct {
	Methods []Method
}

// Encode assembles the greeting and writes it as one frame.
func (g *Greeting) Encode(w io.Writer) error {
	n := len(g.Methods)
	if n == 0 {
		return errors.New("greeting offers no methods")
	}
	if n > 255 {
		return fmt.Errorf("greeting offers %d methods, at most 255 fit", n)
	}

	buf := make([]byte, 0, 2+n)
	buf = append(buf, Version5, byte(n))
	for _, m := range g.Methods {
		buf = append(buf, byte(m))
	}
	_, err := w.Write(buf)
	return err
}

// Decode reads one greeting frame. The receiver is only assigned after a
// complete, well-formed frame has been read.
func (g *Greeting) Decode(r io.Reader) error {
	var head [2]byte
	if _, err := io.ReadFull(r, head[:]); err != nil {
		return fmt.Errorf("read greeting header: %w", err)
	}
	if head[0] != Version5 {
		return fmt.Errorf("unexpected version 0x%02x", head[0])
	}
	if head[1] == 0 {
		return errors.New("greeting offers no methods")
	}

	raw := make([]byte, int(head[1]))
	if _, err := io.ReadFull(r, raw); err != nil {
		return fmt.Errorf("read greeting methods: %w", err)
	}
	methods := make([]Method, len(raw))
	for i, b := range raw {
		methods[i] = Method(b)
	}
	g.Methods = methods
	return nil
}

// Selection is the server's answer to a Greeting: exactly one selected
// method, or MethodNoAcceptable to refuse them all. The wire format is:
//
//	+-----+--------+
//	| VER | METHOD |
//	+-----+--------+
//	|  1  |   1    |
type Selection struct {
	Method Method
}

// Encode writes the selection as one frame.
func (s *Selection) Encode(w io.Writer) error {
	_, err := w.Write([]byte{Version5, byte(s.Method)})
	return err
}

// Decode reads one selection frame.
func (s *Selection) Decode(r io.Reader) error {
	var buf [2]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return fmt.Errorf("read method selection: %w", err)
	}
	if buf[0] != Version5 {
		return fmt.Errorf("unexpected version 0x%02x", buf[0])
	}
	s.Method = Method(buf[1])
	return nil
}

// UserPassRequest carries the client credential for the RFC 1929
// sub-negotiation. An absent password is encoded as zero length. The wire
// format is:
//
//	+-----+------+----------+------+----------+
//	| VER | ULEN |  UNAME   | PLEN |  PASSWD  |
//	+-----+------+----------+------+----------+
//	|  1  |  1   | 1 to 255 |  1   | 0 to 255 |
type UserPassRequest struct {
	Username string
	Password string
}

// Encode assembles the credential frame and writes it in one call.
func (q *UserPassRequest) Encode(w io.Writer) error {
	if len(q.Username) == 0 || len(q.Username) > 255 {
		return fmt.Errorf("username length %d out of range", len(q.Username))
	}
	if len(q.Password) > 255 {
		return fmt.Errorf("password length %d out of range", len(q.Password))
	}

	buf := make([]byte, 0, 3+len(q.Username)+len(q.Password))
	buf = append(buf, UserPassVersion, byte(len(q.Username)))
	buf = append(buf, q.Username...)
	buf = append(buf, byte(len(q.Password)))
	buf = append(buf, q.Password...)
	_, err := w.Write(buf)
	return err
}

// Decode reads one credential frame. A zero-length username is rejected, a
// zero-length password is legal.
func (q *UserPassRequest) Decode(r io.Reader) error {
	var head [2]byte
	if _, err := io.ReadFull(r, head[:]); err != nil {
		return fmt.Errorf("read username/password header: %w", err)
	}
	if head[0] != UserPassVersion {
		return fmt.Errorf("unexpected sub-negotiation version 0x%02x", head[0])
	}
	if head[1] == 0 {
		return errors.New("empty username")
	}

	username := make([]byte, int(head[1]))
	if _, err := io.ReadFull(r, username); err != nil {
		return fmt.Errorf("read username: %w", err)
	}
	var plen [1]byte
	if _, err := io.ReadFull(r, plen[:]); err != nil {
		return fmt.Errorf("read password length: %w", err)
	}
	password := make([]byte, int(plen[0]))
	if _, err := io.ReadFull(r, password); err != nil {
		return fmt.Errorf("read password: %w", err)
	}

	q.Username = string(username)
	q.Password = string(password)
	return nil
}

// UserPassReply reports the sub-negotiation outcome. Status 0x00 means the
// credential was accepted; any other value is a failure and the server
// closes the connection after sending it.
type UserPassReply struct {
	Status byte
}

// Encode writes the status frame.
func (p *UserPassReply) Encode(w io.Writer) error {
	_, err := w.Write([]byte{UserPassVersion, p.Status})
	return err
}

// Decode reads one status frame.
func (p *UserPassReply) Decode(r io.Reader) error {
	var buf [2]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return fmt.Errorf("read username/password status: %w", err)
	}
	if buf[0] != UserPassVersion {
		return fmt.Errorf("unexpected sub-negotiation version 0x%02x", buf[0])
	}
	p.Status = buf[1]
	return nil
}

// Request is the client's command message naming the destination. The wire
// format is:
//
//	+-----+-----+-----+------+----------+----------+
//	| VER | CMD | RSV | ATYP | DST.ADDR | DST.PORT |
//	+-----+-----+-----+------+----------+----------+
//	|  1  |  1  |  1  |  1   | Variable |    2     |
type Request struct {
	Command     Command
	Destination Addr
}

// Encode assembles the request and writes it as one frame.
func (q *Request) Encode(w io.Writer) error {
	buf := make([]byte, 0, 4+255+2)
	buf = append(buf, Version5, byte(q.Command), 0x00)
	buf, err := q.Destination.appendTo(buf)
	if err != nil {
		return err
	}
	_, err = w.Write(buf)
	return err
}

// Decode reads one request frame. The reserved byte is not validated;
// unknown command bytes are preserved for the dispatch stage to refuse.
func (q *Request) Decode(r io.Reader) error {
	var head [3]byte
	if _, err := io.ReadFull(r, head[:]); err != nil {
		return fmt.Errorf("read request header: %w", err)
	}
	if head[0] != Version5 {
		return fmt.Errorf("unexpected version 0x%02x", head[0])
	}
	dest, err := readAddr(r)
	if err != nil {
		return err
	}

	q.Command = Command(head[1])
	q.Destination = dest
	return nil
}

// Reply is the server's answer to a Request. Bound is meaningful only when
// Kind is ReplySucceeded; failure replies carry an unspecified placeholder
// address. The wire format is:
//
//	+-----+-----+-----+------+----------+----------+
//	| VER | REP | RSV | ATYP | BND.ADDR | BND.PORT |
//	+-----+-----+-----+------+----------+----------+
//	|  1  |  1  |  1  |  1   | Variable |    2     |
type Reply struct {
	Kind  ReplyKind
	Bound Addr
}

// Encode assembles the reply and writes it as one frame.
func (p *Reply) Encode(w io.Writer) error {
	buf := make([]byte, 0, 4+255+2)
	buf = append(buf, Version5, byte(p.Kind), 0x00)
	buf, err := p.Bound.appendTo(buf)
	if err != nil {
		return err
	}
	_, err = w.Write(buf)
	return err
}

// Decode reads one reply frame.
func (p *Reply) Decode(r io.Reader) error {
	var head [3]byte
	if _, err := io.ReadFull(r, head[:]); err != nil {
		return fmt.Errorf("read reply header: %w", err)
	}
	if head[0] != Version5 {
		return fmt.Errorf("unexpected version 0x%02x", head[0])
	}
	bound, err := readAddr(r)
	if err != nil {
		return err
	}

	p.Kind = ReplyKind(head[1])
	p.Bound = bound
	return nil
}
