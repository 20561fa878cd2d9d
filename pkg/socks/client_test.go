package socks

import (
	"errors"
	"fmt"
	"io"
	"net"
	"testing"

	"golang.org/x/sync/errgroup"
)

// expectEOF verifies the peer sent nothing further before closing.
func expectEOF(r io.Reader) error {
	buf := make([]byte, 1)
	n, err := r.Read(buf)
	if err != io.EOF {
		return fmt.Errorf("expected EOF, got %d bytes, err %v", n, err)
	}
	return nil
}

func TestClientConnectNoAuth(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	var g errgroup.Group
	g.Go(func() error {
		defer serverConn.Close()
		if err := readExact(serverConn, []byte("\x05\x01\x00")); err != nil {
			return fmt.Errorf("greeting: %w", err)
		}
		if _, err := serverConn.Write([]byte("\x05\x00")); err != nil {
			return err
		}
		if err := readExact(serverConn, []byte("\x05\x01\x00\x01\x5d\xb8\xd8\x22\x00\x50")); err != nil {
			return fmt.Errorf("request: %w", err)
		}
		_, err := serverConn.Write([]byte("\x05\x00\x00\x01\x00\x00\x00\x00\xd4\x31"))
		return err
	})

	client := &Client{}
	bound, err := client.Connect(clientConn, mustAddr(t, "93.184.216.34:80"))
	if err != nil {
		t.Fatal(err)
	}
	if bound.String() != "0.0.0.0:54321" {
		t.Fatalf("bound %s, want 0.0.0.0:54321", bound)
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
}

func TestClientConnectUserPass(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	var g errgroup.Group
	g.Go(func() error {
		defer serverConn.Close()
		if err := readExact(serverConn, []byte("\x05\x02\x00\x02")); err != nil {
			return fmt.Errorf("greeting: %w", err)
		}
		if _, err := serverConn.Write([]byte("\x05\x02")); err != nil {
			return err
		}
		if err := readExact(serverConn, []byte("\x01\x05alice\x06secret")); err != nil {
			return fmt.Errorf("credential: %w", err)
		}
		if _, err := serverConn.Write([]byte("\x01\x00")); err != nil {
			return err
		}
		if err := readExact(serverConn, []byte("\x05\x01\x00\x03\x0bexample.com\x01\xbb")); err != nil {
			return fmt.Errorf("request: %w", err)
		}
		_, err := serverConn.Write([]byte("\x05\x00\x00\x01\x0a\x00\x00\x01\x04\x38"))
		return err
	})

	client := &Client{Auth: &Auth{Username: "alice", Password: "secret"}}
	bound, err := client.Connect(clientConn, mustAddr(t, "example.com:443"))
	if err != nil {
		t.Fatal(err)
	}
	if bound.String() != "10.0.0.1:1080" {
		t.Fatalf("bound %s, want 10.0.0.1:1080", bound)
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
}

// The server may pick no-authentication although a credential was offered;
// the client must skip the sub-negotiation entirely.
func TestClientCredentialOfferedServerPicksNoAuth(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	var g errgroup.Group
	g.Go(func() error {
		defer serverConn.Close()
		if err := readExact(serverConn, []byte("\x05\x02\x00\x02")); err != nil {
			return fmt.Errorf("greeting: %w", err)
		}
		if _, err := serverConn.Write([]byte("\x05\x00")); err != nil {
			return err
		}
		// The very next frame must be the request, not a credential.
		if err := readExact(serverConn, []byte("\x05\x01\x00\x01\x5d\xb8\xd8\x22\x00\x50")); err != nil {
			return fmt.Errorf("request: %w", err)
		}
		_, err := serverConn.Write([]byte("\x05\x00\x00\x01\x00\x00\x00\x00\x00\x2a"))
		return err
	})

	client := &Client{Auth: &Auth{Username: "alice", Password: "secret"}}
	bound, err := client.Connect(clientConn, mustAddr(t, "93.184.216.34:80"))
	if err != nil {
		t.Fatal(err)
	}
	if bound.String() != "0.0.0.0:42" {
		t.Fatalf("bound %s, want 0.0.0.0:42", bound)
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
}

func TestClientUnauthorized(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer serverConn.Close()

	var g errgroup.Group
	g.Go(func() error {
		if err := readExact(serverConn, []byte("\x05\x02\x00\x02")); err != nil {
			return fmt.Errorf("greeting: %w", err)
		}
		if _, err := serverConn.Write([]byte("\x05\x02")); err != nil {
			return err
		}
		if err := readExact(serverConn, []byte("\x01\x05alice\x05wrong")); err != nil {
			return fmt.Errorf("credential: %w", err)
		}
		if _, err := serverConn.Write([]byte("\x01\x01")); err != nil {
			return err
		}
		// The client must hang up without sending a request.
		return expectEOF(serverConn)
	})

	client := &Client{Auth: &Auth{Username: "alice", Password: "wrong"}}
	_, err := client.Connect(clientConn, mustAddr(t, "93.184.216.34:80"))
	var herr *HandshakeError
	if !errors.As(err, &herr) || herr.Kind != KindUnauthorized {
		t.Fatalf("got %v, want unauthorized", err)
	}
	clientConn.Close()
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
}

func TestClientMethodMismatch(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer serverConn.Close()

	var g errgroup.Group
	g.Go(func() error {
		if err := readExact(serverConn, []byte("\x05\x01\x00")); err != nil {
			return fmt.Errorf("greeting: %w", err)
		}
		// Demand username/password although it was never offered.
		if _, err := serverConn.Write([]byte("\x05\x02")); err != nil {
			return err
		}
		return expectEOF(serverConn)
	})

	client := &Client{}
	_, err := client.Connect(clientConn, mustAddr(t, "93.184.216.34:80"))
	var herr *HandshakeError
	if !errors.As(err, &herr) || herr.Kind != KindMethodMismatch {
		t.Fatalf("got %v, want method mismatch", err)
	}
	if herr.Method != MethodUserPass {
		t.Fatalf("mismatched method %s", herr.Method)
	}
	clientConn.Close()
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
}

func TestClientNoAcceptableMethods(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer serverConn.Close()

	var g errgroup.Group
	g.Go(func() error {
		if err := readExact(serverConn, []byte("\x05\x01\x00")); err != nil {
			return fmt.Errorf("greeting: %w", err)
		}
		if _, err := serverConn.Write([]byte("\x05\xff")); err != nil {
			return err
		}
		return expectEOF(serverConn)
	})

	client := &Client{}
	_, err := client.Connect(clientConn, mustAddr(t, "93.184.216.34:80"))
	var herr *HandshakeError
	if !errors.As(err, &herr) || herr.Kind != KindMethodMismatch {
		t.Fatalf("got %v, want method mismatch", err)
	}
	if herr.Method != MethodNoAcceptable {
		t.Fatalf("mismatched method %s", herr.Method)
	}
	clientConn.Close()
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
}

func TestClientReplyErrorPreserved(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	var g errgroup.Group
	g.Go(func() error {
		defer serverConn.Close()
		if err := readExact(serverConn, []byte("\x05\x01\x00")); err != nil {
			return err
		}
		if _, err := serverConn.Write([]byte("\x05\x00")); err != nil {
			return err
		}
		if err := readExact(serverConn, []byte("\x05\x01\x00\x01\x5d\xb8\xd8\x22\x00\x50")); err != nil {
			return err
		}
		_, err := serverConn.Write([]byte("\x05\x04\x00\x01\x00\x00\x00\x00\x00\x00"))
		return err
	})

	client := &Client{}
	_, err := client.Connect(clientConn, mustAddr(t, "93.184.216.34:80"))
	var herr *HandshakeError
	if !errors.As(err, &herr) || herr.Kind != KindReply {
		t.Fatalf("got %v, want reply error", err)
	}
	if herr.Reply != ReplyHostUnreachable {
		t.Fatalf("reply %s, want host unreachable", herr.Reply)
	}
	if herr.ReplyKind() != ReplyHostUnreachable {
		t.Fatalf("projection %s", herr.ReplyKind())
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
}

func TestClientProtocolErrors(t *testing.T) {
	t.Run("bad selection version", func(t *testing.T) {
		clientConn, serverConn := net.Pipe()
		defer clientConn.Close()
		defer serverConn.Close()

		var g errgroup.Group
		g.Go(func() error {
			if err := readExact(serverConn, []byte("\x05\x01\x00")); err != nil {
				return err
			}
			_, err := serverConn.Write([]byte("\x04\x00"))
			return err
		})

		client := &Client{}
		_, err := client.Connect(clientConn, mustAddr(t, "93.184.216.34:80"))
		var herr *HandshakeError
		if !errors.As(err, &herr) || herr.Kind != KindProtocol {
			t.Fatalf("got %v, want protocol error", err)
		}
		if err := g.Wait(); err != nil {
			t.Fatal(err)
		}
	})

	t.Run("truncated reply", func(t *testing.T) {
		clientConn, serverConn := net.Pipe()
		defer clientConn.Close()

		var g errgroup.Group
		g.Go(func() error {
			if err := readExact(serverConn, []byte("\x05\x01\x00")); err != nil {
				return err
			}
			if _, err := serverConn.Write([]byte("\x05\x00")); err != nil {
				return err
			}
			if err := readExact(serverConn, []byte("\x05\x01\x00\x01\x5d\xb8\xd8\x22\x00\x50")); err != nil {
				return err
			}
			if _, err := serverConn.Write([]byte("\x05\x00\x00\x01\x7f")); err != nil {
				return err
			}
			return serverConn.Close()
		})

		client := &Client{}
		_, err := client.Connect(clientConn, mustAddr(t, "93.184.216.34:80"))
		var herr *HandshakeError
		if !errors.As(err, &herr) || herr.Kind != KindProtocol {
			t.Fatalf("got %v, want protocol error", err)
		}
		if !errors.Is(err, io.ErrUnexpectedEOF) {
			t.Fatalf("cause chain lost: %v", err)
		}
		if err := g.Wait(); err != nil {
			t.Fatal(err)
		}
	})
}
