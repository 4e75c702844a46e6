package transport

import (
	"context"
	"testing"
	"time"
)

func TestTCPTransport_RoundTrip(t *testing.T) {
	tr := NewTCPTransport()
	ln, err := tr.Listen("127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer ln.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	acceptCh := make(chan Conn, 1)
	errCh := make(chan error, 1)
	go func() {
		c, err := ln.Accept(ctx)
		if err != nil {
			errCh <- err
			return
		}
		acceptCh <- c
	}()

	client, err := tr.Dial(ctx, ln.Addr())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer client.Close()

	var server Conn
	select {
	case server = <-acceptCh:
	case err := <-errCh:
		t.Fatalf("Accept: %v", err)
	case <-ctx.Done():
		t.Fatal("timed out waiting for accept")
	}
	defer server.Close()

	h := newRecordingHandler()
	server.Start(h)

	if err := client.Send([]byte("handshake-hello")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	h.waitChunks(t, 1)

	h.mu.Lock()
	got := string(h.chunks[0])
	h.mu.Unlock()
	if got != "handshake-hello" {
		t.Fatalf("got %q", got)
	}
}

func TestTCPTransport_CloseNotifiesDisconnect(t *testing.T) {
	tr := NewTCPTransport()
	ln, err := tr.Listen("127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer ln.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	acceptCh := make(chan Conn, 1)
	go func() {
		c, err := ln.Accept(ctx)
		if err == nil {
			acceptCh <- c
		}
	}()

	client, err := tr.Dial(ctx, ln.Addr())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}

	var server Conn
	select {
	case server = <-acceptCh:
	case <-ctx.Done():
		t.Fatal("timed out waiting for accept")
	}

	h := newRecordingHandler()
	server.Start(h)

	client.Close()
	h.waitDisconnect(t)
}
