package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/danmuck/jdwpmux/internal/testutil/testlog"
)

func TestNextBackoffDelayDeterministicNoJitter(t *testing.T) {
	testlog.Start(t)
	cfg := BackoffConfig{
		InitialDelay: 250 * time.Millisecond,
		Multiplier:   2.0,
		MaxDelay:     5 * time.Second,
		Jitter:       false,
	}
	if got := NextBackoffDelay(cfg, 1, nil); got != 250*time.Millisecond {
		t.Fatalf("attempt1 got=%v", got)
	}
	if got := NextBackoffDelay(cfg, 3, nil); got != time.Second {
		t.Fatalf("attempt3 got=%v", got)
	}
	if got := NextBackoffDelay(cfg, 8, nil); got != 5*time.Second {
		t.Fatalf("attempt8 got=%v", got)
	}
}

func TestHandshakeOverPipe(t *testing.T) {
	testlog.Start(t)
	debugger, vm := Pipe()
	defer debugger.Close()
	defer vm.Close()

	done := make(chan error, 1)
	go func() { done <- AcceptHandshake(vm, time.Second) }()

	if err := Handshake(debugger, time.Second); err != nil {
		t.Fatalf("handshake: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("accept handshake: %v", err)
	}
}

func TestHandshakeMismatch(t *testing.T) {
	testlog.Start(t)
	debugger, vm := Pipe()
	defer debugger.Close()
	defer vm.Close()

	go func() {
		buf := make([]byte, len(HandshakeString))
		_ = readAll(vm, buf, time.Time{})
		_ = writeAll(vm, []byte("JDWP-Handshook"), time.Time{})
	}()
	if err := Handshake(debugger, time.Second); !errors.Is(err, ErrHandshakeMismatch) {
		t.Fatalf("expected ErrHandshakeMismatch, got %v", err)
	}
}

func TestConnCloseIsIdempotentAndUnblocksRead(t *testing.T) {
	testlog.Start(t)
	a, b := Pipe()
	defer b.Close()

	readErr := make(chan error, 1)
	go func() {
		buf := make([]byte, 4)
		_, err := a.Read(buf, time.Time{})
		readErr <- err
	}()
	time.Sleep(10 * time.Millisecond)
	if err := a.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	select {
	case err := <-readErr:
		if !errors.Is(err, ErrClosed) {
			t.Fatalf("expected ErrClosed, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("read not unblocked by close")
	}
}

func TestConnReadEOFAndTimeout(t *testing.T) {
	testlog.Start(t)
	a, b := Pipe()
	defer a.Close()

	buf := make([]byte, 1)
	if _, err := a.Read(buf, time.Now().Add(20*time.Millisecond)); !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	_ = b.Close()
	if _, err := a.Read(buf, time.Time{}); !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF, got %v", err)
	}
}

func TestDialRetriesThenFails(t *testing.T) {
	testlog.Start(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()

	cfg := DefaultDialConfig()
	cfg.Address = addr
	cfg.MaxAttempts = 2
	cfg.Backoff = BackoffConfig{InitialDelay: time.Millisecond}
	if _, err := Dial(context.Background(), cfg); err == nil {
		t.Fatalf("expected dial failure")
	}

	cfg.Address = " "
	if _, err := Dial(context.Background(), cfg); !errors.Is(err, ErrAddressRequired) {
		t.Fatalf("expected ErrAddressRequired, got %v", err)
	}
}

func TestDialConnects(t *testing.T) {
	testlog.Start(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	go func() {
		c, err := ln.Accept()
		if err == nil {
			_ = AcceptHandshake(NewConn(c), time.Second)
			_ = c.Close()
		}
	}()

	cfg := DefaultDialConfig()
	cfg.Address = ln.Addr().String()
	conn, err := Dial(context.Background(), cfg)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	if err := Handshake(conn, time.Second); err != nil {
		t.Fatalf("handshake: %v", err)
	}
}

func TestPipeReadAfterPeerCloseStaysEOF(t *testing.T) {
	testlog.Start(t)
	a, b := Pipe()
	defer a.Close()
	_ = b.Close()

	buf := make([]byte, 4)
	for i := 0; i < 3; i++ {
		if _, err := a.Read(buf, time.Now().Add(time.Second)); !errors.Is(err, io.EOF) {
			t.Fatalf("read %d: expected io.EOF, got %v", i, err)
		}
	}
	_ = a.Close()
	if _, err := a.Read(buf, time.Time{}); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed after local close, got %v", err)
	}
}

func TestConnCloseWrite(t *testing.T) {
	testlog.Start(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	peerErr := make(chan error, 1)
	go func() {
		c, err := ln.Accept()
		if err != nil {
			peerErr <- err
			return
		}
		defer c.Close()
		peer := NewConn(c)
		buf := make([]byte, 1)
		if _, err := peer.Read(buf, time.Now().Add(time.Second)); !errors.Is(err, io.EOF) {
			peerErr <- err
			return
		}
		_, err = peer.Write([]byte("ok"), time.Now().Add(time.Second))
		peerErr <- err
	}()

	cfg := DefaultDialConfig()
	cfg.Address = ln.Addr().String()
	conn, err := Dial(context.Background(), cfg)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	if err := conn.CloseWrite(); err != nil {
		t.Fatalf("close write: %v", err)
	}
	got := make([]byte, 2)
	if err := readAll(conn, got, time.Now().Add(time.Second)); err != nil || string(got) != "ok" {
		t.Fatalf("read after half-close=%q err=%v", got, err)
	}
	if err := <-peerErr; err != nil {
		t.Fatalf("peer: %v", err)
	}

	a, b := Pipe()
	defer a.Close()
	defer b.Close()
	if err := a.CloseWrite(); !errors.Is(err, errors.ErrUnsupported) {
		t.Fatalf("pipe half-close: expected ErrUnsupported, got %v", err)
	}
}
