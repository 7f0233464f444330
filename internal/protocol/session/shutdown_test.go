package session

import (
	"context"
	"errors"
	"io"
	"math"
	"net"
	"testing"
	"time"

	"github.com/danmuck/jdwpmux/internal/protocol/filter"
	"github.com/danmuck/jdwpmux/internal/protocol/packet"
	"github.com/danmuck/jdwpmux/internal/testutil/testlog"
	"github.com/danmuck/jdwpmux/internal/transport"
)

func TestShutdownDrainsQueuedSendsAndKeepsReading(t *testing.T) {
	testlog.Start(t)
	s, vm := newTestSession(t, nil)

	// The VM is not reading yet: packet 1 blocks the writer, packet 2 waits
	// in the queue.
	for _, id := range []uint32{1, 2} {
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		err := s.Send(ctx, packet.NewCommand(id, 1, 1, nil))
		cancel()
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("send %d: expected deadline exceeded, got %v", id, err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	err := s.Shutdown(ctx)
	cancel()
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("shutdown with blocked writer: expected deadline exceeded, got %v", err)
	}
	if err := s.Send(context.Background(), packet.NewCommand(3, 1, 1, nil)); !errors.Is(err, ErrShutdown) {
		t.Fatalf("send after shutdown: expected ErrShutdown, got %v", err)
	}

	vm.Serve()
	if err := s.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if got := vm.MustNext(); got.ID != 1 {
		t.Fatalf("first drained id=%d", got.ID)
	}
	if got := vm.MustNext(); got.ID != 2 {
		t.Fatalf("second drained id=%d", got.ID)
	}
	if s.State() != StateOpen {
		t.Fatalf("state=%s after shutdown", s.State())
	}

	c := newCollector()
	done := startReceiver(t, s, ReceiverConfig{Name: "after-shutdown"}, c.handle)
	vm.MustEmit(packet.NewCommand(9, 64, 100, nil))
	c.waitN(t, 1)
	vm.Hangup()
	if err := waitResult(t, done); err != nil {
		t.Fatalf("receive after shutdown: %v", err)
	}
}

func TestShutdownHalfClosesTCP(t *testing.T) {
	testlog.Start(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	dial := transport.DefaultDialConfig()
	dial.Address = ln.Addr().String()
	conn, err := transport.Dial(context.Background(), dial)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	raw, err := ln.Accept()
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	vmConn := transport.NewConn(raw)
	defer vmConn.Close()

	s, err := New(conn, 11, Options{Config: Config{SkipHandshake: true}, Filters: filter.NewRegistry()})
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	defer s.Close()

	c := newCollector()
	done := startReceiver(t, s, ReceiverConfig{Name: "tcp"}, c.handle)
	if err := s.Send(context.Background(), packet.NewCommand(5, 1, 1, nil)); err != nil {
		t.Fatalf("send: %v", err)
	}
	if err := s.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	reader := packet.NewReader(vmConn, packet.DefaultLimits())
	p, err := reader.Next(time.Now().Add(testTimeout))
	if err != nil || p.ID != 5 {
		t.Fatalf("vm read id=%d err=%v", p.ID, err)
	}
	if _, err := reader.Next(time.Now().Add(testTimeout)); !errors.Is(err, io.EOF) {
		t.Fatalf("vm expected io.EOF after half-close, got %v", err)
	}

	if err := packet.Write(vmConn, packet.NewReply(5, 0, nil), time.Now().Add(testTimeout)); err != nil {
		t.Fatalf("vm reply: %v", err)
	}
	c.waitN(t, 1)
	_ = vmConn.Close()
	if err := waitResult(t, done); err != nil {
		t.Fatalf("receive: %v", err)
	}
}

func TestCloseInsidePayloadCallbackDoesNotDeadlock(t *testing.T) {
	testlog.Start(t)
	s, vm := newTestSession(t, nil)

	closed := make(chan error, 1)
	done := startReceiver(t, s, ReceiverConfig{Name: "vm-death"}, func(_ context.Context, p packet.Packet) error {
		return p.WithPayload(func(b []byte) error {
			if len(b) > 0 && b[0] == 99 {
				closed <- s.Close()
				// Nested access while the session is closing.
				if _, err := p.Payload(); err != nil {
					t.Errorf("nested payload: %v", err)
				}
			}
			return nil
		})
	})
	errc := vm.EmitAsync(packet.NewCommand(1, 64, 100, []byte{99}))

	select {
	case err := <-closed:
		if err != nil {
			t.Fatalf("close: %v", err)
		}
	case <-time.After(testTimeout):
		t.Fatalf("close inside payload callback deadlocked")
	}
	if err := waitResult(t, done); err != nil && !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("receive: %v", err)
	}
	<-errc
}

func TestReplayAddedWhileLiveReachesOnlyLaterReceivers(t *testing.T) {
	testlog.Start(t)
	s, vm := newTestSession(t, nil)

	first := newCollector()
	doneFirst := startReceiver(t, s, ReceiverConfig{Name: "r1"}, first.handle)
	vm.MustEmit(packet.NewCommand(1, 64, 100, nil))
	first.waitN(t, 1)

	if err := s.AddReplayPacket(packet.NewCommand(50, 64, 100, []byte("x"))); err != nil {
		t.Fatalf("add replay: %v", err)
	}
	second := newCollector()
	doneSecond := startReceiver(t, s, ReceiverConfig{Name: "r2"}, second.handle)
	second.waitN(t, 1)

	vm.MustEmit(packet.NewCommand(2, 64, 100, nil))
	first.waitN(t, 1)
	second.waitN(t, 1)
	vm.Hangup()
	if err := waitResult(t, doneFirst); err != nil {
		t.Fatalf("r1: %v", err)
	}
	if err := waitResult(t, doneSecond); err != nil {
		t.Fatalf("r2: %v", err)
	}
	if got := first.snapshot(); !equalIDs(got, []uint32{1, 2}) {
		t.Fatalf("r1 ids=%v", got)
	}
	if got := second.snapshot(); !equalIDs(got, []uint32{50, 2}) {
		t.Fatalf("r2 ids=%v", got)
	}
}

func TestReceiverActivatedMidRoundSkipsThatPacket(t *testing.T) {
	testlog.Start(t)
	s, vm := newTestSession(t, nil)

	late, err := s.NewReceiver(ReceiverConfig{Name: "late"})
	if err != nil {
		t.Fatalf("new receiver: %v", err)
	}
	lateSeen := newCollector()
	lateActivated := make(chan struct{})
	lateDone := make(chan error, 1)

	early := newCollector()
	doneEarly := startReceiver(t, s, ReceiverConfig{Name: "early"}, func(ctx context.Context, p packet.Packet) error {
		if p.ID == 1 {
			go func() {
				lateDone <- late.Receive(context.Background(), lateSeen.handle)
			}()
			// Wait until the late receiver has joined the fan-out order
			// while this round is still in progress.
			deadline := time.Now().Add(testTimeout)
			for s.ActiveReceivers() < 2 {
				if time.Now().After(deadline) {
					t.Errorf("late receiver never activated")
					break
				}
				time.Sleep(time.Millisecond)
			}
			close(lateActivated)
		}
		return early.handle(ctx, p)
	})

	vm.MustEmit(packet.NewCommand(1, 64, 100, nil))
	early.waitN(t, 1)
	<-lateActivated
	vm.MustEmit(packet.NewCommand(2, 64, 100, nil))
	early.waitN(t, 1)
	lateSeen.waitN(t, 1)
	vm.Hangup()

	if err := waitResult(t, doneEarly); err != nil {
		t.Fatalf("early: %v", err)
	}
	if err := waitResult(t, lateDone); err != nil {
		t.Fatalf("late: %v", err)
	}
	if got := lateSeen.snapshot(); !equalIDs(got, []uint32{2}) {
		t.Fatalf("late ids=%v, must not see the round it joined during", got)
	}
}

func TestCloseWinsOverEOFForActivatingReceiver(t *testing.T) {
	testlog.Start(t)
	for i := 0; i < 20; i++ {
		s, vm := newTestSession(t, nil)
		first := startReceiver(t, s, ReceiverConfig{Name: "first"}, func(context.Context, packet.Packet) error { return nil })
		vm.Hangup()
		if err := waitResult(t, first); err != nil {
			t.Fatalf("iteration %d first: %v", i, err)
		}

		r, err := s.NewReceiver(ReceiverConfig{
			Name:         "closing",
			OnActivation: func(context.Context) error { return s.Close() },
		})
		if err != nil {
			t.Fatalf("iteration %d new receiver: %v", i, err)
		}
		err = r.Receive(context.Background(), func(context.Context, packet.Packet) error { return nil })
		if !errors.Is(err, ErrSessionClosed) {
			t.Fatalf("iteration %d: expected ErrSessionClosed, got %v", i, err)
		}
	}
}

func TestIDGeneratorWrapsAfterMaxUint32(t *testing.T) {
	testlog.Start(t)
	g := NewIDGenerator(math.MaxUint32)
	if got := g.Next(); got != math.MaxUint32 {
		t.Fatalf("first=%#x", got)
	}
	if got := g.Next(); got != 0 {
		t.Fatalf("after wrap=%#x", got)
	}
}
