// Package fakevm scripts the target-VM end of an in-memory JDWP connection.
package fakevm

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/danmuck/jdwpmux/internal/protocol/packet"
	"github.com/danmuck/jdwpmux/internal/transport"
)

const receivedQueue = 128

type Options struct {
	// Handshake makes Serve answer the JDWP handshake before reading packets.
	Handshake bool
	Timeout   time.Duration
}

// VM owns the VM side of a transport.Pipe. The debugger side is handed to
// the code under test.
type VM struct {
	tb       testing.TB
	opts     Options
	conn     *transport.Conn
	debugger *transport.Conn

	serveOnce sync.Once
	ready     chan struct{}
	readyErr  error
	received  chan packet.Packet
	writeMu   sync.Mutex
}

func New(tb testing.TB, opts Options) *VM {
	tb.Helper()
	if opts.Timeout <= 0 {
		opts.Timeout = 2 * time.Second
	}
	debugger, vm := transport.Pipe()
	v := &VM{
		tb:       tb,
		opts:     opts,
		conn:     vm,
		debugger: debugger,
		ready:    make(chan struct{}),
		received: make(chan packet.Packet, receivedQueue),
	}
	tb.Cleanup(func() {
		_ = v.conn.Close()
		_ = v.debugger.Close()
	})
	return v
}

// Debugger returns the end a session should own.
func (v *VM) Debugger() transport.Transport {
	return v.debugger
}

// Serve starts reading packets written by the debugger. Until Serve is
// called every debugger write blocks.
func (v *VM) Serve() {
	v.serveOnce.Do(func() {
		go v.serve()
	})
}

func (v *VM) serve() {
	defer close(v.received)
	if v.opts.Handshake {
		v.readyErr = transport.AcceptHandshake(v.conn, v.opts.Timeout)
	}
	close(v.ready)
	if v.readyErr != nil {
		return
	}
	reader := packet.NewReader(v.conn, packet.DefaultLimits())
	for {
		p, err := reader.Next(time.Time{})
		if err != nil {
			return
		}
		off, err := p.Offline()
		if err != nil {
			return
		}
		v.received <- off
	}
}

// Emit writes packets to the debugger in order. It blocks until the
// debugger side has read them.
func (v *VM) Emit(ps ...packet.Packet) error {
	v.Serve()
	<-v.ready
	if v.readyErr != nil {
		return v.readyErr
	}
	v.writeMu.Lock()
	defer v.writeMu.Unlock()
	for _, p := range ps {
		if err := packet.Write(v.conn, p, time.Now().Add(v.opts.Timeout)); err != nil {
			return err
		}
	}
	return nil
}

// MustEmit is Emit failing the test on error. Safe to call from any
// goroutine; failures are reported with Errorf.
func (v *VM) MustEmit(ps ...packet.Packet) {
	if err := v.Emit(ps...); err != nil {
		v.tb.Errorf("fakevm emit: %v", err)
	}
}

// EmitAsync runs Emit on its own goroutine.
func (v *VM) EmitAsync(ps ...packet.Packet) <-chan error {
	done := make(chan error, 1)
	go func() { done <- v.Emit(ps...) }()
	return done
}

// Next returns the next packet written by the debugger, or io.EOF once the
// connection is gone.
func (v *VM) Next(ctx context.Context) (packet.Packet, error) {
	select {
	case p, ok := <-v.received:
		if !ok {
			if v.readyErr != nil {
				return packet.Packet{}, v.readyErr
			}
			return packet.Packet{}, io.EOF
		}
		return p, nil
	case <-ctx.Done():
		return packet.Packet{}, ctx.Err()
	}
}

// MustNext is Next bounded by the VM timeout.
func (v *VM) MustNext() packet.Packet {
	v.tb.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), v.opts.Timeout)
	defer cancel()
	p, err := v.Next(ctx)
	if err != nil {
		v.tb.Fatalf("fakevm next: %v", err)
	}
	return p
}

// Hangup closes the VM end. The debugger reads io.EOF afterwards.
func (v *VM) Hangup() {
	if err := v.conn.Close(); err != nil && !errors.Is(err, transport.ErrClosed) {
		v.tb.Logf("fakevm hangup: %v", err)
	}
}
