package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/danmuck/jdwpmux/internal/logging"
	"github.com/danmuck/jdwpmux/internal/protocol/filter"
	"github.com/danmuck/jdwpmux/internal/protocol/packet"
)

// ReceiverConfig describes a receiver before it is activated.
type ReceiverConfig struct {
	// Name is used in logs only.
	Name string
	// Filter optionally names a session filter suppressing packets for this
	// receiver.
	Filter filter.ID
	// OnActivation runs once the receiver is part of the fan-out order and
	// before any replay or live packet is delivered. Replies to packets it
	// sends are delivered to this receiver.
	OnActivation func(ctx context.Context) error
}

// PacketFunc handles one packet. p is only valid until the function returns.
type PacketFunc func(ctx context.Context, p packet.Packet) error

// Receiver is a consumer of the session packet stream. It is inert until
// Receive or Stream is called, and can be activated only once.
type Receiver struct {
	s            *Session
	name         string
	filter       filter.Filter
	onActivation func(ctx context.Context) error

	activated atomic.Bool
	inbox     chan packet.Packet
	processed chan struct{}
	done      chan struct{}
}

func (r *Receiver) Name() string {
	return r.name
}

// Receive activates the receiver and invokes fn for every packet until the
// stream ends. Packets arrive in this order: replay packets, then live
// packets in the order the session read them.
//
// Receive returns nil when the session reaches EOF, ErrSessionClosed when the
// session is closed, a wrapped ErrReceiveFailed on transport failure, the
// error returned by fn or OnActivation, or the cause of ctx cancellation. In
// every case the receiver is removed from the session and the session keeps
// running for the other receivers.
func (r *Receiver) Receive(ctx context.Context, fn PacketFunc) error {
	if fn == nil {
		return ErrNilCallback
	}
	if !r.activated.CompareAndSwap(false, true) {
		return ErrReceiverActive
	}
	defer close(r.done)
	s := r.s
	if s.State() != StateOpen {
		return ErrSessionClosed
	}

	rctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	stop := context.AfterFunc(s.ctx, func() { cancel(ErrSessionClosed) })
	defer stop()

	replay := s.registry.activate(r)
	defer s.registry.deactivate(r)
	logging.Debugf("session.Receiver.Receive activated pid=%d receiver=%q replay=%d", s.pid, r.name, len(replay))
	s.startPump()

	if err := rctx.Err(); err != nil {
		return context.Cause(rctx)
	}
	if r.onActivation != nil {
		if err := r.onActivation(rctx); err != nil {
			if rctx.Err() != nil {
				return context.Cause(rctx)
			}
			return fmt.Errorf("%w: receiver=%q: %w", ErrActivation, r.name, err)
		}
	}

	for _, p := range replay {
		if rctx.Err() != nil {
			return context.Cause(rctx)
		}
		if r.suppressed(p) {
			continue
		}
		if err := fn(rctx, p); err != nil {
			return r.callbackErr(rctx, err)
		}
	}

	for {
		select {
		case p := <-r.inbox:
			err := fn(rctx, p)
			r.processed <- struct{}{}
			if err != nil {
				return r.callbackErr(rctx, err)
			}
		case <-s.pumpDone:
			if s.ctx.Err() != nil {
				return ErrSessionClosed
			}
			return r.terminal()
		case <-rctx.Done():
			return context.Cause(rctx)
		}
	}
}

// Stream activates the receiver and delivers offline copies of every packet
// through an unbounded queue. Close the stream to deactivate the receiver.
func (r *Receiver) Stream(ctx context.Context) *PacketStream {
	return newPacketStream(ctx, r)
}

func (r *Receiver) suppressed(p packet.Packet) bool {
	return r.filter != nil && r.filter.Suppress(p)
}

func (r *Receiver) callbackErr(rctx context.Context, err error) error {
	if rctx.Err() != nil && errors.Is(err, rctx.Err()) {
		return context.Cause(rctx)
	}
	logging.Debugf("session.Receiver.Receive callback failed pid=%d receiver=%q err=%v", r.s.pid, r.name, err)
	return err
}

func (r *Receiver) terminal() error {
	err := r.s.pumpErr
	if errors.Is(err, io.EOF) {
		logging.Debugf("session.Receiver.Receive eof pid=%d receiver=%q", r.s.pid, r.name)
		return nil
	}
	return err
}
