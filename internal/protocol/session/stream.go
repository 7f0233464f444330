package session

import (
	"context"
	"io"

	"github.com/danmuck/jdwpmux/internal/protocol/packet"
	"github.com/smallnest/chanx"
)

const streamInitialCapacity = 16

// PacketStream is a pull-style view over a receiver. Packets are offline
// copies and stay valid after Next returns.
type PacketStream struct {
	queue  *chanx.UnboundedChan[packet.Packet]
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

func newPacketStream(ctx context.Context, r *Receiver) *PacketStream {
	sctx, cancel := context.WithCancel(ctx)
	st := &PacketStream{
		queue:  chanx.NewUnboundedChan[packet.Packet](sctx, streamInitialCapacity),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go func() {
		err := r.Receive(sctx, func(ctx context.Context, p packet.Packet) error {
			off, err := p.Offline()
			if err != nil {
				return err
			}
			select {
			case st.queue.In <- off:
				return nil
			case <-ctx.Done():
				return context.Cause(ctx)
			}
		})
		st.err = err
		close(st.done)
		close(st.queue.In)
	}()
	return st
}

// Next returns the next packet, io.EOF once the session reached EOF and every
// queued packet was consumed, or the terminal error of the receiver.
func (st *PacketStream) Next(ctx context.Context) (packet.Packet, error) {
	select {
	case p, ok := <-st.queue.Out:
		if ok {
			return p, nil
		}
		<-st.done
		if st.err == nil {
			return packet.Packet{}, io.EOF
		}
		return packet.Packet{}, st.err
	case <-ctx.Done():
		return packet.Packet{}, ctx.Err()
	}
}

// Buffered reports how many packets are queued and not yet returned by Next.
func (st *PacketStream) Buffered() int {
	return st.queue.Len()
}

// Close deactivates the receiver and waits for it to leave the session.
func (st *PacketStream) Close() {
	st.cancel()
	<-st.done
}
