package session

import (
	"context"
	"sync"

	"github.com/danmuck/jdwpmux/internal/protocol/packet"
)

// registry holds the active receivers and the replay buffer under one lock,
// so an activation sees a replay snapshot consistent with its position in
// the fan-out order.
type registry struct {
	mu     sync.Mutex
	active []*Receiver
	replay []packet.Packet
	wake   chan struct{}
}

func newRegistry() *registry {
	return &registry{wake: make(chan struct{}, 1)}
}

// activate appends r to the fan-out order and returns the replay packets it
// must see before anything live.
func (g *registry) activate(r *Receiver) []packet.Packet {
	g.mu.Lock()
	g.active = append(g.active, r)
	replay := make([]packet.Packet, len(g.replay))
	copy(replay, g.replay)
	g.mu.Unlock()

	select {
	case g.wake <- struct{}{}:
	default:
	}
	return replay
}

func (g *registry) deactivate(r *Receiver) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i, cur := range g.active {
		if cur == r {
			g.active = append(g.active[:i:i], g.active[i+1:]...)
			return
		}
	}
}

func (g *registry) appendReplay(p packet.Packet) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.replay = append(g.replay, p)
	return len(g.replay)
}

// snapshot returns the receivers a packet read now is delivered to.
func (g *registry) snapshot() []*Receiver {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]*Receiver, len(g.active))
	copy(out, g.active)
	return out
}

func (g *registry) size() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.active)
}

// waitActive blocks until at least one receiver is active.
func (g *registry) waitActive(ctx context.Context) error {
	for {
		if g.size() > 0 {
			return nil
		}
		select {
		case <-g.wake:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
