// Package filter owns per-receiver packet suppression for shared JDWP sessions.
//
// Filters are created per session from factories held in a Registry. A
// receiver opts into at most one filter by ID; the session asks the chain
// whether that filter suppresses each packet before delivering it.
package filter

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/danmuck/jdwpmux/internal/logging"
	"github.com/danmuck/jdwpmux/internal/protocol/packet"
)

var (
	ErrUnknownFilter   = errors.New("filter: unknown filter id")
	ErrDuplicateFilter = errors.New("filter: duplicate filter id")
	ErrInvalidID       = errors.New("filter: invalid filter id")
)

// ID names a filter within one session.
type ID string

// Filter decides which packets a receiver does not see.
//
// Suppress is called by the session pump for live packets and by receiver
// goroutines for replay packets, so implementations must be safe for
// concurrent use. It must not retain p past the call.
type Filter interface {
	ID() ID
	Suppress(p packet.Packet) bool
}

// SendObserver is implemented by filters that track outgoing packets.
type SendObserver interface {
	BeforeSend(p packet.Packet)
}

// ReceiveObserver is implemented by filters that update state after every
// receiver has seen a packet.
type ReceiveObserver interface {
	AfterReceive(p packet.Packet)
}

// Factory creates a fresh filter instance for a session.
type Factory func() Filter

type funcFilter struct {
	id       ID
	suppress func(packet.Packet) bool
}

func (f funcFilter) ID() ID                        { return f.id }
func (f funcFilter) Suppress(p packet.Packet) bool { return f.suppress(p) }

// Func adapts a stateless predicate.
func Func(id ID, suppress func(packet.Packet) bool) Filter {
	return funcFilter{id: id, suppress: suppress}
}

// Chain is the set of filters bound to one session.
type Chain struct {
	mu     sync.RWMutex
	order  []Filter
	byID   map[ID]Filter
	closed bool
}

// NewChain instantiates every factory in order. Duplicate ids are rejected.
func NewChain(factories []Factory) (*Chain, error) {
	c := &Chain{byID: make(map[ID]Filter, len(factories))}
	for i, factory := range factories {
		f := factory()
		if f == nil {
			continue
		}
		id := f.ID()
		if strings.TrimSpace(string(id)) == "" {
			return nil, fmt.Errorf("%w: factory[%d] returned empty id", ErrInvalidID, i)
		}
		if _, ok := c.byID[id]; ok {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateFilter, id)
		}
		c.byID[id] = f
		c.order = append(c.order, f)
	}
	return c, nil
}

// Lookup resolves a filter id; unknown ids are a configuration error.
func (c *Chain) Lookup(id ID) (Filter, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	f, ok := c.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFilter, id)
	}
	return f, nil
}

// IDs returns installed filter ids in installation order.
func (c *Chain) IDs() []ID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]ID, 0, len(c.order))
	for _, f := range c.order {
		out = append(out, f.ID())
	}
	return out
}

func (c *Chain) BeforeSend(p packet.Packet) {
	for _, f := range c.snapshot() {
		if obs, ok := f.(SendObserver); ok {
			obs.BeforeSend(p)
		}
	}
}

func (c *Chain) AfterReceive(p packet.Packet) {
	for _, f := range c.snapshot() {
		if obs, ok := f.(ReceiveObserver); ok {
			obs.AfterReceive(p)
		}
	}
}

// Close releases filters implementing io.Closer. Safe to call more than once.
func (c *Chain) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	order := c.order
	c.mu.Unlock()

	var errs []error
	for _, f := range order {
		if closer, ok := f.(io.Closer); ok {
			if err := closer.Close(); err != nil {
				logging.Warnf("filter.Chain.Close id=%q err=%v", f.ID(), err)
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func (c *Chain) snapshot() []Filter {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return nil
	}
	return c.order
}
