package packet

import (
	"sync"
	"sync/atomic"
)

// Payload grants temporary access to packet payload bytes.
//
// Every successful Acquire must be paired with one Release. The returned
// slice must not be used after Release.
type Payload interface {
	Acquire() ([]byte, error)
	Release()
	// Offline returns a payload whose bytes are owned and never expire.
	Offline() (Payload, error)
	IsOffline() bool
}

type emptyPayload struct{}

func (emptyPayload) Acquire() ([]byte, error)  { return nil, nil }
func (emptyPayload) Release()                  {}
func (emptyPayload) Offline() (Payload, error) { return emptyPayload{}, nil }
func (emptyPayload) IsOffline() bool           { return true }

// EmptyPayload returns the shared zero-length payload.
func EmptyPayload() Payload {
	return emptyPayload{}
}

type ownedPayload struct {
	data []byte
}

// OwnedPayload copies b into a payload with unbounded lifetime.
func OwnedPayload(b []byte) Payload {
	if len(b) == 0 {
		return emptyPayload{}
	}
	data := make([]byte, len(b))
	copy(data, b)
	return &ownedPayload{data: data}
}

func (p *ownedPayload) Acquire() ([]byte, error)  { return p.data, nil }
func (p *ownedPayload) Release()                  {}
func (p *ownedPayload) Offline() (Payload, error) { return p, nil }
func (p *ownedPayload) IsOffline() bool           { return true }

// roundBuffer is the reusable buffer owned by a Reader. Each read bumps the
// generation; views stamped with an older generation are expired.
type roundBuffer struct {
	mu   sync.RWMutex
	gen  atomic.Uint64
	data []byte
}

// invalidate waits for every outstanding Acquire to be released, then expires
// all views of the current round.
func (b *roundBuffer) invalidate() {
	b.mu.Lock()
	b.gen.Add(1)
	b.mu.Unlock()
}

// ensure grows the buffer to n bytes. Callers must have invalidated first.
func (b *roundBuffer) ensure(n int) []byte {
	if cap(b.data) < n {
		b.data = make([]byte, n)
	}
	b.data = b.data[:n]
	return b.data
}

type boundPayload struct {
	buf *roundBuffer
	gen uint64
	n   int
}

func (p *boundPayload) Acquire() ([]byte, error) {
	p.buf.mu.RLock()
	if p.buf.gen.Load() != p.gen {
		p.buf.mu.RUnlock()
		return nil, ErrPayloadExpired
	}
	return p.buf.data[:p.n], nil
}

func (p *boundPayload) Release() {
	p.buf.mu.RUnlock()
}

func (p *boundPayload) Offline() (Payload, error) {
	data, err := p.Acquire()
	if err != nil {
		return nil, err
	}
	defer p.Release()
	return OwnedPayload(data), nil
}

func (p *boundPayload) IsOffline() bool { return false }
