package session

import "sync/atomic"

// IDGenerator hands out packet ids in increasing order. The counter wraps
// after 2^32 ids.
type IDGenerator struct {
	next atomic.Uint32
}

func NewIDGenerator(first uint32) *IDGenerator {
	g := &IDGenerator{}
	g.next.Store(first)
	return g
}

func (g *IDGenerator) Next() uint32 {
	return g.next.Add(1) - 1
}
