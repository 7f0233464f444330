package session

import (
	"time"

	"github.com/danmuck/jdwpmux/internal/protocol/filter"
	"github.com/danmuck/jdwpmux/internal/protocol/packet"
)

const DefaultFirstPacketID uint32 = 0x40000000

// Config defines transport/session behavior for one shared session.
type Config struct {
	// SkipHandshake disables the JDWP handshake before the first read/write.
	SkipHandshake    bool
	HandshakeTimeout time.Duration
	// ReadTimeout bounds a single packet read; zero waits indefinitely.
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// FirstPacketID is the first id NextPacketID hands out. Zero selects
	// DefaultFirstPacketID; start at 1 to get the low range.
	FirstPacketID uint32
	// SendQueue is the capacity of the writer inbox.
	SendQueue int
	Limits    packet.Limits
}

func DefaultConfig() Config {
	return Config{
		HandshakeTimeout: 5 * time.Second,
		WriteTimeout:     15 * time.Second,
		FirstPacketID:    DefaultFirstPacketID,
		SendQueue:        16,
		Limits:           packet.DefaultLimits(),
	}
}

// WithDefaults fills zero-valued fields from DefaultConfig.
func (c Config) WithDefaults() Config {
	def := DefaultConfig()
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = def.HandshakeTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = def.WriteTimeout
	}
	if c.FirstPacketID == 0 {
		c.FirstPacketID = def.FirstPacketID
	}
	if c.SendQueue <= 0 {
		c.SendQueue = def.SendQueue
	}
	if c.Limits.MaxLength == 0 {
		c.Limits = def.Limits
	}
	return c
}

// Options wires a session to its collaborators.
type Options struct {
	Config Config
	// Filters defaults to filter.Default.
	Filters  *filter.Registry
	Monitors []Monitor
}
