package session

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/danmuck/jdwpmux/internal/logging"
	"github.com/danmuck/jdwpmux/internal/protocol/filter"
	"github.com/danmuck/jdwpmux/internal/protocol/packet"
	"github.com/danmuck/jdwpmux/internal/transport"
)

type State int32

const (
	StateOpen State = iota
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Session shares one JDWP transport between many receivers and senders.
type Session struct {
	pid     int
	cfg     Config
	t       transport.Transport
	ids     *IDGenerator
	filters *filter.Chain
	monitor Monitor

	registry *registry
	writes   chan writeRequest

	// sendMu orders Send enqueues against Shutdown.
	sendMu       sync.RWMutex
	sendClosed   bool
	shutdownOnce sync.Once
	shutdownDone chan struct{}
	shutdownErr  error

	state  atomic.Int32
	ctx    context.Context
	cancel context.CancelCauseFunc

	hsMu   sync.Mutex
	hsDone bool
	hsErr  error

	// lifeMu orders goroutine starts against Close.
	lifeMu    sync.Mutex
	wg        sync.WaitGroup
	pumpOnce  sync.Once
	pumpDone  chan struct{}
	pumpErr   error
	closeOnce sync.Once
}

// New binds a session to t and the target process pid. The session owns t
// from now on and closes it exactly once in Close.
func New(t transport.Transport, pid int, opts Options) (*Session, error) {
	if t == nil {
		return nil, fmt.Errorf("session: nil transport")
	}
	cfg := opts.Config.WithDefaults()
	reg := opts.Filters
	if reg == nil {
		reg = filter.Default
	}
	filter.InstallNoDdms(reg)
	chain, err := filter.NewChain(reg.Factories())
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancelCause(context.Background())
	s := &Session{
		pid:      pid,
		cfg:      cfg,
		t:        t,
		ids:      NewIDGenerator(cfg.FirstPacketID),
		filters:  chain,
		monitor:  aggregateMonitors(opts.Monitors),
		registry: newRegistry(),
		writes:   make(chan writeRequest, cfg.SendQueue),
		ctx:      ctx,
		cancel:   cancel,
		pumpDone: make(chan struct{}),

		shutdownDone: make(chan struct{}),
	}
	s.state.Store(int32(StateOpen))

	s.wg.Add(1)
	go s.runWriter()
	logging.Debugf("session.New pid=%d filters=%v", pid, chain.IDs())
	return s, nil
}

func (s *Session) PID() int {
	return s.pid
}

func (s *Session) State() State {
	return State(s.state.Load())
}

// NextPacketID returns the next id of this session. Ids increase by one
// modulo 2^32, so an id repeats only after 2^32 calls.
func (s *Session) NextPacketID() uint32 {
	return s.ids.Next()
}

// Filters returns the session filter chain.
func (s *Session) Filters() *filter.Chain {
	return s.filters
}

// ActiveReceivers reports how many receivers currently take part in fan-out.
func (s *Session) ActiveReceivers() int {
	return s.registry.size()
}

// AddReplayPacket stores an offline copy of p. Every receiver activated from
// now on sees it, in insertion order, before any live packet.
func (s *Session) AddReplayPacket(p packet.Packet) error {
	if s.State() != StateOpen {
		return ErrSessionClosed
	}
	off, err := p.Offline()
	if err != nil {
		return err
	}
	n := s.registry.appendReplay(off)
	logging.Tracef("session.Session.AddReplayPacket pid=%d packet=%s replay=%d", s.pid, off.Header, n)
	return nil
}

// NewReceiver creates an inert receiver. An unknown filter id fails here,
// not at delivery time.
func (s *Session) NewReceiver(cfg ReceiverConfig) (*Receiver, error) {
	if s.State() != StateOpen {
		return nil, ErrSessionClosed
	}
	r := &Receiver{
		s:            s,
		name:         cfg.Name,
		onActivation: cfg.OnActivation,
		inbox:        make(chan packet.Packet),
		processed:    make(chan struct{}, 1),
		done:         make(chan struct{}),
	}
	if cfg.Filter != "" {
		f, err := s.filters.Lookup(cfg.Filter)
		if err != nil {
			return nil, err
		}
		r.filter = f
	}
	return r, nil
}

// Close cancels every active receiver with ErrSessionClosed, stops the pump
// and the writer, and closes the transport. Calling Close again is a no-op.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		logging.Debugf("session.Session.Close pid=%d receivers=%d", s.pid, s.registry.size())
		s.lifeMu.Lock()
		s.state.Store(int32(StateClosing))
		s.cancel(ErrSessionClosed)
		s.lifeMu.Unlock()

		err = s.t.Close()
		s.wg.Wait()
		s.pumpOnce.Do(func() { s.finishPump(ErrSessionClosed) })

		if cerr := s.filters.Close(); cerr != nil && err == nil {
			err = cerr
		}
		if s.monitor != nil {
			if cerr := s.monitor.Close(); cerr != nil && err == nil {
				err = cerr
			}
		}
		s.state.Store(int32(StateClosed))
	})
	return err
}

// ensureHandshake runs the JDWP handshake once, before the first read or
// write. Both the pump and the writer call it.
func (s *Session) ensureHandshake() error {
	if s.cfg.SkipHandshake {
		return nil
	}
	s.hsMu.Lock()
	defer s.hsMu.Unlock()
	if !s.hsDone {
		s.hsErr = transport.Handshake(s.t, s.cfg.HandshakeTimeout)
		s.hsDone = true
		if s.hsErr != nil {
			logging.Warnf("session.Session.handshake pid=%d err=%v", s.pid, s.hsErr)
		}
	}
	return s.hsErr
}
