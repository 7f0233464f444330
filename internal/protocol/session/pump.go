package session

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/danmuck/jdwpmux/internal/logging"
	"github.com/danmuck/jdwpmux/internal/protocol/packet"
)

// startPump starts the reader goroutine on first activation.
func (s *Session) startPump() {
	s.pumpOnce.Do(func() {
		s.lifeMu.Lock()
		defer s.lifeMu.Unlock()
		if s.ctx.Err() != nil {
			s.finishPump(ErrSessionClosed)
			return
		}
		s.wg.Add(1)
		go s.runPump()
	})
}

func (s *Session) runPump() {
	defer s.wg.Done()
	logging.Debugf("session.pump started pid=%d", s.pid)
	err := s.pump()
	logging.Debugf("session.pump stopped pid=%d err=%v", s.pid, err)
	s.finishPump(err)
}

// finishPump publishes the terminal signal every receiver observes once it
// has consumed all packets delivered to it.
func (s *Session) finishPump(err error) {
	s.pumpErr = err
	close(s.pumpDone)
}

func (s *Session) pump() error {
	if err := s.ensureHandshake(); err != nil {
		if s.ctx.Err() != nil {
			return ErrSessionClosed
		}
		return fmt.Errorf("%w: %w", ErrReceiveFailed, err)
	}
	reader := packet.NewReader(s.t, s.cfg.Limits)
	for {
		if err := s.registry.waitActive(s.ctx); err != nil {
			return ErrSessionClosed
		}

		p, err := reader.Next(s.readDeadline())
		if err != nil {
			if s.ctx.Err() != nil {
				return ErrSessionClosed
			}
			if errors.Is(err, io.EOF) {
				logging.Debugf("session.pump eof pid=%d", s.pid)
				return io.EOF
			}
			logging.Warnf("session.pump read pid=%d err=%v", s.pid, err)
			return fmt.Errorf("%w: %w", ErrReceiveFailed, err)
		}

		if s.monitor != nil {
			s.monitor.OnReceive(p)
		}
		s.fanOut(p)
		// A callback may still hold p's payload while closing the session.
		// The buffer is never reused after close, so skip invalidation.
		if s.ctx.Err() != nil {
			return ErrSessionClosed
		}
		s.filters.AfterReceive(p)
		reader.Invalidate()
	}
}

// fanOut hands p to every receiver active at the time of the call, one at a
// time, waiting for each callback to return.
func (s *Session) fanOut(p packet.Packet) {
	for _, r := range s.registry.snapshot() {
		if r.suppressed(p) {
			logging.Tracef("session.pump filtered pid=%d receiver=%q packet=%s", s.pid, r.name, p.Header)
			continue
		}
		select {
		case r.inbox <- p:
		case <-r.done:
			continue
		case <-s.ctx.Done():
			return
		}
		select {
		case <-r.processed:
		case <-r.done:
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Session) readDeadline() time.Time {
	if s.cfg.ReadTimeout <= 0 {
		return time.Time{}
	}
	return time.Now().Add(s.cfg.ReadTimeout)
}
