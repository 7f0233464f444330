package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/danmuck/jdwpmux/internal/logging"
	"github.com/danmuck/jdwpmux/internal/protocol/packet"
	"github.com/danmuck/jdwpmux/internal/transport"
)

type writeRequest struct {
	p packet.Packet
	// halfClose marks the last request: every earlier write has finished
	// when the writer reaches it.
	halfClose bool
	result    chan error
}

// Send queues p on the session writer and waits for the write to finish.
//
// The physical write runs on the writer goroutine: if ctx is cancelled Send
// returns early but the write still completes or fails on its own, and the
// transport stays open for everyone else.
func (s *Session) Send(ctx context.Context, p packet.Packet) error {
	if s.State() != StateOpen {
		return ErrSessionClosed
	}
	off, err := p.Offline()
	if err != nil {
		return err
	}
	req := writeRequest{p: off, result: make(chan error, 1)}
	if err := s.enqueue(ctx, req); err != nil {
		return err
	}
	select {
	case err := <-req.result:
		return err
	case <-ctx.Done():
		logging.Debugf("session.Session.Send caller gave up pid=%d packet=%s err=%v", s.pid, off.Header, context.Cause(ctx))
		return context.Cause(ctx)
	case <-s.ctx.Done():
		return ErrSessionClosed
	}
}

// enqueue hands req to the writer unless sending was shut down.
func (s *Session) enqueue(ctx context.Context, req writeRequest) error {
	s.sendMu.RLock()
	defer s.sendMu.RUnlock()
	if s.sendClosed {
		return ErrShutdown
	}
	select {
	case s.writes <- req:
		return nil
	case <-ctx.Done():
		return context.Cause(ctx)
	case <-s.ctx.Done():
		return ErrSessionClosed
	}
}

// Shutdown stops accepting sends, waits for every queued send to reach the
// transport and then half-closes the write side when the transport supports
// it. The pump keeps delivering packets until the VM closes its side; Close
// still has to be called to release the session.
//
// Calling Shutdown again waits for the same result.
func (s *Session) Shutdown(ctx context.Context) error {
	if s.State() != StateOpen {
		return ErrSessionClosed
	}
	s.shutdownOnce.Do(func() {
		s.sendMu.Lock()
		s.sendClosed = true
		s.sendMu.Unlock()
		logging.Debugf("session.Session.Shutdown pid=%d queued=%d", s.pid, len(s.writes))
		go s.drainAndHalfClose()
	})
	select {
	case <-s.shutdownDone:
		return s.shutdownErr
	case <-ctx.Done():
		return context.Cause(ctx)
	case <-s.ctx.Done():
		return ErrSessionClosed
	}
}

func (s *Session) drainAndHalfClose() {
	defer close(s.shutdownDone)
	req := writeRequest{halfClose: true, result: make(chan error, 1)}
	select {
	case s.writes <- req:
	case <-s.ctx.Done():
		s.shutdownErr = ErrSessionClosed
		return
	}
	select {
	case s.shutdownErr = <-req.result:
	case <-s.ctx.Done():
		s.shutdownErr = ErrSessionClosed
	}
}

func (s *Session) runWriter() {
	defer s.wg.Done()
	for {
		select {
		case req := <-s.writes:
			if req.halfClose {
				req.result <- s.closeWrite()
				continue
			}
			req.result <- s.write(req.p)
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Session) closeWrite() error {
	hc, ok := s.t.(transport.HalfCloser)
	if !ok {
		logging.Debugf("session.Session.Shutdown pid=%d half-close unsupported by %T", s.pid, s.t)
		return nil
	}
	if err := hc.CloseWrite(); err != nil {
		if errors.Is(err, errors.ErrUnsupported) {
			logging.Debugf("session.Session.Shutdown pid=%d err=%v", s.pid, err)
			return nil
		}
		return fmt.Errorf("%w: half-close: %w", ErrSendFailed, err)
	}
	logging.Debugf("session.Session.Shutdown pid=%d write side closed", s.pid)
	return nil
}

func (s *Session) write(p packet.Packet) error {
	if err := s.ensureHandshake(); err != nil {
		return fmt.Errorf("%w: %w", ErrSendFailed, err)
	}
	s.filters.BeforeSend(p)
	if s.monitor != nil {
		s.monitor.OnSend(p)
	}
	if err := packet.Write(s.t, p, time.Now().Add(s.cfg.WriteTimeout)); err != nil {
		if s.ctx.Err() != nil {
			return ErrSessionClosed
		}
		logging.Warnf("session.Session.write pid=%d packet=%s err=%v", s.pid, p.Header, err)
		return fmt.Errorf("%w: %w", ErrSendFailed, err)
	}
	logging.Tracef("session.Session.write pid=%d packet=%s", s.pid, p.Header)
	return nil
}
