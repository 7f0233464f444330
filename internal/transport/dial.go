package transport

import (
	"context"
	"errors"
	"math/rand"
	"net"
	"strings"
	"time"

	"github.com/danmuck/jdwpmux/internal/logging"
)

var ErrAddressRequired = errors.New("transport: address required")

type DialConfig struct {
	Address        string
	ConnectTimeout time.Duration
	// MaxAttempts <= 0 retries until ctx is done.
	MaxAttempts int
	Backoff     BackoffConfig
}

func DefaultDialConfig() DialConfig {
	return DialConfig{
		ConnectTimeout: 5 * time.Second,
		MaxAttempts:    5,
		Backoff:        DefaultBackoffConfig(),
	}
}

// Dial connects to a JDWP endpoint over TCP, retrying with backoff.
func Dial(ctx context.Context, cfg DialConfig) (*Conn, error) {
	if strings.TrimSpace(cfg.Address) == "" {
		return nil, ErrAddressRequired
	}
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	dialer := net.Dialer{Timeout: cfg.ConnectTimeout}
	var attempt int
	for {
		attempt++
		conn, err := dialer.DialContext(ctx, "tcp", cfg.Address)
		if err == nil {
			logging.Debugf("transport.Dial connected addr=%q attempt=%d", cfg.Address, attempt)
			return NewConn(conn), nil
		}
		logging.Warnf("transport.Dial attempt=%d addr=%q err=%v", attempt, cfg.Address, err)
		if cfg.MaxAttempts > 0 && attempt >= cfg.MaxAttempts {
			return nil, err
		}
		if err := sleepBackoff(ctx, NextBackoffDelay(cfg.Backoff, attempt, rng)); err != nil {
			return nil, err
		}
	}
}

func sleepBackoff(ctx context.Context, delay time.Duration) error {
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
