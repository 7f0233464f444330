package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/jdwpmux/internal/transport"
)

type traceConfig struct {
	Address            string
	PID                int
	Handshake          bool
	ConnectTimeout     time.Duration
	WriteTimeout       time.Duration
	MaxConnectAttempts int
	MetricsAddr        string
	Filter             string
}

type fileConfig struct {
	Addr               string `toml:"addr"`
	PID                int    `toml:"pid"`
	Handshake          bool   `toml:"handshake"`
	ConnectTimeout     string `toml:"connect_timeout"`
	WriteTimeout       string `toml:"write_timeout"`
	MaxConnectAttempts int    `toml:"max_connect_attempts"`
	MetricsAddr        string `toml:"metrics_addr"`
	Filter             string `toml:"filter"`
}

func defaultTraceConfig() traceConfig {
	dial := transport.DefaultDialConfig()
	return traceConfig{
		Address:            "127.0.0.1:8700",
		Handshake:          true,
		ConnectTimeout:     dial.ConnectTimeout,
		WriteTimeout:       15 * time.Second,
		MaxConnectAttempts: dial.MaxAttempts,
	}
}

func loadTraceConfig(path string) (traceConfig, error) {
	cfg := defaultTraceConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return traceConfig{}, fmt.Errorf("load jdwptrace config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return traceConfig{}, fmt.Errorf("load jdwptrace config: unknown key %q", undecoded[0].String())
	}

	if meta.IsDefined("addr") {
		cfg.Address = strings.TrimSpace(raw.Addr)
	}

	if meta.IsDefined("pid") {
		cfg.PID = raw.PID
	}

	if meta.IsDefined("handshake") {
		cfg.Handshake = raw.Handshake
	}

	if meta.IsDefined("connect_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.ConnectTimeout))
		if err != nil {
			return traceConfig{}, fmt.Errorf("parse connect_timeout: %w", err)
		}
		cfg.ConnectTimeout = d
	}

	if meta.IsDefined("write_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.WriteTimeout))
		if err != nil {
			return traceConfig{}, fmt.Errorf("parse write_timeout: %w", err)
		}
		cfg.WriteTimeout = d
	}

	if meta.IsDefined("max_connect_attempts") {
		cfg.MaxConnectAttempts = raw.MaxConnectAttempts
	}

	if meta.IsDefined("metrics_addr") {
		cfg.MetricsAddr = strings.TrimSpace(raw.MetricsAddr)
	}

	if meta.IsDefined("filter") {
		cfg.Filter = strings.TrimSpace(raw.Filter)
	}

	return cfg, nil
}

func (c traceConfig) validate() error {
	if c.Address == "" {
		return transport.ErrAddressRequired
	}
	if c.PID < 0 {
		return fmt.Errorf("invalid pid %d", c.PID)
	}
	if c.ConnectTimeout < 0 || c.WriteTimeout < 0 {
		return fmt.Errorf("timeouts must not be negative")
	}
	return nil
}
