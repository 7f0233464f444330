package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/danmuck/jdwpmux/internal/logging"
	"github.com/danmuck/jdwpmux/internal/observability"
	"github.com/danmuck/jdwpmux/internal/protocol/filter"
	"github.com/danmuck/jdwpmux/internal/protocol/packet"
	"github.com/danmuck/jdwpmux/internal/protocol/session"
	"github.com/danmuck/jdwpmux/internal/transport"
	"github.com/pterm/pterm"
)

const metricsShutdownTimeout = 2 * time.Second

func main() {
	logging.ConfigureRuntime()

	cfg, err := parseArgs(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "jdwptrace: %v\n", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "jdwptrace: %v\n", err)
		os.Exit(1)
	}
}

func parseArgs(args []string) (traceConfig, error) {
	fs := flag.NewFlagSet("jdwptrace", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to a TOML config file")
	addr := fs.String("addr", "", "JDWP endpoint host:port")
	pid := fs.Int("pid", -1, "target process id")
	if err := fs.Parse(args); err != nil {
		return traceConfig{}, err
	}

	cfg := defaultTraceConfig()
	if path := strings.TrimSpace(*configPath); path != "" {
		loaded, err := loadTraceConfig(path)
		if err != nil {
			return traceConfig{}, err
		}
		cfg = loaded
	}
	if v := strings.TrimSpace(*addr); v != "" {
		cfg.Address = v
	}
	if *pid >= 0 {
		cfg.PID = *pid
	}
	return cfg, cfg.validate()
}

func run(ctx context.Context, cfg traceConfig, out io.Writer) error {
	dial := transport.DefaultDialConfig()
	dial.Address = cfg.Address
	dial.ConnectTimeout = cfg.ConnectTimeout
	dial.MaxAttempts = cfg.MaxConnectAttempts
	conn, err := transport.Dial(ctx, dial)
	if err != nil {
		return fmt.Errorf("dial %s: %w", cfg.Address, err)
	}
	pterm.Info.Println(fmt.Sprintf("attached to %s pid=%d", conn.RemoteAddr(), cfg.PID))
	return trace(ctx, conn, cfg, out)
}

// trace runs one shared session over t until EOF, a failure or ctx is done.
func trace(ctx context.Context, t transport.Transport, cfg traceConfig, out io.Writer) error {
	monitor := observability.NewSessionMonitor(cfg.PID)
	s, err := session.New(t, cfg.PID, session.Options{
		Config: session.Config{
			SkipHandshake: !cfg.Handshake,
			WriteTimeout:  cfg.WriteTimeout,
		},
		Monitors: []session.Monitor{monitor},
	})
	if err != nil {
		_ = t.Close()
		_ = monitor.Close()
		return err
	}
	defer s.Close()

	if cfg.MetricsAddr != "" {
		shutdown := serveMetrics(cfg.MetricsAddr, s)
		defer shutdown()
	}

	tr := newTracer(out)
	r, err := s.NewReceiver(session.ReceiverConfig{
		Name:   "trace",
		Filter: filter.ID(cfg.Filter),
		OnActivation: func(ctx context.Context) error {
			id := s.NextPacketID()
			tr.expectVersion(id)
			return s.Send(ctx, packet.NewCommand(id, cmdSetVirtualMachine, cmdVersion, nil))
		},
	})
	if err != nil {
		return err
	}

	err = r.Receive(ctx, tr.handle)
	switch {
	case err == nil:
		pterm.Info.Println(fmt.Sprintf("vm disconnected after %d packets", tr.count()))
		return nil
	case ctx.Err() != nil && errors.Is(err, ctx.Err()):
		pterm.Info.Println(fmt.Sprintf("stopped after %d packets", tr.count()))
		return nil
	default:
		return err
	}
}

func serveMetrics(addr string, s *session.Session) func() {
	router := observability.NewRouter(logging.Component("jdwptrace.metrics"), func() map[string]any {
		return map[string]any{
			"pid":       s.PID(),
			"state":     s.State().String(),
			"receivers": s.ActiveReceivers(),
		}
	})
	srv := &http.Server{Addr: addr, Handler: router}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Warnf("jdwptrace.metrics addr=%q err=%v", addr, err)
		}
	}()
	logging.Infof("jdwptrace.metrics listening addr=%q", addr)
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
