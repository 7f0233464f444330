package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	cases := []struct {
		raw  string
		want zerolog.Level
		ok   bool
	}{
		{"", zerolog.InfoLevel, false},
		{"trace", zerolog.TraceLevel, true},
		{" DEBUG ", zerolog.DebugLevel, true},
		{"warning", zerolog.WarnLevel, true},
		{"off", zerolog.Disabled, true},
		{"loud", zerolog.InfoLevel, false},
	}
	for _, tc := range cases {
		got, ok := parseLevel(tc.raw)
		if got != tc.want || ok != tc.ok {
			t.Fatalf("parseLevel(%q) got=(%v,%v) want=(%v,%v)", tc.raw, got, ok, tc.want, tc.ok)
		}
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv(EnvLogLevel, "error")
	t.Setenv(EnvLogTimestamp, "true")
	t.Setenv(EnvLogNoColor, "1")
	t.Setenv(EnvLogBypass, "nope")

	cfg := defaultConfig(ProfileTest)
	applyEnvOverrides(&cfg)
	if cfg.Level != zerolog.ErrorLevel {
		t.Fatalf("unexpected level=%v", cfg.Level)
	}
	if !cfg.Timestamp || !cfg.NoColor {
		t.Fatalf("unexpected flags: %+v", cfg)
	}
	if cfg.Bypass {
		t.Fatalf("invalid bool should not override bypass")
	}
}

func TestEnabledFollowsLoggerLevel(t *testing.T) {
	prev := Logger()
	defer setLogger(*prev)

	setLogger(zerolog.Nop().Level(zerolog.WarnLevel))
	if Enabled(zerolog.DebugLevel) {
		t.Fatalf("debug should be disabled at warn level")
	}
	if !Enabled(zerolog.ErrorLevel) {
		t.Fatalf("error should be enabled at warn level")
	}
}

func TestComponentTagsChildLogger(t *testing.T) {
	prev := Logger()
	defer setLogger(*prev)

	var buf bytes.Buffer
	setLogger(zerolog.New(&buf))
	l := Component("jdwptrace.metrics")
	l.Info().Msg("listening")
	if !strings.Contains(buf.String(), `"component":"jdwptrace.metrics"`) {
		t.Fatalf("component field missing: %s", buf.String())
	}
}
