package logging

import (
	"sync/atomic"

	"github.com/rs/zerolog"
)

var current atomic.Pointer[zerolog.Logger]

func init() {
	l := zerolog.Nop()
	current.Store(&l)
}

func setLogger(l zerolog.Logger) {
	current.Store(&l)
}

// Logger returns the process logger. It is a no-op logger until Configure runs.
func Logger() *zerolog.Logger {
	return current.Load()
}

// Component returns a child of the process logger tagged with name.
func Component(name string) zerolog.Logger {
	return Logger().With().Str("component", name).Logger()
}

func Tracef(format string, args ...any) {
	Logger().Trace().Msgf(format, args...)
}

func Debugf(format string, args ...any) {
	Logger().Debug().Msgf(format, args...)
}

func Infof(format string, args ...any) {
	Logger().Info().Msgf(format, args...)
}

func Warnf(format string, args ...any) {
	Logger().Warn().Msgf(format, args...)
}

func Errf(format string, args ...any) {
	Logger().Error().Msgf(format, args...)
}

// Enabled reports whether lvl would be written, so hot paths can skip formatting.
func Enabled(lvl zerolog.Level) bool {
	l := Logger()
	return l.GetLevel() <= lvl && lvl != zerolog.Disabled
}
