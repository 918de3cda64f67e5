package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const consoleTimeFormat = "2006-01-02 15:04:05"

// New constructs a zerolog logger for the worker. Development environments
// get a console writer; everything else emits JSON lines on stdout.
func New(env, level string, writers ...io.Writer) (*zerolog.Logger, error) {
	lvl, err := parseLevel(level)
	if err != nil {
		return nil, err
	}
	zerolog.SetGlobalLevel(lvl)
	zerolog.TimeFieldFormat = time.RFC3339
	zerolog.DurationFieldUnit = time.Millisecond

	var output io.Writer
	switch {
	case len(writers) > 0:
		output = io.MultiWriter(writers...)
	case isDevelopment(env):
		output = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: consoleTimeFormat}
	default:
		output = os.Stdout
	}

	logger := zerolog.New(output).With().Timestamp().Logger().Level(lvl)
	return &logger, nil
}

// Component returns a child logger tagged with the component name.
func Component(base zerolog.Logger, name string) zerolog.Logger {
	return base.With().Str("component", name).Logger()
}

// Nop returns a disabled logger, useful for tests.
func Nop() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func isDevelopment(env string) bool {
	env = strings.TrimSpace(env)
	return strings.EqualFold(env, "development") || strings.EqualFold(env, "dev")
}

func parseLevel(level string) (zerolog.Level, error) {
	level = strings.TrimSpace(level)
	if level == "" {
		level = zerolog.InfoLevel.String()
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return zerolog.NoLevel, err
	}
	return lvl, nil
}
