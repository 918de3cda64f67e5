// Package reporting forwards dead-lettered failures to Sentry.
package reporting

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/rs/zerolog"

	"github.com/example/transactional-email/internal/config"
)

const flushTimeout = 2 * time.Second

// Reporter captures errors with tags.
type Reporter interface {
	Capture(err error, tags map[string]string)
	Close()
}

// New returns a Sentry-backed reporter, or a no-op reporter when no DSN is
// configured.
func New(cfg config.SentryConfig, logger zerolog.Logger) (Reporter, error) {
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}
	if strings.TrimSpace(cfg.DSN) == "" {
		logger.Info().Msg("sentry reporting disabled")
		return Nop{}, nil
	}

	client, err := sentry.NewClient(sentry.ClientOptions{
		Dsn:         cfg.DSN,
		Environment: cfg.Environment,
	})
	if err != nil {
		return nil, fmt.Errorf("reporting: sentry client: %w", err)
	}

	logger.Info().Str("environment", cfg.Environment).Msg("sentry reporting enabled")
	return &Sentry{hub: sentry.NewHub(client, sentry.NewScope())}, nil
}

// Sentry reports through its own hub so it never touches the global one.
type Sentry struct {
	hub *sentry.Hub
}

// Capture sends err with tags attached.
func (s *Sentry) Capture(err error, tags map[string]string) {
	if s == nil || err == nil {
		return
	}
	s.hub.WithScope(func(scope *sentry.Scope) {
		for k, v := range tags {
			if v != "" {
				scope.SetTag(k, v)
			}
		}
		s.hub.CaptureException(err)
	})
}

// Close flushes buffered events.
func (s *Sentry) Close() {
	if s == nil {
		return
	}
	s.hub.Flush(flushTimeout)
}

// Nop discards every report.
type Nop struct{}

// Capture implements Reporter.
func (Nop) Capture(error, map[string]string) {}

// Close implements Reporter.
func (Nop) Close() {}
