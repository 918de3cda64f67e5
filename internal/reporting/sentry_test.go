package reporting_test

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/transactional-email/internal/config"
	"github.com/example/transactional-email/internal/reporting"
)

func TestNewWithoutDSNIsNop(t *testing.T) {
	r, err := reporting.New(config.SentryConfig{}, zerolog.Nop())
	require.NoError(t, err)
	assert.IsType(t, reporting.Nop{}, r)

	r.Capture(errors.New("ignored"), map[string]string{"failure_type": "template"})
	r.Close()
}

func TestNewRejectsInvalidDSN(t *testing.T) {
	_, err := reporting.New(config.SentryConfig{DSN: "not a dsn"}, zerolog.Nop())
	require.Error(t, err)
}

func TestNewWithDSN(t *testing.T) {
	r, err := reporting.New(config.SentryConfig{
		DSN:         "https://public@sentry.example.com/1",
		Environment: "test",
	}, zerolog.Nop())
	require.NoError(t, err)
	assert.IsType(t, &reporting.Sentry{}, r)

	r.Capture(nil, nil)
	r.Close()
}
