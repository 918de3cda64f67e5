package factory_test

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/transactional-email/internal/config"
	"github.com/example/transactional-email/internal/providers/factory"
	"github.com/example/transactional-email/internal/providers/mandrill"
)

func TestEmailBackends(t *testing.T) {
	p, err := factory.Email(config.ProviderConfig{EmailProvider: " Mock "}, time.Second, zerolog.Nop())
	require.NoError(t, err)
	assert.IsType(t, &mandrill.MockProvider{}, p)

	p, err = factory.Email(config.ProviderConfig{Mandrill: config.MandrillConfig{APIKey: "key"}}, time.Second, zerolog.Nop())
	require.NoError(t, err)
	assert.IsType(t, &mandrill.Client{}, p)
}

func TestEmailErrors(t *testing.T) {
	_, err := factory.Email(config.ProviderConfig{EmailProvider: "mandrill"}, time.Second, zerolog.Nop())
	require.Error(t, err)

	_, err = factory.Email(config.ProviderConfig{EmailProvider: "smtp"}, time.Second, zerolog.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported")
}
