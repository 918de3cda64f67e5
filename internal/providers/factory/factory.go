package factory

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/example/transactional-email/internal/config"
	"github.com/example/transactional-email/internal/providers/mandrill"
)

// Email constructs the configured email provider, supporting the Mandrill
// API and a mock backend.
func Email(cfg config.ProviderConfig, timeout time.Duration, logger zerolog.Logger) (mandrill.Provider, error) {
	backend := normalize(cfg.EmailProvider, "mandrill")
	switch backend {
	case "mandrill":
		provider, err := mandrill.NewClient(cfg.Mandrill.APIKey, logger,
			mandrill.WithBaseURL(cfg.Mandrill.BaseURL),
			mandrill.WithTimeout(timeout),
		)
		if err != nil {
			return nil, fmt.Errorf("factory: mandrill provider init: %w", err)
		}
		logger.Info().
			Str("backend", "mandrill").
			Msg("email provider initialised")
		return provider, nil
	case "mock":
		provider := mandrill.NewMockProvider(logger)
		logger.Info().
			Str("backend", "mock").
			Msg("email provider initialised")
		return provider, nil
	default:
		return nil, fmt.Errorf("factory: unsupported email provider backend %q", cfg.EmailProvider)
	}
}

func normalize(value, def string) string {
	value = strings.TrimSpace(strings.ToLower(value))
	if value == "" {
		return def
	}
	return value
}
