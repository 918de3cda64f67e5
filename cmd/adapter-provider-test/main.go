package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/rs/zerolog"

	common "github.com/example/transactional-email/internal/adapters/common"
	emailadapter "github.com/example/transactional-email/internal/adapters/email"
	"github.com/example/transactional-email/internal/config"
	"github.com/example/transactional-email/internal/models"
	"github.com/example/transactional-email/internal/providers/factory"
)

// Sends one template through the adapter and provider without a queue.
// Defaults to the mock backend; pass -provider=mandrill with
// MANDRILL_API_KEY set to hit the real API.
func main() {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()

	backend := flag.String("provider", "mock", "email provider backend (mock|mandrill)")
	to := flag.String("to", "smoke-test@example.com", "recipient address")
	template := flag.String("template", "mb-user-password-US", "template name")
	timeout := flag.Duration("timeout", 10*time.Second, "provider timeout")
	flag.Parse()

	provider, err := factory.Email(config.ProviderConfig{
		EmailProvider: *backend,
		Mandrill: config.MandrillConfig{
			APIKey:  os.Getenv("MANDRILL_API_KEY"),
			BaseURL: os.Getenv("MANDRILL_BASE_URL"),
		},
	}, *timeout, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialise email provider")
	}

	adapter, err := emailadapter.NewAdapter(provider, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialise email adapter")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	out := adapter.Send(ctx, &models.SendRequest{
		From:       models.Sender{Email: "no-reply@dosomething.org", Name: "DoSomething.org"},
		To:         models.Recipient{Email: *to, Name: "Doer"},
		Tags:       []string{"smoke_test"},
		TemplateID: *template,
		Content:    models.MainContentPlaceholder(),
		MergeVars:  []models.MergeVar{{Name: "FNAME", Content: "Doer"}},
		Activity:   "smoke_test",
	})
	if out.Status != common.StatusAccepted {
		logger.Fatal().Interface("outcome", out).Msg("adapter returned unexpected outcome")
	}

	logger.Info().
		Str("email", *to).
		Str("template", *template).
		Str("provider_id", out.ProviderID).
		Str("status", string(out.Status)).
		Msg("adapter and provider working as expected")
}
