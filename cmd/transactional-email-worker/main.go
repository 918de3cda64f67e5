package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	emailadapter "github.com/example/transactional-email/internal/adapters/email"
	"github.com/example/transactional-email/internal/config"
	"github.com/example/transactional-email/internal/kafka/producer"
	kafkapublisher "github.com/example/transactional-email/internal/kafka/publisher"
	"github.com/example/transactional-email/internal/logger"
	"github.com/example/transactional-email/internal/models"
	"github.com/example/transactional-email/internal/providers/factory"
	"github.com/example/transactional-email/internal/queue/rabbitmq"
	"github.com/example/transactional-email/internal/reporting"
	"github.com/example/transactional-email/internal/server"
	"github.com/example/transactional-email/internal/stats"
	"github.com/example/transactional-email/internal/templates"
	"github.com/example/transactional-email/internal/worker"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		fail("config load", err)
	}

	baseLogger, err := logger.New(cfg.App.Env, cfg.App.LogLevel)
	if err != nil {
		fail("logger init", err)
	}
	log := baseLogger.With().Str("service", "transactional-email-worker").Logger()

	if err := run(ctx, cfg, log); err != nil {
		log.Error().Err(err).Msg("worker terminated with error")
		stop()
		os.Exit(1)
	}
	log.Info().Msg("shutdown complete")
}

// run wires the pipeline and blocks until ctx is cancelled or a component
// fails. Deferred closes run before it returns.
func run(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	sink := stats.NewPrometheus(registry)

	queue, err := rabbitmq.Dial(cfg.RabbitMQ, logger.Component(log, "rabbitmq"))
	if err != nil {
		return fmt.Errorf("connect to rabbitmq: %w", err)
	}
	defer func() {
		if err := queue.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close rabbitmq client")
		}
	}()

	checks := map[string]server.Check{"rabbitmq": queue.IsReady}

	var dlq worker.DLQPublisher
	if cfg.Kafka.Enabled() {
		prod, err := producer.New(cfg.Kafka.Brokers, cfg.Kafka.ClientID, logger.Component(log, "kafka"))
		if err != nil {
			return fmt.Errorf("create kafka producer: %w", err)
		}
		defer func() {
			if err := prod.Close(); err != nil {
				log.Error().Err(err).Msg("failed to close kafka producer")
			}
		}()
		dlq = kafkapublisher.NewDLQPublisher(prod, cfg.Kafka.DLQTopic, logger.Component(log, "dlq-publisher"))
		checks["kafka"] = prod.IsReady
	} else {
		dlq = rabbitmq.NewDLQPublisher(queue, cfg.RabbitMQ.DeadLetterRoutingKey, logger.Component(log, "dlq-publisher"))
	}
	errorPublisher := rabbitmq.NewErrorPublisher(queue, cfg.RabbitMQ.ErrorRoutingKey, logger.Component(log, "error-publisher"))

	provider, err := factory.Email(cfg.Providers, time.Duration(cfg.Timeouts.ProviderTimeoutSeconds)*time.Second, logger.Component(log, "email-provider"))
	if err != nil {
		return fmt.Errorf("initialise email provider: %w", err)
	}
	adapter, err := emailadapter.NewAdapter(provider, logger.Component(log, "email-adapter"))
	if err != nil {
		return fmt.Errorf("initialise email adapter: %w", err)
	}

	reporter, err := reporting.New(cfg.Sentry, logger.Component(log, "reporting"))
	if err != nil {
		return fmt.Errorf("initialise error reporting: %w", err)
	}
	defer reporter.Close()

	resolver := templates.NewResolver(templates.Config{
		HomeCountry:        cfg.Templates.HomeCountry,
		AffiliateCountries: cfg.Templates.AffiliateCountries,
		Overrides:          cfg.Templates.Overrides,
	}, sink)

	builder, err := worker.NewBuilder(worker.BuilderConfig{
		Sender:           models.Sender{Email: cfg.Sender.Email, Name: cfg.Sender.Name},
		DefaultFirstName: cfg.Sender.DefaultFirstName,
	}, resolver)
	if err != nil {
		return fmt.Errorf("initialise request builder: %w", err)
	}

	engine, err := worker.NewEngine(worker.Dependencies{
		Admitter: worker.NewAdmitter(resolver, sink, logger.Component(log, "admission")),
		Builder:  builder,
		Sender:   adapter,
		Outcomes: worker.NewOutcomeHandler(
			time.Duration(cfg.Retry.TransientBackoffSeconds)*time.Second,
			errorPublisher,
			sink,
			logger.Component(log, "outcome"),
		),
		DLQPublisher: dlq,
		Reporter:     reporter,
		Stats:        sink,
		Logger:       log,
		Now:          time.Now,
	})
	if err != nil {
		return fmt.Errorf("initialise worker engine: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return engine.Run(gctx, queue)
	})
	if cfg.Health.Enabled {
		srv := server.New(cfg.App.Port, time.Duration(cfg.Health.HandlerTimeoutMs)*time.Millisecond, checks, registry, logger.Component(log, "http"))
		g.Go(func() error {
			return srv.Run(gctx)
		})
	}

	log.Info().
		Str("queue", cfg.RabbitMQ.Queue).
		Str("provider", cfg.Providers.EmailProvider).
		Bool("kafka_dlq", cfg.Kafka.Enabled()).
		Msg("transactional email worker started")

	return g.Wait()
}

func fail(stage string, err error) {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	logger.Fatal().Err(err).Str("stage", stage).Msg("transactional email worker init failed")
}
