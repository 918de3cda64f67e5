package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config captures all runtime configuration for the transactional email
// worker.
type Config struct {
	App       AppConfig
	RabbitMQ  RabbitMQConfig
	Kafka     KafkaConfig
	Providers ProviderConfig
	Sender    SenderConfig
	Templates TemplateConfig
	Retry     RetryConfig
	Timeouts  TimeoutConfig
	Health    HealthConfig
	Sentry    SentryConfig
}

// AppConfig contains generic application level settings.
type AppConfig struct {
	Env      string
	Port     int
	LogLevel string
}

// RabbitMQConfig describes the queue the worker consumes from and the
// exchange used for the error side-channel.
type RabbitMQConfig struct {
	URL                  string
	Exchange             string
	ExchangeType         string
	Queue                string
	BindingKey           string
	ConsumerTag          string
	Prefetch             int
	ErrorRoutingKey      string
	DeadLetterRoutingKey string
}

// KafkaConfig is optional. When brokers are configured dead-letter records
// are written to DLQTopic instead of the AMQP exchange.
type KafkaConfig struct {
	Brokers  []string
	DLQTopic string
	ClientID string
}

// Enabled reports whether a Kafka dead-letter sink was configured.
func (k KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0
}

// MandrillConfig stores credentials for the Mandrill API.
type MandrillConfig struct {
	APIKey  string
	BaseURL string
}

// ProviderConfig wraps configuration for the email provider.
type ProviderConfig struct {
	EmailProvider string
	Mandrill      MandrillConfig
}

// SenderConfig is the fixed system identity used on every email.
type SenderConfig struct {
	Email            string
	Name             string
	DefaultFirstName string
}

// TemplateConfig feeds the template resolver.
type TemplateConfig struct {
	HomeCountry        string
	AffiliateCountries []string
	// Overrides maps a campaign/event id to an extra template suffix.
	Overrides map[string]string
}

// RetryConfig controls the transient-failure requeue delay.
type RetryConfig struct {
	TransientBackoffSeconds int
}

// TimeoutConfig contains timeout thresholds for outbound providers.
type TimeoutConfig struct {
	ProviderTimeoutSeconds int
}

// HealthConfig controls the health/metrics HTTP server.
type HealthConfig struct {
	Enabled          bool
	HandlerTimeoutMs int
}

// SentryConfig enables failure reporting when DSN is set.
type SentryConfig struct {
	DSN         string
	Environment string
}

// Load reads environment variables, applies defaults, validates required
// values and returns a populated Config instance.
func Load() (*Config, error) {
	_ = godotenv.Load()

	ldr := &envLoader{}

	cfg := &Config{}
	cfg.App.Env = ldr.getString("APP_ENV", "development", false)
	cfg.App.Port = ldr.getInt("APP_PORT", 8080, false)
	cfg.App.LogLevel = ldr.getString("LOG_LEVEL", "info", false)

	cfg.RabbitMQ.URL = ldr.getString("RABBITMQ_URL", "", true)
	cfg.RabbitMQ.Exchange = ldr.getString("RABBITMQ_EXCHANGE", "transactionalExchange", false)
	cfg.RabbitMQ.ExchangeType = ldr.getString("RABBITMQ_EXCHANGE_TYPE", "topic", false)
	cfg.RabbitMQ.Queue = ldr.getString("RABBITMQ_QUEUE", "transactionalQueue", false)
	cfg.RabbitMQ.BindingKey = ldr.getString("RABBITMQ_BINDING_KEY", "*.*.transactional", false)
	cfg.RabbitMQ.ConsumerTag = ldr.getString("RABBITMQ_CONSUMER_TAG", "transactional-email-worker", false)
	cfg.RabbitMQ.Prefetch = ldr.getInt("RABBITMQ_PREFETCH", 1, false)
	cfg.RabbitMQ.ErrorRoutingKey = ldr.getString("RABBITMQ_ERROR_ROUTING_KEY", "mandrill.error", false)
	cfg.RabbitMQ.DeadLetterRoutingKey = ldr.getString("RABBITMQ_DLQ_ROUTING_KEY", "transactional.deadletter", false)

	cfg.Kafka.Brokers = ldr.getStringSlice("KAFKA_BROKERS", false)
	cfg.Kafka.DLQTopic = ldr.getString("KAFKA_DLQ_TOPIC", "transactional-email.dlq", false)
	cfg.Kafka.ClientID = ldr.getString("KAFKA_CLIENT_ID", "transactional-email-worker", false)

	cfg.Providers.EmailProvider = strings.ToLower(ldr.getString("EMAIL_PROVIDER", "mandrill", false))
	cfg.Providers.Mandrill.APIKey = ldr.getString("MANDRILL_API_KEY", "", cfg.Providers.EmailProvider == "mandrill")
	cfg.Providers.Mandrill.BaseURL = ldr.getString("MANDRILL_BASE_URL", "https://mandrillapp.com/api/1.0", false)

	cfg.Sender.Email = ldr.getString("SENDER_EMAIL", "no-reply@dosomething.org", false)
	cfg.Sender.Name = ldr.getString("SENDER_NAME", "DoSomething.org", false)
	cfg.Sender.DefaultFirstName = ldr.getString("DEFAULT_FIRST_NAME", "Doer", false)

	cfg.Templates.HomeCountry = strings.ToUpper(ldr.getString("HOME_COUNTRY", "US", false))
	cfg.Templates.AffiliateCountries = upperAll(ldr.getStringSlice("AFFILIATE_COUNTRIES", false))
	if len(cfg.Templates.AffiliateCountries) == 0 {
		cfg.Templates.AffiliateCountries = []string{"BR", "BW", "CA", "GB", "GH", "ID", "KE", "MX", "NG"}
	}
	cfg.Templates.Overrides = ldr.getStringMap("TEMPLATE_OVERRIDES")

	cfg.Retry.TransientBackoffSeconds = ldr.getInt("TRANSIENT_BACKOFF_SECONDS", 30, false)

	cfg.Timeouts.ProviderTimeoutSeconds = ldr.getInt("PROVIDER_TIMEOUT_SECONDS", 30, false)

	cfg.Health.Enabled = ldr.getBool("HEALTH_ENABLED", true, false)
	cfg.Health.HandlerTimeoutMs = ldr.getInt("HEALTH_HANDLER_TIMEOUT_MS", 500, false)

	cfg.Sentry.DSN = ldr.getString("SENTRY_DSN", "", false)
	cfg.Sentry.Environment = ldr.getString("SENTRY_ENVIRONMENT", cfg.App.Env, false)

	if cfg.RabbitMQ.Prefetch < 1 {
		ldr.addError("RABBITMQ_PREFETCH must be >= 1")
	}
	if cfg.Retry.TransientBackoffSeconds < 0 {
		ldr.addError("TRANSIENT_BACKOFF_SECONDS cannot be negative")
	}

	if err := ldr.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

type envLoader struct {
	errs []string
}

func (l *envLoader) validate() error {
	if len(l.errs) == 0 {
		return nil
	}
	return fmt.Errorf("config validation failed: %s", strings.Join(l.errs, "; "))
}

func (l *envLoader) getString(key, def string, required bool) string {
	if val, ok := os.LookupEnv(key); ok {
		val = strings.TrimSpace(val)
		if val == "" {
			if required {
				l.addError(fmt.Sprintf("%s is required", key))
			}
			return def
		}
		return val
	}
	if required {
		l.addError(fmt.Sprintf("%s is required", key))
	}
	return def
}

func (l *envLoader) getInt(key string, def int, required bool) int {
	raw := l.getString(key, "", required)
	if raw == "" {
		return def
	}
	i, err := strconv.Atoi(raw)
	if err != nil {
		l.addError(fmt.Sprintf("%s must be a valid integer", key))
		return def
	}
	return i
}

func (l *envLoader) getBool(key string, def bool, required bool) bool {
	raw := l.getString(key, "", required)
	if raw == "" {
		return def
	}
	parsed, err := strconv.ParseBool(raw)
	if err != nil {
		l.addError(fmt.Sprintf("%s must be a valid boolean", key))
		return def
	}
	return parsed
}

func (l *envLoader) getStringSlice(key string, required bool) []string {
	raw := l.getString(key, "", required)
	if raw == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(raw, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	if required && len(out) == 0 {
		l.addError(fmt.Sprintf("%s must contain at least one entry", key))
	}
	return out
}

// getStringMap parses "k1=v1,k2=v2". Malformed pairs are reported as
// validation errors.
func (l *envLoader) getStringMap(key string) map[string]string {
	entries := l.getStringSlice(key, false)
	out := make(map[string]string, len(entries))
	for _, entry := range entries {
		k, v, ok := strings.Cut(entry, "=")
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)
		if !ok || k == "" || v == "" {
			l.addError(fmt.Sprintf("%s has malformed entry %q", key, entry))
			continue
		}
		out[k] = v
	}
	return out
}

func (l *envLoader) addError(err string) {
	l.errs = append(l.errs, err)
}

func upperAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		out = append(out, strings.ToUpper(v))
	}
	sort.Strings(out)
	return out
}
