package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/example/transactional-email/internal/models"
)

const contentTypeJSON = "application/json"

// Publish sends body to the configured exchange with routingKey as a
// persistent JSON message.
func (c *Client) Publish(ctx context.Context, routingKey string, body []byte) error {
	if strings.TrimSpace(routingKey) == "" {
		return errors.New("rabbitmq: routing key is required")
	}
	msg := amqp.Publishing{
		ContentType:  contentTypeJSON,
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}

	c.opsMu.Lock()
	err := c.ops.PublishWithContext(ctx, c.cfg.Exchange, routingKey, false, false, msg)
	c.opsMu.Unlock()
	if err != nil {
		return fmt.Errorf("rabbitmq: publish %q: %w", routingKey, err)
	}
	return nil
}

// RoutedPublisher is the publish operation the record publishers rely on.
type RoutedPublisher interface {
	Publish(ctx context.Context, routingKey string, body []byte) error
}

// ErrorPublisher writes error records to the error side-channel.
type ErrorPublisher struct {
	pub        RoutedPublisher
	routingKey string
	logger     zerolog.Logger
}

// NewErrorPublisher constructs an ErrorPublisher.
func NewErrorPublisher(pub RoutedPublisher, routingKey string, logger zerolog.Logger) *ErrorPublisher {
	if pub == nil {
		return nil
	}
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}
	return &ErrorPublisher{pub: pub, routingKey: routingKey, logger: logger}
}

// PublishError marshals and publishes record.
func (p *ErrorPublisher) PublishError(ctx context.Context, record models.ErrorRecord) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("rabbitmq: marshal error record: %w", err)
	}
	if err := p.pub.Publish(ctx, p.routingKey, payload); err != nil {
		return err
	}
	p.logger.Debug().Str("email", record.Email).Str("routing_key", p.routingKey).Msg("error record published")
	return nil
}

// DLQPublisher writes dead-letter records to the exchange. It is used when
// no Kafka dead-letter topic is configured.
type DLQPublisher struct {
	pub        RoutedPublisher
	routingKey string
	logger     zerolog.Logger
}

// NewDLQPublisher constructs a DLQPublisher.
func NewDLQPublisher(pub RoutedPublisher, routingKey string, logger zerolog.Logger) *DLQPublisher {
	if pub == nil {
		return nil
	}
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}
	return &DLQPublisher{pub: pub, routingKey: routingKey, logger: logger}
}

// PublishDLQ marshals and publishes record.
func (p *DLQPublisher) PublishDLQ(ctx context.Context, record models.DLQRecord) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("rabbitmq: marshal dlq record: %w", err)
	}
	if err := p.pub.Publish(ctx, p.routingKey, payload); err != nil {
		return err
	}
	p.logger.Debug().Str("dlq_id", record.ID).Str("routing_key", p.routingKey).Msg("dlq record published")
	return nil
}
