// Package rabbitmq is the AMQP transport for the transactional queue and the
// error side-channel.
package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/example/transactional-email/internal/config"
)

// Channel is the subset of *amqp.Channel used by the client.
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueDeclarePassive(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
	Qos(prefetchCount, prefetchSize int, global bool) error
	ConsumeWithContext(ctx context.Context, queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	Ack(tag uint64, multiple bool) error
	Nack(tag uint64, multiple, requeue bool) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Connection is the subset of *amqp.Connection used by the client.
type Connection interface {
	IsClosed() bool
	Close() error
}

// Client owns one AMQP connection with a consuming channel and a second
// channel for publishing and status queries.
type Client struct {
	cfg    config.RabbitMQConfig
	logger zerolog.Logger

	conn    Connection
	consume Channel

	opsMu sync.Mutex
	ops   Channel

	inFlight atomic.Int64
}

// Dial connects to the broker, declares the exchange and queue, binds them
// and applies the prefetch limit.
func Dial(cfg config.RabbitMQConfig, logger zerolog.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("rabbitmq: url is required")
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq: dial: %w", err)
	}

	consume, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("rabbitmq: open consume channel: %w", err)
	}
	ops, err := conn.Channel()
	if err != nil {
		consume.Close()
		conn.Close()
		return nil, fmt.Errorf("rabbitmq: open publish channel: %w", err)
	}

	c, err := NewClient(cfg, logger, conn, consume, ops)
	if err != nil {
		ops.Close()
		consume.Close()
		conn.Close()
		return nil, err
	}
	return c, nil
}

// NewClient builds a client on already opened channels and declares the
// topology.
func NewClient(cfg config.RabbitMQConfig, logger zerolog.Logger, conn Connection, consume, ops Channel) (*Client, error) {
	if conn == nil || consume == nil || ops == nil {
		return nil, errors.New("rabbitmq: connection and channels are required")
	}
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}
	if cfg.Prefetch < 1 {
		cfg.Prefetch = 1
	}
	if cfg.ExchangeType == "" {
		cfg.ExchangeType = amqp.ExchangeTopic
	}

	c := &Client{cfg: cfg, logger: logger, conn: conn, consume: consume, ops: ops}
	if err := c.declare(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) declare() error {
	if err := c.consume.ExchangeDeclare(c.cfg.Exchange, c.cfg.ExchangeType, true, false, false, false, nil); err != nil {
		return fmt.Errorf("rabbitmq: declare exchange %q: %w", c.cfg.Exchange, err)
	}
	if _, err := c.consume.QueueDeclare(c.cfg.Queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("rabbitmq: declare queue %q: %w", c.cfg.Queue, err)
	}
	if err := c.consume.QueueBind(c.cfg.Queue, c.cfg.BindingKey, c.cfg.Exchange, false, nil); err != nil {
		return fmt.Errorf("rabbitmq: bind queue %q: %w", c.cfg.Queue, err)
	}
	if err := c.consume.Qos(c.cfg.Prefetch, 0, false); err != nil {
		return fmt.Errorf("rabbitmq: set prefetch: %w", err)
	}

	c.logger.Info().
		Str("exchange", c.cfg.Exchange).
		Str("queue", c.cfg.Queue).
		Str("binding_key", c.cfg.BindingKey).
		Int("prefetch", c.cfg.Prefetch).
		Msg("rabbitmq topology declared")
	return nil
}

// IsReady reports whether the connection is open.
func (c *Client) IsReady() bool {
	return c != nil && c.conn != nil && !c.conn.IsClosed()
}

// Close closes both channels and the connection.
func (c *Client) Close() error {
	var errs []error
	c.opsMu.Lock()
	if err := c.ops.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
		errs = append(errs, err)
	}
	c.opsMu.Unlock()
	if err := c.consume.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
		errs = append(errs, err)
	}
	if err := c.conn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
