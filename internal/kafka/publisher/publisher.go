package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"

	"github.com/rs/zerolog"

	"github.com/example/transactional-email/internal/models"
)

var errProducerNotInitialised = errors.New("kafka publisher: producer not initialised")

// SyncProducer captures the subset of producer behaviour required by the
// DLQ publisher.
type SyncProducer interface {
	PublishSync(topic string, key []byte, headers map[string][]byte, payload []byte) error
}

// ErrProducerNotInitialised exposes the sentinel error for callers and tests.
func ErrProducerNotInitialised() error {
	return errProducerNotInitialised
}

// DLQPublisher writes dead-letter records to the configured Kafka topic.
type DLQPublisher struct {
	producer SyncProducer
	topic    string
	logger   zerolog.Logger
}

// NewDLQPublisher constructs a DLQPublisher instance.
func NewDLQPublisher(prod SyncProducer, topic string, logger zerolog.Logger) *DLQPublisher {
	if prod == nil {
		return nil
	}
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}
	return &DLQPublisher{
		producer: prod,
		topic:    topic,
		logger:   logger,
	}
}

// PublishDLQ writes the record synchronously, keyed by recipient so one
// address's failures land on the same partition.
func (p *DLQPublisher) PublishDLQ(_ context.Context, record models.DLQRecord) error {
	if p == nil || p.producer == nil {
		return errProducerNotInitialised
	}

	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("kafka publisher: marshal dlq record: %w", err)
	}

	key := record.Email
	if key == "" {
		key = record.ID
	}
	headers := map[string][]byte{
		"content-type": []byte("application/json"),
		"failure-type": []byte(record.FailureType),
	}

	if err := p.producer.PublishSync(p.topic, []byte(key), headers, payload); err != nil {
		return fmt.Errorf("kafka publisher: publish dlq record: %w", err)
	}
	p.logger.Debug().
		Str("dlq_id", record.ID).
		Str("topic", p.topic).
		Msg("dlq record published")
	return nil
}
