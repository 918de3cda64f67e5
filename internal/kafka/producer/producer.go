// Package producer is the Kafka side of the dead-letter sink. It writes each
// record synchronously and reports whether the cluster is reachable for the
// readiness check.
package producer

import (
	"errors"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/IBM/sarama"
	"github.com/rs/zerolog"
)

const (
	defaultClientID      = "transactional-email-worker"
	clusterCheckInterval = 30 * time.Second
)

// Producer writes dead-letter records to Kafka. Records are rare and must not
// be lost, so every write waits for all in-sync replicas.
type Producer struct {
	logger zerolog.Logger

	client sarama.Client
	sender sarama.SyncProducer

	reachable atomic.Bool

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New connects to brokers and starts a background cluster check. An empty
// clientID uses the worker's default.
func New(brokers []string, clientID string, logger zerolog.Logger) (*Producer, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka producer: at least one broker is required")
	}
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}

	client, err := sarama.NewClient(brokers, dlqConfig(clientID))
	if err != nil {
		return nil, fmt.Errorf("kafka producer: connect to %v: %w", brokers, err)
	}
	sender, err := sarama.NewSyncProducerFromClient(client)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("kafka producer: create sync producer: %w", err)
	}

	p := &Producer{
		logger: logger,
		client: client,
		sender: sender,
		stop:   make(chan struct{}),
	}
	p.checkCluster()

	p.wg.Add(1)
	go p.watchCluster(clusterCheckInterval)

	return p, nil
}

// PublishSync writes one dead-letter record and blocks until the broker
// acknowledges it. A failed write marks the producer unreachable until the
// next successful check.
func (p *Producer) PublishSync(topic string, key []byte, headers map[string][]byte, payload []byte) error {
	if topic == "" {
		return errors.New("kafka producer: dlq topic is required")
	}

	msg := &sarama.ProducerMessage{
		Topic:   topic,
		Value:   sarama.ByteEncoder(payload),
		Headers: recordHeaders(headers),
	}
	if len(key) > 0 {
		msg.Key = sarama.ByteEncoder(key)
	}

	partition, offset, err := p.sender.SendMessage(msg)
	if err != nil {
		p.reachable.Store(false)
		return fmt.Errorf("kafka producer: write dlq record: %w", err)
	}

	p.reachable.Store(true)
	p.logger.Debug().
		Str("topic", topic).
		Int32("partition", partition).
		Int64("offset", offset).
		Msg("dlq record acknowledged")
	return nil
}

// IsReady reports whether the last cluster check or write succeeded.
func (p *Producer) IsReady() bool {
	return p != nil && p.reachable.Load()
}

// Close stops the cluster check and releases the producer and client. Later
// calls return nil.
func (p *Producer) Close() error {
	var errs []error
	p.stopOnce.Do(func() {
		close(p.stop)
		p.wg.Wait()

		if err := p.sender.Close(); err != nil {
			errs = append(errs, err)
		}
		if err := p.client.Close(); err != nil && !errors.Is(err, sarama.ErrClosedClient) {
			errs = append(errs, err)
		}
	})
	return errors.Join(errs...)
}

func (p *Producer) watchCluster(every time.Duration) {
	defer p.wg.Done()

	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
			p.checkCluster()
		}
	}
}

func (p *Producer) checkCluster() {
	if err := p.client.RefreshMetadata(); err != nil {
		if p.reachable.Swap(false) {
			p.logger.Warn().Err(err).Msg("kafka cluster unreachable; dlq writes may fail")
		}
		return
	}
	if !p.reachable.Swap(true) {
		p.logger.Info().Msg("kafka cluster reachable")
	}
}

func recordHeaders(headers map[string][]byte) []sarama.RecordHeader {
	if len(headers) == 0 {
		return nil
	}
	out := make([]sarama.RecordHeader, 0, len(headers))
	for k, v := range headers {
		out = append(out, sarama.RecordHeader{
			Key:   []byte(k),
			Value: append([]byte(nil), v...),
		})
	}
	return out
}

// dlqConfig is an idempotent producer that waits for every in-sync replica.
func dlqConfig(clientID string) *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.ClientID = defaultClientID
	if clientID != "" {
		cfg.ClientID = clientID
	}
	cfg.Version = sarama.V2_5_0_0
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Idempotent = true
	cfg.Producer.Retry.Max = 6
	cfg.Producer.Retry.Backoff = 250 * time.Millisecond
	cfg.Producer.Return.Errors = true
	cfg.Producer.Return.Successes = true
	cfg.Net.MaxOpenRequests = 1
	cfg.Metadata.Full = false
	cfg.Metadata.RefreshFrequency = clusterCheckInterval
	return cfg
}
