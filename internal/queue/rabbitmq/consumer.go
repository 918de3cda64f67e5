package rabbitmq

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/example/transactional-email/internal/models"
)

// Deliveries starts consuming with manual acks. The returned channel closes
// when ctx is cancelled or the broker closes the consumer.
func (c *Client) Deliveries(ctx context.Context) (<-chan models.Delivery, error) {
	src, err := c.consume.ConsumeWithContext(ctx, c.cfg.Queue, c.cfg.ConsumerTag, false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq: consume %q: %w", c.cfg.Queue, err)
	}

	out := make(chan models.Delivery)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-src:
				if !ok {
					return
				}
				c.inFlight.Add(1)
				select {
				case out <- toDelivery(d):
				case <-ctx.Done():
					// Unsettled deliveries are redelivered by the broker when
					// the channel closes.
					c.inFlight.Add(-1)
					return
				}
			}
		}
	}()
	return out, nil
}

// Ack acknowledges a delivery.
func (c *Client) Ack(d models.Delivery) error {
	defer c.settled()
	if err := c.consume.Ack(d.Tag, false); err != nil {
		return fmt.Errorf("rabbitmq: ack %d: %w", d.Tag, err)
	}
	return nil
}

// Requeue negatively acknowledges a delivery and asks the broker to
// redeliver it.
func (c *Client) Requeue(d models.Delivery) error {
	defer c.settled()
	if err := c.consume.Nack(d.Tag, false, true); err != nil {
		return fmt.Errorf("rabbitmq: nack %d: %w", d.Tag, err)
	}
	return nil
}

// Status returns the ready count reported by the broker and the number of
// deliveries this client holds unsettled.
func (c *Client) Status(_ context.Context) (models.QueueStatus, error) {
	c.opsMu.Lock()
	q, err := c.ops.QueueDeclarePassive(c.cfg.Queue, true, false, false, false, nil)
	c.opsMu.Unlock()
	if err != nil {
		return models.QueueStatus{}, fmt.Errorf("rabbitmq: inspect queue %q: %w", c.cfg.Queue, err)
	}
	return models.QueueStatus{Ready: q.Messages, Unacked: int(c.inFlight.Load())}, nil
}

func (c *Client) settled() {
	if c.inFlight.Add(-1) < 0 {
		c.inFlight.Store(0)
	}
}

func toDelivery(d amqp.Delivery) models.Delivery {
	received := d.Timestamp
	if received.IsZero() {
		received = time.Now()
	}
	body := make([]byte, len(d.Body))
	copy(body, d.Body)
	return models.Delivery{
		Tag:         d.DeliveryTag,
		MessageID:   d.MessageId,
		RoutingKey:  d.RoutingKey,
		Body:        body,
		Redelivered: d.Redelivered,
		ReceivedAt:  received,
	}
}
