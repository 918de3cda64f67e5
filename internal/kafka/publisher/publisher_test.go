package publisher_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/transactional-email/internal/kafka/publisher"
	"github.com/example/transactional-email/internal/models"
)

type fakeSyncProducer struct {
	topic   string
	key     []byte
	headers map[string][]byte
	payload []byte
	err     error
}

func (f *fakeSyncProducer) PublishSync(topic string, key []byte, headers map[string][]byte, payload []byte) error {
	f.topic = topic
	f.key = key
	f.headers = headers
	f.payload = payload
	return f.err
}

func TestPublishDLQ(t *testing.T) {
	prod := &fakeSyncProducer{}
	pub := publisher.NewDLQPublisher(prod, "transactional-email.dlq", zerolog.Nop())

	record := models.DLQRecord{
		ID:          "dlq-1",
		Email:       "a@b.com",
		Activity:    "user_password",
		FailureType: models.FailureTypeTemplate,
		Reason:      "worker: email template not defined",
		FailedAt:    time.Unix(1700000000, 0).UTC(),
	}
	require.NoError(t, pub.PublishDLQ(context.Background(), record))

	assert.Equal(t, "transactional-email.dlq", prod.topic)
	assert.Equal(t, []byte("a@b.com"), prod.key)
	assert.Equal(t, []byte("application/json"), prod.headers["content-type"])
	assert.Equal(t, []byte(models.FailureTypeTemplate), prod.headers["failure-type"])

	var decoded models.DLQRecord
	require.NoError(t, json.Unmarshal(prod.payload, &decoded))
	assert.Equal(t, record, decoded)
}

func TestPublishDLQKeysByIDWithoutEmail(t *testing.T) {
	prod := &fakeSyncProducer{}
	pub := publisher.NewDLQPublisher(prod, "dlq", zerolog.Nop())

	require.NoError(t, pub.PublishDLQ(context.Background(), models.DLQRecord{ID: "dlq-2", FailureType: models.FailureTypeMalformed}))
	assert.Equal(t, []byte("dlq-2"), prod.key)
}

func TestPublishDLQPropagatesProducerError(t *testing.T) {
	boom := errors.New("broker down")
	pub := publisher.NewDLQPublisher(&fakeSyncProducer{err: boom}, "dlq", zerolog.Nop())

	err := pub.PublishDLQ(context.Background(), models.DLQRecord{ID: "dlq-3"})
	require.ErrorIs(t, err, boom)
}

func TestNilProducer(t *testing.T) {
	pub := publisher.NewDLQPublisher(nil, "dlq", zerolog.Nop())
	assert.Nil(t, pub)

	err := pub.PublishDLQ(context.Background(), models.DLQRecord{ID: "x"})
	assert.ErrorIs(t, err, publisher.ErrProducerNotInitialised())
}
