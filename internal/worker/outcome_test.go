package worker_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	common "github.com/example/transactional-email/internal/adapters/common"
	"github.com/example/transactional-email/internal/models"
	"github.com/example/transactional-email/internal/stats"
	"github.com/example/transactional-email/internal/worker"
)

type errorCollector struct {
	mu      sync.Mutex
	records []models.ErrorRecord
	err     error
}

func (c *errorCollector) PublishError(_ context.Context, record models.ErrorRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = append(c.records, record)
	return c.err
}

func (c *errorCollector) Records() []models.ErrorRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.ErrorRecord(nil), c.records...)
}

func testRequest() *models.SendRequest {
	return &models.SendRequest{To: models.Recipient{Email: "a@b.com"}, TemplateID: "mb-user-password-US", Activity: "user_password"}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		out  common.Outcome
		want worker.Action
	}{
		{name: "accepted", out: common.Outcome{Status: common.StatusAccepted}, want: worker.Ack},
		{name: "unknown", out: common.Outcome{Status: common.StatusUnknown}, want: worker.Ack},
		{name: "soft bounce", out: common.Outcome{Status: common.StatusRejectedPermanent, Reason: "soft-bounce"}, want: worker.Ack},
		{name: "hard bounce", out: common.Outcome{Status: common.StatusRejectedPermanent, Reason: "hard-bounce"}, want: worker.Ack},
		{name: "spam", out: common.Outcome{Status: common.StatusRejectedPermanent, Reason: "SPAM"}, want: worker.Ack},
		{name: "transient status", out: common.Outcome{Status: common.StatusRejectedTransient, Reason: "timeout"}, want: worker.Requeue},
		{name: "bad gateway reason", out: common.Outcome{Status: common.StatusRejectedPermanent, Reason: "502 Bad Gateway"}, want: worker.Requeue},
		{name: "internal server error reason", out: common.Outcome{Status: common.StatusRejectedPermanent, Reason: "Internal Server Error"}, want: worker.Requeue},
		{name: "other rejection", out: common.Outcome{Status: common.StatusRejectedPermanent, Reason: "unsigned"}, want: worker.DeadLetter},
		{name: "rejection without reason", out: common.Outcome{Status: common.StatusRejectedPermanent}, want: worker.DeadLetter},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, worker.Classify(tc.out))
		})
	}
}

func TestHandleAccepted(t *testing.T) {
	sink := stats.NewMemory()
	errs := &errorCollector{}
	h := worker.NewOutcomeHandler(0, errs, sink, zerolog.Nop())

	msg := &models.InboundMessage{Activity: "campaign_signup", MailchimpGroupName: "Staff Pick"}
	action := h.Handle(context.Background(), common.Outcome{Status: common.StatusAccepted}, testRequest(), msg)

	assert.Equal(t, worker.Ack, action)
	assert.Equal(t, 1, sink.Count(stats.Sent))
	assert.Equal(t, 1, sink.Count("mailchimp_group:Staff Pick"))
	assert.Empty(t, errs.Records())

	h.Handle(context.Background(), common.Outcome{Status: common.StatusAccepted}, testRequest(), &models.InboundMessage{Activity: "campaign_signup"})
	assert.Equal(t, 1, sink.Count(stats.NonStaffPickSignup))
}

func TestHandleUnknown(t *testing.T) {
	sink := stats.NewMemory()
	h := worker.NewOutcomeHandler(0, nil, sink, zerolog.Nop())

	action := h.Handle(context.Background(), common.Outcome{Status: common.StatusUnknown}, testRequest(), nil)
	assert.Equal(t, worker.Ack, action)
	assert.Equal(t, 1, sink.Count(stats.Unconfirmed))
	assert.Zero(t, sink.Count(stats.Sent))
}

func TestHandleSkippedRejection(t *testing.T) {
	sink := stats.NewMemory()
	errs := &errorCollector{}
	h := worker.NewOutcomeHandler(0, errs, sink, zerolog.Nop())

	out := common.Outcome{Status: common.StatusRejectedPermanent, Reason: "soft-bounce", RejectReason: "soft-bounce"}
	action := h.Handle(context.Background(), out, testRequest(), nil)

	assert.Equal(t, worker.Ack, action)
	assert.Equal(t, 1, sink.Count("reject_reason:soft-bounce"))
	assert.Empty(t, errs.Records())
}

func TestHandleTransientWaitsThenRequeues(t *testing.T) {
	sink := stats.NewMemory()
	errs := &errorCollector{}
	backoff := 30 * time.Millisecond
	h := worker.NewOutcomeHandler(backoff, errs, sink, zerolog.Nop())

	start := time.Now()
	out := common.Outcome{Status: common.StatusRejectedTransient, Reason: "mandrill: http 502: Bad Gateway"}
	action := h.Handle(context.Background(), out, testRequest(), nil)

	assert.Equal(t, worker.Requeue, action)
	assert.GreaterOrEqual(t, time.Since(start), backoff)
	assert.Equal(t, 1, sink.Count(stats.Requeued))
	assert.Empty(t, errs.Records())
}

func TestHandleTransientCancelledBackoffStillRequeues(t *testing.T) {
	h := worker.NewOutcomeHandler(time.Hour, nil, nil, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	action := h.Handle(ctx, common.Outcome{Status: common.StatusRejectedTransient}, testRequest(), nil)
	assert.Equal(t, worker.Requeue, action)
	assert.Less(t, time.Since(start), time.Second)
}

func TestHandlePermanentRejectionPublishesErrorRecord(t *testing.T) {
	sink := stats.NewMemory()
	errs := &errorCollector{err: errors.New("broker down")}
	h := worker.NewOutcomeHandler(0, errs, sink, zerolog.Nop())

	out := common.Outcome{Status: common.StatusRejectedPermanent, Reason: "unsigned", RejectReason: "unsigned"}
	action := h.Handle(context.Background(), out, testRequest(), &models.InboundMessage{Source: "niche"})

	assert.Equal(t, worker.DeadLetter, action)
	require.Len(t, errs.Records(), 1)
	assert.Equal(t, models.ErrorRecord{Email: "a@b.com", Error: "unsigned", Code: "000", Source: "niche"}, errs.Records()[0])
	assert.Equal(t, 1, sink.Count("reject_reason:unsigned"))
	assert.Equal(t, 1, sink.Count(stats.ProviderError))
}

func TestHandleCountsErrorClassNotErrorText(t *testing.T) {
	sink := stats.NewMemory()
	h := worker.NewOutcomeHandler(0, &errorCollector{}, sink, zerolog.Nop())

	for _, template := range []string{"tpl-1", "tpl-2"} {
		out := common.Outcome{
			Status:    common.StatusRejectedPermanent,
			Reason:    `permanent error: mandrill: http 500: Unknown_Template: No such template "` + template + `"`,
			ErrorName: "Unknown_Template",
			Code:      500,
		}
		assert.Equal(t, worker.DeadLetter, h.Handle(context.Background(), out, testRequest(), nil))
	}

	assert.Equal(t, 2, sink.Count("provider_error:Unknown_Template"))
	for _, name := range sink.Names() {
		assert.NotContains(t, name, "reject_reason:", name)
		assert.NotContains(t, name, "tpl-", name)
	}
}

func TestActionString(t *testing.T) {
	assert.Equal(t, "ack", worker.Ack.String())
	assert.Equal(t, "requeue", worker.Requeue.String())
	assert.Equal(t, "dead_letter", worker.DeadLetter.String())
}
