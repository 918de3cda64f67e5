package worker

import (
	"context"
	"reflect"
	"strings"
	"time"

	"github.com/rs/zerolog"

	common "github.com/example/transactional-email/internal/adapters/common"
	"github.com/example/transactional-email/internal/models"
	"github.com/example/transactional-email/internal/stats"
)

// Action is the queue operation that settles a message.
type Action int

const (
	// Ack removes the message from the queue.
	Ack Action = iota + 1
	// Requeue returns the message to the queue for redelivery.
	Requeue
	// DeadLetter writes a dead-letter record and then acks.
	DeadLetter
)

func (a Action) String() string {
	switch a {
	case Ack:
		return "ack"
	case Requeue:
		return "requeue"
	case DeadLetter:
		return "dead_letter"
	default:
		return "unknown"
	}
}

// DefaultTransientBackoff is the pause before requeueing a transient failure.
const DefaultTransientBackoff = 30 * time.Second

// Rejection reasons that are final and not worth reporting.
var skippedReasons = map[string]struct{}{
	"hard-bounce": {},
	"soft-bounce": {},
	"spam":        {},
}

// Reason fragments identifying provider-side outages.
var transientMarkers = []string{
	"internal server error",
	"bad gateway",
}

// Classify maps a provider outcome onto the queue action. It is the only
// place where transient failures are recognized.
func Classify(out common.Outcome) Action {
	switch out.Status {
	case common.StatusAccepted, common.StatusUnknown:
		return Ack
	case common.StatusRejectedTransient:
		return Requeue
	}

	reason := strings.ToLower(strings.TrimSpace(out.Reason))
	if _, ok := skippedReasons[reason]; ok {
		return Ack
	}
	for _, marker := range transientMarkers {
		if strings.Contains(reason, marker) {
			return Requeue
		}
	}
	return DeadLetter
}

// ErrorPublisher delivers error records to the error side-channel.
type ErrorPublisher interface {
	PublishError(ctx context.Context, record models.ErrorRecord) error
}

// OutcomeHandler applies the side effects of a classified outcome.
type OutcomeHandler struct {
	backoff   time.Duration
	publisher ErrorPublisher
	stats     stats.Sink
	logger    zerolog.Logger
}

// NewOutcomeHandler constructs an OutcomeHandler. A negative backoff is
// treated as zero.
func NewOutcomeHandler(backoff time.Duration, publisher ErrorPublisher, sink stats.Sink, logger zerolog.Logger) *OutcomeHandler {
	if backoff < 0 {
		backoff = 0
	}
	if sink == nil {
		sink = stats.Nop{}
	}
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}
	return &OutcomeHandler{backoff: backoff, publisher: publisher, stats: sink, logger: logger}
}

// Handle performs counters, logging, the transient backoff and the error
// side-channel publish, and returns the action the caller must take.
func (h *OutcomeHandler) Handle(ctx context.Context, out common.Outcome, req *models.SendRequest, msg *models.InboundMessage) Action {
	email, template := "", ""
	if req != nil {
		email, template = req.To.Email, req.TemplateID
	}
	log := h.logger.With().
		Str("email", email).
		Str("template", template).
		Str("outcome", string(out.Status)).
		Logger()

	switch {
	case out.RejectReason != "":
		h.stats.Increment(stats.Key("reject_reason", out.RejectReason), 1)
	case out.Rejected() && out.ErrorName != "":
		h.stats.Increment(stats.Key(stats.ProviderError, out.ErrorName), 1)
	}

	action := Classify(out)
	switch action {
	case Ack:
		switch out.Status {
		case common.StatusAccepted:
			h.stats.Increment(stats.Sent, 1)
			h.recordSignup(msg)
			log.Info().Str("provider_id", out.ProviderID).Msg("worker: email sent")
		case common.StatusUnknown:
			h.stats.Increment(stats.Unconfirmed, 1)
			log.Warn().Msg("worker: no confirmation from provider")
		default:
			log.Info().Str("reason", out.Reason).Msg("worker: rejection skipped")
		}
	case Requeue:
		h.stats.Increment(stats.ProviderError, 1)
		log.Warn().
			Str("reason", out.Reason).
			Dur("backoff", h.backoff).
			Msg("worker: transient provider failure; requeueing after backoff")
		if !wait(ctx, h.backoff) {
			log.Warn().Msg("worker: context cancelled during backoff; requeueing now")
		}
		h.stats.Increment(stats.Requeued, 1)
	case DeadLetter:
		h.stats.Increment(stats.ProviderError, 1)
		log.Error().Str("reason", out.Reason).Msg("worker: provider rejected email")
		h.publishError(ctx, email, out.Reason, msg)
	}
	return action
}

func (h *OutcomeHandler) recordSignup(msg *models.InboundMessage) {
	if msg == nil || strings.TrimSpace(msg.Activity) != ActivityCampaignSignup {
		return
	}
	if group := strings.TrimSpace(msg.MailchimpGroupName); group != "" {
		h.stats.Increment(stats.Key("mailchimp_group", group), 1)
		return
	}
	h.stats.Increment(stats.NonStaffPickSignup, 1)
}

func (h *OutcomeHandler) publishError(ctx context.Context, email, reason string, msg *models.InboundMessage) {
	if h.publisher == nil {
		return
	}
	record := models.ErrorRecord{Email: email, Error: reason, Code: models.ErrorCodePlaceholder}
	if msg != nil {
		record.Source = msg.Source
	}
	if err := h.publisher.PublishError(ctx, record); err != nil {
		h.logger.Error().
			Str("email", email).
			Err(err).
			Msg("worker: failed to publish error record")
	}
}

// wait blocks for d or until ctx is done. It reports whether the full
// duration elapsed.
func wait(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
