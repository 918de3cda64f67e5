package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	common "github.com/example/transactional-email/internal/adapters/common"
	"github.com/example/transactional-email/internal/models"
	"github.com/example/transactional-email/internal/stats"
)

// Sender performs the provider send for a built request. Implementations
// report every failure through the Outcome.
type Sender interface {
	Send(ctx context.Context, req *models.SendRequest) common.Outcome
}

// DLQPublisher writes dead-letter records.
type DLQPublisher interface {
	PublishDLQ(ctx context.Context, record models.DLQRecord) error
}

// Reporter forwards failures to an error tracker.
type Reporter interface {
	Capture(err error, tags map[string]string)
}

// Queue is the transport the engine consumes from and settles messages on.
type Queue interface {
	Deliveries(ctx context.Context) (<-chan models.Delivery, error)
	Ack(d models.Delivery) error
	Requeue(d models.Delivery) error
	Status(ctx context.Context) (models.QueueStatus, error)
}

// Dependencies collects the runtime collaborators required by the engine.
type Dependencies struct {
	Admitter     *Admitter
	Builder      *Builder
	Sender       Sender
	Outcomes     *OutcomeHandler
	DLQPublisher DLQPublisher
	Reporter     Reporter
	Stats        stats.Sink
	Logger       zerolog.Logger
	Now          func() time.Time
}

// Engine runs the per-message pipeline: decode, admit, build, send and
// settle. Messages are processed strictly one at a time.
type Engine struct {
	admitter *Admitter
	builder  *Builder
	sender   Sender
	outcomes *OutcomeHandler
	dlq      DLQPublisher
	reporter Reporter
	stats    stats.Sink
	logger   zerolog.Logger
	now      func() time.Time
}

// NewEngine validates the dependencies and constructs an Engine.
func NewEngine(deps Dependencies) (*Engine, error) {
	if deps.Admitter == nil {
		return nil, errors.New("worker: admitter dependency is required")
	}
	if deps.Builder == nil {
		return nil, errors.New("worker: builder dependency is required")
	}
	if deps.Sender == nil {
		return nil, errors.New("worker: sender dependency is required")
	}
	if deps.Outcomes == nil {
		return nil, errors.New("worker: outcome handler dependency is required")
	}
	if deps.DLQPublisher == nil {
		return nil, errors.New("worker: DLQ publisher dependency is required")
	}

	logger := deps.Logger
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}
	logger = logger.With().Str("component", "worker_engine").Logger()

	sink := deps.Stats
	if sink == nil {
		sink = stats.Nop{}
	}
	nowFunc := deps.Now
	if nowFunc == nil {
		nowFunc = time.Now
	}

	return &Engine{
		admitter: deps.Admitter,
		builder:  deps.Builder,
		sender:   deps.Sender,
		outcomes: deps.Outcomes,
		dlq:      deps.DLQPublisher,
		reporter: deps.Reporter,
		stats:    sink,
		logger:   logger,
		now:      nowFunc,
	}, nil
}

// Run consumes deliveries until ctx is cancelled or the transport closes the
// delivery channel. Each message is settled before the next is read.
func (e *Engine) Run(ctx context.Context, q Queue) error {
	if q == nil {
		return errors.New("worker: queue is required")
	}
	deliveries, err := q.Deliveries(ctx)
	if err != nil {
		return fmt.Errorf("worker: start consuming: %w", err)
	}

	e.logger.Info().Msg("worker: consuming")
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return errors.New("worker: delivery channel closed")
			}
			action := e.Process(ctx, d)
			e.settle(q, d, action)
			e.logStatus(ctx, q)
		}
	}
}

// Process runs one delivery through the pipeline and returns the action the
// transport must apply. DeadLetter means the record was already written and
// the message should be acked.
func (e *Engine) Process(ctx context.Context, d models.Delivery) Action {
	start := e.now()

	msg, err := models.DecodeInbound(d.Body)
	if err != nil {
		e.stats.Increment(stats.Malformed, 1)
		e.logger.Warn().
			Str("message_id", d.MessageID).
			Err(err).
			Msg("worker: undecodable payload")
		e.deadLetter(ctx, d, nil, "", models.FailureTypeMalformed, err)
		return DeadLetter
	}

	decision := e.admitter.Admit(msg)
	switch decision.Verdict {
	case Drop:
		e.logger.Info().
			Str("email", msg.Email).
			Str("activity", msg.Activity).
			Str("reason", decision.Reason).
			Msg("worker: message not admitted")
		return Ack
	case Fail:
		e.logger.Error().
			Str("email", msg.Email).
			Str("activity", msg.Activity).
			RawJSON("message", dumpable(d.Body)).
			Err(decision.Err).
			Msg("worker: message rejected at admission")
		e.deadLetter(ctx, d, msg, "", models.FailureTypeTemplate, decision.Err)
		return DeadLetter
	}

	admitted := decision.Message
	req, res, err := e.builder.Build(admitted)
	if err != nil {
		e.logger.Error().
			Str("email", admitted.Email).
			Str("activity", admitted.Activity).
			RawJSON("message", dumpable(d.Body)).
			Err(err).
			Msg("worker: template resolution failed")
		e.deadLetter(ctx, d, admitted, "", models.FailureTypeTemplate, err)
		return DeadLetter
	}

	out := e.sender.Send(ctx, req)
	action := e.outcomes.Handle(ctx, out, req, admitted)
	if action == DeadLetter {
		e.deadLetter(ctx, d, admitted, res.TemplateID, models.FailureTypeProviderRejected,
			fmt.Errorf("worker: provider rejected: %s", out.Reason))
	}

	e.logger.Debug().
		Str("email", req.To.Email).
		Str("activity", req.Activity).
		Str("template", res.TemplateID).
		Str("country", res.Country).
		Str("action", action.String()).
		Dur("duration", e.now().Sub(start)).
		Msg("worker: message processed")
	return action
}

func (e *Engine) deadLetter(ctx context.Context, d models.Delivery, msg *models.InboundMessage, templateID, failureType string, cause error) {
	e.stats.Increment(stats.DeadLettered, 1)

	record := models.DLQRecord{
		ID:              uuid.NewString(),
		MessageID:       d.MessageID,
		TemplateID:      templateID,
		FailureType:     failureType,
		OriginalMessage: rawMessage(d.Body),
		FailedAt:        e.now().UTC(),
	}
	if cause != nil {
		record.Reason = cause.Error()
	}
	if msg != nil {
		record.Email = msg.Email
		record.Activity = msg.Activity
	}

	if e.reporter != nil && cause != nil {
		e.reporter.Capture(cause, map[string]string{
			"failure_type": failureType,
			"activity":     record.Activity,
		})
	}

	if err := e.dlq.PublishDLQ(ctx, record); err != nil {
		e.logger.Error().
			Str("dlq_id", record.ID).
			Str("email", record.Email).
			Err(err).
			Msg("worker: failed to publish DLQ record")
	}
}

func (e *Engine) settle(q Queue, d models.Delivery, action Action) {
	var err error
	switch action {
	case Requeue:
		err = q.Requeue(d)
	default:
		err = q.Ack(d)
	}
	if err != nil {
		e.logger.Error().
			Uint64("delivery_tag", d.Tag).
			Str("action", action.String()).
			Err(err).
			Msg("worker: failed to settle delivery")
	}
}

func (e *Engine) logStatus(ctx context.Context, q Queue) {
	status, err := q.Status(ctx)
	if err != nil {
		e.logger.Debug().Err(err).Msg("worker: queue status unavailable")
		return
	}
	e.logger.Info().
		Int("ready", status.Ready).
		Int("unacked", status.Unacked).
		Msg("worker: queue status")
}

// rawMessage keeps valid JSON bodies as-is and quotes anything else so the
// DLQ record always marshals.
func rawMessage(body []byte) json.RawMessage {
	if len(body) == 0 {
		return nil
	}
	if json.Valid(body) {
		return append(json.RawMessage(nil), body...)
	}
	quoted, err := json.Marshal(string(body))
	if err != nil {
		return nil
	}
	return quoted
}

func dumpable(body []byte) []byte {
	if raw := rawMessage(body); raw != nil {
		return raw
	}
	return []byte("null")
}
