package worker

import (
	"errors"
	"reflect"
	"strings"

	"github.com/rs/zerolog"

	"github.com/example/transactional-email/internal/models"
	"github.com/example/transactional-email/internal/stats"
	"github.com/example/transactional-email/internal/util"
)

// ErrTemplateNotDefined is the admission failure for a message carrying
// neither template field.
var ErrTemplateNotDefined = errors.New("worker: email template not defined")

// Activities with dedicated admission rules.
const (
	ActivityCampaignSignup = "campaign_signup"
	ActivityUserRegister   = "user_register"
)

// Verdict is the admission result category.
type Verdict int

const (
	// Proceed admits the message for building and sending.
	Proceed Verdict = iota + 1
	// Drop discards the message silently; it is acked.
	Drop
	// Fail rejects a malformed message; it is dead-lettered then acked.
	Fail
)

func (v Verdict) String() string {
	switch v {
	case Proceed:
		return "proceed"
	case Drop:
		return "drop"
	case Fail:
		return "fail"
	default:
		return "unknown"
	}
}

// Decision is returned by Admit. Message is a normalized copy of the input
// and is set only when Verdict is Proceed.
type Decision struct {
	Verdict Verdict
	Reason  string
	Err     error
	Message *models.InboundMessage
}

// OverrideChecker reports whether an event id is a special campaign.
type OverrideChecker interface {
	HasOverride(eventID string) bool
}

// Admitter decides whether a message is eligible for sending.
type Admitter struct {
	overrides OverrideChecker
	stats     stats.Sink
	logger    zerolog.Logger
}

// NewAdmitter constructs an Admitter. A nil overrides checker admits no
// campaign signups.
func NewAdmitter(overrides OverrideChecker, sink stats.Sink, logger zerolog.Logger) *Admitter {
	if sink == nil {
		sink = stats.Nop{}
	}
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}
	return &Admitter{overrides: overrides, stats: sink, logger: logger}
}

// Admit applies the admission rules in order; the first match wins. The
// input message is never modified.
func (a *Admitter) Admit(msg *models.InboundMessage) Decision {
	d := a.decide(msg)
	switch d.Verdict {
	case Proceed:
		a.stats.Increment(stats.AdmissionAccepted, 1)
	case Fail:
		a.stats.Increment(stats.AdmissionFailed, 1)
	default:
		a.stats.Increment(stats.AdmissionDropped, 1)
	}
	return d
}

func (a *Admitter) decide(msg *models.InboundMessage) Decision {
	if msg == nil {
		return drop("message is nil")
	}
	if msg.OptedOut() {
		return drop("recipient opted out of transactional email")
	}

	raw := strings.TrimSpace(msg.Email)
	if raw == "" {
		return drop("recipient email is empty")
	}
	if util.IsImportPlaceholder(raw) {
		return drop("recipient is an import placeholder")
	}

	switch strings.TrimSpace(msg.Activity) {
	case ActivityCampaignSignup:
		if a.overrides == nil || !a.overrides.HasOverride(msg.EventID.String()) {
			return drop("campaign signup for a campaign without override")
		}
	case ActivityUserRegister:
		return drop("registration emails are not sent")
	}

	email, err := util.NormalizeEmail(raw)
	if err != nil {
		a.logger.Debug().
			Str("email", msg.Email).
			Str("activity", msg.Activity).
			Msg("worker: dropping message with invalid recipient")
		return drop("recipient email is invalid")
	}

	if msg.TemplateName() == "" {
		return Decision{Verdict: Fail, Reason: ErrTemplateNotDefined.Error(), Err: ErrTemplateNotDefined}
	}

	out := msg.Clone()
	out.Email = email
	return Decision{Verdict: Proceed, Message: out}
}

func drop(reason string) Decision {
	return Decision{Verdict: Drop, Reason: reason}
}
