package email

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	common "github.com/example/transactional-email/internal/adapters/common"
	"github.com/example/transactional-email/internal/models"
	"github.com/example/transactional-email/internal/providers/mandrill"
)

// Error classes for failed provider calls that carry no API error document.
const (
	ErrorNameTransport      = "transport"
	ErrorNameInvalidRequest = "invalid_request"
)

// Option customises adapter behaviour.
type Option func(*Adapter)

// WithRawBodyLimit overrides the maximum number of characters retained from the
// provider raw response.
func WithRawBodyLimit(limit int) Option {
	return func(a *Adapter) {
		if limit > 0 {
			a.maxRawChars = limit
		}
	}
}

// Adapter translates send requests into Mandrill send-template calls and
// normalizes the per-recipient result into a common.Outcome.
type Adapter struct {
	logger      zerolog.Logger
	provider    mandrill.Provider
	maxRawChars int
}

// NewAdapter constructs an email adapter using the provided dependencies.
func NewAdapter(provider mandrill.Provider, logger zerolog.Logger, opts ...Option) (*Adapter, error) {
	if provider == nil {
		return nil, errors.New("email adapter: provider dependency is required")
	}
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}

	a := &Adapter{
		logger:      logger,
		provider:    provider,
		maxRawChars: common.DefaultRawBodyLimit,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}

	return a, nil
}

// Send submits the request and never returns an error: every failure mode is
// expressed as an Outcome status.
func (a *Adapter) Send(ctx context.Context, req *models.SendRequest) common.Outcome {
	if req == nil {
		return common.OutcomeFromError(common.WrapPermanent(errors.New("email adapter: request is nil")), 0, ErrorNameInvalidRequest)
	}

	content := make([]mandrill.TemplateContent, 0, len(req.Content))
	for _, c := range req.Content {
		content = append(content, mandrill.TemplateContent{Name: c.Name, Content: c.Content})
	}

	results, err := a.provider.SendTemplate(ctx, req.TemplateID, content, buildMessage(req))
	if err != nil {
		code, name := errorClass(err)
		out := common.OutcomeFromError(err, code, name)
		a.logger.Info().
			Str("email", req.To.Email).
			Str("template", req.TemplateID).
			Str("outcome", string(out.Status)).
			Err(err).
			Msg("email adapter send failed")
		return out
	}

	out := a.classify(req.To.Email, results)
	a.logger.Debug().
		Str("email", req.To.Email).
		Str("template", req.TemplateID).
		Str("outcome", string(out.Status)).
		Str("provider_id", out.ProviderID).
		Msg("email adapter send completed")
	return out
}

func buildMessage(req *models.SendRequest) *mandrill.Message {
	msg := &mandrill.Message{
		FromEmail: req.From.Email,
		FromName:  req.From.Name,
		To:        []mandrill.Recipient{{Email: req.To.Email, Name: req.To.Name, Type: "to"}},
		Tags:      append([]string(nil), req.Tags...),
	}
	if req.MergeVars != nil {
		vars := make([]mandrill.Var, 0, len(req.MergeVars))
		for _, mv := range req.MergeVars {
			vars = append(vars, mandrill.Var{Name: mv.Name, Content: mv.Content})
		}
		msg.MergeVars = []mandrill.RecipientVars{{Rcpt: req.To.Email, Vars: vars}}
	}
	return msg
}

func (a *Adapter) classify(email string, results []mandrill.SendResult) common.Outcome {
	result, ok := pickResult(email, results)
	if !ok {
		return common.Outcome{Status: common.StatusUnknown}
	}

	out := common.Outcome{ProviderID: result.ID, Raw: a.truncateRaw(result)}
	switch strings.ToLower(strings.TrimSpace(result.Status)) {
	case mandrill.StatusSent, mandrill.StatusQueued, mandrill.StatusScheduled:
		out.Status = common.StatusAccepted
	case mandrill.StatusRejected:
		out.Status = common.StatusRejectedPermanent
		out.Reason = strings.TrimSpace(result.RejectReason)
		if out.Reason == "" {
			out.Reason = mandrill.StatusRejected
		}
		out.RejectReason = out.Reason
	case mandrill.StatusInvalid:
		out.Status = common.StatusRejectedPermanent
		out.Reason = strings.TrimSpace(result.RejectReason)
		if out.Reason == "" {
			out.Reason = mandrill.StatusInvalid
		}
		out.RejectReason = out.Reason
	default:
		out.Status = common.StatusUnknown
	}
	return out
}

// errorClass returns the HTTP status and the API error name of a failed call.
// Errors without an API document are classed as transport or invalid
// request failures.
func errorClass(err error) (int, string) {
	var apiErr *mandrill.APIError
	if !errors.As(err, &apiErr) {
		if errors.Is(err, common.ErrPermanent) {
			return 0, ErrorNameInvalidRequest
		}
		return 0, ErrorNameTransport
	}
	name := strings.TrimSpace(apiErr.Name)
	if name == "" {
		name = http.StatusText(apiErr.HTTPStatus)
	}
	if name == "" {
		name = strconv.Itoa(apiErr.HTTPStatus)
	}
	return apiErr.HTTPStatus, name
}

// pickResult prefers the entry for the recipient and falls back to the first.
func pickResult(email string, results []mandrill.SendResult) (mandrill.SendResult, bool) {
	if len(results) == 0 {
		return mandrill.SendResult{}, false
	}
	for _, r := range results {
		if strings.EqualFold(r.Email, email) {
			return r, true
		}
	}
	return results[0], true
}

func (a *Adapter) truncateRaw(result mandrill.SendResult) string {
	raw, err := json.Marshal(result)
	if err != nil {
		return ""
	}
	return common.TruncateRaw(string(raw), a.maxRawChars)
}
