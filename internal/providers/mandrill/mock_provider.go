package mandrill

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	common "github.com/example/transactional-email/internal/adapters/common"
)

// Scenario enumerates the supported mock behaviours. The default scenario is
// success unless overridden via the recipient address or options.
type Scenario string

const (
	ScenarioSuccess    Scenario = "success"
	ScenarioSoftBounce Scenario = "soft-bounce"
	ScenarioHardBounce Scenario = "hard-bounce"
	ScenarioSpam       Scenario = "spam"
	ScenarioRejected   Scenario = "rejected"
	ScenarioTransient  Scenario = "transient"
	ScenarioUnknown    Scenario = "unknown"
)

// Option customizes the behaviour of the mock provider at construction time.
type Option func(*MockProvider)

// WithLatencyRange overrides the default latency range used by the mock
// provider when simulating work. Negative values are clamped to zero and if
// max < min it is coerced to min.
func WithLatencyRange(min, max time.Duration) Option {
	return func(p *MockProvider) {
		if min < 0 {
			min = 0
		}
		if max < min {
			max = min
		}
		p.minLatency = min
		p.maxLatency = max
	}
}

// WithDefaultScenario configures the behaviour when the recipient address
// does not select a scenario.
func WithDefaultScenario(s Scenario) Option {
	return func(p *MockProvider) {
		p.defaultScenario = s
	}
}

// WithRandomSeed swaps the RNG seed used when generating provider identifiers.
func WithRandomSeed(seed int64) Option {
	return func(p *MockProvider) {
		p.rnd = rand.New(rand.NewSource(seed)) // #nosec G404 -- deterministic seed for tests.
	}
}

// MockProvider implements Provider without network calls. A scenario can be
// selected per message with a plus tag on the recipient, for example
// "someone+soft-bounce@example.com".
type MockProvider struct {
	logger          zerolog.Logger
	minLatency      time.Duration
	maxLatency      time.Duration
	defaultScenario Scenario

	mu    sync.Mutex
	rnd   *rand.Rand
	calls int
}

// NewMockProvider constructs a mock provider that succeeds after 25-75ms.
func NewMockProvider(logger zerolog.Logger, opts ...Option) *MockProvider {
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}

	p := &MockProvider{
		logger:          logger,
		minLatency:      25 * time.Millisecond,
		maxLatency:      75 * time.Millisecond,
		defaultScenario: ScenarioSuccess,
		rnd:             rand.New(rand.NewSource(time.Now().UnixNano())), // #nosec G404
	}

	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}

	return p
}

// Calls returns how many sends were attempted.
func (p *MockProvider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// SendTemplate implements Provider.
func (p *MockProvider) SendTemplate(ctx context.Context, templateName string, _ []TemplateContent, msg *Message) ([]SendResult, error) {
	if msg == nil || len(msg.To) == 0 {
		return nil, common.WrapPermanent(errors.New("mandrill mock: at least one recipient is required"))
	}

	p.mu.Lock()
	p.calls++
	p.mu.Unlock()

	if err := p.sleep(ctx, p.sampleLatency()); err != nil {
		return nil, common.WrapTransient(err)
	}

	rcpt := msg.To[0].Email
	scenario := p.resolveScenario(rcpt)
	p.logger.Debug().
		Str("provider", "mandrill_mock").
		Str("scenario", string(scenario)).
		Str("template", templateName).
		Msg("mock mandrill provider invoked")

	switch scenario {
	case ScenarioSoftBounce, ScenarioHardBounce, ScenarioSpam:
		return []SendResult{p.result(rcpt, StatusRejected, string(scenario))}, nil
	case ScenarioRejected:
		return []SendResult{p.result(rcpt, StatusRejected, "unsigned")}, nil
	case ScenarioTransient:
		return nil, common.WrapTransient(&APIError{
			HTTPStatus: http.StatusBadGateway,
			Name:       http.StatusText(http.StatusBadGateway),
			Message:    "mock upstream unavailable",
		})
	case ScenarioUnknown:
		return []SendResult{p.result(rcpt, "", "")}, nil
	default:
		return []SendResult{p.result(rcpt, StatusSent, "")}, nil
	}
}

func (p *MockProvider) resolveScenario(rcpt string) Scenario {
	local, _, _ := strings.Cut(strings.ToLower(rcpt), "@")
	_, tag, ok := strings.Cut(local, "+")
	if !ok {
		return p.defaultScenario
	}
	switch s := Scenario(tag); s {
	case ScenarioSoftBounce, ScenarioHardBounce, ScenarioSpam, ScenarioRejected, ScenarioTransient, ScenarioUnknown:
		return s
	default:
		return p.defaultScenario
	}
}

func (p *MockProvider) result(email, status, reason string) SendResult {
	return SendResult{Email: email, Status: status, RejectReason: reason, ID: p.nextID()}
}

func (p *MockProvider) sampleLatency() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.maxLatency <= p.minLatency {
		return p.minLatency
	}
	delta := p.maxLatency - p.minLatency
	return p.minLatency + time.Duration(p.rnd.Int63n(int64(delta)+1))
}

func (p *MockProvider) nextID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return fmt.Sprintf("mock-%08x", p.rnd.Uint32())
}

func (p *MockProvider) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
