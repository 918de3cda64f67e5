// Package stats is the fire-and-forget counter sink used by the pipeline.
package stats

import (
	"sort"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Sink receives counter increments. Implementations must never block and
// never panic.
type Sink interface {
	Increment(name string, amount int)
}

// Counter names shared across packages.
const (
	AdmissionDropped   = "admission:dropped"
	AdmissionFailed    = "admission:template_not_defined"
	AdmissionAccepted  = "admission:accepted"
	InvalidTemplate    = "invalid_template"
	Sent               = "sent"
	Unconfirmed        = "unconfirmed"
	Requeued           = "requeued"
	DeadLettered       = "dead_lettered"
	ProviderError      = "provider_error"
	Malformed          = "malformed_payload"
	NonStaffPickSignup = "non_staff_pick"
)

// Key joins a counter prefix and a value, e.g. Key("activity", "vote").
func Key(prefix, value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		value = "unknown"
	}
	return prefix + ":" + value
}

// Prometheus exposes every counter as a label on a single CounterVec.
type Prometheus struct {
	events *prometheus.CounterVec
}

// NewPrometheus registers the counter vector on reg. A nil registerer falls
// back to the default registry.
func NewPrometheus(reg prometheus.Registerer) *Prometheus {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	return &Prometheus{
		events: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "transactional_email",
				Subsystem: "worker",
				Name:      "events_total",
				Help:      "Pipeline events by stat name",
			},
			[]string{"stat"},
		),
	}
}

// Increment implements Sink.
func (p *Prometheus) Increment(name string, amount int) {
	if p == nil || amount <= 0 {
		return
	}
	if name == "" {
		name = "unknown"
	}
	p.events.WithLabelValues(name).Add(float64(amount))
}

// Nop discards every increment.
type Nop struct{}

// Increment implements Sink.
func (Nop) Increment(string, int) {}

// Memory keeps counts in process. Handy for tests and the mock backend.
type Memory struct {
	mu     sync.Mutex
	counts map[string]int
}

// NewMemory returns an empty Memory sink.
func NewMemory() *Memory {
	return &Memory{counts: make(map[string]int)}
}

// Increment implements Sink.
func (m *Memory) Increment(name string, amount int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts[name] += amount
}

// Count returns the accumulated value for name.
func (m *Memory) Count(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[name]
}

// Names returns the sorted counter names seen so far.
func (m *Memory) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.counts))
	for name := range m.counts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
