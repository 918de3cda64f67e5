package server_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/transactional-email/internal/server"
	"github.com/example/transactional-email/internal/stats"
)

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestLive(t *testing.T) {
	srv := server.New(0, time.Second, nil, prometheus.NewRegistry(), zerolog.Nop())

	rec := get(t, srv.Handler(), "/health/live")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestReady(t *testing.T) {
	healthy := true
	checks := map[string]server.Check{
		"rabbitmq": func() bool { return healthy },
		"kafka":    func() bool { return true },
	}
	srv := server.New(0, time.Second, checks, prometheus.NewRegistry(), zerolog.Nop())

	rec := get(t, srv.Handler(), "/health/ready")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","checks":{"rabbitmq":"ok","kafka":"ok"}}`, rec.Body.String())

	healthy = false
	rec = get(t, srv.Handler(), "/health/ready")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "unavailable", body.Status)
	assert.Equal(t, "unavailable", body.Checks["rabbitmq"])
	assert.Equal(t, "ok", body.Checks["kafka"])
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink := stats.NewPrometheus(reg)
	sink.Increment(stats.Sent, 2)

	srv := server.New(0, time.Second, nil, reg, zerolog.Nop())
	rec := get(t, srv.Handler(), "/metrics")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `transactional_email_worker_events_total{stat="sent"} 2`)
}
