package webserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/finxai/xai/internal/orchestration"
	"github.com/finxai/xai/internal/orchestration/orchestrationtest"
	"github.com/finxai/xai/internal/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, mutate func(*Config)) (http.Handler, *telemetry.Metrics) {
	t.Helper()
	m := telemetry.New()
	cfg := Config{
		Explainer: orchestrationtest.New(t, orchestration.WithMetrics(m)),
		Metrics:   m,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	srv, err := New(cfg)
	require.NoError(t, err)
	return srv.Handler(), m
}

func get(handler http.Handler, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.RemoteAddr = "192.0.2.1:4000"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	handler, _ := newTestServer(t, nil)

	rec := get(handler, "/api/health")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]string
	err := json.Unmarshal(rec.Body.Bytes(), &body)
	require.NoError(t, err)
	assert.Equal(t, "ok", body["status"])
}

func TestLocalExplanationEndpoint(t *testing.T) {
	handler, _ := newTestServer(t, nil)

	rec := get(handler, "/api/models/m1/explanations/local/0")

	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "m1", body["model_id"])
	assert.Equal(t, "shapley", body["method"])
}

func TestMetricsEndpoint(t *testing.T) {
	handler, _ := newTestServer(t, nil)

	require.Equal(t, http.StatusOK, get(handler, "/api/models/m1/performance").Code)
	rec := get(handler, "/metrics")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "xai_request_duration_seconds")
}

func TestMetricsEndpointDisabled(t *testing.T) {
	handler, _ := newTestServer(t, func(c *Config) { c.Metrics = nil })

	assert.Equal(t, http.StatusNotFound, get(handler, "/metrics").Code)
}

func TestUnknownRoute(t *testing.T) {
	handler, _ := newTestServer(t, nil)

	rec := get(handler, "/dashboard")

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "no route for GET /dashboard")
}

func TestRateLimitApplied(t *testing.T) {
	handler, _ := newTestServer(t, func(c *Config) {
		c.RateLimit = 0.001
		c.Burst = 1
	})

	assert.Equal(t, http.StatusOK, get(handler, "/api/models/m1/performance").Code)
	assert.Equal(t, http.StatusTooManyRequests, get(handler, "/api/models/m1/performance").Code)
	assert.Equal(t, http.StatusOK, get(handler, "/api/health").Code)
}

func TestNewValidation(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)

	_, err = New(Config{Explainer: orchestrationtest.New(t), RateLimit: -1})
	assert.Error(t, err)

	srv, err := New(Config{Explainer: orchestrationtest.New(t), Port: 9191})
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9191", srv.Addr())
}

func TestListenAndServeStopsOnCancel(t *testing.T) {
	srv, err := New(Config{Explainer: orchestrationtest.New(t), Port: 0})
	require.NoError(t, err)
	srv.srv.Addr = "127.0.0.1:0"

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.ListenAndServe(ctx) }()
	cancel()

	assert.NoError(t, <-done)
}
