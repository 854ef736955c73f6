package jsonrpc

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/finxai/xai/internal/interpretation"
	"github.com/finxai/xai/internal/jobs"
	"github.com/finxai/xai/internal/metrics"
	"github.com/finxai/xai/internal/models"
	"github.com/finxai/xai/internal/orchestration"
)

// NotifyJobUpdated is pushed to subscribers when a job reaches a terminal
// status. Params is the job.
const NotifyJobUpdated = "job.updated"

// Explainer is the orchestrator surface exposed over JSON-RPC.
type Explainer interface {
	RequestGlobalExplanation(ctx context.Context, modelID, method string, sampleSize int) (*jobs.Job, error)
	PollJob(ctx context.Context, jobID string) (*jobs.Job, error)
	CancelJob(ctx context.Context, jobID string) (*jobs.Job, error)
	RequestLocalExplanation(ctx context.Context, modelID string, index int, method string) (*models.LocalAttribution, error)
	Interpret(local *models.LocalAttribution) *interpretation.Interpretation
	RequestQualityMetrics(ctx context.Context, modelID string, index int, method string) (*metrics.Quality, error)
	RequestPerformanceMetrics(ctx context.Context, modelID string) (*metrics.Performance, error)
	InvalidateCache(ctx context.Context, modelID string) (*orchestration.InvalidationResult, error)
	OnJobEvent(l jobs.Listener)
}

var _ Explainer = (*orchestration.Orchestrator)(nil)

// HandlerContext provides shared state for method handlers.
type HandlerContext struct {
	explainer Explainer

	mu          sync.Mutex
	subscribers map[string]*Transport
}

// NewHandlerContext creates a handler context backed by explainer and
// subscribes to its job events.
func NewHandlerContext(explainer Explainer) *HandlerContext {
	h := &HandlerContext{
		explainer:   explainer,
		subscribers: make(map[string]*Transport),
	}
	explainer.OnJobEvent(func(job *jobs.Job) {
		if job.Status.Terminal() {
			h.publish(job)
		}
	})
	return h
}

// RegisterHandlers registers all explanation method handlers.
func RegisterHandlers(registry *MethodRegistry, hctx *HandlerContext) {
	registry.Register("explain.global", hctx.handleExplainGlobal)
	registry.Register("explain.local", hctx.handleExplainLocal)
	registry.Register("job.status", hctx.handleJobStatus)
	registry.Register("job.cancel", hctx.handleJobCancel)
	registry.Register("metrics.quality", hctx.handleMetricsQuality)
	registry.Register("metrics.performance", hctx.handleMetricsPerformance)
	registry.Register("cache.invalidate", hctx.handleCacheInvalidate)
}

func decodeParams(params json.RawMessage, v any) *Error {
	if len(params) == 0 {
		return ErrInvalidParams("params are required")
	}
	if err := json.Unmarshal(params, v); err != nil {
		return ErrInvalidParams(err.Error())
	}
	return nil
}

func methodOrDefault(m string) string {
	if m == "" {
		return string(models.MethodShapley)
	}
	return m
}

// --- explain.global ---

type ExplainGlobalParams struct {
	ModelID    string `json:"model_id"`
	Method     string `json:"method,omitempty"`
	SampleSize int    `json:"sample_size,omitempty"`
	// Notify subscribes the connection to a job.updated notification.
	Notify bool `json:"notify,omitempty"`
}

type ExplainGlobalResult struct {
	JobID  string      `json:"job_id"`
	Status jobs.Status `json:"status"`
}

func (h *HandlerContext) handleExplainGlobal(ctx context.Context, params json.RawMessage) (any, *Error) {
	var p ExplainGlobalParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.SampleSize < 0 {
		return nil, ErrInvalidParams("sample_size must not be negative")
	}
	job, err := h.explainer.RequestGlobalExplanation(ctx, p.ModelID, methodOrDefault(p.Method), p.SampleSize)
	if err != nil {
		return nil, ErrOrchestration(err)
	}
	if t, ok := TransportFrom(ctx); ok && p.Notify {
		h.subscribe(ctx, job.ID, t)
	}
	return &ExplainGlobalResult{JobID: job.ID, Status: job.Status}, nil
}

func (h *HandlerContext) subscribe(ctx context.Context, jobID string, t *Transport) {
	h.mu.Lock()
	h.subscribers[jobID] = t
	h.mu.Unlock()

	// The job may have finished before the subscription was recorded.
	if job, err := h.explainer.PollJob(ctx, jobID); err == nil && job.Status.Terminal() {
		h.publish(job)
	}
}

func (h *HandlerContext) publish(job *jobs.Job) {
	h.mu.Lock()
	t, ok := h.subscribers[job.ID]
	delete(h.subscribers, job.ID)
	h.mu.Unlock()
	if !ok {
		return
	}
	_ = t.WriteNotification(&Notification{JSONRPC: "2.0", Method: NotifyJobUpdated, Params: job})
}

// --- job.status / job.cancel ---

type JobParams struct {
	JobID string `json:"job_id"`
}

func (h *HandlerContext) handleJobStatus(ctx context.Context, params json.RawMessage) (any, *Error) {
	var p JobParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	job, err := h.explainer.PollJob(ctx, p.JobID)
	if err != nil {
		return nil, ErrOrchestration(err)
	}
	return job, nil
}

func (h *HandlerContext) handleJobCancel(ctx context.Context, params json.RawMessage) (any, *Error) {
	var p JobParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	job, err := h.explainer.CancelJob(ctx, p.JobID)
	if err != nil {
		return nil, ErrOrchestration(err)
	}
	return job, nil
}

// --- explain.local / metrics.quality ---

type InstanceParams struct {
	ModelID       string `json:"model_id"`
	InstanceIndex *int   `json:"instance_index"`
	Method        string `json:"method,omitempty"`
	// Interpret adds the rule-based reading to an explain.local result.
	Interpret bool `json:"interpret,omitempty"`
}

// LocalResult is an explain.local result with its interpretation.
type LocalResult struct {
	*models.LocalAttribution
	Interpretation *interpretation.Interpretation `json:"interpretation"`
}

func (p *InstanceParams) decode(params json.RawMessage) *Error {
	if err := decodeParams(params, p); err != nil {
		return err
	}
	if p.InstanceIndex == nil {
		return ErrInvalidParams("instance_index is required")
	}
	return nil
}

func (h *HandlerContext) handleExplainLocal(ctx context.Context, params json.RawMessage) (any, *Error) {
	var p InstanceParams
	if err := p.decode(params); err != nil {
		return nil, err
	}
	res, err := h.explainer.RequestLocalExplanation(ctx, p.ModelID, *p.InstanceIndex, methodOrDefault(p.Method))
	if err != nil {
		return nil, ErrOrchestration(err)
	}
	if p.Interpret {
		return &LocalResult{LocalAttribution: res, Interpretation: h.explainer.Interpret(res)}, nil
	}
	return res, nil
}

func (h *HandlerContext) handleMetricsQuality(ctx context.Context, params json.RawMessage) (any, *Error) {
	var p InstanceParams
	if err := p.decode(params); err != nil {
		return nil, err
	}
	res, err := h.explainer.RequestQualityMetrics(ctx, p.ModelID, *p.InstanceIndex, methodOrDefault(p.Method))
	if err != nil {
		return nil, ErrOrchestration(err)
	}
	return res, nil
}

// --- metrics.performance / cache.invalidate ---

type ModelParams struct {
	ModelID string `json:"model_id"`
}

func (h *HandlerContext) handleMetricsPerformance(ctx context.Context, params json.RawMessage) (any, *Error) {
	var p ModelParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	res, err := h.explainer.RequestPerformanceMetrics(ctx, p.ModelID)
	if err != nil {
		return nil, ErrOrchestration(err)
	}
	return res, nil
}

func (h *HandlerContext) handleCacheInvalidate(ctx context.Context, params json.RawMessage) (any, *Error) {
	var p ModelParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	res, err := h.explainer.InvalidateCache(ctx, p.ModelID)
	if err != nil {
		return nil, ErrOrchestration(err)
	}
	return res, nil
}
