// Package webapi exposes the explanation orchestrator over REST.
package webapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/finxai/xai/internal/interpretation"
	"github.com/finxai/xai/internal/jobs"
	"github.com/finxai/xai/internal/metrics"
	"github.com/finxai/xai/internal/models"
	"github.com/finxai/xai/internal/orchestration"
)

// Version is set at build time or defaults to dev.
var Version = "0.1.0-dev"

// DefaultMethod is used when a request names no method.
const DefaultMethod = string(models.MethodShapley)

// Explainer is the orchestrator surface served by the handlers.
type Explainer interface {
	RequestGlobalExplanation(ctx context.Context, modelID, method string, sampleSize int) (*jobs.Job, error)
	PollJob(ctx context.Context, jobID string) (*jobs.Job, error)
	CancelJob(ctx context.Context, jobID string) (*jobs.Job, error)
	RequestLocalExplanation(ctx context.Context, modelID string, index int, method string) (*models.LocalAttribution, error)
	Interpret(local *models.LocalAttribution) *interpretation.Interpretation
	RequestQualityMetrics(ctx context.Context, modelID string, index int, method string) (*metrics.Quality, error)
	RequestPerformanceMetrics(ctx context.Context, modelID string) (*metrics.Performance, error)
	InvalidateCache(ctx context.Context, modelID string) (*orchestration.InvalidationResult, error)
}

var _ Explainer = (*orchestration.Orchestrator)(nil)

// Handlers holds the HTTP handler methods for the web API.
type Handlers struct {
	explainer Explainer
}

// NewHandlers creates a new Handlers backed by explainer.
func NewHandlers(explainer Explainer) *Handlers {
	return &Handlers{explainer: explainer}
}

// HandleHealth returns a simple health check response.
func (h *Handlers) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:  "ok",
		Version: Version,
	})
}

// HandleGlobal enqueues a global explanation and answers 202 with the job.
func (h *Handlers) HandleGlobal(w http.ResponseWriter, r *http.Request) {
	var req GlobalRequest
	if r.Body != nil {
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<16)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
	}
	if q := r.URL.Query().Get("method"); q != "" {
		req.Method = q
	}
	if req.Method == "" {
		req.Method = DefaultMethod
	}
	if req.SampleSize < 0 {
		writeError(w, http.StatusBadRequest, "sample_size must not be negative")
		return
	}

	job, err := h.explainer.RequestGlobalExplanation(r.Context(), r.PathValue("id"), req.Method, req.SampleSize)
	if err != nil {
		writeOrchestrationError(w, err)
		return
	}
	loc := "/api/jobs/" + job.ID
	w.Header().Set("Location", loc)
	writeJSON(w, http.StatusAccepted, JobAccepted{JobID: job.ID, Status: string(job.Status), Location: loc})
}

// HandleJob returns the state of a job.
func (h *Handlers) HandleJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.explainer.PollJob(r.Context(), r.PathValue("id"))
	if err != nil {
		writeOrchestrationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// HandleCancelJob cancels a job and returns its state.
func (h *Handlers) HandleCancelJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.explainer.CancelJob(r.Context(), r.PathValue("id"))
	if err != nil {
		writeOrchestrationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// HandleLocal explains one held-out row. ?interpret=true adds the
// rule-based interpretation.
func (h *Handlers) HandleLocal(w http.ResponseWriter, r *http.Request) {
	index, ok := pathIndex(w, r)
	if !ok {
		return
	}
	interpret := false
	if q := r.URL.Query().Get("interpret"); q != "" {
		v, err := strconv.ParseBool(q)
		if err != nil {
			writeError(w, http.StatusBadRequest, "interpret must be a boolean")
			return
		}
		interpret = v
	}
	res, err := h.explainer.RequestLocalExplanation(r.Context(), r.PathValue("id"), index, method(r))
	if err != nil {
		writeOrchestrationError(w, err)
		return
	}
	if interpret {
		writeJSON(w, http.StatusOK, LocalResponse{LocalAttribution: res, Interpretation: h.explainer.Interpret(res)})
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleQuality scores the explanation of one held-out row.
func (h *Handlers) HandleQuality(w http.ResponseWriter, r *http.Request) {
	index, ok := pathIndex(w, r)
	if !ok {
		return
	}
	res, err := h.explainer.RequestQualityMetrics(r.Context(), r.PathValue("id"), index, method(r))
	if err != nil {
		writeOrchestrationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandlePerformance evaluates a model on its held-out split.
func (h *Handlers) HandlePerformance(w http.ResponseWriter, r *http.Request) {
	res, err := h.explainer.RequestPerformanceMetrics(r.Context(), r.PathValue("id"))
	if err != nil {
		writeOrchestrationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleInvalidate drops cached state for a model.
func (h *Handlers) HandleInvalidate(w http.ResponseWriter, r *http.Request) {
	res, err := h.explainer.InvalidateCache(r.Context(), r.PathValue("id"))
	if err != nil {
		writeOrchestrationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// RegisterRoutes registers all web API routes on the given mux.
func RegisterRoutes(mux *http.ServeMux, explainer Explainer) {
	h := NewHandlers(explainer)
	mux.HandleFunc("GET /api/health", h.HandleHealth)
	mux.HandleFunc("POST /api/models/{id}/explanations/global", h.HandleGlobal)
	mux.HandleFunc("GET /api/jobs/{id}", h.HandleJob)
	mux.HandleFunc("DELETE /api/jobs/{id}", h.HandleCancelJob)
	mux.HandleFunc("GET /api/models/{id}/explanations/local/{index}", h.HandleLocal)
	mux.HandleFunc("GET /api/models/{id}/quality/{index}", h.HandleQuality)
	mux.HandleFunc("GET /api/models/{id}/performance", h.HandlePerformance)
	mux.HandleFunc("DELETE /api/models/{id}/cache", h.HandleInvalidate)
}

func method(r *http.Request) string {
	if m := r.URL.Query().Get("method"); m != "" {
		return m
	}
	return DefaultMethod
}

func pathIndex(w http.ResponseWriter, r *http.Request) (int, bool) {
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error: "instance index must be an integer",
			Kind:  string(orchestration.KindInvalidRequest),
			Code:  http.StatusBadRequest,
		})
		return 0, false
	}
	return index, true
}

// StatusCode maps an error kind to an HTTP status.
func StatusCode(kind orchestration.Kind) int {
	switch kind {
	case orchestration.KindArtifactNotFound, orchestration.KindJobNotFound:
		return http.StatusNotFound
	case orchestration.KindIndexOutOfBounds, orchestration.KindUnknownMethod, orchestration.KindInvalidRequest:
		return http.StatusBadRequest
	case orchestration.KindIncompatibleMethod:
		return http.StatusUnprocessableEntity
	case orchestration.KindExplanationTimeout:
		return http.StatusGatewayTimeout
	case orchestration.KindServiceUnavailable, orchestration.KindCanceled:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeOrchestrationError(w http.ResponseWriter, err error) {
	e := orchestration.Classify(err)
	code := StatusCode(e.Kind)
	if e.Retryable {
		w.Header().Set("Retry-After", "1")
	}
	writeJSON(w, code, ErrorResponse{
		Error:            e.Message,
		Kind:             string(e.Kind),
		Retryable:        e.Retryable,
		SupportedMethods: e.SupportedMethods,
		Code:             code,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, ErrorResponse{Error: msg, Kind: string(orchestration.KindInvalidRequest), Code: code})
}
