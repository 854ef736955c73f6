// Package orchestration is the public entry point of the explanation engine.
// It routes global requests to the job queue, runs local requests
// synchronously under a timeout, and converts every failure into an *Error.
package orchestration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/finxai/xai/internal/artifact"
	"github.com/finxai/xai/internal/attribution"
	"github.com/finxai/xai/internal/cache"
	"github.com/finxai/xai/internal/interpretation"
	"github.com/finxai/xai/internal/jobs"
	"github.com/finxai/xai/internal/metrics"
	"github.com/finxai/xai/internal/models"
	"github.com/finxai/xai/internal/telemetry"
)

// DefaultLocalTimeout bounds every synchronous request.
const DefaultLocalTimeout = 30 * time.Second

// Operation names used in logs and request metrics.
const (
	OpGlobal      = "global"
	OpLocal       = "local"
	OpQuality     = "quality"
	OpPerformance = "performance"
)

// State is a step of the per-request state machine.
type State string

const (
	StateReceived      State = "received"
	StateCacheLookup   State = "cache_lookup"
	StateSyncCompute   State = "sync_compute"
	StateAsyncDispatch State = "async_dispatch"
	StateCompleted     State = "completed"
	StateFailed        State = "failed"
	StateTimedOut      State = "timed_out"
)

// Transition is reported to state observers each time a request moves.
type Transition struct {
	Operation     string
	ModelID       string
	Method        models.Method
	InstanceIndex int
	State         State
}

// StateObserver receives request transitions. It must not block.
type StateObserver func(Transition)

// Config holds the orchestrator tunables.
type Config struct {
	LocalTimeout   time.Duration
	Quality        metrics.QualityOptions
	Performance    metrics.PerformanceOptions
	Interpretation interpretation.Options
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		LocalTimeout:   DefaultLocalTimeout,
		Quality:        metrics.DefaultQualityOptions(),
		Performance:    metrics.DefaultPerformanceOptions(),
		Interpretation: interpretation.DefaultOptions(),
	}
}

// Orchestrator coordinates the artifact store, the explainer cache, the
// attribution engine and the metrics engine.
type Orchestrator struct {
	engine     *attribution.Engine
	explainers *cache.Cache
	artifacts  artifact.Store
	results    *cache.ResultCache
	memo       *artifact.Memoized
	queue      *jobs.Queue
	cfg        Config
	telemetry  *telemetry.Metrics
	logger     *slog.Logger

	jobStore  jobs.Store
	queueOpts []jobs.QueueOption

	observerMu sync.Mutex
	observers  []StateObserver
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithConfig replaces the default configuration. Zero fields keep their
// defaults.
func WithConfig(cfg Config) Option {
	return func(o *Orchestrator) {
		if cfg.LocalTimeout > 0 {
			o.cfg.LocalTimeout = cfg.LocalTimeout
		}
		if cfg.Quality != (metrics.QualityOptions{}) {
			o.cfg.Quality = cfg.Quality
		}
		if cfg.Performance != (metrics.PerformanceOptions{}) {
			o.cfg.Performance = cfg.Performance
		}
		if cfg.Interpretation != (interpretation.Options{}) {
			o.cfg.Interpretation = cfg.Interpretation
		}
	}
}

// WithJobStore sets where job status records live. Defaults to memory.
func WithJobStore(s jobs.Store) Option {
	return func(o *Orchestrator) { o.jobStore = s }
}

// WithQueueOptions passes options to the job queue.
func WithQueueOptions(opts ...jobs.QueueOption) Option {
	return func(o *Orchestrator) { o.queueOpts = append(o.queueOpts, opts...) }
}

// WithResultCache serves repeated global requests from disk.
func WithResultCache(c *cache.ResultCache) Option {
	return func(o *Orchestrator) { o.results = c }
}

// WithArtifactMemo lets InvalidateCache drop memoized artifacts as well.
func WithArtifactMemo(m *artifact.Memoized) Option {
	return func(o *Orchestrator) { o.memo = m }
}

// WithMetrics records request durations and job transitions.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(o *Orchestrator) { o.telemetry = m }
}

// WithStateObserver registers a request state observer.
func WithStateObserver(fn StateObserver) Option {
	return func(o *Orchestrator) { o.observers = append(o.observers, fn) }
}

// WithLogger sets the orchestrator logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// New creates an Orchestrator and starts its job workers. explainers must be
// the StateProvider behind engine; artifacts is used for performance metrics.
func New(engine *attribution.Engine, explainers *cache.Cache, artifacts artifact.Store, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		engine:     engine,
		explainers: explainers,
		artifacts:  artifacts,
		cfg:        DefaultConfig(),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.jobStore == nil {
		o.jobStore = jobs.NewMemoryStore(jobs.DefaultTTL)
	}
	qopts := []jobs.QueueOption{
		jobs.WithLogger(o.logger),
		jobs.WithClassifier(func(err error) jobs.Failure { return Classify(err).Failure() }),
	}
	if o.telemetry != nil {
		qopts = append(qopts, jobs.WithListener(o.telemetry.JobListener()))
	}
	o.queue = jobs.NewQueue(o.jobStore, o.runGlobal, append(qopts, o.queueOpts...)...)
	if o.telemetry != nil {
		o.telemetry.WatchQueue(o.queue.Pending)
	}
	return o
}

// Config returns the effective configuration.
func (o *Orchestrator) Config() Config { return o.cfg }

// OnJobEvent registers a listener for job status transitions.
func (o *Orchestrator) OnJobEvent(l jobs.Listener) {
	o.queue.OnJobEvent(l)
}

// OnStateChange registers a request state observer.
func (o *Orchestrator) OnStateChange(fn StateObserver) {
	o.observerMu.Lock()
	defer o.observerMu.Unlock()
	o.observers = append(o.observers, fn)
}

// Close stops the job workers. Unfinished jobs are marked canceled.
func (o *Orchestrator) Close() {
	o.queue.Close()
}

// RequestGlobalExplanation enqueues a global attribution and returns the
// pending job. sampleSize <= 0 uses the engine default.
func (o *Orchestrator) RequestGlobalExplanation(ctx context.Context, modelID, method string, sampleSize int) (*jobs.Job, error) {
	r := o.begin(OpGlobal, modelID, -1)
	m, err := models.ParseMethod(method)
	if err != nil {
		return nil, o.fail(r, err)
	}
	r.method = m
	if modelID == "" {
		return nil, o.fail(r, errModelRequired)
	}
	if sampleSize <= 0 {
		sampleSize = o.engine.SampleSize()
	}

	o.enter(r, StateCacheLookup)
	o.enter(r, StateAsyncDispatch)
	job, err := o.queue.Submit(ctx, jobs.Request{ModelID: modelID, Method: m, SampleSize: sampleSize})
	if err != nil {
		return nil, o.fail(r, err)
	}
	o.complete(r)
	return job, nil
}

// PollJob returns the current state of a global explanation job.
func (o *Orchestrator) PollJob(ctx context.Context, jobID string) (*jobs.Job, error) {
	job, err := o.queue.Get(ctx, jobID)
	if err != nil {
		return nil, Classify(err)
	}
	return job, nil
}

// CancelJob stops a pending or running job. Finished jobs are returned
// unchanged.
func (o *Orchestrator) CancelJob(ctx context.Context, jobID string) (*jobs.Job, error) {
	job, err := o.queue.Cancel(ctx, jobID)
	if err != nil {
		return nil, Classify(err)
	}
	return job, nil
}

// runGlobal is the job handler. It runs on a queue worker.
func (o *Orchestrator) runGlobal(ctx context.Context, req jobs.Request) (*jobs.Outcome, error) {
	key, err := cache.ResultKey(req.ModelID, req.Method, req.SampleSize, o.engine.Seed())
	if err != nil {
		return nil, err
	}
	if o.results != nil {
		if res, ok := o.results.Get(key); ok {
			o.logger.Debug("global attribution served from result cache", "model_id", req.ModelID, "method", req.Method)
			return &jobs.Outcome{Result: res, Cached: true}, nil
		}
	}

	start := time.Now()
	res, err := o.engine.ComputeGlobal(ctx, req.ModelID, req.Method, req.SampleSize)
	if err != nil {
		if errors.Is(err, models.ErrComputationFailure) {
			o.logger.Error("global attribution failed", "model_id", req.ModelID, "method", req.Method, "error", err)
		}
		o.observe(OpGlobal, err, start)
		return nil, err
	}
	o.observe(OpGlobal, nil, start)

	if o.results != nil {
		if err := o.results.Put(key, res); err != nil {
			o.logger.Warn("failed to cache global attribution", "model_id", req.ModelID, "error", err)
		}
	}
	return &jobs.Outcome{Result: res}, nil
}

// RequestLocalExplanation explains one held-out row synchronously. The call
// fails with an explanation_timeout error once the local timeout elapses;
// explainer construction keeps running for later requests.
func (o *Orchestrator) RequestLocalExplanation(ctx context.Context, modelID string, index int, method string) (*models.LocalAttribution, error) {
	r := o.begin(OpLocal, modelID, index)
	m, err := models.ParseMethod(method)
	if err != nil {
		return nil, o.fail(r, err)
	}
	r.method = m
	if modelID == "" {
		return nil, o.fail(r, errModelRequired)
	}
	o.lookup(r)

	o.enter(r, StateSyncCompute)
	res, err := withTimeout(ctx, o.cfg.LocalTimeout, func(ctx context.Context) (*models.LocalAttribution, error) {
		return o.engine.ComputeLocal(ctx, modelID, index, m)
	})
	if err != nil {
		return nil, o.fail(r, err)
	}
	o.complete(r)
	return res, nil
}

// Interpret renders local as rule-based reasoning using the configured
// cutoffs.
func (o *Orchestrator) Interpret(local *models.LocalAttribution) *interpretation.Interpretation {
	return interpretation.Interpret(local, o.cfg.Interpretation)
}

// RequestQualityMetrics explains one held-out row and scores the
// explanation for faithfulness, robustness and complexity.
func (o *Orchestrator) RequestQualityMetrics(ctx context.Context, modelID string, index int, method string) (*metrics.Quality, error) {
	r := o.begin(OpQuality, modelID, index)
	m, err := models.ParseMethod(method)
	if err != nil {
		return nil, o.fail(r, err)
	}
	r.method = m
	if modelID == "" {
		return nil, o.fail(r, errModelRequired)
	}
	o.lookup(r)

	o.enter(r, StateSyncCompute)
	q, err := withTimeout(ctx, o.cfg.LocalTimeout, func(ctx context.Context) (*metrics.Quality, error) {
		return o.quality(ctx, modelID, index, m)
	})
	if err != nil {
		return nil, o.fail(r, err)
	}
	o.complete(r)
	return q, nil
}

func (o *Orchestrator) quality(ctx context.Context, modelID string, index int, m models.Method) (*metrics.Quality, error) {
	st, err := o.engine.State(ctx, modelID, m)
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= st.Split.Len() {
		return nil, models.IndexError(modelID, index, st.Split.Len())
	}
	x := st.Split.Row(index)
	local, err := attribution.ExplainInstance(st, x)
	if err != nil {
		return nil, err
	}

	categorical := make([]bool, len(x))
	for j := range categorical {
		categorical[j] = st.Model.IsCategorical(j)
	}
	in := metrics.QualityInput{
		X:           x,
		Attribution: local.Values(),
		Score:       st.Model.Score,
		Explain: func(x []float64) ([]float64, error) {
			l, err := attribution.ExplainInstance(st, x)
			if err != nil {
				return nil, err
			}
			return l.Values(), nil
		},
		Mean:        st.Mean,
		Std:         st.Std,
		Categorical: categorical,
	}
	q, err := metrics.ComputeQuality(ctx, in, o.cfg.Quality)
	if err != nil {
		return nil, err
	}
	q.ModelID = modelID
	q.Method = m
	q.InstanceIndex = index
	return q, nil
}

// RequestPerformanceMetrics evaluates the model on its held-out split. An
// unlabeled split yields undefined metrics and a note.
func (o *Orchestrator) RequestPerformanceMetrics(ctx context.Context, modelID string) (*metrics.Performance, error) {
	r := o.begin(OpPerformance, modelID, -1)
	if modelID == "" {
		return nil, o.fail(r, errModelRequired)
	}
	o.enter(r, StateSyncCompute)
	p, err := withTimeout(ctx, o.cfg.LocalTimeout, func(ctx context.Context) (*metrics.Performance, error) {
		h, split, err := artifact.Load(ctx, o.artifacts, modelID)
		if err != nil {
			return nil, err
		}
		scores := make([]float64, split.Len())
		for i := range scores {
			scores[i] = h.PositiveProbability(split.Row(i))
		}
		if !split.Labeled() {
			p := metrics.ComputePerformance(scores, nil, o.cfg.Performance)
			p.Notes = []string{"held-out split has no labels; metrics are undefined"}
			p.ModelID = modelID
			return p, nil
		}
		p := metrics.ComputePerformance(scores, split.Labels(), o.cfg.Performance)
		p.ModelID = modelID
		return p, nil
	})
	if err != nil {
		return nil, o.fail(r, err)
	}
	o.complete(r)
	return p, nil
}

var errModelRequired = &Error{Kind: KindInvalidRequest, Message: "model id is required"}

// InvalidationResult reports what InvalidateCache removed.
type InvalidationResult struct {
	ModelID        string `json:"model_id"`
	Explainers     int    `json:"explainers"`
	CachedResults  int    `json:"cached_results"`
	ArtifactsFreed bool   `json:"artifacts_freed"`
}

// InvalidateCache drops every cached explainer, stored global result and
// memoized artifact for modelID. In-flight builds finish but are discarded.
func (o *Orchestrator) InvalidateCache(_ context.Context, modelID string) (*InvalidationResult, error) {
	if modelID == "" {
		return nil, errModelRequired
	}
	res := &InvalidationResult{ModelID: modelID}
	res.Explainers = o.explainers.Invalidate(modelID)
	if o.memo != nil {
		o.memo.Invalidate(modelID)
		res.ArtifactsFreed = true
	}
	if o.results != nil {
		n, err := o.results.DeleteModel(modelID)
		res.CachedResults = n
		if err != nil {
			return res, Classify(err)
		}
	}
	o.logger.Info("cache invalidated", "model_id", modelID, "explainers", res.Explainers, "results", res.CachedResults)
	return res, nil
}

// withTimeout runs fn on its own goroutine and stops waiting once d elapses
// or ctx ends. fn keeps the derived context, so work it shares with other
// callers must detach from it.
func withTimeout[T any](ctx context.Context, d time.Duration, fn func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		var r result
		defer func() {
			if p := recover(); p != nil {
				r.err = fmt.Errorf("%w: %v", models.ErrComputationFailure, p)
			}
			ch <- r
		}()
		r.v, r.err = fn(ctx)
	}()

	var zero T
	select {
	case r := <-ch:
		if r.err != nil && errors.Is(r.err, context.DeadlineExceeded) && ctx.Err() != nil {
			return zero, fmt.Errorf("%w after %s", models.ErrExplanationTimeout, d)
		}
		return r.v, r.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return zero, fmt.Errorf("%w after %s", models.ErrExplanationTimeout, d)
		}
		return zero, ctx.Err()
	}
}

type request struct {
	op     string
	model  string
	method models.Method
	index  int
	start  time.Time
}

func (o *Orchestrator) begin(op, modelID string, index int) *request {
	r := &request{op: op, model: modelID, index: index, start: time.Now()}
	o.enter(r, StateReceived)
	return r
}

// lookup records whether the explainer for the request is already built.
func (o *Orchestrator) lookup(r *request) {
	o.enter(r, StateCacheLookup)
	_, hit := o.explainers.Get(r.model, r.method)
	o.logger.Debug("explainer cache lookup", "model_id", r.model, "method", r.method, "hit", hit)
}

func (o *Orchestrator) enter(r *request, s State) {
	o.logger.Debug("request state", "operation", r.op, "model_id", r.model, "method", r.method, "state", s)
	o.observerMu.Lock()
	obs := make([]StateObserver, len(o.observers))
	copy(obs, o.observers)
	o.observerMu.Unlock()
	for _, fn := range obs {
		fn(Transition{Operation: r.op, ModelID: r.model, Method: r.method, InstanceIndex: r.index, State: s})
	}
}

func (o *Orchestrator) complete(r *request) {
	o.enter(r, StateCompleted)
	o.observe(r.op, nil, r.start)
}

// fail classifies err, records the terminal state and returns the envelope.
func (o *Orchestrator) fail(r *request, err error) *Error {
	e := Classify(err)
	switch e.Kind {
	case KindExplanationTimeout:
		o.enter(r, StateTimedOut)
		o.logger.Info("request timed out", "operation", r.op, "model_id", r.model, "method", r.method, "instance_index", r.index)
	case KindComputationFailure:
		o.enter(r, StateFailed)
		o.logger.Error("computation failure", "operation", r.op, "model_id", r.model, "method", r.method, "instance_index", r.index, "error", err)
	default:
		o.enter(r, StateFailed)
	}
	o.observe(r.op, err, r.start)
	return e
}

func (o *Orchestrator) observe(op string, err error, start time.Time) {
	if o.telemetry == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = string(Classify(err).Kind)
	}
	o.telemetry.ObserveRequest(op, outcome, time.Since(start))
}
