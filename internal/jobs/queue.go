package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/finxai/xai/internal/models"
	"github.com/google/uuid"
)

// Queue defaults.
const (
	DefaultWorkers   = 2
	DefaultQueueSize = 64
)

// Handler computes the result of one request. It must honor ctx.
type Handler func(ctx context.Context, req Request) (*Outcome, error)

// Outcome is a successful handler result.
type Outcome struct {
	Result *models.GlobalAttribution
	// Cached is set when the result was served from a result cache.
	Cached bool
}

// Classifier turns a handler error into a recorded failure.
type Classifier func(err error) Failure

// Listener receives a snapshot of the job after every status transition.
// Listeners run on the worker goroutine and must not block.
type Listener func(job *Job)

// Queue is a bounded, in-process message-passing boundary between request
// handling and global computations. Submit never blocks: when the buffer
// is full the request is rejected with models.ErrQueueFull.
type Queue struct {
	store      Store
	handler    Handler
	workers    int
	size       int
	timeout    time.Duration
	classify   Classifier
	logger     *slog.Logger
	listenerMu sync.Mutex
	listeners  []Listener

	tasks  chan string
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
	active map[string]*activeJob
}

type activeJob struct {
	job      *Job
	cancel   context.CancelFunc
	canceled bool
}

// QueueOption configures a Queue.
type QueueOption func(*Queue)

// WithWorkers sets the number of concurrent workers.
func WithWorkers(n int) QueueOption {
	return func(q *Queue) {
		if n > 0 {
			q.workers = n
		}
	}
}

// WithQueueSize sets how many jobs may wait for a worker.
func WithQueueSize(n int) QueueOption {
	return func(q *Queue) {
		if n > 0 {
			q.size = n
		}
	}
}

// WithJobTimeout bounds a single job. Zero means no bound.
func WithJobTimeout(d time.Duration) QueueOption {
	return func(q *Queue) { q.timeout = d }
}

// WithClassifier sets how handler errors are recorded.
func WithClassifier(c Classifier) QueueOption {
	return func(q *Queue) {
		if c != nil {
			q.classify = c
		}
	}
}

// WithLogger sets the queue logger.
func WithLogger(l *slog.Logger) QueueOption {
	return func(q *Queue) {
		if l != nil {
			q.logger = l
		}
	}
}

// WithListener registers a listener at construction.
func WithListener(l Listener) QueueOption {
	return func(q *Queue) { q.listeners = append(q.listeners, l) }
}

// NewQueue creates a queue and starts its workers. Call Close to stop them.
func NewQueue(store Store, handler Handler, opts ...QueueOption) *Queue {
	q := &Queue{
		store:    store,
		handler:  handler,
		workers:  DefaultWorkers,
		size:     DefaultQueueSize,
		classify: defaultClassifier,
		logger:   slog.Default(),
		active:   make(map[string]*activeJob),
	}
	for _, o := range opts {
		o(q)
	}
	q.tasks = make(chan string, q.size)
	q.ctx, q.cancel = context.WithCancel(context.Background())
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker()
	}
	return q
}

func defaultClassifier(err error) Failure {
	return Failure{Kind: "computation_failure", Message: err.Error()}
}

// OnJobEvent registers a listener.
func (q *Queue) OnJobEvent(l Listener) {
	q.listenerMu.Lock()
	defer q.listenerMu.Unlock()
	q.listeners = append(q.listeners, l)
}

// Submit records a pending job and hands it to the workers.
func (q *Queue) Submit(ctx context.Context, req Request) (*Job, error) {
	job := &Job{
		ID:        uuid.NewString(),
		Request:   req,
		Status:    StatusPending,
		CreatedAt: time.Now().UTC(),
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil, ErrQueueClosed
	}
	if err := q.store.Save(ctx, job); err != nil {
		return nil, fmt.Errorf("saving job: %w", err)
	}
	q.active[job.ID] = &activeJob{job: job}
	select {
	case q.tasks <- job.ID:
	default:
		delete(q.active, job.ID)
		q.finish(job, StatusFailed, &Failure{
			Kind:      "service_unavailable",
			Message:   models.ErrQueueFull.Error(),
			Retryable: true,
		})
		return nil, fmt.Errorf("%w: %d jobs waiting", models.ErrQueueFull, q.size)
	}
	q.notify(job)
	q.logger.Debug("job submitted", "job_id", job.ID, "model_id", req.ModelID, "method", req.Method)
	return job.Clone(), nil
}

// Get returns the current status of a job.
func (q *Queue) Get(ctx context.Context, id string) (*Job, error) {
	return q.store.Get(ctx, id)
}

// Cancel stops a pending or running job. Cancelling a finished job is a
// no-op that returns its final state.
func (q *Queue) Cancel(ctx context.Context, id string) (*Job, error) {
	q.mu.Lock()
	a, ok := q.active[id]
	if !ok {
		q.mu.Unlock()
		return q.store.Get(ctx, id)
	}
	a.canceled = true
	running := a.cancel != nil
	if running {
		a.cancel()
	}
	job := a.job.Clone()
	q.mu.Unlock()

	if !running {
		// The worker skips canceled entries, so record the final state here.
		q.mu.Lock()
		delete(q.active, id)
		q.mu.Unlock()
		q.finish(job, StatusCanceled, nil)
	}
	q.logger.Debug("job canceled", "job_id", id, "running", running)
	job.Status = StatusCanceled
	return job, nil
}

// Pending returns the number of jobs not yet finished.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.active)
}

// Close stops accepting jobs, cancels running ones and waits for the
// workers. Jobs still waiting are recorded as canceled.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()

	q.cancel()
	q.wg.Wait()

	q.mu.Lock()
	leftover := make([]*Job, 0, len(q.active))
	for id, a := range q.active {
		leftover = append(leftover, a.job)
		delete(q.active, id)
	}
	q.mu.Unlock()
	for _, job := range leftover {
		q.finish(job, StatusCanceled, &Failure{Kind: "canceled", Message: "queue shut down", Retryable: true})
	}
}

func (q *Queue) worker() {
	defer q.wg.Done()
	for {
		select {
		case <-q.ctx.Done():
			return
		case id := <-q.tasks:
			q.run(id)
		}
	}
}

func (q *Queue) run(id string) {
	q.mu.Lock()
	a, ok := q.active[id]
	if !ok || a.canceled || q.ctx.Err() != nil {
		q.mu.Unlock()
		return
	}
	var ctx context.Context
	var cancel context.CancelFunc
	if q.timeout > 0 {
		ctx, cancel = context.WithTimeout(q.ctx, q.timeout)
	} else {
		ctx, cancel = context.WithCancel(q.ctx)
	}
	defer cancel()
	a.cancel = cancel
	started := time.Now().UTC()
	a.job.Status = StatusProcessing
	a.job.StartedAt = &started
	job := a.job.Clone()
	q.mu.Unlock()

	q.save(job)
	q.logger.Debug("job started", "job_id", id, "model_id", job.Request.ModelID, "method", job.Request.Method)

	out, err := q.call(ctx, job.Request)

	q.mu.Lock()
	canceled := a.canceled
	delete(q.active, id)
	q.mu.Unlock()

	switch {
	case canceled:
		q.finish(job, StatusCanceled, nil)
	case err != nil:
		if q.ctx.Err() != nil {
			q.finish(job, StatusCanceled, &Failure{Kind: "canceled", Message: "queue shut down", Retryable: true})
			return
		}
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w: job exceeded %s", models.ErrExplanationTimeout, q.timeout)
		}
		f := q.classify(err)
		q.logger.Info("job failed", "job_id", id, "model_id", job.Request.ModelID, "method", job.Request.Method, "error", err)
		q.finish(job, StatusFailed, &f)
	default:
		job.Result = out.Result
		job.Cached = out.Cached
		q.finish(job, StatusCompleted, nil)
		q.logger.Debug("job completed", "job_id", id, "duration", job.Duration(), "cached", out.Cached)
	}
}

// call runs the handler, converting a panic into a computation failure.
func (q *Queue) call(ctx context.Context, req Request) (out *Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("%w: %v", models.ErrComputationFailure, r)
		}
	}()
	out, err = q.handler(ctx, req)
	if err == nil && (out == nil || out.Result == nil) {
		err = fmt.Errorf("%w: handler returned no result", models.ErrComputationFailure)
	}
	return out, err
}

func (q *Queue) finish(job *Job, status Status, f *Failure) {
	now := time.Now().UTC()
	job.Status = status
	job.Failure = f
	job.FinishedAt = &now
	q.save(job)
}

func (q *Queue) save(job *Job) {
	// Status writes must land even while the queue shuts down.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := q.store.Save(ctx, job); err != nil {
		q.logger.Error("saving job status", "job_id", job.ID, "status", job.Status, "error", err)
	}
	q.notify(job)
}

func (q *Queue) notify(job *Job) {
	q.listenerMu.Lock()
	listeners := make([]Listener, len(q.listeners))
	copy(listeners, q.listeners)
	q.listenerMu.Unlock()

	for _, l := range listeners {
		l(job.Clone())
	}
}
