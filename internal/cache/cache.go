package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/finxai/xai/internal/attribution"
	"github.com/finxai/xai/internal/models"
	"golang.org/x/sync/singleflight"
)

// BuildFunc constructs explainer state for one (model, method) pair.
type BuildFunc func(ctx context.Context, modelID string, method models.Method) (*attribution.State, error)

// Observer receives cache events. Any field may be nil.
type Observer struct {
	OnHit   func(method models.Method)
	OnMiss  func(method models.Method)
	OnBuild func(method models.Method, d time.Duration, err error)
}

// Cache provides construct-once storage of explainer state keyed by
// (model, method). Entries are only written after a successful build and
// live until Invalidate.
type Cache struct {
	build        BuildFunc
	buildTimeout time.Duration
	logger       *slog.Logger
	observer     Observer

	mu      sync.RWMutex
	entries map[key]*attribution.State
	gens    map[string]uint64
	group   singleflight.Group
}

var _ attribution.StateProvider = (*Cache)(nil)

type key struct {
	modelID string
	method  models.Method
}

func (k key) String() string { return k.modelID + "\x00" + string(k.method) }

// Option configures a Cache.
type Option func(*Cache)

// WithBuildTimeout bounds a single construction. Construction is detached
// from the requesting context so an abandoned caller does not cancel it.
func WithBuildTimeout(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.buildTimeout = d
		}
	}
}

// WithLogger sets the cache logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Cache) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithObserver registers event callbacks, used for metrics.
func WithObserver(o Observer) Option {
	return func(c *Cache) { c.observer = o }
}

// New creates a new cache that builds entries with build.
func New(build BuildFunc, opts ...Option) *Cache {
	c := &Cache{
		build:        build,
		buildTimeout: 2 * time.Minute,
		logger:       slog.Default(),
		entries:      make(map[key]*attribution.State),
		gens:         make(map[string]uint64),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Get returns a cached entry without building it.
func (c *Cache) Get(modelID string, method models.Method) (*attribution.State, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	st, ok := c.entries[key{modelID, method}]
	return st, ok
}

// GetOrCreate returns the state for (modelID, method), building it on first
// use. Concurrent first requests share one build. If ctx ends first the
// caller returns ctx.Err() while the build continues for the others.
func (c *Cache) GetOrCreate(ctx context.Context, modelID string, method models.Method) (*attribution.State, error) {
	k := key{modelID, method}
	if st, ok := c.Get(modelID, method); ok {
		c.notifyHit(method)
		return st, nil
	}
	c.notifyMiss(method)

	ch := c.group.DoChan(k.String(), func() (any, error) {
		if st, ok := c.Get(modelID, method); ok {
			return st, nil
		}
		return c.construct(ctx, k)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*attribution.State), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Cache) construct(ctx context.Context, k key) (st *attribution.State, err error) {
	bctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.buildTimeout)
	defer cancel()

	c.mu.RLock()
	gen := c.gens[k.modelID]
	c.mu.RUnlock()

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			st, err = nil, fmt.Errorf("%w: building %s explainer for %s: %v", models.ErrComputationFailure, k.method, k.modelID, r)
		}
		if c.observer.OnBuild != nil {
			c.observer.OnBuild(k.method, time.Since(start), err)
		}
	}()

	st, err = c.build(bctx, k.modelID, k.method)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w: building %s explainer for %s exceeded %s", models.ErrExplanationTimeout, k.method, k.modelID, c.buildTimeout)
		}
		c.logger.Debug("explainer build failed", "model_id", k.modelID, "method", k.method, "error", err)
		return nil, err
	}

	// An Invalidate during the build makes this state stale; hand it to the
	// waiting callers but do not keep it.
	c.mu.Lock()
	if c.gens[k.modelID] == gen {
		c.entries[k] = st
	}
	c.mu.Unlock()
	c.logger.Debug("explainer built", "model_id", k.modelID, "method", k.method, "duration", time.Since(start))
	return st, nil
}

// Invalidate drops every entry for modelID and returns how many were removed.
func (c *Cache) Invalidate(modelID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gens[modelID]++
	for _, m := range models.Methods {
		c.group.Forget(key{modelID, m}.String())
	}
	n := 0
	for k := range c.entries {
		if k.modelID == modelID {
			delete(c.entries, k)
			n++
		}
	}
	return n
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *Cache) notifyHit(m models.Method) {
	if c.observer.OnHit != nil {
		c.observer.OnHit(m)
	}
}

func (c *Cache) notifyMiss(m models.Method) {
	if c.observer.OnMiss != nil {
		c.observer.OnMiss(m)
	}
}
