// Package orchestrationtest builds orchestrators over the modeltest
// fixtures for transport tests.
package orchestrationtest

import (
	"context"
	"testing"

	"github.com/finxai/xai/internal/artifact"
	"github.com/finxai/xai/internal/attribution"
	"github.com/finxai/xai/internal/cache"
	"github.com/finxai/xai/internal/models"
	"github.com/finxai/xai/internal/models/modeltest"
	"github.com/finxai/xai/internal/orchestration"
)

// Store returns a memory store holding models "m1" (random forest),
// "g1" (gradient boosting) and "l1" (logistic regression).
func Store() *artifact.MemoryStore {
	store := artifact.NewMemoryStore()
	store.Put(modeltest.Forest(), modeltest.Split())
	store.Put(modeltest.Boosted(), modeltest.Split())
	store.Put(modeltest.Logistic(), modeltest.Split())
	return store
}

// New returns an orchestrator over Store. It is closed when the test ends.
func New(t testing.TB, opts ...orchestration.Option) *orchestration.Orchestrator {
	t.Helper()
	store := Store()
	cfg := attribution.BuildConfig{BackgroundSize: 100, Seed: attribution.DefaultSeed, Options: attribution.DefaultOptions()}
	explainers := cache.New(func(ctx context.Context, modelID string, method models.Method) (*attribution.State, error) {
		return attribution.NewState(ctx, store, modelID, method, cfg)
	})
	o := orchestration.New(attribution.NewEngine(explainers), explainers, store, opts...)
	t.Cleanup(o.Close)
	return o
}
