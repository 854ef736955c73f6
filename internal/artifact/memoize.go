package artifact

import (
	"context"
	"sync"

	"github.com/finxai/xai/internal/dataset"
	"github.com/finxai/xai/internal/models"
	"golang.org/x/sync/singleflight"
)

// Memoized fetches each artifact from the wrapped store at most once per
// model. Concurrent first fetches share one call. Failures are not cached.
type Memoized struct {
	inner Store

	mu     sync.RWMutex
	models map[string]*models.Handle
	splits map[string]*dataset.Split
	group  singleflight.Group
}

var _ Store = (*Memoized)(nil)

// Memoize wraps inner.
func Memoize(inner Store) *Memoized {
	return &Memoized{
		inner:  inner,
		models: make(map[string]*models.Handle),
		splits: make(map[string]*dataset.Split),
	}
}

func (m *Memoized) FetchModel(ctx context.Context, modelID string) (*models.Handle, error) {
	m.mu.RLock()
	h, ok := m.models[modelID]
	m.mu.RUnlock()
	if ok {
		return h, nil
	}
	v, err, _ := m.group.Do("model/"+modelID, func() (any, error) {
		m.mu.RLock()
		h, ok := m.models[modelID]
		m.mu.RUnlock()
		if ok {
			return h, nil
		}
		h, err := m.inner.FetchModel(ctx, modelID)
		if err != nil {
			return nil, err
		}
		m.mu.Lock()
		m.models[modelID] = h
		m.mu.Unlock()
		return h, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.Handle), nil
}

func (m *Memoized) FetchHeldOutSplit(ctx context.Context, modelID string) (*dataset.Split, error) {
	m.mu.RLock()
	s, ok := m.splits[modelID]
	m.mu.RUnlock()
	if ok {
		return s, nil
	}
	v, err, _ := m.group.Do("split/"+modelID, func() (any, error) {
		m.mu.RLock()
		s, ok := m.splits[modelID]
		m.mu.RUnlock()
		if ok {
			return s, nil
		}
		s, err := m.inner.FetchHeldOutSplit(ctx, modelID)
		if err != nil {
			return nil, err
		}
		m.mu.Lock()
		m.splits[modelID] = s
		m.mu.Unlock()
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*dataset.Split), nil
}

// Invalidate drops memoized artifacts for modelID.
func (m *Memoized) Invalidate(modelID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.models, modelID)
	delete(m.splits, modelID)
}

// Len returns the number of memoized models.
func (m *Memoized) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.models)
}
