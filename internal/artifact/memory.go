package artifact

import (
	"context"
	"sort"
	"sync"

	"github.com/finxai/xai/internal/dataset"
	"github.com/finxai/xai/internal/models"
)

// MemoryStore holds artifacts in memory. It is used by tests and by the
// rpc command when artifacts are preloaded.
type MemoryStore struct {
	mu     sync.RWMutex
	models map[string]*models.Handle
	splits map[string]*dataset.Split
}

var (
	_ Store  = (*MemoryStore)(nil)
	_ Lister = (*MemoryStore)(nil)
)

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		models: make(map[string]*models.Handle),
		splits: make(map[string]*dataset.Split),
	}
}

// Put registers a model and its held-out split.
func (s *MemoryStore) Put(h *models.Handle, split *dataset.Split) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.models[h.ID] = h
	if split != nil {
		s.splits[h.ID] = split
	}
}

func (s *MemoryStore) FetchModel(_ context.Context, modelID string) (*models.Handle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.models[modelID]
	if !ok {
		return nil, notFound("model", modelID)
	}
	return h, nil
}

func (s *MemoryStore) FetchHeldOutSplit(_ context.Context, modelID string) (*dataset.Split, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	split, ok := s.splits[modelID]
	if !ok {
		return nil, notFound("held-out split", modelID)
	}
	return split, nil
}

func (s *MemoryStore) ListModels(context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.models))
	for id := range s.models {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}
