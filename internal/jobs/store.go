package jobs

import (
	"context"
	"sync"
	"time"
)

// DefaultTTL is how long job records are kept after their last update.
const DefaultTTL = time.Hour

// Store persists job status records.
type Store interface {
	Save(ctx context.Context, job *Job) error
	Get(ctx context.Context, id string) (*Job, error)
}

// MemoryStore keeps jobs in process memory. Records expire ttl after their
// last save.
type MemoryStore struct {
	ttl time.Duration
	now func() time.Time

	mu   sync.RWMutex
	jobs map[string]memoryEntry
}

type memoryEntry struct {
	job     *Job
	expires time.Time
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an in-memory store. ttl <= 0 uses DefaultTTL.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{ttl: ttl, now: time.Now, jobs: make(map[string]memoryEntry)}
}

func (s *MemoryStore) Save(_ context.Context, job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	s.jobs[job.ID] = memoryEntry{job: job.Clone(), expires: now.Add(s.ttl)}
	for id, e := range s.jobs {
		if now.After(e.expires) {
			delete(s.jobs, id)
		}
	}
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.jobs[id]
	if !ok || s.now().After(e.expires) {
		return nil, ErrJobNotFound
	}
	return e.job.Clone(), nil
}

// Len returns the number of unexpired records.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	now := s.now()
	n := 0
	for _, e := range s.jobs {
		if !now.After(e.expires) {
			n++
		}
	}
	return n
}
