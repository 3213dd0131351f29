package reminder

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps reminder jobs in process memory.
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[string]Job
}

// NewMemoryStore creates an empty job store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]Job)}
}

// Upsert inserts or replaces a pending job. A job already sent keeps its
// terminal state.
func (s *MemoryStore) Upsert(ctx context.Context, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.jobs[job.Key]; ok && existing.Status == StatusSent {
		return nil
	}
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	job.Status = StatusPending
	job.CreatedAt = time.Now().UTC()
	s.jobs[job.Key] = job
	return nil
}

// ListPending returns pending jobs ordered by fire time.
func (s *MemoryStore) ListPending(ctx context.Context) ([]Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Job
	for _, j := range s.jobs {
		if j.Status == StatusPending {
			out = append(out, j)
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].FireAt.Before(out[k].FireAt) })
	return out, nil
}

// MarkSent flips a job to sent.
func (s *MemoryStore) MarkSent(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j, ok := s.jobs[key]; ok {
		j.Status = StatusSent
		s.jobs[key] = j
	}
	return nil
}

// MarkFailed flips a job to failed.
func (s *MemoryStore) MarkFailed(ctx context.Context, key, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j, ok := s.jobs[key]; ok {
		j.Status = StatusFailed
		s.jobs[key] = j
	}
	return nil
}

// Find returns one job by key.
func (s *MemoryStore) Find(ctx context.Context, key string) (Job, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.jobs[key]
	return j, ok, nil
}

// Claim moves a pending job to sending. Returns false when the job is
// missing or another caller already took it.
func (s *MemoryStore) Claim(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[key]
	if !ok || j.Status != StatusPending {
		return false, nil
	}
	j.Status = StatusSending
	s.jobs[key] = j
	return true, nil
}

var _ JobStore = (*MemoryStore)(nil)
