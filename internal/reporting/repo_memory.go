package reporting

import (
	"context"
	"sync"
	"time"

	"dispatch-platform/internal/dispatch"
)

// MemoryRepo is a simple in-memory reporting repository for tests.

type MemoryRepo struct {
	mu      sync.Mutex
	Entries []dispatch.QueueEntry
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{} }

func (r *MemoryRepo) ListAttempts(ctx context.Context, from, to time.Time) ([]dispatch.QueueEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]dispatch.QueueEntry, 0)
	for _, e := range r.Entries {
		if e.CalledAt == nil {
			continue
		}
		if e.CalledAt.Before(from) || !e.CalledAt.Before(to) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}
