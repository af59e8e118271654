package audit

import (
	"context"
	"sync"
)

// MemoryRepo keeps the dispatch trail in process memory. Tests use it in
// place of the dispatch_events table; it honors the same append-only
// contract, so history cannot be rewritten through it either.
type MemoryRepo struct {
	mu    sync.Mutex
	trail []Event
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{} }

func (r *MemoryRepo) Append(ctx context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.trail = append(r.trail, e)
	return nil
}

// Events returns a snapshot of the recorded trail in append order.
func (r *MemoryRepo) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.trail))
	copy(out, r.trail)
	return out
}
