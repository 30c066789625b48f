package history

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// MemoryRepo is an in-memory lookup log for tests and local runs.
// It enforces client isolation on reads.
type MemoryRepo struct {
	mu      sync.Mutex
	lookups []Lookup
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{} }

func (r *MemoryRepo) Append(ctx context.Context, l Lookup) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lookups = append(r.lookups, l)
	return nil
}

func (r *MemoryRepo) List(ctx context.Context, clientID string, from, to time.Time, limit int) ([]Lookup, error) {
	if clientID == "" {
		return nil, errors.New("client_id required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Lookup, 0)
	for _, l := range r.lookups {
		if l.ClientID != clientID {
			continue
		}
		if l.CreatedAt.Before(from) || !l.CreatedAt.Before(to) {
			continue
		}
		out = append(out, l)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
