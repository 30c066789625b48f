package reporting

import (
	"context"
	"errors"
	"sync"
	"time"

	"tiny-resolver/internal/history"
)

// MemoryRepo is a simple in-memory reporting repository for tests.
// It enforces client isolation on reads.
type MemoryRepo struct {
	mu      sync.Mutex
	Lookups []history.Lookup
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{} }

func (r *MemoryRepo) ListLookups(ctx context.Context, clientID string, from, to time.Time) ([]history.Lookup, error) {
	if clientID == "" {
		return nil, errors.New("client_id required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]history.Lookup, 0)
	for _, l := range r.Lookups {
		if l.ClientID != clientID {
			continue
		}
		if !l.CreatedAt.IsZero() {
			if l.CreatedAt.Before(from) || !l.CreatedAt.Before(to) {
				continue
			}
		}
		out = append(out, l)
	}
	return out, nil
}

// historyRepo reads lookups straight from the history log.
type historyRepo struct {
	repo history.Repository
}

// FromHistory adapts a history repository for reporting.
func FromHistory(repo history.Repository) Repository { return historyRepo{repo: repo} }

func (h historyRepo) ListLookups(ctx context.Context, clientID string, from, to time.Time) ([]history.Lookup, error) {
	return h.repo.List(ctx, clientID, from, to, 0)
}
