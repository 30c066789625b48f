package reporting

import (
	"context"
	"errors"
	"sort"
	"time"

	"tiny-resolver/internal/history"
)

const topNamesLimit = 10

var ErrInvalidRequest = errors.New("reporting: invalid request")

// Repository abstracts data access for reporting.
// Implementations must filter by client_id.
type Repository interface {
	ListLookups(ctx context.Context, clientID string, from, to time.Time) ([]history.Lookup, error)
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service { return &Service{repo: repo} }

// DefaultRange is the last 24 hours ending at now.
func DefaultRange(now time.Time) TimeRange {
	return TimeRange{From: now.Add(-24 * time.Hour), To: now}
}

func (s *Service) Summary(ctx context.Context, req SummaryRequest) (Summary, error) {
	if req.ClientID == "" {
		return Summary{}, ErrInvalidRequest
	}
	if req.Range.From.IsZero() || req.Range.To.IsZero() || !req.Range.To.After(req.Range.From) {
		return Summary{}, ErrInvalidRequest
	}
	if s.repo == nil {
		return Summary{}, errors.New("reporting: repository not configured")
	}

	rows, err := s.repo.ListLookups(ctx, req.ClientID, req.Range.From, req.Range.To)
	if err != nil {
		return Summary{}, err
	}

	out := Summary{ClientID: req.ClientID, Range: req.Range, ByStatus: map[string]int{}, TopNames: []NameCount{}}
	for _, st := range history.Statuses {
		out.ByStatus[string(st)] = 0
	}

	var totalMS int64
	names := map[string]int{}
	for _, l := range rows {
		out.TotalLookups++
		out.ByStatus[string(l.Status)]++
		if l.Cached {
			out.CacheHits++
		}
		totalMS += l.DurationMS
		names[l.Name]++
	}
	if out.TotalLookups > 0 {
		out.AverageDurationMS = totalMS / int64(out.TotalLookups)
		out.CacheHitRate = float64(out.CacheHits) / float64(out.TotalLookups)
	}

	for name, n := range names {
		out.TopNames = append(out.TopNames, NameCount{Name: name, Count: n})
	}
	sort.Slice(out.TopNames, func(i, j int) bool {
		if out.TopNames[i].Count != out.TopNames[j].Count {
			return out.TopNames[i].Count > out.TopNames[j].Count
		}
		return out.TopNames[i].Name < out.TopNames[j].Name
	})
	if len(out.TopNames) > topNamesLimit {
		out.TopNames = out.TopNames[:topNamesLimit]
	}
	return out, nil
}
