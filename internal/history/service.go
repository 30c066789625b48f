package history

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"tiny-resolver/internal/dns"
	"tiny-resolver/internal/resolver"
)

const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

var ErrInvalidArgument = errors.New("history: invalid argument")

// Service records and lists lookups.
//
// Recording is best-effort from the caller's point of view: a failed write
// must not fail the resolution it describes.
type Service struct {
	repo Repository
	// clock is injectable for deterministic tests.
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

// NewLookup describes the outcome of one resolver call.
func NewLookup(clientID, name string, t dns.RecordType, resp *resolver.Response, err error) Lookup {
	l := Lookup{ClientID: clientID, Name: name, Type: t.String(), Answers: []string{}}
	if resp != nil {
		for _, rr := range resp.Answers() {
			l.Answers = append(l.Answers, rr.Data.String())
		}
		for _, s := range resp.Servers {
			l.Servers = append(l.Servers, s.String())
		}
		l.Cached = resp.Cached
		l.DurationMS = resp.Duration.Milliseconds()
	}
	l.Status, l.RCode = StatusFromError(err, len(l.Answers))
	if err != nil {
		l.Error = err.Error()
	}
	return l
}

func (s *Service) Record(ctx context.Context, l Lookup) (Lookup, error) {
	if s.repo == nil {
		return Lookup{}, errors.New("history: repository not configured")
	}
	if l.ClientID == "" || l.Name == "" {
		return Lookup{}, ErrInvalidArgument
	}
	if l.Status == "" {
		l.Status = StatusError
	}
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = s.clock().UTC()
	}
	if l.Answers == nil {
		l.Answers = []string{}
	}
	if err := s.repo.Append(ctx, l); err != nil {
		return Lookup{}, err
	}
	return l, nil
}

// List returns the client's lookups in [from, to), newest first. A zero to
// means now; a zero from means 24 hours before to.
func (s *Service) List(ctx context.Context, clientID string, from, to time.Time, limit int) ([]Lookup, error) {
	if clientID == "" {
		return nil, ErrInvalidArgument
	}
	if s.repo == nil {
		return nil, errors.New("history: repository not configured")
	}
	if to.IsZero() {
		to = s.clock().UTC()
	}
	if from.IsZero() {
		from = to.Add(-24 * time.Hour)
	}
	if !to.After(from) {
		return nil, ErrInvalidArgument
	}
	return s.repo.List(ctx, clientID, from, to, clampLimit(limit))
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultListLimit
	case limit > MaxListLimit:
		return MaxListLimit
	default:
		return limit
	}
}
