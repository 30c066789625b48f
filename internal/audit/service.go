package audit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for audit events.
// It is append-only; List never mutates.
type Repository interface {
	Append(ctx context.Context, e Event) error
	List(ctx context.Context, f Filter) ([]Event, error)
}

const (
	DefaultListLimit = 100
	MaxListLimit     = 1000
)

// Service logs internal audit information. Callers treat it as best-effort.
type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.ClientID == "" {
		return ErrInvalidEvent
	}
	if e.Type == "" {
		return ErrInvalidEvent
	}

	now := s.clock().UTC()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	return s.repo.Append(ctx, e)
}

// LogCachePurge records an operator purging cached answers.
func (s *Service) LogCachePurge(ctx context.Context, clientID, role, ip, name, recordType string, deleted int64) error {
	return s.Append(ctx, Event{
		ClientID:  clientID,
		Role:      role,
		Type:      EventTypeCachePurge,
		IPAddress: ip,
		Name:      name,
		Message:   "cache purged",
		Metadata:  metadataJSON(map[string]any{"type": recordType, "deleted": deleted}),
	})
}

// LogTokenIssued records an admin minting a token pair for a client.
func (s *Service) LogTokenIssued(ctx context.Context, adminID, adminRole, ip, subjectID, subjectRole string) error {
	return s.Append(ctx, Event{
		ClientID:  adminID,
		Role:      adminRole,
		Type:      EventTypeTokenIssued,
		IPAddress: ip,
		Message:   "token issued",
		Metadata:  metadataJSON(map[string]any{"subject": subjectID, "subject_role": subjectRole}),
	})
}

// List returns events matching f, newest first, with the limit clamped to
// 1..MaxListLimit.
func (s *Service) List(ctx context.Context, f Filter) ([]Event, error) {
	if s.repo == nil {
		return nil, errors.New("audit: repository not configured")
	}
	switch {
	case f.Limit <= 0:
		f.Limit = DefaultListLimit
	case f.Limit > MaxListLimit:
		f.Limit = MaxListLimit
	}
	return s.repo.List(ctx, f)
}
