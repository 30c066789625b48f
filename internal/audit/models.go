package audit

import "time"

// Event is an immutable, append-only audit log record.
//
// Invariants:
// - Events are never updated or deleted.
// - client_id is the actor and is required.
// - ip capture is best-effort; do not block operator actions on audit failures.
type Event struct {
	ID       string `json:"id" db:"id"`
	ClientID string `json:"client_id" db:"client_id"`
	// Role is the actor's role at the time of the event.
	Role string `json:"role,omitempty" db:"role"`

	Type EventType `json:"type" db:"type"`

	IPAddress string `json:"ip_address,omitempty" db:"ip_address"`

	// Name is the DNS name the event concerns, if any.
	Name string `json:"name,omitempty" db:"name"`

	// Message is a short human-readable description for internal ops.
	Message string `json:"message,omitempty" db:"message"`

	// Metadata is optional JSON for full details.
	Metadata string `json:"metadata,omitempty" db:"metadata"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EventType string

const (
	EventTypeCachePurge  EventType = "cache_purge"
	EventTypeTokenIssued EventType = "token_issued"
)

// Filter narrows an event listing. Zero fields match everything.
type Filter struct {
	ClientID string
	Type     EventType
	Since    time.Time
	// Limit caps the result; the service clamps it.
	Limit int
}

func (f Filter) matches(e Event) bool {
	if f.ClientID != "" && e.ClientID != f.ClientID {
		return false
	}
	if f.Type != "" && e.Type != f.Type {
		return false
	}
	return f.Since.IsZero() || !e.CreatedAt.Before(f.Since)
}
