package audit

import (
	"context"
	"database/sql"
	"time"
)

// Schema is the DDL for audit_events, applied at startup.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS audit_events (
  id         UUID PRIMARY KEY,
  client_id  TEXT NOT NULL,
  role       TEXT NOT NULL DEFAULT '',
  type       TEXT NOT NULL,
  ip_address TEXT NOT NULL DEFAULT '',
  name       TEXT NOT NULL DEFAULT '',
  message    TEXT NOT NULL DEFAULT '',
  metadata   JSONB,
  created_at TIMESTAMPTZ NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS audit_events_created ON audit_events (created_at DESC)`,
}

// PostgresRepo appends events to audit_events.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) Append(ctx context.Context, e Event) error {
	const q = `
INSERT INTO audit_events (
  id, client_id, role, type, ip_address, name, message, metadata, created_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,NULLIF($8, '')::jsonb,$9
)
`
	_, err := r.db.ExecContext(ctx, q,
		e.ID,
		e.ClientID,
		e.Role,
		e.Type,
		e.IPAddress,
		e.Name,
		e.Message,
		e.Metadata,
		e.CreatedAt,
	)
	return err
}

// List returns matching events, newest first.
func (r *PostgresRepo) List(ctx context.Context, f Filter) ([]Event, error) {
	const q = `
SELECT id, client_id, role, type, ip_address, name, message,
       COALESCE(metadata::text, ''), created_at
FROM audit_events
WHERE ($1 = '' OR client_id = $1)
  AND ($2 = '' OR type = $2)
  AND created_at >= $3
ORDER BY created_at DESC
LIMIT $4
`
	since := f.Since
	if since.IsZero() {
		since = time.Unix(0, 0).UTC()
	}
	limit := sql.NullInt64{Int64: int64(f.Limit), Valid: f.Limit > 0}

	rows, err := r.db.QueryContext(ctx, q, f.ClientID, string(f.Type), since, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Event, 0)
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.ClientID, &e.Role, &e.Type, &e.IPAddress, &e.Name, &e.Message, &e.Metadata, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
