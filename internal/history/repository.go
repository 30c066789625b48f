package history

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"tiny-resolver/pkg/utils"
)

// Repository persists lookups.
//
// Implementations must filter every read by client_id. limit <= 0 means no
// limit; results are newest first.
type Repository interface {
	Append(ctx context.Context, l Lookup) error
	List(ctx context.Context, clientID string, from, to time.Time, limit int) ([]Lookup, error)
}

// Schema is the DDL for lookups, applied at startup.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS lookups (
  id          UUID PRIMARY KEY,
  client_id   TEXT NOT NULL,
  name        TEXT NOT NULL,
  type        TEXT NOT NULL,
  status      TEXT NOT NULL,
  rcode       TEXT NOT NULL DEFAULT '',
  error       TEXT NOT NULL DEFAULT '',
  servers     TEXT NOT NULL DEFAULT '',
  cached      BOOLEAN NOT NULL,
  duration_ms BIGINT NOT NULL,
  created_at  TIMESTAMPTZ NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS lookups_client_created ON lookups (client_id, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS lookup_answers (
  lookup_id UUID NOT NULL REFERENCES lookups (id),
  position  INT NOT NULL,
  value     TEXT NOT NULL,
  PRIMARY KEY (lookup_id, position)
)`,
}

// PostgresRepo stores lookups in Postgres. See Schema.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) Append(ctx context.Context, l Lookup) error {
	return utils.WithTx(ctx, r.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		if err := insertLookup(ctx, tx, l); err != nil {
			return err
		}
		for i, a := range l.Answers {
			if err := insertAnswer(ctx, tx, l.ID, i, a); err != nil {
				return err
			}
		}
		return nil
	})
}

func insertLookup(ctx context.Context, tx *sql.Tx, l Lookup) error {
	const q = `
INSERT INTO lookups (
  id, client_id, name, type, status, rcode, error, servers, cached, duration_ms, created_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11
)
`
	_, err := tx.ExecContext(ctx, q,
		l.ID,
		l.ClientID,
		l.Name,
		l.Type,
		l.Status,
		l.RCode,
		l.Error,
		strings.Join(l.Servers, ","),
		l.Cached,
		l.DurationMS,
		l.CreatedAt,
	)
	return err
}

func insertAnswer(ctx context.Context, tx *sql.Tx, lookupID string, position int, value string) error {
	const q = `
INSERT INTO lookup_answers (lookup_id, position, value)
VALUES ($1,$2,$3)
`
	_, err := tx.ExecContext(ctx, q, lookupID, position, value)
	return err
}

func (r *PostgresRepo) List(ctx context.Context, clientID string, from, to time.Time, limit int) ([]Lookup, error) {
	// answers are folded with a newline separator; record strings never contain one
	const q = `
SELECT l.id, l.client_id, l.name, l.type, l.status, l.rcode, l.error, l.servers,
       l.cached, l.duration_ms, l.created_at,
       COALESCE(string_agg(a.value, E'\n' ORDER BY a.position), '')
FROM lookups l
LEFT JOIN lookup_answers a ON a.lookup_id = l.id
WHERE l.client_id = $1 AND l.created_at >= $2 AND l.created_at < $3
GROUP BY l.id
ORDER BY l.created_at DESC
LIMIT $4
`
	var lim sql.NullInt64
	if limit > 0 {
		lim = sql.NullInt64{Int64: int64(limit), Valid: true}
	}

	rows, err := r.db.QueryContext(ctx, q, clientID, from, to, lim)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Lookup, 0)
	for rows.Next() {
		var (
			l       Lookup
			servers string
			answers string
		)
		if err := rows.Scan(
			&l.ID,
			&l.ClientID,
			&l.Name,
			&l.Type,
			&l.Status,
			&l.RCode,
			&l.Error,
			&servers,
			&l.Cached,
			&l.DurationMS,
			&l.CreatedAt,
			&answers,
		); err != nil {
			return nil, err
		}
		l.Servers = splitNonEmpty(servers, ",")
		l.Answers = splitNonEmpty(answers, "\n")
		out = append(out, l)
	}
	return out, rows.Err()
}

func splitNonEmpty(s, sep string) []string {
	if s == "" {
		return []string{}
	}
	return strings.Split(s, sep)
}
