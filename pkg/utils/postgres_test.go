package utils

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"tiny-resolver/pkg/logger"

	"github.com/jackc/pgx/v5"
)

func TestPostgresPoolConfig_Defaults(t *testing.T) {
	c := PostgresPoolConfig{}.withDefaults()
	if c.MaxOpenConns != 25 || c.MaxIdleConns != 25 {
		t.Fatalf("unexpected pool sizes: %+v", c)
	}
	if c.ConnMaxLifetime != 30*time.Minute || c.PingTimeout != 5*time.Second {
		t.Fatalf("unexpected durations: %+v", c)
	}
	if c.ApplicationName != "tiny-resolver" {
		t.Fatalf("unexpected application name %q", c.ApplicationName)
	}

	c = PostgresPoolConfig{MaxOpenConns: 3}.withDefaults()
	if c.MaxOpenConns != 3 || c.MaxIdleConns != 3 {
		t.Fatalf("expected idle to follow open, got %+v", c)
	}
}

func TestPostgresConfig_ParsesDSN(t *testing.T) {
	pool := PostgresPoolConfig{}.withDefaults()
	cc, err := postgresConfig("host=db port=5433 user=u password=p dbname=resolver sslmode=disable", pool)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cc.Host != "db" || cc.Port != 5433 || cc.Database != "resolver" {
		t.Fatalf("unexpected config: host=%s port=%d db=%s", cc.Host, cc.Port, cc.Database)
	}
	if cc.RuntimeParams["application_name"] != "tiny-resolver" {
		t.Fatalf("expected application_name, got %v", cc.RuntimeParams)
	}
	if cc.Tracer == nil {
		t.Fatalf("expected tracer")
	}

	cc, err = postgresConfig("postgres://u:p@db/resolver?application_name=custom", pool)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	if cc.RuntimeParams["application_name"] != "custom" {
		t.Fatalf("expected dsn application_name kept, got %v", cc.RuntimeParams)
	}

	if _, err := postgresConfig("postgres://u:p@db:notaport/resolver", pool); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestQueryTracer_LogsSlowAndFailed(t *testing.T) {
	var buf bytes.Buffer
	ctx := logger.With(context.Background(), slog.New(slog.NewTextHandler(&buf, nil)))

	now := time.Unix(1700000000, 0)
	tr := &queryTracer{slow: 100 * time.Millisecond, now: func() time.Time { return now }}

	qctx := tr.TraceQueryStart(ctx, nil, pgx.TraceQueryStartData{SQL: "SELECT 1"})
	now = now.Add(10 * time.Millisecond)
	tr.TraceQueryEnd(qctx, nil, pgx.TraceQueryEndData{})
	if buf.Len() != 0 {
		t.Fatalf("expected fast query to be quiet, got %s", buf.String())
	}

	qctx = tr.TraceQueryStart(ctx, nil, pgx.TraceQueryStartData{SQL: "SELECT 1"})
	now = now.Add(time.Second)
	tr.TraceQueryEnd(qctx, nil, pgx.TraceQueryEndData{})
	if !strings.Contains(buf.String(), "postgres query slow") {
		t.Fatalf("expected slow query log, got %s", buf.String())
	}

	buf.Reset()
	qctx = tr.TraceQueryStart(ctx, nil, pgx.TraceQueryStartData{SQL: "SELECT 1"})
	tr.TraceQueryEnd(qctx, nil, pgx.TraceQueryEndData{Err: errors.New("boom")})
	if !strings.Contains(buf.String(), "postgres query failed") || !strings.Contains(buf.String(), "boom") {
		t.Fatalf("expected failure log, got %s", buf.String())
	}
}
