// Package postgres implements a Postgres-backed storage.Ledger using a pgx v5
// connection pool.
package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"sfextract/internal/storage"
)

// Config holds Postgres ledger configuration.
type Config struct {
	DSN   string // connection string for pgxpool
	Table string // optionally schema-qualified, e.g. "ops.sfplan_jobs"
}

// Ledger is a Postgres-backed storage.Ledger.
type Ledger struct {
	pool  *pgxpool.Pool
	stmts storage.Statements
}

var _ storage.Ledger = (*Ledger)(nil)

// Statements returns the Postgres ledger queries for table.
func Statements(table string) storage.Statements {
	t := pgFQN(table)
	return storage.Statements{
		Create: fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	run_id TEXT NOT NULL,
	job_id TEXT NOT NULL PRIMARY KEY,
	object_name TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
)`, t),
		Insert: fmt.Sprintf(`INSERT INTO %s (run_id, job_id, object_name, created_at) VALUES ($1, $2, $3, $4) ON CONFLICT (job_id) DO NOTHING`, t),
		Delete: fmt.Sprintf(`DELETE FROM %s WHERE job_id = $1`, t),
		List:   fmt.Sprintf(`SELECT run_id, job_id, object_name, created_at FROM %s ORDER BY created_at, job_id`, t),
	}
}

// NewLedger connects to cfg.DSN and creates the ledger table when missing.
func NewLedger(ctx context.Context, cfg Config) (*Ledger, error) {
	if cfg.Table == "" {
		cfg.Table = storage.DefaultTable
	}
	pcfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("pgxpool: %w", err)
	}
	l := &Ledger{pool: pool, stmts: Statements(cfg.Table)}
	if _, err := pool.Exec(ctx, l.stmts.Create); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: create ledger table: %w", err)
	}
	return l, nil
}

func (l *Ledger) Insert(ctx context.Context, e storage.Entry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	if _, err := l.pool.Exec(ctx, l.stmts.Insert, e.RunID, e.JobID, e.Object, e.CreatedAt.UTC()); err != nil {
		return fmt.Errorf("postgres: ledger insert %s: %w", e.JobID, err)
	}
	return nil
}

func (l *Ledger) Delete(ctx context.Context, jobID string) error {
	if _, err := l.pool.Exec(ctx, l.stmts.Delete, jobID); err != nil {
		return fmt.Errorf("postgres: ledger delete %s: %w", jobID, err)
	}
	return nil
}

func (l *Ledger) List(ctx context.Context) ([]storage.Entry, error) {
	rows, err := l.pool.Query(ctx, l.stmts.List)
	if err != nil {
		return nil, fmt.Errorf("postgres: ledger list: %w", err)
	}
	defer rows.Close()

	var out []storage.Entry
	for rows.Next() {
		var e storage.Entry
		if err := rows.Scan(&e.RunID, &e.JobID, &e.Object, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: ledger scan: %w", err)
		}
		e.CreatedAt = e.CreatedAt.UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

func (l *Ledger) Close() { l.pool.Close() }

func pgIdent(id string) string { return `"` + strings.ReplaceAll(id, `"`, `""`) + `"` }

// pgFQN quotes a possibly schema-qualified name like "ops.sfplan_jobs" to
// "ops"."sfplan_jobs".
func pgFQN(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = pgIdent(p)
	}
	return strings.Join(parts, ".")
}
