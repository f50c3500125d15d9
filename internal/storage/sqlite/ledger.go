// Package sqlite implements a SQLite-backed storage.Ledger using
// database/sql and the pure-Go modernc driver.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"sfextract/internal/storage"

	_ "modernc.org/sqlite"
)

// Config holds SQLite ledger configuration derived from storage.Config.
type Config struct {
	// DSN is a SQLite connection string or file path, e.g.:
	//   "file:sfplan.db?_pragma=busy_timeout(5000)"
	//   ":memory:"
	DSN   string
	Table string
}

// Statements returns the SQLite ledger queries for table.
func Statements(table string) storage.Statements {
	t := sqliteFQN(table)
	return storage.Statements{
		Create: fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	run_id TEXT NOT NULL,
	job_id TEXT NOT NULL PRIMARY KEY,
	object_name TEXT NOT NULL,
	created_at TEXT NOT NULL
)`, t),
		Insert: fmt.Sprintf(`INSERT OR IGNORE INTO %s (run_id, job_id, object_name, created_at) VALUES (?, ?, ?, ?)`, t),
		Delete: fmt.Sprintf(`DELETE FROM %s WHERE job_id = ?`, t),
		List:   fmt.Sprintf(`SELECT run_id, job_id, object_name, created_at FROM %s ORDER BY created_at, job_id`, t),
	}
}

// NewLedger opens the database at cfg.DSN and creates the ledger table when
// missing.
func NewLedger(ctx context.Context, cfg Config) (*storage.SQLLedger, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("sqlite: DSN must not be empty")
	}
	if cfg.Table == "" {
		cfg.Table = storage.DefaultTable
	}
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	// One connection: every connection to ":memory:" is its own database,
	// and SQLite serializes writers anyway.
	db.SetMaxOpenConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: ping: %w", err)
	}

	l, err := storage.NewSQLLedger(ctx, db, Statements(cfg.Table))
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: %w", err)
	}
	return l, nil
}

func sqliteIdent(id string) string { return `"` + strings.ReplaceAll(id, `"`, `""`) + `"` }

// sqliteFQN quotes "main.sfplan_jobs" as "main"."sfplan_jobs".
func sqliteFQN(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = sqliteIdent(p)
	}
	return strings.Join(parts, ".")
}
