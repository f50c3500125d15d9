// Package mysql implements a MySQL-backed storage.Ledger using database/sql
// and go-sql-driver/mysql.
package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"

	"sfextract/internal/storage"
)

// Config holds MySQL ledger configuration.
type Config struct {
	DSN   string // e.g. "user:pass@tcp(localhost:3306)/ops"
	Table string
}

// Statements returns the MySQL ledger queries for table.
func Statements(table string) storage.Statements {
	t := myFQN(table)
	return storage.Statements{
		Create: fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n"+
			"\trun_id VARCHAR(64) NOT NULL,\n"+
			"\tjob_id VARCHAR(32) NOT NULL PRIMARY KEY,\n"+
			"\tobject_name VARCHAR(255) NOT NULL,\n"+
			"\tcreated_at CHAR(30) NOT NULL\n"+
			")", t),
		Insert: fmt.Sprintf("INSERT IGNORE INTO %s (run_id, job_id, object_name, created_at) VALUES (?, ?, ?, ?)", t),
		Delete: fmt.Sprintf("DELETE FROM %s WHERE job_id = ?", t),
		List:   fmt.Sprintf("SELECT run_id, job_id, object_name, created_at FROM %s ORDER BY created_at, job_id", t),
	}
}

// NewLedger connects to cfg.DSN and creates the ledger table when missing.
func NewLedger(ctx context.Context, cfg Config) (*storage.SQLLedger, error) {
	if _, err := mysql.ParseDSN(cfg.DSN); err != nil {
		return nil, fmt.Errorf("mysql dsn: %w", err)
	}
	if cfg.Table == "" {
		cfg.Table = storage.DefaultTable
	}
	db, err := sql.Open("mysql", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("sql.Open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	l, err := storage.NewSQLLedger(ctx, db, Statements(cfg.Table))
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("mysql: %w", err)
	}
	return l, nil
}

func myIdent(id string) string { return "`" + strings.ReplaceAll(id, "`", "``") + "`" }

// myFQN quotes "ops.sfplan_jobs" as `ops`.`sfplan_jobs`.
func myFQN(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = myIdent(p)
	}
	return strings.Join(parts, ".")
}
