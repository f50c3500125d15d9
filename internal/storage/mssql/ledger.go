// Package mssql implements a Microsoft SQL Server storage.Ledger using
// database/sql and the go-mssqldb driver.
package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/microsoft/go-mssqldb"
	"github.com/microsoft/go-mssqldb/msdsn"

	"sfextract/internal/storage"
)

// Config holds MSSQL ledger configuration.
type Config struct {
	DSN   string
	Table string // optionally schema-qualified, e.g. "dbo.sfplan_jobs"
}

// Statements returns the SQL Server ledger queries for table.
func Statements(table string) storage.Statements {
	t := msFQN(table)
	return storage.Statements{
		Create: fmt.Sprintf(`IF OBJECT_ID(N'%s', N'U') IS NULL
CREATE TABLE %s (
	run_id NVARCHAR(64) NOT NULL,
	job_id NVARCHAR(32) NOT NULL PRIMARY KEY,
	object_name NVARCHAR(255) NOT NULL,
	created_at VARCHAR(32) NOT NULL
)`, strings.ReplaceAll(t, "'", "''"), t),
		Insert: fmt.Sprintf(`IF NOT EXISTS (SELECT 1 FROM %[1]s WHERE job_id = @p2)
INSERT INTO %[1]s (run_id, job_id, object_name, created_at) VALUES (@p1, @p2, @p3, @p4)`, t),
		Delete: fmt.Sprintf(`DELETE FROM %s WHERE job_id = @p1`, t),
		List:   fmt.Sprintf(`SELECT run_id, job_id, object_name, created_at FROM %s ORDER BY created_at, job_id`, t),
	}
}

// NewLedger connects to cfg.DSN and creates the ledger table when missing.
func NewLedger(ctx context.Context, cfg Config) (*storage.SQLLedger, error) {
	// Validate DSN early to fail fast on obvious mistakes.
	if _, err := msdsn.Parse(cfg.DSN); err != nil {
		return nil, fmt.Errorf("mssql dsn: %w", err)
	}
	if cfg.Table == "" {
		cfg.Table = storage.DefaultTable
	}
	db, err := sql.Open("sqlserver", cfg.DSN)
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
		return nil, fmt.Errorf("mssql: %w", err)
	}
	return l, nil
}

func msIdent(id string) string { return "[" + strings.ReplaceAll(id, "]", "]]") + "]" }

// msFQN quotes "dbo.sfplan_jobs" as [dbo].[sfplan_jobs].
func msFQN(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = msIdent(p)
	}
	return strings.Join(parts, ".")
}
