package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// TimeLayout is the fixed-width UTC text form of created_at used by the
// database/sql backends; it sorts chronologically as a string.
const TimeLayout = "2006-01-02T15:04:05.000000000Z"

// Statements are the dialect-specific queries of a SQLLedger. Insert takes
// run_id, job_id, object_name, created_at in that order; Delete takes job_id.
type Statements struct {
	Create string
	Insert string
	Delete string
	List   string
}

// SQLLedger implements Ledger over database/sql.
type SQLLedger struct {
	db    *sql.DB
	stmts Statements
}

// NewSQLLedger creates the ledger table when missing and returns a Ledger
// that owns db.
func NewSQLLedger(ctx context.Context, db *sql.DB, stmts Statements) (*SQLLedger, error) {
	if _, err := db.ExecContext(ctx, stmts.Create); err != nil {
		return nil, fmt.Errorf("create ledger table: %w", err)
	}
	return &SQLLedger{db: db, stmts: stmts}, nil
}

func (l *SQLLedger) Insert(ctx context.Context, e Entry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	_, err := l.db.ExecContext(ctx, l.stmts.Insert, e.RunID, e.JobID, e.Object, e.CreatedAt.UTC().Format(TimeLayout))
	if err != nil {
		return fmt.Errorf("ledger insert %s: %w", e.JobID, err)
	}
	return nil
}

func (l *SQLLedger) Delete(ctx context.Context, jobID string) error {
	if _, err := l.db.ExecContext(ctx, l.stmts.Delete, jobID); err != nil {
		return fmt.Errorf("ledger delete %s: %w", jobID, err)
	}
	return nil
}

func (l *SQLLedger) List(ctx context.Context) ([]Entry, error) {
	rows, err := l.db.QueryContext(ctx, l.stmts.List)
	if err != nil {
		return nil, fmt.Errorf("ledger list: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e       Entry
			created string
		)
		if err := rows.Scan(&e.RunID, &e.JobID, &e.Object, &created); err != nil {
			return nil, fmt.Errorf("ledger scan: %w", err)
		}
		if e.CreatedAt, err = time.Parse(TimeLayout, created); err != nil {
			return nil, fmt.Errorf("ledger created_at %q: %w", created, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (l *SQLLedger) Close() { _ = l.db.Close() }
