// Package storage is a backend-agnostic job ledger: a durable mirror of the
// bulk jobs a run created, so jobs leaked by a crashed run can be found and
// closed later.
//
// Concrete backends (sqlite, postgres, mssql, mysql) register a Factory from
// their init functions; import storage/all to enable every backend.
package storage

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"sync"
	"time"
)

// DefaultTable is the ledger table used when Config.Table is empty.
const DefaultTable = "sfplan_jobs"

// Entry is one ledger row.
type Entry struct {
	RunID     string
	JobID     string
	Object    string
	CreatedAt time.Time
}

// Ledger persists job ids between runs.
type Ledger interface {
	// Insert records e. Inserting a job id that is already present is a no-op.
	Insert(ctx context.Context, e Entry) error
	// Delete removes jobID. Deleting an absent id is a no-op.
	Delete(ctx context.Context, jobID string) error
	// List returns all entries, oldest first.
	List(ctx context.Context) ([]Entry, error)
	Close()
}

// Config selects and configures a backend.
type Config struct {
	Kind  string // "sqlite", "postgres", "mssql", "mysql"
	DSN   string
	Table string // optionally schema-qualified, e.g. "ops.sfplan_jobs"
}

// Factory opens a Ledger for cfg. The ledger table is created when missing.
type Factory func(ctx context.Context, cfg Config) (Ledger, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// Register registers (or replaces) the factory for kind. Backends call it
// from init.
func Register(kind string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	factories[kind] = f
}

// ListKinds returns the registered kinds, sorted.
func ListKinds() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// New opens the ledger for cfg.Kind.
func New(ctx context.Context, cfg Config) (Ledger, error) {
	mu.RLock()
	f, ok := factories[cfg.Kind]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unsupported storage.kind=%s", cfg.Kind)
	}
	if cfg.Table == "" {
		cfg.Table = DefaultTable
	}
	if err := ValidateTable(cfg.Table); err != nil {
		return nil, err
	}
	return f(ctx, cfg)
}

var tableRE = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// ValidateTable rejects table names that are not plain, optionally
// schema-qualified identifiers. Backends interpolate the name into SQL.
func ValidateTable(table string) error {
	if !tableRE.MatchString(table) {
		return fmt.Errorf("storage: invalid table name %q", table)
	}
	return nil
}
