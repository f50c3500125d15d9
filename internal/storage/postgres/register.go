package postgres

import (
	"context"

	"sfextract/internal/storage"
)

// newLedger is a test hook that points to NewLedger by default.
// Tests may replace this variable to avoid real DB connections.
var newLedger = func(ctx context.Context, cfg Config) (storage.Ledger, error) {
	return NewLedger(ctx, cfg)
}

func init() {
	storage.Register("postgres", func(ctx context.Context, cfg storage.Config) (storage.Ledger, error) {
		return newLedger(ctx, Config{DSN: cfg.DSN, Table: cfg.Table})
	})
}
