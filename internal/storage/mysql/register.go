package mysql

import (
	"context"

	"sfextract/internal/storage"
)

// newLedger is a test hook that points to NewLedger by default.
var newLedger = func(ctx context.Context, cfg Config) (storage.Ledger, error) {
	l, err := NewLedger(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return l, nil
}

func init() {
	storage.Register("mysql", func(ctx context.Context, cfg storage.Config) (storage.Ledger, error) {
		return newLedger(ctx, Config{DSN: cfg.DSN, Table: cfg.Table})
	})
}
