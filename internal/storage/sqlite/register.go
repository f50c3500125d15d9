package sqlite

import (
	"context"

	"sfextract/internal/storage"
)

// newLedger is a test hook that points to NewLedger by default.
var newLedger = NewLedger

func init() {
	storage.Register("sqlite", func(ctx context.Context, cfg storage.Config) (storage.Ledger, error) {
		l, err := newLedger(ctx, Config{DSN: cfg.DSN, Table: cfg.Table})
		if err != nil {
			return nil, err
		}
		return l, nil
	})
}
