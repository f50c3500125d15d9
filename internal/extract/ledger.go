package extract

import (
	"context"
	"errors"
	"log"
	"time"

	"sfextract/internal/jobs"
	"sfextract/internal/storage"
)

// LedgerTracker mirrors a run's job set into a storage.Ledger, so jobs left
// open by a crashed run can be closed later.
type LedgerTracker struct {
	ledger storage.Ledger
	runID  string
	now    func() time.Time
}

var _ jobs.Tracker = (*LedgerTracker)(nil)

// NewLedgerTracker returns a tracker that records jobs under runID.
func NewLedgerTracker(l storage.Ledger, runID string) *LedgerTracker {
	return &LedgerTracker{ledger: l, runID: runID, now: time.Now}
}

func (t *LedgerTracker) Track(ctx context.Context, jobID, object string) error {
	return t.ledger.Insert(ctx, storage.Entry{RunID: t.runID, JobID: jobID, Object: object, CreatedAt: t.now()})
}

func (t *LedgerTracker) Untrack(ctx context.Context, jobID string) error {
	return t.ledger.Delete(ctx, jobID)
}

// CloseLeaked closes every job recorded in l and removes the ones that
// closed. Each failure is a *jobs.JobCloseError; all are joined. It returns
// how many jobs were closed.
func CloseLeaked(ctx context.Context, l storage.Ledger, c jobs.Closer, logger *log.Logger) (int, error) {
	if logger == nil {
		logger = log.Default()
	}
	entries, err := l.List(ctx)
	if err != nil {
		return 0, err
	}
	closed := 0
	var errs []error
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := c.CloseJob(ctx, e.JobID); err != nil {
			errs = append(errs, &jobs.JobCloseError{JobID: e.JobID, Object: e.Object, Err: err})
			continue
		}
		if err := l.Delete(ctx, e.JobID); err != nil {
			errs = append(errs, err)
			continue
		}
		closed++
		logger.Printf("extract: closed leaked job %s (%s) from run %s", e.JobID, e.Object, e.RunID)
	}
	return closed, errors.Join(errs...)
}
