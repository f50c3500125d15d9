// Package jobs tracks the remote bulk jobs created during one run and closes
// each of them exactly once when the run ends.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"sfextract/internal/metrics"
)

// ErrDrained is returned by Register once CloseAll has run.
var ErrDrained = errors.New("jobs: job set already closed")

// Closer closes a remote bulk job.
type Closer interface {
	CloseJob(ctx context.Context, jobID string) error
}

// Tracker mirrors the job set somewhere durable so jobs leaked by a crashed
// run can be found later. Tracker failures are logged, never fatal.
type Tracker interface {
	Track(ctx context.Context, jobID, object string) error
	Untrack(ctx context.Context, jobID string) error
}

// JobCloseError reports one job that could not be closed.
type JobCloseError struct {
	JobID  string
	Object string
	Err    error
}

func (e *JobCloseError) Error() string {
	if e.Object != "" {
		return fmt.Sprintf("jobs: close job %s (%s): %v", e.JobID, e.Object, e.Err)
	}
	return fmt.Sprintf("jobs: close job %s: %v", e.JobID, e.Err)
}

func (e *JobCloseError) Unwrap() error { return e.Err }

// CloseErrors extracts every JobCloseError from an error returned by
// CloseAll.
func CloseErrors(err error) []*JobCloseError {
	if err == nil {
		return nil
	}
	var out []*JobCloseError
	var walk func(error)
	walk = func(err error) {
		if ce, ok := err.(*JobCloseError); ok {
			out = append(out, ce)
			return
		}
		switch u := err.(type) {
		case interface{ Unwrap() []error }:
			for _, e := range u.Unwrap() {
				walk(e)
			}
		case interface{ Unwrap() error }:
			if e := u.Unwrap(); e != nil {
				walk(e)
			}
		}
	}
	walk(err)
	return out
}

// Set is the run-scoped set of job ids. It is safe for concurrent use.
type Set struct {
	mu      sync.Mutex
	ids     []string
	objects map[string]string
	drained bool
	once    sync.Once
	result  error

	tracker Tracker
	logger  *log.Logger
}

// Option configures a Set.
type Option func(*Set)

// WithTracker mirrors registrations into t.
func WithTracker(t Tracker) Option {
	return func(s *Set) { s.tracker = t }
}

// WithLogger sets the logger used for close failures.
func WithLogger(l *log.Logger) Option {
	return func(s *Set) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewSet returns an empty job set.
func NewSet(opts ...Option) *Set {
	s := &Set{objects: make(map[string]string), logger: log.Default()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Register adds jobID to the set. Registering an id twice is a no-op.
func (s *Set) Register(ctx context.Context, jobID, object string) error {
	s.mu.Lock()
	if s.drained {
		s.mu.Unlock()
		return fmt.Errorf("%w: cannot register %s", ErrDrained, jobID)
	}
	if _, ok := s.objects[jobID]; ok {
		s.mu.Unlock()
		return nil
	}
	s.ids = append(s.ids, jobID)
	s.objects[jobID] = object
	s.mu.Unlock()

	if s.tracker != nil {
		if err := s.tracker.Track(ctx, jobID, object); err != nil {
			s.logger.Printf("jobs: track %s: %v", jobID, err)
		}
	}
	return nil
}

// IDs returns the registered ids in registration order.
func (s *Set) IDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.ids...)
}

// Len returns the number of registered jobs.
func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ids)
}

// CloseAll closes every registered job once. A failure to close one job does
// not stop the others; failures come back as JobCloseErrors joined with
// errors.Join. Later calls return the first call's result without contacting
// the remote service again.
//
// Cancellation of ctx does not stop closing: the jobs must not leak when the
// run was aborted.
func (s *Set) CloseAll(ctx context.Context, c Closer) error {
	s.once.Do(func() {
		s.mu.Lock()
		s.drained = true
		ids := append([]string(nil), s.ids...)
		s.mu.Unlock()

		ctx := context.WithoutCancel(ctx)
		start := time.Now()
		var errs []error
		for _, id := range ids {
			err := c.CloseJob(ctx, id)
			metrics.RecordJobClose(err)
			if err != nil {
				ce := &JobCloseError{JobID: id, Object: s.objects[id], Err: err}
				s.logger.Printf("%v", ce)
				errs = append(errs, ce)
				continue
			}
			if s.tracker != nil {
				if err := s.tracker.Untrack(ctx, id); err != nil {
					s.logger.Printf("jobs: untrack %s: %v", id, err)
				}
			}
		}
		s.result = errors.Join(errs...)
		metrics.RecordStep("close", s.result, time.Since(start))
		if len(ids) > 0 {
			s.logger.Printf("jobs: closed %d/%d jobs", len(ids)-len(errs), len(ids))
		}
	})
	return s.result
}
