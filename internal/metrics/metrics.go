// Package metrics provides a small, backend-agnostic abstraction for recording
// operational metrics from the bulk-query planner.
//
// The package is intentionally minimal:
//
//   - It exposes a narrow interface (Backend) focused on counters and timing
//     data (histograms).
//   - It provides a global, pluggable backend that defaults to a no-op
//     implementation, so metrics are always safe to call even when no real
//     backend is configured.
//   - Concrete metric systems (Prometheus Pushgateway, Datadog) live in
//     subpackages so planning code never imports them.
package metrics

import (
	"sync"
	"time"
)

// Labels are string key/value pairs attached to a metric.
type Labels map[string]string

// Metric names emitted by this package.
const (
	StepTotal         = "sfplan_step_total"
	StepDuration      = "sfplan_step_duration_seconds"
	SplitsTotal       = "sfplan_splits_total"
	DescribeCalls     = "sfplan_describe_calls_total"
	DescribedObjects  = "sfplan_described_objects_total"
	RetriesTotal      = "sfplan_retries_total"
	JobsClosedTotal   = "sfplan_jobs_closed_total"
	defaultStepStatus = "success"
)

// Backend is the minimal interface for metrics backends.
type Backend interface {
	// IncCounter increments a counter by delta.
	IncCounter(name string, delta float64, labels Labels)
	// ObserveHistogram records a value in a latency/duration style metric.
	ObserveHistogram(name string, value float64, labels Labels)
	// Flush pushes or flushes metrics, if the backend needs it (e.g. Pushgateway).
	Flush() error
}

// nopBackend is used by default so metrics are optional.
type nopBackend struct{}

func (nopBackend) IncCounter(name string, delta float64, labels Labels)       {}
func (nopBackend) ObserveHistogram(name string, value float64, labels Labels) {}
func (nopBackend) Flush() error                                               { return nil }

var (
	mu      sync.RWMutex
	backend Backend = nopBackend{}
)

// SetBackend installs a concrete backend. Passing nil keeps the existing backend.
func SetBackend(b Backend) {
	if b == nil {
		return
	}
	mu.Lock()
	backend = b
	mu.Unlock()
}

func current() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return backend
}

// Flush delegates to the current backend.
func Flush() error {
	return current().Flush()
}

// RecordStep measures latency and success/failure of one planning step
// (parse, describe, resolve, submit, poll, close).
func RecordStep(step string, err error, d time.Duration) {
	status := defaultStepStatus
	if err != nil {
		status = "failure"
	}
	lbls := Labels{"step": step, "status": status}
	b := current()
	b.IncCounter(StepTotal, 1, lbls)
	b.ObserveHistogram(StepDuration, d.Seconds(), lbls)
}

// RecordSplits counts splits produced by a plan.
func RecordSplits(strategy string, n int) {
	if n <= 0 {
		return
	}
	current().IncCounter(SplitsTotal, float64(n), Labels{"strategy": strategy})
}

// RecordDescribeCall counts one batched describe request covering objects
// objects.
func RecordDescribeCall(objects int) {
	b := current()
	b.IncCounter(DescribeCalls, 1, nil)
	if objects > 0 {
		b.IncCounter(DescribedObjects, float64(objects), nil)
	}
}

// RecordRetry counts one retried remote operation.
func RecordRetry(op string) {
	current().IncCounter(RetriesTotal, 1, Labels{"op": op})
}

// RecordJobClose counts a close attempt by outcome.
func RecordJobClose(err error) {
	status := defaultStepStatus
	if err != nil {
		status = "failure"
	}
	current().IncCounter(JobsClosedTotal, 1, Labels{"status": status})
}
