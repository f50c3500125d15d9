// Package prompush implements a Prometheus Pushgateway backend for the
// metrics package.
//
// A planning run is a short-lived batch process, so instead of exposing a
// scrape endpoint the collected series are pushed to a Pushgateway when the
// run flushes metrics. All Prometheus-specific dependencies stay in this
// package.
package prompush

import (
	"fmt"

	"sfextract/internal/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Backend is a Prometheus Pushgateway metrics backend.
type Backend struct {
	gatewayURL string // e.g. http://pushgateway:9091
	jobName    string // Pushgateway "job" group
	reg        *prometheus.Registry

	stepCounter  *prometheus.CounterVec // sfplan_step_total
	stepDuration *prometheus.SummaryVec // sfplan_step_duration_seconds

	splitCounter    *prometheus.CounterVec // sfplan_splits_total
	describeCalls   prometheus.Counter     // sfplan_describe_calls_total
	describedObjs   prometheus.Counter     // sfplan_described_objects_total
	retryCounter    *prometheus.CounterVec // sfplan_retries_total
	jobCloseCounter *prometheus.CounterVec // sfplan_jobs_closed_total
}

// NewBackend constructs a Prometheus Pushgateway backend.
// jobName: the Pushgateway "job" name.
// gatewayURL: base URL of the Pushgateway server.
func NewBackend(jobName, gatewayURL string) (*Backend, error) {
	if gatewayURL == "" {
		return nil, fmt.Errorf("prompush: gateway URL is required")
	}
	if jobName == "" {
		jobName = "sfplan"
	}

	b := &Backend{
		gatewayURL: gatewayURL,
		jobName:    jobName,
		reg:        prometheus.NewRegistry(),
		stepCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metrics.StepTotal,
				Help: "Total number of planning step executions, partitioned by step and status.",
			},
			[]string{"step", "status"},
		),
		stepDuration: prometheus.NewSummaryVec(
			prometheus.SummaryOpts{
				Name:       metrics.StepDuration,
				Help:       "Duration of planning steps in seconds, partitioned by step and status.",
				Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
			},
			[]string{"step", "status"},
		),
		splitCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metrics.SplitsTotal,
				Help: "Splits produced by planning, partitioned by strategy.",
			},
			[]string{"strategy"},
		),
		describeCalls: prometheus.NewCounter(prometheus.CounterOpts{
			Name: metrics.DescribeCalls,
			Help: "Batched describe requests issued.",
		}),
		describedObjs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: metrics.DescribedObjects,
			Help: "Objects covered by batched describe requests.",
		}),
		retryCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metrics.RetriesTotal,
				Help: "Retried remote operations, partitioned by operation.",
			},
			[]string{"op"},
		),
		jobCloseCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metrics.JobsClosedTotal,
				Help: "Bulk job close attempts, partitioned by status.",
			},
			[]string{"status"},
		),
	}

	for name, c := range map[string]prometheus.Collector{
		"step counter":      b.stepCounter,
		"step summary":      b.stepDuration,
		"split counter":     b.splitCounter,
		"describe counter":  b.describeCalls,
		"described objects": b.describedObjs,
		"retry counter":     b.retryCounter,
		"job close counter": b.jobCloseCounter,
	} {
		if err := b.reg.Register(c); err != nil {
			return nil, fmt.Errorf("prompush: register %s: %w", name, err)
		}
	}
	return b, nil
}

func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	switch name {
	case metrics.StepTotal:
		if b.stepCounter == nil {
			return
		}
		b.stepCounter.WithLabelValues(labels["step"], labels["status"]).Add(delta)

	case metrics.SplitsTotal:
		if b.splitCounter == nil {
			return
		}
		b.splitCounter.WithLabelValues(labels["strategy"]).Add(delta)

	case metrics.DescribeCalls:
		if b.describeCalls == nil {
			return
		}
		b.describeCalls.Add(delta)

	case metrics.DescribedObjects:
		if b.describedObjs == nil {
			return
		}
		b.describedObjs.Add(delta)

	case metrics.RetriesTotal:
		if b.retryCounter == nil {
			return
		}
		b.retryCounter.WithLabelValues(labels["op"]).Add(delta)

	case metrics.JobsClosedTotal:
		if b.jobCloseCounter == nil {
			return
		}
		b.jobCloseCounter.WithLabelValues(labels["status"]).Add(delta)

	default:
		// unknown metric name: ignore
	}
}

func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if name != metrics.StepDuration || b.stepDuration == nil {
		return
	}
	b.stepDuration.WithLabelValues(labels["step"], labels["status"]).Observe(value)
}

// Flush pushes the current registry to the Pushgateway.
func (b *Backend) Flush() error {
	return push.New(b.gatewayURL, b.jobName).
		Gatherer(b.reg).
		Push()
}
