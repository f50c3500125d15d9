// Package datadog forwards planner metrics to a DogStatsD agent.
//
// Metric names are rewritten into Datadog's dotted form
// (sfplan_step_duration_seconds becomes step.duration under the configured
// namespace). Only the planner's own label keys become tags, so a caller
// passing arbitrary labels cannot explode tag cardinality.
package datadog

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"sfextract/internal/metrics"

	"github.com/DataDog/datadog-go/v5/statsd"
)

// Config holds Datadog backend configuration.
type Config struct {
	// Addr is the DogStatsD address, e.g. "127.0.0.1:8125" or "unix:///path/to/socket".
	Addr string
	// Namespace prefixes every metric name, e.g. "sfplan.".
	Namespace string
	// GlobalTags are applied to every metric, e.g. []string{"job:nightly"}.
	GlobalTags []string
}

// tagKeys are the label keys the planner emits.
var tagKeys = map[string]bool{
	"step":     true,
	"status":   true,
	"strategy": true,
	"op":       true,
}

// Backend is a Datadog implementation of metrics.Backend.
type Backend struct {
	client *statsd.Client
}

// NewBackend dials the agent at cfg.Addr.
func NewBackend(cfg Config) (*Backend, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("datadog: Addr is required")
	}
	opts := []statsd.Option{statsd.WithoutTelemetry()}
	if cfg.Namespace != "" {
		opts = append(opts, statsd.WithNamespace(cfg.Namespace))
	}
	if len(cfg.GlobalTags) > 0 {
		opts = append(opts, statsd.WithTags(cfg.GlobalTags))
	}
	c, err := statsd.New(cfg.Addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("datadog: create client: %w", err)
	}
	return &Backend{client: c}, nil
}

// IncCounter sends a Count. Fractional deltas are rounded.
func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	if b.client == nil {
		return
	}
	_ = b.client.Count(metricName(name), int64(math.Round(delta)), tagsFor(labels), 1)
}

// ObserveHistogram sends a Distribution so step durations aggregate across
// hosts running the same job.
func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if b.client == nil {
		return
	}
	_ = b.client.Distribution(metricName(name), value, tagsFor(labels), 1)
}

// Flush closes the client, sending anything still buffered. It is meant
// for process shutdown.
func (b *Backend) Flush() error {
	if b.client == nil {
		return nil
	}
	return b.client.Close()
}

// metricName maps a Prometheus-style name onto Datadog's dotted form: the
// sfplan_ prefix and the _total/_seconds unit suffixes are dropped.
func metricName(name string) string {
	n := strings.TrimPrefix(name, "sfplan_")
	n = strings.TrimSuffix(n, "_total")
	n = strings.TrimSuffix(n, "_seconds")
	return strings.ReplaceAll(n, "_", ".")
}

// tagsFor keeps the known label keys, lower-cases values and sorts the result.
func tagsFor(lbls metrics.Labels) []string {
	var out []string
	for k, v := range lbls {
		if !tagKeys[k] || v == "" {
			continue
		}
		out = append(out, k+":"+tagValue(v))
	}
	sort.Strings(out)
	return out
}

// tagValue replaces the characters Datadog would rewrite anyway.
func tagValue(v string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '-', r == '.', r == '/':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		default:
			return '_'
		}
	}, v)
}
