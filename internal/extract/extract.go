// Package extract runs a planning pass: it parses each query, resolves its
// output schema through batched describes, plans its bulk splits, and closes
// every job the run created.
package extract

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"sfextract/internal/bulk"
	"sfextract/internal/describe"
	"sfextract/internal/jobs"
	"sfextract/internal/metrics"
	"sfextract/internal/schema"
	"sfextract/internal/soql"
)

// Remote is everything a run needs from the org.
type Remote interface {
	describe.Describer
	bulk.Bulk
	jobs.Closer
	// DescribeGlobal returns the names of all queryable objects.
	DescribeGlobal(ctx context.Context) ([]string, error)
}

// Request is one query to plan.
type Request struct {
	// Query is a SELECT statement or a bare object name. For an object name
	// every non-compound field is selected and Filter is applied.
	Query  string
	Filter soql.Filter

	// Declared, when set, must be compatible with the resolved schema and is
	// returned in its place.
	Declared *schema.Schema

	Operation            bulk.Operation
	Chunking             *bulk.Chunking
	CustomFieldsNullable bool
}

// Result is the planning outcome for one object.
type Result struct {
	Object      string        `json:"object"`
	Query       string        `json:"query"`
	Schema      schema.Schema `json:"schema"`
	Fingerprint string        `json:"fingerprint"`
	Strategy    bulk.Strategy `json:"strategy"`
	Splits      []bulk.Split  `json:"splits"`
}

// ErrNoQualifiedObjects is returned when the white and black lists leave
// nothing to plan.
var ErrNoQualifiedObjects = errors.New("extract: no qualified objects found")

// compoundTypes are field types bulk queries reject.
var compoundTypes = map[string]bool{"address": true, "location": true}

// Runner plans queries against one org. Concurrent plans share only the
// process-wide describe cache and the run's job set.
type Runner struct {
	remote   Remote
	shared   *describe.SharedCache
	jobs     *jobs.Set
	policy   bulk.RetryPolicy
	planners int
	logger   *log.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the logger; nil keeps log.Default().
func WithLogger(l *log.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithRetryPolicy sets the policy for job submission and polling.
func WithRetryPolicy(p bulk.RetryPolicy) Option {
	return func(r *Runner) { r.policy = p.Normalize() }
}

// WithPlanners bounds how many objects a multi-object run plans at once.
func WithPlanners(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.planners = n
		}
	}
}

// WithSharedCache replaces the process-wide describe cache, e.g. to share
// one between runners.
func WithSharedCache(c *describe.SharedCache) Option {
	return func(r *Runner) {
		if c != nil {
			r.shared = c
		}
	}
}

// NewRunner returns a Runner whose jobs are registered in set.
func NewRunner(remote Remote, set *jobs.Set, opts ...Option) *Runner {
	r := &Runner{
		remote:   remote,
		jobs:     set,
		policy:   bulk.DefaultRetryPolicy(),
		planners: 4,
		logger:   log.Default(),
	}
	for _, o := range opts {
		o(r)
	}
	if r.shared == nil {
		r.shared = describe.NewSharedCache(remote)
	}
	return r
}

// Jobs returns the run's job set.
func (r *Runner) Jobs() *jobs.Set { return r.jobs }

// Close closes every job the run registered. It is safe to call more than
// once and ignores cancellation of ctx.
func (r *Runner) Close(ctx context.Context) error {
	return r.jobs.CloseAll(ctx, r.remote)
}

// PlanOne plans a single query: parse, describe, resolve, then split. The
// steps run strictly in order.
func (r *Runner) PlanOne(ctx context.Context, req Request) (Result, error) {
	start := time.Now()
	d, err := soql.Parse(req.Query)
	metrics.RecordStep("parse", err, time.Since(start))
	if err != nil {
		return Result{}, err
	}

	cache := describe.NewCache(r.shared, r.logger)
	query := strings.TrimSpace(req.Query)
	if len(d.Fields()) == 0 {
		d, query, err = r.expandObject(ctx, cache, d.Name(), req.Filter)
		if err != nil {
			return Result{}, err
		}
	}

	entries, err := cache.Describe(ctx, d.ParentObjects())
	if err != nil {
		return Result{}, err
	}

	start = time.Now()
	resolved, err := schema.Resolve(d, req.Declared, entries, schema.Options{CustomFieldsNullable: req.CustomFieldsNullable})
	metrics.RecordStep("resolve", err, time.Since(start))
	if err != nil {
		return Result{}, fmt.Errorf("extract: %s: %w", d.Name(), err)
	}

	planner := bulk.NewPlanner(r.remote, r.jobs, r.policy, r.logger)
	plan, err := planner.Plan(ctx, bulk.SubmitRequest{
		Object:    d.Name(),
		Query:     query,
		Operation: req.Operation,
		Chunking:  req.Chunking,
	})
	if err != nil {
		return Result{}, err
	}

	fp := resolved.Fingerprint()
	r.logger.Printf("extract: planned %s: %d fields, schema %s, %d %s splits",
		d.Name(), len(resolved.Fields), fp, len(plan.Splits), plan.Strategy)
	return Result{
		Object:      d.Name(),
		Query:       query,
		Schema:      resolved,
		Fingerprint: fp,
		Strategy:    plan.Strategy,
		Splits:      plan.Splits,
	}, nil
}

// expandObject builds the query selecting every non-compound field of
// object.
func (r *Runner) expandObject(ctx context.Context, cache *describe.Cache, object string, f soql.Filter) (soql.ObjectDescriptor, string, error) {
	set, err := cache.Describe(ctx, []string{object})
	if err != nil {
		return soql.ObjectDescriptor{}, "", err
	}
	entry, _ := set.Get(object)

	var (
		names  []string
		fields []soql.Field
	)
	for _, fm := range entry.Fields() {
		if compoundTypes[strings.ToLower(fm.Type)] {
			continue
		}
		names = append(names, fm.Name)
		fields = append(fields, soql.Field{Name: fm.Name})
	}
	if len(fields) == 0 {
		return soql.ObjectDescriptor{}, "", fmt.Errorf("extract: %s has no queryable fields", entry.Object())
	}
	return soql.NewObjectDescriptor(entry.Object(), fields), soql.BuildQuery(entry.Object(), names, f), nil
}

// PlanObjects plans every queryable object selected by white and black
// lists, tmpl supplying all other request settings. The selected objects
// are described together in one batched call before planning fans out over
// at most the configured number of planners. Results follow the sorted
// object order. The first failure cancels the remaining plans.
func (r *Runner) PlanObjects(ctx context.Context, white, black []string, tmpl Request) ([]Result, error) {
	all, err := r.remote.DescribeGlobal(ctx)
	if err != nil {
		return nil, fmt.Errorf("extract: list objects: %w", err)
	}
	objects, err := SelectObjects(all, white, black)
	if err != nil {
		return nil, err
	}
	r.logger.Printf("extract: planning %d objects with %d planners", len(objects), r.planners)

	if _, err := r.shared.DescribeObjects(ctx, objects); err != nil {
		return nil, &describe.RemoteDescribeError{Objects: objects, Err: err}
	}

	results := make([]Result, len(objects))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.planners)
	for i, obj := range objects {
		i, obj := i, obj
		g.Go(func() error {
			req := tmpl
			req.Query = obj
			res, err := r.PlanOne(gctx, req)
			if err != nil {
				return fmt.Errorf("extract: %s: %w", obj, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
