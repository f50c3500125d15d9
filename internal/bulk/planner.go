package bulk

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"sfextract/internal/metrics"
)

// State is the planner's position in its per-run state machine:
// Planning -> Submitted -> SplitsReady, or Planning/Submitted -> Failed.
type State int

const (
	Planning State = iota
	Submitted
	SplitsReady
	Failed
)

func (s State) String() string {
	switch s {
	case Planning:
		return "PLANNING"
	case Submitted:
		return "SUBMITTED"
	case SplitsReady:
		return "SPLITS_READY"
	case Failed:
		return "FAILED"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Registrar records submitted job ids so they are closed at run end.
type Registrar interface {
	Register(ctx context.Context, jobID, object string) error
}

// Planner submits bulk jobs and materializes their splits.
type Planner struct {
	remote Bulk
	jobs   Registrar
	policy RetryPolicy
	logger *log.Logger

	// sleep is injectable to make backoff tests fast and deterministic.
	sleep func(context.Context, time.Duration) error
	// observe, when set, sees every state transition.
	observe func(State)
}

// NewPlanner returns a Planner. A zero policy takes DefaultRetryPolicy
// values; a nil logger uses log.Default().
func NewPlanner(remote Bulk, jobs Registrar, policy RetryPolicy, logger *log.Logger) *Planner {
	if logger == nil {
		logger = log.Default()
	}
	return &Planner{
		remote: remote,
		jobs:   jobs,
		policy: policy.Normalize(),
		logger: logger,
		sleep:  sleepContext,
	}
}

// Plan submits one bulk job for req and returns one split per batch the
// remote service created for it. The job id is registered before batches
// are polled, so a failed or cancelled poll never leaks the job.
func (p *Planner) Plan(ctx context.Context, req SubmitRequest) (plan Plan, err error) {
	p.transition(Planning)
	defer func() {
		if err != nil {
			p.transition(Failed)
		}
	}()

	if err := validateRequest(req); err != nil {
		return Plan{}, err
	}
	if req.Operation == "" {
		req.Operation = Query
	}
	strategy := req.Strategy()

	var jobID string
	start := time.Now()
	err = retry(ctx, p.policy, "submit", p.sleep, func(ctx context.Context) error {
		id, err := p.remote.SubmitQuery(ctx, req)
		if err != nil {
			return err
		}
		jobID = id
		return nil
	})
	metrics.RecordStep("submit", err, time.Since(start))
	if err != nil {
		return Plan{}, fmt.Errorf("bulk: submit %s job for %s: %w", strategy, req.Object, err)
	}
	if p.jobs != nil {
		if err := p.jobs.Register(ctx, jobID, req.Object); err != nil {
			// Nobody else knows about the job; close it here.
			if cerr := p.remote.CloseJob(context.WithoutCancel(ctx), jobID); cerr != nil {
				p.logger.Printf("bulk: close unregistered job %s: %v", jobID, cerr)
				err = errors.Join(err, cerr)
			}
			return Plan{}, fmt.Errorf("bulk: register job %s: %w", jobID, err)
		}
	}
	p.transition(Submitted)
	p.logger.Printf("bulk: submitted %s job %s for %s", strategy, jobID, req.Object)

	var batches []BatchInfo
	start = time.Now()
	err = retry(ctx, p.policy, "poll", p.sleep, func(ctx context.Context) error {
		got, err := p.remote.PollBatches(ctx, jobID)
		if err != nil {
			return err
		}
		ready, err := readyBatches(jobID, strategy, got)
		if err != nil {
			return err
		}
		batches = ready
		return nil
	})
	metrics.RecordStep("poll", err, time.Since(start))
	if err != nil {
		return Plan{}, fmt.Errorf("bulk: poll job %s for %s: %w", jobID, req.Object, err)
	}

	plan = Plan{Strategy: strategy, Splits: make([]Split, 0, len(batches))}
	for _, b := range batches {
		plan.Splits = append(plan.Splits, Split{
			JobID:     jobID,
			BatchID:   b.ID,
			Locator:   Locator(jobID, b.ID),
			Object:    req.Object,
			Operation: req.Operation,
		})
	}
	metrics.RecordSplits(string(strategy), len(plan.Splits))
	p.transition(SplitsReady)
	p.logger.Printf("bulk: job %s ready with %d %s splits", jobID, len(plan.Splits), strategy)
	return plan, nil
}

func (p *Planner) transition(s State) {
	if p.observe != nil {
		p.observe(s)
	}
}

func validateRequest(req SubmitRequest) error {
	var errs []error
	if req.Object == "" {
		errs = append(errs, errors.New("object name is required"))
	}
	if req.Query == "" {
		errs = append(errs, errors.New("query is required"))
	}
	if req.Operation != "" && !req.Operation.Valid() {
		errs = append(errs, fmt.Errorf("unknown operation %q", req.Operation))
	}
	if req.Chunking != nil && req.Chunking.Size <= 0 {
		errs = append(errs, fmt.Errorf("chunk size must be positive, got %d", req.Chunking.Size))
	}
	if len(errs) > 0 {
		return fmt.Errorf("bulk: invalid request: %w", errors.Join(errs...))
	}
	return nil
}

// readyBatches decides whether a job is fully batched and returns the
// batches that become splits.
//
// A plain job is ready once it has at least one batch. A PK chunked job is
// ready once its original batch is NotProcessed; every other batch is a
// chunk. A Failed batch fails the plan in both cases.
func readyBatches(jobID string, strategy Strategy, batches []BatchInfo) ([]BatchInfo, error) {
	for _, b := range batches {
		if b.State == BatchFailed {
			return nil, &BatchFailedError{JobID: jobID, BatchID: b.ID, Message: b.Message}
		}
	}

	if strategy == Plain {
		if len(batches) == 0 {
			return nil, &notReadyError{jobID: jobID}
		}
		return batches, nil
	}

	var (
		original bool
		chunks   []BatchInfo
	)
	for _, b := range batches {
		if b.State == BatchNotProcessed {
			original = true
			continue
		}
		chunks = append(chunks, b)
	}
	if !original {
		return nil, &notReadyError{jobID: jobID, batches: len(batches)}
	}
	return chunks, nil
}
