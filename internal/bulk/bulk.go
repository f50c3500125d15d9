// Package bulk plans bulk-query extraction: it submits one remote bulk job
// for a query, waits until the remote service has batched it, and turns the
// resulting batches into independent splits.
package bulk

import (
	"context"
	"fmt"
	"strings"
)

// Strategy is how a query was partitioned.
type Strategy string

const (
	// Plain submits the query as-is; the remote service decides the batches.
	Plain Strategy = "plain"
	// PKChunk asks the remote service to partition by primary-key ranges.
	PKChunk Strategy = "pk_chunk"
)

// Operation is the bulk query operation.
type Operation string

const (
	Query    Operation = "query"
	QueryAll Operation = "queryAll" // includes deleted and archived rows
)

// Valid reports whether o is a known operation.
func (o Operation) Valid() bool { return o == Query || o == QueryAll }

// Chunking holds PK chunking directives attached to job submission.
type Chunking struct {
	// Size is the number of records per chunk.
	Size int
	// Parent optionally scopes chunking to a parent object's primary keys.
	Parent string
}

// Header renders the chunking directive value, e.g. "chunkSize=100000; parent=Account".
func (c Chunking) Header() string {
	parts := []string{fmt.Sprintf("chunkSize=%d", c.Size)}
	if c.Parent != "" {
		parts = append(parts, "parent="+c.Parent)
	}
	return strings.Join(parts, "; ")
}

// SubmitRequest describes one bulk query job.
type SubmitRequest struct {
	Object    string
	Query     string
	Operation Operation
	Chunking  *Chunking // nil for a plain job
}

// Strategy returns the strategy implied by the request.
func (r SubmitRequest) Strategy() Strategy {
	if r.Chunking != nil {
		return PKChunk
	}
	return Plain
}

// BatchState is a remote batch state as reported by the bulk API.
type BatchState string

const (
	BatchQueued       BatchState = "Queued"
	BatchInProgress   BatchState = "InProgress"
	BatchCompleted    BatchState = "Completed"
	BatchFailed       BatchState = "Failed"
	BatchNotProcessed BatchState = "NotProcessed"
)

// BatchInfo is one batch of a bulk job.
type BatchInfo struct {
	ID      string
	JobID   string
	State   BatchState
	Message string
}

// Bulk is the remote bulk API consumed by the planner.
type Bulk interface {
	// SubmitQuery creates a job for req and adds its query batch.
	SubmitQuery(ctx context.Context, req SubmitRequest) (jobID string, err error)
	// PollBatches lists the batches the remote service created for jobID.
	PollBatches(ctx context.Context, jobID string) ([]BatchInfo, error)
	// CloseJob closes a job the planner could not hand over to its
	// Registrar.
	CloseJob(ctx context.Context, jobID string) error
}

// Split is one independently fetchable unit of a plan.
type Split struct {
	JobID     string    `json:"job_id"`
	BatchID   string    `json:"batch_id"`
	Locator   string    `json:"locator"`
	Object    string    `json:"object"`
	Operation Operation `json:"operation"`
}

// Plan is the result of planning one query.
type Plan struct {
	Strategy Strategy `json:"strategy"`
	Splits   []Split  `json:"splits"`
}

// Locator builds the opaque token identifying one batch of one job.
func Locator(jobID, batchID string) string {
	return jobID + ":" + batchID
}

// ParseLocator recovers the job and batch ids from a locator.
func ParseLocator(loc string) (jobID, batchID string, err error) {
	jobID, batchID, ok := strings.Cut(loc, ":")
	if !ok || jobID == "" || batchID == "" {
		return "", "", fmt.Errorf("bulk: malformed locator %q", loc)
	}
	return jobID, batchID, nil
}

// BatchFailedError reports a batch the remote service failed. It is never
// retried.
type BatchFailedError struct {
	JobID   string
	BatchID string
	Message string
}

func (e *BatchFailedError) Error() string {
	return fmt.Sprintf("bulk: job %s batch %s failed: %s", e.JobID, e.BatchID, e.Message)
}
