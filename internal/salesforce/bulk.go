package salesforce

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"sfextract/internal/bulk"
)

// PKChunkingHeader enables primary-key chunking on job creation.
const PKChunkingHeader = "Sforce-Enable-PKChunking"

type jobRequest struct {
	Operation   string `json:"operation"`
	Object      string `json:"object"`
	ContentType string `json:"contentType"`
}

type jobInfo struct {
	ID     string `json:"id"`
	Object string `json:"object"`
	State  string `json:"state"`
}

type batchInfo struct {
	ID           string `json:"id"`
	JobID        string `json:"jobId"`
	State        string `json:"state"`
	StateMessage string `json:"stateMessage"`
}

type batchInfoList struct {
	BatchInfo []batchInfo `json:"batchInfo"`
}

// SubmitQuery creates a query job and adds req.Query as its batch. When
// adding the batch fails the job is closed before returning, so a retried
// submission never leaves an orphan behind.
func (c *Client) SubmitQuery(ctx context.Context, req bulk.SubmitRequest) (string, error) {
	h, err := c.sessionHeader()
	if err != nil {
		return "", err
	}
	op := req.Operation
	if op == "" {
		op = bulk.Query
	}
	createHdr := h.Clone()
	if req.Chunking != nil {
		createHdr.Set(PKChunkingHeader, req.Chunking.Header())
	}

	var job jobInfo
	body := jobRequest{Operation: string(op), Object: req.Object, ContentType: "JSON"}
	if err := c.bulk.DoJSON(ctx, http.MethodPost, c.asyncURL("job"), body, &job, createHdr); err != nil {
		return "", apiError("create job for "+req.Object, err)
	}
	if job.ID == "" {
		return "", fmt.Errorf("salesforce: create job for %s: empty job id", req.Object)
	}

	batchHdr := h.Clone()
	batchHdr.Set("Content-Type", "application/json; charset=UTF-8")
	var b batchInfo
	err = c.bulk.DoRaw(ctx, http.MethodPost, c.asyncURL("job/"+url.PathEscape(job.ID)+"/batch"), []byte(req.Query), &b, batchHdr)
	if err != nil {
		if cerr := c.CloseJob(context.WithoutCancel(ctx), job.ID); cerr != nil {
			c.logger.Printf("salesforce: close job %s after failed batch: %v", job.ID, cerr)
		}
		return "", apiError("add batch to job "+job.ID, err)
	}
	return job.ID, nil
}

// PollBatches lists the batches of jobID.
func (c *Client) PollBatches(ctx context.Context, jobID string) ([]bulk.BatchInfo, error) {
	h, err := c.sessionHeader()
	if err != nil {
		return nil, err
	}
	var list batchInfoList
	if err := c.bulk.DoJSON(ctx, http.MethodGet, c.asyncURL("job/"+url.PathEscape(jobID)+"/batch"), nil, &list, h); err != nil {
		return nil, apiError("list batches of job "+jobID, err)
	}
	out := make([]bulk.BatchInfo, len(list.BatchInfo))
	for i, b := range list.BatchInfo {
		out[i] = bulk.BatchInfo{ID: b.ID, JobID: b.JobID, State: bulk.BatchState(b.State), Message: b.StateMessage}
	}
	return out, nil
}

// CloseJob sets jobID's state to Closed. Closing an already closed job is
// not an error.
func (c *Client) CloseJob(ctx context.Context, jobID string) error {
	h, err := c.sessionHeader()
	if err != nil {
		return err
	}
	var job jobInfo
	err = c.rest.DoJSON(ctx, http.MethodPost, c.asyncURL("job/"+url.PathEscape(jobID)), map[string]string{"state": "Closed"}, &job, h)
	if err == nil {
		return nil
	}
	err = apiError("close job "+jobID, err)
	var ae *APIError
	if errors.As(err, &ae) && ae.Code == "InvalidJobState" {
		return nil
	}
	return err
}
