package extract

import (
	"context"
	"errors"

	"sfextract/internal/bulk"
	"sfextract/internal/config"
)

// RequestFromConfig builds the request template of a run from its config.
// Query is left empty in multi-object runs.
func RequestFromConfig(s config.Source) (Request, error) {
	f, err := s.Filter()
	if err != nil {
		return Request{}, err
	}
	req := Request{
		Filter:               f,
		Declared:             s.Schema,
		Operation:            bulk.Operation(s.Operation),
		Chunking:             s.BulkChunking(),
		CustomFieldsNullable: s.CustomFieldsNullable,
	}
	switch {
	case s.Query != "":
		req.Query = s.Query
	case s.SObject != "":
		req.Query = s.SObject
	}
	return req, nil
}

// Run plans everything s selects. Unless keepJobs is set the run's jobs are
// closed before returning; a failed or cancelled run always closes them.
// Results are nil when planning failed.
func (r *Runner) Run(ctx context.Context, s config.Source, keepJobs bool) ([]Result, error) {
	results, err := r.plan(ctx, s)
	if err == nil && keepJobs {
		r.logger.Printf("extract: keeping %d jobs open", r.jobs.Len())
		return results, nil
	}
	// Close failures are reported next to the plan: results stay usable.
	if cerr := r.Close(ctx); cerr != nil {
		err = errors.Join(err, cerr)
	}
	return results, err
}

func (r *Runner) plan(ctx context.Context, s config.Source) ([]Result, error) {
	req, err := RequestFromConfig(s)
	if err != nil {
		return nil, err
	}
	if s.MultiObject() {
		return r.PlanObjects(ctx, s.WhiteListNames(), s.BlackListNames(), req)
	}
	res, err := r.PlanOne(ctx, req)
	if err != nil {
		return nil, err
	}
	return []Result{res}, nil
}
