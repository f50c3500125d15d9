package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/google/uuid"

	"sfextract/internal/config"
	"sfextract/internal/ddl"
	"sfextract/internal/extract"
	"sfextract/internal/jobs"
	"sfextract/internal/salesforce"
	"sfextract/internal/storage"
)

type runOptions struct {
	keepJobs    bool
	closeLeaked bool
	ddlDialect  string // render CREATE TABLE per object when set
	logger      *log.Logger
}

// output is the document printed to stdout.
type output struct {
	RunID   string           `json:"run_id"`
	Objects []extract.Result `json:"objects"`
	// DDL maps object name to the CREATE TABLE for its resolved schema.
	DDL map[string]string `json:"ddl,omitempty"`
}

// run wires the remote client, the optional job ledger and the runner, then
// either plans src or closes leaked jobs.
func run(ctx context.Context, src config.Source, opts runOptions, w io.Writer) error {
	logger := opts.logger
	if logger == nil {
		logger = log.Default()
	}
	var dialect *ddl.Dialect
	if opts.ddlDialect != "" {
		d, err := ddl.Lookup(opts.ddlDialect)
		if err != nil {
			return err
		}
		dialect = &d
	}

	client, err := salesforce.NewClient(salesforce.Config{
		InstanceURL:        src.Connection.InstanceURL,
		APIVersion:         src.Connection.APIVersion,
		AccessToken:        src.Connection.AccessToken,
		Timeout:            src.Connection.Timeout.D(),
		MaxRetries:         src.Connection.MaxRetries,
		InsecureSkipVerify: src.Connection.InsecureSkipVerify,
		ProxyURL:           src.Connection.ProxyURL,
	}, logger)
	if err != nil {
		return err
	}

	var ledger storage.Ledger
	if src.Ledger.Kind != "" {
		ledger, err = storage.New(ctx, storage.Config{Kind: src.Ledger.Kind, DSN: src.Ledger.DSN, Table: src.Ledger.Table})
		if err != nil {
			return fmt.Errorf("ledger: %w", err)
		}
		defer ledger.Close()
	}

	if opts.closeLeaked {
		if ledger == nil {
			return fmt.Errorf("-close-leaked needs a ledger in the config")
		}
		n, err := extract.CloseLeaked(ctx, ledger, client, logger)
		logger.Printf("closed %d leaked jobs", n)
		return err
	}

	runID := uuid.NewString()
	setOpts := []jobs.Option{jobs.WithLogger(logger)}
	if ledger != nil {
		setOpts = append(setOpts, jobs.WithTracker(extract.NewLedgerTracker(ledger, runID)))
	}
	runner := extract.NewRunner(client, jobs.NewSet(setOpts...),
		extract.WithLogger(logger),
		extract.WithRetryPolicy(src.RetryPolicy()),
		extract.WithPlanners(src.Runtime.Planners),
	)

	logger.Printf("run %s: job=%s", runID, src.Job)
	results, err := runner.Run(ctx, src, opts.keepJobs)
	if results == nil {
		return err
	}
	doc := output{RunID: runID, Objects: results}
	if dialect != nil {
		doc.DDL = make(map[string]string, len(results))
		for _, r := range results {
			stmt, derr := dialect.CreateTable(strings.ToLower(r.Object), r.Schema)
			if derr != nil {
				return fmt.Errorf("ddl for %s: %w", r.Object, derr)
			}
			doc.DDL[r.Object] = stmt
		}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if eerr := enc.Encode(doc); eerr != nil {
		return eerr
	}
	return err
}
