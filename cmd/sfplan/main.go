package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"sfextract/internal/config"
	"sfextract/internal/metrics"
	"sfextract/internal/metrics/datadog"
	"sfextract/internal/metrics/prompush"

	// register all ledger backends with the storage factory.
	// config specifies which to use but we need to build in support for all of them.
	_ "sfextract/internal/storage/all"
)

// main is the entry point for the sfplan binary. It loads the run config,
// optionally initializes a metrics backend, plans the configured queries and
// prints the plan as JSON.
func main() {
	var (
		cfgPath           string
		metricsBackendFlg string
		pushGatewayURLFlg string
		datadogAddrFlg    string
		validate          bool
		keepJobs          bool
		closeLeaked       bool
	)

	flag.StringVar(&cfgPath, "config", "configs/sfplan.json", "run config path (.json, .yaml or .yml)")
	flag.StringVar(&metricsBackendFlg, "metrics-backend", "", "metrics backend to use (pushgateway, datadog, none); overrides env METRICS_BACKEND")
	flag.StringVar(&pushGatewayURLFlg, "pushgateway-url", "", "Pushgateway base URL (overrides env PUSHGATEWAY_URL)")
	flag.StringVar(&datadogAddrFlg, "datadog-addr", "", "DogStatsD address (overrides env DD_DOGSTATSD_ADDR)")
	flag.BoolVar(&validate, "validate", false, "validate the configuration and exit")
	flag.BoolVar(&keepJobs, "keep-jobs", false, "leave bulk jobs open for the downstream reader")
	flag.BoolVar(&closeLeaked, "close-leaked", false, "close jobs left in the ledger by earlier runs and exit")
	ddlDialect := flag.String("ddl", "", "also print CREATE TABLE for each resolved schema in this dialect (mssql, mysql, postgres, sqlite)")
	verbose := flag.Bool("v", false, "enable verbose logs")

	flag.Parse()

	logger := log.New(os.Stderr, "", log.LstdFlags)
	if !*verbose {
		logger.SetOutput(io.Discard)
	}

	src, err := config.Load(cfgPath)
	if err != nil {
		fatalf("%v", err)
	}

	issues := config.Validate(src)
	for _, iss := range issues {
		fmt.Fprintf(os.Stderr, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
	}
	if config.HasErrors(issues) {
		log.Printf("Configuration is invalid: %v", cfgPath)
		os.Exit(1)
	}
	if validate {
		log.Printf("Configuration is valid: %v", cfgPath)
		os.Exit(0)
	}

	// Decide metrics backend: flag → env → none.
	backendName := pick(metricsBackendFlg, os.Getenv("METRICS_BACKEND"))
	switch backendName {
	case "pushgateway":
		gwURL := pick(pushGatewayURLFlg, os.Getenv("PUSHGATEWAY_URL"), "http://localhost:9091")
		b, err := prompush.NewBackend(src.Job, gwURL)
		if err != nil {
			log.Printf("metrics: failed to init prom push backend: %v; using nop", err)
			break
		}
		logger.Printf("metrics: url=%v, backend=%v, job_name=%v", gwURL, backendName, src.Job)
		metrics.SetBackend(b)
	case "datadog":
		addr := pick(datadogAddrFlg, os.Getenv("DD_DOGSTATSD_ADDR"), "127.0.0.1:8125")
		b, err := datadog.NewBackend(datadog.Config{Addr: addr, Namespace: "sfplan.", GlobalTags: []string{"job:" + src.Job}})
		if err != nil {
			log.Printf("metrics: failed to init datadog backend: %v; using nop", err)
			break
		}
		logger.Printf("metrics: addr=%v, backend=%v", addr, backendName)
		metrics.SetBackend(b)
	case "", "none":
		logger.Printf("metrics: disabled (backend=%q)", backendName)
	default:
		log.Printf("metrics: unknown backend %q; metrics disabled", backendName)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	start := time.Now()
	opts := runOptions{keepJobs: keepJobs, closeLeaked: closeLeaked, ddlDialect: *ddlDialect, logger: logger}
	err = run(ctx, src, opts, os.Stdout)

	if ferr := metrics.Flush(); ferr != nil {
		log.Printf("metrics: flush error: %v", ferr)
	}
	if err != nil {
		stop()
		fatalf("%v", err)
	}
	logger.Printf("completed in %s", time.Since(start).Truncate(time.Millisecond))
}

// pick returns the first non-blank value.
func pick(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func fatalf(format string, a ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", a...)
	os.Exit(1)
}
