package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"

	"sfextract/internal/config"
	"sfextract/internal/storage"
	_ "sfextract/internal/storage/sqlite" // register "sqlite" backend for tests
)

// fakeSalesforce serves the REST and async endpoints a run touches.
type fakeSalesforce struct {
	mu      sync.Mutex
	jobs    int
	closed  []string
	queries []string
}

var describes = map[string]string{
	"Account": `{"name":"Account","fields":[
		{"name":"Id","type":"id"},
		{"name":"Name","type":"string"},
		{"name":"ShippingAddress","type":"address","nillable":true},
		{"name":"AnnualRevenue","type":"currency","precision":18,"scale":0,"nillable":true}]}`,
	"Contact": `{"name":"Contact","fields":[
		{"name":"Id","type":"id"},
		{"name":"Email","type":"email","nillable":true}]}`,
}

func (f *fakeSalesforce) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Authorization") != "Bearer tok" && r.Header.Get("X-Sfdc-Session") != "tok" {
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `[{"errorCode":"INVALID_SESSION_ID","message":"Session expired or invalid"}]`)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	p := r.URL.Path
	switch {
	case p == "/services/data/v59.0/sobjects":
		io.WriteString(w, `{"sobjects":[{"name":"Account","queryable":true},{"name":"Contact","queryable":true},{"name":"AccountHistory","queryable":false}]}`)

	case p == "/services/data/v59.0/composite/batch":
		var req struct {
			BatchRequests []struct{ URL string } `json:"batchRequests"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		var results []string
		for _, br := range req.BatchRequests {
			name := strings.TrimSuffix(strings.TrimPrefix(br.URL, "v59.0/sobjects/"), "/describe")
			body, ok := describes[name]
			if !ok {
				results = append(results, `{"statusCode":404,"result":[{"errorCode":"NOT_FOUND","message":"no such object"}]}`)
				continue
			}
			results = append(results, `{"statusCode":200,"result":`+body+`}`)
		}
		fmt.Fprintf(w, `{"hasErrors":false,"results":[%s]}`, strings.Join(results, ","))

	case p == "/services/async/59.0/job" && r.Method == http.MethodPost:
		var req struct{ Object string }
		_ = json.NewDecoder(r.Body).Decode(&req)
		f.mu.Lock()
		f.jobs++
		id := fmt.Sprintf("750J%d", f.jobs)
		f.mu.Unlock()
		fmt.Fprintf(w, `{"id":%q,"object":%q,"state":"Open"}`, id, req.Object)

	case strings.HasSuffix(p, "/batch") && r.Method == http.MethodPost:
		b, _ := io.ReadAll(r.Body)
		f.mu.Lock()
		f.queries = append(f.queries, string(b))
		f.mu.Unlock()
		job := strings.TrimSuffix(strings.TrimPrefix(p, "/services/async/59.0/job/"), "/batch")
		fmt.Fprintf(w, `{"id":"751B1","jobId":%q,"state":"Queued"}`, job)

	case strings.HasSuffix(p, "/batch") && r.Method == http.MethodGet:
		job := strings.TrimSuffix(strings.TrimPrefix(p, "/services/async/59.0/job/"), "/batch")
		fmt.Fprintf(w, `{"batchInfo":[{"id":"751B1","jobId":%q,"state":"Completed"}]}`, job)

	case strings.HasPrefix(p, "/services/async/59.0/job/") && r.Method == http.MethodPost:
		job := strings.TrimPrefix(p, "/services/async/59.0/job/")
		f.mu.Lock()
		f.closed = append(f.closed, job)
		f.mu.Unlock()
		fmt.Fprintf(w, `{"id":%q,"state":"Closed"}`, job)

	default:
		http.NotFound(w, r)
	}
}

func (f *fakeSalesforce) closedJobs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := slices.Clone(f.closed)
	slices.Sort(out)
	return out
}

func testSource(t *testing.T, instance string) config.Source {
	t.Helper()
	src := config.Source{
		Connection: config.Connection{InstanceURL: instance, AccessToken: "tok"},
	}
	src.ApplyDefaults()
	return src
}

func quietLogger() *log.Logger { return log.New(io.Discard, "", 0) }

func TestRun_SingleObject(t *testing.T) {
	t.Parallel()

	fake := &fakeSalesforce{}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	src := testSource(t, srv.URL)
	src.SObject = "Account"

	var out bytes.Buffer
	if err := run(context.Background(), src, runOptions{logger: quietLogger()}, &out); err != nil {
		t.Fatalf("run: %v", err)
	}

	var doc struct {
		RunID   string `json:"run_id"`
		Objects []struct {
			Object      string `json:"object"`
			Query       string `json:"query"`
			Fingerprint string `json:"fingerprint"`
			Strategy    string `json:"strategy"`
			Schema      struct {
				Fields []struct {
					Name string `json:"name"`
					Type string `json:"type"`
				} `json:"fields"`
			} `json:"schema"`
			Splits []struct {
				Locator string `json:"locator"`
			} `json:"splits"`
		} `json:"objects"`
	}
	if err := json.Unmarshal(out.Bytes(), &doc); err != nil {
		t.Fatalf("decode output: %v\n%s", err, out.String())
	}
	if doc.RunID == "" || len(doc.Objects) != 1 {
		t.Fatalf("output = %s", out.String())
	}
	obj := doc.Objects[0]
	if obj.Query != "SELECT Id,Name,AnnualRevenue FROM Account" {
		t.Errorf("query = %q", obj.Query)
	}
	if obj.Fingerprint == "" {
		t.Errorf("fingerprint missing from output")
	}
	if len(obj.Schema.Fields) != 3 || obj.Schema.Fields[2].Type != "decimal" {
		t.Errorf("schema = %+v", obj.Schema)
	}
	if obj.Strategy != "plain" || len(obj.Splits) != 1 || obj.Splits[0].Locator != "750J1:751B1" {
		t.Errorf("plan = %+v", obj)
	}
	if got := fake.closedJobs(); !slices.Equal(got, []string{"750J1"}) {
		t.Errorf("closed = %v", got)
	}
}

func TestRun_MultiObjectKeepsJobsInLedger(t *testing.T) {
	t.Parallel()

	fake := &fakeSalesforce{}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	dsn := "file:" + url.PathEscape(filepath.Join(t.TempDir(), "ledger.sqlite")) + "?mode=rwc"
	src := testSource(t, srv.URL)
	src.Ledger = config.Ledger{Kind: "sqlite", DSN: dsn, Table: "sfplan_jobs"}

	var out bytes.Buffer
	if err := run(context.Background(), src, runOptions{keepJobs: true, logger: quietLogger()}, &out); err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := fake.closedJobs(); len(got) != 0 {
		t.Fatalf("closed = %v, want none with keep-jobs", got)
	}

	l, err := storage.New(context.Background(), storage.Config{Kind: "sqlite", DSN: dsn})
	if err != nil {
		t.Fatalf("open ledger: %v", err)
	}
	entries, err := l.List(context.Background())
	l.Close()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	objects := map[string]string{}
	for _, e := range entries {
		objects[e.JobID] = e.Object
	}
	if len(objects) != 2 || !slices.Contains([]string{objects["750J1"], objects["750J2"]}, "Contact") {
		t.Fatalf("ledger = %+v", entries)
	}

	// A later -close-leaked run closes and forgets them.
	if err := run(context.Background(), src, runOptions{closeLeaked: true, logger: quietLogger()}, io.Discard); err != nil {
		t.Fatalf("close-leaked run: %v", err)
	}
	if got := fake.closedJobs(); !slices.Equal(got, []string{"750J1", "750J2"}) {
		t.Fatalf("closed = %v", got)
	}
}

func TestRun_PrintsDDL(t *testing.T) {
	t.Parallel()

	fake := &fakeSalesforce{}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	src := testSource(t, srv.URL)
	src.SObject = "Account"

	var out bytes.Buffer
	if err := run(context.Background(), src, runOptions{ddlDialect: "postgres", logger: quietLogger()}, &out); err != nil {
		t.Fatalf("run: %v", err)
	}
	var doc struct {
		DDL map[string]string `json:"ddl"`
	}
	if err := json.Unmarshal(out.Bytes(), &doc); err != nil {
		t.Fatalf("decode output: %v", err)
	}
	stmt := doc.DDL["Account"]
	for _, want := range []string{`CREATE TABLE "account"`, `"AnnualRevenue" NUMERIC(`, `PRIMARY KEY ("Id")`} {
		if !strings.Contains(stmt, want) {
			t.Errorf("ddl missing %q:\n%s", want, stmt)
		}
	}
}

func TestRun_UnknownDialect(t *testing.T) {
	t.Parallel()

	src := testSource(t, "https://acme.my.salesforce.com")
	err := run(context.Background(), src, runOptions{ddlDialect: "oracle", logger: quietLogger()}, io.Discard)
	if err == nil || !strings.Contains(err.Error(), "unsupported dialect") {
		t.Fatalf("err = %v", err)
	}
}

func TestRun_CloseLeakedNeedsLedger(t *testing.T) {
	t.Parallel()

	src := testSource(t, "https://acme.my.salesforce.com")
	err := run(context.Background(), src, runOptions{closeLeaked: true, logger: quietLogger()}, io.Discard)
	if err == nil || !strings.Contains(err.Error(), "needs a ledger") {
		t.Fatalf("err = %v", err)
	}
}

func TestRun_UnknownObjectFails(t *testing.T) {
	t.Parallel()

	fake := &fakeSalesforce{}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	src := testSource(t, srv.URL)
	src.Query = "SELECT Id FROM Widget__c"

	var out bytes.Buffer
	err := run(context.Background(), src, runOptions{logger: quietLogger()}, &out)
	if err == nil || !strings.Contains(err.Error(), "NOT_FOUND") {
		t.Fatalf("err = %v, want NOT_FOUND describe failure", err)
	}
	if out.Len() != 0 {
		t.Errorf("unexpected output: %s", out.String())
	}
}

func TestPick(t *testing.T) {
	t.Parallel()

	if got := pick("", "  ", "b", "c"); got != "b" {
		t.Errorf("pick = %q, want b", got)
	}
	if got := pick(); got != "" {
		t.Errorf("pick() = %q", got)
	}
}
