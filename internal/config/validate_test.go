package config

import (
	"strings"
	"testing"

	"sfextract/internal/schema"
)

// hasIssue reports whether issues contains an Issue with the given severity,
// path, and a Message containing msgSubstr.
func hasIssue(t *testing.T, issues []Issue, sev IssueSeverity, path, msgSubstr string) bool {
	t.Helper()
	for _, iss := range issues {
		if iss.Severity == sev && iss.Path == path && strings.Contains(iss.Message, msgSubstr) {
			return true
		}
	}
	return false
}

// validSource returns a minimal config that produces no issues.
func validSource() Source {
	s := Source{
		Connection: Connection{
			InstanceURL: "https://acme.my.salesforce.com",
			AccessToken: "tok",
		},
		SObject: "Account",
	}
	s.ApplyDefaults()
	return s
}

func TestValidate_ValidMinimal(t *testing.T) {
	t.Parallel()

	if issues := Validate(validSource()); len(issues) != 0 {
		t.Fatalf("expected no issues, got %+v", issues)
	}
}

func TestValidate_Cases(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Source)
		sev    IssueSeverity
		path   string
		msg    string
	}{
		{
			name:   "missing instance url",
			mutate: func(s *Source) { s.Connection.InstanceURL = "" },
			sev:    SeverityError, path: "connection.instance_url", msg: "must not be empty",
		},
		{
			name:   "relative instance url",
			mutate: func(s *Source) { s.Connection.InstanceURL = "acme.my.salesforce.com" },
			sev:    SeverityError, path: "connection.instance_url", msg: "invalid instance URL",
		},
		{
			name:   "plain http",
			mutate: func(s *Source) { s.Connection.InstanceURL = "http://localhost:8080" },
			sev:    SeverityWarning, path: "connection.instance_url", msg: "not https",
		},
		{
			name:   "missing token names env var",
			mutate: func(s *Source) { s.Connection.AccessToken = "" },
			sev:    SeverityError, path: "connection.access_token", msg: "set SFPLAN_ACCESS_TOKEN",
		},
		{
			name:   "bad api version",
			mutate: func(s *Source) { s.Connection.APIVersion = "latest" },
			sev:    SeverityError, path: "connection.api_version", msg: "must look like",
		},
		{
			name:   "insecure tls",
			mutate: func(s *Source) { s.Connection.InsecureSkipVerify = true },
			sev:    SeverityWarning, path: "connection.insecure_skip_verify", msg: "disabled",
		},
		{
			name:   "query and sobject",
			mutate: func(s *Source) { s.Query = "SELECT Id FROM Account" },
			sev:    SeverityError, path: "query", msg: "mutually exclusive",
		},
		{
			name: "unparsable query",
			mutate: func(s *Source) {
				s.SObject = ""
				s.Query = "SELECT Id FROM Account, Contact"
			},
			sev: SeverityError, path: "query", msg: "",
		},
		{
			name:   "sobject with spaces",
			mutate: func(s *Source) { s.SObject = "Account Contact" },
			sev:    SeverityError, path: "sobject", msg: "not an object name",
		},
		{
			name:   "lists ignored",
			mutate: func(s *Source) { s.WhiteList = "Contact" },
			sev:    SeverityWarning, path: "white_list", msg: "ignored",
		},
		{
			name:   "all objects",
			mutate: func(s *Source) { s.SObject = "" },
			sev:    SeverityWarning, path: "white_list", msg: "every queryable object",
		},
		{
			name:   "unknown operation",
			mutate: func(s *Source) { s.Operation = "delete" },
			sev:    SeverityError, path: "operation", msg: "unknown operation",
		},
		{
			name:   "bad datetime_after",
			mutate: func(s *Source) { s.DatetimeAfter = "2024-01-01" },
			sev:    SeverityError, path: "datetime_after", msg: "RFC 3339",
		},
		{
			name:   "bad datetime_before",
			mutate: func(s *Source) { s.DatetimeBefore = "tomorrow" },
			sev:    SeverityError, path: "datetime_before", msg: "RFC 3339",
		},
		{
			name: "empty window",
			mutate: func(s *Source) {
				s.DatetimeAfter = "2024-02-01T00:00:00Z"
				s.DatetimeBefore = "2024-01-01T00:00:00Z"
			},
			sev: SeverityError, path: "datetime_before", msg: "later than",
		},
		{
			name: "window with explicit query",
			mutate: func(s *Source) {
				s.SObject = ""
				s.Query = "SELECT Id FROM Account"
				s.DatetimeAfter = "2024-01-01T00:00:00Z"
			},
			sev: SeverityWarning, path: "datetime_after", msg: "ignored",
		},
		{
			name: "schema in multi-object run",
			mutate: func(s *Source) {
				s.SObject = ""
				s.WhiteList = "Account"
				s.Schema = &schema.Schema{Fields: []schema.Field{{Name: "Id", Type: schema.String}}}
			},
			sev: SeverityError, path: "schema", msg: "single object",
		},
		{
			name:   "invalid schema",
			mutate: func(s *Source) { s.Schema = &schema.Schema{} },
			sev:    SeverityError, path: "schema", msg: "no fields",
		},
		{
			name:   "chunk size too large",
			mutate: func(s *Source) { s.Chunking = Chunking{Enabled: true, ChunkSize: MaxChunkSize + 1} },
			sev:    SeverityError, path: "chunking.chunk_size", msg: "must be between 1 and 250000",
		},
		{
			name:   "chunk size negative",
			mutate: func(s *Source) { s.Chunking = Chunking{Enabled: true, ChunkSize: -5} },
			sev:    SeverityError, path: "chunking.chunk_size", msg: "must be between",
		},
		{
			name:   "chunk options while disabled",
			mutate: func(s *Source) { s.Chunking = Chunking{Parent: "Account"} },
			sev:    SeverityWarning, path: "chunking.enabled", msg: "disabled",
		},
		{
			name:   "bad chunk parent",
			mutate: func(s *Source) { s.Chunking = Chunking{Enabled: true, ChunkSize: 10, Parent: "Account.Owner"} },
			sev:    SeverityError, path: "chunking.parent", msg: "not an object name",
		},
		{
			name:   "negative attempts",
			mutate: func(s *Source) { s.Retry.MaxAttempts = -1 },
			sev:    SeverityError, path: "retry.max_attempts", msg: "negative",
		},
		{
			name:   "max below initial",
			mutate: func(s *Source) { s.Retry.MaxDelay = s.Retry.InitialDelay / 2 },
			sev:    SeverityWarning, path: "retry.max_delay", msg: "below initial_delay",
		},
		{
			name:   "ledger without dsn",
			mutate: func(s *Source) { s.Ledger = Ledger{Kind: "postgres"} },
			sev:    SeverityError, path: "ledger.dsn", msg: "must not be empty",
		},
		{
			name:   "unknown ledger kind",
			mutate: func(s *Source) { s.Ledger = Ledger{Kind: "redis", DSN: "x"} },
			sev:    SeverityWarning, path: "ledger.kind", msg: "unknown ledger kind",
		},
		{
			name:   "bad ledger table",
			mutate: func(s *Source) { s.Ledger = Ledger{Kind: "sqlite", DSN: ":memory:", Table: "jobs;drop"} },
			sev:    SeverityError, path: "ledger.table", msg: "invalid table name",
		},
		{
			name:   "negative planners",
			mutate: func(s *Source) { s.Runtime.Planners = -1 },
			sev:    SeverityError, path: "runtime.planners", msg: "negative",
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			s := validSource()
			tc.mutate(&s)
			issues := Validate(s)
			if !hasIssue(t, issues, tc.sev, tc.path, tc.msg) {
				t.Fatalf("expected %s at %s containing %q; got %+v", tc.sev, tc.path, tc.msg, issues)
			}
		})
	}
}

func TestHasErrors(t *testing.T) {
	t.Parallel()

	if HasErrors([]Issue{{Severity: SeverityWarning}}) {
		t.Errorf("warnings only reported as errors")
	}
	if !HasErrors([]Issue{{Severity: SeverityWarning}, {Severity: SeverityError}}) {
		t.Errorf("error not reported")
	}
	iss := Issue{Severity: SeverityError, Path: "query", Message: "boom"}
	if got := iss.Error(); got != "error at query: boom" {
		t.Errorf("Error() = %q", got)
	}
}
