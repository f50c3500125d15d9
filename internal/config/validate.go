package config

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"sfextract/internal/bulk"
	"sfextract/internal/soql"
	"sfextract/internal/storage"
)

// IssueSeverity represents the severity of a configuration issue.
type IssueSeverity string

const (
	// SeverityError indicates a configuration error that should block execution.
	SeverityError IssueSeverity = "error"
	// SeverityWarning indicates a configuration warning that should be surfaced
	// to users but may not necessarily block execution.
	SeverityWarning IssueSeverity = "warning"
)

// Issue describes a single validation/lint finding.
//
// Path is a dotted path into the config (e.g. "chunking.chunk_size").
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

// Error implements the error interface so an Issue can be treated as a single
// error in contexts that expect error.
func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

// HasErrors reports whether issues contains at least one error.
func HasErrors(issues []Issue) bool {
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Validate performs static validation of s. It does not contact the remote
// service, so unknown object names in the white and black lists are
// reported by the run itself.
func Validate(s Source) []Issue {
	var issues []Issue
	issues = append(issues, validateConnection(s.Connection)...)
	issues = append(issues, validateSelection(s)...)
	issues = append(issues, validateChunking(s.Chunking)...)
	issues = append(issues, validateRetry(s.Retry)...)
	issues = append(issues, validateLedger(s.Ledger)...)
	if s.Runtime.Planners < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "runtime.planners",
			Message:  "planners must not be negative",
		})
	}
	return issues
}

var apiVersionRE = regexp.MustCompile(`^v?\d+\.\d+$`)

func validateConnection(c Connection) []Issue {
	var issues []Issue

	if strings.TrimSpace(c.InstanceURL) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "connection.instance_url",
			Message:  "connection.instance_url must not be empty",
		})
	} else if u, err := url.Parse(c.InstanceURL); err != nil || u.Scheme == "" || u.Host == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "connection.instance_url",
			Message:  fmt.Sprintf("invalid instance URL %q", c.InstanceURL),
		})
	} else if u.Scheme != "https" {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "connection.instance_url",
			Message:  "instance URL is not https; the access token is sent in clear text",
		})
	}

	if c.APIVersion != "" && !apiVersionRE.MatchString(c.APIVersion) {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "connection.api_version",
			Message:  fmt.Sprintf("api_version %q must look like 59.0", c.APIVersion),
		})
	}

	if c.AccessToken == "" {
		env := c.AccessTokenEnv
		if env == "" {
			env = DefaultAccessTokenEnv
		}
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "connection.access_token",
			Message:  fmt.Sprintf("no access token; set %s", env),
		})
	}

	if c.Timeout < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "connection.timeout",
			Message:  "timeout must not be negative",
		})
	}
	if c.MaxRetries < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "connection.max_retries",
			Message:  "max_retries must not be negative",
		})
	}
	if c.ProxyURL != "" {
		if _, err := url.Parse(c.ProxyURL); err != nil {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "connection.proxy_url",
				Message:  fmt.Sprintf("invalid proxy URL: %v", err),
			})
		}
	}
	if c.InsecureSkipVerify {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "connection.insecure_skip_verify",
			Message:  "TLS certificate verification is disabled",
		})
	}
	return issues
}

// validateSelection checks query, sobject, the object lists, the incremental
// window and the declared schema together, since which of them apply
// depends on the run mode.
func validateSelection(s Source) []Issue {
	var issues []Issue

	query := strings.TrimSpace(s.Query)
	sobject := strings.TrimSpace(s.SObject)
	lists := len(s.WhiteListNames()) > 0 || len(s.BlackListNames()) > 0

	switch {
	case query != "" && sobject != "":
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "query",
			Message:  "query and sobject are mutually exclusive",
		})
	case query != "":
		if _, err := soql.Parse(query); err != nil {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "query",
				Message:  err.Error(),
			})
		}
	case sobject != "":
		if d, err := soql.Parse(sobject); err != nil || len(d.Fields()) > 0 {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "sobject",
				Message:  fmt.Sprintf("sobject %q is not an object name", sobject),
			})
		}
	case !lists:
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "white_list",
			Message:  "no query, sobject, white_list or black_list; every queryable object will be planned",
		})
	}
	if lists && !s.MultiObject() {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "white_list",
			Message:  "white_list and black_list are ignored when query or sobject is set",
		})
	}

	switch bulk.Operation(s.Operation) {
	case "", bulk.Query, bulk.QueryAll:
	default:
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "operation",
			Message:  fmt.Sprintf("unknown operation %q; want query or queryAll", s.Operation),
		})
	}

	f, err := s.Filter()
	if err != nil {
		path := "datetime_after"
		if strings.HasPrefix(err.Error(), "datetime_before") {
			path = "datetime_before"
		}
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     path,
			Message:  fmt.Sprintf("%v; want RFC 3339 such as %s", err, time.RFC3339),
		})
	} else {
		if !f.After.IsZero() && !f.Before.IsZero() && !f.After.Before(f.Before) {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "datetime_before",
				Message:  "datetime_before must be later than datetime_after",
			})
		}
		if !f.IsZero() && query != "" {
			issues = append(issues, Issue{
				Severity: SeverityWarning,
				Path:     "datetime_after",
				Message:  "incremental window is ignored for an explicit query",
			})
		}
	}

	if s.Schema != nil {
		if s.MultiObject() {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "schema",
				Message:  "a declared schema applies to a single object; remove it or set query/sobject",
			})
		}
		if err := s.Schema.Validate(); err != nil {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "schema",
				Message:  err.Error(),
			})
		}
	}
	return issues
}

func validateChunking(c Chunking) []Issue {
	var issues []Issue
	if !c.Enabled {
		if c.Parent != "" || c.ChunkSize != 0 {
			issues = append(issues, Issue{
				Severity: SeverityWarning,
				Path:     "chunking.enabled",
				Message:  "chunking options are set but chunking is disabled",
			})
		}
		return issues
	}
	if c.ChunkSize < MinChunkSize || c.ChunkSize > MaxChunkSize {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "chunking.chunk_size",
			Message:  fmt.Sprintf("chunk_size=%d; must be between %d and %d", c.ChunkSize, MinChunkSize, MaxChunkSize),
		})
	}
	if c.Parent != "" {
		if d, err := soql.Parse(c.Parent); err != nil || len(d.Fields()) > 0 {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "chunking.parent",
				Message:  fmt.Sprintf("parent %q is not an object name", c.Parent),
			})
		}
	}
	return issues
}

func validateRetry(r Retry) []Issue {
	var issues []Issue
	if r.InitialDelay < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "retry.initial_delay",
			Message:  "initial_delay must not be negative",
		})
	}
	if r.MaxDelay < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "retry.max_delay",
			Message:  "max_delay must not be negative",
		})
	}
	if r.MaxAttempts < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "retry.max_attempts",
			Message:  "max_attempts must not be negative",
		})
	}
	if r.MaxDelay > 0 && r.MaxDelay < r.InitialDelay {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "retry.max_delay",
			Message:  "max_delay is below initial_delay; every wait will be initial_delay",
		})
	}
	return issues
}

func validateLedger(l Ledger) []Issue {
	var issues []Issue
	if strings.TrimSpace(l.Kind) == "" {
		return nil
	}

	known := map[string]struct{}{
		"postgres": {},
		"mysql":    {},
		"mssql":    {},
		"sqlite":   {},
	}
	if _, ok := known[l.Kind]; !ok {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "ledger.kind",
			Message:  fmt.Sprintf("unknown ledger kind %q; ensure a matching backend is registered", l.Kind),
		})
	}
	if strings.TrimSpace(l.DSN) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "ledger.dsn",
			Message:  "ledger.dsn must not be empty",
		})
	}
	if l.Table != "" {
		if err := storage.ValidateTable(l.Table); err != nil {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "ledger.table",
				Message:  err.Error(),
			})
		}
	}
	return issues
}
