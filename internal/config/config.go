// Package config defines the configuration model of a planning run and the
// helpers that load it from disk.
//
// A config file is JSON, or YAML when its extension is .yaml or .yml. Field
// names mirror the file keys.
//
// Example (trimmed):
//
//	{
//	  "job": "nightly-accounts",
//	  "connection": { "instance_url": "https://acme.my.salesforce.com" },
//	  "sobject": "Account",
//	  "datetime_after": "2024-01-01T00:00:00Z",
//	  "chunking": { "enabled": true, "chunk_size": 100000 },
//	  "ledger": { "kind": "sqlite", "dsn": "file:sfplan.db" }
//	}
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"sfextract/internal/bulk"
	"sfextract/internal/schema"
	"sfextract/internal/soql"
)

// Chunk size limits enforced by the remote service.
const (
	DefaultChunkSize = 100000
	MaxChunkSize     = 250000
	MinChunkSize     = 1
)

// DefaultAccessTokenEnv is the environment variable the access token is read
// from when connection.access_token_env is empty.
const DefaultAccessTokenEnv = "SFPLAN_ACCESS_TOKEN"

// PlannersEnv overrides runtime.planners.
const PlannersEnv = "SFPLAN_PLANNERS"

// Source is the top-level object decoded from a config file.
type Source struct {
	// Job labels metrics and log lines of this run.
	Job string `json:"job" yaml:"job"`

	Connection Connection `json:"connection" yaml:"connection"`

	// Exactly one of Query and SObject selects a single object. With
	// neither, every queryable object passing WhiteList and BlackList is
	// planned.
	Query     string `json:"query" yaml:"query"`
	SObject   string `json:"sobject" yaml:"sobject"`
	WhiteList string `json:"white_list" yaml:"white_list"` // comma separated
	BlackList string `json:"black_list" yaml:"black_list"` // comma separated

	// Operation is "query" (default) or "queryAll".
	Operation string `json:"operation" yaml:"operation"`

	// Incremental window for queries built from an object name, RFC 3339.
	DatetimeAfter  string `json:"datetime_after" yaml:"datetime_after"`
	DatetimeBefore string `json:"datetime_before" yaml:"datetime_before"`

	// Schema is the declared output schema of a single-object run.
	Schema *schema.Schema `json:"schema" yaml:"schema"`

	Chunking Chunking `json:"chunking" yaml:"chunking"`
	Retry    Retry    `json:"retry" yaml:"retry"`

	CustomFieldsNullable bool `json:"custom_fields_nullable" yaml:"custom_fields_nullable"`

	Ledger  Ledger  `json:"ledger" yaml:"ledger"`
	Runtime Runtime `json:"runtime" yaml:"runtime"`
}

// Connection locates the org. Credentials are never stored in the file by
// default; the token is read from AccessTokenEnv.
type Connection struct {
	InstanceURL string `json:"instance_url" yaml:"instance_url"`
	APIVersion  string `json:"api_version" yaml:"api_version"`

	AccessToken    string `json:"access_token" yaml:"access_token"`
	AccessTokenEnv string `json:"access_token_env" yaml:"access_token_env"`

	Timeout            Duration `json:"timeout" yaml:"timeout"`
	MaxRetries         int      `json:"max_retries" yaml:"max_retries"`
	ProxyURL           string   `json:"proxy_url" yaml:"proxy_url"`
	InsecureSkipVerify bool     `json:"insecure_skip_verify" yaml:"insecure_skip_verify"`
}

// Chunking configures primary-key chunking.
type Chunking struct {
	Enabled   bool   `json:"enabled" yaml:"enabled"`
	ChunkSize int    `json:"chunk_size" yaml:"chunk_size"`
	Parent    string `json:"parent" yaml:"parent"`
}

// Retry configures backoff for job submission and batch polling.
type Retry struct {
	// Enabled defaults to true; false means a single attempt.
	Enabled      *bool    `json:"enabled" yaml:"enabled"`
	InitialDelay Duration `json:"initial_delay" yaml:"initial_delay"`
	MaxDelay     Duration `json:"max_delay" yaml:"max_delay"`
	MaxAttempts  int      `json:"max_attempts" yaml:"max_attempts"`
}

// IsEnabled reports whether retries are on.
func (r Retry) IsEnabled() bool { return r.Enabled == nil || *r.Enabled }

// Ledger selects the job ledger backend. An empty Kind disables the ledger.
type Ledger struct {
	Kind  string `json:"kind" yaml:"kind"`
	DSN   string `json:"dsn" yaml:"dsn"`
	Table string `json:"table" yaml:"table"`
}

// Runtime controls concurrency.
type Runtime struct {
	// Planners bounds how many objects are planned at once in a
	// multi-object run.
	Planners int `json:"planners" yaml:"planners"`
}

// Duration is a time.Duration decoded from "5s"-style strings or from a
// number of seconds.
type Duration time.Duration

// D returns d as a time.Duration.
func (d Duration) D() time.Duration { return time.Duration(d) }

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		return d.set(s)
	}
	var n float64
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("duration: %s is neither a string nor a number", b)
	}
	*d = Duration(n * float64(time.Second))
	return nil
}

func (d *Duration) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration: line %d: expected a scalar", n.Line)
	}
	s := n.Value
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		*d = Duration(f * float64(time.Second))
		return nil
	}
	return d.set(s)
}

func (d *Duration) set(s string) error {
	if strings.TrimSpace(s) == "" {
		*d = 0
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("duration: %w", err)
	}
	*d = Duration(v)
	return nil
}

// Load reads the config at path, applies defaults and environment overrides.
// It does not validate; call Validate on the result.
func Load(path string) (Source, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Source{}, fmt.Errorf("read config: %w", err)
	}
	s, err := Decode(b, filepath.Ext(path))
	if err != nil {
		return Source{}, err
	}
	s.ApplyDefaults()
	ApplyEnv(&s, os.Getenv)
	return s, nil
}

// Decode decodes b as YAML when ext is ".yaml" or ".yml" and as JSON
// otherwise. Unknown keys are rejected.
func Decode(b []byte, ext string) (Source, error) {
	var s Source
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(b))
		dec.KnownFields(true)
		if err := dec.Decode(&s); err != nil {
			return Source{}, fmt.Errorf("decode yaml config: %w", err)
		}
	default:
		dec := json.NewDecoder(bytes.NewReader(b))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&s); err != nil {
			return Source{}, fmt.Errorf("decode json config: %w", err)
		}
	}
	return s, nil
}

// ApplyDefaults fills zero values with defaults.
func (s *Source) ApplyDefaults() {
	if s.Job == "" {
		s.Job = "sfplan"
	}
	if s.Connection.AccessTokenEnv == "" {
		s.Connection.AccessTokenEnv = DefaultAccessTokenEnv
	}
	if s.Connection.Timeout == 0 {
		s.Connection.Timeout = Duration(60 * time.Second)
	}
	if s.Operation == "" {
		s.Operation = string(bulk.Query)
	}
	if s.Chunking.Enabled && s.Chunking.ChunkSize == 0 {
		s.Chunking.ChunkSize = DefaultChunkSize
	}
	def := bulk.DefaultRetryPolicy()
	if s.Retry.InitialDelay == 0 {
		s.Retry.InitialDelay = Duration(def.InitialDelay)
	}
	if s.Retry.MaxDelay == 0 {
		s.Retry.MaxDelay = Duration(def.MaxDelay)
	}
	if s.Retry.MaxAttempts == 0 {
		s.Retry.MaxAttempts = def.MaxAttempts
	}
	if s.Ledger.Kind != "" && s.Ledger.Table == "" {
		s.Ledger.Table = "sfplan_jobs"
	}
	if s.Runtime.Planners == 0 {
		s.Runtime.Planners = 4
	}
}

// ApplyEnv applies environment overrides using getenv: the access token from
// the variable named by connection.access_token_env, and PlannersEnv.
func ApplyEnv(s *Source, getenv func(string) string) {
	name := s.Connection.AccessTokenEnv
	if name == "" {
		name = DefaultAccessTokenEnv
	}
	if tok := getenv(name); tok != "" {
		s.Connection.AccessToken = tok
	}
	if v := getenv(PlannersEnv); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			s.Runtime.Planners = n
		}
	}
}

// MultiObject reports whether the run plans every object selected by the
// white and black lists rather than one query.
func (s Source) MultiObject() bool {
	return strings.TrimSpace(s.Query) == "" && strings.TrimSpace(s.SObject) == ""
}

// WhiteListNames returns the parsed white list.
func (s Source) WhiteListNames() []string { return SplitList(s.WhiteList) }

// BlackListNames returns the parsed black list.
func (s Source) BlackListNames() []string { return SplitList(s.BlackList) }

// SplitList splits a comma separated list, trimming blanks and dropping
// empty items.
func SplitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Filter returns the incremental window.
func (s Source) Filter() (soql.Filter, error) {
	var (
		f   soql.Filter
		err error
	)
	if s.DatetimeAfter != "" {
		if f.After, err = time.Parse(time.RFC3339, s.DatetimeAfter); err != nil {
			return soql.Filter{}, fmt.Errorf("datetime_after: %w", err)
		}
	}
	if s.DatetimeBefore != "" {
		if f.Before, err = time.Parse(time.RFC3339, s.DatetimeBefore); err != nil {
			return soql.Filter{}, fmt.Errorf("datetime_before: %w", err)
		}
	}
	return f, nil
}

// RetryPolicy returns the bulk retry policy.
func (s Source) RetryPolicy() bulk.RetryPolicy {
	p := bulk.RetryPolicy{
		InitialDelay: s.Retry.InitialDelay.D(),
		MaxDelay:     s.Retry.MaxDelay.D(),
		MaxAttempts:  s.Retry.MaxAttempts,
	}
	if !s.Retry.IsEnabled() {
		p.MaxAttempts = 1
	}
	return p.Normalize()
}

// BulkChunking returns the chunking directive, or nil when chunking is off.
func (s Source) BulkChunking() *bulk.Chunking {
	if !s.Chunking.Enabled {
		return nil
	}
	size := s.Chunking.ChunkSize
	if size == 0 {
		size = DefaultChunkSize
	}
	return &bulk.Chunking{Size: size, Parent: strings.TrimSpace(s.Chunking.Parent)}
}
