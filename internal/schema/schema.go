// Package schema resolves the output schema of a bulk query from describe
// metadata and reconciles it against a caller-declared schema.
package schema

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/zeebo/xxh3"
)

// Kind is an output field type.
type Kind string

const (
	Boolean   Kind = "boolean"
	Int       Kind = "int"
	Long      Kind = "long"
	Double    Kind = "double"
	Decimal   Kind = "decimal"
	Date      Kind = "date"
	Time      Kind = "time"
	Timestamp Kind = "timestamp"
	String    Kind = "string"
)

var knownKinds = map[Kind]struct{}{
	Boolean: {}, Int: {}, Long: {}, Double: {}, Decimal: {},
	Date: {}, Time: {}, Timestamp: {}, String: {},
}

// Field is one output column. Precision and Scale are only meaningful for
// Decimal.
type Field struct {
	Name      string `json:"name"`
	Type      Kind   `json:"type"`
	Precision int    `json:"precision,omitempty"`
	Scale     int    `json:"scale,omitempty"`
	Nullable  bool   `json:"nullable,omitempty"`
}

// TypeString renders the type, e.g. "decimal(18,2)".
func (f Field) TypeString() string {
	if f.Type == Decimal {
		return fmt.Sprintf("decimal(%d,%d)", f.Precision, f.Scale)
	}
	return string(f.Type)
}

// SameType reports whether f and o have exactly the same type. There is no
// widening: int never matches long and decimal precision must agree.
func (f Field) SameType(o Field) bool {
	if f.Type != o.Type {
		return false
	}
	if f.Type == Decimal {
		return f.Precision == o.Precision && f.Scale == o.Scale
	}
	return true
}

// Schema is an ordered list of output fields.
type Schema struct {
	Fields []Field `json:"fields"`
}

// Field returns the field with the given name.
func (s Schema) Field(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Names returns field names in order.
func (s Schema) Names() []string {
	out := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		out[i] = f.Name
	}
	return out
}

// Fingerprint is a stable hash over names, types and nullability. Two runs
// that resolve the same shape log the same fingerprint.
func (s Schema) Fingerprint() string {
	var b strings.Builder
	for _, f := range s.Fields {
		b.WriteString(f.Name)
		b.WriteByte(':')
		b.WriteString(f.TypeString())
		if f.Nullable {
			b.WriteByte('?')
		}
		b.WriteByte(';')
	}
	return strconv.FormatUint(xxh3.HashString(b.String()), 16)
}

// Validate checks that a schema is usable: non-empty, unique names, known
// types.
func (s Schema) Validate() error {
	if len(s.Fields) == 0 {
		return fmt.Errorf("schema: no fields")
	}
	seen := make(map[string]struct{}, len(s.Fields))
	for i, f := range s.Fields {
		if strings.TrimSpace(f.Name) == "" {
			return fmt.Errorf("schema: fields[%d]: empty name", i)
		}
		if _, dup := seen[f.Name]; dup {
			return fmt.Errorf("schema: duplicate field %q", f.Name)
		}
		seen[f.Name] = struct{}{}
		if _, ok := knownKinds[f.Type]; !ok {
			return fmt.Errorf("schema: field %q: unknown type %q", f.Name, f.Type)
		}
		if f.Type == Decimal && (f.Precision <= 0 || f.Scale < 0 || f.Scale > f.Precision) {
			return fmt.Errorf("schema: field %q: invalid decimal(%d,%d)", f.Name, f.Precision, f.Scale)
		}
	}
	return nil
}

// Parse decodes a JSON schema document and validates it.
func Parse(b []byte) (Schema, error) {
	var s Schema
	if err := json.Unmarshal(b, &s); err != nil {
		return Schema{}, fmt.Errorf("schema: decode: %w", err)
	}
	if err := s.Validate(); err != nil {
		return Schema{}, err
	}
	return s, nil
}
