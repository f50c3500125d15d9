// Package describe resolves per-object field metadata with batched remote
// describe calls.
//
// Two layers are provided:
//
//   - Cache is scoped to a single schema-resolution pass. It memoizes entries
//     by object name and issues at most one remote call per Describe
//     invocation, however many objects are requested.
//   - SharedCache is an optional process-wide read-through layer that sits
//     between a Cache and the remote API. Concurrent describes of the same
//     object collapse into one remote call.
package describe

import (
	"context"
	"fmt"

	"golang.org/x/text/cases"
)

// FieldMeta is the metadata of one remote field.
type FieldMeta struct {
	Name      string `json:"name"`
	Type      string `json:"type"`
	Nillable  bool   `json:"nillable"`
	Custom    bool   `json:"custom"`
	Precision int    `json:"precision"`
	Scale     int    `json:"scale"`
}

// ObjectMeta is the describe result for one object as returned by the
// remote metadata API.
type ObjectMeta struct {
	Name   string      `json:"name"`
	Fields []FieldMeta `json:"fields"`
}

// Describer is the remote metadata API. DescribeObjects must describe every
// requested object in a single batched round trip.
type Describer interface {
	DescribeObjects(ctx context.Context, names []string) ([]ObjectMeta, error)
}

// RemoteDescribeError wraps a failed remote describe. Nothing from the failed
// call is cached.
type RemoteDescribeError struct {
	Objects []string
	Err     error
}

func (e *RemoteDescribeError) Error() string {
	return fmt.Sprintf("describe %v: %v", e.Objects, e.Err)
}

func (e *RemoteDescribeError) Unwrap() error { return e.Err }

// fold gives names the remote API treats as equal the same key.
var fold = cases.Fold()

// Key returns the case-folded lookup key for an object or field name.
func Key(name string) string { return fold.String(name) }

// Entry is the read-only describe result for one object. Field lookups are
// case-insensitive.
type Entry struct {
	object string
	fields []FieldMeta
	byKey  map[string]int
}

// NewEntry builds an Entry. Fields keep the order reported by the remote
// API.
func NewEntry(object string, fields []FieldMeta) *Entry {
	e := &Entry{
		object: object,
		fields: append([]FieldMeta(nil), fields...),
		byKey:  make(map[string]int, len(fields)),
	}
	for i, f := range e.fields {
		e.byKey[Key(f.Name)] = i
	}
	return e
}

// Object returns the object name as reported by the remote API.
func (e *Entry) Object() string { return e.object }

// Field looks up a field by name.
func (e *Entry) Field(name string) (FieldMeta, bool) {
	i, ok := e.byKey[Key(name)]
	if !ok {
		return FieldMeta{}, false
	}
	return e.fields[i], true
}

// Fields returns a copy of all fields in remote order.
func (e *Entry) Fields() []FieldMeta {
	return append([]FieldMeta(nil), e.fields...)
}

// Set maps object names to their entries. Lookups are case-insensitive.
type Set map[string]*Entry

// Get returns the entry for object.
func (s Set) Get(object string) (*Entry, bool) {
	e, ok := s[Key(object)]
	return e, ok
}

// toEntries indexes a remote response and checks every requested name is
// present. It is all or nothing.
func toEntries(requested []string, metas []ObjectMeta) (Set, error) {
	out := make(Set, len(metas))
	for _, m := range metas {
		out[Key(m.Name)] = NewEntry(m.Name, m.Fields)
	}
	var missing []string
	for _, n := range requested {
		if _, ok := out[Key(n)]; !ok {
			missing = append(missing, n)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("remote response is missing objects %v", missing)
	}
	return out, nil
}

// dedupe returns names with case-insensitive duplicates removed, keeping
// first spelling and order.
func dedupe(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		k := Key(n)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, n)
	}
	return out
}
