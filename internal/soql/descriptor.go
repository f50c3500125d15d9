// Package soql turns a bulk-query string (or a bare SObject name) into a
// structural description of the root object and the fields it selects,
// including fields reached through relationship traversals such as
// Account.Owner.Name.
package soql

import (
	"sort"
	"strings"
)

// Field is a selected field. Parents holds the relationship path leading to
// the field and is empty for a field that lives directly on the root object.
//
//	Account.Owner.Name -> Name="Name", Parents=["Account","Owner"]
type Field struct {
	Name    string
	Parents []string
}

// NewField splits a dotted reference on "." into leaf name and parent path.
func NewField(ref string) Field {
	parts := strings.Split(ref, ".")
	last := len(parts) - 1
	f := Field{Name: parts[last]}
	if last > 0 {
		f.Parents = append([]string(nil), parts[:last]...)
	}
	return f
}

// FullName is the parent path and leaf joined by dots. It is the output
// field key.
func (f Field) FullName() string {
	if len(f.Parents) == 0 {
		return f.Name
	}
	return strings.Join(f.Parents, ".") + "." + f.Name
}

// HasParents reports whether the field is reached through a relationship.
func (f Field) HasParents() bool { return len(f.Parents) > 0 }

// LastParent returns the object that directly owns the leaf field, or ""
// for root fields.
func (f Field) LastParent() string {
	if len(f.Parents) == 0 {
		return ""
	}
	return f.Parents[len(f.Parents)-1]
}

// ObjectDescriptor names the root object of a query and the ordered fields
// it selects. It is immutable; accessors hand out copies.
type ObjectDescriptor struct {
	name   string
	fields []Field
}

// NewObjectDescriptor builds a descriptor. An empty field list means "all
// fields of the object" and must be expanded before schema resolution.
func NewObjectDescriptor(name string, fields []Field) ObjectDescriptor {
	cp := make([]Field, len(fields))
	for i, f := range fields {
		cp[i] = Field{Name: f.Name, Parents: append([]string(nil), f.Parents...)}
	}
	return ObjectDescriptor{name: name, fields: cp}
}

// Name returns the root object name.
func (d ObjectDescriptor) Name() string { return d.name }

// Fields returns a copy of the selected fields in query order.
func (d ObjectDescriptor) Fields() []Field {
	out := make([]Field, len(d.fields))
	copy(out, d.fields)
	return out
}

// FieldNames returns the full (dotted) name of every field in query order.
func (d ObjectDescriptor) FieldNames() []string {
	out := make([]string, len(d.fields))
	for i, f := range d.fields {
		out[i] = f.FullName()
	}
	return out
}

// ParentObjects returns the minimal set of objects that must be described to
// type every field: the root object plus the last parent of each traversed
// field. Intermediate parents are not included. The result is sorted.
func (d ObjectDescriptor) ParentObjects() []string {
	set := map[string]struct{}{d.name: {}}
	for _, f := range d.fields {
		if f.HasParents() {
			set[f.LastParent()] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for n := range set {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Owner returns the object whose describe result types f.
func (d ObjectDescriptor) Owner(f Field) string {
	if f.HasParents() {
		return f.LastParent()
	}
	return d.name
}
