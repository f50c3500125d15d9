package schema

import (
	"fmt"
	"strings"

	"sfextract/internal/describe"
	"sfextract/internal/soql"
)

// MapType maps a remote field type onto an output field type.
//
//	boolean                     -> boolean
//	int                         -> int
//	long                        -> long
//	double/currency/percent     -> decimal(p,s) when precision is known, else double
//	date / time / datetime      -> date / time / timestamp
//	everything else             -> string
func MapType(m describe.FieldMeta) Field {
	switch strings.ToLower(m.Type) {
	case "boolean":
		return Field{Type: Boolean}
	case "int":
		return Field{Type: Int}
	case "long":
		return Field{Type: Long}
	case "double", "currency", "percent":
		if m.Precision > 0 {
			return Field{Type: Decimal, Precision: m.Precision, Scale: m.Scale}
		}
		return Field{Type: Double}
	case "date":
		return Field{Type: Date}
	case "time":
		return Field{Type: Time}
	case "datetime":
		return Field{Type: Timestamp}
	default:
		return Field{Type: String}
	}
}

// Options tune Resolve.
type Options struct {
	// CustomFieldsNullable makes every custom field nullable in the output,
	// since custom fields are often declared required yet absent from some
	// rows.
	CustomFieldsNullable bool
}

// Resolve builds the output schema of d from describe entries. Each field is
// typed by the entry of the object that owns its leaf: the root object for
// plain fields, the last parent for traversed ones. Output names are the
// dotted names as written in the query.
//
// When declared is non-nil it must be compatible with the resolved schema
// (see CheckCompatibility) and is then returned unchanged: fields that exist
// remotely but are not declared are dropped from the output.
func Resolve(d soql.ObjectDescriptor, declared *Schema, entries describe.Set, opts Options) (Schema, error) {
	fields := d.Fields()
	if len(fields) == 0 {
		return Schema{}, fmt.Errorf("schema: %s: no fields selected", d.Name())
	}

	out := Schema{Fields: make([]Field, 0, len(fields))}
	for _, f := range fields {
		owner := d.Owner(f)
		entry, ok := entries.Get(owner)
		if !ok {
			return Schema{}, fmt.Errorf("schema: field %q: object %q was not described", f.FullName(), owner)
		}
		meta, ok := entry.Field(f.Name)
		if !ok {
			return Schema{}, fmt.Errorf("schema: field %q: %q has no field %q", f.FullName(), entry.Object(), f.Name)
		}
		of := MapType(meta)
		of.Name = f.FullName()
		of.Nullable = meta.Nillable || (opts.CustomFieldsNullable && meta.Custom)
		out.Fields = append(out.Fields, of)
	}

	if declared == nil {
		return out, nil
	}
	if err := CheckCompatibility(out, *declared); err != nil {
		return Schema{}, err
	}
	return *declared, nil
}
