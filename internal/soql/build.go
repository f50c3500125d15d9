package soql

import (
	"strings"
	"time"
)

// DatetimeLayout is the literal format for datetime comparisons.
const DatetimeLayout = "2006-01-02T15:04:05Z"

// DefaultIncrementalField is the field incremental filters compare against.
const DefaultIncrementalField = "LastModifiedDate"

// Filter restricts a generated query to a modification window. Zero times
// are ignored.
type Filter struct {
	Field  string
	After  time.Time // inclusive
	Before time.Time // exclusive
}

// IsZero reports whether the filter adds no condition.
func (f Filter) IsZero() bool { return f.After.IsZero() && f.Before.IsZero() }

// BuildQuery renders a SELECT over the given fields of object, applying the
// optional incremental filter.
func BuildQuery(object string, fields []string, f Filter) string {
	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(strings.Join(fields, ","))
	b.WriteString(" FROM ")
	b.WriteString(object)

	field := f.Field
	if field == "" {
		field = DefaultIncrementalField
	}
	var conds []string
	if !f.After.IsZero() {
		conds = append(conds, field+" >= "+f.After.UTC().Format(DatetimeLayout))
	}
	if !f.Before.IsZero() {
		conds = append(conds, field+" < "+f.Before.UTC().Format(DatetimeLayout))
	}
	if len(conds) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(conds, " AND "))
	}
	return b.String()
}
