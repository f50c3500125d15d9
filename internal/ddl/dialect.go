package ddl

import (
	"fmt"
	"sort"
	"strings"

	"sfextract/internal/describe"
	"sfextract/internal/schema"
)

// Dialect maps output field kinds to column types and quotes identifiers.
type Dialect struct {
	Name  string
	quote func(string) string
	typ   func(schema.Field) string
}

func doubleQuote(s string) string { return `"` + strings.ReplaceAll(s, `"`, `""`) + `"` }

var dialects = map[string]Dialect{
	"postgres": {
		Name:  "postgres",
		quote: doubleQuote,
		typ: func(f schema.Field) string {
			switch f.Type {
			case schema.Boolean:
				return "BOOLEAN"
			case schema.Int:
				return "INTEGER"
			case schema.Long:
				return "BIGINT"
			case schema.Double:
				return "DOUBLE PRECISION"
			case schema.Decimal:
				return fmt.Sprintf("NUMERIC(%d,%d)", f.Precision, f.Scale)
			case schema.Date:
				return "DATE"
			case schema.Time:
				return "TIME"
			case schema.Timestamp:
				return "TIMESTAMPTZ"
			default:
				return "TEXT"
			}
		},
	},
	"mysql": {
		Name:  "mysql",
		quote: func(s string) string { return "`" + strings.ReplaceAll(s, "`", "``") + "`" },
		typ: func(f schema.Field) string {
			switch f.Type {
			case schema.Boolean:
				return "BOOLEAN"
			case schema.Int:
				return "INT"
			case schema.Long:
				return "BIGINT"
			case schema.Double:
				return "DOUBLE"
			case schema.Decimal:
				return fmt.Sprintf("DECIMAL(%d,%d)", f.Precision, f.Scale)
			case schema.Date:
				return "DATE"
			case schema.Time:
				return "TIME(3)"
			case schema.Timestamp:
				return "DATETIME(3)"
			default:
				return "LONGTEXT"
			}
		},
	},
	"mssql": {
		Name:  "mssql",
		quote: func(s string) string { return "[" + strings.ReplaceAll(s, "]", "]]") + "]" },
		typ: func(f schema.Field) string {
			switch f.Type {
			case schema.Boolean:
				return "BIT"
			case schema.Int:
				return "INT"
			case schema.Long:
				return "BIGINT"
			case schema.Double:
				return "FLOAT"
			case schema.Decimal:
				return fmt.Sprintf("DECIMAL(%d,%d)", f.Precision, f.Scale)
			case schema.Date:
				return "DATE"
			case schema.Time:
				return "TIME(3)"
			case schema.Timestamp:
				return "DATETIMEOFFSET(3)"
			default:
				return "NVARCHAR(MAX)"
			}
		},
	},
	// sqlite has type affinities only.
	"sqlite": {
		Name:  "sqlite",
		quote: doubleQuote,
		typ: func(f schema.Field) string {
			switch f.Type {
			case schema.Boolean, schema.Int, schema.Long:
				return "INTEGER"
			case schema.Double:
				return "REAL"
			case schema.Decimal:
				return "NUMERIC"
			default:
				return "TEXT"
			}
		},
	},
}

// Dialects lists the supported dialect names, sorted.
func Dialects() []string {
	out := make([]string, 0, len(dialects))
	for k := range dialects {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Lookup returns the named dialect.
func Lookup(name string) (Dialect, error) {
	d, ok := dialects[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Dialect{}, fmt.Errorf("ddl: unsupported dialect %q (want one of %s)", name, strings.Join(Dialects(), ", "))
	}
	return d, nil
}

// FromSchema builds the table definition for the rows of a resolved schema.
// table may be dotted ("schema.table"); each part is quoted separately. The
// Id field, when present, becomes the primary key.
func (d Dialect) FromSchema(table string, s schema.Schema) (TableDef, error) {
	if err := s.Validate(); err != nil {
		return TableDef{}, err
	}
	parts := strings.Split(table, ".")
	for i, p := range parts {
		if strings.TrimSpace(p) == "" {
			return TableDef{}, fmt.Errorf("ddl: invalid table name %q", table)
		}
		parts[i] = d.quote(p)
	}

	cols := make([]ColumnDef, len(s.Fields))
	for i, f := range s.Fields {
		pk := describe.Key(f.Name) == "id"
		cols[i] = ColumnDef{
			Name:       d.quote(f.Name),
			SQLType:    d.typ(f),
			Nullable:   f.Nullable && !pk,
			PrimaryKey: pk,
		}
	}
	return TableDef{FQN: strings.Join(parts, "."), Columns: cols}, nil
}

// CreateTable renders the CREATE TABLE statement for s.
func (d Dialect) CreateTable(table string, s schema.Schema) (string, error) {
	def, err := d.FromSchema(table, s)
	if err != nil {
		return "", err
	}
	return BuildCreateTableSQL(def)
}
