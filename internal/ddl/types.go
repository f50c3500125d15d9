package ddl

// ColumnDef is one column of a table definition. Name and SQLType are
// emitted as given; quoting happens when the definition is built.
type ColumnDef struct {
	Name       string
	SQLType    string
	Nullable   bool
	PrimaryKey bool
}

// TableDef holds the already quoted table name and its ordered columns.
type TableDef struct {
	FQN     string
	Columns []ColumnDef
}
