// Package all wires all built-in ledger backends into the storage factory.
//
// This package exists purely for side effects: importing it (even as a blank
// import) runs the init functions of each concrete backend, which register
// their factories with the storage package. After the import the following
// storage kinds are available:
//
//   - "sqlite"   (sfextract/internal/storage/sqlite)
//   - "postgres" (sfextract/internal/storage/postgres)
//   - "mssql"    (sfextract/internal/storage/mssql)
//   - "mysql"    (sfextract/internal/storage/mysql)
//
// A binary that needs only some backends can import those packages directly
// instead.
package all

import (
	_ "sfextract/internal/storage/mssql"
	_ "sfextract/internal/storage/mysql"
	_ "sfextract/internal/storage/postgres"
	_ "sfextract/internal/storage/sqlite"
)
