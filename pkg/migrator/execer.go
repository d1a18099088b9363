package migrator

import "github.com/pthm/lattice"

// Execer is the minimal interface needed for schema migration operations.
// Implemented by *sql.DB, *sql.Tx, and *sql.Conn. When the Execer also
// has BeginTx, a migration runs in a single transaction.
type Execer = lattice.Querier
