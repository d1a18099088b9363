// Command lattice compiles table schemas to PostgreSQL DDL and row level
// security policies, applies them, and serves the resulting tables over HTTP.
//
// Usage:
//
//	lattice [flags] <command>
//
// Commands that touch the database (migrate, status, doctor, serve) need
// --db, database.url in lattice.yaml or LATTICE_DATABASE_URL. validate and
// compile only read the schema document.
package main

func main() {
	Execute()
}
