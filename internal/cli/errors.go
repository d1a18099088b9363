// Package cli provides configuration, logging and exit codes for the lattice
// command.
package cli

import (
	"errors"
	"fmt"
	"io"
)

// Exit codes returned by the lattice command. Scripts running migrations in
// CI can tell a bad schema from bad data from an unreachable database.
const (
	ExitSuccess     = 0
	ExitGeneral     = 1
	ExitConfig      = 2
	ExitSchemaParse = 3
	ExitDBConnect   = 4
	// ExitConstraint means existing rows violate a constraint the schema adds,
	// e.g. duplicates under a new unique field. The migration was rolled back.
	ExitConstraint = 5
	// ExitUnhealthy means doctor found at least one failing check.
	ExitUnhealthy = 6
)

// ExitError carries the exit code for a failed command.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

func (e *ExitError) Unwrap() error { return e.Err }

// Report writes err to w and returns the process exit code for it.
func Report(w io.Writer, err error) int {
	if err == nil {
		return ExitSuccess
	}
	fmt.Fprintln(w, "Error:", err)
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitGeneral
}

func withCode(code int) func(msg string, err error) *ExitError {
	return func(msg string, err error) *ExitError {
		return &ExitError{Code: code, Message: msg, Err: err}
	}
}

var (
	// GeneralError reports a failure with no more specific code.
	GeneralError = withCode(ExitGeneral)
	// ConfigError reports invalid configuration or flags.
	ConfigError = withCode(ExitConfig)
	// SchemaParseError reports a schema that cannot be read, validated or compiled.
	SchemaParseError = withCode(ExitSchemaParse)
	// DBConnectError reports a database that cannot be opened or reached.
	DBConnectError = withCode(ExitDBConnect)
	// ConstraintError reports data that rejects a migration.
	ConstraintError = withCode(ExitConstraint)
	// UnhealthyError reports failing doctor checks.
	UnhealthyError = withCode(ExitUnhealthy)
)
