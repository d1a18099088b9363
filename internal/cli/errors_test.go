package cli

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReport(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
		out  string
	}{
		{"nil", nil, ExitSuccess, ""},
		{"plain error", errors.New("boom"), ExitGeneral, "Error: boom\n"},
		{"constraint", ConstraintError("existing data violates the schema", errors.New("duplicate key")), ExitConstraint,
			"Error: existing data violates the schema: duplicate key\n"},
		{"wrapped exit error", fmt.Errorf("migrate: %w", SchemaParseError("schema error", nil)), ExitSchemaParse,
			"Error: migrate: schema error\n"},
		{"unhealthy", UnhealthyError("health checks failed", nil), ExitUnhealthy, "Error: health checks failed\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			assert.Equal(t, tt.want, Report(&buf, tt.err))
			assert.Equal(t, tt.out, buf.String())
		})
	}
}

func TestExitError_Unwrap(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := DBConnectError("connecting to database", cause)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, ExitDBConnect, err.Code)
}
