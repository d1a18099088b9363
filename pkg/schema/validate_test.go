package schema_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pthm/lattice/pkg/schema"
)

func ptr[T any](v T) *T { return &v }

func postsTable() schema.Table {
	return schema.Table{
		ID:   1,
		Name: "posts",
		Fields: []schema.Field{
			{Name: "title", Type: schema.TypeSingleLineText, Required: true},
			{Name: "created_by", Type: schema.TypeUser},
			{Name: "category", Type: schema.TypeSingleLineText},
			{Name: "status", Type: schema.TypeSingleSelect, Options: []string{"draft", "published"}},
			{Name: "score", Type: schema.TypePercentage, Min: ptr(0.0), Max: ptr(100.0)},
		},
		Permissions: &schema.Permissions{
			Read:   &schema.PermissionRule{Type: schema.RulePublic},
			Update: &schema.PermissionRule{Type: schema.RuleOwner, Field: "created_by"},
			Records: []schema.RecordRule{
				{Action: schema.ActionDelete, Condition: "{userId} = created_by AND status = 'draft'"},
			},
		},
	}
}

func TestValidate_Valid(t *testing.T) {
	require.NoError(t, schema.Validate([]schema.Table{postsTable()}))
}

func TestValidate_OwnerFieldNotFound(t *testing.T) {
	tbl := postsTable()
	tbl.Permissions.Update = &schema.PermissionRule{Type: schema.RuleOwner, Field: "author"}
	tbl.Fields = tbl.Fields[:1]

	err := schema.Validate([]schema.Table{tbl})
	require.Error(t, err)
	assert.True(t, schema.IsOwnerFieldNotFoundErr(err))
	assert.False(t, schema.IsOwnerFieldTypeMismatchErr(err))
	assert.Contains(t, err.Error(), `owner permission on table "posts": field "author" not found`)
}

func TestValidate_OwnerFieldTypeMismatch(t *testing.T) {
	tbl := postsTable()
	tbl.Permissions.Update = &schema.PermissionRule{Type: schema.RuleOwner, Field: "category"}

	err := schema.Validate([]schema.Table{tbl})
	require.Error(t, err)
	assert.True(t, schema.IsOwnerFieldTypeMismatchErr(err))
	assert.False(t, schema.IsOwnerFieldNotFoundErr(err))
	assert.Contains(t, err.Error(), `owner permission on table "posts": field "category" must be of type user, got single-line-text`)
}

func TestValidate_OwnerReportedOncePerField(t *testing.T) {
	tbl := postsTable()
	tbl.Permissions.Update = &schema.PermissionRule{Type: schema.RuleOwner, Field: "missing"}
	tbl.Permissions.Delete = &schema.PermissionRule{Type: schema.RuleOwner, Field: "missing"}

	err := schema.Validate([]schema.Table{tbl})
	require.Error(t, err)
	assert.Equal(t, 1, strings.Count(err.Error(), `field "missing" not found`))
}

func TestValidate_RequiredFieldMissing(t *testing.T) {
	tests := []struct {
		name    string
		table   schema.Table
		wantMsg string
	}{
		{
			name:    "table name",
			table:   schema.Table{Fields: []schema.Field{{Name: "a", Type: schema.TypeInteger}}},
			wantMsg: `table "tables[0]": name is required`,
		},
		{
			name:    "field type",
			table:   schema.Table{Name: "t", Fields: []schema.Field{{Name: "a"}}},
			wantMsg: "fields[0].type is required",
		},
		{
			name: "rule type",
			table: schema.Table{Name: "t", Permissions: &schema.Permissions{
				Read: &schema.PermissionRule{},
			}},
			wantMsg: "permissions.read.type is required",
		},
		{
			name: "record condition",
			table: schema.Table{Name: "t", Permissions: &schema.Permissions{
				Records: []schema.RecordRule{{Action: schema.ActionRead}},
			}},
			wantMsg: "permissions.records[0].condition is required",
		},
		{
			name: "roles list",
			table: schema.Table{Name: "t", Permissions: &schema.Permissions{
				Read: &schema.PermissionRule{Type: schema.RuleRoles},
			}},
			wantMsg: "must list at least one role",
		},
		{
			name: "owner field",
			table: schema.Table{Name: "t", Permissions: &schema.Permissions{
				Read: &schema.PermissionRule{Type: schema.RuleOwner},
			}},
			wantMsg: "field is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := schema.Validate([]schema.Table{tt.table})
			require.Error(t, err)
			assert.True(t, schema.IsRequiredFieldMissingErr(err))
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name  string
		table schema.Table
		is    func(error) bool
	}{
		{
			name:  "uppercase table name",
			table: schema.Table{Name: "Posts"},
			is:    schema.IsInvalidIdentifierErr,
		},
		{
			name:  "field name with quote",
			table: schema.Table{Name: "t", Fields: []schema.Field{{Name: `a"b`, Type: schema.TypeInteger}}},
			is:    schema.IsInvalidIdentifierErr,
		},
		{
			name: "duplicate field",
			table: schema.Table{Name: "t", Fields: []schema.Field{
				{Name: "a", Type: schema.TypeInteger},
				{Name: "a", Type: schema.TypeEmail},
			}},
			is: schema.IsDuplicateNameErr,
		},
		{
			name:  "unknown type",
			table: schema.Table{Name: "t", Fields: []schema.Field{{Name: "a", Type: "geometry"}}},
			is:    schema.IsUnknownFieldTypeErr,
		},
		{
			name:  "bounds on text",
			table: schema.Table{Name: "t", Fields: []schema.Field{{Name: "a", Type: schema.TypeEmail, Min: ptr(1.0)}}},
			is:    schema.IsInvalidBoundsErr,
		},
		{
			name:  "min above max",
			table: schema.Table{Name: "t", Fields: []schema.Field{{Name: "a", Type: schema.TypeRating, Min: ptr(5.0), Max: ptr(1.0)}}},
			is:    schema.IsInvalidBoundsErr,
		},
		{
			name:  "options on integer",
			table: schema.Table{Name: "t", Fields: []schema.Field{{Name: "a", Type: schema.TypeInteger, Options: []string{"x"}}}},
			is:    schema.IsInvalidBoundsErr,
		},
		{
			name:  "default wrong type",
			table: schema.Table{Name: "t", Fields: []schema.Field{{Name: "a", Type: schema.TypeCheckbox, Default: "yes"}}},
			is:    schema.IsInvalidDefaultErr,
		},
		{
			name:  "default outside bounds",
			table: schema.Table{Name: "t", Fields: []schema.Field{{Name: "a", Type: schema.TypePercentage, Max: ptr(100.0), Default: 150.0}}},
			is:    schema.IsInvalidDefaultErr,
		},
		{
			name:  "default not an option",
			table: schema.Table{Name: "t", Fields: []schema.Field{{Name: "a", Type: schema.TypeSingleSelect, Options: []string{"x"}, Default: "y"}}},
			is:    schema.IsInvalidDefaultErr,
		},
		{
			name:  "user default not a uuid",
			table: schema.Table{Name: "t", Fields: []schema.Field{{Name: "a", Type: schema.TypeUser, Default: "bob"}}},
			is:    schema.IsInvalidDefaultErr,
		},
		{
			name:  "unknown key type",
			table: schema.Table{Name: "t", PrimaryKey: &schema.PrimaryKey{Type: "serial"}},
			is:    schema.IsInvalidPrimaryKeyErr,
		},
		{
			name: "composite with one field",
			table: schema.Table{Name: "t", Fields: []schema.Field{{Name: "a", Type: schema.TypeInteger}},
				PrimaryKey: &schema.PrimaryKey{Type: schema.PrimaryKeyComposite, Fields: []string{"a"}}},
			is: schema.IsInvalidPrimaryKeyErr,
		},
		{
			name: "composite with unknown field",
			table: schema.Table{Name: "t", Fields: []schema.Field{{Name: "a", Type: schema.TypeInteger}},
				PrimaryKey: &schema.PrimaryKey{Type: schema.PrimaryKeyComposite, Fields: []string{"a", "b"}}},
			is: schema.IsInvalidPrimaryKeyErr,
		},
		{
			name:  "declared id of wrong type",
			table: schema.Table{Name: "t", Fields: []schema.Field{{Name: "id", Type: schema.TypeEmail}}},
			is:    schema.IsInvalidPrimaryKeyErr,
		},
		{
			name: "unknown rule type",
			table: schema.Table{Name: "t", Permissions: &schema.Permissions{
				Read: &schema.PermissionRule{Type: "everyone"},
			}},
			is: schema.IsInvalidPermissionErr,
		},
		{
			name: "unknown record action",
			table: schema.Table{Name: "t", Permissions: &schema.Permissions{
				Records: []schema.RecordRule{{Action: "archive", Condition: "id = 1"}},
			}},
			is: schema.IsInvalidPermissionErr,
		},
		{
			name: "condition with unsupported operator",
			table: schema.Table{Name: "t", Fields: []schema.Field{{Name: "a", Type: schema.TypeInteger}},
				Permissions: &schema.Permissions{
					Records: []schema.RecordRule{{Action: schema.ActionRead, Condition: "a > 1"}},
				}},
			is: schema.IsInvalidConditionErr,
		},
		{
			name: "user id compared with integer",
			table: schema.Table{Name: "t", Fields: []schema.Field{{Name: "level", Type: schema.TypeInteger}},
				Permissions: &schema.Permissions{
					Records: []schema.RecordRule{{Action: schema.ActionRead, Condition: "{userId} = level"}},
				}},
			is: schema.IsInvalidConditionErr,
		},
		{
			name: "user id compared with checkbox",
			table: schema.Table{Name: "t", Fields: []schema.Field{{Name: "done", Type: schema.TypeCheckbox}},
				Permissions: &schema.Permissions{
					Records: []schema.RecordRule{{Action: schema.ActionRead, Condition: "done = {userId}"}},
				}},
			is: schema.IsInvalidConditionErr,
		},
		{
			name: "user id compared with generated integer key",
			table: schema.Table{Name: "t", Permissions: &schema.Permissions{
				Records: []schema.RecordRule{{Action: schema.ActionRead, Condition: "id = {userId}"}},
			}},
			is: schema.IsInvalidConditionErr,
		},
		{
			name: "condition with unknown column",
			table: schema.Table{Name: "t", Permissions: &schema.Permissions{
				Records: []schema.RecordRule{{Action: schema.ActionRead, Condition: "owner = {userId}"}},
			}},
			is: schema.IsInvalidConditionErr,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := schema.Validate([]schema.Table{tt.table})
			require.Error(t, err)
			assert.True(t, tt.is(err), "unexpected error: %v", err)
		})
	}
}

func TestValidate_ConditionMayUseGeneratedKey(t *testing.T) {
	tbl := schema.Table{Name: "t", Permissions: &schema.Permissions{
		Records: []schema.RecordRule{{Action: schema.ActionRead, Condition: "id = 1"}},
	}}
	require.NoError(t, schema.Validate([]schema.Table{tbl}))
}

func TestValidate_UserIDComparableColumns(t *testing.T) {
	tbl := schema.Table{
		Name:       "t",
		PrimaryKey: &schema.PrimaryKey{Type: schema.PrimaryKeyUUID},
		Fields: []schema.Field{
			{Name: "created_by", Type: schema.TypeUser},
			{Name: "owner_name", Type: schema.TypeSingleLineText},
			{Name: "owner_email", Type: schema.TypeEmail},
		},
		Permissions: &schema.Permissions{
			Records: []schema.RecordRule{
				{Action: schema.ActionRead, Condition: "{userId} = created_by OR owner_name = {userId}"},
				{Action: schema.ActionUpdate, Condition: "id = {userId} OR {userId} = owner_email"},
			},
		},
	}
	require.NoError(t, schema.Validate([]schema.Table{tbl}))
}

func TestValidate_DerivedNameLength(t *testing.T) {
	// 49 characters: the longest policy name is 63.
	table := strings.Repeat("t", 49)
	ok := schema.Table{Name: table}
	require.NoError(t, schema.Validate([]schema.Table{ok}))

	long := schema.Table{Name: table + "x"}
	err := schema.Validate([]schema.Table{long})
	require.Error(t, err)
	assert.True(t, schema.IsInvalidIdentifierErr(err), "unexpected error: %v", err)
	assert.Contains(t, err.Error(), table+"x_create_policy")

	field := schema.Table{
		Name:   "accounts",
		Fields: []schema.Field{{Name: strings.Repeat("f", 49), Type: schema.TypeSingleLineText, Indexed: true}},
	}
	err = schema.Validate([]schema.Table{field})
	require.Error(t, err)
	assert.True(t, schema.IsInvalidIdentifierErr(err), "unexpected error: %v", err)
	assert.Contains(t, err.Error(), "_check")

	field.Fields[0].Name = strings.Repeat("f", 48)
	require.NoError(t, schema.Validate([]schema.Table{field}))
}

func TestValidate_DuplicateTables(t *testing.T) {
	err := schema.Validate([]schema.Table{{Name: "posts"}, {Name: "posts"}})
	require.Error(t, err)
	assert.True(t, schema.IsDuplicateNameErr(err))
	assert.Contains(t, err.Error(), `table "posts" declared more than once`)
}

func TestValidate_CollectsAllTables(t *testing.T) {
	err := schema.Validate([]schema.Table{
		{Name: "a", Fields: []schema.Field{{Name: "x", Type: "nope"}}},
		{Name: "b", Permissions: &schema.Permissions{Read: &schema.PermissionRule{Type: schema.RuleOwner, Field: "y"}}},
	})
	require.Error(t, err)
	assert.True(t, schema.IsUnknownFieldTypeErr(err))
	assert.True(t, schema.IsOwnerFieldNotFoundErr(err))
}

func TestTable_Columns(t *testing.T) {
	tests := []struct {
		name  string
		table schema.Table
		want  []string
	}{
		{
			name:  "generated id",
			table: schema.Table{Name: "t", Fields: []schema.Field{{Name: "a"}}},
			want:  []string{"id", "a"},
		},
		{
			name:  "declared id",
			table: schema.Table{Name: "t", Fields: []schema.Field{{Name: "id"}, {Name: "a"}}},
			want:  []string{"id", "a"},
		},
		{
			name: "named uuid key",
			table: schema.Table{Name: "t", Fields: []schema.Field{{Name: "a"}},
				PrimaryKey: &schema.PrimaryKey{Type: schema.PrimaryKeyUUID, Field: "key"}},
			want: []string{"key", "a"},
		},
		{
			name: "composite",
			table: schema.Table{Name: "t", Fields: []schema.Field{{Name: "a"}, {Name: "b"}},
				PrimaryKey: &schema.PrimaryKey{Type: schema.PrimaryKeyComposite, Fields: []string{"a", "b"}}},
			want: []string{"a", "b"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.table.Columns())
		})
	}
}
