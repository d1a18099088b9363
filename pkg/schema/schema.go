// Package schema defines the declarative table schema that lattice compiles
// into PostgreSQL DDL and row-level security policies.
//
// A schema document is a list of tables. Each table declares typed fields, an
// optional primary key and the permissions governing who may read, create,
// update and delete its rows:
//
//	{
//	  "tables": [{
//	    "id": 1,
//	    "name": "posts",
//	    "fields": [
//	      {"name": "title", "type": "single-line-text", "required": true},
//	      {"name": "author", "type": "user", "indexed": true}
//	    ],
//	    "permissions": {
//	      "read": {"type": "public"},
//	      "update": {"type": "owner", "field": "author"}
//	    }
//	  }]
//	}
//
// # Field Types
//
// FieldType is a closed vocabulary. Every value maps to exactly one SQL column
// type (see internal/sqlgen). Unknown types are rejected by Validate with
// ErrUnknownFieldType before anything is compiled.
//
// # Permissions
//
// Each action carries at most one table-level rule (public, authenticated,
// roles or owner). Record-level rules add boolean conditions over row columns
// for an action. An action with neither is denied to everyone.
//
// # Validation
//
// Validate checks a whole schema and returns every problem found, joined with
// errors.Join. Use the Is*Err helpers to classify the result.
//
// The package depends only on go-playground/validator and the condition
// parser, so it can be imported by runtime code without pulling in the
// compiler.
package schema

// FieldType is the declared type of a field.
type FieldType string

const (
	TypeSingleLineText FieldType = "single-line-text"
	TypeLongText       FieldType = "long-text"
	TypeRichText       FieldType = "rich-text"
	TypeEmail          FieldType = "email"
	TypeURL            FieldType = "url"
	TypePhoneNumber    FieldType = "phone-number"
	TypeInteger        FieldType = "integer"
	TypeDecimal        FieldType = "decimal"
	TypeCurrency       FieldType = "currency"
	TypePercentage     FieldType = "percentage"
	TypeRating         FieldType = "rating"
	TypeCheckbox       FieldType = "checkbox"
	TypeDate           FieldType = "date"
	TypeDatetime       FieldType = "datetime"
	TypeTime           FieldType = "time"
	TypeSingleSelect   FieldType = "single-select"
	TypeMultiSelect    FieldType = "multi-select"
	TypeJSON           FieldType = "json"
	TypeUser           FieldType = "user"
)

// FieldTypes lists every supported field type in declaration order.
var FieldTypes = []FieldType{
	TypeSingleLineText, TypeLongText, TypeRichText, TypeEmail, TypeURL,
	TypePhoneNumber, TypeInteger, TypeDecimal, TypeCurrency, TypePercentage,
	TypeRating, TypeCheckbox, TypeDate, TypeDatetime, TypeTime,
	TypeSingleSelect, TypeMultiSelect, TypeJSON, TypeUser,
}

// Valid reports whether t is part of the vocabulary.
func (t FieldType) Valid() bool {
	for _, ft := range FieldTypes {
		if ft == t {
			return true
		}
	}
	return false
}

// IsNumeric reports whether values of t are numbers and may carry min/max bounds.
func (t FieldType) IsNumeric() bool {
	switch t {
	case TypeInteger, TypeDecimal, TypeCurrency, TypePercentage, TypeRating:
		return true
	default:
		return false
	}
}

// IsTextual reports whether values of t are stored as text.
func (t FieldType) IsTextual() bool {
	switch t {
	case TypeSingleLineText, TypeEmail, TypeURL, TypePhoneNumber, TypeSingleSelect, TypeLongText, TypeRichText:
		return true
	default:
		return false
	}
}

// Field is a column declaration.
type Field struct {
	Name     string    `json:"name" validate:"required"`
	Type     FieldType `json:"type" validate:"required"`
	Required bool      `json:"required,omitempty"`
	Unique   bool      `json:"unique,omitempty"`
	Indexed  bool      `json:"indexed,omitempty"`
	Default  any       `json:"default,omitempty"`
	Min      *float64  `json:"min,omitempty"`
	Max      *float64  `json:"max,omitempty"`

	// Options restricts single-select values.
	Options []string `json:"options,omitempty"`
}

// PrimaryKeyType selects how a table's primary key is built.
type PrimaryKeyType string

const (
	PrimaryKeyAutoIncrement PrimaryKeyType = "auto-increment"
	PrimaryKeyUUID          PrimaryKeyType = "uuid"
	PrimaryKeyComposite     PrimaryKeyType = "composite"
)

// DefaultPrimaryKeyField is the key column created when none is named.
const DefaultPrimaryKeyField = "id"

// PrimaryKey declares a table's primary key.
//
// auto-increment and uuid keys use Field (default "id"); the column is created
// by the compiler unless a field of that name is declared. composite keys list
// declared fields in Fields.
type PrimaryKey struct {
	Type   PrimaryKeyType `json:"type" validate:"required"`
	Field  string         `json:"field,omitempty"`
	Fields []string       `json:"fields,omitempty"`
}

// Columns returns the key column names.
func (pk PrimaryKey) Columns() []string {
	if pk.Type == PrimaryKeyComposite {
		return pk.Fields
	}
	if pk.Field == "" {
		return []string{DefaultPrimaryKeyField}
	}
	return []string{pk.Field}
}

// Table is a table declaration.
type Table struct {
	ID          int64        `json:"id,omitempty"`
	Name        string       `json:"name" validate:"required"`
	Fields      []Field      `json:"fields" validate:"dive"`
	PrimaryKey  *PrimaryKey  `json:"primaryKey,omitempty"`
	Permissions *Permissions `json:"permissions,omitempty"`
}

// Field returns the field named name.
func (t Table) Field(name string) (Field, bool) {
	for _, f := range t.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// PrimaryKeyOrDefault returns the declared primary key, or an auto-increment
// key on "id" when none is declared.
func (t Table) PrimaryKeyOrDefault() PrimaryKey {
	if t.PrimaryKey == nil {
		return PrimaryKey{Type: PrimaryKeyAutoIncrement, Field: DefaultPrimaryKeyField}
	}
	pk := *t.PrimaryKey
	if pk.Type != PrimaryKeyComposite && pk.Field == "" {
		pk.Field = DefaultPrimaryKeyField
	}
	return pk
}

// Columns returns every column of the compiled table: generated key columns
// first, then declared fields in order.
func (t Table) Columns() []string {
	var cols []string
	for _, c := range t.PrimaryKeyOrDefault().Columns() {
		if _, ok := t.Field(c); !ok {
			cols = append(cols, c)
		}
	}
	for _, f := range t.Fields {
		cols = append(cols, f.Name)
	}
	return cols
}

// HasColumn reports whether name is a column of the compiled table.
func (t Table) HasColumn(name string) bool {
	for _, c := range t.Columns() {
		if c == name {
			return true
		}
	}
	return false
}

// Action is a data operation governed by permissions.
type Action string

const (
	ActionRead   Action = "read"
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Actions lists every action in policy emission order.
var Actions = []Action{ActionRead, ActionCreate, ActionUpdate, ActionDelete}

// Valid reports whether a is a known action.
func (a Action) Valid() bool {
	switch a {
	case ActionRead, ActionCreate, ActionUpdate, ActionDelete:
		return true
	default:
		return false
	}
}

// RuleType is the kind of a table-level permission rule.
type RuleType string

const (
	RulePublic        RuleType = "public"
	RuleAuthenticated RuleType = "authenticated"
	RuleRoles         RuleType = "roles"
	RuleOwner         RuleType = "owner"
)

// PermissionRule is a table-level rule for one action.
type PermissionRule struct {
	Type  RuleType `json:"type" validate:"required"`
	Roles []string `json:"roles,omitempty"`
	Field string   `json:"field,omitempty"`
}

// RecordRule restricts an action to rows matching Condition.
type RecordRule struct {
	Action    Action `json:"action" validate:"required"`
	Condition string `json:"condition" validate:"required"`
}

// Permissions holds a table's rules.
type Permissions struct {
	Read    *PermissionRule `json:"read,omitempty"`
	Create  *PermissionRule `json:"create,omitempty"`
	Update  *PermissionRule `json:"update,omitempty"`
	Delete  *PermissionRule `json:"delete,omitempty"`
	Records []RecordRule    `json:"records,omitempty" validate:"dive"`
}

// Rule returns the table-level rule for a, or nil. It is safe on a nil receiver.
func (p *Permissions) Rule(a Action) *PermissionRule {
	if p == nil {
		return nil
	}
	switch a {
	case ActionRead:
		return p.Read
	case ActionCreate:
		return p.Create
	case ActionUpdate:
		return p.Update
	case ActionDelete:
		return p.Delete
	default:
		return nil
	}
}

// RecordConditions returns the record conditions declared for a, in order.
func (p *Permissions) RecordConditions(a Action) []string {
	if p == nil {
		return nil
	}
	var conds []string
	for _, r := range p.Records {
		if r.Action == a {
			conds = append(conds, r.Condition)
		}
	}
	return conds
}

// Schema is a parsed schema document.
type Schema struct {
	Tables []Table `json:"tables" validate:"dive"`
}
