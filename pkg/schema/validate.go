package schema

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/pthm/lattice/internal/condition"
)

// maxIdentifierLength is PostgreSQL's NAMEDATALEN - 1.
const maxIdentifierLength = 63

var identifierPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

var structValidator = newStructValidator()

func newStructValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks every table of a schema. It returns nil when the schema
// compiles, or all problems found joined with errors.Join. Nothing is
// compiled from a schema that fails validation.
func Validate(tables []Table) error {
	var errs []error
	seen := make(map[string]bool, len(tables))
	for i, t := range tables {
		if err := validateTable(t, i); err != nil {
			errs = append(errs, err)
		}
		if t.Name == "" {
			continue
		}
		if seen[t.Name] {
			errs = append(errs, fmt.Errorf("%w: table %q declared more than once", ErrDuplicateName, t.Name))
		}
		seen[t.Name] = true
	}
	return errors.Join(errs...)
}

// ValidateTable checks a single table in isolation.
func ValidateTable(t Table) error {
	return validateTable(t, 0)
}

func validateTable(t Table, index int) error {
	label := t.Name
	if label == "" {
		label = fmt.Sprintf("tables[%d]", index)
	}

	// Later checks assume names and types are present.
	if errs := checkStructure(t, label); len(errs) > 0 {
		return errors.Join(errs...)
	}

	var errs []error
	errs = append(errs, checkIdentifiers(t)...)
	errs = append(errs, checkDuplicateFields(t)...)
	errs = append(errs, checkFieldTypes(t)...)
	errs = append(errs, checkPrimaryKey(t)...)
	errs = append(errs, checkPermissions(t)...)
	return errors.Join(errs...)
}

func checkStructure(t Table, label string) []error {
	err := structValidator.Struct(t)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []error{fmt.Errorf("%w: table %q: %v", ErrRequiredFieldMissing, label, err)}
	}
	errs := make([]error, 0, len(verrs))
	for _, fe := range verrs {
		// Namespace is "Table.fields[0].name"; drop the struct name.
		_, path, _ := strings.Cut(fe.Namespace(), ".")
		errs = append(errs, fmt.Errorf("%w: table %q: %s is required", ErrRequiredFieldMissing, label, path))
	}
	return errs
}

func checkIdentifier(kind, name string) error {
	if !identifierPattern.MatchString(name) {
		return fmt.Errorf("%w: %s %q must match %s", ErrInvalidIdentifier, kind, name, identifierPattern)
	}
	if len(name) > maxIdentifierLength {
		return fmt.Errorf("%w: %s %q is longer than %d characters", ErrInvalidIdentifier, kind, name, maxIdentifierLength)
	}
	return nil
}

func checkIdentifiers(t Table) []error {
	var errs []error
	if err := checkIdentifier("table name", t.Name); err != nil {
		errs = append(errs, err)
	}
	for _, f := range t.Fields {
		if err := checkIdentifier(fmt.Sprintf("field name on table %q:", t.Name), f.Name); err != nil {
			errs = append(errs, err)
		}
	}
	if t.PrimaryKey != nil && t.PrimaryKey.Field != "" {
		if err := checkIdentifier(fmt.Sprintf("primary key field on table %q:", t.Name), t.PrimaryKey.Field); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		errs = append(errs, checkDerivedNames(t)...)
	}
	return errs
}

// checkDerivedNames rejects tables whose generated object names would be
// truncated by PostgreSQL. Only the longest name per table and per field is
// reported.
func checkDerivedNames(t Table) []error {
	var errs []error
	tooLong := func(name string) {
		if len(name) > maxIdentifierLength {
			errs = append(errs, fmt.Errorf("%w: table %q: derived name %q is longer than %d characters", ErrInvalidIdentifier, t.Name, name, maxIdentifierLength))
		}
	}
	longest := ""
	for _, a := range Actions {
		if name := t.Name + "_" + string(a) + "_policy"; len(name) > len(longest) {
			longest = name
		}
	}
	tooLong(longest)
	for _, f := range t.Fields {
		// "_check" outlasts "_key", "_fkey" and the "idx_" prefix.
		tooLong(t.Name + "_" + f.Name + "_check")
	}
	return errs
}

func checkDuplicateFields(t Table) []error {
	var errs []error
	seen := make(map[string]bool, len(t.Fields))
	for _, f := range t.Fields {
		if seen[f.Name] {
			errs = append(errs, fmt.Errorf("%w: table %q: field %q declared more than once", ErrDuplicateName, t.Name, f.Name))
		}
		seen[f.Name] = true
	}
	return errs
}

func checkFieldTypes(t Table) []error {
	var errs []error
	for _, f := range t.Fields {
		if !f.Type.Valid() {
			errs = append(errs, fmt.Errorf("%w: table %q: field %q has type %q", ErrUnknownFieldType, t.Name, f.Name, f.Type))
			continue
		}
		errs = append(errs, checkBounds(t.Name, f)...)
		if f.Default != nil {
			if err := checkDefault(f); err != nil {
				errs = append(errs, fmt.Errorf("%w: table %q: field %q: %v", ErrInvalidDefault, t.Name, f.Name, err))
			}
		}
	}
	return errs
}

func checkBounds(table string, f Field) []error {
	var errs []error
	if (f.Min != nil || f.Max != nil) && !f.Type.IsNumeric() {
		errs = append(errs, fmt.Errorf("%w: table %q: field %q of type %s cannot declare min/max", ErrInvalidBounds, table, f.Name, f.Type))
	}
	if f.Min != nil && f.Max != nil && *f.Min > *f.Max {
		errs = append(errs, fmt.Errorf("%w: table %q: field %q has min %v greater than max %v", ErrInvalidBounds, table, f.Name, *f.Min, *f.Max))
	}
	if len(f.Options) > 0 && f.Type != TypeSingleSelect && f.Type != TypeMultiSelect {
		errs = append(errs, fmt.Errorf("%w: table %q: field %q of type %s cannot declare options", ErrInvalidBounds, table, f.Name, f.Type))
	}
	for _, o := range f.Options {
		if o == "" {
			errs = append(errs, fmt.Errorf("%w: table %q: field %q has an empty option", ErrInvalidBounds, table, f.Name))
			break
		}
	}
	return errs
}

// checkDefault checks a default value as decoded from JSON.
func checkDefault(f Field) error {
	switch {
	case f.Type == TypeCheckbox:
		if _, ok := f.Default.(bool); !ok {
			return fmt.Errorf("default must be a boolean, got %T", f.Default)
		}
	case f.Type.IsNumeric():
		n, ok := toFloat(f.Default)
		if !ok {
			return fmt.Errorf("default must be a number, got %T", f.Default)
		}
		if (f.Type == TypeInteger || f.Type == TypeRating) && n != math.Trunc(n) {
			return fmt.Errorf("default %v must be a whole number", n)
		}
		if (f.Min != nil && n < *f.Min) || (f.Max != nil && n > *f.Max) {
			return fmt.Errorf("default %v is outside the declared bounds", n)
		}
	case f.Type == TypeMultiSelect:
		vals, err := StringList(f.Default)
		if err != nil {
			return fmt.Errorf("default must be a list of strings: %v", err)
		}
		for _, s := range vals {
			if !f.allowsOption(s) {
				return fmt.Errorf("default %q is not one of the options", s)
			}
		}
	case f.Type == TypeJSON:
		// Any JSON value.
	case f.Type == TypeUser:
		s, ok := f.Default.(string)
		if !ok {
			return fmt.Errorf("default must be a user id string, got %T", f.Default)
		}
		if _, err := uuid.Parse(s); err != nil {
			return fmt.Errorf("default %q is not a uuid", s)
		}
	default:
		s, ok := f.Default.(string)
		if !ok {
			return fmt.Errorf("default must be a string, got %T", f.Default)
		}
		if f.Type == TypeSingleSelect && !f.allowsOption(s) {
			return fmt.Errorf("default %q is not one of the options", s)
		}
	}
	return nil
}

// StringList converts a decoded JSON list to []string.
func StringList(v any) ([]string, error) {
	switch vals := v.(type) {
	case []string:
		return vals, nil
	case []any:
		out := make([]string, len(vals))
		for i, e := range vals {
			s, ok := e.(string)
			if !ok {
				return nil, fmt.Errorf("element %d is %T", i, e)
			}
			out[i] = s
		}
		return out, nil
	default:
		return nil, fmt.Errorf("got %T", v)
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func (f Field) allowsOption(s string) bool {
	if len(f.Options) == 0 {
		return true
	}
	for _, o := range f.Options {
		if o == s {
			return true
		}
	}
	return false
}

func checkPrimaryKey(t Table) []error {
	if t.PrimaryKey == nil {
		return checkKeyField(t, PrimaryKeyAutoIncrement, DefaultPrimaryKeyField)
	}
	pk := *t.PrimaryKey
	switch pk.Type {
	case PrimaryKeyAutoIncrement, PrimaryKeyUUID:
		if len(pk.Fields) > 0 {
			return []error{fmt.Errorf("%w: table %q: %s key takes field, not fields", ErrInvalidPrimaryKey, t.Name, pk.Type)}
		}
		return checkKeyField(t, pk.Type, t.PrimaryKeyOrDefault().Field)
	case PrimaryKeyComposite:
		if pk.Field != "" {
			return []error{fmt.Errorf("%w: table %q: composite key takes fields, not field", ErrInvalidPrimaryKey, t.Name)}
		}
		if len(pk.Fields) < 2 {
			return []error{fmt.Errorf("%w: table %q: composite key needs at least two fields", ErrInvalidPrimaryKey, t.Name)}
		}
		var errs []error
		seen := make(map[string]bool, len(pk.Fields))
		for _, name := range pk.Fields {
			if seen[name] {
				errs = append(errs, fmt.Errorf("%w: table %q: composite key lists field %q twice", ErrInvalidPrimaryKey, t.Name, name))
			}
			seen[name] = true
			if _, ok := t.Field(name); !ok {
				errs = append(errs, fmt.Errorf("%w: table %q: composite key field %q not found", ErrInvalidPrimaryKey, t.Name, name))
			}
		}
		return errs
	default:
		return []error{fmt.Errorf("%w: table %q: unknown key type %q", ErrInvalidPrimaryKey, t.Name, pk.Type)}
	}
}

// checkKeyField checks a declared field that doubles as a generated key column.
func checkKeyField(t Table, typ PrimaryKeyType, name string) []error {
	f, ok := t.Field(name)
	if !ok {
		return nil
	}
	want := TypeInteger
	if typ == PrimaryKeyUUID {
		want = TypeUser
	}
	if f.Type != want {
		return []error{fmt.Errorf("%w: table %q: %s key field %q must be of type %s, got %s", ErrInvalidPrimaryKey, t.Name, typ, name, want, f.Type)}
	}
	return nil
}

func checkPermissions(t Table) []error {
	p := t.Permissions
	if p == nil {
		return nil
	}

	var errs []error
	ownerChecked := make(map[string]bool)
	for _, a := range Actions {
		rule := p.Rule(a)
		if rule == nil {
			continue
		}
		switch rule.Type {
		case RulePublic, RuleAuthenticated:
		case RuleRoles:
			if len(rule.Roles) == 0 {
				errs = append(errs, fmt.Errorf("%w: roles permission on table %q for %s must list at least one role", ErrRequiredFieldMissing, t.Name, a))
			}
			for _, r := range rule.Roles {
				if strings.TrimSpace(r) == "" {
					errs = append(errs, fmt.Errorf("%w: roles permission on table %q for %s has an empty role", ErrRequiredFieldMissing, t.Name, a))
					break
				}
			}
		case RuleOwner:
			if ownerChecked[rule.Field] {
				continue
			}
			ownerChecked[rule.Field] = true
			if err := checkOwnerField(t, rule.Field); err != nil {
				errs = append(errs, err)
			}
		default:
			errs = append(errs, fmt.Errorf("%w: table %q: unknown rule type %q for %s", ErrInvalidPermission, t.Name, rule.Type, a))
		}
	}

	for i, r := range p.Records {
		if !r.Action.Valid() {
			errs = append(errs, fmt.Errorf("%w: table %q: records[%d] has unknown action %q", ErrInvalidPermission, t.Name, i, r.Action))
			continue
		}
		if err := checkCondition(t, r.Condition); err != nil {
			errs = append(errs, fmt.Errorf("%w: table %q: records[%d] (%s): %v", ErrInvalidCondition, t.Name, i, r.Action, err))
		}
	}
	return errs
}

// checkOwnerField reports a missing field before a mistyped one.
func checkOwnerField(t Table, name string) error {
	if name == "" {
		return fmt.Errorf("%w: owner permission on table %q: field is required", ErrRequiredFieldMissing, t.Name)
	}
	f, ok := t.Field(name)
	if !ok {
		return fmt.Errorf("%w: owner permission on table %q: field %q not found", ErrOwnerFieldNotFound, t.Name, name)
	}
	if f.Type != TypeUser {
		return fmt.Errorf("%w: owner permission on table %q: field %q must be of type user, got %s", ErrOwnerFieldTypeMismatch, t.Name, name, f.Type)
	}
	return nil
}

func checkCondition(t Table, src string) error {
	n, err := condition.Parse(src)
	if err != nil {
		return err
	}
	var unknown []string
	for _, c := range condition.Columns(n) {
		if !t.HasColumn(c) {
			unknown = append(unknown, c)
		}
	}
	if len(unknown) > 0 {
		return fmt.Errorf("unknown column(s) %s", strings.Join(unknown, ", "))
	}

	var bad []string
	condition.Walk(n, func(n condition.Node) {
		eq, ok := n.(condition.Equal)
		if !ok {
			return
		}
		for _, pair := range [][2]condition.Node{{eq.Left, eq.Right}, {eq.Right, eq.Left}} {
			p, ok := pair[0].(condition.Placeholder)
			if !ok || p.Kind != condition.UserID {
				continue
			}
			if col, ok := pair[1].(condition.Column); ok && !holdsUserID(t, col.Name) {
				bad = append(bad, col.Name)
			}
		}
	})
	if len(bad) > 0 {
		return fmt.Errorf("{userId} cannot be compared with column(s) %s", strings.Join(bad, ", "))
	}
	return nil
}

// holdsUserID reports whether a column can be compared with a user id: user
// fields, uuid keys and text columns.
func holdsUserID(t Table, name string) bool {
	if f, ok := t.Field(name); ok {
		return f.Type == TypeUser || f.Type.IsTextual()
	}
	pk := t.PrimaryKeyOrDefault()
	return pk.Type == PrimaryKeyUUID && pk.Field == name
}
