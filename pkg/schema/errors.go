package schema

import "errors"

// Validation errors. Validate wraps one of these for every problem it finds;
// the joined result matches each of them with errors.Is.
var (
	// ErrUnknownFieldType is returned for a field type outside the vocabulary.
	ErrUnknownFieldType = errors.New("lattice/schema: unknown field type")

	// ErrRequiredFieldMissing is returned when a structural property is absent.
	ErrRequiredFieldMissing = errors.New("lattice/schema: required property missing")

	// ErrOwnerFieldNotFound is returned when an owner rule names a field the
	// table does not declare.
	ErrOwnerFieldNotFound = errors.New("lattice/schema: owner field not found")

	// ErrOwnerFieldTypeMismatch is returned when an owner rule names a field
	// that is not of type user.
	ErrOwnerFieldTypeMismatch = errors.New("lattice/schema: owner field must be of type user")

	// ErrDuplicateName is returned for repeated table or field names.
	ErrDuplicateName = errors.New("lattice/schema: duplicate name")

	// ErrInvalidIdentifier is returned for names that are not safe SQL identifiers.
	ErrInvalidIdentifier = errors.New("lattice/schema: invalid identifier")

	// ErrInvalidCondition is returned for record conditions that do not parse
	// or reference unknown columns.
	ErrInvalidCondition = errors.New("lattice/schema: invalid record condition")

	// ErrInvalidPrimaryKey is returned for malformed primary key declarations.
	ErrInvalidPrimaryKey = errors.New("lattice/schema: invalid primary key")

	// ErrInvalidBounds is returned for value constraints that do not fit the
	// field: min/max on non-numeric fields, min > max, or options on fields
	// other than selects.
	ErrInvalidBounds = errors.New("lattice/schema: invalid bounds")

	// ErrInvalidDefault is returned when a default value does not match the
	// field type or its bounds.
	ErrInvalidDefault = errors.New("lattice/schema: invalid default")

	// ErrInvalidPermission is returned for unknown rule types or actions.
	ErrInvalidPermission = errors.New("lattice/schema: invalid permission")
)

// IsUnknownFieldTypeErr returns true if err is or wraps ErrUnknownFieldType.
func IsUnknownFieldTypeErr(err error) bool {
	return errors.Is(err, ErrUnknownFieldType)
}

// IsRequiredFieldMissingErr returns true if err is or wraps ErrRequiredFieldMissing.
func IsRequiredFieldMissingErr(err error) bool {
	return errors.Is(err, ErrRequiredFieldMissing)
}

// IsOwnerFieldNotFoundErr returns true if err is or wraps ErrOwnerFieldNotFound.
func IsOwnerFieldNotFoundErr(err error) bool {
	return errors.Is(err, ErrOwnerFieldNotFound)
}

// IsOwnerFieldTypeMismatchErr returns true if err is or wraps ErrOwnerFieldTypeMismatch.
func IsOwnerFieldTypeMismatchErr(err error) bool {
	return errors.Is(err, ErrOwnerFieldTypeMismatch)
}

// IsDuplicateNameErr returns true if err is or wraps ErrDuplicateName.
func IsDuplicateNameErr(err error) bool {
	return errors.Is(err, ErrDuplicateName)
}

// IsInvalidIdentifierErr returns true if err is or wraps ErrInvalidIdentifier.
func IsInvalidIdentifierErr(err error) bool {
	return errors.Is(err, ErrInvalidIdentifier)
}

// IsInvalidConditionErr returns true if err is or wraps ErrInvalidCondition.
func IsInvalidConditionErr(err error) bool {
	return errors.Is(err, ErrInvalidCondition)
}

// IsInvalidPrimaryKeyErr returns true if err is or wraps ErrInvalidPrimaryKey.
func IsInvalidPrimaryKeyErr(err error) bool {
	return errors.Is(err, ErrInvalidPrimaryKey)
}

// IsInvalidBoundsErr returns true if err is or wraps ErrInvalidBounds.
func IsInvalidBoundsErr(err error) bool {
	return errors.Is(err, ErrInvalidBounds)
}

// IsInvalidPermissionErr returns true if err is or wraps ErrInvalidPermission.
func IsInvalidPermissionErr(err error) bool {
	return errors.Is(err, ErrInvalidPermission)
}

// IsInvalidDefaultErr returns true if err is or wraps ErrInvalidDefault.
func IsInvalidDefaultErr(err error) bool {
	return errors.Is(err, ErrInvalidDefault)
}
