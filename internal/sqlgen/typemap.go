package sqlgen

import (
	"fmt"

	"github.com/pthm/lattice/pkg/schema"
)

// SQLType returns the column type for a field type.
func SQLType(t schema.FieldType) (string, error) {
	switch t {
	case schema.TypeSingleLineText, schema.TypeEmail, schema.TypeURL,
		schema.TypePhoneNumber, schema.TypeSingleSelect:
		return "VARCHAR(255)", nil
	case schema.TypeLongText, schema.TypeRichText:
		return "TEXT", nil
	case schema.TypeInteger, schema.TypeRating:
		return "INTEGER", nil
	case schema.TypeDecimal, schema.TypeCurrency, schema.TypePercentage:
		return "DECIMAL", nil
	case schema.TypeCheckbox:
		return "BOOLEAN", nil
	case schema.TypeDate:
		return "DATE", nil
	case schema.TypeDatetime:
		return "TIMESTAMPTZ", nil
	case schema.TypeTime:
		return "TIME", nil
	case schema.TypeMultiSelect:
		return "TEXT[]", nil
	case schema.TypeJSON:
		return "JSONB", nil
	case schema.TypeUser:
		return "UUID", nil
	default:
		return "", fmt.Errorf("%w: %q", schema.ErrUnknownFieldType, t)
	}
}
