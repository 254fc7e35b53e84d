package catalog

import (
	"fmt"
	"strings"
	"time"

	"github.com/vcsql/vcsql/internal/blobcodec"
	"github.com/vcsql/vcsql/internal/vcsqlerr"
)

// ValidateRow type-checks every declared column of row.Columns against
// schema, per spec §4.7's per-type coercion rules. Columns absent from the
// schema are not rejected here — extra columns are the executor's concern.
func ValidateRow(schema Schema, row blobcodec.Row) error {
	for _, col := range schema.Columns {
		val, present := row.Columns[col.Name]
		if !present || val == nil {
			if col.HasConstraint(ConstraintNotNull) {
				return fmt.Errorf("column %q: %w", col.Name, vcsqlerr.ErrNullNotAllowed)
			}
			continue
		}
		if err := validateType(col, val); err != nil {
			return err
		}
	}
	return nil
}

func validateType(col Column, val any) error {
	mismatch := func() error {
		return fmt.Errorf("column %q: value %v is not a valid %s: %w", col.Name, val, col.Type, vcsqlerr.ErrTypeMismatch)
	}
	switch col.Type {
	case TypeText:
		if _, ok := val.(string); !ok {
			return mismatch()
		}
	case TypeInteger:
		if !isWholeNumber(val) {
			return mismatch()
		}
	case TypeFloat:
		if !isNumber(val) {
			return mismatch()
		}
	case TypeBoolean:
		if _, ok := val.(bool); !ok {
			return mismatch()
		}
	case TypeJSON:
		switch val.(type) {
		case map[string]any, []any:
		default:
			return mismatch()
		}
	case TypeTimestamp:
		s, ok := val.(string)
		if !ok {
			return mismatch()
		}
		if _, err := time.Parse(time.RFC3339, s); err != nil {
			if _, err2 := time.Parse("2006-01-02T15:04:05", s); err2 != nil {
				return mismatch()
			}
		}
	case TypeUUID:
		s, ok := val.(string)
		if !ok || len(s) != 36 || strings.Count(s, "-") != 4 {
			return mismatch()
		}
	default:
		return fmt.Errorf("column %q: %w: unknown data type %q", col.Name, vcsqlerr.ErrInvalidSchema, col.Type)
	}
	return nil
}

func isNumber(v any) bool {
	switch v.(type) {
	case int, int32, int64, uint, uint32, uint64, float32, float64:
		return true
	default:
		return false
	}
}

func isWholeNumber(v any) bool {
	switch n := v.(type) {
	case int, int32, int64, uint, uint32, uint64:
		return true
	case float32:
		return float64(n) == float64(int64(n))
	case float64:
		return n == float64(int64(n))
	default:
		return false
	}
}

// ApplyDefaults returns a copy of row with every column absent from
// row.Columns that carries a Default constraint injected with that
// default value.
func ApplyDefaults(schema Schema, row blobcodec.Row) blobcodec.Row {
	out := row.Clone()
	for _, col := range schema.Columns {
		if _, present := out.Columns[col.Name]; present {
			continue
		}
		if def, ok := col.Default(); ok {
			out.Columns[col.Name] = def
		}
	}
	return out
}
