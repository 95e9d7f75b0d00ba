package tabular

import "strings"

// ColumnType is the SQL type a column is stored as.
type ColumnType int

const (
	TypeText ColumnType = iota
	TypeInteger
	TypeDecimal
	TypeTimestamp
)

// SQL returns the PostgreSQL type name.
func (c ColumnType) SQL() string {
	switch c {
	case TypeInteger:
		return "INTEGER"
	case TypeDecimal:
		return "DECIMAL"
	case TypeTimestamp:
		return "TIMESTAMP"
	default:
		return "TEXT"
	}
}

// String returns the SQL type name.
func (c ColumnType) String() string { return c.SQL() }

// MarshalText encodes the type as its SQL name.
func (c ColumnType) MarshalText() ([]byte, error) { return []byte(c.SQL()), nil }

// ParseColumnType maps a SQL type name back to a ColumnType. Unknown names
// are TEXT.
func ParseColumnType(s string) ColumnType {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "INTEGER", "INT", "INT4", "BIGINT", "INT8":
		return TypeInteger
	case "DECIMAL", "NUMERIC", "DOUBLE PRECISION", "REAL", "FLOAT8":
		return TypeDecimal
	case "TIMESTAMP", "TIMESTAMP WITHOUT TIME ZONE", "TIMESTAMPTZ", "DATE":
		return TypeTimestamp
	default:
		return TypeText
	}
}

// cellClass is the narrowest type a single non-null cell fits.
type cellClass int

const (
	classText cellClass = iota
	classInteger
	classDecimal
	classTimestamp
)

func classify(v Value) cellClass {
	switch v.Kind {
	case KindInteger:
		return classInteger
	case KindDecimal:
		return classDecimal
	case KindTimestamp:
		return classTimestamp
	}
	if n, ok := ParseNumber(v.Text); ok {
		if n.Kind == KindInteger {
			return classInteger
		}
		return classDecimal
	}
	if _, ok := ParseTimestamp(v.Text); ok {
		return classTimestamp
	}
	return classText
}

// InferType decides a column's SQL type from its realized values.
//
// Integers only gives INTEGER; numbers with at least one decimal give
// DECIMAL; values that all parse as dates or date-times give TIMESTAMP.
// Anything else, including a mix of numbers and text, is TEXT. Nulls are
// ignored and an all-null column is TEXT.
func InferType(values []Value) ColumnType {
	var ints, decimals, stamps, seen int
	for _, v := range values {
		if v.IsNull() {
			continue
		}
		seen++
		switch classify(v) {
		case classInteger:
			ints++
		case classDecimal:
			decimals++
		case classTimestamp:
			stamps++
		default:
			return TypeText
		}
	}

	switch {
	case seen == 0:
		return TypeText
	case ints == seen:
		return TypeInteger
	case ints+decimals == seen:
		return TypeDecimal
	case stamps == seen:
		return TypeTimestamp
	default:
		return TypeText
	}
}

// TypeColumn promotes a column of text cells to numbers when every non-null
// cell is numeric. Columns that stay text are returned as text values, so a
// column never mixes numbers with text.
func TypeColumn(values []Value) []Value {
	out := make([]Value, len(values))
	numeric := true
	for i, v := range values {
		if v.IsNull() {
			out[i] = v
			continue
		}
		if v.IsNumeric() {
			out[i] = v
			continue
		}
		n, ok := ParseNumber(v.Text)
		if !ok {
			numeric = false
			break
		}
		out[i] = n
	}
	if numeric {
		return out
	}
	return CoerceText(values)
}

// CoerceText converts every non-null value to text.
func CoerceText(values []Value) []Value {
	out := make([]Value, len(values))
	for i, v := range values {
		out[i] = v.AsText()
	}
	return out
}

// AllNull reports whether every value is null.
func AllNull(values []Value) bool {
	for _, v := range values {
		if !v.IsNull() {
			return false
		}
	}
	return true
}
