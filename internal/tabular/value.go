// Package tabular holds the in-memory table model shared by the file reader
// and the database loader, along with the value-normalization rules both
// sides agree on.
package tabular

import (
	"strconv"
	"time"
)

// Kind identifies which scalar a Value carries.
type Kind int

const (
	KindNull Kind = iota
	KindText
	KindInteger
	KindDecimal
	KindTimestamp
)

// String returns the lower-case kind name used in logs and JSON.
func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindInteger:
		return "integer"
	case KindDecimal:
		return "decimal"
	case KindTimestamp:
		return "timestamp"
	default:
		return "null"
	}
}

// Value is a single table cell. The zero Value is null.
//
// Decimals keep their source literal in Text so that values such as
// "0.10" or "12345678901234567890.5" reach the database unchanged.
type Value struct {
	Kind  Kind
	Text  string
	Int   int64
	Float float64
	Time  time.Time
}

// Null returns the null Value.
func Null() Value { return Value{} }

// Text returns a text Value.
func Text(s string) Value { return Value{Kind: KindText, Text: s} }

// Integer returns an integer Value.
func Integer(i int64) Value {
	return Value{Kind: KindInteger, Int: i, Text: strconv.FormatInt(i, 10)}
}

// Decimal returns a decimal Value from its literal form.
// The literal must already be a valid number (see IsNumericLiteral).
func Decimal(literal string, f float64) Value {
	return Value{Kind: KindDecimal, Text: literal, Float: f}
}

// Timestamp returns a timestamp Value.
func Timestamp(t time.Time) Value {
	return Value{Kind: KindTimestamp, Time: t, Text: t.Format(time.RFC3339)}
}

// IsNull reports whether v is null.
func (v Value) IsNull() bool { return v.Kind == KindNull }

// IsNumeric reports whether v is an integer or decimal.
func (v Value) IsNumeric() bool { return v.Kind == KindInteger || v.Kind == KindDecimal }

// String renders the value as text. Null renders as the empty string.
func (v Value) String() string {
	switch v.Kind {
	case KindNull:
		return ""
	case KindInteger:
		return strconv.FormatInt(v.Int, 10)
	case KindTimestamp:
		return v.Time.Format(time.RFC3339)
	default:
		return v.Text
	}
}

// AsText converts any non-null value to its text form.
func (v Value) AsText() Value {
	if v.Kind == KindNull || v.Kind == KindText {
		return v
	}
	return Text(v.String())
}

// Interface returns v as a plain Go value for JSON encoding:
// nil, string, int64, float64 or time.Time.
func (v Value) Interface() any {
	switch v.Kind {
	case KindText:
		return v.Text
	case KindInteger:
		return v.Int
	case KindDecimal:
		return v.Float
	case KindTimestamp:
		return v.Time
	default:
		return nil
	}
}

// MarshalJSON encodes the value as its natural JSON scalar.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case KindNull:
		return []byte("null"), nil
	case KindInteger:
		return []byte(strconv.FormatInt(v.Int, 10)), nil
	case KindDecimal:
		return []byte(v.Text), nil
	default:
		return []byte(strconv.Quote(v.String())), nil
	}
}
