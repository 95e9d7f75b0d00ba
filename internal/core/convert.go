package core

// convert.go maps table cells onto PostgreSQL parameter values.
//
// A column's type is decided once from all of its values, so by the time a
// row is inserted each cell either fits its column or is a row failure.
// Nulls always pass through as SQL NULL.

import (
	"math"
	"math/big"
	"strconv"
	"strings"

	"github.com/JonMunkholm/tableimport/internal/tabular"
	"github.com/jackc/pgx/v5/pgtype"
)

// toPgValue converts a cell to the parameter type for its column.
func toPgValue(v tabular.Value, col ColumnDescriptor) (any, error) {
	if v.IsNull() {
		return nil, nil
	}

	switch col.Type {
	case tabular.TypeInteger:
		return toPgInteger(v, col)
	case tabular.TypeDecimal:
		return toPgNumeric(v, col)
	case tabular.TypeTimestamp:
		return toPgTimestamp(v, col)
	default:
		return v.String(), nil
	}
}

func toPgInteger(v tabular.Value, col ColumnDescriptor) (any, error) {
	n := v
	if n.Kind != tabular.KindInteger {
		parsed, ok := tabular.ParseNumber(v.String())
		if !ok || parsed.Kind != tabular.KindInteger {
			return nil, &coercionError{Column: col.Name, Value: v.String(), Type: col.Type.SQL()}
		}
		n = parsed
	}
	if n.Int < math.MinInt32 || n.Int > math.MaxInt32 {
		return nil, &coercionError{Column: col.Name, Value: v.String(), Type: col.Type.SQL()}
	}
	return pgtype.Int4{Int32: int32(n.Int), Valid: true}, nil
}

// maxNumericExponent bounds the exponent of a decimal literal; PostgreSQL
// numeric holds at most 131072 digits before the point.
const maxNumericExponent = 131072

// toPgNumeric builds the numeric from the value's literal so no precision is
// lost to float64.
func toPgNumeric(v tabular.Value, col ColumnDescriptor) (any, error) {
	literal := v.String()
	if v.Kind == tabular.KindInteger {
		literal = strconv.FormatInt(v.Int, 10)
	}
	n, ok := parseNumeric(literal)
	if !ok {
		return nil, &coercionError{Column: col.Name, Value: literal, Type: col.Type.SQL()}
	}
	return n, nil
}

// parseNumeric splits a literal such as "-12.50" or "1.5e3" into digits and
// a base-10 exponent. The scale of the literal is kept: "0.10" is 10e-2.
func parseNumeric(literal string) (pgtype.Numeric, bool) {
	literal = strings.TrimSpace(literal)
	if !tabular.IsNumericLiteral(literal) {
		return pgtype.Numeric{}, false
	}

	mantissa, exp := literal, 0
	if i := strings.IndexAny(literal, "eE"); i >= 0 {
		e, err := strconv.Atoi(literal[i+1:])
		if err != nil || e > maxNumericExponent || e < -maxNumericExponent {
			return pgtype.Numeric{}, false
		}
		mantissa, exp = literal[:i], e
	}

	whole, frac, _ := strings.Cut(mantissa, ".")
	digits, ok := new(big.Int).SetString(whole+frac, 10)
	if !ok {
		return pgtype.Numeric{}, false
	}
	return pgtype.Numeric{Int: digits, Exp: int32(exp - len(frac)), Valid: true}, true
}

func toPgTimestamp(v tabular.Value, col ColumnDescriptor) (any, error) {
	if v.Kind == tabular.KindTimestamp {
		return pgtype.Timestamp{Time: v.Time, Valid: true}, nil
	}
	t, ok := tabular.ParseTimestamp(v.String())
	if !ok {
		return nil, &coercionError{Column: col.Name, Value: v.String(), Type: col.Type.SQL()}
	}
	return pgtype.Timestamp{Time: t, Valid: true}, nil
}

// rowArgs converts one table row into positional insert arguments.
func rowArgs(row tabular.Row, cols []ColumnDescriptor) ([]any, error) {
	args := make([]any, len(cols))
	for i, col := range cols {
		arg, err := toPgValue(row[col.Source], col)
		if err != nil {
			return nil, err
		}
		args[i] = arg
	}
	return args, nil
}

// rowData renders a row as strings for failure reports and logs.
func rowData(row tabular.Row, cols []ColumnDescriptor) map[string]string {
	data := make(map[string]string, len(cols))
	for _, col := range cols {
		data[col.Name] = row[col.Source].String()
	}
	return data
}
