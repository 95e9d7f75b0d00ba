package tabular

// convert.go holds the cell-level normalization rules.
//
// Source files are messy: spreadsheet-style missing markers ("nan", "NULL", "#N/A"),
// numbers written with exponents, and dates in US, EU and ISO layouts. These
// helpers decide what a raw cell means before any column-level decision is
// made.

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// numericRegex matches integers, decimals and scientific notation.
var numericRegex = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)

// integerRegex matches plain base-10 integers.
var integerRegex = regexp.MustCompile(`^[+-]?\d+$`)

// TwoDigitYearPivot defines how 2-digit years are interpreted.
// Years that would land more than this many years in the future are moved
// to the previous century.
var TwoDigitYearPivot = 20

// missingSentinels are the literals treated as a missing value, compared
// case-sensitively; "Null" is text but "NULL" and "null" are missing.
var missingSentinels = map[string]struct{}{
	"":         {},
	"nan":      {},
	"NaN":      {},
	"NAN":      {},
	"-nan":     {},
	"-NaN":     {},
	"NA":       {},
	"N/A":      {},
	"n/a":      {},
	"#N/A":     {},
	"#N/A N/A": {},
	"#NA":      {},
	"<NA>":     {},
	"NULL":     {},
	"null":     {},
	"None":     {},
	"-1.#IND":  {},
	"1.#QNAN":  {},
	"-1.#QNAN": {},
	"1.#IND":   {},
}

var (
	timestampLayouts = []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
		"2006-01-02 15:04:05.999999999",
		"2006-01-02 15:04",
		"2006/01/02 15:04:05",
		"1/2/2006 15:04:05",
		"1/2/2006 15:04",
		"01/02/2006 15:04:05",
		"1/2/2006 3:04:05 PM",
		"1/2/2006 3:04 PM",
	}
	twoDigitYearLayouts = []string{
		"1/2/06", "01/02/06", "1-2-06", "1.2.06", "01.02.06",
	}
	fourDigitYearLayouts = []string{
		"2006-01-02", "2006/01/02", "2006.01.02",
		"1/2/2006", "01/02/2006", "1-2-2006", "01-02-2006", "1.2.2006", "01.02.2006",
		"Jan 2, 2006", "January 2, 2006", "2 Jan 2006", "02-Jan-2006", "2-Jan-06",
	}
)

// IsMissing reports whether a raw cell denotes a missing value.
// Whitespace around the cell is ignored.
func IsMissing(s string) bool {
	_, ok := missingSentinels[strings.TrimSpace(s)]
	return ok
}

// IsNumericLiteral reports whether s is a plain number (no currency symbols
// or thousands separators).
func IsNumericLiteral(s string) bool {
	return numericRegex.MatchString(strings.TrimSpace(s))
}

// ParseNumber parses a numeric literal into an integer or decimal Value.
// ok is false when s is not a number.
func ParseNumber(s string) (Value, bool) {
	s = strings.TrimSpace(s)
	if !numericRegex.MatchString(s) {
		return Value{}, false
	}
	if integerRegex.MatchString(s) {
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return Integer(i), true
		}
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return Value{}, false
	}
	return Decimal(s, f), true
}

// ParseTimestamp parses common date and date-time layouts.
// ok is false when no layout matches.
func ParseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}

	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}

	for _, layout := range fourDigitYearLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}

	pivotYear := time.Now().Year() + TwoDigitYearPivot
	for _, layout := range twoDigitYearLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			if t.Year() > pivotYear {
				t = t.AddDate(-100, 0, 0)
			}
			return t, true
		}
	}

	return time.Time{}, false
}

// ParseCell turns a raw text cell into a Value: missing sentinels become
// null, everything else stays text. Numeric promotion is a column-level
// decision (see TypeColumn).
func ParseCell(raw string) Value {
	if IsMissing(raw) {
		return Null()
	}
	return Text(strings.TrimSpace(raw))
}
