package reader

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/JonMunkholm/tableimport/internal/tabular"
)

var (
	csvDelimiters = []rune{',', ';', '\t'}
	tsvDelimiters = []rune{'\t', ',', ';'}
	txtDelimiters = []rune{'\t', ',', ';', '|', ' '}
)

// textColumn is the column name used when a TXT file has no delimiter.
const textColumn = "text"

// readDelimited parses CSV-like content, trying every encoding against every
// delimiter and keeping the first pair that splits the header into more than
// one column. When nothing splits, the file is read as lenient UTF-8 with the
// first delimiter.
func readDelimited(name string, data []byte, delimiters []rune) *tabular.Table {
	data = stripBOM(data)

	if records, enc, delim, ok := sniffDelimited(data, delimiters); ok {
		slog.Debug("delimited format detected",
			"file", name,
			"encoding", enc,
			"delimiter", string(delim),
		)
		return tableFromRecords(records)
	}

	records, err := parseRecords(sanitizeUTF8(data), delimiters[0])
	if err != nil {
		slog.Warn("default parse failed, reading as empty",
			"file", name,
			"error", err,
		)
		return tabular.New(nil)
	}
	return tableFromRecords(records)
}

// readText parses a TXT file. Without a usable delimiter each non-empty line
// becomes one row of a single text column.
func readText(name string, data []byte) *tabular.Table {
	data = stripBOM(data)

	if records, enc, delim, ok := sniffDelimited(data, txtDelimiters); ok {
		slog.Debug("text delimiter detected",
			"file", name,
			"encoding", enc,
			"delimiter", strconv.QuoteRune(delim),
		)
		return tableFromRecords(records)
	}

	decoded := sanitizeUTF8(data)
	for _, enc := range candidateEncodings {
		if d, err := enc.decode(data); err == nil {
			decoded = d
			break
		}
	}

	t := tabular.New([]string{textColumn})
	for _, line := range strings.Split(string(decoded), "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		t.AppendValues([]tabular.Value{tabular.ParseCell(line)})
	}
	return t
}

// sniffDelimited returns the records of the first encoding/delimiter pair
// that yields a multi-column header.
func sniffDelimited(data []byte, delimiters []rune) ([][]string, string, rune, bool) {
	for _, enc := range candidateEncodings {
		decoded, err := enc.decode(data)
		if err != nil {
			continue
		}
		for _, delim := range delimiters {
			records, err := parseRecords(decoded, delim)
			if err != nil || len(records) == 0 {
				continue
			}
			if len(records[0]) > 1 {
				return records, enc.name, delim, true
			}
		}
	}
	return nil, "", 0, false
}

// parseRecords runs encoding/csv with permissive settings.
func parseRecords(data []byte, delim rune) ([][]string, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.Comma = delim
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse delimited (%q): %w", delim, err)
	}
	return records, nil
}
