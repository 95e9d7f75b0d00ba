// Package reader turns CSV, TSV, TXT, Excel and JSON files into normalized
// tabular.Table values.
//
// Every format goes through the same two stages: a format-specific parse that
// produces a rectangular table with repaired headers, then Normalize, which
// prunes empty rows and columns, cleans column names and settles each
// column's value kinds.
package reader

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/JonMunkholm/tableimport/internal/tabular"
)

// Format is a supported input file format.
type Format string

const (
	FormatUnknown Format = ""
	FormatCSV     Format = "csv"
	FormatTSV     Format = "tsv"
	FormatTXT     Format = "txt"
	FormatXLSX    Format = "xlsx"
	FormatXLS     Format = "xls"
	FormatJSON    Format = "json"
)

var (
	// ErrFileNotFound is returned when the input path does not exist.
	ErrFileNotFound = errors.New("file not found")

	// ErrUnsupportedFormat is returned for unrecognized extensions and for
	// files whose content cannot be parsed as their extension claims.
	ErrUnsupportedFormat = errors.New("unsupported file format")

	// ErrUnsupportedJSONShape is returned when a JSON root is neither an
	// array nor an object.
	ErrUnsupportedJSONShape = errors.New("unsupported JSON structure")
)

// SupportedFormats lists the recognized extensions in display order.
var SupportedFormats = []Format{FormatCSV, FormatTSV, FormatTXT, FormatXLSX, FormatXLS, FormatJSON}

// DetectFormat infers the format from the path's extension.
func DetectFormat(path string) Format {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	for _, f := range SupportedFormats {
		if string(f) == ext {
			return f
		}
	}
	return FormatUnknown
}

// Read parses the file at path into a normalized table.
//
// A file with no usable rows yields an empty table, not an error.
func Read(path string) (*tabular.Table, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", ErrUnsupportedFormat, path)
	}

	format := DetectFormat(path)
	if format == FormatUnknown {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(path))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	return parse(filepath.Base(path), format, data)
}

// ReadBytes parses in-memory file content. name is only used to detect the
// format and for log context.
func ReadBytes(name string, data []byte) (*tabular.Table, error) {
	format := DetectFormat(name)
	if format == FormatUnknown {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(name))
	}
	return parse(name, format, data)
}

func parse(name string, format Format, data []byte) (*tabular.Table, error) {
	var (
		t   *tabular.Table
		err error
	)

	switch format {
	case FormatCSV:
		t = readDelimited(name, data, csvDelimiters)
	case FormatTSV:
		t = readDelimited(name, data, tsvDelimiters)
	case FormatTXT:
		t = readText(name, data)
	case FormatXLSX, FormatXLS:
		t, err = readExcel(name, data)
	case FormatJSON:
		t, err = readJSON(data)
	default:
		err = fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
	if err != nil {
		return nil, err
	}

	Normalize(t)

	slog.Debug("file parsed",
		"file", name,
		"format", string(format),
		"rows", t.Len(),
		"columns", t.Width(),
	)
	return t, nil
}
