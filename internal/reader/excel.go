package reader

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"

	"github.com/JonMunkholm/tableimport/internal/tabular"
	"github.com/xuri/excelize/v2"
)

var errNoSheets = errors.New("workbook has no sheets")

// oleSignature starts every legacy binary (BIFF) workbook.
var oleSignature = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}

// readExcel parses the first sheet of a workbook. Content excelize cannot
// open, such as a CSV saved under a spreadsheet extension, goes through the
// CSV path instead. Binary content never reaches that path.
func readExcel(name string, data []byte) (*tabular.Table, error) {
	records, err := excelRecords(data)
	if err == nil {
		return tableFromRecords(records), nil
	}

	if bytes.HasPrefix(data, oleSignature) {
		return nil, fmt.Errorf("%w: legacy binary workbook, save it as .xlsx or .csv", ErrUnsupportedFormat)
	}
	if bytes.IndexByte(data, 0) >= 0 {
		return nil, fmt.Errorf("%w: unreadable workbook: %v", ErrUnsupportedFormat, err)
	}

	slog.Debug("spreadsheet parse failed, falling back to CSV",
		"file", name,
		"error", err,
	)
	return readDelimited(name, data, csvDelimiters), nil
}

func excelRecords(data []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errNoSheets
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	return rows, nil
}
