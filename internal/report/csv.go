// Package report projects journal and ledger rows into downloadable CSV.
package report

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
)

// ErrNoRecords means the selection matched nothing. Callers must suppress
// the download entirely rather than serve a header-only file.
var ErrNoRecords = errors.New("report: no records")

// Table is an ordered projection: column names plus one string row per
// record, already formatted for display.
type Table struct {
	Title   string
	Columns []string
	Rows    [][]string
}

// WriteCSV serializes the table with standard CSV quoting, header first.
func WriteCSV(t Table) ([]byte, error) {
	const op = "report.WriteCSV"

	if len(t.Rows) == 0 {
		return nil, fmt.Errorf("%s: %w", op, ErrNoRecords)
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(t.Columns); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	for _, row := range t.Rows {
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return buf.Bytes(), nil
}

// Filename returns the download name for a record view.
func Filename(recordType string) string {
	return "report_" + recordType + ".csv"
}
