// Package tableio reads uploaded reservation files into raw tables and writes
// augmented tables back out as CSV, XLSX or JSON.
package tableio

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/gocarina/gocsv"

	"github.com/mdhawan-acm/pickleball-reservation-insights/internal/reservations"
)

var (
	ErrNoHeader          = errors.New("file has no header row")
	ErrUnsupportedFormat = errors.New("unsupported file format")
)

// nullTokens are cell values read as null, matching common spreadsheet exports.
var nullTokens = map[string]struct{}{
	"":         {},
	"NA":       {},
	"N/A":      {},
	"n/a":      {},
	"#N/A":     {},
	"#N/A N/A": {},
	"#NA":      {},
	"NULL":     {},
	"null":     {},
	"NaN":      {},
	"-NaN":     {},
	"nan":      {},
	"-nan":     {},
	"None":     {},
	"<NA>":     {},
}

// LoadCSV parses a CSV upload. The first row is the header; null cells are
// left out of each row map.
func LoadCSV(r io.Reader) (reservations.RawTable, error) {
	reader := gocsv.LazyCSVReader(r)
	if csvReader, ok := reader.(*csv.Reader); ok {
		csvReader.FieldsPerRecord = -1
	}

	records, err := reader.ReadAll()
	if err != nil {
		return reservations.RawTable{}, fmt.Errorf("read csv: %w", err)
	}
	return buildTable(records)
}

// WriteCSV writes the augmented table with a header row and no index column.
func WriteCSV(w io.Writer, table *reservations.Table) error {
	writer := gocsv.NewSafeCSVWriter(csv.NewWriter(w))

	if err := writer.Write(table.Columns); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, record := range table.Records {
		if err := writer.Write(recordCells(table.Columns, record)); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

func buildTable(rows [][]string) (reservations.RawTable, error) {
	if len(rows) == 0 {
		return reservations.RawTable{}, ErrNoHeader
	}

	columns := make([]string, len(rows[0]))
	for i, name := range rows[0] {
		if i == 0 {
			name = strings.TrimPrefix(name, "\ufeff")
		}
		columns[i] = strings.TrimSpace(name)
	}

	table := reservations.RawTable{
		Columns: columns,
		Rows:    make([]reservations.RawRecord, 0, len(rows)-1),
	}
	for _, cells := range rows[1:] {
		if isBlankRow(cells) {
			continue
		}
		row := make(reservations.RawRecord, len(columns))
		for i, column := range columns {
			if i >= len(cells) || column == "" {
				continue
			}
			if isNull(cells[i]) {
				continue
			}
			row[column] = cells[i]
		}
		table.Rows = append(table.Rows, row)
	}
	return table, nil
}

func recordCells(columns []string, record reservations.Record) []string {
	cells := make([]string, len(columns))
	for i, column := range columns {
		value, _ := record.Cell(column)
		cells[i] = value
	}
	return cells
}

func isNull(cell string) bool {
	_, ok := nullTokens[strings.TrimSpace(cell)]
	return ok
}

func isBlankRow(cells []string) bool {
	for _, cell := range cells {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
