package tableio

import (
	"fmt"
	"io"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/mdhawan-acm/pickleball-reservation-insights/internal/reservations"
)

const xlsxSheetName = "Reservations"

// LoadXLSX reads the first worksheet of a workbook upload.
func LoadXLSX(r io.Reader) (reservations.RawTable, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return reservations.RawTable{}, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return reservations.RawTable{}, ErrNoHeader
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return reservations.RawTable{}, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	return buildTable(rows)
}

// WriteXLSX writes the augmented table as a single-sheet workbook. Numeric
// columns are stored as numbers, except currency amounts finer than a cent,
// which are stored as exact text because a float cell would round them.
func WriteXLSX(w io.Writer, table *reservations.Table) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", xlsxSheetName); err != nil {
		return fmt.Errorf("name sheet: %w", err)
	}

	header := make([]interface{}, len(table.Columns))
	for i, column := range table.Columns {
		header[i] = column
	}
	if err := f.SetSheetRow(xlsxSheetName, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for i, record := range table.Records {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := xlsxRow(table.Columns, record)
		if err := f.SetSheetRow(xlsxSheetName, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func xlsxRow(columns []string, record reservations.Record) []interface{} {
	row := make([]interface{}, len(columns))
	for i, column := range columns {
		switch column {
		case reservations.ColumnFees:
			row[i] = xlsxCurrency(record.Fees)
		case reservations.ColumnRevenue:
			row[i] = xlsxCurrency(record.Revenue)
		case reservations.ColumnRegistrants:
			row[i] = record.Registrants
		case reservations.ColumnDuration:
			row[i] = record.Duration
		case reservations.ColumnCourtCount:
			row[i] = record.CourtCount
		case reservations.ColumnCourtUtilization:
			row[i] = record.CourtUtilization
		default:
			value, ok := record.Cell(column)
			if ok {
				row[i] = value
			}
		}
	}
	return row
}

func xlsxCurrency(d decimal.Decimal) interface{} {
	if d.Equal(d.Round(2)) {
		return d.InexactFloat64()
	}
	return reservations.FormatCurrency(d)
}
