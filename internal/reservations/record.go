// Package reservations derives per-row revenue and court utilization from
// uploaded facility reservation tables and reduces them to summary metrics.
package reservations

import (
	"bytes"
	"encoding/json"
	"strconv"

	"github.com/shopspring/decimal"
)

const (
	ColumnDate             = "Date"
	ColumnFees             = "Fees"
	ColumnRegistrants      = "Registrants"
	ColumnCourt            = "Court"
	ColumnDuration         = "Duration"
	ColumnRevenue          = "Revenue"
	ColumnCourtCount       = "CourtCount"
	ColumnCourtUtilization = "CourtUtilization"
)

// RequiredColumns lists the input columns every reservation table must carry.
var RequiredColumns = []string{ColumnDate, ColumnFees, ColumnRegistrants, ColumnCourt, ColumnDuration}

// DerivedColumns are appended to the input header, in this order.
var DerivedColumns = []string{ColumnRevenue, ColumnCourtCount, ColumnCourtUtilization}

// RawRecord maps a column name to its cell text. A missing key is a null cell.
type RawRecord map[string]string

// RawTable is a parsed upload before any coercion.
type RawTable struct {
	Columns []string
	Rows    []RawRecord
}

// Record is one reservation row with coerced and derived fields.
type Record struct {
	Date        string
	Fees        decimal.Decimal
	Registrants int64
	Court       string
	HasCourt    bool
	Duration    float64

	Revenue          decimal.Decimal
	CourtCount       int
	CourtUtilization float64

	// Extra holds cells of non-required input columns, passed through untouched.
	Extra map[string]string
}

// Table is the augmented view of an upload.
type Table struct {
	Columns []string
	Records []Record
}

// Len returns the number of records.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Records)
}

// Cell renders a column of the record as text. ok is false for null cells.
func (r Record) Cell(column string) (string, bool) {
	switch column {
	case ColumnDate:
		return r.Date, true
	case ColumnFees:
		return FormatCurrency(r.Fees), true
	case ColumnRegistrants:
		return strconv.FormatInt(r.Registrants, 10), true
	case ColumnCourt:
		return r.Court, r.HasCourt
	case ColumnDuration:
		return formatFloat(r.Duration), true
	case ColumnRevenue:
		return FormatCurrency(r.Revenue), true
	case ColumnCourtCount:
		return strconv.Itoa(r.CourtCount), true
	case ColumnCourtUtilization:
		return formatFloat(r.CourtUtilization), true
	}
	value, ok := r.Extra[column]
	return value, ok
}

// FormatCurrency renders cents-precision amounts with two decimals and keeps
// any finer precision intact.
func FormatCurrency(d decimal.Decimal) string {
	if d.Equal(d.Round(2)) {
		return d.StringFixed(2)
	}
	return d.String()
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// MarshalJSON encodes the table as an array of record objects. Keys follow
// Columns; numeric fields are JSON numbers and a null Court is null.
func (t *Table) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	if t != nil {
		for i, record := range t.Records {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeRecordJSON(&buf, t.Columns, record); err != nil {
				return nil, err
			}
		}
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

func writeRecordJSON(buf *bytes.Buffer, columns []string, record Record) error {
	buf.WriteByte('{')
	for i, column := range columns {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(column)
		if err != nil {
			return err
		}
		buf.Write(key)
		buf.WriteByte(':')

		switch column {
		case ColumnFees:
			buf.WriteString(record.Fees.String())
			continue
		case ColumnRevenue:
			buf.WriteString(record.Revenue.String())
			continue
		case ColumnRegistrants, ColumnDuration, ColumnCourtCount, ColumnCourtUtilization:
			value, _ := record.Cell(column)
			buf.WriteString(value)
			continue
		}

		value, ok := record.Cell(column)
		if !ok {
			buf.WriteString("null")
			continue
		}
		encoded, err := json.Marshal(value)
		if err != nil {
			return err
		}
		buf.Write(encoded)
	}
	buf.WriteByte('}')
	return nil
}
