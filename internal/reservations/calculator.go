package reservations

import (
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Summary holds the column-wise reductions over an augmented table.
type Summary struct {
	RowCount              int             `json:"row_count"`
	DistinctDates         int             `json:"distinct_dates"`
	TotalRevenue          decimal.Decimal `json:"total_revenue"`
	TotalCourtUtilization float64         `json:"total_court_utilization"`
	TotalRegistrants      int64           `json:"total_registrants"`
}

// Options selects the optional aggregates computed by Compute.
type Options struct {
	AverageDailyRevenue bool
}

// Result bundles everything derived from one upload.
type Result struct {
	Table   *Table
	Summary Summary
	// AverageDailyRevenue is only meaningful when HasAverage is set.
	AverageDailyRevenue decimal.Decimal
	HasAverage          bool
}

// Compute derives the augmented table and its aggregates in one pass.
func Compute(raw RawTable, opts Options) (*Result, error) {
	table, err := Derive(raw)
	if err != nil {
		return nil, err
	}

	result := &Result{
		Table:   table,
		Summary: Summarize(table),
	}
	if opts.AverageDailyRevenue {
		avg, err := averageDailyRevenue(result.Summary)
		if err != nil {
			return nil, err
		}
		result.AverageDailyRevenue = avg
		result.HasAverage = true
	}
	return result, nil
}

// Derive validates the schema and builds a new augmented table. The input is
// never modified.
func Derive(raw RawTable) (*Table, error) {
	if err := checkColumns(raw.Columns); err != nil {
		return nil, err
	}

	columns := make([]string, 0, len(raw.Columns)+len(DerivedColumns))
	for _, column := range raw.Columns {
		if isDerivedColumn(column) {
			// Stale derived columns from a previous export are recomputed.
			continue
		}
		columns = append(columns, column)
	}
	columns = append(columns, DerivedColumns...)

	records := make([]Record, 0, len(raw.Rows))
	for i, row := range raw.Rows {
		record, err := deriveRecord(i+1, columns, row)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}

	return &Table{Columns: columns, Records: records}, nil
}

// Summarize reduces an augmented table to its totals.
func Summarize(t *Table) Summary {
	summary := Summary{TotalRevenue: decimal.Zero}
	if t == nil {
		return summary
	}

	dates := make(map[string]struct{}, len(t.Records))
	for _, record := range t.Records {
		summary.TotalRevenue = summary.TotalRevenue.Add(record.Revenue)
		summary.TotalCourtUtilization += record.CourtUtilization
		summary.TotalRegistrants += record.Registrants
		if record.Date != "" {
			dates[record.Date] = struct{}{}
		}
	}
	summary.RowCount = len(t.Records)
	summary.DistinctDates = len(dates)
	return summary
}

// AverageDailyRevenue divides total revenue by the number of distinct dates.
func AverageDailyRevenue(t *Table) (decimal.Decimal, error) {
	return averageDailyRevenue(Summarize(t))
}

func averageDailyRevenue(summary Summary) (decimal.Decimal, error) {
	if summary.RowCount == 0 || summary.DistinctDates == 0 {
		return decimal.Zero, EmptyDatasetError{}
	}
	return summary.TotalRevenue.Div(decimal.NewFromInt(int64(summary.DistinctDates))), nil
}

// Bounds on a single Fees amount, checked after exponent expansion.
const (
	maxFeeLength         = 32
	maxFeeIntegerDigits  = 15
	maxFeeFractionDigits = 12
)

// NormalizeFees strips every "$" and "," and parses the remainder.
func NormalizeFees(raw string) (decimal.Decimal, error) {
	cleaned := strings.NewReplacer("$", "", ",", "").Replace(raw)
	cleaned = strings.TrimSpace(cleaned)
	if cleaned == "" || len(cleaned) > maxFeeLength {
		return decimal.Zero, MalformedCurrencyError{Value: raw}
	}
	fees, err := decimal.NewFromString(cleaned)
	if err != nil || fees.IsNegative() {
		return decimal.Zero, MalformedCurrencyError{Value: raw}
	}
	exp := int(fees.Exponent())
	if exp < -maxFeeFractionDigits || fees.NumDigits()+exp > maxFeeIntegerDigits {
		return decimal.Zero, MalformedCurrencyError{Value: raw}
	}
	return fees, nil
}

// CountCourts counts comma-separated court identifiers. A null or blank value
// books no courts.
func CountCourts(court string, present bool) int {
	if !present || strings.TrimSpace(court) == "" {
		return 0
	}
	return len(strings.Split(court, ","))
}

func deriveRecord(row int, columns []string, raw RawRecord) (Record, error) {
	fees, err := NormalizeFees(raw[ColumnFees])
	if err != nil {
		return Record{}, MalformedCurrencyError{Row: row, Value: raw[ColumnFees]}
	}

	registrants, err := parseRegistrants(raw[ColumnRegistrants])
	if err != nil {
		return Record{}, MalformedNumberError{Row: row, Column: ColumnRegistrants, Value: raw[ColumnRegistrants]}
	}

	duration, err := parseDuration(raw[ColumnDuration])
	if err != nil {
		return Record{}, MalformedNumberError{Row: row, Column: ColumnDuration, Value: raw[ColumnDuration]}
	}

	court, hasCourt := raw[ColumnCourt]
	courtCount := CountCourts(court, hasCourt)

	record := Record{
		Date:             strings.TrimSpace(raw[ColumnDate]),
		Fees:             fees,
		Registrants:      registrants,
		Court:            court,
		HasCourt:         hasCourt,
		Duration:         duration,
		Revenue:          fees.Mul(decimal.NewFromInt(registrants)),
		CourtCount:       courtCount,
		CourtUtilization: float64(courtCount) * duration,
	}

	for _, column := range columns {
		if isRequiredColumn(column) || isDerivedColumn(column) {
			continue
		}
		value, ok := raw[column]
		if !ok {
			continue
		}
		if record.Extra == nil {
			record.Extra = make(map[string]string)
		}
		record.Extra[column] = value
	}

	return record, nil
}

func parseRegistrants(raw string) (int64, error) {
	value := strings.TrimSpace(raw)
	if n, err := strconv.ParseInt(value, 10, 64); err == nil {
		if n < 0 {
			return 0, strconv.ErrRange
		}
		return n, nil
	}
	// Spreadsheet tools often write whole counts as "4.0".
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, err
	}
	if f < 0 || f != math.Trunc(f) || f >= math.MaxInt64 {
		return 0, strconv.ErrRange
	}
	return int64(f), nil
}

func parseDuration(raw string) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, strconv.ErrSyntax
	}
	return f, nil
}

func checkColumns(columns []string) error {
	seen := make(map[string]struct{}, len(columns))
	for _, column := range columns {
		seen[column] = struct{}{}
	}
	var missing []string
	for _, required := range RequiredColumns {
		if _, ok := seen[required]; !ok {
			missing = append(missing, required)
		}
	}
	if len(missing) > 0 {
		return MissingColumnError{Columns: missing}
	}
	return nil
}

func isRequiredColumn(column string) bool {
	for _, required := range RequiredColumns {
		if column == required {
			return true
		}
	}
	return false
}

func isDerivedColumn(column string) bool {
	for _, derived := range DerivedColumns {
		if column == derived {
			return true
		}
	}
	return false
}
