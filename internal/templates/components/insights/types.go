package insights

import (
	"strings"

	"github.com/shopspring/decimal"
)

type MetricsPanel struct {
	FileName              string
	UploadedAt            string
	RowCount              int
	DistinctDates         int
	TotalRevenue          string
	AverageDailyRevenue   string
	HasAverage            bool
	TotalCourtUtilization string
	TotalRegistrants      int64
}

type TablePage struct {
	Columns    []string   `json:"columns"`
	Rows       [][]string `json:"rows"`
	Page       int        `json:"page"`
	PerPage    int        `json:"per_page"`
	TotalPages int        `json:"total_pages"`
	TotalRows  int        `json:"total_rows"`
}

func (p TablePage) HasPrev() bool { return p.Page > 1 }
func (p TablePage) HasNext() bool { return p.Page < p.TotalPages }
func (p TablePage) PrevPage() int { return p.Page - 1 }
func (p TablePage) NextPage() int { return p.Page + 1 }

type AskResult struct {
	Query  string
	Answer string
	Error  string
}

type DatasetData struct {
	Metrics     *MetricsPanel
	Table       *TablePage
	UploadError string
}

type DashboardData struct {
	Dataset     DatasetData
	Ask         *AskResult
	ChatEnabled bool
}

type LoginData struct {
	Error string
}

// FormatDollars renders an amount as "$1,234.56".
func FormatDollars(d decimal.Decimal) string {
	fixed := d.Abs().StringFixed(2)
	whole, frac, _ := strings.Cut(fixed, ".")

	var b strings.Builder
	if d.IsNegative() {
		b.WriteByte('-')
	}
	b.WriteByte('$')
	for i, digit := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(digit)
	}
	b.WriteByte('.')
	b.WriteString(frac)
	return b.String()
}
