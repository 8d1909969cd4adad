package insights

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/mdhawan-acm/pickleball-reservation-insights/internal/reservations"
	"github.com/mdhawan-acm/pickleball-reservation-insights/internal/session"
	insightstempl "github.com/mdhawan-acm/pickleball-reservation-insights/internal/templates/components/insights"
)

type metricsResponse struct {
	FileName              string       `json:"file_name"`
	UploadedAt            time.Time    `json:"uploaded_at"`
	RowCount              int          `json:"row_count"`
	DistinctDates         int          `json:"distinct_dates"`
	TotalRevenue          json.Number  `json:"total_revenue"`
	AverageDailyRevenue   *json.Number `json:"average_daily_revenue,omitempty"`
	TotalCourtUtilization float64      `json:"total_court_utilization"`
	TotalRegistrants      int64        `json:"total_registrants"`
}

func newMetricsResponse(dataset *session.Dataset) metricsResponse {
	summary := dataset.Result.Summary
	resp := metricsResponse{
		FileName:              dataset.FileName,
		UploadedAt:            dataset.UploadedAt.UTC(),
		RowCount:              summary.RowCount,
		DistinctDates:         summary.DistinctDates,
		TotalRevenue:          json.Number(summary.TotalRevenue.String()),
		TotalCourtUtilization: summary.TotalCourtUtilization,
		TotalRegistrants:      summary.TotalRegistrants,
	}
	if dataset.Result.HasAverage {
		avg := json.Number(dataset.Result.AverageDailyRevenue.Round(2).String())
		resp.AverageDailyRevenue = &avg
	}
	return resp
}

func buildDatasetData(sess *session.Session, page, perPage int) insightstempl.DatasetData {
	dataset, err := sess.Dataset()
	if err != nil {
		return insightstempl.DatasetData{}
	}
	tablePage := buildTablePage(dataset.Result.Table, page, perPage)
	return insightstempl.DatasetData{
		Metrics: buildMetricsPanel(dataset),
		Table:   &tablePage,
	}
}

func buildMetricsPanel(dataset *session.Dataset) *insightstempl.MetricsPanel {
	result := dataset.Result
	panel := &insightstempl.MetricsPanel{
		FileName:              dataset.FileName,
		UploadedAt:            dataset.UploadedAt.Format(uploadedAtLayout),
		RowCount:              result.Summary.RowCount,
		DistinctDates:         result.Summary.DistinctDates,
		TotalRevenue:          insightstempl.FormatDollars(result.Summary.TotalRevenue),
		TotalCourtUtilization: strconv.FormatFloat(result.Summary.TotalCourtUtilization, 'f', 2, 64),
		TotalRegistrants:      result.Summary.TotalRegistrants,
	}
	if result.HasAverage {
		panel.AverageDailyRevenue = insightstempl.FormatDollars(result.AverageDailyRevenue)
		panel.HasAverage = true
	}
	return panel
}

// buildTablePage clamps page into range so a stale pager link still renders.
func buildTablePage(table *reservations.Table, page, perPage int) insightstempl.TablePage {
	if perPage > maxPerPage {
		perPage = maxPerPage
	}
	total := table.Len()
	totalPages := (total + perPage - 1) / perPage
	if totalPages == 0 {
		totalPages = 1
	}
	if page > totalPages {
		page = totalPages
	}

	start := (page - 1) * perPage
	end := min(start+perPage, total)

	rows := make([][]string, 0, end-start)
	for _, record := range table.Records[start:end] {
		cells := make([]string, len(table.Columns))
		for i, column := range table.Columns {
			cells[i], _ = record.Cell(column)
		}
		rows = append(rows, cells)
	}

	return insightstempl.TablePage{
		Columns:    table.Columns,
		Rows:       rows,
		Page:       page,
		PerPage:    perPage,
		TotalPages: totalPages,
		TotalRows:  total,
	}
}
