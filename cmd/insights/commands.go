package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/mdhawan-acm/pickleball-reservation-insights/internal/api/access"
	"github.com/mdhawan-acm/pickleball-reservation-insights/internal/reservations"
	"github.com/mdhawan-acm/pickleball-reservation-insights/internal/tableio"
	insightstempl "github.com/mdhawan-acm/pickleball-reservation-insights/internal/templates/components/insights"
)

func computeFile(path string, average bool) (*reservations.Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	raw, err := tableio.Load(path, f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	log.Debug().Str("file", path).Int("rows", len(raw.Rows)).Strs("columns", raw.Columns).Msg("Loaded reservation file")

	return reservations.Compute(raw, reservations.Options{AverageDailyRevenue: average})
}

func newSummarizeCommand() *cobra.Command {
	var (
		average bool
		asJSON  bool
	)

	cmd := &cobra.Command{
		Use:   "summarize <file>",
		Short: "Print summary metrics for a reservation file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := computeFile(args[0], average)
			if err != nil {
				return err
			}
			if asJSON {
				return writeSummaryJSON(cmd.OutOrStdout(), result)
			}
			return writeSummaryText(cmd.OutOrStdout(), result)
		},
	}

	cmd.Flags().BoolVar(&average, "average", true, "Include average daily revenue")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the summary as JSON")
	return cmd
}

func writeSummaryText(w io.Writer, result *reservations.Result) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Rows\t%d\n", result.Summary.RowCount)
	fmt.Fprintf(tw, "Billing days\t%d\n", result.Summary.DistinctDates)
	fmt.Fprintf(tw, "Total revenue\t%s\n", insightstempl.FormatDollars(result.Summary.TotalRevenue))
	if result.HasAverage {
		fmt.Fprintf(tw, "Avg daily revenue\t%s\n", insightstempl.FormatDollars(result.AverageDailyRevenue))
	}
	fmt.Fprintf(tw, "Court utilization (court-hours)\t%.2f\n", result.Summary.TotalCourtUtilization)
	fmt.Fprintf(tw, "Total registrants\t%d\n", result.Summary.TotalRegistrants)
	return tw.Flush()
}

func writeSummaryJSON(w io.Writer, result *reservations.Result) error {
	payload := map[string]any{
		"row_count":               result.Summary.RowCount,
		"distinct_dates":          result.Summary.DistinctDates,
		"total_revenue":           json.Number(result.Summary.TotalRevenue.String()),
		"total_court_utilization": result.Summary.TotalCourtUtilization,
		"total_registrants":       result.Summary.TotalRegistrants,
	}
	if result.HasAverage {
		payload["average_daily_revenue"] = json.Number(result.AverageDailyRevenue.Round(2).String())
	}
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(payload)
}

func newExportCommand() *cobra.Command {
	var (
		format string
		output string
	)

	cmd := &cobra.Command{
		Use:   "export <file>",
		Short: "Write the reservation table with its derived columns",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outFormat, err := tableio.ParseFormat(format)
			if err != nil {
				return err
			}
			result, err := computeFile(args[0], false)
			if err != nil {
				return err
			}

			if output == "" || output == "-" {
				return tableio.Write(cmd.OutOrStdout(), outFormat, result.Table)
			}
			f, err := os.Create(output)
			if err != nil {
				return err
			}
			if err := tableio.Write(f, outFormat, result.Table); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			log.Info().Str("output", output).Int("rows", result.Table.Len()).Msg("Export written")
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", string(tableio.FormatCSV), "Output format: csv, xlsx or json")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (default stdout)")
	return cmd
}

func newHashMagicCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-magic",
		Short: "Read a magic string from stdin and print a bcrypt hash for magic_string_hash",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && err != io.EOF {
				return err
			}
			value := strings.TrimRight(line, "\r\n")
			if value == "" {
				return fmt.Errorf("magic string is empty")
			}
			hash, err := access.HashMagicString(value)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}
