package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"flow-metrics/metrics"
)

var csvHeader = []string{
	"key", "period", "cycle_days", "lead_days", "active_days",
	"ip_days", "test_days", "pr_days", "blocked_days", "backlog_days",
}

// MarshalReport renders the metrics artifact as indented JSON
func MarshalReport(report metrics.Report) ([]byte, error) {
	return json.MarshalIndent(report, "", "  ")
}

// ExportToJSON saves the report to a JSON file
func ExportToJSON(report metrics.Report, filename string) error {
	data, err := MarshalReport(report)
	if err != nil {
		return err
	}
	return os.WriteFile(filename, data, 0644)
}

// WriteCSV writes one flat row per issue. Absent cycle or lead times are empty cells.
func WriteCSV(w io.Writer, rows []metrics.IssueRow) error {
	writer := csv.NewWriter(w)

	if err := writer.Write(csvHeader); err != nil {
		return err
	}
	for _, row := range rows {
		record := []string{
			row.Key,
			row.Period,
			formatOptional(row.CycleDays),
			formatOptional(row.LeadDays),
			formatDays(row.ActiveDays),
			formatDays(row.InProgress),
			formatDays(row.Testing),
			formatDays(row.Review),
			formatDays(row.Blocked),
			formatDays(row.Backlog),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

// ExportToCSV saves the per-issue rows to a CSV file
func ExportToCSV(rows []metrics.IssueRow, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	return WriteCSV(file, rows)
}

func formatDays(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func formatOptional(v *float64) string {
	if v == nil {
		return ""
	}
	return formatDays(*v)
}

func displayDays(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.2f", *v)
}

// PrintMetricsSummary displays a formatted summary to the console
func PrintMetricsSummary(report metrics.Report) {
	WriteMetricsSummary(os.Stdout, report)
}

// WriteMetricsSummary writes the console summary to w
func WriteMetricsSummary(w io.Writer, report metrics.Report) {
	o := report.Overall

	fmt.Fprintln(w, "\n"+strings.Repeat("=", 60))
	fmt.Fprintln(w, "CYCLE TIME REPORT")
	fmt.Fprintln(w, strings.Repeat("=", 60))

	fmt.Fprintln(w, "\n📊 OVERALL")
	fmt.Fprintln(w, strings.Repeat("-", 60))
	fmt.Fprintf(w, "Issues: %d (with cycle time: %d, never active: %d)\n", o.SampleSize, o.WithCycle, o.Skipped)
	fmt.Fprintf(w, "Cycle Time: median %s | mean %s | p85 %s | p95 %s days\n",
		displayDays(o.CycleMedian), displayDays(o.CycleMean), displayDays(o.CycleP85), displayDays(o.CycleP95))
	fmt.Fprintf(w, "Cycle Range: %s - %s days\n", displayDays(o.CycleMin), displayDays(o.CycleMax))
	fmt.Fprintf(w, "Lead Time: median %s | mean %s | p85 %s days\n",
		displayDays(o.LeadMedian), displayDays(o.LeadMean), displayDays(o.LeadP85))
	fmt.Fprintf(w, "Active Work: median %s days\n", displayDays(o.ActiveMedian))

	if len(report.Excluded) > 0 {
		fmt.Fprintln(w, "\nExcluded:")
		for _, category := range sortedCategories(report.Excluded) {
			fmt.Fprintf(w, "  - %s: %d\n", category, report.Excluded[category])
		}
	}

	fmt.Fprintln(w, "\n🗓️  PERIODS")
	fmt.Fprintln(w, strings.Repeat("-", 60))
	for _, period := range report.PeriodOrder {
		p := report.Periods[period]
		fmt.Fprintf(w, "%-20s throughput %3d | pts %6.1f | median %6s | p85 %6s\n",
			period, p.Throughput, p.StoryPoints, displayDays(p.CycleMedian), displayDays(p.CycleP85))
	}

	fmt.Fprintln(w, "\n⏱️  TIME IN STATUS")
	fmt.Fprintln(w, strings.Repeat("-", 60))
	for _, share := range report.StatusBreakdown {
		fmt.Fprintf(w, "%-20s %8.2f days (%.1f%%)\n", share.Status, share.Days, share.Percent)
	}

	if len(report.Insights) > 0 {
		fmt.Fprintln(w, "\n💡 INSIGHTS")
		fmt.Fprintln(w, strings.Repeat("-", 60))
		for _, insight := range report.Insights {
			fmt.Fprintf(w, "  - %s\n", insight)
		}
	}

	fmt.Fprintln(w, "\n"+strings.Repeat("=", 60))
}

func sortedCategories(excluded map[metrics.ExclusionCategory]int) []metrics.ExclusionCategory {
	out := make([]metrics.ExclusionCategory, 0, len(excluded))
	for category := range excluded {
		out = append(out, category)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
