package report

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flow-metrics/metrics"
)

func ptr(v float64) *float64 { return &v }

func sampleReport() metrics.Report {
	return metrics.Report{
		GeneratedAt: time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC),
		Overall: metrics.OverallStats{
			SampleSize:  3,
			WithCycle:   2,
			Skipped:     1,
			CycleMedian: ptr(3),
			CycleP85:    ptr(4.4),
		},
		PeriodOrder: []string{"Sprint 1", "Sprint 2"},
		Periods: map[string]metrics.PeriodStats{
			"Sprint 1": {SampleCount: 1, WithCycle: 1, Throughput: 4, StoryPoints: 8, CycleMedian: ptr(5)},
			"Sprint 2": {SampleCount: 2, WithCycle: 1, Throughput: 2},
		},
		Histogram: []metrics.HistogramBucket{{Label: "0-1d", Count: 1}, {Label: "30d+", Lower: 30}},
		StatusBreakdown: []metrics.StatusShare{
			{Status: "In Progress", Days: 6, Percent: 85.7},
			{Status: "Blocked", Days: 1, Percent: 14.3},
		},
		TopLongest: []metrics.IssueRow{{Key: "BIP-1", Period: "Sprint 1", CycleDays: ptr(5), InProgress: 5}},
		Insights:   []string{"Median cycle time is 3.00 business days <across> 2 issues."},
		Issues: []metrics.IssueRow{
			{Key: "BIP-1", Period: "Sprint 1", CycleDays: ptr(5), LeadDays: ptr(5), ActiveDays: 5, InProgress: 5},
			{Key: "BIP-5", Period: "Sprint 2", LeadDays: ptr(1.25)},
		},
		Excluded: map[metrics.ExclusionCategory]int{metrics.ExcludeKeyword: 1, metrics.ExcludeManualOutlier: 2},
	}
}

func TestExportToJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "computed_metrics.json")
	require.NoError(t, ExportToJSON(sampleReport(), path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Contains(t, decoded, "period_data")
	assert.Contains(t, decoded, "all_issues")
	overall := decoded["overall"].(map[string]any)
	assert.Nil(t, overall["cycle_mean"])
	assert.Equal(t, 3.0, overall["cycle_median"])
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, sampleReport().Issues))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, csvHeader, records[0])
	assert.Equal(t, []string{"BIP-1", "Sprint 1", "5.00", "5.00", "5.00", "5.00", "0.00", "0.00", "0.00", "0.00"}, records[1])
	// never-active issue keeps an empty cycle cell
	assert.Equal(t, "", records[2][2])
	assert.Equal(t, "1.25", records[2][3])
}

func TestExportToCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "issues.csv")
	require.NoError(t, ExportToCSV(sampleReport().Issues, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "key,period,cycle_days"))
}

func TestWriteMetricsSummary(t *testing.T) {
	var buf bytes.Buffer
	WriteMetricsSummary(&buf, sampleReport())
	out := buf.String()

	assert.Contains(t, out, "CYCLE TIME REPORT")
	assert.Contains(t, out, "Issues: 3 (with cycle time: 2, never active: 1)")
	assert.Contains(t, out, "median 3.00 | mean n/a")
	assert.Contains(t, out, "keyword-excluded: 1")
	assert.Less(t, strings.Index(out, "keyword-excluded"), strings.Index(out, "manual-outlier"))
	assert.Contains(t, out, "Sprint 1")
	assert.Contains(t, out, "In Progress")
}

func TestRenderDashboard(t *testing.T) {
	html, err := RenderDashboardBytes(sampleReport(), "")
	require.NoError(t, err)
	page := string(html)

	assert.Contains(t, page, "<title>"+DefaultTitle+"</title>")
	assert.Contains(t, page, "chart.umd.min.js")
	assert.Contains(t, page, `"labels":["Sprint 1","Sprint 2"]`)
	assert.Contains(t, page, `"medians":[5,null]`)
	assert.Contains(t, page, `"scatter":[{"x":0,"y":5,"key":"BIP-1","period":"Sprint 1"}]`)
	// insights are escaped as text
	assert.Contains(t, page, "&lt;across&gt;")
	assert.Contains(t, page, "<td>BIP-1</td>")
}

func TestExportToHTML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dashboard.html")
	require.NoError(t, ExportToHTML(sampleReport(), "Team Flow", path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "<h1>Team Flow</h1>")
}
