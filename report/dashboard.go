package report

import (
	"bytes"
	"fmt"
	"html/template"
	"io"
	"os"

	"github.com/samber/lo"

	"flow-metrics/metrics"
)

// DefaultTitle heads the dashboard when none is configured
const DefaultTitle = "Cycle Time Dashboard"

type scatterPoint struct {
	X      int     `json:"x"`
	Y      float64 `json:"y"`
	Key    string  `json:"key"`
	Period string  `json:"period"`
}

type chartData struct {
	Labels       []string       `json:"labels"`
	Medians      []*float64     `json:"medians"`
	Means        []*float64     `json:"means"`
	P85s         []*float64     `json:"p85s"`
	Throughput   []int          `json:"throughput"`
	StoryPoints  []float64      `json:"story_points"`
	AvgIP        []float64      `json:"avg_ip"`
	AvgTest      []float64      `json:"avg_test"`
	AvgPR        []float64      `json:"avg_pr"`
	AvgBlocked   []float64      `json:"avg_blocked"`
	HistLabels   []string       `json:"hist_labels"`
	HistCounts   []int          `json:"hist_counts"`
	StatusLabels []string       `json:"status_labels"`
	StatusValues []float64      `json:"status_values"`
	Scatter      []scatterPoint `json:"scatter"`
}

type periodRow struct {
	Name  string
	Stats metrics.PeriodStats
}

type dashboardView struct {
	Title   string
	Report  metrics.Report
	Periods []periodRow
	Charts  chartData
}

func buildView(report metrics.Report, title string) dashboardView {
	if title == "" {
		title = DefaultTitle
	}
	stats := lo.Map(report.PeriodOrder, func(p string, _ int) metrics.PeriodStats { return report.Periods[p] })

	withCycle := lo.Filter(report.Issues, func(r metrics.IssueRow, _ int) bool { return r.CycleDays != nil })

	return dashboardView{
		Title:  title,
		Report: report,
		Periods: lo.Map(report.PeriodOrder, func(p string, _ int) periodRow {
			return periodRow{Name: p, Stats: report.Periods[p]}
		}),
		Charts: chartData{
			Labels:       report.PeriodOrder,
			Medians:      lo.Map(stats, func(s metrics.PeriodStats, _ int) *float64 { return s.CycleMedian }),
			Means:        lo.Map(stats, func(s metrics.PeriodStats, _ int) *float64 { return s.CycleMean }),
			P85s:         lo.Map(stats, func(s metrics.PeriodStats, _ int) *float64 { return s.CycleP85 }),
			Throughput:   lo.Map(stats, func(s metrics.PeriodStats, _ int) int { return s.Throughput }),
			StoryPoints:  lo.Map(stats, func(s metrics.PeriodStats, _ int) float64 { return s.StoryPoints }),
			AvgIP:        lo.Map(stats, func(s metrics.PeriodStats, _ int) float64 { return s.AvgInProgress }),
			AvgTest:      lo.Map(stats, func(s metrics.PeriodStats, _ int) float64 { return s.AvgTesting }),
			AvgPR:        lo.Map(stats, func(s metrics.PeriodStats, _ int) float64 { return s.AvgReview }),
			AvgBlocked:   lo.Map(stats, func(s metrics.PeriodStats, _ int) float64 { return s.AvgBlocked }),
			HistLabels:   lo.Map(report.Histogram, func(b metrics.HistogramBucket, _ int) string { return b.Label }),
			HistCounts:   lo.Map(report.Histogram, func(b metrics.HistogramBucket, _ int) int { return b.Count }),
			StatusLabels: lo.Map(report.StatusBreakdown, func(s metrics.StatusShare, _ int) string { return s.Status }),
			StatusValues: lo.Map(report.StatusBreakdown, func(s metrics.StatusShare, _ int) float64 { return s.Percent }),
			Scatter: lo.Map(withCycle, func(r metrics.IssueRow, i int) scatterPoint {
				return scatterPoint{X: i, Y: *r.CycleDays, Key: r.Key, Period: r.Period}
			}),
		},
	}
}

var dashboardTemplate = template.Must(template.New("dashboard").Funcs(template.FuncMap{
	"days":  displayDays,
	"fixed": func(v float64) string { return fmt.Sprintf("%.2f", v) },
}).Parse(dashboardHTML))

// RenderDashboard writes the static HTML dashboard. Charts load Chart.js from a CDN.
func RenderDashboard(w io.Writer, report metrics.Report, title string) error {
	return dashboardTemplate.Execute(w, buildView(report, title))
}

// RenderDashboardBytes returns the dashboard as bytes
func RenderDashboardBytes(report metrics.Report, title string) ([]byte, error) {
	var buf bytes.Buffer
	if err := RenderDashboard(&buf, report, title); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ExportToHTML saves the dashboard to a file
func ExportToHTML(report metrics.Report, title, filename string) error {
	data, err := RenderDashboardBytes(report, title)
	if err != nil {
		return err
	}
	return os.WriteFile(filename, data, 0644)
}

const dashboardHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>{{.Title}}</title>
<script src="https://cdn.jsdelivr.net/npm/chart.js@4.4.4/dist/chart.umd.min.js"></script>
<style>
  :root {
    --bg: #0d1117; --card: #161b22; --border: #30363d;
    --text: #e6edf3; --muted: #8b949e; --accent: #58a6ff;
    --orange: #d29922; --red: #f85149;
  }
  * { margin: 0; padding: 0; box-sizing: border-box; }
  body {
    font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Helvetica, Arial, sans-serif;
    background: var(--bg); color: var(--text); padding: 24px; line-height: 1.5;
  }
  h1 { font-size: 1.8rem; margin-bottom: 4px; }
  .subtitle { color: var(--muted); margin-bottom: 24px; font-size: 0.95rem; }
  .kpi-row { display: flex; gap: 16px; flex-wrap: wrap; margin-bottom: 24px; }
  .kpi { background: var(--card); border: 1px solid var(--border); border-radius: 8px; padding: 16px 20px; min-width: 160px; flex: 1; }
  .kpi .label { color: var(--muted); font-size: 0.8rem; text-transform: uppercase; }
  .kpi .value { font-size: 1.8rem; font-weight: 700; color: var(--accent); margin-top: 4px; }
  .kpi .unit { font-size: 0.85rem; color: var(--muted); }
  .grid { display: grid; grid-template-columns: 1fr 1fr; gap: 20px; margin-bottom: 24px; }
  .card { background: var(--card); border: 1px solid var(--border); border-radius: 8px; padding: 20px; }
  .card h3 { font-size: 1rem; margin-bottom: 12px; }
  .card.full { grid-column: 1 / -1; margin-bottom: 24px; }
  canvas { max-height: 340px; }
  table { width: 100%; border-collapse: collapse; font-size: 0.85rem; }
  th, td { padding: 8px 10px; text-align: left; border-bottom: 1px solid var(--border); }
  th { color: var(--muted); font-weight: 600; text-transform: uppercase; font-size: 0.75rem; }
  .insights { list-style: none; }
  .insight { border-left: 3px solid var(--accent); padding: 12px 16px; margin-bottom: 10px; font-size: 0.9rem; }
  @media (max-width: 900px) { .grid { grid-template-columns: 1fr; } }
</style>
</head>
<body>

<h1>{{.Title}}</h1>
<p class="subtitle">
  Cycle time (last start of active work to Done) in business days, excluding weekends and holidays.
  {{.Report.Overall.WithCycle}} of {{.Report.Overall.SampleSize}} issues with cycle time across {{len .Periods}} periods.
  Generated {{.Report.GeneratedAt.Format "2006-01-02 15:04 MST"}}.
</p>

<div class="kpi-row">
  <div class="kpi"><div class="label">Median Cycle Time</div><div class="value">{{days .Report.Overall.CycleMedian}}<span class="unit"> days</span></div></div>
  <div class="kpi"><div class="label">Mean Cycle Time</div><div class="value">{{days .Report.Overall.CycleMean}}<span class="unit"> days</span></div></div>
  <div class="kpi"><div class="label">85th Percentile</div><div class="value">{{days .Report.Overall.CycleP85}}<span class="unit"> days</span></div></div>
  <div class="kpi"><div class="label">95th Percentile</div><div class="value">{{days .Report.Overall.CycleP95}}<span class="unit"> days</span></div></div>
  <div class="kpi"><div class="label">Active Work (median)</div><div class="value">{{days .Report.Overall.ActiveMedian}}<span class="unit"> days</span></div></div>
</div>

<div class="grid">
  <div class="card"><h3>Cycle Time Trend by Period (days)</h3><canvas id="chartTrend"></canvas></div>
  <div class="card"><h3>Throughput (Done issues and Story Points)</h3><canvas id="chartThru"></canvas></div>
</div>
<div class="grid">
  <div class="card"><h3>Cycle Time Distribution</h3><canvas id="chartHist"></canvas></div>
  <div class="card"><h3>Time in Status (overall %)</h3><canvas id="chartStatus"></canvas></div>
</div>
<div class="grid">
  <div class="card"><h3>Avg Status Duration by Period (days)</h3><canvas id="chartStacked"></canvas></div>
  <div class="card"><h3>Cycle Time Scatter (all issues)</h3><canvas id="chartScatter"></canvas></div>
</div>

<div class="card full">
  <h3>Key Insights</h3>
  <ul class="insights">
    {{range .Report.Insights}}<li class="insight">{{.}}</li>
    {{end}}
  </ul>
</div>

<div class="card full">
  <h3>Period Detail</h3>
  <div style="overflow-x:auto">
  <table>
    <thead><tr>
      <th>Period</th><th>Throughput</th><th>Story Pts</th><th>Analyzed</th>
      <th>Median CT</th><th>Mean CT</th><th>P85 CT</th>
      <th>Avg IP</th><th>Avg Test</th><th>Avg PR</th><th>Avg Blocked</th>
    </tr></thead>
    <tbody>
    {{range .Periods}}<tr>
      <td>{{.Name}}</td><td>{{.Stats.Throughput}}</td><td>{{fixed .Stats.StoryPoints}}</td><td>{{.Stats.WithCycle}}</td>
      <td>{{days .Stats.CycleMedian}}</td><td>{{days .Stats.CycleMean}}</td><td>{{days .Stats.CycleP85}}</td>
      <td>{{fixed .Stats.AvgInProgress}}</td><td>{{fixed .Stats.AvgTesting}}</td><td>{{fixed .Stats.AvgReview}}</td><td>{{fixed .Stats.AvgBlocked}}</td>
    </tr>
    {{end}}
    </tbody>
  </table>
  </div>
</div>

<div class="grid">
  <div class="card">
    <h3>Longest Cycle Times</h3>
    <table>
      <thead><tr><th>Key</th><th>Period</th><th>Cycle (d)</th><th>IP (d)</th><th>Test (d)</th><th>Blocked (d)</th></tr></thead>
      <tbody>
      {{range .Report.TopLongest}}<tr><td>{{.Key}}</td><td>{{.Period}}</td><td>{{days .CycleDays}}</td><td>{{fixed .InProgress}}</td><td>{{fixed .Testing}}</td><td>{{fixed .Blocked}}</td></tr>
      {{end}}
      </tbody>
    </table>
  </div>
  <div class="card">
    <h3>Most Blocked Issues</h3>
    <table>
      <thead><tr><th>Key</th><th>Period</th><th>Blocked (d)</th><th>Cycle (d)</th></tr></thead>
      <tbody>
      {{range .Report.TopBlocked}}<tr><td>{{.Key}}</td><td>{{.Period}}</td><td>{{fixed .Blocked}}</td><td>{{days .CycleDays}}</td></tr>
      {{end}}
      </tbody>
    </table>
  </div>
</div>

<script>
const data = {{.Charts}};

Chart.defaults.color = '#8b949e';
Chart.defaults.borderColor = '#30363d';

const legend = { position: 'top', labels: { boxWidth: 14, padding: 12 } };
const periodAxis = { ticks: { maxRotation: 45, font: { size: 10 } } };

new Chart(document.getElementById('chartTrend'), {
  type: 'line',
  data: {
    labels: data.labels,
    datasets: [
      { label: 'Median', data: data.medians, borderColor: '#58a6ff', backgroundColor: 'rgba(88,166,255,0.1)', fill: true, tension: 0.3, spanGaps: true },
      { label: 'Mean', data: data.means, borderColor: '#d29922', borderDash: [5,3], tension: 0.3, spanGaps: true },
      { label: 'P85', data: data.p85s, borderColor: '#f85149', borderDash: [2,4], tension: 0.3, spanGaps: true }
    ]
  },
  options: { plugins: { legend }, scales: { x: periodAxis, y: { title: { display: true, text: 'Days' }, beginAtZero: true } } }
});

new Chart(document.getElementById('chartThru'), {
  type: 'bar',
  data: {
    labels: data.labels,
    datasets: [
      { label: 'Done Issues', data: data.throughput, yAxisID: 'y', backgroundColor: 'rgba(57,211,83,0.6)' },
      { label: 'Story Points', data: data.story_points, yAxisID: 'y1', backgroundColor: 'rgba(88,166,255,0.45)' }
    ]
  },
  options: {
    plugins: { legend },
    scales: {
      x: periodAxis,
      y: { position: 'left', title: { display: true, text: 'Issues' }, beginAtZero: true },
      y1: { position: 'right', title: { display: true, text: 'Story Points' }, beginAtZero: true, grid: { drawOnChartArea: false } }
    }
  }
});

new Chart(document.getElementById('chartHist'), {
  type: 'bar',
  data: { labels: data.hist_labels, datasets: [{ label: 'Issues', data: data.hist_counts, backgroundColor: 'rgba(88,166,255,0.6)' }] },
  options: { plugins: { legend: { display: false } }, scales: { y: { title: { display: true, text: 'Count' }, beginAtZero: true } } }
});

new Chart(document.getElementById('chartStatus'), {
  type: 'doughnut',
  data: { labels: data.status_labels, datasets: [{ data: data.status_values, backgroundColor: ['#58a6ff', '#d29922', '#bc8cff', '#f85149'], borderWidth: 0 }] },
  options: { plugins: { legend: { position: 'right' }, tooltip: { callbacks: { label: ctx => ctx.label + ': ' + ctx.parsed + '%' } } } }
});

new Chart(document.getElementById('chartStacked'), {
  type: 'bar',
  data: {
    labels: data.labels,
    datasets: [
      { label: 'In Progress', data: data.avg_ip, backgroundColor: 'rgba(88,166,255,0.7)' },
      { label: 'In Testing', data: data.avg_test, backgroundColor: 'rgba(210,153,34,0.7)' },
      { label: 'Peer Review', data: data.avg_pr, backgroundColor: 'rgba(188,140,255,0.7)' },
      { label: 'Blocked', data: data.avg_blocked, backgroundColor: 'rgba(248,81,73,0.7)' }
    ]
  },
  options: { plugins: { legend }, scales: { x: Object.assign({ stacked: true }, periodAxis), y: { stacked: true, beginAtZero: true } } }
});

new Chart(document.getElementById('chartScatter'), {
  type: 'scatter',
  data: { datasets: [{ label: 'Cycle Time', data: data.scatter, backgroundColor: 'rgba(88,166,255,0.5)', pointRadius: 4 }] },
  options: {
    plugins: {
      legend: { display: false },
      tooltip: { callbacks: { label: ctx => { const d = data.scatter[ctx.dataIndex]; return d.key + ' (' + d.period + '): ' + d.y + ' days'; } } }
    },
    scales: { x: { ticks: { display: false } }, y: { title: { display: true, text: 'Cycle Time (days)' }, beginAtZero: true } }
  }
});
</script>
</body>
</html>
`
