package metrics

import (
	"math"
	"sort"
	"time"

	"github.com/samber/lo"
)

// DefaultTopN is the length of the outlier lists
const DefaultTopN = 10

// AggregateOptions carries the external inputs of an aggregation
type AggregateOptions struct {
	// PeriodOrder is the fixed display order of reporting periods
	PeriodOrder []string
	// Throughput per period; periods without an entry report their sample count
	Throughput  map[string]int
	StoryPoints map[string]float64
	TopN        int
	// Excluded counts per category, copied into the report as-is
	Excluded map[ExclusionCategory][]string
	Now      time.Time
}

// OverallStats summarises every non-excluded issue
type OverallStats struct {
	SampleSize             int      `json:"sample_size"`
	WithCycle              int      `json:"with_cycle"`
	Skipped                int      `json:"skipped"`
	CycleMedian            *float64 `json:"cycle_median"`
	CycleMean              *float64 `json:"cycle_mean"`
	CycleP85               *float64 `json:"cycle_p85"`
	CycleP95               *float64 `json:"cycle_p95"`
	CycleMin               *float64 `json:"cycle_min"`
	CycleMax               *float64 `json:"cycle_max"`
	LeadMedian             *float64 `json:"lead_median"`
	LeadMean               *float64 `json:"lead_mean"`
	LeadP85                *float64 `json:"lead_p85"`
	LeadP95                *float64 `json:"lead_p95"`
	ActiveMedian           *float64 `json:"active_median"`
	ActiveMean             *float64 `json:"active_mean"`
	FirstActiveCycleMedian *float64 `json:"first_active_cycle_median"`
}

// PeriodStats is the aggregate of one reporting period
type PeriodStats struct {
	SampleCount   int      `json:"sample_count"`
	WithCycle     int      `json:"with_cycle"`
	Throughput    int      `json:"throughput"`
	StoryPoints   float64  `json:"story_points"`
	CycleMedian   *float64 `json:"cycle_median"`
	CycleMean     *float64 `json:"cycle_mean"`
	CycleP85      *float64 `json:"cycle_p85"`
	CycleP95      *float64 `json:"cycle_p95"`
	LeadMedian    *float64 `json:"lead_median"`
	AvgInProgress float64  `json:"avg_ip_days"`
	AvgTesting    float64  `json:"avg_test_days"`
	AvgReview     float64  `json:"avg_pr_days"`
	AvgBlocked    float64  `json:"avg_blocked_days"`
}

// HistogramBucket counts cycle times in [Lower, Upper); Upper is nil for the open bucket
type HistogramBucket struct {
	Label string   `json:"label"`
	Lower float64  `json:"lower"`
	Upper *float64 `json:"upper"`
	Count int      `json:"count"`
}

// StatusShare is one tracked status in the overall time breakdown
type StatusShare struct {
	Status  string  `json:"status"`
	Days    float64 `json:"days"`
	Percent float64 `json:"percent"`
}

// IssueRow is a per-issue line of the report
type IssueRow struct {
	Key        string   `json:"key"`
	Period     string   `json:"period"`
	CycleDays  *float64 `json:"cycle_days"`
	LeadDays   *float64 `json:"lead_days"`
	ActiveDays float64  `json:"active_days"`
	InProgress float64  `json:"ip_days"`
	Testing    float64  `json:"test_days"`
	Review     float64  `json:"pr_days"`
	Blocked    float64  `json:"blocked_days"`
	Backlog    float64  `json:"backlog_days"`
}

// Report is the complete metrics artifact
type Report struct {
	GeneratedAt     time.Time                 `json:"generated_at"`
	Overall         OverallStats              `json:"overall"`
	PeriodOrder     []string                  `json:"period_order"`
	Periods         map[string]PeriodStats    `json:"period_data"`
	Histogram       []HistogramBucket         `json:"histogram"`
	StatusBreakdown []StatusShare             `json:"status_breakdown"`
	TopLongest      []IssueRow                `json:"top_longest"`
	TopBlocked      []IssueRow                `json:"top_blocked"`
	Insights        []string                  `json:"insights"`
	Issues          []IssueRow                `json:"all_issues"`
	Excluded        map[ExclusionCategory]int `json:"excluded"`
}

type bucketEdge struct {
	label        string
	lower, upper float64
}

var histogramEdges = []bucketEdge{
	{"0-1d", 0, 1},
	{"1-2d", 1, 2},
	{"2-5d", 2, 5},
	{"5-10d", 5, 10},
	{"10-20d", 10, 20},
	{"20-30d", 20, 30},
	{"30d+", 30, math.Inf(1)},
}

// Aggregate computes overall and per-period statistics from per-issue metrics
func Aggregate(metrics []CycleMetric, lookup PeriodLookup, opts AggregateOptions) Report {
	topN := opts.TopN
	if topN <= 0 {
		topN = DefaultTopN
	}
	now := opts.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	withCycle := lo.Filter(metrics, func(m CycleMetric, _ int) bool { return m.HasCycle() })
	order := periodOrder(metrics, lookup, opts.PeriodOrder)
	grouped := lo.GroupBy(metrics, func(m CycleMetric) string { return lookup.PeriodOf(m.Key) })

	report := Report{
		GeneratedAt:     now,
		Overall:         overallStats(metrics, withCycle),
		PeriodOrder:     order,
		Periods:         make(map[string]PeriodStats, len(order)),
		Histogram:       histogram(withCycle),
		StatusBreakdown: statusBreakdown(withCycle),
		Excluded:        make(map[ExclusionCategory]int, len(opts.Excluded)),
	}

	for _, period := range order {
		report.Periods[period] = periodStats(grouped[period], period, opts)
	}

	rows := issueRows(metrics, lookup, order)
	report.Issues = rows

	longest := lo.Filter(rows, func(r IssueRow, _ int) bool { return r.CycleDays != nil })
	sort.SliceStable(longest, func(i, j int) bool { return *longest[i].CycleDays > *longest[j].CycleDays })
	report.TopLongest = firstN(longest, topN)

	blocked := lo.Filter(rows, func(r IssueRow, _ int) bool { return r.Blocked > 0 })
	sort.SliceStable(blocked, func(i, j int) bool { return blocked[i].Blocked > blocked[j].Blocked })
	report.TopBlocked = firstN(blocked, topN)

	for category, keys := range opts.Excluded {
		report.Excluded[category] = len(keys)
	}

	report.Insights = Insights(report, metrics, opts.Throughput)
	return report
}

func cycleSeries(metrics []CycleMetric) []float64 {
	return lo.FilterMap(metrics, func(m CycleMetric, _ int) (float64, bool) {
		if m.CycleDays == nil {
			return 0, false
		}
		return *m.CycleDays, true
	})
}

func leadSeries(metrics []CycleMetric) []float64 {
	return lo.FilterMap(metrics, func(m CycleMetric, _ int) (float64, bool) {
		if m.LeadDays == nil {
			return 0, false
		}
		return *m.LeadDays, true
	})
}

func overallStats(all, withCycle []CycleMetric) OverallStats {
	cycles := cycleSeries(withCycle)
	leads := leadSeries(all)
	active := lo.Map(withCycle, func(m CycleMetric, _ int) float64 { return m.ActiveDays })
	firstActive := lo.FilterMap(withCycle, func(m CycleMetric, _ int) (float64, bool) {
		if m.FirstActiveCycleDays == nil {
			return 0, false
		}
		return *m.FirstActiveCycleDays, true
	})

	return OverallStats{
		SampleSize:             len(all),
		WithCycle:              len(cycles),
		Skipped:                len(all) - len(cycles),
		CycleMedian:            rounded(Median(cycles)),
		CycleMean:              rounded(Mean(cycles)),
		CycleP85:               rounded(Percentile(cycles, 85)),
		CycleP95:               rounded(Percentile(cycles, 95)),
		CycleMin:               rounded(Min(cycles)),
		CycleMax:               rounded(Max(cycles)),
		LeadMedian:             rounded(Median(leads)),
		LeadMean:               rounded(Mean(leads)),
		LeadP85:                rounded(Percentile(leads, 85)),
		LeadP95:                rounded(Percentile(leads, 95)),
		ActiveMedian:           rounded(Median(active)),
		ActiveMean:             rounded(Mean(active)),
		FirstActiveCycleMedian: rounded(Median(firstActive)),
	}
}

func periodStats(members []CycleMetric, period string, opts AggregateOptions) PeriodStats {
	withCycle := lo.Filter(members, func(m CycleMetric, _ int) bool { return m.HasCycle() })
	cycles := cycleSeries(withCycle)

	throughput, ok := opts.Throughput[period]
	if !ok {
		throughput = len(members)
	}

	avg := func(pick func(CycleMetric) float64) float64 {
		mean, ok := Mean(lo.Map(withCycle, func(m CycleMetric, _ int) float64 { return pick(m) }))
		if !ok {
			return 0
		}
		return round(mean, 2)
	}

	return PeriodStats{
		SampleCount:   len(members),
		WithCycle:     len(cycles),
		Throughput:    throughput,
		StoryPoints:   round(opts.StoryPoints[period], 2),
		CycleMedian:   rounded(Median(cycles)),
		CycleMean:     rounded(Mean(cycles)),
		CycleP85:      rounded(Percentile(cycles, 85)),
		CycleP95:      rounded(Percentile(cycles, 95)),
		LeadMedian:    rounded(Median(leadSeries(members))),
		AvgInProgress: avg(func(m CycleMetric) float64 { return m.InProgressDays }),
		AvgTesting:    avg(func(m CycleMetric) float64 { return m.TestingDays }),
		AvgReview:     avg(func(m CycleMetric) float64 { return m.ReviewDays }),
		AvgBlocked:    avg(func(m CycleMetric) float64 { return m.BlockedDays }),
	}
}

func histogram(withCycle []CycleMetric) []HistogramBucket {
	cycles := cycleSeries(withCycle)
	buckets := make([]HistogramBucket, 0, len(histogramEdges))
	for _, edge := range histogramEdges {
		b := HistogramBucket{Label: edge.label, Lower: edge.lower}
		if !math.IsInf(edge.upper, 1) {
			upper := edge.upper
			b.Upper = &upper
		}
		b.Count = lo.CountBy(cycles, func(c float64) bool { return c >= edge.lower && c < edge.upper })
		buckets = append(buckets, b)
	}
	return buckets
}

func statusBreakdown(withCycle []CycleMetric) []StatusShare {
	shares := []StatusShare{
		{Status: "In Progress", Days: lo.SumBy(withCycle, func(m CycleMetric) float64 { return m.InProgressDays })},
		{Status: "In Testing", Days: lo.SumBy(withCycle, func(m CycleMetric) float64 { return m.TestingDays })},
		{Status: "Peer Review Needed", Days: lo.SumBy(withCycle, func(m CycleMetric) float64 { return m.ReviewDays })},
		{Status: "Blocked", Days: lo.SumBy(withCycle, func(m CycleMetric) float64 { return m.BlockedDays })},
	}

	total := lo.SumBy(shares, func(s StatusShare) float64 { return s.Days })
	for i := range shares {
		if total > 0 {
			shares[i].Percent = round(shares[i].Days/total*100, 1)
		}
		shares[i].Days = round(shares[i].Days, 2)
	}
	return shares
}

// periodOrder is the configured order, then any other assigned periods
// alphabetically, then Unknown when it has members.
func periodOrder(metrics []CycleMetric, lookup PeriodLookup, configured []string) []string {
	order := lo.Uniq(lo.Filter(configured, func(p string, _ int) bool { return p != "" && p != UnknownPeriod }))

	var extra []string
	hasUnknown := false
	for _, m := range metrics {
		period := lookup.PeriodOf(m.Key)
		if period == UnknownPeriod {
			hasUnknown = true
			continue
		}
		if !lo.Contains(order, period) && !lo.Contains(extra, period) {
			extra = append(extra, period)
		}
	}
	sort.Strings(extra)
	order = append(order, extra...)

	if hasUnknown {
		order = append(order, UnknownPeriod)
	}
	return order
}

// issueRows lists every issue sorted by period order, cycle time and key.
// Issues without a cycle sort last within their period.
func issueRows(metrics []CycleMetric, lookup PeriodLookup, order []string) []IssueRow {
	rank := make(map[string]int, len(order))
	for i, p := range order {
		rank[p] = i
	}

	rows := lo.Map(metrics, func(m CycleMetric, _ int) IssueRow {
		return IssueRow{
			Key:        m.Key,
			Period:     lookup.PeriodOf(m.Key),
			CycleDays:  roundPtr(m.CycleDays, 2),
			LeadDays:   roundPtr(m.LeadDays, 2),
			ActiveDays: round(m.ActiveDays, 2),
			InProgress: round(m.InProgressDays, 2),
			Testing:    round(m.TestingDays, 2),
			Review:     round(m.ReviewDays, 2),
			Blocked:    round(m.BlockedDays, 2),
			Backlog:    round(m.BacklogDays, 2),
		}
	})

	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if rank[a.Period] != rank[b.Period] {
			return rank[a.Period] < rank[b.Period]
		}
		switch {
		case a.CycleDays == nil && b.CycleDays != nil:
			return false
		case a.CycleDays != nil && b.CycleDays == nil:
			return true
		case a.CycleDays != nil && *a.CycleDays != *b.CycleDays:
			return *a.CycleDays < *b.CycleDays
		}
		return a.Key < b.Key
	})
	return rows
}

func firstN(rows []IssueRow, n int) []IssueRow {
	if len(rows) > n {
		rows = rows[:n]
	}
	out := make([]IssueRow, len(rows))
	copy(out, rows)
	return out
}
