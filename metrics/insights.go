package metrics

import (
	"fmt"
	"math"
	"strings"

	"github.com/samber/lo"
)

const (
	trendWindow       = 4
	blockedThreshold  = 0.5
	testingBottleneck = 30.0
	backlogGapMinimum = 1.0
)

// Insights derives the narrative lines of a report. A line is emitted only when
// its inputs exist; nothing here fails.
func Insights(report Report, metrics []CycleMetric, throughput map[string]int) []string {
	var out []string
	o := report.Overall

	if o.CycleMedian != nil && o.CycleMean != nil && o.CycleP85 != nil && o.CycleP95 != nil {
		out = append(out, fmt.Sprintf(
			"Across all %d completed issues, the median cycle time is %.2f days with a mean of %.2f days. "+
				"The 85th percentile is %.2f days and the 95th percentile is %.2f days.",
			o.WithCycle, *o.CycleMedian, *o.CycleMean, *o.CycleP85, *o.CycleP95))
	}

	if o.CycleMin != nil && o.CycleMax != nil && *o.CycleMax > *o.CycleMin {
		out = append(out, fmt.Sprintf(
			"Cycle times range from %.2f to %.2f days (spread of %.1f days). High variability reduces predictability of delivery commitments.",
			*o.CycleMin, *o.CycleMax, *o.CycleMax-*o.CycleMin))
	}

	blocked := lo.Filter(metrics, func(m CycleMetric, _ int) bool { return m.BlockedDays > blockedThreshold })
	if avg, ok := Mean(lo.Map(blocked, func(m CycleMetric, _ int) float64 { return m.BlockedDays })); ok {
		out = append(out, fmt.Sprintf(
			"%d issues spent more than half a day blocked, averaging %.1f blocked days among them.",
			len(blocked), avg))
	}

	for _, share := range report.StatusBreakdown {
		if share.Status == "In Testing" && share.Percent > testingBottleneck {
			out = append(out, fmt.Sprintf(
				"Testing accounts for %.1f%% of tracked active time, suggesting a potential bottleneck.",
				share.Percent))
		}
	}

	skipped := lo.FilterMap(metrics, func(m CycleMetric, _ int) (string, bool) { return m.Key, !m.HasCycle() })
	if len(skipped) > 0 {
		out = append(out, fmt.Sprintf(
			"%d issue(s) went from backlog to done without entering an active state (%s) and are excluded from cycle time.",
			len(skipped), strings.Join(skipped, ", ")))
	}

	out = append(out, trendInsights(report, throughput)...)

	ratios := lo.FilterMap(metrics, func(m CycleMetric, _ int) (float64, bool) {
		if !m.HasCycle() || m.LeadDays == nil || *m.LeadDays <= 0 {
			return 0, false
		}
		return m.ActiveDays / *m.LeadDays * 100, true
	})
	if eff, ok := Median(ratios); ok {
		out = append(out, fmt.Sprintf(
			"Flow efficiency (active work / lead time): median %.0f%%. Lead time includes backlog wait before work starts.",
			math.Round(eff)))
	}

	if o.LeadMedian != nil && o.CycleMedian != nil {
		gap := round(*o.LeadMedian-*o.CycleMedian, 1)
		if gap > backlogGapMinimum {
			out = append(out, fmt.Sprintf(
				"Median lead time (%.2fd) exceeds median cycle time (%.2fd) by %.1f days of backlog wait before work begins.",
				*o.LeadMedian, *o.CycleMedian, gap))
		}
	}

	return out
}

// trendInsights compares the first and last periods of the configured order.
// Unknown never takes part in a trend.
func trendInsights(report Report, throughput map[string]int) []string {
	order := lo.Without(report.PeriodOrder, UnknownPeriod)
	window := trendWindow
	if len(order)/2 < window {
		window = len(order) / 2
	}
	if window < 1 {
		return nil
	}
	early, late := order[:window], order[len(order)-window:]

	var out []string

	medians := func(periods []string) []float64 {
		return lo.FilterMap(periods, func(p string, _ int) (float64, bool) {
			m := report.Periods[p].CycleMedian
			if m == nil {
				return 0, false
			}
			return *m, true
		})
	}
	e, eok := Mean(medians(early))
	l, lok := Mean(medians(late))
	if eok && lok && e > 0 {
		switch {
		case l < e:
			out = append(out, fmt.Sprintf(
				"Cycle times improved over time: the first %d periods averaged a %.1f-day median vs %.1f days in the last %d (~%.0f%% improvement).",
				window, e, l, window, math.Round((e-l)/e*100)))
		case l > e:
			out = append(out, fmt.Sprintf(
				"Cycle times increased over time: the first %d periods averaged a %.1f-day median vs %.1f days in the last %d (~%.0f%% increase).",
				window, e, l, window, math.Round((l-e)/e*100)))
		}
	}

	if len(throughput) > 0 {
		counts := func(periods []string) []float64 {
			return lo.Map(periods, func(p string, _ int) float64 { return float64(report.Periods[p].Throughput) })
		}
		et, _ := Mean(counts(early))
		lt, _ := Mean(counts(late))
		out = append(out, fmt.Sprintf(
			"Average throughput: first %d periods = %.0f issues/period, last %d periods = %.0f issues/period.",
			window, et, window, lt))
	}

	return out
}
