package metrics

import (
	"errors"

	"github.com/sirupsen/logrus"

	"flow-metrics/calendar"
	"flow-metrics/timeline"
)

// Calculator turns issue facts into per-issue cycle metrics
type Calculator struct {
	calendar   *calendar.Calendar
	exclusions *ExclusionSet
}

// NewCalculator creates a calculator. A nil calendar uses the built-in holidays,
// a nil exclusion set excludes nothing.
func NewCalculator(cal *calendar.Calendar, exclusions *ExclusionSet) *Calculator {
	if cal == nil {
		cal = calendar.Default()
	}
	return &Calculator{calendar: cal, exclusions: exclusions}
}

// Compute calculates the metrics of one issue, or returns *ExcludedError
func (c *Calculator) Compute(issue IssueRecord) (CycleMetric, error) {
	if category, excluded := c.exclusions.Match(issue); excluded {
		return CycleMetric{}, &ExcludedError{Key: issue.Key, Category: category}
	}

	done := issue.CompletedAt()
	d := issue.Durations

	metric := CycleMetric{
		Key:            issue.Key,
		LeadDays:       c.calendar.ElapsedBusinessDays(issue.Created, done),
		InProgressDays: d.Days(timeline.InProgress),
		TestingDays:    d.Days(timeline.InTesting),
		ReviewDays:     d.Days(timeline.PeerReview),
		BlockedDays:    d.Days(timeline.Blocked),
		CanceledDays:   d.Days(timeline.Canceled),
		BacklogDays:    d.Days(timeline.Backlog),
	}
	metric.ActiveDays = metric.InProgressDays + metric.TestingDays + metric.ReviewDays

	// never worked: no cycle at all, distinct from a zero-length one
	if issue.LastActiveStartAt != nil {
		metric.CycleDays = c.calendar.ElapsedBusinessDays(issue.LastActiveStartAt, done)
	}
	if issue.FirstActiveAt != nil {
		metric.FirstActiveCycleDays = c.calendar.ElapsedBusinessDays(issue.FirstActiveAt, done)
	}

	return metric, nil
}

// ComputeResult is the outcome of a batch computation
type ComputeResult struct {
	Metrics  []CycleMetric
	Excluded map[ExclusionCategory][]string
}

// ExcludedCount returns the number of issues dropped across all categories
func (r ComputeResult) ExcludedCount() int {
	n := 0
	for _, keys := range r.Excluded {
		n += len(keys)
	}
	return n
}

// ComputeAll calculates metrics for every issue, collecting exclusions by category
func (c *Calculator) ComputeAll(issues []IssueRecord, log logrus.FieldLogger) ComputeResult {
	result := ComputeResult{Excluded: make(map[ExclusionCategory][]string)}

	for _, issue := range issues {
		metric, err := c.Compute(issue)
		var excluded *ExcludedError
		if errors.As(err, &excluded) {
			result.Excluded[excluded.Category] = append(result.Excluded[excluded.Category], excluded.Key)
			if log != nil {
				log.WithFields(logrus.Fields{"key": excluded.Key, "category": excluded.Category}).Debug("issue excluded")
			}
			continue
		}
		result.Metrics = append(result.Metrics, metric)
	}

	if log != nil {
		log.WithFields(logrus.Fields{
			"issues":   len(issues),
			"computed": len(result.Metrics),
			"excluded": result.ExcludedCount(),
		}).Info("computed issue metrics")
	}
	return result
}
