package metrics

import (
	"time"

	"flow-metrics/timeline"
)

// IssueRecord is the per-issue fact base the calculator works from
type IssueRecord struct {
	Key               string
	Summary           string
	Created           *time.Time
	Resolution        *time.Time
	DoneAt            *time.Time
	FirstActiveAt     *time.Time
	LastActiveStartAt *time.Time
	Durations         timeline.StatusDuration
	StoryPoints       *float64
	CanceledTransit   bool
	MaxReopenDays     int
}

// CompletedAt is the done transition, falling back to the resolution date
func (r IssueRecord) CompletedAt() *time.Time {
	if r.DoneAt != nil {
		return r.DoneAt
	}
	return r.Resolution
}

// CycleMetric is the per-issue output. CycleDays is nil only when the issue was
// never actively worked; 0 means it started and finished within no business time.
type CycleMetric struct {
	Key                  string   `json:"key"`
	CycleDays            *float64 `json:"cycle_days"`
	LeadDays             *float64 `json:"lead_days"`
	FirstActiveCycleDays *float64 `json:"first_active_cycle_days"`
	ActiveDays           float64  `json:"active_days"`
	InProgressDays       float64  `json:"in_progress_days"`
	TestingDays          float64  `json:"testing_days"`
	ReviewDays           float64  `json:"review_days"`
	BlockedDays          float64  `json:"blocked_days"`
	CanceledDays         float64  `json:"canceled_days"`
	BacklogDays          float64  `json:"backlog_days"`
}

// HasCycle reports whether the issue contributes to cycle-time statistics
func (m CycleMetric) HasCycle() bool {
	return m.CycleDays != nil
}

// PeriodLookup maps issue keys to reporting period labels
type PeriodLookup map[string]string

// UnknownPeriod collects issues without a period assignment
const UnknownPeriod = "Unknown"

// PeriodOf returns the period for a key, or UnknownPeriod
func (l PeriodLookup) PeriodOf(key string) string {
	if p, ok := l[key]; ok && p != "" {
		return p
	}
	return UnknownPeriod
}
