package timeline

import (
	"sort"
	"time"
)

// StatusEvent is one observed status transition
type StatusEvent struct {
	At   time.Time `json:"at"`
	From string    `json:"from"`
	To   string    `json:"to"`
}

// Timeline is the time-in-state model reconstructed from an issue's transitions
type Timeline struct {
	Durations         StatusDuration `json:"durations"`
	FirstActiveAt     *time.Time     `json:"first_active_at,omitempty"`
	LastActiveStartAt *time.Time     `json:"last_active_start_at,omitempty"`
	DoneAt            *time.Time     `json:"done_at,omitempty"`
	CanceledTransit   bool           `json:"canceled_transit"`
	Reopens           int            `json:"reopens"`
	MaxReopenDays     int            `json:"max_reopen_days"`
	Transitions       int            `json:"transitions"`
}

// Builder turns raw transition sequences into timelines
type Builder struct {
	statuses StatusMap
}

// NewBuilder creates a builder classifying statuses with the given map
func NewBuilder(statuses StatusMap) *Builder {
	if statuses == nil {
		statuses = DefaultStatusMap()
	}
	return &Builder{statuses: statuses}
}

// Build walks the transitions in chronological order. Time between consecutive
// events goes to the status entered by the most recent transition, starting in
// backlog at created. The cycle anchor is the last transition into an active
// status from an inactive one (or from nothing); moves between active statuses
// never re-anchor an issue that already has a restart.
func (b *Builder) Build(created *time.Time, events []StatusEvent) Timeline {
	ordered := make([]StatusEvent, len(events))
	copy(ordered, events)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].At.Before(ordered[j].At)
	})

	var tl Timeline
	minutes := make(map[Category]float64)
	current := Backlog
	cursor := created

	var pendingReopen *time.Time
	doneSeen := false

	for _, ev := range ordered {
		at := ev.At
		if cursor != nil && at.After(*cursor) {
			minutes[current] += at.Sub(*cursor).Minutes()
		}

		to, known := b.statuses.Classify(ev.To)
		from, fromKnown := b.statuses.Classify(ev.From)

		if known {
			if to.Active() {
				if tl.FirstActiveAt == nil {
					tl.FirstActiveAt = &at
				}
				if ev.From == "" || (fromKnown && from.Inactive()) {
					tl.LastActiveStartAt = &at
				} else if tl.LastActiveStartAt == nil {
					tl.LastActiveStartAt = &at
				}
			}

			if doneSeen && pendingReopen == nil && to == InProgress &&
				fromKnown && (from == Done || from == Canceled || from == Backlog) {
				pendingReopen = &at
			}

			switch to {
			case Done:
				tl.DoneAt = &at
				doneSeen = true
				if pendingReopen != nil {
					tl.Reopens++
					if gap := calendarDaysBetween(*pendingReopen, at); gap > tl.MaxReopenDays {
						tl.MaxReopenDays = gap
					}
					pendingReopen = nil
				}
			case Canceled:
				tl.CanceledTransit = true
			}

			current = to
		}

		cursor = &at
		tl.Transitions++
	}

	tl.Durations = NewStatusDuration(minutes)
	return tl
}

// calendarDaysBetween counts civil dates between two instants, each read in its own location
func calendarDaysBetween(from, to time.Time) int {
	fy, fm, fd := from.Date()
	ty, tm, td := to.Date()
	a := time.Date(fy, fm, fd, 0, 0, 0, 0, time.UTC)
	b := time.Date(ty, tm, td, 0, 0, 0, 0, time.UTC)
	return int(b.Sub(a).Hours() / 24)
}
