package dataset

import (
	"sort"

	"flow-metrics/calendar"
	"flow-metrics/jira"
	"flow-metrics/metrics"
	"flow-metrics/timeline"
)

// Records merges the facts file with the raw changelogs into issue records,
// sorted by key.
//
// Fact durations win when present. Raw changelogs contribute the restart
// anchor, canceled transit and reopen spans; without them the cycle start is
// anchored at first_active. Done issues that only appear in the raw exports
// are converted entirely from their changelog.
func (ds *Dataset) Records(builder *timeline.Builder) []metrics.IssueRecord {
	if builder == nil {
		builder = timeline.NewBuilder(nil)
	}

	records := make([]metrics.IssueRecord, 0, len(ds.Facts)+len(ds.Raw))
	for key, fact := range ds.Facts {
		rec := factRecord(key, fact)
		if raw, ok := ds.Raw[key]; ok {
			mergeTimeline(&rec, builder.Build(rec.Created, raw.StatusEvents()))
			if rec.Summary == "" {
				rec.Summary = raw.Summary
			}
			if rec.StoryPoints == nil {
				rec.StoryPoints = raw.StoryPoints
			}
		} else {
			rec.LastActiveStartAt = rec.FirstActiveAt
		}
		ds.decorate(&rec)
		records = append(records, rec)
	}

	for key, raw := range ds.Raw {
		if _, ok := ds.Facts[key]; ok || !raw.IsDone() {
			continue
		}
		rec, ok := RawRecord(raw, builder)
		if !ok {
			continue
		}
		ds.decorate(&rec)
		records = append(records, rec)
	}

	sort.Slice(records, func(i, j int) bool { return records[i].Key < records[j].Key })
	return records
}

func (ds *Dataset) decorate(rec *metrics.IssueRecord) {
	if rec.Summary == "" {
		rec.Summary = ds.Summaries[rec.Key]
	}
	if sp, ok := ds.StoryPoints[rec.Key]; ok {
		rec.StoryPoints = &sp
	}
}

func factRecord(key string, f Fact) metrics.IssueRecord {
	return metrics.IssueRecord{
		Key:           key,
		Summary:       f.Summary,
		Created:       calendar.ParseInstant(f.Created),
		Resolution:    calendar.ParseInstant(f.ResolutionDate),
		DoneAt:        calendar.ParseInstant(f.DoneAt),
		FirstActiveAt: calendar.ParseInstant(f.FirstActive),
		StoryPoints:   f.StoryPoints,
		Durations: timeline.NewStatusDuration(map[timeline.Category]float64{
			timeline.Backlog:    f.BacklogMinutes,
			timeline.InProgress: f.InProgressMinutes,
			timeline.InTesting:  f.InTestingMinutes,
			timeline.PeerReview: f.PeerReviewMinutes,
			timeline.Blocked:    f.BlockedMinutes,
			timeline.Canceled:   f.CanceledMinutes,
		}),
	}
}

func mergeTimeline(rec *metrics.IssueRecord, tl timeline.Timeline) {
	rec.CanceledTransit = tl.CanceledTransit
	rec.MaxReopenDays = tl.MaxReopenDays
	if rec.FirstActiveAt == nil {
		rec.FirstActiveAt = tl.FirstActiveAt
	}
	if rec.DoneAt == nil {
		rec.DoneAt = tl.DoneAt
	}
	if rec.Durations.IsZero() {
		rec.Durations = tl.Durations
	}
	// no recognised active entry in the changelog (truncated history or an
	// unmapped status): keep the facts-file first_active as the anchor
	rec.LastActiveStartAt = tl.LastActiveStartAt
	if rec.LastActiveStartAt == nil {
		rec.LastActiveStartAt = rec.FirstActiveAt
	}
}

// RawRecord converts a raw issue through the timeline. Issues without a done
// instant are skipped; issues never worked stay in with no cycle start.
func RawRecord(raw jira.RawIssue, builder *timeline.Builder) (metrics.IssueRecord, bool) {
	created := raw.CreatedAt()
	tl := builder.Build(created, raw.StatusEvents())

	rec := metrics.IssueRecord{
		Key:               raw.Key,
		Summary:           raw.Summary,
		Created:           created,
		Resolution:        raw.ResolvedAt(),
		DoneAt:            tl.DoneAt,
		FirstActiveAt:     tl.FirstActiveAt,
		LastActiveStartAt: tl.LastActiveStartAt,
		Durations:         tl.Durations,
		StoryPoints:       raw.StoryPoints,
		CanceledTransit:   tl.CanceledTransit,
		MaxReopenDays:     tl.MaxReopenDays,
	}
	return rec, rec.CompletedAt() != nil
}
