package timeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)

func hoursAfter(h int) time.Time {
	return base.Add(time.Duration(h) * time.Hour)
}

func ev(h int, from, to string) StatusEvent {
	return StatusEvent{At: hoursAfter(h), From: from, To: to}
}

func TestBuildRestartResolution(t *testing.T) {
	b := NewBuilder(nil)
	created := hoursAfter(0)

	tl := b.Build(&created, []StatusEvent{
		ev(1, "Backlog", "In Progress"),
		ev(5, "In Progress", "Backlog"),
		ev(30, "Backlog", "In Progress"),
		ev(40, "In Progress", "Done"),
	})

	require.NotNil(t, tl.LastActiveStartAt)
	assert.True(t, hoursAfter(30).Equal(*tl.LastActiveStartAt))
	require.NotNil(t, tl.FirstActiveAt)
	assert.True(t, hoursAfter(1).Equal(*tl.FirstActiveAt))
	require.NotNil(t, tl.DoneAt)
	assert.True(t, hoursAfter(40).Equal(*tl.DoneAt))
}

func TestBuildSidewaysMoveKeepsOriginalStart(t *testing.T) {
	b := NewBuilder(nil)
	created := hoursAfter(0)

	tl := b.Build(&created, []StatusEvent{
		ev(2, "Backlog", "In Progress"),
		ev(10, "In Progress", "Blocked"),
		ev(20, "Blocked", "In Progress"),
		ev(30, "In Progress", "Done"),
	})

	require.NotNil(t, tl.LastActiveStartAt)
	assert.True(t, hoursAfter(2).Equal(*tl.LastActiveStartAt))
	assert.InDelta(t, 10*60.0, tl.Durations.Minutes(Blocked), 1e-9)
	assert.InDelta(t, 18*60.0, tl.Durations.Minutes(InProgress), 1e-9)
}

func TestBuildSidewaysFallbackAnchor(t *testing.T) {
	b := NewBuilder(nil)

	// export starts mid-flight: no inactive predecessor was ever seen
	tl := b.Build(nil, []StatusEvent{
		ev(3, "In Progress", "In Testing"),
		ev(6, "In Testing", "Done"),
	})

	require.NotNil(t, tl.LastActiveStartAt)
	assert.True(t, hoursAfter(3).Equal(*tl.LastActiveStartAt))
}

func TestBuildInceptionCountsAsRestart(t *testing.T) {
	b := NewBuilder(nil)
	created := hoursAfter(0)

	tl := b.Build(&created, []StatusEvent{
		ev(1, "", "In Progress"),
		ev(2, "In Progress", "Done"),
		ev(3, "Done", "In Progress"),
		ev(4, "In Progress", "Done"),
	})

	require.NotNil(t, tl.LastActiveStartAt)
	assert.True(t, hoursAfter(1).Equal(*tl.LastActiveStartAt))
}

func TestBuildNeverActive(t *testing.T) {
	b := NewBuilder(nil)
	created := hoursAfter(0)

	tl := b.Build(&created, []StatusEvent{
		ev(48, "Backlog", "Done"),
	})

	assert.Nil(t, tl.LastActiveStartAt)
	assert.Nil(t, tl.FirstActiveAt)
	assert.Equal(t, 0.0, tl.Durations.Minutes(InProgress)+tl.Durations.Minutes(InTesting)+tl.Durations.Minutes(PeerReview))
	assert.InDelta(t, 48*60.0, tl.Durations.Minutes(Backlog), 1e-9)
}

func TestBuildDurationsSumToSpan(t *testing.T) {
	b := NewBuilder(nil)
	created := hoursAfter(0)

	tl := b.Build(&created, []StatusEvent{
		ev(4, "Backlog", "In Progress"),
		ev(9, "In Progress", "In Testing"),
		ev(12, "In Testing", "Peer Review Needed"),
		ev(13, "Peer Review Needed", "Canceled"),
		ev(20, "Canceled", "Done"),
	})

	assert.InDelta(t, 20*60.0, tl.Durations.Total(), 1e-9)
	assert.InDelta(t, 4*60.0, tl.Durations.Minutes(Backlog), 1e-9)
	assert.InDelta(t, 5*60.0, tl.Durations.Minutes(InProgress), 1e-9)
	assert.InDelta(t, 3*60.0, tl.Durations.Minutes(InTesting), 1e-9)
	assert.InDelta(t, 60.0, tl.Durations.Minutes(PeerReview), 1e-9)
	assert.InDelta(t, 7*60.0, tl.Durations.Minutes(Canceled), 1e-9)
	assert.True(t, tl.CanceledTransit)
	assert.Equal(t, 5, tl.Transitions)
}

func TestBuildSortsUnorderedEvents(t *testing.T) {
	b := NewBuilder(nil)
	created := hoursAfter(0)

	tl := b.Build(&created, []StatusEvent{
		ev(10, "In Progress", "Done"),
		ev(2, "Backlog", "In Progress"),
	})

	require.NotNil(t, tl.LastActiveStartAt)
	assert.True(t, hoursAfter(2).Equal(*tl.LastActiveStartAt))
	assert.InDelta(t, 8*60.0, tl.Durations.Minutes(InProgress), 1e-9)
}

func TestBuildUnknownStatusKeepsBucket(t *testing.T) {
	b := NewBuilder(nil)
	created := hoursAfter(0)

	tl := b.Build(&created, []StatusEvent{
		ev(1, "Backlog", "In Progress"),
		ev(3, "In Progress", "Waiting For Deploy"),
		ev(5, "Waiting For Deploy", "Done"),
	})

	assert.InDelta(t, 4*60.0, tl.Durations.Minutes(InProgress), 1e-9)
}

func TestBuildReopenSpans(t *testing.T) {
	b := NewBuilder(nil)
	created := hoursAfter(0)

	sameDay := b.Build(&created, []StatusEvent{
		ev(1, "Backlog", "In Progress"),
		ev(2, "In Progress", "Done"),
		ev(3, "Done", "In Progress"),
		ev(4, "In Progress", "Done"),
	})
	assert.Equal(t, 1, sameDay.Reopens)
	assert.Equal(t, 0, sameDay.MaxReopenDays)

	multiDay := b.Build(&created, []StatusEvent{
		ev(1, "Backlog", "In Progress"),
		ev(2, "In Progress", "Done"),
		ev(3, "Done", "In Progress"),
		ev(75, "In Progress", "Done"),
	})
	assert.Equal(t, 1, multiDay.Reopens)
	assert.Equal(t, 3, multiDay.MaxReopenDays)
}

func TestStatusMapOverrides(t *testing.T) {
	m, err := DefaultStatusMap().With(map[string]string{"Code Review": "peer_review"})
	require.NoError(t, err)

	c, ok := m.Classify("  code review ")
	require.True(t, ok)
	assert.Equal(t, PeerReview, c)

	_, err = DefaultStatusMap().With(map[string]string{"Parked": "limbo"})
	assert.Error(t, err)
}

func TestStatusDurationIsSnapshot(t *testing.T) {
	source := map[Category]float64{InProgress: 90}
	d := NewStatusDuration(source)
	source[InProgress] = 1

	copied := d.Map()
	copied[InProgress] = 2

	assert.Equal(t, 90.0, d.Minutes(InProgress))
	assert.InDelta(t, 90.0/1440.0, d.Days(InProgress), 1e-12)
}
