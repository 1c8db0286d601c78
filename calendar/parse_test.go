package calendar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseInstant(t *testing.T) {
	cases := []struct {
		input string
		want  time.Time
	}{
		{"2026-01-23T07:58:59.388000-05:00", time.Date(2026, 1, 23, 12, 58, 59, 388000000, time.UTC)},
		{"2025-06-12T10:15:30.123-0400", time.Date(2025, 6, 12, 14, 15, 30, 123000000, time.UTC)},
		{"2025-06-12T10:15:30Z", time.Date(2025, 6, 12, 10, 15, 30, 0, time.UTC)},
		{"2025-06-12T10:15:30", time.Date(2025, 6, 12, 10, 15, 30, 0, time.UTC)},
		{" 2025-06-12 ", time.Date(2025, 6, 12, 0, 0, 0, 0, time.UTC)},
	}

	for _, tc := range cases {
		t.Run(tc.input, func(t *testing.T) {
			got := ParseInstant(tc.input)
			require.NotNil(t, got)
			assert.True(t, tc.want.Equal(*got), "got %s", got)
		})
	}
}

func TestParseInstantKeepsOffset(t *testing.T) {
	got := ParseInstant("2025-06-12T23:30:00-0400")
	require.NotNil(t, got)

	_, offset := got.Zone()
	assert.Equal(t, -4*3600, offset)
	assert.Equal(t, 12, got.Day())
}

func TestParseInstantFailureIsNil(t *testing.T) {
	for _, input := range []string{"", "   ", "yesterday", "2025-06-12T25:00:00Z"} {
		assert.Nil(t, ParseInstant(input), input)
	}
}

func TestFormatInstant(t *testing.T) {
	assert.Equal(t, "", FormatInstant(nil))

	ts := time.Date(2025, 6, 12, 10, 0, 0, 0, time.UTC)
	assert.Equal(t, "2025-06-12T10:00:00Z", FormatInstant(&ts))
}
