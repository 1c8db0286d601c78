package calendar

import (
	"strings"
	"time"
)

// Accepted timestamp layouts, tried in order. Fractional seconds of any length
// are accepted by the parser after the seconds field even when a layout omits them.
var instantLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05-0700", // Jira REST: 2025-06-12T10:15:30.123-0400
	"2006-01-02T15:04:05-07",
	"2006-01-02 15:04:05-07:00",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	dateLayout,
}

// ParseInstant parses an exported timestamp. Empty or unparseable input yields nil;
// this is the only failure mode. Timestamps without a zone are read as UTC.
func ParseInstant(value string) *time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	for _, layout := range instantLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return &t
		}
	}
	return nil
}

// FormatInstant renders an optional instant as RFC 3339, or "" when absent
func FormatInstant(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.RFC3339Nano)
}
