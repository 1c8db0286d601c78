package calendar

import (
	"fmt"
	"strings"
	"time"
)

// calendar.go - Business-day arithmetic over weekends and a fixed holiday set

const (
	dateLayout    = "2006-01-02"
	secondsPerDay = 86400.0
)

// DefaultHolidays lists US federal holidays (observed dates) for the dataset range
// Jan 2025 - Feb 2026. Saturday holidays are observed the preceding Friday and
// Sunday holidays the following Monday; the dates below already reflect that.
var DefaultHolidays = []string{
	"2025-01-01", // New Year's Day
	"2025-01-20", // MLK Day
	"2025-02-17", // Presidents' Day
	"2025-05-26", // Memorial Day
	"2025-06-19", // Juneteenth
	"2025-07-04", // Independence Day
	"2025-09-01", // Labor Day
	"2025-10-13", // Columbus Day
	"2025-11-11", // Veterans Day
	"2025-11-27", // Thanksgiving
	"2025-12-25", // Christmas
	"2026-01-01", // New Year's Day
	"2026-01-19", // MLK Day
	"2026-02-16", // Presidents' Day
}

// Calendar answers business-day questions. It is read-only after construction.
type Calendar struct {
	holidays map[string]struct{}
}

// New creates a calendar from holiday dates formatted as YYYY-MM-DD
func New(holidays []string) (*Calendar, error) {
	c := &Calendar{holidays: make(map[string]struct{}, len(holidays))}
	for _, h := range holidays {
		h = strings.TrimSpace(h)
		day, err := time.Parse(dateLayout, h)
		if err != nil {
			return nil, fmt.Errorf("invalid holiday date %q: %w", h, err)
		}
		c.holidays[day.Format(dateLayout)] = struct{}{}
	}
	return c, nil
}

// Default returns a calendar over DefaultHolidays
func Default() *Calendar {
	c, err := New(DefaultHolidays)
	if err != nil {
		panic(err)
	}
	return c
}

// IsBusinessDay reports whether the civil date is a weekday and not a holiday
func (c *Calendar) IsBusinessDay(year int, month time.Month, day int) bool {
	civil := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	switch civil.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	_, holiday := c.holidays[civil.Format(dateLayout)]
	return !holiday
}

// ElapsedBusinessDays returns the working time between start and end in units of
// calendar days. Only business days contribute; a partial business day counts as
// the fraction of its 24 hours that elapsed. Day boundaries are taken in each
// instant's own location.
func (c *Calendar) ElapsedBusinessDays(start, end *time.Time) *float64 {
	if start == nil || end == nil {
		return nil
	}

	total := 0.0
	if !end.After(*start) {
		return &total
	}

	s, e := *start, *end
	sy, sm, sd := s.Date()
	ey, em, ed := e.Date()

	if sy == ey && sm == em && sd == ed {
		if c.IsBusinessDay(sy, sm, sd) {
			total = e.Sub(s).Seconds() / secondsPerDay
		}
		return &total
	}

	if c.IsBusinessDay(sy, sm, sd) {
		nextMidnight := time.Date(sy, sm, sd+1, 0, 0, 0, 0, s.Location())
		total += nextMidnight.Sub(s).Seconds() / secondsPerDay
	}

	last := time.Date(ey, em, ed, 0, 0, 0, 0, time.UTC)
	for cur := time.Date(sy, sm, sd+1, 0, 0, 0, 0, time.UTC); cur.Before(last); cur = cur.AddDate(0, 0, 1) {
		if c.IsBusinessDay(cur.Date()) {
			total += 1.0
		}
	}

	if c.IsBusinessDay(ey, em, ed) {
		midnight := time.Date(ey, em, ed, 0, 0, 0, 0, e.Location())
		total += e.Sub(midnight).Seconds() / secondsPerDay
	}

	return &total
}
