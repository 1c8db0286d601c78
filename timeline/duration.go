package timeline

import "encoding/json"

// MinutesPerDay converts status minutes to calendar-day equivalents
const MinutesPerDay = 1440.0

// StatusDuration holds accumulated minutes per status category for one issue.
// It is a snapshot: the underlying map is never exposed or changed after construction.
type StatusDuration struct {
	minutes map[Category]float64
}

// NewStatusDuration copies the given minutes into a new snapshot
func NewStatusDuration(minutes map[Category]float64) StatusDuration {
	copied := make(map[Category]float64, len(minutes))
	for c, m := range minutes {
		if m > 0 {
			copied[c] = m
		}
	}
	return StatusDuration{minutes: copied}
}

// Minutes returns the minutes spent in a category
func (d StatusDuration) Minutes(c Category) float64 {
	return d.minutes[c]
}

// Days returns wall-clock calendar days spent in a category
func (d StatusDuration) Days(c Category) float64 {
	return d.minutes[c] / MinutesPerDay
}

// Total returns the minutes across all categories
func (d StatusDuration) Total() float64 {
	total := 0.0
	for _, m := range d.minutes {
		total += m
	}
	return total
}

// IsZero reports whether no time was attributed at all
func (d StatusDuration) IsZero() bool {
	return len(d.minutes) == 0
}

// Map returns a copy of the minutes by category
func (d StatusDuration) Map() map[Category]float64 {
	copied := make(map[Category]float64, len(d.minutes))
	for c, m := range d.minutes {
		copied[c] = m
	}
	return copied
}

func (d StatusDuration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Map())
}
