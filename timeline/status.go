package timeline

import (
	"fmt"
	"strings"
)

// Category is the normalized bucket a raw tracker status falls into
type Category string

const (
	Backlog    Category = "backlog"
	InProgress Category = "in_progress"
	InTesting  Category = "in_testing"
	PeerReview Category = "peer_review"
	Blocked    Category = "blocked"
	Canceled   Category = "canceled"
	Done       Category = "done"
)

// Categories lists every known category in reporting order
var Categories = []Category{Backlog, InProgress, InTesting, PeerReview, Blocked, Canceled, Done}

// Active reports whether time in this category counts as owned, in-flight work
func (c Category) Active() bool {
	switch c {
	case InProgress, InTesting, PeerReview, Blocked:
		return true
	}
	return false
}

// Inactive reports whether the category is queued, not-yet-started work
func (c Category) Inactive() bool {
	return c == Backlog
}

// ParseCategory validates a category name
func ParseCategory(name string) (Category, error) {
	normalized := Category(strings.ToLower(strings.TrimSpace(name)))
	for _, c := range Categories {
		if c == normalized {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown status category %q", name)
}

// StatusMap classifies raw status names (case-insensitive) into categories
type StatusMap map[string]Category

// DefaultStatusMap returns the workflow used by the exported boards
func DefaultStatusMap() StatusMap {
	return StatusMap{
		"in progress":              InProgress,
		"in testing":               InTesting,
		"peer review needed":       PeerReview,
		"peer review":              PeerReview,
		"blocked":                  Blocked,
		"canceled":                 Canceled,
		"backlog":                  Backlog,
		"selected for development": Backlog,
		"ready for dev":            Backlog,
		"done":                     Done,
	}
}

// With returns a copy of the map extended by status -> category overrides
func (m StatusMap) With(overrides map[string]string) (StatusMap, error) {
	merged := make(StatusMap, len(m)+len(overrides))
	for status, category := range m {
		merged[status] = category
	}
	for status, name := range overrides {
		category, err := ParseCategory(name)
		if err != nil {
			return nil, fmt.Errorf("status %q: %w", status, err)
		}
		merged[normalizeStatus(status)] = category
	}
	return merged, nil
}

// Classify returns the category for a raw status name
func (m StatusMap) Classify(status string) (Category, bool) {
	c, ok := m[normalizeStatus(status)]
	return c, ok
}

func normalizeStatus(status string) string {
	return strings.ToLower(strings.TrimSpace(status))
}
