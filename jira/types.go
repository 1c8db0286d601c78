package jira

import (
	"encoding/json"
	"strings"
	"time"

	"flow-metrics/calendar"
	"flow-metrics/timeline"
)

// types.go - Data structures for Jira search exports

// StatusField is the status reference carried on an issue
type StatusField struct {
	Name string `json:"name"`
}

// ChangeItem is one field change inside a changelog entry
type ChangeItem struct {
	Field      string `json:"field"`
	FromString string `json:"from_string"`
	ToString   string `json:"to_string"`
}

// ChangeGroup is one changelog entry: all field changes made at one instant
type ChangeGroup struct {
	Created string       `json:"created"`
	Items   []ChangeItem `json:"items"`
}

// RawIssue is an issue with its changelog, as exported from a Jira search.
// It decodes both the flat export format (changelogs[].items[].from_string)
// and the REST format (fields{} plus changelog.histories[].items[].fromString);
// it always encodes to the flat format.
type RawIssue struct {
	Key            string        `json:"key"`
	Summary        string        `json:"summary,omitempty"`
	Status         StatusField   `json:"status"`
	Created        string        `json:"created"`
	ResolutionDate string        `json:"resolutiondate,omitempty"`
	StoryPoints    *float64      `json:"story_points,omitempty"`
	Changelogs     []ChangeGroup `json:"changelogs"`
}

// SearchExport is a saved search response
type SearchExport struct {
	StartAt    int        `json:"startAt,omitempty"`
	MaxResults int        `json:"maxResults,omitempty"`
	Total      int        `json:"total,omitempty"`
	Issues     []RawIssue `json:"issues"`
}

type wireItem struct {
	Field          string `json:"field"`
	FromString     string `json:"from_string"`
	ToString       string `json:"to_string"`
	FromStringREST string `json:"fromString"`
	ToStringREST   string `json:"toString"`
}

type wireGroup struct {
	Created string     `json:"created"`
	Items   []wireItem `json:"items"`
}

type wireIssue struct {
	Key            string      `json:"key"`
	Summary        string      `json:"summary"`
	Status         StatusField `json:"status"`
	Created        string      `json:"created"`
	ResolutionDate string      `json:"resolutiondate"`
	StoryPoints    *float64    `json:"story_points"`
	Changelogs     []wireGroup `json:"changelogs"`

	Fields *struct {
		Summary        string      `json:"summary"`
		Status         StatusField `json:"status"`
		Created        string      `json:"created"`
		Resolutiondate *string     `json:"resolutiondate"`
		StoryPoints    *float64    `json:"customfield_10016"` // Common story points field
	} `json:"fields"`
	Changelog *struct {
		Histories []wireGroup `json:"histories"`
	} `json:"changelog"`
}

// UnmarshalJSON accepts either export format
func (r *RawIssue) UnmarshalJSON(data []byte) error {
	var w wireIssue
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	*r = RawIssue{
		Key:            w.Key,
		Summary:        w.Summary,
		Status:         w.Status,
		Created:        w.Created,
		ResolutionDate: w.ResolutionDate,
		StoryPoints:    w.StoryPoints,
	}

	if f := w.Fields; f != nil {
		r.Summary = firstNonEmpty(r.Summary, f.Summary)
		r.Status.Name = firstNonEmpty(r.Status.Name, f.Status.Name)
		r.Created = firstNonEmpty(r.Created, f.Created)
		if f.Resolutiondate != nil {
			r.ResolutionDate = firstNonEmpty(r.ResolutionDate, *f.Resolutiondate)
		}
		if r.StoryPoints == nil {
			r.StoryPoints = f.StoryPoints
		}
	}

	groups := w.Changelogs
	if w.Changelog != nil {
		groups = append(groups, w.Changelog.Histories...)
	}
	for _, g := range groups {
		group := ChangeGroup{Created: g.Created, Items: make([]ChangeItem, 0, len(g.Items))}
		for _, it := range g.Items {
			group.Items = append(group.Items, ChangeItem{
				Field:      it.Field,
				FromString: firstNonEmpty(it.FromString, it.FromStringREST),
				ToString:   firstNonEmpty(it.ToString, it.ToStringREST),
			})
		}
		r.Changelogs = append(r.Changelogs, group)
	}
	return nil
}

// IsDone reports whether the issue's current status is Done
func (r RawIssue) IsDone() bool {
	return strings.EqualFold(strings.TrimSpace(r.Status.Name), "done")
}

// CreatedAt parses the creation instant, nil when missing or malformed
func (r RawIssue) CreatedAt() *time.Time {
	return calendar.ParseInstant(r.Created)
}

// ResolvedAt parses the resolution instant, nil when missing or malformed
func (r RawIssue) ResolvedAt() *time.Time {
	return calendar.ParseInstant(r.ResolutionDate)
}

// StatusEvents extracts the status transitions. Entries with an unparseable
// timestamp are dropped.
func (r RawIssue) StatusEvents() []timeline.StatusEvent {
	var events []timeline.StatusEvent
	for _, group := range r.Changelogs {
		at := calendar.ParseInstant(group.Created)
		if at == nil {
			continue
		}
		for _, item := range group.Items {
			if !strings.EqualFold(item.Field, "status") {
				continue
			}
			events = append(events, timeline.StatusEvent{
				At:   *at,
				From: item.FromString,
				To:   item.ToString,
			})
		}
	}
	return events
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
