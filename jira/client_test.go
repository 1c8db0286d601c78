package jira

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flow-metrics/config"
	"flow-metrics/logger"
)

const flatExport = `{
  "issues": [{
    "key": "BIP-1",
    "status": {"name": "Done"},
    "created": "2025-06-02T09:00:00.000-0400",
    "resolutiondate": "2025-06-04T17:00:00.000-0400",
    "changelogs": [
      {"created": "2025-06-02T10:00:00.000-0400", "items": [
        {"field": "assignee", "from_string": "", "to_string": "someone"},
        {"field": "status", "from_string": "Backlog", "to_string": "In Progress"}
      ]},
      {"created": "not a date", "items": [
        {"field": "status", "from_string": "In Progress", "to_string": "Blocked"}
      ]},
      {"created": "2025-06-04T16:00:00.000-0400", "items": [
        {"field": "status", "from_string": "In Progress", "to_string": "Done"}
      ]}
    ]
  }]
}`

const restIssue = `{
  "key": "BIP-2",
  "fields": {
    "summary": "Add retry to exporter",
    "status": {"name": "Done"},
    "created": "2025-06-02T09:00:00.000+0000",
    "resolutiondate": "2025-06-03T09:00:00.000+0000",
    "customfield_10016": 3
  },
  "changelog": {"histories": [
    {"created": "2025-06-02T12:00:00.000+0000", "items": [
      {"field": "status", "fromString": "Backlog", "toString": "In Progress"}
    ]}
  ]}
}`

func TestRawIssueDecodesFlatExport(t *testing.T) {
	var export SearchExport
	require.NoError(t, json.Unmarshal([]byte(flatExport), &export))
	require.Len(t, export.Issues, 1)

	issue := export.Issues[0]
	assert.True(t, issue.IsDone())
	require.NotNil(t, issue.CreatedAt())
	require.NotNil(t, issue.ResolvedAt())

	events := issue.StatusEvents()
	require.Len(t, events, 2)
	assert.Equal(t, "Backlog", events[0].From)
	assert.Equal(t, "In Progress", events[0].To)
	assert.Equal(t, "Done", events[1].To)
}

func TestRawIssueDecodesRESTFormat(t *testing.T) {
	var issue RawIssue
	require.NoError(t, json.Unmarshal([]byte(restIssue), &issue))

	assert.Equal(t, "BIP-2", issue.Key)
	assert.Equal(t, "Add retry to exporter", issue.Summary)
	assert.True(t, issue.IsDone())
	require.NotNil(t, issue.StoryPoints)
	assert.Equal(t, 3.0, *issue.StoryPoints)

	events := issue.StatusEvents()
	require.Len(t, events, 1)
	assert.Equal(t, "In Progress", events[0].To)

	// re-encodes to the flat format and survives a second decode
	data, err := json.Marshal(issue)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"to_string":"In Progress"`)

	var again RawIssue
	require.NoError(t, json.Unmarshal(data, &again))
	assert.Equal(t, issue, again)
}

func TestSearchIssuesPaginates(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, "/rest/api/2/search", r.URL.Path)
		assert.Equal(t, "changelog", r.URL.Query().Get("expand"))
		assert.Equal(t, "status = Done", r.URL.Query().Get("jql"))

		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "bot", user)
		assert.Equal(t, "secret", pass)

		start, _ := strconv.Atoi(r.URL.Query().Get("startAt"))
		var issues []string
		for i := start; i < start+2 && i < 3; i++ {
			issues = append(issues, fmt.Sprintf(`{"key":"BIP-%d","status":{"name":"Done"}}`, i))
		}
		body := `{"total":3,"issues":[`
		for i, s := range issues {
			if i > 0 {
				body += ","
			}
			body += s
		}
		body += "]}"
		_, _ = w.Write([]byte(body))
	}))
	defer srv.Close()

	client := NewClient(config.Config{
		JiraURL:       srv.URL + "/",
		JiraUsername:  "bot",
		JiraToken:     "secret",
		JiraRateLimit: 1000,
	}, logger.Discard())
	client.pageSize = 2

	issues, err := client.SearchIssues(context.Background(), "status = Done")
	require.NoError(t, err)
	assert.Len(t, issues, 3)
	assert.Equal(t, 2, calls)
	assert.Equal(t, "BIP-2", issues[2].Key)
}

// cappedSearch serves three issues one per page whatever maxResults asks for
func cappedSearch(t *testing.T, withTotal bool, calls *int) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*calls++
		assert.Equal(t, "100", r.URL.Query().Get("maxResults"))

		start, _ := strconv.Atoi(r.URL.Query().Get("startAt"))
		issues := ""
		if start < 3 {
			issues = fmt.Sprintf(`{"key":"BIP-%d","status":{"name":"Done"}}`, start)
		}
		total := ""
		if withTotal {
			total = `"total":3,`
		}
		_, _ = fmt.Fprintf(w, `{"startAt":%d,"maxResults":1,%s"issues":[%s]}`, start, total, issues)
	}))
}

func TestSearchIssuesFollowsServerPageCap(t *testing.T) {
	for _, withTotal := range []bool{true, false} {
		var calls int
		srv := cappedSearch(t, withTotal, &calls)

		client := NewClient(config.Config{JiraURL: srv.URL, JiraToken: "pat", JiraRateLimit: 1000}, logger.Discard())
		issues, err := client.SearchIssues(context.Background(), "status = Done")
		srv.Close()

		require.NoError(t, err)
		require.Len(t, issues, 3, "total reported: %v", withTotal)
		assert.Equal(t, "BIP-0", issues[0].Key)
		assert.Equal(t, "BIP-2", issues[2].Key)
		if withTotal {
			assert.Equal(t, 3, calls)
		} else {
			assert.Equal(t, 4, calls)
		}
	}
}

func TestSearchIssuesReportsHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer pat", r.Header.Get("Authorization"))
		http.Error(w, "nope", http.StatusUnauthorized)
	}))
	defer srv.Close()

	client := NewClient(config.Config{JiraURL: srv.URL, JiraToken: "pat", JiraRateLimit: 1000}, logger.Discard())
	_, err := client.SearchIssues(context.Background(), "project = BIP")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestSearchIssuesRequiresURL(t *testing.T) {
	client := NewClient(config.Config{}, logger.Discard())
	_, err := client.SearchIssues(context.Background(), "project = BIP")
	assert.Error(t, err)
}
