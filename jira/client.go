package jira

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"flow-metrics/config"
)

const (
	defaultPageSize = 100
	searchFields    = "summary,status,created,resolutiondate,customfield_10016"
)

// Client handles Jira API operations
type Client struct {
	baseURL  string
	username string
	token    string
	cloud    bool
	pageSize int
	http     *http.Client
	limiter  *rate.Limiter
	log      logrus.FieldLogger
}

// NewClient creates a new Jira client. Requests are throttled to the
// configured rate so large exports don't trip the server's own limits.
func NewClient(cfg config.Config, log logrus.FieldLogger) *Client {
	rps := cfg.JiraRateLimit
	if rps <= 0 {
		rps = 5
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Client{
		baseURL:  strings.TrimRight(cfg.JiraURL, "/"),
		username: cfg.JiraUsername,
		token:    cfg.JiraToken,
		cloud:    cfg.IsJiraCloud,
		pageSize: defaultPageSize,
		http:     &http.Client{Timeout: 30 * time.Second},
		limiter:  rate.NewLimiter(rate.Limit(rps), 1),
		log:      log,
	}
}

// makeRequest makes an HTTP request with proper authentication
func (c *Client) makeRequest(ctx context.Context, endpoint, method string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	if c.username != "" {
		req.SetBasicAuth(c.username, c.token)
	} else {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body))
	}

	return io.ReadAll(resp.Body)
}

func (c *Client) searchURL(jql string, startAt int) string {
	version := "2"
	if c.cloud {
		version = "3"
	}
	q := url.Values{}
	q.Set("jql", jql)
	q.Set("startAt", strconv.Itoa(startAt))
	q.Set("maxResults", strconv.Itoa(c.pageSize))
	q.Set("expand", "changelog")
	q.Set("fields", searchFields)
	return fmt.Sprintf("%s/rest/api/%s/search?%s", c.baseURL, version, q.Encode())
}

// SearchIssues pages through a JQL search and returns every issue with its changelog
func (c *Client) SearchIssues(ctx context.Context, jql string) ([]RawIssue, error) {
	if c.baseURL == "" {
		return nil, fmt.Errorf("jira url is not configured")
	}

	var issues []RawIssue
	startAt := 0

	for {
		body, err := c.makeRequest(ctx, c.searchURL(jql, startAt), http.MethodGet)
		if err != nil {
			return nil, fmt.Errorf("error fetching Jira issues: %w", err)
		}

		var page SearchExport
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, fmt.Errorf("error parsing Jira response: %w", err)
		}
		issues = append(issues, page.Issues...)

		c.log.WithFields(logrus.Fields{
			"start_at":    startAt,
			"page":        len(page.Issues),
			"max_results": page.MaxResults,
			"total":       page.Total,
		}).Debug("fetched search page")

		if len(page.Issues) == 0 {
			break
		}
		startAt += len(page.Issues)
		if page.Total > 0 {
			if startAt >= page.Total {
				break
			}
			continue
		}

		// no total reported: the server may cap maxResults below what was asked
		limit := c.pageSize
		if page.MaxResults > 0 {
			limit = min(limit, page.MaxResults)
		}
		if len(page.Issues) < limit {
			break
		}
	}

	c.log.WithField("issues", len(issues)).Info("jira search complete")
	return issues, nil
}
