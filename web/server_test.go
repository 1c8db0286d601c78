package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flow-metrics/config"
	"flow-metrics/dataset"
	"flow-metrics/history"
	"flow-metrics/logger"
	"flow-metrics/metrics"
)

func ptr(v float64) *float64 { return &v }

func fixedReport() metrics.Report {
	return metrics.Report{
		GeneratedAt: time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC),
		Overall:     metrics.OverallStats{SampleSize: 2, WithCycle: 1, CycleMedian: ptr(5)},
		PeriodOrder: []string{"Sprint 1", "Sprint 2"},
		Periods: map[string]metrics.PeriodStats{
			"Sprint 1": {SampleCount: 1, WithCycle: 1, Throughput: 3, CycleMedian: ptr(5)},
			"Sprint 2": {SampleCount: 1, Throughput: 1},
		},
		Issues: []metrics.IssueRow{
			{Key: "BIP-1", Period: "Sprint 1", CycleDays: ptr(5)},
			{Key: "BIP-2", Period: "Sprint 2"},
		},
	}
}

type fakeRuns struct {
	runs []history.RunSummary
}

func (f *fakeRuns) ListRuns(_ context.Context, limit int) ([]history.RunSummary, error) {
	if limit < len(f.runs) {
		return f.runs[:limit], nil
	}
	return f.runs, nil
}

func (f *fakeRuns) LoadReport(_ context.Context, id string) (metrics.Report, error) {
	if id == "run-1" {
		return fixedReport(), nil
	}
	return metrics.Report{}, errors.New("no rows")
}

func newTestServer(t *testing.T, cfg config.Config, fn ReportFunc, runs RunStore) *Server {
	t.Helper()
	if len(cfg.CORSOrigins) == 0 {
		cfg.CORSOrigins = []string{"*"}
	}
	return NewServer(cfg, logger.Discard(), fn, runs)
}

func okReport(context.Context) (metrics.Report, error) { return fixedReport(), nil }

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	s.Router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, config.Config{}, okReport, nil)
	rec := get(t, s, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decode(t, rec)["status"])
}

func TestMetrics(t *testing.T) {
	s := newTestServer(t, config.Config{}, okReport, nil)
	rec := get(t, s, "/api/metrics")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode(t, rec)
	assert.Equal(t, "success", body["status"])
	data := body["data"].(map[string]any)
	assert.Equal(t, []any{"Sprint 1", "Sprint 2"}, data["period_order"])
}

func TestPeriod(t *testing.T) {
	s := newTestServer(t, config.Config{}, okReport, nil)

	rec := get(t, s, "/api/periods/Sprint%201")
	require.Equal(t, http.StatusOK, rec.Code)
	data := decode(t, rec)["data"].(map[string]any)
	assert.Equal(t, "Sprint 1", data["period"])
	assert.Len(t, data["issues"], 1)

	rec = get(t, s, "/api/periods/Sprint%209")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = get(t, s, "/api/periods")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, decode(t, rec)["data"], "period_data")
}

func TestIssues(t *testing.T) {
	s := newTestServer(t, config.Config{}, okReport, nil)

	rec := get(t, s, "/api/issues?period=Sprint+2")
	require.Equal(t, http.StatusOK, rec.Code)
	rows := decode(t, rec)["data"].([]any)
	require.Len(t, rows, 1)
	assert.Equal(t, "BIP-2", rows[0].(map[string]any)["key"])

	rec = get(t, s, "/api/issues?format=csv")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	assert.Len(t, lines, 3)
}

func TestDashboard(t *testing.T) {
	s := newTestServer(t, config.Config{Title: "Flow"}, okReport, nil)
	rec := get(t, s, "/")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "<h1>Flow</h1>")
}

func TestReportErrors(t *testing.T) {
	missing := func(context.Context) (metrics.Report, error) {
		return metrics.Report{}, fmt.Errorf("%w: issue facts facts.json", dataset.ErrMissingInput)
	}
	s := newTestServer(t, config.Config{}, missing, nil)
	rec := get(t, s, "/api/metrics")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, decode(t, rec)["error"], "issue facts")

	broken := func(context.Context) (metrics.Report, error) { return metrics.Report{}, errors.New("boom") }
	s = newTestServer(t, config.Config{}, broken, nil)
	rec = get(t, s, "/api/metrics")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestRuns(t *testing.T) {
	s := newTestServer(t, config.Config{}, okReport, nil)
	assert.Equal(t, http.StatusNotFound, get(t, s, "/api/runs").Code)

	runs := &fakeRuns{runs: []history.RunSummary{{ID: "run-2"}, {ID: "run-1"}}}
	s = newTestServer(t, config.Config{}, okReport, runs)

	rec := get(t, s, "/api/runs?limit=1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["data"], 1)

	assert.Equal(t, http.StatusBadRequest, get(t, s, "/api/runs?limit=zero").Code)
	assert.Equal(t, http.StatusOK, get(t, s, "/api/runs/run-1").Code)
	assert.Equal(t, http.StatusNotFound, get(t, s, "/api/runs/run-9").Code)
}

func TestRunsUseSnakeCaseKeys(t *testing.T) {
	runs := &fakeRuns{runs: []history.RunSummary{{
		ID:          "run-1",
		CreatedAt:   time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC),
		Source:      "files",
		SampleSize:  12,
		WithCycle:   10,
		Excluded:    2,
		CycleMedian: ptr(3.5),
	}}}
	s := newTestServer(t, config.Config{}, okReport, runs)

	rec := get(t, s, "/api/runs")
	require.Equal(t, http.StatusOK, rec.Code)
	data := decode(t, rec)["data"].([]any)
	require.Len(t, data, 1)

	run := data[0].(map[string]any)
	assert.Equal(t, "run-1", run["id"])
	assert.Equal(t, 12.0, run["sample_size"])
	assert.Equal(t, 10.0, run["with_cycle"])
	assert.Equal(t, 3.5, run["cycle_median"])
	assert.Equal(t, "2025-06-10T12:00:00Z", run["created_at"])
	assert.Contains(t, run, "cycle_p85")
	assert.NotContains(t, run, "SampleSize")
}

func TestRateLimit(t *testing.T) {
	s := newTestServer(t, config.Config{APIRateLimit: 1, APIRateBurst: 1}, okReport, nil)

	assert.Equal(t, http.StatusOK, get(t, s, "/api/metrics").Code)
	assert.Equal(t, http.StatusTooManyRequests, get(t, s, "/api/metrics").Code)
	// health is never throttled
	assert.Equal(t, http.StatusOK, get(t, s, "/health").Code)
}

func TestClientAddressPrefersForwardedHeaders(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/metrics", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	req.Header.Set("X-Real-IP", "198.51.100.4")
	req.RemoteAddr = "127.0.0.1:1234"
	assert.Equal(t, "203.0.113.9", clientAddress(req))

	req.Header.Del("X-Forwarded-For")
	assert.Equal(t, "198.51.100.4", clientAddress(req))

	req.Header.Del("X-Real-IP")
	assert.Equal(t, "127.0.0.1", clientAddress(req))
}
