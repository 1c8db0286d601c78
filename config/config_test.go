package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
  "issue_facts": "facts.json",
  "period_order": ["S1", "S2"],
  "top_n": 3,
  "status_map": {"Code Review": "peer_review"}
}`), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "facts.json", cfg.IssueFacts)
	assert.Equal(t, []string{"S1", "S2"}, cfg.PeriodOrder)
	assert.Equal(t, 3, cfg.TopN)
	assert.Equal(t, "peer_review", cfg.StatusMap["Code Review"])
	// unset fields fall back to defaults
	assert.Equal(t, "key_to_sprint.json", cfg.PeriodLookup)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("ISSUE_FACTS", "env_facts.json")
	t.Setenv("PERIOD_ORDER", "Sprint 1; Sprint 2 ;")
	t.Setenv("HOLIDAYS", "2025-12-25,2026-01-01")
	t.Setenv("TOP_N", "5")
	t.Setenv("JIRA_URL", "https://jira.example.com/")
	t.Setenv("JIRA_RATE_LIMIT", "2.5")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)

	assert.Equal(t, "env_facts.json", cfg.IssueFacts)
	assert.Equal(t, []string{"Sprint 1", "Sprint 2"}, cfg.PeriodOrder)
	assert.Equal(t, []string{"2025-12-25", "2026-01-01"}, cfg.Holidays)
	assert.Equal(t, 5, cfg.TopN)
	assert.Equal(t, "https://jira.example.com", cfg.JiraURL)
	assert.Equal(t, 2.5, cfg.JiraRateLimit)
}

func TestLoadConfigRejectsBadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{not json`), 0o644))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestDefaultPeriodOrder(t *testing.T) {
	var cfg Config
	cfg.applyDefaults()
	assert.Len(t, cfg.PeriodOrder, 17)
	assert.Equal(t, "BIP AI FY25Q4.1", cfg.PeriodOrder[0])

	// defaults are copied, not shared
	cfg.PeriodOrder[0] = "changed"
	assert.Equal(t, "BIP AI FY25Q4.1", DefaultPeriodOrder[0])
}

func TestAPIDefaults(t *testing.T) {
	var cfg Config
	cfg.applyDefaults()
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
	assert.Zero(t, cfg.APIRateLimit)
	assert.Zero(t, cfg.APIRateBurst)
	assert.NotEmpty(t, cfg.Title)

	cfg = Config{APIRateLimit: 2}
	cfg.applyDefaults()
	assert.Equal(t, 5, cfg.APIRateBurst)
}
