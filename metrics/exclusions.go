package metrics

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"flow-metrics/timeline"
)

// ExclusionCategory names why an issue was removed from the population
type ExclusionCategory string

const (
	ExcludeManualOutlier   ExclusionCategory = "manual-outlier"
	ExcludeNoEstimate      ExclusionCategory = "no-estimate"
	ExcludeCanceledTransit ExclusionCategory = "canceled-transit"
	ExcludeMultiDayReopen  ExclusionCategory = "multi-day-reopen"
	ExcludeKeyword         ExclusionCategory = "keyword-excluded"
)

// ExclusionRule is one independently toggleable category
type ExclusionRule struct {
	Enabled  bool     `json:"enabled" yaml:"enabled"`
	Keys     []string `json:"keys,omitempty" yaml:"keys,omitempty"`
	Keywords []string `json:"keywords,omitempty" yaml:"keywords,omitempty"`
}

// ExclusionConfig is the curated, versioned exclusion artifact
type ExclusionConfig struct {
	ManualOutlier   ExclusionRule `json:"manual_outlier" yaml:"manual_outlier"`
	NoEstimate      ExclusionRule `json:"no_estimate" yaml:"no_estimate"`
	CanceledTransit ExclusionRule `json:"canceled_transit" yaml:"canceled_transit"`
	MultiDayReopen  ExclusionRule `json:"multi_day_reopen" yaml:"multi_day_reopen"`
	KeywordExcluded ExclusionRule `json:"keyword_excluded" yaml:"keyword_excluded"`
}

// LoadExclusionConfig reads a JSON or YAML exclusion file, chosen by extension
func LoadExclusionConfig(path string) (ExclusionConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ExclusionConfig{}, fmt.Errorf("read exclusions %s: %w", path, err)
	}

	var cfg ExclusionConfig
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &cfg)
	default:
		err = json.Unmarshal(data, &cfg)
	}
	if err != nil {
		return ExclusionConfig{}, fmt.Errorf("parse exclusions %s: %w", path, err)
	}
	return cfg, nil
}

type compiledRule struct {
	enabled  bool
	keys     map[string]struct{}
	keywords []string
}

func compile(rule ExclusionRule) compiledRule {
	c := compiledRule{enabled: rule.Enabled, keys: make(map[string]struct{}, len(rule.Keys))}
	for _, k := range rule.Keys {
		c.keys[strings.TrimSpace(k)] = struct{}{}
	}
	for _, kw := range rule.Keywords {
		if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" {
			c.keywords = append(c.keywords, kw)
		}
	}
	return c
}

func (c compiledRule) listed(key string) bool {
	_, ok := c.keys[key]
	return c.enabled && ok
}

// ExclusionSet is the compiled, read-only form of an ExclusionConfig
type ExclusionSet struct {
	manualOutlier   compiledRule
	noEstimate      compiledRule
	canceledTransit compiledRule
	multiDayReopen  compiledRule
	keyword         compiledRule
}

// NewExclusionSet compiles a config for lookups
func NewExclusionSet(cfg ExclusionConfig) *ExclusionSet {
	return &ExclusionSet{
		manualOutlier:   compile(cfg.ManualOutlier),
		noEstimate:      compile(cfg.NoEstimate),
		canceledTransit: compile(cfg.CanceledTransit),
		multiDayReopen:  compile(cfg.MultiDayReopen),
		keyword:         compile(cfg.KeywordExcluded),
	}
}

// Match returns the first category that removes the issue, if any
func (s *ExclusionSet) Match(issue IssueRecord) (ExclusionCategory, bool) {
	if s == nil {
		return "", false
	}

	if s.manualOutlier.listed(issue.Key) {
		return ExcludeManualOutlier, true
	}

	if s.noEstimate.listed(issue.Key) ||
		(s.noEstimate.enabled && issue.StoryPoints != nil && *issue.StoryPoints == 0) {
		return ExcludeNoEstimate, true
	}

	if s.canceledTransit.listed(issue.Key) ||
		(s.canceledTransit.enabled && (issue.CanceledTransit || issue.Durations.Minutes(timeline.Canceled) > 0)) {
		return ExcludeCanceledTransit, true
	}

	if s.multiDayReopen.listed(issue.Key) ||
		(s.multiDayReopen.enabled && issue.MaxReopenDays > 0) {
		return ExcludeMultiDayReopen, true
	}

	if s.keyword.listed(issue.Key) {
		return ExcludeKeyword, true
	}
	if s.keyword.enabled && issue.Summary != "" {
		summary := strings.ToLower(issue.Summary)
		for _, kw := range s.keyword.keywords {
			if strings.Contains(summary, kw) {
				return ExcludeKeyword, true
			}
		}
	}

	return "", false
}

// ExcludedError reports an issue dropped from all aggregation
type ExcludedError struct {
	Key      string
	Category ExclusionCategory
}

func (e *ExcludedError) Error() string {
	return fmt.Sprintf("issue %s excluded: %s", e.Key, e.Category)
}
