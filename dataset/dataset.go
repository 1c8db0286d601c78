package dataset

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/samber/lo"

	"flow-metrics/jira"
	"flow-metrics/metrics"
)

// ErrMissingInput marks the absence of a required input; the run cannot proceed
var ErrMissingInput = errors.New("missing required input")

// Fact is one issue of the pre-aggregated facts file
type Fact struct {
	Created           string   `json:"created"`
	ResolutionDate    string   `json:"resolution_date"`
	FirstActive       string   `json:"first_active"`
	DoneAt            string   `json:"done_at"`
	BacklogMinutes    float64  `json:"backlog_minutes"`
	InProgressMinutes float64  `json:"in_progress_minutes"`
	InTestingMinutes  float64  `json:"in_testing_minutes"`
	PeerReviewMinutes float64  `json:"peer_review_minutes"`
	BlockedMinutes    float64  `json:"blocked_minutes"`
	CanceledMinutes   float64  `json:"canceled_minutes"`
	Summary           string   `json:"summary,omitempty"`
	StoryPoints       *float64 `json:"story_points,omitempty"`
}

// PeriodIssue is an entry of a per-period issue listing
type PeriodIssue struct {
	Key     string `json:"key"`
	Summary string `json:"summary"`
}

// Sources names the input files of a run
type Sources struct {
	IssueFacts      string
	PeriodLookup    string
	PeriodIssuesDir string
	StoryPoints     string
	RawExports      string // glob
	PeriodOrder     []string
}

// Dataset is every input of a run, fully materialized
type Dataset struct {
	Facts        map[string]Fact
	Lookup       metrics.PeriodLookup
	Raw          map[string]jira.RawIssue
	Throughput   map[string]int
	Summaries    map[string]string
	StoryPoints  map[string]float64
	PeriodPoints map[string]float64
}

// Load reads every input. Only the issue facts and the period lookup are
// required; their absence is reported as ErrMissingInput naming the input.
func Load(src Sources) (*Dataset, error) {
	facts, err := LoadFacts(src.IssueFacts)
	if err != nil {
		return nil, err
	}
	lookup, err := LoadPeriodLookup(src.PeriodLookup)
	if err != nil {
		return nil, err
	}

	ds := &Dataset{
		Facts:     facts,
		Lookup:    lookup,
		Raw:       map[string]jira.RawIssue{},
		Summaries: map[string]string{},
	}

	if src.RawExports != "" {
		raw, err := LoadRawExports(src.RawExports)
		if err != nil {
			return nil, err
		}
		ds.Raw = IndexByKey(raw)
	}

	ds.Throughput, ds.Summaries, err = LoadPeriodIssues(src.PeriodIssuesDir, src.PeriodOrder)
	if err != nil {
		return nil, err
	}

	if ds.StoryPoints, err = LoadStoryPoints(src.StoryPoints); err != nil {
		return nil, err
	}
	ds.PeriodPoints = PeriodStoryPoints(ds.StoryPoints, lookup)

	return ds, nil
}

func readRequired(path, role string, v any) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("%w: %s (no path configured)", ErrMissingInput, role)
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: %s %s", ErrMissingInput, role, path)
	}
	if err != nil {
		return fmt.Errorf("read %s %s: %w", role, path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s %s: %w", role, path, err)
	}
	return nil
}

// readOptional returns false when the file does not exist
func readOptional(path string, v any) (bool, error) {
	if strings.TrimSpace(path) == "" {
		return false, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("parse %s: %w", path, err)
	}
	return true, nil
}

// LoadFacts reads the key -> Fact file
func LoadFacts(path string) (map[string]Fact, error) {
	facts := map[string]Fact{}
	if err := readRequired(path, "issue facts", &facts); err != nil {
		return nil, err
	}
	return facts, nil
}

// LoadPeriodLookup reads the key -> period file
func LoadPeriodLookup(path string) (metrics.PeriodLookup, error) {
	lookup := metrics.PeriodLookup{}
	if err := readRequired(path, "period lookup", &lookup); err != nil {
		return nil, err
	}
	return lookup, nil
}

// LoadStoryPoints reads the optional key -> story point value file
func LoadStoryPoints(path string) (map[string]float64, error) {
	points := map[string]float64{}
	if _, err := readOptional(path, &points); err != nil {
		return nil, err
	}
	return points, nil
}

// PeriodFileName is the listing file of a period inside the listing directory
func PeriodFileName(period string) string {
	return strings.ReplaceAll(period, " ", "_") + ".json"
}

// LoadPeriodIssues reads one listing per period. A period without a listing has
// zero throughput; a missing directory yields no throughput at all.
func LoadPeriodIssues(dir string, order []string) (map[string]int, map[string]string, error) {
	throughput := map[string]int{}
	summaries := map[string]string{}
	if strings.TrimSpace(dir) == "" {
		return throughput, summaries, nil
	}
	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		return throughput, summaries, nil
	}

	for _, period := range order {
		var listing []PeriodIssue
		found, err := readOptional(filepath.Join(dir, PeriodFileName(period)), &listing)
		if err != nil {
			return nil, nil, err
		}
		throughput[period] = 0
		if !found {
			continue
		}
		throughput[period] = len(listing)
		for _, issue := range listing {
			if issue.Summary != "" {
				summaries[issue.Key] = issue.Summary
			}
		}
	}
	return throughput, summaries, nil
}

// PeriodStoryPoints totals story points per assigned period
func PeriodStoryPoints(points map[string]float64, lookup metrics.PeriodLookup) map[string]float64 {
	totals := map[string]float64{}
	for key, value := range points {
		if period, ok := lookup[key]; ok && period != "" {
			totals[period] += value
		}
	}
	return totals
}

// LoadRawExports reads every search export matching pattern, in name order
func LoadRawExports(pattern string) ([]jira.RawIssue, error) {
	paths, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("raw export pattern %q: %w", pattern, err)
	}
	sort.Strings(paths)

	var issues []jira.RawIssue
	for _, path := range paths {
		var export jira.SearchExport
		if _, err := readOptional(path, &export); err != nil {
			return nil, err
		}
		issues = append(issues, export.Issues...)
	}
	return issues, nil
}

// IndexByKey keys raw issues by issue key; a later occurrence replaces an earlier one
func IndexByKey(issues []jira.RawIssue) map[string]jira.RawIssue {
	return lo.Associate(issues, func(issue jira.RawIssue) (string, jira.RawIssue) {
		return issue.Key, issue
	})
}

// WriteRawExport saves issues as a flat search export
func WriteRawExport(path string, issues []jira.RawIssue) error {
	data, err := json.MarshalIndent(jira.SearchExport{Issues: issues, Total: len(issues)}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
