package eventlog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"

	"flow-metrics/jira"
)

// Store is an append-only log of raw issue exports with upsert-by-key
// semantics: ingesting the same issue twice leaves one copy, the latest.
type Store interface {
	Upsert(ctx context.Context, issues []jira.RawIssue) (UpsertResult, error)
	Load(ctx context.Context) ([]jira.RawIssue, error)
	Close() error
}

// UpsertResult counts what an ingestion batch changed
type UpsertResult struct {
	BatchID   string `json:"batch_id,omitempty"`
	Added     int    `json:"added"`
	Updated   int    `json:"updated"`
	Unchanged int    `json:"unchanged"`
}

// encode renders the canonical flat form, so equal exports compare byte-equal
func encode(issue jira.RawIssue) ([]byte, error) {
	payload, err := json.Marshal(issue)
	if err != nil {
		return nil, fmt.Errorf("encode issue %s: %w", issue.Key, err)
	}
	var canonical jira.RawIssue
	if err := json.Unmarshal(payload, &canonical); err != nil {
		return nil, fmt.Errorf("encode issue %s: %w", issue.Key, err)
	}
	return json.Marshal(canonical)
}

// dedupe keeps the last occurrence of each key, in first-seen order
func dedupe(issues []jira.RawIssue) []jira.RawIssue {
	index := make(map[string]int, len(issues))
	out := make([]jira.RawIssue, 0, len(issues))
	for _, issue := range issues {
		if issue.Key == "" {
			continue
		}
		if i, ok := index[issue.Key]; ok {
			out[i] = issue
			continue
		}
		index[issue.Key] = len(out)
		out = append(out, issue)
	}
	return out
}

// FileLog keeps the log in a single export file
type FileLog struct {
	mu   sync.Mutex
	path string
}

// NewFileLog opens a file-backed log; the file is created on first upsert
func NewFileLog(path string) *FileLog {
	return &FileLog{path: path}
}

func (f *FileLog) read() (map[string]json.RawMessage, error) {
	entries := map[string]json.RawMessage{}
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return entries, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read event log %s: %w", f.path, err)
	}

	var export struct {
		Issues []json.RawMessage `json:"issues"`
	}
	if err := json.Unmarshal(data, &export); err != nil {
		return nil, fmt.Errorf("parse event log %s: %w", f.path, err)
	}
	for _, raw := range export.Issues {
		var issue jira.RawIssue
		if err := json.Unmarshal(raw, &issue); err != nil {
			return nil, fmt.Errorf("parse event log %s: %w", f.path, err)
		}
		payload, err := encode(issue)
		if err != nil {
			return nil, err
		}
		entries[issue.Key] = payload
	}
	return entries, nil
}

func (f *FileLog) Upsert(ctx context.Context, issues []jira.RawIssue) (UpsertResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	entries, err := f.read()
	if err != nil {
		return UpsertResult{}, err
	}

	var result UpsertResult
	for _, issue := range dedupe(issues) {
		payload, err := encode(issue)
		if err != nil {
			return UpsertResult{}, err
		}
		existing, ok := entries[issue.Key]
		switch {
		case !ok:
			result.Added++
		case string(existing) == string(payload):
			result.Unchanged++
			continue
		default:
			result.Updated++
		}
		entries[issue.Key] = payload
	}

	if result.Added+result.Updated == 0 {
		return result, nil
	}

	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	ordered := make([]json.RawMessage, 0, len(keys))
	for _, k := range keys {
		ordered = append(ordered, entries[k])
	}

	data, err := json.MarshalIndent(map[string]any{"issues": ordered, "total": len(ordered)}, "", "  ")
	if err != nil {
		return UpsertResult{}, err
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return UpsertResult{}, fmt.Errorf("write event log: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return UpsertResult{}, fmt.Errorf("replace event log: %w", err)
	}
	return result, nil
}

func (f *FileLog) Load(ctx context.Context) ([]jira.RawIssue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	entries, err := f.read()
	if err != nil {
		return nil, err
	}
	return decodeSorted(entries)
}

func (f *FileLog) Close() error {
	return nil
}

func decodeSorted(entries map[string]json.RawMessage) ([]jira.RawIssue, error) {
	issues := make([]jira.RawIssue, 0, len(entries))
	for key, payload := range entries {
		var issue jira.RawIssue
		if err := json.Unmarshal(payload, &issue); err != nil {
			return nil, fmt.Errorf("decode issue %s: %w", key, err)
		}
		issues = append(issues, issue)
	}
	sort.Slice(issues, func(i, j int) bool { return issues[i].Key < issues[j].Key })
	return issues, nil
}
