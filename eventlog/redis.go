package eventlog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"flow-metrics/jira"
)

// RedisLog keeps the latest export of every issue in a hash and records each
// ingestion batch on a stream.
type RedisLog struct {
	client    *redis.Client
	issuesKey string
	batchKey  string
}

func NewRedisLog(addr, prefix string) (*RedisLog, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}

	if prefix == "" {
		prefix = "flow-metrics"
	}
	return &RedisLog{
		client:    client,
		issuesKey: prefix + ":issues",
		batchKey:  prefix + ":batches",
	}, nil
}

func (l *RedisLog) Upsert(ctx context.Context, issues []jira.RawIssue) (UpsertResult, error) {
	issues = dedupe(issues)
	if len(issues) == 0 {
		return UpsertResult{}, nil
	}

	keys := make([]string, len(issues))
	for i, issue := range issues {
		keys[i] = issue.Key
	}
	existing, err := l.client.HMGet(ctx, l.issuesKey, keys...).Result()
	if err != nil {
		return UpsertResult{}, fmt.Errorf("read existing issues: %w", err)
	}

	var result UpsertResult
	values := make([]any, 0, 2*len(issues))
	var changed []string
	for i, issue := range issues {
		payload, err := encode(issue)
		if err != nil {
			return UpsertResult{}, err
		}
		switch prev := existing[i].(type) {
		case nil:
			result.Added++
		case string:
			if prev == string(payload) {
				result.Unchanged++
				continue
			}
			result.Updated++
		default:
			result.Updated++
		}
		values = append(values, issue.Key, string(payload))
		changed = append(changed, issue.Key)
	}

	if len(changed) == 0 {
		return result, nil
	}

	result.BatchID = uuid.NewString()
	keysJSON, err := json.Marshal(changed)
	if err != nil {
		return UpsertResult{}, err
	}

	_, err = l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, l.issuesKey, values...)
		pipe.XAdd(ctx, &redis.XAddArgs{
			Stream: l.batchKey,
			Values: map[string]any{
				"batch_id":    result.BatchID,
				"keys":        string(keysJSON),
				"added":       result.Added,
				"updated":     result.Updated,
				"ingested_at": time.Now().UTC().Format(time.RFC3339Nano),
			},
		})
		return nil
	})
	if err != nil {
		return UpsertResult{}, fmt.Errorf("upsert issues: %w", err)
	}
	return result, nil
}

func (l *RedisLog) Load(ctx context.Context) ([]jira.RawIssue, error) {
	entries, err := l.client.HGetAll(ctx, l.issuesKey).Result()
	if err != nil {
		return nil, fmt.Errorf("load issues: %w", err)
	}
	raw := make(map[string]json.RawMessage, len(entries))
	for key, payload := range entries {
		raw[key] = json.RawMessage(payload)
	}
	return decodeSorted(raw)
}

// Batch is one recorded ingestion
type Batch struct {
	ID         string   `json:"batch_id"`
	Keys       []string `json:"keys"`
	IngestedAt string   `json:"ingested_at"`
}

// Batches lists the ingestion history, oldest first
func (l *RedisLog) Batches(ctx context.Context) ([]Batch, error) {
	rows, err := l.client.XRange(ctx, l.batchKey, "-", "+").Result()
	if err != nil {
		return nil, fmt.Errorf("read batches: %w", err)
	}

	batches := make([]Batch, 0, len(rows))
	for _, row := range rows {
		b := Batch{}
		if v, ok := row.Values["batch_id"].(string); ok {
			b.ID = v
		}
		if v, ok := row.Values["ingested_at"].(string); ok {
			b.IngestedAt = v
		}
		if v, ok := row.Values["keys"].(string); ok {
			_ = json.Unmarshal([]byte(v), &b.Keys)
		}
		batches = append(batches, b)
	}
	return batches, nil
}

func (l *RedisLog) Close() error {
	return l.client.Close()
}
