package eventlog

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flow-metrics/jira"
)

func issue(key, status string) jira.RawIssue {
	return jira.RawIssue{
		Key:     key,
		Status:  jira.StatusField{Name: status},
		Created: "2025-06-02T09:00:00.000+0000",
		Changelogs: []jira.ChangeGroup{{
			Created: "2025-06-02T10:00:00.000+0000",
			Items:   []jira.ChangeItem{{Field: "status", FromString: "Backlog", ToString: status}},
		}},
	}
}

func exerciseUpsert(t *testing.T, store Store) {
	ctx := context.Background()

	res, err := store.Upsert(ctx, []jira.RawIssue{issue("BIP-2", "In Progress"), issue("BIP-1", "Done")})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Added)

	// same batch again: nothing changes
	res, err = store.Upsert(ctx, []jira.RawIssue{issue("BIP-2", "In Progress"), issue("BIP-1", "Done")})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Added)
	assert.Equal(t, 0, res.Updated)
	assert.Equal(t, 2, res.Unchanged)
	assert.Empty(t, res.BatchID)

	// later export of BIP-2 replaces the earlier one; duplicates inside a batch collapse
	res, err = store.Upsert(ctx, []jira.RawIssue{issue("BIP-2", "In Testing"), issue("BIP-2", "Done"), issue("BIP-3", "Done")})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Added)
	assert.Equal(t, 1, res.Updated)

	issues, err := store.Load(ctx)
	require.NoError(t, err)
	require.Len(t, issues, 3)
	assert.Equal(t, "BIP-1", issues[0].Key)
	assert.Equal(t, "BIP-2", issues[1].Key)
	assert.True(t, issues[1].IsDone())
	assert.Len(t, issues[1].StatusEvents(), 1)
}

func TestFileLogUpsertIsIdempotent(t *testing.T) {
	store := NewFileLog(filepath.Join(t.TempDir(), "events.json"))
	defer store.Close()
	exerciseUpsert(t, store)
}

func TestFileLogLoadEmpty(t *testing.T) {
	store := NewFileLog(filepath.Join(t.TempDir(), "none.json"))
	issues, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, issues)
}

func TestRedisLogUpsertIsIdempotent(t *testing.T) {
	mr := miniredis.RunT(t)
	store, err := NewRedisLog(mr.Addr(), "test")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	exerciseUpsert(t, store)

	batches, err := store.Batches(context.Background())
	require.NoError(t, err)
	require.Len(t, batches, 2)
	assert.ElementsMatch(t, []string{"BIP-1", "BIP-2"}, batches[0].Keys)
	assert.ElementsMatch(t, []string{"BIP-2", "BIP-3"}, batches[1].Keys)
	assert.NotEmpty(t, batches[1].ID)
}

func TestNewRedisLogFailsWithoutServer(t *testing.T) {
	_, err := NewRedisLog("127.0.0.1:1", "")
	assert.Error(t, err)
}
