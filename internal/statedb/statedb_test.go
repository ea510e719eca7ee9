package statedb

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/CWorthy-ocean/C-Star-sub001/internal/clog"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "state.db")
	db, err := Open(path, clog.NoOpLogger{})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestLastCheck_NotFoundInitially(t *testing.T) {
	db := openTestDB(t)
	_, _, found, err := db.LastCheck(context.Background(), "some-key")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRecordCheckThenLastCheck(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	now := time.Now().Truncate(time.Second)

	require.NoError(t, db.RecordCheck(ctx, "repo-key", "repository", "https://example.com/repo.git", "abc123", now))

	hash, checkedAt, found, err := db.LastCheck(ctx, "repo-key")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "abc123", hash)
	assert.WithinDuration(t, now.UTC(), checkedAt.UTC(), time.Second)
}

func TestRecordCheck_UpsertsOnConflict(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	first := time.Now().Add(-time.Hour).Truncate(time.Second)
	second := time.Now().Truncate(time.Second)

	require.NoError(t, db.RecordCheck(ctx, "repo-key", "repository", "loc", "hash-one", first))
	require.NoError(t, db.RecordCheck(ctx, "repo-key", "repository", "loc", "hash-two", second))

	hash, checkedAt, found, err := db.LastCheck(ctx, "repo-key")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "hash-two", hash)
	assert.WithinDuration(t, second.UTC(), checkedAt.UTC(), time.Second)
}

func TestPrune_DeletesOlderChecks(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	old := time.Now().Add(-48 * time.Hour).Truncate(time.Second)
	recent := time.Now().Truncate(time.Second)

	require.NoError(t, db.RecordCheck(ctx, "old-key", "repository", "loc", "hash", old))
	require.NoError(t, db.RecordCheck(ctx, "recent-key", "repository", "loc", "hash", recent))

	n, err := db.Prune(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, _, found, err := db.LastCheck(ctx, "old-key")
	require.NoError(t, err)
	assert.False(t, found)

	_, _, found, err = db.LastCheck(ctx, "recent-key")
	require.NoError(t, err)
	assert.True(t, found)
}
