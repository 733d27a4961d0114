package integration

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailgate/internal/actions"
)

func TestResyncGuard_FirstSeen(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, false, true)

	ctx := context.Background()
	guard := actions.NewResyncGuard(infra.RedisClient, time.Minute, createTestLogger())

	assert.True(t, guard.FirstSeen(ctx, "msg-1"))
	assert.False(t, guard.FirstSeen(ctx, "msg-1"))
	assert.True(t, guard.FirstSeen(ctx, "msg-2"))
}

func TestResyncGuard_ReleaseReopensClaim(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, false, true)

	ctx := context.Background()
	guard := actions.NewResyncGuard(infra.RedisClient, time.Minute, createTestLogger())

	require.True(t, guard.FirstSeen(ctx, "msg-1"))
	require.False(t, guard.FirstSeen(ctx, "msg-1"))

	guard.Release(ctx, "msg-1")
	assert.True(t, guard.FirstSeen(ctx, "msg-1"), "released claim should be takeable again")
}

func TestWatchRepository_UpsertSingletonRow(t *testing.T) {
	infra := SetupTestInfra(t)

	ctx := context.Background()
	repo := actions.NewWatchRepository(infra.PostgresDB)

	status, err := repo.GetWatchStatus(ctx)
	require.NoError(t, err)
	assert.Nil(t, status)

	expires := time.Now().UTC().Add(7 * 24 * time.Hour).Truncate(time.Second)
	require.NoError(t, repo.SaveWatchStatus(ctx, actions.WatchStatus{
		HistoryID: 1001,
		ExpiresAt: &expires,
		RenewedAt: time.Now().UTC(),
	}))

	status, err = repo.GetWatchStatus(ctx)
	require.NoError(t, err)
	require.NotNil(t, status)
	assert.Equal(t, int64(1001), status.HistoryID)

	// A second renewal replaces the single row instead of adding another.
	require.NoError(t, repo.SaveWatchStatus(ctx, actions.WatchStatus{
		HistoryID: 2002,
		ExpiresAt: &expires,
		RenewedAt: time.Now().UTC(),
	}))

	status, err = repo.GetWatchStatus(ctx)
	require.NoError(t, err)
	require.NotNil(t, status)
	assert.Equal(t, int64(2002), status.HistoryID)

	var count int
	require.NoError(t, infra.PostgresDB.QueryRowContext(ctx, "SELECT COUNT(*) FROM watch_status").Scan(&count))
	assert.Equal(t, 1, count)
}
