package handshake_test

import (
	"testing"
	"time"

	"github.com/dkozyrev/tg-auth-bridge/handshake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHandshake(state string, now time.Time) *handshake.Handshake {
	return &handshake.Handshake{
		State:            state,
		CreatedAt:        now,
		ExpiresAt:        now.Add(handshake.StateTTL),
		InitiatingOrigin: testOrigin,
	}
}

func TestInsertRejectsDuplicateState(t *testing.T) {
	repo := handshake.NewInMemoryRepo()
	now := time.Now()

	require.NoError(t, repo.Insert(newTestHandshake("state-1", now)))
	require.ErrorIs(t, repo.Insert(newTestHandshake("state-1", now)), handshake.DuplicateStateErr)
}

func TestGetFiltersExpiredRecords(t *testing.T) {
	repo := handshake.NewInMemoryRepo()
	now := time.Now()

	require.NoError(t, repo.Insert(newTestHandshake("state-1", now)))

	_, err := repo.Get("state-1", now)
	require.NoError(t, err)

	_, err = repo.Get("state-1", now.Add(handshake.StateTTL+time.Second))
	require.ErrorIs(t, err, handshake.InvalidOrExpiredStateErr)
}

func TestGetReturnsCopy(t *testing.T) {
	repo := handshake.NewInMemoryRepo()
	now := time.Now()

	require.NoError(t, repo.Insert(newTestHandshake("state-1", now)))

	first, err := repo.Get("state-1", now)
	require.NoError(t, err)
	first.Completed = true
	first.UserID = "mutated"

	second, err := repo.Get("state-1", now)
	require.NoError(t, err)
	assert.False(t, second.Completed)
	assert.Empty(t, second.UserID)
}

func TestMarkCompletedIsCompareAndSet(t *testing.T) {
	repo := handshake.NewInMemoryRepo()
	now := time.Now()

	require.NoError(t, repo.Insert(newTestHandshake("state-1", now)))

	require.NoError(t, repo.MarkCompleted("state-1", "user-1", now))
	require.ErrorIs(t, repo.MarkCompleted("state-1", "user-2", now), handshake.StateAlreadyUsedErr)

	record, err := repo.Get("state-1", now)
	require.NoError(t, err)
	assert.True(t, record.Completed)
	assert.Equal(t, "user-1", record.UserID)
}

func TestMarkCompletedRejectsExpiredAndUnknown(t *testing.T) {
	repo := handshake.NewInMemoryRepo()
	now := time.Now()

	require.ErrorIs(t, repo.MarkCompleted("missing", "user-1", now), handshake.InvalidOrExpiredStateErr)

	require.NoError(t, repo.Insert(newTestHandshake("state-1", now)))
	err := repo.MarkCompleted("state-1", "user-1", now.Add(handshake.StateTTL+time.Second))
	require.ErrorIs(t, err, handshake.InvalidOrExpiredStateErr)
}

func TestDeleteIfPendingLeavesCompletedRecords(t *testing.T) {
	repo := handshake.NewInMemoryRepo()
	now := time.Now()

	require.NoError(t, repo.Insert(newTestHandshake("pending", now)))
	require.NoError(t, repo.Insert(newTestHandshake("completed", now)))
	require.NoError(t, repo.MarkCompleted("completed", "user-1", now))

	require.NoError(t, repo.DeleteIfPending("pending"))
	require.NoError(t, repo.DeleteIfPending("completed"))
	require.NoError(t, repo.DeleteIfPending("missing"))

	_, err := repo.Get("pending", now)
	require.ErrorIs(t, err, handshake.InvalidOrExpiredStateErr)

	record, err := repo.Get("completed", now)
	require.NoError(t, err)
	assert.True(t, record.Completed)
}

func TestDeleteExpired(t *testing.T) {
	repo := handshake.NewInMemoryRepo()
	now := time.Now()

	require.NoError(t, repo.Insert(newTestHandshake("old-1", now.Add(-2*handshake.StateTTL))))
	require.NoError(t, repo.Insert(newTestHandshake("old-2", now.Add(-2*handshake.StateTTL))))
	require.NoError(t, repo.Insert(newTestHandshake("fresh", now)))

	removed, err := repo.DeleteExpired(now)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	_, err = repo.Get("fresh", now)
	require.NoError(t, err)
}
