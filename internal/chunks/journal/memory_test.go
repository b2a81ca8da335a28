package journal

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJournalRecordsAttemptLifecycle(t *testing.T) {
	j := NewMemory(time.Hour)
	ctx := context.Background()

	attempt, err := j.Begin(ctx, OpStore, 42)
	require.NoError(t, err)
	assert.NotEmpty(t, attempt.TransactionID)
	assert.Equal(t, StatusStarted, attempt.Status)
	assert.Equal(t, int64(42), attempt.DocumentID)

	require.NoError(t, j.Append(ctx, attempt.TransactionID, Step{
		Adapter: "vector", Action: "upsert", Keys: []string{"1", "2"},
	}))
	require.NoError(t, j.Append(ctx, attempt.TransactionID, Step{
		Adapter: "relational", Action: "insert", Keys: []string{"1", "2"},
	}))
	require.NoError(t, j.Finish(ctx, attempt.TransactionID, StatusCommitted, ""))

	got, err := j.Get(ctx, attempt.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, StatusCommitted, got.Status)
	require.Len(t, got.Steps, 2)
	assert.Equal(t, "vector", got.Steps[0].Adapter)
	assert.False(t, got.Steps[0].At.IsZero())
	assert.False(t, got.EndedAt.IsZero())
}

func TestJournalRejectsWritesAfterTerminalState(t *testing.T) {
	j := NewMemory(time.Hour)
	ctx := context.Background()

	attempt, err := j.Begin(ctx, OpDelete, 42)
	require.NoError(t, err)
	require.NoError(t, j.Finish(ctx, attempt.TransactionID, StatusRolledBack, "vector unavailable"))

	err = j.Append(ctx, attempt.TransactionID, Step{Adapter: "vector", Action: "delete"})
	assert.ErrorIs(t, err, ErrTerminal)

	err = j.Finish(ctx, attempt.TransactionID, StatusCommitted, "")
	assert.ErrorIs(t, err, ErrTerminal)

	got, err := j.Get(ctx, attempt.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, StatusRolledBack, got.Status)
	assert.Equal(t, "vector unavailable", got.Failure)
}

func TestJournalFinishRequiresTerminalStatus(t *testing.T) {
	j := NewMemory(time.Hour)
	ctx := context.Background()

	attempt, err := j.Begin(ctx, OpStore, 42)
	require.NoError(t, err)
	assert.Error(t, j.Finish(ctx, attempt.TransactionID, StatusStarted, ""))
}

func TestJournalUnknownTransaction(t *testing.T) {
	j := NewMemory(time.Hour)
	ctx := context.Background()

	_, err := j.Get(ctx, "no-such-id")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, j.Append(ctx, "no-such-id", Step{}), ErrNotFound)
}

func TestJournalExpiresEntriesPastRetention(t *testing.T) {
	j := NewMemory(time.Minute)
	ctx := context.Background()

	now := time.Now().UTC()
	j.now = func() time.Time { return now }

	attempt, err := j.Begin(ctx, OpStore, 42)
	require.NoError(t, err)

	_, err = j.Get(ctx, attempt.TransactionID)
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	_, err = j.Get(ctx, attempt.TransactionID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestJournalGetReturnsCopy(t *testing.T) {
	j := NewMemory(time.Hour)
	ctx := context.Background()

	attempt, err := j.Begin(ctx, OpStore, 42)
	require.NoError(t, err)
	require.NoError(t, j.Append(ctx, attempt.TransactionID, Step{Adapter: "vector", Action: "upsert"}))

	got, err := j.Get(ctx, attempt.TransactionID)
	require.NoError(t, err)
	got.Steps[0].Adapter = "mutated"
	got.Status = StatusCommitted

	again, err := j.Get(ctx, attempt.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, "vector", again.Steps[0].Adapter)
	assert.Equal(t, StatusStarted, again.Status)
}
