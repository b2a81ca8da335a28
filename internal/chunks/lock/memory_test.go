package lock

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/ragplatform/chunksync/pkg/errors"
)

func TestMemoryLockerExcludesSameDocument(t *testing.T) {
	l := NewMemory()
	ctx := context.Background()

	release, err := l.Acquire(ctx, 42, time.Second)
	require.NoError(t, err)

	_, err = l.Acquire(ctx, 42, 20*time.Millisecond)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrDocumentBusy)

	release()
	release2, err := l.Acquire(ctx, 42, time.Second)
	require.NoError(t, err)
	release2()
}

func TestMemoryLockerIndependentDocuments(t *testing.T) {
	l := NewMemory()
	ctx := context.Background()

	release1, err := l.Acquire(ctx, 1, time.Second)
	require.NoError(t, err)
	defer release1()

	release2, err := l.Acquire(ctx, 2, 20*time.Millisecond)
	require.NoError(t, err)
	release2()
}

func TestMemoryLockerDoubleReleaseIsSafe(t *testing.T) {
	l := NewMemory()
	ctx := context.Background()

	release, err := l.Acquire(ctx, 42, time.Second)
	require.NoError(t, err)
	release()
	release()

	again, err := l.Acquire(ctx, 42, 20*time.Millisecond)
	require.NoError(t, err)
	again()
}

func TestMemoryLockerHonorsContextCancellation(t *testing.T) {
	l := NewMemory()

	release, err := l.Acquire(context.Background(), 42, time.Second)
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	_, err = l.Acquire(ctx, 42, time.Minute)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMemoryLockerSerializesWaiters(t *testing.T) {
	l := NewMemory()
	ctx := context.Background()

	var mu sync.Mutex
	holders := 0
	maxHolders := 0

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := l.Acquire(ctx, 42, 5*time.Second)
			if err != nil {
				t.Error(err)
				return
			}
			mu.Lock()
			holders++
			if holders > maxHolders {
				maxHolders = holders
			}
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			holders--
			mu.Unlock()
			release()
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, maxHolders)
}
