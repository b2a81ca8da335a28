package lock

import (
	"context"
	"sync"
	"time"

	apperrors "github.com/ragplatform/chunksync/pkg/errors"
)

// MemoryLocker is an in-process DocumentLocker: one slot per document id.
// Suitable when a single service instance owns all sagas; multi-replica
// deployments use the Redis locker instead.
type MemoryLocker struct {
	mu    sync.Mutex
	slots map[int64]chan struct{}
}

func NewMemory() *MemoryLocker {
	return &MemoryLocker{
		slots: make(map[int64]chan struct{}),
	}
}

func (l *MemoryLocker) slot(documentID int64) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	slot, ok := l.slots[documentID]
	if !ok {
		slot = make(chan struct{}, 1)
		l.slots[documentID] = slot
	}
	return slot
}

func (l *MemoryLocker) Acquire(ctx context.Context, documentID int64, timeout time.Duration) (ReleaseFunc, error) {
	slot := l.slot(documentID)
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case slot <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() { <-slot })
		}, nil
	case <-timer.C:
		return nil, apperrors.Newf(apperrors.ErrDocumentBusy, 409,
			"document %d: lock not acquired within %v", documentID, timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
