// Package lock provides per-document advisory locks. Store, delete, and
// repair for the same document are mutually exclusive; different documents
// never contend. Acquisition is bounded: a caller that cannot get the lock
// within its timeout fails fast with ErrDocumentBusy instead of queuing.
package lock

import (
	"context"
	"time"
)

// ReleaseFunc releases a held lock. Safe to call exactly once.
type ReleaseFunc func()

// DocumentLocker hands out advisory locks keyed by document id.
type DocumentLocker interface {
	// Acquire blocks until the lock for documentID is held, the timeout
	// elapses, or ctx is cancelled. On timeout it returns an error
	// wrapping errors.ErrDocumentBusy.
	Acquire(ctx context.Context, documentID int64, timeout time.Duration) (ReleaseFunc, error)
}
