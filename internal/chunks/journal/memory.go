package journal

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryJournal is an in-process Journal used in tests and single-node
// deployments without Redis. Entries past the retention window are dropped
// lazily on access.
type MemoryJournal struct {
	mu        sync.Mutex
	attempts  map[string]*Attempt
	retention time.Duration
	now       func() time.Time
}

func NewMemory(retention time.Duration) *MemoryJournal {
	return &MemoryJournal{
		attempts:  make(map[string]*Attempt),
		retention: retention,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (j *MemoryJournal) Begin(ctx context.Context, op Operation, documentID int64) (*Attempt, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	attempt := &Attempt{
		TransactionID: uuid.NewString(),
		Operation:     op,
		DocumentID:    documentID,
		Status:        StatusStarted,
		StartedAt:     j.now(),
	}
	j.attempts[attempt.TransactionID] = attempt
	return cloneAttempt(attempt), nil
}

func (j *MemoryJournal) Append(ctx context.Context, transactionID string, step Step) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	attempt, err := j.get(transactionID)
	if err != nil {
		return err
	}
	if attempt.Status.Terminal() {
		return fmt.Errorf("appending to attempt %s: %w", transactionID, ErrTerminal)
	}
	if step.At.IsZero() {
		step.At = j.now()
	}
	attempt.Steps = append(attempt.Steps, step)
	return nil
}

func (j *MemoryJournal) Finish(ctx context.Context, transactionID string, status Status, failure string) error {
	if !status.Terminal() {
		return fmt.Errorf("finish requires a terminal status, got %q", status)
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	attempt, err := j.get(transactionID)
	if err != nil {
		return err
	}
	if attempt.Status.Terminal() {
		return fmt.Errorf("finishing attempt %s: %w", transactionID, ErrTerminal)
	}
	attempt.Status = status
	attempt.Failure = failure
	attempt.EndedAt = j.now()
	return nil
}

func (j *MemoryJournal) Get(ctx context.Context, transactionID string) (*Attempt, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	attempt, err := j.get(transactionID)
	if err != nil {
		return nil, err
	}
	return cloneAttempt(attempt), nil
}

func (j *MemoryJournal) get(transactionID string) (*Attempt, error) {
	attempt, ok := j.attempts[transactionID]
	if !ok {
		return nil, fmt.Errorf("attempt %s: %w", transactionID, ErrNotFound)
	}
	if j.retention > 0 && j.now().Sub(attempt.StartedAt) > j.retention {
		delete(j.attempts, transactionID)
		return nil, fmt.Errorf("attempt %s: %w", transactionID, ErrNotFound)
	}
	return attempt, nil
}

func cloneAttempt(a *Attempt) *Attempt {
	out := *a
	out.Steps = append([]Step(nil), a.Steps...)
	return &out
}
