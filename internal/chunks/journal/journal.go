// Package journal records saga attempts: which operation ran against which
// document, the steps it intended and completed, and how it ended. The
// journal is diagnostic state for crash recovery and audits, not a lock;
// entries are retained for a bounded window and then discarded.
package journal

import (
	"context"
	"errors"
	"time"
)

// Operation is the kind of saga an attempt records.
type Operation string

const (
	OpStore  Operation = "store"
	OpDelete Operation = "delete"
)

// Status is the lifecycle of an attempt. started is the only non-terminal
// state; committed and rolled_back are terminal.
type Status string

const (
	StatusStarted    Status = "started"
	StatusCommitted  Status = "committed"
	StatusRolledBack Status = "rolled_back"
)

// Terminal reports whether s is a terminal status.
func (s Status) Terminal() bool {
	return s == StatusCommitted || s == StatusRolledBack
}

// Step is one recorded action within an attempt: which adapter it touched,
// what it did (or intends to do), and the keys involved. The compensating
// action for a step is implied by its Action.
type Step struct {
	Adapter string    `json:"adapter"`
	Action  string    `json:"action"`
	Keys    []string  `json:"keys,omitempty"`
	At      time.Time `json:"at"`
}

// Attempt is one journal entry. Append-only except for the single terminal
// status transition.
type Attempt struct {
	TransactionID string    `json:"transaction_id"`
	Operation     Operation `json:"operation"`
	DocumentID    int64     `json:"document_id"`
	Status        Status    `json:"status"`
	Steps         []Step    `json:"steps,omitempty"`
	Failure       string    `json:"failure,omitempty"`
	StartedAt     time.Time `json:"started_at"`
	EndedAt       time.Time `json:"ended_at,omitzero"`
}

var (
	// ErrNotFound is returned when a transaction id has no journal entry
	// (possibly expired past the retention window).
	ErrNotFound = errors.New("journal entry not found")
	// ErrTerminal is returned on any write to an attempt that already
	// reached a terminal status.
	ErrTerminal = errors.New("journal entry already in terminal state")
)

// Journal is the store for saga attempts. Appends must complete before the
// saga returns to its caller so a crash immediately after return is always
// recoverable from the journal.
type Journal interface {
	// Begin opens a new attempt in the started state and returns it with
	// an assigned transaction id.
	Begin(ctx context.Context, op Operation, documentID int64) (*Attempt, error)
	// Append records a step on a non-terminal attempt.
	Append(ctx context.Context, transactionID string, step Step) error
	// Finish moves the attempt to a terminal status, optionally recording
	// a failure note. Finishing a terminal attempt returns ErrTerminal.
	Finish(ctx context.Context, transactionID string, status Status, failure string) error
	// Get returns the attempt for a transaction id.
	Get(ctx context.Context, transactionID string) (*Attempt, error)
}
