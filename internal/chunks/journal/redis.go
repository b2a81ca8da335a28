package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	pkgredis "github.com/ragplatform/chunksync/pkg/redis"
)

const keyPrefix = "saga:"

// RedisJournal persists attempts as JSON values with a TTL equal to the
// retention window, which gives the bounded-window purge for free.
type RedisJournal struct {
	client    *pkgredis.Client
	retention time.Duration
	logger    *slog.Logger
}

func NewRedis(client *pkgredis.Client, retention time.Duration) *RedisJournal {
	return &RedisJournal{
		client:    client,
		retention: retention,
		logger:    slog.Default().With("component", "saga-journal"),
	}
}

func (j *RedisJournal) Begin(ctx context.Context, op Operation, documentID int64) (*Attempt, error) {
	attempt := &Attempt{
		TransactionID: uuid.NewString(),
		Operation:     op,
		DocumentID:    documentID,
		Status:        StatusStarted,
		StartedAt:     time.Now().UTC(),
	}
	if err := j.write(ctx, attempt, false); err != nil {
		return nil, err
	}
	j.logger.Debug("saga attempt opened",
		"transaction_id", attempt.TransactionID,
		"operation", op,
		"document_id", documentID,
	)
	return attempt, nil
}

func (j *RedisJournal) Append(ctx context.Context, transactionID string, step Step) error {
	attempt, err := j.Get(ctx, transactionID)
	if err != nil {
		return err
	}
	if attempt.Status.Terminal() {
		return fmt.Errorf("appending to attempt %s: %w", transactionID, ErrTerminal)
	}
	if step.At.IsZero() {
		step.At = time.Now().UTC()
	}
	attempt.Steps = append(attempt.Steps, step)
	return j.write(ctx, attempt, true)
}

func (j *RedisJournal) Finish(ctx context.Context, transactionID string, status Status, failure string) error {
	if !status.Terminal() {
		return fmt.Errorf("finish requires a terminal status, got %q", status)
	}
	attempt, err := j.Get(ctx, transactionID)
	if err != nil {
		return err
	}
	if attempt.Status.Terminal() {
		return fmt.Errorf("finishing attempt %s: %w", transactionID, ErrTerminal)
	}
	attempt.Status = status
	attempt.Failure = failure
	attempt.EndedAt = time.Now().UTC()
	return j.write(ctx, attempt, true)
}

func (j *RedisJournal) Get(ctx context.Context, transactionID string) (*Attempt, error) {
	data, err := j.client.Get(ctx, keyPrefix+transactionID)
	if pkgredis.IsNilError(err) {
		return nil, fmt.Errorf("attempt %s: %w", transactionID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("reading attempt %s: %w", transactionID, err)
	}
	var attempt Attempt
	if err := json.Unmarshal([]byte(data), &attempt); err != nil {
		return nil, fmt.Errorf("decoding attempt %s: %w", transactionID, err)
	}
	return &attempt, nil
}

func (j *RedisJournal) write(ctx context.Context, attempt *Attempt, keepTTL bool) error {
	data, err := json.Marshal(attempt)
	if err != nil {
		return fmt.Errorf("encoding attempt %s: %w", attempt.TransactionID, err)
	}
	if keepTTL {
		// Updates keep the TTL set at Begin so the retention window is
		// measured from the attempt's start.
		return j.client.RDB.Set(ctx, keyPrefix+attempt.TransactionID, data, goredis.KeepTTL).Err()
	}
	return j.client.Set(ctx, keyPrefix+attempt.TransactionID, data, j.retention)
}
