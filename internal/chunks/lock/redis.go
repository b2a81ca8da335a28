package lock

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/ragplatform/chunksync/pkg/errors"
	pkgredis "github.com/ragplatform/chunksync/pkg/redis"
)

const lockKeyPrefix = "lock:doc:"

// releaseScript deletes the lock only if the stored token matches, so a
// lock that expired and was re-acquired by someone else is never released
// by the previous holder.
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`

// RedisLocker is a DocumentLocker backed by Redis SET NX with a TTL, for
// deployments where more than one service instance may run sagas. The TTL
// bounds how long a crashed holder can block a document.
type RedisLocker struct {
	client       *pkgredis.Client
	ttl          time.Duration
	pollInterval time.Duration
	logger       *slog.Logger
}

func NewRedis(client *pkgredis.Client, ttl time.Duration) *RedisLocker {
	return &RedisLocker{
		client:       client,
		ttl:          ttl,
		pollInterval: 50 * time.Millisecond,
		logger:       slog.Default().With("component", "document-lock"),
	}
}

func lockKey(documentID int64) string {
	return lockKeyPrefix + strconv.FormatInt(documentID, 10)
}

func (l *RedisLocker) Acquire(ctx context.Context, documentID int64, timeout time.Duration) (ReleaseFunc, error) {
	key := lockKey(documentID)
	token := uuid.NewString()
	deadline := time.Now().Add(timeout)

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl)
		if err != nil {
			return nil, err
		}
		if ok {
			return func() {
				// Release must work even when the saga's context is
				// already cancelled.
				releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
				defer cancel()
				if _, err := l.client.Eval(releaseCtx, releaseScript, []string{key}, token); err != nil {
					l.logger.Warn("failed to release document lock",
						"document_id", documentID, "error", err)
				}
			}, nil
		}
		if time.Now().After(deadline) {
			return nil, apperrors.Newf(apperrors.ErrDocumentBusy, 409,
				"document %d: lock not acquired within %v", documentID, timeout)
		}
		select {
		case <-time.After(l.pollInterval):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}
