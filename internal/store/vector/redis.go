// Package vector implements the vector store adapter on Redis. Each record
// is a hash keyed by content ref; a per-document set tracks which refs
// belong to a document so ListKeys needs no scan. Writes go through a
// circuit breaker and transparent retry; the manager never sees a
// transient error unless retries exhaust.
package vector

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	goredis "github.com/redis/go-redis/v9"

	"github.com/ragplatform/chunksync/internal/chunks"
	pkgredis "github.com/ragplatform/chunksync/pkg/redis"
	"github.com/ragplatform/chunksync/pkg/resilience"
)

const (
	recordKeyPrefix = "chunk:vec:"
	docSetKeyPrefix = "chunk:doc:"
)

func recordKey(ref string) string {
	return recordKeyPrefix + ref
}

func docSetKey(documentID int64) string {
	return docSetKeyPrefix + strconv.FormatInt(documentID, 10)
}

type Store struct {
	client  *pkgredis.Client
	breaker *resilience.CircuitBreaker
	retry   resilience.RetryConfig
	logger  *slog.Logger
}

func New(client *pkgredis.Client) *Store {
	return &Store{
		client:  client,
		breaker: resilience.NewCircuitBreaker("vector-store", resilience.CircuitBreakerConfig{}),
		retry: resilience.RetryConfig{
			MaxAttempts: 3,
		},
		logger: slog.Default().With("component", "vector-store"),
	}
}

// Upsert writes the record hash and registers the ref in the document set.
// Re-running for the same ref overwrites in place, which is what makes a
// saga retry safe.
func (s *Store) Upsert(ctx context.Context, rec chunks.VectorRecord) error {
	if rec.ContentRef == "" {
		return resilience.Permanent(fmt.Errorf("vector record has empty content ref"))
	}
	embedding, err := json.Marshal(rec.Embedding)
	if err != nil {
		return resilience.Permanent(fmt.Errorf("encoding embedding for %s: %w", rec.ContentRef, err))
	}
	fields := map[string]any{
		"content":       rec.Content,
		"embedding":     string(embedding),
		"document_id":   rec.DocumentID,
		"chunk_index":   rec.ChunkIndex,
		"document_type": rec.DocumentType,
		"document_name": rec.DocumentName,
	}
	return resilience.Retry(ctx, "vector-upsert", s.retry, func() error {
		return s.breaker.Execute(func() error {
			pipe := s.client.RDB.TxPipeline()
			pipe.HSet(ctx, recordKey(rec.ContentRef), fields)
			pipe.SAdd(ctx, docSetKey(rec.DocumentID), rec.ContentRef)
			if _, err := pipe.Exec(ctx); err != nil {
				return fmt.Errorf("upserting vector record %s: %w", rec.ContentRef, err)
			}
			return nil
		})
	})
}

// DeleteMany removes the record hashes and their document-set memberships.
// Refs that are already gone are skipped, so the call is idempotent.
func (s *Store) DeleteMany(ctx context.Context, refs []string) error {
	if len(refs) == 0 {
		return nil
	}
	return resilience.Retry(ctx, "vector-delete", s.retry, func() error {
		return s.breaker.Execute(func() error {
			for _, ref := range refs {
				docID, err := s.client.RDB.HGet(ctx, recordKey(ref), "document_id").Result()
				if err == goredis.Nil {
					continue
				}
				if err != nil {
					return fmt.Errorf("reading owner of vector record %s: %w", ref, err)
				}
				pipe := s.client.RDB.TxPipeline()
				pipe.Del(ctx, recordKey(ref))
				id, convErr := strconv.ParseInt(docID, 10, 64)
				if convErr == nil {
					pipe.SRem(ctx, docSetKey(id), ref)
				}
				if _, err := pipe.Exec(ctx); err != nil {
					return fmt.Errorf("deleting vector record %s: %w", ref, err)
				}
			}
			return nil
		})
	})
}

// ListKeys returns the refs of all records present for the document. Set
// members whose record hash is missing (a half-finished delete) are
// filtered out and pruned.
func (s *Store) ListKeys(ctx context.Context, documentID int64) ([]string, error) {
	members, err := s.client.RDB.SMembers(ctx, docSetKey(documentID)).Result()
	if err != nil {
		return nil, fmt.Errorf("listing vector keys for document %d: %w", documentID, err)
	}
	if len(members) == 0 {
		return nil, nil
	}

	pipe := s.client.RDB.Pipeline()
	exists := make([]*goredis.IntCmd, len(members))
	for i, ref := range members {
		exists[i] = pipe.Exists(ctx, recordKey(ref))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("checking vector keys for document %d: %w", documentID, err)
	}

	refs := make([]string, 0, len(members))
	var stale []any
	for i, ref := range members {
		if exists[i].Val() > 0 {
			refs = append(refs, ref)
		} else {
			stale = append(stale, ref)
		}
	}
	if len(stale) > 0 {
		if err := s.client.RDB.SRem(ctx, docSetKey(documentID), stale...).Err(); err != nil {
			s.logger.Warn("failed to prune stale vector set members",
				"document_id", documentID, "stale", len(stale), "error", err)
		}
	}
	return refs, nil
}

// Get reads one record back, embedding included. The retrieval path uses
// this directly; the manager itself never reads records.
func (s *Store) Get(ctx context.Context, ref string) (*chunks.VectorRecord, error) {
	fields, err := s.client.RDB.HGetAll(ctx, recordKey(ref)).Result()
	if err != nil {
		return nil, fmt.Errorf("reading vector record %s: %w", ref, err)
	}
	if len(fields) == 0 {
		return nil, nil
	}
	rec := &chunks.VectorRecord{
		ContentRef:   ref,
		Content:      fields["content"],
		DocumentType: fields["document_type"],
		DocumentName: fields["document_name"],
	}
	if v := fields["document_id"]; v != "" {
		rec.DocumentID, _ = strconv.ParseInt(v, 10, 64)
	}
	if v := fields["chunk_index"]; v != "" {
		rec.ChunkIndex, _ = strconv.Atoi(v)
	}
	if v := fields["embedding"]; v != "" {
		if err := json.Unmarshal([]byte(v), &rec.Embedding); err != nil {
			return nil, fmt.Errorf("decoding embedding for %s: %w", ref, err)
		}
	}
	return rec, nil
}
