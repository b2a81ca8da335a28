// Package store declares the two adapter interfaces the consistency
// manager orchestrates. The adapters are individually reliable (they retry
// transient errors internally) but never jointly atomic; keeping them
// consistent is the manager's job.
package store

import (
	"context"

	"github.com/ragplatform/chunksync/internal/chunks"
)

// Vector is the content-bearing, embedding-bearing store keyed by content
// ref. Upserts are idempotent so a failed saga can be re-run safely.
type Vector interface {
	Upsert(ctx context.Context, rec chunks.VectorRecord) error
	DeleteMany(ctx context.Context, refs []string) error
	ListKeys(ctx context.Context, documentID int64) ([]string, error)
}

// Relational is the structural store: chunk rows, ordering, and document
// metadata. InsertBatch commits a document's chunk set as one atomic unit
// so partial sets are never visible to readers.
type Relational interface {
	InsertBatch(ctx context.Context, batch []chunks.Chunk) error
	DeleteByDocument(ctx context.Context, documentID int64) error
	ListContentRefs(ctx context.Context, documentID int64) ([]string, error)
	MarkNeedsReprocessing(ctx context.Context, documentID int64, refs []string) ([]string, error)
	UpdateChunkCount(ctx context.Context, documentID int64, count int) error
	GetDocument(ctx context.Context, documentID int64) (*chunks.DocumentSummary, error)
	ListDocumentsByStatus(ctx context.Context, status chunks.DocumentStatus, limit int) ([]chunks.DocumentSummary, error)
}
