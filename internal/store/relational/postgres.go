// Package relational implements the relational chunk store on PostgreSQL.
// Chunk rows for one document are only ever inserted inside a single
// transaction, so readers observe either the pre-saga set or the complete
// post-saga set, never a partial batch.
package relational

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sort"

	"github.com/lib/pq"

	"github.com/ragplatform/chunksync/internal/chunks"
	apperrors "github.com/ragplatform/chunksync/pkg/errors"
	"github.com/ragplatform/chunksync/pkg/postgres"
)

type Store struct {
	db     *postgres.Client
	logger *slog.Logger
}

func New(db *postgres.Client) *Store {
	return &Store{
		db:     db,
		logger: slog.Default().With("component", "relational-store"),
	}
}

// InsertBatch writes all chunk rows in one transaction.
func (s *Store) InsertBatch(ctx context.Context, batch []chunks.Chunk) error {
	if len(batch) == 0 {
		return nil
	}
	err := s.db.InTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO document_chunks (id, document_id, chunk_index, content_ref, start_char, end_char, token_count)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`)
		if err != nil {
			return fmt.Errorf("preparing chunk insert: %w", err)
		}
		defer stmt.Close()
		for _, c := range batch {
			if _, err := stmt.ExecContext(ctx,
				c.ID, c.DocumentID, c.ChunkIndex, c.ContentRef,
				c.StartChar, c.EndChar, c.TokenCount,
			); err != nil {
				return fmt.Errorf("inserting chunk %s: %w", c.ContentRef, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Debug("chunk batch committed", "document_id", batch[0].DocumentID, "chunks", len(batch))
	return nil
}

// DeleteByDocument removes all chunk rows for the document in one commit.
func (s *Store) DeleteByDocument(ctx context.Context, documentID int64) error {
	res, err := s.db.DB.ExecContext(ctx,
		`DELETE FROM document_chunks WHERE document_id = $1`, documentID)
	if err != nil {
		return fmt.Errorf("deleting chunks for document %d: %w", documentID, err)
	}
	if n, err := res.RowsAffected(); err == nil {
		s.logger.Debug("chunk rows deleted", "document_id", documentID, "rows", n)
	}
	return nil
}

// ListContentRefs returns the content refs of all chunk rows for the
// document, ordered by chunk index.
func (s *Store) ListContentRefs(ctx context.Context, documentID int64) ([]string, error) {
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT content_ref FROM document_chunks WHERE document_id = $1 ORDER BY chunk_index`, documentID)
	if err != nil {
		return nil, fmt.Errorf("listing content refs for document %d: %w", documentID, err)
	}
	defer rows.Close()

	var refs []string
	for rows.Next() {
		var ref string
		if err := rows.Scan(&ref); err != nil {
			return nil, fmt.Errorf("scanning content ref: %w", err)
		}
		refs = append(refs, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating content refs: %w", err)
	}
	return refs, nil
}

// MarkNeedsReprocessing flags chunk rows whose vector records are missing
// and returns the refs it newly flagged. Rows already carrying the flag are
// skipped, so a second repair pass over the same drift reports nothing. The
// external pipeline picks flagged rows up and re-embeds them; nothing in
// this service re-inserts vector data on its own.
func (s *Store) MarkNeedsReprocessing(ctx context.Context, documentID int64, refs []string) ([]string, error) {
	if len(refs) == 0 {
		return nil, nil
	}
	rows, err := s.db.DB.QueryContext(ctx,
		`UPDATE document_chunks SET needs_reprocessing = true
		 WHERE document_id = $1 AND content_ref = ANY($2) AND needs_reprocessing = false
		 RETURNING content_ref`,
		documentID, pq.Array(refs))
	if err != nil {
		return nil, fmt.Errorf("flagging chunks for reprocessing (document %d): %w", documentID, err)
	}
	defer rows.Close()

	var flagged []string
	for rows.Next() {
		var ref string
		if err := rows.Scan(&ref); err != nil {
			return nil, fmt.Errorf("scanning flagged content ref: %w", err)
		}
		flagged = append(flagged, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating flagged content refs: %w", err)
	}
	sort.Strings(flagged)
	return flagged, nil
}

// UpdateChunkCount sets the advisory chunk count on the document row.
func (s *Store) UpdateChunkCount(ctx context.Context, documentID int64, count int) error {
	res, err := s.db.DB.ExecContext(ctx,
		`UPDATE documents SET chunk_count = $1, updated_at = now() WHERE id = $2`, count, documentID)
	if err != nil {
		return fmt.Errorf("updating chunk count for document %d: %w", documentID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.Newf(apperrors.ErrDocumentNotFound, 404, "document %d", documentID)
	}
	return nil
}

// GetDocument reads the slice of the document row this service needs.
func (s *Store) GetDocument(ctx context.Context, documentID int64) (*chunks.DocumentSummary, error) {
	var doc chunks.DocumentSummary
	err := s.db.DB.QueryRowContext(ctx,
		`SELECT id, name, status, chunk_count FROM documents WHERE id = $1`, documentID).
		Scan(&doc.ID, &doc.Name, &doc.Status, &doc.ChunkCount)
	if err == sql.ErrNoRows {
		return nil, apperrors.Newf(apperrors.ErrDocumentNotFound, 404, "document %d", documentID)
	}
	if err != nil {
		return nil, fmt.Errorf("querying document %d: %w", documentID, err)
	}
	return &doc, nil
}

// ListDocumentsByStatus returns up to limit documents in the given
// lifecycle state, oldest first, for bulk sweeps.
func (s *Store) ListDocumentsByStatus(ctx context.Context, status chunks.DocumentStatus, limit int) ([]chunks.DocumentSummary, error) {
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT id, name, status, chunk_count FROM documents WHERE status = $1 ORDER BY id LIMIT $2`,
		string(status), limit)
	if err != nil {
		return nil, fmt.Errorf("listing documents with status %s: %w", status, err)
	}
	defer rows.Close()

	var docs []chunks.DocumentSummary
	for rows.Next() {
		var doc chunks.DocumentSummary
		if err := rows.Scan(&doc.ID, &doc.Name, &doc.Status, &doc.ChunkCount); err != nil {
			return nil, fmt.Errorf("scanning document row: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating document rows: %w", err)
	}
	return docs, nil
}
