// Package manager implements the chunk consistency manager: multi-chunk
// store and delete across the relational and vector stores, run as sagas
// with journaled steps and compensating actions.
//
// Neither store participates in the other's transactions, so ordering is
// everything. Store writes the vector side first (its upserts are
// idempotent and individually reversible) and treats the relational commit
// as the point of no return. Delete inverts the ordering: the vector side
// goes first because an orphaned vector record is a silent leak, while a
// dangling relational row is detectable and repairable by the auditor.
package manager

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ragplatform/chunksync/internal/chunks"
	"github.com/ragplatform/chunksync/internal/chunks/embedding"
	"github.com/ragplatform/chunksync/internal/chunks/journal"
	"github.com/ragplatform/chunksync/internal/chunks/lock"
	"github.com/ragplatform/chunksync/internal/store"
	"github.com/ragplatform/chunksync/pkg/config"
	apperrors "github.com/ragplatform/chunksync/pkg/errors"
	"github.com/ragplatform/chunksync/pkg/logger"
	"github.com/ragplatform/chunksync/pkg/metrics"
	"github.com/ragplatform/chunksync/pkg/resilience"
	"github.com/ragplatform/chunksync/pkg/snowflake"
)

// StoreFailure is returned when a store saga could not complete.
// Compensation has already run: the attempt's VectorWritesUndone intended
// vector keys were deleted and the relational batch was never committed.
type StoreFailure struct {
	Cause              error
	VectorWritesUndone int
}

func (f *StoreFailure) Error() string {
	return fmt.Sprintf("store saga failed (%d vector writes undone): %v", f.VectorWritesUndone, f.Cause)
}

func (f *StoreFailure) Unwrap() []error {
	return []error{apperrors.ErrStoreFailed, f.Cause}
}

// DeleteFailure is returned when a delete saga could not remove the vector
// records even after bounded retries. Nothing was deleted from the
// relational store.
type DeleteFailure struct {
	Cause error
}

func (f *DeleteFailure) Error() string {
	return fmt.Sprintf("delete saga failed: %v", f.Cause)
}

func (f *DeleteFailure) Unwrap() []error {
	return []error{apperrors.ErrDeleteFailed, f.Cause}
}

// Deps bundles the manager's collaborators.
type Deps struct {
	Relational store.Relational
	Vector     store.Vector
	Journal    journal.Journal
	Locks      lock.DocumentLocker
	Embedder   embedding.Embedder
	IDs        *snowflake.Generator
	Metrics    *metrics.Metrics
	Config     config.ConsistencyConfig
}

// Manager orchestrates chunk-set sagas. One saga runs per document at a
// time; different documents proceed in parallel.
type Manager struct {
	relational store.Relational
	vector     store.Vector
	journal    journal.Journal
	locks      lock.DocumentLocker
	embedder   embedding.Embedder
	ids        *snowflake.Generator
	metrics    *metrics.Metrics
	cfg        config.ConsistencyConfig
	logger     *slog.Logger
}

func New(deps Deps) *Manager {
	return &Manager{
		relational: deps.Relational,
		vector:     deps.Vector,
		journal:    deps.Journal,
		locks:      deps.Locks,
		embedder:   deps.Embedder,
		ids:        deps.IDs,
		metrics:    deps.Metrics,
		cfg:        deps.Config,
		logger:     slog.Default().With("component", "consistency-manager"),
	}
}

// Store writes a document's chunk set to both stores and returns the
// assigned chunk ids in input order. On any failure the attempt's own
// writes are compensated; a previously committed generation of the
// document is never touched, so re-running Store after a failure is safe.
func (m *Manager) Store(ctx context.Context, documentID int64, inputs []chunks.ChunkInput, meta chunks.DocumentMetadata) ([]int64, error) {
	if len(inputs) == 0 {
		return nil, apperrors.New(apperrors.ErrInvalidInput, 400, "chunk set must not be empty")
	}
	release, err := m.locks.Acquire(ctx, documentID, m.cfg.LockTimeout)
	if err != nil {
		return nil, err
	}
	defer release()

	// Fail fast before embedding; the relational commit would reject an
	// unknown document anyway, but only after all the vector upserts.
	if _, err := m.relational.GetDocument(ctx, documentID); err != nil {
		return nil, err
	}

	texts := make([]string, len(inputs))
	for i, in := range inputs {
		texts[i] = in.Text
	}
	embeddings, err := m.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(embeddings) != len(inputs) {
		return nil, apperrors.Newf(apperrors.ErrEmbeddingFailed, 500,
			"got %d embeddings for %d chunks", len(embeddings), len(inputs))
	}

	attempt, err := m.journal.Begin(ctx, journal.OpStore, documentID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrJournalUnavailable, err)
	}
	ctx = logger.WithTransaction(ctx, attempt.TransactionID)
	log := m.logger.With("transaction_id", attempt.TransactionID, "document_id", documentID)
	start := time.Now()

	ids := make([]int64, len(inputs))
	refs := make([]string, len(inputs))
	rows := make([]chunks.Chunk, len(inputs))
	records := make([]chunks.VectorRecord, len(inputs))
	for i, in := range inputs {
		id, err := m.ids.Next()
		if err != nil {
			m.finishQuietly(ctx, attempt, journal.StatusRolledBack, err.Error())
			m.observeSaga(journal.OpStore, journal.StatusRolledBack, start)
			return nil, &StoreFailure{Cause: fmt.Errorf("assigning chunk id: %w", err)}
		}
		ref := chunks.ContentRef(id)
		ids[i] = id
		refs[i] = ref
		rows[i] = chunks.Chunk{
			ID:         id,
			DocumentID: documentID,
			ChunkIndex: i,
			ContentRef: ref,
			StartChar:  in.StartChar,
			EndChar:    in.EndChar,
			TokenCount: in.TokenCount,
		}
		records[i] = chunks.VectorRecord{
			ContentRef:   ref,
			Content:      in.Text,
			Embedding:    embeddings[i],
			DocumentID:   documentID,
			ChunkIndex:   i,
			DocumentType: meta.Type,
			DocumentName: meta.Name,
		}
	}

	// Intended keys go into the journal before any write so a crash
	// mid-saga leaves enough for recovery.
	if err := m.journal.Append(ctx, attempt.TransactionID, journal.Step{
		Adapter: "vector", Action: "upsert", Keys: refs,
	}); err != nil {
		m.finishQuietly(ctx, attempt, journal.StatusRolledBack, "journal unavailable before first write")
		return nil, fmt.Errorf("%w: %v", apperrors.ErrJournalUnavailable, err)
	}

	// Upserts run with the caller's cancellation detached: in-flight
	// writes must settle before compensation runs.
	writeCtx := context.WithoutCancel(ctx)
	g, gctx := errgroup.WithContext(writeCtx)
	g.SetLimit(m.cfg.VectorConcurrency)
	for i := range records {
		g.Go(func() error {
			if err := m.vector.Upsert(gctx, records[i]); err != nil {
				m.metrics.VectorWritesTotal.WithLabelValues("error").Inc()
				return fmt.Errorf("chunk %d (%s): %w", i, records[i].ContentRef, err)
			}
			m.metrics.VectorWritesTotal.WithLabelValues("ok").Inc()
			return nil
		})
	}
	upsertErr := g.Wait()
	if upsertErr == nil && ctx.Err() != nil {
		// Caller cancelled: all upserts settled, but the relational
		// commit is skipped and everything written is undone.
		upsertErr = fmt.Errorf("cancelled before relational commit: %w", ctx.Err())
	}
	if upsertErr != nil {
		// Compensation covers every intended key, not just the confirmed
		// writes: an upsert whose ack was lost may still have landed. The
		// ids are fresh, so deleting a key that never existed hits nothing
		// and a prior committed generation is never touched.
		undone, compErr := m.compensate(writeCtx, attempt, refs)
		m.observeSaga(journal.OpStore, journal.StatusRolledBack, start)
		if compErr != nil {
			return nil, compErr
		}
		log.Warn("store saga rolled back", "chunks", len(inputs), "vector_writes_undone", undone, "error", upsertErr)
		return nil, &StoreFailure{Cause: upsertErr, VectorWritesUndone: undone}
	}

	if err := m.journal.Append(ctx, attempt.TransactionID, journal.Step{
		Adapter: "relational", Action: "insert", Keys: refs,
	}); err != nil {
		undone, compErr := m.compensate(writeCtx, attempt, refs)
		m.observeSaga(journal.OpStore, journal.StatusRolledBack, start)
		if compErr != nil {
			return nil, compErr
		}
		return nil, &StoreFailure{
			Cause:              fmt.Errorf("%w: %v", apperrors.ErrJournalUnavailable, err),
			VectorWritesUndone: undone,
		}
	}

	// The relational commit is the saga's point of no return.
	if err := m.relational.InsertBatch(ctx, rows); err != nil {
		undone, compErr := m.compensate(writeCtx, attempt, refs)
		m.observeSaga(journal.OpStore, journal.StatusRolledBack, start)
		if compErr != nil {
			return nil, compErr
		}
		log.Warn("relational commit failed, store saga rolled back", "vector_writes_undone", undone, "error", err)
		return nil, &StoreFailure{Cause: fmt.Errorf("relational commit: %w", err), VectorWritesUndone: undone}
	}

	if err := m.journal.Finish(ctx, attempt.TransactionID, journal.StatusCommitted, ""); err != nil {
		// Both stores agree; a stale journal entry is a diagnostics gap,
		// not a consistency problem.
		log.Warn("failed to mark saga committed", "error", err)
	}
	m.observeSaga(journal.OpStore, journal.StatusCommitted, start)
	m.metrics.ChunksStoredTotal.Add(float64(len(rows)))

	// Chunk count is advisory; failing to update it is not fatal.
	if err := m.relational.UpdateChunkCount(ctx, documentID, len(rows)); err != nil {
		log.Warn("failed to update document chunk count", "error", err)
	}

	log.Info("chunk set stored", "chunks", len(rows), "duration", time.Since(start))
	return ids, nil
}

// Delete removes a document's chunk set from both stores, vector side
// first. If the relational delete fails after the vector records are gone
// the attempt is still committed: the leftover rows point at nothing,
// which the auditor detects and finishes on its next sweep.
func (m *Manager) Delete(ctx context.Context, documentID int64) error {
	release, err := m.locks.Acquire(ctx, documentID, m.cfg.LockTimeout)
	if err != nil {
		return err
	}
	defer release()

	refs, err := m.relational.ListContentRefs(ctx, documentID)
	if err != nil {
		return fmt.Errorf("listing chunks for delete: %w", err)
	}
	if len(refs) == 0 {
		m.logger.Debug("no chunks to delete", "document_id", documentID)
		return nil
	}

	attempt, err := m.journal.Begin(ctx, journal.OpDelete, documentID)
	if err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrJournalUnavailable, err)
	}
	ctx = logger.WithTransaction(ctx, attempt.TransactionID)
	log := m.logger.With("transaction_id", attempt.TransactionID, "document_id", documentID)
	start := time.Now()

	if err := m.journal.Append(ctx, attempt.TransactionID, journal.Step{
		Adapter: "vector", Action: "delete", Keys: refs,
	}); err != nil {
		m.finishQuietly(ctx, attempt, journal.StatusRolledBack, "journal unavailable before first delete")
		return fmt.Errorf("%w: %v", apperrors.ErrJournalUnavailable, err)
	}

	retryCfg := resilience.RetryConfig{
		MaxAttempts:  m.cfg.DeleteRetry.MaxAttempts,
		InitialDelay: m.cfg.DeleteRetry.InitialDelay,
		MaxDelay:     m.cfg.DeleteRetry.MaxDelay,
	}
	if err := resilience.Retry(ctx, "vector-batch-delete", retryCfg, func() error {
		return m.vector.DeleteMany(ctx, refs)
	}); err != nil {
		m.finishQuietly(ctx, attempt, journal.StatusRolledBack, err.Error())
		m.observeSaga(journal.OpDelete, journal.StatusRolledBack, start)
		log.Warn("delete saga rolled back, vector records untouched or partially removed", "error", err)
		return &DeleteFailure{Cause: err}
	}

	if err := m.journal.Append(ctx, attempt.TransactionID, journal.Step{
		Adapter: "relational", Action: "delete", Keys: refs,
	}); err != nil {
		log.Warn("journal append failed after vector delete", "error", err)
	}

	if err := m.relational.DeleteByDocument(ctx, documentID); err != nil {
		m.finishQuietly(ctx, attempt, journal.StatusCommitted,
			fmt.Sprintf("relational delete pending, rows left for auditor: %v", err))
		m.observeSaga(journal.OpDelete, journal.StatusCommitted, start)
		log.Warn("relational delete failed after vector delete; dangling rows left for auditor repair",
			"rows", len(refs), "error", err)
		return nil
	}

	m.finishQuietly(ctx, attempt, journal.StatusCommitted, "")
	m.observeSaga(journal.OpDelete, journal.StatusCommitted, start)

	if err := m.relational.UpdateChunkCount(ctx, documentID, 0); err != nil {
		// The document row may already be gone when delete runs as part
		// of document removal.
		log.Debug("chunk count reset skipped", "error", err)
	}

	log.Info("chunk set deleted", "chunks", len(refs), "duration", time.Since(start))
	return nil
}

// compensate deletes this attempt's vector writes and closes the attempt.
// A failed compensation is the one case the manager cannot self-heal: it
// is escalated as critical, journaled with the leftover keys, and
// surfaced to the caller.
func (m *Manager) compensate(ctx context.Context, attempt *journal.Attempt, refs []string) (int, error) {
	op := string(attempt.Operation)
	if len(refs) == 0 {
		m.finishQuietly(ctx, attempt, journal.StatusRolledBack, "")
		m.metrics.CompensationTotal.WithLabelValues(op, "completed").Inc()
		return 0, nil
	}
	if err := m.vector.DeleteMany(ctx, refs); err != nil {
		m.metrics.CompensationTotal.WithLabelValues(op, "failed").Inc()
		if jerr := m.journal.Append(ctx, attempt.TransactionID, journal.Step{
			Adapter: "vector", Action: "compensate_delete_failed", Keys: refs,
		}); jerr != nil {
			m.logger.Warn("journal append failed during compensation", "error", jerr)
		}
		m.finishQuietly(ctx, attempt, journal.StatusRolledBack,
			fmt.Sprintf("compensation incomplete, vector records may remain: %v", err))
		m.logger.Error("CRITICAL: saga compensation failed, auditor repair required",
			"transaction_id", attempt.TransactionID,
			"document_id", attempt.DocumentID,
			"operation", op,
			"keys", len(refs),
			"error", err,
		)
		return 0, fmt.Errorf("%w: undoing %d vector writes: %v", apperrors.ErrCompensationFailed, len(refs), err)
	}
	if jerr := m.journal.Append(ctx, attempt.TransactionID, journal.Step{
		Adapter: "vector", Action: "compensate_delete", Keys: refs,
	}); jerr != nil {
		m.logger.Warn("journal append failed during compensation", "error", jerr)
	}
	m.finishQuietly(ctx, attempt, journal.StatusRolledBack, "")
	m.metrics.CompensationTotal.WithLabelValues(op, "completed").Inc()
	return len(refs), nil
}

func (m *Manager) finishQuietly(ctx context.Context, attempt *journal.Attempt, status journal.Status, note string) {
	if err := m.journal.Finish(ctx, attempt.TransactionID, status, note); err != nil {
		m.logger.Warn("failed to finish journal attempt",
			"transaction_id", attempt.TransactionID, "status", status, "error", err)
	}
}

func (m *Manager) observeSaga(op journal.Operation, status journal.Status, start time.Time) {
	m.metrics.SagasTotal.WithLabelValues(string(op), string(status)).Inc()
	m.metrics.SagaDuration.WithLabelValues(string(op)).Observe(time.Since(start).Seconds())
}
