// Package auditor implements the consistency auditor: read-only audits
// comparing the two stores for a document, a repair pass that converges
// drift toward the relational store's view, and bulk sweeps over documents
// in one lifecycle state.
package auditor

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/ragplatform/chunksync/internal/chunks"
	"github.com/ragplatform/chunksync/internal/chunks/lock"
	"github.com/ragplatform/chunksync/internal/store"
	"github.com/ragplatform/chunksync/pkg/config"
	apperrors "github.com/ragplatform/chunksync/pkg/errors"
	"github.com/ragplatform/chunksync/pkg/kafka"
	"github.com/ragplatform/chunksync/pkg/metrics"
	"github.com/ragplatform/chunksync/pkg/resilience"
)

// ReprocessPublisher announces chunks that need re-embedding. Nil-safe:
// an auditor built without a publisher flags rows but announces nothing.
type ReprocessPublisher interface {
	PublishBatch(ctx context.Context, events []kafka.Event) error
}

// ReprocessEvent is the payload published for each chunk row flagged
// needs_reprocessing by a repair pass.
type ReprocessEvent struct {
	DocumentID int64  `json:"document_id"`
	ContentRef string `json:"content_ref"`
	FlaggedAt  string `json:"flagged_at"`
}

// Auditor detects and repairs drift between the relational and vector
// stores. The relational store is the source of truth for which chunks
// should exist; the vector store is the source of truth for nothing.
type Auditor struct {
	relational store.Relational
	vector     store.Vector
	locks      lock.DocumentLocker
	publisher  ReprocessPublisher
	metrics    *metrics.Metrics
	cfg        config.ConsistencyConfig
	logger     *slog.Logger
}

func New(relational store.Relational, vector store.Vector, locks lock.DocumentLocker, publisher ReprocessPublisher, m *metrics.Metrics, cfg config.ConsistencyConfig) *Auditor {
	return &Auditor{
		relational: relational,
		vector:     vector,
		locks:      locks,
		publisher:  publisher,
		metrics:    m,
		cfg:        cfg,
		logger:     slog.Default().With("component", "consistency-auditor"),
	}
}

// Audit compares the two stores for one document and reports the
// difference in both directions. It takes no lock and writes nothing, so
// a report taken while a saga is running may show transient drift; only
// Repair acts on drift, and it re-checks under the lock.
func (a *Auditor) Audit(ctx context.Context, documentID int64) (*chunks.ConsistencyReport, error) {
	sqlRefs, err := a.relational.ListContentRefs(ctx, documentID)
	if err != nil {
		a.metrics.AuditRunsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("audit: relational side: %w", err)
	}
	vecRefs, err := a.vector.ListKeys(ctx, documentID)
	if err != nil {
		a.metrics.AuditRunsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("audit: vector side: %w", err)
	}
	report := diff(documentID, sqlRefs, vecRefs)

	if report.IsConsistent {
		a.metrics.AuditRunsTotal.WithLabelValues("consistent").Inc()
		a.logger.Debug("audit passed", "document_id", documentID, "chunks", report.SQLCount)
		return report, nil
	}
	a.metrics.AuditRunsTotal.WithLabelValues("drift").Inc()
	a.logger.Error("consistency drift detected",
		"document_id", documentID,
		"sql_count", report.SQLCount,
		"vector_count", report.VectorCount,
		"missing_in_vector", len(report.MissingInVector),
		"missing_in_sql", len(report.MissingInSQL),
		"error", apperrors.ErrConsistencyViolation,
	)
	return report, nil
}

// Repair converges one document toward the relational store's view:
// vector-only records are deleted as orphans, relational-only rows are
// flagged needs_reprocessing and announced for re-embedding. Repair never
// fabricates vector data itself. It holds the document lock so it cannot
// race a saga, and it is re-entrant: with no intervening writes a second
// pass finds the orphans gone and the remaining drift already flagged, so
// it reports nothing and publishes nothing.
func (a *Auditor) Repair(ctx context.Context, documentID int64) (*chunks.RepairReport, error) {
	release, err := a.locks.Acquire(ctx, documentID, a.cfg.LockTimeout)
	if err != nil {
		return nil, err
	}
	defer release()

	audit, err := a.Audit(ctx, documentID)
	if err != nil {
		return nil, err
	}
	report := &chunks.RepairReport{DocumentID: documentID, RepairedAt: time.Now().UTC()}
	if audit.IsConsistent {
		return report, nil
	}

	if len(audit.MissingInSQL) > 0 {
		if err := a.vector.DeleteMany(ctx, audit.MissingInSQL); err != nil {
			return report, fmt.Errorf("repair: deleting %d orphaned vector records: %w", len(audit.MissingInSQL), err)
		}
		report.OrphansDeleted = audit.MissingInSQL
		a.metrics.OrphansDeletedTotal.Add(float64(len(audit.MissingInSQL)))
	}

	if len(audit.MissingInVector) > 0 {
		// Only rows flagged by this pass are reported and announced;
		// rows a previous repair already flagged stay quiet.
		flagged, err := a.relational.MarkNeedsReprocessing(ctx, documentID, audit.MissingInVector)
		if err != nil {
			return report, fmt.Errorf("repair: %w", err)
		}
		if len(flagged) > 0 {
			report.NeedsReprocessing = flagged
			a.metrics.ReprocessFlaggedTotal.Add(float64(len(flagged)))
			a.announceReprocess(ctx, documentID, flagged)
		}
	}

	a.logger.Info("document repaired",
		"document_id", documentID,
		"orphans_deleted", len(report.OrphansDeleted),
		"needs_reprocessing", len(report.NeedsReprocessing),
	)
	return report, nil
}

// announceReprocess publishes one event per flagged chunk. Publishing is
// best-effort: the needs_reprocessing flag is already durable in the
// relational store, so a lost event delays re-embedding but loses nothing.
func (a *Auditor) announceReprocess(ctx context.Context, documentID int64, refs []string) {
	if a.publisher == nil {
		return
	}
	now := time.Now().UTC().Format(time.RFC3339)
	events := make([]kafka.Event, 0, len(refs))
	for _, ref := range refs {
		events = append(events, kafka.Event{
			Key: strconv.FormatInt(documentID, 10),
			Value: ReprocessEvent{
				DocumentID: documentID,
				ContentRef: ref,
				FlaggedAt:  now,
			},
		})
	}
	if err := a.publisher.PublishBatch(ctx, events); err != nil {
		a.logger.Warn("failed to publish reprocess events",
			"document_id", documentID, "count", len(events), "error", err)
	}
}

// Sweep audits every document in the given lifecycle state, up to the
// configured limit, and aggregates the inconsistent ones. Each document
// gets its own timeout so one slow store call cannot stall the sweep.
func (a *Auditor) Sweep(ctx context.Context, status chunks.DocumentStatus, limit int) (*chunks.SweepReport, error) {
	if limit <= 0 || limit > a.cfg.SweepLimit {
		limit = a.cfg.SweepLimit
	}
	docs, err := a.relational.ListDocumentsByStatus(ctx, status, limit)
	if err != nil {
		return nil, fmt.Errorf("sweep: listing documents: %w", err)
	}

	report := &chunks.SweepReport{Status: status, StartedAt: time.Now().UTC()}
	for _, doc := range docs {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		var audit *chunks.ConsistencyReport
		err := resilience.WithTimeout(ctx, a.cfg.SweepTimeout, "sweep-audit", func(tctx context.Context) error {
			var auditErr error
			audit, auditErr = a.Audit(tctx, doc.ID)
			return auditErr
		})
		report.DocumentsChecked++
		a.metrics.DocumentsSweptTotal.Inc()
		if err != nil {
			report.Errors++
			a.logger.Warn("sweep: audit failed", "document_id", doc.ID, "error", err)
			continue
		}
		if !audit.IsConsistent {
			report.Inconsistent = append(report.Inconsistent, *audit)
		}
	}
	report.FinishedAt = time.Now().UTC()

	a.logger.Info("sweep finished",
		"status", string(status),
		"documents_checked", report.DocumentsChecked,
		"inconsistent", len(report.Inconsistent),
		"errors", report.Errors,
	)
	return report, nil
}

// diff computes the symmetric difference of the two stores' key sets.
// Missing slices are sorted so reports are deterministic.
func diff(documentID int64, sqlRefs, vecRefs []string) *chunks.ConsistencyReport {
	sqlSet := make(map[string]struct{}, len(sqlRefs))
	for _, ref := range sqlRefs {
		sqlSet[ref] = struct{}{}
	}
	vecSet := make(map[string]struct{}, len(vecRefs))
	for _, ref := range vecRefs {
		vecSet[ref] = struct{}{}
	}

	report := &chunks.ConsistencyReport{
		DocumentID:  documentID,
		SQLCount:    len(sqlSet),
		VectorCount: len(vecSet),
		CheckedAt:   time.Now().UTC(),
	}
	for ref := range sqlSet {
		if _, ok := vecSet[ref]; !ok {
			report.MissingInVector = append(report.MissingInVector, ref)
		}
	}
	for ref := range vecSet {
		if _, ok := sqlSet[ref]; !ok {
			report.MissingInSQL = append(report.MissingInSQL, ref)
		}
	}
	sort.Strings(report.MissingInVector)
	sort.Strings(report.MissingInSQL)
	report.IsConsistent = len(report.MissingInVector) == 0 && len(report.MissingInSQL) == 0
	return report
}
