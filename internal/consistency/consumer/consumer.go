// Package consumer dispatches chunk-set requests arriving over Kafka to
// the consistency manager.
package consumer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ragplatform/chunksync/internal/chunks"
	"github.com/ragplatform/chunksync/internal/consistency"
	"github.com/ragplatform/chunksync/internal/consistency/validator"
	apperrors "github.com/ragplatform/chunksync/pkg/errors"
	"github.com/ragplatform/chunksync/pkg/kafka"
)

// ChunkManager is the slice of the saga manager the consumer depends on.
type ChunkManager interface {
	Store(ctx context.Context, documentID int64, inputs []chunks.ChunkInput, meta chunks.DocumentMetadata) ([]int64, error)
	Delete(ctx context.Context, documentID int64) error
}

// Dispatcher turns Kafka messages into saga runs. Malformed or invalid
// messages are logged and committed (retrying cannot fix them); saga
// failures return an error so the message stays uncommitted and is
// redelivered.
type Dispatcher struct {
	manager ChunkManager
	logger  *slog.Logger
}

func NewDispatcher(manager ChunkManager) *Dispatcher {
	return &Dispatcher{
		manager: manager,
		logger:  slog.Default().With("component", "consistency-consumer"),
	}
}

// Handle implements kafka.MessageHandler.
func (d *Dispatcher) Handle(ctx context.Context, key []byte, value []byte) error {
	req, err := kafka.DecodeJSON[consistency.Request](value)
	if err != nil {
		d.logger.Error("dropping malformed message", "key", string(key), "error", err)
		return nil
	}
	if err := validator.ValidateRequest(&req); err != nil {
		d.logger.Error("dropping invalid request",
			"key", string(key),
			"operation", req.Operation,
			"document_id", req.DocumentID,
			"error", err,
		)
		return nil
	}

	switch req.Operation {
	case consistency.OperationStore:
		ids, err := d.manager.Store(ctx, req.DocumentID, req.Chunks, req.Metadata)
		if err != nil {
			return d.sagaError(req, err)
		}
		d.logger.Info("store request processed", "document_id", req.DocumentID, "chunks", len(ids))
	case consistency.OperationDelete:
		if err := d.manager.Delete(ctx, req.DocumentID); err != nil {
			return d.sagaError(req, err)
		}
		d.logger.Info("delete request processed", "document_id", req.DocumentID)
	}
	return nil
}

// sagaError decides whether a failed saga is worth redelivering. Busy
// documents and transient store failures are; a document that no longer
// exists is not.
func (d *Dispatcher) sagaError(req consistency.Request, err error) error {
	if errors.Is(err, apperrors.ErrDocumentNotFound) {
		d.logger.Warn("dropping request for missing document",
			"operation", req.Operation, "document_id", req.DocumentID, "error", err)
		return nil
	}
	return fmt.Errorf("%s saga for document %d: %w", req.Operation, req.DocumentID, err)
}
