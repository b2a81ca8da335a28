// Package consistency defines the wire-level request model for chunk
// store and delete operations arriving over Kafka, plus its validation.
package consistency

import (
	"github.com/ragplatform/chunksync/internal/chunks"
)

// Operation names for incoming requests.
const (
	OperationStore  = "store"
	OperationDelete = "delete"
)

// Request is one chunk-set operation as published by the document
// pipeline. For store requests Chunks carries the full new generation of
// the document's chunk set; delete requests carry only the document id.
type Request struct {
	Operation  string                  `json:"operation"`
	DocumentID int64                   `json:"document_id"`
	Chunks     []chunks.ChunkInput     `json:"chunks,omitempty"`
	Metadata   chunks.DocumentMetadata `json:"metadata,omitempty"`
}
