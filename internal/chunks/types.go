// Package chunks defines the domain model shared by the consistency
// manager, the auditor, and the storage adapters: chunk rows, vector
// records, document metadata, and the report types returned by the
// consistency operations.
package chunks

import (
	"strconv"
	"time"
)

// DocumentStatus is the lifecycle state of a document. The document row is
// owned by the external pipeline; this service only reads the status and
// updates the chunk count.
type DocumentStatus string

const (
	StatusProcessing DocumentStatus = "processing"
	StatusCompleted  DocumentStatus = "completed"
	StatusFailed     DocumentStatus = "failed"
)

// ChunkInput is one chunk as handed over by the document pipeline: the
// text plus its span in the original extracted text.
type ChunkInput struct {
	Text       string `json:"text"`
	StartChar  int    `json:"start_char"`
	EndChar    int    `json:"end_char"`
	TokenCount int    `json:"token_count"`
}

// Chunk is the relational-side row for one stored chunk. ContentRef is the
// key joining the row to its vector record and always equals the decimal
// rendering of ID.
type Chunk struct {
	ID         int64
	DocumentID int64
	ChunkIndex int
	ContentRef string
	StartChar  int
	EndChar    int
	TokenCount int
	CreatedAt  time.Time
}

// ContentRef renders a chunk id as a vector store key.
func ContentRef(chunkID int64) string {
	return strconv.FormatInt(chunkID, 10)
}

// VectorRecord is the vector-side counterpart of a Chunk: content and
// embedding under the shared ContentRef key, plus a small denormalized
// metadata bag used only for filtering.
type VectorRecord struct {
	ContentRef   string
	Content      string
	Embedding    []float32
	DocumentID   int64
	ChunkIndex   int
	DocumentType string
	DocumentName string
}

// DocumentMetadata carries the document-level fields the pipeline passes
// alongside a chunk set. Deliberately a typed struct with enumerated
// optional fields, not a free-form map.
type DocumentMetadata struct {
	Name      string `json:"name,omitempty"`
	Type      string `json:"type,omitempty"`
	SourceURL string `json:"source_url,omitempty"`
	FileHash  string `json:"file_hash,omitempty"`
	FileSize  int64  `json:"file_size,omitempty"`
}

// DocumentSummary is the slice of the document row this service reads.
type DocumentSummary struct {
	ID         int64          `json:"id"`
	Name       string         `json:"name"`
	Status     DocumentStatus `json:"status"`
	ChunkCount int            `json:"chunk_count"`
}

// ConsistencyReport is the result of comparing the two stores for one
// document.
type ConsistencyReport struct {
	DocumentID      int64     `json:"document_id"`
	SQLCount        int       `json:"sql_count"`
	VectorCount     int       `json:"vector_count"`
	MissingInVector []string  `json:"missing_in_vector,omitempty"`
	MissingInSQL    []string  `json:"missing_in_sql,omitempty"`
	IsConsistent    bool      `json:"is_consistent"`
	CheckedAt       time.Time `json:"checked_at"`
}

// RepairReport is the result of a repair pass: orphaned vector records
// removed and relational rows flagged for external re-processing.
type RepairReport struct {
	DocumentID        int64     `json:"document_id"`
	OrphansDeleted    []string  `json:"orphans_deleted,omitempty"`
	NeedsReprocessing []string  `json:"needs_reprocessing,omitempty"`
	RepairedAt        time.Time `json:"repaired_at"`
}

// Empty reports whether the repair pass found nothing to do.
func (r RepairReport) Empty() bool {
	return len(r.OrphansDeleted) == 0 && len(r.NeedsReprocessing) == 0
}

// SweepReport aggregates audits over all documents in one lifecycle state.
type SweepReport struct {
	Status           DocumentStatus      `json:"status"`
	DocumentsChecked int                 `json:"documents_checked"`
	Inconsistent     []ConsistencyReport `json:"inconsistent,omitempty"`
	Errors           int                 `json:"errors"`
	StartedAt        time.Time           `json:"started_at"`
	FinishedAt       time.Time           `json:"finished_at"`
}
