package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragplatform/chunksync/internal/chunks"
	"github.com/ragplatform/chunksync/internal/consistency"
)

func validStoreRequest() *consistency.Request {
	return &consistency.Request{
		Operation:  consistency.OperationStore,
		DocumentID: 42,
		Chunks: []chunks.ChunkInput{
			{Text: "first chunk", StartChar: 0, EndChar: 11, TokenCount: 2},
			{Text: "second chunk", StartChar: 11, EndChar: 23, TokenCount: 2},
		},
	}
}

func TestValidateStoreRequest(t *testing.T) {
	assert.NoError(t, ValidateRequest(validStoreRequest()))
}

func TestValidateDeleteRequest(t *testing.T) {
	req := &consistency.Request{Operation: consistency.OperationDelete, DocumentID: 42}
	assert.NoError(t, ValidateRequest(req))
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*consistency.Request)
		field  string
	}{
		{
			name:   "missing operation",
			mutate: func(r *consistency.Request) { r.Operation = "" },
			field:  "operation",
		},
		{
			name:   "unknown operation",
			mutate: func(r *consistency.Request) { r.Operation = "upsert" },
			field:  "operation",
		},
		{
			name:   "zero document id",
			mutate: func(r *consistency.Request) { r.DocumentID = 0 },
			field:  "document_id",
		},
		{
			name:   "negative document id",
			mutate: func(r *consistency.Request) { r.DocumentID = -1 },
			field:  "document_id",
		},
		{
			name:   "store without chunks",
			mutate: func(r *consistency.Request) { r.Chunks = nil },
			field:  "chunks",
		},
		{
			name: "delete with chunks",
			mutate: func(r *consistency.Request) {
				r.Operation = consistency.OperationDelete
			},
			field: "chunks",
		},
		{
			name:   "blank chunk text",
			mutate: func(r *consistency.Request) { r.Chunks[1].Text = "   " },
			field:  "chunks[1].text",
		},
		{
			name:   "negative start char",
			mutate: func(r *consistency.Request) { r.Chunks[0].StartChar = -1 },
			field:  "chunks[0].start_char",
		},
		{
			name:   "end char not after start",
			mutate: func(r *consistency.Request) { r.Chunks[0].EndChar = r.Chunks[0].StartChar },
			field:  "chunks[0].end_char",
		},
		{
			name:   "zero token count",
			mutate: func(r *consistency.Request) { r.Chunks[0].TokenCount = 0 },
			field:  "chunks[0].token_count",
		},
		{
			name: "spans out of order",
			mutate: func(r *consistency.Request) {
				r.Chunks[1].StartChar = 0
				r.Chunks[0].StartChar = 5
				r.Chunks[0].EndChar = 16
			},
			field: "chunks[1].start_char",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validStoreRequest()
			tt.mutate(req)
			err := ValidateRequest(req)
			require.Error(t, err)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Contains(t, verr.Fields, tt.field)
		})
	}
}

func TestValidationErrorMessageListsFields(t *testing.T) {
	req := validStoreRequest()
	req.DocumentID = 0
	err := ValidateRequest(req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "document_id")
}
