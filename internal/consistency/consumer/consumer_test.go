package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragplatform/chunksync/internal/chunks"
	"github.com/ragplatform/chunksync/internal/consistency"
	apperrors "github.com/ragplatform/chunksync/pkg/errors"
)

type fakeManager struct {
	storeCalls  int
	deleteCalls int
	lastDoc     int64
	lastChunks  []chunks.ChunkInput
	storeErr    error
	deleteErr   error
}

func (f *fakeManager) Store(ctx context.Context, documentID int64, inputs []chunks.ChunkInput, meta chunks.DocumentMetadata) ([]int64, error) {
	f.storeCalls++
	f.lastDoc = documentID
	f.lastChunks = inputs
	if f.storeErr != nil {
		return nil, f.storeErr
	}
	ids := make([]int64, len(inputs))
	for i := range ids {
		ids[i] = int64(i + 1)
	}
	return ids, nil
}

func (f *fakeManager) Delete(ctx context.Context, documentID int64) error {
	f.deleteCalls++
	f.lastDoc = documentID
	return f.deleteErr
}

func encode(t *testing.T, req consistency.Request) []byte {
	t.Helper()
	data, err := json.Marshal(req)
	require.NoError(t, err)
	return data
}

func TestHandleDispatchesStore(t *testing.T) {
	mgr := &fakeManager{}
	d := NewDispatcher(mgr)

	value := encode(t, consistency.Request{
		Operation:  consistency.OperationStore,
		DocumentID: 42,
		Chunks: []chunks.ChunkInput{
			{Text: "hello", StartChar: 0, EndChar: 5, TokenCount: 1},
		},
	})
	require.NoError(t, d.Handle(context.Background(), []byte("42"), value))
	assert.Equal(t, 1, mgr.storeCalls)
	assert.Equal(t, int64(42), mgr.lastDoc)
	assert.Len(t, mgr.lastChunks, 1)
}

func TestHandleDispatchesDelete(t *testing.T) {
	mgr := &fakeManager{}
	d := NewDispatcher(mgr)

	value := encode(t, consistency.Request{
		Operation:  consistency.OperationDelete,
		DocumentID: 7,
	})
	require.NoError(t, d.Handle(context.Background(), []byte("7"), value))
	assert.Equal(t, 1, mgr.deleteCalls)
	assert.Equal(t, int64(7), mgr.lastDoc)
}

func TestHandleDropsMalformedMessage(t *testing.T) {
	mgr := &fakeManager{}
	d := NewDispatcher(mgr)

	require.NoError(t, d.Handle(context.Background(), nil, []byte("{not json")))
	assert.Equal(t, 0, mgr.storeCalls)
	assert.Equal(t, 0, mgr.deleteCalls)
}

func TestHandleDropsInvalidRequest(t *testing.T) {
	mgr := &fakeManager{}
	d := NewDispatcher(mgr)

	value := encode(t, consistency.Request{Operation: consistency.OperationStore, DocumentID: 0})
	require.NoError(t, d.Handle(context.Background(), nil, value))
	assert.Equal(t, 0, mgr.storeCalls)
}

func TestHandleReturnsErrorForFailedSaga(t *testing.T) {
	mgr := &fakeManager{storeErr: errors.New("vector store unavailable")}
	d := NewDispatcher(mgr)

	value := encode(t, consistency.Request{
		Operation:  consistency.OperationStore,
		DocumentID: 42,
		Chunks: []chunks.ChunkInput{
			{Text: "hello", StartChar: 0, EndChar: 5, TokenCount: 1},
		},
	})
	// The error keeps the message uncommitted so Kafka redelivers it.
	assert.Error(t, d.Handle(context.Background(), nil, value))
}

func TestHandleDropsRequestForMissingDocument(t *testing.T) {
	mgr := &fakeManager{
		deleteErr: apperrors.Newf(apperrors.ErrDocumentNotFound, 404, "document 42"),
	}
	d := NewDispatcher(mgr)

	value := encode(t, consistency.Request{Operation: consistency.OperationDelete, DocumentID: 42})
	assert.NoError(t, d.Handle(context.Background(), nil, value))
}
