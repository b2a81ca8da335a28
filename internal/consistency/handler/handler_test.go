package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragplatform/chunksync/internal/chunks"
	apperrors "github.com/ragplatform/chunksync/pkg/errors"
)

type fakeAuditService struct {
	auditReport  *chunks.ConsistencyReport
	repairReport *chunks.RepairReport
	sweepReport  *chunks.SweepReport
	err          error

	sweepStatus chunks.DocumentStatus
	sweepLimit  int
}

func (f *fakeAuditService) Audit(ctx context.Context, documentID int64) (*chunks.ConsistencyReport, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.auditReport, nil
}

func (f *fakeAuditService) Repair(ctx context.Context, documentID int64) (*chunks.RepairReport, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.repairReport, nil
}

func (f *fakeAuditService) Sweep(ctx context.Context, status chunks.DocumentStatus, limit int) (*chunks.SweepReport, error) {
	f.sweepStatus = status
	f.sweepLimit = limit
	if f.err != nil {
		return nil, f.err
	}
	return f.sweepReport, nil
}

func newServer(svc AuditService) *httptest.Server {
	mux := http.NewServeMux()
	New(svc).Register(mux)
	return httptest.NewServer(mux)
}

func TestAuditEndpoint(t *testing.T) {
	svc := &fakeAuditService{
		auditReport: &chunks.ConsistencyReport{
			DocumentID:      42,
			SQLCount:        3,
			VectorCount:     2,
			MissingInVector: []string{"a"},
			CheckedAt:       time.Now().UTC(),
		},
	}
	server := newServer(svc)
	defer server.Close()

	resp, err := http.Get(server.URL + "/api/v1/documents/42/consistency")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var report chunks.ConsistencyReport
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&report))
	assert.Equal(t, int64(42), report.DocumentID)
	assert.Equal(t, []string{"a"}, report.MissingInVector)
	assert.False(t, report.IsConsistent)
}

func TestAuditRejectsBadDocumentID(t *testing.T) {
	server := newServer(&fakeAuditService{})
	defer server.Close()

	for _, id := range []string{"abc", "0", "-5"} {
		resp, err := http.Get(server.URL + "/api/v1/documents/" + id + "/consistency")
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "id %q", id)
	}
}

func TestRepairEndpoint(t *testing.T) {
	svc := &fakeAuditService{
		repairReport: &chunks.RepairReport{
			DocumentID:     42,
			OrphansDeleted: []string{"x"},
			RepairedAt:     time.Now().UTC(),
		},
	}
	server := newServer(svc)
	defer server.Close()

	resp, err := http.Post(server.URL+"/api/v1/documents/42/repair", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var report chunks.RepairReport
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&report))
	assert.Equal(t, []string{"x"}, report.OrphansDeleted)
}

func TestRepairBusyDocumentMapsToConflict(t *testing.T) {
	svc := &fakeAuditService{
		err: apperrors.Newf(apperrors.ErrDocumentBusy, http.StatusConflict, "document 42 is locked"),
	}
	server := newServer(svc)
	defer server.Close()

	resp, err := http.Post(server.URL+"/api/v1/documents/42/repair", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "document 42 is locked", body["error"])
}

func TestAuditInternalErrorMapsTo500(t *testing.T) {
	svc := &fakeAuditService{err: errors.New("boom")}
	server := newServer(svc)
	defer server.Close()

	resp, err := http.Get(server.URL + "/api/v1/documents/42/consistency")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestSweepEndpointDefaultsAndParams(t *testing.T) {
	svc := &fakeAuditService{sweepReport: &chunks.SweepReport{Status: chunks.StatusCompleted}}
	server := newServer(svc)
	defer server.Close()

	resp, err := http.Post(server.URL+"/api/v1/consistency/sweep", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, chunks.StatusCompleted, svc.sweepStatus)
	assert.Equal(t, 0, svc.sweepLimit)

	resp, err = http.Post(server.URL+"/api/v1/consistency/sweep?status=failed&limit=25", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, chunks.StatusFailed, svc.sweepStatus)
	assert.Equal(t, 25, svc.sweepLimit)
}

func TestSweepRejectsBadParams(t *testing.T) {
	server := newServer(&fakeAuditService{})
	defer server.Close()

	resp, err := http.Post(server.URL+"/api/v1/consistency/sweep?status=archived", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Post(server.URL+"/api/v1/consistency/sweep?limit=-1", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
