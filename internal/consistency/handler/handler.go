// Package handler exposes the consistency operations over the admin HTTP
// API: per-document audit and repair, plus bulk sweeps by document status.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/ragplatform/chunksync/internal/chunks"
	apperrors "github.com/ragplatform/chunksync/pkg/errors"
	"github.com/ragplatform/chunksync/pkg/logger"
)

// AuditService is the slice of the auditor the HTTP layer depends on.
type AuditService interface {
	Audit(ctx context.Context, documentID int64) (*chunks.ConsistencyReport, error)
	Repair(ctx context.Context, documentID int64) (*chunks.RepairReport, error)
	Sweep(ctx context.Context, status chunks.DocumentStatus, limit int) (*chunks.SweepReport, error)
}

type Handler struct {
	auditor AuditService
	logger  *slog.Logger
}

func New(auditor AuditService) *Handler {
	return &Handler{
		auditor: auditor,
		logger:  slog.Default().With("component", "consistency-handler"),
	}
}

// Register wires the consistency routes onto the mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/documents/{id}/consistency", h.Audit)
	mux.HandleFunc("POST /api/v1/documents/{id}/repair", h.Repair)
	mux.HandleFunc("POST /api/v1/consistency/sweep", h.Sweep)
}

func (h *Handler) Audit(w http.ResponseWriter, r *http.Request) {
	documentID, ok := h.documentID(w, r)
	if !ok {
		return
	}
	report, err := h.auditor.Audit(r.Context(), documentID)
	if err != nil {
		h.writeServiceError(w, r, "audit failed", err)
		return
	}
	h.writeJSON(w, http.StatusOK, report)
}

func (h *Handler) Repair(w http.ResponseWriter, r *http.Request) {
	documentID, ok := h.documentID(w, r)
	if !ok {
		return
	}
	report, err := h.auditor.Repair(r.Context(), documentID)
	if err != nil {
		h.writeServiceError(w, r, "repair failed", err)
		return
	}
	h.writeJSON(w, http.StatusOK, report)
}

func (h *Handler) Sweep(w http.ResponseWriter, r *http.Request) {
	status := chunks.DocumentStatus(r.URL.Query().Get("status"))
	switch status {
	case chunks.StatusProcessing, chunks.StatusCompleted, chunks.StatusFailed:
	case "":
		status = chunks.StatusCompleted
	default:
		h.writeError(w, http.StatusBadRequest, "status must be one of processing, completed, failed")
		return
	}

	limit := 0
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 1 {
			h.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	report, err := h.auditor.Sweep(r.Context(), status, limit)
	if err != nil {
		h.writeServiceError(w, r, "sweep failed", err)
		return
	}
	h.writeJSON(w, http.StatusOK, report)
}

func (h *Handler) documentID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		h.writeError(w, http.StatusBadRequest, "document id must be a positive integer")
		return 0, false
	}
	return id, true
}

func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	log := logger.FromContext(r.Context())
	status := apperrors.HTTPStatusCode(err)
	if status >= http.StatusInternalServerError {
		log.Error(msg, "path", r.URL.Path, "error", err)
	} else {
		log.Warn(msg, "path", r.URL.Path, "error", err)
	}

	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		h.writeError(w, status, appErr.Message)
		return
	}
	h.writeError(w, status, msg)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
