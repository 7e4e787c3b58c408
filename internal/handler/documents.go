// Package handler provides HTTP handlers for the API.
package handler

import (
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hidata/rag-platform/internal/ingest"
	"github.com/hidata/rag-platform/internal/middleware"
	"github.com/hidata/rag-platform/internal/service"
	"github.com/hidata/rag-platform/pkg/logger"
)

const maxUploadBytes = 32 << 20 // 32MB

// DocumentHandler handles document ingestion and management endpoints.
type DocumentHandler struct {
	pipeline    *ingest.Pipeline
	retrieval   *service.Retrieval
	maintenance *service.Maintenance
	logger      *logger.Logger
}

// NewDocumentHandler creates a new document handler.
func NewDocumentHandler(pipeline *ingest.Pipeline, retrieval *service.Retrieval, maintenance *service.Maintenance, log *logger.Logger) *DocumentHandler {
	return &DocumentHandler{
		pipeline:    pipeline,
		retrieval:   retrieval,
		maintenance: maintenance,
		logger:      log,
	}
}

// Upload handles POST /api/v1/documents
func (h *DocumentHandler) Upload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()

	tmpDir, err := os.MkdirTemp("", "upload-*")
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to stage upload")
		return
	}
	defer os.RemoveAll(tmpDir)

	localPath := filepath.Join(tmpDir, filepath.Base(header.Filename))
	dst, err := os.Create(localPath)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to stage upload")
		return
	}
	if _, err := io.Copy(dst, file); err != nil {
		dst.Close()
		writeError(w, http.StatusInternalServerError, "failed to stage upload")
		return
	}
	dst.Close()

	doc, err := h.pipeline.Ingest(ctx, localPath, header.Filename)
	if err != nil {
		if errors.Is(err, ingest.ErrUnsupportedFileType) || errors.Is(err, ingest.ErrPDFNotImplemented) {
			writeError(w, http.StatusUnsupportedMediaType, err.Error())
			return
		}
		h.logger.Error("ingestion failed", zap.String("file", header.Filename), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to ingest document")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{
		"doc_id":   doc.DocID,
		"doc_type": string(doc.DocType),
	})
}

// List handles GET /api/v1/documents
func (h *DocumentHandler) List(w http.ResponseWriter, r *http.Request) {
	results, err := h.retrieval.ListAll(r.Context())
	if err != nil {
		h.logger.Error("failed to list documents", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list documents")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"documents": results,
		"count":     len(results),
	})
}

// Delete handles DELETE /api/v1/documents/{docID}
func (h *DocumentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	docID := chi.URLParam(r, "docID")
	if err := middleware.ValidateDocID(docID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	existed, err := h.pipeline.DeleteDocument(r.Context(), docID)
	if err != nil {
		h.logger.Error("failed to delete document", zap.String("doc_id", docID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to delete document")
		return
	}
	if !existed {
		writeError(w, http.StatusNotFound, "document not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"deleted": docID})
}

// Reconcile handles POST /api/v1/documents/reconcile
func (h *DocumentHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	report, err := h.maintenance.Reconcile(r.Context())
	if err != nil {
		h.logger.Error("reconcile failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "reconcile failed")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// Cleanup handles POST /api/v1/documents/cleanup: remove every indexed
// document and its uploaded file.
func (h *DocumentHandler) Cleanup(w http.ResponseWriter, r *http.Request) {
	removed, err := h.pipeline.Cleanup(r.Context())
	if err != nil {
		h.logger.Error("cleanup failed", zap.Int("removed", removed), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "cleanup failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"removed": removed})
}

// Snapshot handles GET /api/v1/documents/snapshot: list the cloud copy of
// the index artifacts.
func (h *DocumentHandler) Snapshot(w http.ResponseWriter, r *http.Request) {
	names, err := h.retrieval.SnapshotArtifacts(r.Context())
	if err != nil {
		h.logger.Error("failed to list snapshot", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list snapshot")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"artifacts": names})
}

// SnapshotFile handles GET /api/v1/documents/snapshot/{name}: stream one
// index artifact from the blob store.
func (h *DocumentHandler) SnapshotFile(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	tmpDir, err := os.MkdirTemp("", "snapshot-*")
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to stage download")
		return
	}
	defer os.RemoveAll(tmpDir)

	localPath, err := h.retrieval.DownloadSnapshotFile(r.Context(), name, tmpDir)
	if err != nil {
		writeError(w, http.StatusNotFound, "snapshot artifact not found")
		return
	}
	http.ServeFile(w, r, localPath)
}

// Download handles GET /api/v1/documents/{docID}/content
func (h *DocumentHandler) Download(w http.ResponseWriter, r *http.Request) {
	docID := chi.URLParam(r, "docID")
	if err := middleware.ValidateDocID(docID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	tmpDir, err := os.MkdirTemp("", "download-*")
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to stage download")
		return
	}
	defer os.RemoveAll(tmpDir)

	localPath, err := h.retrieval.DownloadOriginal(r.Context(), docID, tmpDir)
	if err != nil {
		writeError(w, http.StatusNotFound, "document not found")
		return
	}
	http.ServeFile(w, r, localPath)
}
