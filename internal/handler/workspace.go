package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hidata/rag-platform/internal/middleware"
	"github.com/hidata/rag-platform/internal/model"
	"github.com/hidata/rag-platform/internal/service"
	"github.com/hidata/rag-platform/pkg/logger"
)

// WorkspaceHandler handles workspace save/load endpoints.
type WorkspaceHandler struct {
	workspace *service.Workspace
	logger    *logger.Logger
}

// NewWorkspaceHandler creates a new workspace handler.
func NewWorkspaceHandler(workspace *service.Workspace, log *logger.Logger) *WorkspaceHandler {
	return &WorkspaceHandler{workspace: workspace, logger: log}
}

// Save handles POST /api/v1/workspace
func (h *WorkspaceHandler) Save(w http.ResponseWriter, r *http.Request) {
	var req model.SaveWorkspaceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := middleware.ValidateWorkspaceID(req.WorkspaceID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	projectID, err := h.workspace.Save(r.Context(), req)
	if err != nil {
		h.logger.Error("failed to save workspace",
			zap.String("workspace_id", req.WorkspaceID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to save workspace")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"project_id": projectID})
}

// Load handles GET /api/v1/workspace/{workspaceID}
func (h *WorkspaceHandler) Load(w http.ResponseWriter, r *http.Request) {
	workspaceID := chi.URLParam(r, "workspaceID")
	if err := middleware.ValidateWorkspaceID(workspaceID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	data, err := h.workspace.Load(r.Context(), workspaceID)
	if err != nil {
		h.logger.Error("failed to load workspace",
			zap.String("workspace_id", workspaceID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load workspace")
		return
	}
	writeJSON(w, http.StatusOK, data)
}

// ChatHistory handles GET /api/v1/workspace/{workspaceID}/chat
func (h *WorkspaceHandler) ChatHistory(w http.ResponseWriter, r *http.Request) {
	workspaceID := chi.URLParam(r, "workspaceID")
	if err := middleware.ValidateWorkspaceID(workspaceID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	history, err := h.workspace.ChatHistory(r.Context(), workspaceID)
	if err != nil {
		h.logger.Error("failed to load chat history",
			zap.String("workspace_id", workspaceID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load chat history")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"blocks": history})
}
