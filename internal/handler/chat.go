package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hidata/rag-platform/internal/middleware"
	"github.com/hidata/rag-platform/internal/model"
	"github.com/hidata/rag-platform/internal/service"
	"github.com/hidata/rag-platform/internal/store"
	"github.com/hidata/rag-platform/pkg/logger"
	"github.com/hidata/rag-platform/pkg/metrics"
)

// ChatHandler handles query/answer endpoints.
type ChatHandler struct {
	kv        *store.KeyValueStore
	generator *service.Generator
	workspace *service.Workspace
	logger    *logger.Logger
}

// NewChatHandler creates a new chat handler.
func NewChatHandler(kv *store.KeyValueStore, generator *service.Generator, workspace *service.Workspace, log *logger.Logger) *ChatHandler {
	return &ChatHandler{
		kv:        kv,
		generator: generator,
		workspace: workspace,
		logger:    log,
	}
}

// QueryRequest is the POST /chat/query payload.
type QueryRequest struct {
	WorkspaceID string             `json:"workspace_id"`
	BlockID     string             `json:"block_id"`
	Query       string             `json:"query"`
	SenderID    string             `json:"sender_id"`
	Connections []model.Connection `json:"connections,omitempty"`
	ExpireAfter int                `json:"expire_after,omitempty"` // seconds; 0 keeps the block
}

// Query handles POST /api/v1/chat/query: store the pending query, generate
// an answer, return both the answer and the turn key.
func (h *ChatHandler) Query(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req QueryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := middleware.ValidateWorkspaceID(req.WorkspaceID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := middleware.ValidateBlockID(req.BlockID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := middleware.ValidateQueryContent(req.Query); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	turnKey, err := h.kv.StoreQuery(ctx, req.BlockID, req.Query, req.SenderID,
		time.Duration(req.ExpireAfter)*time.Second)
	if err != nil {
		h.logger.Error("failed to store query", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to store query")
		return
	}
	metrics.TurnsTotal.WithLabelValues(string(h.generator.Mode()), "user").Inc()

	answer, err := h.generator.GenerateAnswer(ctx, req.WorkspaceID, turnKey, req.Connections)
	if err != nil {
		h.logger.Error("generation failed", zap.String("turn_key", turnKey), zap.Error(err))
		writeError(w, http.StatusBadGateway, "failed to generate answer")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"answer":   answer,
		"turn_key": turnKey,
	})
}

// History handles GET /api/v1/chat/{blockID}/history
func (h *ChatHandler) History(w http.ResponseWriter, r *http.Request) {
	blockID := chi.URLParam(r, "blockID")
	if err := middleware.ValidateBlockID(blockID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	history, err := h.kv.History(r.Context(), blockID)
	if err != nil {
		h.logger.Error("failed to load history", zap.String("block_id", blockID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load history")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"block_id": blockID,
		"turns":    history,
	})
}

// DeleteBlock handles DELETE /api/v1/chat/{blockID}?workspace_id=...&type=conversation.
// Only conversation blocks can be deleted.
func (h *ChatHandler) DeleteBlock(w http.ResponseWriter, r *http.Request) {
	blockID := chi.URLParam(r, "blockID")
	if err := middleware.ValidateBlockID(blockID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	workspaceID := r.URL.Query().Get("workspace_id")
	if err := middleware.ValidateWorkspaceID(workspaceID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if blockType := r.URL.Query().Get("type"); blockType != "" && blockType != "conversation" {
		writeError(w, http.StatusBadRequest, "unsupported block type: "+blockType)
		return
	}

	existed, err := h.workspace.DeleteBlock(r.Context(), workspaceID, blockID)
	if err != nil {
		h.logger.Error("failed to delete block", zap.String("block_id", blockID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to delete block")
		return
	}
	if !existed {
		writeError(w, http.StatusNotFound, "block not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"deleted": blockID})
}
