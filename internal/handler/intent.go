package handler

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/hidata/rag-platform/internal/middleware"
	"github.com/hidata/rag-platform/internal/model"
	"github.com/hidata/rag-platform/internal/service"
	"github.com/hidata/rag-platform/pkg/logger"
)

// IntentHandler handles intent detection and routing endpoints.
type IntentHandler struct {
	router *service.Router
	logger *logger.Logger
}

// NewIntentHandler creates a new intent handler.
func NewIntentHandler(router *service.Router, log *logger.Logger) *IntentHandler {
	return &IntentHandler{router: router, logger: log}
}

// IntentRequest is the POST /intent payload.
type IntentRequest struct {
	WorkspaceID string             `json:"workspace_id"`
	BlockID     string             `json:"block_id"`
	Text        string             `json:"text"`
	Connections []model.Connection `json:"connections,omitempty"`
}

// Route handles POST /api/v1/intent: classify the utterance and dispatch to
// the matching handler.
func (h *IntentHandler) Route(w http.ResponseWriter, r *http.Request) {
	var req IntentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := middleware.ValidateQueryContent(req.Text); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.router.Route(r.Context(), service.RouteRequest{
		WorkspaceID: req.WorkspaceID,
		BlockID:     req.BlockID,
		Text:        req.Text,
		Connections: req.Connections,
	})
	if err != nil {
		h.logger.Error("intent routing failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "intent routing failed")
		return
	}
	writeJSON(w, http.StatusOK, result)
}
