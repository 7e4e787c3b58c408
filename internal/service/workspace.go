package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hidata/rag-platform/internal/model"
	"github.com/hidata/rag-platform/pkg/logger"
)

// WorkspaceStore is the durable-store surface workspace operations need.
type WorkspaceStore interface {
	PutProject(ctx context.Context, project *model.WorkspaceProject) error
	NextProjectID(ctx context.Context, workspaceID string) (string, error)
	WorkspaceData(ctx context.Context, workspaceID string) (*model.WorkspaceData, error)
	ChatHistory(ctx context.Context, workspaceID string) ([]model.BlockChat, error)
	DeleteBlockTurns(ctx context.Context, workspaceID, blockID string) (int, error)
}

// BlockDeleter removes a block from the ephemeral working log.
type BlockDeleter interface {
	DeleteBlock(ctx context.Context, blockID string) (bool, error)
}

// Workspace implements save/load of flowchart projects and chat history.
type Workspace struct {
	store  WorkspaceStore
	kv     BlockDeleter
	logger *logger.Logger
}

// NewWorkspace builds the workspace service.
func NewWorkspace(store WorkspaceStore, kv BlockDeleter, log *logger.Logger) *Workspace {
	return &Workspace{store: store, kv: kv, logger: log}
}

// Save persists a project's flowchart. A request without a project id gets
// the next "project-{n}" id for its workspace.
func (w *Workspace) Save(ctx context.Context, req model.SaveWorkspaceRequest) (string, error) {
	if req.WorkspaceID == "" {
		return "", fmt.Errorf("workspace id is required")
	}

	projectID := req.ProjectID
	if projectID == "" {
		var err error
		projectID, err = w.store.NextProjectID(ctx, req.WorkspaceID)
		if err != nil {
			return "", fmt.Errorf("assigning project id: %w", err)
		}
	}

	err := w.store.PutProject(ctx, &model.WorkspaceProject{
		WorkspaceID:   req.WorkspaceID,
		ProjectID:     projectID,
		FlowchartData: req.FlowchartData,
		UpdatedAt:     time.Now().UTC(),
	})
	if err != nil {
		return "", err
	}

	w.logger.Info("saved workspace project",
		zap.String("workspace_id", req.WorkspaceID),
		zap.String("project_id", projectID))
	return projectID, nil
}

// Load returns every project in a workspace.
func (w *Workspace) Load(ctx context.Context, workspaceID string) (*model.WorkspaceData, error) {
	return w.store.WorkspaceData(ctx, workspaceID)
}

// ChatHistory returns the workspace's archived conversations grouped per
// block.
func (w *Workspace) ChatHistory(ctx context.Context, workspaceID string) ([]model.BlockChat, error) {
	return w.store.ChatHistory(ctx, workspaceID)
}

// DeleteBlock removes a conversation block from both the durable archive
// and the working log. Reports whether anything existed.
func (w *Workspace) DeleteBlock(ctx context.Context, workspaceID, blockID string) (bool, error) {
	deleted, err := w.store.DeleteBlockTurns(ctx, workspaceID, blockID)
	if err != nil {
		return false, err
	}

	existed, err := w.kv.DeleteBlock(ctx, blockID)
	if err != nil {
		// durable deletion already happened; report it with the error
		return deleted > 0, err
	}
	return deleted > 0 || existed, nil
}
