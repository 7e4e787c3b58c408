package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hidata/rag-platform/internal/model"
	"github.com/hidata/rag-platform/pkg/logger"
)

type memWorkspaceStore struct {
	projects     []*model.WorkspaceProject
	nextID       string
	deletedTurns int
}

func (m *memWorkspaceStore) PutProject(_ context.Context, p *model.WorkspaceProject) error {
	m.projects = append(m.projects, p)
	return nil
}

func (m *memWorkspaceStore) NextProjectID(context.Context, string) (string, error) {
	return m.nextID, nil
}

func (m *memWorkspaceStore) WorkspaceData(context.Context, string) (*model.WorkspaceData, error) {
	return &model.WorkspaceData{}, nil
}

func (m *memWorkspaceStore) ChatHistory(context.Context, string) ([]model.BlockChat, error) {
	return nil, nil
}

func (m *memWorkspaceStore) DeleteBlockTurns(context.Context, string, string) (int, error) {
	return m.deletedTurns, nil
}

type memBlockDeleter struct {
	existed bool
	deleted []string
}

func (m *memBlockDeleter) DeleteBlock(_ context.Context, blockID string) (bool, error) {
	m.deleted = append(m.deleted, blockID)
	return m.existed, nil
}

func TestSaveAssignsProjectID(t *testing.T) {
	store := &memWorkspaceStore{nextID: "project-4"}
	w := NewWorkspace(store, &memBlockDeleter{}, logger.NewNop())

	id, err := w.Save(context.Background(), model.SaveWorkspaceRequest{
		WorkspaceID:   "ws-1",
		FlowchartData: map[string]any{"nodes": []any{}},
	})
	require.NoError(t, err)
	assert.Equal(t, "project-4", id)
	require.Len(t, store.projects, 1)
	assert.Equal(t, "project-4", store.projects[0].ProjectID)
}

func TestSaveKeepsExplicitProjectID(t *testing.T) {
	store := &memWorkspaceStore{nextID: "project-9"}
	w := NewWorkspace(store, &memBlockDeleter{}, logger.NewNop())

	id, err := w.Save(context.Background(), model.SaveWorkspaceRequest{
		WorkspaceID: "ws-1",
		ProjectID:   "project-2",
	})
	require.NoError(t, err)
	assert.Equal(t, "project-2", id)
}

func TestSaveRequiresWorkspaceID(t *testing.T) {
	w := NewWorkspace(&memWorkspaceStore{}, &memBlockDeleter{}, logger.NewNop())
	_, err := w.Save(context.Background(), model.SaveWorkspaceRequest{})
	assert.Error(t, err)
}

func TestDeleteBlockSpansBothStores(t *testing.T) {
	store := &memWorkspaceStore{deletedTurns: 2}
	kv := &memBlockDeleter{existed: false}
	w := NewWorkspace(store, kv, logger.NewNop())

	existed, err := w.DeleteBlock(context.Background(), "ws-1", "B1")
	require.NoError(t, err)
	assert.True(t, existed)
	assert.Equal(t, []string{"B1"}, kv.deleted)

	// nothing anywhere
	w2 := NewWorkspace(&memWorkspaceStore{}, &memBlockDeleter{}, logger.NewNop())
	existed, err = w2.DeleteBlock(context.Background(), "ws-1", "B9")
	require.NoError(t, err)
	assert.False(t, existed)
}
