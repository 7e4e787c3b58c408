package service

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hidata/rag-platform/internal/model"
	"github.com/hidata/rag-platform/internal/vectorindex"
	"github.com/hidata/rag-platform/pkg/logger"
)

type zeroEmbedder struct{}

func (zeroEmbedder) Embed(context.Context, string) ([]float32, error) {
	return []float32{1, 0}, nil
}

type staticLister struct {
	names []string
}

func (s staticLister) List(context.Context, string, string) ([]string, error) {
	return s.names, nil
}

func TestReconcileConsistent(t *testing.T) {
	idx, err := vectorindex.Open(t.TempDir(), zeroEmbedder{})
	require.NoError(t, err)
	defer idx.Close()
	ctx := context.Background()

	require.NoError(t, idx.Add(ctx, model.Document{DocID: "a", DocType: model.DocTypeText, Summary: "s"}))

	m := NewMaintenance(idx, staticLister{names: []string{"a.txt"}}, logger.NewNop())
	report, err := m.Reconcile(ctx)
	require.NoError(t, err)
	assert.True(t, report.Consistent)
	assert.Empty(t, report.IndexOnly)
	assert.Empty(t, report.SideListOnly)
	assert.Empty(t, report.MissingBlobs)
}

func TestReconcileDetectsDrift(t *testing.T) {
	dir := t.TempDir()
	idx, err := vectorindex.Open(dir, zeroEmbedder{})
	require.NoError(t, err)
	defer idx.Close()
	ctx := context.Background()

	require.NoError(t, idx.Add(ctx, model.Document{DocID: "a", DocType: model.DocTypeText, Summary: "s"}))
	require.NoError(t, idx.Add(ctx, model.Document{DocID: "b", DocType: model.DocTypeText, Summary: "s"}))

	// corrupt the side list: drop "b", add a ghost id
	data, err := json.Marshal([]string{"a", "ghost"})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, vectorindex.SideListFile), data, 0o644))

	m := NewMaintenance(idx, staticLister{names: []string{"a.txt"}}, logger.NewNop())
	report, err := m.Reconcile(ctx)
	require.NoError(t, err)
	assert.False(t, report.Consistent)
	assert.Equal(t, []string{"b"}, report.IndexOnly)
	assert.Equal(t, []string{"ghost"}, report.SideListOnly)
	assert.Equal(t, []string{"b"}, report.MissingBlobs)
}
