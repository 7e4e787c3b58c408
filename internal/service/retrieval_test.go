package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hidata/rag-platform/internal/model"
	"github.com/hidata/rag-platform/internal/vectorindex"
	"github.com/hidata/rag-platform/pkg/logger"
)

type axisEmbedder struct {
	vectors map[string][]float32
}

func (a axisEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if v, ok := a.vectors[text]; ok {
		return v, nil
	}
	return []float32{0, 0, 1}, nil
}

func newRetrievalFixture(t *testing.T) (*Retrieval, *vectorindex.Index) {
	t.Helper()
	emb := axisEmbedder{vectors: map[string][]float32{
		"the schedule":         {1, 0, 0},
		"Deadline is May 5.":   {0.9, 0.1, 0},
		"Colors are blue/red.": {0, 1, 0},
	}}
	idx, err := vectorindex.Open(t.TempDir(), emb)
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })

	ctx := context.Background()
	require.NoError(t, idx.Add(ctx, model.Document{DocID: "d1", DocType: model.DocTypeText, Summary: "Deadline is May 5."}))
	require.NoError(t, idx.Add(ctx, model.Document{DocID: "d2", DocType: model.DocTypeText, Summary: "Colors are blue/red."}))

	return NewRetrieval(idx, nil, 1, logger.NewNop()), idx
}

func TestRetrievalContextJoinsTopSummaries(t *testing.T) {
	r, _ := newRetrievalFixture(t)

	text, err := r.Context(context.Background(), "the schedule")
	require.NoError(t, err)
	assert.Contains(t, text, "Deadline is May 5.")
	assert.NotContains(t, text, "Colors")
}

func TestSearchKGreaterThanCount(t *testing.T) {
	r, _ := newRetrievalFixture(t)

	results, err := r.Search(context.Background(), "the schedule", nil, 50)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestListAllEnumerates(t *testing.T) {
	r, _ := newRetrievalFixture(t)

	results, err := r.ListAll(context.Background())
	require.NoError(t, err)
	assert.Len(t, results, 2)
}
