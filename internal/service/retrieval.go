// Package service implements the answer-generation, retrieval, intent and
// workspace operations behind the HTTP handlers.
package service

import (
	"context"
	"strings"
	"time"

	"github.com/hidata/rag-platform/internal/ingest"
	"github.com/hidata/rag-platform/internal/model"
	"github.com/hidata/rag-platform/internal/store"
	"github.com/hidata/rag-platform/internal/vectorindex"
	"github.com/hidata/rag-platform/pkg/logger"
	"github.com/hidata/rag-platform/pkg/metrics"
)

// Downloader fetches original documents out of the blob store.
type Downloader interface {
	DownloadByPrefix(ctx context.Context, folder, prefix, dstDir string) (string, error)
	List(ctx context.Context, folder, namePrefix string) ([]string, error)
}

// ContextSource produces the grounding text for one RAG generation.
type ContextSource interface {
	Context(ctx context.Context, query string) (string, error)
}

// DirectorySource grounds generation in a local directory of documents.
type DirectorySource struct {
	Dir string
}

// Context reads and concatenates every supported document in the directory.
func (d DirectorySource) Context(_ context.Context, _ string) (string, error) {
	return ingest.ReadContextDir(d.Dir)
}

// Retrieval runs similarity search over the vector index and serves as a
// ContextSource backed by retrieved summaries.
type Retrieval struct {
	index  *vectorindex.Index
	blobs  Downloader
	topK   int
	logger *logger.Logger
}

// NewRetrieval builds a retrieval service over an open index.
func NewRetrieval(index *vectorindex.Index, blobs Downloader, topK int, log *logger.Logger) *Retrieval {
	return &Retrieval{index: index, blobs: blobs, topK: topK, logger: log}
}

// Search ranks indexed documents against the query, optionally restricted
// to an allowed id set.
func (r *Retrieval) Search(ctx context.Context, query string, allowedIDs map[string]bool, k int) ([]model.SearchResult, error) {
	start := time.Now()
	results, err := r.index.Search(ctx, query, allowedIDs, k)
	metrics.RetrievalDuration.Observe(time.Since(start).Seconds())
	return results, err
}

// Context retrieves the top matching summaries and joins them into one
// grounding block. No matches yields an empty string, not an error.
func (r *Retrieval) Context(ctx context.Context, query string) (string, error) {
	results, err := r.Search(ctx, query, nil, r.topK)
	if err != nil {
		return "", err
	}

	var parts []string
	for _, res := range results {
		summary, err := r.index.Summary(ctx, res.DocID)
		if err != nil {
			continue
		}
		if strings.TrimSpace(summary) == "" {
			continue
		}
		parts = append(parts, summary)
	}
	return strings.Join(parts, "\n\n"), nil
}

// ListAll enumerates every indexed document. The index has no native list
// operation, so this is a search with an empty query bounded by the count.
func (r *Retrieval) ListAll(ctx context.Context) ([]model.SearchResult, error) {
	n, err := r.index.Count(ctx)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	return r.Search(ctx, "", nil, n)
}

// DownloadOriginal fetches a document's uploaded file into dstDir and
// returns the local path.
func (r *Retrieval) DownloadOriginal(ctx context.Context, docID, dstDir string) (string, error) {
	return r.blobs.DownloadByPrefix(ctx, store.FolderFiles, docID, dstDir)
}

// SnapshotArtifacts lists the cloud copy of the index persistence files.
func (r *Retrieval) SnapshotArtifacts(ctx context.Context) ([]string, error) {
	return r.blobs.List(ctx, store.FolderVectorizedDB, "")
}

// DownloadSnapshotFile fetches one index artifact from the blob store.
func (r *Retrieval) DownloadSnapshotFile(ctx context.Context, name, dstDir string) (string, error) {
	return r.blobs.DownloadByPrefix(ctx, store.FolderVectorizedDB, name, dstDir)
}
