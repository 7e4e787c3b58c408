// Package ingest turns uploaded files into summarized, embedded, cloud-backed
// documents. Each file moves through read, summarize, index and upload steps;
// any failing step aborts the whole ingestion.
package ingest

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hidata/rag-platform/internal/llm"
	"github.com/hidata/rag-platform/internal/model"
	"github.com/hidata/rag-platform/internal/store"
	"github.com/hidata/rag-platform/internal/vectorindex"
	"github.com/hidata/rag-platform/pkg/logger"
	"github.com/hidata/rag-platform/pkg/metrics"
)

const summarizeInstruction = "Summarize this document concisely, preserving names, dates and figures."

// ObjectStore is the slice of blob-store behavior ingestion needs.
type ObjectStore interface {
	PutFile(ctx context.Context, folder, localPath, name string, metadata map[string]string) error
	List(ctx context.Context, folder, namePrefix string) ([]string, error)
	Delete(ctx context.Context, folder, name string) error
}

// Pipeline drives file ingestion end to end. The index directory is a
// single-writer resource, so ingestions are serialized on a mutex.
type Pipeline struct {
	llm    llm.Client
	index  *vectorindex.Index
	blobs  ObjectStore
	logger *logger.Logger
	model  string

	mu sync.Mutex
}

// NewPipeline wires an ingestion pipeline over an open index and blob store.
func NewPipeline(client llm.Client, index *vectorindex.Index, blobs ObjectStore, chatModel string, log *logger.Logger) *Pipeline {
	return &Pipeline{
		llm:    client,
		index:  index,
		blobs:  blobs,
		logger: log,
		model:  chatModel,
	}
}

// Ingest processes the file at path. originalName is the client-supplied
// filename, kept as object metadata so downloads can restore it.
func (p *Pipeline) Ingest(ctx context.Context, path, originalName string) (model.Document, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	start := time.Now()
	docType, err := Detect(path)
	if err != nil {
		return model.Document{}, err
	}
	defer func() {
		status := "ok"
		if err != nil {
			status = "error"
		}
		metrics.RecordIngest(string(docType), status, time.Since(start).Seconds())
	}()

	reader, err := ReaderFor(docType)
	if err != nil {
		return model.Document{}, err
	}

	raw, err := reader.Read(path)
	if err != nil {
		return model.Document{}, err
	}

	summary, err := p.summarize(ctx, raw)
	if err != nil {
		return model.Document{}, err
	}

	docID, err := p.newDocID(ctx)
	if err != nil {
		return model.Document{}, err
	}

	doc := model.Document{
		DocID:    docID,
		FilePath: path,
		DocType:  docType,
		Summary:  summary,
	}

	if err = p.index.Add(ctx, doc); err != nil {
		return model.Document{}, err
	}

	if err = p.storeCloud(ctx, doc, originalName); err != nil {
		return model.Document{}, err
	}

	metrics.DocumentsIndexed.Inc()
	p.logger.Info("ingested document",
		zap.String("doc_id", docID),
		zap.String("doc_type", string(docType)),
		zap.String("name", originalName))
	return doc, nil
}

// summarize asks the model for a summary. A blank document yields a blank
// summary without touching the model.
func (p *Pipeline) summarize(ctx context.Context, raw string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return "", nil
	}
	resp, err := p.llm.Complete(ctx, &llm.CompletionRequest{
		Model: p.model,
		Messages: []llm.ChatMessage{
			{Role: string(model.RoleSystem), Content: summarizeInstruction},
			{Role: string(model.RoleUser), Content: raw},
		},
	})
	if err != nil {
		return "", fmt.Errorf("summarizing document: %w", err)
	}
	return resp.Content, nil
}

// newDocID generates an id not already present in the index or catalog.
func (p *Pipeline) newDocID(ctx context.Context) (string, error) {
	known := map[string]bool{}
	if ids, err := p.index.SideListIDs(); err == nil {
		for _, id := range ids {
			known[id] = true
		}
	}
	if ids, err := p.index.ListIDs(ctx); err == nil {
		for _, id := range ids {
			known[id] = true
		}
	}
	for attempt := 0; attempt < 10; attempt++ {
		id := uuid.New().String()
		if !known[id] {
			return id, nil
		}
	}
	return "", fmt.Errorf("could not derive a unique document id")
}

// storeCloud uploads the original file under "files" and refreshes the
// index snapshot under "vectorized_db".
func (p *Pipeline) storeCloud(ctx context.Context, doc model.Document, originalName string) error {
	ext := filepath.Ext(doc.FilePath)
	objectName := doc.DocID + ext
	meta := map[string]string{"name": originalName}
	if err := p.blobs.PutFile(ctx, store.FolderFiles, doc.FilePath, objectName, meta); err != nil {
		return err
	}
	for _, f := range p.index.SnapshotFiles() {
		if err := p.blobs.PutFile(ctx, store.FolderVectorizedDB, f, filepath.Base(f), nil); err != nil {
			return err
		}
	}
	return nil
}

// DeleteDocument removes a document from the index, the side list and the
// blob store. Returns whether the index entry existed.
func (p *Pipeline) DeleteDocument(ctx context.Context, docID string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	existed, err := p.index.DeleteByID(ctx, docID)
	if err != nil {
		return false, err
	}

	names, err := p.blobs.List(ctx, store.FolderFiles, docID)
	if err != nil {
		return existed, err
	}
	for _, name := range names {
		if err := p.blobs.Delete(ctx, store.FolderFiles, name); err != nil {
			return existed, err
		}
	}

	if existed {
		for _, f := range p.index.SnapshotFiles() {
			if err := p.blobs.PutFile(ctx, store.FolderVectorizedDB, f, filepath.Base(f), nil); err != nil {
				return existed, err
			}
		}
		metrics.DocumentsIndexed.Dec()
	}
	return existed, nil
}

// Cleanup removes every indexed document and its uploaded file, then
// refreshes the cloud snapshot once. Returns the number of documents removed.
func (p *Pipeline) Cleanup(ctx context.Context) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	ids, err := p.index.ListIDs(ctx)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, docID := range ids {
		existed, err := p.index.DeleteByID(ctx, docID)
		if err != nil {
			return removed, err
		}
		names, err := p.blobs.List(ctx, store.FolderFiles, docID)
		if err != nil {
			return removed, err
		}
		for _, name := range names {
			if err := p.blobs.Delete(ctx, store.FolderFiles, name); err != nil {
				return removed, err
			}
		}
		if existed {
			metrics.DocumentsIndexed.Dec()
			removed++
		}
	}

	if removed > 0 {
		for _, f := range p.index.SnapshotFiles() {
			if err := p.blobs.PutFile(ctx, store.FolderVectorizedDB, f, filepath.Base(f), nil); err != nil {
				return removed, err
			}
		}
		p.logger.Info("cleaned up index", zap.Int("removed", removed))
	}
	return removed, nil
}
