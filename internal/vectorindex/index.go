// Package vectorindex stores document summaries and their embeddings in a
// local SQLite catalog, with a doc_id.json side list kept alongside for quick
// enumeration and reconciliation.
package vectorindex

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"

	_ "modernc.org/sqlite"

	"github.com/hidata/rag-platform/internal/model"
)

const (
	// CatalogFile is the SQLite database holding the summaries collection.
	CatalogFile = "index.db"
	// SideListFile enumerates known doc ids without opening the catalog.
	SideListFile = "doc_id.json"

	collection = "summaries"
)

var schema = fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	doc_id    TEXT PRIMARY KEY,
	doc_type  TEXT NOT NULL,
	summary   TEXT NOT NULL,
	embedding BLOB NOT NULL
);`, collection)

// Embedder produces a vector for a piece of text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Index is an on-disk vector index over document summaries.
type Index struct {
	db       *sql.DB
	dir      string
	embedder Embedder
}

// Open creates or opens the index under dir. Opening an existing directory
// is idempotent and preserves its contents.
func Open(dir string, embedder Embedder) (*Index, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating index dir: %w", err)
	}

	db, err := sql.Open("sqlite", filepath.Join(dir, CatalogFile))
	if err != nil {
		return nil, fmt.Errorf("opening catalog: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing catalog: %w", err)
	}

	idx := &Index{db: db, dir: dir, embedder: embedder}
	if _, err := os.Stat(idx.sideListPath()); errors.Is(err, os.ErrNotExist) {
		if err := idx.rewriteSideList(); err != nil {
			db.Close()
			return nil, err
		}
	}
	return idx, nil
}

// Close releases the underlying catalog handle.
func (i *Index) Close() error { return i.db.Close() }

// Dir returns the directory holding the index files.
func (i *Index) Dir() string { return i.dir }

func (i *Index) sideListPath() string { return filepath.Join(i.dir, SideListFile) }

// SnapshotFiles lists the on-disk files that together form the index state.
func (i *Index) SnapshotFiles() []string {
	return []string{
		filepath.Join(i.dir, CatalogFile),
		i.sideListPath(),
	}
}

// Add embeds the summary and stores the document. An existing doc id is
// overwritten.
func (i *Index) Add(ctx context.Context, doc model.Document) error {
	vec, err := i.embedder.Embed(ctx, doc.Summary)
	if err != nil {
		return fmt.Errorf("embedding summary for %s: %w", doc.DocID, err)
	}
	_, err = i.db.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %s (doc_id, doc_type, summary, embedding) VALUES (?, ?, ?, ?)
		 ON CONFLICT(doc_id) DO UPDATE SET doc_type=excluded.doc_type, summary=excluded.summary, embedding=excluded.embedding`, collection),
		doc.DocID, string(doc.DocType), doc.Summary, encodeVector(vec))
	if err != nil {
		return fmt.Errorf("storing %s: %w", doc.DocID, err)
	}
	return i.rewriteSideList()
}

// Search ranks stored documents by cosine similarity to the query. When
// allowedIDs is non-nil, documents outside it are skipped. An empty query
// embeds to nothing and matches every candidate with score zero, which is
// how callers enumerate the collection.
func (i *Index) Search(ctx context.Context, query string, allowedIDs map[string]bool, k int) ([]model.SearchResult, error) {
	var qvec []float32
	if query != "" {
		var err error
		qvec, err = i.embedder.Embed(ctx, query)
		if err != nil {
			return nil, fmt.Errorf("embedding query: %w", err)
		}
	}

	rows, err := i.db.QueryContext(ctx,
		fmt.Sprintf("SELECT doc_id, doc_type, embedding FROM %s", collection))
	if err != nil {
		return nil, fmt.Errorf("scanning catalog: %w", err)
	}
	defer rows.Close()

	var results []model.SearchResult
	for rows.Next() {
		var (
			id, docType string
			blob        []byte
		)
		if err := rows.Scan(&id, &docType, &blob); err != nil {
			return nil, err
		}
		if allowedIDs != nil && !allowedIDs[id] {
			continue
		}
		score := 0.0
		if qvec != nil {
			score = cosine(qvec, decodeVector(blob))
		}
		results = append(results, model.SearchResult{
			DocID:   id,
			DocType: model.DocType(docType),
			Score:   score,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(results, func(a, b int) bool { return results[a].Score > results[b].Score })
	if k > 0 && k < len(results) {
		results = results[:k]
	}
	return results, nil
}

// DeleteByID removes a document and reports whether it existed. Deleting an
// unknown id is not an error.
func (i *Index) DeleteByID(ctx context.Context, docID string) (bool, error) {
	res, err := i.db.ExecContext(ctx,
		fmt.Sprintf("DELETE FROM %s WHERE doc_id = ?", collection), docID)
	if err != nil {
		return false, fmt.Errorf("deleting %s: %w", docID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if err := i.rewriteSideList(); err != nil {
		return false, err
	}
	return n > 0, nil
}

// Summary returns the stored summary text for a document.
func (i *Index) Summary(ctx context.Context, docID string) (string, error) {
	var summary string
	err := i.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT summary FROM %s WHERE doc_id = ?", collection), docID).Scan(&summary)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("document %s not indexed", docID)
	}
	return summary, err
}

// Count returns the number of stored documents.
func (i *Index) Count(ctx context.Context) (int, error) {
	var n int
	err := i.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT COUNT(*) FROM %s", collection)).Scan(&n)
	return n, err
}

// ListIDs returns all doc ids in the catalog.
func (i *Index) ListIDs(ctx context.Context) ([]string, error) {
	rows, err := i.db.QueryContext(ctx,
		fmt.Sprintf("SELECT doc_id FROM %s ORDER BY doc_id", collection))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// SideListIDs reads doc_id.json.
func (i *Index) SideListIDs() ([]string, error) {
	data, err := os.ReadFile(i.sideListPath())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", SideListFile, err)
	}
	return ids, nil
}

func (i *Index) rewriteSideList() error {
	ids, err := i.ListIDs(context.Background())
	if err != nil {
		return err
	}
	if ids == nil {
		ids = []string{}
	}
	data, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	if err := os.WriteFile(i.sideListPath(), data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", SideListFile, err)
	}
	return nil
}

func encodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func decodeVector(buf []byte) []float32 {
	vec := make([]float32, len(buf)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return vec
}

func cosine(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
