package ingest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hidata/rag-platform/internal/model"
)

// ReadContextDir reads every supported file in dir and concatenates their
// text. Blank files and the unfinished PDF variant are skipped; a missing
// or empty directory yields an empty string.
func ReadContextDir(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("reading context dir %s: %w", dir, err)
	}

	var parts []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		path := filepath.Join(dir, e.Name())
		docType, err := Detect(path)
		if err != nil || docType == model.DocTypePDF {
			continue
		}
		reader, err := ReaderFor(docType)
		if err != nil {
			continue
		}
		text, err := reader.Read(path)
		if err != nil {
			return "", fmt.Errorf("reading %s: %w", path, err)
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		parts = append(parts, strings.TrimSpace(text))
	}
	return strings.Join(parts, "\n\n"), nil
}
