package ingest

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hidata/rag-platform/internal/model"
)

func writeDocx(t *testing.T, dir string, paragraphs []string) string {
	t.Helper()
	path := filepath.Join(dir, "sample.docx")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	zw := zip.NewWriter(f)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)

	body := `<?xml version="1.0"?><w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>`
	for _, p := range paragraphs {
		body += `<w:p><w:r><w:t>` + p + `</w:t></w:r></w:p>`
	}
	body += `</w:body></w:document>`
	_, err = w.Write([]byte(body))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return path
}

func TestDetectByExtension(t *testing.T) {
	tests := []struct {
		name string
		want model.DocType
	}{
		{"notes.txt", model.DocTypeText},
		{"report.DOCX", model.DocTypeWord},
		{"paper.pdf", model.DocTypePDF},
	}
	for _, tt := range tests {
		got, err := Detect(tt.name)
		require.NoError(t, err, tt.name)
		assert.Equal(t, tt.want, got)
	}
}

func TestDetectSniffsWithoutExtension(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plain")
	require.NoError(t, os.WriteFile(path, []byte("just some words"), 0o644))

	got, err := Detect(path)
	require.NoError(t, err)
	assert.Equal(t, model.DocTypeText, got)
}

func TestDetectRejectsUnknown(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "blob")
	require.NoError(t, os.WriteFile(path, []byte{0x00, 0x01, 0x02, 0xff}, 0o644))

	_, err := Detect(path)
	assert.ErrorIs(t, err, ErrUnsupportedFileType)
}

func TestDocxReader(t *testing.T) {
	path := writeDocx(t, t.TempDir(), []string{"First paragraph.", "Second paragraph."})

	r, err := ReaderFor(model.DocTypeWord)
	require.NoError(t, err)
	text, err := r.Read(path)
	require.NoError(t, err)
	assert.Contains(t, text, "First paragraph.")
	assert.Contains(t, text, "Second paragraph.")
}

func TestPDFReaderFailsLoudly(t *testing.T) {
	r, err := ReaderFor(model.DocTypePDF)
	require.NoError(t, err)
	_, err = r.Read("anything.pdf")
	assert.ErrorIs(t, err, ErrPDFNotImplemented)
}

func TestReadContextDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("Project X is due on 2025-01-01."), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "empty.txt"), []byte("   \n"), 0o644))
	writeDocx(t, dir, []string{"Budget approved."})

	text, err := ReadContextDir(dir)
	require.NoError(t, err)
	assert.Contains(t, text, "2025-01-01")
	assert.Contains(t, text, "Budget approved.")
}

func TestReadContextDirMissing(t *testing.T) {
	text, err := ReadContextDir(filepath.Join(t.TempDir(), "nope"))
	require.NoError(t, err)
	assert.Empty(t, text)
}
