package ingest

import (
	"archive/zip"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/hidata/rag-platform/internal/model"
)

// ErrUnsupportedFileType is returned when no reader matches a file's
// extension or sniffed MIME type.
var ErrUnsupportedFileType = errors.New("unsupported file type")

// ErrPDFNotImplemented marks the declared-but-unfinished PDF path. It must
// surface to the caller, never be swallowed.
var ErrPDFNotImplemented = errors.New("pdf ingestion is not implemented")

// Reader extracts plain text from a file of one specific type.
type Reader interface {
	Read(path string) (string, error)
}

// Detect resolves a file to its document type. The extension wins; when the
// extension is unknown the first 512 bytes are MIME-sniffed.
func Detect(path string) (model.DocType, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt":
		return model.DocTypeText, nil
	case ".docx":
		return model.DocTypeWord, nil
	case ".pdf":
		return model.DocTypePDF, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	buf := make([]byte, 512)
	n, err := f.Read(buf)
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("sniffing %s: %w", path, err)
	}

	contentType := http.DetectContentType(buf[:n])
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
		contentType = mediaType
	}
	switch contentType {
	case "text/plain":
		return model.DocTypeText, nil
	case "application/zip", "application/vnd.openxmlformats-officedocument.wordprocessingml.document":
		return model.DocTypeWord, nil
	case "application/pdf":
		return model.DocTypePDF, nil
	}
	return "", fmt.Errorf("%w: %s (%s)", ErrUnsupportedFileType, filepath.Base(path), contentType)
}

// ReaderFor returns the reader for a document type. PDF resolves to a
// variant that fails on use, so callers see the gap instead of empty text.
func ReaderFor(docType model.DocType) (Reader, error) {
	switch docType {
	case model.DocTypeText:
		return textReader{}, nil
	case model.DocTypeWord:
		return docxReader{}, nil
	case model.DocTypePDF:
		return pdfReader{}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedFileType, docType)
}

type textReader struct{}

func (textReader) Read(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	return string(data), nil
}

// docxReader pulls paragraph text out of the word/document.xml part of the
// OOXML archive. Formatting, tables and headers are ignored.
type docxReader struct{}

func (docxReader) Read(path string) (string, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", path, err)
	}
	defer zr.Close()

	var doc *zip.File
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			doc = f
			break
		}
	}
	if doc == nil {
		return "", fmt.Errorf("%s: missing word/document.xml", path)
	}

	r, err := doc.Open()
	if err != nil {
		return "", err
	}
	defer r.Close()

	return extractDocxText(r)
}

func extractDocxText(r io.Reader) (string, error) {
	dec := xml.NewDecoder(r)
	var (
		sb     strings.Builder
		inText bool
	)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("parsing document xml: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "br":
				sb.WriteByte('\n')
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				sb.WriteByte('\n')
			}
		case xml.CharData:
			if inText {
				sb.Write(t)
			}
		}
	}
	return sb.String(), nil
}

type pdfReader struct{}

func (pdfReader) Read(path string) (string, error) {
	return "", fmt.Errorf("%s: %w", path, ErrPDFNotImplemented)
}
