package model

// DocType identifies the source format of an ingested document.
type DocType string

const (
	DocTypeText DocType = "txt"
	DocTypeWord DocType = "docx"
	DocTypePDF  DocType = "pdf"
)

// Document is a single ingestion unit. DocID is generated once and is
// immutable; it joins the vector index entry, the blob store object, and the
// side-list record.
type Document struct {
	DocID    string  `json:"doc_id"`
	FilePath string  `json:"file_path"`
	DocType  DocType `json:"doc_type"`
	Summary  string  `json:"summary"`
}

// SearchResult is one similarity-search hit.
type SearchResult struct {
	DocID   string  `json:"doc_id"`
	DocType DocType `json:"doc_type"`
	Score   float64 `json:"score"`
}

// ReconcileReport is the output of the index/side-list/blob consistency
// check.
type ReconcileReport struct {
	IndexOnly    []string `json:"index_only"`
	SideListOnly []string `json:"side_list_only"`
	MissingBlobs []string `json:"missing_blobs"`
	Consistent   bool     `json:"consistent"`
}
