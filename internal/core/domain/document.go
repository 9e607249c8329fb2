package domain

import "time"

// DocumentHandle identifies one downloadable document offered by a source.
type DocumentHandle struct {
	Source string `json:"source"`
	Title  string `json:"title"`
	URL    string `json:"url"`
}

// StoredDocument is a handle materialized into local storage.
type StoredDocument struct {
	Handle DocumentHandle `json:"handle"`
	Key    string         `json:"key"`
	Path   string         `json:"path"`
	Size   int64          `json:"size"`
}

// DocumentMetadata describes one processed document. It is the provenance
// attached to every fragment the document produced.
type DocumentMetadata struct {
	FileName    string `json:"file_name"`
	FilePath    string `json:"file_path"`
	Source      string `json:"source,omitempty"`
	NumChunks   int    `json:"num_chunks"`
	TotalLength int    `json:"total_length"`
	ChunkSize   int    `json:"chunk_size"`
	Overlap     int    `json:"overlap"`
}

// Document is the catalog view of an ingested file.
type Document struct {
	FileName      string    `json:"file_name"`
	FilePath      string    `json:"file_path"`
	Source        string    `json:"source"`
	Subject       string    `json:"subject"`
	FragmentCount int       `json:"fragment_count"`
	TotalLength   int       `json:"total_length"`
	IndexedAt     time.Time `json:"indexed_at"`
}
