package domain

const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

type SourceFailure struct {
	Source string `json:"source"`
	Reason string `json:"reason"`
}

// RetrievalOutcome summarizes one retrieval pass. It is built per call and
// never stored.
type RetrievalOutcome struct {
	Status                 string          `json:"status"`
	Subject                string          `json:"subject"`
	SourcesSearched        []string        `json:"sources_searched"`
	SourcesFailed          []SourceFailure `json:"sources_failed,omitempty"`
	DocumentsDownloaded    []string        `json:"documents_downloaded"`
	DocumentsIndexed       int             `json:"documents_indexed"`
	DocumentsReused        int             `json:"documents_already_indexed"`
	IndexedDocuments       []string        `json:"indexed_documents"`
	FragmentsIndexed       int             `json:"fragments_indexed"`
	Errors                 []string        `json:"errors"`
	TotalFragmentsInIndex  int             `json:"total_vectors_in_index"`
	DistinctDocumentsIndex int             `json:"unique_documents_in_index"`
}

type RetrievalRequest struct {
	Subject          string   `json:"subject"`
	Sources          []string `json:"sources,omitempty"`
	MaxDocsPerSource int      `json:"max_docs_per_source,omitempty"`
}
