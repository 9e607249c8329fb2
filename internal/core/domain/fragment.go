package domain

// Fragment is one stored slice of document text. Handle equals the row
// position of its embedding in the index.
type Fragment struct {
	Handle         int    `json:"chunk_id"`
	Text           string `json:"chunk_text"`
	Position       int    `json:"chunk_index"`
	Length         int    `json:"length"`
	DocumentName   string `json:"source_document"`
	DocumentPath   string `json:"file_path"`
	TotalFragments int    `json:"total_chunks"`
	Source         string `json:"source,omitempty"`
}

type ScoredFragment struct {
	Fragment
	Distance   float64 `json:"distance"`
	Similarity float64 `json:"similarity_score"`
}

// IngestResult reports one Add call. AlreadyIndexed is set when the
// document was present before the call and nothing was appended.
type IngestResult struct {
	Ingested       int      `json:"ingested"`
	Skipped        []string `json:"skipped,omitempty"`
	AlreadyIndexed bool     `json:"already_indexed,omitempty"`
}

type IndexStats struct {
	TotalFragments    int `json:"total_fragments"`
	DistinctDocuments int `json:"distinct_documents"`
	Dimension         int `json:"dimension"`
}

// SimilarityFromDistance maps a distance onto a monotonic ranking score.
func SimilarityFromDistance(distance float64) float64 {
	return 1 / (1 + distance)
}
