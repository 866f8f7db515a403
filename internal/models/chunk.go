package models

// ChunkMetadata carries source-file information copied onto every chunk so
// retrieval results can name their sources without a catalog lookup.
type ChunkMetadata struct {
	FileName string `json:"file_name"`
	FilePath string `json:"file_path,omitempty"`
	FileType string `json:"file_type,omitempty"`
	Encoding string `json:"encoding,omitempty"`
}

// Chunk is a bounded span of document text, the unit indexed for similarity
// search. Chunks are ephemeral: rebuilt from documents on every index build,
// never persisted independently of the index snapshot.
type Chunk struct {
	ID         string        `json:"id"`
	DocumentID string        `json:"document_id"`
	Text       string        `json:"text"`
	Seq        int           `json:"seq"`
	Metadata   ChunkMetadata `json:"metadata"`
}

// ScoredChunk is a chunk paired with its similarity score for one query.
type ScoredChunk struct {
	Chunk Chunk   `json:"chunk"`
	Score float64 `json:"score"`
}

// RetrievalResult is the unit returned (and cached) by the retrieval service:
// the ranked chunks plus a deduplicated, order-preserving list of source
// document names.
type RetrievalResult struct {
	Chunks  []ScoredChunk `json:"chunks"`
	Sources []string      `json:"sources"`
}
