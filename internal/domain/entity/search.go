package entity

type SearchType string

const (
	SearchTypeSingleDocument    SearchType = "single_document"
	SearchTypeMultipleDocuments SearchType = "multiple_documents"
	SearchTypeAllDocuments      SearchType = "all_documents"
	SearchTypeKeywordFallback   SearchType = "keyword_fallback"
)

// ResultKind discriminates how a search result was matched so formatting can
// be handled exhaustively instead of probing optional fields.
type ResultKind string

const (
	ResultKindChunk    ResultKind = "chunk"
	ResultKindDocument ResultKind = "document"
	ResultKindKeyword  ResultKind = "keyword"
)

// SearchParams is a single retrieval request. HotelID is mandatory; the
// document scope is optional and DocumentID takes precedence over
// DocumentIDs when both are set.
type SearchParams struct {
	Query       string
	HotelID     string
	DocumentID  string
	DocumentIDs []string
	// Threshold is the minimum similarity; nil means the configured default.
	Threshold *float64
	Limit     int
}

type SearchResult struct {
	Kind       ResultKind `json:"kind"`
	DocumentID string     `json:"documentId"`
	ChunkID    string     `json:"chunkId,omitempty"`
	ChunkIndex int        `json:"chunkIndex,omitempty"`
	Title      string     `json:"title"`
	Excerpt    string     `json:"excerpt"`
	Similarity float64    `json:"similarity"`
	FileType   string     `json:"fileType"`
}
