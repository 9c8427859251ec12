package entity

import (
	"time"

	"github.com/pgvector/pgvector-go"
)

type ChunkType string

const (
	ChunkTypeSection    ChunkType = "section"
	ChunkTypeParagraph  ChunkType = "paragraph"
	ChunkTypeSubsection ChunkType = "subsection"
)

type ChunkMetadata struct {
	DocumentTitle string `json:"documentTitle"`
	CharCount     int    `json:"charCount"`
	WordCount     int    `json:"wordCount"`
}

type DocumentChunk struct {
	ID             string          `db:"id" json:"id"`
	DocumentID     string          `db:"document_id" json:"documentId"`
	HotelID        string          `db:"hotel_id" json:"hotelId"`
	ChunkIndex     int             `db:"chunk_index" json:"chunkIndex"`
	Content        string          `db:"content" json:"content"`
	Embedding      pgvector.Vector `db:"embedding" json:"-"`
	EmbeddingModel string          `db:"embedding_model" json:"-"`
	ChunkType      ChunkType       `db:"chunk_type" json:"chunkType"`
	Metadata       []byte          `db:"metadata" json:"metadata"`
	CreatedAt      time.Time       `db:"created_at" json:"createdAt"`
}

// SimilarChunk is a chunk ranked by embedding similarity, joined with the
// title and file type of its parent document.
type SimilarChunk struct {
	DocumentChunk
	DocumentTitle string  `db:"document_title" json:"documentTitle"`
	FileType      string  `db:"file_type" json:"fileType"`
	Similarity    float64 `db:"similarity" json:"similarity"`
}
