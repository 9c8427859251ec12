package entity

import (
	"time"

	"github.com/pgvector/pgvector-go"
)

type DocumentStatus string

const (
	StatusUploaded   DocumentStatus = "uploaded"
	StatusExtracting DocumentStatus = "extracting"
	StatusChunking   DocumentStatus = "chunking"
	StatusEmbedding  DocumentStatus = "embedding"
	StatusProcessed  DocumentStatus = "processed"
)

type Document struct {
	ID             string           `db:"id" json:"id"`
	HotelID        string           `db:"hotel_id" json:"hotelId"`
	UploaderID     string           `db:"uploader_id" json:"uploaderId"`
	Title          string           `db:"title" json:"title"`
	Description    string           `db:"description" json:"description"`
	FileType       string           `db:"file_type" json:"fileType"`
	Content        *string          `db:"content" json:"-"`
	Embedding      *pgvector.Vector `db:"embedding" json:"-"`
	EmbeddingModel *string          `db:"embedding_model" json:"-"`
	Status         DocumentStatus   `db:"status" json:"status"`
	Processed      bool             `db:"processed" json:"processed"`
	Degraded       bool             `db:"degraded" json:"degraded"`
	DegradedReason *string          `db:"degraded_reason" json:"degradedReason,omitempty"`
	TotalChunks    int              `db:"total_chunks" json:"totalChunks"`
	StoragePath    string           `db:"storage_path" json:"-"`
	CreatedAt      time.Time        `db:"created_at" json:"createdAt"`
	UpdatedAt      time.Time        `db:"updated_at" json:"updatedAt"`
}

// DocumentMatch is a document ranked by whole-document embedding similarity.
type DocumentMatch struct {
	Document
	Similarity float64 `db:"similarity" json:"similarity"`
}
