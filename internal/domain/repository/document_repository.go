package repository

import (
	"context"

	"github.com/pgvector/pgvector-go"

	"concierge-api/internal/domain/entity"
)

// DocumentVectorQuery searches whole-document embeddings within one hotel.
type DocumentVectorQuery struct {
	Embedding   pgvector.Vector
	HotelID     string
	DocumentIDs []string
	Model       string
	Threshold   float64
	Limit       int
}

type DocumentRepository interface {
	Create(ctx context.Context, doc *entity.Document) error
	FindByID(ctx context.Context, id, hotelID string) (*entity.Document, error)
	List(ctx context.Context, hotelID string, page, limit int) ([]entity.Document, int, error)

	// ClaimForProcessing atomically moves a document from one status to
	// another and reports whether this caller won the transition. A retry
	// racing the original loses the claim and must skip.
	ClaimForProcessing(ctx context.Context, id string, from, to entity.DocumentStatus) (bool, error)
	UpdateStatus(ctx context.Context, id string, status entity.DocumentStatus) error
	UpdateContent(ctx context.Context, id, content string) error
	SetEmbedding(ctx context.Context, id string, embedding pgvector.Vector, model string) error

	// MarkProcessed is the single terminal transition. It sets processed
	// exactly once and records whether the result is degraded.
	MarkProcessed(ctx context.Context, id string, totalChunks int, degraded bool, reason string) error

	Delete(ctx context.Context, id, hotelID string) error
	FindUnprocessed(ctx context.Context) ([]entity.Document, error)

	// KeywordSearch matches any of the terms against title or description,
	// hotel-scoped, newest first.
	KeywordSearch(ctx context.Context, hotelID string, terms []string, documentIDs []string, limit int) ([]entity.Document, error)
	SearchByEmbedding(ctx context.Context, q DocumentVectorQuery) ([]entity.DocumentMatch, error)
}
