package repository

import (
	"context"

	"github.com/pgvector/pgvector-go"

	"concierge-api/internal/domain/entity"
)

// ChunkVectorQuery searches chunk embeddings within one hotel. The model tag
// keeps vectors produced by different embedding model versions from ever
// meeting in one similarity comparison.
type ChunkVectorQuery struct {
	Embedding   pgvector.Vector
	HotelID     string
	DocumentIDs []string
	Model       string
	Threshold   float64
	Limit       int
}

type ChunkRepository interface {
	// ReplaceForDocument supersedes any previous chunk generation for the
	// document (delete-then-insert), preserving chunk_index order.
	ReplaceForDocument(ctx context.Context, documentID string, chunks []entity.DocumentChunk) error
	SearchSimilar(ctx context.Context, q ChunkVectorQuery) ([]entity.SimilarChunk, error)
	DeleteByDocumentID(ctx context.Context, documentID string) error
}
