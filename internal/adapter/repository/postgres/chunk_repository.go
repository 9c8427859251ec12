package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"concierge-api/internal/domain/entity"
	"concierge-api/internal/domain/repository"
)

type chunkRepository struct {
	db *sqlx.DB
}

func NewChunkRepository(db *sqlx.DB) repository.ChunkRepository {
	return &chunkRepository{db: db}
}

// ReplaceForDocument supersedes the previous chunk generation inside one
// transaction so a re-ingestion never leaves two generations behind.
// Inserts run in chunk_index order.
func (r *chunkRepository) ReplaceForDocument(ctx context.Context, documentID string, chunks []entity.DocumentChunk) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin chunk batch: %v", entity.ErrStoreUnavailable, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM document_chunks WHERE document_id = $1`, documentID); err != nil {
		return fmt.Errorf("%w: delete previous chunks: %v", entity.ErrStoreUnavailable, err)
	}

	query := `
		INSERT INTO document_chunks (id, document_id, hotel_id, chunk_index, content, embedding, embedding_model, chunk_type, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	for i := range chunks {
		chunks[i].ID = uuid.New().String()
		chunks[i].CreatedAt = time.Now()

		_, err := tx.ExecContext(ctx, query,
			chunks[i].ID,
			chunks[i].DocumentID,
			chunks[i].HotelID,
			chunks[i].ChunkIndex,
			chunks[i].Content,
			chunks[i].Embedding,
			chunks[i].EmbeddingModel,
			chunks[i].ChunkType,
			chunks[i].Metadata,
			chunks[i].CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("%w: insert chunk %d: %v", entity.ErrStoreUnavailable, chunks[i].ChunkIndex, err)
		}
	}

	return tx.Commit()
}

// SearchSimilar ranks chunks by cosine similarity. The hotel filter is part
// of every predicate; cross-tenant leakage is a security invariant, not an
// optimization. Equal scores break by most-recent created_at.
func (r *chunkRepository) SearchSimilar(ctx context.Context, q repository.ChunkVectorQuery) ([]entity.SimilarChunk, error) {
	args := []any{q.Embedding, q.HotelID, q.Model, q.Threshold}
	query := `
		SELECT
			dc.id,
			dc.document_id,
			dc.hotel_id,
			dc.chunk_index,
			dc.content,
			dc.embedding_model,
			dc.chunk_type,
			dc.metadata,
			dc.created_at,
			d.title AS document_title,
			d.file_type,
			1 - (dc.embedding <=> $1) AS similarity
		FROM document_chunks dc
		INNER JOIN documents d ON dc.document_id = d.id
		WHERE dc.hotel_id = $2
		AND dc.embedding_model = $3
		AND (1 - (dc.embedding <=> $1)) >= $4
	`
	if len(q.DocumentIDs) > 0 {
		args = append(args, q.DocumentIDs)
		query += fmt.Sprintf(" AND dc.document_id = ANY($%d::uuid[])", len(args))
	}
	args = append(args, q.Limit)
	query += fmt.Sprintf(" ORDER BY dc.embedding <=> $1, dc.created_at DESC LIMIT $%d", len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: chunk vector search: %v", entity.ErrStoreUnavailable, err)
	}
	defer rows.Close()

	var chunks []entity.SimilarChunk
	for rows.Next() {
		var chunk entity.SimilarChunk
		err := rows.Scan(
			&chunk.ID,
			&chunk.DocumentID,
			&chunk.HotelID,
			&chunk.ChunkIndex,
			&chunk.Content,
			&chunk.EmbeddingModel,
			&chunk.ChunkType,
			&chunk.Metadata,
			&chunk.CreatedAt,
			&chunk.DocumentTitle,
			&chunk.FileType,
			&chunk.Similarity,
		)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, chunk)
	}

	return chunks, rows.Err()
}

// DeleteByDocumentID deletes all chunks belonging to the document
func (r *chunkRepository) DeleteByDocumentID(ctx context.Context, documentID string) error {
	query := `DELETE FROM document_chunks WHERE document_id = $1`
	_, err := r.db.ExecContext(ctx, query, documentID)
	return err
}
