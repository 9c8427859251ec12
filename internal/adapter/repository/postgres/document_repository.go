package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pgvector/pgvector-go"

	"concierge-api/internal/domain/entity"
	"concierge-api/internal/domain/repository"
)

type documentRepository struct {
	db *sqlx.DB
}

func NewDocumentRepository(db *sqlx.DB) repository.DocumentRepository {
	return &documentRepository{db: db}
}

// create document
func (r *documentRepository) Create(ctx context.Context, doc *entity.Document) error {
	if doc.ID == "" {
		doc.ID = uuid.New().String()
	}
	doc.CreatedAt = time.Now()
	doc.UpdatedAt = time.Now()
	doc.Status = entity.StatusUploaded

	query := `
		INSERT INTO documents (id, hotel_id, uploader_id, title, description, file_type, status, processed, degraded, total_chunks, storage_path, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err := r.db.ExecContext(ctx, query,
		doc.ID, doc.HotelID, doc.UploaderID, doc.Title, doc.Description, doc.FileType,
		doc.Status, doc.Processed, doc.Degraded, doc.TotalChunks, doc.StoragePath,
		doc.CreatedAt, doc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("%w: insert document: %v", entity.ErrStoreUnavailable, err)
	}
	return nil
}

// find document by id, scoped to its hotel
func (r *documentRepository) FindByID(ctx context.Context, id, hotelID string) (*entity.Document, error) {
	var doc entity.Document
	query := `SELECT * FROM documents WHERE id = $1 AND hotel_id = $2`
	err := r.db.GetContext(ctx, &doc, query, id, hotelID)
	if err == sql.ErrNoRows {
		return nil, entity.ErrDocumentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: find document: %v", entity.ErrStoreUnavailable, err)
	}
	return &doc, nil
}

// list documents for one hotel
func (r *documentRepository) List(ctx context.Context, hotelID string, page, limit int) ([]entity.Document, int, error) {
	offset := (page - 1) * limit

	var docs []entity.Document
	query := `SELECT * FROM documents WHERE hotel_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`
	if err := r.db.SelectContext(ctx, &docs, query, hotelID, limit, offset); err != nil {
		return nil, 0, fmt.Errorf("%w: list documents: %v", entity.ErrStoreUnavailable, err)
	}

	var total int
	query = `SELECT COUNT(*) FROM documents WHERE hotel_id = $1`
	if err := r.db.GetContext(ctx, &total, query, hotelID); err != nil {
		return nil, 0, fmt.Errorf("%w: count documents: %v", entity.ErrStoreUnavailable, err)
	}

	return docs, total, nil
}

// ClaimForProcessing is a compare-and-swap on status; the row is only
// transitioned when it is still in the expected state.
func (r *documentRepository) ClaimForProcessing(ctx context.Context, id string, from, to entity.DocumentStatus) (bool, error) {
	query := `UPDATE documents SET status = $1, updated_at = NOW() WHERE id = $2 AND status = $3`
	res, err := r.db.ExecContext(ctx, query, to, id, from)
	if err != nil {
		return false, fmt.Errorf("%w: claim document: %v", entity.ErrStoreUnavailable, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

// update status
func (r *documentRepository) UpdateStatus(ctx context.Context, id string, status entity.DocumentStatus) error {
	query := `UPDATE documents SET status = $1, updated_at = NOW() WHERE id = $2`
	_, err := r.db.ExecContext(ctx, query, status, id)
	return err
}

// store extracted text
func (r *documentRepository) UpdateContent(ctx context.Context, id, content string) error {
	query := `UPDATE documents SET content = $1, updated_at = NOW() WHERE id = $2`
	_, err := r.db.ExecContext(ctx, query, content, id)
	return err
}

// store the whole-document embedding with its model tag
func (r *documentRepository) SetEmbedding(ctx context.Context, id string, embedding pgvector.Vector, model string) error {
	query := `UPDATE documents SET embedding = $1, embedding_model = $2, updated_at = NOW() WHERE id = $3`
	_, err := r.db.ExecContext(ctx, query, embedding, model, id)
	return err
}

// MarkProcessed is the terminal transition; processed never reverts.
func (r *documentRepository) MarkProcessed(ctx context.Context, id string, totalChunks int, degraded bool, reason string) error {
	var reasonVal any
	if reason != "" {
		reasonVal = reason
	}
	query := `
		UPDATE documents
		SET status = $1, processed = TRUE, degraded = $2, degraded_reason = $3, total_chunks = $4, updated_at = NOW()
		WHERE id = $5
	`
	_, err := r.db.ExecContext(ctx, query, entity.StatusProcessed, degraded, reasonVal, totalChunks, id)
	return err
}

// delete document; chunks go with it via ON DELETE CASCADE
func (r *documentRepository) Delete(ctx context.Context, id, hotelID string) error {
	query := `DELETE FROM documents WHERE id = $1 AND hotel_id = $2`
	res, err := r.db.ExecContext(ctx, query, id, hotelID)
	if err != nil {
		return fmt.Errorf("%w: delete document: %v", entity.ErrStoreUnavailable, err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return entity.ErrDocumentNotFound
	}
	return nil
}

// FindUnprocessed lists documents that never reached the terminal state,
// so ingestion can re-enqueue them after a restart.
func (r *documentRepository) FindUnprocessed(ctx context.Context) ([]entity.Document, error) {
	var docs []entity.Document
	query := `SELECT * FROM documents WHERE processed = FALSE ORDER BY created_at ASC`
	if err := r.db.SelectContext(ctx, &docs, query); err != nil {
		return nil, fmt.Errorf("%w: find unprocessed: %v", entity.ErrStoreUnavailable, err)
	}
	return docs, nil
}

// KeywordSearch is the non-semantic fallback: any term matching title or
// description, newest first. No similarity score exists on this path.
func (r *documentRepository) KeywordSearch(ctx context.Context, hotelID string, terms []string, documentIDs []string, limit int) ([]entity.Document, error) {
	if len(terms) == 0 {
		return nil, nil
	}

	args := []any{hotelID}
	var likes []string
	for _, term := range terms {
		args = append(args, "%"+term+"%")
		p := len(args)
		likes = append(likes, fmt.Sprintf("title ILIKE $%d OR description ILIKE $%d", p, p))
	}

	query := `SELECT * FROM documents WHERE hotel_id = $1 AND (` + strings.Join(likes, " OR ") + `)`
	if len(documentIDs) > 0 {
		args = append(args, documentIDs)
		query += fmt.Sprintf(" AND id = ANY($%d::uuid[])", len(args))
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", len(args))

	var docs []entity.Document
	if err := r.db.SelectContext(ctx, &docs, query, args...); err != nil {
		return nil, fmt.Errorf("%w: keyword search: %v", entity.ErrStoreUnavailable, err)
	}
	return docs, nil
}

// SearchByEmbedding ranks whole-document embeddings by cosine similarity.
// Used when chunk-level search comes back empty (old ingests stored only a
// document-level vector).
func (r *documentRepository) SearchByEmbedding(ctx context.Context, q repository.DocumentVectorQuery) ([]entity.DocumentMatch, error) {
	args := []any{q.Embedding, q.HotelID, q.Model, q.Threshold}
	query := `
		SELECT *, 1 - (embedding <=> $1) AS similarity
		FROM documents
		WHERE hotel_id = $2
		AND embedding IS NOT NULL
		AND embedding_model = $3
		AND (1 - (embedding <=> $1)) >= $4
	`
	if len(q.DocumentIDs) > 0 {
		args = append(args, q.DocumentIDs)
		query += fmt.Sprintf(" AND id = ANY($%d::uuid[])", len(args))
	}
	args = append(args, q.Limit)
	query += fmt.Sprintf(" ORDER BY embedding <=> $1, created_at DESC LIMIT $%d", len(args))

	var matches []entity.DocumentMatch
	if err := r.db.SelectContext(ctx, &matches, query, args...); err != nil {
		return nil, fmt.Errorf("%w: document vector search: %v", entity.ErrStoreUnavailable, err)
	}
	return matches, nil
}
