package knowledge

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"

	"concierge-api/internal/domain/entity"
	"concierge-api/internal/domain/repository"
)

// stubEmbedder is a deterministic bag-of-words embedder: each distinct token
// owns one dimension, assigned in order of first appearance, and vectors are
// L2-normalized. Texts sharing words get high cosine similarity, which is
// enough to exercise ranking, and the vector space is stable across calls on
// the same instance like a real shared model session.
type stubEmbedder struct {
	mu    sync.Mutex
	vocab map[string]int
	fail  bool
	slow  time.Duration
	calls int
}

func (e *stubEmbedder) Model() string  { return "stub-embedder-v1" }
func (e *stubEmbedder) Dimension() int { return 256 }

func (e *stubEmbedder) EmbedTexts(ctx context.Context, texts []string) ([]pgvector.Vector, error) {
	e.mu.Lock()
	e.calls++
	fail, slow := e.fail, e.slow
	e.mu.Unlock()

	if slow > 0 {
		select {
		case <-time.After(slow):
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", entity.ErrEmbeddingUnavailable, ctx.Err())
		}
	}
	if fail {
		return nil, fmt.Errorf("%w: backend down", entity.ErrEmbeddingUnavailable)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.vocab == nil {
		e.vocab = make(map[string]int)
	}

	vectors := make([]pgvector.Vector, len(texts))
	for i, text := range texts {
		v := make([]float32, e.Dimension())
		for _, tok := range strings.Fields(strings.ToLower(text)) {
			tok = strings.Trim(tok, ".,!?:;\"'")
			if tok == "" {
				continue
			}
			id, ok := e.vocab[tok]
			if !ok {
				id = len(e.vocab) % e.Dimension()
				e.vocab[tok] = id
			}
			v[id]++
		}
		var sum float64
		for _, x := range v {
			sum += float64(x) * float64(x)
		}
		if sum > 0 {
			norm := math.Sqrt(sum)
			for j := range v {
				v[j] = float32(float64(v[j]) / norm)
			}
		}
		vectors[i] = pgvector.NewVector(v)
	}
	return vectors, nil
}

type fakeDocumentRepo struct {
	mu   sync.Mutex
	docs map[string]*entity.Document
	down bool
}

func newFakeDocumentRepo() *fakeDocumentRepo {
	return &fakeDocumentRepo{docs: make(map[string]*entity.Document)}
}

func (r *fakeDocumentRepo) Create(_ context.Context, doc *entity.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.down {
		return entity.ErrStoreUnavailable
	}
	if doc.ID == "" {
		doc.ID = uuid.New().String()
	}
	doc.Status = entity.StatusUploaded
	doc.CreatedAt = time.Now()
	doc.UpdatedAt = time.Now()
	cp := *doc
	r.docs[doc.ID] = &cp
	return nil
}

func (r *fakeDocumentRepo) FindByID(_ context.Context, id, hotelID string) (*entity.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[id]
	if !ok || doc.HotelID != hotelID {
		return nil, entity.ErrDocumentNotFound
	}
	cp := *doc
	return &cp, nil
}

func (r *fakeDocumentRepo) List(_ context.Context, hotelID string, page, limit int) ([]entity.Document, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var docs []entity.Document
	for _, doc := range r.docs {
		if doc.HotelID == hotelID {
			docs = append(docs, *doc)
		}
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].CreatedAt.After(docs[j].CreatedAt) })
	return docs, len(docs), nil
}

func (r *fakeDocumentRepo) ClaimForProcessing(_ context.Context, id string, from, to entity.DocumentStatus) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[id]
	if !ok || doc.Status != from {
		return false, nil
	}
	doc.Status = to
	return true, nil
}

func (r *fakeDocumentRepo) UpdateStatus(_ context.Context, id string, status entity.DocumentStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if doc, ok := r.docs[id]; ok {
		doc.Status = status
	}
	return nil
}

func (r *fakeDocumentRepo) UpdateContent(_ context.Context, id, content string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if doc, ok := r.docs[id]; ok {
		doc.Content = &content
	}
	return nil
}

func (r *fakeDocumentRepo) SetEmbedding(_ context.Context, id string, embedding pgvector.Vector, model string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if doc, ok := r.docs[id]; ok {
		doc.Embedding = &embedding
		doc.EmbeddingModel = &model
	}
	return nil
}

func (r *fakeDocumentRepo) MarkProcessed(_ context.Context, id string, totalChunks int, degraded bool, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[id]
	if !ok {
		return entity.ErrDocumentNotFound
	}
	doc.Status = entity.StatusProcessed
	doc.Processed = true
	doc.Degraded = degraded
	doc.TotalChunks = totalChunks
	if reason != "" {
		doc.DegradedReason = &reason
	}
	return nil
}

func (r *fakeDocumentRepo) Delete(_ context.Context, id, hotelID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[id]
	if !ok || doc.HotelID != hotelID {
		return entity.ErrDocumentNotFound
	}
	delete(r.docs, id)
	return nil
}

func (r *fakeDocumentRepo) FindUnprocessed(_ context.Context) ([]entity.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var docs []entity.Document
	for _, doc := range r.docs {
		if !doc.Processed {
			docs = append(docs, *doc)
		}
	}
	return docs, nil
}

func (r *fakeDocumentRepo) KeywordSearch(_ context.Context, hotelID string, terms []string, documentIDs []string, limit int) ([]entity.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.down {
		return nil, entity.ErrStoreUnavailable
	}
	var docs []entity.Document
	for _, doc := range r.docs {
		if doc.HotelID != hotelID || !inScope(doc.ID, documentIDs) {
			continue
		}
		haystack := strings.ToLower(doc.Title + " " + doc.Description)
		for _, term := range terms {
			if strings.Contains(haystack, term) {
				docs = append(docs, *doc)
				break
			}
		}
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].CreatedAt.After(docs[j].CreatedAt) })
	if len(docs) > limit {
		docs = docs[:limit]
	}
	return docs, nil
}

func (r *fakeDocumentRepo) SearchByEmbedding(_ context.Context, q repository.DocumentVectorQuery) ([]entity.DocumentMatch, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var matches []entity.DocumentMatch
	for _, doc := range r.docs {
		if doc.HotelID != q.HotelID || doc.Embedding == nil || !inScope(doc.ID, q.DocumentIDs) {
			continue
		}
		if doc.EmbeddingModel == nil || *doc.EmbeddingModel != q.Model {
			continue
		}
		sim := cosine(q.Embedding.Slice(), doc.Embedding.Slice())
		if sim >= q.Threshold {
			matches = append(matches, entity.DocumentMatch{Document: *doc, Similarity: sim})
		}
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Similarity != matches[j].Similarity {
			return matches[i].Similarity > matches[j].Similarity
		}
		return matches[i].CreatedAt.After(matches[j].CreatedAt)
	})
	if len(matches) > q.Limit {
		matches = matches[:q.Limit]
	}
	return matches, nil
}

type fakeChunkRepo struct {
	mu     sync.Mutex
	chunks map[string][]entity.DocumentChunk
	down   bool
}

func newFakeChunkRepo() *fakeChunkRepo {
	return &fakeChunkRepo{
		chunks: make(map[string][]entity.DocumentChunk),
	}
}

func (r *fakeChunkRepo) ReplaceForDocument(_ context.Context, documentID string, chunks []entity.DocumentChunk) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.down {
		return entity.ErrStoreUnavailable
	}
	stored := make([]entity.DocumentChunk, len(chunks))
	for i, chunk := range chunks {
		chunk.ID = uuid.New().String()
		chunk.CreatedAt = time.Now()
		stored[i] = chunk
	}
	r.chunks[documentID] = stored
	return nil
}

func (r *fakeChunkRepo) SearchSimilar(_ context.Context, q repository.ChunkVectorQuery) ([]entity.SimilarChunk, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.down {
		return nil, entity.ErrStoreUnavailable
	}
	var results []entity.SimilarChunk
	for docID, chunks := range r.chunks {
		if !inScope(docID, q.DocumentIDs) {
			continue
		}
		for _, chunk := range chunks {
			if chunk.HotelID != q.HotelID || chunk.EmbeddingModel != q.Model {
				continue
			}
			sim := cosine(q.Embedding.Slice(), chunk.Embedding.Slice())
			if sim < q.Threshold {
				continue
			}
			var meta entity.ChunkMetadata
			_ = json.Unmarshal(chunk.Metadata, &meta)
			results = append(results, entity.SimilarChunk{
				DocumentChunk: chunk,
				DocumentTitle: meta.DocumentTitle,
				Similarity:    sim,
			})
		}
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Similarity != results[j].Similarity {
			return results[i].Similarity > results[j].Similarity
		}
		return results[i].CreatedAt.After(results[j].CreatedAt)
	})
	if len(results) > q.Limit {
		results = results[:q.Limit]
	}
	return results, nil
}

func (r *fakeChunkRepo) DeleteByDocumentID(_ context.Context, documentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.chunks, documentID)
	return nil
}

func inScope(id string, scope []string) bool {
	if len(scope) == 0 {
		return true
	}
	for _, s := range scope {
		if s == id {
			return true
		}
	}
	return false
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
