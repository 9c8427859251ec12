package knowledge

import (
	"context"
	"fmt"
	"log"
	"strings"
	"unicode"
	"unicode/utf8"

	"concierge-api/internal/domain/entity"
	"concierge-api/internal/domain/repository"
)

const minQueryLength = 2

// Search answers a natural-language question against one hotel's knowledge.
// The embedding and vector search run under one overall timeout; a slow
// embedding backend is treated the same as a failed one and degrades to
// keyword search. Store failures are hard errors, nothing exists below the
// keyword fallback.
func (s *Service) Search(ctx context.Context, params entity.SearchParams) (*SearchOutcome, error) {
	query := strings.TrimSpace(params.Query)
	if utf8.RuneCountInString(query) < minQueryLength {
		return nil, fmt.Errorf("%w: query must be at least %d characters", entity.ErrValidation, minQueryLength)
	}
	if params.HotelID == "" {
		return nil, fmt.Errorf("%w: hotel id is required", entity.ErrValidation)
	}

	limit := params.Limit
	if limit <= 0 {
		limit = s.topK
	}
	threshold := s.threshold
	if params.Threshold != nil {
		threshold = *params.Threshold
	}

	docIDs, searchType := resolveScope(params)

	qctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	vectors, err := s.embedder.EmbedTexts(qctx, []string{query})
	if err != nil {
		log.Printf("query embedding failed, falling back to keyword search: %v", err)
		return s.keywordFallback(ctx, params.HotelID, query, docIDs, limit)
	}

	chunks, err := s.chunkRepo.SearchSimilar(qctx, repository.ChunkVectorQuery{
		Embedding:   vectors[0],
		HotelID:     params.HotelID,
		DocumentIDs: docIDs,
		Model:       s.embedder.Model(),
		Threshold:   threshold,
		Limit:       limit,
	})
	if err != nil {
		if qctx.Err() != nil {
			log.Printf("vector search timed out, falling back to keyword search: %v", err)
			return s.keywordFallback(ctx, params.HotelID, query, docIDs, limit)
		}
		return nil, err
	}

	results := make([]entity.SearchResult, 0, len(chunks))
	for _, chunk := range chunks {
		results = append(results, entity.SearchResult{
			Kind:       entity.ResultKindChunk,
			DocumentID: chunk.DocumentID,
			ChunkID:    chunk.ID,
			ChunkIndex: chunk.ChunkIndex,
			Title:      chunk.DocumentTitle,
			Excerpt:    excerpt(chunk.Content, excerptLength),
			Similarity: chunk.Similarity,
			FileType:   chunk.FileType,
		})
	}

	// documents ingested before chunk-level indexing (or too small to
	// chunk) only carry a document-level vector; try that before giving up
	if len(results) == 0 {
		matches, err := s.docRepo.SearchByEmbedding(qctx, repository.DocumentVectorQuery{
			Embedding:   vectors[0],
			HotelID:     params.HotelID,
			DocumentIDs: docIDs,
			Model:       s.embedder.Model(),
			Threshold:   threshold,
			Limit:       limit,
		})
		if err != nil {
			if qctx.Err() != nil {
				return s.keywordFallback(ctx, params.HotelID, query, docIDs, limit)
			}
			return nil, err
		}
		for _, match := range matches {
			content := match.Description
			if match.Content != nil && *match.Content != "" {
				content = *match.Content
			}
			results = append(results, entity.SearchResult{
				Kind:       entity.ResultKindDocument,
				DocumentID: match.ID,
				Title:      match.Title,
				Excerpt:    excerpt(content, excerptLength),
				Similarity: match.Similarity,
				FileType:   match.FileType,
			})
		}
	}

	return formatOutcome(searchType, results), nil
}

// keywordFallback is the non-semantic path: terms of three or more
// characters matched against titles and descriptions, newest first. It is
// still hotel-scoped; tenant isolation survives degraded search.
func (s *Service) keywordFallback(ctx context.Context, hotelID, query string, docIDs []string, limit int) (*SearchOutcome, error) {
	terms := keywordTerms(query)
	if len(terms) == 0 {
		return formatOutcome(entity.SearchTypeKeywordFallback, nil), nil
	}

	docs, err := s.docRepo.KeywordSearch(ctx, hotelID, terms, docIDs, limit)
	if err != nil {
		return nil, err
	}

	results := make([]entity.SearchResult, 0, len(docs))
	for _, doc := range docs {
		content := doc.Description
		if content == "" && doc.Content != nil {
			content = *doc.Content
		}
		results = append(results, entity.SearchResult{
			Kind:       entity.ResultKindKeyword,
			DocumentID: doc.ID,
			Title:      doc.Title,
			Excerpt:    excerpt(content, excerptLength),
			FileType:   doc.FileType,
		})
	}

	return formatOutcome(entity.SearchTypeKeywordFallback, results), nil
}

// resolveScope picks the document filter. A single document id is the most
// specific scope and takes precedence over a document id set.
func resolveScope(params entity.SearchParams) ([]string, entity.SearchType) {
	if params.DocumentID != "" {
		return []string{params.DocumentID}, entity.SearchTypeSingleDocument
	}
	if len(params.DocumentIDs) > 0 {
		return params.DocumentIDs, entity.SearchTypeMultipleDocuments
	}
	return nil, entity.SearchTypeAllDocuments
}

// keywordTerms tokenizes a query into lowercase terms of at least three
// characters, deduplicated, input order preserved.
func keywordTerms(query string) []string {
	fields := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	seen := make(map[string]struct{}, len(fields))
	var terms []string
	for _, f := range fields {
		if utf8.RuneCountInString(f) < 3 {
			continue
		}
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		terms = append(terms, f)
	}
	return terms
}
