package knowledge

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"

	"concierge-api/internal/domain/entity"
	"concierge-api/internal/domain/repository"
)

// EmbeddingService maps texts to fixed-dimension normalized vectors. The
// same instance serves indexing and querying; Model() tags every stored
// vector so vectors from different model versions never mix in one search.
type EmbeddingService interface {
	EmbedTexts(ctx context.Context, texts []string) ([]pgvector.Vector, error)
	Model() string
	Dimension() int
}

// documents longer than this embed only their head at document level;
// chunk-level vectors cover the rest
const docEmbedLimit = 8000

type Config struct {
	ChunkSize    int
	ChunkOverlap int
	TopK         int
	Threshold    float64
	QueryTimeout time.Duration
	QueueSize    int
	StorageDir   string
}

type Service struct {
	docRepo   repository.DocumentRepository
	chunkRepo repository.ChunkRepository
	embedder  EmbeddingService
	extractor *TextExtractor
	chunker   *Chunker

	topK         int
	threshold    float64
	queryTimeout time.Duration
	storageDir   string

	jobs chan ingestJob
	wg   sync.WaitGroup
}

type ingestJob struct {
	documentID string
	hotelID    string
	title      string
	fileType   string
	data       []byte
	reprocess  bool
}

func NewService(
	docRepo repository.DocumentRepository,
	chunkRepo repository.ChunkRepository,
	embedder EmbeddingService,
	cfg Config,
) *Service {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	return &Service{
		docRepo:      docRepo,
		chunkRepo:    chunkRepo,
		embedder:     embedder,
		extractor:    NewTextExtractor(),
		chunker:      NewChunker(cfg.ChunkSize, cfg.ChunkOverlap),
		topK:         cfg.TopK,
		threshold:    cfg.Threshold,
		queryTimeout: cfg.QueryTimeout,
		storageDir:   cfg.StorageDir,
		jobs:         make(chan ingestJob, cfg.QueueSize),
	}
}

// Start launches the ingestion workers consuming the bounded job queue.
func (s *Service) Start(workers int) {
	if workers <= 0 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			for job := range s.jobs {
				s.process(job)
			}
		}()
	}
}

// Stop closes the queue and waits for in-flight jobs to drain.
func (s *Service) Stop() {
	close(s.jobs)
	s.wg.Wait()
}

type UploadInput struct {
	HotelID     string
	UploaderID  string
	Title       string
	Description string
	FileName    string
	FileType    string
	Data        []byte
}

// Upload persists the document row and raw file, acknowledges immediately,
// and hands processing to the worker pool. Callers observe completion via
// the processed flag, never synchronously.
func (s *Service) Upload(ctx context.Context, in UploadInput) (*entity.Document, error) {
	if in.HotelID == "" {
		return nil, fmt.Errorf("%w: hotel id is required", entity.ErrValidation)
	}
	if len(in.Data) == 0 {
		return nil, fmt.Errorf("%w: file is empty", entity.ErrValidation)
	}
	title := in.Title
	if title == "" {
		title = strings.TrimSuffix(in.FileName, filepath.Ext(in.FileName))
	}

	// browsers often declare application/octet-stream; trust the filename
	// extension whenever the declared type has no extractor
	fileType := NormalizeFileType(in.FileType)
	if !SupportedFileType(fileType) {
		if ext := NormalizeFileType(filepath.Ext(in.FileName)); SupportedFileType(ext) {
			fileType = ext
		}
	}

	doc := &entity.Document{
		ID:          uuid.New().String(),
		HotelID:     in.HotelID,
		UploaderID:  in.UploaderID,
		Title:       title,
		Description: in.Description,
		FileType:    fileType,
	}
	doc.StoragePath = filepath.Join(s.storageDir, doc.ID+"."+fileType)

	if err := os.MkdirAll(s.storageDir, 0o755); err != nil {
		return nil, fmt.Errorf("save upload: %w", err)
	}
	if err := os.WriteFile(doc.StoragePath, in.Data, 0o644); err != nil {
		return nil, fmt.Errorf("save upload: %w", err)
	}

	if err := s.docRepo.Create(ctx, doc); err != nil {
		os.Remove(doc.StoragePath)
		return nil, err
	}

	if err := s.enqueue(ctx, ingestJob{
		documentID: doc.ID,
		hotelID:    doc.HotelID,
		title:      doc.Title,
		fileType:   doc.FileType,
		data:       in.Data,
	}); err != nil {
		return nil, err
	}

	return doc, nil
}

// Reprocess re-runs the whole pipeline for an existing document,
// superseding its previous chunk generation.
func (s *Service) Reprocess(ctx context.Context, documentID, hotelID string) error {
	if hotelID == "" {
		return fmt.Errorf("%w: hotel id is required", entity.ErrValidation)
	}
	doc, err := s.docRepo.FindByID(ctx, documentID, hotelID)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(doc.StoragePath)
	if err != nil {
		return fmt.Errorf("%w: stored file unavailable: %v", entity.ErrExtractionFailed, err)
	}

	return s.enqueue(ctx, ingestJob{
		documentID: doc.ID,
		hotelID:    doc.HotelID,
		title:      doc.Title,
		fileType:   doc.FileType,
		data:       data,
		reprocess:  doc.Processed,
	})
}

// Recover re-enqueues documents that never reached the terminal state, so a
// crash mid-pipeline does not leave uploads stuck pending.
func (s *Service) Recover(ctx context.Context) error {
	docs, err := s.docRepo.FindUnprocessed(ctx)
	if err != nil {
		return err
	}

	for _, doc := range docs {
		data, err := os.ReadFile(doc.StoragePath)
		if err != nil {
			log.Printf("recover: upload artifact missing for document %s: %v", doc.ID, err)
			if err := s.docRepo.MarkProcessed(ctx, doc.ID, 0, true, "upload artifact missing"); err != nil {
				log.Printf("recover: mark document %s processed: %v", doc.ID, err)
			}
			continue
		}
		// a crashed run may have left the row mid-pipeline; reset the
		// status so the claim can succeed again
		if doc.Status != entity.StatusUploaded {
			if err := s.docRepo.UpdateStatus(ctx, doc.ID, entity.StatusUploaded); err != nil {
				log.Printf("recover: reset document %s: %v", doc.ID, err)
				continue
			}
		}
		if err := s.enqueue(ctx, ingestJob{
			documentID: doc.ID,
			hotelID:    doc.HotelID,
			title:      doc.Title,
			fileType:   doc.FileType,
			data:       data,
		}); err != nil {
			return err
		}
	}

	if len(docs) > 0 {
		log.Printf("recover: re-enqueued %d unprocessed documents", len(docs))
	}
	return nil
}

func (s *Service) enqueue(ctx context.Context, job ingestJob) error {
	select {
	case s.jobs <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// process runs one document through extraction, chunking, and embedding.
// Every path terminates in processed; failures degrade, they never leave
// the document stuck pending.
func (s *Service) process(job ingestJob) {
	ctx := context.Background()

	// on a reprocess job the previous chunk generation survives every
	// failure before the replace, so a degraded outcome must keep
	// reporting it
	priorChunks := 0

	defer func() {
		if r := recover(); r != nil {
			log.Printf("panic processing document %s: %v", job.documentID, r)
			if err := s.docRepo.MarkProcessed(ctx, job.documentID, priorChunks, true, "processing panic"); err != nil {
				log.Printf("mark document %s processed after panic: %v", job.documentID, err)
			}
		}
	}()

	from := entity.StatusUploaded
	if job.reprocess {
		from = entity.StatusProcessed
	}
	claimed, err := s.docRepo.ClaimForProcessing(ctx, job.documentID, from, entity.StatusExtracting)
	if err != nil {
		log.Printf("claim document %s: %v", job.documentID, err)
		return
	}
	if !claimed {
		// a concurrent worker (or an earlier retry) owns this document
		log.Printf("document %s already claimed, skipping", job.documentID)
		return
	}
	if job.reprocess {
		if doc, err := s.docRepo.FindByID(ctx, job.documentID, job.hotelID); err == nil {
			priorChunks = doc.TotalChunks
		}
	}

	text, err := s.extractor.Extract(job.data, job.fileType)
	if err != nil {
		log.Printf("extract document %s: %v", job.documentID, err)
		s.finish(ctx, job.documentID, priorChunks, true, err.Error())
		return
	}
	if err := s.docRepo.UpdateContent(ctx, job.documentID, text); err != nil {
		log.Printf("store content for document %s: %v", job.documentID, err)
	}
	log.Printf("extracted %d characters from document %s", len(text), job.documentID)

	if err := s.docRepo.UpdateStatus(ctx, job.documentID, entity.StatusChunking); err != nil {
		log.Printf("update status for document %s: %v", job.documentID, err)
	}
	pieces := s.chunker.Chunk(text)
	if len(pieces) == 0 {
		s.finish(ctx, job.documentID, priorChunks, true, "no text content")
		return
	}
	log.Printf("generated %d chunks from document %s", len(pieces), job.documentID)

	if err := s.docRepo.UpdateStatus(ctx, job.documentID, entity.StatusEmbedding); err != nil {
		log.Printf("update status for document %s: %v", job.documentID, err)
	}

	// first input is the document head for the document-level vector, the
	// rest are the chunk contents
	docText := truncate(text, docEmbedLimit)
	inputs := make([]string, 0, len(pieces)+1)
	inputs = append(inputs, docText)
	for _, p := range pieces {
		inputs = append(inputs, p.Content)
	}

	vectors, err := s.embedder.EmbedTexts(ctx, inputs)
	if err != nil {
		log.Printf("embed document %s: %v", job.documentID, err)
		s.finish(ctx, job.documentID, priorChunks, true, "embedding unavailable")
		return
	}

	model := s.embedder.Model()
	if err := s.docRepo.SetEmbedding(ctx, job.documentID, vectors[0], model); err != nil {
		log.Printf("store document embedding for %s: %v", job.documentID, err)
	}

	chunks := make([]entity.DocumentChunk, 0, len(pieces))
	for i, p := range pieces {
		metadata, _ := json.Marshal(entity.ChunkMetadata{
			DocumentTitle: job.title,
			CharCount:     p.CharCount,
			WordCount:     p.WordCount,
		})
		chunks = append(chunks, entity.DocumentChunk{
			DocumentID:     job.documentID,
			HotelID:        job.hotelID,
			ChunkIndex:     p.Index,
			Content:        p.Content,
			Embedding:      vectors[i+1],
			EmbeddingModel: model,
			ChunkType:      p.Type,
			Metadata:       metadata,
		})
	}

	if err := s.chunkRepo.ReplaceForDocument(ctx, job.documentID, chunks); err != nil {
		// the replace is transactional, so the previous generation is intact
		log.Printf("store chunks for document %s: %v", job.documentID, err)
		s.finish(ctx, job.documentID, priorChunks, true, "chunk storage failed")
		return
	}

	s.finish(ctx, job.documentID, len(chunks), false, "")
	log.Printf("document %s processed with %d chunks", job.documentID, len(chunks))
}

// truncate cuts text to at most limit bytes without splitting a rune.
func truncate(text string, limit int) string {
	if len(text) <= limit {
		return text
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}

func (s *Service) finish(ctx context.Context, documentID string, totalChunks int, degraded bool, reason string) {
	if err := s.docRepo.MarkProcessed(ctx, documentID, totalChunks, degraded, reason); err != nil {
		log.Printf("mark document %s processed: %v", documentID, err)
	}
}

// ListDocuments returns one hotel's documents, newest first.
func (s *Service) ListDocuments(ctx context.Context, hotelID string, page, limit int) ([]entity.Document, int, error) {
	if hotelID == "" {
		return nil, 0, fmt.Errorf("%w: hotel id is required", entity.ErrValidation)
	}
	return s.docRepo.List(ctx, hotelID, page, limit)
}

// GetDocument returns a document scoped to its hotel.
func (s *Service) GetDocument(ctx context.Context, documentID, hotelID string) (*entity.Document, error) {
	if hotelID == "" {
		return nil, fmt.Errorf("%w: hotel id is required", entity.ErrValidation)
	}
	return s.docRepo.FindByID(ctx, documentID, hotelID)
}

// DeleteDocument removes a document, its chunks, and its stored file.
func (s *Service) DeleteDocument(ctx context.Context, documentID, hotelID string) error {
	if hotelID == "" {
		return fmt.Errorf("%w: hotel id is required", entity.ErrValidation)
	}
	doc, err := s.docRepo.FindByID(ctx, documentID, hotelID)
	if err != nil {
		return err
	}

	if err := s.chunkRepo.DeleteByDocumentID(ctx, documentID); err != nil {
		return err
	}
	if err := s.docRepo.Delete(ctx, documentID, hotelID); err != nil {
		return err
	}

	if doc.StoragePath != "" {
		os.Remove(doc.StoragePath)
	}
	return nil
}
