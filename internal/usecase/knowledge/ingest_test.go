package knowledge

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"concierge-api/internal/domain/entity"
)

const (
	testHotelID    = "11111111-1111-1111-1111-111111111111"
	otherHotelID   = "22222222-2222-2222-2222-222222222222"
	testUploaderID = "33333333-3333-3333-3333-333333333333"
)

func newTestService(t *testing.T, docs *fakeDocumentRepo, chunks *fakeChunkRepo, emb *stubEmbedder) *Service {
	t.Helper()
	return NewService(docs, chunks, emb, Config{
		ChunkSize:    200,
		ChunkOverlap: 8,
		TopK:         5,
		Threshold:    0.0,
		QueryTimeout: time.Second,
		QueueSize:    8,
		StorageDir:   t.TempDir(),
	})
}

// seedDocument puts an uploaded-but-unprocessed document into the fake repo
// and returns the job that would have been enqueued for it.
func seedDocument(t *testing.T, docs *fakeDocumentRepo, hotelID, title, fileType string, data []byte) ingestJob {
	t.Helper()
	doc := &entity.Document{
		HotelID:    hotelID,
		UploaderID: testUploaderID,
		Title:      title,
		FileType:   fileType,
	}
	require.NoError(t, docs.Create(context.Background(), doc))
	return ingestJob{
		documentID: doc.ID,
		hotelID:    doc.HotelID,
		title:      doc.Title,
		fileType:   doc.FileType,
		data:       data,
	}
}

func TestUpload_AcknowledgesImmediately(t *testing.T) {
	docs := newFakeDocumentRepo()
	chunks := newFakeChunkRepo()
	svc := newTestService(t, docs, chunks, &stubEmbedder{})
	svc.Start(1)
	defer svc.Stop()

	doc, err := svc.Upload(context.Background(), UploadInput{
		HotelID:    testHotelID,
		UploaderID: testUploaderID,
		Title:      "Hotel Amenities",
		FileName:   "amenities.docx",
		FileType:   "docx",
		Data:       makeDocx(t, "The pool is open from 6 AM to 10 PM."),
	})
	require.NoError(t, err)
	require.NotEmpty(t, doc.ID)
	assert.Equal(t, entity.StatusUploaded, doc.Status)
	assert.False(t, doc.Processed)

	// the upload file is persisted for crash recovery
	_, statErr := os.Stat(doc.StoragePath)
	assert.NoError(t, statErr)

	require.Eventually(t, func() bool {
		stored, err := docs.FindByID(context.Background(), doc.ID, testHotelID)
		return err == nil && stored.Processed
	}, 3*time.Second, 10*time.Millisecond)

	stored, err := docs.FindByID(context.Background(), doc.ID, testHotelID)
	require.NoError(t, err)
	assert.False(t, stored.Degraded)
	assert.Equal(t, entity.StatusProcessed, stored.Status)
}

func TestUpload_Validation(t *testing.T) {
	svc := newTestService(t, newFakeDocumentRepo(), newFakeChunkRepo(), &stubEmbedder{})

	_, err := svc.Upload(context.Background(), UploadInput{FileType: "pdf", Data: []byte("x")})
	assert.ErrorIs(t, err, entity.ErrValidation)

	_, err = svc.Upload(context.Background(), UploadInput{HotelID: testHotelID, FileType: "pdf"})
	assert.ErrorIs(t, err, entity.ErrValidation)
}

func TestUpload_OctetStreamFallsBackToExtension(t *testing.T) {
	docs := newFakeDocumentRepo()
	svc := newTestService(t, docs, newFakeChunkRepo(), &stubEmbedder{})
	svc.Start(1)
	defer svc.Stop()

	// browsers commonly send application/octet-stream for anything they
	// cannot identify; the filename still names a supported format
	doc, err := svc.Upload(context.Background(), UploadInput{
		HotelID:  testHotelID,
		FileName: "amenities.docx",
		FileType: "application/octet-stream",
		Data:     makeDocx(t, "The pool is open from 6 AM to 10 PM."),
	})
	require.NoError(t, err)
	assert.Equal(t, "docx", doc.FileType)

	require.Eventually(t, func() bool {
		stored, err := docs.FindByID(context.Background(), doc.ID, testHotelID)
		return err == nil && stored.Processed
	}, 3*time.Second, 10*time.Millisecond)

	stored, err := docs.FindByID(context.Background(), doc.ID, testHotelID)
	require.NoError(t, err)
	assert.False(t, stored.Degraded)
}

func TestTruncate_KeepsValidUTF8(t *testing.T) {
	text := strings.Repeat("ü", 50)

	for limit := 0; limit <= len(text); limit++ {
		got := truncate(text, limit)
		assert.LessOrEqual(t, len(got), limit)
		assert.True(t, utf8.ValidString(got), "limit %d must cut on a rune boundary", limit)
	}

	assert.Equal(t, "short", truncate("short", 100))
}

func TestProcess_Success(t *testing.T) {
	docs := newFakeDocumentRepo()
	chunks := newFakeChunkRepo()
	svc := newTestService(t, docs, chunks, &stubEmbedder{})

	data := makeDocx(t,
		"Hotel Amenities",
		"The pool is open from 6 AM to 10 PM.",
		"The gym is open around the clock for registered guests.",
	)
	job := seedDocument(t, docs, testHotelID, "Hotel Amenities", "docx", data)

	svc.process(job)

	doc, err := docs.FindByID(context.Background(), job.documentID, testHotelID)
	require.NoError(t, err)
	assert.True(t, doc.Processed)
	assert.False(t, doc.Degraded)
	assert.Equal(t, entity.StatusProcessed, doc.Status)
	assert.NotNil(t, doc.Content)
	require.NotNil(t, doc.Embedding, "document-level embedding is stored")
	require.NotNil(t, doc.EmbeddingModel)
	assert.Equal(t, "stub-embedder-v1", *doc.EmbeddingModel)

	stored := chunks.chunks[job.documentID]
	require.NotEmpty(t, stored)
	assert.Equal(t, doc.TotalChunks, len(stored))
	for i, chunk := range stored {
		assert.Equal(t, i, chunk.ChunkIndex, "chunk indexes are gapless and ordered")
		assert.Equal(t, testHotelID, chunk.HotelID)
		assert.Equal(t, "stub-embedder-v1", chunk.EmbeddingModel)
	}
}

func TestProcess_UnsupportedFormatIsDegradedNotStuck(t *testing.T) {
	docs := newFakeDocumentRepo()
	svc := newTestService(t, docs, newFakeChunkRepo(), &stubEmbedder{})

	job := seedDocument(t, docs, testHotelID, "Menu", "csv", []byte("a,b,c"))
	svc.process(job)

	doc, err := docs.FindByID(context.Background(), job.documentID, testHotelID)
	require.NoError(t, err)
	assert.True(t, doc.Processed, "document must never stay pending")
	assert.True(t, doc.Degraded)
	require.NotNil(t, doc.DegradedReason)
	assert.Contains(t, *doc.DegradedReason, "unsupported")
	assert.Zero(t, doc.TotalChunks)
}

func TestProcess_EmbedderDownIsDegradedNotStuck(t *testing.T) {
	docs := newFakeDocumentRepo()
	chunks := newFakeChunkRepo()
	emb := &stubEmbedder{fail: true}
	svc := newTestService(t, docs, chunks, emb)

	job := seedDocument(t, docs, testHotelID, "Spa Guide", "docx", makeDocx(t, "The sauna closes at 9 PM."))
	svc.process(job)

	doc, err := docs.FindByID(context.Background(), job.documentID, testHotelID)
	require.NoError(t, err)
	assert.True(t, doc.Processed)
	assert.True(t, doc.Degraded)
	assert.Nil(t, doc.Embedding)
	assert.Empty(t, chunks.chunks[job.documentID])
}

func TestProcess_SecondRunLosesClaim(t *testing.T) {
	docs := newFakeDocumentRepo()
	chunks := newFakeChunkRepo()
	svc := newTestService(t, docs, chunks, &stubEmbedder{})

	job := seedDocument(t, docs, testHotelID, "Amenities", "docx", makeDocx(t, "The pool is open from 6 AM to 10 PM."))

	svc.process(job)
	firstGen := append([]entity.DocumentChunk(nil), chunks.chunks[job.documentID]...)

	// a duplicate delivery of the same job must lose the status CAS and
	// leave the first generation untouched
	svc.process(job)
	assert.Equal(t, firstGen, chunks.chunks[job.documentID])
}

func TestProcess_ReingestionSupersedesChunks(t *testing.T) {
	docs := newFakeDocumentRepo()
	chunks := newFakeChunkRepo()
	svc := newTestService(t, docs, chunks, &stubEmbedder{})

	job := seedDocument(t, docs, testHotelID, "Amenities", "docx",
		makeDocx(t, "The pool is open from 6 AM to 10 PM.", "The gym never closes."))
	svc.process(job)
	firstGen := append([]entity.DocumentChunk(nil), chunks.chunks[job.documentID]...)
	require.NotEmpty(t, firstGen)

	rejob := job
	rejob.reprocess = true
	svc.process(rejob)

	secondGen := chunks.chunks[job.documentID]
	require.Len(t, secondGen, len(firstGen), "exactly one generation of chunks remains")
	for i, chunk := range secondGen {
		assert.Equal(t, i, chunk.ChunkIndex)
		assert.NotEqual(t, firstGen[i].ID, chunk.ID, "re-ingestion replaces, never edits in place")
	}

	doc, err := docs.FindByID(context.Background(), job.documentID, testHotelID)
	require.NoError(t, err)
	assert.True(t, doc.Processed)
	assert.False(t, doc.Degraded)
}

func TestProcess_DegradedReprocessKeepsChunkCount(t *testing.T) {
	docs := newFakeDocumentRepo()
	chunks := newFakeChunkRepo()
	emb := &stubEmbedder{}
	svc := newTestService(t, docs, chunks, emb)

	job := seedDocument(t, docs, testHotelID, "Amenities", "docx",
		makeDocx(t, "The pool is open from 6 AM to 10 PM.", "The gym never closes."))
	svc.process(job)

	firstGen := append([]entity.DocumentChunk(nil), chunks.chunks[job.documentID]...)
	require.NotEmpty(t, firstGen)

	// the embedder dies before the re-ingestion reaches the chunk replace,
	// so the first generation stays stored and searchable
	emb.mu.Lock()
	emb.fail = true
	emb.mu.Unlock()

	rejob := job
	rejob.reprocess = true
	svc.process(rejob)

	doc, err := docs.FindByID(context.Background(), job.documentID, testHotelID)
	require.NoError(t, err)
	assert.True(t, doc.Processed)
	assert.True(t, doc.Degraded)
	assert.Equal(t, len(firstGen), doc.TotalChunks,
		"a degraded reprocess must keep reporting the surviving generation")
	assert.Equal(t, firstGen, chunks.chunks[job.documentID])
}

func TestDocumentOperations_RequireHotelID(t *testing.T) {
	svc := newTestService(t, newFakeDocumentRepo(), newFakeChunkRepo(), &stubEmbedder{})

	_, err := svc.GetDocument(context.Background(), "some-id", "")
	assert.ErrorIs(t, err, entity.ErrValidation)

	err = svc.DeleteDocument(context.Background(), "some-id", "")
	assert.ErrorIs(t, err, entity.ErrValidation)

	err = svc.Reprocess(context.Background(), "some-id", "")
	assert.ErrorIs(t, err, entity.ErrValidation)
}

func TestRecover_ReenqueuesUnprocessed(t *testing.T) {
	docs := newFakeDocumentRepo()
	chunks := newFakeChunkRepo()
	svc := newTestService(t, docs, chunks, &stubEmbedder{})

	data := makeDocx(t, "Breakfast is served from 7 AM to 10 AM.")
	doc := &entity.Document{
		HotelID:  testHotelID,
		Title:    "Breakfast",
		FileType: "docx",
	}
	require.NoError(t, docs.Create(context.Background(), doc))

	path := svc.storageDir + "/" + doc.ID + ".docx"
	require.NoError(t, os.WriteFile(path, data, 0o644))
	require.NoError(t, docs.UpdateStatus(context.Background(), doc.ID, entity.StatusEmbedding))
	docs.mu.Lock()
	docs.docs[doc.ID].StoragePath = path
	docs.mu.Unlock()

	svc.Start(1)
	require.NoError(t, svc.Recover(context.Background()))
	require.Eventually(t, func() bool {
		stored, err := docs.FindByID(context.Background(), doc.ID, testHotelID)
		return err == nil && stored.Processed
	}, 3*time.Second, 10*time.Millisecond)
	svc.Stop()

	stored, err := docs.FindByID(context.Background(), doc.ID, testHotelID)
	require.NoError(t, err)
	assert.False(t, stored.Degraded)
	assert.NotEmpty(t, chunks.chunks[doc.ID])
}

func TestRecover_MissingArtifactIsDegraded(t *testing.T) {
	docs := newFakeDocumentRepo()
	svc := newTestService(t, docs, newFakeChunkRepo(), &stubEmbedder{})

	doc := &entity.Document{
		HotelID:     testHotelID,
		Title:       "Lost Upload",
		FileType:    "pdf",
		StoragePath: "/nonexistent/path.pdf",
	}
	require.NoError(t, docs.Create(context.Background(), doc))

	require.NoError(t, svc.Recover(context.Background()))

	stored, err := docs.FindByID(context.Background(), doc.ID, testHotelID)
	require.NoError(t, err)
	assert.True(t, stored.Processed)
	assert.True(t, stored.Degraded)
}

func TestDeleteDocument_RemovesChunksAndFile(t *testing.T) {
	docs := newFakeDocumentRepo()
	chunks := newFakeChunkRepo()
	svc := newTestService(t, docs, chunks, &stubEmbedder{})
	svc.Start(1)

	doc, err := svc.Upload(context.Background(), UploadInput{
		HotelID:  testHotelID,
		Title:    "Amenities",
		FileName: "amenities.docx",
		FileType: "docx",
		Data:     makeDocx(t, "The pool is open from 6 AM to 10 PM."),
	})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		stored, err := docs.FindByID(context.Background(), doc.ID, testHotelID)
		return err == nil && stored.Processed
	}, 3*time.Second, 10*time.Millisecond)
	svc.Stop()

	require.NoError(t, svc.DeleteDocument(context.Background(), doc.ID, testHotelID))

	_, err = docs.FindByID(context.Background(), doc.ID, testHotelID)
	assert.ErrorIs(t, err, entity.ErrDocumentNotFound)
	assert.Empty(t, chunks.chunks[doc.ID])
	_, statErr := os.Stat(doc.StoragePath)
	assert.True(t, os.IsNotExist(statErr))
}
