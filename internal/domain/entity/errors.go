package entity

import "errors"

var (
	// ErrUnsupportedFormat means no extractor exists for the file type.
	ErrUnsupportedFormat = errors.New("unsupported file format")

	// ErrExtractionFailed means the extractor for the file type failed.
	ErrExtractionFailed = errors.New("text extraction failed")

	// ErrEmbeddingUnavailable means the embedding backend errored or timed out.
	ErrEmbeddingUnavailable = errors.New("embedding service unavailable")

	// ErrValidation means the caller's input is malformed.
	ErrValidation = errors.New("validation failed")

	// ErrStoreUnavailable means the backing store could not be reached.
	ErrStoreUnavailable = errors.New("knowledge store unavailable")

	ErrDocumentNotFound = errors.New("document not found")
)
