package models

import "errors"

var (
	// ingestion
	ErrUnreadable           = errors.New("source unreadable")
	ErrUnsupportedMediaType = errors.New("unsupported media type")

	// indexing
	ErrNoValidChunks = errors.New("no valid chunks")
	ErrEmbedding     = errors.New("embedding failed")
	ErrPersistence   = errors.New("index write failed")

	// ErrExtraction is absorbed by the orchestrator and never fails a turn.
	ErrExtraction = errors.New("extraction failed")

	// ErrPredictionUnavailable covers non-success responses, connection failures and timeouts.
	ErrPredictionUnavailable = errors.New("prediction service unavailable")

	// ErrStoreInconsistency marks a guideline persisted on disk but missing from the index.
	ErrStoreInconsistency = errors.New("guideline stored but not indexed")

	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
)
