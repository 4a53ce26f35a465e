package port

import (
	"context"
	"time"

	"docrag/internal/domain"
)

// DocumentStore persists documents and the chunks they own.
type DocumentStore interface {
	PutDocument(ctx context.Context, doc domain.Document) error

	// PutChunks writes chunks of one document in bounded batches.
	// Chunk ids are deterministic, so retrying a batch is idempotent.
	PutChunks(ctx context.Context, docID string, chunks []domain.Chunk) error

	GetDocument(ctx context.Context, docID string) (domain.Document, error)

	ListDocuments(ctx context.Context) ([]domain.Document, error)

	// GetChunks returns a document's chunks ordered by chunk index.
	GetChunks(ctx context.Context, docID string) ([]domain.Chunk, error)

	// IncrementAccess bumps access_count and sets last_accessed for each
	// referenced chunk atomically. Unknown chunks are skipped.
	IncrementAccess(ctx context.Context, refs []domain.ChunkRef, at time.Time) error

	Close() error
}
