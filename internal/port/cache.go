package port

import (
	"context"

	"docrag/internal/domain"
)

// MetadataSource yields the current document metadata snapshot.
type MetadataSource interface {
	Get(ctx context.Context, forceRefresh bool) (*domain.Snapshot, error)
	Invalidate()
}
