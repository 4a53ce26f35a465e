package cache

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"docrag/internal/domain"
	"docrag/internal/logging"
)

// DefaultTTL is how long a metadata snapshot is served before a reload.
const DefaultTTL = 300 * time.Second

// DocumentLister is the slice of the document store the cache reads.
type DocumentLister interface {
	ListDocuments(ctx context.Context) ([]domain.Document, error)
}

// MetadataCache serves an immutable snapshot of every document record.
// Readers never block on each other; refreshes are serialised and swap
// the snapshot pointer in one step.
type MetadataCache struct {
	source DocumentLister
	ttl    time.Duration
	now    func() time.Time
	logger *slog.Logger

	snap      atomic.Pointer[domain.Snapshot]
	refreshMu sync.Mutex
	// generation is bumped by Invalidate; a refresh that overlapped an
	// invalidation does not publish its snapshot.
	generation atomic.Uint64
}

type Option func(*MetadataCache)

// WithClock replaces time.Now for expiry decisions.
func WithClock(now func() time.Time) Option {
	return func(c *MetadataCache) { c.now = now }
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *MetadataCache) { c.logger = logger }
}

func NewMetadataCache(source DocumentLister, ttl time.Duration, opts ...Option) *MetadataCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &MetadataCache{
		source: source,
		ttl:    ttl,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logging.OrDefault(c.logger)
	return c
}

// Get returns the cached snapshot, reloading it when absent, expired or
// forced. When a reload fails and an older snapshot exists, the older
// snapshot is returned.
func (c *MetadataCache) Get(ctx context.Context, forceRefresh bool) (*domain.Snapshot, error) {
	if !forceRefresh {
		if s := c.snap.Load(); s != nil && c.fresh(s) {
			return s, nil
		}
	}

	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	// another caller may have refreshed while we waited
	current := c.snap.Load()
	if !forceRefresh && current != nil && c.fresh(current) {
		return current, nil
	}

	gen := c.generation.Load()
	docs, err := c.source.ListDocuments(ctx)
	if err != nil {
		if current != nil {
			c.logger.Warn("metadata refresh failed, serving stale snapshot",
				"error", err,
				"age", c.now().Sub(current.Timestamp).String())
			return current, nil
		}
		return nil, err
	}

	next := &domain.Snapshot{
		Docs:      make(map[string]domain.Document, len(docs)),
		Timestamp: c.now(),
	}
	for _, d := range docs {
		next.Docs[d.ID] = d
	}
	if c.generation.Load() != gen {
		c.logger.Debug("metadata invalidated during refresh, not caching", "documents", len(docs))
		return next, nil
	}
	c.snap.Store(next)

	c.logger.Debug("metadata snapshot refreshed", "documents", len(docs))
	return next, nil
}

// Invalidate drops the snapshot so the next Get reloads.
func (c *MetadataCache) Invalidate() {
	c.generation.Add(1)
	c.snap.Store(nil)
}

func (c *MetadataCache) fresh(s *domain.Snapshot) bool {
	return c.now().Sub(s.Timestamp) < c.ttl
}
