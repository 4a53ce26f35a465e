package metrics

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"docrag/internal/domain"
	"docrag/internal/logging"
)

const (
	DefaultMaxUpdates = 10
	DefaultTimeout    = 10 * time.Second
)

// AccessIncrementer is the slice of the document store the updater writes.
type AccessIncrementer interface {
	IncrementAccess(ctx context.Context, refs []domain.ChunkRef, at time.Time) error
}

// AccessUpdater records which chunks were served, off the query path.
// Failures are logged and never reach the caller.
type AccessUpdater struct {
	store      AccessIncrementer
	maxUpdates int
	timeout    time.Duration
	now        func() time.Time
	logger     *slog.Logger

	wg sync.WaitGroup
}

func NewAccessUpdater(store AccessIncrementer, maxUpdates int, timeout time.Duration, logger *slog.Logger) *AccessUpdater {
	if maxUpdates <= 0 {
		maxUpdates = DefaultMaxUpdates
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &AccessUpdater{
		store:      store,
		maxUpdates: maxUpdates,
		timeout:    timeout,
		now:        time.Now,
		logger:     logging.OrDefault(logger),
	}
}

// Record bumps the access counters of the first maxUpdates results in the
// background.
func (u *AccessUpdater) Record(results []domain.ScoredChunk) {
	if len(results) == 0 {
		return
	}
	if len(results) > u.maxUpdates {
		results = results[:u.maxUpdates]
	}
	refs := make([]domain.ChunkRef, len(results))
	for i, r := range results {
		refs[i] = r.Ref()
	}
	at := u.now()

	u.wg.Add(1)
	go func() {
		defer u.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				u.logger.Error("access metrics update panicked", "panic", r)
			}
		}()

		// detached from the query so a finished request does not cancel it
		ctx, cancel := context.WithTimeout(context.Background(), u.timeout)
		defer cancel()

		if err := u.store.IncrementAccess(ctx, refs, at); err != nil {
			u.logger.Warn("failed to update access metrics", "chunks", len(refs), "error", err)
			return
		}
		u.logger.Debug("access metrics updated", "chunks", len(refs))
	}()
}

// Wait blocks until every pending update has finished.
func (u *AccessUpdater) Wait() {
	u.wg.Wait()
}
