package metrics

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docrag/internal/adapter/memstore"
	"docrag/internal/domain"
	"docrag/internal/logging"
)

func scored(docID string, n int) []domain.ScoredChunk {
	out := make([]domain.ScoredChunk, n)
	for i := range out {
		out[i] = domain.ScoredChunk{Chunk: domain.Chunk{ID: domain.ChunkID(docID, i), DocID: docID, Index: i}}
	}
	return out
}

func TestAccessUpdater_BoundedUpdate(t *testing.T) {
	st := memstore.NewMemoryStore()
	ctx := context.Background()
	chunks := make([]domain.Chunk, 12)
	for i := range chunks {
		chunks[i] = domain.Chunk{ID: domain.ChunkID("d1", i), DocID: "d1", Index: i, Text: "t", Embedding: []float32{1}}
	}
	require.NoError(t, st.PutChunks(ctx, "d1", chunks))

	u := NewAccessUpdater(st, 10, time.Second, logging.Discard())
	u.Record(scored("d1", 12))
	u.Wait()

	got, err := st.GetChunks(ctx, "d1")
	require.NoError(t, err)
	for i, c := range got {
		if i < 10 {
			assert.Equal(t, int64(1), c.AccessCount, "chunk %d", i)
			assert.NotNil(t, c.LastAccessed)
		} else {
			assert.Equal(t, int64(0), c.AccessCount, "chunk %d", i)
		}
	}
}

type failingStore struct {
	mu    sync.Mutex
	calls int
}

func (f *failingStore) IncrementAccess(ctx context.Context, refs []domain.ChunkRef, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return domain.NewStoreError("increment access", errors.New("write conflict"))
}

func TestAccessUpdater_FailureIsLoggedOnly(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.New(logging.Config{Level: "debug", Format: "text", Output: &buf})
	st := &failingStore{}

	u := NewAccessUpdater(st, 10, time.Second, logger)
	assert.NotPanics(t, func() { u.Record(scored("d1", 3)) })
	u.Wait()

	assert.Equal(t, 1, st.calls)
	assert.Contains(t, buf.String(), "failed to update access metrics")
}

func TestAccessUpdater_NothingToRecord(t *testing.T) {
	st := &failingStore{}
	u := NewAccessUpdater(st, 10, time.Second, logging.Discard())
	u.Record(nil)
	u.Wait()
	assert.Equal(t, 0, st.calls)
}
