package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"docrag/internal/domain"
)

// MemoryStore is an in-process DocumentStore with the same semantics as
// the bolt store. It backs tests and the "memory" driver.
type MemoryStore struct {
	mu     sync.RWMutex
	docs   map[string]domain.Document
	chunks map[string]map[string]domain.Chunk // doc_id -> chunk_id -> chunk
	dim    int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs:   make(map[string]domain.Document),
		chunks: make(map[string]map[string]domain.Chunk),
	}
}

func (s *MemoryStore) PutDocument(ctx context.Context, doc domain.Document) error {
	if err := ctx.Err(); err != nil {
		return domain.NewStoreError("put document", err)
	}
	if err := doc.Validate(); err != nil {
		return domain.NewStoreError("put document", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[doc.ID] = doc
	return nil
}

func (s *MemoryStore) GetDocument(ctx context.Context, docID string) (domain.Document, error) {
	if err := ctx.Err(); err != nil {
		return domain.Document{}, domain.NewStoreError("get document", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[docID]
	if !ok {
		return domain.Document{}, fmt.Errorf("document %s: %w", docID, domain.ErrNotFound)
	}
	return doc, nil
}

func (s *MemoryStore) ListDocuments(ctx context.Context) ([]domain.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.NewStoreError("list documents", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	docs := make([]domain.Document, 0, len(s.docs))
	for _, doc := range s.docs {
		docs = append(docs, doc)
	}
	return docs, nil
}

func (s *MemoryStore) PutChunks(ctx context.Context, docID string, chunks []domain.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return domain.NewStoreError("put chunks", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dim := s.dim
	if dim == 0 {
		dim = len(chunks[0].Embedding)
	}
	for _, c := range chunks {
		if c.DocID != docID {
			return domain.NewStoreError("put chunks", fmt.Errorf("chunk %s belongs to %s, not %s", c.ID, c.DocID, docID))
		}
		if err := c.Validate(); err != nil {
			return domain.NewStoreError("put chunks", err)
		}
		if len(c.Embedding) != dim {
			return domain.NewStoreError("put chunks", fmt.Errorf("chunk %s has dimension %d, corpus has %d", c.ID, len(c.Embedding), dim))
		}
	}
	s.dim = dim

	owned, ok := s.chunks[docID]
	if !ok {
		owned = make(map[string]domain.Chunk, len(chunks))
		s.chunks[docID] = owned
	}
	for _, c := range chunks {
		c.Embedding = append([]float32(nil), c.Embedding...)
		owned[c.ID] = c
	}
	return nil
}

func (s *MemoryStore) GetChunks(ctx context.Context, docID string) ([]domain.Chunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.NewStoreError("get chunks", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	owned := s.chunks[docID]
	chunks := make([]domain.Chunk, 0, len(owned))
	for _, c := range owned {
		chunks = append(chunks, c)
	}
	sort.Slice(chunks, func(i, j int) bool {
		return chunks[i].Index < chunks[j].Index
	})
	return chunks, nil
}

func (s *MemoryStore) IncrementAccess(ctx context.Context, refs []domain.ChunkRef, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return domain.NewStoreError("increment access", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ref := range refs {
		c, ok := s.chunks[ref.DocID][ref.ChunkID]
		if !ok {
			continue
		}
		c.AccessCount++
		accessed := at
		c.LastAccessed = &accessed
		s.chunks[ref.DocID][ref.ChunkID] = c
	}
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}
