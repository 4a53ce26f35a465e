package usecase

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docrag/internal/adapter/cache"
	"docrag/internal/adapter/chunker"
	"docrag/internal/adapter/embedding"
	"docrag/internal/adapter/extractor"
	"docrag/internal/adapter/fs"
	"docrag/internal/adapter/memstore"
	"docrag/internal/adapter/metrics"
	"docrag/internal/adapter/retriever"
	"docrag/internal/domain"
	"docrag/internal/logging"
	"docrag/internal/port"
)

type harness struct {
	store    *memstore.MemoryStore
	cache    *cache.MetadataCache
	embedder *embedding.MockEmbedder
	access   *metrics.AccessUpdater
	index    *IndexUseCase
	retrieve *RetrieveUseCase
	root     string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	logger := logging.Discard()

	st := memstore.NewMemoryStore()
	mc := cache.NewMetadataCache(st, time.Minute, cache.WithLogger(logger))
	emb := embedding.NewMockEmbedder(64)
	ch, err := chunker.NewCharChunker(800, 150)
	require.NoError(t, err)

	index := NewIndexUseCase(
		fs.NewBlobReader(0),
		extractor.New(),
		ch,
		emb,
		st,
		fs.NewWalker([]string{"**/*.txt", "**/*.md", "**/*.pdf"}, nil),
		mc,
		IndexOptions{EmbedBatchSize: 5},
		logger,
	)

	access := metrics.NewAccessUpdater(st, 10, time.Second, logger)
	searcher := retriever.NewVectorSearcher(emb, st, mc, 4, logger)
	retrieve := NewRetrieveUseCase(searcher, nil, access, mc, RetrieveOptions{TopK: 35, Threshold: 0.1}, logger)

	return &harness{
		store:    st,
		cache:    mc,
		embedder: emb,
		access:   access,
		index:    index,
		retrieve: retrieve,
		root:     t.TempDir(),
	}
}

func (h *harness) write(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(h.root, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestIndexDocument_ChunksAndRecords(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	path := h.write(t, "informe.txt", strings.Repeat("word ", 400))

	res := h.index.IndexDocument(ctx, path, "")
	require.True(t, res.OK, res.Message)
	assert.Equal(t, 3, res.ChunksCreated)
	assert.Equal(t, "informe.txt", res.DocName)
	assert.NotEmpty(t, res.DocID)

	doc, err := h.store.GetDocument(ctx, res.DocID)
	require.NoError(t, err)
	assert.Equal(t, 3, doc.TotalChunks)
	assert.Equal(t, 2000, doc.TotalCharacters)
	assert.Equal(t, "txt", doc.FileType)

	chunks, err := h.store.GetChunks(ctx, res.DocID)
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	for i, c := range chunks {
		assert.Equal(t, i, c.Index)
		assert.Equal(t, domain.ChunkID(res.DocID, i), c.ID)
		assert.Len(t, c.Embedding, 64)
	}
}

func TestIndexDocument_DisplayName(t *testing.T) {
	h := newHarness(t)
	path := h.write(t, "a.txt", "contenido suficiente para indexar")

	res := h.index.IndexDocument(context.Background(), path, "Reglamento Interno")
	require.True(t, res.OK)
	assert.Equal(t, "Reglamento Interno", res.DocName)
}

func TestIndexDocument_Failures(t *testing.T) {
	tests := []struct {
		name     string
		file     string
		content  string
		wantKind string
	}{
		{"too short", "short.txt", "   hola   ", "extraction"},
		{"unsupported type", "scan.pdf", "%PDF-1.4 binary", "extraction"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			path := h.write(t, tt.file, tt.content)

			res := h.index.IndexDocument(context.Background(), path, "")
			assert.False(t, res.OK)
			assert.Equal(t, "Error", res.Status)
			assert.Equal(t, tt.wantKind, res.ErrorKind)

			docs, err := h.store.ListDocuments(context.Background())
			require.NoError(t, err)
			assert.Empty(t, docs, "failed document must not be visible")
		})
	}
}

// flakyEmbedder fails the failOn-th Embed call (1-based).
type flakyEmbedder struct {
	port.Embedder
	failOn int
	calls  int
}

func (e *flakyEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	e.calls++
	if e.calls == e.failOn {
		return nil, domain.NewEmbeddingError("batch", errors.New("service unavailable"))
	}
	return e.Embedder.Embed(ctx, texts)
}

// failingStore rejects chunk or document writes.
type failingStore struct {
	port.DocumentStore
	failChunks   bool
	failDocument bool
}

func (s *failingStore) PutChunks(ctx context.Context, docID string, chunks []domain.Chunk) error {
	if s.failChunks {
		return domain.NewStoreError("put chunks", errors.New("write quota exceeded"))
	}
	return s.DocumentStore.PutChunks(ctx, docID, chunks)
}

func (s *failingStore) PutDocument(ctx context.Context, doc domain.Document) error {
	if s.failDocument {
		return domain.NewStoreError("put document", errors.New("write quota exceeded"))
	}
	return s.DocumentStore.PutDocument(ctx, doc)
}

func TestIndexDocument_AbortsAfterExtraction(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(h *harness)
		wantKind string
	}{
		{
			name: "embedding fails on second batch",
			setup: func(h *harness) {
				h.index.opts.EmbedBatchSize = 1
				h.index.embedder = &flakyEmbedder{Embedder: h.embedder, failOn: 2}
			},
			wantKind: "embedding",
		},
		{
			name: "chunk write fails",
			setup: func(h *harness) {
				h.index.store = &failingStore{DocumentStore: h.store, failChunks: true}
			},
			wantKind: "store",
		},
		{
			name: "document write fails",
			setup: func(h *harness) {
				h.index.store = &failingStore{DocumentStore: h.store, failDocument: true}
			},
			wantKind: "store",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			ctx := context.Background()
			tt.setup(h)
			path := h.write(t, "informe.txt", strings.Repeat("word ", 400))

			// prime the cache so a missing invalidation would show up
			_, err := h.cache.Get(ctx, false)
			require.NoError(t, err)

			res := h.index.IndexDocument(ctx, path, "")
			assert.False(t, res.OK)
			assert.Equal(t, "Error", res.Status)
			assert.Equal(t, tt.wantKind, res.ErrorKind)
			assert.Empty(t, res.DocID)
			assert.Zero(t, res.ChunksCreated)

			docs, err := h.store.ListDocuments(ctx)
			require.NoError(t, err)
			assert.Empty(t, docs, "aborted document must not be visible")

			listed := h.retrieve.ListDocuments(ctx)
			require.True(t, listed.OK)
			assert.Zero(t, listed.TotalDocuments)
		})
	}
}

func TestIndexCorpus_EmbeddingFailureAbortsOnlyThatDocument(t *testing.T) {
	h := newHarness(t)
	h.write(t, "a.txt", "primer documento con contenido")
	h.write(t, "b.txt", "segundo documento con contenido")
	h.write(t, "c.txt", "tercer documento con contenido")
	h.index.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	h.index.embedder = &flakyEmbedder{Embedder: h.embedder, failOn: 2}

	res := h.index.IndexCorpus(context.Background(), h.root, nil)
	assert.True(t, res.OK)
	assert.Equal(t, 2, res.Succeeded)
	assert.Equal(t, 1, res.Failed)
	require.Len(t, res.Results, 3)
	assert.False(t, res.Results[1].OK)
	assert.Equal(t, "embedding", res.Results[1].ErrorKind)

	docs, err := h.store.ListDocuments(context.Background())
	require.NoError(t, err)
	var names []string
	for _, d := range docs {
		names = append(names, d.Name)
	}
	assert.ElementsMatch(t, []string{"a.txt", "c.txt"}, names)
}

func TestIndexDocument_MissingFile(t *testing.T) {
	h := newHarness(t)
	res := h.index.IndexDocument(context.Background(), filepath.Join(h.root, "nope.txt"), "")
	assert.False(t, res.OK)
	assert.NotEmpty(t, res.Message)
}

func TestIndexCorpus_ContinuesPastFailures(t *testing.T) {
	h := newHarness(t)
	h.write(t, "a.txt", "primer documento con contenido")
	h.write(t, "b.pdf", "%PDF")
	h.write(t, "c.md", "# tercero\n\nmás contenido útil")

	var mu sync.Mutex
	var seen []int
	var slept []time.Duration
	h.index.opts.InterDocumentDelay = 500 * time.Millisecond
	h.index.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}

	res := h.index.IndexCorpus(context.Background(), h.root, func(p CorpusProgress) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, p.Done)
	})

	assert.True(t, res.OK)
	assert.Equal(t, 3, res.Processed)
	assert.Equal(t, 2, res.Succeeded)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, []int{1, 2, 3}, seen)
	assert.Len(t, slept, 2, "pause between documents only")
	assert.False(t, res.Results[1].OK)
}

func TestIndexCorpus_Cancelled(t *testing.T) {
	h := newHarness(t)
	h.write(t, "a.txt", "primer documento con contenido")
	h.write(t, "b.txt", "segundo documento con contenido")

	ctx, cancel := context.WithCancel(context.Background())
	h.index.opts.InterDocumentDelay = time.Millisecond
	h.index.sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}

	res := h.index.IndexCorpus(ctx, h.root, nil)
	assert.True(t, res.Cancelled)
	assert.False(t, res.OK)
	assert.Equal(t, 1, res.Processed)
}

func TestSearch_FindsIndexedText(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.True(t, h.index.IndexDocument(ctx, h.write(t, "retencion.txt", "la meta de retencion estudiantil es ochenta y cinco por ciento"), "").OK)
	require.True(t, h.index.IndexDocument(ctx, h.write(t, "calendario.txt", "el calendario academico inicia en marzo y termina en diciembre"), "").OK)

	res := h.retrieve.Search(ctx, SearchRequest{Query: "meta de retencion estudiantil"})
	h.access.Wait()

	require.True(t, res.OK, res.Message)
	require.NotEmpty(t, res.Contexts)
	assert.Equal(t, "retencion.txt", res.Contexts[0].DocName)
	assert.Equal(t, 2, res.DocumentsSearched)
	assert.Contains(t, res.ContextsText, "[retencion.txt]")

	chunks, err := h.store.GetChunks(ctx, res.Contexts[0].DocID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), chunks[0].AccessCount)
}

func TestSearch_DocumentNotFound(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.True(t, h.index.IndexDocument(ctx, h.write(t, "a.txt", "contenido del primer documento"), "Informe_Avance (2025).DOCX").OK)
	require.True(t, h.index.IndexDocument(ctx, h.write(t, "b.txt", "contenido del segundo documento"), "Reglamento.pdf").OK)

	res := h.retrieve.Search(ctx, SearchRequest{Query: "contenido", DocumentName: "NonExistentDoc"})
	assert.False(t, res.OK)
	assert.Equal(t, "not_found", res.ErrorKind)
	assert.Equal(t, []string{"Informe_Avance (2025).DOCX", "Reglamento.pdf"}, res.AvailableDocuments)
	assert.Empty(t, res.Contexts)
}

func TestSearch_EmptyCollection(t *testing.T) {
	h := newHarness(t)
	res := h.retrieve.Search(context.Background(), SearchRequest{Query: "algo"})
	assert.False(t, res.OK)
	assert.Equal(t, "No documents", res.Status)
}

func TestSearch_NoMatchesIsSuccess(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.True(t, h.index.IndexDocument(ctx, h.write(t, "a.txt", "contenido del primer documento"), "").OK)

	threshold := 0.99
	res := h.retrieve.Search(ctx, SearchRequest{Query: "zzz qqq", Threshold: &threshold})
	assert.True(t, res.OK)
	assert.Equal(t, "No matches", res.Status)
	assert.Empty(t, res.Contexts)
}

func TestSearch_EmptyQuery(t *testing.T) {
	h := newHarness(t)
	res := h.retrieve.Search(context.Background(), SearchRequest{Query: "  "})
	assert.False(t, res.OK)
}

type panickingSearcher struct{}

func (panickingSearcher) Search(ctx context.Context, q retriever.Query) (*retriever.SearchOutcome, error) {
	panic("index corrupted")
}

func TestSearch_RecoversPanics(t *testing.T) {
	h := newHarness(t)
	uc := NewRetrieveUseCase(panickingSearcher{}, nil, nil, h.cache, RetrieveOptions{}, logging.Discard())

	var res SearchResult
	require.NotPanics(t, func() { res = uc.Search(context.Background(), SearchRequest{Query: "q"}) })
	assert.False(t, res.OK)
	assert.Equal(t, "internal", res.ErrorKind)
}

type reverseReranker struct{}

func (reverseReranker) Rerank(ctx context.Context, query string, results []domain.ScoredChunk) ([]domain.ScoredChunk, bool) {
	out := make([]domain.ScoredChunk, len(results))
	for i, r := range results {
		out[len(results)-1-i] = r
	}
	return out, true
}

func TestSearch_UsesReranker(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.True(t, h.index.IndexDocument(ctx, h.write(t, "a.txt", "meta de retencion estudiantil"), "").OK)
	require.True(t, h.index.IndexDocument(ctx, h.write(t, "b.txt", "meta de titulacion oportuna"), "").OK)

	searcher := retriever.NewVectorSearcher(h.embedder, h.store, h.cache, 2, logging.Discard())
	uc := NewRetrieveUseCase(searcher, reverseReranker{}, nil, h.cache, RetrieveOptions{Threshold: 0.1}, logging.Discard())

	plain := uc.Search(ctx, SearchRequest{Query: "meta retencion", NoRerank: true})
	reranked := uc.Search(ctx, SearchRequest{Query: "meta retencion"})

	require.True(t, plain.OK)
	require.True(t, reranked.OK)
	assert.False(t, plain.Reranked)
	assert.True(t, reranked.Reranked)
	require.Len(t, reranked.Contexts, len(plain.Contexts))
	assert.Equal(t, plain.Contexts[0].ChunkID, reranked.Contexts[len(reranked.Contexts)-1].ChunkID)
}

func TestListDocumentsAndStats(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.True(t, h.index.IndexDocument(ctx, h.write(t, "b.txt", strings.Repeat("palabra ", 50)), "").OK)
	require.True(t, h.index.IndexDocument(ctx, h.write(t, "a.md", strings.Repeat("texto ", 100)), "").OK)

	list := h.retrieve.ListDocuments(ctx)
	require.True(t, list.OK)
	assert.Equal(t, 2, list.TotalDocuments)
	assert.Equal(t, "a.md", list.Documents[0].DocName)
	assert.Equal(t, "md", list.Documents[0].Type)

	stats := h.retrieve.Stats(ctx)
	require.True(t, stats.OK)
	assert.Equal(t, 2, stats.TotalDocuments)
	assert.Equal(t, 1000, stats.TotalCharacters)
	assert.Equal(t, 200, stats.EstimatedWords)
	assert.Equal(t, map[string]int{"txt": 1, "md": 1}, stats.DocumentsByType)
}

func TestStats_SeesWritesImmediately(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.True(t, h.index.IndexDocument(ctx, h.write(t, "a.txt", "contenido del primer documento"), "").OK)

	// populate the cache, then write behind its back
	require.Equal(t, 1, h.retrieve.ListDocuments(ctx).TotalDocuments)
	require.NoError(t, h.store.PutDocument(ctx, domain.Document{ID: "x", Name: "externo.txt", FileType: "txt"}))

	assert.Equal(t, 1, h.retrieve.ListDocuments(ctx).TotalDocuments)
	assert.Equal(t, 2, h.retrieve.Stats(ctx).TotalDocuments)
}
