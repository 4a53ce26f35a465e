package retriever

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"docrag/internal/adapter/resolver"
	"docrag/internal/domain"
	"docrag/internal/logging"
	"docrag/internal/port"
)

// DefaultParallelism bounds concurrent per-document chunk scans.
const DefaultParallelism = 8

// ErrEmptyCorpus is returned when no document has been indexed yet.
var ErrEmptyCorpus = errors.New("no documents indexed")

// Query describes one similarity search.
type Query struct {
	Text         string
	DocumentName string // optional name filter resolved against the corpus
	TopK         int
	Threshold    float64
}

// SearchOutcome is the ranked result of a search plus the counts the
// entrypoint reports.
type SearchOutcome struct {
	Results           []domain.ScoredChunk
	DocumentsSearched int
	CandidatesFound   int
}

// VectorSearcher scores every chunk of the candidate documents against the
// query embedding.
type VectorSearcher struct {
	embedder    port.Embedder
	store       port.DocumentStore
	metadata    port.MetadataSource
	parallelism int
	logger      *slog.Logger
}

func NewVectorSearcher(
	embedder port.Embedder,
	store port.DocumentStore,
	metadata port.MetadataSource,
	parallelism int,
	logger *slog.Logger,
) *VectorSearcher {
	if parallelism <= 0 {
		parallelism = DefaultParallelism
	}
	return &VectorSearcher{
		embedder:    embedder,
		store:       store,
		metadata:    metadata,
		parallelism: parallelism,
		logger:      logging.OrDefault(logger),
	}
}

func (s *VectorSearcher) Search(ctx context.Context, q Query) (*SearchOutcome, error) {
	vectors, err := s.embedder.Embed(ctx, []string{q.Text})
	if err != nil {
		return nil, err
	}
	if len(vectors) != 1 {
		return nil, domain.NewEmbeddingError("embed query", fmt.Errorf("expected 1 vector, got %d", len(vectors)))
	}
	queryVec := vectors[0]
	if Norm(queryVec) < normEpsilon {
		s.logger.Warn("query embedding has zero norm, every similarity will be 0", "query", q.Text)
	}

	snap, err := s.metadata.Get(ctx, false)
	if err != nil {
		return nil, err
	}
	if snap.Len() == 0 {
		return nil, ErrEmptyCorpus
	}

	targets, err := s.targetDocuments(q.DocumentName, snap)
	if err != nil {
		return nil, err
	}

	perDoc := make([][]domain.ScoredChunk, len(targets))
	var integrity integrityCounter

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.parallelism)
	for i, docID := range targets {
		i, docID := i, docID
		g.Go(func() error {
			scored, err := s.scoreDocument(gctx, docID, queryVec, q.Threshold, &integrity)
			if err != nil {
				return err
			}
			perDoc[i] = scored
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if n := integrity.count(); n > 0 {
		s.logger.Warn("chunks with unusable embeddings scored as 0",
			"chunks", n,
			"documents", integrity.docs())
	}

	var candidates []domain.ScoredChunk
	for _, scored := range perDoc {
		candidates = append(candidates, scored...)
	}
	SortBySimilarity(candidates)

	results := candidates
	if q.TopK > 0 && len(results) > q.TopK {
		results = results[:q.TopK]
	}

	s.logger.Debug("vector search complete",
		"documents", len(targets),
		"candidates", len(candidates),
		"returned", len(results))

	return &SearchOutcome{
		Results:           results,
		DocumentsSearched: len(targets),
		CandidatesFound:   len(candidates),
	}, nil
}

func (s *VectorSearcher) targetDocuments(filter string, snap *domain.Snapshot) ([]string, error) {
	if filter != "" {
		return resolver.Resolve(filter, snap.Documents())
	}
	ids := make([]string, 0, snap.Len())
	for id := range snap.Docs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// scoreDocument returns the chunks of one document at or above threshold.
// A document deleted since the snapshot was taken yields nothing.
func (s *VectorSearcher) scoreDocument(ctx context.Context, docID string, queryVec []float32, threshold float64, integrity *integrityCounter) ([]domain.ScoredChunk, error) {
	doc, err := s.store.GetDocument(ctx, docID)
	if errors.Is(err, domain.ErrNotFound) {
		s.logger.Debug("document vanished since snapshot, skipping", "doc_id", docID)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	chunks, err := s.store.GetChunks(ctx, docID)
	if err != nil {
		return nil, err
	}

	var scored []domain.ScoredChunk
	for _, c := range chunks {
		if len(c.Embedding) != len(queryVec) || Norm(c.Embedding) < normEpsilon {
			integrity.add(docID)
		}
		sim := CosineSimilarity(queryVec, c.Embedding)
		if sim < threshold {
			continue
		}
		scored = append(scored, domain.ScoredChunk{
			Chunk:      c,
			Doc:        doc,
			Similarity: sim,
		})
	}
	return scored, nil
}

// SortBySimilarity orders results by similarity descending, breaking ties
// by doc_id then chunk_index ascending.
func SortBySimilarity(results []domain.ScoredChunk) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Similarity != results[j].Similarity {
			return results[i].Similarity > results[j].Similarity
		}
		return lessByPosition(results[i], results[j])
	})
}

func lessByPosition(a, b domain.ScoredChunk) bool {
	if a.Chunk.DocID != b.Chunk.DocID {
		return a.Chunk.DocID < b.Chunk.DocID
	}
	return a.Chunk.Index < b.Chunk.Index
}

type integrityCounter struct {
	mu     sync.Mutex
	chunks int
	byDoc  map[string]int
}

func (c *integrityCounter) add(docID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.byDoc == nil {
		c.byDoc = make(map[string]int)
	}
	c.chunks++
	c.byDoc[docID]++
}

func (c *integrityCounter) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.chunks
}

func (c *integrityCounter) docs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]string, 0, len(c.byDoc))
	for id := range c.byDoc {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
