package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"docrag/internal/adapter/retriever"
	"docrag/internal/domain"
	"docrag/internal/logging"
	"docrag/internal/port"
)

// Searcher runs the vector similarity stage.
type Searcher interface {
	Search(ctx context.Context, q retriever.Query) (*retriever.SearchOutcome, error)
}

// ResultReranker reorders vector results; the bool reports whether the
// new order was applied.
type ResultReranker interface {
	Rerank(ctx context.Context, query string, results []domain.ScoredChunk) ([]domain.ScoredChunk, bool)
}

// AccessRecorder notes which chunks a query returned.
type AccessRecorder interface {
	Record(results []domain.ScoredChunk)
}

// RetrieveOptions holds per-query defaults.
type RetrieveOptions struct {
	TopK            int
	Threshold       float64
	MaxContextChars int
}

// RetrieveUseCase handles search, listing and statistics.
type RetrieveUseCase struct {
	searcher Searcher
	reranker ResultReranker // nil disables re-ranking
	access   AccessRecorder // nil disables access metrics
	metadata port.MetadataSource
	opts     RetrieveOptions
	logger   *slog.Logger
}

// NewRetrieveUseCase creates a new retrieve use case.
func NewRetrieveUseCase(
	searcher Searcher,
	reranker ResultReranker,
	access AccessRecorder,
	metadata port.MetadataSource,
	opts RetrieveOptions,
	logger *slog.Logger,
) *RetrieveUseCase {
	if opts.TopK <= 0 {
		opts.TopK = 35
	}
	return &RetrieveUseCase{
		searcher: searcher,
		reranker: reranker,
		access:   access,
		metadata: metadata,
		opts:     opts,
		logger:   logging.OrDefault(logger),
	}
}

// SearchRequest is one query. Zero TopK and nil Threshold use the
// configured defaults.
type SearchRequest struct {
	Query        string
	DocumentName string
	TopK         int
	Threshold    *float64
	NoRerank     bool
}

// Context is one returned chunk with its provenance and scores.
type Context struct {
	DocID           string   `json:"doc_id"`
	DocName         string   `json:"doc_name"`
	ChunkID         string   `json:"chunk_id"`
	ChunkIndex      int      `json:"chunk_index"`
	Text            string   `json:"text"`
	SimilarityScore float64  `json:"similarity_score"`
	FinalScore      *float64 `json:"final_score,omitempty"`
	OracleScore     *int     `json:"oracle_score,omitempty"`
	SourceURI       string   `json:"source_uri,omitempty"`
	FileType        string   `json:"file_type,omitempty"`
}

// SearchResult is the structured answer of the query entrypoint.
type SearchResult struct {
	OK                 bool      `json:"ok"`
	Status             string    `json:"status"`
	Message            string    `json:"message,omitempty"`
	ErrorKind          string    `json:"error_kind,omitempty"`
	Query              string    `json:"query"`
	DocumentsSearched  int       `json:"documents_searched"`
	CandidatesFound    int       `json:"candidates_found"`
	Reranked           bool      `json:"reranked"`
	Contexts           []Context `json:"contexts"`
	ContextsText       string    `json:"contexts_text"`
	AvailableDocuments []string  `json:"available_documents,omitempty"`
}

// Search answers a query with the best matching chunks. It never returns
// a raw error: every failure is described in the result.
func (u *RetrieveUseCase) Search(ctx context.Context, req SearchRequest) (result SearchResult) {
	result.Query = req.Query
	result.Contexts = []Context{}
	defer func() {
		if r := recover(); r != nil {
			u.logger.Error("search panicked", "query", req.Query, "panic", r)
			result = SearchResult{
				Status:    "Error",
				Message:   fmt.Sprintf("internal error: %v", r),
				ErrorKind: "internal",
				Query:     req.Query,
				Contexts:  []Context{},
			}
		}
	}()

	if strings.TrimSpace(req.Query) == "" {
		result.Status = "Error"
		result.Message = "query is empty"
		result.ErrorKind = "internal"
		return result
	}

	q := retriever.Query{
		Text:         req.Query,
		DocumentName: req.DocumentName,
		TopK:         req.TopK,
		Threshold:    u.opts.Threshold,
	}
	if q.TopK <= 0 {
		q.TopK = u.opts.TopK
	}
	if req.Threshold != nil {
		q.Threshold = *req.Threshold
	}

	u.logger.Info("search", "query", req.Query, "doc_filter", req.DocumentName, "top_k", q.TopK)

	outcome, err := u.searcher.Search(ctx, q)
	if err != nil {
		return u.searchFailure(result, err)
	}
	result.DocumentsSearched = outcome.DocumentsSearched
	result.CandidatesFound = outcome.CandidatesFound

	results := outcome.Results
	if u.reranker != nil && !req.NoRerank && len(results) > 0 {
		results, result.Reranked = u.reranker.Rerank(ctx, req.Query, results)
	}

	result.OK = true
	if len(results) == 0 {
		result.Status = "No matches"
		result.Message = "no relevant fragments found for the query"
		return result
	}

	if u.access != nil {
		u.access.Record(results)
	}

	result.Contexts = toContexts(results)
	result.ContextsText = PackContexts(result.Contexts, u.opts.MaxContextChars)
	result.Status = fmt.Sprintf("Found %d relevant contexts", len(results))
	return result
}

func (u *RetrieveUseCase) searchFailure(result SearchResult, err error) SearchResult {
	result.Message = err.Error()
	result.ErrorKind = domain.ErrorKind(err)

	var notFound *domain.NotFoundError
	switch {
	case errors.As(err, &notFound):
		result.Status = fmt.Sprintf("Document not found: %q", notFound.Query)
		result.AvailableDocuments = notFound.Available
		result.Message = "available documents: " + strings.Join(notFound.Available, ", ")
	case errors.Is(err, retriever.ErrEmptyCorpus):
		result.Status = "No documents"
		result.Message = "the collection is empty"
		result.ErrorKind = ""
	default:
		result.Status = "Error"
		u.logger.Error("search failed", "query", result.Query, "error", err)
	}
	return result
}

func toContexts(results []domain.ScoredChunk) []Context {
	out := make([]Context, len(results))
	for i, r := range results {
		out[i] = Context{
			DocID:           r.Chunk.DocID,
			DocName:         r.Doc.Name,
			ChunkID:         r.Chunk.ID,
			ChunkIndex:      r.Chunk.Index,
			Text:            r.Chunk.Text,
			SimilarityScore: r.Similarity,
			FinalScore:      r.FinalScore,
			OracleScore:     r.OracleScore,
			SourceURI:       r.Doc.SourceURI,
			FileType:        r.Doc.FileType,
		}
	}
	return out
}

// DocumentInfo is one entry of the document listing.
type DocumentInfo struct {
	DocID       string    `json:"doc_id"`
	DocName     string    `json:"doc_name"`
	Type        string    `json:"type"`
	TotalChunks int       `json:"total_chunks"`
	CreatedAt   time.Time `json:"created_at"`
}

// ListResult is the structured answer of the list entrypoint.
type ListResult struct {
	OK             bool           `json:"ok"`
	Message        string         `json:"message,omitempty"`
	TotalDocuments int            `json:"total_documents"`
	Documents      []DocumentInfo `json:"documents"`
}

// ListDocuments lists every indexed document by name, served from the
// metadata cache.
func (u *RetrieveUseCase) ListDocuments(ctx context.Context) (result ListResult) {
	result.Documents = []DocumentInfo{}
	defer func() {
		if r := recover(); r != nil {
			u.logger.Error("list panicked", "panic", r)
			result = ListResult{Message: fmt.Sprintf("internal error: %v", r), Documents: []DocumentInfo{}}
		}
	}()

	snap, err := u.metadata.Get(ctx, false)
	if err != nil {
		u.logger.Error("failed to list documents", "error", err)
		result.Message = err.Error()
		return result
	}

	docs := snap.Documents()
	sort.Slice(docs, func(i, j int) bool {
		if docs[i].Name != docs[j].Name {
			return docs[i].Name < docs[j].Name
		}
		return docs[i].ID < docs[j].ID
	})
	for _, d := range docs {
		result.Documents = append(result.Documents, DocumentInfo{
			DocID:       d.ID,
			DocName:     d.Name,
			Type:        d.FileType,
			TotalChunks: d.TotalChunks,
			CreatedAt:   d.CreatedAt,
		})
	}
	result.OK = true
	result.TotalDocuments = len(result.Documents)
	return result
}

// StatsResult aggregates the corpus.
type StatsResult struct {
	OK              bool           `json:"ok"`
	Message         string         `json:"message,omitempty"`
	TotalDocuments  int            `json:"total_documents"`
	TotalChunks     int            `json:"total_chunks"`
	TotalCharacters int            `json:"total_characters"`
	EstimatedWords  int            `json:"estimated_words"`
	DocumentsByType map[string]int `json:"documents_by_type"`
}

// charsPerWord approximates word count from character count.
const charsPerWord = 5

// Stats computes corpus totals from a freshly loaded snapshot.
func (u *RetrieveUseCase) Stats(ctx context.Context) (result StatsResult) {
	result.DocumentsByType = map[string]int{}
	defer func() {
		if r := recover(); r != nil {
			u.logger.Error("stats panicked", "panic", r)
			result = StatsResult{Message: fmt.Sprintf("internal error: %v", r), DocumentsByType: map[string]int{}}
		}
	}()

	snap, err := u.metadata.Get(ctx, true)
	if err != nil {
		u.logger.Error("failed to compute stats", "error", err)
		result.Message = err.Error()
		return result
	}

	for _, d := range snap.Docs {
		result.TotalDocuments++
		result.TotalChunks += d.TotalChunks
		result.TotalCharacters += d.TotalCharacters
		fileType := d.FileType
		if fileType == "" {
			fileType = "other"
		}
		result.DocumentsByType[fileType]++
	}
	result.EstimatedWords = result.TotalCharacters / charsPerWord
	result.OK = true
	return result
}
