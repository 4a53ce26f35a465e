package retriever

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"docrag/internal/domain"
	"docrag/internal/logging"
	"docrag/internal/port"
)

// RerankOptions tunes the blend of vector similarity and oracle judgement.
type RerankOptions struct {
	Candidates       int
	TopN             int
	SimilarityWeight float64
	OracleWeight     float64
	MinOracleScore   int // candidates scoring at or below this are dropped
	Timeout          time.Duration
}

// DefaultRerankOptions returns the documented starting weights.
func DefaultRerankOptions() RerankOptions {
	return RerankOptions{
		Candidates:       20,
		TopN:             5,
		SimilarityWeight: 0.3,
		OracleWeight:     0.5,
		MinOracleScore:   1,
		Timeout:          15 * time.Second,
	}
}

const maxOracleScore = 10

// Reranker reorders vector results with a relevance oracle. An oracle
// failure never fails the query: the vector order is kept instead.
type Reranker struct {
	oracle port.RelevanceOracle
	opts   RerankOptions
	logger *slog.Logger
}

func NewReranker(oracle port.RelevanceOracle, opts RerankOptions, logger *slog.Logger) *Reranker {
	def := DefaultRerankOptions()
	if opts.Candidates <= 0 {
		opts.Candidates = def.Candidates
	}
	if opts.TopN <= 0 {
		opts.TopN = def.TopN
	}
	return &Reranker{
		oracle: oracle,
		opts:   opts,
		logger: logging.OrDefault(logger),
	}
}

// Rerank returns the final top-n and whether the oracle ordering was used.
// results must already be sorted by similarity.
func (r *Reranker) Rerank(ctx context.Context, query string, results []domain.ScoredChunk) ([]domain.ScoredChunk, bool) {
	if len(results) == 0 {
		return results, false
	}

	pool := results
	if len(pool) > r.opts.Candidates {
		pool = pool[:r.opts.Candidates]
	}

	scores, err := r.score(ctx, query, pool)
	if err != nil {
		r.logger.Warn("rerank failed, keeping vector order",
			"oracle", r.oracle.ModelName(),
			"error", err)
		return r.vectorTopN(results), false
	}

	reranked := make([]domain.ScoredChunk, 0, len(pool))
	for i, sc := range pool {
		score := scores[i]
		if score <= r.opts.MinOracleScore {
			continue
		}
		final := sc.Similarity*r.opts.SimilarityWeight + float64(score)/maxOracleScore*r.opts.OracleWeight
		sc.FinalScore = &final
		oracleScore := score
		sc.OracleScore = &oracleScore
		reranked = append(reranked, sc)
	}

	sort.SliceStable(reranked, func(i, j int) bool {
		a, b := reranked[i], reranked[j]
		if *a.FinalScore != *b.FinalScore {
			return *a.FinalScore > *b.FinalScore
		}
		if a.Similarity != b.Similarity {
			return a.Similarity > b.Similarity
		}
		return lessByPosition(a, b)
	})

	if len(reranked) > r.opts.TopN {
		reranked = reranked[:r.opts.TopN]
	}

	r.logger.Debug("rerank complete",
		"candidates", len(pool),
		"kept", len(reranked))
	return reranked, true
}

// score asks the oracle for every candidate and validates the answer.
// Scores are returned by position in pool.
func (r *Reranker) score(ctx context.Context, query string, pool []domain.ScoredChunk) ([]int, error) {
	if r.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.Timeout)
		defer cancel()
	}

	candidates := make([]port.Candidate, len(pool))
	for i, sc := range pool {
		candidates[i] = port.Candidate{ID: strconv.Itoa(i), Text: sc.Chunk.Text}
	}

	answer, err := r.oracle.Score(ctx, query, candidates)
	if err != nil {
		return nil, err
	}

	scores := make([]int, len(pool))
	for i, c := range candidates {
		score, ok := answer[c.ID]
		if !ok {
			return nil, domain.NewOracleError(fmt.Sprintf("no score for candidate %s", c.ID), nil)
		}
		if score < 0 || score > maxOracleScore {
			return nil, domain.NewOracleError(fmt.Sprintf("score %d for candidate %s out of range", score, c.ID), nil)
		}
		scores[i] = score
	}
	return scores, nil
}

func (r *Reranker) vectorTopN(results []domain.ScoredChunk) []domain.ScoredChunk {
	if len(results) > r.opts.TopN {
		return results[:r.opts.TopN]
	}
	return results
}
