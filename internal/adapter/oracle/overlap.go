package oracle

import (
	"context"
	"math"

	"docrag/internal/adapter/analyzer"
	"docrag/internal/domain"
	"docrag/internal/port"
)

// OverlapOracle scores candidates by the share of query terms they
// contain. It needs no network and serves offline setups.
type OverlapOracle struct {
	tokenizer *analyzer.Tokenizer
}

func NewOverlapOracle() *OverlapOracle {
	return &OverlapOracle{tokenizer: analyzer.NewTokenizer()}
}

func (o *OverlapOracle) ModelName() string {
	return "term-overlap"
}

func (o *OverlapOracle) Score(ctx context.Context, query string, candidates []port.Candidate) (map[string]int, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.NewOracleError("cancelled", err)
	}

	queryTerms := o.tokenizer.Terms(query)
	scores := make(map[string]int, len(candidates))
	for _, c := range candidates {
		if len(queryTerms) == 0 {
			scores[c.ID] = 0
			continue
		}
		docTerms := o.tokenizer.Terms(c.Text)
		matches := 0
		for term := range queryTerms {
			if _, ok := docTerms[term]; ok {
				matches++
			}
		}
		scores[c.ID] = int(math.Round(10 * float64(matches) / float64(len(queryTerms))))
	}
	return scores, nil
}
