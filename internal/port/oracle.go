package port

import "context"

// RelevanceOracle judges how relevant each candidate is to a query.
type RelevanceOracle interface {
	// Score returns an integer relevance in 0..10 keyed by candidate ID.
	// A malformed or incomplete answer is an error.
	Score(ctx context.Context, query string, candidates []Candidate) (map[string]int, error)

	// ModelName returns the name of the judging model.
	ModelName() string
}

// Candidate is a chunk offered to the oracle.
type Candidate struct {
	ID   string
	Text string
}
