package embedding

import (
	"context"
	"hash/fnv"
	"strings"
	"unicode"

	"docrag/internal/domain"
)

// MockEmbedder hashes words into a fixed number of buckets. Texts that
// share words get similar vectors, which is enough for offline runs and
// tests.
type MockEmbedder struct {
	dimension int
}

func NewMockEmbedder(dimension int) *MockEmbedder {
	if dimension <= 0 {
		dimension = 64
	}
	return &MockEmbedder{dimension: dimension}
}

func (e *MockEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.NewEmbeddingError("mock", err)
	}
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		vec := make([]float32, e.dimension)
		for _, word := range strings.FieldsFunc(strings.ToLower(text), isSeparator) {
			h := fnv.New32a()
			h.Write([]byte(word))
			vec[h.Sum32()%uint32(e.dimension)]++
		}
		embeddings[i] = vec
	}
	return embeddings, nil
}

func isSeparator(r rune) bool {
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}

func (e *MockEmbedder) Dimension() int {
	return e.dimension
}

func (e *MockEmbedder) ModelName() string {
	return "mock"
}
