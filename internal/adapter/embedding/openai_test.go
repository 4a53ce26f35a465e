package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docrag/internal/domain"
)

// fakeEmbeddingServer answers /embeddings with vectors [len(text), index].
func fakeEmbeddingServer(t *testing.T, calls *atomic.Int32, maxBatch *atomic.Int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req embeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if int32(len(req.Input)) > maxBatch.Load() {
			maxBatch.Store(int32(len(req.Input)))
		}

		resp := embeddingResponse{}
		// answer out of order to exercise index placement
		for i := len(req.Input) - 1; i >= 0; i-- {
			resp.Data = append(resp.Data, embeddingData{
				Index:     i,
				Embedding: []float32{float32(len(req.Input[i])), float32(i)},
			})
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func newTestEmbedder(t *testing.T, baseURL string) *OpenAIEmbedder {
	t.Helper()
	t.Setenv("TEST_EMBED_KEY", "test-key")
	e, err := NewOpenAICompatibleEmbedder("TEST_EMBED_KEY", "test-model", baseURL, Options{Dimension: 2, BatchSize: 5})
	require.NoError(t, err)
	return e
}

func TestOpenAIEmbedder_BatchesOfFive(t *testing.T) {
	var calls, maxBatch atomic.Int32
	srv := fakeEmbeddingServer(t, &calls, &maxBatch)
	defer srv.Close()

	e := newTestEmbedder(t, srv.URL)

	texts := make([]string, 12)
	for i := range texts {
		texts[i] = string(make([]byte, i+1))
	}

	vecs, err := e.Embed(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, vecs, 12)

	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, int32(5), maxBatch.Load())
	for i, v := range vecs {
		assert.Equal(t, float32(i+1), v[0], "vector %d is out of order", i)
	}
}

func TestOpenAIEmbedder_EmptyInput(t *testing.T) {
	e := newTestEmbedder(t, "http://127.0.0.1:0")
	vecs, err := e.Embed(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, vecs)
}

func TestOpenAIEmbedder_MissingAPIKey(t *testing.T) {
	t.Setenv("TEST_EMBED_KEY_UNSET", "")
	_, err := NewOpenAIEmbedder("TEST_EMBED_KEY_UNSET", "text-embedding-3-small", Options{})
	require.Error(t, err)
}

func TestOpenAIEmbedder_Failures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"server error", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "quota exceeded", http.StatusTooManyRequests)
		}},
		{"malformed body", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("{not json"))
		}},
		{"api error", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"error":{"message":"bad model","type":"invalid_request_error"}}`))
		}},
		{"missing vector", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"data":[{"index":0,"embedding":[1,2]}]}`))
		}},
		{"wrong dimension", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"data":[{"index":0,"embedding":[1,2,3]},{"index":1,"embedding":[1,2,3]}]}`))
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			e := newTestEmbedder(t, srv.URL)
			vecs, err := e.Embed(context.Background(), []string{"a", "b"})

			var embedErr *domain.EmbeddingError
			require.True(t, errors.As(err, &embedErr), "got %v", err)
			assert.Nil(t, vecs)
		})
	}
}

func TestOpenAIEmbedder_ContextCancelled(t *testing.T) {
	var calls, maxBatch atomic.Int32
	srv := fakeEmbeddingServer(t, &calls, &maxBatch)
	defer srv.Close()

	e := newTestEmbedder(t, srv.URL)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Embed(ctx, []string{"query"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestMockEmbedder_Deterministic(t *testing.T) {
	e := NewMockEmbedder(32)
	a, err := e.Embed(context.Background(), []string{"Plan de estudios", "plan de ESTUDIOS"})
	require.NoError(t, err)
	assert.Equal(t, a[0], a[1])
	assert.Len(t, a[0], 32)
	assert.Equal(t, "mock", e.ModelName())
}

type countingEmbedder struct {
	*MockEmbedder
	calls int
}

func (c *countingEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	c.calls++
	return c.MockEmbedder.Embed(ctx, texts)
}

func TestCachedEmbedder_MemoisesQueries(t *testing.T) {
	inner := &countingEmbedder{MockEmbedder: NewMockEmbedder(16)}
	cached := NewCachedEmbedder(inner, 4)

	first, err := cached.Embed(context.Background(), []string{"same query"})
	require.NoError(t, err)
	second, err := cached.Embed(context.Background(), []string{"same query"})
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, inner.calls)

	_, err = cached.Embed(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	_, err = cached.Embed(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, 3, inner.calls, "batches are not cached")
	assert.Equal(t, 16, cached.Dimension())
}
