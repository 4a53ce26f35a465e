package cli

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docrag/config"
)

// ollamaServer answers /embeddings with vectors of the given dimension.
func ollamaServer(t *testing.T, dim int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Input []string `json:"input"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		type item struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		}
		var resp struct {
			Data []item `json:"data"`
		}
		for i := range req.Input {
			vec := make([]float32, dim)
			vec[0] = 1
			resp.Data = append(resp.Data, item{Embedding: vec, Index: i})
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func TestNewEmbedder_DefaultConfigUsesModelDimension(t *testing.T) {
	srv := ollamaServer(t, 768)
	defer srv.Close()

	cfg := config.DefaultConfig()
	cfg.Embedding.Provider = "ollama"
	cfg.Embedding.Model = "nomic-embed-text"
	cfg.Embedding.BaseURL = srv.URL
	require.NoError(t, cfg.Validate())

	emb, err := newEmbedder(cfg.Embedding)
	require.NoError(t, err)
	assert.Equal(t, 768, emb.Dimension())

	vecs, err := emb.Embed(context.Background(), []string{"hola", "mundo"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.Len(t, vecs[0], 768)
}

func TestNewEmbedder_ExplicitDimensionIsEnforced(t *testing.T) {
	srv := ollamaServer(t, 768)
	defer srv.Close()

	cfg := config.DefaultConfig()
	cfg.Embedding.Provider = "ollama"
	cfg.Embedding.Model = "nomic-embed-text"
	cfg.Embedding.BaseURL = srv.URL
	cfg.Embedding.Dimension = 1024

	emb, err := newEmbedder(cfg.Embedding)
	require.NoError(t, err)

	_, err = emb.Embed(context.Background(), []string{"hola"})
	assert.Error(t, err)
}

func TestNewEmbedder_OpenAIDefaultDimension(t *testing.T) {
	t.Setenv("DOCRAG_TEST_KEY", "k")
	cfg := config.DefaultConfig()
	cfg.Embedding.APIKeyEnv = "DOCRAG_TEST_KEY"
	cfg.Embedding.Model = "text-embedding-3-large"

	emb, err := newEmbedder(cfg.Embedding)
	require.NoError(t, err)
	assert.Equal(t, 3072, emb.Dimension())
}
