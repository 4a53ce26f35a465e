package oracle

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docrag/internal/domain"
	"docrag/internal/port"
)

var (
	_ port.RelevanceOracle = (*LLMOracle)(nil)
	_ port.RelevanceOracle = (*OverlapOracle)(nil)
)

func chatServer(t *testing.T, status int, content string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "judge", req.Model)
		require.Len(t, req.Messages, 2)
		assert.Contains(t, req.Messages[1].Content, "[id=0]")

		w.WriteHeader(status)
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]string{"role": "assistant", "content": content}}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestOracle(t *testing.T, url string) *LLMOracle {
	t.Helper()
	t.Setenv("TEST_ORACLE_KEY", "test-key")
	o, err := NewLLMOracle("TEST_ORACLE_KEY", "judge", url, 5*time.Second)
	require.NoError(t, err)
	return o
}

var candidates = []port.Candidate{
	{ID: "0", Text: "La meta de retención es 85%."},
	{ID: "1", Text: "El calendario académico inicia en marzo."},
}

func TestLLMOracle_Score(t *testing.T) {
	srv := chatServer(t, http.StatusOK, "```json\n{\"scores\": {\"0\": 9, \"1\": 2}}\n```")
	o := newTestOracle(t, srv.URL)

	scores, err := o.Score(context.Background(), "¿cuál es la meta de retención?", candidates)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"0": 9, "1": 2}, scores)
}

func TestLLMOracle_Failures(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		content string
	}{
		{"non-200", http.StatusInternalServerError, `{"scores":{"0":1,"1":1}}`},
		{"not json", http.StatusOK, "I think the first one is best"},
		{"missing id", http.StatusOK, `{"scores":{"0":7}}`},
		{"out of range", http.StatusOK, `{"scores":{"0":7,"1":12}}`},
		{"fractional", http.StatusOK, `{"scores":{"0":7.5,"1":3}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := chatServer(t, tt.status, tt.content)
			o := newTestOracle(t, srv.URL)

			_, err := o.Score(context.Background(), "q", candidates)
			var oracleErr *domain.OracleError
			assert.ErrorAs(t, err, &oracleErr)
		})
	}
}

func TestLLMOracle_MissingAPIKey(t *testing.T) {
	t.Setenv("TEST_ORACLE_EMPTY", "")
	_, err := NewLLMOracle("TEST_ORACLE_EMPTY", "judge", "", 0)
	assert.Error(t, err)
}

func TestLLMOracle_NoCandidates(t *testing.T) {
	o := newTestOracle(t, "http://127.0.0.1:0")
	scores, err := o.Score(context.Background(), "q", nil)
	require.NoError(t, err)
	assert.Empty(t, scores)
}

func TestOverlapOracle_Score(t *testing.T) {
	o := NewOverlapOracle()

	scores, err := o.Score(context.Background(), "meta de retencion", candidates)
	require.NoError(t, err)
	assert.Equal(t, 10, scores["0"])
	assert.Equal(t, 0, scores["1"])
}

func TestOverlapOracle_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewOverlapOracle().Score(ctx, "q", candidates)
	var oracleErr *domain.OracleError
	assert.ErrorAs(t, err, &oracleErr)
}
