package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"strings"
	"time"

	"docrag/internal/domain"
	"docrag/internal/port"
)

// maxCandidateChars bounds how much of each chunk is shown to the model.
const maxCandidateChars = 1500

const systemPrompt = `You grade search results. For each candidate passage, rate how well it helps answer the question on an integer scale from 0 (irrelevant) to 10 (directly answers it).
Reply with JSON only, in the form {"scores":{"<id>":<score>}}, with one entry per candidate id.`

// LLMOracle scores candidates with an OpenAI-compatible chat model.
type LLMOracle struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

type scoreAnswer struct {
	Scores map[string]float64 `json:"scores"`
}

// NewLLMOracle reads the API key from apiKeyEnv. An empty apiKeyEnv is
// allowed for local endpoints that need no key.
func NewLLMOracle(apiKeyEnv, model, baseURL string, timeout time.Duration) (*LLMOracle, error) {
	var apiKey string
	if apiKeyEnv != "" {
		apiKey = os.Getenv(apiKeyEnv)
		if apiKey == "" {
			return nil, fmt.Errorf("API key not found in environment variable: %s", apiKeyEnv)
		}
	}
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &LLMOracle{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		client:  &http.Client{Timeout: timeout},
	}, nil
}

func (o *LLMOracle) ModelName() string {
	return o.model
}

func (o *LLMOracle) Score(ctx context.Context, query string, candidates []port.Candidate) (map[string]int, error) {
	if len(candidates) == 0 {
		return map[string]int{}, nil
	}

	reqBody := chatRequest{
		Model: o.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: buildPrompt(query, candidates)},
		},
		Temperature:    0,
		ResponseFormat: &responseFormat{Type: "json_object"},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, domain.NewOracleError("failed to marshal request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/chat/completions", bytes.NewReader(jsonData))
	if err != nil {
		return nil, domain.NewOracleError("failed to create request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if o.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+o.apiKey)
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, domain.NewOracleError("request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.NewOracleError("failed to read response", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, domain.NewOracleError(fmt.Sprintf("API returned status %d: %s", resp.StatusCode, truncate(string(body), 200)), nil)
	}

	var chatResp chatResponse
	if err := json.Unmarshal(body, &chatResp); err != nil {
		return nil, domain.NewOracleError("failed to parse response", err)
	}
	if chatResp.Error != nil {
		return nil, domain.NewOracleError("API error: "+chatResp.Error.Message, nil)
	}
	if len(chatResp.Choices) == 0 {
		return nil, domain.NewOracleError("no choices in response", nil)
	}

	return parseScores(chatResp.Choices[0].Message.Content, candidates)
}

func buildPrompt(query string, candidates []port.Candidate) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n\nCandidates:\n", query)
	for _, c := range candidates {
		fmt.Fprintf(&b, "\n[id=%s]\n%s\n", c.ID, truncate(c.Text, maxCandidateChars))
	}
	return b.String()
}

// parseScores extracts the JSON object from the model reply and checks
// that every candidate got an integer score in 0..10.
func parseScores(content string, candidates []port.Candidate) (map[string]int, error) {
	var answer scoreAnswer
	if err := json.Unmarshal([]byte(extractJSON(content)), &answer); err != nil {
		return nil, domain.NewOracleError("unparseable scores", err)
	}

	scores := make(map[string]int, len(candidates))
	for _, c := range candidates {
		raw, ok := answer.Scores[c.ID]
		if !ok {
			return nil, domain.NewOracleError(fmt.Sprintf("missing score for %s", c.ID), nil)
		}
		if raw != math.Trunc(raw) || raw < 0 || raw > 10 {
			return nil, domain.NewOracleError(fmt.Sprintf("invalid score %v for %s", raw, c.ID), nil)
		}
		scores[c.ID] = int(raw)
	}
	return scores, nil
}

func extractJSON(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start >= 0 && end > start {
		return s[start : end+1]
	}
	return s
}

func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen]) + "..."
}
