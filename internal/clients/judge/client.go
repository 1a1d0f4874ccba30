// Package judge provides the HTTP client for the external LLM judge service.
// Overload signals from the service surface as domain.ErrJudgeOverloaded so
// callers can retry with backoff before falling back to a secondary model.
package judge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/avellar/conviction/internal/domain"
	"github.com/rs/zerolog"
)

const defaultTimeout = 120 * time.Second

// generateRequest is the wire shape of one generation call.
type generateRequest struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	Messages  []message `json:"messages"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// generateResponse is the wire shape of the service's reply.
type generateResponse struct {
	Content []contentBlock `json:"content"`
	Error   *apiError      `json:"error,omitempty"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type apiError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Client calls the judge service. It implements domain.Judge.
type Client struct {
	baseURL    string
	apiKey     string
	maxTokens  int
	httpClient *http.Client
	log        zerolog.Logger
}

// NewClient creates a judge client.
func NewClient(baseURL, apiKey string, maxTokens int, log zerolog.Logger) *Client {
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		apiKey:    apiKey,
		maxTokens: maxTokens,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
		log: log.With().Str("component", "judge_client").Logger(),
	}
}

// Generate sends one prompt to the named model and returns the text reply.
func (c *Client) Generate(ctx context.Context, model string, prompt string) (string, error) {
	body, err := json.Marshal(generateRequest{
		Model:     model,
		MaxTokens: c.maxTokens,
		Messages:  []message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal judge request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create judge request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)

	c.log.Debug().Str("model", model).Int("prompt_len", len(prompt)).Msg("Calling judge")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("judge request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read judge response: %w", err)
	}

	if overloaded(resp.StatusCode, raw) {
		return "", fmt.Errorf("judge returned status %d: %w", resp.StatusCode, domain.ErrJudgeOverloaded)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("judge API error: status %d, body: %s", resp.StatusCode, truncateBody(raw))
	}

	var decoded generateResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", fmt.Errorf("failed to decode judge response: %w", err)
	}
	if decoded.Error != nil {
		return "", fmt.Errorf("judge API error: %s: %s", decoded.Error.Type, decoded.Error.Message)
	}

	var text strings.Builder
	for _, block := range decoded.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return "", fmt.Errorf("judge returned empty response for model %s", model)
	}

	return text.String(), nil
}

// overloaded classifies transient capacity failures. 429 (rate limited),
// 503 (unavailable), and 529 (overloaded) are retryable, as is any error
// body that names an overloaded condition.
func overloaded(status int, body []byte) bool {
	switch status {
	case http.StatusTooManyRequests, http.StatusServiceUnavailable, 529:
		return true
	}
	if status >= 400 {
		lower := strings.ToLower(string(body))
		return strings.Contains(lower, "overloaded") || strings.Contains(lower, "unavailable")
	}
	return false
}

func truncateBody(raw []byte) string {
	const limit = 300
	if len(raw) <= limit {
		return string(raw)
	}
	return string(raw[:limit]) + "..."
}
