// Package oracle provides the HTTP client for the external scoring service.
// The service evaluates symbol batches under a model configuration and
// returns per-symbol scores; it must handle hundreds of symbols per call.
package oracle

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

const defaultTimeout = 60 * time.Second

// evaluateRequest is the wire shape of one batch evaluation.
type evaluateRequest struct {
	Symbols []string            `json:"symbols"`
	Config  domain.OracleConfig `json:"config"`
}

// evaluateResponse maps symbol to score and status.
type evaluateResponse struct {
	Results map[string]domain.ModelScore `json:"results"`
}

// Client calls the scoring service. It implements domain.ScoringOracle.
type Client struct {
	baseURL    string
	httpClient *http.Client
	log        zerolog.Logger
}

// NewClient creates a scoring oracle client.
func NewClient(baseURL string, log zerolog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
		log: log.With().Str("component", "oracle_client").Logger(),
	}
}

// EvaluateBatch scores all symbols in one round trip.
func (c *Client) EvaluateBatch(ctx context.Context, symbols []string, cfg domain.OracleConfig) (map[string]domain.ModelScore, error) {
	if len(symbols) == 0 {
		return map[string]domain.ModelScore{}, nil
	}

	body, err := json.Marshal(evaluateRequest{Symbols: symbols, Config: cfg})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal oracle request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/evaluate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create oracle request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	c.log.Debug().
		Int("symbols", len(symbols)).
		Str("model", string(cfg.Model)).
		Msg("Calling scoring oracle")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("oracle request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("oracle API error: status %d, body: %s", resp.StatusCode, string(raw))
	}

	var decoded evaluateResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("failed to decode oracle response: %w", err)
	}

	return decoded.Results, nil
}
