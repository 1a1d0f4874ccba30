package domain

import (
	"context"
	"errors"
	"time"
)

// ErrJudgeOverloaded signals a transient "overloaded/unavailable" judge
// failure. Callers retry with backoff on this error only; any other judge
// error moves straight to the fallback model.
var ErrJudgeOverloaded = errors.New("judge overloaded")

// UniverseConditions are the structural filters that narrow the candidate
// universe before any scoring happens.
type UniverseConditions struct {
	Markets         []string `json:"markets,omitempty"`
	MinMarketCap    float64  `json:"min_market_cap,omitempty"`
	MinAvgVolume    float64  `json:"min_avg_volume,omitempty"`
	ExcludedSymbols []string `json:"excluded_symbols,omitempty"`
}

// UniverseFilter narrows a universe of symbols by structural conditions.
type UniverseFilter interface {
	Filter(ctx context.Context, conditions UniverseConditions) ([]string, error)
}

// OracleConfig is the scoring oracle's flat input shape for one model.
// It is built from typed metric-weight variants by the scoring module.
type OracleConfig struct {
	Model         ModelID            `json:"model"`
	MetricWeights map[string]float64 `json:"metric_weights"`
	Thresholds    map[string]float64 `json:"thresholds,omitempty"`
}

// ScoringOracle evaluates a batch of symbols under one model configuration.
// Implementations must handle hundreds of symbols in a single call.
type ScoringOracle interface {
	EvaluateBatch(ctx context.Context, symbols []string, cfg OracleConfig) (map[string]ModelScore, error)
}

// Judge is the external LLM service that resolves disagreement between the
// two models' theses. Generate may fail with ErrJudgeOverloaded.
type Judge interface {
	Generate(ctx context.Context, model string, prompt string) (string, error)
}

// MarketClock reports whether the market is open at a given time.
type MarketClock interface {
	IsOpen(t time.Time) bool
}

// PriceProvider supplies current prices for symbols.
type PriceProvider interface {
	GetPrice(symbol string) (float64, error)
	GetPricesBatch(symbols []string) (map[string]float64, error)
}

// ProgressSink receives coarse progress updates from a run. The job runner
// external to this engine supplies the implementation.
type ProgressSink interface {
	Report(percent int, message string, processed, total int)
}

// ProgressFunc adapts a function to the ProgressSink interface.
type ProgressFunc func(percent int, message string, processed, total int)

// Report calls the underlying function.
func (f ProgressFunc) Report(percent int, message string, processed, total int) {
	if f != nil {
		f(percent, message, processed, total)
	}
}
