package scoring

import (
	"fmt"

	"github.com/avellar/conviction/internal/domain"
)

// Metric identifies a fundamental metric the scoring oracle understands.
type Metric string

const (
	MetricPEGRatio        Metric = "peg_ratio"
	MetricEarningsGrowth  Metric = "earnings_growth"
	MetricRevenueGrowth   Metric = "revenue_growth"
	MetricROE             Metric = "return_on_equity"
	MetricDebtToEquity    Metric = "debt_to_equity"
	MetricFreeCashFlow    Metric = "free_cash_flow"
	MetricOperatingMargin Metric = "operating_margin"
	MetricInsiderBuying   Metric = "insider_buying"
	MetricMoatScore       Metric = "moat_score"
	MetricOwnerEarnings   Metric = "owner_earnings"
)

// MetricThresholds bounds a metric's acceptable range, where set.
type MetricThresholds struct {
	Min *float64
	Max *float64
}

// MetricWeight is one typed entry in a model's weighting scheme: a metric, its
// relative weight, and optional acceptance thresholds.
type MetricWeight struct {
	Metric     Metric
	Weight     float64
	Thresholds *MetricThresholds
}

// ModelProfile is a model's complete, typed weighting scheme. The builder maps
// it onto the oracle's flat input shape.
type ModelProfile struct {
	Model   domain.ModelID
	Weights []MetricWeight
}

// LynchProfile returns the growth-at-reasonable-price weighting scheme.
func LynchProfile() ModelProfile {
	maxPEG := 2.0
	return ModelProfile{
		Model: domain.ModelLynch,
		Weights: []MetricWeight{
			{Metric: MetricPEGRatio, Weight: 0.30, Thresholds: &MetricThresholds{Max: &maxPEG}},
			{Metric: MetricEarningsGrowth, Weight: 0.25},
			{Metric: MetricRevenueGrowth, Weight: 0.20},
			{Metric: MetricInsiderBuying, Weight: 0.15},
			{Metric: MetricDebtToEquity, Weight: 0.10},
		},
	}
}

// BuffettProfile returns the quality-and-moat weighting scheme.
func BuffettProfile() ModelProfile {
	minROE := 0.12
	return ModelProfile{
		Model: domain.ModelBuffett,
		Weights: []MetricWeight{
			{Metric: MetricROE, Weight: 0.25, Thresholds: &MetricThresholds{Min: &minROE}},
			{Metric: MetricMoatScore, Weight: 0.25},
			{Metric: MetricOwnerEarnings, Weight: 0.20},
			{Metric: MetricFreeCashFlow, Weight: 0.15},
			{Metric: MetricOperatingMargin, Weight: 0.15},
		},
	}
}

// BuildOracleConfig maps a typed model profile onto the oracle's flat config
// shape. Weights are normalized to sum to 1; duplicate metrics and
// non-positive weights are rejected.
func BuildOracleConfig(p ModelProfile) (domain.OracleConfig, error) {
	if len(p.Weights) == 0 {
		return domain.OracleConfig{}, fmt.Errorf("model profile %s has no metric weights", p.Model)
	}

	total := 0.0
	seen := make(map[Metric]bool, len(p.Weights))
	for _, w := range p.Weights {
		if w.Weight <= 0 {
			return domain.OracleConfig{}, fmt.Errorf("metric %s has non-positive weight %.3f", w.Metric, w.Weight)
		}
		if seen[w.Metric] {
			return domain.OracleConfig{}, fmt.Errorf("metric %s appears twice in profile %s", w.Metric, p.Model)
		}
		seen[w.Metric] = true
		total += w.Weight
	}

	cfg := domain.OracleConfig{
		Model:         p.Model,
		MetricWeights: make(map[string]float64, len(p.Weights)),
		Thresholds:    make(map[string]float64),
	}

	for _, w := range p.Weights {
		cfg.MetricWeights[string(w.Metric)] = w.Weight / total
		if w.Thresholds != nil {
			if w.Thresholds.Min != nil {
				cfg.Thresholds[string(w.Metric)+"_min"] = *w.Thresholds.Min
			}
			if w.Thresholds.Max != nil {
				cfg.Thresholds[string(w.Metric)+"_max"] = *w.Thresholds.Max
			}
		}
	}

	return cfg, nil
}
