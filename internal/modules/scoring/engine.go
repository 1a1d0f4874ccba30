// Package scoring batches candidates through the external scoring oracle for
// both evaluation models and applies pass/fail thresholds.
package scoring

import (
	"context"
	"fmt"

	"github.com/avellar/conviction/internal/domain"
	"github.com/avellar/conviction/internal/modules/strategies"
	"github.com/rs/zerolog"
)

// additionThresholdBump is added to the new-position thresholds when a
// strategy does not define explicit addition requirements. Buying more of
// something already held faces a stricter bar than opening a position.
const additionThresholdBump = 10

// Engine scores candidate symbols through the oracle under both models.
type Engine struct {
	oracle     domain.ScoringOracle
	lynchCfg   domain.OracleConfig
	buffettCfg domain.OracleConfig
	log        zerolog.Logger
}

// NewEngine creates a scoring engine with the default model profiles.
func NewEngine(oracle domain.ScoringOracle, log zerolog.Logger) (*Engine, error) {
	lynchCfg, err := BuildOracleConfig(LynchProfile())
	if err != nil {
		return nil, fmt.Errorf("failed to build lynch oracle config: %w", err)
	}

	buffettCfg, err := BuildOracleConfig(BuffettProfile())
	if err != nil {
		return nil, fmt.Errorf("failed to build buffett oracle config: %w", err)
	}

	return &Engine{
		oracle:     oracle,
		lynchCfg:   lynchCfg,
		buffettCfg: buffettCfg,
		log:        log.With().Str("component", "scoring_engine").Logger(),
	}, nil
}

// Score evaluates symbols under both models and splits them by the strategy's
// thresholds. A candidate passes when EITHER model clears its bar - one
// expert's endorsement is enough to reach deliberation.
//
// For additions, failures are not dropped: they come back as declined
// candidates flagged held_exit_evaluation, because a held position failing
// the stricter addition bar is itself worth deliberating as a possible exit.
// Failed new-position candidates are simply discarded.
func (e *Engine) Score(
	ctx context.Context,
	symbols []string,
	conditions strategies.ScoringConditions,
	isAddition bool,
) (passing []*domain.Candidate, declined []*domain.Candidate, err error) {
	if len(symbols) == 0 {
		return nil, nil, nil
	}

	minLynch, minBuffett := e.thresholds(conditions, isAddition)

	lynchScores, err := e.oracle.EvaluateBatch(ctx, symbols, e.lynchCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("lynch scoring batch failed: %w", err)
	}

	buffettScores, err := e.oracle.EvaluateBatch(ctx, symbols, e.buffettCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("buffett scoring batch failed: %w", err)
	}

	positionType := domain.PositionTypeNew
	if isAddition {
		positionType = domain.PositionTypeAddition
	}

	for _, symbol := range symbols {
		lynch, hasLynch := lynchScores[symbol]
		buffett, hasBuffett := buffettScores[symbol]
		if !hasLynch && !hasBuffett {
			e.log.Debug().Str("symbol", symbol).Msg("Oracle returned no scores, skipping")
			continue
		}

		candidate := &domain.Candidate{
			Symbol:       symbol,
			PositionType: positionType,
			Scores:       map[domain.ModelID]domain.ModelScore{},
			Theses:       map[domain.ModelID]*domain.Thesis{},
		}
		if hasLynch {
			candidate.Scores[domain.ModelLynch] = lynch
		}
		if hasBuffett {
			candidate.Scores[domain.ModelBuffett] = buffett
		}

		// OR-logic: either model clearing its threshold is sufficient
		passes := (hasLynch && lynch.Score >= minLynch) ||
			(hasBuffett && buffett.Score >= minBuffett)

		if passes {
			passing = append(passing, candidate)
			continue
		}

		if isAddition {
			candidate.PositionType = domain.PositionTypeHeldExitEvaluation
			declined = append(declined, candidate)
		}
	}

	e.log.Info().
		Int("symbols", len(symbols)).
		Int("passing", len(passing)).
		Int("declined", len(declined)).
		Bool("is_addition", isAddition).
		Float64("min_lynch", minLynch).
		Float64("min_buffett", minBuffett).
		Msg("Scoring phase complete")

	return passing, declined, nil
}

// ScoreSymbol evaluates a single held symbol under both models. Used by exit
// checks and holding re-evaluation, where candidates arrive one at a time.
func (e *Engine) ScoreSymbol(ctx context.Context, symbol string) (map[domain.ModelID]domain.ModelScore, error) {
	lynchScores, err := e.oracle.EvaluateBatch(ctx, []string{symbol}, e.lynchCfg)
	if err != nil {
		return nil, fmt.Errorf("lynch scoring failed for %s: %w", symbol, err)
	}

	buffettScores, err := e.oracle.EvaluateBatch(ctx, []string{symbol}, e.buffettCfg)
	if err != nil {
		return nil, fmt.Errorf("buffett scoring failed for %s: %w", symbol, err)
	}

	scores := make(map[domain.ModelID]domain.ModelScore, 2)
	if s, ok := lynchScores[symbol]; ok {
		scores[domain.ModelLynch] = s
	}
	if s, ok := buffettScores[symbol]; ok {
		scores[domain.ModelBuffett] = s
	}

	return scores, nil
}

// thresholds resolves the effective per-model minimum scores. Additions use
// the explicit addition requirements when present, otherwise the new-position
// requirements raised by the bump.
func (e *Engine) thresholds(conditions strategies.ScoringConditions, isAddition bool) (minLynch, minBuffett float64) {
	req := conditions.Requirements

	if !isAddition {
		return req.MinLynchScore, req.MinBuffettScore
	}

	if conditions.AdditionRequirements != nil {
		return conditions.AdditionRequirements.MinLynchScore, conditions.AdditionRequirements.MinBuffettScore
	}

	return req.MinLynchScore + additionThresholdBump, req.MinBuffettScore + additionThresholdBump
}
