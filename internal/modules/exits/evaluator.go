// Package exits determines which currently-held positions must be sold, from
// strategy-defined exit rules and from re-evaluation against current universe
// and score criteria.
package exits

import (
	"context"
	"fmt"
	"time"

	"github.com/avellar/conviction/internal/domain"
	"github.com/avellar/conviction/internal/modules/strategies"
	"github.com/rs/zerolog"
)

// ScoringFunc resolves current per-model scores for one held symbol.
type ScoringFunc func(ctx context.Context, symbol string) (map[domain.ModelID]domain.ModelScore, error)

// UniverseChecker reports whether a symbol still belongs to the universe.
type UniverseChecker interface {
	Contains(ctx context.Context, symbol string, conditions domain.UniverseConditions) (bool, error)
}

// Evaluator applies exit conditions and holding re-evaluation to holdings.
type Evaluator struct {
	universe UniverseChecker
	log      zerolog.Logger
}

// NewEvaluator creates an exit evaluator.
func NewEvaluator(universe UniverseChecker, log zerolog.Logger) *Evaluator {
	return &Evaluator{
		universe: universe,
		log:      log.With().Str("component", "exit_evaluator").Logger(),
	}
}

// CheckExits evaluates stop-loss, target-gain, and time-based rules per
// holding. Every triggered rule produces a full exit.
func (e *Evaluator) CheckExits(holdings map[string]domain.Holding, cfg strategies.ExitConditions, now time.Time) []domain.ExitSignal {
	var signals []domain.ExitSignal

	for symbol, holding := range holdings {
		if holding.CurrentPrice <= 0 {
			e.log.Debug().Str("symbol", symbol).Msg("No current price, skipping exit rules")
			continue
		}

		gain := holding.GainPercent()

		var reason string
		switch {
		case cfg.StopLossPct > 0 && gain <= -cfg.StopLossPct:
			reason = fmt.Sprintf("stop loss triggered: %.1f%% loss breaches %.1f%% limit", -gain*100, cfg.StopLossPct*100)
		case cfg.TargetGainPct > 0 && gain >= cfg.TargetGainPct:
			reason = fmt.Sprintf("target reached: %.1f%% gain clears %.1f%% target", gain*100, cfg.TargetGainPct*100)
		case cfg.MaxHoldDays > 0 && heldDays(holding, now) > cfg.MaxHoldDays:
			reason = fmt.Sprintf("held %d days, beyond %d day limit", heldDays(holding, now), cfg.MaxHoldDays)
		default:
			continue
		}

		signals = append(signals, fullExit(holding, reason, gain))
	}

	e.log.Info().Int("signals", len(signals)).Msg("Exit rules evaluated")
	return signals
}

// CheckHoldings re-evaluates positions held beyond the grace period against
// the current universe and score thresholds. Positions within the grace
// period are never flagged regardless of current standing. The universe and
// score checks are independently toggleable.
//
// A scoring or universe failure for one holding skips only that holding.
func (e *Evaluator) CheckHoldings(
	ctx context.Context,
	holdings map[string]domain.Holding,
	universeConditions domain.UniverseConditions,
	cfg strategies.ExitConditions,
	scoringFn ScoringFunc,
	now time.Time,
) []domain.ExitSignal {
	if !cfg.ReevaluateHoldings {
		return nil
	}

	var signals []domain.ExitSignal

	for symbol, holding := range holdings {
		if heldDays(holding, now) <= cfg.GracePeriodDays {
			continue
		}

		gain := holding.GainPercent()

		if cfg.CheckUniverseMembership {
			inUniverse, err := e.universe.Contains(ctx, symbol, universeConditions)
			if err != nil {
				e.log.Warn().Err(err).Str("symbol", symbol).Msg("Universe check failed, skipping holding")
				continue
			}
			if !inUniverse {
				signals = append(signals, fullExit(holding, "no longer passes universe filters", gain))
				continue
			}
		}

		if cfg.CheckMinScores && scoringFn != nil {
			scores, err := scoringFn(ctx, symbol)
			if err != nil {
				e.log.Warn().Err(err).Str("symbol", symbol).Msg("Re-scoring failed, skipping holding")
				continue
			}

			// Consistent with entry scoring: either model clearing the bar keeps
			// the position.
			passes := false
			for _, s := range scores {
				if s.Score >= cfg.MinScore {
					passes = true
					break
				}
			}
			if !passes {
				signals = append(signals, fullExit(holding,
					fmt.Sprintf("neither model clears minimum score %.0f on re-evaluation", cfg.MinScore), gain))
			}
		}
	}

	e.log.Info().Int("signals", len(signals)).Msg("Holding re-evaluation complete")
	return signals
}

func fullExit(h domain.Holding, reason string, gain float64) domain.ExitSignal {
	return domain.ExitSignal{
		Symbol:       h.Symbol,
		Quantity:     h.Quantity,
		Reason:       reason,
		CurrentValue: h.MarketValue(),
		ExitType:     domain.ExitTypeFull,
		GainPct:      &gain,
	}
}

func heldDays(h domain.Holding, now time.Time) int {
	if h.OpenedAt.IsZero() {
		return 0
	}
	return int(now.Sub(h.OpenedAt).Hours() / 24)
}
