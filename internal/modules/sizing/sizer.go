// Package sizing converts the run's surviving candidates into a target
// portfolio, then diffs that target against current holdings to produce
// concrete buy and sell orders.
package sizing

import (
	"fmt"
	"math"
	"sort"

	"github.com/avellar/conviction/internal/domain"
	"github.com/avellar/conviction/internal/modules/strategies"
	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/floats"
)

// kellyCapPct bounds the kelly fraction of portfolio value per position.
// The 1:1 payoff assumption and the hard cap are a deliberate heuristic;
// the shape is part of the observable contract and must not be "corrected".
const kellyCapPct = 0.25

// Sizer allocates capital across ranked candidates and rebalances toward the
// resulting target portfolio.
type Sizer struct {
	log zerolog.Logger
}

func NewSizer(log zerolog.Logger) *Sizer {
	return &Sizer{log: log.With().Str("component", "position_sizer").Logger()}
}

// CalculateTargetOrders ranks candidates by conviction, keeps the top
// max_positions, computes per-candidate target values under the configured
// method, and diffs targets against current holdings.
//
// Held symbols displaced from the target set are fully exited. Drifts within
// min_trade_amount produce no order. All orders are whole shares; sub-share
// remainders stay uninvested.
func (s *Sizer) CalculateTargetOrders(
	candidates []*domain.Candidate,
	portfolioValue float64,
	holdings map[string]domain.Holding,
	rules strategies.SizingRules,
	cashAvailable float64,
) ([]domain.ExitSignal, []domain.BuyOrder) {
	survivors := rankAndTrim(candidates, rules.MaxPositions)

	targets := s.computeTargets(survivors, portfolioValue, rules)

	if rules.MaxPositionPct > 0 {
		cap := portfolioValue * rules.MaxPositionPct
		for i := range targets {
			if targets[i].TargetValue > cap {
				targets[i].TargetValue = cap
			}
		}
	}

	targetSet := make(map[string]bool, len(targets))
	for i := range targets {
		symbol := targets[i].Symbol
		targetSet[symbol] = true
		if h, held := holdings[symbol]; held {
			targets[i].CurrentValue = h.MarketValue()
			targets[i].QuantityHeld = h.Quantity
		}
		targets[i].Drift = targets[i].TargetValue - targets[i].CurrentValue
	}

	var sells []domain.ExitSignal
	var buys []domain.BuyOrder

	// Held positions absent from the target set are displaced outright.
	for symbol, h := range holdings {
		if targetSet[symbol] {
			continue
		}
		gain := h.GainPercent()
		sells = append(sells, domain.ExitSignal{
			Symbol:       symbol,
			Quantity:     h.Quantity,
			Reason:       "displaced by higher-conviction opportunities",
			CurrentValue: h.MarketValue(),
			ExitType:     domain.ExitTypeFull,
			GainPct:      &gain,
		})
	}

	remaining := cashAvailable
	for _, t := range targets {
		switch {
		case t.Drift < -rules.MinTradeAmount:
			shares := math.Floor(-t.Drift / t.Price)
			if shares < 1 {
				continue
			}
			if shares > t.QuantityHeld {
				shares = t.QuantityHeld
			}
			sells = append(sells, domain.ExitSignal{
				Symbol:   t.Symbol,
				Quantity: shares,
				Reason:   fmt.Sprintf("trim toward $%.0f target", t.TargetValue),
				// Sale value of the trimmed shares only; downstream
				// accounting treats CurrentValue as the order's proceeds.
				CurrentValue: shares * t.Price,
				ExitType:     domain.ExitTypeTrim,
			})

		case t.Drift > rules.MinTradeAmount:
			shares := int(t.Drift / t.Price)
			if shares < 1 {
				continue
			}
			amount := float64(shares) * t.Price
			if amount > remaining {
				// Conviction order decides who gets the last dollars.
				shares = int(remaining / t.Price)
				amount = float64(shares) * t.Price
			}
			if shares < 1 {
				continue
			}
			remaining -= amount
			buys = append(buys, domain.BuyOrder{
				Symbol:     t.Symbol,
				Shares:     shares,
				Price:      t.Price,
				Amount:     amount,
				Conviction: t.Conviction,
				Reason:     fmt.Sprintf("%s allocation, conviction %.0f", methodOrDefault(rules.Method), t.Conviction),
			})
		}
	}

	s.log.Info().
		Int("candidates", len(candidates)).
		Int("survivors", len(survivors)).
		Int("sells", len(sells)).
		Int("buys", len(buys)).
		Float64("cash_remaining", remaining).
		Msg("Target orders calculated")

	return sells, buys
}

// rankAndTrim drops unpriced candidates, orders the rest by conviction
// descending (symbol as tiebreak for determinism), and keeps the top limit.
func rankAndTrim(candidates []*domain.Candidate, limit int) []*domain.Candidate {
	survivors := make([]*domain.Candidate, 0, len(candidates))
	for _, c := range candidates {
		if c.CurrentPrice > 0 {
			survivors = append(survivors, c)
		}
	}

	sort.Slice(survivors, func(i, j int) bool {
		ci, cj := survivors[i].Conviction(), survivors[j].Conviction()
		if ci != cj {
			return ci > cj
		}
		return survivors[i].Symbol < survivors[j].Symbol
	})

	if limit > 0 && len(survivors) > limit {
		survivors = survivors[:limit]
	}
	return survivors
}

func (s *Sizer) computeTargets(survivors []*domain.Candidate, portfolioValue float64, rules strategies.SizingRules) []domain.TargetAllocation {
	if len(survivors) == 0 {
		return nil
	}

	targets := make([]domain.TargetAllocation, len(survivors))
	for i, c := range survivors {
		targets[i] = domain.TargetAllocation{
			Symbol:     c.Symbol,
			Conviction: c.Conviction(),
			Price:      c.CurrentPrice,
		}
	}

	equal := portfolioValue / float64(len(survivors))

	switch rules.Method {
	case strategies.SizingConvictionWeighted:
		convictions := make([]float64, len(targets))
		for i := range targets {
			convictions[i] = targets[i].Conviction
		}
		total := floats.Sum(convictions)
		if total <= 0 {
			for i := range targets {
				targets[i].TargetValue = equal
			}
			break
		}
		for i := range targets {
			targets[i].TargetValue = portfolioValue * (targets[i].Conviction / total)
		}

	case strategies.SizingFixedPct:
		// Sum may exceed 100% of portfolio value; concentrated strategies
		// rely on the cash constraint downstream, not on this loop.
		for i := range targets {
			targets[i].TargetValue = portfolioValue * rules.FixedPct
		}

	case strategies.SizingKelly:
		for i := range targets {
			targets[i].TargetValue = portfolioValue * kellyFraction(targets[i].Conviction)
		}

	default: // equal_weight and anything unrecognized
		for i := range targets {
			targets[i].TargetValue = equal
		}
	}

	return targets
}

// kellyFraction sizes from conviction read as an implied win probability with
// a 1:1 payoff: f = 2p - 1, halved, clamped to [0, kellyCapPct].
func kellyFraction(conviction float64) float64 {
	p := conviction / 100
	f := (2*p - 1) / 2
	if f < 0 {
		return 0
	}
	if f > kellyCapPct {
		return kellyCapPct
	}
	return f
}

func methodOrDefault(m strategies.SizingMethod) strategies.SizingMethod {
	if m == "" {
		return strategies.SizingEqualWeight
	}
	return m
}
