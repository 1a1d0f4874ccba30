// Package execution applies a run's sized orders to the portfolio ledger.
// It is the only component that mutates portfolio state, and only during the
// trade execution phase.
package execution

import (
	"time"

	"github.com/avellar/conviction/internal/domain"
	"github.com/avellar/conviction/internal/modules/portfolio"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Ledger is the portfolio persistence consumed by the coordinator.
type Ledger interface {
	RecordTransaction(t portfolio.Transaction) error
	CreatePendingOrder(o domain.PendingOrder) (created bool, err error)
}

// Result summarizes one execution phase.
type Result struct {
	SellCount int     // executed or intended sells, including suppressed duplicates
	BuyCount  int     // executed or intended buys, including suppressed duplicates
	Proceeds  float64 // realized (market open) or anticipated (market closed) sale value
}

// Coordinator executes exits and buys, either immediately against live prices
// or by queueing pending orders when the market is closed.
type Coordinator struct {
	ledger Ledger
	prices domain.PriceProvider
	log    zerolog.Logger
}

func NewCoordinator(ledger Ledger, prices domain.PriceProvider, log zerolog.Logger) *Coordinator {
	return &Coordinator{
		ledger: ledger,
		prices: prices,
		log:    log.With().Str("component", "trade_execution").Logger(),
	}
}

// AvailableCash implements the first half of two-phase cash accounting:
// sizing may spend the stored balance plus anticipated proceeds from exits
// decided in this same run, before those exits settle.
func AvailableCash(cashBalance float64, exits []domain.ExitSignal) float64 {
	available := cashBalance
	for _, e := range exits {
		available += e.CurrentValue
	}
	return available
}

// HoldingsExcluding returns the holdings snapshot with fully-exited symbols
// removed, so a displaced position's capital can be redeployed within the
// same run. Trims keep their holding in the snapshot.
func HoldingsExcluding(holdings map[string]domain.Holding, exits []domain.ExitSignal) map[string]domain.Holding {
	exited := make(map[string]bool, len(exits))
	for _, e := range exits {
		if e.ExitType == domain.ExitTypeFull {
			exited[e.Symbol] = true
		}
	}

	remaining := make(map[string]domain.Holding, len(holdings))
	for symbol, h := range holdings {
		if !exited[symbol] {
			remaining[symbol] = h
		}
	}
	return remaining
}

// Execute applies exits then buys. With the market open, orders settle
// immediately against a live price (falling back to the order's carried
// price). With the market closed, orders queue as pending actions; duplicate
// queueing per symbol+side is suppressed but still counted as intended.
//
// Validation failures on individual orders (insufficient holdings, zero
// quantity) drop that order and continue; they are not run failures.
func (c *Coordinator) Execute(exits []domain.ExitSignal, buys []domain.BuyOrder, portfolioID, runID string, marketOpen bool) Result {
	var res Result

	for _, exit := range exits {
		if exit.Quantity <= 0 {
			continue
		}
		if marketOpen {
			price := c.livePrice(exit.Symbol, fallbackPrice(exit))
			if price <= 0 {
				c.log.Warn().Str("symbol", exit.Symbol).Msg("No price for exit, order dropped")
				continue
			}
			err := c.ledger.RecordTransaction(portfolio.Transaction{
				PortfolioID: portfolioID,
				Symbol:      exit.Symbol,
				Side:        "SELL",
				Quantity:    exit.Quantity,
				Price:       price,
				Reason:      exit.Reason,
				RunID:       runID,
				ExecutedAt:  time.Now(),
			})
			if err != nil {
				c.log.Warn().Err(err).Str("symbol", exit.Symbol).Msg("Sell dropped")
				continue
			}
			res.SellCount++
			res.Proceeds += exit.Quantity * price
		} else {
			created, err := c.ledger.CreatePendingOrder(pendingOrder(portfolioID, exit.Symbol, "SELL", exit.Quantity, exit.CurrentValue, exit.Reason))
			if err != nil {
				c.log.Warn().Err(err).Str("symbol", exit.Symbol).Msg("Failed to queue sell")
				continue
			}
			if !created {
				c.log.Debug().Str("symbol", exit.Symbol).Msg("Sell already queued, duplicate suppressed")
			}
			// Intended regardless of duplicate suppression.
			res.SellCount++
			res.Proceeds += exit.CurrentValue
		}
	}

	for _, buy := range buys {
		if buy.Shares <= 0 {
			continue
		}
		if marketOpen {
			price := c.livePrice(buy.Symbol, buy.Price)
			if price <= 0 {
				c.log.Warn().Str("symbol", buy.Symbol).Msg("No price for buy, order dropped")
				continue
			}
			err := c.ledger.RecordTransaction(portfolio.Transaction{
				PortfolioID: portfolioID,
				Symbol:      buy.Symbol,
				Side:        "BUY",
				Quantity:    float64(buy.Shares),
				Price:       price,
				Reason:      buy.Reason,
				RunID:       runID,
				ExecutedAt:  time.Now(),
			})
			if err != nil {
				c.log.Warn().Err(err).Str("symbol", buy.Symbol).Msg("Buy dropped")
				continue
			}
			res.BuyCount++
		} else {
			created, err := c.ledger.CreatePendingOrder(pendingOrder(portfolioID, buy.Symbol, "BUY", float64(buy.Shares), buy.Amount, buy.Reason))
			if err != nil {
				c.log.Warn().Err(err).Str("symbol", buy.Symbol).Msg("Failed to queue buy")
				continue
			}
			if !created {
				c.log.Debug().Str("symbol", buy.Symbol).Msg("Buy already queued, duplicate suppressed")
			}
			res.BuyCount++
		}
	}

	c.log.Info().
		Bool("market_open", marketOpen).
		Int("sells", res.SellCount).
		Int("buys", res.BuyCount).
		Float64("proceeds", res.Proceeds).
		Msg("Execution phase complete")

	return res
}

func (c *Coordinator) livePrice(symbol string, fallback float64) float64 {
	price, err := c.prices.GetPrice(symbol)
	if err != nil || price <= 0 {
		return fallback
	}
	return price
}

func fallbackPrice(exit domain.ExitSignal) float64 {
	if exit.Quantity <= 0 {
		return 0
	}
	return exit.CurrentValue / exit.Quantity
}

func pendingOrder(portfolioID, symbol, side string, quantity, estimatedValue float64, reason string) domain.PendingOrder {
	return domain.PendingOrder{
		ID:             uuid.NewString(),
		PortfolioID:    portfolioID,
		Symbol:         symbol,
		Side:           side,
		Quantity:       quantity,
		EstimatedValue: estimatedValue,
		Reason:         reason,
		CreatedAt:      time.Now(),
	}
}
