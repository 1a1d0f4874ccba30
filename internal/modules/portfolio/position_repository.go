// Package portfolio provides the capital ledger: holdings, cash balances,
// executed transactions, and the pending order queue.
//
// Portfolio state is mutated only by the trade execution coordinator during
// the trade execution phase of a run.
package portfolio

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/avellar/conviction/internal/database"
	"github.com/avellar/conviction/internal/domain"
	"github.com/rs/zerolog"
)

// Transaction is one executed buy or sell against the ledger.
type Transaction struct {
	PortfolioID string
	Symbol      string
	Side        string // "BUY" or "SELL"
	Quantity    float64
	Price       float64
	Reason      string
	RunID       string
	ExecutedAt  time.Time
}

// PositionRepository handles portfolio state persistence.
type PositionRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewPositionRepository creates a new position repository.
func NewPositionRepository(db *sql.DB, log zerolog.Logger) *PositionRepository {
	return &PositionRepository{
		db:  db,
		log: log.With().Str("repo", "position").Logger(),
	}
}

// GetHoldings returns the current holdings for a portfolio, keyed by symbol.
// Prices are not stored with positions; callers enrich from a PriceProvider.
func (r *PositionRepository) GetHoldings(portfolioID string) (map[string]domain.Holding, error) {
	rows, err := r.db.Query(`
		SELECT symbol, quantity, average_cost, opened_at
		FROM positions WHERE portfolio_id = ? AND quantity > 0`, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("failed to get holdings for %s: %w", portfolioID, err)
	}
	defer rows.Close()

	holdings := make(map[string]domain.Holding)
	for rows.Next() {
		var (
			h        domain.Holding
			openedAt int64
		)
		if err := rows.Scan(&h.Symbol, &h.Quantity, &h.AverageCost, &openedAt); err != nil {
			return nil, err
		}
		h.OpenedAt = time.Unix(openedAt, 0)
		holdings[h.Symbol] = h
	}

	return holdings, rows.Err()
}

// GetCashBalance returns the portfolio's cash balance.
// Returns 0 if no balance row exists (not an error).
func (r *PositionRepository) GetCashBalance(portfolioID string) (float64, error) {
	var balance float64
	err := r.db.QueryRow(`SELECT balance FROM cash_balances WHERE portfolio_id = ?`, portfolioID).Scan(&balance)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get cash balance for %s: %w", portfolioID, err)
	}
	return balance, nil
}

// SetCashBalance upserts the portfolio's cash balance.
func (r *PositionRepository) SetCashBalance(portfolioID string, balance float64) error {
	_, err := r.db.Exec(`
		INSERT INTO cash_balances (portfolio_id, balance, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(portfolio_id) DO UPDATE SET balance = excluded.balance, updated_at = excluded.updated_at`,
		portfolioID, balance, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to set cash balance for %s: %w", portfolioID, err)
	}
	return nil
}

// RecordTransaction applies an executed trade atomically: it appends to the
// transaction ledger, adjusts the position (average cost on buys), and moves
// cash. Sells that empty a position delete the position row.
func (r *PositionRepository) RecordTransaction(t Transaction) error {
	if t.Quantity <= 0 {
		return fmt.Errorf("transaction quantity must be positive")
	}
	if t.Price <= 0 {
		return fmt.Errorf("transaction price must be positive")
	}
	if t.Side != "BUY" && t.Side != "SELL" {
		return fmt.Errorf("invalid transaction side: %s", t.Side)
	}

	value := t.Quantity * t.Price

	return database.WithTransaction(r.db, func(tx *sql.Tx) error {
		if _, err := tx.Exec(`
			INSERT INTO transactions (portfolio_id, symbol, side, quantity, price, reason, run_id, executed_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			t.PortfolioID, t.Symbol, t.Side, t.Quantity, t.Price,
			t.Reason, t.RunID, t.ExecutedAt.Unix()); err != nil {
			return fmt.Errorf("failed to append transaction: %w", err)
		}

		var (
			quantity    float64
			averageCost float64
		)
		err := tx.QueryRow(`
			SELECT quantity, average_cost FROM positions
			WHERE portfolio_id = ? AND symbol = ?`, t.PortfolioID, t.Symbol).
			Scan(&quantity, &averageCost)
		if err != nil && err != sql.ErrNoRows {
			return fmt.Errorf("failed to read position: %w", err)
		}

		now := time.Now().Unix()

		switch t.Side {
		case "BUY":
			newQuantity := quantity + t.Quantity
			// Weighted average cost across the old lot and the new lot
			newCost := (quantity*averageCost + value) / newQuantity

			if err == sql.ErrNoRows {
				if _, err := tx.Exec(`
					INSERT INTO positions (portfolio_id, symbol, quantity, average_cost, opened_at, updated_at)
					VALUES (?, ?, ?, ?, ?, ?)`,
					t.PortfolioID, t.Symbol, newQuantity, newCost, now, now); err != nil {
					return fmt.Errorf("failed to open position: %w", err)
				}
			} else {
				if _, err := tx.Exec(`
					UPDATE positions SET quantity = ?, average_cost = ?, updated_at = ?
					WHERE portfolio_id = ? AND symbol = ?`,
					newQuantity, newCost, now, t.PortfolioID, t.Symbol); err != nil {
					return fmt.Errorf("failed to update position: %w", err)
				}
			}

			if _, err := tx.Exec(`
				UPDATE cash_balances SET balance = balance - ?, updated_at = ?
				WHERE portfolio_id = ?`, value, now, t.PortfolioID); err != nil {
				return fmt.Errorf("failed to debit cash: %w", err)
			}

		case "SELL":
			if err == sql.ErrNoRows || quantity < t.Quantity {
				return fmt.Errorf("insufficient holdings to sell %.2f %s", t.Quantity, t.Symbol)
			}

			remaining := quantity - t.Quantity
			if remaining <= 0 {
				if _, err := tx.Exec(`
					DELETE FROM positions WHERE portfolio_id = ? AND symbol = ?`,
					t.PortfolioID, t.Symbol); err != nil {
					return fmt.Errorf("failed to close position: %w", err)
				}
			} else {
				if _, err := tx.Exec(`
					UPDATE positions SET quantity = ?, updated_at = ?
					WHERE portfolio_id = ? AND symbol = ?`,
					remaining, now, t.PortfolioID, t.Symbol); err != nil {
					return fmt.Errorf("failed to reduce position: %w", err)
				}
			}

			if _, err := tx.Exec(`
				INSERT INTO cash_balances (portfolio_id, balance, updated_at)
				VALUES (?, ?, ?)
				ON CONFLICT(portfolio_id) DO UPDATE SET balance = balance + ?, updated_at = ?`,
				t.PortfolioID, value, now, value, now); err != nil {
				return fmt.Errorf("failed to credit cash: %w", err)
			}
		}

		return nil
	})
}

// CreatePendingOrder queues an order for execution at next market open.
// Queueing is idempotent per (portfolio, symbol, side): a duplicate insert is
// suppressed and reported via the bool return.
func (r *PositionRepository) CreatePendingOrder(o domain.PendingOrder) (created bool, err error) {
	result, err := r.db.Exec(`
		INSERT INTO pending_orders (id, portfolio_id, symbol, side, quantity, estimated_value, reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(portfolio_id, symbol, side) DO NOTHING`,
		o.ID, o.PortfolioID, o.Symbol, o.Side, o.Quantity, o.EstimatedValue, o.Reason, o.CreatedAt.Unix())
	if err != nil {
		return false, fmt.Errorf("failed to create pending order for %s: %w", o.Symbol, err)
	}

	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

// ListPendingOrders returns all queued orders for a portfolio.
func (r *PositionRepository) ListPendingOrders(portfolioID string) ([]domain.PendingOrder, error) {
	rows, err := r.db.Query(`
		SELECT id, portfolio_id, symbol, side, quantity, estimated_value, reason, created_at
		FROM pending_orders WHERE portfolio_id = ? ORDER BY created_at`, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending orders for %s: %w", portfolioID, err)
	}
	defer rows.Close()

	var orders []domain.PendingOrder
	for rows.Next() {
		var (
			o         domain.PendingOrder
			reason    sql.NullString
			createdAt int64
		)
		err := rows.Scan(&o.ID, &o.PortfolioID, &o.Symbol, &o.Side, &o.Quantity,
			&o.EstimatedValue, &reason, &createdAt)
		if err != nil {
			return nil, err
		}
		if reason.Valid {
			o.Reason = reason.String
		}
		o.CreatedAt = time.Unix(createdAt, 0)
		orders = append(orders, o)
	}

	return orders, rows.Err()
}

// DeletePendingOrder removes a queued order, typically after it executes.
func (r *PositionRepository) DeletePendingOrder(id string) error {
	_, err := r.db.Exec(`DELETE FROM pending_orders WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete pending order %s: %w", id, err)
	}
	return nil
}
