// Package universe provides the securities master and structural universe
// filtering. It backs the UniverseFilter and PriceProvider collaborators.
package universe

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/avellar/conviction/internal/domain"
	"github.com/rs/zerolog"
)

// Security is one row in the securities master.
type Security struct {
	Symbol    string    `json:"symbol"`
	Name      string    `json:"name"`
	Market    string    `json:"market"`
	MarketCap float64   `json:"market_cap"`
	AvgVolume float64   `json:"avg_volume"`
	LastPrice float64   `json:"last_price"`
	Active    bool      `json:"active"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SecurityRepository handles securities persistence and universe filtering.
type SecurityRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewSecurityRepository creates a new security repository.
func NewSecurityRepository(db *sql.DB, log zerolog.Logger) *SecurityRepository {
	return &SecurityRepository{
		db:  db,
		log: log.With().Str("repo", "security").Logger(),
	}
}

// Upsert inserts or replaces a security record.
func (r *SecurityRepository) Upsert(s Security) error {
	active := 0
	if s.Active {
		active = 1
	}

	_, err := r.db.Exec(`
		INSERT INTO securities (symbol, name, market, market_cap, avg_volume, last_price, active, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(symbol) DO UPDATE SET
			name = excluded.name, market = excluded.market, market_cap = excluded.market_cap,
			avg_volume = excluded.avg_volume, last_price = excluded.last_price,
			active = excluded.active, updated_at = excluded.updated_at`,
		strings.ToUpper(strings.TrimSpace(s.Symbol)), s.Name, s.Market,
		s.MarketCap, s.AvgVolume, s.LastPrice, active, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to upsert security %s: %w", s.Symbol, err)
	}

	return nil
}

// Filter returns the symbols of active securities matching the structural
// conditions. It implements domain.UniverseFilter.
func (r *SecurityRepository) Filter(ctx context.Context, conditions domain.UniverseConditions) ([]string, error) {
	query := `SELECT symbol FROM securities WHERE active = 1`
	args := []interface{}{}

	if len(conditions.Markets) > 0 {
		placeholders := strings.Repeat("?,", len(conditions.Markets))
		query += ` AND market IN (` + placeholders[:len(placeholders)-1] + `)`
		for _, m := range conditions.Markets {
			args = append(args, m)
		}
	}
	if conditions.MinMarketCap > 0 {
		query += ` AND market_cap >= ?`
		args = append(args, conditions.MinMarketCap)
	}
	if conditions.MinAvgVolume > 0 {
		query += ` AND avg_volume >= ?`
		args = append(args, conditions.MinAvgVolume)
	}

	query += ` ORDER BY symbol`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("universe filter query failed: %w", err)
	}
	defer rows.Close()

	excluded := make(map[string]bool, len(conditions.ExcludedSymbols))
	for _, s := range conditions.ExcludedSymbols {
		excluded[strings.ToUpper(s)] = true
	}

	var symbols []string
	for rows.Next() {
		var symbol string
		if err := rows.Scan(&symbol); err != nil {
			return nil, err
		}
		if excluded[symbol] {
			continue
		}
		symbols = append(symbols, symbol)
	}

	return symbols, rows.Err()
}

// Contains reports whether a symbol is in the universe under the given
// conditions. Used by holding re-evaluation.
func (r *SecurityRepository) Contains(ctx context.Context, symbol string, conditions domain.UniverseConditions) (bool, error) {
	symbols, err := r.Filter(ctx, conditions)
	if err != nil {
		return false, err
	}

	symbol = strings.ToUpper(symbol)
	for _, s := range symbols {
		if s == symbol {
			return true, nil
		}
	}
	return false, nil
}

// GetPrice returns the last known price for a symbol.
// Implements domain.PriceProvider.
func (r *SecurityRepository) GetPrice(symbol string) (float64, error) {
	var price float64
	err := r.db.QueryRow(`SELECT last_price FROM securities WHERE symbol = ?`,
		strings.ToUpper(symbol)).Scan(&price)
	if err == sql.ErrNoRows {
		return 0, fmt.Errorf("no price for symbol %s", symbol)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get price for %s: %w", symbol, err)
	}
	if price <= 0 {
		return 0, fmt.Errorf("no price for symbol %s", symbol)
	}
	return price, nil
}

// GetPricesBatch returns last known prices for a set of symbols. Symbols
// without a usable price are omitted from the result, not errored.
func (r *SecurityRepository) GetPricesBatch(symbols []string) (map[string]float64, error) {
	prices := make(map[string]float64, len(symbols))
	if len(symbols) == 0 {
		return prices, nil
	}

	placeholders := strings.Repeat("?,", len(symbols))
	args := make([]interface{}, len(symbols))
	for i, s := range symbols {
		args[i] = strings.ToUpper(s)
	}

	rows, err := r.db.Query(
		`SELECT symbol, last_price FROM securities WHERE symbol IN (`+placeholders[:len(placeholders)-1]+`)`,
		args...)
	if err != nil {
		return nil, fmt.Errorf("batch price query failed: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			symbol string
			price  float64
		)
		if err := rows.Scan(&symbol, &price); err != nil {
			return nil, err
		}
		if price > 0 {
			prices[symbol] = price
		}
	}

	return prices, rows.Err()
}
