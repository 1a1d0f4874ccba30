package strategies

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// strategyColumns is the column list for the strategies table.
// Used to avoid SELECT * which can break when the schema changes.
const strategyColumns = `id, portfolio_id, name, enabled, universe_json, scoring_json, consensus_json, sizing_json, exits_json, schedule, created_at, updated_at`

// StrategyRepository handles strategy persistence.
type StrategyRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewStrategyRepository creates a new strategy repository.
func NewStrategyRepository(db *sql.DB, log zerolog.Logger) *StrategyRepository {
	return &StrategyRepository{
		db:  db,
		log: log.With().Str("repo", "strategy").Logger(),
	}
}

// Create inserts a new strategy record.
func (r *StrategyRepository) Create(s *Strategy) error {
	if s.ID == "" {
		return fmt.Errorf("strategy id is required")
	}

	universeJSON, scoringJSON, consensusJSON, sizingJSON, exitsJSON, err := marshalConfigs(s)
	if err != nil {
		return err
	}

	now := time.Now().Unix()
	_, err = r.db.Exec(`
		INSERT INTO strategies
		(id, portfolio_id, name, enabled, universe_json, scoring_json, consensus_json, sizing_json, exits_json, schedule, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.PortfolioID, s.Name, boolToInt(s.Enabled),
		universeJSON, scoringJSON, consensusJSON, sizingJSON, exitsJSON,
		s.Schedule, now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to create strategy %s: %w", s.ID, err)
	}

	return nil
}

// Update rewrites an existing strategy's configuration.
func (r *StrategyRepository) Update(s *Strategy) error {
	universeJSON, scoringJSON, consensusJSON, sizingJSON, exitsJSON, err := marshalConfigs(s)
	if err != nil {
		return err
	}

	result, err := r.db.Exec(`
		UPDATE strategies
		SET portfolio_id = ?, name = ?, enabled = ?, universe_json = ?, scoring_json = ?,
		    consensus_json = ?, sizing_json = ?, exits_json = ?, schedule = ?, updated_at = ?
		WHERE id = ?`,
		s.PortfolioID, s.Name, boolToInt(s.Enabled),
		universeJSON, scoringJSON, consensusJSON, sizingJSON, exitsJSON,
		s.Schedule, time.Now().Unix(), s.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update strategy %s: %w", s.ID, err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("strategy %s not found", s.ID)
	}

	return nil
}

// GetByID fetches a single strategy. Returns sql.ErrNoRows when absent.
func (r *StrategyRepository) GetByID(id string) (*Strategy, error) {
	row := r.db.QueryRow(`SELECT `+strategyColumns+` FROM strategies WHERE id = ?`, id)
	return scanStrategy(row)
}

// ListEnabled returns all enabled strategies, ordered by creation time.
func (r *StrategyRepository) ListEnabled() ([]*Strategy, error) {
	rows, err := r.db.Query(`SELECT ` + strategyColumns + ` FROM strategies WHERE enabled = 1 ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to list enabled strategies: %w", err)
	}
	defer rows.Close()

	var result []*Strategy
	for rows.Next() {
		s, err := scanStrategy(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, s)
	}

	return result, rows.Err()
}

// SetEnabled toggles a strategy's enabled flag.
func (r *StrategyRepository) SetEnabled(id string, enabled bool) error {
	_, err := r.db.Exec(`UPDATE strategies SET enabled = ?, updated_at = ? WHERE id = ?`,
		boolToInt(enabled), time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("failed to set enabled for strategy %s: %w", id, err)
	}
	return nil
}

// rowScanner abstracts *sql.Row and *sql.Rows for shared scanning.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanStrategy(row rowScanner) (*Strategy, error) {
	var (
		s                                                               Strategy
		enabled                                                         int
		universeJSON, scoringJSON, consensusJSON, sizingJSON, exitsJSON string
		createdAt, updatedAt                                            int64
	)

	err := row.Scan(&s.ID, &s.PortfolioID, &s.Name, &enabled,
		&universeJSON, &scoringJSON, &consensusJSON, &sizingJSON, &exitsJSON,
		&s.Schedule, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	s.Enabled = enabled != 0
	s.CreatedAt = time.Unix(createdAt, 0)
	s.UpdatedAt = time.Unix(updatedAt, 0)

	if err := json.Unmarshal([]byte(universeJSON), &s.Universe); err != nil {
		return nil, fmt.Errorf("failed to decode universe conditions for %s: %w", s.ID, err)
	}
	if err := json.Unmarshal([]byte(scoringJSON), &s.Scoring); err != nil {
		return nil, fmt.Errorf("failed to decode scoring conditions for %s: %w", s.ID, err)
	}
	if err := json.Unmarshal([]byte(consensusJSON), &s.Consensus); err != nil {
		return nil, fmt.Errorf("failed to decode consensus config for %s: %w", s.ID, err)
	}
	if err := json.Unmarshal([]byte(sizingJSON), &s.Sizing); err != nil {
		return nil, fmt.Errorf("failed to decode sizing rules for %s: %w", s.ID, err)
	}
	if err := json.Unmarshal([]byte(exitsJSON), &s.Exits); err != nil {
		return nil, fmt.Errorf("failed to decode exit conditions for %s: %w", s.ID, err)
	}

	return &s, nil
}

func marshalConfigs(s *Strategy) (universe, scoring, consensus, sizing, exits string, err error) {
	parts := []struct {
		name string
		v    interface{}
		dst  *string
	}{
		{"universe", s.Universe, &universe},
		{"scoring", s.Scoring, &scoring},
		{"consensus", s.Consensus, &consensus},
		{"sizing", s.Sizing, &sizing},
		{"exits", s.Exits, &exits},
	}

	for _, p := range parts {
		b, mErr := json.Marshal(p.v)
		if mErr != nil {
			return "", "", "", "", "", fmt.Errorf("failed to encode %s config: %w", p.name, mErr)
		}
		*p.dst = string(b)
	}

	return universe, scoring, consensus, sizing, exits, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
