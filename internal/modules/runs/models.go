// Package runs provides run records, decision records, and the run event log.
package runs

import (
	"time"

	"github.com/avellar/conviction/internal/domain"
)

// RunStatus is the lifecycle state of a strategy run.
// A run is terminal once its status leaves "running".
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// Counters aggregates per-run progress counters.
type Counters struct {
	StocksScreened  int `json:"stocks_screened"`
	StocksScored    int `json:"stocks_scored"`
	ThesesGenerated int `json:"theses_generated"`
	TradesExecuted  int `json:"trades_executed"`
}

// Run is one execution instance of a strategy.
type Run struct {
	ID             string     `json:"id"`
	StrategyID     string     `json:"strategy_id"`
	Status         RunStatus  `json:"status"`
	StartedAt      time.Time  `json:"started_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	Counters       Counters   `json:"counters"`
	PortfolioValue float64    `json:"portfolio_value"` // snapshot at run start
	ErrorMessage   string     `json:"error_message,omitempty"`
}

// Event is one timestamped line in a run's append-only event log.
type Event struct {
	ID        int64     `json:"id"`
	RunID     string    `json:"run_id"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// Decision is the write-once record of how one candidate was resolved.
type Decision struct {
	RunID         string                `json:"run_id"`
	Symbol        string                `json:"symbol"`
	PositionType  domain.PositionType   `json:"position_type"`
	LynchScore    *float64              `json:"lynch_score,omitempty"`
	BuffettScore  *float64              `json:"buffett_score,omitempty"`
	ThesisSummary string                `json:"thesis_summary,omitempty"`
	Verdict       domain.Verdict        `json:"verdict,omitempty"`
	Action        domain.DecisionAction `json:"action"`
	Reasoning     string                `json:"reasoning,omitempty"`
	CreatedAt     time.Time             `json:"created_at"`
}
