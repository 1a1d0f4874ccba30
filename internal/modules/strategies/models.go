// Package strategies provides strategy configuration models and persistence.
package strategies

import (
	"time"

	"github.com/avellar/conviction/internal/domain"
)

// ScoringRequirements holds per-model minimum score thresholds.
type ScoringRequirements struct {
	MinLynchScore   float64 `json:"min_lynch_score"`
	MinBuffettScore float64 `json:"min_buffett_score"`
}

// ScoringConditions configures the scoring phase.
// AdditionRequirements, when absent, default to the new-position requirements
// raised by 10 points - additions face a stricter bar than new positions.
type ScoringConditions struct {
	Requirements         ScoringRequirements  `json:"scoring_requirements"`
	AdditionRequirements *ScoringRequirements `json:"addition_scoring_requirements,omitempty"`
}

// ConsensusMode selects how the two model opinions are combined.
type ConsensusMode string

const (
	// ConsensusBothAgree requires both models to clear score and status bars
	ConsensusBothAgree ConsensusMode = "both_agree"
	// ConsensusWeightedConfidence blends the two scores by normalized weights
	ConsensusWeightedConfidence ConsensusMode = "weighted_confidence"
	// ConsensusVetoPower lets either model unilaterally block a buy
	ConsensusVetoPower ConsensusMode = "veto_power"
	// ConsensusAIDeliberation resolves disagreement through the LLM judge
	ConsensusAIDeliberation ConsensusMode = "ai_deliberation"
)

// ConsensusConfig parameterizes the selected consensus mode.
type ConsensusConfig struct {
	Mode ConsensusMode `json:"mode"`

	// both_agree
	MinScore    float64  `json:"min_score,omitempty"`
	BuyStatuses []string `json:"buy_statuses,omitempty"`

	// weighted_confidence
	LynchWeight   float64 `json:"lynch_weight,omitempty"`
	BuffettWeight float64 `json:"buffett_weight,omitempty"`
	Threshold     float64 `json:"threshold,omitempty"`

	// veto_power
	VetoStatuses  []string `json:"veto_statuses,omitempty"`
	VetoThreshold float64  `json:"veto_threshold,omitempty"`

	// ai_deliberation: restrict which judge verdicts may trade.
	// Empty means any verdict is acceptable.
	ThesisVerdictRequired []string `json:"thesis_verdict_required,omitempty"`
}

// SizingMethod selects the target-value computation for the position sizer.
type SizingMethod string

const (
	SizingEqualWeight        SizingMethod = "equal_weight"
	SizingConvictionWeighted SizingMethod = "conviction_weighted"
	SizingFixedPct           SizingMethod = "fixed_pct"
	SizingKelly              SizingMethod = "kelly"
)

// SizingRules parameterizes the position sizer.
type SizingRules struct {
	Method         SizingMethod `json:"method"`
	MaxPositions   int          `json:"max_positions"`
	MaxPositionPct float64      `json:"max_position_pct,omitempty"` // per-position cap, fraction of portfolio
	FixedPct       float64      `json:"fixed_pct,omitempty"`        // fixed_pct method, fraction of portfolio
	MinTradeAmount float64      `json:"min_trade_amount"`           // drift deadband in dollars
}

// ExitConditions configures the exit evaluation phase.
type ExitConditions struct {
	StopLossPct   float64 `json:"stop_loss_pct,omitempty"`   // positive fraction, e.g. 0.15 = exit at -15%
	TargetGainPct float64 `json:"target_gain_pct,omitempty"` // positive fraction, e.g. 0.50 = exit at +50%
	MaxHoldDays   int     `json:"max_hold_days,omitempty"`

	// Holding re-evaluation: positions held beyond the grace period are
	// re-checked against the current universe and score thresholds.
	ReevaluateHoldings      bool    `json:"reevaluate_holdings,omitempty"`
	GracePeriodDays         int     `json:"grace_period_days,omitempty"`
	CheckUniverseMembership bool    `json:"check_universe_membership,omitempty"`
	CheckMinScores          bool    `json:"check_min_scores,omitempty"`
	MinScore                float64 `json:"min_score,omitempty"`
}

// Strategy is the persistent configuration for one autonomous strategy.
// It is created and edited by the user and read-only during a run.
type Strategy struct {
	ID          string                    `json:"id"`
	PortfolioID string                    `json:"portfolio_id"`
	Name        string                    `json:"name"`
	Enabled     bool                      `json:"enabled"`
	Universe    domain.UniverseConditions `json:"universe"`
	Scoring     ScoringConditions         `json:"scoring"`
	Consensus   ConsensusConfig           `json:"consensus"`
	Sizing      SizingRules               `json:"sizing"`
	Exits       ExitConditions            `json:"exits"`
	Schedule    string                    `json:"schedule"` // cron expression, empty = manual only
	CreatedAt   time.Time                 `json:"created_at"`
	UpdatedAt   time.Time                 `json:"updated_at"`
}
