// Package domain provides core domain models and types shared across modules.
package domain

import "time"

// ModelID identifies one of the two evaluation models.
type ModelID string

const (
	ModelLynch   ModelID = "lynch"
	ModelBuffett ModelID = "buffett"
)

// Verdict is the outcome of a consensus evaluation or judge deliberation.
type Verdict string

const (
	VerdictBuy   Verdict = "BUY"
	VerdictWatch Verdict = "WATCH"
	VerdictAvoid Verdict = "AVOID"
	VerdictVeto  Verdict = "VETO"
)

// DecisionAction is the final recorded action for a candidate in a run.
type DecisionAction string

const (
	ActionBuy  DecisionAction = "BUY"
	ActionSkip DecisionAction = "SKIP"
	ActionHold DecisionAction = "HOLD"
	ActionExit DecisionAction = "EXIT"
)

// PositionType classifies a candidate relative to current holdings.
// A symbol carries exactly one position type per run.
type PositionType string

const (
	// PositionTypeNew - symbol not currently held
	PositionTypeNew PositionType = "new"
	// PositionTypeAddition - symbol already held, evaluated for adding
	PositionTypeAddition PositionType = "addition"
	// PositionTypeHeldExitEvaluation - held symbol that failed the stricter
	// addition bar; deliberated for a possible exit rather than a buy
	PositionTypeHeldExitEvaluation PositionType = "held_exit_evaluation"
)

// ModelScore is the scoring oracle's output for one symbol under one model.
type ModelScore struct {
	Score  float64 `json:"score"` // 0-100
	Status string  `json:"status"`
}

// Thesis is a written investment thesis produced by one model for one symbol.
type Thesis struct {
	Text        string    `json:"text"`
	Verdict     Verdict   `json:"verdict"`
	GeneratedAt time.Time `json:"generated_at"`
}

// Candidate is the transient per-symbol record carried through a single run.
type Candidate struct {
	Symbol       string
	PositionType PositionType
	Scores       map[ModelID]ModelScore
	Theses       map[ModelID]*Thesis
	Deliberation string
	FinalVerdict Verdict
	CurrentPrice float64
}

// HasBothTheses reports whether the candidate carries a thesis for both models.
// Only such candidates are eligible for deliberation.
func (c *Candidate) HasBothTheses() bool {
	return c.Theses != nil &&
		c.Theses[ModelLynch] != nil &&
		c.Theses[ModelBuffett] != nil
}

// Conviction returns the scalar used to rank and weight the candidate for
// allocation: the average of the two model scores (a single score stands alone).
func (c *Candidate) Conviction() float64 {
	if len(c.Scores) == 0 {
		return 0
	}
	total := 0.0
	for _, s := range c.Scores {
		total += s.Score
	}
	return total / float64(len(c.Scores))
}

// TargetAllocation is the sizing phase's per-candidate output.
type TargetAllocation struct {
	Symbol       string  `json:"symbol"`
	Conviction   float64 `json:"conviction"`
	TargetValue  float64 `json:"target_value"`
	CurrentValue float64 `json:"current_value"` // 0 if not held
	Drift        float64 `json:"drift"`         // target - current
	Price        float64 `json:"price"`
	QuantityHeld float64 `json:"quantity_held"`
}

// ExitType distinguishes full liquidations from partial trims.
type ExitType string

const (
	ExitTypeFull ExitType = "full"
	ExitTypeTrim ExitType = "trim"
)

// ExitSignal is an instruction to sell some or all of a held position.
type ExitSignal struct {
	Symbol       string   `json:"symbol"`
	Quantity     float64  `json:"quantity"`
	Reason       string   `json:"reason"`
	CurrentValue float64  `json:"current_value"`
	ExitType     ExitType `json:"exit_type"`
	GainPct      *float64 `json:"gain_pct,omitempty"`
}

// BuyOrder is a sized buy instruction produced by the position sizer.
type BuyOrder struct {
	Symbol     string  `json:"symbol"`
	Shares     int     `json:"shares"`
	Price      float64 `json:"price"`
	Amount     float64 `json:"amount"` // shares * price
	Conviction float64 `json:"conviction"`
	Reason     string  `json:"reason"`
}

// Holding is a currently-held position snapshot.
type Holding struct {
	Symbol       string    `json:"symbol"`
	Quantity     float64   `json:"quantity"`
	AverageCost  float64   `json:"average_cost"`
	CurrentPrice float64   `json:"current_price"`
	OpenedAt     time.Time `json:"opened_at"`
}

// MarketValue returns the holding's current market value.
func (h Holding) MarketValue() float64 {
	return h.Quantity * h.CurrentPrice
}

// GainPercent returns the unrealized gain as a fraction of cost basis.
// Returns 0 when no cost basis is available.
func (h Holding) GainPercent() float64 {
	if h.AverageCost <= 0 {
		return 0
	}
	return (h.CurrentPrice - h.AverageCost) / h.AverageCost
}

// PendingOrder is a queued order awaiting market open.
type PendingOrder struct {
	ID             string    `json:"id"`
	PortfolioID    string    `json:"portfolio_id"`
	Symbol         string    `json:"symbol"`
	Side           string    `json:"side"` // "BUY" or "SELL"
	Quantity       float64   `json:"quantity"`
	EstimatedValue float64   `json:"estimated_value"`
	Reason         string    `json:"reason"`
	CreatedAt      time.Time `json:"created_at"`
}

// DeliberationEntry is a cached judge deliberation keyed by (owner, symbol).
// Staleness is decided by comparing GeneratedAt against the contributing
// theses' timestamps, never by TTL.
type DeliberationEntry struct {
	Text        string    `msgpack:"text" json:"text"`
	Verdict     Verdict   `msgpack:"verdict" json:"verdict"`
	ModelUsed   string    `msgpack:"model_used" json:"model_used"`
	GeneratedAt time.Time `msgpack:"generated_at" json:"generated_at"`
}

// IsStale reports whether the cached deliberation predates either contributing
// thesis. A nil thesis never forces regeneration.
func (e *DeliberationEntry) IsStale(lynch, buffett *Thesis) bool {
	if lynch != nil && lynch.GeneratedAt.After(e.GeneratedAt) {
		return true
	}
	if buffett != nil && buffett.GeneratedAt.After(e.GeneratedAt) {
		return true
	}
	return false
}
