// Package consensus combines the two models' scores into a single verdict
// without involving the LLM judge. Every mode is a pure function: identical
// inputs always produce identical verdict, score, and reasoning.
package consensus

import (
	"fmt"
	"strings"

	"github.com/avellar/conviction/internal/domain"
	"github.com/avellar/conviction/internal/modules/strategies"
)

// buyScoreBar is the weighted-confidence score at which a candidate is an
// outright BUY rather than a WATCH.
const buyScoreBar = 80.0

// Result is the outcome of a consensus evaluation.
type Result struct {
	Verdict   domain.Verdict
	Score     float64
	Reasoning string
}

// Evaluate combines the lynch and buffett model outputs under the configured
// mode. Unknown modes are an error, not a silent default.
func Evaluate(lynch, buffett domain.ModelScore, cfg strategies.ConsensusConfig) (Result, error) {
	switch cfg.Mode {
	case strategies.ConsensusBothAgree:
		return evaluateBothAgree(lynch, buffett, cfg), nil
	case strategies.ConsensusWeightedConfidence:
		return evaluateWeightedConfidence(lynch, buffett, cfg), nil
	case strategies.ConsensusVetoPower:
		return evaluateVetoPower(lynch, buffett, cfg), nil
	default:
		return Result{}, fmt.Errorf("unknown consensus mode: %s", cfg.Mode)
	}
}

// evaluateBothAgree requires both models to clear the score bar with an
// acceptable status. Any failure yields AVOID with the failing model(s) named.
func evaluateBothAgree(lynch, buffett domain.ModelScore, cfg strategies.ConsensusConfig) Result {
	var failures []string

	if lynch.Score < cfg.MinScore || !statusIn(lynch.Status, cfg.BuyStatuses) {
		failures = append(failures, fmt.Sprintf("lynch (score %.1f, status %s)", lynch.Score, lynch.Status))
	}
	if buffett.Score < cfg.MinScore || !statusIn(buffett.Status, cfg.BuyStatuses) {
		failures = append(failures, fmt.Sprintf("buffett (score %.1f, status %s)", buffett.Score, buffett.Status))
	}

	if len(failures) > 0 {
		return Result{
			Verdict:   domain.VerdictAvoid,
			Score:     minFloat(lynch.Score, buffett.Score),
			Reasoning: "did not clear both-agree bar: " + strings.Join(failures, ", "),
		}
	}

	avg := (lynch.Score + buffett.Score) / 2
	return Result{
		Verdict:   domain.VerdictBuy,
		Score:     avg,
		Reasoning: fmt.Sprintf("both models agree (avg score %.1f)", avg),
	}
}

// evaluateWeightedConfidence blends the two scores by normalized weights and
// maps the blend onto BUY / WATCH / AVOID.
func evaluateWeightedConfidence(lynch, buffett domain.ModelScore, cfg strategies.ConsensusConfig) Result {
	lw, bw := cfg.LynchWeight, cfg.BuffettWeight
	if lw <= 0 && bw <= 0 {
		lw, bw = 0.5, 0.5
	}
	total := lw + bw
	lw, bw = lw/total, bw/total

	score := lynch.Score*lw + buffett.Score*bw

	verdict := domain.VerdictAvoid
	switch {
	case score >= buyScoreBar:
		verdict = domain.VerdictBuy
	case score >= cfg.Threshold:
		verdict = domain.VerdictWatch
	}

	return Result{
		Verdict: verdict,
		Score:   score,
		Reasoning: fmt.Sprintf("weighted score %.1f (lynch %.1f x %.2f, buffett %.1f x %.2f)",
			score, lynch.Score, lw, buffett.Score, bw),
	}
}

// evaluateVetoPower lets either model unilaterally block: a veto status or a
// score below the veto threshold forces VETO regardless of the other model.
// Only when neither vetoes does the average-vs-threshold comparison run.
func evaluateVetoPower(lynch, buffett domain.ModelScore, cfg strategies.ConsensusConfig) Result {
	if reason, vetoed := vetoes("lynch", lynch, cfg); vetoed {
		return Result{Verdict: domain.VerdictVeto, Score: lynch.Score, Reasoning: reason}
	}
	if reason, vetoed := vetoes("buffett", buffett, cfg); vetoed {
		return Result{Verdict: domain.VerdictVeto, Score: buffett.Score, Reasoning: reason}
	}

	avg := (lynch.Score + buffett.Score) / 2
	verdict := domain.VerdictWatch
	if avg >= cfg.Threshold {
		verdict = domain.VerdictBuy
	}

	return Result{
		Verdict:   verdict,
		Score:     avg,
		Reasoning: fmt.Sprintf("no veto, average score %.1f vs threshold %.1f", avg, cfg.Threshold),
	}
}

func vetoes(name string, m domain.ModelScore, cfg strategies.ConsensusConfig) (string, bool) {
	if statusIn(m.Status, cfg.VetoStatuses) {
		return fmt.Sprintf("%s vetoed with status %s", name, m.Status), true
	}
	if m.Score < cfg.VetoThreshold {
		return fmt.Sprintf("%s vetoed with score %.1f below veto threshold %.1f", name, m.Score, cfg.VetoThreshold), true
	}
	return "", false
}

func statusIn(status string, allowed []string) bool {
	for _, s := range allowed {
		if strings.EqualFold(s, status) {
			return true
		}
	}
	return false
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
