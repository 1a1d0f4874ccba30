// Package orchestrator drives a full strategy run through its seven
// sequential phases: universe filter, scoring, thesis lookup, deliberation or
// consensus, exit evaluation, trade execution, and performance recording.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/avellar/conviction/internal/domain"
	"github.com/avellar/conviction/internal/modules/consensus"
	"github.com/avellar/conviction/internal/modules/deliberation"
	"github.com/avellar/conviction/internal/modules/execution"
	"github.com/avellar/conviction/internal/modules/exits"
	"github.com/avellar/conviction/internal/modules/runs"
	"github.com/avellar/conviction/internal/modules/sizing"
	"github.com/avellar/conviction/internal/modules/strategies"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Phase boundary percentages reported to the progress sink.
const (
	pctUniverse    = 10
	pctScoring     = 25
	pctTheses      = 35
	pctDeliberated = 70
	pctExits       = 85
	pctExecuted    = 95
	pctDone        = 100
)

// StrategyStore loads strategy configuration.
type StrategyStore interface {
	GetByID(id string) (*strategies.Strategy, error)
}

// RunStore persists run lifecycle, counters, decisions, and the event log.
type RunStore interface {
	Create(run *runs.Run) error
	UpdateCounters(runID string, c runs.Counters) error
	MarkCompleted(runID string) error
	MarkFailed(runID string, errMsg string) error
	AppendEvent(runID string, message string)
	CreateDecision(d *runs.Decision) error
}

// PortfolioStore reads portfolio state. Mutation stays with the execution
// coordinator.
type PortfolioStore interface {
	GetHoldings(portfolioID string) (map[string]domain.Holding, error)
	GetCashBalance(portfolioID string) (float64, error)
}

// ThesisStore looks up externally generated model theses.
type ThesisStore interface {
	GetForSymbol(owner, symbol string) (map[domain.ModelID]*domain.Thesis, error)
}

// Universe filters the candidate universe and answers membership checks.
type Universe interface {
	domain.UniverseFilter
	Contains(ctx context.Context, symbol string, conditions domain.UniverseConditions) (bool, error)
}

// Scorer is the scoring engine surface the orchestrator consumes.
type Scorer interface {
	Score(ctx context.Context, symbols []string, conditions strategies.ScoringConditions, isAddition bool) (passing, declined []*domain.Candidate, err error)
	ScoreSymbol(ctx context.Context, symbol string) (map[domain.ModelID]domain.ModelScore, error)
}

// Request is one run invocation from the external job runner.
type Request struct {
	StrategyID     string
	CandidateLimit int // 0 = unlimited
	Progress       domain.ProgressSink
}

// Orchestrator composes the run pipeline. Each phase's output feeds the next;
// no phase overlaps another.
type Orchestrator struct {
	strategies StrategyStore
	runs       RunStore
	portfolio  PortfolioStore
	theses     ThesisStore
	universe   Universe
	scorer     Scorer
	deliberate *deliberation.Coordinator
	exits      *exits.Evaluator
	sizer      *sizing.Sizer
	executor   *execution.Coordinator
	prices     domain.PriceProvider
	clock      domain.MarketClock
	log        zerolog.Logger
}

// New creates a run orchestrator.
func New(
	strategyStore StrategyStore,
	runStore RunStore,
	portfolioStore PortfolioStore,
	thesisStore ThesisStore,
	universe Universe,
	scorer Scorer,
	deliberateCoord *deliberation.Coordinator,
	exitEval *exits.Evaluator,
	sizer *sizing.Sizer,
	executor *execution.Coordinator,
	prices domain.PriceProvider,
	clock domain.MarketClock,
	log zerolog.Logger,
) *Orchestrator {
	return &Orchestrator{
		strategies: strategyStore,
		runs:       runStore,
		portfolio:  portfolioStore,
		theses:     thesisStore,
		universe:   universe,
		scorer:     scorer,
		deliberate: deliberateCoord,
		exits:      exitEval,
		sizer:      sizer,
		executor:   executor,
		prices:     prices,
		clock:      clock,
		log:        log.With().Str("component", "orchestrator").Logger(),
	}
}

// Run executes one full strategy run. Fatal errors mark the run failed and
// return; candidate-scoped failures are absorbed inside their phase. The
// returned run always carries a terminal status.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*runs.Run, error) {
	strategy, err := o.strategies.GetByID(req.StrategyID)
	if err != nil {
		return nil, fmt.Errorf("failed to load strategy %s: %w", req.StrategyID, err)
	}
	if !strategy.Enabled {
		return nil, fmt.Errorf("strategy %s is disabled", req.StrategyID)
	}

	holdings, err := o.portfolio.GetHoldings(strategy.PortfolioID)
	if err != nil {
		return nil, fmt.Errorf("failed to load holdings: %w", err)
	}
	cash, err := o.portfolio.GetCashBalance(strategy.PortfolioID)
	if err != nil {
		return nil, fmt.Errorf("failed to load cash balance: %w", err)
	}
	o.enrichHoldings(holdings)

	run := &runs.Run{
		ID:             uuid.NewString(),
		StrategyID:     strategy.ID,
		Status:         runs.RunStatusRunning,
		StartedAt:      time.Now(),
		PortfolioValue: portfolioValue(cash, holdings),
	}
	if err := o.runs.Create(run); err != nil {
		return nil, fmt.Errorf("failed to create run record: %w", err)
	}

	log := o.log.With().Str("run_id", run.ID).Str("strategy_id", strategy.ID).Logger()
	log.Info().Float64("portfolio_value", run.PortfolioValue).Msg("Run started")

	if err := o.execute(ctx, run, strategy, holdings, cash, req); err != nil {
		log.Error().Err(err).Msg("Run failed")
		o.runs.AppendEvent(run.ID, fmt.Sprintf("run failed: %v", err))
		if markErr := o.runs.MarkFailed(run.ID, err.Error()); markErr != nil {
			log.Error().Err(markErr).Msg("Failed to mark run failed")
		}
		run.Status = runs.RunStatusFailed
		run.ErrorMessage = err.Error()
		return run, err
	}

	if err := o.runs.MarkCompleted(run.ID); err != nil {
		return run, fmt.Errorf("failed to mark run completed: %w", err)
	}
	run.Status = runs.RunStatusCompleted
	log.Info().Msg("Run completed")
	return run, nil
}

// execute walks the seven phases. Any returned error is fatal for the run.
func (o *Orchestrator) execute(
	ctx context.Context,
	run *runs.Run,
	strategy *strategies.Strategy,
	holdings map[string]domain.Holding,
	cash float64,
	req Request,
) error {
	progress := req.Progress
	if progress == nil {
		progress = domain.ProgressFunc(nil)
	}

	// Phase 1: universe filter.
	symbols, err := o.universe.Filter(ctx, strategy.Universe)
	if err != nil {
		return fmt.Errorf("universe filter failed: %w", err)
	}
	if req.CandidateLimit > 0 && len(symbols) > req.CandidateLimit {
		symbols = symbols[:req.CandidateLimit]
	}
	run.Counters.StocksScreened = len(symbols)
	o.runs.AppendEvent(run.ID, fmt.Sprintf("universe: %d symbols pass filters", len(symbols)))
	progress.Report(pctUniverse, "universe filtered", len(symbols), len(symbols))

	if err := o.checkpoint(ctx, run); err != nil {
		return err
	}

	// Phase 2: scoring, new positions and additions split apart so additions
	// face their stricter bar.
	var newSymbols, heldSymbols []string
	for _, symbol := range symbols {
		if _, held := holdings[symbol]; held {
			heldSymbols = append(heldSymbols, symbol)
		} else {
			newSymbols = append(newSymbols, symbol)
		}
	}

	passingNew, _, err := o.scorer.Score(ctx, newSymbols, strategy.Scoring, false)
	if err != nil {
		return fmt.Errorf("scoring failed: %w", err)
	}
	passingHeld, declinedHeld, err := o.scorer.Score(ctx, heldSymbols, strategy.Scoring, true)
	if err != nil {
		return fmt.Errorf("addition scoring failed: %w", err)
	}

	candidates := make([]*domain.Candidate, 0, len(passingNew)+len(passingHeld)+len(declinedHeld))
	candidates = append(candidates, passingNew...)
	candidates = append(candidates, passingHeld...)
	candidates = append(candidates, declinedHeld...)

	run.Counters.StocksScored = len(newSymbols) + len(heldSymbols)
	o.runs.AppendEvent(run.ID, fmt.Sprintf(
		"scoring: %d candidates pass (%d new, %d additions, %d held for exit evaluation)",
		len(candidates), len(passingNew), len(passingHeld), len(declinedHeld)))
	progress.Report(pctScoring, "scoring complete", run.Counters.StocksScored, run.Counters.StocksScored)

	if err := o.checkpoint(ctx, run); err != nil {
		return err
	}

	// Phase 3: attach externally generated theses.
	o.attachTheses(strategy.PortfolioID, candidates, run)
	progress.Report(pctTheses, "theses loaded", run.Counters.ThesesGenerated, len(candidates))

	if err := o.checkpoint(ctx, run); err != nil {
		return err
	}

	// Phase 4: deliberation or pure consensus. Prices resolve first so a
	// candidate nobody can price records a SKIP instead of an unsizable BUY.
	o.enrichCandidates(candidates)

	var (
		buyCandidates []*domain.Candidate
		exitSignals   []domain.ExitSignal
	)
	if strategy.Consensus.Mode == strategies.ConsensusAIDeliberation {
		buyCandidates, exitSignals, err = o.deliberate.Deliberate(ctx, deliberation.Request{
			RunID:         run.ID,
			Owner:         strategy.PortfolioID,
			Consensus:     strategy.Consensus,
			Holdings:      holdings,
			Progress:      progress,
			ProgressStart: pctTheses,
			ProgressEnd:   pctDeliberated,
		}, candidates)
		if err != nil {
			return fmt.Errorf("deliberation failed: %w", err)
		}
	} else {
		buyCandidates, err = o.runConsensus(run.ID, strategy.Consensus, candidates)
		if err != nil {
			return fmt.Errorf("consensus failed: %w", err)
		}
	}
	progress.Report(pctDeliberated, "deliberation complete", len(candidates), len(candidates))

	if err := o.checkpoint(ctx, run); err != nil {
		return err
	}

	// Phase 5: rule-based exits and holding re-evaluation, merged with any
	// deliberation exits. First signal per symbol wins.
	ruleExits := o.exits.CheckExits(holdings, strategy.Exits, time.Now())
	reevalExits := o.exits.CheckHoldings(ctx, holdings, strategy.Universe, strategy.Exits, o.scoreForExit(strategy.Exits), time.Now())
	exitSignals = mergeExits(exitSignals, ruleExits, reevalExits)
	for _, e := range exitSignals {
		o.runs.AppendEvent(run.ID, fmt.Sprintf("exit %s: %s", e.Symbol, e.Reason))
	}
	progress.Report(pctExits, "exit evaluation complete", len(exitSignals), len(exitSignals))

	if err := o.checkpoint(ctx, run); err != nil {
		return err
	}

	// Phase 6: sizing and execution. Two-phase cash accounting: the sizer
	// spends stored cash plus anticipated proceeds from this run's exits, and
	// never sees a fully-exited holding.
	buyCandidates = withoutExited(buyCandidates, exitSignals)

	available := execution.AvailableCash(cash, exitSignals)
	sizingHoldings := execution.HoldingsExcluding(holdings, exitSignals)

	trims, buyOrders := o.sizer.CalculateTargetOrders(
		buyCandidates, run.PortfolioValue, sizingHoldings, strategy.Sizing, available)
	exitSignals = mergeExits(exitSignals, trims)

	marketOpen := o.clock.IsOpen(time.Now())
	result := o.executor.Execute(exitSignals, buyOrders, strategy.PortfolioID, run.ID, marketOpen)
	run.Counters.TradesExecuted = result.SellCount + result.BuyCount
	o.runs.AppendEvent(run.ID, fmt.Sprintf(
		"execution: %d sells, %d buys, $%.2f proceeds (market open: %v)",
		result.SellCount, result.BuyCount, result.Proceeds, marketOpen))
	progress.Report(pctExecuted, "trades executed", run.Counters.TradesExecuted, run.Counters.TradesExecuted)

	// Phase 7: performance recording.
	if err := o.runs.UpdateCounters(run.ID, run.Counters); err != nil {
		return fmt.Errorf("failed to record run counters: %w", err)
	}
	progress.Report(pctDone, "run complete", run.Counters.TradesExecuted, run.Counters.TradesExecuted)
	return nil
}

// checkpoint persists counters and honors cancellation between phases.
// In-flight work finishes; no new phase starts after cancellation.
func (o *Orchestrator) checkpoint(ctx context.Context, run *runs.Run) error {
	if err := o.runs.UpdateCounters(run.ID, run.Counters); err != nil {
		o.log.Warn().Err(err).Msg("Failed to persist counters at checkpoint")
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("run cancelled: %w", err)
	}
	return nil
}

// attachTheses loads stored theses for every candidate. A missing thesis is
// not an error here - the deliberation phase records the SKIP.
func (o *Orchestrator) attachTheses(owner string, candidates []*domain.Candidate, run *runs.Run) {
	for _, c := range candidates {
		theses, err := o.theses.GetForSymbol(owner, c.Symbol)
		if err != nil {
			o.log.Warn().Err(err).Str("symbol", c.Symbol).Msg("Thesis lookup failed")
			continue
		}
		c.Theses = theses
		if c.HasBothTheses() {
			run.Counters.ThesesGenerated++
		}
	}
}

// runConsensus resolves candidates through the selected pure consensus mode.
// Held-exit-evaluation candidates are outside consensus scope: they exist only
// to be deliberated, so without a judge they simply remain held.
func (o *Orchestrator) runConsensus(runID string, cfg strategies.ConsensusConfig, candidates []*domain.Candidate) ([]*domain.Candidate, error) {
	var buys []*domain.Candidate

	for _, c := range candidates {
		if c.PositionType == domain.PositionTypeHeldExitEvaluation {
			o.recordDecision(runID, c, domain.ActionHold, "failed addition bar; exit rules decide", "")
			continue
		}

		result, err := consensus.Evaluate(c.Scores[domain.ModelLynch], c.Scores[domain.ModelBuffett], cfg)
		if err != nil {
			return nil, err
		}

		c.FinalVerdict = result.Verdict
		if result.Verdict == domain.VerdictBuy {
			if c.CurrentPrice <= 0 {
				o.recordDecision(runID, c, domain.ActionSkip, "no resolvable price; cannot size a position", result.Verdict)
				continue
			}
			buys = append(buys, c)
			o.recordDecision(runID, c, domain.ActionBuy, result.Reasoning, result.Verdict)
		} else {
			o.recordDecision(runID, c, domain.ActionSkip, result.Reasoning, result.Verdict)
		}
	}

	return buys, nil
}

func (o *Orchestrator) recordDecision(runID string, c *domain.Candidate, action domain.DecisionAction, reasoning string, verdict domain.Verdict) {
	d := &runs.Decision{
		RunID:        runID,
		Symbol:       c.Symbol,
		PositionType: c.PositionType,
		Verdict:      verdict,
		Action:       action,
		Reasoning:    reasoning,
		CreatedAt:    time.Now(),
	}
	if s, ok := c.Scores[domain.ModelLynch]; ok {
		score := s.Score
		d.LynchScore = &score
	}
	if s, ok := c.Scores[domain.ModelBuffett]; ok {
		score := s.Score
		d.BuffettScore = &score
	}
	if err := o.runs.CreateDecision(d); err != nil {
		o.log.Warn().Err(err).Str("symbol", c.Symbol).Msg("Failed to record decision")
	}
}

// scoreForExit gates re-scoring behind the strategy's check_min_scores flag
// so disabled strategies never pay oracle calls for holding re-evaluation.
func (o *Orchestrator) scoreForExit(cfg strategies.ExitConditions) exits.ScoringFunc {
	if !cfg.CheckMinScores {
		return nil
	}
	return o.scorer.ScoreSymbol
}

// enrichHoldings fills current prices onto the holdings snapshot.
func (o *Orchestrator) enrichHoldings(holdings map[string]domain.Holding) {
	if len(holdings) == 0 {
		return
	}
	symbols := make([]string, 0, len(holdings))
	for symbol := range holdings {
		symbols = append(symbols, symbol)
	}
	prices, err := o.prices.GetPricesBatch(symbols)
	if err != nil {
		o.log.Warn().Err(err).Msg("Failed to batch-fetch holding prices")
		return
	}
	for symbol, h := range holdings {
		if price, ok := prices[symbol]; ok {
			h.CurrentPrice = price
			holdings[symbol] = h
		}
	}
}

// enrichCandidates fills current prices onto candidates ahead of verdict
// resolution. A candidate with no resolvable price stays at zero and records
// a SKIP rather than a BUY.
func (o *Orchestrator) enrichCandidates(candidates []*domain.Candidate) {
	if len(candidates) == 0 {
		return
	}
	symbols := make([]string, 0, len(candidates))
	for _, c := range candidates {
		symbols = append(symbols, c.Symbol)
	}
	prices, err := o.prices.GetPricesBatch(symbols)
	if err != nil {
		o.log.Warn().Err(err).Msg("Failed to batch-fetch candidate prices")
		return
	}
	for _, c := range candidates {
		if price, ok := prices[c.Symbol]; ok {
			c.CurrentPrice = price
		}
	}
}

// mergeExits concatenates exit signal sets, keeping the first signal seen per
// symbol.
func mergeExits(sets ...[]domain.ExitSignal) []domain.ExitSignal {
	seen := make(map[string]bool)
	var merged []domain.ExitSignal
	for _, set := range sets {
		for _, e := range set {
			if seen[e.Symbol] {
				continue
			}
			seen[e.Symbol] = true
			merged = append(merged, e)
		}
	}
	return merged
}

// withoutExited drops buy candidates whose symbol is being exited this run.
func withoutExited(candidates []*domain.Candidate, exitSignals []domain.ExitSignal) []*domain.Candidate {
	if len(exitSignals) == 0 {
		return candidates
	}
	exiting := make(map[string]bool, len(exitSignals))
	for _, e := range exitSignals {
		if e.ExitType == domain.ExitTypeFull {
			exiting[e.Symbol] = true
		}
	}
	kept := candidates[:0]
	for _, c := range candidates {
		if !exiting[c.Symbol] {
			kept = append(kept, c)
		}
	}
	return kept
}

func portfolioValue(cash float64, holdings map[string]domain.Holding) float64 {
	total := cash
	for _, h := range holdings {
		total += h.MarketValue()
	}
	return total
}
