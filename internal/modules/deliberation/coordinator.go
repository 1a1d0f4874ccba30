package deliberation

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/avellar/conviction/internal/domain"
	"github.com/avellar/conviction/internal/modules/runs"
	"github.com/avellar/conviction/internal/modules/strategies"
	"github.com/avellar/conviction/internal/workers"
	"github.com/rs/zerolog"
)

// progressStride is how many completions pass between progress reports.
const progressStride = 10

// exitReasonLimit truncates deliberation text used as an exit reason.
const exitReasonLimit = 200

// DecisionRecorder persists candidate decisions and run events.
type DecisionRecorder interface {
	CreateDecision(d *runs.Decision) error
	AppendEvent(runID string, message string)
}

// Request carries everything one deliberation phase needs.
type Request struct {
	RunID     string
	Owner     string // cache owner key: the strategy's portfolio id
	Consensus strategies.ConsensusConfig
	Holdings  map[string]domain.Holding

	Progress      domain.ProgressSink
	ProgressStart int // overall run percentage at phase entry
	ProgressEnd   int // overall run percentage at phase exit
}

// Coordinator fans deliberations out across the worker pool, consulting and
// populating the shared response cache.
type Coordinator struct {
	cache     *CacheRepository
	judge     *JudgeCaller
	decisions DecisionRecorder
	pool      *workers.Pool
	log       zerolog.Logger
}

// NewCoordinator creates a deliberation coordinator.
func NewCoordinator(
	cache *CacheRepository,
	judge *JudgeCaller,
	decisions DecisionRecorder,
	pool *workers.Pool,
	log zerolog.Logger,
) *Coordinator {
	return &Coordinator{
		cache:     cache,
		judge:     judge,
		decisions: decisions,
		pool:      pool,
		log:       log.With().Str("component", "deliberation").Logger(),
	}
}

// deliberationResult is one candidate's outcome collected from the pool.
type deliberationResult struct {
	candidate *domain.Candidate
	entry     *domain.DeliberationEntry
	err       error
}

// Deliberate resolves every thesis-complete candidate through the judge (or
// the cache) and converts final verdicts into buy decisions and exit signals.
//
// Candidates lacking either thesis are recorded as SKIP - deliberation is
// mandatory for trading, not optional. Judge failures after retries and
// fallback exclude only the affected candidate.
func (c *Coordinator) Deliberate(
	ctx context.Context,
	req Request,
	candidates []*domain.Candidate,
) (buys []*domain.Candidate, exits []domain.ExitSignal, err error) {
	var eligible []*domain.Candidate

	for _, candidate := range candidates {
		if candidate.HasBothTheses() {
			eligible = append(eligible, candidate)
			continue
		}
		c.recordSkip(req.RunID, candidate, "missing thesis for one or both models; deliberation is mandatory for trading")
	}

	if len(eligible) == 0 {
		return nil, nil, nil
	}

	c.log.Info().
		Int("eligible", len(eligible)).
		Int("workers", c.pool.Size()).
		Msg("Starting deliberations")

	// Fan out through the bounded pool; results are collected as workers
	// complete. Ordering does not matter - the decision set is keyed by symbol.
	var (
		mu      sync.Mutex
		results = make([]deliberationResult, 0, len(eligible))
	)

	tasks := make([]func(), 0, len(eligible))
	for _, candidate := range eligible {
		candidate := candidate
		tasks = append(tasks, func() {
			entry, taskErr := c.deliberateOne(ctx, req.Owner, candidate)
			mu.Lock()
			results = append(results, deliberationResult{candidate: candidate, entry: entry, err: taskErr})
			mu.Unlock()
		})
	}

	c.pool.Execute(ctx, tasks, func(done, total int) {
		if done%progressStride != 0 && done != total {
			return
		}
		if req.Progress == nil {
			return
		}
		span := req.ProgressEnd - req.ProgressStart
		percent := req.ProgressStart + span*done/total
		req.Progress.Report(percent, fmt.Sprintf("Deliberated %d/%d candidates", done, total), done, total)
	})

	if ctx.Err() != nil {
		return nil, nil, ctx.Err()
	}

	// Apply verdict rules sequentially over the collected results.
	for _, result := range results {
		candidate := result.candidate

		if result.err != nil {
			c.recordSkip(req.RunID, candidate, fmt.Sprintf("judge unavailable: %v", result.err))
			continue
		}

		candidate.Deliberation = result.entry.Text
		candidate.FinalVerdict = result.entry.Verdict

		if restricted, reason := c.verdictRestricted(req.Consensus, result.entry.Verdict); restricted {
			c.recordSkip(req.RunID, candidate, reason)
			continue
		}

		holding, held := req.Holdings[candidate.Symbol]

		switch {
		case result.entry.Verdict == domain.VerdictBuy:
			if candidate.PositionType == domain.PositionTypeHeldExitEvaluation {
				// Failed the stricter addition bar but the judge affirms the
				// holding: keep it, do not add.
				c.recordDecision(req.RunID, candidate, domain.ActionHold,
					"judge affirms holding despite failed addition bar; hold, do not add")
				continue
			}
			if candidate.CurrentPrice <= 0 {
				c.recordSkip(req.RunID, candidate, "no resolvable price; cannot size a position")
				continue
			}
			c.recordDecision(req.RunID, candidate, domain.ActionBuy, result.entry.Text)
			buys = append(buys, candidate)

		case result.entry.Verdict == domain.VerdictAvoid && held &&
			candidate.PositionType != domain.PositionTypeHeldExitEvaluation:
			price := candidate.CurrentPrice
			if price <= 0 {
				price = holding.CurrentPrice
			}
			gain := holding.GainPercent()
			exits = append(exits, domain.ExitSignal{
				Symbol:       candidate.Symbol,
				Quantity:     holding.Quantity,
				Reason:       truncate(result.entry.Text, exitReasonLimit),
				CurrentValue: holding.Quantity * price,
				ExitType:     domain.ExitTypeFull,
				GainPct:      &gain,
			})
			c.recordDecision(req.RunID, candidate, domain.ActionExit, truncate(result.entry.Text, exitReasonLimit))

		case candidate.PositionType == domain.PositionTypeHeldExitEvaluation:
			// Non-BUY verdicts on addition-declines produce no action here;
			// the exit evaluation phase decides whether the position goes.
			c.recordDecision(req.RunID, candidate, domain.ActionHold,
				"failed addition bar; exit rules decide whether the position stays")

		default:
			c.recordDecision(req.RunID, candidate, domain.ActionSkip,
				fmt.Sprintf("verdict %s produces no action", result.entry.Verdict))
		}
	}

	c.log.Info().
		Int("buys", len(buys)).
		Int("exits", len(exits)).
		Msg("Deliberations complete")

	return buys, exits, nil
}

// deliberateOne returns a fresh or cached deliberation for one candidate.
// The result is persisted into the cache before returning.
func (c *Coordinator) deliberateOne(ctx context.Context, owner string, candidate *domain.Candidate) (*domain.DeliberationEntry, error) {
	cached, err := c.cache.Get(owner, candidate.Symbol)
	if err != nil {
		c.log.Warn().Err(err).Str("symbol", candidate.Symbol).Msg("Cache read failed, regenerating")
	}

	lynch := candidate.Theses[domain.ModelLynch]
	buffett := candidate.Theses[domain.ModelBuffett]

	if cached != nil && !cached.IsStale(lynch, buffett) {
		c.log.Debug().Str("symbol", candidate.Symbol).Msg("Using cached deliberation")
		return cached, nil
	}

	prompt := buildPrompt(candidate.Symbol, lynch, buffett)

	text, modelUsed, err := c.judge.Deliberate(ctx, prompt)
	if err != nil {
		return nil, err
	}

	entry := &domain.DeliberationEntry{
		Text:        text,
		Verdict:     ParseVerdict(text),
		ModelUsed:   modelUsed,
		GeneratedAt: time.Now(),
	}

	if err := c.cache.Save(owner, candidate.Symbol, entry); err != nil {
		// A cache write failure costs a future regeneration, nothing more
		c.log.Warn().Err(err).Str("symbol", candidate.Symbol).Msg("Failed to persist deliberation cache")
	}

	return entry, nil
}

// verdictRestricted enforces the strategy's acceptable-verdict set.
func (c *Coordinator) verdictRestricted(cfg strategies.ConsensusConfig, verdict domain.Verdict) (bool, string) {
	if len(cfg.ThesisVerdictRequired) == 0 {
		return false, ""
	}
	for _, allowed := range cfg.ThesisVerdictRequired {
		if strings.EqualFold(allowed, string(verdict)) {
			return false, ""
		}
	}
	return true, fmt.Sprintf("verdict %s outside required set %v", verdict, cfg.ThesisVerdictRequired)
}

func (c *Coordinator) recordSkip(runID string, candidate *domain.Candidate, reason string) {
	c.recordDecision(runID, candidate, domain.ActionSkip, reason)
}

func (c *Coordinator) recordDecision(runID string, candidate *domain.Candidate, action domain.DecisionAction, reasoning string) {
	decision := &runs.Decision{
		RunID:        runID,
		Symbol:       candidate.Symbol,
		PositionType: candidate.PositionType,
		Verdict:      candidate.FinalVerdict,
		Action:       action,
		Reasoning:    reasoning,
	}

	if s, ok := candidate.Scores[domain.ModelLynch]; ok {
		score := s.Score
		decision.LynchScore = &score
	}
	if s, ok := candidate.Scores[domain.ModelBuffett]; ok {
		score := s.Score
		decision.BuffettScore = &score
	}
	if candidate.Deliberation != "" {
		decision.ThesisSummary = truncate(candidate.Deliberation, exitReasonLimit)
	}

	if err := c.decisions.CreateDecision(decision); err != nil {
		c.log.Error().Err(err).Str("symbol", candidate.Symbol).Msg("Failed to record decision")
	}
}

// buildPrompt composes the deliberation prompt from the two theses.
func buildPrompt(symbol string, lynch, buffett *domain.Thesis) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Two analysts evaluated %s and disagree on the path forward.\n\n", symbol)
	fmt.Fprintf(&b, "Growth analyst verdict: %s\n%s\n\n", lynch.Verdict, lynch.Text)
	fmt.Fprintf(&b, "Quality analyst verdict: %s\n%s\n\n", buffett.Verdict, buffett.Text)
	b.WriteString("Weigh both arguments and conclude with FINAL VERDICT: BUY, WATCH, or AVOID.")

	return b.String()
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}
