package runs

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/avellar/conviction/internal/domain"
	"github.com/rs/zerolog"
)

// RunRepository handles run, event log, and decision persistence.
type RunRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRunRepository creates a new run repository.
func NewRunRepository(db *sql.DB, log zerolog.Logger) *RunRepository {
	return &RunRepository{
		db:  db,
		log: log.With().Str("repo", "run").Logger(),
	}
}

// Create inserts a new run record in "running" status.
func (r *RunRepository) Create(run *Run) error {
	if run.Status == "" {
		run.Status = RunStatusRunning
	}

	_, err := r.db.Exec(`
		INSERT INTO runs (id, strategy_id, status, started_at, portfolio_value)
		VALUES (?, ?, ?, ?, ?)`,
		run.ID, run.StrategyID, string(run.Status), run.StartedAt.Unix(), run.PortfolioValue,
	)
	if err != nil {
		return fmt.Errorf("failed to create run %s: %w", run.ID, err)
	}

	return nil
}

// UpdateCounters persists the run's progress counters.
func (r *RunRepository) UpdateCounters(runID string, c Counters) error {
	_, err := r.db.Exec(`
		UPDATE runs
		SET stocks_screened = ?, stocks_scored = ?, theses_generated = ?, trades_executed = ?
		WHERE id = ?`,
		c.StocksScreened, c.StocksScored, c.ThesesGenerated, c.TradesExecuted, runID,
	)
	if err != nil {
		return fmt.Errorf("failed to update counters for run %s: %w", runID, err)
	}
	return nil
}

// MarkCompleted transitions a run to "completed". Only running runs transition;
// a terminal status is never overwritten.
func (r *RunRepository) MarkCompleted(runID string) error {
	return r.finish(runID, RunStatusCompleted, "")
}

// MarkFailed transitions a run to "failed" and captures the error message.
func (r *RunRepository) MarkFailed(runID string, errMsg string) error {
	return r.finish(runID, RunStatusFailed, errMsg)
}

func (r *RunRepository) finish(runID string, status RunStatus, errMsg string) error {
	var errVal interface{}
	if errMsg != "" {
		errVal = errMsg
	}

	result, err := r.db.Exec(`
		UPDATE runs
		SET status = ?, completed_at = ?, error_message = ?
		WHERE id = ? AND status = 'running'`,
		string(status), time.Now().Unix(), errVal, runID,
	)
	if err != nil {
		return fmt.Errorf("failed to mark run %s %s: %w", runID, status, err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("run %s is not running, refusing status transition to %s", runID, status)
	}

	return nil
}

// GetByID fetches a single run. Returns sql.ErrNoRows when absent.
func (r *RunRepository) GetByID(runID string) (*Run, error) {
	row := r.db.QueryRow(`
		SELECT id, strategy_id, status, started_at, completed_at,
		       stocks_screened, stocks_scored, theses_generated, trades_executed,
		       portfolio_value, error_message
		FROM runs WHERE id = ?`, runID)

	var (
		run         Run
		status      string
		startedAt   int64
		completedAt sql.NullInt64
		errMsg      sql.NullString
	)

	err := row.Scan(&run.ID, &run.StrategyID, &status, &startedAt, &completedAt,
		&run.Counters.StocksScreened, &run.Counters.StocksScored,
		&run.Counters.ThesesGenerated, &run.Counters.TradesExecuted,
		&run.PortfolioValue, &errMsg)
	if err != nil {
		return nil, err
	}

	run.Status = RunStatus(status)
	run.StartedAt = time.Unix(startedAt, 0)
	if completedAt.Valid {
		t := time.Unix(completedAt.Int64, 0)
		run.CompletedAt = &t
	}
	if errMsg.Valid {
		run.ErrorMessage = errMsg.String
	}

	return &run, nil
}

// AppendEvent adds a line to the run's append-only event log.
// Event log failures are logged but never propagated - progress reporting
// must not fail a run.
func (r *RunRepository) AppendEvent(runID string, message string) {
	_, err := r.db.Exec(`INSERT INTO run_events (run_id, message, created_at) VALUES (?, ?, ?)`,
		runID, message, time.Now().Unix())
	if err != nil {
		r.log.Warn().Err(err).Str("run_id", runID).Msg("Failed to append run event")
	}
}

// ListEvents returns a run's event log in insertion order.
func (r *RunRepository) ListEvents(runID string) ([]Event, error) {
	rows, err := r.db.Query(`
		SELECT id, run_id, message, created_at FROM run_events WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list events for run %s: %w", runID, err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			e         Event
			createdAt int64
		)
		if err := rows.Scan(&e.ID, &e.RunID, &e.Message, &createdAt); err != nil {
			return nil, err
		}
		e.CreatedAt = time.Unix(createdAt, 0)
		events = append(events, e)
	}

	return events, rows.Err()
}

// CreateDecision records the resolution of one candidate. Decisions are
// write-once per (run, symbol): a second write for the same key is rejected
// by the primary key and reported as an error.
func (r *RunRepository) CreateDecision(d *Decision) error {
	_, err := r.db.Exec(`
		INSERT INTO decisions
		(run_id, symbol, position_type, lynch_score, buffett_score, thesis_summary, verdict, action, reasoning, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.RunID, d.Symbol, string(d.PositionType),
		nullFloat(d.LynchScore), nullFloat(d.BuffettScore),
		nullString(d.ThesisSummary), nullString(string(d.Verdict)),
		string(d.Action), nullString(d.Reasoning), time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to create decision for %s in run %s: %w", d.Symbol, d.RunID, err)
	}

	return nil
}

// ListDecisions returns all decisions recorded for a run, keyed by symbol order.
func (r *RunRepository) ListDecisions(runID string) ([]Decision, error) {
	rows, err := r.db.Query(`
		SELECT run_id, symbol, position_type, lynch_score, buffett_score,
		       thesis_summary, verdict, action, reasoning, created_at
		FROM decisions WHERE run_id = ? ORDER BY symbol`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list decisions for run %s: %w", runID, err)
	}
	defer rows.Close()

	var decisions []Decision
	for rows.Next() {
		var (
			d            Decision
			positionType string
			lynch        sql.NullFloat64
			buffett      sql.NullFloat64
			summary      sql.NullString
			verdict      sql.NullString
			reasoning    sql.NullString
			createdAt    int64
		)

		err := rows.Scan(&d.RunID, &d.Symbol, &positionType, &lynch, &buffett,
			&summary, &verdict, &d.Action, &reasoning, &createdAt)
		if err != nil {
			return nil, err
		}

		d.PositionType = domain.PositionType(positionType)
		if lynch.Valid {
			d.LynchScore = &lynch.Float64
		}
		if buffett.Valid {
			d.BuffettScore = &buffett.Float64
		}
		if summary.Valid {
			d.ThesisSummary = summary.String
		}
		if verdict.Valid {
			d.Verdict = domain.Verdict(verdict.String)
		}
		if reasoning.Valid {
			d.Reasoning = reasoning.String
		}
		d.CreatedAt = time.Unix(createdAt, 0)

		decisions = append(decisions, d)
	}

	return decisions, rows.Err()
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullFloat(f *float64) interface{} {
	if f == nil {
		return nil
	}
	return *f
}
