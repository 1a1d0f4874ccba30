package runs

import (
	"database/sql"
	"testing"
	"time"

	"github.com/avellar/conviction/internal/domain"
	_ "modernc.org/sqlite"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRunsDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`
		CREATE TABLE runs (
			id               TEXT PRIMARY KEY,
			strategy_id      TEXT NOT NULL,
			status           TEXT NOT NULL CHECK(status IN ('running','completed','failed')),
			started_at       INTEGER NOT NULL,
			completed_at     INTEGER,
			stocks_screened  INTEGER NOT NULL DEFAULT 0,
			stocks_scored    INTEGER NOT NULL DEFAULT 0,
			theses_generated INTEGER NOT NULL DEFAULT 0,
			trades_executed  INTEGER NOT NULL DEFAULT 0,
			portfolio_value  REAL NOT NULL DEFAULT 0,
			error_message    TEXT
		);
		CREATE TABLE run_events (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id     TEXT NOT NULL,
			message    TEXT NOT NULL,
			created_at INTEGER NOT NULL
		);
		CREATE TABLE decisions (
			run_id          TEXT NOT NULL,
			symbol          TEXT NOT NULL,
			position_type   TEXT NOT NULL,
			lynch_score     REAL,
			buffett_score   REAL,
			thesis_summary  TEXT,
			verdict         TEXT,
			action          TEXT NOT NULL,
			reasoning       TEXT,
			created_at      INTEGER NOT NULL,
			PRIMARY KEY (run_id, symbol)
		);
	`)
	require.NoError(t, err)

	return db
}

func newTestRunRepo(t *testing.T) *RunRepository {
	return NewRunRepository(setupRunsDB(t), zerolog.New(nil).Level(zerolog.Disabled))
}

func newRun(id string) *Run {
	return &Run{
		ID:             id,
		StrategyID:     "strat-1",
		StartedAt:      time.Now(),
		PortfolioValue: 50_000,
	}
}

func TestCreate_DefaultsToRunning(t *testing.T) {
	repo := newTestRunRepo(t)

	require.NoError(t, repo.Create(newRun("run-1")))

	got, err := repo.GetByID("run-1")
	require.NoError(t, err)
	assert.Equal(t, RunStatusRunning, got.Status)
	assert.Nil(t, got.CompletedAt)
	assert.InDelta(t, 50_000.0, got.PortfolioValue, 0.001)
}

func TestMarkCompleted_SetsTerminalState(t *testing.T) {
	repo := newTestRunRepo(t)
	require.NoError(t, repo.Create(newRun("run-1")))

	require.NoError(t, repo.MarkCompleted("run-1"))

	got, err := repo.GetByID("run-1")
	require.NoError(t, err)
	assert.Equal(t, RunStatusCompleted, got.Status)
	assert.NotNil(t, got.CompletedAt)
	assert.Empty(t, got.ErrorMessage)
}

func TestMarkFailed_CapturesError(t *testing.T) {
	repo := newTestRunRepo(t)
	require.NoError(t, repo.Create(newRun("run-1")))

	require.NoError(t, repo.MarkFailed("run-1", "universe filter failed"))

	got, err := repo.GetByID("run-1")
	require.NoError(t, err)
	assert.Equal(t, RunStatusFailed, got.Status)
	assert.Equal(t, "universe filter failed", got.ErrorMessage)
}

func TestFinish_TerminalStatusIsNeverOverwritten(t *testing.T) {
	repo := newTestRunRepo(t)
	require.NoError(t, repo.Create(newRun("run-1")))
	require.NoError(t, repo.MarkCompleted("run-1"))

	assert.Error(t, repo.MarkFailed("run-1", "late failure"))
	assert.Error(t, repo.MarkCompleted("run-1"))

	got, err := repo.GetByID("run-1")
	require.NoError(t, err)
	assert.Equal(t, RunStatusCompleted, got.Status)
	assert.Empty(t, got.ErrorMessage)
}

func TestUpdateCounters(t *testing.T) {
	repo := newTestRunRepo(t)
	require.NoError(t, repo.Create(newRun("run-1")))

	counters := Counters{StocksScreened: 120, StocksScored: 45, ThesesGenerated: 12, TradesExecuted: 3}
	require.NoError(t, repo.UpdateCounters("run-1", counters))

	got, err := repo.GetByID("run-1")
	require.NoError(t, err)
	assert.Equal(t, counters, got.Counters)
}

func TestAppendEvent_PreservesInsertionOrder(t *testing.T) {
	repo := newTestRunRepo(t)
	require.NoError(t, repo.Create(newRun("run-1")))

	repo.AppendEvent("run-1", "Universe filtered: 120 candidates")
	repo.AppendEvent("run-1", "Scored 45 candidates")
	repo.AppendEvent("run-2", "unrelated run")

	events, err := repo.ListEvents("run-1")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "Universe filtered: 120 candidates", events[0].Message)
	assert.Equal(t, "Scored 45 candidates", events[1].Message)
}

func TestCreateDecision_WriteOncePerRunAndSymbol(t *testing.T) {
	repo := newTestRunRepo(t)
	lynch := 72.0

	first := &Decision{
		RunID:        "run-1",
		Symbol:       "AAPL",
		PositionType: domain.PositionTypeNew,
		LynchScore:   &lynch,
		Verdict:      domain.VerdictBuy,
		Action:       domain.ActionBuy,
		Reasoning:    "growth case wins",
	}
	require.NoError(t, repo.CreateDecision(first))

	// Same (run, symbol) again: rejected, first write stands.
	second := &Decision{
		RunID: "run-1", Symbol: "AAPL",
		PositionType: domain.PositionTypeNew,
		Action:       domain.ActionSkip,
	}
	assert.Error(t, repo.CreateDecision(second))

	decisions, err := repo.ListDecisions("run-1")
	require.NoError(t, err)
	require.Len(t, decisions, 1)
	assert.Equal(t, domain.ActionBuy, decisions[0].Action)

	// Same symbol under a different run is a fresh key.
	third := &Decision{
		RunID: "run-2", Symbol: "AAPL",
		PositionType: domain.PositionTypeNew,
		Action:       domain.ActionSkip,
	}
	assert.NoError(t, repo.CreateDecision(third))
}

func TestListDecisions_RoundTripsOptionalFields(t *testing.T) {
	repo := newTestRunRepo(t)
	lynch, buffett := 72.0, 61.5

	full := &Decision{
		RunID:         "run-1",
		Symbol:        "AAPL",
		PositionType:  domain.PositionTypeAddition,
		LynchScore:    &lynch,
		BuffettScore:  &buffett,
		ThesisSummary: "fast grower with a moat",
		Verdict:       domain.VerdictBuy,
		Action:        domain.ActionBuy,
		Reasoning:     "both analysts agree",
	}
	bare := &Decision{
		RunID:        "run-1",
		Symbol:       "ZZZZ",
		PositionType: domain.PositionTypeNew,
		Action:       domain.ActionSkip,
	}
	require.NoError(t, repo.CreateDecision(full))
	require.NoError(t, repo.CreateDecision(bare))

	decisions, err := repo.ListDecisions("run-1")
	require.NoError(t, err)
	require.Len(t, decisions, 2)

	require.NotNil(t, decisions[0].LynchScore)
	assert.InDelta(t, 72.0, *decisions[0].LynchScore, 0.001)
	require.NotNil(t, decisions[0].BuffettScore)
	assert.InDelta(t, 61.5, *decisions[0].BuffettScore, 0.001)
	assert.Equal(t, domain.VerdictBuy, decisions[0].Verdict)

	assert.Nil(t, decisions[1].LynchScore)
	assert.Empty(t, decisions[1].ThesisSummary)
	assert.Empty(t, decisions[1].Verdict)
}

func TestGetByID_MissingRun(t *testing.T) {
	repo := newTestRunRepo(t)

	_, err := repo.GetByID("no-such-run")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}
