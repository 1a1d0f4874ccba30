package database

// schemas maps database names to their embedded schema definitions.
// Each schema is idempotent and applied in full at startup.
var schemas = map[string]string{
	"universe":  universeSchema,
	"portfolio": portfolioSchema,
	"runs":      runsSchema,
	"cache":     cacheSchema,
}

const universeSchema = `
CREATE TABLE IF NOT EXISTS securities (
	symbol       TEXT PRIMARY KEY,
	name         TEXT,
	market       TEXT NOT NULL DEFAULT '',
	market_cap   REAL NOT NULL DEFAULT 0,
	avg_volume   REAL NOT NULL DEFAULT 0,
	last_price   REAL NOT NULL DEFAULT 0,
	active       INTEGER NOT NULL DEFAULT 1,
	updated_at   INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_securities_market ON securities(market);
CREATE INDEX IF NOT EXISTS idx_securities_active ON securities(active);
`

const portfolioSchema = `
CREATE TABLE IF NOT EXISTS positions (
	portfolio_id TEXT NOT NULL,
	symbol       TEXT NOT NULL,
	quantity     REAL NOT NULL,
	average_cost REAL NOT NULL DEFAULT 0,
	opened_at    INTEGER NOT NULL DEFAULT 0,
	updated_at   INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (portfolio_id, symbol)
);

CREATE TABLE IF NOT EXISTS cash_balances (
	portfolio_id TEXT PRIMARY KEY,
	balance      REAL NOT NULL DEFAULT 0,
	updated_at   INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS transactions (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	portfolio_id TEXT NOT NULL,
	symbol       TEXT NOT NULL,
	side         TEXT NOT NULL CHECK(side IN ('BUY','SELL')),
	quantity     REAL NOT NULL CHECK(quantity > 0),
	price        REAL NOT NULL CHECK(price > 0),
	reason       TEXT,
	run_id       TEXT,
	executed_at  INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_transactions_portfolio ON transactions(portfolio_id, executed_at);

CREATE TABLE IF NOT EXISTS pending_orders (
	id              TEXT PRIMARY KEY,
	portfolio_id    TEXT NOT NULL,
	symbol          TEXT NOT NULL,
	side            TEXT NOT NULL CHECK(side IN ('BUY','SELL')),
	quantity        REAL NOT NULL,
	estimated_value REAL NOT NULL DEFAULT 0,
	reason          TEXT,
	created_at      INTEGER NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_pending_orders_dedup
	ON pending_orders(portfolio_id, symbol, side);
`

const runsSchema = `
CREATE TABLE IF NOT EXISTS strategies (
	id               TEXT PRIMARY KEY,
	portfolio_id     TEXT NOT NULL,
	name             TEXT NOT NULL,
	enabled          INTEGER NOT NULL DEFAULT 1,
	universe_json    TEXT NOT NULL DEFAULT '{}',
	scoring_json     TEXT NOT NULL DEFAULT '{}',
	consensus_json   TEXT NOT NULL DEFAULT '{}',
	sizing_json      TEXT NOT NULL DEFAULT '{}',
	exits_json       TEXT NOT NULL DEFAULT '{}',
	schedule         TEXT NOT NULL DEFAULT '',
	created_at       INTEGER NOT NULL DEFAULT 0,
	updated_at       INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS runs (
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

CREATE INDEX IF NOT EXISTS idx_runs_strategy ON runs(strategy_id, started_at);

CREATE TABLE IF NOT EXISTS run_events (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id     TEXT NOT NULL,
	message    TEXT NOT NULL,
	created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_run_events_run ON run_events(run_id, id);

CREATE TABLE IF NOT EXISTS decisions (
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
`

const cacheSchema = `
CREATE TABLE IF NOT EXISTS deliberations (
	owner      TEXT NOT NULL,
	symbol     TEXT NOT NULL,
	entry      BLOB NOT NULL,
	updated_at INTEGER NOT NULL,
	PRIMARY KEY (owner, symbol)
);

CREATE TABLE IF NOT EXISTS theses (
	owner        TEXT NOT NULL,
	symbol       TEXT NOT NULL,
	model        TEXT NOT NULL,
	text         TEXT NOT NULL,
	verdict      TEXT NOT NULL,
	generated_at INTEGER NOT NULL,
	PRIMARY KEY (owner, symbol, model)
);
`
