package deliberation

import (
	"database/sql"
	"testing"
	"time"

	"github.com/avellar/conviction/internal/domain"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func setupCacheDB(t *testing.T) *sql.DB {
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`
		CREATE TABLE deliberations (
			owner      TEXT NOT NULL,
			symbol     TEXT NOT NULL,
			entry      BLOB NOT NULL,
			updated_at INTEGER NOT NULL,
			PRIMARY KEY (owner, symbol)
		)`)
	require.NoError(t, err)

	_, err = db.Exec(`
		CREATE TABLE theses (
			owner        TEXT NOT NULL,
			symbol       TEXT NOT NULL,
			model        TEXT NOT NULL,
			text         TEXT NOT NULL,
			verdict      TEXT NOT NULL,
			generated_at INTEGER NOT NULL,
			PRIMARY KEY (owner, symbol, model)
		)`)
	require.NoError(t, err)

	return db
}

func testLog() zerolog.Logger {
	return zerolog.New(nil).Level(zerolog.Disabled)
}

func TestCacheRepository_RoundTrip(t *testing.T) {
	repo := NewCacheRepository(setupCacheDB(t), testLog())

	entry := &domain.DeliberationEntry{
		Text:        "both models see durable growth",
		Verdict:     domain.VerdictBuy,
		ModelUsed:   "primary-model",
		GeneratedAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, repo.Save("pf-1", "AAPL", entry))

	got, err := repo.Get("pf-1", "AAPL")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, entry.Text, got.Text)
	assert.Equal(t, domain.VerdictBuy, got.Verdict)
	assert.True(t, entry.GeneratedAt.Equal(got.GeneratedAt))
}

func TestCacheRepository_MissIsNilNotError(t *testing.T) {
	repo := NewCacheRepository(setupCacheDB(t), testLog())

	got, err := repo.Get("pf-1", "NOPE")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestCacheRepository_OverwriteIsLastWriterWins(t *testing.T) {
	repo := NewCacheRepository(setupCacheDB(t), testLog())

	require.NoError(t, repo.Save("pf-1", "AAPL", &domain.DeliberationEntry{Text: "first", Verdict: domain.VerdictWatch}))
	require.NoError(t, repo.Save("pf-1", "AAPL", &domain.DeliberationEntry{Text: "second", Verdict: domain.VerdictBuy}))

	got, err := repo.Get("pf-1", "AAPL")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "second", got.Text)
}

func TestCacheRepository_CorruptEntryRegenerates(t *testing.T) {
	db := setupCacheDB(t)
	repo := NewCacheRepository(db, testLog())

	_, err := db.Exec(`INSERT INTO deliberations (owner, symbol, entry, updated_at) VALUES (?, ?, ?, ?)`,
		"pf-1", "AAPL", []byte("not msgpack"), time.Now().Unix())
	require.NoError(t, err)

	got, err := repo.Get("pf-1", "AAPL")
	require.NoError(t, err, "corrupt entry is treated as a miss, not an error")
	assert.Nil(t, got)
}

func TestCacheRepository_KeyedByOwner(t *testing.T) {
	repo := NewCacheRepository(setupCacheDB(t), testLog())

	require.NoError(t, repo.Save("pf-1", "AAPL", &domain.DeliberationEntry{Text: "pf-1 view"}))

	got, err := repo.Get("pf-2", "AAPL")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestThesisRepository_RoundTrip(t *testing.T) {
	repo := NewThesisRepository(setupCacheDB(t), testLog())

	lynch := &domain.Thesis{
		Text:        "fast grower at a fair multiple",
		Verdict:     domain.VerdictBuy,
		GeneratedAt: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC),
	}
	buffett := &domain.Thesis{
		Text:        "moat is narrowing",
		Verdict:     domain.VerdictWatch,
		GeneratedAt: time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC),
	}
	require.NoError(t, repo.Save("pf-1", "AAPL", domain.ModelLynch, lynch))
	require.NoError(t, repo.Save("pf-1", "AAPL", domain.ModelBuffett, buffett))

	theses, err := repo.GetForSymbol("pf-1", "AAPL")
	require.NoError(t, err)
	require.Len(t, theses, 2)
	assert.Equal(t, lynch.Text, theses[domain.ModelLynch].Text)
	assert.Equal(t, domain.VerdictWatch, theses[domain.ModelBuffett].Verdict)
}

func TestThesisRepository_UpsertRefreshesTimestamp(t *testing.T) {
	repo := NewThesisRepository(setupCacheDB(t), testLog())

	old := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Save("pf-1", "AAPL", domain.ModelLynch, &domain.Thesis{Text: "v1", GeneratedAt: old}))
	require.NoError(t, repo.Save("pf-1", "AAPL", domain.ModelLynch, &domain.Thesis{Text: "v2", GeneratedAt: newer}))

	theses, err := repo.GetForSymbol("pf-1", "AAPL")
	require.NoError(t, err)
	require.Len(t, theses, 1)
	assert.Equal(t, "v2", theses[domain.ModelLynch].Text)
	assert.True(t, theses[domain.ModelLynch].GeneratedAt.Equal(newer))
}
