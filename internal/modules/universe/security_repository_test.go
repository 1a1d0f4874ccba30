package universe

import (
	"context"
	"database/sql"
	"testing"

	"github.com/avellar/conviction/internal/domain"
	_ "modernc.org/sqlite"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupUniverseDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`
		CREATE TABLE securities (
			symbol       TEXT PRIMARY KEY,
			name         TEXT,
			market       TEXT NOT NULL DEFAULT '',
			market_cap   REAL NOT NULL DEFAULT 0,
			avg_volume   REAL NOT NULL DEFAULT 0,
			last_price   REAL NOT NULL DEFAULT 0,
			active       INTEGER NOT NULL DEFAULT 1,
			updated_at   INTEGER NOT NULL DEFAULT 0
		);
	`)
	require.NoError(t, err)

	return db
}

func seededRepo(t *testing.T) *SecurityRepository {
	repo := NewSecurityRepository(setupUniverseDB(t), zerolog.New(nil).Level(zerolog.Disabled))

	securities := []Security{
		{Symbol: "AAPL", Market: "NASDAQ", MarketCap: 3e12, AvgVolume: 5e7, LastPrice: 180, Active: true},
		{Symbol: "MSFT", Market: "NASDAQ", MarketCap: 2.8e12, AvgVolume: 3e7, LastPrice: 410, Active: true},
		{Symbol: "KO", Market: "NYSE", MarketCap: 2.6e11, AvgVolume: 1.5e7, LastPrice: 60, Active: true},
		{Symbol: "TINY", Market: "NYSE", MarketCap: 5e8, AvgVolume: 1e5, LastPrice: 4, Active: true},
		{Symbol: "GONE", Market: "NYSE", MarketCap: 1e10, AvgVolume: 1e6, LastPrice: 0, Active: false},
	}
	for _, s := range securities {
		require.NoError(t, repo.Upsert(s))
	}

	return repo
}

func TestFilter_StructuralConditions(t *testing.T) {
	repo := seededRepo(t)
	ctx := context.Background()

	tests := []struct {
		name       string
		conditions domain.UniverseConditions
		want       []string
	}{
		{
			name:       "no conditions returns all active",
			conditions: domain.UniverseConditions{},
			want:       []string{"AAPL", "KO", "MSFT", "TINY"},
		},
		{
			name:       "market restriction",
			conditions: domain.UniverseConditions{Markets: []string{"NYSE"}},
			want:       []string{"KO", "TINY"},
		},
		{
			name:       "market cap floor",
			conditions: domain.UniverseConditions{MinMarketCap: 1e11},
			want:       []string{"AAPL", "KO", "MSFT"},
		},
		{
			name:       "volume floor",
			conditions: domain.UniverseConditions{MinAvgVolume: 2e7},
			want:       []string{"AAPL", "MSFT"},
		},
		{
			name:       "exclusions are case insensitive",
			conditions: domain.UniverseConditions{Markets: []string{"NASDAQ"}, ExcludedSymbols: []string{"aapl"}},
			want:       []string{"MSFT"},
		},
		{
			name: "all conditions compose",
			conditions: domain.UniverseConditions{
				Markets:      []string{"NYSE", "NASDAQ"},
				MinMarketCap: 1e11,
				MinAvgVolume: 2e7,
			},
			want: []string{"AAPL", "MSFT"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := repo.Filter(ctx, tt.conditions)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFilter_InactiveNeverSurfaces(t *testing.T) {
	repo := seededRepo(t)

	got, err := repo.Filter(context.Background(), domain.UniverseConditions{})
	require.NoError(t, err)
	assert.NotContains(t, got, "GONE")
}

func TestContains(t *testing.T) {
	repo := seededRepo(t)
	ctx := context.Background()
	nyse := domain.UniverseConditions{Markets: []string{"NYSE"}}

	in, err := repo.Contains(ctx, "ko", nyse)
	require.NoError(t, err)
	assert.True(t, in, "symbol lookup is case insensitive")

	out, err := repo.Contains(ctx, "AAPL", nyse)
	require.NoError(t, err)
	assert.False(t, out)
}

func TestUpsert_ReplacesExistingRow(t *testing.T) {
	repo := seededRepo(t)

	require.NoError(t, repo.Upsert(Security{
		Symbol: " aapl ", Market: "NASDAQ", MarketCap: 3.1e12, AvgVolume: 6e7, LastPrice: 190, Active: true,
	}))

	price, err := repo.GetPrice("AAPL")
	require.NoError(t, err)
	assert.InDelta(t, 190.0, price, 0.001, "symbol is normalized before upsert")
}

func TestGetPrice(t *testing.T) {
	repo := seededRepo(t)

	price, err := repo.GetPrice("aapl")
	require.NoError(t, err)
	assert.InDelta(t, 180.0, price, 0.001)

	_, err = repo.GetPrice("ZZZZ")
	assert.Error(t, err)

	// Inactive security with a zero price is unusable.
	_, err = repo.GetPrice("GONE")
	assert.Error(t, err)
}

func TestGetPricesBatch_OmitsUnusablePrices(t *testing.T) {
	repo := seededRepo(t)

	prices, err := repo.GetPricesBatch([]string{"aapl", "KO", "GONE", "ZZZZ"})
	require.NoError(t, err)

	assert.InDelta(t, 180.0, prices["AAPL"], 0.001)
	assert.InDelta(t, 60.0, prices["KO"], 0.001)
	assert.NotContains(t, prices, "GONE", "zero price omitted")
	assert.NotContains(t, prices, "ZZZZ", "unknown symbol omitted")
	assert.Empty(t, prices["ZZZZ"])

	empty, err := repo.GetPricesBatch(nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}
