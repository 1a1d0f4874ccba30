// Package deliberation orchestrates LLM judge deliberations over candidates
// carrying theses from both models, with a staleness-checked response cache.
package deliberation

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/avellar/conviction/internal/domain"
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
)

// CacheRepository persists deliberation entries keyed by (owner, symbol).
//
// The cache is shared across runs: concurrent runs reuse each other's fresh
// judgments. Writes are last-writer-wins per key, relying on SQLite's write
// atomicity. Staleness is decided by domain.DeliberationEntry.IsStale, never
// by TTL.
type CacheRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewCacheRepository creates a new deliberation cache repository.
func NewCacheRepository(db *sql.DB, log zerolog.Logger) *CacheRepository {
	return &CacheRepository{
		db:  db,
		log: log.With().Str("repo", "deliberation_cache").Logger(),
	}
}

// Get returns the cached entry for (owner, symbol), or nil when absent.
// A corrupt entry is treated as absent so it regenerates.
func (r *CacheRepository) Get(owner, symbol string) (*domain.DeliberationEntry, error) {
	var blob []byte
	err := r.db.QueryRow(`SELECT entry FROM deliberations WHERE owner = ? AND symbol = ?`,
		owner, symbol).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read deliberation cache for %s/%s: %w", owner, symbol, err)
	}

	var entry domain.DeliberationEntry
	if err := msgpack.Unmarshal(blob, &entry); err != nil {
		r.log.Warn().Err(err).Str("symbol", symbol).Msg("Corrupt deliberation cache entry, regenerating")
		return nil, nil
	}

	return &entry, nil
}

// Save upserts the cache entry for (owner, symbol).
func (r *CacheRepository) Save(owner, symbol string, entry *domain.DeliberationEntry) error {
	blob, err := msgpack.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode deliberation entry for %s: %w", symbol, err)
	}

	_, err = r.db.Exec(`
		INSERT INTO deliberations (owner, symbol, entry, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(owner, symbol) DO UPDATE SET entry = excluded.entry, updated_at = excluded.updated_at`,
		owner, symbol, blob, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to save deliberation cache for %s/%s: %w", owner, symbol, err)
	}

	return nil
}
