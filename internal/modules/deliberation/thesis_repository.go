package deliberation

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/avellar/conviction/internal/domain"
	"github.com/rs/zerolog"
)

// ThesisRepository persists per-model theses keyed by (owner, symbol, model).
// Thesis timestamps drive the deliberation cache staleness check.
type ThesisRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewThesisRepository creates a new thesis repository.
func NewThesisRepository(db *sql.DB, log zerolog.Logger) *ThesisRepository {
	return &ThesisRepository{
		db:  db,
		log: log.With().Str("repo", "thesis").Logger(),
	}
}

// Save upserts a thesis for (owner, symbol, model).
func (r *ThesisRepository) Save(owner, symbol string, model domain.ModelID, t *domain.Thesis) error {
	_, err := r.db.Exec(`
		INSERT INTO theses (owner, symbol, model, text, verdict, generated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(owner, symbol, model) DO UPDATE SET
			text = excluded.text, verdict = excluded.verdict, generated_at = excluded.generated_at`,
		owner, symbol, string(model), t.Text, string(t.Verdict), t.GeneratedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to save %s thesis for %s: %w", model, symbol, err)
	}

	return nil
}

// GetForSymbol returns the stored theses for (owner, symbol), keyed by model.
func (r *ThesisRepository) GetForSymbol(owner, symbol string) (map[domain.ModelID]*domain.Thesis, error) {
	rows, err := r.db.Query(`
		SELECT model, text, verdict, generated_at FROM theses WHERE owner = ? AND symbol = ?`,
		owner, symbol)
	if err != nil {
		return nil, fmt.Errorf("failed to get theses for %s/%s: %w", owner, symbol, err)
	}
	defer rows.Close()

	theses := make(map[domain.ModelID]*domain.Thesis, 2)
	for rows.Next() {
		var (
			model       string
			t           domain.Thesis
			verdict     string
			generatedAt int64
		)
		if err := rows.Scan(&model, &t.Text, &verdict, &generatedAt); err != nil {
			return nil, err
		}
		t.Verdict = domain.Verdict(verdict)
		t.GeneratedAt = time.Unix(generatedAt, 0)
		theses[domain.ModelID(model)] = &t
	}

	return theses, rows.Err()
}
