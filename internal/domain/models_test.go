package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDeliberationEntry_IsStale(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	entry := &DeliberationEntry{GeneratedAt: base}

	older := &Thesis{GeneratedAt: base.Add(-time.Hour)}
	newer := &Thesis{GeneratedAt: base.Add(time.Hour)}

	tests := []struct {
		name    string
		lynch   *Thesis
		buffett *Thesis
		want    bool
	}{
		{"both older", older, older, false},
		{"lynch newer", newer, older, true},
		{"buffett newer", older, newer, true},
		{"both newer", newer, newer, true},
		{"nil theses never force regeneration", nil, nil, false},
		{"equal timestamp is fresh", &Thesis{GeneratedAt: base}, older, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, entry.IsStale(tt.lynch, tt.buffett))
		})
	}
}

func TestCandidate_Conviction(t *testing.T) {
	c := &Candidate{Scores: map[ModelID]ModelScore{
		ModelLynch:   {Score: 80},
		ModelBuffett: {Score: 60},
	}}
	assert.InDelta(t, 70.0, c.Conviction(), 0.001)

	// A single score stands alone.
	c = &Candidate{Scores: map[ModelID]ModelScore{ModelLynch: {Score: 55}}}
	assert.InDelta(t, 55.0, c.Conviction(), 0.001)

	assert.Zero(t, (&Candidate{}).Conviction())
}

func TestCandidate_HasBothTheses(t *testing.T) {
	c := &Candidate{Theses: map[ModelID]*Thesis{ModelLynch: {Text: "growth story"}}}
	assert.False(t, c.HasBothTheses())

	c.Theses[ModelBuffett] = &Thesis{Text: "wide moat"}
	assert.True(t, c.HasBothTheses())

	assert.False(t, (&Candidate{}).HasBothTheses())
}

func TestHolding_Math(t *testing.T) {
	h := Holding{Quantity: 10, AverageCost: 100, CurrentPrice: 120}
	assert.InDelta(t, 1200.0, h.MarketValue(), 0.001)
	assert.InDelta(t, 0.2, h.GainPercent(), 0.001)

	// No cost basis means no gain, not a division by zero.
	assert.Zero(t, Holding{Quantity: 5, CurrentPrice: 50}.GainPercent())
}
