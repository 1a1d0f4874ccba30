package consensus

import (
	"testing"

	"github.com/avellar/conviction/internal/domain"
	"github.com/avellar/conviction/internal/modules/strategies"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluate_UnknownModeIsError(t *testing.T) {
	_, err := Evaluate(domain.ModelScore{}, domain.ModelScore{}, strategies.ConsensusConfig{Mode: "majority_rules"})
	assert.Error(t, err)
}

func TestEvaluate_Deterministic(t *testing.T) {
	lynch := domain.ModelScore{Score: 72, Status: "BUY"}
	buffett := domain.ModelScore{Score: 65, Status: "HOLD"}
	cfg := strategies.ConsensusConfig{
		Mode:          strategies.ConsensusWeightedConfidence,
		LynchWeight:   0.6,
		BuffettWeight: 0.4,
		Threshold:     60,
	}

	first, err := Evaluate(lynch, buffett, cfg)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		again, err := Evaluate(lynch, buffett, cfg)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestBothAgree(t *testing.T) {
	cfg := strategies.ConsensusConfig{
		Mode:        strategies.ConsensusBothAgree,
		MinScore:    70,
		BuyStatuses: []string{"BUY", "STRONG_BUY"},
	}

	tests := []struct {
		name    string
		lynch   domain.ModelScore
		buffett domain.ModelScore
		want    domain.Verdict
	}{
		{
			name:    "both clear score and status",
			lynch:   domain.ModelScore{Score: 80, Status: "BUY"},
			buffett: domain.ModelScore{Score: 75, Status: "STRONG_BUY"},
			want:    domain.VerdictBuy,
		},
		{
			name:    "one model below score bar",
			lynch:   domain.ModelScore{Score: 80, Status: "BUY"},
			buffett: domain.ModelScore{Score: 60, Status: "BUY"},
			want:    domain.VerdictAvoid,
		},
		{
			name:    "one model wrong status",
			lynch:   domain.ModelScore{Score: 80, Status: "BUY"},
			buffett: domain.ModelScore{Score: 90, Status: "HOLD"},
			want:    domain.VerdictAvoid,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := Evaluate(tt.lynch, tt.buffett, cfg)
			require.NoError(t, err)
			assert.Equal(t, tt.want, result.Verdict)
			assert.NotEmpty(t, result.Reasoning)
		})
	}
}

func TestBothAgree_FailureNamesModel(t *testing.T) {
	cfg := strategies.ConsensusConfig{
		Mode:        strategies.ConsensusBothAgree,
		MinScore:    70,
		BuyStatuses: []string{"BUY"},
	}

	result, err := Evaluate(
		domain.ModelScore{Score: 80, Status: "BUY"},
		domain.ModelScore{Score: 50, Status: "BUY"},
		cfg,
	)
	require.NoError(t, err)
	assert.Equal(t, domain.VerdictAvoid, result.Verdict)
	assert.Contains(t, result.Reasoning, "buffett")
}

func TestWeightedConfidence(t *testing.T) {
	cfg := strategies.ConsensusConfig{
		Mode:          strategies.ConsensusWeightedConfidence,
		LynchWeight:   0.5,
		BuffettWeight: 0.5,
		Threshold:     60,
	}

	tests := []struct {
		name        string
		lynch       float64
		buffett     float64
		wantVerdict domain.Verdict
		wantScore   float64
	}{
		{"high blend is buy", 90, 80, domain.VerdictBuy, 85},
		{"mid blend is watch", 70, 60, domain.VerdictWatch, 65},
		{"low blend is avoid", 40, 50, domain.VerdictAvoid, 45},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := Evaluate(
				domain.ModelScore{Score: tt.lynch},
				domain.ModelScore{Score: tt.buffett},
				cfg,
			)
			require.NoError(t, err)
			assert.Equal(t, tt.wantVerdict, result.Verdict)
			assert.InDelta(t, tt.wantScore, result.Score, 0.001)
		})
	}
}

func TestWeightedConfidence_NormalizesWeights(t *testing.T) {
	// Weights 3 and 1 normalize to 0.75/0.25.
	result, err := Evaluate(
		domain.ModelScore{Score: 100},
		domain.ModelScore{Score: 60},
		strategies.ConsensusConfig{
			Mode:          strategies.ConsensusWeightedConfidence,
			LynchWeight:   3,
			BuffettWeight: 1,
			Threshold:     50,
		},
	)
	require.NoError(t, err)
	assert.InDelta(t, 90.0, result.Score, 0.001)
}

func TestVetoPower_VetoOverridesAverage(t *testing.T) {
	// Averaged score is 55, comfortably above threshold, but the buffett
	// model's 20 breaches the veto floor.
	result, err := Evaluate(
		domain.ModelScore{Score: 90, Status: "BUY"},
		domain.ModelScore{Score: 20, Status: "AVOID"},
		strategies.ConsensusConfig{
			Mode:          strategies.ConsensusVetoPower,
			VetoStatuses:  []string{"AVOID"},
			VetoThreshold: 30,
			Threshold:     50,
		},
	)
	require.NoError(t, err)
	assert.Equal(t, domain.VerdictVeto, result.Verdict)
	assert.Contains(t, result.Reasoning, "buffett")
}

func TestVetoPower_NoVeto(t *testing.T) {
	cfg := strategies.ConsensusConfig{
		Mode:          strategies.ConsensusVetoPower,
		VetoStatuses:  []string{"AVOID"},
		VetoThreshold: 30,
		Threshold:     70,
	}

	result, err := Evaluate(
		domain.ModelScore{Score: 85, Status: "BUY"},
		domain.ModelScore{Score: 75, Status: "HOLD"},
		cfg,
	)
	require.NoError(t, err)
	assert.Equal(t, domain.VerdictBuy, result.Verdict)

	result, err = Evaluate(
		domain.ModelScore{Score: 60, Status: "BUY"},
		domain.ModelScore{Score: 55, Status: "HOLD"},
		cfg,
	)
	require.NoError(t, err)
	assert.Equal(t, domain.VerdictWatch, result.Verdict)
}
