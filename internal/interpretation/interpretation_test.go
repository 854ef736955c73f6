package interpretation

import (
	"strings"
	"testing"

	"github.com/finxai/xai/internal/models"
	"github.com/stretchr/testify/require"
)

func local(class int, prob float64, cs ...models.Contribution) *models.LocalAttribution {
	label := "good"
	if class == 1 {
		label = "bad"
	}
	return &models.LocalAttribution{
		ModelID:       "m1",
		Method:        models.MethodShapley,
		InstanceIndex: 3,
		Contributions: cs,
		Prediction:    models.Prediction{Class: class, Label: label, Probability: prob},
	}
}

func c(feature string, value, contribution float64) models.Contribution {
	return models.Contribution{Feature: feature, Value: value, Contribution: contribution}
}

func TestGrade(t *testing.T) {
	opts := DefaultOptions()
	tests := []struct {
		contribution float64
		want         Strength
	}{
		{0.31, StrengthStrong},
		{-0.31, StrengthStrong},
		{0.3, StrengthModerate},
		{-0.3, StrengthModerate},
		{0.16, StrengthModerate},
		{0.15, StrengthSlight},
		{-0.15, StrengthSlight},
		{0.01, StrengthSlight},
		{0, StrengthSlight},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, opts.Grade(tt.contribution), "contribution %g", tt.contribution)
	}
}

func TestGrade_CustomCutoffs(t *testing.T) {
	opts := Options{TopFeatures: 3, StrongCutoff: 2, ModerateCutoff: 1}
	require.Equal(t, StrengthStrong, opts.Grade(2.5))
	require.Equal(t, StrengthModerate, opts.Grade(-1.5))
	require.Equal(t, StrengthSlight, opts.Grade(0.9))
}

func TestInterpret_Summary(t *testing.T) {
	tests := []struct {
		name     string
		cs       []models.Contribution
		balance  Balance
		up, down int
		summary  string
	}{
		{
			name:    "risk increasing outweighs",
			cs:      []models.Contribution{c("debt_ratio", 0.6, 0.4), c("age", 23, 0.2), c("income", 21000, -0.1)},
			balance: BalanceRiskIncreasing,
			up:      2,
			down:    1,
			summary: "The decision is primarily driven by 2 risk-increasing factors, which outweigh the 1 protective factors.",
		},
		{
			name:    "protective outweighs",
			cs:      []models.Contribution{c("income", 92000, -0.5), c("age", 45, -0.2), c("debt_ratio", 0.3, 0.05)},
			balance: BalanceProtective,
			up:      1,
			down:    2,
			summary: "The decision is primarily driven by 2 protective factors, which outweigh the 1 risk-increasing factors.",
		},
		{
			name:    "balanced",
			cs:      []models.Contribution{c("income", 50000, -0.2), c("debt_ratio", 0.5, 0.2)},
			balance: BalanceEven,
			up:      1,
			down:    1,
			summary: "The decision reflects a balance between risk-increasing and protective factors.",
		},
		{
			name:    "no contributions",
			balance: BalanceEven,
			summary: "The decision reflects a balance between risk-increasing and protective factors.",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := Interpret(local(1, 0.8, tt.cs...), DefaultOptions())
			require.Equal(t, tt.balance, in.Balance)
			require.Equal(t, tt.up, in.RiskIncreasing)
			require.Equal(t, tt.down, in.Protective)
			require.Equal(t, tt.summary, in.Summary)
			require.True(t, strings.HasSuffix(in.Text, tt.summary))
			require.Len(t, in.Factors, len(tt.cs))
		})
	}
}

func TestInterpret_TopFeatures(t *testing.T) {
	cs := []models.Contribution{
		c("a", 1, 0.05),
		c("b", 2, -0.4),
		c("c", 3, 0.2),
		c("d", 4, -0.2),
		c("e", 5, 0.01),
		c("f", 6, 0.3),
		c("g", 7, 0.02),
	}

	in := Interpret(local(1, 0.9, cs...), DefaultOptions())
	require.Equal(t, []string{"b", "f", "c", "d", "a"}, in.TopFeatures())
	for i, f := range in.Factors {
		require.Equal(t, i+1, f.Rank)
	}

	in = Interpret(local(1, 0.9, cs...), Options{TopFeatures: 2})
	require.Equal(t, []string{"b", "f"}, in.TopFeatures())
	require.Equal(t, StrengthStrong, in.Factors[0].Strength)
	require.Equal(t, StrengthModerate, in.Factors[1].Strength)
}

func TestInterpret_Factors(t *testing.T) {
	in := Interpret(local(0, 0.75,
		c("income", 92000, -0.35),
		c("debt_ratio", 0.2, 0.1),
		c("age", 45, 0),
	), DefaultOptions())

	require.Equal(t, "The model predicts **LOW RISK** (good) with 75.0% confidence.", in.Headline)
	require.Equal(t, Mode, in.Mode)
	require.InDelta(t, 0.75, in.Confidence, 1e-12)
	require.Equal(t, "m1", in.ModelID)
	require.Equal(t, 3, in.InstanceIndex)

	require.Equal(t, DirectionDecreases, in.Factors[0].Direction)
	require.Equal(t, StrengthStrong, in.Factors[0].Strength)
	require.Equal(t, "1. **income** (value: 92000): This strongly decreases the risk. The current value makes the case appear safer.", in.Factors[0].Text)

	require.Equal(t, DirectionIncreases, in.Factors[1].Direction)
	require.Equal(t, "2. **debt_ratio** (value: 0.2): This slightly increases the risk. The current value makes the case appear riskier.", in.Factors[1].Text)

	// A zero contribution is neither side.
	require.Equal(t, DirectionNeutral, in.Factors[2].Direction)
	require.Equal(t, 1, in.RiskIncreasing)
	require.Equal(t, 1, in.Protective)
	require.Equal(t, BalanceEven, in.Balance)

	require.Contains(t, in.Text, "**Key Factors:**")
	require.Contains(t, in.Text, "**Summary:**")
}

func TestInterpret_HighRisk(t *testing.T) {
	in := Interpret(local(1, 0.825, c("debt_ratio", 0.6, 0.5)), Options{})
	require.Equal(t, "The model predicts **HIGH RISK** (bad) with 82.5% confidence.", in.Headline)
	require.True(t, strings.HasPrefix(in.Text, in.Headline))
}

func TestOptionsValidate(t *testing.T) {
	require.NoError(t, DefaultOptions().Validate())
	require.NoError(t, Options{TopFeatures: 1, StrongCutoff: 0.2, ModerateCutoff: 0.2}.Validate())

	err := Options{TopFeatures: 0, StrongCutoff: 0.1, ModerateCutoff: 0.2}.Validate()
	require.ErrorContains(t, err, "top_features")
	require.ErrorContains(t, err, "strong_cutoff")

	require.ErrorContains(t, Options{TopFeatures: 5, StrongCutoff: 0.3, ModerateCutoff: -1}.Validate(), "moderate_cutoff")
}
