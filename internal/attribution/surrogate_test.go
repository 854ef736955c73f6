package attribution

import (
	"testing"

	"github.com/finxai/xai/internal/models"
	"github.com/finxai/xai/internal/models/modeltest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func allRows() [][]float64 {
	s := modeltest.Split()
	return s.Rows(s.Sample(0, 1))
}

func TestSurrogateApproximatesLogistic(t *testing.T) {
	h := modeltest.Logistic()
	ex, err := NewSurrogateExplainer(h, allRows(), 42, DefaultOptions().Surrogate)
	require.NoError(t, err)

	split := modeltest.Split()
	for _, i := range []int{0, 1, 5, 8} {
		x := split.Row(i)
		exp, err := ex.Explain(x)
		require.NoError(t, err)

		sum := exp.BaseValue
		for _, v := range exp.Contributions {
			sum += v
		}
		assert.InDelta(t, h.Score(x), sum, 0.05, "row %d", i)

		require.NotNil(t, exp.Fit)
		assert.Greater(t, *exp.Fit, 0.8)

		assert.Greater(t, exp.Weights[0], 0.0, "age raises default risk")
		assert.Greater(t, exp.Weights[1], 0.0, "income coefficient is positive")
		assert.Less(t, exp.Weights[2], 0.0, "debt_ratio coefficient is negative")
	}
}

func TestSurrogateIsDeterministic(t *testing.T) {
	ex, err := NewSurrogateExplainer(modeltest.Forest(), allRows(), 7, SurrogateOptions{NumSamples: 200, Alpha: 1})
	require.NoError(t, err)

	x := modeltest.Split().Row(3)
	a, err := ex.Explain(x)
	require.NoError(t, err)
	b, err := ex.Explain(x)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestSurrogateSkipsConstantFeatures(t *testing.T) {
	rows := allRows()
	for _, r := range rows {
		r[1] = 50000
	}
	ex, err := NewSurrogateExplainer(modeltest.Logistic(), rows, 1, SurrogateOptions{NumSamples: 200, Alpha: 1})
	require.NoError(t, err)

	exp, err := ex.Explain(rows[0])
	require.NoError(t, err)
	assert.Equal(t, 0.0, exp.Contributions[1])
	assert.Equal(t, 0.0, exp.Weights[1])
}

func TestSurrogateCategoricalFeature(t *testing.T) {
	h := &models.Handle{
		ID:           "cat",
		Family:       models.FamilyLogisticRegression,
		FeatureNames: []string{"region", "income"},
		FeatureKinds: []models.FeatureKind{models.FeatureCategorical, models.FeatureNumeric},
		Coefficients: []float64{2.0, 0.00001},
		Intercept:    -1,
	}
	rows := [][]float64{{0, 30000}, {1, 45000}, {2, 60000}, {0, 52000}, {1, 38000}, {2, 71000}}
	ex, err := NewSurrogateExplainer(h, rows, 3, SurrogateOptions{NumSamples: 300, Alpha: 0.1})
	require.NoError(t, err)

	exp, err := ex.Explain([]float64{2, 50000})
	require.NoError(t, err)
	// Matching the instance's high region code raises the score.
	assert.Greater(t, exp.Contributions[0], 0.0)
	assert.Equal(t, exp.Weights[0], exp.Contributions[0], "indicator is 1 at the instance")
}

func TestSurrogateNeedsBackground(t *testing.T) {
	_, err := NewSurrogateExplainer(modeltest.Logistic(), nil, 1, DefaultOptions().Surrogate)
	require.Error(t, err)
}

func TestNewExplainerDispatch(t *testing.T) {
	cfg := BuildConfig{BackgroundSize: 100, Seed: 42, Options: DefaultOptions()}

	ex, err := NewExplainer(models.MethodShapley, modeltest.Forest(), allRows(), cfg)
	require.NoError(t, err)
	assert.Equal(t, models.MethodShapley, ex.Method())

	ex, err = NewExplainer(models.MethodSurrogate, modeltest.Forest(), allRows(), cfg)
	require.NoError(t, err)
	assert.Equal(t, models.MethodSurrogate, ex.Method())

	_, err = NewExplainer(models.MethodShapley, modeltest.Logistic(), allRows(), cfg)
	var incompatible *models.IncompatibleMethodError
	require.ErrorAs(t, err, &incompatible)
	assert.Equal(t, []models.Method{models.MethodSurrogate}, incompatible.Supported)
}
