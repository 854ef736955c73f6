package metrics

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// linearInput explains score(x) = w·x exactly: a_j = w_j * (x_j - mean_j).
func linearInput(w, x, mean, std []float64) QualityInput {
	score := func(v []float64) float64 {
		s := 0.0
		for j := range v {
			s += w[j] * v[j]
		}
		return s
	}
	explain := func(v []float64) ([]float64, error) {
		a := make([]float64, len(v))
		for j := range v {
			a[j] = w[j] * (v[j] - mean[j])
		}
		return a, nil
	}
	attr, _ := explain(x)
	return QualityInput{X: x, Attribution: attr, Score: score, Explain: explain, Mean: mean, Std: std}
}

func TestComputeQualityLinearModel(t *testing.T) {
	in := linearInput([]float64{1, -2, 0.5}, []float64{3, 1, 2}, []float64{0, 0, 0}, []float64{1, 1, 1})
	q, err := ComputeQuality(context.Background(), in, DefaultQualityOptions())
	require.NoError(t, err)

	f := q.Faithfulness
	require.True(t, f.Score.Defined)
	assert.InDelta(t, 1.0, f.Score.Value, 1e-12)
	assert.InDeltaSlice(t, []float64{3, 2, 1}, f.Deltas, 1e-12)
	assert.Equal(t, 1, f.TopK)
	assert.InDelta(t, 3.0, f.TopKDrop, 1e-12)
	assert.InDeltaSlice(t, []float64{2, -1, 1, 0}, f.Curve, 1e-12)

	assert.Equal(t, DefaultRobustnessTrials, q.Robustness.Trials)
	assert.Greater(t, q.Robustness.MeanDistance, 0.0)
	assert.Less(t, q.Robustness.MeanDistance, 0.1)
	assert.GreaterOrEqual(t, q.Robustness.MaxDistance, q.Robustness.MeanDistance)
	assert.True(t, q.Robustness.RelativeDistance.Defined)

	assert.Greater(t, q.Complexity.Entropy, 0.0)
}

func TestComputeQualityBaseline(t *testing.T) {
	w := []float64{1, -2, 0.5}
	x := []float64{3, 1, 2}
	mean := []float64{1, 1, 1}

	opts := DefaultQualityOptions()
	q, err := ComputeQuality(context.Background(), linearInput(w, x, mean, nil), opts)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{2, 0, 0.5}, q.Faithfulness.Deltas, 1e-12)

	opts.Baseline = BaselineZero
	q, err = ComputeQuality(context.Background(), linearInput(w, x, mean, nil), opts)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{3, 2, 1}, q.Faithfulness.Deltas, 1e-12)
}

func TestComputeQualityIsDeterministic(t *testing.T) {
	in := linearInput([]float64{1, -2, 0.5}, []float64{3, 1, 2}, []float64{0, 0, 0}, []float64{2, 1, 0.5})
	a, err := ComputeQuality(context.Background(), in, DefaultQualityOptions())
	require.NoError(t, err)
	b, err := ComputeQuality(context.Background(), in, DefaultQualityOptions())
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestComputeQualityNoNoise(t *testing.T) {
	in := linearInput([]float64{1, 1}, []float64{1, 2}, []float64{0, 0}, []float64{1, 1})
	in.Categorical = []bool{true, false}
	opts := DefaultQualityOptions()
	opts.NoiseScale = 0
	q, err := ComputeQuality(context.Background(), in, opts)
	require.NoError(t, err)
	assert.Zero(t, q.Robustness.MeanDistance)
	assert.Zero(t, q.Robustness.MaxDistance)
	assert.Equal(t, Value(0), q.Robustness.RelativeDistance)
}

func TestComputeQualityDegenerate(t *testing.T) {
	in := linearInput([]float64{0, 0, 0}, []float64{1, 2, 3}, []float64{0, 0, 0}, []float64{1, 1, 1})
	q, err := ComputeQuality(context.Background(), in, DefaultQualityOptions())
	require.NoError(t, err)
	assert.False(t, q.Faithfulness.Score.Defined, "zero variance correlation is undefined")
	assert.False(t, q.Robustness.RelativeDistance.Defined)
	assert.Equal(t, 0.0, q.Complexity.Entropy)
}

func TestComputeQualityErrors(t *testing.T) {
	in := linearInput([]float64{1, 2}, []float64{1, 2}, []float64{0, 0}, []float64{1, 1})

	bad := in
	bad.Attribution = []float64{1}
	_, err := ComputeQuality(context.Background(), bad, DefaultQualityOptions())
	assert.Error(t, err)

	failing := in
	boom := errors.New("boom")
	failing.Explain = func([]float64) ([]float64, error) { return nil, boom }
	_, err = ComputeQuality(context.Background(), failing, DefaultQualityOptions())
	assert.ErrorIs(t, err, boom)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = ComputeQuality(ctx, in, DefaultQualityOptions())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestComputeComplexity(t *testing.T) {
	t.Run("all zero", func(t *testing.T) {
		c := ComputeComplexity([]float64{0, 0, 0})
		assert.Equal(t, 0.0, c.Entropy)
		assert.Equal(t, 0, c.EffectiveFeatures)
		assert.False(t, c.Gini.Defined)
	})

	t.Run("two distinct non-zero", func(t *testing.T) {
		c := ComputeComplexity([]float64{0, 0.3, -0.1})
		assert.Greater(t, c.Entropy, 0.0)
	})

	t.Run("uniform", func(t *testing.T) {
		c := ComputeComplexity([]float64{1, -1, 1, -1})
		assert.InDelta(t, math.Log(4), c.Entropy, 1e-12)
		assert.InDelta(t, 1.0, c.NormalizedEntropy.Value, 1e-12)
		assert.InDelta(t, 0.0, c.Gini.Value, 1e-12)
		assert.Equal(t, 4, c.EffectiveFeatures)
		assert.Equal(t, Value(0), c.Sparsity)
	})

	t.Run("single feature carries all mass", func(t *testing.T) {
		c := ComputeComplexity([]float64{0, 0, 5})
		assert.Equal(t, 0.0, c.Entropy)
		assert.InDelta(t, 2.0/3, c.Gini.Value, 1e-12)
		assert.Equal(t, 1, c.EffectiveFeatures)
		assert.InDelta(t, 2.0/3, c.Sparsity.Value, 1e-12)
	})

	t.Run("effective features ignore scale", func(t *testing.T) {
		for _, scale := range []float64{1, 1e-300, 1e300} {
			assert.Equal(t, 2, ComputeComplexity([]float64{1 * scale, 2 * scale}).EffectiveFeatures, "scale %g", scale)
			assert.Equal(t, 1, ComputeComplexity([]float64{0.8 * scale, 0.2 * scale}).EffectiveFeatures, "scale %g", scale)
		}
	})

	t.Run("empty", func(t *testing.T) {
		c := ComputeComplexity(nil)
		assert.Equal(t, 0.0, c.Entropy)
		assert.False(t, c.NormalizedEntropy.Defined)
		assert.False(t, c.Sparsity.Defined)
	})
}

func TestQualityOptions(t *testing.T) {
	opts := DefaultQualityOptions()
	require.NoError(t, opts.Validate())

	for _, tt := range []struct {
		d, want int
	}{
		{0, 0}, {1, 1}, {3, 1}, {10, 1}, {11, 2}, {25, 3},
	} {
		assert.Equal(t, tt.want, opts.TopK(tt.d), "d=%d", tt.d)
	}

	bad := QualityOptions{TopKFraction: 1.5, Baseline: "median", NoiseScale: -1}
	err := bad.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "top_k_fraction")
	assert.Contains(t, err.Error(), "baseline")
	assert.Contains(t, err.Error(), "noise_scale")
	assert.Contains(t, err.Error(), "robustness_trials")
}
