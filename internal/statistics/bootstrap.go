// Package statistics provides resampling estimates for explanation metrics.
package statistics

import (
	"math"
	"math/rand"
	"sort"
)

// ConfidenceInterval holds the result of a bootstrap confidence interval computation.
type ConfidenceInterval struct {
	Lower           float64 `json:"lower"`
	Upper           float64 `json:"upper"`
	Mean            float64 `json:"mean"`
	ConfidenceLevel float64 `json:"confidence_level"`
	NumBootstraps   int     `json:"num_bootstraps"`
}

// DefaultBootstrapIterations is the number of bootstrap resamples.
const DefaultBootstrapIterations = 10000

// Statistic reduces a sample to one value.
type Statistic func(values []float64) float64

// BootstrapCIWithSeed computes a percentile bootstrap interval for the mean
// of values. confidenceLevel should be in (0, 1), e.g. 0.95. A negative seed
// uses a non-deterministic source. The interval is degenerate when fewer
// than 2 values exist.
func BootstrapCIWithSeed(values []float64, confidenceLevel float64, seed int64) ConfidenceInterval {
	return Bootstrap(values, mean, confidenceLevel, seed, DefaultBootstrapIterations)
}

// Bootstrap computes a percentile bootstrap interval for any statistic.
// Mean holds the statistic of the full sample.
func Bootstrap(values []float64, statistic Statistic, confidenceLevel float64, seed int64, iters int) ConfidenceInterval {
	n := len(values)
	point := statistic(values)
	if n < 2 || iters < 1 {
		return ConfidenceInterval{
			Lower:           point,
			Upper:           point,
			Mean:            point,
			ConfidenceLevel: confidenceLevel,
		}
	}

	var rng *rand.Rand
	if seed >= 0 {
		rng = rand.New(rand.NewSource(seed))
	} else {
		rng = rand.New(rand.NewSource(rand.Int63()))
	}

	// Resample with replacement
	boot := make([]float64, iters)
	sample := make([]float64, n)
	for i := 0; i < iters; i++ {
		for j := 0; j < n; j++ {
			sample[j] = values[rng.Intn(n)]
		}
		boot[i] = statistic(sample)
	}

	sort.Float64s(boot)

	// Percentile method
	alpha := 1.0 - confidenceLevel
	loIdx := int(math.Floor(alpha / 2.0 * float64(iters)))
	hiIdx := int(math.Floor((1.0 - alpha/2.0) * float64(iters)))
	if hiIdx >= iters {
		hiIdx = iters - 1
	}

	return ConfidenceInterval{
		Lower:           boot[loIdx],
		Upper:           boot[hiIdx],
		Mean:            point,
		ConfidenceLevel: confidenceLevel,
		NumBootstraps:   iters,
	}
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0.0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
