package metrics

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/finxai/xai/internal/models"
	"github.com/finxai/xai/internal/statistics"
	"gonum.org/v1/gonum/stat"
)

// Quality defaults.
const (
	DefaultTopKFraction     = 0.1
	DefaultNoiseScale       = 0.01
	DefaultRobustnessTrials = 5
	DefaultQualitySeed      = 42

	// share of attribution mass that defines the effective feature count
	effectiveMass = 0.8
)

// Baseline selects the replacement value for an ablated feature.
type Baseline string

const (
	BaselineMean Baseline = "mean"
	BaselineZero Baseline = "zero"
)

// QualityOptions tunes ComputeQuality.
type QualityOptions struct {
	TopKFraction     float64  `yaml:"top_k_fraction,omitempty" json:"top_k_fraction"`
	Baseline         Baseline `yaml:"baseline,omitempty" json:"baseline"`
	NoiseScale       float64  `yaml:"noise_scale,omitempty" json:"noise_scale"`
	RobustnessTrials int      `yaml:"robustness_trials,omitempty" json:"robustness_trials"`
	Seed             int64    `yaml:"seed,omitempty" json:"seed"`
}

// DefaultQualityOptions returns the default options.
func DefaultQualityOptions() QualityOptions {
	return QualityOptions{
		TopKFraction:     DefaultTopKFraction,
		Baseline:         BaselineMean,
		NoiseScale:       DefaultNoiseScale,
		RobustnessTrials: DefaultRobustnessTrials,
		Seed:             DefaultQualitySeed,
	}
}

// Validate reports option values that cannot be used.
func (o QualityOptions) Validate() error {
	var errs []error
	if o.TopKFraction <= 0 || o.TopKFraction > 1 {
		errs = append(errs, fmt.Errorf("top_k_fraction must be in (0, 1], got %g", o.TopKFraction))
	}
	if o.Baseline != BaselineMean && o.Baseline != BaselineZero {
		errs = append(errs, fmt.Errorf("baseline must be %q or %q, got %q", BaselineMean, BaselineZero, o.Baseline))
	}
	if o.NoiseScale < 0 {
		errs = append(errs, fmt.Errorf("noise_scale must not be negative, got %g", o.NoiseScale))
	}
	if o.RobustnessTrials < 1 {
		errs = append(errs, fmt.Errorf("robustness_trials must be at least 1, got %d", o.RobustnessTrials))
	}
	return errors.Join(errs...)
}

// TopK returns the number of top features ablated jointly for d features:
// ceil(fraction * d), at least 1 and at most d.
func (o QualityOptions) TopK(d int) int {
	if d == 0 {
		return 0
	}
	k := int(math.Ceil(o.TopKFraction * float64(d)))
	return max(1, min(k, d))
}

// Faithfulness relates attribution magnitude to the score change observed
// when features are replaced by their baseline.
type Faithfulness struct {
	// Score is the Pearson correlation between |attribution| and
	// |score change| over single-feature ablations.
	Score Ratio `json:"score"`
	// Deltas are the absolute single-feature score changes in feature order.
	Deltas []float64 `json:"deltas"`
	TopK   int       `json:"top_k"`
	// TopKDrop is score(x) minus the score with the top-k features ablated.
	TopKDrop float64 `json:"top_k_drop"`
	// Curve is the score after cumulatively ablating features in attribution
	// order; Curve[0] is the unperturbed score.
	Curve []float64 `json:"curve"`
}

// Robustness summarizes how far attributions move under small input noise.
// Lower distances are more robust.
type Robustness struct {
	MeanDistance     float64                       `json:"mean_distance"`
	MaxDistance      float64                       `json:"max_distance"`
	RelativeDistance Ratio                         `json:"relative_distance"`
	CI               statistics.ConfidenceInterval `json:"ci"`
	Trials           int                           `json:"trials"`
	NoiseScale       float64                       `json:"noise_scale"`
}

// Complexity describes how concentrated an attribution vector is.
type Complexity struct {
	Entropy           float64 `json:"entropy"`
	NormalizedEntropy Ratio   `json:"normalized_entropy"`
	Gini              Ratio   `json:"gini"`
	EffectiveFeatures int     `json:"effective_features"`
	Sparsity          Ratio   `json:"sparsity"`
}

// Quality is the set of explanation quality metrics for one instance.
type Quality struct {
	ModelID       string        `json:"model_id,omitempty"`
	Method        models.Method `json:"method,omitempty"`
	InstanceIndex int           `json:"instance_index"`
	Faithfulness  Faithfulness  `json:"faithfulness"`
	Robustness    Robustness    `json:"robustness"`
	Complexity    Complexity    `json:"complexity"`
}

// QualityInput is everything ComputeQuality needs about one explained
// instance. Slices are indexed by model feature.
type QualityInput struct {
	X           []float64
	Attribution []float64
	// Score is the explained model output.
	Score func(x []float64) float64
	// Explain recomputes the attribution of a perturbed instance.
	Explain func(x []float64) ([]float64, error)
	// Mean and Std are per-feature statistics of the reference data.
	Mean []float64
	Std  []float64
	// Categorical features are never perturbed by noise.
	Categorical []bool
}

// ComputeQuality scores an attribution. Degenerate statistics produce
// undefined values; only failures of Explain or ctx are returned as errors.
func ComputeQuality(ctx context.Context, in QualityInput, opts QualityOptions) (*Quality, error) {
	d := len(in.X)
	if len(in.Attribution) != d {
		return nil, fmt.Errorf("attribution has %d values for %d features", len(in.Attribution), d)
	}
	baseline := make([]float64, d)
	if opts.Baseline != BaselineZero && len(in.Mean) == d {
		copy(baseline, in.Mean)
	}

	rob, err := robustness(ctx, in, opts)
	if err != nil {
		return nil, err
	}
	return &Quality{
		Faithfulness: faithfulness(in, baseline, opts.TopK(d)),
		Robustness:   rob,
		Complexity:   ComputeComplexity(in.Attribution),
	}, nil
}

func faithfulness(in QualityInput, baseline []float64, k int) Faithfulness {
	d := len(in.X)
	f0 := in.Score(in.X)
	x := make([]float64, d)

	deltas := make([]float64, d)
	for j := 0; j < d; j++ {
		copy(x, in.X)
		x[j] = baseline[j]
		deltas[j] = math.Abs(f0 - in.Score(x))
	}

	out := Faithfulness{Deltas: deltas, TopK: k, Curve: []float64{f0}}
	if d >= 2 {
		out.Score = Value(stat.Correlation(Abs(in.Attribution), deltas, nil))
	}

	copy(x, in.X)
	for i, j := range rankByMagnitude(in.Attribution) {
		x[j] = baseline[j]
		s := in.Score(x)
		out.Curve = append(out.Curve, s)
		if i+1 == k {
			out.TopKDrop = f0 - s
		}
	}
	return out
}

// rankByMagnitude returns feature indices by descending |v|, ties in
// feature order.
func rankByMagnitude(v []float64) []int {
	idx := make([]int, len(v))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return math.Abs(v[idx[a]]) > math.Abs(v[idx[b]])
	})
	return idx
}

func robustness(ctx context.Context, in QualityInput, opts QualityOptions) (Robustness, error) {
	trials := max(opts.RobustnessTrials, 1)
	rng := rand.New(rand.NewSource(opts.Seed))
	distances := make([]float64, 0, trials)
	x := make([]float64, len(in.X))

	for t := 0; t < trials; t++ {
		if err := ctx.Err(); err != nil {
			return Robustness{}, err
		}
		copy(x, in.X)
		for j := range x {
			if j < len(in.Categorical) && in.Categorical[j] {
				continue
			}
			if j < len(in.Std) && in.Std[j] > 0 {
				x[j] += rng.NormFloat64() * opts.NoiseScale * in.Std[j]
			}
		}
		a, err := in.Explain(x)
		if err != nil {
			return Robustness{}, fmt.Errorf("explaining perturbed instance: %w", err)
		}
		distances = append(distances, Distance(in.Attribution, a))
	}

	mean := Mean(distances)
	maxDist := 0.0
	for _, v := range distances {
		maxDist = math.Max(maxDist, v)
	}
	return Robustness{
		MeanDistance:     mean,
		MaxDistance:      maxDist,
		RelativeDistance: SafeRatio(mean, Norm(in.Attribution)),
		CI:               statistics.BootstrapCIWithSeed(distances, 0.95, opts.Seed),
		Trials:           trials,
		NoiseScale:       opts.NoiseScale,
	}, nil
}

// ComputeComplexity measures the concentration of an attribution vector.
// An all-zero vector has zero entropy.
func ComputeComplexity(attribution []float64) Complexity {
	d := len(attribution)
	abs := Abs(attribution)
	total := 0.0
	for _, v := range abs {
		total += v
	}
	if total == 0 || math.IsNaN(total) || math.IsInf(total, 0) {
		return Complexity{
			NormalizedEntropy: normalizedEntropy(0, d),
			Sparsity:          SafeRatio(float64(d), float64(d)),
		}
	}

	p := make([]float64, d)
	for i, v := range abs {
		p[i] = v / total
	}
	entropy := stat.Entropy(p) + 0 // avoid -0 for a single non-zero weight

	sorted := append([]float64(nil), abs...)
	sort.Float64s(sorted)
	weighted := 0.0
	for i, v := range sorted {
		weighted += float64(i+1) * v
	}
	gini := SafeRatio(2*weighted, float64(d)*total)
	if gini.Defined {
		gini.Value -= float64(d+1) / float64(d)
	}

	effective, cum := 0, 0.0
	for i := d - 1; i >= 0; i-- {
		cum += sorted[i]
		effective++
		if cum >= effectiveMass*total*(1-1e-12) {
			break
		}
	}

	return Complexity{
		Entropy:           entropy,
		NormalizedEntropy: normalizedEntropy(entropy, d),
		Gini:              gini,
		EffectiveFeatures: effective,
		Sparsity:          SafeRatio(float64(d-effective), float64(d)),
	}
}

func normalizedEntropy(h float64, d int) Ratio {
	if d < 2 {
		return Undefined
	}
	return SafeRatio(h, math.Log(float64(d)))
}
