package attribution

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/finxai/xai/internal/models"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"
)

// Defaults for global attribution.
const (
	DefaultSampleSize = 100
	DefaultSeed       = 42
	DefaultWorkers    = 4
)

// Engine computes global and local attributions from cached explainer state.
type Engine struct {
	states  StateProvider
	seed    int64
	sample  int
	workers int
	logger  *slog.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithSeed sets the seed of the global sample.
func WithSeed(seed int64) EngineOption {
	return func(e *Engine) { e.seed = seed }
}

// WithDefaultSampleSize sets the sample size used when a request gives none.
func WithDefaultSampleSize(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.sample = n
		}
	}
}

// WithWorkers bounds the number of instances explained in parallel by a
// global computation.
func WithWorkers(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewEngine creates an Engine backed by states.
func NewEngine(states StateProvider, opts ...EngineOption) *Engine {
	e := &Engine{
		states:  states,
		seed:    DefaultSeed,
		sample:  DefaultSampleSize,
		workers: DefaultWorkers,
		logger:  slog.Default(),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Seed returns the seed of the global sample.
func (e *Engine) Seed() int64 { return e.seed }

// SampleSize returns the global sample size used when a request gives none.
func (e *Engine) SampleSize() int { return e.sample }

// State returns the cached explainer state for (modelID, method).
func (e *Engine) State(ctx context.Context, modelID string, method models.Method) (*State, error) {
	return e.states.GetOrCreate(ctx, modelID, method)
}

// ComputeGlobal explains a deterministic sample of up to sampleSize held-out
// rows and reduces them to mean absolute importance per feature, ranked
// descending. sampleSize <= 0 uses the engine default.
func (e *Engine) ComputeGlobal(ctx context.Context, modelID string, method models.Method, sampleSize int) (*models.GlobalAttribution, error) {
	st, err := e.states.GetOrCreate(ctx, modelID, method)
	if err != nil {
		return nil, err
	}
	if sampleSize <= 0 {
		sampleSize = e.sample
	}
	idx := st.Split.Sample(sampleSize, e.seed)
	e.logger.Debug("computing global attribution", "model_id", modelID, "method", method, "sample_size", len(idx))

	results := make([]*Explanation, len(idx))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for k, row := range idx {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			exp, err := explainSafely(st.Explainer, st.Split.Row(row))
			if err != nil {
				return fmt.Errorf("instance %d: %w", row, err)
			}
			results[k] = exp
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return aggregate(st, method, results), nil
}

func aggregate(st *State, method models.Method, results []*Explanation) *models.GlobalAttribution {
	names := st.Model.FeatureNames
	d := len(names)
	n := len(results)
	features := make([]models.FeatureImportance, d)
	abs := make([]float64, n)
	base := 0.0
	for _, r := range results {
		base += r.BaseValue
	}
	if n > 0 {
		base /= float64(n)
	}

	for j := 0; j < d; j++ {
		fi := models.FeatureImportance{Feature: names[j]}
		for i, r := range results {
			v := r.Weights[j]
			abs[i] = math.Abs(v)
			switch {
			case v > 0:
				fi.PositiveCount++
			case v < 0:
				fi.NegativeCount++
			}
		}
		if n > 0 {
			fi.Importance, fi.Std = stat.PopMeanStdDev(abs, nil)
		}
		features[j] = fi
	}

	sort.SliceStable(features, func(a, b int) bool {
		return features[a].Importance > features[b].Importance
	})
	for i := range features {
		features[i].Rank = i + 1
	}

	return &models.GlobalAttribution{
		ModelID:      st.Model.ID,
		Method:       method,
		Features:     features,
		SampleSize:   n,
		FeatureCount: d,
		BaseValue:    base,
	}
}

// ComputeLocal explains one held-out row.
func (e *Engine) ComputeLocal(ctx context.Context, modelID string, index int, method models.Method) (*models.LocalAttribution, error) {
	st, err := e.states.GetOrCreate(ctx, modelID, method)
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= st.Split.Len() {
		return nil, models.IndexError(modelID, index, st.Split.Len())
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	x := st.Split.Row(index)
	local, err := ExplainInstance(st, x)
	if err != nil {
		return nil, err
	}
	local.InstanceIndex = index
	if label, ok := st.Split.Label(index); ok {
		local.TrueLabel = &label
	}
	return local, nil
}

// ExplainInstance explains an arbitrary feature vector with a cached state.
func ExplainInstance(st *State, x []float64) (*models.LocalAttribution, error) {
	exp, err := explainSafely(st.Explainer, x)
	if err != nil {
		return nil, err
	}
	h := st.Model
	contributions := make([]models.Contribution, len(x))
	for j, name := range h.FeatureNames {
		contributions[j] = models.Contribution{
			Feature:      name,
			Value:        x[j],
			Contribution: exp.Contributions[j],
		}
	}
	probs := h.PredictProba(x)
	class := h.PredictClass(x)
	return &models.LocalAttribution{
		ModelID:       h.ID,
		Method:        st.Method(),
		Contributions: contributions,
		BaseValue:     exp.BaseValue,
		Score:         h.Score(x),
		Prediction: models.Prediction{
			Class:         class,
			Label:         h.ClassName(class),
			Probability:   probs[class],
			Probabilities: probs,
		},
		SurrogateFit: exp.Fit,
	}, nil
}

// explainSafely converts a panic inside an explainer into a computation
// failure.
func explainSafely(ex Explainer, x []float64) (exp *Explanation, err error) {
	defer func() {
		if r := recover(); r != nil {
			exp = nil
			err = fmt.Errorf("%w: %v", models.ErrComputationFailure, r)
		}
	}()
	return ex.Explain(x)
}
