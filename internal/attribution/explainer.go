// Package attribution computes feature attributions for trained models.
//
// Two methods share one contract: the exact path-dependent TreeSHAP
// algorithm for tree ensembles, and a locally weighted ridge surrogate that
// works for any model family.
package attribution

import (
	"context"
	"fmt"
	"math"

	"github.com/finxai/xai/internal/artifact"
	"github.com/finxai/xai/internal/dataset"
	"github.com/finxai/xai/internal/models"
)

// Explanation is the raw output of an Explainer for one instance.
type Explanation struct {
	// Contributions are signed, in model feature order.
	Contributions []float64
	// Weights are the per-feature importances aggregated by global
	// attribution. For TreeSHAP they equal Contributions; for the surrogate
	// they are the local linear coefficients.
	Weights   []float64
	BaseValue float64
	// Fit is the weighted R² of a surrogate, nil when undefined or not
	// applicable.
	Fit *float64
}

// Explainer attributes one model's output to its input features. Explainers
// are immutable after construction and safe for concurrent use.
type Explainer interface {
	Method() models.Method
	Explain(x []float64) (*Explanation, error)
}

// State is the cached per (model, method) explainer state.
type State struct {
	Model     *models.Handle
	Split     *dataset.Split
	Explainer Explainer
	// Mean and Std are per-feature statistics of the held-out split.
	Mean []float64
	Std  []float64
}

// Method returns the state's attribution method.
func (s *State) Method() models.Method { return s.Explainer.Method() }

// BuildConfig controls explainer construction.
type BuildConfig struct {
	BackgroundSize int
	Seed           int64
	Options        Options
}

// NewExplainer constructs the explainer for method over model h. background
// rows are only used by methods that need a reference distribution.
func NewExplainer(method models.Method, h *models.Handle, background [][]float64, cfg BuildConfig) (Explainer, error) {
	if !h.Family.Supports(method) {
		return nil, models.NewIncompatibleMethodError(h, method)
	}
	switch method {
	case models.MethodShapley:
		return NewTreeExplainer(h, cfg.Options.Shapley)
	case models.MethodSurrogate:
		return NewSurrogateExplainer(h, background, cfg.Seed, cfg.Options.Surrogate)
	}
	return nil, fmt.Errorf("%w: %q", models.ErrUnknownMethod, method)
}

// NewState fetches the model and its held-out split and builds the explainer
// for method.
func NewState(ctx context.Context, store artifact.Store, modelID string, method models.Method, cfg BuildConfig) (*State, error) {
	h, split, err := artifact.Load(ctx, store, modelID)
	if err != nil {
		return nil, err
	}
	if !h.Family.Supports(method) {
		return nil, models.NewIncompatibleMethodError(h, method)
	}
	if split.Len() == 0 {
		return nil, fmt.Errorf("%w: held-out split for model %s is empty", models.ErrArtifactNotFound, modelID)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	background := split.Rows(split.Sample(cfg.BackgroundSize, cfg.Seed))
	exp, err := NewExplainer(method, h, background, cfg)
	if err != nil {
		return nil, err
	}
	mean, std := split.ColumnStats()
	return &State{Model: h, Split: split, Explainer: exp, Mean: mean, Std: std}, nil
}

// StateProvider returns cached explainer state, building it on first use.
type StateProvider interface {
	GetOrCreate(ctx context.Context, modelID string, method models.Method) (*State, error)
}

func finite(v []float64) bool {
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}
