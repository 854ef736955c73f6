package attribution

import (
	"fmt"
	"math"

	"github.com/finxai/xai/internal/models"
)

// TreeExplainer computes exact Shapley values for tree ensembles using the
// path-dependent TreeSHAP algorithm. Node covers stand in for the background
// distribution, so no reference sample is needed.
type TreeExplainer struct {
	model *models.Handle
	opts  ShapleyOptions
	base  float64
	scale float64
}

// NewTreeExplainer precomputes the expected model output.
func NewTreeExplainer(h *models.Handle, opts ShapleyOptions) (*TreeExplainer, error) {
	if !h.Family.IsTreeEnsemble() {
		return nil, models.NewIncompatibleMethodError(h, models.MethodShapley)
	}
	if len(h.Trees) == 0 {
		return nil, fmt.Errorf("model %s has no trees", h.ID)
	}
	e := &TreeExplainer{model: h, opts: opts, scale: 1}
	sum := 0.0
	for i := range h.Trees {
		sum += h.Trees[i].ExpectedValue()
	}
	switch h.Family {
	case models.FamilyRandomForest:
		e.scale = 1 / float64(len(h.Trees))
		e.base = sum * e.scale
	case models.FamilyGradientBoosting:
		e.base = h.BaseScore + sum
	}
	return e, nil
}

func (e *TreeExplainer) Method() models.Method { return models.MethodShapley }

// BaseValue is the expected model score over the training distribution.
func (e *TreeExplainer) BaseValue() float64 { return e.base }

// Explain returns the Shapley values of x. Contributions plus the base value
// reconstruct the model score.
func (e *TreeExplainer) Explain(x []float64) (*Explanation, error) {
	if len(x) != e.model.NumFeatures() {
		return nil, fmt.Errorf("instance has %d features, model expects %d", len(x), e.model.NumFeatures())
	}
	phi := make([]float64, len(x))
	for i := range e.model.Trees {
		t := &e.model.Trees[i]
		e.recurse(t, x, phi, 0, nil, 1, 1, -1)
	}
	if !finite(phi) {
		return nil, fmt.Errorf("%w: non-finite shapley value for model %s", models.ErrComputationFailure, e.model.ID)
	}

	if e.opts.CheckAdditivity {
		sum := e.base
		for _, v := range phi {
			sum += v
		}
		if score := e.model.Score(x); math.Abs(sum-score) > e.opts.Tolerance {
			return nil, fmt.Errorf("%w: shapley values sum to %g, model score is %g", models.ErrComputationFailure, sum, score)
		}
	}
	return &Explanation{Contributions: phi, Weights: phi, BaseValue: e.base}, nil
}

type pathElem struct {
	feature int
	zero    float64
	one     float64
	weight  float64
}

func (e *TreeExplainer) recurse(t *models.Tree, x, phi []float64, node int, parent []pathElem, zero, one float64, feature int) {
	path := make([]pathElem, len(parent)+1)
	copy(path, parent)
	extendPath(path, zero, one, feature)
	depth := len(path) - 1

	n := &t.Nodes[node]
	if n.IsLeaf() {
		for i := 1; i <= depth; i++ {
			w := unwoundPathSum(path, i)
			el := path[i]
			phi[el.feature] += w * (el.one - el.zero) * n.Value * e.scale
		}
		return
	}

	hot, cold := n.Right, n.Left
	if x[n.Feature] <= n.Threshold {
		hot, cold = n.Left, n.Right
	}
	hotZero := t.Nodes[hot].Cover / n.Cover
	coldZero := t.Nodes[cold].Cover / n.Cover

	// A feature seen earlier on the path is undone and re-split here.
	inZero, inOne := 1.0, 1.0
	for k := 1; k <= depth; k++ {
		if path[k].feature == n.Feature {
			inZero, inOne = path[k].zero, path[k].one
			unwindPath(path, k)
			path = path[:depth]
			break
		}
	}

	e.recurse(t, x, phi, hot, path, hotZero*inZero, inOne, n.Feature)
	e.recurse(t, x, phi, cold, path, coldZero*inZero, 0, n.Feature)
}

// extendPath fills the last element of path and updates the permutation
// weights of the subsets that now include it.
func extendPath(path []pathElem, zero, one float64, feature int) {
	l := len(path) - 1
	path[l] = pathElem{feature: feature, zero: zero, one: one}
	if l == 0 {
		path[l].weight = 1
	}
	for i := l - 1; i >= 0; i-- {
		path[i+1].weight += one * path[i].weight * float64(i+1) / float64(l+1)
		path[i].weight = zero * path[i].weight * float64(l-i) / float64(l+1)
	}
}

// unwindPath is the inverse of extendPath for element k. The caller
// truncates the path by one afterwards.
func unwindPath(path []pathElem, k int) {
	l := len(path) - 1
	one, zero := path[k].one, path[k].zero
	next := path[l].weight
	for i := l - 1; i >= 0; i-- {
		if one != 0 {
			tmp := path[i].weight
			path[i].weight = next * float64(l+1) / (float64(i+1) * one)
			next = tmp - path[i].weight*zero*float64(l-i)/float64(l+1)
		} else {
			path[i].weight = path[i].weight * float64(l+1) / (zero * float64(l-i))
		}
	}
	for i := k; i < l; i++ {
		path[i].feature = path[i+1].feature
		path[i].zero = path[i+1].zero
		path[i].one = path[i+1].one
	}
}

// unwoundPathSum is the total permutation weight of path with element k
// removed, without modifying path.
func unwoundPathSum(path []pathElem, k int) float64 {
	l := len(path) - 1
	one, zero := path[k].one, path[k].zero
	next := path[l].weight
	total := 0.0
	if one != 0 {
		for i := l - 1; i >= 0; i-- {
			tmp := next / (float64(i+1) * one)
			total += tmp
			next = path[i].weight - tmp*zero*float64(l-i)
		}
	} else {
		for i := l - 1; i >= 0; i-- {
			total += path[i].weight / (zero * float64(l-i))
		}
	}
	return total * float64(l+1)
}
