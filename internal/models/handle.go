package models

import (
	"fmt"
	"math"
)

// Family identifies the algorithm family of a trained classifier.
type Family string

const (
	FamilyRandomForest       Family = "random_forest"
	FamilyGradientBoosting   Family = "gradient_boosting"
	FamilyLogisticRegression Family = "logistic_regression"
)

// IsTreeEnsemble reports whether the family is backed by decision trees.
func (f Family) IsTreeEnsemble() bool {
	return f == FamilyRandomForest || f == FamilyGradientBoosting
}

// FeatureKind marks whether a feature may be perturbed with continuous noise.
type FeatureKind string

const (
	FeatureNumeric     FeatureKind = "numeric"
	FeatureCategorical FeatureKind = "categorical"
)

// Node is a single decision tree node. A node with Left < 0 is a leaf.
// Samples with x[Feature] <= Threshold follow Left.
type Node struct {
	Feature   int     `json:"feature"`
	Threshold float64 `json:"threshold"`
	Left      int     `json:"left"`
	Right     int     `json:"right"`
	Value     float64 `json:"value"`
	Cover     float64 `json:"cover"`
}

// IsLeaf reports whether the node has no children.
func (n *Node) IsLeaf() bool {
	return n.Left < 0
}

// Tree is a binary decision tree stored as a flat node array rooted at index 0.
type Tree struct {
	Nodes []Node `json:"nodes"`
}

// Leaf walks the tree for x and returns the index of the reached leaf.
func (t *Tree) Leaf(x []float64) int {
	i := 0
	for !t.Nodes[i].IsLeaf() {
		n := &t.Nodes[i]
		if x[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
	return i
}

// Predict returns the leaf value reached by x.
func (t *Tree) Predict(x []float64) float64 {
	return t.Nodes[t.Leaf(x)].Value
}

// ExpectedValue is the cover-weighted mean leaf value of the tree.
func (t *Tree) ExpectedValue() float64 {
	if len(t.Nodes) == 0 || t.Nodes[0].Cover <= 0 {
		return 0
	}
	return t.expected(0) / t.Nodes[0].Cover
}

func (t *Tree) expected(i int) float64 {
	n := &t.Nodes[i]
	if n.IsLeaf() {
		return n.Value * n.Cover
	}
	return t.expected(n.Left) + t.expected(n.Right)
}

// Handle is a trained binary classifier loaded from the artifact store.
// Handles are immutable once loaded and safe for concurrent use.
type Handle struct {
	ID           string        `json:"id"`
	Family       Family        `json:"family"`
	FeatureNames []string      `json:"feature_names"`
	FeatureKinds []FeatureKind `json:"feature_kinds,omitempty"`
	ClassNames   []string      `json:"class_names,omitempty"`

	// Tree ensembles.
	Trees     []Tree  `json:"trees,omitempty"`
	BaseScore float64 `json:"base_score,omitempty"`

	// Logistic regression.
	Coefficients []float64 `json:"coefficients,omitempty"`
	Intercept    float64   `json:"intercept,omitempty"`
}

// NumFeatures returns the number of input features.
func (h *Handle) NumFeatures() int {
	return len(h.FeatureNames)
}

// IsCategorical reports whether feature j is declared categorical.
func (h *Handle) IsCategorical(j int) bool {
	return j < len(h.FeatureKinds) && h.FeatureKinds[j] == FeatureCategorical
}

// Score returns the model output that attributions decompose: the
// positive-class probability for random forests and logistic models, and the
// log-odds margin for gradient boosting.
func (h *Handle) Score(x []float64) float64 {
	switch h.Family {
	case FamilyRandomForest:
		if len(h.Trees) == 0 {
			return 0
		}
		sum := 0.0
		for i := range h.Trees {
			sum += h.Trees[i].Predict(x)
		}
		return sum / float64(len(h.Trees))
	case FamilyGradientBoosting:
		sum := h.BaseScore
		for i := range h.Trees {
			sum += h.Trees[i].Predict(x)
		}
		return sum
	case FamilyLogisticRegression:
		z := h.Intercept
		for j, w := range h.Coefficients {
			z += w * x[j]
		}
		return sigmoid(z)
	}
	return 0
}

// PositiveProbability returns P(class = 1 | x).
func (h *Handle) PositiveProbability(x []float64) float64 {
	s := h.Score(x)
	if h.Family == FamilyGradientBoosting {
		return sigmoid(s)
	}
	return math.Min(1, math.Max(0, s))
}

// PredictProba returns the class probabilities [P(0), P(1)].
func (h *Handle) PredictProba(x []float64) []float64 {
	p := h.PositiveProbability(x)
	return []float64{1 - p, p}
}

// PredictClass returns the arg-max class of PredictProba.
func (h *Handle) PredictClass(x []float64) int {
	if h.PositiveProbability(x) > 0.5 {
		return 1
	}
	return 0
}

// ClassName returns the display name of class c.
func (h *Handle) ClassName(c int) string {
	if c >= 0 && c < len(h.ClassNames) {
		return h.ClassNames[c]
	}
	if c == 1 {
		return "positive"
	}
	return "negative"
}

// Validate checks structural consistency of the handle.
func (h *Handle) Validate() error {
	if h.ID == "" {
		return fmt.Errorf("model id is required")
	}
	if len(h.FeatureNames) == 0 {
		return fmt.Errorf("model %s: feature_names is empty", h.ID)
	}
	if len(h.FeatureKinds) != 0 && len(h.FeatureKinds) != len(h.FeatureNames) {
		return fmt.Errorf("model %s: feature_kinds has %d entries, expected %d", h.ID, len(h.FeatureKinds), len(h.FeatureNames))
	}
	switch h.Family {
	case FamilyRandomForest, FamilyGradientBoosting:
		if len(h.Trees) == 0 {
			return fmt.Errorf("model %s: tree ensemble has no trees", h.ID)
		}
		for ti := range h.Trees {
			if err := h.validateTree(ti); err != nil {
				return err
			}
		}
	case FamilyLogisticRegression:
		if len(h.Coefficients) != len(h.FeatureNames) {
			return fmt.Errorf("model %s: %d coefficients for %d features", h.ID, len(h.Coefficients), len(h.FeatureNames))
		}
	default:
		return fmt.Errorf("model %s: unknown family %q", h.ID, h.Family)
	}
	return nil
}

func (h *Handle) validateTree(ti int) error {
	nodes := h.Trees[ti].Nodes
	if len(nodes) == 0 {
		return fmt.Errorf("model %s: tree %d has no nodes", h.ID, ti)
	}
	for i, n := range nodes {
		if n.IsLeaf() {
			continue
		}
		if n.Left <= i || n.Right <= i || n.Left >= len(nodes) || n.Right >= len(nodes) {
			return fmt.Errorf("model %s: tree %d node %d has invalid children (%d, %d)", h.ID, ti, i, n.Left, n.Right)
		}
		if n.Feature < 0 || n.Feature >= len(h.FeatureNames) {
			return fmt.Errorf("model %s: tree %d node %d splits on unknown feature %d", h.ID, ti, i, n.Feature)
		}
		if n.Cover <= 0 {
			return fmt.Errorf("model %s: tree %d node %d has non-positive cover", h.ID, ti, i)
		}
	}
	return nil
}

func sigmoid(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}
