package models

// FeatureImportance is one ranked entry of a global attribution.
type FeatureImportance struct {
	Feature       string  `json:"feature"`
	Importance    float64 `json:"importance"`
	Std           float64 `json:"std"`
	PositiveCount int     `json:"positive_count"`
	NegativeCount int     `json:"negative_count"`
	Rank          int     `json:"rank"`
}

// GlobalAttribution is aggregate importance over a sample of held-out rows.
// Features are ranked by descending importance.
type GlobalAttribution struct {
	ModelID      string              `json:"model_id"`
	Method       Method              `json:"method"`
	Features     []FeatureImportance `json:"features"`
	SampleSize   int                 `json:"sample_size"`
	FeatureCount int                 `json:"feature_count"`
	BaseValue    float64             `json:"base_value"`
}

// Importance returns the importance of the named feature, or false if absent.
func (g *GlobalAttribution) Importance(feature string) (float64, bool) {
	for _, f := range g.Features {
		if f.Feature == feature {
			return f.Importance, true
		}
	}
	return 0, false
}

// Contribution is the signed attribution of one feature for one instance.
type Contribution struct {
	Feature      string  `json:"feature"`
	Value        float64 `json:"value"`
	Contribution float64 `json:"contribution"`
}

// Prediction is the model's decision for one instance.
type Prediction struct {
	Class         int       `json:"class"`
	Label         string    `json:"label"`
	Probability   float64   `json:"probability"`
	Probabilities []float64 `json:"probabilities"`
}

// LocalAttribution explains one prediction. Contributions are in model
// feature order.
type LocalAttribution struct {
	ModelID       string         `json:"model_id"`
	Method        Method         `json:"method"`
	InstanceIndex int            `json:"instance_index"`
	Contributions []Contribution `json:"contributions"`
	BaseValue     float64        `json:"base_value"`
	Score         float64        `json:"score"`
	Prediction    Prediction     `json:"prediction"`
	TrueLabel     *int           `json:"true_label,omitempty"`
	SurrogateFit  *float64       `json:"surrogate_fit,omitempty"`
}

// Values returns the signed contributions as a vector.
func (l *LocalAttribution) Values() []float64 {
	out := make([]float64, len(l.Contributions))
	for i, c := range l.Contributions {
		out[i] = c.Contribution
	}
	return out
}

// Reconstructed returns base value plus the sum of contributions.
func (l *LocalAttribution) Reconstructed() float64 {
	sum := l.BaseValue
	for _, c := range l.Contributions {
		sum += c.Contribution
	}
	return sum
}
