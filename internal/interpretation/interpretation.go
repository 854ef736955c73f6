// Package interpretation renders a local attribution as plain-language
// reasoning. The rules are fixed: the largest contributions are graded by
// magnitude, described by direction, and summarized by which side of the
// decision dominates. The positive class is read as the risk outcome.
package interpretation

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/finxai/xai/internal/models"
)

// Mode identifies how the text was produced.
const Mode = "rule-based"

// Defaults.
const (
	DefaultTopFeatures    = 5
	DefaultStrongCutoff   = 0.3
	DefaultModerateCutoff = 0.15
)

// Strength grades the magnitude of one contribution.
type Strength string

const (
	StrengthStrong   Strength = "strong"
	StrengthModerate Strength = "moderate"
	StrengthSlight   Strength = "slight"
)

func (s Strength) adverb() string {
	switch s {
	case StrengthStrong:
		return "strongly"
	case StrengthModerate:
		return "moderately"
	}
	return "slightly"
}

// Direction is the sign of a contribution relative to the risk outcome.
type Direction string

const (
	DirectionIncreases Direction = "increases"
	DirectionDecreases Direction = "decreases"
	DirectionNeutral   Direction = "neutral"
)

// Balance says which kind of factor dominates the top features.
type Balance string

const (
	BalanceRiskIncreasing Balance = "risk_increasing"
	BalanceProtective     Balance = "protective"
	BalanceEven           Balance = "balanced"
)

// Options tunes Interpret. Cutoffs are in the units of the contributions,
// which is the model score the explainer attributes.
type Options struct {
	TopFeatures    int     `yaml:"top_features,omitempty" json:"top_features"`
	StrongCutoff   float64 `yaml:"strong_cutoff,omitempty" json:"strong_cutoff"`
	ModerateCutoff float64 `yaml:"moderate_cutoff,omitempty" json:"moderate_cutoff"`
}

func DefaultOptions() Options {
	return Options{
		TopFeatures:    DefaultTopFeatures,
		StrongCutoff:   DefaultStrongCutoff,
		ModerateCutoff: DefaultModerateCutoff,
	}
}

// Validate reports option values that cannot be used.
func (o Options) Validate() error {
	var errs []error
	if o.TopFeatures < 1 {
		errs = append(errs, fmt.Errorf("top_features must be at least 1, got %d", o.TopFeatures))
	}
	if !(o.ModerateCutoff >= 0) {
		errs = append(errs, fmt.Errorf("moderate_cutoff must not be negative, got %g", o.ModerateCutoff))
	}
	if !(o.StrongCutoff >= o.ModerateCutoff) {
		errs = append(errs, fmt.Errorf("strong_cutoff (%g) must not be below moderate_cutoff (%g)", o.StrongCutoff, o.ModerateCutoff))
	}
	return errors.Join(errs...)
}

// Grade maps |contribution| to a strength. Both cutoffs are exclusive: a
// contribution exactly at the strong cutoff is moderate.
func (o Options) Grade(contribution float64) Strength {
	abs := math.Abs(contribution)
	switch {
	case abs > o.StrongCutoff:
		return StrengthStrong
	case abs > o.ModerateCutoff:
		return StrengthModerate
	}
	return StrengthSlight
}

// Factor is one of the top contributions with its reading.
type Factor struct {
	Rank         int       `json:"rank"`
	Feature      string    `json:"feature"`
	Value        float64   `json:"value"`
	Contribution float64   `json:"contribution"`
	Strength     Strength  `json:"strength"`
	Direction    Direction `json:"direction"`
	Text         string    `json:"text"`
}

// Interpretation is the rendered reasoning for one prediction.
type Interpretation struct {
	ModelID       string            `json:"model_id"`
	Method        models.Method     `json:"method"`
	InstanceIndex int               `json:"instance_index"`
	Mode          string            `json:"mode"`
	Prediction    models.Prediction `json:"prediction"`
	// Confidence is the probability of the predicted class.
	Confidence     float64  `json:"confidence"`
	Headline       string   `json:"headline"`
	Factors        []Factor `json:"factors"`
	RiskIncreasing int      `json:"risk_increasing"`
	Protective     int      `json:"protective"`
	Balance        Balance  `json:"balance"`
	Summary        string   `json:"summary"`
	// Text joins the headline, factors and summary as markdown.
	Text string `json:"text"`
}

// TopFeatures returns the names of the interpreted features in rank order.
func (in *Interpretation) TopFeatures() []string {
	out := make([]string, len(in.Factors))
	for i, f := range in.Factors {
		out[i] = f.Feature
	}
	return out
}

// Interpret reads local. Zero option fields take their defaults.
func Interpret(local *models.LocalAttribution, opts Options) *Interpretation {
	opts = opts.withDefaults()

	in := &Interpretation{
		ModelID:       local.ModelID,
		Method:        local.Method,
		InstanceIndex: local.InstanceIndex,
		Mode:          Mode,
		Prediction:    local.Prediction,
		Confidence:    local.Prediction.Probability,
		Factors:       []Factor{},
	}
	in.Headline = headline(local.Prediction)

	for i, c := range top(local.Contributions, opts.TopFeatures) {
		f := Factor{
			Rank:         i + 1,
			Feature:      c.Feature,
			Value:        c.Value,
			Contribution: c.Contribution,
			Strength:     opts.Grade(c.Contribution),
			Direction:    direction(c.Contribution),
		}
		switch f.Direction {
		case DirectionIncreases:
			in.RiskIncreasing++
		case DirectionDecreases:
			in.Protective++
		}
		f.Text = factorText(f)
		in.Factors = append(in.Factors, f)
	}
	in.Balance, in.Summary = summarize(in.RiskIncreasing, in.Protective)
	in.Text = render(in)
	return in
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.TopFeatures <= 0 {
		o.TopFeatures = d.TopFeatures
	}
	if o.StrongCutoff == 0 && o.ModerateCutoff == 0 {
		o.StrongCutoff, o.ModerateCutoff = d.StrongCutoff, d.ModerateCutoff
	}
	return o
}

// top returns up to n contributions by descending magnitude. Ties keep
// model feature order.
func top(cs []models.Contribution, n int) []models.Contribution {
	sorted := append([]models.Contribution(nil), cs...)
	sort.SliceStable(sorted, func(a, b int) bool {
		return math.Abs(sorted[a].Contribution) > math.Abs(sorted[b].Contribution)
	})
	return sorted[:min(n, len(sorted))]
}

func direction(c float64) Direction {
	switch {
	case c > 0:
		return DirectionIncreases
	case c < 0:
		return DirectionDecreases
	}
	return DirectionNeutral
}

func headline(p models.Prediction) string {
	level := "LOW RISK"
	if p.Class == 1 {
		level = "HIGH RISK"
	}
	return fmt.Sprintf("The model predicts **%s** (%s) with %.1f%% confidence.", level, p.Label, 100*p.Probability)
}

func factorText(f Factor) string {
	value := strconv.FormatFloat(f.Value, 'g', 6, 64)
	switch f.Direction {
	case DirectionIncreases:
		return fmt.Sprintf("%d. **%s** (value: %s): This %s increases the risk. The current value makes the case appear riskier.",
			f.Rank, f.Feature, value, f.Strength.adverb())
	case DirectionDecreases:
		return fmt.Sprintf("%d. **%s** (value: %s): This %s decreases the risk. The current value makes the case appear safer.",
			f.Rank, f.Feature, value, f.Strength.adverb())
	}
	return fmt.Sprintf("%d. **%s** (value: %s): This has no effect on the risk.", f.Rank, f.Feature, value)
}

func summarize(increasing, protective int) (Balance, string) {
	switch {
	case increasing > protective:
		return BalanceRiskIncreasing, fmt.Sprintf(
			"The decision is primarily driven by %d risk-increasing factors, which outweigh the %d protective factors.",
			increasing, protective)
	case protective > increasing:
		return BalanceProtective, fmt.Sprintf(
			"The decision is primarily driven by %d protective factors, which outweigh the %d risk-increasing factors.",
			protective, increasing)
	}
	return BalanceEven, "The decision reflects a balance between risk-increasing and protective factors."
}

func render(in *Interpretation) string {
	var b strings.Builder
	b.WriteString(in.Headline)
	b.WriteString("\n\n**Key Factors:**\n\n")
	for _, f := range in.Factors {
		b.WriteString(f.Text)
		b.WriteByte('\n')
	}
	b.WriteString("\n**Summary:**\n")
	b.WriteString(in.Summary)
	return b.String()
}
