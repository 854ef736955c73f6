package attribution

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"github.com/finxai/xai/internal/models"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// SurrogateExplainer fits a proximity-weighted ridge regression to model
// scores of Gaussian perturbations around the instance. Coefficients are in
// standardized feature units; a feature's contribution is its coefficient
// times the instance's standardized value, and the intercept is the base
// value. Additivity holds only as well as the local fit does.
type SurrogateExplainer struct {
	model      *models.Handle
	opts       SurrogateOptions
	seed       int64
	width      float64
	mean       []float64
	std        []float64
	categories [][]float64
	active     []int
}

// NewSurrogateExplainer derives scaling statistics from background rows.
func NewSurrogateExplainer(h *models.Handle, background [][]float64, seed int64, opts SurrogateOptions) (*SurrogateExplainer, error) {
	if len(background) == 0 {
		return nil, fmt.Errorf("surrogate explainer for %s needs a non-empty background sample", h.ID)
	}
	d := h.NumFeatures()
	if opts.NumSamples <= 0 {
		opts.NumSamples = DefaultOptions().Surrogate.NumSamples
	}
	e := &SurrogateExplainer{
		model:      h,
		opts:       opts,
		seed:       seed,
		width:      opts.KernelWidth,
		mean:       make([]float64, d),
		std:        make([]float64, d),
		categories: make([][]float64, d),
	}
	if e.width <= 0 {
		e.width = 0.75 * math.Sqrt(float64(d))
	}

	col := make([]float64, len(background))
	for j := 0; j < d; j++ {
		for i, row := range background {
			col[i] = row[j]
		}
		if h.IsCategorical(j) {
			e.categories[j] = append([]float64(nil), col...)
			e.active = append(e.active, j)
			continue
		}
		e.mean[j], e.std[j] = stat.PopMeanStdDev(col, nil)
		if e.std[j] > 0 {
			e.active = append(e.active, j)
		}
	}
	return e, nil
}

func (e *SurrogateExplainer) Method() models.Method { return models.MethodSurrogate }

// scaled maps a feature value into the regression space. Categorical
// features become an indicator of matching the explained instance.
func (e *SurrogateExplainer) scaled(j int, v, ref float64) float64 {
	if e.categories[j] != nil {
		if v == ref {
			return 1
		}
		return 0
	}
	return (v - e.mean[j]) / e.std[j]
}

// Explain fits the surrogate around x. The same x always yields the same
// explanation.
func (e *SurrogateExplainer) Explain(x []float64) (*Explanation, error) {
	d := e.model.NumFeatures()
	if len(x) != d {
		return nil, fmt.Errorf("instance has %d features, model expects %d", len(x), d)
	}
	n, p := e.opts.NumSamples, len(e.active)
	rng := rand.New(rand.NewSource(e.seed))

	sx := make([]float64, p)
	for k, j := range e.active {
		sx[k] = e.scaled(j, x[j], x[j])
	}

	design := mat.NewDense(n, p+1, nil)
	y := make([]float64, n)
	w := make([]float64, n)
	z := make([]float64, d)
	for s := 0; s < n; s++ {
		copy(z, x)
		// Row 0 is the instance itself.
		if s > 0 {
			for _, j := range e.active {
				if cats := e.categories[j]; cats != nil {
					z[j] = cats[rng.Intn(len(cats))]
				} else {
					z[j] = x[j] + rng.NormFloat64()*e.std[j]
				}
			}
		}
		design.Set(s, 0, 1)
		dist2 := 0.0
		for k, j := range e.active {
			v := e.scaled(j, z[j], x[j])
			design.Set(s, k+1, v)
			diff := v - sx[k]
			dist2 += diff * diff
		}
		w[s] = math.Sqrt(math.Exp(-dist2 / (e.width * e.width)))
		y[s] = e.model.Score(z)
	}

	beta, err := weightedRidge(design, y, w, e.opts.Alpha)
	if err != nil {
		return nil, fmt.Errorf("%w: surrogate fit for model %s: %v", models.ErrComputationFailure, e.model.ID, err)
	}

	out := &Explanation{
		Contributions: make([]float64, d),
		Weights:       make([]float64, d),
		BaseValue:     beta[0],
	}
	for k, j := range e.active {
		out.Weights[j] = beta[k+1]
		out.Contributions[j] = beta[k+1] * sx[k]
	}
	if !finite(out.Contributions) || math.IsNaN(out.BaseValue) {
		return nil, fmt.Errorf("%w: non-finite surrogate coefficients for model %s", models.ErrComputationFailure, e.model.ID)
	}
	if r2, ok := weightedR2(design, y, w, beta); ok {
		out.Fit = &r2
	}
	return out, nil
}

// weightedRidge solves (XᵀWX + αI')β = XᵀWy where column 0 of X is the
// unpenalized intercept.
func weightedRidge(x *mat.Dense, y, w []float64, alpha float64) ([]float64, error) {
	r, c := x.Dims()
	xs := mat.NewDense(r, c, nil)
	ys := mat.NewVecDense(r, nil)
	for i := 0; i < r; i++ {
		sw := math.Sqrt(w[i])
		for j := 0; j < c; j++ {
			xs.Set(i, j, sw*x.At(i, j))
		}
		ys.SetVec(i, sw*y[i])
	}

	var a mat.Dense
	a.Mul(xs.T(), xs)
	for j := 1; j < c; j++ {
		a.Set(j, j, a.At(j, j)+alpha)
	}
	var b mat.VecDense
	b.MulVec(xs.T(), ys)

	var beta mat.VecDense
	if err := beta.SolveVec(&a, &b); err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) {
			return nil, err
		}
	}
	out := make([]float64, c)
	for j := range out {
		out[j] = beta.AtVec(j)
	}
	return out, nil
}

// weightedR2 is the weighted coefficient of determination of the fit. It is
// undefined when the targets have no weighted variance.
func weightedR2(x *mat.Dense, y, w, beta []float64) (float64, bool) {
	var pred mat.VecDense
	pred.MulVec(x, mat.NewVecDense(len(beta), beta))
	yMean := stat.Mean(y, w)
	ssRes, ssTot := 0.0, 0.0
	for i := range y {
		res := y[i] - pred.AtVec(i)
		dev := y[i] - yMean
		ssRes += w[i] * res * res
		ssTot += w[i] * dev * dev
	}
	if ssTot <= 1e-15 {
		return 0, false
	}
	return 1 - ssRes/ssTot, true
}
