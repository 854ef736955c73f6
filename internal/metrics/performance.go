package metrics

import (
	"math"
	"sort"
)

// Performance defaults.
const (
	DefaultThreshold       = 0.5
	DefaultCalibrationBins = 10
)

// probability clipping for log loss
const logLossEps = 1e-15

// PerformanceOptions tunes ComputePerformance.
type PerformanceOptions struct {
	Threshold       float64 `yaml:"threshold,omitempty" json:"threshold"`
	CalibrationBins int     `yaml:"calibration_bins,omitempty" json:"calibration_bins"`
}

// DefaultPerformanceOptions returns the default options.
func DefaultPerformanceOptions() PerformanceOptions {
	return PerformanceOptions{Threshold: DefaultThreshold, CalibrationBins: DefaultCalibrationBins}
}

// Confusion holds binary confusion counts. Defined is false when the labels
// do not contain both classes, in which case the rates derived from it are
// undefined.
type Confusion struct {
	TP      int  `json:"tp"`
	FP      int  `json:"fp"`
	FN      int  `json:"fn"`
	TN      int  `json:"tn"`
	Defined bool `json:"defined"`
}

// CalibrationBin is one bucket of predicted probabilities.
type CalibrationBin struct {
	Lower         float64 `json:"lower"`
	Upper         float64 `json:"upper"`
	Count         int     `json:"count"`
	MeanPredicted Ratio   `json:"mean_predicted"`
	ObservedRate  Ratio   `json:"observed_rate"`
}

// ROCPoint is one operating point. Scores >= Threshold are predicted
// positive.
type ROCPoint struct {
	FPR       float64 `json:"fpr"`
	TPR       float64 `json:"tpr"`
	Threshold float64 `json:"threshold"`
}

// Performance is the evaluation of positive-class scores against binary
// labels.
type Performance struct {
	ModelID          string           `json:"model_id,omitempty"`
	SampleCount      int              `json:"sample_count"`
	PositiveCount    int              `json:"positive_count"`
	Threshold        float64          `json:"threshold"`
	Confusion        Confusion        `json:"confusion"`
	Accuracy         Ratio            `json:"accuracy"`
	Precision        Ratio            `json:"precision"`
	Recall           Ratio            `json:"recall"`
	Specificity      Ratio            `json:"specificity"`
	F1               Ratio            `json:"f1"`
	AUCROC           Ratio            `json:"auc_roc"`
	AveragePrecision Ratio            `json:"average_precision"`
	LogLoss          Ratio            `json:"log_loss"`
	Brier            Ratio            `json:"brier"`
	ECE              Ratio            `json:"expected_calibration_error"`
	MCE              Ratio            `json:"maximum_calibration_error"`
	Calibration      []CalibrationBin `json:"calibration,omitempty"`
	ROC              []ROCPoint       `json:"roc_curve,omitempty"`
	Notes            []string         `json:"notes,omitempty"`
}

// ComputePerformance evaluates positive-class probabilities against labels
// in {0, 1}. It never fails: degenerate inputs (empty, mismatched lengths,
// non-binary or single-class labels) yield undefined values and a note.
func ComputePerformance(scores []float64, labels []int, opts PerformanceOptions) *Performance {
	if !(opts.Threshold > 0 && opts.Threshold <= 1) {
		opts.Threshold = DefaultThreshold
	}
	if opts.CalibrationBins <= 0 {
		opts.CalibrationBins = DefaultCalibrationBins
	}
	p := &Performance{SampleCount: len(scores), Threshold: opts.Threshold}

	if len(scores) != len(labels) {
		p.Notes = append(p.Notes, "predictions and labels differ in length; metrics are undefined")
		return p
	}
	if len(scores) == 0 {
		p.Notes = append(p.Notes, "no samples; metrics are undefined")
		return p
	}
	for _, y := range labels {
		if y != 0 && y != 1 {
			p.Notes = append(p.Notes, "labels are not binary; metrics are undefined")
			return p
		}
		p.PositiveCount += y
	}

	n := len(scores)
	c := confusion(scores, labels, opts.Threshold)
	c.Defined = p.PositiveCount > 0 && p.PositiveCount < n
	p.Confusion = c
	p.Accuracy = SafeRatio(float64(c.TP+c.TN), float64(n))

	if c.Defined {
		p.Precision = SafeRatio(float64(c.TP), float64(c.TP+c.FP))
		p.Recall = SafeRatio(float64(c.TP), float64(c.TP+c.FN))
		p.Specificity = SafeRatio(float64(c.TN), float64(c.TN+c.FP))
		p.F1 = SafeRatio(float64(2*c.TP), float64(2*c.TP+c.FP+c.FN))
		p.ROC = rocCurve(scores, labels)
		p.AUCROC = trapezoid(p.ROC)
		p.AveragePrecision = averagePrecision(scores, labels)
		if !p.Precision.Defined {
			p.Notes = append(p.Notes, "no positive predictions at this threshold; precision is undefined")
		}
	} else {
		p.Notes = append(p.Notes, "labels contain a single class; confusion-derived rates and AUC are undefined")
	}

	p.LogLoss = logLoss(scores, labels)
	p.Brier = brier(scores, labels)
	p.Calibration, p.ECE, p.MCE = calibration(scores, labels, opts.CalibrationBins)
	return p
}

func confusion(scores []float64, labels []int, threshold float64) Confusion {
	var c Confusion
	for i, s := range scores {
		predicted := s >= threshold
		switch {
		case predicted && labels[i] == 1:
			c.TP++
		case predicted:
			c.FP++
		case labels[i] == 1:
			c.FN++
		default:
			c.TN++
		}
	}
	return c
}

type scored struct {
	score float64
	label int
}

func sortedDesc(scores []float64, labels []int) []scored {
	pairs := make([]scored, len(scores))
	for i := range scores {
		pairs[i] = scored{scores[i], labels[i]}
	}
	sort.SliceStable(pairs, func(a, b int) bool { return pairs[a].score > pairs[b].score })
	return pairs
}

// rocCurve returns one point per distinct score, starting at (0, 0).
// Callers ensure both classes are present.
func rocCurve(scores []float64, labels []int) []ROCPoint {
	pairs := sortedDesc(scores, labels)
	pos, neg := 0, 0
	for _, p := range pairs {
		if p.label == 1 {
			pos++
		} else {
			neg++
		}
	}
	points := []ROCPoint{{Threshold: math.Nextafter(pairs[0].score, math.Inf(1))}}
	tp, fp := 0, 0
	for i, p := range pairs {
		if p.label == 1 {
			tp++
		} else {
			fp++
		}
		if i+1 < len(pairs) && pairs[i+1].score == p.score {
			continue
		}
		points = append(points, ROCPoint{
			FPR:       float64(fp) / float64(neg),
			TPR:       float64(tp) / float64(pos),
			Threshold: p.score,
		})
	}
	return points
}

func trapezoid(points []ROCPoint) Ratio {
	if len(points) < 2 {
		return Undefined
	}
	area := 0.0
	for i := 1; i < len(points); i++ {
		dx := points[i].FPR - points[i-1].FPR
		area += dx * (points[i].TPR + points[i-1].TPR) / 2
	}
	return Value(area)
}

// averagePrecision is the step-wise area under the precision-recall curve:
// sum over thresholds of (R_n - R_{n-1}) * P_n.
func averagePrecision(scores []float64, labels []int) Ratio {
	pairs := sortedDesc(scores, labels)
	pos := 0
	for _, p := range pairs {
		pos += p.label
	}
	if pos == 0 {
		return Undefined
	}
	ap, prevRecall := 0.0, 0.0
	tp, seen := 0, 0
	for i, p := range pairs {
		seen++
		tp += p.label
		if i+1 < len(pairs) && pairs[i+1].score == p.score {
			continue
		}
		recall := float64(tp) / float64(pos)
		precision := float64(tp) / float64(seen)
		ap += (recall - prevRecall) * precision
		prevRecall = recall
	}
	return Value(ap)
}

func clip(p, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, p))
}

func logLoss(scores []float64, labels []int) Ratio {
	sum := 0.0
	for i, s := range scores {
		p := clip(s, logLossEps, 1-logLossEps)
		if labels[i] == 1 {
			sum -= math.Log(p)
		} else {
			sum -= math.Log(1 - p)
		}
	}
	return SafeRatio(sum, float64(len(scores)))
}

func brier(scores []float64, labels []int) Ratio {
	sum := 0.0
	for i, s := range scores {
		d := s - float64(labels[i])
		sum += d * d
	}
	return SafeRatio(sum, float64(len(scores)))
}

// calibration buckets scores into equal-width bins over [0, 1]. Empty bins
// carry no weight in ECE and are excluded from MCE.
func calibration(scores []float64, labels []int, nbins int) ([]CalibrationBin, Ratio, Ratio) {
	counts := make([]int, nbins)
	sumPred := make([]float64, nbins)
	sumTrue := make([]float64, nbins)
	for i, s := range scores {
		s = clip(s, 0, 1)
		b := int(math.Floor(s * float64(nbins)))
		if b >= nbins {
			b = nbins - 1
		}
		if b < 0 {
			b = 0
		}
		counts[b]++
		sumPred[b] += s
		sumTrue[b] += float64(labels[i])
	}

	bins := make([]CalibrationBin, nbins)
	weighted, mce := 0.0, Undefined
	for b := range bins {
		bins[b] = CalibrationBin{
			Lower:         float64(b) / float64(nbins),
			Upper:         float64(b+1) / float64(nbins),
			Count:         counts[b],
			MeanPredicted: SafeRatio(sumPred[b], float64(counts[b])),
			ObservedRate:  SafeRatio(sumTrue[b], float64(counts[b])),
		}
		if counts[b] == 0 {
			continue
		}
		gap := math.Abs(bins[b].ObservedRate.Value - bins[b].MeanPredicted.Value)
		weighted += float64(counts[b]) * gap
		if !mce.Defined || gap > mce.Value {
			mce = Value(gap)
		}
	}
	return bins, SafeRatio(weighted, float64(len(scores))), mce
}
