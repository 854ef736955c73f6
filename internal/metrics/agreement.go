package metrics

import (
	"sort"

	"github.com/finxai/xai/internal/models"
	"gonum.org/v1/gonum/stat"
)

// AgreementTopK are the cutoffs reported by CompareRankings.
var AgreementTopK = []int{5, 10, 20}

// TopKOverlap is the share of the first K features two rankings have in
// common, out of K.
type TopKOverlap struct {
	K        int     `json:"k"`
	Overlap  int     `json:"overlap"`
	Fraction float64 `json:"fraction"`
}

// Agreement compares two global feature rankings.
type Agreement struct {
	// Spearman is the rank correlation over the features both rankings
	// contain.
	Spearman       Ratio         `json:"spearman"`
	TopK           []TopKOverlap `json:"top_k"`
	CommonFeatures int           `json:"common_features"`
}

// CompareRankings measures how well two global attributions agree, for
// example the shapley and surrogate rankings of one model.
func CompareRankings(a, b *models.GlobalAttribution) *Agreement {
	rankB := make(map[string]int, len(b.Features))
	for i, f := range b.Features {
		rankB[f.Feature] = rankOf(f, i)
	}

	var ra, rb []float64
	for i, f := range a.Features {
		if r, ok := rankB[f.Feature]; ok {
			ra = append(ra, float64(rankOf(f, i)))
			rb = append(rb, float64(r))
		}
	}

	out := &Agreement{CommonFeatures: len(ra)}
	if len(ra) >= 2 {
		out.Spearman = Value(stat.Correlation(fractionalRanks(ra), fractionalRanks(rb), nil))
	}
	for _, k := range AgreementTopK {
		top := make(map[string]bool, k)
		for _, f := range a.Features[:min(k, len(a.Features))] {
			top[f.Feature] = true
		}
		overlap := 0
		for _, f := range b.Features[:min(k, len(b.Features))] {
			if top[f.Feature] {
				overlap++
			}
		}
		out.TopK = append(out.TopK, TopKOverlap{K: k, Overlap: overlap, Fraction: float64(overlap) / float64(k)})
	}
	return out
}

func rankOf(f models.FeatureImportance, pos int) int {
	if f.Rank > 0 {
		return f.Rank
	}
	return pos + 1
}

// fractionalRanks converts values to 1-based ranks, averaging ties.
func fractionalRanks(v []float64) []float64 {
	idx := make([]int, len(v))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return v[idx[a]] < v[idx[b]] })

	ranks := make([]float64, len(v))
	for i := 0; i < len(idx); {
		j := i
		for j+1 < len(idx) && v[idx[j+1]] == v[idx[i]] {
			j++
		}
		avg := float64(i+j)/2 + 1
		for k := i; k <= j; k++ {
			ranks[idx[k]] = avg
		}
		i = j + 1
	}
	return ranks
}
