package attribution

import (
	"cmp"
	"math"
	"slices"
)

// TopK is the maximum number of features reported per patient.
const TopK = 10

type FeatureContribution struct {
	Feature    string  `json:"feature"`
	Importance float64 `json:"importance"`
}

// Rank turns one row's signed contributions into a top-K list.
//
// Each contribution is multiplied by the row's own indicator and taken in
// absolute value, then expressed as a percentage of the sum over present
// features (indicator > 0); only present features are ranked. When nothing
// is present, or the present features contribute nothing, every feature is
// ranked on its absolute unrestricted contribution as a share of the total,
// and if that total is also zero the raw values are kept.
func Rank(phi, x []float64, columns []string) []FeatureContribution {
	var (
		present []int
		sum     float64
	)
	restricted := make([]float64, len(phi))
	for i, v := range phi {
		restricted[i] = math.Abs(v * x[i])
		if x[i] > 0 {
			present = append(present, i)
			sum += restricted[i]
		}
	}

	var out []FeatureContribution
	if len(present) > 0 && sum > 0 {
		out = make([]FeatureContribution, len(present))
		for k, i := range present {
			out[k] = FeatureContribution{Feature: columns[i], Importance: 100 * restricted[i] / sum}
		}
	} else {
		all := make([]float64, len(phi))
		total := 0.0
		for i, v := range phi {
			all[i] = math.Abs(v)
			total += all[i]
		}
		out = make([]FeatureContribution, len(phi))
		for i, v := range all {
			if total > 0 {
				v = 100 * v / total
			}
			out[i] = FeatureContribution{Feature: columns[i], Importance: v}
		}
	}
	return topK(out)
}

// GlobalTopK ranks a model-wide importance vector. Weights are scaled by 100
// and not restricted to present features.
func GlobalTopK(weights []float64, columns []string) []FeatureContribution {
	n := min(len(weights), len(columns))
	out := make([]FeatureContribution, n)
	for i := 0; i < n; i++ {
		out[i] = FeatureContribution{Feature: columns[i], Importance: weights[i] * 100}
	}
	return topK(out)
}

// topK sorts by importance descending, keeping column order among ties.
func topK(list []FeatureContribution) []FeatureContribution {
	slices.SortStableFunc(list, func(a, b FeatureContribution) int {
		return cmp.Compare(b.Importance, a.Importance)
	})
	if len(list) > TopK {
		list = list[:TopK:TopK]
	}
	return list
}
