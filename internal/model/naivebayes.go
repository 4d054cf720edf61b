package model

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// NaiveBayesSpec is a Bernoulli naive Bayes model: FeatureLogProb[k][j] is
// log P(x_j = 1 | class k).
type NaiveBayesSpec struct {
	ClassLogPrior  []float64   `json:"class_log_prior"`
	FeatureLogProb [][]float64 `json:"feature_log_prob"`
	Binarize       float64     `json:"binarize"`
}

// BernoulliNB has no native importance or explainer; the facade covers it
// with uniform importance and sampling attribution.
type BernoulliNB struct {
	prior    []float64
	logP     [][]float64
	logNotP  [][]float64
	binarize float64
}

func NewBernoulliNB(spec NaiveBayesSpec) (*BernoulliNB, error) {
	classes := len(spec.ClassLogPrior)
	if classes == 0 || len(spec.FeatureLogProb) != classes {
		return nil, fmt.Errorf("naive bayes needs one feature_log_prob row per class prior")
	}
	features := len(spec.FeatureLogProb[0])
	if features == 0 {
		return nil, fmt.Errorf("naive bayes has no features")
	}
	nb := &BernoulliNB{
		prior:    append([]float64(nil), spec.ClassLogPrior...),
		binarize: spec.Binarize,
	}
	for k, row := range spec.FeatureLogProb {
		if len(row) != features {
			return nil, fmt.Errorf("feature_log_prob row %d has %d entries, expected %d", k, len(row), features)
		}
		p := make([]float64, features)
		notP := make([]float64, features)
		for j, lp := range row {
			if lp > 0 {
				return nil, fmt.Errorf("feature_log_prob[%d][%d] = %g is not a log probability", k, j, lp)
			}
			p[j] = lp
			notP[j] = math.Log1p(-math.Exp(lp))
		}
		nb.logP = append(nb.logP, p)
		nb.logNotP = append(nb.logNotP, notP)
	}
	return nb, nil
}

func (nb *BernoulliNB) NumFeatures() int { return len(nb.logP[0]) }

func (nb *BernoulliNB) NumClasses() int { return len(nb.prior) }

func (nb *BernoulliNB) PredictProba(X mat.Matrix) (*mat.Dense, error) {
	rows, cols := X.Dims()
	if cols != nb.NumFeatures() {
		return nil, fmt.Errorf("naive bayes expects %d features, got %d", nb.NumFeatures(), cols)
	}
	out := mat.NewDense(rows, nb.NumClasses(), nil)
	for r := 0; r < rows; r++ {
		scores := out.RawRowView(r)
		for k := range scores {
			s := nb.prior[k]
			for j := 0; j < cols; j++ {
				if X.At(r, j) > nb.binarize {
					s += nb.logP[k][j]
				} else {
					s += nb.logNotP[k][j]
				}
			}
			scores[k] = s
		}
		softmaxInPlace(scores)
	}
	return out, nil
}
