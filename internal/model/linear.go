package model

import (
	"context"
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/Skufu/rxcompass/internal/explain"
)

// LinearSpec is a multinomial logistic regression: Coef is [class][feature].
// FeatureMeans is the training-set mean of each feature; attributions are
// measured against it and default to zero.
type LinearSpec struct {
	Coef         [][]float64 `json:"coef"`
	Intercept    []float64   `json:"intercept"`
	FeatureMeans []float64   `json:"feature_means,omitempty"`
}

type Linear struct {
	coef      *mat.Dense // classes x features
	intercept []float64
	means     []float64
}

func NewLinear(spec LinearSpec) (*Linear, error) {
	classes := len(spec.Coef)
	if classes == 0 || len(spec.Coef[0]) == 0 {
		return nil, fmt.Errorf("linear model has no coefficients")
	}
	features := len(spec.Coef[0])
	data := make([]float64, 0, classes*features)
	for k, row := range spec.Coef {
		if len(row) != features {
			return nil, fmt.Errorf("coef row %d has %d entries, expected %d", k, len(row), features)
		}
		data = append(data, row...)
	}
	intercept := spec.Intercept
	if intercept == nil {
		intercept = make([]float64, classes)
	}
	if len(intercept) != classes {
		return nil, fmt.Errorf("intercept has %d entries for %d classes", len(intercept), classes)
	}
	means := spec.FeatureMeans
	if means == nil {
		means = make([]float64, features)
	}
	if len(means) != features {
		return nil, fmt.Errorf("feature_means has %d entries for %d features", len(means), features)
	}
	return &Linear{
		coef:      mat.NewDense(classes, features, data),
		intercept: append([]float64(nil), intercept...),
		means:     append([]float64(nil), means...),
	}, nil
}

func (l *Linear) NumFeatures() int {
	_, c := l.coef.Dims()
	return c
}

func (l *Linear) NumClasses() int {
	r, _ := l.coef.Dims()
	return r
}

func (l *Linear) Coefficients() [][]float64 {
	classes := l.NumClasses()
	out := make([][]float64, classes)
	for k := range out {
		out[k] = mat.Row(nil, k, l.coef)
	}
	return out
}

func (l *Linear) PredictProba(X mat.Matrix) (*mat.Dense, error) {
	rows, cols := X.Dims()
	if cols != l.NumFeatures() {
		return nil, fmt.Errorf("linear model expects %d features, got %d", l.NumFeatures(), cols)
	}
	var scores mat.Dense
	scores.Mul(X, l.coef.T())
	for r := 0; r < rows; r++ {
		row := scores.RawRowView(r)
		floats.Add(row, l.intercept)
		softmaxInPlace(row)
	}
	return &scores, nil
}

func (l *Linear) NativeExplainer() explain.Explainer {
	return explain.ExplainerFunc(l.explain)
}

// explain returns coef[k][j]*(x[j]-mean[j]) per class, the exact Shapley
// values of each class score under feature independence.
func (l *Linear) explain(ctx context.Context, X mat.Matrix) (explain.Explanation, error) {
	rows, cols := X.Dims()
	if cols != l.NumFeatures() {
		return nil, fmt.Errorf("linear model expects %d features, got %d", l.NumFeatures(), cols)
	}
	centered := mat.DenseCopyOf(X)
	for r := 0; r < rows; r++ {
		floats.Sub(centered.RawRowView(r), l.means)
	}
	out := make(explain.PerClass, l.NumClasses())
	for k := range out {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		m := mat.NewDense(rows, cols, nil)
		w := l.coef.RawRowView(k)
		for r := 0; r < rows; r++ {
			floats.MulTo(m.RawRowView(r), centered.RawRowView(r), w)
		}
		out[k] = m
	}
	return out, nil
}
