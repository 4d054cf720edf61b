package model

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/maxmind/xgbshap"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/Skufu/rxcompass/internal/explain"
)

// XGBoostSpec embeds one binary:logistic booster per class (one-vs-rest) in
// XGBoost's JSON model format. A single booster is a binary model whose
// output is the probability of class 1.
type XGBoostSpec struct {
	NFeatures  int               `json:"n_features"`
	NtreeLimit int               `json:"ntree_limit,omitempty"`
	Boosters   []json.RawMessage `json:"boosters"`
}

// contributor is the part of *xgbshap.Predictor this package uses.
// PredictContributions returns one value per feature followed by the bias.
type contributor interface {
	PredictContributions(features []*float32) ([]float32, error)
}

type XGBoostOVR struct {
	features int
	boosters []contributor
}

func NewXGBoostOVR(spec XGBoostSpec) (*XGBoostOVR, error) {
	if spec.NFeatures <= 0 {
		return nil, fmt.Errorf("xgboost model needs positive n_features")
	}
	if len(spec.Boosters) == 0 {
		return nil, fmt.Errorf("xgboost model has no boosters")
	}
	m := &XGBoostOVR{features: spec.NFeatures}
	for i, raw := range spec.Boosters {
		p, err := loadBooster(raw, spec.NtreeLimit)
		if err != nil {
			return nil, fmt.Errorf("booster %d: %w", i, err)
		}
		m.boosters = append(m.boosters, p)
	}
	return m, nil
}

// loadBooster stages the embedded booster in a temp file because xgbshap
// loads models by path.
func loadBooster(raw json.RawMessage, ntreeLimit int) (contributor, error) {
	f, err := os.CreateTemp("", "rxcompass-booster-*.json")
	if err != nil {
		return nil, fmt.Errorf("stage booster: %w", err)
	}
	defer os.Remove(f.Name())
	if _, err := f.Write(raw); err != nil {
		f.Close()
		return nil, fmt.Errorf("stage booster: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("stage booster: %w", err)
	}
	p, err := xgbshap.NewPredictor(f.Name(), xgbshap.NtreeLimit(ntreeLimit))
	if err != nil {
		return nil, fmt.Errorf("load booster: %w", err)
	}
	return p, nil
}

func (m *XGBoostOVR) NumFeatures() int { return m.features }

func (m *XGBoostOVR) NumClasses() int {
	if len(m.boosters) == 1 {
		return 2
	}
	return len(m.boosters)
}

// contributions evaluates every booster on every row. The result is
// indexed [booster][row] and each vector keeps the trailing bias term.
func (m *XGBoostOVR) contributions(ctx context.Context, X mat.Matrix) ([][][]float64, error) {
	rows, cols := X.Dims()
	if cols != m.features {
		return nil, fmt.Errorf("xgboost model expects %d features, got %d", m.features, cols)
	}
	out := make([][][]float64, len(m.boosters))
	for b := range out {
		out[b] = make([][]float64, rows)
	}
	features := make([]float32, cols)
	ptrs := make([]*float32, cols)
	for r := 0; r < rows; r++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for j := range features {
			features[j] = float32(X.At(r, j))
			ptrs[j] = &features[j]
		}
		for b, booster := range m.boosters {
			contribs, err := booster.PredictContributions(ptrs)
			if err != nil {
				return nil, fmt.Errorf("booster %d row %d: %w", b, r, err)
			}
			if len(contribs) != cols+1 {
				return nil, fmt.Errorf("booster %d returned %d contributions for %d features", b, len(contribs), cols)
			}
			v := make([]float64, len(contribs))
			for j, c := range contribs {
				v[j] = float64(c)
			}
			out[b][r] = v
		}
	}
	return out, nil
}

// PredictProba uses SHAP additivity: the margin of each booster is the sum
// of its contributions including the bias.
func (m *XGBoostOVR) PredictProba(X mat.Matrix) (*mat.Dense, error) {
	contribs, err := m.contributions(context.Background(), X)
	if err != nil {
		return nil, err
	}
	rows, _ := X.Dims()
	out := mat.NewDense(rows, m.NumClasses(), nil)
	for r := 0; r < rows; r++ {
		row := out.RawRowView(r)
		if len(m.boosters) == 1 {
			p := sigmoid(floats.Sum(contribs[0][r]))
			row[0], row[1] = 1-p, p
			continue
		}
		for b := range m.boosters {
			row[b] = sigmoid(floats.Sum(contribs[b][r]))
		}
		if sum := floats.Sum(row); sum > 0 {
			floats.Scale(1/sum, row)
		}
	}
	return out, nil
}

func (m *XGBoostOVR) NativeExplainer() explain.Explainer {
	return explain.ExplainerFunc(m.explain)
}

// explain reports margin-space contributions without the bias: per class
// for one-vs-rest models, a single matrix for binary ones.
func (m *XGBoostOVR) explain(ctx context.Context, X mat.Matrix) (explain.Explanation, error) {
	contribs, err := m.contributions(ctx, X)
	if err != nil {
		return nil, err
	}
	rows, cols := X.Dims()
	mats := make([]*mat.Dense, len(m.boosters))
	for b := range mats {
		d := mat.NewDense(rows, cols, nil)
		for r := 0; r < rows; r++ {
			d.SetRow(r, contribs[b][r][:cols])
		}
		mats[b] = d
	}
	if len(mats) == 1 {
		return explain.Plain{Dense: mats[0]}, nil
	}
	return explain.PerClass(mats), nil
}
