package predict

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/Skufu/rxcompass/internal/apperr"
	"github.com/Skufu/rxcompass/internal/attribution"
	"github.com/Skufu/rxcompass/internal/explain"
	"github.com/Skufu/rxcompass/internal/labels"
	"github.com/Skufu/rxcompass/internal/model"
)

const width = 82

// fixedModel returns the same probability row for every patient, or a
// per-row row when rows is set.
type fixedModel struct {
	features int
	proba    []float64
	rows     [][]float64
	panics   bool
}

func (m fixedModel) NumFeatures() int { return m.features }

func (m fixedModel) NumClasses() int { return len(m.proba) }

func (m fixedModel) PredictProba(X mat.Matrix) (*mat.Dense, error) {
	if m.panics {
		panic("index out of range")
	}
	r, _ := X.Dims()
	out := mat.NewDense(r, len(m.proba), nil)
	for i := 0; i < r; i++ {
		if m.rows != nil {
			out.SetRow(i, m.rows[i])
		} else {
			out.SetRow(i, m.proba)
		}
	}
	return out, nil
}

func csvInput(cols int, rows ...[]int) string {
	var b strings.Builder
	for j := 0; j < cols; j++ {
		if j > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "s%d", j)
	}
	b.WriteByte('\n')
	for _, present := range rows {
		vals := make([]string, cols)
		for j := range vals {
			vals[j] = "0"
		}
		for _, p := range present {
			vals[p] = "1"
		}
		b.WriteString(strings.Join(vals, ","))
		b.WriteByte('\n')
	}
	return b.String()
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func newService(t *testing.T, clf model.Classifier, explainer explain.Explainer) *Service {
	t.Helper()
	facade := model.New(clf)
	return NewService(Options{
		Model: facade,
		Codec: labels.Fit([]string{"Flu", "Measles"}),
		Engine: attribution.NewEngine(attribution.Config{
			Explainer: explainer,
			Global:    GlobalImportance(facade),
			Logger:    quietLogger(),
		}),
		Logger: quietLogger(),
	})
}

func TestPredictAllZeroIndicators(t *testing.T) {
	phi := func(_ context.Context, X mat.Matrix) (explain.Explanation, error) {
		rows, cols := X.Dims()
		out := explain.NewTensor3D(rows, cols, 2)
		for r := 0; r < rows; r++ {
			out.Set(r, 20, 0, 3)
			out.Set(r, 21, 0, -1)
		}
		return out, nil
	}
	svc := newService(t, fixedModel{features: width, proba: []float64{0.9, 0.1}}, explain.ExplainerFunc(phi))

	resp, err := svc.Predict(context.Background(), strings.NewReader(csvInput(width, nil, nil, nil)))
	require.NoError(t, err)

	require.Equal(t, 3, resp.TotalPatients)
	require.Len(t, resp.Predictions, 3)
	for i, p := range resp.Predictions {
		assert.Equal(t, i+1, p.PatientID)
		assert.Equal(t, "Flu", p.Prediction)
		assert.Equal(t, 90.0, p.Confidence)
		assert.Equal(t, attribution.SourcePatient, p.Attribution)
		require.Len(t, p.TopFeatures, attribution.TopK)
		assert.Equal(t, attribution.FeatureContribution{Feature: "s20", Importance: 75}, p.TopFeatures[0])
		assert.Equal(t, attribution.FeatureContribution{Feature: "s21", Importance: 25}, p.TopFeatures[1])
	}
}

func TestPredictConfidenceRounding(t *testing.T) {
	rows := [][]float64{
		{0.87654, 0.12346},
		{0.2, 0.8},
		{0.333333, 0.666667},
	}
	svc := newService(t, fixedModel{features: width, proba: []float64{0, 0}, rows: rows}, nil)

	resp, err := svc.Predict(context.Background(), strings.NewReader(csvInput(width, []int{1}, []int{2}, []int{3})))
	require.NoError(t, err)

	want := []float64{87.65, 80, 66.67}
	labelsWant := []string{"Flu", "Measles", "Measles"}
	for i, p := range resp.Predictions {
		assert.Equal(t, want[i], p.Confidence, "row %d", i)
		assert.Equal(t, labelsWant[i], p.Prediction)
	}
}

func TestPredictExplainerFaultStillSucceeds(t *testing.T) {
	broken := explain.ExplainerFunc(func(context.Context, mat.Matrix) (explain.Explanation, error) {
		return nil, errors.New("numerical failure")
	})
	svc := newService(t, fixedModel{features: width, proba: []float64{0.6, 0.4}}, broken)

	resp, err := svc.Predict(context.Background(), strings.NewReader(csvInput(width, []int{1, 2}, []int{50}, nil)))
	require.NoError(t, err)

	first := resp.Predictions[0].TopFeatures
	for _, p := range resp.Predictions {
		assert.Equal(t, attribution.SourceGlobal, p.Attribution)
		assert.Equal(t, first, p.TopFeatures)
	}
	// fixedModel has no introspection, so the fallback is the neutral
	// uniform ranking: first ten columns at 100.
	assert.Equal(t, "s0", first[0].Feature)
	assert.Equal(t, 100.0, first[0].Importance)
}

func TestPredictSamplingExplainerEndToEnd(t *testing.T) {
	forest, err := model.NewForest(model.ForestSpec{
		NFeatures: width,
		NClasses:  2,
		Trees: []model.TreeSpec{{Nodes: []model.Node{
			{Feature: 4, Threshold: 0.5, Left: 1, Right: 2, Cover: 10},
			{Left: -1, Right: -1, Cover: 5, Value: []float64{1, 0}},
			{Left: -1, Right: -1, Cover: 5, Value: []float64{0, 1}},
		}}},
	})
	require.NoError(t, err)
	facade := model.New(forest)

	for _, mode := range []model.ExplainerMode{model.ExplainerAuto, model.ExplainerSampling} {
		t.Run(string(mode), func(t *testing.T) {
			svc := NewService(Options{
				Model: facade,
				Codec: labels.Fit([]string{"Flu", "Measles"}),
				Engine: attribution.NewEngine(attribution.Config{
					Explainer: facade.Explainer(mode, 8, 42),
					Global:    GlobalImportance(facade),
					Logger:    quietLogger(),
				}),
				Logger: quietLogger(),
			})

			resp, err := svc.Predict(context.Background(), strings.NewReader(csvInput(width, []int{4, 9}, []int{9})))
			require.NoError(t, err)

			measles := resp.Predictions[0]
			assert.Equal(t, "Measles", measles.Prediction)
			assert.Equal(t, 100.0, measles.Confidence)
			assert.Equal(t, attribution.SourcePatient, measles.Attribution)
			assert.Equal(t, "s4", measles.TopFeatures[0].Feature)
			assert.InDelta(t, 100, measles.TopFeatures[0].Importance, 1e-9)

			flu := resp.Predictions[1]
			assert.Equal(t, "Flu", flu.Prediction)
			assert.NotEqual(t, measles.TopFeatures, flu.TopFeatures)
		})
	}
}

func TestPredictErrors(t *testing.T) {
	ok := fixedModel{features: width, proba: []float64{0.9, 0.1}}
	tests := []struct {
		name  string
		svc   func(t *testing.T) *Service
		input string
		kind  apperr.Kind
		msg   string
	}{
		{
			name:  "model unavailable",
			svc:   func(*testing.T) *Service { return NewService(Options{Model: model.Unavailable(errors.New("missing")), Codec: labels.Fit([]string{"Flu"})}) },
			input: csvInput(width, nil),
			kind:  apperr.Unavailable,
			msg:   "Model not loaded",
		},
		{
			name:  "codec unavailable",
			svc:   func(*testing.T) *Service { return NewService(Options{Model: model.New(ok), CodecErr: errors.New("bad yaml")}) },
			input: csvInput(width, nil),
			kind:  apperr.Unavailable,
			msg:   "Model not loaded",
		},
		{
			name:  "too few columns",
			svc:   func(t *testing.T) *Service { return newService(t, ok, nil) },
			input: csvInput(81, nil),
			kind:  apperr.Validation,
			msg:   "at least 82 features",
		},
		{
			name:  "garbage",
			svc:   func(t *testing.T) *Service { return newService(t, ok, nil) },
			input: "\"unterminated",
			kind:  apperr.Format,
		},
		{
			name:  "infinite cell",
			svc:   func(t *testing.T) *Service { return newService(t, ok, nil) },
			input: csvInput(width) + "Inf" + strings.Repeat(",0", width-1) + "\n",
			kind:  apperr.Format,
			msg:   "s0",
		},
		{
			name:  "feature width mismatch",
			svc:   func(t *testing.T) *Service { return newService(t, ok, nil) },
			input: csvInput(width+1, nil),
			kind:  apperr.Processing,
			msg:   "model expects 82 features",
		},
		{
			name:  "class outside codec",
			svc:   func(t *testing.T) *Service { return newService(t, fixedModel{features: width, proba: []float64{0, 0, 1}}, nil) },
			input: csvInput(width, nil),
			kind:  apperr.Processing,
			msg:   "Error processing file",
		},
		{
			name:  "model panics",
			svc:   func(t *testing.T) *Service { return newService(t, fixedModel{features: width, proba: []float64{1}, panics: true}, nil) },
			input: csvInput(width, nil),
			kind:  apperr.Processing,
			msg:   "Error processing file",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.svc(t).Predict(context.Background(), strings.NewReader(tt.input))
			require.Error(t, err)
			assert.Equal(t, tt.kind, apperr.KindOf(err))
			assert.Contains(t, apperr.Message(err), tt.msg)
		})
	}
}

func TestReady(t *testing.T) {
	svc := newService(t, fixedModel{features: width, proba: []float64{1}}, nil)
	assert.NoError(t, svc.Ready())

	svc = NewService(Options{})
	assert.Equal(t, apperr.Unavailable, apperr.KindOf(svc.Ready()))
}
