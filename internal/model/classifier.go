// Package model loads the trained disease classifier and exposes the
// prediction, introspection and explanation hooks the service needs.
package model

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/Skufu/rxcompass/internal/apperr"
	"github.com/Skufu/rxcompass/internal/artifact"
	"github.com/Skufu/rxcompass/internal/explain"
)

// Classifier is the minimum a trained model must provide.
type Classifier interface {
	NumFeatures() int
	NumClasses() int
	PredictProba(X mat.Matrix) (*mat.Dense, error)
}

// FeatureImportancer is implemented by models carrying a native
// per-feature importance vector.
type FeatureImportancer interface {
	FeatureImportances() []float64
}

// Coefficienter is implemented by linear models; rows are classes.
type Coefficienter interface {
	Coefficients() [][]float64
}

// NativeExplainer is implemented by models with an exact, model-specific
// per-sample attribution.
type NativeExplainer interface {
	NativeExplainer() explain.Explainer
}

type ImportanceSource string

const (
	ImportanceNative       ImportanceSource = "feature_importances"
	ImportanceCoefficients ImportanceSource = "coefficients"
	// ImportanceUniform is a neutral all-ones vector used when the model
	// offers no introspection. It carries no importance signal.
	ImportanceUniform ImportanceSource = "uniform"
)

type ExplainerMode string

const (
	ExplainerAuto     ExplainerMode = "auto"
	ExplainerSampling ExplainerMode = "sampling"
	ExplainerOff      ExplainerMode = "off"
)

func ParseExplainerMode(s string) (ExplainerMode, error) {
	switch m := ExplainerMode(s); m {
	case ExplainerAuto, ExplainerSampling, ExplainerOff:
		return m, nil
	}
	return "", fmt.Errorf("unknown explainer mode %q (want auto, sampling or off)", s)
}

// Facade wraps a loaded Classifier. A Facade whose artifact failed to load
// stays usable as a value but reports apperr.Unavailable from every call.
type Facade struct {
	clf          Classifier
	kind         string
	featureNames []string
	importances  []float64
	err          error
}

// New wraps an in-memory classifier.
func New(clf Classifier) *Facade {
	return &Facade{clf: clf, kind: fmt.Sprintf("%T", clf)}
}

// Load reads and decodes the named artifact. It never returns nil; on failure
// the returned Facade is unavailable and Err describes why.
func Load(ctx context.Context, src artifact.Source, name string) *Facade {
	data, err := src.Open(ctx, name)
	if err != nil {
		return Unavailable(err)
	}
	f, err := Decode(data)
	if err != nil {
		return Unavailable(fmt.Errorf("decode %s: %w", name, err))
	}
	return f
}

func Unavailable(cause error) *Facade {
	return &Facade{err: apperr.Wrap(apperr.Unavailable, cause, "Model not loaded")}
}

func (f *Facade) Err() error { return f.err }

func (f *Facade) Kind() string { return f.kind }

func (f *Facade) FeatureNames() []string { return f.featureNames }

func (f *Facade) NumFeatures() int {
	if f.err != nil {
		return 0
	}
	return f.clf.NumFeatures()
}

func (f *Facade) NumClasses() int {
	if f.err != nil {
		return 0
	}
	return f.clf.NumClasses()
}

func (f *Facade) checkInput(X mat.Matrix) error {
	if f.err != nil {
		return f.err
	}
	if _, cols := X.Dims(); cols != f.clf.NumFeatures() {
		return apperr.New(apperr.Processing,
			fmt.Sprintf("model expects %d features, input has %d", f.clf.NumFeatures(), cols))
	}
	return nil
}

func (f *Facade) PredictProba(X mat.Matrix) (*mat.Dense, error) {
	if err := f.checkInput(X); err != nil {
		return nil, err
	}
	proba, err := f.clf.PredictProba(X)
	if err != nil {
		return nil, apperr.Wrap(apperr.Processing, err, "prediction failed")
	}
	return proba, nil
}

// Predict returns the class probabilities and the argmax class of each row.
func (f *Facade) Predict(X mat.Matrix) (*mat.Dense, []int, error) {
	proba, err := f.PredictProba(X)
	if err != nil {
		return nil, nil, err
	}
	return proba, ArgMax(proba), nil
}

// ArgMax returns the highest-probability class per row; ties go to the
// lowest class id.
func ArgMax(proba *mat.Dense) []int {
	rows, _ := proba.Dims()
	out := make([]int, rows)
	for r := range out {
		out[r] = floats.MaxIdx(proba.RawRowView(r))
	}
	return out
}

// GlobalImportance returns one weight per feature. Preference order: an
// importance vector shipped with the artifact or native to the model, then
// the mean absolute coefficient across classes, then all ones.
func (f *Facade) GlobalImportance() ([]float64, ImportanceSource) {
	n := f.NumFeatures()
	if len(f.importances) == n && n > 0 {
		return append([]float64(nil), f.importances...), ImportanceNative
	}
	if f.err == nil {
		if fi, ok := f.clf.(FeatureImportancer); ok {
			if v := fi.FeatureImportances(); len(v) == n {
				return v, ImportanceNative
			}
		}
		if lc, ok := f.clf.(Coefficienter); ok {
			if v := meanAbsCoefficients(lc.Coefficients(), n); v != nil {
				return v, ImportanceCoefficients
			}
		}
	}
	ones := make([]float64, n)
	for i := range ones {
		ones[i] = 1
	}
	return ones, ImportanceUniform
}

func meanAbsCoefficients(coef [][]float64, n int) []float64 {
	if len(coef) == 0 {
		return nil
	}
	out := make([]float64, n)
	for _, row := range coef {
		if len(row) != n {
			return nil
		}
		for j, w := range row {
			out[j] += math.Abs(w)
		}
	}
	floats.Scale(1/float64(len(coef)), out)
	return out
}

// Explainer picks the per-sample explainer for mode. Auto prefers the
// model's exact explainer and falls back to permutation sampling. It
// returns nil when attribution is switched off or the model is unavailable.
func (f *Facade) Explainer(mode ExplainerMode, permutations int, seed uint64) explain.Explainer {
	if f.err != nil || mode == ExplainerOff {
		return nil
	}
	if mode == ExplainerAuto {
		if ne, ok := f.clf.(NativeExplainer); ok {
			if e := ne.NativeExplainer(); e != nil {
				return e
			}
		}
	}
	return &explain.Sampling{
		Proba:        f.clf.PredictProba,
		Permutations: permutations,
		Seed:         seed,
	}
}
