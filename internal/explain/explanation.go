// Package explain defines the per-sample attribution contract shared by the
// model-specific explainers and the attribution engine.
//
// Explainers disagree on output shape: some emit a [row, feature, class]
// tensor, some a separate [row, feature] matrix per class, and binary models
// a single [row, feature] matrix. Each shape is its own Explanation type so
// consumers switch on Layout once instead of probing dimensions.
package explain

import (
	"context"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

type Layout uint8

const (
	Layout3D Layout = iota + 1
	LayoutPerClass
	Layout2D
)

func (l Layout) String() string {
	switch l {
	case Layout3D:
		return "3d"
	case LayoutPerClass:
		return "per-class"
	case Layout2D:
		return "2d"
	}
	return fmt.Sprintf("layout(%d)", uint8(l))
}

type Explanation interface {
	Layout() Layout
	Rows() int
}

// Explainer produces signed per-feature contributions for every row of X.
type Explainer interface {
	Explain(ctx context.Context, X mat.Matrix) (Explanation, error)
}

type ExplainerFunc func(ctx context.Context, X mat.Matrix) (Explanation, error)

func (f ExplainerFunc) Explain(ctx context.Context, X mat.Matrix) (Explanation, error) {
	return f(ctx, X)
}

// Tensor3D is a dense [row, feature, class] array.
type Tensor3D struct {
	rows, features, classes int
	data                    []float64
}

func NewTensor3D(rows, features, classes int) *Tensor3D {
	return &Tensor3D{
		rows:     rows,
		features: features,
		classes:  classes,
		data:     make([]float64, rows*features*classes),
	}
}

func (t *Tensor3D) Layout() Layout { return Layout3D }

func (t *Tensor3D) Rows() int { return t.rows }

func (t *Tensor3D) Dims() (rows, features, classes int) {
	return t.rows, t.features, t.classes
}

func (t *Tensor3D) offset(r, f, c int) int {
	if r < 0 || r >= t.rows || f < 0 || f >= t.features || c < 0 || c >= t.classes {
		panic(fmt.Sprintf("explain: index (%d,%d,%d) out of range (%d,%d,%d)", r, f, c, t.rows, t.features, t.classes))
	}
	return (r*t.features+f)*t.classes + c
}

func (t *Tensor3D) At(r, f, c int) float64 { return t.data[t.offset(r, f, c)] }

func (t *Tensor3D) Set(r, f, c int, v float64) { t.data[t.offset(r, f, c)] = v }

func (t *Tensor3D) Add(r, f, c int, v float64) { t.data[t.offset(r, f, c)] += v }

// Slice copies the feature vector of row r for class c.
func (t *Tensor3D) Slice(r, c int) []float64 {
	out := make([]float64, t.features)
	for f := range out {
		out[f] = t.At(r, f, c)
	}
	return out
}

// PerClass holds one [row, feature] matrix per class, indexed by class id.
type PerClass []*mat.Dense

func (p PerClass) Layout() Layout { return LayoutPerClass }

func (p PerClass) Rows() int {
	if len(p) == 0 || p[0] == nil {
		return 0
	}
	r, _ := p[0].Dims()
	return r
}

// Plain is a single [row, feature] matrix, as emitted for binary models.
type Plain struct {
	*mat.Dense
}

func (p Plain) Layout() Layout { return Layout2D }

func (p Plain) Rows() int {
	if p.Dense == nil {
		return 0
	}
	r, _ := p.Dims()
	return r
}
