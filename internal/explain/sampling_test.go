package explain

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// additiveProba is a two-class model whose positive probability is linear in
// the inputs, so the exact Shapley value of feature f is 0.05*w[f]*x[f].
func additiveProba(w []float64) ProbaFunc {
	return func(X mat.Matrix) (*mat.Dense, error) {
		rows, cols := X.Dims()
		out := mat.NewDense(rows, 2, nil)
		for r := 0; r < rows; r++ {
			p := 0.1
			for c := 0; c < cols; c++ {
				p += 0.05 * w[c] * X.At(r, c)
			}
			out.Set(r, 0, 1-p)
			out.Set(r, 1, p)
		}
		return out, nil
	}
}

// interactionProba makes the positive class fire only when features 0 and 1
// are both present, so the estimate depends on permutation order.
func interactionProba(X mat.Matrix) (*mat.Dense, error) {
	rows, _ := X.Dims()
	out := mat.NewDense(rows, 2, nil)
	for r := 0; r < rows; r++ {
		p := 0.0
		if X.At(r, 0) > 0 && X.At(r, 1) > 0 {
			p = 1
		}
		out.Set(r, 0, 1-p)
		out.Set(r, 1, p)
	}
	return out, nil
}

func TestSamplingAdditiveModelIsExact(t *testing.T) {
	w := []float64{1, 2, 3, 4}
	X := mat.NewDense(2, 4, []float64{
		1, 0, 1, 0,
		0, 1, 0, 1,
	})
	s := &Sampling{Proba: additiveProba(w), Permutations: 5, Seed: 7}

	expl, err := s.Explain(context.Background(), X)
	require.NoError(t, err)
	require.Equal(t, Layout3D, expl.Layout())

	tensor := expl.(*Tensor3D)
	rows, features, classes := tensor.Dims()
	assert.Equal(t, []int{2, 4, 2}, []int{rows, features, classes})
	for r := 0; r < 2; r++ {
		for f := 0; f < 4; f++ {
			want := 0.05 * w[f] * X.At(r, f)
			assert.InDelta(t, want, tensor.At(r, f, 1), 1e-12, "row %d feature %d", r, f)
			assert.InDelta(t, -want, tensor.At(r, f, 0), 1e-12)
		}
	}
}

func TestSamplingEfficiency(t *testing.T) {
	X := mat.NewDense(1, 3, []float64{1, 1, 1})
	s := &Sampling{Proba: interactionProba, Permutations: 32, Seed: 1}

	expl, err := s.Explain(context.Background(), X)
	require.NoError(t, err)
	tensor := expl.(*Tensor3D)

	sum := 0.0
	for f := 0; f < 3; f++ {
		sum += tensor.At(0, f, 1)
	}
	assert.InDelta(t, 1.0, sum, 1e-12)
	assert.Zero(t, tensor.At(0, 2, 1))
	assert.Greater(t, tensor.At(0, 0, 1), 0.0)
	assert.Greater(t, tensor.At(0, 1, 1), 0.0)
}

func TestSamplingDeterministic(t *testing.T) {
	X := mat.NewDense(1, 3, []float64{1, 1, 0})
	s := &Sampling{Proba: interactionProba, Permutations: 3, Seed: 99}

	a, err := s.Explain(context.Background(), X)
	require.NoError(t, err)
	b, err := s.Explain(context.Background(), X)
	require.NoError(t, err)
	assert.Equal(t, a.(*Tensor3D).Slice(0, 1), b.(*Tensor3D).Slice(0, 1))
}

func TestSamplingBaselineRowsAreZero(t *testing.T) {
	X := mat.NewDense(2, 3, []float64{0, 0, 0, 1, 0, 0})
	s := &Sampling{Proba: additiveProba([]float64{1, 1, 1}), Permutations: 2}

	expl, err := s.Explain(context.Background(), X)
	require.NoError(t, err)
	tensor := expl.(*Tensor3D)
	assert.Equal(t, []float64{0, 0, 0}, tensor.Slice(0, 1))
	assert.InDelta(t, 0.05, tensor.At(1, 0, 1), 1e-12)
}

func TestSamplingHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	X := mat.NewDense(1, 2, []float64{1, 1})
	_, err := (&Sampling{Proba: interactionProba, Permutations: 4}).Explain(ctx, X)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSamplingPropagatesModelErrors(t *testing.T) {
	boom := errors.New("boom")
	s := &Sampling{Proba: func(mat.Matrix) (*mat.Dense, error) { return nil, boom }}

	_, err := s.Explain(context.Background(), mat.NewDense(1, 2, []float64{1, 0}))
	assert.ErrorIs(t, err, boom)

	_, err = (&Sampling{}).Explain(context.Background(), mat.NewDense(1, 1, nil))
	assert.Error(t, err)
}

func TestTensor3DIndexing(t *testing.T) {
	tensor := NewTensor3D(2, 3, 2)
	tensor.Set(1, 2, 1, 4)
	tensor.Add(1, 2, 1, 0.5)

	assert.Equal(t, 4.5, tensor.At(1, 2, 1))
	assert.Equal(t, []float64{0, 0, 4.5}, tensor.Slice(1, 1))
	assert.Panics(t, func() { tensor.At(2, 0, 0) })
	assert.Equal(t, "per-class", PerClass{}.Layout().String())
	assert.Equal(t, 0, Plain{}.Rows())
}
