package explain

import (
	"context"
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
)

// ProbaFunc returns per-row class probabilities for X.
type ProbaFunc func(X mat.Matrix) (*mat.Dense, error)

// Sampling estimates Shapley values by averaging marginal contributions over
// random feature orderings, starting from Baseline (all zeros when nil). Only
// features whose value differs from the baseline are permuted; the others
// contribute exactly zero. Each row draws from its own generator seeded by
// (Seed, row), so results do not depend on batch composition.
type Sampling struct {
	Proba        ProbaFunc
	Permutations int
	Seed         uint64
	Baseline     []float64
}

func (s *Sampling) Explain(ctx context.Context, X mat.Matrix) (Explanation, error) {
	if s.Proba == nil {
		return nil, fmt.Errorf("sampling explainer has no probability function")
	}
	perms := s.Permutations
	if perms <= 0 {
		perms = 1
	}
	rows, features := X.Dims()
	baseline := s.Baseline
	if baseline == nil {
		baseline = make([]float64, features)
	}
	if len(baseline) != features {
		return nil, fmt.Errorf("baseline has %d features, input has %d", len(baseline), features)
	}

	var out *Tensor3D
	x := make([]float64, features)
	for r := 0; r < rows; r++ {
		mat.Row(x, r, X)

		var varying []int
		for f := range x {
			if x[f] != baseline[f] {
				varying = append(varying, f)
			}
		}

		if len(varying) == 0 {
			if out == nil {
				classes, err := s.numClasses(baseline)
				if err != nil {
					return nil, err
				}
				out = NewTensor3D(rows, features, classes)
			}
			continue
		}

		rng := rand.New(rand.NewPCG(s.Seed, uint64(r)))
		walk := mat.NewDense(len(varying)+1, features, nil)
		for p := 0; p < perms; p++ {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			order := rng.Perm(len(varying))

			walk.SetRow(0, baseline)
			for k, idx := range order {
				walk.SetRow(k+1, walk.RawRowView(k))
				walk.Set(k+1, varying[idx], x[varying[idx]])
			}

			proba, err := s.Proba(walk)
			if err != nil {
				return nil, fmt.Errorf("row %d: %w", r, err)
			}
			_, classes := proba.Dims()
			if out == nil {
				out = NewTensor3D(rows, features, classes)
			}
			if _, _, want := out.Dims(); want != classes {
				return nil, fmt.Errorf("row %d: model returned %d classes, expected %d", r, classes, want)
			}
			for k, idx := range order {
				f := varying[idx]
				for c := 0; c < classes; c++ {
					out.Add(r, f, c, (proba.At(k+1, c)-proba.At(k, c))/float64(perms))
				}
			}
		}
	}
	if out == nil {
		return NewTensor3D(rows, features, 0), nil
	}
	return out, nil
}

func (s *Sampling) numClasses(baseline []float64) (int, error) {
	proba, err := s.Proba(mat.NewDense(1, len(baseline), append([]float64(nil), baseline...)))
	if err != nil {
		return 0, err
	}
	_, classes := proba.Dims()
	return classes, nil
}
