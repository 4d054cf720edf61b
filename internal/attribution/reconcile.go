package attribution

import (
	"gonum.org/v1/gonum/mat"

	"github.com/Skufu/rxcompass/internal/explain"
)

// Reconcile extracts, for each row, the contribution vector of that row's
// predicted class, whatever layout the explainer produced. Every returned
// vector has exactly width entries (see fitWidth). Rows the explanation does
// not cover, or whose class it lacks, are absent from the map.
func Reconcile(e explain.Explanation, predicted []int, width int) map[int][]float64 {
	switch v := e.(type) {
	case *explain.Tensor3D:
		return reconcile3D(v, predicted, width)
	case explain.PerClass:
		return reconcilePerClass(v, predicted, width)
	case explain.Plain:
		return reconcile2D(v.Dense, predicted, width)
	}
	return map[int][]float64{}
}

func reconcile3D(t *explain.Tensor3D, predicted []int, width int) map[int][]float64 {
	rows, _, classes := t.Dims()
	out := make(map[int][]float64, len(predicted))
	for r, class := range predicted {
		if r >= rows || class < 0 || class >= classes {
			continue
		}
		out[r] = fitWidth(t.Slice(r, class), width)
	}
	return out
}

func reconcilePerClass(p explain.PerClass, predicted []int, width int) map[int][]float64 {
	out := make(map[int][]float64, len(predicted))
	for r, class := range predicted {
		if class < 0 || class >= len(p) || p[class] == nil {
			continue
		}
		if rows, _ := p[class].Dims(); r >= rows {
			continue
		}
		out[r] = fitWidth(mat.Row(nil, r, p[class]), width)
	}
	return out
}

// reconcile2D handles single-output explanations, which carry one vector
// per row regardless of class.
func reconcile2D(d *mat.Dense, predicted []int, width int) map[int][]float64 {
	out := make(map[int][]float64, len(predicted))
	if d == nil {
		return out
	}
	rows, _ := d.Dims()
	for r := range predicted {
		if r >= rows {
			continue
		}
		out[r] = fitWidth(mat.Row(nil, r, d), width)
	}
	return out
}

// fitWidth truncates v to width or pads it with zeros on the right. It
// returns v itself when the length already matches.
func fitWidth(v []float64, width int) []float64 {
	switch {
	case len(v) == width:
		return v
	case len(v) > width:
		return v[:width:width]
	}
	out := make([]float64, width)
	copy(out, v)
	return out
}
