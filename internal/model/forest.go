package model

import (
	"context"
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/Skufu/rxcompass/internal/explain"
)

type ForestSpec struct {
	NFeatures int        `json:"n_features"`
	NClasses  int        `json:"n_classes"`
	Trees     []TreeSpec `json:"trees"`
}

type TreeSpec struct {
	Nodes []Node `json:"nodes"`
}

// Node is one CART node. Leaves have Left < 0 and carry a per-class Value;
// internal nodes send x[Feature] <= Threshold to Left. Cover is the number
// (or weight) of training samples that reached the node.
type Node struct {
	Feature   int       `json:"feature"`
	Threshold float64   `json:"threshold"`
	Left      int       `json:"left"`
	Right     int       `json:"right"`
	Cover     float64   `json:"cover"`
	Impurity  float64   `json:"impurity,omitempty"`
	Value     []float64 `json:"value,omitempty"`
}

func (n *Node) isLeaf() bool { return n.Left < 0 }

// Forest averages the class distributions of its trees' leaves.
type Forest struct {
	features    int
	classes     int
	trees       [][]Node
	importances []float64
}

func NewForest(spec ForestSpec) (*Forest, error) {
	if spec.NFeatures <= 0 || spec.NClasses <= 0 {
		return nil, fmt.Errorf("forest needs positive n_features and n_classes, got %d and %d", spec.NFeatures, spec.NClasses)
	}
	if len(spec.Trees) == 0 {
		return nil, fmt.Errorf("forest has no trees")
	}
	f := &Forest{features: spec.NFeatures, classes: spec.NClasses}
	for t, tree := range spec.Trees {
		nodes, err := validateTree(tree.Nodes, spec.NFeatures, spec.NClasses)
		if err != nil {
			return nil, fmt.Errorf("tree %d: %w", t, err)
		}
		f.trees = append(f.trees, nodes)
	}
	f.importances = impurityImportances(f.trees, f.features)
	return f, nil
}

// validateTree checks node references and normalizes leaf values to
// probabilities. Children must come after their parent, which rules out
// cycles.
func validateTree(in []Node, features, classes int) ([]Node, error) {
	if len(in) == 0 {
		return nil, fmt.Errorf("no nodes")
	}
	nodes := make([]Node, len(in))
	copy(nodes, in)
	for i := range nodes {
		n := &nodes[i]
		if n.Cover <= 0 {
			return nil, fmt.Errorf("node %d: cover must be positive", i)
		}
		if n.isLeaf() {
			if len(n.Value) != classes {
				return nil, fmt.Errorf("leaf %d: %d values for %d classes", i, len(n.Value), classes)
			}
			v := append([]float64(nil), n.Value...)
			if sum := floats.Sum(v); sum > 0 {
				floats.Scale(1/sum, v)
			}
			n.Value = v
			continue
		}
		if n.Feature < 0 || n.Feature >= features {
			return nil, fmt.Errorf("node %d: feature %d out of range", i, n.Feature)
		}
		if n.Left <= i || n.Left >= len(nodes) || n.Right <= i || n.Right >= len(nodes) {
			return nil, fmt.Errorf("node %d: children %d/%d invalid", i, n.Left, n.Right)
		}
	}
	return nodes, nil
}

// impurityImportances is the mean decrease in impurity, normalized per tree
// and then across the forest. It returns nil when the artifact carries no
// impurity information.
func impurityImportances(trees [][]Node, features int) []float64 {
	total := make([]float64, features)
	for _, nodes := range trees {
		tree := make([]float64, features)
		for i := range nodes {
			n := &nodes[i]
			if n.isLeaf() {
				continue
			}
			l, r := &nodes[n.Left], &nodes[n.Right]
			tree[n.Feature] += n.Cover*n.Impurity - l.Cover*l.Impurity - r.Cover*r.Impurity
		}
		if sum := floats.Sum(tree); sum > 0 {
			floats.Scale(1/sum, tree)
			floats.Add(total, tree)
		}
	}
	sum := floats.Sum(total)
	if sum <= 0 {
		return nil
	}
	floats.Scale(1/sum, total)
	return total
}

func (f *Forest) NumFeatures() int { return f.features }

func (f *Forest) NumClasses() int { return f.classes }

func (f *Forest) FeatureImportances() []float64 {
	if f.importances == nil {
		return nil
	}
	return append([]float64(nil), f.importances...)
}

func (f *Forest) PredictProba(X mat.Matrix) (*mat.Dense, error) {
	rows, cols := X.Dims()
	if cols != f.features {
		return nil, fmt.Errorf("forest expects %d features, got %d", f.features, cols)
	}
	out := mat.NewDense(rows, f.classes, nil)
	x := make([]float64, cols)
	scale := 1 / float64(len(f.trees))
	for r := 0; r < rows; r++ {
		mat.Row(x, r, X)
		dst := out.RawRowView(r)
		for _, nodes := range f.trees {
			floats.AddScaled(dst, scale, leafFor(nodes, x).Value)
		}
	}
	return out, nil
}

func leafFor(nodes []Node, x []float64) *Node {
	n := &nodes[0]
	for !n.isLeaf() {
		if x[n.Feature] <= n.Threshold {
			n = &nodes[n.Left]
		} else {
			n = &nodes[n.Right]
		}
	}
	return n
}

// ExpectedValue is the cover-weighted mean leaf distribution, i.e. the
// forest output that TreeSHAP contributions are measured against.
func (f *Forest) ExpectedValue() []float64 {
	out := make([]float64, f.classes)
	for _, nodes := range f.trees {
		floats.AddScaled(out, 1/float64(len(f.trees)), expectedValue(nodes, 0))
	}
	return out
}

func expectedValue(nodes []Node, i int) []float64 {
	n := &nodes[i]
	if n.isLeaf() {
		return n.Value
	}
	l, r := &nodes[n.Left], &nodes[n.Right]
	lv, rv := expectedValue(nodes, n.Left), expectedValue(nodes, n.Right)
	out := make([]float64, len(lv))
	floats.AddScaled(out, l.Cover/n.Cover, lv)
	floats.AddScaled(out, r.Cover/n.Cover, rv)
	return out
}

func (f *Forest) NativeExplainer() explain.Explainer {
	return explain.ExplainerFunc(f.explain)
}

// explain runs TreeSHAP over every tree and averages, producing a
// [row, feature, class] tensor.
func (f *Forest) explain(ctx context.Context, X mat.Matrix) (explain.Explanation, error) {
	rows, cols := X.Dims()
	if cols != f.features {
		return nil, fmt.Errorf("forest expects %d features, got %d", f.features, cols)
	}
	out := explain.NewTensor3D(rows, f.features, f.classes)
	x := make([]float64, cols)
	phi := make([][]float64, f.features)
	for i := range phi {
		phi[i] = make([]float64, f.classes)
	}
	scale := 1 / float64(len(f.trees))
	for r := 0; r < rows; r++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		mat.Row(x, r, X)
		for i := range phi {
			clear(phi[i])
		}
		for _, nodes := range f.trees {
			treeSHAP(nodes, x, phi)
		}
		for j := range phi {
			for c, v := range phi[j] {
				out.Set(r, j, c, v*scale)
			}
		}
	}
	return out, nil
}
