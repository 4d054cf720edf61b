package model

// Path-dependent TreeSHAP (Lundberg, Erion & Lee, "Consistent Individualized
// Feature Attribution for Tree Ensembles", algorithm 2). Contributions are
// exact Shapley values of the tree output with missing features
// marginalized by training cover.

type pathElement struct {
	feature int
	zero    float64 // fraction of cover flowing this way when the feature is unknown
	one     float64 // 1 if x follows this branch, 0 otherwise
	weight  float64
}

// treeSHAP adds the contributions of one tree for input x to phi[feature][class].
func treeSHAP(nodes []Node, x []float64, phi [][]float64) {
	path := make([]pathElement, 0, 32)
	treeSHAPRecurse(nodes, x, phi, 0, path, 0, 1, 1, -1)
}

func treeSHAPRecurse(nodes []Node, x []float64, phi [][]float64, i int,
	parent []pathElement, depth int, zero, one float64, feature int) {

	path := make([]pathElement, depth+1)
	copy(path, parent[:depth])
	extendPath(path, depth, zero, one, feature)

	n := &nodes[i]
	if n.isLeaf() {
		for k := 1; k <= depth; k++ {
			w := unwoundPathSum(path, depth, k)
			el := path[k]
			scale := w * (el.one - el.zero)
			for c, v := range n.Value {
				phi[el.feature][c] += scale * v
			}
		}
		return
	}

	hot, cold := n.Left, n.Right
	if x[n.Feature] > n.Threshold {
		hot, cold = cold, hot
	}
	hotZero := nodes[hot].Cover / n.Cover
	coldZero := nodes[cold].Cover / n.Cover

	incomingZero, incomingOne := 1.0, 1.0
	k := 0
	for ; k <= depth; k++ {
		if path[k].feature == n.Feature {
			break
		}
	}
	if k <= depth {
		incomingZero, incomingOne = path[k].zero, path[k].one
		unwindPath(path, depth, k)
		depth--
	}

	treeSHAPRecurse(nodes, x, phi, hot, path, depth+1, hotZero*incomingZero, incomingOne, n.Feature)
	treeSHAPRecurse(nodes, x, phi, cold, path, depth+1, coldZero*incomingZero, 0, n.Feature)
}

func extendPath(path []pathElement, depth int, zero, one float64, feature int) {
	path[depth] = pathElement{feature: feature, zero: zero, one: one}
	if depth == 0 {
		path[depth].weight = 1
	}
	d := float64(depth)
	for i := depth - 1; i >= 0; i-- {
		fi := float64(i)
		path[i+1].weight += one * path[i].weight * (fi + 1) / (d + 1)
		path[i].weight = zero * path[i].weight * (d - fi) / (d + 1)
	}
}

// unwindPath removes element k from the path. validateTree rejects
// Cover <= 0 so zero fractions are positive for real trees; an element with
// both fractions at zero carries no weight and is skipped.
func unwindPath(path []pathElement, depth, k int) {
	one, zero := path[k].one, path[k].zero
	next := path[depth].weight
	d := float64(depth)
	for i := depth - 1; i >= 0; i-- {
		fi := float64(i)
		if one != 0 {
			tmp := path[i].weight
			path[i].weight = next * (d + 1) / ((fi + 1) * one)
			next = tmp - path[i].weight*zero*(d-fi)/(d+1)
		} else if zero != 0 {
			path[i].weight = path[i].weight * (d + 1) / (zero * (d - fi))
		}
	}
	for i := k; i < depth; i++ {
		path[i].feature = path[i+1].feature
		path[i].zero = path[i+1].zero
		path[i].one = path[i+1].one
	}
}

func unwoundPathSum(path []pathElement, depth, k int) float64 {
	one, zero := path[k].one, path[k].zero
	next := path[depth].weight
	d := float64(depth)
	total := 0.0
	for i := depth - 1; i >= 0; i-- {
		fi := float64(i)
		if one != 0 {
			tmp := next * (d + 1) / ((fi + 1) * one)
			total += tmp
			next = path[i].weight - tmp*zero*((d-fi)/(d+1))
		} else if zero != 0 {
			total += (path[i].weight / zero) / ((d - fi) / (d + 1))
		}
	}
	return total
}
