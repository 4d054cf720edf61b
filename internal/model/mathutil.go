package model

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// softmaxInPlace turns scores into probabilities.
func softmaxInPlace(scores []float64) {
	hi := floats.Max(scores)
	sum := 0.0
	for i, s := range scores {
		e := math.Exp(s - hi)
		scores[i] = e
		sum += e
	}
	floats.Scale(1/sum, scores)
}

func sigmoid(x float64) float64 {
	if x >= 0 {
		return 1 / (1 + math.Exp(-x))
	}
	e := math.Exp(x)
	return e / (1 + e)
}
