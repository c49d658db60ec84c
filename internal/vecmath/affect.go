package vecmath

import (
	"math"
)

// maxAffectDistance is the diagonal of the unit cube spanned by the three
// bounded affect axes.
var maxAffectDistance = math.Sqrt(3)

// AffectSimilarity converts the Euclidean distance between two points in the
// 3-dimensional affect space into a similarity, normalized so that opposite
// corners of the unit cube score 0.
func AffectSimilarity(a, b [3]float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return 1 - math.Sqrt(sum)/maxAffectDistance
}
