package vecmath

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Cosine computes the cosine similarity of two vectors. Mismatched or empty
// vectors are an error here; callers that want the tolerant behavior use
// CosineOrZero.
func Cosine(a, b []float32) (float64, error) {
	if len(a) == 0 || len(b) == 0 {
		return 0, errors.New("cosine similarity of empty vector")
	}
	if len(a) != len(b) {
		return 0, errors.Errorf("cosine similarity dimension mismatch: %d != %d", len(a), len(b))
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), nil
}

// CosineOrZero is the query-path variant: empty or mismatched vectors score 0
// instead of failing the whole query.
func CosineOrZero(a, b []float32) float64 {
	sim, err := Cosine(a, b)
	if err != nil {
		return 0
	}
	return sim
}

// BatchCosine scores one query vector against many candidates in a single
// matrix multiplication. Candidates whose dimension differs from the query
// score 0. Rows are scored in input order.
func BatchCosine(query []float32, candidates [][]float32) []float64 {
	scores := make([]float64, len(candidates))
	if len(query) == 0 || len(candidates) == 0 {
		return scores
	}

	dim := len(query)
	queryVec := make([]float64, dim)
	var queryNorm float64
	for i, v := range query {
		queryVec[i] = float64(v)
		queryNorm += float64(v) * float64(v)
	}
	queryNorm = math.Sqrt(queryNorm)
	if queryNorm == 0 {
		return scores
	}

	// Pack the valid candidates into an N x d matrix; one MulVec yields all
	// dot products at once.
	rows := make([]int, 0, len(candidates))
	for i, c := range candidates {
		if len(c) == dim {
			rows = append(rows, i)
		}
	}
	if len(rows) == 0 {
		return scores
	}

	data := make([]float64, len(rows)*dim)
	norms := make([]float64, len(rows))
	for r, idx := range rows {
		var norm float64
		for j, v := range candidates[idx] {
			data[r*dim+j] = float64(v)
			norm += float64(v) * float64(v)
		}
		norms[r] = math.Sqrt(norm)
	}

	var dots mat.VecDense
	dots.MulVec(mat.NewDense(len(rows), dim, data), mat.NewVecDense(dim, queryVec))

	for r, idx := range rows {
		if norms[r] == 0 {
			continue
		}
		scores[idx] = dots.AtVec(r) / (norms[r] * queryNorm)
	}
	return scores
}
