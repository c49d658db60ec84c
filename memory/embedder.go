package memory

import (
	"context"
	"hash/fnv"
	"math"
	"math/rand/v2"
	"strings"
)

// Embedder converts query text into the fixed-length vector the associative
// store indexes on. Production deployments plug in a model-backed
// implementation; the unit itself never talks to a network.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}

// HashEmbedder is a deterministic, dependency-free Embedder: each token
// seeds a pseudo-random direction, and the text embeds as the normalized
// sum. Texts sharing tokens land near each other, which is enough for the
// unit's own plumbing and tests.
type HashEmbedder struct {
	dim int
}

var _ Embedder = (*HashEmbedder)(nil)

func NewHashEmbedder(dimension int) *HashEmbedder {
	return &HashEmbedder{dim: dimension}
}

func (e *HashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vec := make([]float64, e.dim)
	for _, token := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New64a()
		h.Write([]byte(token))
		rng := rand.New(rand.NewPCG(h.Sum64(), 0))
		for i := range vec {
			vec[i] += rng.Float64()*2 - 1
		}
	}

	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	norm = math.Sqrt(norm)

	out := make([]float32, e.dim)
	if norm == 0 {
		return out, nil
	}
	for i, v := range vec {
		out[i] = float32(v / norm)
	}
	return out, nil
}

func (e *HashEmbedder) Dimensions() int {
	return e.dim
}
