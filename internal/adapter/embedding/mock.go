package embedding

import (
	"context"
	"math"
)

// MockEmbedder produces deterministic vectors from character codes.
// Calls counts the texts it has embedded.
type MockEmbedder struct {
	dimension int
	Calls     int
}

func NewMockEmbedder(dimension int) *MockEmbedder {
	if dimension <= 0 {
		dimension = 8
	}
	return &MockEmbedder{dimension: dimension}
}

func (e *MockEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	embeddings := make([][]float32, len(texts))
	for i := range texts {
		vec := make([]float32, e.dimension)
		j := 0
		for _, r := range texts[i] {
			vec[j%e.dimension] += float32(r) / 1000.0
			j++
		}

		var norm float64
		for _, v := range vec {
			norm += float64(v) * float64(v)
		}
		if norm > 0 {
			inv := float32(1 / math.Sqrt(norm))
			for k := range vec {
				vec[k] *= inv
			}
		}
		embeddings[i] = vec
	}
	e.Calls += len(texts)
	return embeddings, nil
}

func (e *MockEmbedder) ModelName() string {
	return "mock"
}
