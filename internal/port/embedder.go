package port

import (
	"context"

	"localrag/internal/domain"
)

// Embedder generates vector embeddings for text.
type Embedder interface {
	// Embed generates embeddings for the given texts.
	// Returns a slice of vectors, one per input text.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// ModelName returns the name of the embedding model.
	ModelName() string
}

// VectorStore stores chunk vectors and searches them by similarity.
type VectorStore interface {
	// Upsert adds or replaces chunks with their vectors.
	Upsert(items []VectorItem) error

	// Search finds the k nearest chunks to the query vector.
	Search(query []float32, k int) ([]domain.ScoredChunk, error)

	// Count returns the number of stored vectors.
	Count() int

	// Dimension returns the vector dimension, or 0 before the first upsert.
	Dimension() int
}

// VectorItem is a chunk and its embedding.
type VectorItem struct {
	Chunk  domain.Chunk
	Vector []float32
}

// EmbeddingCache persists vectors between runs.
type EmbeddingCache interface {
	Get(key string) ([]float32, bool, error)
	Put(entries map[string][]float32) error
}
