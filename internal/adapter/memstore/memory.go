package memstore

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"localrag/internal/domain"
	"localrag/internal/port"
)

// VectorIndex is an in-memory vector index with brute-force cosine search.
type VectorIndex struct {
	mu        sync.RWMutex
	dimension int
	order     []string
	chunks    map[string]domain.Chunk
	vectors   map[string][]float32
	docs      map[string]struct{}
}

func NewVectorIndex() *VectorIndex {
	return &VectorIndex{
		chunks:  make(map[string]domain.Chunk),
		vectors: make(map[string][]float32),
		docs:    make(map[string]struct{}),
	}
}

// Upsert adds or replaces chunks. The first vector fixes the dimension.
func (s *VectorIndex) Upsert(items []port.VectorItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, item := range items {
		if len(item.Vector) == 0 {
			return fmt.Errorf("%w: chunk %s", domain.ErrEmptyEmbedding, item.Chunk.ID)
		}
		if s.dimension == 0 {
			s.dimension = len(item.Vector)
		}
		if len(item.Vector) != s.dimension {
			return fmt.Errorf("%w: expected %d, got %d", domain.ErrDimensionMismatch, s.dimension, len(item.Vector))
		}
	}

	for _, item := range items {
		id := item.Chunk.ID
		if _, exists := s.chunks[id]; !exists {
			s.order = append(s.order, id)
		}
		s.chunks[id] = item.Chunk
		s.vectors[id] = item.Vector
		s.docs[item.Chunk.DocID] = struct{}{}
	}

	return nil
}

func (s *VectorIndex) Search(query []float32, k int) ([]domain.ScoredChunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.order) == 0 {
		return nil, domain.ErrEmptyIndex
	}
	if len(query) != s.dimension {
		return nil, fmt.Errorf("%w: query has %d, index has %d", domain.ErrDimensionMismatch, len(query), s.dimension)
	}
	if k <= 0 {
		return nil, nil
	}

	scores := make([]domain.ScoredChunk, 0, len(s.order))
	for _, id := range s.order {
		scores = append(scores, domain.ScoredChunk{
			Chunk: s.chunks[id],
			Score: cosineSimilarity(query, s.vectors[id]),
		})
	}

	// Stable so equal scores keep insertion order.
	sort.SliceStable(scores, func(i, j int) bool {
		return scores[i].Score > scores[j].Score
	})

	if k > len(scores) {
		k = len(scores)
	}
	return scores[:k], nil
}

func (s *VectorIndex) Get(id string) (domain.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	chunk, ok := s.chunks[id]
	if !ok {
		return domain.Chunk{}, fmt.Errorf("chunk not found: %s", id)
	}
	return chunk, nil
}

func (s *VectorIndex) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

func (s *VectorIndex) Dimension() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dimension
}

func (s *VectorIndex) Stats() domain.IndexStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return domain.IndexStats{
		Documents: len(s.docs),
		Chunks:    len(s.order),
		Dimension: s.dimension,
	}
}

// cosineSimilarity calculates the cosine similarity between two vectors.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}
