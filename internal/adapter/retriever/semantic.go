package retriever

import (
	"context"
	"fmt"
	"time"

	"github.com/phuslu/log"

	"localrag/internal/domain"
	"localrag/internal/port"
)

// VectorRetriever embeds the query and ranks indexed chunks by cosine similarity.
type VectorRetriever struct {
	vectorStore port.VectorStore
	embedder    port.Embedder
}

func NewVectorRetriever(vectorStore port.VectorStore, embedder port.Embedder) *VectorRetriever {
	return &VectorRetriever{
		vectorStore: vectorStore,
		embedder:    embedder,
	}
}

func (r *VectorRetriever) Search(ctx context.Context, query string, k int) ([]domain.ScoredChunk, error) {
	if r.vectorStore.Count() == 0 {
		return nil, domain.ErrEmptyIndex
	}

	start := time.Now()
	embeddings, err := r.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	if len(embeddings) == 0 {
		return nil, fmt.Errorf("failed to embed query: %w", domain.ErrEmptyEmbedding)
	}

	results, err := r.vectorStore.Search(embeddings[0], k)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}

	log.Debug().Str("query", query).Int("k", k).Int("hits", len(results)).Dur("took", time.Since(start)).Msg("retrieved chunks")
	return results, nil
}
