package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/phuslu/log"

	"localrag/internal/domain"
	"localrag/internal/port"
)

// IndexUseCase chunks documents, embeds the chunks and fills the vector store.
type IndexUseCase struct {
	chunker   port.Chunker
	embedder  port.Embedder
	store     port.VectorStore
	batchSize int
}

// NewIndexUseCase creates a new index use case.
func NewIndexUseCase(
	chunker port.Chunker,
	embedder port.Embedder,
	store port.VectorStore,
	batchSize int,
) *IndexUseCase {
	if batchSize <= 0 {
		batchSize = 10
	}
	return &IndexUseCase{
		chunker:   chunker,
		embedder:  embedder,
		store:     store,
		batchSize: batchSize,
	}
}

// IndexResult contains the results of an indexing operation.
type IndexResult struct {
	Documents int
	Chunks    int
	Embedded  int
	CacheHits int
	Dimension int
	Duration  time.Duration
}

// ProgressFunc is called after every embedded batch.
type ProgressFunc func(done, total int)

type cacheHitCounter interface {
	CacheHits() int
}

// Build embeds every chunk of docs into the store. Batches run sequentially.
func (u *IndexUseCase) Build(ctx context.Context, docs []domain.Document, progress ProgressFunc) (*IndexResult, error) {
	if len(docs) == 0 {
		return nil, domain.ErrNoDocuments
	}
	start := time.Now()

	var chunks []domain.Chunk
	for _, doc := range docs {
		docChunks, err := u.chunker.Chunk(doc)
		if err != nil {
			return nil, fmt.Errorf("failed to chunk %s: %w", doc.Path, err)
		}
		chunks = append(chunks, docChunks...)
	}
	log.Debug().Int("documents", len(docs)).Int("chunks", len(chunks)).Msg("chunked documents")

	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: all documents are empty", domain.ErrNoDocuments)
	}

	hitsBefore := 0
	if counter, ok := u.embedder.(cacheHitCounter); ok {
		hitsBefore = counter.CacheHits()
	}

	embedded := 0
	for i := 0; i < len(chunks); i += u.batchSize {
		end := min(i+u.batchSize, len(chunks))
		batch := chunks[i:end]

		texts := make([]string, len(batch))
		for j, c := range batch {
			texts[j] = c.EmbedText()
		}

		vectors, err := u.embedder.Embed(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("failed to embed chunks %d-%d: %w", i+1, end, err)
		}
		if len(vectors) != len(batch) {
			return nil, fmt.Errorf("expected %d embeddings, got %d", len(batch), len(vectors))
		}

		items := make([]port.VectorItem, len(batch))
		for j, c := range batch {
			items[j] = port.VectorItem{Chunk: c, Vector: vectors[j]}
		}
		if err := u.store.Upsert(items); err != nil {
			return nil, fmt.Errorf("failed to store vectors: %w", err)
		}

		embedded += len(batch)
		if progress != nil {
			progress(embedded, len(chunks))
		}
	}

	result := &IndexResult{
		Documents: len(docs),
		Chunks:    len(chunks),
		Embedded:  embedded,
		Dimension: u.store.Dimension(),
		Duration:  time.Since(start),
	}
	if counter, ok := u.embedder.(cacheHitCounter); ok {
		result.CacheHits = counter.CacheHits() - hitsBefore
	}

	log.Info().Int("documents", result.Documents).Int("chunks", result.Chunks).Int("dimension", result.Dimension).Int("cache_hits", result.CacheHits).Dur("took", result.Duration).Msg("index built")
	return result, nil
}
