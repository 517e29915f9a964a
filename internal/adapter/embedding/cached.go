package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/phuslu/log"

	"localrag/internal/port"
)

// CachedEmbedder serves vectors from a persistent cache and only sends
// misses to the wrapped embedder.
type CachedEmbedder struct {
	embedder    port.Embedder
	cache       port.EmbeddingCache
	fingerprint string

	Hits   int
	Misses int
}

// NewCachedEmbedder wraps embedder. The fingerprint must change whenever the
// model or its options change so that stale vectors are never served.
func NewCachedEmbedder(embedder port.Embedder, cache port.EmbeddingCache, fingerprint string) *CachedEmbedder {
	return &CachedEmbedder{
		embedder:    embedder,
		cache:       cache,
		fingerprint: fingerprint,
	}
}

func (e *CachedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, len(texts))
	keys := make([]string, len(texts))
	var missIdx []int
	var missTexts []string

	for i, text := range texts {
		keys[i] = e.key(text)
		vec, ok, err := e.cache.Get(keys[i])
		if err != nil {
			return nil, fmt.Errorf("embedding cache lookup: %w", err)
		}
		if ok {
			out[i] = vec
			e.Hits++
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, text)
	}

	if len(missTexts) == 0 {
		return out, nil
	}

	fresh, err := e.embedder.Embed(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(fresh) != len(missTexts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(missTexts), len(fresh))
	}

	entries := make(map[string][]float32, len(fresh))
	for j, i := range missIdx {
		out[i] = fresh[j]
		entries[keys[i]] = fresh[j]
	}
	e.Misses += len(missTexts)

	if err := e.cache.Put(entries); err != nil {
		log.Warn().Err(err).Int("entries", len(entries)).Msg("failed to persist embeddings")
	}

	return out, nil
}

// CacheHits returns how many texts were served from the cache so far.
func (e *CachedEmbedder) CacheHits() int {
	return e.Hits
}

func (e *CachedEmbedder) ModelName() string {
	return e.embedder.ModelName()
}

func (e *CachedEmbedder) key(text string) string {
	hash := sha256.Sum256([]byte(e.fingerprint + "\x00" + text))
	return hex.EncodeToString(hash[:])
}
