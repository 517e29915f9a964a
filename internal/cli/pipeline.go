package cli

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/phuslu/log"

	"localrag/config"
	"localrag/internal/adapter/analyzer"
	"localrag/internal/adapter/chunker"
	"localrag/internal/adapter/embedding"
	"localrag/internal/adapter/fs"
	"localrag/internal/adapter/llm"
	"localrag/internal/adapter/memstore"
	"localrag/internal/adapter/retriever"
	"localrag/internal/adapter/store"
	"localrag/internal/port"
	"localrag/internal/usecase"
)

// pipeline wires the adapters for one run: load, embed, retrieve, answer.
type pipeline struct {
	reader  *fs.DirectoryReader
	vectors *memstore.VectorIndex
	indexer *usecase.IndexUseCase
	query   *usecase.QueryUseCase
	cache   *store.BoltCache
}

func newPipeline(cfg *config.Config, base string) (*pipeline, error) {
	inputDir := cfg.Documents.InputDir
	if !filepath.IsAbs(inputDir) {
		inputDir = filepath.Join(base, inputDir)
	}

	tokenizer := analyzer.NewTokenizer()
	reader := fs.NewDirectoryReader(inputDir, fs.NewWalker(cfg.Documents.Includes, cfg.Documents.Excludes), cfg.Documents.SplitMarkdown)

	var embedder port.Embedder = embedding.NewOllamaEmbedder(embedding.OllamaOptions{
		BaseURL:   cfg.Ollama.BaseURL,
		Model:     cfg.Ollama.EmbedModel,
		Timeout:   cfg.Ollama.Timeout(),
		Options:   cfg.Ollama.EmbedOptions,
		KeepAlive: cfg.Ollama.KeepAlive,
		BatchSize: cfg.Ollama.EmbedBatchSize,
	})

	p := &pipeline{reader: reader}

	if cfg.Cache.Enabled {
		cache, err := openCache(cfg, base)
		if err != nil {
			return nil, err
		}
		p.cache = cache
		embedder = embedding.NewCachedEmbedder(embedder, cache, store.Fingerprint(cfg))
	}

	chat := newChat(cfg)

	prompts, err := usecase.LoadPrompts()
	if err != nil {
		p.Close()
		return nil, err
	}

	p.vectors = memstore.NewVectorIndex()
	p.indexer = usecase.NewIndexUseCase(
		chunker.NewLineChunker(cfg.Index.ChunkTokens, cfg.Index.ChunkOverlap, tokenizer),
		embedder,
		p.vectors,
		cfg.Ollama.EmbedBatchSize,
	)
	synth := usecase.NewSynthesizer(chat, prompts, tokenizer, usecase.SynthesizerOptions{
		Mode:          cfg.Query.ResponseMode,
		ContextWindow: cfg.Ollama.ContextWindow,
		NumOutput:     cfg.Ollama.NumOutput,
	})
	p.query = usecase.NewQueryUseCase(retriever.NewVectorRetriever(p.vectors, embedder), synth, cfg.Query.TopK)

	return p, nil
}

// newChat picks the chat client for the configured API.
func newChat(cfg *config.Config) port.LLM {
	opts := llm.Options{
		BaseURL:       cfg.Ollama.BaseURL,
		Model:         cfg.Ollama.Model,
		Timeout:       cfg.Ollama.Timeout(),
		Temperature:   cfg.Ollama.Temperature,
		ContextWindow: cfg.Ollama.ContextWindow,
		KeepAlive:     cfg.Ollama.KeepAlive,
	}
	if cfg.Ollama.ChatAPI == config.ChatAPIOpenAI {
		log.Debug().Msg("chat over /v1: context window left to the server")
		return llm.NewOpenAIChat(opts)
	}
	return llm.NewOllamaChat(opts)
}

// openCache opens the embedding cache and drops vectors from another model.
func openCache(cfg *config.Config, base string) (*store.BoltCache, error) {
	path := cfg.CacheDBPath(base)
	cache, err := store.NewBoltCache(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open embedding cache: %w", err)
	}

	result, err := cache.Migrate(store.Fingerprint(cfg))
	if err != nil {
		cache.Close()
		return nil, fmt.Errorf("failed to migrate embedding cache: %w", err)
	}
	if result.NeedsClear {
		log.Info().Str("path", path).Str("reason", result.Reason).Msg("embedding cache cleared")
	}
	return cache, nil
}

// build loads the documents and embeds them into the in-memory index.
func (p *pipeline) build(ctx context.Context, progress usecase.ProgressFunc) (*usecase.IndexResult, error) {
	docs, err := p.reader.Load(ctx)
	if err != nil {
		return nil, err
	}
	return p.indexer.Build(ctx, docs, progress)
}

func (p *pipeline) Close() error {
	if p.cache != nil {
		return p.cache.Close()
	}
	return nil
}
