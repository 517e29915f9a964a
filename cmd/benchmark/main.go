package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"localrag/config"
	"localrag/internal/adapter/analyzer"
	"localrag/internal/adapter/chunker"
	"localrag/internal/adapter/embedding"
	"localrag/internal/adapter/fs"
	"localrag/internal/adapter/memstore"
	"localrag/internal/adapter/retriever"
	"localrag/internal/adapter/store"
	"localrag/internal/port"
	"localrag/internal/usecase"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	flags := flag.NewFlagSet("benchmark", flag.ContinueOnError)
	flags.SetOutput(out)
	dir := flags.String("dir", ".", "Directory holding localrag.yaml and the documents")
	query := flags.String("q", "", "Query to test (default from config)")
	topK := flags.Int("k", 0, "Number of results (default from config)")
	flags.Usage = func() {
		fmt.Fprintln(out, "Usage: go run ./cmd/benchmark -dir . [-q \"query\"] [-k N]")
		fmt.Fprintln(out, "\nReports:")
		fmt.Fprintln(out, "  1. Embedding latency against the Ollama server")
		fmt.Fprintln(out, "  2. Semantic similarity (query vs results)")
		flags.PrintDefaults()
	}
	if err := flags.Parse(args); err != nil {
		return err
	}

	cfg, err := config.LoadFromDir(*dir)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	config.ApplyEnv(cfg)
	if *query != "" {
		cfg.Query.Text = *query
	}
	if *topK > 0 {
		cfg.Query.TopK = *topK
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	question := strings.TrimSpace(cfg.Query.Text)
	if question == "" {
		return fmt.Errorf("query must not be empty")
	}

	embedder, closeCache, err := setupEmbedding(cfg, *dir)
	if err != nil {
		return fmt.Errorf("embedding not available: %w", err)
	}
	defer closeCache()

	ctx := context.Background()
	inputDir := cfg.Documents.InputDir
	if !filepath.IsAbs(inputDir) {
		inputDir = filepath.Join(*dir, inputDir)
	}
	docs, err := fs.NewDirectoryReader(inputDir, fs.NewWalker(cfg.Documents.Includes, cfg.Documents.Excludes), cfg.Documents.SplitMarkdown).Load(ctx)
	if err != nil {
		return fmt.Errorf("loading documents: %w", err)
	}

	vectors := memstore.NewVectorIndex()
	chk := chunker.NewLineChunker(cfg.Index.ChunkTokens, cfg.Index.ChunkOverlap, analyzer.NewTokenizer())
	indexer := usecase.NewIndexUseCase(chk, embedder, vectors, cfg.Ollama.EmbedBatchSize)

	fmt.Fprintln(out, "SEMANTIC SEARCH BENCHMARK")
	fmt.Fprintln(out, strings.Repeat("=", 70))

	result, err := indexer.Build(ctx, docs, nil)
	if err != nil {
		return fmt.Errorf("indexing: %w", err)
	}

	fmt.Fprintf(out, "Documents: %d, chunks: %d\n", result.Documents, result.Chunks)
	fmt.Fprintf(out, "Model: %s\n", cfg.Ollama.EmbedModel)
	fmt.Fprintf(out, "Dimension: %d\n", result.Dimension)
	fmt.Fprintf(out, "Index built in %s (%d cache hits)\n", result.Duration.Round(time.Millisecond), result.CacheHits)
	if result.Embedded > result.CacheHits {
		perChunk := result.Duration / time.Duration(result.Embedded-result.CacheHits)
		fmt.Fprintf(out, "Embedding latency: %s per chunk\n", perChunk.Round(time.Millisecond))
	}
	fmt.Fprintln(out)

	fmt.Fprintf(out, "Query: \"%s\"\n", question)
	fmt.Fprintln(out, strings.Repeat("-", 70))

	start := time.Now()
	results, err := retriever.NewVectorRetriever(vectors, embedder).Search(ctx, question, cfg.Query.TopK)
	if err != nil {
		return fmt.Errorf("search: %w", err)
	}
	fmt.Fprintf(out, "Query answered in %s\n\n", time.Since(start).Round(time.Millisecond))

	if len(results) == 0 {
		fmt.Fprintln(out, "No results.")
		return nil
	}

	fmt.Fprintf(out, "Top %d semantic matches:\n\n", len(results))

	totalScore := 0.0
	for i, r := range results {
		preview := []rune(r.Chunk.Text)
		text := string(preview)
		if len(preview) > 150 {
			text = string(preview[:150]) + "..."
		}
		text = strings.ReplaceAll(text, "\n", " ")

		similarity := r.Score
		totalScore += similarity

		fmt.Fprintf(out, "%d. [%s %.3f] %s:L%d-%d\n", i+1, rating(similarity), similarity, filepath.Base(r.Chunk.Path), r.Chunk.StartLine, r.Chunk.EndLine)
		fmt.Fprintf(out, "   %s\n\n", text)
	}

	avgScore := totalScore / float64(len(results))
	fmt.Fprintln(out, strings.Repeat("=", 70))
	fmt.Fprintf(out, "QUALITY METRICS:\n")
	fmt.Fprintf(out, "  Average similarity: %.3f\n", avgScore)
	fmt.Fprintf(out, "  Top-1 similarity:   %.3f\n", results[0].Score)

	switch {
	case avgScore > 0.5:
		fmt.Fprintln(out, "  Status: GOOD - semantic search working well")
	case avgScore > 0.3:
		fmt.Fprintln(out, "  Status: OK - results are somewhat related")
	default:
		fmt.Fprintln(out, "  Status: POOR - the embedding model may not suit these documents")
	}
	return nil
}

func rating(similarity float64) string {
	switch {
	case similarity > 0.7:
		return "HIGH"
	case similarity > 0.5:
		return "GOOD"
	case similarity > 0.3:
		return "OK"
	}
	return "LOW"
}

func setupEmbedding(cfg *config.Config, dir string) (port.Embedder, func(), error) {
	var embedder port.Embedder = embedding.NewOllamaEmbedder(embedding.OllamaOptions{
		BaseURL:   cfg.Ollama.BaseURL,
		Model:     cfg.Ollama.EmbedModel,
		Timeout:   cfg.Ollama.Timeout(),
		Options:   cfg.Ollama.EmbedOptions,
		KeepAlive: cfg.Ollama.KeepAlive,
		BatchSize: cfg.Ollama.EmbedBatchSize,
	})

	if !cfg.Cache.Enabled {
		return embedder, func() {}, nil
	}

	cache, err := store.NewBoltCache(cfg.CacheDBPath(dir))
	if err != nil {
		return nil, nil, fmt.Errorf("cache open failed: %w", err)
	}
	fingerprint := store.Fingerprint(cfg)
	if _, err := cache.Migrate(fingerprint); err != nil {
		cache.Close()
		return nil, nil, fmt.Errorf("cache migration failed: %w", err)
	}
	return embedding.NewCachedEmbedder(embedder, cache, fingerprint), func() { cache.Close() }, nil
}
