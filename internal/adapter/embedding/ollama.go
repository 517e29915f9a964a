package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/phuslu/log"

	"localrag/internal/domain"
)

// OllamaEmbedder calls the native Ollama embed endpoint.
type OllamaEmbedder struct {
	model     string
	baseURL   string
	options   map[string]any
	keepAlive string
	batchSize int
	client    *http.Client
}

type OllamaOptions struct {
	BaseURL   string
	Model     string
	Timeout   time.Duration
	Options   map[string]any // model options, e.g. {"mirostat": 0}
	KeepAlive string
	BatchSize int
}

type embedRequest struct {
	Model     string         `json:"model"`
	Input     []string       `json:"input"`
	Options   map[string]any `json:"options,omitempty"`
	KeepAlive string         `json:"keep_alive,omitempty"`
}

type embedResponse struct {
	Model      string      `json:"model"`
	Embeddings [][]float32 `json:"embeddings"`
	Error      string      `json:"error,omitempty"`
}

func NewOllamaEmbedder(opts OllamaOptions) *OllamaEmbedder {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = 10
	}

	return &OllamaEmbedder{
		model:     opts.Model,
		baseURL:   baseURL,
		options:   opts.Options,
		keepAlive: opts.KeepAlive,
		batchSize: batchSize,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

func (e *OllamaEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	allEmbeddings := make([][]float32, 0, len(texts))

	for i := 0; i < len(texts); i += e.batchSize {
		end := i + e.batchSize
		if end > len(texts) {
			end = len(texts)
		}

		embeddings, err := e.embedBatch(ctx, texts[i:end])
		if err != nil {
			return nil, err
		}
		allEmbeddings = append(allEmbeddings, embeddings...)
	}

	return allEmbeddings, nil
}

func (e *OllamaEmbedder) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	reqBody := embedRequest{
		Model:     e.model,
		Input:     texts,
		Options:   e.options,
		KeepAlive: e.keepAlive,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/api/embed", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embed request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama returned status %d: %s", resp.StatusCode, preview(body))
	}

	var embResp embedResponse
	if err := json.Unmarshal(body, &embResp); err != nil {
		return nil, fmt.Errorf("failed to parse response (body: %s): %w", preview(body), err)
	}

	if embResp.Error != "" {
		return nil, fmt.Errorf("ollama error: %s", embResp.Error)
	}
	if len(embResp.Embeddings) == 0 {
		return nil, domain.ErrEmptyEmbedding
	}
	if len(embResp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(embResp.Embeddings))
	}

	dim := len(embResp.Embeddings[0])
	for i, v := range embResp.Embeddings {
		if len(v) == 0 || len(v) != dim {
			return nil, fmt.Errorf("%w: vector %d has length %d, expected %d", domain.ErrDimensionMismatch, i, len(v), dim)
		}
	}

	log.Debug().Str("model", e.model).Int("inputs", len(texts)).Int("dim", dim).Dur("took", time.Since(start)).Msg("embedded batch")
	return embResp.Embeddings, nil
}

func (e *OllamaEmbedder) ModelName() string {
	return e.model
}

// preview trims an error body to at most 200 bytes on a rune boundary.
func preview(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) <= 200 {
		return s
	}
	cut := 200
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
