package llm

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
)

// OllamaChat calls the native Ollama chat endpoint. Unlike the /v1 API it
// carries model options, so the server window matches the packed prompts.
type OllamaChat struct {
	model         string
	baseURL       string
	temperature   float32
	contextWindow int
	keepAlive     string
	client        *http.Client
}

type Options struct {
	BaseURL       string
	Model         string
	Timeout       time.Duration
	Temperature   float32
	ContextWindow int // sent as num_ctx; 0 leaves the server default
	KeepAlive     string
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model     string         `json:"model"`
	Messages  []chatMessage  `json:"messages"`
	Stream    bool           `json:"stream"`
	Options   map[string]any `json:"options"`
	KeepAlive string         `json:"keep_alive,omitempty"`
}

type chatResponse struct {
	Model           string      `json:"model"`
	Message         chatMessage `json:"message"`
	Done            bool        `json:"done"`
	PromptEvalCount int         `json:"prompt_eval_count"`
	EvalCount       int         `json:"eval_count"`
	Error           string      `json:"error,omitempty"`
}

func NewOllamaChat(opts Options) *OllamaChat {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}

	return &OllamaChat{
		model:         opts.Model,
		baseURL:       baseURL,
		temperature:   opts.Temperature,
		contextWindow: opts.ContextWindow,
		keepAlive:     opts.KeepAlive,
		client:        &http.Client{Timeout: timeout},
	}
}

func (c *OllamaChat) Complete(ctx context.Context, prompt string) (string, error) {
	// temperature is always sent so that 0 is not mistaken for unset.
	options := map[string]any{"temperature": c.temperature}
	if c.contextWindow > 0 {
		options["num_ctx"] = c.contextWindow
	}

	jsonData, err := json.Marshal(chatRequest{
		Model:     c.model,
		Messages:  []chatMessage{{Role: "user", Content: prompt}},
		Stream:    false,
		Options:   options,
		KeepAlive: c.keepAlive,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("chat request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("chat completion failed (status %d): %s", resp.StatusCode, preview(body))
	}

	var chatResp chatResponse
	if err := json.Unmarshal(body, &chatResp); err != nil {
		return "", fmt.Errorf("failed to parse response (body: %s): %w", preview(body), err)
	}
	if chatResp.Error != "" {
		return "", fmt.Errorf("ollama error: %s", chatResp.Error)
	}
	if chatResp.Message.Role == "" && chatResp.Message.Content == "" {
		return "", fmt.Errorf("chat completion returned no message")
	}

	log.Debug().
		Str("model", c.model).
		Int("num_ctx", c.contextWindow).
		Int("prompt_tokens", chatResp.PromptEvalCount).
		Int("completion_tokens", chatResp.EvalCount).
		Dur("took", time.Since(start)).
		Msg("chat completion")

	return strings.TrimSpace(chatResp.Message.Content), nil
}

func (c *OllamaChat) ModelName() string {
	return c.model
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
