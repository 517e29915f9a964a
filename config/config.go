package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for localrag.
type Config struct {
	Documents DocumentsConfig `yaml:"documents" toml:"documents"`
	Ollama    OllamaConfig    `yaml:"ollama" toml:"ollama"`
	Index     IndexConfig     `yaml:"index" toml:"index"`
	Query     QueryConfig     `yaml:"query" toml:"query"`
	Cache     CacheConfig     `yaml:"cache" toml:"cache"`
	Logging   LoggingConfig   `yaml:"logging" toml:"logging"`
}

// DocumentsConfig selects the files to load.
type DocumentsConfig struct {
	InputDir string   `yaml:"input_dir" toml:"input_dir" validate:"required"`
	Includes []string `yaml:"includes" toml:"includes"` // doublestar patterns relative to InputDir
	Excludes []string `yaml:"excludes" toml:"excludes"`
	// SplitMarkdown loads each heading section of a .md file as its own document.
	SplitMarkdown bool `yaml:"split_markdown" toml:"split_markdown"`
}

// OllamaConfig holds the model server settings shared by chat and embeddings.
type OllamaConfig struct {
	BaseURL        string         `yaml:"base_url" toml:"base_url" validate:"required,url"`
	ChatAPI        string         `yaml:"chat_api" toml:"chat_api" validate:"oneof=native openai"`
	Model          string         `yaml:"model" toml:"model" validate:"required"`
	EmbedModel     string         `yaml:"embed_model" toml:"embed_model" validate:"required"`
	RequestTimeout float64        `yaml:"request_timeout" toml:"request_timeout" validate:"gt=0"` // seconds
	Temperature    float32        `yaml:"temperature" toml:"temperature" validate:"gte=0"`
	ContextWindow  int            `yaml:"context_window" toml:"context_window" validate:"gtfield=NumOutput"`
	NumOutput      int            `yaml:"num_output" toml:"num_output" validate:"gte=0"`
	KeepAlive      string         `yaml:"keep_alive" toml:"keep_alive"`
	EmbedOptions   map[string]any `yaml:"embed_options" toml:"embed_options"`
	EmbedBatchSize int            `yaml:"embed_batch_size" toml:"embed_batch_size" validate:"gt=0"`
}

// IndexConfig holds chunking configuration.
type IndexConfig struct {
	ChunkTokens  int `yaml:"chunk_tokens" toml:"chunk_tokens" validate:"gt=0"`
	ChunkOverlap int `yaml:"chunk_overlap" toml:"chunk_overlap" validate:"gte=0,ltfield=ChunkTokens"`
}

// QueryConfig holds query-time configuration.
type QueryConfig struct {
	Text         string `yaml:"text" toml:"text"`
	TopK         int    `yaml:"top_k" toml:"top_k" validate:"gt=0"`
	ResponseMode string `yaml:"response_mode" toml:"response_mode" validate:"oneof=compact refine"`
}

// CacheConfig controls the on-disk embedding cache.
type CacheConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	Path    string `yaml:"path" toml:"path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level" toml:"level" validate:"omitempty,oneof=trace debug info warn error fatal"`
}

const (
	ResponseModeCompact = "compact"
	ResponseModeRefine  = "refine"

	// ChatAPINative uses /api/chat, which honours num_ctx and temperature.
	ChatAPINative = "native"
	// ChatAPIOpenAI uses the OpenAI-compatible /v1 API.
	ChatAPIOpenAI = "openai"
)

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Documents: DocumentsConfig{
			InputDir:      "ollama-documents",
			Includes:      []string{"*"},
			Excludes:      []string{".*", "**/.*", "**/.*/**"},
			SplitMarkdown: true,
		},
		Ollama: OllamaConfig{
			BaseURL:        "http://localhost:11434",
			ChatAPI:        ChatAPINative,
			Model:          "llama3.2",
			EmbedModel:     "llama3.2",
			RequestTimeout: 120,
			Temperature:    0.75,
			ContextWindow:  3900,
			NumOutput:      256,
			EmbedOptions:   map[string]any{"mirostat": 0},
			EmbedBatchSize: 10,
		},
		Index: IndexConfig{
			ChunkTokens:  1024,
			ChunkOverlap: 200,
		},
		Query: QueryConfig{
			Text:         "Latest villian info?",
			TopK:         2,
			ResponseMode: ResponseModeCompact,
		},
		Cache: CacheConfig{
			Enabled: false,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Timeout returns the request timeout as a duration.
func (o OllamaConfig) Timeout() time.Duration {
	return time.Duration(o.RequestTimeout * float64(time.Second))
}

// Load loads configuration from a YAML or TOML file, chosen by extension.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil // Return defaults if no config file
		}
		return nil, err
	}

	if strings.EqualFold(filepath.Ext(path), ".toml") {
		err = toml.Unmarshal(data, cfg)
	} else {
		err = yaml.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	return cfg, nil
}

// configFiles are looked up in order by LoadFromDir.
var configFiles = []string{
	"localrag.yaml",
	"localrag.toml",
	filepath.Join(".rag", "config.yaml"),
}

// LoadFromDir loads the first config file found in dir, or the defaults.
func LoadFromDir(dir string) (*Config, error) {
	for _, name := range configFiles {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}
	return DefaultConfig(), nil
}

// ApplyEnv overrides settings from environment variables.
func ApplyEnv(cfg *Config) {
	if v := os.Getenv("OLLAMA_HOST"); v != "" {
		cfg.Ollama.BaseURL = normalizeHost(v)
	}
	if v := os.Getenv("LOCALRAG_MODEL"); v != "" {
		cfg.Ollama.Model = v
	}
	if v := os.Getenv("LOCALRAG_EMBED_MODEL"); v != "" {
		cfg.Ollama.EmbedModel = v
	}
	if v := os.Getenv("LOCALRAG_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// normalizeHost accepts OLLAMA_HOST in the forms Ollama itself accepts
// ("host:port" or a full URL).
func normalizeHost(host string) string {
	if strings.HasPrefix(host, "http://") || strings.HasPrefix(host, "https://") {
		return host
	}
	return "http://" + host
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// Report fields by their config file names.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		field := strings.TrimPrefix(fe.Namespace(), "Config.")
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s must satisfy %s=%s (got %v)", field, fe.Tag(), fe.Param(), fe.Value()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s must satisfy %s (got %v)", field, fe.Tag(), fe.Value()))
		}
	}
	return errors.New(strings.Join(msgs, "; "))
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// CacheDBPath returns the path to the embedding cache database.
func (c *Config) CacheDBPath(dir string) string {
	if c.Cache.Path != "" {
		return c.Cache.Path
	}
	return filepath.Join(dir, ".rag", "embeddings.db")
}
