package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/phuslu/log"
	"github.com/spf13/cobra"

	"localrag/config"
)

var (
	cfgFile string
	cfg     *config.Config
	rootDir string
	runID   string

	flagInput      string
	flagQuery      string
	flagTopK       int
	flagModel      string
	flagEmbedModel string
	flagBaseURL    string
	flagTimeout    float64
	flagCache      bool
	flagLogLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "localrag",
	Short: "Answer a question from local documents with a local Ollama model",
	Long: `localrag loads the documents in a directory, embeds them with an Ollama
embedding model into an in-memory vector index, and answers one question
with an Ollama chat model using the most similar chunks as context.

Example usage:
  localrag                                # ask the default question about ./ollama-documents
  localrag -q "Who is the mayor?" -k 4    # ask something else
  localrag index --cache                  # embed documents and warm the cache
  localrag prompt -q "Who is the mayor?"  # show the prompts without calling the chat model`,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error

		base := rootDir
		if base == "" {
			base = "."
		}
		if err := godotenv.Load(filepath.Join(base, ".env")); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load .env: %w", err)
		}

		if cfgFile != "" {
			cfg, err = config.Load(cfgFile)
		} else {
			cfg, err = config.LoadFromDir(base)
		}
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		config.ApplyEnv(cfg)
		applyFlags(cmd, cfg)

		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}

		setupLogger(cfg.Logging.Level, cmd.ErrOrStderr())
		runID = uuid.NewString()
		log.Debug().Str("run_id", runID).Str("base_url", cfg.Ollama.BaseURL).Str("model", cfg.Ollama.Model).Str("embed_model", cfg.Ollama.EmbedModel).Msg("configuration loaded")
		return nil
	},
	RunE: runAsk,
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		log.Error().Err(err).Str("run_id", runID).Msg("localrag failed")
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default is ./localrag.yaml)")
	pf.StringVarP(&rootDir, "dir", "d", "", "base directory for config, .env and cache (default is current directory)")
	pf.StringVar(&flagInput, "input", "", "documents directory (default from config)")
	pf.StringVarP(&flagQuery, "query", "q", "", "question to ask (default from config)")
	pf.IntVarP(&flagTopK, "top-k", "k", 0, "number of chunks to retrieve (default from config)")
	pf.StringVar(&flagModel, "model", "", "chat model (default from config)")
	pf.StringVar(&flagEmbedModel, "embed-model", "", "embedding model (default from config)")
	pf.StringVar(&flagBaseURL, "base-url", "", "Ollama server URL (default from config)")
	pf.Float64Var(&flagTimeout, "timeout", 0, "request timeout in seconds (default from config)")
	pf.BoolVar(&flagCache, "cache", false, "reuse embeddings from the on-disk cache")
	pf.StringVar(&flagLogLevel, "log-level", "", "log level: debug, info, warn, error")
}

// applyFlags overrides config values with the flags set on the command line.
func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("input") {
		cfg.Documents.InputDir = flagInput
	}
	if flags.Changed("query") {
		cfg.Query.Text = flagQuery
	}
	if flags.Changed("top-k") {
		cfg.Query.TopK = flagTopK
	}
	if flags.Changed("model") {
		cfg.Ollama.Model = flagModel
	}
	if flags.Changed("embed-model") {
		cfg.Ollama.EmbedModel = flagEmbedModel
	}
	if flags.Changed("base-url") {
		cfg.Ollama.BaseURL = flagBaseURL
	}
	if flags.Changed("timeout") {
		cfg.Ollama.RequestTimeout = flagTimeout
	}
	if flags.Changed("cache") {
		cfg.Cache.Enabled = flagCache
	}
	if flags.Changed("log-level") {
		cfg.Logging.Level = flagLogLevel
	}
}

func setupLogger(level string, w io.Writer) {
	log.DefaultLogger = log.Logger{
		Level:  log.ParseLevel(level),
		Writer: &log.ConsoleWriter{Writer: w},
	}
}

func GetConfig() *config.Config {
	return cfg
}

// GetRootDir returns the base directory, defaulting to the working directory.
func GetRootDir() string {
	if rootDir != "" {
		return rootDir
	}
	return "."
}
