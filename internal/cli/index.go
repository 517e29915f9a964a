package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"localrag/internal/usecase"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Embed the documents and print index statistics",
	Long: `Load and embed every document without asking a question.
With --cache the vectors are kept in .rag/embeddings.db so later runs
only embed changed chunks.

Examples:
  localrag index
  localrag index --cache --input notes/`,
	Args: cobra.NoArgs,
	RunE: runIndex,
}

func init() {
	rootCmd.AddCommand(indexCmd)
}

func runIndex(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()

	p, err := newPipeline(cfg, GetRootDir())
	if err != nil {
		return err
	}
	defer p.Close()

	result, err := p.build(cmd.Context(), newProgress(cmd.ErrOrStderr()))
	if err != nil {
		return fmt.Errorf("indexing failed: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Indexing complete:\n")
	fmt.Fprintf(out, "  Documents:  %d\n", result.Documents)
	fmt.Fprintf(out, "  Chunks:     %d\n", result.Chunks)
	fmt.Fprintf(out, "  Dimension:  %d\n", result.Dimension)
	if cfg.Cache.Enabled {
		fmt.Fprintf(out, "  Cache hits: %d/%d\n", result.CacheHits, result.Embedded)
		fmt.Fprintf(out, "  Cache:      %s\n", cfg.CacheDBPath(GetRootDir()))
	}
	fmt.Fprintf(out, "  Took:       %s\n", formatDuration(result.Duration))
	return nil
}

// newProgress returns a progress callback that draws a bar on w once the
// total is known.
func newProgress(w io.Writer) usecase.ProgressFunc {
	var bar *progressbar.ProgressBar
	return func(done, total int) {
		if bar == nil {
			bar = progressbar.NewOptions(total,
				progressbar.OptionSetWriter(w),
				progressbar.OptionSetWidth(40),
				progressbar.OptionShowCount(),
				progressbar.OptionSetDescription("Embedding"),
				progressbar.OptionOnCompletion(func() {
					fmt.Fprintln(w)
				}),
			)
		}
		bar.Set(done)
	}
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
}
