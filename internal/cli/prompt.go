package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var promptCmd = &cobra.Command{
	Use:   "prompt",
	Short: "Print the prompts that would be sent to the chat model",
	Long: `Build the index and retrieve context for the question, then print the
rendered text-QA and refine prompts instead of calling the chat model.
Only the embedding model is contacted.

Examples:
  localrag prompt
  localrag prompt -q "Who is the mayor?" -k 4`,
	Args: cobra.NoArgs,
	RunE: runPrompt,
}

func init() {
	rootCmd.AddCommand(promptCmd)
}

func runPrompt(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	question := strings.TrimSpace(cfg.Query.Text)
	if question == "" {
		return fmt.Errorf("query must not be empty")
	}

	p, err := newPipeline(cfg, GetRootDir())
	if err != nil {
		return err
	}
	defer p.Close()

	ctx := cmd.Context()
	if _, err := p.build(ctx, nil); err != nil {
		return fmt.Errorf("indexing failed: %w", err)
	}

	prompts, err := p.query.Prompts(ctx, question)
	if err != nil {
		return fmt.Errorf("failed to render prompts: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(prompts) == 0 {
		fmt.Fprintln(out, "No context retrieved; the answer would be empty.")
		return nil
	}
	for i, prompt := range prompts {
		fmt.Fprintf(out, "=== prompt %d/%d ===\n%s\n\n", i+1, len(prompts), prompt)
	}
	return nil
}
