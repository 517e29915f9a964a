package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// runAsk is the default command: build the index and answer one question.
func runAsk(cmd *cobra.Command, args []string) error {
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

	answer, err := p.query.Query(ctx, question)
	if err != nil {
		return fmt.Errorf("query failed: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), answer)
	return nil
}
