package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/docsift/docsift/internal/index"
)

func newAutocompleteCmd(a *app) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "autocomplete <prefix>",
		Short: "Complete a word from the indexed content",
		Long: `Complete a prefix from terms of the indexed content, most distinctive
first. Terms found in every document rank last.

Examples:
  docsift autocomplete electr
  docsift autocomplete inv --limit 5`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAutocomplete(cmd.Context(), cmd, a, args[0], limit)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Maximum number of completions (default from config)")

	return cmd
}

func runAutocomplete(ctx context.Context, cmd *cobra.Command, a *app, prefix string, limit int) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if limit <= 0 {
		limit = a.cfg.Search.AutocompleteLimit
	}

	idx, err := a.openIndexReadOnly(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = idx.Close() }()

	var words []string
	err = idx.WithReader(func(r *index.Reader) error {
		var err error
		words, err = index.Autocomplete(r, prefix, limit)
		return err
	})
	if err != nil {
		return err
	}

	out := a.output(cmd)
	if out.JSONMode() {
		if words == nil {
			words = []string{}
		}
		return out.JSON(words)
	}
	for i, w := range words {
		out.Item(i+1, w, "")
	}
	return nil
}
