package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/docsift/docsift/internal/watcher"
)

type indexOptions struct {
	recreate bool
	optimize bool
	watch    bool
}

type indexResult struct {
	Index    string `json:"index"`
	Database string `json:"database"`
	Updated  int    `json:"updated"`
	Deleted  int    `json:"deleted"`
}

func newIndexCmd(a *app) *cobra.Command {
	var opts indexOptions

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Bring the search index in step with the document database",
		Long: `Project every document of the database into the search index and remove
index records whose document no longer exists.

With --watch, keep running and re-sync whenever the database changes.

Examples:
  docsift index
  docsift index --recreate --optimize
  docsift index --watch`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runIndex(cmd.Context(), cmd, a, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.recreate, "recreate", false, "Discard the existing index and rebuild it")
	cmd.Flags().BoolVar(&opts.optimize, "optimize", false, "Merge index segments after the sync")
	cmd.Flags().BoolVarP(&opts.watch, "watch", "w", false, "Keep syncing as the database changes")

	return cmd
}

func runIndex(ctx context.Context, cmd *cobra.Command, a *app, opts indexOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	out := a.output(cmd)

	docs, err := a.openDocs(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = docs.Close() }()

	idx, err := a.openIndex(ctx, opts.recreate)
	if err != nil {
		return err
	}
	defer func() { _ = idx.Close() }()

	syncer := watcher.NewSyncer(idx, docs,
		watcher.WithSyncLogger(a.logger),
		watcher.WithSyncMetrics(a.metrics),
		watcher.WithOptimize(opts.optimize))

	if opts.watch {
		ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
		defer stop()
		if !out.JSONMode() {
			out.Statusf("👀", "Watching %s (Ctrl+C to stop)", docs.Path())
		}
		wopts := watcher.DefaultOptions()
		wopts.DebounceWindow = a.cfg.DebounceDuration()
		return watcher.Watch(ctx, docs.Path(), syncer, wopts)
	}

	res, err := syncer.Sync(ctx)
	if err != nil {
		return err
	}

	if out.JSONMode() {
		return out.JSON(indexResult{
			Index:    idx.Dir(),
			Database: docs.Path(),
			Updated:  res.Updated,
			Deleted:  res.Deleted,
		})
	}
	out.Successf("Indexed %d documents, removed %d", res.Updated, res.Deleted)
	out.Status("", "index: "+idx.Dir())
	return nil
}
