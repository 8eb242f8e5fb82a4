package watcher

import (
	"context"
	"errors"
	"log/slog"
)

// Watch syncs once, then watches the database at path and syncs after every
// debounced burst of changes until ctx is done. Sync failures are logged and
// retried on the next change. Only a watcher that cannot start is returned
// as an error.
func Watch(ctx context.Context, path string, syncer *Syncer, opts Options) error {
	logger := syncer.logger

	if _, err := syncer.Sync(ctx); err != nil && ctx.Err() != nil {
		return nil
	}

	w, err := NewHybridWatcher(path, opts, logger)
	if err != nil {
		return err
	}
	defer func() { _ = w.Stop() }()

	done := make(chan error, 1)
	go func() { done <- w.Start(ctx) }()

	logger.Info("Watching database for changes",
		slog.String("path", path),
		slog.String("type", w.WatcherType()))

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-done:
			if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			return nil
		case batch, ok := <-w.Events():
			if !ok {
				return nil
			}
			logger.Debug("Database changed", slog.Int("events", len(batch)))
			_, _ = syncer.Sync(ctx)
		case err, ok := <-w.Errors():
			if !ok {
				return nil
			}
			logger.Warn("Watcher error", slog.String("error", err.Error()))
		}
	}
}
