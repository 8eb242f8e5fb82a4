// Package watcher keeps the full-text index in step with the SQLite
// document-of-record.
//
// A Syncer re-projects documents modified since its last run and removes
// index records of deleted documents. Watch runs a Syncer whenever the
// database files change, using fsnotify with a polling fallback and a
// debouncer that folds the several writes of one SQLite commit into a
// single sync.
//
// Usage:
//
//	syncer := watcher.NewSyncer(idx, docs, watcher.WithSyncLogger(logger))
//	if err := watcher.Watch(ctx, dbPath, syncer, watcher.DefaultOptions()); err != nil {
//	    return err
//	}
package watcher
