package watcher

import (
	"context"
	"log/slog"
	"sync"
	"time"

	serrors "github.com/docsift/docsift/internal/errors"
	"github.com/docsift/docsift/internal/index"
	"github.com/docsift/docsift/internal/telemetry"
)

// DocumentSource is the document-of-record the index is synced from.
type DocumentSource interface {
	Document(ctx context.Context, id int64) (index.Document, error)
	DocumentIDs(ctx context.Context) ([]int64, error)
	ModifiedSince(ctx context.Context, t time.Time) ([]int64, error)
}

// SyncResult counts what one sync changed.
type SyncResult struct {
	Updated int
	Deleted int
}

// Syncer keeps the index in step with the document-of-record.
type Syncer struct {
	mu       sync.Mutex
	store    *index.Store
	docs     DocumentSource
	last     time.Time
	optimize bool
	now      func() time.Time
	logger   *slog.Logger
	metrics  *telemetry.Metrics
}

// SyncOption configures a Syncer.
type SyncOption func(*Syncer)

// WithSyncLogger sets the logger.
func WithSyncLogger(l *slog.Logger) SyncOption {
	return func(s *Syncer) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithSyncMetrics sets the metrics sink.
func WithSyncMetrics(m *telemetry.Metrics) SyncOption {
	return func(s *Syncer) { s.metrics = m }
}

// WithOptimize force-merges the index after each sync that commits.
func WithOptimize(optimize bool) SyncOption {
	return func(s *Syncer) { s.optimize = optimize }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) SyncOption {
	return func(s *Syncer) { s.now = now }
}

// NewSyncer creates a Syncer. Its first Sync projects every document.
func NewSyncer(store *index.Store, docs DocumentSource, opts ...SyncOption) *Syncer {
	s := &Syncer{
		store:  store,
		docs:   docs,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LastSync returns when the last successful sync started; zero before the first.
func (s *Syncer) LastSync() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Sync re-projects documents modified since the last successful sync and
// removes index records whose document no longer exists. All changes are
// committed as one batch. On error nothing is committed and the next sync
// covers the same documents again.
func (s *Syncer) Sync(ctx context.Context) (SyncResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.sync(ctx)
	s.metrics.SyncRun(err)
	if err != nil {
		s.logger.Error("Index sync failed", serrors.LogAttrs(err)...)
		return SyncResult{}, err
	}
	s.logger.Info("Index synced",
		slog.Int("updated", res.Updated),
		slog.Int("deleted", res.Deleted))
	return res, nil
}

func (s *Syncer) sync(ctx context.Context) (SyncResult, error) {
	started := s.now()

	var (
		changed []int64
		err     error
	)
	if s.last.IsZero() {
		changed, err = s.docs.DocumentIDs(ctx)
	} else {
		changed, err = s.docs.ModifiedSince(ctx, s.last)
	}
	if err != nil {
		return SyncResult{}, err
	}

	existing, err := s.docs.DocumentIDs(ctx)
	if err != nil {
		return SyncResult{}, err
	}
	var indexed []int64
	err = s.store.WithReader(func(r *index.Reader) error {
		var rerr error
		indexed, rerr = r.AllIDs(ctx)
		return rerr
	})
	if err != nil {
		return SyncResult{}, err
	}

	stale := difference(indexed, existing)

	var (
		res      SyncResult
		scopeErr error
	)
	err = s.store.WithWriter(ctx, s.optimize, func(w *index.Writer) error {
		for _, id := range changed {
			doc, err := s.docs.Document(ctx, id)
			if serrors.IsNotFound(err) {
				// deleted after listing; removed below or on the next sync
				continue
			}
			if err != nil {
				scopeErr = err
				return err
			}
			if err := w.UpdateDocument(doc); err != nil {
				scopeErr = err
				return err
			}
			res.Updated++
		}
		for _, id := range stale {
			if err := w.Delete(id); err != nil {
				scopeErr = err
				return err
			}
			res.Deleted++
		}
		return nil
	})
	if err != nil {
		return SyncResult{}, err
	}
	if scopeErr != nil {
		return SyncResult{}, scopeErr
	}

	s.last = started
	return res, nil
}

// difference returns the ids in a that are not in b.
func difference(a, b []int64) []int64 {
	keep := make(map[int64]struct{}, len(b))
	for _, id := range b {
		keep[id] = struct{}{}
	}
	var out []int64
	for _, id := range a {
		if _, ok := keep[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}
