package index

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/index/scorch/mergeplan"

	serrors "github.com/docsift/docsift/internal/errors"
	"github.com/docsift/docsift/internal/telemetry"
)

// Writer collects changes for one WithWriter scope. Nothing is visible to
// readers until the scope commits.
type Writer struct {
	store  *Store
	batch  *bleve.Batch
	closed bool
}

// Update upserts rec by id.
func (w *Writer) Update(rec Record) error {
	if w.closed {
		return serrors.New(serrors.ErrCodeIndexFailed, "writer used outside its scope", nil)
	}
	id := strconv.FormatInt(rec.ID, 10)
	if err := w.batch.Index(id, recordFields(rec)); err != nil {
		return serrors.New(serrors.ErrCodeIndexFailed, fmt.Sprintf("cannot index document %d", rec.ID), err)
	}
	w.store.metrics.IndexOp(telemetry.OpUpdate)
	return nil
}

// Delete removes the record with the given id. Unknown ids are ignored.
func (w *Writer) Delete(id int64) error {
	if w.closed {
		return serrors.New(serrors.ErrCodeIndexFailed, "writer used outside its scope", nil)
	}
	w.batch.Delete(strconv.FormatInt(id, 10))
	w.store.metrics.IndexOp(telemetry.OpDelete)
	return nil
}

// Pending returns the number of uncommitted operations.
func (w *Writer) Pending() int {
	return w.batch.Size()
}

// WithWriter runs fn with the single index writer.
//
// Changes made by fn are committed as one batch when fn returns nil. When fn
// returns an error the batch is discarded and the error is logged, not
// returned; the closing commit is then a no-op. A panic in fn discards the
// batch and propagates. With optimize, segments are force-merged after a
// successful commit. Only commit failures are returned.
func (s *Store) WithWriter(ctx context.Context, optimize bool, fn func(*Writer) error) error {
	if s.readOnly {
		return serrors.New(serrors.ErrCodeIndexOpen, "index was opened read-only", nil)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.RLock()
	defer s.mu.RUnlock()

	idx, err := s.index()
	if err != nil {
		return err
	}

	w := &Writer{store: s, batch: idx.NewBatch()}
	defer func() {
		w.closed = true
		if r := recover(); r != nil {
			s.cancel(w)
			panic(r)
		}
	}()

	cancelled := false
	if ferr := fn(w); ferr != nil {
		s.logger.Error("Index writer failed, batch discarded", serrors.LogAttrs(ferr)...)
		s.cancel(w)
		cancelled = true
	}

	if err := ctx.Err(); err != nil {
		if !cancelled {
			s.cancel(w)
		}
		return err
	}

	if err := s.commit(idx, w.batch); err != nil {
		return err
	}

	if optimize {
		s.optimize(ctx, idx)
	}
	return nil
}

func (s *Store) cancel(w *Writer) {
	if w.batch.Size() > 0 {
		s.logger.Warn("Index batch cancelled", slog.Int("operations", w.batch.Size()))
	}
	w.batch.Reset()
	s.metrics.IndexOp(telemetry.OpCancel)
}

func (s *Store) commit(idx bleve.Index, batch *bleve.Batch) error {
	n := batch.Size()
	if n == 0 {
		return nil
	}
	if err := idx.Batch(batch); err != nil {
		return serrors.New(serrors.ErrCodeIndexFailed, "index commit failed", err)
	}
	s.metrics.IndexOp(telemetry.OpCommit)
	s.logger.Debug("Index batch committed", slog.Int("operations", n))
	return nil
}

type forceMerger interface {
	ForceMerge(ctx context.Context, mo *mergeplan.MergePlanOptions) error
}

// optimize merges the index down to as few segments as the merge planner allows.
// Failures leave the committed data intact and are only logged.
func (s *Store) optimize(ctx context.Context, idx bleve.Index) {
	adv, err := idx.Advanced()
	if err != nil {
		s.logger.Warn("Index optimize failed", slog.String("error", err.Error()))
		return
	}
	merger, ok := adv.(forceMerger)
	if !ok {
		s.logger.Debug("Index optimize not supported")
		return
	}

	opts := mergeplan.DefaultMergePlanOptions
	opts.MaxSegmentsPerTier = 1
	if err := merger.ForceMerge(ctx, &opts); err != nil {
		s.logger.Warn("Index optimize failed", slog.String("error", err.Error()))
		return
	}
	s.metrics.IndexOp(telemetry.OpOptimize)
}
