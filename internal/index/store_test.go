package index

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	serrors "github.com/docsift/docsift/internal/errors"
	"github.com/docsift/docsift/internal/logging"
)

func openDisk(t *testing.T, dir string, recreate bool) *Store {
	t.Helper()
	s, err := Open(context.Background(), dir, recreate, WithLockWait(0), WithLogger(logging.NewRecorder().Logger()))
	require.NoError(t, err)
	return s
}

func TestOpen_CreatesDirectoriesAndPersists(t *testing.T) {
	// Given: a missing nested directory
	dir := filepath.Join(t.TempDir(), "a", "b", "index")

	// When: opening, indexing and reopening
	s := openDisk(t, dir, false)
	indexDocs(t, s, invoiceDoc(), letterDoc())
	require.NoError(t, s.Close())

	s = openDisk(t, dir, false)
	defer s.Close()

	// Then: the documents survived
	assert.DirExists(t, filepath.Join(dir, bleveDirName))
	assert.Equal(t, uint64(2), docCount(t, s))
}

func TestOpen_RecreateEmptiesIndex(t *testing.T) {
	dir := t.TempDir()
	s := openDisk(t, dir, false)
	indexDocs(t, s, invoiceDoc())
	require.NoError(t, s.Close())

	s = openDisk(t, dir, true)
	defer s.Close()

	assert.Zero(t, docCount(t, s))
}

func TestOpen_CorruptIndexIsRecreated(t *testing.T) {
	// Given: an index whose metadata is garbage
	dir := t.TempDir()
	s := openDisk(t, dir, false)
	indexDocs(t, s, invoiceDoc())
	require.NoError(t, s.Close())
	require.NoError(t, os.WriteFile(filepath.Join(dir, bleveDirName, "index_meta.json"), []byte("{not json"), 0o644))

	// When: opening it again
	rec := logging.NewRecorder()
	s, err := Open(context.Background(), dir, false, WithLockWait(0), WithLogger(rec.Logger()))
	require.NoError(t, err)
	defer s.Close()

	// Then: the failure is logged and a fresh index is usable
	assert.Equal(t, 1, rec.Count(slog.LevelError, "Failed to open index, recreating"))
	assert.Zero(t, docCount(t, s))
	indexDocs(t, s, letterDoc())
	assert.Equal(t, uint64(1), docCount(t, s))
}

func TestOpen_SchemaVersionMismatchRecreates(t *testing.T) {
	dir := t.TempDir()
	s := openDisk(t, dir, false)
	indexDocs(t, s, invoiceDoc())
	require.NoError(t, s.idx.SetInternal(schemaVersionKey, []byte("0")))
	require.NoError(t, s.Close())

	s = openDisk(t, dir, false)
	defer s.Close()

	assert.Zero(t, docCount(t, s))
}

func TestOpen_LockedByAnotherStore(t *testing.T) {
	dir := t.TempDir()
	first := openDisk(t, dir, false)
	defer first.Close()

	_, err := Open(context.Background(), dir, false, WithLockWait(0))

	require.Error(t, err)
	assert.Equal(t, serrors.ErrCodeIndexLocked, serrors.GetCode(err))
	assert.True(t, serrors.IsRetryable(err))
}

func TestOpenReadOnly_SharedBetweenReaders(t *testing.T) {
	// Given: an index written and closed by a writer
	dir := t.TempDir()
	w := openDisk(t, dir, false)
	indexDocs(t, w, invoiceDoc(), letterDoc())
	require.NoError(t, w.Close())

	// When: two read-only stores open the same directory
	first, err := OpenReadOnly(context.Background(), dir, WithLockWait(0))
	require.NoError(t, err)
	defer first.Close()
	second, err := OpenReadOnly(context.Background(), dir, WithLockWait(0))
	require.NoError(t, err)
	defer second.Close()

	// Then: both see the documents and a writer is kept out
	assert.Equal(t, uint64(2), docCount(t, first))
	assert.Equal(t, uint64(2), docCount(t, second))

	_, err = Open(context.Background(), dir, false, WithLockWait(0))
	assert.Equal(t, serrors.ErrCodeIndexLocked, serrors.GetCode(err))
}

func TestOpenReadOnly_RejectsWrites(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, openDisk(t, dir, false).Close())

	s, err := OpenReadOnly(context.Background(), dir, WithLockWait(0))
	require.NoError(t, err)
	defer s.Close()

	err = s.AddOrUpdateDocument(context.Background(), invoiceDoc())
	assert.Equal(t, serrors.ErrCodeIndexOpen, serrors.GetCode(err))
	assert.Zero(t, docCount(t, s))
}

func TestOpenReadOnly_BlockedByWriter(t *testing.T) {
	dir := t.TempDir()
	w := openDisk(t, dir, false)
	defer w.Close()

	_, err := OpenReadOnly(context.Background(), dir, WithLockWait(0))

	assert.Equal(t, serrors.ErrCodeIndexLocked, serrors.GetCode(err))
}

func TestOpenReadOnly_MissingIndex(t *testing.T) {
	_, err := OpenReadOnly(context.Background(), filepath.Join(t.TempDir(), "none"), WithLockWait(0))

	require.Error(t, err)
	assert.Equal(t, serrors.ErrCodeIndexOpen, serrors.GetCode(err))
}

func TestOpenReadOnly_SchemaMismatchIsReported(t *testing.T) {
	dir := t.TempDir()
	w := openDisk(t, dir, false)
	require.NoError(t, w.idx.SetInternal(schemaVersionKey, []byte("0")))
	require.NoError(t, w.Close())

	_, err := OpenReadOnly(context.Background(), dir, WithLockWait(0))

	assert.Equal(t, serrors.ErrCodeSchemaVersion, serrors.GetCode(err))

	// the outdated index was left for a writer to rebuild
	s := openDisk(t, dir, false)
	defer s.Close()
	assert.Zero(t, docCount(t, s))
}

func TestClose_ReleasesLockAndIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	s := openDisk(t, dir, false)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	again := openDisk(t, dir, false)
	require.NoError(t, again.Close())

	err := s.WithReader(func(*Reader) error { return nil })
	assert.Error(t, err)
}

func TestWithWriter_CommitsOnSuccess(t *testing.T) {
	s, _ := newMemStore(t)

	err := s.WithWriter(context.Background(), false, func(w *Writer) error {
		require.NoError(t, w.UpdateDocument(invoiceDoc()))
		require.NoError(t, w.UpdateDocument(letterDoc()))
		assert.Equal(t, 2, w.Pending())
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, uint64(2), docCount(t, s))
}

func TestWithWriter_ErrorCancelsAndIsNotReturned(t *testing.T) {
	// Given: one committed document
	s, rec := newMemStore(t)
	indexDocs(t, s, letterDoc())

	// When: a scope adds a document and then fails
	err := s.WithWriter(context.Background(), false, func(w *Writer) error {
		require.NoError(t, w.UpdateDocument(invoiceDoc()))
		require.NoError(t, w.RemoveDocument(letterDoc().ID))
		return errors.New("projection exploded")
	})

	// Then: nothing changed, the error was logged but not returned
	require.NoError(t, err)
	assert.Equal(t, uint64(1), docCount(t, s))
	assert.Equal(t, 1, rec.Count(slog.LevelError, "Index writer failed, batch discarded"))
}

func TestWithWriter_PanicCancelsAndPropagates(t *testing.T) {
	s, _ := newMemStore(t)

	assert.PanicsWithValue(t, "boom", func() {
		_ = s.WithWriter(context.Background(), false, func(w *Writer) error {
			_ = w.UpdateDocument(invoiceDoc())
			panic("boom")
		})
	})

	assert.Zero(t, docCount(t, s))
	// the writer lock was released
	indexDocs(t, s, letterDoc())
	assert.Equal(t, uint64(1), docCount(t, s))
}

func TestWithWriter_WriterUnusableAfterScope(t *testing.T) {
	s, _ := newMemStore(t)

	var leaked *Writer
	require.NoError(t, s.WithWriter(context.Background(), false, func(w *Writer) error {
		leaked = w
		return nil
	}))

	assert.Error(t, leaked.UpdateDocument(invoiceDoc()))
	assert.Error(t, leaked.RemoveDocument(1))
}

func TestWithWriter_CancelledContext(t *testing.T) {
	s, _ := newMemStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.WithWriter(ctx, false, func(w *Writer) error {
		return w.UpdateDocument(invoiceDoc())
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, docCount(t, s))
}

func TestWithWriter_Optimize(t *testing.T) {
	s := openDisk(t, t.TempDir(), false)
	defer s.Close()

	for i := int64(1); i <= 5; i++ {
		doc := letterDoc()
		doc.ID = i
		indexDocs(t, s, doc)
	}
	err := s.WithWriter(context.Background(), true, func(w *Writer) error {
		return w.UpdateDocument(invoiceDoc())
	})

	require.NoError(t, err)
	assert.Equal(t, uint64(5), docCount(t, s))
}

func TestWithWriter_SerializesWriters(t *testing.T) {
	s, _ := newMemStore(t)
	done := make(chan struct{})
	entered := make(chan struct{})

	go func() {
		_ = s.WithWriter(context.Background(), false, func(w *Writer) error {
			close(entered)
			<-done
			return w.UpdateDocument(invoiceDoc())
		})
	}()
	<-entered

	second := make(chan struct{})
	go func() {
		_ = s.WithWriter(context.Background(), false, func(w *Writer) error {
			close(second)
			return nil
		})
	}()

	select {
	case <-second:
		t.Fatal("second writer entered while the first was active")
	case <-time.After(50 * time.Millisecond):
	}
	close(done)
	<-second
}

func TestReader_ClosedAfterScope(t *testing.T) {
	s, _ := newMemStore(t)
	indexDocs(t, s, invoiceDoc())

	var leaked *Reader
	require.NoError(t, s.WithReader(func(r *Reader) error {
		leaked = r
		return nil
	}))

	_, err := leaked.DocCount()
	assert.Equal(t, serrors.ErrCodeReaderClosed, serrors.GetCode(err))
	_, _, err = leaked.Document(context.Background(), 1)
	assert.Error(t, err)
}

func TestReader_SnapshotIgnoresLaterCommits(t *testing.T) {
	// Given: a store with two documents and an open reader
	s, _ := newMemStore(t)
	indexDocs(t, s, invoiceDoc(), letterDoc())
	ctx := context.Background()

	require.NoError(t, s.WithReader(func(r *Reader) error {
		before, err := r.DocCount()
		require.NoError(t, err)

		// When: another goroutine commits a document during the scope
		done := make(chan error, 1)
		go func() {
			doc := letterDoc()
			doc.ID = 99
			done <- s.AddOrUpdateDocument(ctx, doc)
		}()
		require.NoError(t, <-done)

		// Then: the reader still sees the index as of its opening
		after, err := r.DocCount()
		require.NoError(t, err)
		assert.Equal(t, before, after)

		_, found, err := r.Document(ctx, 99)
		require.NoError(t, err)
		assert.False(t, found)

		df, err := r.DocFrequency(FieldContent, "bank")
		require.NoError(t, err)
		assert.Equal(t, uint64(1), df)

		res, err := r.Search(ctx, bleve.NewSearchRequest(bleve.NewMatchAllQuery()))
		require.NoError(t, err)
		assert.Equal(t, uint64(2), res.Total)
		return nil
	}))

	// and a new scope sees the commit
	assert.Equal(t, uint64(3), docCount(t, s))
}

func TestReader_PropagatesScopeError(t *testing.T) {
	s, _ := newMemStore(t)
	want := errors.New("caller failed")

	err := s.WithReader(func(*Reader) error { return want })

	assert.ErrorIs(t, err, want)
}

func TestReader_AllIDsAndDictionary(t *testing.T) {
	s, _ := newMemStore(t)
	indexDocs(t, s, invoiceDoc(), letterDoc())

	require.NoError(t, s.WithReader(func(r *Reader) error {
		ids, err := r.AllIDs(context.Background())
		require.NoError(t, err)
		assert.ElementsMatch(t, []int64{1, 2}, ids)

		df, err := r.DocFrequency(FieldContent, "invoice")
		require.NoError(t, err)
		assert.Equal(t, uint64(1), df)

		df, err = r.DocFrequency(FieldContent, "absent")
		require.NoError(t, err)
		assert.Zero(t, df)

		terms, err := r.Terms(FieldContent, "ba")
		require.NoError(t, err)
		require.Len(t, terms, 1)
		assert.Equal(t, "bank", terms[0].Term)
		return nil
	}))
}
