package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/blevesearch/bleve/v2"

	serrors "github.com/docsift/docsift/internal/errors"
	"github.com/docsift/docsift/internal/telemetry"
)

// bleveDirName is the bleve index directory inside the configured index dir.
const bleveDirName = "index.bleve"

// Store owns the full-text index: opening, the single writer and readers.
type Store struct {
	writeMu sync.Mutex

	mu     sync.RWMutex
	idx    bleve.Index
	closed bool

	dir      string
	readOnly bool
	lock     *DirLock
	lockWait time.Duration
	logger   *slog.Logger
	metrics  *telemetry.Metrics
	asnMin   int64
	asnMax   int64
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// WithASNRange sets the inclusive range of archive serial numbers that are indexed.
func WithASNRange(min, max int64) Option {
	return func(s *Store) {
		s.asnMin = min
		s.asnMax = max
	}
}

// WithLockWait sets how long opening waits for another process to release
// the index directory. Zero fails at once.
func WithLockWait(d time.Duration) Option {
	return func(s *Store) { s.lockWait = d }
}

func newStore(dir string, opts []Option) *Store {
	s := &Store{
		dir:      dir,
		logger:   slog.Default(),
		asnMin:   0,
		asnMax:   0xFFFFFFFF,
		lockWait: DefaultLockWait,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open opens the index in dir for writing, creating dir if needed. With
// recreate, or when the existing index cannot be opened (corrupt, other
// schema version), a fresh empty index is created. The directory is locked
// exclusively until Close.
func Open(ctx context.Context, dir string, recreate bool, opts ...Option) (*Store, error) {
	s := newStore(dir, opts)

	lock, err := AcquireDirLock(ctx, dir, LockExclusive, s.lockWait)
	if err != nil {
		return nil, err
	}
	s.lock = lock

	idx, err := s.openIndex(filepath.Join(dir, bleveDirName), recreate)
	if err != nil {
		_ = s.lock.Release()
		return nil, err
	}
	s.idx = idx

	s.logger.Debug("Index opened",
		slog.String("dir", dir),
		slog.Bool("recreate", recreate))
	return s, nil
}

// OpenReadOnly opens an existing index in dir for searching. Any number of
// read-only stores may share the directory; a writer excludes them all.
// A missing, corrupt or outdated index is reported, never rebuilt, and
// WithWriter fails on the returned store.
func OpenReadOnly(ctx context.Context, dir string, opts ...Option) (*Store, error) {
	s := newStore(dir, opts)
	s.readOnly = true

	path := filepath.Join(dir, bleveDirName)
	if _, err := os.Stat(path); err != nil {
		return nil, serrors.New(serrors.ErrCodeIndexOpen, fmt.Sprintf("no index found at %s", dir), err).
			WithSuggestion("run 'docsift index' first")
	}

	lock, err := AcquireDirLock(ctx, dir, LockShared, s.lockWait)
	if err != nil {
		return nil, err
	}
	s.lock = lock

	idx, err := bleve.OpenUsing(path, map[string]interface{}{"read_only": true})
	if err != nil {
		_ = s.lock.Release()
		return nil, serrors.New(serrors.ErrCodeCorruptIndex, fmt.Sprintf("cannot open index at %s", path), err).
			WithSuggestion("run 'docsift index --recreate'")
	}
	if err := checkSchemaVersion(idx); err != nil {
		_ = idx.Close()
		_ = s.lock.Release()
		return nil, serrors.Wrap(serrors.ErrCodeSchemaVersion, err).
			WithSuggestion("run 'docsift index --recreate'")
	}
	s.idx = idx

	s.logger.Debug("Index opened read-only", slog.String("dir", dir))
	return s, nil
}

// OpenMemory creates an in-memory index, used by tests and dry runs.
func OpenMemory(opts ...Option) (*Store, error) {
	s := newStore("", opts)
	im, err := NewMapping()
	if err != nil {
		return nil, err
	}
	idx, err := bleve.NewMemOnly(im)
	if err != nil {
		return nil, serrors.New(serrors.ErrCodeIndexOpen, "cannot create in-memory index", err)
	}
	if err := writeSchemaVersion(idx); err != nil {
		_ = idx.Close()
		return nil, err
	}
	s.idx = idx
	return s, nil
}

func (s *Store) openIndex(path string, recreate bool) (bleve.Index, error) {
	if !recreate {
		idx, err := bleve.Open(path)
		switch {
		case err == nil:
			verr := checkSchemaVersion(idx)
			if verr == nil {
				return idx, nil
			}
			_ = idx.Close()
			s.logger.Warn("Index schema version mismatch, recreating",
				slog.String("path", path),
				slog.String("error", verr.Error()))
		case errors.Is(err, bleve.ErrorIndexPathDoesNotExist):
		default:
			s.logger.Error("Failed to open index, recreating",
				slog.String("path", path),
				slog.String("error", err.Error()))
		}
	}

	if err := os.RemoveAll(path); err != nil {
		return nil, serrors.New(serrors.ErrCodeCorruptIndex, fmt.Sprintf("cannot clear index at %s", path), err)
	}

	im, err := NewMapping()
	if err != nil {
		return nil, err
	}
	idx, err := bleve.New(path, im)
	if err != nil {
		return nil, serrors.New(serrors.ErrCodeIndexOpen, fmt.Sprintf("cannot create index at %s", path), err)
	}
	if err := writeSchemaVersion(idx); err != nil {
		_ = idx.Close()
		return nil, err
	}

	s.metrics.IndexOp(telemetry.OpRecreate)
	s.logger.Info("Index created", slog.String("path", path))
	return idx, nil
}

func writeSchemaVersion(idx bleve.Index) error {
	if err := idx.SetInternal(schemaVersionKey, []byte(strconv.Itoa(SchemaVersion))); err != nil {
		return serrors.New(serrors.ErrCodeIndexOpen, "cannot write schema version", err)
	}
	return nil
}

func checkSchemaVersion(idx bleve.Index) error {
	raw, err := idx.GetInternal(schemaVersionKey)
	if err != nil {
		return err
	}
	if string(raw) != strconv.Itoa(SchemaVersion) {
		return serrors.New(serrors.ErrCodeSchemaVersion,
			fmt.Sprintf("index schema version %q, want %d", raw, SchemaVersion), nil)
	}
	return nil
}

// Dir returns the configured index directory ("" for in-memory stores).
func (s *Store) Dir() string {
	return s.dir
}

// index returns the open bleve index. Callers hold s.mu.
func (s *Store) index() (bleve.Index, error) {
	if s.closed || s.idx == nil {
		return nil, serrors.New(serrors.ErrCodeIndexOpen, "index is closed", nil)
	}
	return s.idx, nil
}

// Close closes the index and releases the directory lock.
func (s *Store) Close() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	var err error
	if s.idx != nil {
		err = s.idx.Close()
	}
	if s.lock != nil {
		if uerr := s.lock.Release(); err == nil {
			err = uerr
		}
	}
	return err
}
