package index

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	serrors "github.com/docsift/docsift/internal/errors"
)

const (
	lockFileName = "write.lock"

	// DefaultLockWait is how long opening waits for a conflicting process.
	DefaultLockWait = 2 * time.Second

	lockPollInterval = 50 * time.Millisecond
)

// LockMode selects how an index directory is shared between processes.
type LockMode int

const (
	// LockExclusive admits one process, which may write.
	LockExclusive LockMode = iota
	// LockShared admits any number of read-only processes and no writer.
	LockShared
)

func (m LockMode) String() string {
	if m == LockShared {
		return "shared"
	}
	return "exclusive"
}

// DirLock is the cross-process lock on an index directory, held from Open
// until Close.
type DirLock struct {
	flock *flock.Flock
	mode  LockMode
}

// AcquireDirLock locks <dir>/write.lock in mode, polling for up to wait while
// another process holds a conflicting lock. A zero wait tries once. A
// conflict that outlasts wait fails with ErrCodeIndexLocked.
func AcquireDirLock(ctx context.Context, dir string, mode LockMode, wait time.Duration) (*DirLock, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, serrors.New(serrors.ErrCodeIndexOpen, fmt.Sprintf("cannot create index directory %s", dir), err)
	}

	l := &DirLock{
		flock: flock.New(filepath.Join(dir, lockFileName)),
		mode:  mode,
	}

	ok, err := l.try(ctx, wait)
	switch {
	case ok:
		return l, nil
	case err == nil, errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
		return nil, l.conflict(dir)
	case ctx.Err() != nil:
		return nil, ctx.Err()
	default:
		return nil, serrors.New(serrors.ErrCodeIndexOpen, "cannot lock index directory", err)
	}
}

func (l *DirLock) try(ctx context.Context, wait time.Duration) (bool, error) {
	if wait <= 0 {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		if l.mode == LockShared {
			return l.flock.TryRLock()
		}
		return l.flock.TryLock()
	}

	ctx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()
	if l.mode == LockShared {
		return l.flock.TryRLockContext(ctx, lockPollInterval)
	}
	return l.flock.TryLockContext(ctx, lockPollInterval)
}

func (l *DirLock) conflict(dir string) error {
	if l.mode == LockShared {
		return serrors.New(serrors.ErrCodeIndexLocked, fmt.Sprintf("index %s is being written by another process", dir), nil).
			WithSuggestion("wait for 'docsift index' to finish, or stop 'docsift index --watch'")
	}
	return serrors.New(serrors.ErrCodeIndexLocked, fmt.Sprintf("index %s is in use by another process", dir), nil).
		WithSuggestion("wait for the other docsift process to finish")
}

// Mode returns the mode the lock was taken in.
func (l *DirLock) Mode() LockMode {
	return l.mode
}

// Path returns the path of the lock file.
func (l *DirLock) Path() string {
	return l.flock.Path()
}

// Release unlocks the directory. Safe to call more than once.
func (l *DirLock) Release() error {
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to release index lock: %w", err)
	}
	return nil
}
