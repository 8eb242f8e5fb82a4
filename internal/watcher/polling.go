package watcher

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// PollingWatcher detects changes to the database files by comparing their
// size and modification time at a fixed interval. It is the fallback when
// fsnotify is unavailable, e.g. on network mounts.
type PollingWatcher struct {
	interval time.Duration
	dir      string
	files    []string
	state    map[string]fileSnapshot
	events   chan FileEvent
	stopCh   chan struct{}
	mu       sync.Mutex
	stopped  bool
	logger   *slog.Logger
}

type fileSnapshot struct {
	modTime time.Time
	size    int64
}

// NewPollingWatcher creates a polling watcher for the database at path.
func NewPollingWatcher(path string, interval time.Duration, logger *slog.Logger) *PollingWatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &PollingWatcher{
		interval: interval,
		dir:      filepath.Dir(path),
		files:    databaseFiles(path),
		state:    make(map[string]fileSnapshot),
		events:   make(chan FileEvent, 100),
		stopCh:   make(chan struct{}),
		logger:   logger,
	}
}

// Start records the current state and polls until ctx is done or Stop is called.
func (p *PollingWatcher) Start(ctx context.Context) error {
	p.mu.Lock()
	p.state = p.snapshot()
	p.mu.Unlock()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = p.Stop()
			return ctx.Err()
		case <-p.stopCh:
			return nil
		case <-ticker.C:
			p.detectChanges()
		}
	}
}

// Stop stops the polling watcher. Safe to call multiple times.
func (p *PollingWatcher) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return nil
	}
	p.stopped = true
	close(p.stopCh)
	close(p.events)
	return nil
}

// Events returns the channel of file events.
func (p *PollingWatcher) Events() <-chan FileEvent {
	return p.events
}

func (p *PollingWatcher) snapshot() map[string]fileSnapshot {
	state := make(map[string]fileSnapshot, len(p.files))
	for _, name := range p.files {
		info, err := os.Stat(filepath.Join(p.dir, name))
		if err != nil {
			continue
		}
		state[name] = fileSnapshot{modTime: info.ModTime(), size: info.Size()}
	}
	return state
}

func (p *PollingWatcher) detectChanges() {
	p.mu.Lock()
	defer p.mu.Unlock()

	current := p.snapshot()
	now := time.Now()

	for name, snap := range current {
		prev, existed := p.state[name]
		switch {
		case !existed:
			p.emit(FileEvent{Path: name, Operation: OpCreate, Timestamp: now})
		case prev != snap:
			p.emit(FileEvent{Path: name, Operation: OpModify, Timestamp: now})
		}
	}
	for name := range p.state {
		if _, ok := current[name]; !ok {
			p.emit(FileEvent{Path: name, Operation: OpDelete, Timestamp: now})
		}
	}
	p.state = current
}

// emit sends an event. Must be called with lock held.
func (p *PollingWatcher) emit(event FileEvent) {
	if p.stopped {
		return
	}
	select {
	case p.events <- event:
	default:
		p.logger.Warn("polling watcher buffer full, dropping event",
			slog.String("path", event.Path),
			slog.String("op", event.Operation.String()))
	}
}
