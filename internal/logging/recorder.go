package logging

import (
	"context"
	"log/slog"
	"sync"
)

// Recorder is a slog.Handler that keeps records in memory.
// Tests use it to assert on emitted log events.
type Recorder struct {
	mu      *sync.Mutex
	records *[]slog.Record
	attrs   []slog.Attr
}

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{mu: &sync.Mutex{}, records: &[]slog.Record{}}
}

// Logger returns a logger writing to r.
func (r *Recorder) Logger() *slog.Logger {
	return slog.New(r)
}

// Enabled accepts every level.
func (r *Recorder) Enabled(context.Context, slog.Level) bool { return true }

// Handle stores a copy of rec.
func (r *Recorder) Handle(_ context.Context, rec slog.Record) error {
	rec = rec.Clone()
	rec.AddAttrs(r.attrs...)
	r.mu.Lock()
	*r.records = append(*r.records, rec)
	r.mu.Unlock()
	return nil
}

// WithAttrs returns a handler sharing r's storage.
func (r *Recorder) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *r
	next.attrs = append(append([]slog.Attr{}, r.attrs...), attrs...)
	return &next
}

// WithGroup is a no-op; groups are flattened.
func (r *Recorder) WithGroup(string) slog.Handler { return r }

// Records returns a snapshot of everything logged so far.
func (r *Recorder) Records() []slog.Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]slog.Record(nil), *r.records...)
}

// Count returns how many records have the given level and message.
// An empty msg matches any message.
func (r *Recorder) Count(level slog.Level, msg string) int {
	n := 0
	for _, rec := range r.Records() {
		if rec.Level == level && (msg == "" || rec.Message == msg) {
			n++
		}
	}
	return n
}
