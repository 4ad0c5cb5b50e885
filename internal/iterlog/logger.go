// Package iterlog implements the Iteration Logger (L9): append structured
// entries via a pluggable writer strategy. Mirrors
// internal/agent/exec_logger.go's mutex-protected, single-writer,
// append-only file logger — generalized from one hardcoded markdown format
// into a Writer interface with JSONL as the default strategy (§6 "Log
// format").
package iterlog

import (
	"fmt"
	"sync"
	"time"
)

// Entry is one structured log record (§3 LogEntry).
type Entry struct {
	Timestamp     time.Time      `json:"timestamp"`
	Level         string         `json:"level"`
	Message       string         `json:"message"`
	Step          int            `json:"step,omitempty"`
	CorrelationID string         `json:"correlationId,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// Writer decides the persistence layout for log entries. Implementations
// must be safe for concurrent Write calls is NOT required — Logger itself
// serializes all writes with a mutex (§5 "single-producer append
// primitive"), so a Writer only needs to append, not lock.
type Writer interface {
	Write(e Entry) error
	Close() error
}

// Logger is the shared, append-only, single-writer-per-run log. Entries
// are strictly ordered by a monotonic per-run step counter starting at 1
// (§8 quantified invariant), never by wall clock.
type Logger struct {
	mu      sync.Mutex
	writer  Writer
	counter int
}

// New constructs a Logger around the given Writer strategy.
func New(w Writer) *Logger {
	return &Logger{writer: w}
}

// Log appends one entry, stamping it with the next monotonic step number
// and the current time.
func (l *Logger) Log(level, message string, correlationID string, metadata map[string]any) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.counter++
	e := Entry{
		Timestamp:     time.Now(),
		Level:         level,
		Message:       message,
		Step:          l.counter,
		CorrelationID: correlationID,
		Metadata:      metadata,
	}
	if err := l.writer.Write(e); err != nil {
		return fmt.Errorf("iterlog: write entry %d: %w", l.counter, err)
	}
	return nil
}

// Close releases the underlying writer.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.writer.Close()
}
