// Package hotreload watches an agent directory for edits to its prompts,
// steps_registry.json, and rules/soul files, debouncing bursts of saves
// into a single reload callback. Grounded in
// services/trace/graph.FileWatcher (debounced fsnotify batching), scoped
// down to the single flat reload callback the Prompt Resolver and Steps
// Registry need rather than that watcher's per-file change classification.
package hotreload

import (
	"context"
	"io/fs"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ReloadFunc is invoked after a debounce window with no further writes.
// Its string return is a human-readable summary logged by the caller; a
// non-nil error means the reload failed and should be logged, not retried.
type ReloadFunc func() (string, error)

// Watcher batches filesystem change events for one agent directory and
// calls Reload after DebounceWindow elapses with no further events.
type Watcher struct {
	fsw            *fsnotify.Watcher
	debounceWindow time.Duration
	reload         ReloadFunc
}

// DefaultDebounceWindow matches FileWatcher's default; agent
// definitions are edited by hand, not by a build tool emitting bursts of
// saves, so a short window is enough to coalesce an editor's write+rename.
const DefaultDebounceWindow = 150 * time.Millisecond

// New creates a Watcher rooted at dir (an agent's on-disk directory,
// typically .agent/{name}), calling reload once per debounced burst of
// changes under it.
func New(dir string, reload ReloadFunc) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{fsw: fsw, debounceWindow: DefaultDebounceWindow, reload: reload}
	if err := w.addRecursive(dir); err != nil {
		fsw.Close()
		return nil, err
	}
	return w, nil
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			return w.fsw.Add(path)
		}
		return nil
	})
}

// Run blocks, debouncing events and firing Reload, until ctx is canceled.
func (w *Watcher) Run(ctx context.Context, onResult func(summary string, err error)) {
	defer w.fsw.Close()
	var timer *time.Timer
	var timerC <-chan time.Time
	flush := func() {
		summary, err := w.reload()
		if onResult != nil {
			onResult(summary, err)
		}
	}
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if timer == nil {
				timer = time.NewTimer(w.debounceWindow)
				timerC = timer.C
			} else {
				timer.Reset(w.debounceWindow)
			}
		case <-timerC:
			flush()
			timer = nil
			timerC = nil
		case _, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
		}
	}
}
