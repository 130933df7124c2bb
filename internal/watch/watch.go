// Package watch re-runs a handler whenever a pipeline file changes on disk.
package watch

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/felixgeelhaar/pipescope/internal/log"
)

// DefaultDebounce collapses the burst of events editors emit on save
const DefaultDebounce = 300 * time.Millisecond

// Handler is called with the absolute path of a changed file
type Handler func(ctx context.Context, path string) error

// Watcher watches a fixed set of files
type Watcher struct {
	paths    []string
	handler  Handler
	debounce time.Duration
	logger   *log.Logger
}

// Option configures a Watcher
type Option func(*Watcher)

// WithDebounce sets the quiet period before a change is handled
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) { w.debounce = d }
}

// WithLogger sets the logger
func WithLogger(l *log.Logger) Option {
	return func(w *Watcher) { w.logger = l }
}

// New returns a Watcher for paths
func New(paths []string, handler Handler, opts ...Option) (*Watcher, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("watch: no paths")
	}
	w := &Watcher{handler: handler, debounce: DefaultDebounce, logger: log.Discard()}
	for _, opt := range opts {
		opt(w)
	}
	seen := map[string]bool{}
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, fmt.Errorf("watch %s: %w", p, err)
		}
		if !seen[abs] {
			seen[abs] = true
			w.paths = append(w.paths, abs)
		}
	}
	sort.Strings(w.paths)
	w.logger = w.logger.WithComponent("watch")
	return w, nil
}

// Paths returns the watched files
func (w *Watcher) Paths() []string {
	return append([]string(nil), w.paths...)
}

// Run handles every path once, then again after each change, until ctx is
// done. Handler errors are logged and do not stop the loop.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	defer fw.Close()

	// Editors often replace files, so the parent directories are watched
	wanted := map[string]bool{}
	dirs := map[string]bool{}
	for _, p := range w.paths {
		wanted[p] = true
		dir := filepath.Dir(p)
		if dirs[dir] {
			continue
		}
		if err := fw.Add(dir); err != nil {
			return fmt.Errorf("watch %s: %w", dir, err)
		}
		dirs[dir] = true
	}

	for _, p := range w.paths {
		if ctx.Err() != nil {
			return nil
		}
		w.handle(ctx, p)
	}

	tick := max(w.debounce/4, 10*time.Millisecond)
	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	pending := map[string]time.Time{}

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			name := filepath.Clean(ev.Name)
			if !wanted[name] || ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.logger.Debug("change detected", "path", name, "op", ev.Op.String())
			pending[name] = time.Now().Add(w.debounce)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher error", "error", err)

		case now := <-ticker.C:
			due := make([]string, 0, len(pending))
			for p, at := range pending {
				if !now.Before(at) {
					due = append(due, p)
				}
			}
			sort.Strings(due)
			for _, p := range due {
				delete(pending, p)
				w.handle(ctx, p)
			}
		}
	}
}

func (w *Watcher) handle(ctx context.Context, path string) {
	if err := w.handler(ctx, path); err != nil {
		w.logger.WithError(err).Error("handler failed", "path", path)
	}
}
