// Package watch re-indexes the corpus when its files change. Events are
// coalesced over a debounce window so a bulk copy triggers one rebuild.
package watch

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/aiist007/24life/engine/domain"
)

// DefaultDebounce is the quiet period before a change is reported.
const DefaultDebounce = 2 * time.Second

// Options configures a Watcher.
type Options struct {
	Debounce time.Duration
	// Filter selects the files whose changes matter. Nil accepts all.
	// Directory events are always relevant.
	Filter func(path string) bool
	Logger *slog.Logger
}

// Watcher watches a directory tree. Symlinked directories are not followed.
type Watcher struct {
	fs       *fsnotify.Watcher
	root     string
	debounce time.Duration
	filter   func(string) bool
	dirs     map[string]struct{}
	logger   *slog.Logger
}

// New registers watches on root and every directory below it.
func New(root string, opts Options) (*Watcher, error) {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.Filter == nil {
		opts.Filter = func(string) bool { return true }
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("watch: resolve %s: %w", root, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("watch: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("watch: %s: %w", abs, domain.ErrNotDirectory)
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch: new watcher: %w", err)
	}
	w := &Watcher{
		fs:       fsw,
		root:     abs,
		debounce: opts.Debounce,
		filter:   opts.Filter,
		dirs:     make(map[string]struct{}),
		logger:   opts.Logger.With("component", "watch"),
	}
	if err := w.addRecursive(abs); err != nil {
		fsw.Close()
		return nil, err
	}
	return w, nil
}

// Root returns the absolute watched root.
func (w *Watcher) Root() string { return w.root }

// Run calls onChange once per burst of relevant events until ctx is done.
// onChange runs on the watcher goroutine; events arriving meanwhile are
// coalesced into the next burst.
func (w *Watcher) Run(ctx context.Context, onChange func(context.Context)) error {
	defer w.fs.Close()

	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			if !w.relevant(ev) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C
		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", "err", err)
		case <-fire:
			fire = nil
			w.logger.Info("corpus changed", "root", w.root)
			onChange(ctx)
		}
	}
}

func (w *Watcher) relevant(ev fsnotify.Event) bool {
	if ev.Has(fsnotify.Chmod) && !ev.Has(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) {
		return false
	}
	if _, ok := w.dirs[ev.Name]; ok {
		if ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
			delete(w.dirs, ev.Name)
		}
		return true
	}
	if ev.Has(fsnotify.Create) {
		if info, err := os.Lstat(ev.Name); err == nil && info.IsDir() {
			if err := w.addRecursive(ev.Name); err != nil {
				w.logger.Warn("watch new directory", "path", ev.Name, "err", err)
			}
			return true
		}
	}
	return w.filter(ev.Name)
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == root {
				return fmt.Errorf("watch: %s: %w", p, err)
			}
			w.logger.Warn("skip unreadable directory", "path", p, "err", err)
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if err := w.fs.Add(p); err != nil {
			if p == root {
				return fmt.Errorf("watch: add %s: %w", p, err)
			}
			w.logger.Warn("watch directory", "path", p, "err", err)
			return nil
		}
		w.dirs[p] = struct{}{}
		return nil
	})
}
