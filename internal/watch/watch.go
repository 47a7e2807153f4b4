// Package watch runs a callback after filesystem changes settle.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"git.home.luguber.info/inful/pmeyes/internal/logfields"
)

// DefaultDebounce is the quiet period before a change is reported.
const DefaultDebounce = 300 * time.Millisecond

// Options configures Run.
type Options struct {
	Debounce  time.Duration
	Recursive bool
	// Filter selects relevant paths. Nil accepts everything not ignored.
	Filter func(path string) bool
	Logger *slog.Logger
}

// Run watches dirs until ctx is done, calling onChange once per burst of
// relevant events. onChange runs on the watch goroutine, so changes made
// while it runs are coalesced into the next call.
func Run(ctx context.Context, dirs []string, opts Options, onChange func(context.Context)) error {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("fsnotify: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	for _, dir := range dirs {
		if err := add(watcher, dir, opts.Recursive, log); err != nil {
			return err
		}
	}

	changed, trigger, stop := debouncer(opts.Debounce)
	defer stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ShouldIgnore(ev.Name) {
				continue
			}
			if opts.Recursive && ev.Op&fsnotify.Create == fsnotify.Create {
				if fi, err := os.Stat(ev.Name); err == nil && fi.IsDir() {
					_ = add(watcher, ev.Name, true, log)
				}
			}
			if opts.Filter != nil && !opts.Filter(ev.Name) {
				continue
			}
			log.Debug("File change detected", logfields.Path(ev.Name), "op", ev.Op.String())
			trigger()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn("Watcher error", logfields.Error(err))
		case <-changed:
			onChange(ctx)
		}
	}
}

func add(w *fsnotify.Watcher, root string, recursive bool, log *slog.Logger) error {
	if !recursive {
		if err := w.Add(root); err != nil {
			return fmt.Errorf("watch %s: %w", root, err)
		}
		return nil
	}
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if err := w.Add(path); err != nil {
				log.Warn("Watch add failed", logfields.Path(path), logfields.Error(err))
			}
		}
		return nil
	})
}

// debouncer returns a channel that receives once per quiet period after
// trigger calls.
func debouncer(d time.Duration) (<-chan struct{}, func(), func()) {
	var mu sync.Mutex
	var timer *time.Timer
	ch := make(chan struct{}, 1)

	trigger := func() {
		mu.Lock()
		defer mu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(d, func() {
			select {
			case ch <- struct{}{}:
			default:
			}
		})
	}
	stop := func() {
		mu.Lock()
		defer mu.Unlock()
		if timer != nil {
			timer.Stop()
		}
	}
	return ch, trigger, stop
}

// ShouldIgnore reports editor temp files, hidden files and our own atomic
// write temporaries.
func ShouldIgnore(path string) bool {
	base := filepath.Base(path)
	switch {
	case strings.HasPrefix(base, "."):
		return true
	case strings.HasSuffix(base, "~"),
		strings.HasSuffix(base, ".swp"),
		strings.HasSuffix(base, ".swx"),
		strings.HasPrefix(base, "#") && strings.HasSuffix(base, "#"):
		return true
	}
	return false
}
