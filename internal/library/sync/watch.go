package sync

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	stdsync "sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher turns filesystem events on the library directory into sync
// passes. Events only shorten the wait: change detection itself stays
// with the scan, so a missed event costs freshness, never correctness.
type Watcher struct {
	dirAbs     string
	extensions []string
	engine     *Engine
	debouncer  *Debouncer

	watcher   *fsnotify.Watcher
	closeOnce stdsync.Once
	closed    chan struct{}
}

// WatchOptions tunes a Watcher.
type WatchOptions struct {
	Debounce time.Duration
}

func NewWatcher(dir string, extensions []string, engine *Engine, opts WatchOptions) (*Watcher, error) {
	dirAbs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	dirAbs = filepath.Clean(dirAbs)
	if strings.TrimSpace(dirAbs) == "" {
		return nil, fmt.Errorf("dir is required")
	}
	if engine == nil {
		return nil, fmt.Errorf("engine is required")
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(dirAbs); err != nil {
		_ = fsw.Close()
		return nil, err
	}

	w := &Watcher{
		dirAbs:     dirAbs,
		extensions: extensions,
		engine:     engine,
		debouncer:  NewDebouncer(opts.Debounce),
		watcher:    fsw,
		closed:     make(chan struct{}),
	}
	w.debouncer.OnFire(func(ids []string) {
		engine.MarkDirty()
		// Best effort: if a pass is already running the dirty flag
		// survives and the next attempt skips the throttle.
		_, _ = engine.TryRunPass(context.Background(), false)
	})
	return w, nil
}

func (w *Watcher) Close() error {
	if w == nil {
		return nil
	}
	w.closeOnce.Do(func() { close(w.closed) })
	if w.watcher == nil {
		return nil
	}
	return w.watcher.Close()
}

func (w *Watcher) Run(ctx context.Context) error {
	if w == nil || w.watcher == nil {
		return fmt.Errorf("watcher is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-w.closed:
			return nil
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			w.handleEvent(ev)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			return err
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}
	name := filepath.Base(ev.Name)
	if name == "" || strings.HasPrefix(name, ".") {
		return
	}
	if !w.matchesExtension(name) {
		return
	}
	w.debouncer.Push(name)
}

func (w *Watcher) matchesExtension(name string) bool {
	if len(w.extensions) == 0 {
		return true
	}
	lower := strings.ToLower(name)
	for _, ext := range w.extensions {
		if strings.HasSuffix(lower, strings.ToLower(ext)) {
			return true
		}
	}
	return false
}
