package sync

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	stdsync "sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/failab-tohoku/failab-library/internal/index/store"
	"github.com/failab-tohoku/failab-library/internal/library/reader"
)

// DocumentSource enumerates the current on-disk document set.
type DocumentSource interface {
	// Scan returns id -> mtime plus ids rejected for key collisions.
	Scan() (map[string]int64, []string, error)
	Dir() string
}

// Options tunes a sync Engine.
type Options struct {
	// MinInterval throttles unforced passes; 0 disables throttling.
	MinInterval time.Duration

	// Workers bounds concurrent document extraction in one pass.
	Workers int

	// Readers resolves a reader per document id. Defaults to
	// reader.ForExtension.
	Readers func(id string) (reader.Reader, error)

	Logger *slog.Logger
}

// Engine reconciles the on-disk document set with the index. A pass is
// expensive, so at most one runs at a time process-wide and unforced
// passes are spaced by MinInterval.
type Engine struct {
	src     DocumentSource
	st      store.Store
	minGap  time.Duration
	workers int
	readers func(id string) (reader.Reader, error)
	log     *slog.Logger

	// runMu is the pass try-lock: callers that cannot take it return
	// immediately instead of queueing redundant rescans.
	runMu stdsync.Mutex

	stateMu  stdsync.Mutex
	lastSync time.Time
	dirty    bool
}

func New(src DocumentSource, st store.Store, opts Options) *Engine {
	workers := opts.Workers
	if workers <= 0 {
		workers = 4
	}
	readers := opts.Readers
	if readers == nil {
		readers = reader.ForExtension
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		src:     src,
		st:      st,
		minGap:  opts.MinInterval,
		workers: workers,
		readers: readers,
		log:     log,
	}
}

// MarkDirty lets the next unforced TryRunPass skip the throttle window.
// Watch events call this; change detection itself stays poll-based.
func (e *Engine) MarkDirty() {
	e.stateMu.Lock()
	e.dirty = true
	e.stateMu.Unlock()
}

// LastSync reports the completion time of the last pass that ran, zero
// if none has.
func (e *Engine) LastSync() time.Time {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	return e.lastSync
}

// TryRunPass runs one reconciliation pass if it is due. It never
// blocks behind a running pass: ran=false means another pass is in
// flight or the throttle window has not elapsed. A scan failure
// surfaces as an error with no mutations performed; per-document
// extraction failures are logged and skipped, leaving that document's
// prior index state untouched.
func (e *Engine) TryRunPass(ctx context.Context, force bool) (bool, error) {
	if !force && !e.due() {
		return false, nil
	}

	if !e.runMu.TryLock() {
		return false, nil
	}
	defer e.runMu.Unlock()

	// Re-check under the lock: two callers can both pass the first
	// check before either records a completion time.
	if !force && !e.due() {
		return false, nil
	}

	// Consume the dirty flag up front so a change arriving mid-pass
	// re-arms it, but put it back if this pass fails: the watch signal
	// must survive until a pass actually absorbs it.
	e.stateMu.Lock()
	wasDirty := e.dirty
	e.dirty = false
	e.stateMu.Unlock()

	if err := e.runPass(ctx); err != nil {
		if wasDirty {
			e.MarkDirty()
		}
		return false, err
	}

	e.stateMu.Lock()
	e.lastSync = time.Now()
	e.stateMu.Unlock()
	return true, nil
}

func (e *Engine) due() bool {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	if e.dirty {
		return true
	}
	if e.minGap <= 0 {
		return true
	}
	return e.lastSync.IsZero() || time.Since(e.lastSync) >= e.minGap
}

func (e *Engine) runPass(ctx context.Context) error {
	disk, rejected, err := e.src.Scan()
	if err != nil {
		return fmt.Errorf("sync scan: %w", err)
	}
	for _, id := range rejected {
		e.log.Warn("document rejected: derived key collision", "id", id)
	}

	indexed, err := e.st.ListIndexedIDs()
	if err != nil {
		return fmt.Errorf("sync list indexed: %w", err)
	}

	// Removals first: a same-named replacement file must never be
	// served under stale metadata.
	rejectedSet := map[string]bool{}
	for _, id := range rejected {
		rejectedSet[id] = true
	}
	for _, id := range indexed {
		if _, onDisk := disk[id]; onDisk || rejectedSet[id] {
			continue
		}
		if err := e.st.RemoveDocument(id); err != nil {
			e.log.Error("sync remove failed", "id", id, "error", err)
			continue
		}
		e.log.Info("document removed from index", "id", id)
	}

	ids := make([]string, 0, len(disk))
	for id := range disk {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var g errgroup.Group
	g.SetLimit(e.workers)
	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		id := id
		mtime := disk[id]
		g.Go(func() error {
			e.syncDocument(ctx, id, mtime)
			return nil
		})
	}
	_ = g.Wait()

	return ctx.Err()
}

// syncDocument indexes one NEW or MODIFIED document. Failures are
// logged, never propagated: one corrupt file must not starve the rest
// of the pass, and its previous index state stays valid.
func (e *Engine) syncDocument(ctx context.Context, id string, mtime int64) {
	meta, ok, err := e.st.GetMeta(id)
	if err != nil {
		e.log.Error("sync meta lookup failed", "id", id, "error", err)
		return
	}
	if ok && meta.MTime == mtime {
		return // UNCHANGED
	}

	pages, pageCount, err := e.extract(id)
	if err != nil {
		e.log.Warn("document extraction failed, keeping prior index state",
			"id", id, "error", err)
		return
	}
	if ctx.Err() != nil {
		return
	}

	if err := e.st.ReplaceDocument(id, mtime, pageCount, pages); err != nil {
		e.log.Error("sync replace failed", "id", id, "error", err)
		return
	}
	e.log.Info("document indexed", "id", id, "pages", pageCount)
}

func (e *Engine) extract(id string) ([]store.Page, int, error) {
	r, err := e.readers(id)
	if err != nil {
		return nil, 0, err
	}

	doc, err := r.Open(filepath.Join(e.src.Dir(), id))
	if err != nil {
		return nil, 0, err
	}
	defer doc.Close()

	pageCount := doc.PageCount()
	pages := make([]store.Page, 0, pageCount)
	for n := 1; n <= pageCount; n++ {
		raw, err := doc.PageText(n)
		if err != nil {
			return nil, 0, err
		}
		pages = append(pages, store.Page{Number: n, Text: reader.CleanText(raw)})
	}
	return pages, pageCount, nil
}
