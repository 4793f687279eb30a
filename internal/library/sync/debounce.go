package sync

import (
	"sort"
	"strings"
	stdsync "sync"
	"time"
)

// Debouncer coalesces bursts of change notifications into a single
// callback: a save in most viewers emits several events for one file.
type Debouncer struct {
	delay time.Duration

	mu     stdsync.Mutex
	timer  *time.Timer
	queued map[string]struct{}
	onFire func(ids []string)
}

func NewDebouncer(delay time.Duration) *Debouncer {
	if delay <= 0 {
		delay = 200 * time.Millisecond
	}
	return &Debouncer{
		delay:  delay,
		queued: map[string]struct{}{},
	}
}

func (d *Debouncer) OnFire(fn func(ids []string)) {
	if d == nil {
		return
	}
	d.mu.Lock()
	d.onFire = fn
	d.mu.Unlock()
}

func (d *Debouncer) Push(id string) {
	if d == nil {
		return
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return
	}

	d.mu.Lock()
	d.queued[id] = struct{}{}
	if d.timer != nil {
		_ = d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, d.fire)
	d.mu.Unlock()
}

func (d *Debouncer) fire() {
	d.mu.Lock()
	queued := d.queued
	d.queued = map[string]struct{}{}
	fn := d.onFire
	d.mu.Unlock()

	if fn == nil || len(queued) == 0 {
		return
	}

	ids := make([]string, 0, len(queued))
	for id := range queued {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	fn(ids)
}
