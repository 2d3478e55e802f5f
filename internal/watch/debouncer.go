package watch

import (
	"log/slog"
	"path/filepath"
	"sync"
	"time"
)

// DefaultDebounce is the coalescing window used when none is configured.
const DefaultDebounce = time.Second

// Debouncer coalesces rapid events per path. Only the last event seen for a
// path within the interval is emitted, once the path has been quiet for the
// whole interval.
//
// fsnotify reports a rename as two events: a rename on the old name followed
// by a create on the new one. The debouncer pairs them into a single OpRename
// carrying the new name when the create stays in the same directory or keeps
// the base name. An old half that is not followed by such a create within
// the interval (the file left the watched scope) is emitted as OpRemove.
type Debouncer struct {
	interval time.Duration
	emit     func(RawEvent)

	mu       sync.Mutex
	pending  map[string]*pendingEvent
	rename   *pendingEvent
	stopped  bool
	flushing sync.WaitGroup
}

type pendingEvent struct {
	event RawEvent
	timer *time.Timer
}

// NewDebouncer creates a debouncer that hands coalesced events to emit.
// emit is called from timer goroutines, one call per flushed path.
func NewDebouncer(interval time.Duration, emit func(RawEvent)) *Debouncer {
	if interval <= 0 {
		interval = DefaultDebounce
	}

	return &Debouncer{
		interval: interval,
		emit:     emit,
		pending:  make(map[string]*pendingEvent),
	}
}

// Trigger records an event.
func (d *Debouncer) Trigger(ev RawEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}

	// A trailing chmod must not replace the write it follows.
	if Normalize(ev).Kind == Ignored {
		if _, ok := d.pending[ev.Path]; ok {
			return
		}
	}

	switch {
	case ev.Op == OpRename && ev.From == "":
		d.holdRenameLocked(ev)
		return
	case ev.Op == OpCreate && d.rename != nil:
		old := d.rename
		if !renamePartners(old.event.Path, ev.Path) {
			d.releaseRenameLocked()
			break
		}

		d.rename = nil
		old.timer.Stop()
		d.dropLocked(old.event.Path)

		ev = RawEvent{Path: ev.Path, From: old.event.Path, Op: OpRename}
	}

	d.scheduleLocked(ev)
}

// Foreign records an event outside every watched scope. A create there is
// the new half of a held rename: the old name left the scope and is
// reported as removed.
func (d *Debouncer) Foreign(ev RawEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped || ev.Op != OpCreate || d.rename == nil {
		return
	}

	d.releaseRenameLocked()
}

// renamePartners reports whether a create on newPath can complete a rename
// away from oldPath.
func renamePartners(oldPath, newPath string) bool {
	return filepath.Dir(oldPath) == filepath.Dir(newPath) ||
		filepath.Base(oldPath) == filepath.Base(newPath)
}

// queued reports how many paths are waiting to be flushed.
func (d *Debouncer) queued() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	n := len(d.pending)
	if d.rename != nil {
		n++
	}

	return n
}

// Stop cancels all pending events and waits for in-flight emits to return.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	d.stopped = true

	for path, p := range d.pending {
		p.timer.Stop()
		delete(d.pending, path)
	}

	if d.rename != nil {
		d.rename.timer.Stop()
		d.rename = nil
	}
	d.mu.Unlock()

	d.flushing.Wait()
}

func (d *Debouncer) scheduleLocked(ev RawEvent) {
	d.dropLocked(ev.Path)

	p := &pendingEvent{event: ev}
	p.timer = time.AfterFunc(d.interval, func() {
		d.flush(ev.Path, p)
	})
	d.pending[ev.Path] = p
}

func (d *Debouncer) dropLocked(path string) {
	if p, ok := d.pending[path]; ok {
		p.timer.Stop()
		delete(d.pending, path)
	}
}

func (d *Debouncer) holdRenameLocked(ev RawEvent) {
	if d.rename != nil {
		// Two old halves in a row: the first one has no partner.
		d.releaseRenameLocked()
	}

	p := &pendingEvent{event: ev}
	p.timer = time.AfterFunc(d.interval, func() {
		d.expireRename(p)
	})
	d.rename = p
}

// releaseRenameLocked gives up on pairing the held old half and schedules
// it as a remove.
func (d *Debouncer) releaseRenameLocked() {
	old := d.rename
	d.rename = nil
	old.timer.Stop()
	d.scheduleLocked(RawEvent{Path: old.event.Path, Op: OpRemove})
}

func (d *Debouncer) expireRename(p *pendingEvent) {
	d.mu.Lock()
	if d.stopped || d.rename != p {
		d.mu.Unlock()
		return
	}

	d.rename = nil
	d.dropLocked(p.event.Path)
	d.flushing.Add(1)
	d.mu.Unlock()

	defer d.flushing.Done()

	d.fire(RawEvent{Path: p.event.Path, Op: OpRemove})
}

func (d *Debouncer) flush(path string, p *pendingEvent) {
	d.mu.Lock()
	if d.stopped || d.pending[path] != p {
		d.mu.Unlock()
		return
	}

	delete(d.pending, path)
	d.flushing.Add(1)
	d.mu.Unlock()

	defer d.flushing.Done()

	d.fire(p.event)
}

func (d *Debouncer) fire(ev RawEvent) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("debouncer emit panicked", slog.Any("error", r))
		}
	}()

	d.emit(ev)
}
