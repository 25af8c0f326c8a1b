package watching

import (
	"time"
)

// pendingEvent is a debounced event awaiting flush.
type pendingEvent struct {
	// root is the root that observed the event.
	root *root
	// path is the absolute path the event applies to.
	path string
	// kind is the logical event kind.
	kind Kind
	// firstSeen is the time at which the entry was created.
	firstSeen time.Time
	// timer is the flush timer.
	timer *time.Timer
}

// debouncer implements the per-path coalescing window for a single root. It
// must only be accessed from the watcher's dispatcher, with the exception of
// the flush timers, which post back to the dispatcher via the flush channel.
type debouncer struct {
	// delay is the coalescing window duration.
	delay time.Duration
	// pending maps absolute paths to their pending entries.
	pending map[string]*pendingEvent
	// flushes is the dispatcher's flush channel.
	flushes chan<- *pendingEvent
	// terminated aborts blocked flush deliveries once the watcher shuts
	// down.
	terminated <-chan struct{}
	// now is the time source.
	now func() time.Time
}

// newDebouncer creates a debouncer with the specified window that delivers
// flushes to the specified channel.
func newDebouncer(delay time.Duration, flushes chan<- *pendingEvent, terminated <-chan struct{}, now func() time.Time) *debouncer {
	return &debouncer{
		delay:      delay,
		pending:    make(map[string]*pendingEvent),
		flushes:    flushes,
		terminated: terminated,
		now:        now,
	}
}

// observe processes a classified event. If the event displaces an existing
// pending entry of a different kind, that entry is returned for immediate
// flushing; otherwise the result is nil.
func (d *debouncer) observe(r *root, path string, kind Kind) *pendingEvent {
	if entry, ok := d.pending[path]; ok {
		// A same-kind event within the window coalesces: the entry's window
		// restarts and the event is suppressed.
		if entry.kind == kind {
			entry.timer.Reset(d.delay)
			return nil
		}

		// A kind change flushes the existing entry immediately and opens a
		// fresh window for the new kind, preserving classification order.
		entry.timer.Stop()
		delete(d.pending, path)
		d.insert(r, path, kind)
		return entry
	}
	d.insert(r, path, kind)
	return nil
}

// insert creates a pending entry for a path and arms its flush timer.
func (d *debouncer) insert(r *root, path string, kind Kind) {
	entry := &pendingEvent{
		root:      r,
		path:      path,
		kind:      kind,
		firstSeen: d.now(),
	}
	d.pending[path] = entry
	entry.timer = time.AfterFunc(d.delay, func() {
		select {
		case d.flushes <- entry:
		case <-d.terminated:
		}
	})
}

// resolve checks whether a flushed entry is still current, removing it from
// the pending set if so. Stale flushes (from timers that fired just before
// their entry was displaced or the debouncer cleared) are reported as false
// and must be dropped.
func (d *debouncer) resolve(entry *pendingEvent) bool {
	if current, ok := d.pending[entry.path]; !ok || current != entry {
		return false
	}
	delete(d.pending, entry.path)
	return true
}

// clear cancels all pending entries without flushing them.
func (d *debouncer) clear() {
	for path, entry := range d.pending {
		entry.timer.Stop()
		delete(d.pending, path)
	}
}
