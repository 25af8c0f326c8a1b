package watching

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/watchfs-io/watchfs/pkg/watching/driver"
)

const (
	// watchQueueSize is the buffer size used for the dispatcher's raw event,
	// driver error, and flush channels.
	watchQueueSize = 128
	// errorBacklogLimit is the maximum number of errors buffered while no
	// error callback is registered.
	errorBacklogLimit = 16
)

// rootedEvent tags a raw driver event with its originating root.
type rootedEvent struct {
	root  *root
	event driver.Event
}

// rootedError tags a driver error with its originating root. Fatal errors
// indicate loss of the driver and close the watcher.
type rootedError struct {
	root  *root
	err   error
	fatal bool
}

// Watcher observes one or more filesystem targets and delivers classified,
// debounced change events. All callbacks (change, ready, error, close, and
// the filter) are invoked serially on a single internal dispatcher
// goroutine; the watcher never runs two callbacks concurrently. Once the
// watcher has closed and its dispatcher has exited, callbacks passed to
// OnReady, OnError, OnClose, and WatchedPaths are instead invoked directly on
// the registering goroutine, so concurrent registrations at that point may
// run concurrently.
type Watcher struct {
	// options are the watcher's normalized options.
	options Options
	// fs is the metadata facility.
	fs fileSystem
	// logger is the watcher's logger.
	logger *zap.Logger
	// now is the time source.
	now func() time.Time

	// requests delivers control operations to the dispatcher.
	requests chan func()
	// rawEvents delivers raw driver events from the pump goroutines.
	rawEvents chan rootedEvent
	// driverErrors delivers driver errors from the pump goroutines.
	driverErrors chan rootedError
	// flushes delivers expired debounce entries from their timers.
	flushes chan *pendingEvent
	// closeRequests signals a close request to the dispatcher.
	closeRequests chan struct{}
	// closeOnce guards closeRequests.
	closeOnce sync.Once
	// cancel terminates the pump goroutines.
	cancel context.CancelFunc
	// terminated is closed once shutdown completes and no further change
	// events will be delivered.
	terminated chan struct{}
	// done is closed when the dispatcher exits.
	done chan struct{}

	// The following fields are owned by the dispatcher. They may be read by
	// other goroutines only after done is closed.
	roots           []*root
	composer        *composer
	ready           bool
	closed          bool
	readyCallbacks  []func()
	changeCallbacks []Handler
	errorCallbacks  []func(error)
	closeCallbacks  []func()
	errorBacklog    []error
	pendingWatched  []func([]string)
}

// Watch creates a watcher for the specified targets. Targets may be files or
// directories; directories are watched recursively only if the options
// request it. The optional handler receives change events; additional
// callbacks can be registered with the On methods. Invalid options (an
// unrecognized encoding, a negative delay, or an empty target list) are
// rejected synchronously; a target that doesn't exist surfaces as an error
// event instead, followed by closure of the watcher.
func Watch(targets []string, options *Options, handler Handler) (*Watcher, error) {
	return newWatcher(targets, options, handler, osFileSystem{}, time.Now)
}

// newWatcher implements Watch with an injectable metadata facility and time
// source.
func newWatcher(targets []string, options *Options, handler Handler, fs fileSystem, now func() time.Time) (*Watcher, error) {
	if len(targets) == 0 {
		return nil, ErrNoTargets
	}
	normalized, err := options.normalize()
	if err != nil {
		return nil, err
	}

	// Create a context to regulate the pump goroutines.
	ctx, cancel := context.WithCancel(context.Background())

	// Create the watcher.
	w := &Watcher{
		options:       normalized,
		fs:            fs,
		logger:        normalized.Logger,
		now:           now,
		requests:      make(chan func()),
		rawEvents:     make(chan rootedEvent, watchQueueSize),
		driverErrors:  make(chan rootedError, watchQueueSize),
		flushes:       make(chan *pendingEvent, watchQueueSize),
		closeRequests: make(chan struct{}),
		cancel:        cancel,
		terminated:    make(chan struct{}),
		done:          make(chan struct{}),
		composer:      newComposer(normalized.Delay, now),
	}
	if handler != nil {
		w.changeCallbacks = append(w.changeCallbacks, handler)
	}

	// Start the dispatcher.
	go w.run(ctx, targets)

	// Success.
	return w, nil
}

// run implements the dispatcher for Watcher.
func (w *Watcher) run(ctx context.Context, targets []string) {
	// Signal dispatcher exit when done.
	defer close(w.done)

	// Start the roots. This may fail and drive the watcher directly to
	// closed, in which case the loop below is never entered and control
	// operations fall back to their post-exit handling.
	w.initialize(ctx, targets)

	// Loop until closed, polling for events, errors, flushes, and control
	// operations.
	for !w.closed {
		select {
		case re := <-w.rawEvents:
			w.handleRaw(re)
		case de := <-w.driverErrors:
			w.handleDriverError(de)
		case entry := <-w.flushes:
			w.handleFlush(entry)
		case request := <-w.requests:
			request()
		case <-w.closeRequests:
			w.shutdown()
		}
	}
}

// initialize starts a root for each target and transitions the watcher to
// ready. A target that fails to start is reported as an error and closes the
// watcher.
func (w *Watcher) initialize(ctx context.Context, targets []string) {
	for _, target := range targets {
		r := newRoot(target, w.options, w.fs, w.flushes, w.terminated, w.now)
		if err := r.start(w.options.Driver, w.reportError); err != nil {
			r.stop()
			w.reportError(err)
			w.shutdown()
			return
		}
		w.roots = append(w.roots, r)
		go w.pump(ctx, r)
	}

	// Transition to ready, firing ready callbacks and any deferred watched
	// path queries.
	w.ready = true
	readyCallbacks := w.readyCallbacks
	w.readyCallbacks = nil
	for _, callback := range readyCallbacks {
		w.guard(callback)
	}
	pending := w.pendingWatched
	w.pendingWatched = nil
	for _, callback := range pending {
		paths := w.watchedUnion()
		callback := callback
		w.guard(func() { callback(paths) })
	}
}

// pump forwards a root's driver events and errors to the dispatcher. Closure
// of the driver's event stream indicates loss of the driver and is forwarded
// as a fatal error.
func (w *Watcher) pump(ctx context.Context, r *root) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-r.driver.Events():
			if !ok {
				select {
				case w.driverErrors <- rootedError{r, errors.New("platform driver event stream terminated"), true}:
				case <-ctx.Done():
				}
				return
			}
			select {
			case w.rawEvents <- rootedEvent{r, event}:
			case <-ctx.Done():
				return
			}
		case err := <-r.driver.Errors():
			select {
			case w.driverErrors <- rootedError{r, err, false}:
			case <-ctx.Done():
				return
			}
		}
	}
}

// handleRaw processes a raw driver event: classification, subtree
// maintenance, filtering, and debouncing.
func (w *Watcher) handleRaw(re rootedEvent) {
	r := re.root

	// Drop late events from directories no longer observed by this root.
	if !r.admitsDir(re.event.Dir) {
		return
	}

	// Classify.
	c := classify(w.fs, re.event)

	// A removal observation on a watched directory retires it and its
	// subtree before anything else so that no further events surface for it.
	if r.emulated && c.kind == Remove && r.subtree.watching(c.path) {
		r.subtree.retire(c.path)
	}

	// Evaluate the filter. A filter failure aborts processing of this event
	// but leaves the watcher running.
	verdict, err := evaluateFilter(r.filter, c.path)
	if err != nil {
		w.reportError(err)
		return
	}
	if verdict == SkipSubtree {
		return
	}

	// An update for an extant, unwatched, unskipped directory enlists it.
	// Rejected directories are still enlisted: rejection suppresses
	// emission, not coverage of children.
	if r.emulated && c.kind == Update && c.entry == entryDirectory && !r.subtree.watching(c.path) {
		r.subtree.enlist(c.path, w.reportError)
	}

	// Suppress emission for rejected and out-of-scope paths.
	if verdict == Reject || !r.inScope(c.path) {
		return
	}

	// Debounce. A kind change displaces the existing pending entry, which is
	// flushed immediately to preserve classification order.
	if displaced := r.debounce.observe(r, c.path, c.kind); displaced != nil {
		w.emit(displaced)
	}
}

// handleDriverError processes an error forwarded from a pump.
func (w *Watcher) handleDriverError(de rootedError) {
	if de.fatal {
		w.reportError(errors.Wrap(de.err, "platform driver failure"))
		w.shutdown()
		return
	}
	w.reportError(de.err)
}

// handleFlush processes an expired debounce entry.
func (w *Watcher) handleFlush(entry *pendingEvent) {
	if !entry.root.debounce.resolve(entry) {
		return
	}
	w.emit(entry)
}

// emit runs an event through the composer and, if admitted, delivers it to
// the change callbacks.
func (w *Watcher) emit(entry *pendingEvent) {
	directory := entry.kind == Update && w.fs.probe(entry.path) == entryDirectory
	if !w.composer.admit(entry.root, entry.path, entry.kind, directory) {
		return
	}
	event := Event{
		Kind:  entry.kind,
		Path:  w.options.Encoding.render(entry.path),
		Bytes: []byte(entry.path),
	}
	w.logger.Debug("emitting event",
		zap.Stringer("kind", entry.kind),
		zap.String("path", entry.path))
	for _, callback := range w.changeCallbacks {
		callback := callback
		w.guard(func() { callback(event) })
	}
}

// reportError delivers an error to the registered error callbacks, or
// buffers it if none are registered yet.
func (w *Watcher) reportError(err error) {
	w.logger.Warn("watch error", zap.Error(err))
	if len(w.errorCallbacks) == 0 {
		if len(w.errorBacklog) < errorBacklogLimit {
			w.errorBacklog = append(w.errorBacklog, err)
		}
		return
	}
	for _, callback := range w.errorCallbacks {
		w.invokeError(callback, err)
	}
}

// invokeError invokes an error callback, containing any panic.
func (w *Watcher) invokeError(callback func(error), err error) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Warn("error handler panic", zap.Any("value", r))
		}
	}()
	callback(err)
}

// guard invokes a callback, converting a panic into an error event.
func (w *Watcher) guard(callback func()) {
	defer func() {
		if r := recover(); r != nil {
			w.reportError(errors.Errorf("handler panic: %v", r))
		}
	}()
	callback()
}

// shutdown tears down all roots, cancels all pending debounce entries
// without flushing them, fires close callbacks exactly once, and marks the
// watcher terminated.
func (w *Watcher) shutdown() {
	if w.closed {
		return
	}
	w.closed = true

	// Stop the pumps.
	w.cancel()

	// Tear down the roots: pending debounce entries are cancelled, watches
	// released, and drivers terminated.
	for _, r := range w.roots {
		r.stop()
	}
	w.composer.clear()

	// Deferred watched path queries observe the post-close empty set.
	pendingWatched := w.pendingWatched
	w.pendingWatched = nil
	for _, callback := range pendingWatched {
		callback := callback
		w.guard(func() { callback(nil) })
	}

	// Fire close callbacks.
	closeCallbacks := w.closeCallbacks
	w.closeCallbacks = nil
	for _, callback := range closeCallbacks {
		w.guard(callback)
	}

	// Mark termination. This also releases any debounce timers blocked on
	// flush delivery.
	close(w.terminated)
	w.logger.Debug("watcher closed")
}

// post delivers a control operation to the dispatcher, falling back to the
// supplied function if the dispatcher has already exited.
func (w *Watcher) post(request func(), fallback func()) {
	select {
	case w.requests <- request:
	case <-w.done:
		if fallback != nil {
			fallback()
		}
	}
}

// OnReady registers a callback invoked once all roots have completed their
// initial enumeration. Readiness is sticky: registering after the fact
// invokes the callback immediately.
func (w *Watcher) OnReady(callback func()) {
	w.post(func() {
		if w.ready {
			w.guard(callback)
			return
		}
		if w.closed {
			return
		}
		w.readyCallbacks = append(w.readyCallbacks, callback)
	}, func() {
		if w.ready {
			callback()
		}
	})
}

// OnChange registers an additional change event callback.
func (w *Watcher) OnChange(callback Handler) {
	w.post(func() {
		w.changeCallbacks = append(w.changeCallbacks, callback)
	}, nil)
}

// OnError registers an error callback. Errors observed before the first
// registration are replayed to it.
func (w *Watcher) OnError(callback func(error)) {
	w.post(func() {
		w.errorCallbacks = append(w.errorCallbacks, callback)
		backlog := w.errorBacklog
		w.errorBacklog = nil
		for _, err := range backlog {
			w.invokeError(callback, err)
		}
	}, func() {
		for _, err := range w.errorBacklog {
			callback(err)
		}
	})
}

// OnClose registers a callback invoked when the watcher closes. Closure is
// sticky: registering on a closed watcher invokes the callback immediately.
func (w *Watcher) OnClose(callback func()) {
	w.post(func() {
		if w.closed {
			w.guard(callback)
			return
		}
		w.closeCallbacks = append(w.closeCallbacks, callback)
	}, func() {
		callback()
	})
}

// WatchedPaths invokes the callback with the deduplicated union of the
// directories currently observed across all roots. If invoked before the
// watcher is ready, the callback is deferred until initial enumeration
// completes; on a closed watcher it observes an empty set.
func (w *Watcher) WatchedPaths(callback func([]string)) {
	w.post(func() {
		if w.closed {
			w.guard(func() { callback(nil) })
			return
		}
		if !w.ready {
			w.pendingWatched = append(w.pendingWatched, callback)
			return
		}
		paths := w.watchedUnion()
		w.guard(func() { callback(paths) })
	}, func() {
		callback(nil)
	})
}

// watchedUnion computes the sorted union of the roots' watched sets.
func (w *Watcher) watchedUnion() []string {
	seen := make(map[string]bool)
	var result []string
	for _, r := range w.roots {
		for _, path := range r.subtree.paths() {
			if !seen[path] {
				seen[path] = true
				result = append(result, path)
			}
		}
	}
	sort.Strings(result)
	return result
}

// Close terminates all watching operations, cancels in-flight debounce
// timers without flushing them, and releases the watcher's resources. After
// Close returns, no further change events are delivered. Close is idempotent
// and safe for concurrent usage, but must not be invoked from one of the
// watcher's own callbacks.
func (w *Watcher) Close() error {
	w.closeOnce.Do(func() { close(w.closeRequests) })
	<-w.terminated
	return nil
}

// Closed indicates whether or not the watcher has terminated.
func (w *Watcher) Closed() bool {
	select {
	case <-w.terminated:
		return true
	default:
		return false
	}
}
