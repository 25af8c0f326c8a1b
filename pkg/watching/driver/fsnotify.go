package driver

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// fsnotifyWatcher implements Watcher on top of fsnotify, which provides
// per-directory, non-recursive notifications on all major platforms.
type fsnotifyWatcher struct {
	// watch is the underlying fsnotify watcher.
	watch *fsnotify.Watcher
	// subscriptionsLock serializes access to subscriptions.
	subscriptionsLock sync.Mutex
	// subscriptions is the set of directories currently being observed. It's
	// used to split absolute event paths into (directory, name) pairs.
	subscriptions map[string]bool
	// events is the event delivery channel.
	events chan Event
	// errors is the error delivery channel.
	errors chan error
	// cancel is the run loop cancellation function.
	cancel context.CancelFunc
	// done is the run loop completion signaling mechanism.
	done sync.WaitGroup
}

// NewFSNotify creates a new fsnotify-based non-recursive driver.
func NewFSNotify() (Watcher, error) {
	// Create the underlying watcher.
	watch, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("unable to create native watcher: %w", err)
	}

	// Create a context to regulate the driver's run loop.
	ctx, cancel := context.WithCancel(context.Background())

	// Create the driver.
	driver := &fsnotifyWatcher{
		watch:         watch,
		subscriptions: make(map[string]bool),
		events:        make(chan Event, eventBufferSize),
		errors:        make(chan error, 1),
		cancel:        cancel,
	}

	// Track run loop termination.
	driver.done.Add(1)

	// Start the run loop.
	go func() {
		select {
		case driver.errors <- driver.run(ctx):
		default:
		}
		close(driver.events)
		driver.done.Done()
	}()

	// Success.
	return driver, nil
}

// run implements the event processing run loop for fsnotifyWatcher.
func (w *fsnotifyWatcher) run(ctx context.Context) error {
	// Loop indefinitely, polling for cancellation and events.
	for {
		select {
		case <-ctx.Done():
			return ErrTerminated
		case event, ok := <-w.watch.Events:
			// Ensure that the native event channel wasn't closed.
			if !ok {
				return errors.New("native events channel closed")
			}

			// Convert and forward the event, giving up if the run loop is
			// cancelled before delivery completes.
			select {
			case w.events <- w.convert(event):
			case <-ctx.Done():
				return ErrTerminated
			}
		case err, ok := <-w.watch.Errors:
			// Ensure that the native error channel wasn't closed.
			if !ok {
				return errors.New("native errors channel closed")
			}

			// Native errors indicate kernel-side problems (such as event
			// queue overflows) that invalidate the watch.
			return fmt.Errorf("native watch failure: %w", err)
		}
	}
}

// convert splits an absolute fsnotify event path into a raw driver event.
func (w *fsnotifyWatcher) convert(event fsnotify.Event) Event {
	// Normalize the event path.
	path := filepath.Clean(event.Name)

	// Map the native operation onto a raw operation. Renames and removals
	// share a raw kind since classification doesn't distinguish them.
	op := OpChange
	if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
		op = OpRename
	}

	// If the path is itself an observed directory, then the event refers to
	// that directory. Otherwise it refers to an entry within its parent.
	w.subscriptionsLock.Lock()
	observed := w.subscriptions[path]
	w.subscriptionsLock.Unlock()
	if observed {
		return Event{Dir: path, Op: op}
	}
	return Event{Dir: filepath.Dir(path), Name: filepath.Base(path), Op: op}
}

// Watch implements Watcher.Watch.
func (w *fsnotifyWatcher) Watch(dir string) error {
	// Register the subscription before starting the watch so that events
	// arriving immediately afterward resolve against it.
	w.subscriptionsLock.Lock()
	w.subscriptions[dir] = true
	w.subscriptionsLock.Unlock()

	// Start the watch, deregistering on failure.
	if err := w.watch.Add(dir); err != nil {
		w.subscriptionsLock.Lock()
		delete(w.subscriptions, dir)
		w.subscriptionsLock.Unlock()
		return err
	}

	// Success.
	return nil
}

// Unwatch implements Watcher.Unwatch.
func (w *fsnotifyWatcher) Unwatch(dir string) error {
	// Deregister the subscription.
	w.subscriptionsLock.Lock()
	observed := w.subscriptions[dir]
	delete(w.subscriptions, dir)
	w.subscriptionsLock.Unlock()

	// If the directory wasn't observed, then there's nothing to remove.
	if !observed {
		return nil
	}

	// Stop the watch. The native watch may have already been dropped by the
	// kernel if the directory was deleted, so non-existence isn't an error.
	if err := w.watch.Remove(dir); err != nil && !errors.Is(err, fsnotify.ErrNonExistentWatch) {
		return err
	}
	return nil
}

// Recursive implements Watcher.Recursive.
func (w *fsnotifyWatcher) Recursive() bool {
	return false
}

// Events implements Watcher.Events.
func (w *fsnotifyWatcher) Events() <-chan Event {
	return w.events
}

// Errors implements Watcher.Errors.
func (w *fsnotifyWatcher) Errors() <-chan error {
	return w.errors
}

// Terminate implements Watcher.Terminate.
func (w *fsnotifyWatcher) Terminate() error {
	// Signal cancellation.
	w.cancel()

	// Wait for the run loop to exit.
	w.done.Wait()

	// Terminate the underlying watcher.
	return w.watch.Close()
}
