// Package driver defines the boundary between the watching core and the
// platform's native change notification facility. A driver observes
// individual directories and delivers raw, unclassified notifications; the
// watching core is responsible for classification, filtering, debouncing,
// and recursion emulation.
package driver

import (
	"errors"
	"path/filepath"
)

const (
	// eventBufferSize is the event buffer size to use for raw native events.
	eventBufferSize = 64
)

// ErrTerminated indicates that a driver has been terminated.
var ErrTerminated = errors.New("driver terminated")

// Op identifies the raw kind of a native notification. It is opaque to the
// watching core: classification is performed by probing the filesystem, not
// by interpreting the operation.
type Op uint8

const (
	// OpChange indicates a creation, modification, or metadata change.
	OpChange Op = iota
	// OpRename indicates a rename or removal.
	OpRename
)

// String implements fmt.Stringer.String.
func (o Op) String() string {
	switch o {
	case OpChange:
		return "change"
	case OpRename:
		return "rename"
	default:
		return "unknown"
	}
}

// Event is a raw notification from a driver. Dir is always the watched
// directory. Name, if non-empty, is the base name of the affected entry
// within Dir; if empty, the event refers to Dir itself.
type Event struct {
	// Dir is the watched directory in which the event occurred.
	Dir string
	// Name is the base name of the affected entry, if known.
	Name string
	// Op is the raw operation reported by the platform.
	Op Op
}

// Path returns the absolute path that the event refers to.
func (e Event) Path() string {
	if e.Name == "" {
		return e.Dir
	}
	return filepath.Join(e.Dir, e.Name)
}

// Watcher is the interface implemented by platform drivers. It is not safe
// for concurrent usage, though the channels returned by its methods may (and
// should) be polled simultaneously. A driver's Events channel is closed when
// its processing loop terminates; a terminal error is available on the Errors
// channel at that point.
type Watcher interface {
	// Watch adds a directory to the set of directories being observed. It
	// fails if the directory does not exist or is inaccessible.
	Watch(dir string) error
	// Unwatch removes a directory from the set of directories being observed.
	// Removing a directory that isn't observed is a no-op.
	Unwatch(dir string) error
	// Recursive indicates whether or not a single watch observes events in
	// all descendants of the watched directory.
	Recursive() bool
	// Events returns the channel on which raw notifications are delivered.
	Events() <-chan Event
	// Errors returns a channel that is populated if a watch error occurs. If
	// Terminate is invoked before any other error occurs, then it will be
	// populated by ErrTerminated.
	Errors() <-chan error
	// Terminate terminates all watching operations and releases any resources
	// associated with the driver.
	Terminate() error
}

// Factory constructs a driver instance. The watching core invokes the
// factory once per watch root, so each root owns an independent driver.
type Factory func() (Watcher, error)
