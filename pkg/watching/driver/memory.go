package driver

import (
	"sort"
	"sync"
)

// Memory is a simulated driver for use in tests. Notifications are injected
// by the test via Inject and InjectError, and the set of observed directories
// can be inspected with Watched. Unlike real drivers, it is safe for
// concurrent usage.
type Memory struct {
	// recursive indicates whether the driver advertises native recursion.
	recursive bool
	// lock serializes access to subscriptions, failures, and terminated.
	lock sync.Mutex
	// subscriptions is the set of directories currently being observed.
	subscriptions map[string]bool
	// failures maps directories to errors that Watch should return for them.
	failures map[string]error
	// terminated indicates whether or not Terminate has been invoked.
	terminated bool
	// events is the event delivery channel.
	events chan Event
	// errors is the error delivery channel.
	errors chan error
}

// NewMemory creates a new simulated driver. The recursive flag controls the
// value reported by Recursive.
func NewMemory(recursive bool) *Memory {
	return &Memory{
		recursive:     recursive,
		subscriptions: make(map[string]bool),
		failures:      make(map[string]error),
		events:        make(chan Event, eventBufferSize),
		errors:        make(chan error, 1),
	}
}

// Inject delivers a raw notification as if it had come from the platform.
// Delivery is non-blocking: the notification is dropped if the driver has
// been terminated or its event buffer is full.
func (m *Memory) Inject(dir, name string, op Op) {
	m.lock.Lock()
	defer m.lock.Unlock()
	if m.terminated {
		return
	}
	select {
	case m.events <- Event{Dir: dir, Name: name, Op: op}:
	default:
	}
}

// InjectError delivers a terminal driver error and closes the event stream,
// simulating an irrecoverable loss of the platform facility.
func (m *Memory) InjectError(err error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	if m.terminated {
		return
	}
	m.terminated = true
	select {
	case m.errors <- err:
	default:
	}
	close(m.events)
}

// FailWatch configures Watch to fail with the specified error for dir.
func (m *Memory) FailWatch(dir string, err error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.failures[dir] = err
}

// Watched returns the sorted set of directories currently being observed.
func (m *Memory) Watched() []string {
	m.lock.Lock()
	defer m.lock.Unlock()
	result := make([]string, 0, len(m.subscriptions))
	for dir := range m.subscriptions {
		result = append(result, dir)
	}
	sort.Strings(result)
	return result
}

// Watch implements Watcher.Watch.
func (m *Memory) Watch(dir string) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	if err := m.failures[dir]; err != nil {
		return err
	}
	m.subscriptions[dir] = true
	return nil
}

// Unwatch implements Watcher.Unwatch.
func (m *Memory) Unwatch(dir string) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	delete(m.subscriptions, dir)
	return nil
}

// Recursive implements Watcher.Recursive.
func (m *Memory) Recursive() bool {
	return m.recursive
}

// Events implements Watcher.Events.
func (m *Memory) Events() <-chan Event {
	return m.events
}

// Errors implements Watcher.Errors.
func (m *Memory) Errors() <-chan error {
	return m.errors
}

// Terminate implements Watcher.Terminate.
func (m *Memory) Terminate() error {
	m.lock.Lock()
	defer m.lock.Unlock()
	if m.terminated {
		return nil
	}
	m.terminated = true
	select {
	case m.errors <- ErrTerminated:
	default:
	}
	close(m.events)
	return nil
}
