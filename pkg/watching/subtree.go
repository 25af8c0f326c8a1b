package watching

import (
	"os"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/watchfs-io/watchfs/pkg/watching/driver"
)

// subtreeManager maintains the set of directories observed on behalf of a
// single root. For roots that emulate recursion over a non-recursive driver,
// it enlists newly created subdirectories and retires removed ones; for all
// other roots it simply tracks the single watched directory. It must only be
// accessed from the watcher's dispatcher.
type subtreeManager struct {
	// driver is the driver owning the native watches.
	driver driver.Watcher
	// fs is the metadata facility used for enumeration.
	fs fileSystem
	// filter is the root's filter, honored during enlistment for its
	// skip-subtree verdict.
	filter Filter
	// logger is the root's logger.
	logger *zap.Logger
	// watched is the set of directories currently being observed.
	watched map[string]bool
}

// newSubtreeManager creates a subtree manager bound to a root's driver,
// metadata facility, and filter.
func newSubtreeManager(d driver.Watcher, fs fileSystem, filter Filter, logger *zap.Logger) *subtreeManager {
	return &subtreeManager{
		driver:  d,
		fs:      fs,
		filter:  filter,
		logger:  logger,
		watched: make(map[string]bool),
	}
}

// enlist subscribes to dir and recursively to its unskipped descendant
// directories. The caller is responsible for having admitted dir itself;
// descendants are admitted here by filter evaluation, with skip-subtree
// pruning both the directory and everything below it. Subscription and
// enumeration failures on individual directories are reported through report
// and do not abort the remainder of the enlistment.
func (m *subtreeManager) enlist(dir string, report func(error)) {
	if err := m.driver.Watch(dir); err != nil {
		report(errors.Wrapf(err, "unable to watch %q", dir))
		return
	}
	m.watched[dir] = true
	m.logger.Debug("enlisted directory", zap.String("path", dir))
	m.enlistChildren(dir, report)
}

// enlistChildren enlists the unskipped subdirectories of an already-admitted
// directory.
func (m *subtreeManager) enlistChildren(dir string, report func(error)) {
	children, err := m.fs.subdirectories(dir)
	if err != nil {
		report(errors.Wrapf(err, "unable to enumerate %q", dir))
		return
	}
	for _, child := range children {
		verdict, err := evaluateFilter(m.filter, child)
		if err != nil {
			report(err)
			continue
		}
		if verdict == SkipSubtree {
			continue
		}
		m.enlist(child, report)
	}
}

// subscribe subscribes to a single directory without descending into it.
func (m *subtreeManager) subscribe(dir string) error {
	if err := m.driver.Watch(dir); err != nil {
		return err
	}
	m.watched[dir] = true
	return nil
}

// retire removes the watches on dir and every watched descendant of dir.
// Late driver events for retired directories are dropped by the watching
// check performed on every raw event.
func (m *subtreeManager) retire(dir string) {
	prefix := dir + string(os.PathSeparator)
	for watched := range m.watched {
		if watched == dir || strings.HasPrefix(watched, prefix) {
			if err := m.driver.Unwatch(watched); err != nil {
				m.logger.Warn("unable to unwatch directory",
					zap.String("path", watched), zap.Error(err))
			}
			delete(m.watched, watched)
			m.logger.Debug("retired directory", zap.String("path", watched))
		}
	}
}

// watching indicates whether or not a directory is currently observed.
func (m *subtreeManager) watching(dir string) bool {
	return m.watched[dir]
}

// paths returns the sorted set of directories currently observed.
func (m *subtreeManager) paths() []string {
	result := make([]string, 0, len(m.watched))
	for dir := range m.watched {
		result = append(result, dir)
	}
	sort.Strings(result)
	return result
}

// clear retires every watched directory.
func (m *subtreeManager) clear() {
	for watched := range m.watched {
		if err := m.driver.Unwatch(watched); err != nil {
			m.logger.Warn("unable to unwatch directory",
				zap.String("path", watched), zap.Error(err))
		}
		delete(m.watched, watched)
	}
}
