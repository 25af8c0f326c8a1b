package watching

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/watchfs-io/watchfs/pkg/watching/driver"
)

// root is a single watch target together with its pipeline state: the driver
// owning its native watches, the subtree manager tracking its watched set,
// and its debouncer. Roots are exclusively owned by their watcher and, with
// the exception of construction, only touched from the dispatcher.
type root struct {
	// original is the target path as supplied by the caller.
	original string
	// target is the resolved absolute target path.
	target string
	// targetKind is the target's state at start.
	targetKind entryKind
	// base is the directory whose tree is observed: the target itself for
	// directory targets, the target's parent for file targets.
	base string
	// recursive indicates whether subdirectories should be watched.
	recursive bool
	// emulated indicates whether recursive coverage is emulated by
	// per-directory watches. It is set for recursive directory targets on
	// drivers without native recursion.
	emulated bool
	// filter is the root's filter.
	filter Filter
	// logger is the root's logger.
	logger *zap.Logger
	// fs is the metadata facility.
	fs fileSystem
	// driver is the root's driver instance.
	driver driver.Watcher
	// subtree tracks the root's watched directories.
	subtree *subtreeManager
	// debounce is the root's coalescing stage.
	debounce *debouncer
}

// newRoot creates a root for a target using the watcher's normalized options
// and plumbing. The root isn't live until start succeeds.
func newRoot(target string, options Options, fs fileSystem, flushes chan<- *pendingEvent, terminated <-chan struct{}, now func() time.Time) *root {
	return &root{
		original:  target,
		recursive: options.Recursive,
		filter:    options.Filter,
		logger:    options.Logger,
		fs:        fs,
		debounce:  newDebouncer(options.Delay, flushes, terminated, now),
	}
}

// start resolves the target, creates the root's driver, and establishes
// initial watch coverage. A nonexistent target is reported with an error
// whose message names the target and states that it does not exist.
// Individual failures below the base directory are reported through report
// and are not fatal.
func (r *root) start(factory driver.Factory, report func(error)) error {
	// Resolve the target to an absolute, symlink-free path. Resolution
	// doubles as the existence check for the initial target.
	resolved, err := r.fs.resolve(r.original)
	if err != nil {
		if os.IsNotExist(err) {
			return errors.Errorf("watch target %q does not exist", r.original)
		}
		return errors.Wrapf(err, "unable to resolve watch target %q", r.original)
	}
	r.target = resolved

	// Determine the target kind and the base directory.
	r.targetKind = r.fs.probe(resolved)
	if r.targetKind == entryAbsent {
		return errors.Errorf("watch target %q does not exist", resolved)
	}
	if r.targetKind == entryDirectory {
		r.base = resolved
	} else {
		r.base = filepath.Dir(resolved)
	}

	// Create the driver.
	if r.driver, err = factory(); err != nil {
		return errors.Wrap(err, "unable to create platform driver")
	}
	r.subtree = newSubtreeManager(r.driver, r.fs, r.filter, r.logger)

	// Recursive coverage is emulated when the driver lacks native recursion.
	// File targets watch only their parent directory and never recurse.
	r.emulated = r.recursive && r.targetKind == entryDirectory && !r.driver.Recursive()

	// Establish initial coverage. For emulated roots, the filter is
	// consulted for the base itself: a skip-subtree verdict on the base
	// leaves the root without any watches at all.
	if r.emulated {
		verdict, err := evaluateFilter(r.filter, r.base)
		if err != nil {
			report(err)
			verdict = Accept
		}
		if verdict != SkipSubtree {
			if err := r.subtree.subscribe(r.base); err != nil {
				return errors.Wrapf(err, "unable to watch %q", r.base)
			}
			r.subtree.enlistChildren(r.base, report)
		}
	} else {
		if err := r.subtree.subscribe(r.base); err != nil {
			return errors.Wrapf(err, "unable to watch %q", r.base)
		}
	}

	r.logger.Debug("watch root started",
		zap.String("target", r.target),
		zap.Bool("recursive", r.recursive),
		zap.Bool("emulated", r.emulated))
	return nil
}

// admitsDir indicates whether raw events from a directory should be
// processed. Late events from retired directories are dropped here.
func (r *root) admitsDir(dir string) bool {
	if r.driver.Recursive() {
		return dir == r.base || strings.HasPrefix(dir, r.base+string(os.PathSeparator))
	}
	return r.subtree.watching(dir)
}

// inScope indicates whether an emission for path is within the root's
// target scope.
func (r *root) inScope(path string) bool {
	if r.targetKind != entryDirectory {
		return path == r.target
	}
	if path == r.target {
		return true
	}
	if !strings.HasPrefix(path, r.target+string(os.PathSeparator)) {
		return false
	}
	if r.recursive {
		return true
	}
	return filepath.Dir(path) == r.target
}

// stop tears down the root's watches and pending events and terminates its
// driver.
func (r *root) stop() {
	r.debounce.clear()
	if r.subtree != nil {
		r.subtree.clear()
	}
	if r.driver != nil {
		if err := r.driver.Terminate(); err != nil {
			r.logger.Warn("unable to terminate driver", zap.Error(err))
		}
	}
}
